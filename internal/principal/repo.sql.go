package principal

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository defines persistence operations for staff identities.
type Repository interface {
	FindByID(ctx context.Context, id string) (Principal, error)
	TouchLastSeen(ctx context.Context, id string, seenAt time.Time) error
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// FindByID fetches a staff identity.
func (r *PGRepository) FindByID(ctx context.Context, id string) (Principal, error) {
	var (
		p        Principal
		lastSeen pgtype.Timestamptz
	)
	err := r.pool.QueryRow(ctx,
		`SELECT id, username, position, is_admin, status, last_seen_at FROM staff WHERE id = $1`,
		id,
	).Scan(&p.ID, &p.Username, &p.Position, &p.Admin, &p.Status, &lastSeen)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Principal{}, ErrNotFound
		}
		return Principal{}, err
	}
	if lastSeen.Valid {
		p.LastSeenAt = lastSeen.Time
	}
	return p, nil
}

// TouchLastSeen records activity for the inactivity clock. Only moves the
// timestamp forward so a stale write cannot rewind it.
func (r *PGRepository) TouchLastSeen(ctx context.Context, id string, seenAt time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE staff SET last_seen_at = $2 WHERE id = $1 AND (last_seen_at IS NULL OR last_seen_at < $2)`,
		id, seenAt.UTC(),
	)
	return err
}

var _ Repository = (*PGRepository)(nil)
