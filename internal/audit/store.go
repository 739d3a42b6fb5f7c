package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store persists and queries audit entries.
type Store interface {
	Insert(ctx context.Context, entry Entry) error
	List(ctx context.Context, filters Filters, limit, offset int) ([]Entry, error)
	Suspicious(ctx context.Context, since time.Time, limit int) ([]Entry, error)
	FailedLogins(ctx context.Context, since time.Time, limit int) ([]Entry, error)
	CountByAction(ctx context.Context, since time.Time) ([]ActionCount, error)
}

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewStore constructs a PostgreSQL store.
func NewStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

const entryColumns = `id, actor_id, actor_username, actor_role, action, resource_type, resource_id, result, details, justification, source_ip, user_agent, occurred_at`

// Insert appends one entry. Entries are never updated or deleted.
func (s *PGStore) Insert(ctx context.Context, entry Entry) error {
	details, err := json.Marshal(entry.Details)
	if err != nil {
		return fmt.Errorf("audit: marshal details: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO audit_entries (`+entryColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		entry.ID, entry.ActorID, entry.ActorUsername, entry.ActorRole,
		entry.Action, entry.ResourceType, entry.ResourceID, entry.Result,
		details, entry.Justification, entry.SourceIP, entry.UserAgent,
		entry.OccurredAt.UTC(),
	)
	return err
}

// List returns entries matching the filters, newest first.
func (s *PGStore) List(ctx context.Context, filters Filters, limit, offset int) ([]Entry, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, value any) {
		args = append(args, value)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filters.UserID != "" {
		add("actor_id = $%d", filters.UserID)
	}
	if filters.Action != "" {
		add("action = $%d", filters.Action)
	}
	if filters.ResourceType != "" {
		add("resource_type = $%d", filters.ResourceType)
	}
	if filters.ResourceID != "" {
		add("resource_id = $%d", filters.ResourceID)
	}
	if filters.Result != "" {
		add("result = $%d", filters.Result)
	}
	if !filters.From.IsZero() {
		add("occurred_at >= $%d", filters.From.UTC())
	}
	if !filters.To.IsZero() {
		add("occurred_at <= $%d", filters.To.UTC())
	}

	query := `SELECT ` + entryColumns + ` FROM audit_entries`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY occurred_at DESC LIMIT $%d", len(args))
	args = append(args, offset)
	query += fmt.Sprintf(" OFFSET $%d", len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntries(rows)
}

// Suspicious unions denied decisions, unauthorized-access attempts and failed
// authentications inside the window, newest first.
func (s *PGStore) Suspicious(ctx context.Context, since time.Time, limit int) ([]Entry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+entryColumns+` FROM audit_entries
		 WHERE occurred_at >= $1
		   AND (result = $2 OR action = ANY($3))
		 ORDER BY occurred_at DESC
		 LIMIT $4`,
		since.UTC(), ResultDenied,
		[]string{ActionUnauthorizedAccess, ActionLoginFailed, ActionInjectionAttempt},
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntries(rows)
}

// FailedLogins lists failed authentications inside the window, newest first.
func (s *PGStore) FailedLogins(ctx context.Context, since time.Time, limit int) ([]Entry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+entryColumns+` FROM audit_entries
		 WHERE occurred_at >= $1 AND action = $2
		 ORDER BY occurred_at DESC
		 LIMIT $3`,
		since.UTC(), ActionLoginFailed, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntries(rows)
}

// CountByAction aggregates entries per action and result inside the window.
func (s *PGStore) CountByAction(ctx context.Context, since time.Time) ([]ActionCount, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT action, result, COUNT(*) FROM audit_entries
		 WHERE occurred_at >= $1
		 GROUP BY action, result
		 ORDER BY action, result`,
		since.UTC(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var counts []ActionCount
	for rows.Next() {
		var c ActionCount
		if err := rows.Scan(&c.Action, &c.Result, &c.Count); err != nil {
			return nil, err
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

func scanEntries(rows pgx.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		var (
			e          Entry
			details    []byte
			occurredAt pgtype.Timestamptz
		)
		if err := rows.Scan(
			&e.ID, &e.ActorID, &e.ActorUsername, &e.ActorRole,
			&e.Action, &e.ResourceType, &e.ResourceID, &e.Result,
			&details, &e.Justification, &e.SourceIP, &e.UserAgent,
			&occurredAt,
		); err != nil {
			return nil, err
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &e.Details); err != nil {
				return nil, fmt.Errorf("audit: unmarshal details: %w", err)
			}
		}
		if occurredAt.Valid {
			e.OccurredAt = occurredAt.Time
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

var _ Store = (*PGStore)(nil)
