package assignment

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-ehr/meridian-ehr/internal/platform/db"
)

// Store is the source of truth for care-team assignments.
type Store interface {
	ActiveForPair(ctx context.Context, patientID, staffID string) (*Assignment, error)
	ActiveForStaff(ctx context.Context, staffID string) ([]Assignment, error)
	ActiveTeamForPatient(ctx context.Context, patientID string) ([]Assignment, error)
	HistoryForPatient(ctx context.Context, patientID string) ([]Assignment, error)
	DistinctPatients(ctx context.Context) ([]string, error)
	Create(ctx context.Context, a Assignment) error
	Revoke(ctx context.Context, id string, at time.Time) (Assignment, bool, error)
	Complete(ctx context.Context, id string, at time.Time) (Assignment, bool, error)
	ExpireOverdue(ctx context.Context, now time.Time) (int64, error)
}

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewStore constructs a PostgreSQL store.
func NewStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

const assignmentColumns = `id, patient_id, staff_id, staff_username, staff_position, assigned_by, reason, access_level, start_date, end_date, status, created_at, updated_at`

// Every "active" query excludes time-boxed grants whose end date has passed;
// an expired-but-not-yet-flipped row must never count as active.

// ActiveForPair returns the single ACTIVE assignment for the pair, nil when
// none exists or the existing one has lapsed.
func (s *PGStore) ActiveForPair(ctx context.Context, patientID, staffID string) (*Assignment, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+assignmentColumns+` FROM assignments
		 WHERE patient_id = $1 AND staff_id = $2
		   AND status = 'ACTIVE' AND (end_date IS NULL OR end_date > $3)`,
		patientID, staffID, time.Now().UTC(),
	)
	a, err := scanAssignment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}

// ActiveForStaff lists every active assignment held by a staff member, used
// to pre-filter bulk patient listings so unauthorized rows are never fetched.
func (s *PGStore) ActiveForStaff(ctx context.Context, staffID string) ([]Assignment, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+assignmentColumns+` FROM assignments
		 WHERE staff_id = $1
		   AND status = 'ACTIVE' AND (end_date IS NULL OR end_date > $2)
		 ORDER BY start_date DESC`,
		staffID, time.Now().UTC(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAssignments(rows)
}

// ActiveTeamForPatient lists the active care team for a patient.
func (s *PGStore) ActiveTeamForPatient(ctx context.Context, patientID string) ([]Assignment, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+assignmentColumns+` FROM assignments
		 WHERE patient_id = $1
		   AND status = 'ACTIVE' AND (end_date IS NULL OR end_date > $2)
		 ORDER BY start_date DESC`,
		patientID, time.Now().UTC(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAssignments(rows)
}

// HistoryForPatient lists all assignments ever held against a patient,
// including completed and revoked ones.
func (s *PGStore) HistoryForPatient(ctx context.Context, patientID string) ([]Assignment, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+assignmentColumns+` FROM assignments
		 WHERE patient_id = $1
		 ORDER BY start_date DESC`,
		patientID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAssignments(rows)
}

// DistinctPatients lists every patient id that has an active care team.
func (s *PGStore) DistinctPatients(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT patient_id FROM assignments
		 WHERE status = 'ACTIVE' AND (end_date IS NULL OR end_date > $1)
		 ORDER BY patient_id`,
		time.Now().UTC(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Create inserts a new assignment. Uniqueness of the ACTIVE pair is enforced
// by a partial unique index on (patient_id, staff_id) WHERE status = 'ACTIVE';
// the conditional insert makes the check-then-insert race harmless.
func (s *PGStore) Create(ctx context.Context, a Assignment) error {
	var endDate pgtype.Timestamptz
	if a.EndDate != nil {
		endDate = pgtype.Timestamptz{Time: a.EndDate.UTC(), Valid: true}
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO assignments (`+assignmentColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		a.ID, a.PatientID, a.StaffID, a.StaffUsername, a.StaffPosition,
		a.AssignedBy, a.Reason, a.AccessLevel,
		a.StartDate.UTC(), endDate, a.Status,
		a.CreatedAt.UTC(), a.UpdatedAt.UTC(),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrAlreadyAssigned
		}
		return err
	}
	return nil
}

// Revoke transitions an ACTIVE assignment to REVOKED. Revoking an already
// terminal assignment is a no-op success; the bool reports whether state
// actually changed.
func (s *PGStore) Revoke(ctx context.Context, id string, at time.Time) (Assignment, bool, error) {
	return s.terminate(ctx, id, StatusRevoked, at)
}

// Complete transitions an ACTIVE assignment to COMPLETED, same idempotency
// contract as Revoke.
func (s *PGStore) Complete(ctx context.Context, id string, at time.Time) (Assignment, bool, error) {
	return s.terminate(ctx, id, StatusCompleted, at)
}

// terminate runs the conditional update and the fallback read in one
// transaction so the no-op answer reflects a single consistent snapshot.
func (s *PGStore) terminate(ctx context.Context, id, status string, at time.Time) (Assignment, bool, error) {
	var (
		result  Assignment
		changed bool
	)
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx,
			`UPDATE assignments
			 SET status = $2, end_date = COALESCE(end_date, $3), updated_at = $3
			 WHERE id = $1 AND status = 'ACTIVE'
			 RETURNING `+assignmentColumns,
			id, status, at.UTC(),
		)
		a, err := scanAssignment(row)
		if err == nil {
			result, changed = a, true
			return nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return err
		}

		// Nothing was ACTIVE; distinguish terminal (no-op) from missing.
		existing := tx.QueryRow(ctx,
			`SELECT `+assignmentColumns+` FROM assignments WHERE id = $1`, id)
		a, err = scanAssignment(existing)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		result, changed = a, false
		return nil
	})
	if err != nil {
		return Assignment{}, false, err
	}
	return result, changed, nil
}

// ExpireOverdue flips lapsed time-boxed assignments to COMPLETED. This is
// store hygiene only: gate correctness never depends on it because activity
// checks compare end dates at read time.
func (s *PGStore) ExpireOverdue(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE assignments
		 SET status = 'COMPLETED', updated_at = $1
		 WHERE status = 'ACTIVE' AND end_date IS NOT NULL AND end_date <= $1`,
		now.UTC(),
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanAssignment(row pgx.Row) (Assignment, error) {
	var (
		a       Assignment
		endDate pgtype.Timestamptz
	)
	err := row.Scan(
		&a.ID, &a.PatientID, &a.StaffID, &a.StaffUsername, &a.StaffPosition,
		&a.AssignedBy, &a.Reason, &a.AccessLevel,
		&a.StartDate, &endDate, &a.Status,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return Assignment{}, err
	}
	if endDate.Valid {
		t := endDate.Time
		a.EndDate = &t
	}
	return a, nil
}

func scanAssignments(rows pgx.Rows) ([]Assignment, error) {
	var assignments []Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		assignments = append(assignments, a)
	}
	return assignments, rows.Err()
}

var _ Store = (*PGStore)(nil)
