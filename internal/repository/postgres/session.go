package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dtroode/rollcall-server/internal/model"
)

var _ model.SessionStore = (*SessionRepository)(nil)

const sessionColumns = `id, course_id, lecturer_id, center_lat, center_lng, radius_meters,
	rotation_ms, grace_ms, status, phase, started_at, initial_ends_at, reverify_ends_at, closed_at,
	reverify_selection_rate, reverify_selection_done, reverify_selected_count, reverify_selection_run_at,
	secret, created_at, updated_at`

type SessionRepository struct {
	db *Connection
}

func NewSessionRepository(db *Connection) *SessionRepository {
	return &SessionRepository{
		db: db,
	}
}

func (r *SessionRepository) Create(ctx context.Context, session model.Session) (model.Session, error) {
	query := `
		INSERT INTO sessions (id, course_id, lecturer_id, center_lat, center_lng, radius_meters,
			rotation_ms, grace_ms, status, phase, started_at, initial_ends_at, reverify_ends_at,
			reverify_selection_rate, secret)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING ` + sessionColumns

	saved, err := scanSession(r.db.QueryRow(ctx, query,
		session.ID, session.CourseID, session.LecturerID,
		session.CenterLat, session.CenterLng, session.RadiusMeters,
		session.Rotation.Milliseconds(), session.Grace.Milliseconds(),
		string(session.Status), string(session.Phase),
		session.StartedAt, session.InitialEndsAt, session.ReverifyEndsAt,
		session.ReverifySelectionRate, session.Secret,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return model.Session{}, model.ErrConflict
		}
		return model.Session{}, fmt.Errorf("failed to create session: %w", err)
	}
	return saved, nil
}

func (r *SessionRepository) GetByID(ctx context.Context, id uuid.UUID) (model.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1`

	session, err := scanSession(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Session{}, model.ErrNotFound
		}
		return model.Session{}, fmt.Errorf("failed to get session: %w", err)
	}
	return session, nil
}

func (r *SessionRepository) ListOpen(ctx context.Context) ([]model.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE status = 'ACTIVE' ORDER BY started_at`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list open sessions: %w", err)
	}
	defer rows.Close()

	var sessions []model.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sessions: %w", err)
	}
	return sessions, nil
}

func (r *SessionRepository) CompareAndSetPhase(ctx context.Context, id uuid.UUID, from, to model.Phase, at time.Time) (bool, error) {
	if to.Rank() <= from.Rank() {
		return false, nil
	}

	query := `
		UPDATE sessions
		SET phase = $3,
			status = CASE WHEN $3 = 'CLOSED' THEN 'CLOSED' ELSE status END,
			closed_at = CASE WHEN $3 = 'CLOSED' THEN COALESCE(closed_at, $4) ELSE closed_at END,
			updated_at = $4
		WHERE id = $1 AND phase = $2`

	tag, err := r.db.Exec(ctx, query, id, string(from), string(to), at)
	if err != nil {
		return false, fmt.Errorf("failed to update session phase: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	return false, r.missing(ctx, id)
}

func (r *SessionRepository) Close(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	query := `
		UPDATE sessions
		SET status = 'CLOSED', closed_at = $2, updated_at = $2
		WHERE id = $1 AND status = 'ACTIVE'`

	tag, err := r.db.Exec(ctx, query, id, at)
	if err != nil {
		return false, fmt.Errorf("failed to close session: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	return false, r.missing(ctx, id)
}

// ApplySelection locks the session row, so concurrent callers queue behind the first
// and observe reverify_selection_done once it commits.
func (r *SessionRepository) ApplySelection(ctx context.Context, id uuid.UUID, at time.Time, fn model.SelectionFunc) (model.SelectionOutcome, error) {
	var outcome model.SelectionOutcome

	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		session, err := scanSession(tx.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return err
		}
		if session.ReverifySelectionDone {
			outcome.AlreadyDone = true
			return nil
		}

		rows, err := tx.Query(ctx, `SELECT `+recordColumns+` FROM attendance_records
			WHERE session_id = $1 AND reverify_status = 'NOT_REQUIRED'
			ORDER BY created_at, id`, id)
		if err != nil {
			return err
		}
		eligible, err := collectRecords(rows)
		if err != nil {
			return err
		}

		assignments := fn(session, eligible)

		if len(assignments) > 0 {
			batch := &pgx.Batch{}
			for _, a := range assignments {
				batch.Queue(`
					UPDATE attendance_records
					SET reverify_required = TRUE, reverify_status = 'PENDING',
						reverify_attempts = 1, reverify_retries = 0,
						reverify_requested_at = $2, reverify_deadline_at = $3,
						flagged = FALSE, updated_at = $4
					WHERE id = $1 AND reverify_status = 'NOT_REQUIRED'`,
					a.RecordID, a.RequestedAt, a.DeadlineAt, at)
			}
			br := tx.SendBatch(ctx, batch)
			for range assignments {
				if _, err := br.Exec(); err != nil {
					br.Close()
					return err
				}
			}
			if err := br.Close(); err != nil {
				return err
			}
		}

		if _, err := tx.Exec(ctx, `
			UPDATE sessions
			SET reverify_selection_done = TRUE, reverify_selected_count = $2,
				reverify_selection_run_at = $3, updated_at = $3
			WHERE id = $1`, id, len(assignments), at); err != nil {
			return err
		}

		outcome.Assignments = assignments
		return nil
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.SelectionOutcome{}, model.ErrNotFound
		}
		return model.SelectionOutcome{}, fmt.Errorf("failed to apply reverification selection: %w", err)
	}
	return outcome, nil
}

// missing turns a lost guarded update into ErrNotFound when the row does not exist.
func (r *SessionRepository) missing(ctx context.Context, id uuid.UUID) error {
	ok, err := r.db.exists(ctx, "sessions", id)
	if err != nil {
		return fmt.Errorf("failed to check session: %w", err)
	}
	if !ok {
		return model.ErrNotFound
	}
	return nil
}

func scanSession(row pgx.Row) (model.Session, error) {
	var (
		s               model.Session
		rotation, grace int64
		status, phase   string
	)
	err := row.Scan(
		&s.ID, &s.CourseID, &s.LecturerID, &s.CenterLat, &s.CenterLng, &s.RadiusMeters,
		&rotation, &grace, &status, &phase, &s.StartedAt, &s.InitialEndsAt, &s.ReverifyEndsAt, &s.ClosedAt,
		&s.ReverifySelectionRate, &s.ReverifySelectionDone, &s.ReverifySelectedCount, &s.ReverifySelectionRunAt,
		&s.Secret, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return model.Session{}, err
	}
	s.Rotation = time.Duration(rotation) * time.Millisecond
	s.Grace = time.Duration(grace) * time.Millisecond
	s.Status = model.SessionStatus(status)
	s.Phase = model.Phase(phase)
	return s, nil
}
