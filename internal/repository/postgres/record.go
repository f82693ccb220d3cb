package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dtroode/rollcall-server/internal/model"
)

var _ model.RecordStore = (*RecordRepository)(nil)

const recordColumns = `id, session_id, participant_id, latitude, longitude, distance_meters, within_radius,
	device_token, biometric_used, proximity_rssi, proximity_scans, velocity_mps, device_score, captured_at,
	confidence, flagged, reverify_required, reverify_status, reverify_attempts, reverify_retries,
	reverify_requested_at, reverify_deadline_at, reverify_completed_at, reverify_confidence,
	created_at, updated_at`

type RecordRepository struct {
	db *Connection
}

func NewRecordRepository(db *Connection) *RecordRepository {
	return &RecordRepository{
		db: db,
	}
}

func (r *RecordRepository) CreateWithAnomalies(ctx context.Context, record model.Record, anomalies []model.Anomaly) (model.Record, error) {
	var saved model.Record

	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		query := `
			INSERT INTO attendance_records (id, session_id, participant_id, latitude, longitude, distance_meters,
				within_radius, device_token, biometric_used, proximity_rssi, proximity_scans, velocity_mps,
				device_score, captured_at, confidence, flagged, reverify_required, reverify_status,
				reverify_attempts, reverify_retries, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $21)
			RETURNING ` + recordColumns

		var err error
		saved, err = scanRecord(tx.QueryRow(ctx, query,
			record.ID, record.SessionID, record.ParticipantID,
			record.Latitude, record.Longitude, record.DistanceMeters, record.WithinRadius,
			record.DeviceToken, record.BiometricUsed, record.ProximityRSSI, record.ProximityScans,
			record.VelocityMps, record.DeviceScore, record.CapturedAt, record.Confidence, record.Flagged,
			record.Reverify.Required, string(record.Reverify.Status),
			record.Reverify.AttemptCount, record.Reverify.RetryCount, record.CreatedAt,
		))
		if err != nil {
			return err
		}

		for _, a := range anomalies {
			if err := insertAnomaly(ctx, tx, a); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if isUniqueViolation(err) {
			return model.Record{}, model.ErrConflict
		}
		return model.Record{}, fmt.Errorf("failed to create attendance record: %w", err)
	}
	return saved, nil
}

func (r *RecordRepository) GetBySessionAndParticipant(ctx context.Context, sessionID, participantID uuid.UUID) (model.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM attendance_records WHERE session_id = $1 AND participant_id = $2`

	record, err := scanRecord(r.db.QueryRow(ctx, query, sessionID, participantID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Record{}, model.ErrNotFound
		}
		return model.Record{}, fmt.Errorf("failed to get attendance record: %w", err)
	}
	return record, nil
}

func (r *RecordRepository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]model.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM attendance_records WHERE session_id = $1 ORDER BY created_at, id`

	rows, err := r.db.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list attendance records: %w", err)
	}
	records, err := collectRecords(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan attendance records: %w", err)
	}
	return records, nil
}

func (r *RecordRepository) ListPending(ctx context.Context, sessionID uuid.UUID, dueBefore *time.Time) ([]model.Record, error) {
	query := `
		SELECT ` + recordColumns + `
		FROM attendance_records
		WHERE session_id = $1
		  AND reverify_status IN ('PENDING', 'RETRY_PENDING')
		  AND ($2::timestamptz IS NULL OR reverify_deadline_at <= $2)
		ORDER BY created_at, id`

	rows, err := r.db.Query(ctx, query, sessionID, dueBefore)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending records: %w", err)
	}
	records, err := collectRecords(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan pending records: %w", err)
	}
	return records, nil
}

func (r *RecordRepository) LatestReservedAt(ctx context.Context, sessionID uuid.UUID) (*time.Time, error) {
	query := `SELECT max(reverify_requested_at) FROM attendance_records WHERE session_id = $1`

	var latest *time.Time
	if err := r.db.QueryRow(ctx, query, sessionID).Scan(&latest); err != nil {
		return nil, fmt.Errorf("failed to get latest reserved slot: %w", err)
	}
	return latest, nil
}

func (r *RecordRepository) CompareAndSwapReverify(ctx context.Context, id uuid.UUID, guard model.ReverifyGuard, update model.ReverifyUpdate) (bool, error) {
	query := `
		UPDATE attendance_records
		SET reverify_status = $4, reverify_attempts = $5, reverify_retries = $6,
			reverify_requested_at = $7, reverify_deadline_at = $8, reverify_completed_at = $9,
			reverify_confidence = $10, flagged = $11, updated_at = now()
		WHERE id = $1 AND reverify_status = $2 AND reverify_deadline_at IS NOT DISTINCT FROM $3`

	won := false
	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, query,
			id, string(guard.Status), guard.DeadlineAt,
			string(update.Status), update.AttemptCount, update.RetryCount,
			update.RequestedAt, update.DeadlineAt, update.CompletedAt,
			update.Confidence, update.Flagged,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() != 1 {
			return nil
		}
		for _, a := range update.Anomalies {
			if err := insertAnomaly(ctx, tx, a); err != nil {
				return err
			}
		}
		won = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to update reverification state: %w", err)
	}
	if won {
		return true, nil
	}

	ok, err := r.db.exists(ctx, "attendance_records", id)
	if err != nil {
		return false, fmt.Errorf("failed to check attendance record: %w", err)
	}
	if !ok {
		return false, model.ErrNotFound
	}
	return false, nil
}

func (r *RecordRepository) RecentLocations(ctx context.Context, participantID uuid.UUID, limit int) ([]model.Location, error) {
	query := `
		SELECT latitude, longitude, captured_at
		FROM attendance_records
		WHERE participant_id = $1
		ORDER BY captured_at DESC
		LIMIT $2`

	rows, err := r.db.Query(ctx, query, participantID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent locations: %w", err)
	}
	defer rows.Close()

	var locations []model.Location
	for rows.Next() {
		var l model.Location
		if err := rows.Scan(&l.Latitude, &l.Longitude, &l.CapturedAt); err != nil {
			return nil, fmt.Errorf("failed to scan location: %w", err)
		}
		locations = append(locations, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate locations: %w", err)
	}
	return locations, nil
}

type execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

func insertAnomaly(ctx context.Context, db execer, a model.Anomaly) error {
	details, err := json.Marshal(a.Details)
	if err != nil {
		return fmt.Errorf("failed to encode anomaly details: %w", err)
	}
	_, err = db.Exec(ctx, `
		INSERT INTO anomalies (id, session_id, participant_id, type, severity, confidence, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.ID, a.SessionID, a.ParticipantID, string(a.Type), a.Severity, a.Confidence, details, a.CreatedAt)
	return err
}

func collectRecords(rows pgx.Rows) ([]model.Record, error) {
	defer rows.Close()

	var records []model.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func scanRecord(row pgx.Row) (model.Record, error) {
	var (
		rec    model.Record
		status string
	)
	err := row.Scan(
		&rec.ID, &rec.SessionID, &rec.ParticipantID, &rec.Latitude, &rec.Longitude, &rec.DistanceMeters,
		&rec.WithinRadius, &rec.DeviceToken, &rec.BiometricUsed, &rec.ProximityRSSI, &rec.ProximityScans,
		&rec.VelocityMps, &rec.DeviceScore, &rec.CapturedAt, &rec.Confidence, &rec.Flagged,
		&rec.Reverify.Required, &status, &rec.Reverify.AttemptCount, &rec.Reverify.RetryCount,
		&rec.Reverify.RequestedAt, &rec.Reverify.DeadlineAt, &rec.Reverify.CompletedAt, &rec.Reverify.Confidence,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return model.Record{}, err
	}
	rec.Reverify.Status = model.ReverifyStatus(status)
	return rec, nil
}
