package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dtroode/rollcall-server/internal/model"
)

var _ model.ParticipantStore = (*ParticipantRepository)(nil)

type ParticipantRepository struct {
	db *Connection
}

func NewParticipantRepository(db *Connection) *ParticipantRepository {
	return &ParticipantRepository{
		db: db,
	}
}

func (r *ParticipantRepository) Create(ctx context.Context, p model.Participant) (model.Participant, error) {
	query := `
		INSERT INTO participants (id, email, contact_verified, biometric_devices)
		VALUES ($1, $2, $3, $4)
		RETURNING id, email, contact_verified, biometric_devices, created_at`

	var saved model.Participant
	err := r.db.QueryRow(ctx, query, p.ID, p.Email, p.ContactVerified, p.BiometricDevices).Scan(
		&saved.ID, &saved.Email, &saved.ContactVerified, &saved.BiometricDevices, &saved.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return model.Participant{}, model.ErrConflict
		}
		return model.Participant{}, fmt.Errorf("failed to create participant: %w", err)
	}
	return saved, nil
}

func (r *ParticipantRepository) GetByID(ctx context.Context, id uuid.UUID) (model.Participant, error) {
	query := `
		SELECT id, email, contact_verified, biometric_devices, created_at
		FROM participants
		WHERE id = $1`

	var p model.Participant
	err := r.db.QueryRow(ctx, query, id).Scan(&p.ID, &p.Email, &p.ContactVerified, &p.BiometricDevices, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Participant{}, model.ErrNotFound
		}
		return model.Participant{}, fmt.Errorf("failed to get participant: %w", err)
	}
	return p, nil
}

func (r *ParticipantRepository) Enroll(ctx context.Context, courseID, participantID uuid.UUID) error {
	query := `
		INSERT INTO enrollments (course_id, participant_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING`

	if _, err := r.db.Exec(ctx, query, courseID, participantID); err != nil {
		return fmt.Errorf("failed to enroll participant: %w", err)
	}
	return nil
}

func (r *ParticipantRepository) IsEnrolled(ctx context.Context, courseID, participantID uuid.UUID) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM enrollments WHERE course_id = $1 AND participant_id = $2)`

	var ok bool
	if err := r.db.QueryRow(ctx, query, courseID, participantID).Scan(&ok); err != nil {
		return false, fmt.Errorf("failed to check enrollment: %w", err)
	}
	return ok, nil
}
