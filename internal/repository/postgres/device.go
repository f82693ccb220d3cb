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

var _ model.DeviceStore = (*DeviceRepository)(nil)

type DeviceRepository struct {
	db *Connection
}

func NewDeviceRepository(db *Connection) *DeviceRepository {
	return &DeviceRepository{
		db: db,
	}
}

func (r *DeviceRepository) Touch(ctx context.Context, participantID uuid.UUID, deviceToken string, at time.Time) (model.DeviceLink, error) {
	var prior model.DeviceLink

	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		var bound bool
		if err := tx.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM device_links
				WHERE device_token = $1 AND participant_id <> $2
				  AND trusted_at IS NOT NULL AND revoked_at IS NULL
			)`, deviceToken, participantID).Scan(&bound); err != nil {
			return err
		}
		if bound {
			return model.ErrDeviceConflict
		}

		link, err := scanDeviceLink(tx.QueryRow(ctx, `
			SELECT participant_id, device_token, trusted_at, revoked_at, last_used_at, created_at
			FROM device_links
			WHERE participant_id = $1 AND device_token = $2
			FOR UPDATE`, participantID, deviceToken))
		switch {
		case err == nil:
			prior = link
		case !errors.Is(err, pgx.ErrNoRows):
			return err
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO device_links (participant_id, device_token, last_used_at, created_at)
			VALUES ($1, $2, $3, $3)
			ON CONFLICT (participant_id, device_token) DO UPDATE SET last_used_at = EXCLUDED.last_used_at`,
			participantID, deviceToken, at)
		return err
	})
	if err != nil {
		if errors.Is(err, model.ErrDeviceConflict) {
			return model.DeviceLink{}, err
		}
		return model.DeviceLink{}, fmt.Errorf("failed to touch device link: %w", err)
	}
	return prior, nil
}

func (r *DeviceRepository) ListByParticipant(ctx context.Context, participantID uuid.UUID) ([]model.DeviceLink, error) {
	query := `
		SELECT participant_id, device_token, trusted_at, revoked_at, last_used_at, created_at
		FROM device_links
		WHERE participant_id = $1
		ORDER BY last_used_at DESC`

	rows, err := r.db.Query(ctx, query, participantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list device links: %w", err)
	}
	defer rows.Close()

	var links []model.DeviceLink
	for rows.Next() {
		l, err := scanDeviceLink(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan device link: %w", err)
		}
		links = append(links, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate device links: %w", err)
	}
	return links, nil
}

func scanDeviceLink(row pgx.Row) (model.DeviceLink, error) {
	var l model.DeviceLink
	err := row.Scan(&l.ParticipantID, &l.DeviceToken, &l.TrustedAt, &l.RevokedAt, &l.LastUsedAt, &l.CreatedAt)
	return l, err
}
