package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/dtroode/rollcall-server/internal/model"
)

var _ model.AnomalyStore = (*AnomalyRepository)(nil)

type AnomalyRepository struct {
	db *Connection
}

func NewAnomalyRepository(db *Connection) *AnomalyRepository {
	return &AnomalyRepository{
		db: db,
	}
}

func (r *AnomalyRepository) Create(ctx context.Context, anomaly model.Anomaly) error {
	if err := insertAnomaly(ctx, r.db, anomaly); err != nil {
		return fmt.Errorf("failed to create anomaly: %w", err)
	}
	return nil
}

func (r *AnomalyRepository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]model.Anomaly, error) {
	query := `
		SELECT id, session_id, participant_id, type, severity, confidence, details, created_at
		FROM anomalies
		WHERE session_id = $1
		ORDER BY created_at, id`

	rows, err := r.db.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list anomalies: %w", err)
	}
	defer rows.Close()

	var anomalies []model.Anomaly
	for rows.Next() {
		var (
			a       model.Anomaly
			kind    string
			details []byte
		)
		if err := rows.Scan(&a.ID, &a.SessionID, &a.ParticipantID, &kind, &a.Severity, &a.Confidence, &details, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan anomaly: %w", err)
		}
		a.Type = model.AnomalyType(kind)
		if err := decodeDetails(details, &a.Details); err != nil {
			return nil, err
		}
		anomalies = append(anomalies, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate anomalies: %w", err)
	}
	return anomalies, nil
}

func decodeDetails(raw []byte, dst *map[string]any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("failed to decode anomaly details: %w", err)
	}
	return nil
}
