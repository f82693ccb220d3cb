// Package audit builds and archives the final report of a session.
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dtroode/rollcall-server/internal/logger"
	"github.com/dtroode/rollcall-server/internal/model"
)

// ReportKey returns the object key of a session report.
func ReportKey(sessionID uuid.UUID) string {
	return "sessions/" + sessionID.String() + "/report.json"
}

// Summary counts records by outcome.
type Summary struct {
	Total       int `json:"total"`
	Flagged     int `json:"flagged"`
	NotRequired int `json:"not_required"`
	Passed      int `json:"passed"`
	Missed      int `json:"missed"`
	Failed      int `json:"failed"`
	Pending     int `json:"pending"`
}

// RecordEntry is one participant's line in the report.
type RecordEntry struct {
	ParticipantID  uuid.UUID  `json:"participant_id"`
	Confidence     int        `json:"confidence"`
	Flagged        bool       `json:"flagged"`
	DistanceMeters float64    `json:"distance_meters"`
	WithinRadius   bool       `json:"within_radius"`
	BiometricUsed  bool       `json:"biometric_used"`
	CapturedAt     time.Time  `json:"captured_at"`
	ReverifyStatus string     `json:"reverify_status"`
	AttemptCount   int        `json:"attempt_count"`
	RetryCount     int        `json:"retry_count"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

// AnomalyEntry is one audit row in the report.
type AnomalyEntry struct {
	ParticipantID uuid.UUID      `json:"participant_id"`
	Type          string         `json:"type"`
	Severity      int            `json:"severity"`
	Confidence    float64        `json:"confidence"`
	Details       map[string]any `json:"details,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

// Report is the archived state of a session.
type Report struct {
	SessionID      uuid.UUID      `json:"session_id"`
	CourseID       uuid.UUID      `json:"course_id"`
	LecturerID     uuid.UUID      `json:"lecturer_id"`
	Phase          string         `json:"phase"`
	StartedAt      time.Time      `json:"started_at"`
	InitialEndsAt  time.Time      `json:"initial_ends_at"`
	ReverifyEndsAt time.Time      `json:"reverify_ends_at"`
	ClosedAt       *time.Time     `json:"closed_at,omitempty"`
	SelectedCount  int            `json:"reverify_selected_count"`
	Summary        Summary        `json:"summary"`
	Records        []RecordEntry  `json:"records"`
	Anomalies      []AnomalyEntry `json:"anomalies"`
	GeneratedAt    time.Time      `json:"generated_at"`
}

// Archiver writes session reports to object storage.
type Archiver struct {
	records   model.RecordStore
	anomalies model.AnomalyStore
	storage   model.Storage
	clock     model.Clock
	logger    *logger.Logger
}

// NewArchiver creates new Archiver instance.
func NewArchiver(
	records model.RecordStore,
	anomalies model.AnomalyStore,
	storage model.Storage,
	clock model.Clock,
	logger *logger.Logger,
) *Archiver {
	return &Archiver{
		records:   records,
		anomalies: anomalies,
		storage:   storage,
		clock:     clock,
		logger:    logger,
	}
}

// Build assembles the report from the stores.
func (a *Archiver) Build(ctx context.Context, session model.Session) (Report, error) {
	records, err := a.records.ListBySession(ctx, session.ID)
	if err != nil {
		return Report{}, fmt.Errorf("failed to list records: %w", err)
	}
	anomalies, err := a.anomalies.ListBySession(ctx, session.ID)
	if err != nil {
		return Report{}, fmt.Errorf("failed to list anomalies: %w", err)
	}

	report := Report{
		SessionID:      session.ID,
		CourseID:       session.CourseID,
		LecturerID:     session.LecturerID,
		Phase:          string(session.Phase),
		StartedAt:      session.StartedAt,
		InitialEndsAt:  session.InitialEndsAt,
		ReverifyEndsAt: session.ReverifyEndsAt,
		ClosedAt:       session.ClosedAt,
		SelectedCount:  session.ReverifySelectedCount,
		Records:        make([]RecordEntry, 0, len(records)),
		Anomalies:      make([]AnomalyEntry, 0, len(anomalies)),
		GeneratedAt:    a.clock.Now(),
	}

	for _, r := range records {
		report.Records = append(report.Records, RecordEntry{
			ParticipantID:  r.ParticipantID,
			Confidence:     r.Confidence,
			Flagged:        r.Flagged,
			DistanceMeters: r.DistanceMeters,
			WithinRadius:   r.WithinRadius,
			BiometricUsed:  r.BiometricUsed,
			CapturedAt:     r.CapturedAt,
			ReverifyStatus: string(r.Reverify.Status),
			AttemptCount:   r.Reverify.AttemptCount,
			RetryCount:     r.Reverify.RetryCount,
			CompletedAt:    r.Reverify.CompletedAt,
		})
		report.Summary.add(r)
	}
	for _, an := range anomalies {
		report.Anomalies = append(report.Anomalies, AnomalyEntry{
			ParticipantID: an.ParticipantID,
			Type:          string(an.Type),
			Severity:      an.Severity,
			Confidence:    an.Confidence,
			Details:       an.Details,
			CreatedAt:     an.CreatedAt,
		})
	}

	return report, nil
}

func (s *Summary) add(r model.Record) {
	s.Total++
	if r.Flagged {
		s.Flagged++
	}
	switch r.Reverify.Status {
	case model.ReverifyPassed:
		s.Passed++
	case model.ReverifyMissed:
		s.Missed++
	case model.ReverifyFailed:
		s.Failed++
	case model.ReverifyPending, model.ReverifyRetryPending:
		s.Pending++
	default:
		s.NotRequired++
	}
}

// Archive uploads the report of a closed session once.
func (a *Archiver) Archive(ctx context.Context, session model.Session) error {
	key := ReportKey(session.ID)

	exists, err := a.storage.Exists(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to check report: %w", err)
	}
	if exists {
		a.logger.Debug("Archiver: report already archived", "session_id", session.ID)
		return nil
	}

	report, err := a.Build(ctx, session)
	if err != nil {
		return fmt.Errorf("failed to build report: %w", err)
	}
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := a.storage.Upload(ctx, key, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to upload report: %w", err)
	}

	a.logger.Info("Archiver: report archived", "session_id", session.ID, "records", report.Summary.Total)
	return nil
}

// Archived reports whether the session report is already in storage.
func (a *Archiver) Archived(ctx context.Context, session model.Session) (bool, error) {
	exists, err := a.storage.Exists(ctx, ReportKey(session.ID))
	if err != nil {
		return false, fmt.Errorf("failed to check report: %w", err)
	}
	return exists, nil
}

// Load returns the archived report, building a fresh one when none is archived yet.
func (a *Archiver) Load(ctx context.Context, session model.Session) (Report, error) {
	key := ReportKey(session.ID)

	exists, err := a.storage.Exists(ctx, key)
	if err != nil {
		return Report{}, fmt.Errorf("failed to check report: %w", err)
	}
	if !exists {
		return a.Build(ctx, session)
	}

	rc, err := a.storage.Download(ctx, key)
	if err != nil {
		return Report{}, fmt.Errorf("failed to download report: %w", err)
	}
	defer rc.Close()

	var report Report
	if err := json.NewDecoder(rc).Decode(&report); err != nil {
		return Report{}, fmt.Errorf("failed to decode report: %w", err)
	}
	return report, nil
}
