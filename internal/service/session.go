package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dtroode/rollcall-server/internal/apierrors"
	"github.com/dtroode/rollcall-server/internal/audit"
	"github.com/dtroode/rollcall-server/internal/geo"
	"github.com/dtroode/rollcall-server/internal/logger"
	"github.com/dtroode/rollcall-server/internal/model"
	"github.com/dtroode/rollcall-server/internal/phase"
	"github.com/dtroode/rollcall-server/internal/proof"
	"github.com/dtroode/rollcall-server/internal/reverify"
)

const secretSize = 32

// SessionConfig holds defaults applied to new sessions.
type SessionConfig struct {
	Rotation         time.Duration `env:"ROTATION" envDefault:"5s"`
	Grace            time.Duration `env:"GRACE" envDefault:"1s"`
	InitialDuration  time.Duration `env:"INITIAL_DURATION" envDefault:"10m"`
	ReverifyDuration time.Duration `env:"REVERIFY_DURATION" envDefault:"10m"`
	SelectionRate    float64       `env:"SELECTION_RATE" envDefault:"0.2"`
}

// DefaultSessionConfig returns the production defaults.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		Rotation:         5 * time.Second,
		Grace:            time.Second,
		InitialDuration:  10 * time.Minute,
		ReverifyDuration: 10 * time.Minute,
		SelectionRate:    0.2,
	}
}

// Durations returns the phase durations used when a session does not fix its own bounds.
func (c SessionConfig) Durations() phase.Durations {
	return phase.Durations{Initial: c.InitialDuration, Reverify: c.ReverifyDuration}
}

// StartParams describe a new session. Zero values fall back to SessionConfig.
type StartParams struct {
	CourseID         uuid.UUID
	LecturerID       uuid.UUID
	CenterLat        float64
	CenterLng        float64
	RadiusMeters     float64
	Rotation         time.Duration
	Grace            time.Duration
	InitialDuration  time.Duration
	ReverifyDuration time.Duration
	SelectionRate    float64
}

// DisplayFrame is what the shared display renders at one instant.
type DisplayFrame struct {
	SessionID   uuid.UUID
	Status      model.SessionStatus
	Phase       model.Phase
	Token       string
	Sequence    int64
	RotatesAt   time.Time
	RotatesIn   time.Duration
	PhaseEndsAt time.Time
}

// ReportLoader returns the audit report of a session.
type ReportLoader interface {
	Load(ctx context.Context, session model.Session) (audit.Report, error)
}

type Session struct {
	sessions model.SessionStore
	phases   PhaseSyncer
	reports  ReportLoader
	capacity reverify.Capacity
	cfg      SessionConfig
	clock    model.Clock
	logger   *logger.Logger
}

func NewSession(
	sessions model.SessionStore,
	phases PhaseSyncer,
	reports ReportLoader,
	capacity reverify.Capacity,
	cfg SessionConfig,
	clock model.Clock,
	logger *logger.Logger,
) *Session {
	return &Session{
		sessions: sessions,
		phases:   phases,
		reports:  reports,
		capacity: capacity,
		cfg:      cfg,
		clock:    clock,
		logger:   logger,
	}
}

// Start opens a new verification session with a fresh secret.
func (s *Session) Start(ctx context.Context, params StartParams) (model.Session, error) {
	s.logger.Debug("Session service: starting session",
		"course_id", params.CourseID,
		"lecturer_id", params.LecturerID)

	params = s.withDefaults(params)
	if err := validateStart(params); err != nil {
		return model.Session{}, err
	}

	secret := make([]byte, secretSize)
	if _, err := rand.Read(secret); err != nil {
		return model.Session{}, fmt.Errorf("failed to generate session secret: %w", err)
	}

	now := s.clock.Now()
	initialEndsAt := now.Add(params.InitialDuration)
	session := model.Session{
		ID:                    uuid.New(),
		CourseID:              params.CourseID,
		LecturerID:            params.LecturerID,
		CenterLat:             params.CenterLat,
		CenterLng:             params.CenterLng,
		RadiusMeters:          params.RadiusMeters,
		Rotation:              params.Rotation,
		Grace:                 params.Grace,
		Status:                model.SessionStatusActive,
		Phase:                 model.PhaseInitial,
		StartedAt:             now,
		InitialEndsAt:         initialEndsAt,
		ReverifyEndsAt:        initialEndsAt.Add(params.ReverifyDuration),
		ReverifySelectionRate: s.capacity.ClampRate(params.SelectionRate),
		Secret:                secret,
		CreatedAt:             now,
		UpdatedAt:             now,
	}

	saved, err := s.sessions.Create(ctx, session)
	if err != nil {
		s.logger.Error("Session service: failed to create session",
			"course_id", params.CourseID,
			"error", err.Error())
		return model.Session{}, fmt.Errorf("failed to create session: %w", err)
	}

	s.logger.Info("Session service: session started",
		"session_id", saved.ID,
		"initial_ends_at", saved.InitialEndsAt,
		"reverify_ends_at", saved.ReverifyEndsAt)

	return saved, nil
}

// Close closes the lecturer's session before its scheduled end.
func (s *Session) Close(ctx context.Context, lecturerID, sessionID uuid.UUID) (model.Session, error) {
	if _, err := s.owned(ctx, lecturerID, sessionID); err != nil {
		return model.Session{}, err
	}

	session, err := s.phases.Close(ctx, sessionID)
	if err != nil {
		s.logger.Error("Session service: failed to close session",
			"session_id", sessionID,
			"error", err.Error())
		return model.Session{}, fmt.Errorf("failed to close session: %w", err)
	}

	s.logger.Info("Session service: session closed", "session_id", sessionID)
	return session, nil
}

// DisplayFrame returns the current token and countdowns for the shared display.
func (s *Session) DisplayFrame(ctx context.Context, lecturerID, sessionID uuid.UUID) (DisplayFrame, error) {
	if _, err := s.owned(ctx, lecturerID, sessionID); err != nil {
		return DisplayFrame{}, err
	}

	session, err := s.phases.Sync(ctx, sessionID)
	if err != nil {
		return DisplayFrame{}, fmt.Errorf("failed to sync session: %w", err)
	}
	return Frame(session, s.clock.Now()), nil
}

// Frame renders the display state of session at now. Closed sessions have no token.
func Frame(session model.Session, now time.Time) DisplayFrame {
	frame := DisplayFrame{
		SessionID:   session.ID,
		Status:      session.Status,
		Phase:       session.Phase,
		PhaseEndsAt: session.PhaseEndsAt(session.Phase),
	}
	if session.Phase == model.PhaseClosed || session.Status != model.SessionStatusActive {
		return frame
	}

	frame.Sequence = proof.Sequence(now.UnixMilli(), session.Rotation.Milliseconds())
	frame.Token = proof.Issue(session.Secret, session.Phase, frame.Sequence)
	_, frame.RotatesAt = proof.Window(frame.Sequence, session.Rotation)
	frame.RotatesIn = frame.RotatesAt.Sub(now)
	return frame
}

// Report returns the audit report of the lecturer's session.
func (s *Session) Report(ctx context.Context, lecturerID, sessionID uuid.UUID) (audit.Report, error) {
	if _, err := s.owned(ctx, lecturerID, sessionID); err != nil {
		return audit.Report{}, err
	}

	session, err := s.phases.Sync(ctx, sessionID)
	if err != nil {
		return audit.Report{}, fmt.Errorf("failed to sync session: %w", err)
	}

	report, err := s.reports.Load(ctx, session)
	if err != nil {
		s.logger.Error("Session service: failed to load report",
			"session_id", sessionID,
			"error", err.Error())
		return audit.Report{}, fmt.Errorf("failed to load report: %w", err)
	}
	return report, nil
}

func (s *Session) owned(ctx context.Context, lecturerID, sessionID uuid.UUID) (model.Session, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return model.Session{}, apierrors.NewErrSessionNotFound(sessionID)
		}
		return model.Session{}, fmt.Errorf("failed to get session: %w", err)
	}
	if session.LecturerID != lecturerID {
		return model.Session{}, apierrors.NewErrNotSessionOwner(sessionID)
	}
	return session, nil
}

func (s *Session) withDefaults(p StartParams) StartParams {
	if p.Rotation == 0 {
		p.Rotation = s.cfg.Rotation
	}
	if p.Grace == 0 {
		p.Grace = s.cfg.Grace
	}
	if p.InitialDuration == 0 {
		p.InitialDuration = s.cfg.InitialDuration
	}
	if p.ReverifyDuration == 0 {
		p.ReverifyDuration = s.cfg.ReverifyDuration
	}
	if p.SelectionRate == 0 {
		p.SelectionRate = s.cfg.SelectionRate
	}
	return p
}

func validateStart(p StartParams) error {
	switch {
	case p.CourseID == uuid.Nil:
		return apierrors.NewErrInvalidArgument("course id is required")
	case !geo.Valid(geo.Point{Lat: p.CenterLat, Lng: p.CenterLng}):
		return apierrors.NewErrInvalidArgument("session center is out of range")
	case p.RadiusMeters <= 0:
		return apierrors.NewErrInvalidArgument("radius must be positive")
	case p.Rotation < time.Second:
		return apierrors.NewErrInvalidArgument("rotation must be at least one second")
	case p.Grace < 0 || p.Grace >= p.Rotation:
		return apierrors.NewErrInvalidArgument("grace must be shorter than rotation")
	case p.InitialDuration <= 0 || p.ReverifyDuration <= 0:
		return apierrors.NewErrInvalidArgument("phase durations must be positive")
	}
	return nil
}
