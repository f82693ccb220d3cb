package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/dtroode/rollcall-server/internal/apierrors"
	"github.com/dtroode/rollcall-server/internal/geo"
	"github.com/dtroode/rollcall-server/internal/logger"
	"github.com/dtroode/rollcall-server/internal/model"
	"github.com/dtroode/rollcall-server/internal/proof"
	"github.com/dtroode/rollcall-server/internal/scoring"
)

// AdmissionConfig tunes submission admission control and signal gathering.
type AdmissionConfig struct {
	// Limit is the number of attempts per participant and session allowed in Window.
	Limit     int64         `env:"LIMIT" envDefault:"30"`
	Window    time.Duration `env:"WINDOW" envDefault:"1m"`
	ClockSkew time.Duration `env:"CLOCK_SKEW" envDefault:"2s"`
	// HistoryLimit is the number of past positions fed to the velocity and jump detectors.
	HistoryLimit int `env:"HISTORY_LIMIT" envDefault:"10"`
}

// DefaultAdmissionConfig returns the production defaults.
func DefaultAdmissionConfig() AdmissionConfig {
	return AdmissionConfig{Limit: 30, Window: time.Minute, ClockSkew: 2 * time.Second, HistoryLimit: 10}
}

// PhaseSyncer keeps a session's phase current.
type PhaseSyncer interface {
	Sync(ctx context.Context, sessionID uuid.UUID) (model.Session, error)
	Close(ctx context.Context, sessionID uuid.UUID) (model.Session, error)
}

// ConsistencyScorer rates a device against the participant's usage.
type ConsistencyScorer interface {
	Score(ctx context.Context, participantID uuid.UUID, deviceToken string, prior model.DeviceLink, now time.Time) (int, error)
}

// Evidence is what a participant's device captured for one verification.
type Evidence struct {
	Token             string
	CapturedAt        time.Time
	Latitude          float64
	Longitude         float64
	DeviceToken       string
	BiometricVerified bool
	ProximityRSSI     []float64
	ProximityScans    int
}

// SubmitParams identifies a submission and carries its evidence.
type SubmitParams struct {
	SessionID     uuid.UUID
	ParticipantID uuid.UUID
	Evidence
}

// SubmissionResult is returned to the client for display.
type SubmissionResult struct {
	Accepted       bool
	RecordID       uuid.UUID
	Confidence     int
	Flagged        bool
	DistanceMeters float64
	Layers         []scoring.Layer
	Anomalies      []model.AnomalyType
	ReverifyStatus model.ReverifyStatus
}

// SlotInfo is a participant's current reverification slot.
type SlotInfo struct {
	SessionID    uuid.UUID
	Status       model.ReverifyStatus
	Sequence     int64
	StartsAt     time.Time
	EndsAt       time.Time
	AttemptCount int
	RetryCount   int
}

type Attendance struct {
	participants model.ParticipantStore
	records      model.RecordStore
	devices      model.DeviceStore
	phases       PhaseSyncer
	consistency  ConsistencyScorer
	scorer       *scoring.Scorer
	cache        model.Cache
	notifier     model.Notifier
	clock        model.Clock
	cfg          AdmissionConfig
	logger       *logger.Logger
}

func NewAttendance(
	participants model.ParticipantStore,
	records model.RecordStore,
	devices model.DeviceStore,
	phases PhaseSyncer,
	consistency ConsistencyScorer,
	scorer *scoring.Scorer,
	cache model.Cache,
	notifier model.Notifier,
	clock model.Clock,
	cfg AdmissionConfig,
	logger *logger.Logger,
) *Attendance {
	return &Attendance{
		participants: participants,
		records:      records,
		devices:      devices,
		phases:       phases,
		consistency:  consistency,
		scorer:       scorer,
		cache:        cache,
		notifier:     notifier,
		clock:        clock,
		cfg:          cfg,
		logger:       logger,
	}
}

// Submit runs the initial verification pipeline. It stops at the first failing step
// and writes nothing in that case.
func (a *Attendance) Submit(ctx context.Context, params SubmitParams) (SubmissionResult, error) {
	a.logger.Debug("Attendance service: submission received",
		"session_id", params.SessionID,
		"participant_id", params.ParticipantID)

	attempts, err := a.admit(ctx, "submit", params.SessionID, params.ParticipantID)
	if err != nil {
		return SubmissionResult{}, err
	}
	if err := validateEvidence(params.Evidence); err != nil {
		return SubmissionResult{}, err
	}

	if err := a.checkParticipant(ctx, params.ParticipantID); err != nil {
		return SubmissionResult{}, err
	}
	session, err := a.activeSession(ctx, params.SessionID, params.ParticipantID)
	if err != nil {
		return SubmissionResult{}, err
	}
	if session.Phase != model.PhaseInitial {
		return SubmissionResult{}, apierrors.NewErrWrongPhase(string(session.Phase))
	}

	_, err = a.records.GetBySessionAndParticipant(ctx, session.ID, params.ParticipantID)
	switch {
	case err == nil:
		return SubmissionResult{}, apierrors.NewErrDuplicateSubmission()
	case !errors.Is(err, model.ErrNotFound):
		a.logger.Error("Attendance service: failed to check existing record",
			"session_id", session.ID,
			"participant_id", params.ParticipantID,
			"error", err.Error())
		return SubmissionResult{}, fmt.Errorf("failed to check existing record: %w", err)
	}

	now := a.clock.Now()
	ev, err := a.evaluate(ctx, session, model.PhaseInitial, params.ParticipantID, params.Evidence, attempts, now)
	if err != nil {
		return SubmissionResult{}, err
	}

	record := model.Record{
		ID:             uuid.New(),
		SessionID:      session.ID,
		ParticipantID:  params.ParticipantID,
		Latitude:       params.Latitude,
		Longitude:      params.Longitude,
		DistanceMeters: round2(ev.distance),
		WithinRadius:   ev.within,
		DeviceToken:    params.DeviceToken,
		BiometricUsed:  params.BiometricVerified,
		ProximityRSSI:  ev.result.ProximityMean,
		ProximityScans: params.ProximityScans,
		VelocityMps:    ev.result.VelocityMps,
		DeviceScore:    ev.consistency,
		CapturedAt:     params.CapturedAt,
		Confidence:     ev.result.Confidence,
		Flagged:        ev.result.Flagged,
		Reverify:       model.ReverifyState{Status: model.ReverifyNotRequired},
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	var found []model.Anomaly
	if record.Flagged {
		found = a.stamp(ev.result.Anomalies, session.ID, params.ParticipantID, now)
	}

	saved, err := a.records.CreateWithAnomalies(ctx, record, found)
	if err != nil {
		if errors.Is(err, model.ErrConflict) {
			return SubmissionResult{}, apierrors.NewErrDuplicateSubmission()
		}
		a.logger.Error("Attendance service: failed to save record",
			"session_id", session.ID,
			"participant_id", params.ParticipantID,
			"error", err.Error())
		return SubmissionResult{}, fmt.Errorf("failed to save attendance record: %w", err)
	}

	a.logger.Info("Attendance service: submission recorded",
		"session_id", session.ID,
		"participant_id", params.ParticipantID,
		"confidence", saved.Confidence,
		"flagged", saved.Flagged,
		"anomalies", len(found))

	return resultOf(saved.ID, ev, saved.Reverify.Status), nil
}

// SubmitReverification answers a reverification challenge inside the assigned slot.
func (a *Attendance) SubmitReverification(ctx context.Context, params SubmitParams) (SubmissionResult, error) {
	a.logger.Debug("Attendance service: reverification received",
		"session_id", params.SessionID,
		"participant_id", params.ParticipantID)

	attempts, err := a.admit(ctx, "reverify", params.SessionID, params.ParticipantID)
	if err != nil {
		return SubmissionResult{}, err
	}
	if err := validateEvidence(params.Evidence); err != nil {
		return SubmissionResult{}, err
	}

	session, err := a.activeSession(ctx, params.SessionID, params.ParticipantID)
	if err != nil {
		return SubmissionResult{}, err
	}
	if session.Phase != model.PhaseReverify {
		return SubmissionResult{}, apierrors.NewErrWrongPhase(string(session.Phase))
	}

	record, err := a.records.GetBySessionAndParticipant(ctx, session.ID, params.ParticipantID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return SubmissionResult{}, apierrors.NewErrNotSelected()
		}
		return SubmissionResult{}, fmt.Errorf("failed to get attendance record: %w", err)
	}

	now := a.clock.Now()
	r := record.Reverify
	if !r.Status.IsPending() || r.RequestedAt == nil || r.DeadlineAt == nil {
		return SubmissionResult{}, apierrors.NewErrNotSelected()
	}
	if now.Before(*r.RequestedAt) {
		return SubmissionResult{}, apierrors.NewErrSlotNotOpen(*r.RequestedAt)
	}
	if !now.Before(*r.DeadlineAt) {
		return SubmissionResult{}, apierrors.NewErrSlotExpired()
	}

	ev, err := a.evaluate(ctx, session, model.PhaseReverify, params.ParticipantID, params.Evidence, attempts, now)
	if err != nil {
		return SubmissionResult{}, err
	}

	confidence := ev.result.Confidence
	var anomalies []model.Anomaly
	if ev.result.Flagged {
		anomalies = a.stamp(ev.result.Anomalies, session.ID, params.ParticipantID, now)
	}
	won, err := a.records.CompareAndSwapReverify(ctx, record.ID,
		model.ReverifyGuard{Status: r.Status, DeadlineAt: r.DeadlineAt},
		model.ReverifyUpdate{
			Status:       model.ReverifyPassed,
			AttemptCount: r.AttemptCount,
			RetryCount:   r.RetryCount,
			RequestedAt:  r.RequestedAt,
			DeadlineAt:   nil,
			CompletedAt:  &now,
			Confidence:   &confidence,
			Flagged:      ev.result.Flagged,
			Anomalies:    anomalies,
		})
	if err != nil {
		a.logger.Error("Attendance service: failed to complete reverification",
			"record_id", record.ID,
			"error", err.Error())
		return SubmissionResult{}, fmt.Errorf("failed to complete reverification: %w", err)
	}
	if !won {
		// A concurrent sweep expired the slot first.
		return SubmissionResult{}, apierrors.NewErrSlotExpired()
	}

	if err := a.notifier.Notify(ctx, model.Notification{
		ParticipantID: params.ParticipantID,
		Kind:          model.NotificationReverifyOutcome,
		Message:       "Your reverification was received.",
		Metadata: map[string]any{
			"session_id": session.ID.String(),
			"status":     string(model.ReverifyPassed),
			"confidence": confidence,
		},
	}); err != nil {
		a.logger.Warn("Attendance service: notification failed",
			"participant_id", params.ParticipantID,
			"error", err.Error())
	}

	a.logger.Info("Attendance service: reverification passed",
		"session_id", session.ID,
		"participant_id", params.ParticipantID,
		"confidence", confidence,
		"flagged", ev.result.Flagged)

	return resultOf(record.ID, ev, model.ReverifyPassed), nil
}

// GetSlot returns the participant's pending reverification slot.
func (a *Attendance) GetSlot(ctx context.Context, sessionID, participantID uuid.UUID) (SlotInfo, error) {
	session, err := a.phases.Sync(ctx, sessionID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return SlotInfo{}, apierrors.NewErrSessionNotFound(sessionID)
		}
		return SlotInfo{}, fmt.Errorf("failed to sync session: %w", err)
	}

	record, err := a.records.GetBySessionAndParticipant(ctx, session.ID, participantID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return SlotInfo{}, apierrors.NewErrNotSelected()
		}
		return SlotInfo{}, fmt.Errorf("failed to get attendance record: %w", err)
	}

	r := record.Reverify
	if !r.Status.IsPending() || r.RequestedAt == nil || r.DeadlineAt == nil {
		return SlotInfo{}, apierrors.NewErrNotSelected()
	}

	return SlotInfo{
		SessionID:    session.ID,
		Status:       r.Status,
		Sequence:     proof.Sequence(r.RequestedAt.UnixMilli(), session.Rotation.Milliseconds()),
		StartsAt:     *r.RequestedAt,
		EndsAt:       *r.DeadlineAt,
		AttemptCount: r.AttemptCount,
		RetryCount:   r.RetryCount,
	}, nil
}

// admit counts the attempt and rejects it above the configured burst. Cache failures admit.
func (a *Attendance) admit(ctx context.Context, kind string, sessionID, participantID uuid.UUID) (int64, error) {
	key := fmt.Sprintf("ratelimit:%s:%s:%s", kind, sessionID, participantID)
	attempts, err := a.cache.Incr(ctx, key, a.cfg.Window)
	if err != nil {
		a.logger.Warn("Attendance service: admission counter unavailable",
			"session_id", sessionID,
			"error", err.Error())
		return 0, nil
	}
	if a.cfg.Limit > 0 && attempts > a.cfg.Limit {
		a.logger.Info("Attendance service: submission rate limited",
			"session_id", sessionID,
			"participant_id", participantID,
			"attempts", attempts)
		return attempts, apierrors.NewErrRateLimited()
	}
	return attempts, nil
}

func (a *Attendance) checkParticipant(ctx context.Context, participantID uuid.UUID) error {
	participant, err := a.participants.GetByID(ctx, participantID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return apierrors.NewErrParticipantNotFound(participantID)
		}
		return fmt.Errorf("failed to get participant: %w", err)
	}
	if !participant.ContactVerified {
		return apierrors.NewErrContactUnverified()
	}
	if participant.BiometricDevices < 1 {
		return apierrors.NewErrNoBiometricDevice()
	}
	return nil
}

// activeSession syncs the session phase and checks the participant may verify in it.
func (a *Attendance) activeSession(ctx context.Context, sessionID, participantID uuid.UUID) (model.Session, error) {
	session, err := a.phases.Sync(ctx, sessionID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return model.Session{}, apierrors.NewErrSessionNotFound(sessionID)
		}
		a.logger.Error("Attendance service: failed to sync session",
			"session_id", sessionID,
			"error", err.Error())
		return model.Session{}, fmt.Errorf("failed to sync session: %w", err)
	}

	enrolled, err := a.participants.IsEnrolled(ctx, session.CourseID, participantID)
	if err != nil {
		return model.Session{}, fmt.Errorf("failed to check enrollment: %w", err)
	}
	if !enrolled {
		return model.Session{}, apierrors.NewErrNotEnrolled(participantID, session.CourseID)
	}

	if session.Status != model.SessionStatusActive || session.Phase == model.PhaseClosed {
		return model.Session{}, apierrors.NewErrSessionClosed(session.ID)
	}
	return session, nil
}

type evaluation struct {
	distance    float64
	within      bool
	consistency int
	result      scoring.Result
}

// evaluate checks token freshness and validity, then gathers every signal and scores them.
func (a *Attendance) evaluate(
	ctx context.Context,
	session model.Session,
	phase model.Phase,
	participantID uuid.UUID,
	ev Evidence,
	attempts int64,
	now time.Time,
) (evaluation, error) {
	if ev.CapturedAt.Before(now.Add(-session.SlotLifetime())) {
		return evaluation{}, apierrors.NewErrStaleToken()
	}
	if ev.CapturedAt.After(now.Add(a.cfg.ClockSkew)) {
		return evaluation{}, apierrors.NewErrFutureToken()
	}
	if !proof.Verify(session.Secret, ev.Token, phase, now.UnixMilli(), session.Rotation.Milliseconds(), session.Grace.Milliseconds()) {
		return evaluation{}, apierrors.NewErrInvalidToken()
	}

	position := geo.Point{Lat: ev.Latitude, Lng: ev.Longitude}
	within, distance := geo.Within(geo.Point{Lat: session.CenterLat, Lng: session.CenterLng}, session.RadiusMeters, position)

	prior, err := a.devices.Touch(ctx, participantID, ev.DeviceToken, now)
	if err != nil {
		if errors.Is(err, model.ErrDeviceConflict) {
			return evaluation{}, apierrors.NewErrDeviceConflict()
		}
		return evaluation{}, fmt.Errorf("failed to resolve device link: %w", err)
	}
	consistency, err := a.consistency.Score(ctx, participantID, ev.DeviceToken, prior, now)
	if err != nil {
		return evaluation{}, fmt.Errorf("failed to score device consistency: %w", err)
	}

	history, err := a.records.RecentLocations(ctx, participantID, a.cfg.HistoryLimit)
	if err != nil {
		return evaluation{}, fmt.Errorf("failed to load location history: %w", err)
	}

	result := a.scorer.Score(scoring.Signals{
		BiometricVerified:  ev.BiometricVerified,
		WithinRadius:       within,
		TokenValid:         true,
		ProximityRSSI:      ev.ProximityRSSI,
		ProximityScans:     ev.ProximityScans,
		DeviceConsistency:  consistency,
		DeviceTrusted:      prior.Trusted(),
		Position:           position,
		CapturedAt:         ev.CapturedAt,
		History:            history,
		SubmissionAttempts: attempts,
		TokenHolder:        a.claimToken(ctx, session, participantID, ev),
		Participant:        participantID,
	})

	return evaluation{distance: distance, within: within, consistency: consistency, result: result}, nil
}

// claimToken records the first participant presenting a token from a device and returns it.
func (a *Attendance) claimToken(ctx context.Context, session model.Session, participantID uuid.UUID, ev Evidence) *uuid.UUID {
	sum := sha256.Sum256([]byte(ev.Token + "|" + ev.DeviceToken))
	key := "proof:" + session.ID.String() + ":" + hex.EncodeToString(sum[:16])

	holder, err := a.cache.ClaimOnce(ctx, key, participantID.String(), session.SlotLifetime())
	if err != nil {
		a.logger.Warn("Attendance service: token claim unavailable",
			"session_id", session.ID,
			"error", err.Error())
		return nil
	}
	id, err := uuid.Parse(holder)
	if err != nil {
		return nil
	}
	return &id
}

func (a *Attendance) stamp(anomalies []model.Anomaly, sessionID, participantID uuid.UUID, now time.Time) []model.Anomaly {
	out := make([]model.Anomaly, 0, len(anomalies))
	for _, anomaly := range anomalies {
		anomaly.ID = uuid.New()
		anomaly.SessionID = sessionID
		anomaly.ParticipantID = participantID
		anomaly.CreatedAt = now
		out = append(out, anomaly)
	}
	return out
}

func validateEvidence(ev Evidence) error {
	switch {
	case ev.Token == "":
		return apierrors.NewErrInvalidArgument("token is required")
	case ev.DeviceToken == "":
		return apierrors.NewErrInvalidArgument("device token is required")
	case ev.CapturedAt.IsZero():
		return apierrors.NewErrInvalidArgument("capture time is required")
	case !geo.Valid(geo.Point{Lat: ev.Latitude, Lng: ev.Longitude}):
		return apierrors.NewErrInvalidArgument("coordinates are out of range")
	}
	return nil
}

func resultOf(recordID uuid.UUID, ev evaluation, status model.ReverifyStatus) SubmissionResult {
	types := make([]model.AnomalyType, 0, len(ev.result.Anomalies))
	for _, anomaly := range ev.result.Anomalies {
		types = append(types, anomaly.Type)
	}
	return SubmissionResult{
		Accepted:       true,
		RecordID:       recordID,
		Confidence:     ev.result.Confidence,
		Flagged:        ev.result.Flagged,
		DistanceMeters: round2(ev.distance),
		Layers:         ev.result.Layers,
		Anomalies:      types,
		ReverifyStatus: status,
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
