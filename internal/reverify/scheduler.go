package reverify

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/dtroode/rollcall-server/internal/logger"
	"github.com/dtroode/rollcall-server/internal/model"
)

// ShuffleFunc permutes n elements through swap.
type ShuffleFunc func(n int, swap func(i, j int))

// Scheduler runs the one-time reverification selection of a session.
type Scheduler struct {
	sessions model.SessionStore
	notifier model.Notifier
	capacity Capacity
	clock    model.Clock
	shuffle  ShuffleFunc
	logger   *logger.Logger
}

// NewScheduler creates new Scheduler instance.
func NewScheduler(
	sessions model.SessionStore,
	notifier model.Notifier,
	capacity Capacity,
	clock model.Clock,
	logger *logger.Logger,
) *Scheduler {
	return &Scheduler{
		sessions: sessions,
		notifier: notifier,
		capacity: capacity,
		clock:    clock,
		shuffle:  rand.Shuffle,
		logger:   logger,
	}
}

// WithShuffle replaces the random permutation, for deterministic tests.
func (s *Scheduler) WithShuffle(fn ShuffleFunc) *Scheduler {
	s.shuffle = fn
	return s
}

// EnsureSelection selects and schedules participants unless the session already has a selection.
// Concurrent callers are serialized by the store; only one of them plans.
func (s *Scheduler) EnsureSelection(ctx context.Context, session model.Session) error {
	if session.ReverifySelectionDone {
		return nil
	}

	now := s.clock.Now()
	outcome, err := s.sessions.ApplySelection(ctx, session.ID, now, func(locked model.Session, eligible []model.Record) []model.ReverifyAssignment {
		locked.InitialEndsAt, locked.ReverifyEndsAt = session.InitialEndsAt, session.ReverifyEndsAt
		return s.Plan(locked, eligible, now)
	})
	if err != nil {
		return fmt.Errorf("failed to apply selection: %w", err)
	}
	if outcome.AlreadyDone {
		s.logger.Debug("Scheduler: selection already done", "session_id", session.ID)
		return nil
	}

	s.logger.Info("Scheduler: reverification selection done",
		"session_id", session.ID, "selected", len(outcome.Assignments))

	for _, a := range outcome.Assignments {
		s.notify(ctx, session, a)
	}
	return nil
}

// Plan picks a uniform random subset of eligible and assigns slots. It performs no I/O.
func (s *Scheduler) Plan(session model.Session, eligible []model.Record, now time.Time) []model.ReverifyAssignment {
	remaining := session.ReverifyEndsAt.Sub(now)
	size := SelectionSize(len(eligible), session.ReverifySelectionRate, remaining, session.Rotation, session.Grace, s.capacity)
	if size.Selected == 0 {
		s.logger.Info("Scheduler: nothing to select",
			"session_id", session.ID, "eligible", size.Eligible, "target", size.Target, "max_by_capacity", size.MaxByCapacity)
		return nil
	}

	slots, ok := PlanSlots(now, session.ReverifyEndsAt, session.Rotation, session.Grace, s.capacity, nil)
	if !ok {
		s.logger.Info("Scheduler: no slot left in window", "session_id", session.ID)
		return nil
	}

	pool := make([]model.Record, len(eligible))
	copy(pool, eligible)
	s.shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })

	return Assign(pool[:size.Selected], slots)
}

func (s *Scheduler) notify(ctx context.Context, session model.Session, a model.ReverifyAssignment) {
	err := s.notifier.Notify(ctx, model.Notification{
		ParticipantID: a.ParticipantID,
		Kind:          model.NotificationReverifyScheduled,
		Message:       "You have been selected for reverification.",
		Metadata: map[string]any{
			"session_id":  session.ID.String(),
			"sequence":    a.Sequence,
			"slot_start":  a.RequestedAt,
			"slot_end":    a.DeadlineAt,
			"batch_index": a.BatchIndex,
			"batch_count": a.BatchCount,
		},
	})
	if err != nil {
		s.logger.Warn("Scheduler: notification failed", "participant_id", a.ParticipantID, "error", err)
	}
}
