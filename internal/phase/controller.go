package phase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dtroode/rollcall-server/internal/logger"
	"github.com/dtroode/rollcall-server/internal/model"
	"github.com/dtroode/rollcall-server/internal/reverify"
)

// maxSyncAttempts bounds reloads after lost compare-and-set races.
const maxSyncAttempts = 3

// Selector runs the one-time reverification selection.
type Selector interface {
	EnsureSelection(ctx context.Context, session model.Session) error
}

// Sweeper expires overdue reverification slots.
type Sweeper interface {
	Sweep(ctx context.Context, session model.Session) (reverify.SweepStats, error)
	Finalize(ctx context.Context, session model.Session) (reverify.SweepStats, error)
}

// Archiver stores the final report of a closed session.
type Archiver interface {
	Archive(ctx context.Context, session model.Session) error
	Archived(ctx context.Context, session model.Session) (bool, error)
}

// Controller keeps the persisted phase in step with wall-clock time.
type Controller struct {
	sessions  model.SessionStore
	selector  Selector
	sweeper   Sweeper
	archiver  Archiver
	durations Durations
	clock     model.Clock
	logger    *logger.Logger
}

// NewController creates new Controller instance. archiver may be nil.
func NewController(
	sessions model.SessionStore,
	selector Selector,
	sweeper Sweeper,
	archiver Archiver,
	durations Durations,
	clock model.Clock,
	logger *logger.Logger,
) *Controller {
	return &Controller{
		sessions:  sessions,
		selector:  selector,
		sweeper:   sweeper,
		archiver:  archiver,
		durations: durations,
		clock:     clock,
		logger:    logger,
	}
}

// Durations returns the configured default phase durations.
func (c *Controller) Durations() Durations {
	return c.durations
}

// Sync recomputes the session phase, persists a forward change and runs the
// reverification maintenance that the resulting phase requires.
func (c *Controller) Sync(ctx context.Context, sessionID uuid.UUID) (model.Session, error) {
	session, err := c.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return model.Session{}, fmt.Errorf("failed to get session: %w", err)
	}

	now := c.clock.Now()

	for attempt := 0; ; attempt++ {
		bounds := EffectiveBounds(session, c.durations)
		session.InitialEndsAt, session.ReverifyEndsAt = bounds.InitialEndsAt, bounds.ReverifyEndsAt

		derived := Derive(session.Status, now, bounds)
		if derived.Rank() <= session.Phase.Rank() {
			break
		}

		won, err := c.sessions.CompareAndSetPhase(ctx, session.ID, session.Phase, derived, now)
		if err != nil {
			return model.Session{}, fmt.Errorf("failed to set session phase: %w", err)
		}
		if won {
			c.logger.Info("PhaseController: phase advanced",
				"session_id", session.ID, "from", session.Phase, "to", derived)
			session.Phase = derived
			if derived == model.PhaseClosed {
				session.Status = model.SessionStatusClosed
				if session.ClosedAt == nil {
					session.ClosedAt = &now
				}
			}
			break
		}

		if attempt+1 >= maxSyncAttempts {
			c.logger.Warn("PhaseController: giving up after lost races", "session_id", session.ID)
			break
		}
		// Another writer moved the phase first; reload and derive again.
		session, err = c.sessions.GetByID(ctx, sessionID)
		if err != nil {
			return model.Session{}, fmt.Errorf("failed to reload session: %w", err)
		}
	}

	switch {
	case session.Phase == model.PhaseReverify && session.Status == model.SessionStatusActive:
		c.maintainReverification(ctx, session)
	case session.Phase == model.PhaseClosed:
		// Runs on every access until the report exists, so a finalization
		// interrupted after the close is completed by the next caller.
		c.finalize(ctx, session)
	}

	return session, nil
}

// Close closes the session on explicit lecturer action and finalizes it.
func (c *Controller) Close(ctx context.Context, sessionID uuid.UUID) (model.Session, error) {
	now := c.clock.Now()
	if _, err := c.sessions.Close(ctx, sessionID, now); err != nil {
		return model.Session{}, fmt.Errorf("failed to close session: %w", err)
	}
	return c.Sync(ctx, sessionID)
}

func (c *Controller) maintainReverification(ctx context.Context, session model.Session) {
	if err := c.selector.EnsureSelection(ctx, session); err != nil {
		c.logger.Error("PhaseController: reverification selection failed",
			"session_id", session.ID, "error", err)
	}
	if _, err := c.sweeper.Sweep(ctx, session); err != nil {
		c.logger.Error("PhaseController: sweep failed", "session_id", session.ID, "error", err)
	}
}

func (c *Controller) finalize(ctx context.Context, session model.Session) {
	if c.archiver != nil {
		archived, err := c.archiver.Archived(ctx, session)
		if err != nil {
			c.logger.Error("PhaseController: archive lookup failed", "session_id", session.ID, "error", err)
			return
		}
		if archived {
			return
		}
	}

	stats, err := c.sweeper.Finalize(ctx, session)
	if err != nil {
		c.logger.Error("PhaseController: finalize failed", "session_id", session.ID, "error", err)
		return
	}
	if stats.Scanned > 0 {
		c.logger.Info("PhaseController: session finalized", "session_id", session.ID,
			"missed", stats.Missed, "failed", stats.Failed, "lost", stats.Lost)
	}

	if c.archiver == nil {
		return
	}
	// The report is written only after every record is terminal; its presence marks the session finalized.
	if err := c.archiver.Archive(ctx, session); err != nil {
		c.logger.Error("PhaseController: archive failed", "session_id", session.ID, "error", err)
	}
}

// Remaining returns how long the given phase still lasts at now.
func Remaining(session model.Session, now time.Time) time.Duration {
	end := session.PhaseEndsAt(session.Phase)
	if session.Phase == model.PhaseClosed || !end.After(now) {
		return 0
	}
	return end.Sub(now)
}
