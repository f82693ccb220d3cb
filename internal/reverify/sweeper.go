package reverify

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/dtroode/rollcall-server/internal/logger"
	"github.com/dtroode/rollcall-server/internal/model"
)

// SweepStats counts what a sweep did.
type SweepStats struct {
	Scanned int
	Retried int
	Missed  int
	Failed  int
	// Lost counts records another writer transitioned first.
	Lost int
}

// Sweeper moves overdue reverification slots to a retry slot or a terminal state.
// Every write is a compare-and-swap on (status, deadline), so redundant sweeps are no-ops.
type Sweeper struct {
	records  model.RecordStore
	notifier model.Notifier
	capacity Capacity
	clock    model.Clock
	logger   *logger.Logger
}

// NewSweeper creates new Sweeper instance.
func NewSweeper(
	records model.RecordStore,
	notifier model.Notifier,
	capacity Capacity,
	clock model.Clock,
	logger *logger.Logger,
) *Sweeper {
	return &Sweeper{
		records:  records,
		notifier: notifier,
		capacity: capacity,
		clock:    clock,
		logger:   logger,
	}
}

// Sweep handles every pending record of the session whose deadline has passed.
func (s *Sweeper) Sweep(ctx context.Context, session model.Session) (SweepStats, error) {
	var stats SweepStats
	now := s.clock.Now()

	due, err := s.records.ListPending(ctx, session.ID, &now)
	if err != nil {
		return stats, fmt.Errorf("failed to list overdue records: %w", err)
	}
	if len(due) == 0 {
		return stats, nil
	}
	sortByDeadline(due)

	latest, err := s.records.LatestReservedAt(ctx, session.ID)
	if err != nil {
		return stats, fmt.Errorf("failed to get latest reserved slot: %w", err)
	}

	for _, rec := range due {
		stats.Scanned++

		if hasBudget(rec.Reverify) {
			slots, ok := PlanSlots(now, session.ReverifyEndsAt, session.Rotation, session.Grace, s.capacity, latest)
			if ok {
				slot := slots.Slot(slots.First)
				won, err := s.retry(ctx, session, rec, slot)
				if err != nil {
					return stats, err
				}
				if !won {
					stats.Lost++
					// The winner may have reserved a later slot for this record.
					if latest, err = s.records.LatestReservedAt(ctx, session.ID); err != nil {
						return stats, fmt.Errorf("failed to get latest reserved slot: %w", err)
					}
					continue
				}
				latest = &slot.RequestedAt
				stats.Retried++
				continue
			}
		}

		status, won, err := s.terminate(ctx, session, rec, now)
		if err != nil {
			return stats, err
		}
		countTerminal(&stats, status, won)
	}

	if stats.Retried+stats.Missed+stats.Failed > 0 || stats.Lost > 0 {
		s.logger.Info("Sweeper: sweep done", "session_id", session.ID,
			"scanned", stats.Scanned, "retried", stats.Retried,
			"missed", stats.Missed, "failed", stats.Failed, "lost", stats.Lost)
	}
	return stats, nil
}

// Finalize moves every still pending record of a closed session to a terminal state.
func (s *Sweeper) Finalize(ctx context.Context, session model.Session) (SweepStats, error) {
	var stats SweepStats
	now := s.clock.Now()

	pending, err := s.records.ListPending(ctx, session.ID, nil)
	if err != nil {
		return stats, fmt.Errorf("failed to list pending records: %w", err)
	}
	for _, rec := range pending {
		stats.Scanned++
		status, won, err := s.terminate(ctx, session, rec, now)
		if err != nil {
			return stats, err
		}
		countTerminal(&stats, status, won)
	}
	return stats, nil
}

func (s *Sweeper) retry(ctx context.Context, session model.Session, rec model.Record, slot Slot) (bool, error) {
	r := rec.Reverify
	won, err := s.records.CompareAndSwapReverify(ctx, rec.ID,
		model.ReverifyGuard{Status: r.Status, DeadlineAt: r.DeadlineAt},
		model.ReverifyUpdate{
			Status:       model.ReverifyRetryPending,
			AttemptCount: r.AttemptCount + 1,
			RetryCount:   r.RetryCount + 1,
			RequestedAt:  &slot.RequestedAt,
			DeadlineAt:   &slot.DeadlineAt,
			Confidence:   r.Confidence,
			// A missed slot stays suspicious until the retry passes.
			Flagged: true,
		})
	if err != nil {
		return false, fmt.Errorf("failed to schedule retry: %w", err)
	}
	if !won {
		return false, nil
	}

	s.send(ctx, model.Notification{
		ParticipantID: rec.ParticipantID,
		Kind:          model.NotificationReverifyRetry,
		Message:       "You missed your reverification slot. A new slot has been assigned.",
		Metadata: map[string]any{
			"session_id":  session.ID.String(),
			"sequence":    slot.Sequence,
			"slot_start":  slot.RequestedAt,
			"slot_end":    slot.DeadlineAt,
			"attempt":     r.AttemptCount + 1,
			"retry_count": r.RetryCount + 1,
		},
	})
	return true, nil
}

func (s *Sweeper) terminate(ctx context.Context, session model.Session, rec model.Record, now time.Time) (model.ReverifyStatus, bool, error) {
	r := rec.Reverify
	status := model.ReverifyMissed
	if !hasBudget(r) {
		status = model.ReverifyFailed
	}

	won, err := s.records.CompareAndSwapReverify(ctx, rec.ID,
		model.ReverifyGuard{Status: r.Status, DeadlineAt: r.DeadlineAt},
		model.ReverifyUpdate{
			Status:       status,
			AttemptCount: r.AttemptCount,
			RetryCount:   r.RetryCount,
			RequestedAt:  r.RequestedAt,
			DeadlineAt:   nil,
			CompletedAt:  &now,
			Confidence:   r.Confidence,
			Flagged:      true,
		})
	if err != nil {
		return status, false, fmt.Errorf("failed to finish reverification: %w", err)
	}
	if won {
		s.send(ctx, model.Notification{
			ParticipantID: rec.ParticipantID,
			Kind:          model.NotificationReverifyOutcome,
			Message:       "Your reverification was not completed in time.",
			Metadata: map[string]any{
				"session_id": session.ID.String(),
				"status":     string(status),
			},
		})
	}
	return status, won, nil
}

func (s *Sweeper) send(ctx context.Context, n model.Notification) {
	if err := s.notifier.Notify(ctx, n); err != nil {
		s.logger.Warn("Sweeper: notification failed", "participant_id", n.ParticipantID, "error", err)
	}
}

func hasBudget(r model.ReverifyState) bool {
	return r.AttemptCount < model.MaxAttempts && r.RetryCount < model.MaxRetries
}

func countTerminal(stats *SweepStats, status model.ReverifyStatus, won bool) {
	switch {
	case !won:
		stats.Lost++
	case status == model.ReverifyFailed:
		stats.Failed++
	default:
		stats.Missed++
	}
}

func sortByDeadline(records []model.Record) {
	slices.SortFunc(records, func(a, b model.Record) int {
		if c := compareTime(a.Reverify.DeadlineAt, b.Reverify.DeadlineAt); c != 0 {
			return c
		}
		return slices.Compare(a.ID[:], b.ID[:])
	})
}

func compareTime(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	default:
		return a.Compare(*b)
	}
}
