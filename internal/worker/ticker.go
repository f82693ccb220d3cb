// Package worker drives time-based session maintenance in the background.
package worker

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dtroode/rollcall-server/internal/logger"
	"github.com/dtroode/rollcall-server/internal/model"
)

// Config tunes the sync loop.
type Config struct {
	Interval    time.Duration `env:"INTERVAL" envDefault:"2s"`
	Concurrency int           `env:"CONCURRENCY" envDefault:"8"`
}

// Syncer advances one session to its current phase.
type Syncer interface {
	Sync(ctx context.Context, sessionID uuid.UUID) (model.Session, error)
}

// Ticker periodically syncs every open session so phase transitions, selection and
// sweeps happen even when no client touches the session.
type Ticker struct {
	sessions model.SessionStore
	syncer   Syncer
	cache    model.Cache
	owner    string
	cfg      Config
	clock    model.Clock
	logger   *logger.Logger
}

// NewTicker creates new Ticker instance. owner identifies this process when claiming a tick.
func NewTicker(
	sessions model.SessionStore,
	syncer Syncer,
	cache model.Cache,
	owner string,
	cfg Config,
	clock model.Clock,
	logger *logger.Logger,
) *Ticker {
	switch {
	case cfg.Interval <= 0:
		cfg.Interval = 2 * time.Second
	case cfg.Interval < time.Millisecond:
		// Claim slots are counted in whole milliseconds.
		cfg.Interval = time.Millisecond
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &Ticker{
		sessions: sessions,
		syncer:   syncer,
		cache:    cache,
		owner:    owner,
		cfg:      cfg,
		clock:    clock,
		logger:   logger,
	}
}

// Run blocks until ctx is cancelled.
func (t *Ticker) Run(ctx context.Context) {
	t.logger.Info("Worker: sync loop started", "interval", t.cfg.Interval, "concurrency", t.cfg.Concurrency)

	ticker := time.NewTicker(t.cfg.Interval)
	defer ticker.Stop()

	for {
		if _, err := t.Tick(ctx); err != nil && ctx.Err() == nil {
			t.logger.Error("Worker: tick failed", "error", err.Error())
		}
		select {
		case <-ctx.Done():
			t.logger.Info("Worker: sync loop stopped")
			return
		case <-ticker.C:
		}
	}
}

// Tick syncs all open sessions once and returns how many this process handled.
func (t *Ticker) Tick(ctx context.Context) (int, error) {
	open, err := t.sessions.ListOpen(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list open sessions: %w", err)
	}

	slot := t.clock.Now().UnixMilli() / t.cfg.Interval.Milliseconds()

	var (
		g       errgroup.Group
		handled atomic.Int64
	)
	g.SetLimit(t.cfg.Concurrency)

	for _, s := range open {
		if ctx.Err() != nil {
			break
		}
		if !t.claim(ctx, s.ID, slot) {
			continue
		}
		g.Go(func() error {
			if _, err := t.syncer.Sync(ctx, s.ID); err != nil {
				t.logger.Error("Worker: failed to sync session", "session_id", s.ID, "error", err.Error())
				return nil
			}
			handled.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	return int(handled.Load()), ctx.Err()
}

// claim lets one process per interval sync a session. Sync is safe to run concurrently,
// so cache failures fall back to syncing.
func (t *Ticker) claim(ctx context.Context, sessionID uuid.UUID, slot int64) bool {
	if t.cache == nil {
		return true
	}
	key := fmt.Sprintf("worker:sync:%s:%d", sessionID, slot)
	holder, err := t.cache.ClaimOnce(ctx, key, t.owner, t.cfg.Interval)
	if err != nil {
		t.logger.Warn("Worker: claim failed, syncing anyway", "session_id", sessionID, "error", err.Error())
		return true
	}
	return holder == t.owner
}
