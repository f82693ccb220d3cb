// Package phase derives session phases from wall-clock time and persists observed changes.
package phase

import (
	"time"

	"github.com/dtroode/rollcall-server/internal/model"
)

// Durations default the phase bounds of sessions created without explicit ones.
type Durations struct {
	Initial  time.Duration
	Reverify time.Duration
}

// Bounds are the instants at which the time-driven transitions happen.
type Bounds struct {
	InitialEndsAt  time.Time
	ReverifyEndsAt time.Time
}

// Derive returns the phase of a session with the given status at now.
func Derive(status model.SessionStatus, now time.Time, b Bounds) model.Phase {
	switch {
	case status == model.SessionStatusClosed:
		return model.PhaseClosed
	case !now.Before(b.ReverifyEndsAt):
		return model.PhaseClosed
	case !now.Before(b.InitialEndsAt):
		return model.PhaseReverify
	default:
		return model.PhaseInitial
	}
}

// EffectiveBounds returns the session bounds, defaulting missing ones from StartedAt.
func EffectiveBounds(s model.Session, d Durations) Bounds {
	b := Bounds{InitialEndsAt: s.InitialEndsAt, ReverifyEndsAt: s.ReverifyEndsAt}
	if b.InitialEndsAt.IsZero() {
		b.InitialEndsAt = s.StartedAt.Add(d.Initial)
	}
	if b.ReverifyEndsAt.IsZero() {
		b.ReverifyEndsAt = b.InitialEndsAt.Add(d.Reverify)
	}
	if b.ReverifyEndsAt.Before(b.InitialEndsAt) {
		b.ReverifyEndsAt = b.InitialEndsAt
	}
	return b
}
