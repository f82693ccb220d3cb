package phase

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dtroode/rollcall-server/internal/model"
)

func TestDerive(t *testing.T) {
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	b := Bounds{InitialEndsAt: start.Add(10 * time.Minute), ReverifyEndsAt: start.Add(20 * time.Minute)}

	tests := []struct {
		name   string
		status model.SessionStatus
		now    time.Time
		want   model.Phase
	}{
		{"at start", model.SessionStatusActive, start, model.PhaseInitial},
		{"just before initial end", model.SessionStatusActive, b.InitialEndsAt.Add(-time.Millisecond), model.PhaseInitial},
		{"at initial end", model.SessionStatusActive, b.InitialEndsAt, model.PhaseReverify},
		{"at reverify end", model.SessionStatusActive, b.ReverifyEndsAt, model.PhaseClosed},
		{"long after", model.SessionStatusActive, b.ReverifyEndsAt.Add(time.Hour), model.PhaseClosed},
		{"explicitly closed", model.SessionStatusClosed, start, model.PhaseClosed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Derive(tt.status, tt.now, b))
		})
	}
}

func TestEffectiveBounds(t *testing.T) {
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	d := Durations{Initial: 15 * time.Minute, Reverify: 10 * time.Minute}

	t.Run("defaults from start", func(t *testing.T) {
		b := EffectiveBounds(model.Session{StartedAt: start}, d)
		assert.Equal(t, start.Add(15*time.Minute), b.InitialEndsAt)
		assert.Equal(t, start.Add(25*time.Minute), b.ReverifyEndsAt)
	})

	t.Run("explicit bounds kept", func(t *testing.T) {
		s := model.Session{StartedAt: start, InitialEndsAt: start.Add(time.Minute), ReverifyEndsAt: start.Add(2 * time.Minute)}
		b := EffectiveBounds(s, d)
		assert.Equal(t, s.InitialEndsAt, b.InitialEndsAt)
		assert.Equal(t, s.ReverifyEndsAt, b.ReverifyEndsAt)
	})

	t.Run("reverify end never before initial end", func(t *testing.T) {
		s := model.Session{StartedAt: start, InitialEndsAt: start.Add(time.Hour), ReverifyEndsAt: start.Add(time.Minute)}
		b := EffectiveBounds(s, d)
		assert.Equal(t, b.InitialEndsAt, b.ReverifyEndsAt)
	})
}
