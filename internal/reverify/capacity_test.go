package reverify

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

const (
	rotation = 5 * time.Second
	grace    = time.Second
)

func TestSelectionSize_AmpleCapacity(t *testing.T) {
	plan := SelectionSize(40, 0.35, 10*time.Minute, rotation, grace, DefaultCapacity())

	assert.Equal(t, 14, plan.Target)
	assert.Equal(t, 96, plan.Capacity)
	assert.Equal(t, 73, plan.MaxByCapacity)
	assert.Equal(t, 14, plan.Selected)
}

func TestSelectionSize_Cases(t *testing.T) {
	tests := []struct {
		name      string
		eligible  int
		rate      float64
		remaining time.Duration
		want      int
	}{
		{"empty pool", 0, 0.5, 10 * time.Minute, 0},
		{"window shorter than one slot", 40, 0.35, 5999 * time.Millisecond, 0},
		{"window inside safety buffer", 40, 0.35, 20 * time.Second, 0},
		{"capacity bound", 200, 1.0, 2 * time.Minute, 11},
		{"rate clamped up", 100, 0.0, 10 * time.Minute, 5},
		{"rate clamped down", 10, 3.0, 10 * time.Minute, 10},
		{"small pool rounds up", 3, 0.35, 10 * time.Minute, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := SelectionSize(tt.eligible, tt.rate, tt.remaining, rotation, grace, DefaultCapacity())
			assert.Equal(t, tt.want, plan.Selected)
		})
	}
}

func TestSelectionSize_NeverExceedsCapacity(t *testing.T) {
	c := DefaultCapacity()
	pools := []int{0, 1, 2, 7, 40, 200, 1000}
	rates := []float64{0, 0.05, 0.2, 0.35, 0.5, 1, 2}
	windows := []time.Duration{0, time.Second, 5 * time.Second, 6 * time.Second, 31 * time.Second, time.Minute, 3 * time.Minute, 15 * time.Minute}

	for _, e := range pools {
		for _, r := range rates {
			for _, w := range windows {
				plan := SelectionSize(e, r, w, rotation, grace, c)

				usable := (w - c.SafetyBuffer).Seconds()
				capacity := 0.0
				if usable > 0 {
					capacity = math.Floor(usable / c.P95AttemptDuration.Seconds() * c.Utilization)
				}
				bound := int(math.Floor(capacity / c.ExpectedAttempts()))

				assert.LessOrEqual(t, plan.Selected, bound, "E=%d r=%v w=%v", e, r, w)
				assert.LessOrEqual(t, plan.Selected, e)
				assert.GreaterOrEqual(t, plan.Selected, 0)
				if w < rotation+grace {
					assert.Zero(t, plan.Selected, "E=%d r=%v w=%v", e, r, w)
				}
			}
		}
	}
}

func TestCapacity_ExpectedAttempts(t *testing.T) {
	assert.InDelta(t, 1.3125, DefaultCapacity().ExpectedAttempts(), 1e-9)
}
