// Package reverify selects participants for a second challenge, assigns them
// slots and expires slots that were missed.
package reverify

import (
	"math"
	"time"
)

// Capacity holds the throughput assumptions of the reverification window.
// They are estimates, not measurements, and are overridable per deployment.
type Capacity struct {
	// SafetyBuffer is kept free at the end of the window.
	SafetyBuffer time.Duration `env:"SAFETY_BUFFER" envDefault:"30s"`
	// P95AttemptDuration is the time one attempt occupies the verifier.
	P95AttemptDuration time.Duration `env:"P95_ATTEMPT_DURATION" envDefault:"5s"`
	Utilization        float64       `env:"UTILIZATION" envDefault:"0.85"`
	// RetryRate is the expected share of attempts that need a retry.
	RetryRate float64 `env:"RETRY_RATE" envDefault:"0.25"`
	// MinLead is the minimum notice a participant gets before a slot opens.
	MinLead time.Duration `env:"MIN_LEAD" envDefault:"5s"`
	MinRate float64       `env:"MIN_RATE" envDefault:"0.05"`
	MaxRate float64       `env:"MAX_RATE" envDefault:"1.0"`
}

// DefaultCapacity returns the production defaults.
func DefaultCapacity() Capacity {
	return Capacity{
		SafetyBuffer:       30 * time.Second,
		P95AttemptDuration: 5 * time.Second,
		Utilization:        0.85,
		RetryRate:          0.25,
		MinLead:            5 * time.Second,
		MinRate:            0.05,
		MaxRate:            1.0,
	}
}

// ClampRate bounds a selection rate to [MinRate, MaxRate].
func (c Capacity) ClampRate(rate float64) float64 {
	if math.IsNaN(rate) {
		return c.MinRate
	}
	return math.Max(c.MinRate, math.Min(c.MaxRate, rate))
}

// ExpectedAttempts is the geometric approximation of attempts per selected participant.
func (c Capacity) ExpectedAttempts() float64 {
	r := c.RetryRate
	return 1 + r + r*r
}

// SizePlan explains how the selection size was obtained.
type SizePlan struct {
	Eligible      int
	Rate          float64
	Target        int
	Capacity      int
	MaxByCapacity int
	Selected      int
}

// SelectionSize computes how many of the eligible participants to challenge
// given the time left in the reverification window.
func SelectionSize(eligible int, rate float64, remaining, rotation, grace time.Duration, c Capacity) SizePlan {
	plan := SizePlan{Eligible: eligible, Rate: c.ClampRate(rate)}
	if eligible <= 0 || remaining < rotation+grace {
		return plan
	}

	// Subtract a tolerance so that 40*0.35 stays 14 under float rounding.
	plan.Target = int(math.Ceil(float64(eligible)*plan.Rate - 1e-9))

	usable := remaining - c.SafetyBuffer
	if usable <= 0 || c.P95AttemptDuration <= 0 {
		return plan
	}
	plan.Capacity = int(math.Floor(usable.Seconds() / c.P95AttemptDuration.Seconds() * c.Utilization))
	plan.MaxByCapacity = int(math.Floor(float64(plan.Capacity) / c.ExpectedAttempts()))

	plan.Selected = max(0, min(eligible, plan.Target, plan.MaxByCapacity))
	return plan
}
