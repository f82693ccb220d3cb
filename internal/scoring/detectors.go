package scoring

import (
	"math"

	"github.com/dtroode/rollcall-server/internal/geo"
	"github.com/dtroode/rollcall-server/internal/model"
)

// Severities of the static anomaly tiers.
const (
	SeverityVelocity        = 60
	SeverityVelocityCeiling = 90
	SeverityLocationJump    = 50
	SeverityDeviceMismatch  = 55
	SeverityTokenReuse      = 70
	SeverityRapidSubmission = 40
)

// detectVelocity compares the current position against the last known one.
// It returns the observed speed even when no anomaly is raised.
func (s *Scorer) detectVelocity(sig Signals) (*model.Anomaly, *float64, float64) {
	if len(sig.History) == 0 || sig.CapturedAt.IsZero() {
		return nil, nil, 0
	}
	last := sig.History[0]
	distance := geo.Distance(geo.Point{Lat: last.Latitude, Lng: last.Longitude}, sig.Position)
	elapsed := math.Max(sig.CapturedAt.Sub(last.CapturedAt).Seconds(), 1)
	speed := round2(distance / elapsed)

	th := s.cfg.Thresholds
	if speed <= th.SuspiciousSpeedMps {
		return nil, &speed, 0
	}

	severity, penalty := SeverityVelocity, s.cfg.Penalties.Velocity
	if speed > th.HardCeilingMps {
		severity, penalty = SeverityVelocityCeiling, s.cfg.Penalties.VelocityCeiling
	}
	// Confidence grows from 0.5 at the suspicious speed to 0.99 at twice the hard ceiling.
	span := 2*th.HardCeilingMps - th.SuspiciousSpeedMps
	confidence := 0.5
	if span > 0 {
		confidence = clampFloat(0.5+0.49*(speed-th.SuspiciousSpeedMps)/span, 0.5, 0.99)
	}

	return &model.Anomaly{
		Type:       model.AnomalyVelocity,
		Severity:   severity,
		Confidence: round2(confidence),
		Details: map[string]any{
			"speed_mps":        speed,
			"distance_meters":  round2(distance),
			"elapsed_seconds":  round2(elapsed),
			"hard_ceiling_mps": th.HardCeilingMps,
		},
	}, &speed, penalty
}

// detectLocationJump checks the position against the cluster of recent positions.
func (s *Scorer) detectLocationJump(sig Signals) *model.Anomaly {
	th := s.cfg.Thresholds
	if len(sig.History) < th.JumpMinHistory {
		return nil
	}
	points := make([]geo.Point, 0, len(sig.History))
	for _, l := range sig.History {
		points = append(points, geo.Point{Lat: l.Latitude, Lng: l.Longitude})
	}
	centroid := geo.Centroid(points)
	spread := geo.MeanSpread(centroid, points)
	limit := math.Max(spread*th.JumpSpreadFactor, th.JumpFloorMeters)

	distance := geo.Distance(centroid, sig.Position)
	if distance <= limit {
		return nil
	}

	return &model.Anomaly{
		Type:       model.AnomalyLocationJump,
		Severity:   SeverityLocationJump,
		Confidence: round2(clampFloat(distance/(2*limit), 0.5, 0.95)),
		Details: map[string]any{
			"distance_from_centroid_meters": round2(distance),
			"mean_spread_meters":            round2(spread),
			"limit_meters":                  round2(limit),
			"history_points":                len(points),
		},
	}
}

func (s *Scorer) detectDeviceMismatch(sig Signals, consistency int) *model.Anomaly {
	low := s.cfg.Thresholds.LowTrustConsistency
	if sig.DeviceTrusted || consistency >= low || low <= 0 {
		return nil
	}
	return &model.Anomaly{
		Type:       model.AnomalyDeviceMismatch,
		Severity:   SeverityDeviceMismatch,
		Confidence: round2(clampFloat(float64(low-consistency)/float64(low), 0.5, 0.9)),
		Details: map[string]any{
			"consistency": consistency,
			"threshold":   low,
		},
	}
}

func (s *Scorer) detectTokenReuse(sig Signals) *model.Anomaly {
	if sig.TokenHolder == nil || *sig.TokenHolder == sig.Participant {
		return nil
	}
	return &model.Anomaly{
		Type:       model.AnomalyTokenReuse,
		Severity:   SeverityTokenReuse,
		Confidence: 0.9,
		Details: map[string]any{
			"first_holder": sig.TokenHolder.String(),
		},
	}
}

func (s *Scorer) detectRapidSubmission(sig Signals) *model.Anomaly {
	limit := s.cfg.Thresholds.RapidSubmissions
	if limit <= 0 || sig.SubmissionAttempts <= limit {
		return nil
	}
	return &model.Anomaly{
		Type:       model.AnomalyRapidSubmission,
		Severity:   SeverityRapidSubmission,
		Confidence: round2(clampFloat(float64(sig.SubmissionAttempts)/float64(2*limit), 0.5, 0.95)),
		Details: map[string]any{
			"attempts":  sig.SubmissionAttempts,
			"threshold": limit,
		},
	}
}
