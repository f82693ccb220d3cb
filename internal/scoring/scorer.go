// Package scoring turns raw verification signals into a confidence score and anomaly set.
package scoring

import (
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/dtroode/rollcall-server/internal/geo"
	"github.com/dtroode/rollcall-server/internal/model"
)

// Layer names reported in the per-layer breakdown.
const (
	LayerBiometric = "biometric"
	LayerGPS       = "gps"
	LayerToken     = "token"
	LayerProximity = "proximity"
	LayerDevice    = "device"
)

// Weights are the points each passing layer contributes. They sum to 100 by default.
type Weights struct {
	Biometric float64 `env:"BIOMETRIC" envDefault:"30"`
	GPS       float64 `env:"GPS" envDefault:"25"`
	Token     float64 `env:"TOKEN" envDefault:"20"`
	Proximity float64 `env:"PROXIMITY" envDefault:"10"`
	// Device is scaled by consistency/100.
	Device float64 `env:"DEVICE" envDefault:"15"`
}

// Penalties are the points removed per detected anomaly.
type Penalties struct {
	Velocity        float64 `env:"VELOCITY" envDefault:"25"`
	VelocityCeiling float64 `env:"VELOCITY_CEILING" envDefault:"40"`
	LocationJump    float64 `env:"LOCATION_JUMP" envDefault:"15"`
	DeviceMismatch  float64 `env:"DEVICE_MISMATCH" envDefault:"20"`
}

// Thresholds tune the anomaly detectors.
type Thresholds struct {
	SuspiciousSpeedMps  float64 `env:"SUSPICIOUS_SPEED_MPS" envDefault:"30"`
	HardCeilingMps      float64 `env:"HARD_CEILING_MPS" envDefault:"90"`
	JumpMinHistory      int     `env:"JUMP_MIN_HISTORY" envDefault:"3"`
	JumpSpreadFactor    float64 `env:"JUMP_SPREAD_FACTOR" envDefault:"5"`
	JumpFloorMeters     float64 `env:"JUMP_FLOOR_METERS" envDefault:"2000"`
	LowTrustConsistency int     `env:"LOW_TRUST_CONSISTENCY" envDefault:"40"`
	RapidSubmissions    int64   `env:"RAPID_SUBMISSIONS" envDefault:"10"`
	ProximityMinRSSI    float64 `env:"PROXIMITY_MIN_RSSI" envDefault:"-85"`
}

// Config is the full scorer configuration.
type Config struct {
	Weights    Weights   `envPrefix:"WEIGHT_"`
	Penalties  Penalties `envPrefix:"PENALTY_"`
	Thresholds Thresholds
	// FlagThreshold is the confidence under which a record is flagged.
	FlagThreshold int `env:"FLAG_THRESHOLD" envDefault:"70"`
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Weights:   Weights{Biometric: 30, GPS: 25, Token: 20, Proximity: 10, Device: 15},
		Penalties: Penalties{Velocity: 25, VelocityCeiling: 40, LocationJump: 15, DeviceMismatch: 20},
		Thresholds: Thresholds{
			SuspiciousSpeedMps:  30,
			HardCeilingMps:      90,
			JumpMinHistory:      3,
			JumpSpreadFactor:    5,
			JumpFloorMeters:     2000,
			LowTrustConsistency: 40,
			RapidSubmissions:    10,
			ProximityMinRSSI:    -85,
		},
		FlagThreshold: 70,
	}
}

// Signals are the raw inputs of one verification.
type Signals struct {
	BiometricVerified bool
	WithinRadius      bool
	TokenValid        bool

	// ProximityRSSI holds short-range signal samples in dBm. Empty means the channel was unavailable.
	ProximityRSSI  []float64
	ProximityScans int

	DeviceConsistency int
	DeviceTrusted     bool

	Position   geo.Point
	CapturedAt time.Time
	// History holds recent positions of the participant, newest first.
	History []model.Location

	// SubmissionAttempts is the rolling attempt counter for (participant, session).
	SubmissionAttempts int64
	// TokenHolder is the participant that first presented the same proof token from the same device.
	TokenHolder *uuid.UUID
	Participant uuid.UUID
}

// Layer is one entry of the per-layer breakdown.
type Layer struct {
	Name   string  `json:"name"`
	Passed bool    `json:"passed"`
	Points float64 `json:"points"`
}

// Result is the scorer output.
type Result struct {
	Confidence int
	Flagged    bool
	Layers     []Layer
	// Anomalies carry type, severity, confidence and details; identifiers are filled by the caller.
	Anomalies []model.Anomaly

	VelocityMps   *float64
	ProximityMean *float64
}

// HasAnomaly reports whether an anomaly of type t was detected.
func (r Result) HasAnomaly(t model.AnomalyType) bool {
	for _, a := range r.Anomalies {
		if a.Type == t {
			return true
		}
	}
	return false
}

// Scorer computes confidence and anomalies. It is pure and safe for concurrent use.
type Scorer struct {
	cfg Config
}

// NewScorer creates new Scorer instance.
func NewScorer(cfg Config) *Scorer {
	return &Scorer{cfg: cfg}
}

// Threshold returns the configured flag threshold.
func (s *Scorer) Threshold() int {
	return s.cfg.FlagThreshold
}

// Score evaluates signals.
func (s *Scorer) Score(sig Signals) Result {
	w := s.cfg.Weights
	var res Result

	proximityMean, proximityOK := s.proximity(sig)
	res.ProximityMean = proximityMean

	deviceScore := clampInt(sig.DeviceConsistency, 0, 100)
	res.Layers = []Layer{
		layer(LayerBiometric, sig.BiometricVerified, w.Biometric),
		layer(LayerGPS, sig.WithinRadius, w.GPS),
		layer(LayerToken, sig.TokenValid, w.Token),
		layer(LayerProximity, proximityOK, w.Proximity),
		{
			Name:   LayerDevice,
			Passed: deviceScore >= s.cfg.Thresholds.LowTrustConsistency || sig.DeviceTrusted,
			Points: w.Device * float64(deviceScore) / 100,
		},
	}

	var total float64
	for _, l := range res.Layers {
		total += l.Points
	}

	a, speed, penalty := s.detectVelocity(sig)
	res.VelocityMps = speed
	if a != nil {
		res.Anomalies = append(res.Anomalies, *a)
		total -= penalty
	}
	if a := s.detectLocationJump(sig); a != nil {
		res.Anomalies = append(res.Anomalies, *a)
		total -= s.cfg.Penalties.LocationJump
	}
	if a := s.detectDeviceMismatch(sig, deviceScore); a != nil {
		res.Anomalies = append(res.Anomalies, *a)
		total -= s.cfg.Penalties.DeviceMismatch
	}
	if a := s.detectTokenReuse(sig); a != nil {
		res.Anomalies = append(res.Anomalies, *a)
	}
	if a := s.detectRapidSubmission(sig); a != nil {
		res.Anomalies = append(res.Anomalies, *a)
	}

	res.Confidence = clampInt(int(math.Round(total)), 0, 100)
	res.Flagged = res.Confidence < s.cfg.FlagThreshold || len(res.Anomalies) > 0
	return res
}

func (s *Scorer) proximity(sig Signals) (*float64, bool) {
	if len(sig.ProximityRSSI) == 0 || sig.ProximityScans <= 0 {
		return nil, false
	}
	var sum float64
	for _, v := range sig.ProximityRSSI {
		sum += v
	}
	mean := sum / float64(len(sig.ProximityRSSI))
	return &mean, mean >= s.cfg.Thresholds.ProximityMinRSSI
}

func layer(name string, passed bool, weight float64) Layer {
	l := Layer{Name: name, Passed: passed}
	if passed {
		l.Points = weight
	}
	return l
}

func clampInt(v, lo, hi int) int {
	return max(lo, min(hi, v))
}

func clampFloat(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
