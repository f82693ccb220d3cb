package scoring

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dtroode/rollcall-server/internal/logger"
	"github.com/dtroode/rollcall-server/internal/model"
)

const (
	consistencyTTL    = 10 * time.Minute
	activeDeviceScope = 30 * 24 * time.Hour
)

// ConsistencyScore rates how well a device matches the participant's usage.
// prior is the link as it was before this submission (zero CreatedAt when the device is new);
// others is the number of other devices used within the last 30 days.
func ConsistencyScore(prior model.DeviceLink, others int) int {
	switch {
	case prior.RevokedAt != nil:
		return 0
	case prior.Trusted():
		return 100
	case !prior.CreatedAt.IsZero():
		return clampInt(85-10*others, 50, 85)
	case others == 0:
		// First device ever seen for this participant.
		return 50
	default:
		return clampInt(30-10*(others-1), 0, 30)
	}
}

// DeviceConsistency computes consistency scores and memoizes them in the cache.
type DeviceConsistency struct {
	devices model.DeviceStore
	cache   model.Cache
	logger  *logger.Logger
}

// NewDeviceConsistency creates new DeviceConsistency instance.
func NewDeviceConsistency(devices model.DeviceStore, cache model.Cache, logger *logger.Logger) *DeviceConsistency {
	return &DeviceConsistency{
		devices: devices,
		cache:   cache,
		logger:  logger,
	}
}

// Score returns the consistency of deviceToken for participantID.
func (d *DeviceConsistency) Score(ctx context.Context, participantID uuid.UUID, deviceToken string, prior model.DeviceLink, now time.Time) (int, error) {
	if prior.RevokedAt != nil {
		return 0, nil
	}
	if prior.Trusted() {
		return 100, nil
	}

	key := consistencyKey(participantID, deviceToken, prior)
	if v, ok, err := d.cache.GetFloat(ctx, key); err != nil {
		d.logger.Warn("DeviceConsistency: cache read failed", "error", err)
	} else if ok {
		return int(v), nil
	}

	links, err := d.devices.ListByParticipant(ctx, participantID)
	if err != nil {
		return 0, fmt.Errorf("failed to list device links: %w", err)
	}

	others := 0
	for _, l := range links {
		if l.DeviceToken == deviceToken || l.RevokedAt != nil {
			continue
		}
		if now.Sub(l.LastUsedAt) <= activeDeviceScope {
			others++
		}
	}

	score := ConsistencyScore(prior, others)
	if err := d.cache.SetFloat(ctx, key, float64(score), consistencyTTL); err != nil {
		d.logger.Warn("DeviceConsistency: cache write failed", "error", err)
	}
	return score, nil
}

// consistencyKey separates links seen for the first time from known ones,
// since a device becomes known on its first submission.
func consistencyKey(participantID uuid.UUID, deviceToken string, prior model.DeviceLink) string {
	state := "known"
	if prior.CreatedAt.IsZero() {
		state = "new"
	}
	sum := sha256.Sum256([]byte(deviceToken))
	return "consistency:" + participantID.String() + ":" + hex.EncodeToString(sum[:8]) + ":" + state
}
