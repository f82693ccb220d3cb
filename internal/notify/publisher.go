// Package notify hands notifications to the external delivery workers over Redis pub/sub.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/dtroode/rollcall-server/internal/logger"
	"github.com/dtroode/rollcall-server/internal/model"
)

// Config tunes publishing.
type Config struct {
	ChannelPrefix string        `env:"CHANNEL_PREFIX" envDefault:"notifications:"`
	RatePerSecond float64       `env:"RATE_PER_SECOND" envDefault:"50"`
	Burst         int           `env:"BURST" envDefault:"100"`
	MaxWait       time.Duration `env:"MAX_WAIT" envDefault:"2s"`
}

type publisherAPI interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// Message is the JSON payload published for each notification.
type Message struct {
	ParticipantID uuid.UUID      `json:"participant_id"`
	Kind          string         `json:"kind"`
	Message       string         `json:"message"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	SentAt        time.Time      `json:"sent_at"`
}

var _ model.Notifier = (*Publisher)(nil)

// Publisher publishes notifications, throttled to protect the delivery workers.
type Publisher struct {
	api     publisherAPI
	limiter *rate.Limiter
	cfg     Config
	clock   model.Clock
	logger  *logger.Logger
}

// NewPublisher creates new Publisher instance.
func NewPublisher(client *redis.Client, cfg Config, clock model.Clock, logger *logger.Logger) *Publisher {
	return newPublisher(client, cfg, clock, logger)
}

func newPublisher(api publisherAPI, cfg Config, clock model.Clock, logger *logger.Logger) *Publisher {
	return &Publisher{
		api:     api,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), max(cfg.Burst, 1)),
		cfg:     cfg,
		clock:   clock,
		logger:  logger,
	}
}

// Channel returns the channel of a participant.
func (p *Publisher) Channel(participantID uuid.UUID) string {
	return p.cfg.ChannelPrefix + participantID.String()
}

// Notify publishes n. It waits at most MaxWait for the rate limiter.
func (p *Publisher) Notify(ctx context.Context, n model.Notification) error {
	waitCtx, cancel := context.WithTimeout(ctx, p.cfg.MaxWait)
	defer cancel()
	if err := p.limiter.Wait(waitCtx); err != nil {
		return fmt.Errorf("notification throttled: %w", err)
	}

	payload, err := json.Marshal(Message{
		ParticipantID: n.ParticipantID,
		Kind:          string(n.Kind),
		Message:       n.Message,
		Metadata:      n.Metadata,
		SentAt:        p.clock.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	receivers, err := p.api.Publish(ctx, p.Channel(n.ParticipantID), payload).Result()
	if err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}

	p.logger.Debug("Notifier: published", "participant_id", n.ParticipantID, "kind", n.Kind, "receivers", receivers)
	return nil
}
