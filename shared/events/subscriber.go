package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	defaultBatchSize     = 10
	defaultBlockDuration = 5 * time.Second
	maxPollBackoff       = 30 * time.Second
)

// Handler processes one event. A returned error leaves the message pending.
type Handler func(ctx context.Context, event Event) error

// Subscriber consumes a stream as a member of a consumer group.
type Subscriber struct {
	client redis.UniversalClient
	cfg    SubscriberConfig
	log    *logrus.Entry
}

type SubscriberConfig struct {
	Group         string
	Consumer      string
	Stream        string
	Handler       Handler
	BatchSize     int64
	BlockDuration time.Duration
	// ReclaimIdle is how long a delivered message may stay unacknowledged
	// before any consumer of the group takes it over. Zero disables it.
	ReclaimIdle time.Duration
}

func NewSubscriber(client redis.UniversalClient, cfg SubscriberConfig) *Subscriber {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.BlockDuration <= 0 {
		cfg.BlockDuration = defaultBlockDuration
	}
	return &Subscriber{
		client: client,
		cfg:    cfg,
		log: logrus.WithFields(logrus.Fields{
			"stream":   cfg.Stream,
			"group":    cfg.Group,
			"consumer": cfg.Consumer,
		}),
	}
}

// Start joins the group and polls until ctx is done. Read errors back off
// exponentially.
func (s *Subscriber) Start(ctx context.Context) error {
	if err := s.ensureGroup(ctx); err != nil {
		return err
	}
	s.log.Info("subscriber started")

	retry := backoff.NewExponentialBackOff()
	retry.MaxInterval = maxPollBackoff
	retry.MaxElapsedTime = 0

	for {
		err := s.Poll(ctx)
		if ctx.Err() != nil {
			s.log.Info("subscriber stopping")
			return ctx.Err()
		}
		if err == nil {
			retry.Reset()
			continue
		}

		wait := retry.NextBackOff()
		s.log.WithError(err).WithField("retry_in", wait.String()).Warn("stream poll failed")
		select {
		case <-ctx.Done():
			s.log.Info("subscriber stopping")
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (s *Subscriber) ensureGroup(ctx context.Context) error {
	err := s.client.XGroupCreateMkStream(ctx, s.cfg.Stream, s.cfg.Group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}
	return nil
}

// Poll handles one batch: first messages abandoned by other consumers for
// longer than ReclaimIdle, then new ones.
func (s *Subscriber) Poll(ctx context.Context) error {
	if s.cfg.ReclaimIdle > 0 {
		claimed, _, err := s.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   s.cfg.Stream,
			Group:    s.cfg.Group,
			Consumer: s.cfg.Consumer,
			MinIdle:  s.cfg.ReclaimIdle,
			Start:    "0-0",
			Count:    s.cfg.BatchSize,
		}).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("failed to reclaim pending messages: %w", err)
		}
		s.handleAll(ctx, claimed)
	}

	streams, err := s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    s.cfg.Group,
		Consumer: s.cfg.Consumer,
		Streams:  []string{s.cfg.Stream, ">"},
		Count:    s.cfg.BatchSize,
		Block:    s.cfg.BlockDuration,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read from stream: %w", err)
	}

	for _, stream := range streams {
		s.handleAll(ctx, stream.Messages)
	}
	return nil
}

func (s *Subscriber) handleAll(ctx context.Context, messages []redis.XMessage) {
	for _, message := range messages {
		log := s.log.WithField("message_id", message.ID)

		event, err := decodeMessage(message)
		if err != nil {
			// Redelivery cannot fix a malformed message.
			log.WithError(err).Error("dropping unreadable message")
			s.ack(ctx, log, message.ID)
			continue
		}
		if err := s.cfg.Handler(ctx, event); err != nil {
			log.WithError(err).WithField("event", event.Type).Error("failed to process message")
			continue
		}
		s.ack(ctx, log, message.ID)
	}
}

func (s *Subscriber) ack(ctx context.Context, log *logrus.Entry, id string) {
	if err := s.client.XAck(ctx, s.cfg.Stream, s.cfg.Group, id).Err(); err != nil {
		log.WithError(err).Warn("failed to ack message")
	}
}

func decodeMessage(message redis.XMessage) (Event, error) {
	var event Event
	raw, ok := message.Values["event"].(string)
	if !ok {
		return event, errors.New("message has no event field")
	}
	if err := json.Unmarshal([]byte(raw), &event); err != nil {
		return event, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	return event, nil
}
