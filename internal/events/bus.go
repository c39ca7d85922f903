// AngelaMos | 2026
// bus.go

package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sethvargo/go-retry"

	"github.com/carterperez-dev/assignly/internal/subscription"
)

// RedisBus carries subscription changes between API instances over a
// Redis pub/sub channel and feeds every received change into a local Hub.
type RedisBus struct {
	rdb        *redis.Client
	channel    string
	hub        *Hub
	logger     *slog.Logger
	retryBase  time.Duration
	retryLimit time.Duration
}

const (
	defaultRetryBase  = 500 * time.Millisecond
	defaultRetryLimit = 30 * time.Second
)

var errRelayStopped = errors.New("subscription event relay stopped")

func NewRedisBus(
	rdb *redis.Client,
	channel string,
	hub *Hub,
	logger *slog.Logger,
) *RedisBus {
	if logger == nil {
		logger = slog.Default()
	}

	return &RedisBus{
		rdb:        rdb,
		channel:    channel,
		hub:        hub,
		logger:     logger,
		retryBase:  defaultRetryBase,
		retryLimit: defaultRetryLimit,
	}
}

func (b *RedisBus) Publish(ctx context.Context, change subscription.Change) error {
	payload, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("marshal change: %w", err)
	}

	if err := b.rdb.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish change: %w", err)
	}

	return nil
}

// Relay keeps Run going until ctx is cancelled, resubscribing with capped
// exponential backoff whenever Redis drops or refuses the subscription.
// ready, when non-nil, is closed after the first confirmed subscription.
func (b *RedisBus) Relay(ctx context.Context, ready chan<- struct{}) error {
	var once sync.Once
	onReady := func() {
		if ready != nil {
			once.Do(func() { close(ready) })
		}
	}

	backoff := retry.WithCappedDuration(b.retryLimit,
		retry.NewExponential(b.retryBase))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := b.run(ctx, onReady)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			err = errRelayStopped
		}
		b.logger.Warn("subscription event relay interrupted, retrying",
			"channel", b.channel,
			"error", err,
		)
		return retry.RetryableError(err)
	})
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}

// Run relays the channel into the hub until ctx is cancelled. ready, when
// non-nil, is closed once the subscription is confirmed by Redis.
func (b *RedisBus) Run(ctx context.Context, ready chan<- struct{}) error {
	return b.run(ctx, func() {
		if ready != nil {
			close(ready)
		}
	})
}

func (b *RedisBus) run(ctx context.Context, onReady func()) error {
	pubsub := b.rdb.Subscribe(ctx, b.channel)
	defer func() {
		if err := pubsub.Close(); err != nil {
			b.logger.Warn("close pubsub", "error", err)
		}
	}()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", b.channel, err)
	}
	onReady()

	b.logger.Info("subscription event relay started", "channel", b.channel)

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}

			var change subscription.Change
			if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
				b.logger.Warn("discard malformed subscription event",
					"channel", msg.Channel,
					"error", err,
				)
				continue
			}

			b.hub.Dispatch(change)
		}
	}
}
