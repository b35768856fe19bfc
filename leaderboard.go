// Package leaderboard wires a SessionManager to its default collaborators.
package leaderboard

import (
	"context"
	"fmt"
	"net/http"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/layer-3/leaderboard/adapters/codec"
	"github.com/layer-3/leaderboard/adapters/events"
	"github.com/layer-3/leaderboard/adapters/transport"
	"github.com/layer-3/leaderboard/config"
	"github.com/layer-3/leaderboard/core"
	"github.com/layer-3/leaderboard/ports"
	"github.com/layer-3/leaderboard/service"
)

// NewClient builds a session manager for cfg that reports to publisher
func NewClient(cfg config.Config, publisher ports.EventPublisher, logger *zap.Logger) (*service.SessionManager, error) {
	httpTransport, err := transport.NewHTTPTransport(cfg.BaseURL, &http.Client{Timeout: cfg.HTTPTimeout})
	if err != nil {
		return nil, err
	}
	policy, err := service.ParseRetryPolicy(cfg.RetryPolicy)
	if err != nil {
		return nil, err
	}

	opts := []service.Option{
		service.WithCodec(codec.JSON{}),
		service.WithLogger(logger),
		service.WithRefreshMethod(cfg.RefreshMethod),
		service.WithRetryPolicy(policy),
	}
	if cfg.APISecret != "" {
		opts = append(opts, service.WithAPISecret(cfg.APISecret))
	}

	return service.NewSessionManager(cfg.ApplicationID, httpTransport, publisher, opts...), nil
}

// EventBus is the in-process dispatcher, optionally mirrored to a Redis stream
type EventBus struct {
	*events.Dispatcher
	publisher ports.EventPublisher
	closers   []func() error
}

// NewEventBus creates the bus; with cfg.EventsRedisURL set every event is also
// published to the cfg.EventsTopic stream.
func NewEventBus(ctx context.Context, cfg config.Config) (*EventBus, error) {
	bus := &EventBus{Dispatcher: events.NewDispatcher()}
	bus.publisher = bus.Dispatcher
	if cfg.EventsRedisURL == "" {
		return bus, nil
	}

	opts, err := redis.ParseURL(cfg.EventsRedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse events redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("events redis ping: %w", err)
	}

	publisher, err := redisstream.NewPublisher(
		redisstream.PublisherConfig{
			Client: client,
		},
		watermill.NewStdLogger(false, false),
	)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("create redis stream publisher: %w", err)
	}

	bus.publisher = events.Fanout{bus.Dispatcher, events.NewWatermillPublisher(publisher, cfg.EventsTopic)}
	bus.closers = append(bus.closers, publisher.Close, client.Close)
	return bus, nil
}

// Publish implements ports.EventPublisher
func (b *EventBus) Publish(ctx context.Context, event core.Event) error {
	return b.publisher.Publish(ctx, event)
}

// Close releases the stream publisher and its Redis client
func (b *EventBus) Close() error {
	var first error
	for _, c := range b.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
