package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Bridge republishes events to other server processes. Broadcast groups are
// process-local; without a bridge, a client connected to process A never
// sees mutations handled by process B.
type Bridge interface {
	Publish(ctx context.Context, event *Event) error
	Close() error
}

// eventsChannel is the Redis pub/sub channel carrying bridged events.
const eventsChannel = "taskline:events"

// envelope wraps an event with its routing groups and origin so a process
// can skip messages it published itself.
type envelope struct {
	Origin string          `json:"origin"`
	Groups []string        `json:"groups"`
	Event  json.RawMessage `json:"event"`
}

// RedisBridge fans events out across processes via Redis pub/sub. Delivery
// inherits pub/sub semantics: at-most-once, no replay.
type RedisBridge struct {
	client *redis.Client
	hub    *Hub
	origin string
	logger zerolog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewRedisBridge connects to Redis, attaches itself to the hub, and starts
// consuming bridged events.
func NewRedisBridge(ctx context.Context, redisURL string, hub *Hub, logger zerolog.Logger) (*RedisBridge, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	b := &RedisBridge{
		client: client,
		hub:    hub,
		origin: uuid.NewString(),
		logger: logger.With().Str("component", "redis_bridge").Logger(),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	hub.SetBridge(b)
	go b.consume(runCtx)

	b.logger.Info().Msg("redis event bridge connected")
	return b, nil
}

// Publish sends the event to the shared channel.
func (b *RedisBridge) Publish(ctx context.Context, event *Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	env := envelope{
		Origin: b.origin,
		Groups: event.Groups,
		Event:  data,
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	return b.client.Publish(ctx, eventsChannel, payload).Err()
}

// consume receives bridged events and replays them into the local hub.
func (b *RedisBridge) consume(ctx context.Context) {
	defer close(b.done)

	sub := b.client.Subscribe(ctx, eventsChannel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				b.logger.Warn().Err(err).Msg("malformed bridged event")
				continue
			}
			if env.Origin == b.origin {
				continue
			}
			var event Event
			if err := json.Unmarshal(env.Event, &event); err != nil {
				b.logger.Warn().Err(err).Msg("malformed bridged event body")
				continue
			}
			event.Groups = env.Groups
			b.hub.publishLocal(&event)
		}
	}
}

// Close stops the consumer and releases the Redis connection.
func (b *RedisBridge) Close() error {
	b.cancel()
	<-b.done
	return b.client.Close()
}
