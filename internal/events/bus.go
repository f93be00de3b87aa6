package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Handler consumes the raw payload of one notification. Handlers run on the
// subscription's goroutine; they must not block for long.
type Handler func(ctx context.Context, payload []byte)

// Bus is the push channel: a thin typed layer over Redis pub/sub. Delivery
// is at-least-once from the consumer's perspective (reconnects can replay)
// and unordered across topics; consumers own deduplication decisions.
type Bus struct {
	R      *redis.Client
	Logger zerolog.Logger
	Prefix string
}

// Publish encodes the payload as JSON and broadcasts it on the topic.
func (b *Bus) Publish(ctx context.Context, topic string, payload any) error {
	if b == nil || b.R == nil {
		return errors.New("events: redis client not configured")
	}
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return errors.New("events: topic is required")
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("events: encode payload: %w", err)
	}
	if err := b.R.Publish(ctx, b.channel(topic), encoded).Err(); err != nil {
		return fmt.Errorf("events: publish %s: %w", topic, err)
	}
	return nil
}

// Subscription is a live topic subscription. Close releases the underlying
// channel; observers must close their subscription when torn down.
type Subscription struct {
	pubsub *redis.PubSub
	done   chan struct{}
}

// Close unsubscribes and waits for the delivery goroutine to drain.
func (s *Subscription) Close() error {
	if s == nil || s.pubsub == nil {
		return nil
	}
	err := s.pubsub.Close()
	<-s.done
	return err
}

// Subscribe registers a handler for the topic and returns the subscription.
// The returned subscription is active once Subscribe returns.
func (b *Bus) Subscribe(ctx context.Context, topic string, handler Handler) (*Subscription, error) {
	if b == nil || b.R == nil {
		return nil, errors.New("events: redis client not configured")
	}
	if handler == nil {
		return nil, errors.New("events: handler is required")
	}
	pubsub := b.R.Subscribe(ctx, b.channel(topic))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("events: subscribe %s: %w", topic, err)
	}

	sub := &Subscription{pubsub: pubsub, done: make(chan struct{})}
	go func() {
		defer close(sub.done)
		for msg := range pubsub.Channel() {
			func() {
				defer func() {
					if r := recover(); r != nil {
						b.Logger.Error().Str("topic", topic).Interface("panic", r).Msg("event handler panicked")
					}
				}()
				handler(ctx, []byte(msg.Payload))
			}()
		}
	}()
	return sub, nil
}

func (b *Bus) channel(topic string) string {
	if b.Prefix == "" {
		return topic
	}
	return b.Prefix + topic
}
