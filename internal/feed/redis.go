package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultChannel is the Redis pub/sub channel shared by every instance
const DefaultChannel = "showroom:feed"

// RedisBroker relays events through Redis pub/sub so that subscribers on any
// instance see events published on every other one.
type RedisBroker struct {
	client  *redis.Client
	channel string
	buffer  int
	logger  *zap.Logger

	mu     sync.Mutex
	closed bool
	done   chan struct{}
	wg     sync.WaitGroup
}

// NewRedisBroker creates a broker on client. The client is not closed by Close.
func NewRedisBroker(client *redis.Client, channel string, logger *zap.Logger) *RedisBroker {
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisBroker{
		client:  client,
		channel: channel,
		buffer:  DefaultBuffer,
		logger:  logger,
		done:    make(chan struct{}),
	}
}

// Publish implements Broker
func (b *RedisBroker) Publish(ctx context.Context, e Event) error {
	if b.isClosed() {
		return ErrClosed
	}

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		return fmt.Errorf("publishing event: %w", err)
	}
	return nil
}

// Subscribe implements Broker. The subscription is confirmed before returning,
// so events published afterwards are delivered.
func (b *RedisBroker) Subscribe(ctx context.Context) (<-chan Event, error) {
	if b.isClosed() {
		return nil, ErrClosed
	}

	ps := b.client.Subscribe(ctx, b.channel)
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("subscribing to %s: %w", b.channel, err)
	}

	out := make(chan Event, b.buffer)
	msgs := ps.Channel()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer close(out)
		defer ps.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case <-b.done:
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}

				var e Event
				if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
					b.logger.Warn("discarding malformed feed event", zap.Error(err))
					continue
				}

				select {
				case out <- e:
				default:
					b.logger.Debug("dropping event for slow subscriber", zap.String("kind", e.Kind))
				}
			}
		}
	}()

	return out, nil
}

func (b *RedisBroker) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Close implements Broker and waits for subscription goroutines to exit
func (b *RedisBroker) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	close(b.done)
	b.mu.Unlock()

	b.wg.Wait()
	return nil
}
