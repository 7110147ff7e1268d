// Package redisbus provides a Redis pub/sub implementation of the bus
// boundary, suitable for fleets spread across processes or hosts.
package redisbus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Juancams/behaviorfleets/bus"
	"github.com/Juancams/behaviorfleets/types"
)

// Config holds configuration for the Redis bus.
type Config struct {
	// Addr is the Redis server address.
	Addr string `yaml:"addr" json:"addr" env:"ADDR"`

	// Password is the Redis password, empty for none.
	Password string `yaml:"password" json:"password" env:"PASSWORD"`

	// DB is the Redis database number.
	DB int `yaml:"db" json:"db" env:"DB"`

	// PoolSize is the connection pool size.
	PoolSize int `yaml:"pool_size" json:"pool_size" env:"POOL_SIZE"`

	// KeyPrefix namespaces every channel name, so multiple fleets can
	// share one Redis instance.
	KeyPrefix string `yaml:"key_prefix" json:"key_prefix" env:"KEY_PREFIX"`

	// MailboxSize is the buffer size of a subscription mailbox.
	MailboxSize int `yaml:"mailbox_size" json:"mailbox_size" env:"MAILBOX_SIZE"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Addr:        "localhost:6379",
		Password:    "",
		DB:          0,
		PoolSize:    10,
		KeyPrefix:   "behaviorfleets:",
		MailboxSize: 64,
	}
}

// Bus is a Redis pub/sub implementation of bus.Bus.
type Bus struct {
	client *redis.Client
	config Config
	logger *zap.Logger

	mu     sync.Mutex
	subs   map[*subscription]struct{}
	closed bool
}

// New creates a Redis bus and verifies connectivity.
func New(config Config, logger *zap.Logger) (*Bus, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.MailboxSize <= 0 {
		config.MailboxSize = DefaultConfig().MailboxSize
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
		PoolSize: config.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, types.NewError(types.ErrChannelUnreachable,
			fmt.Sprintf("failed to connect to redis at %s", config.Addr)).WithCause(err)
	}

	return &Bus{
		client: client,
		config: config,
		logger: logger.With(zap.String("component", "redis_bus")),
		subs:   make(map[*subscription]struct{}),
	}, nil
}

func (b *Bus) channelKey(channel string) string {
	return b.config.KeyPrefix + channel
}

// Publish serializes the message to JSON and publishes it on the named
// channel.
func (b *Bus) Publish(ctx context.Context, channel string, msg *types.MissionMessage) error {
	data, err := msg.Encode()
	if err != nil {
		return err
	}
	if err := b.client.Publish(ctx, b.channelKey(channel), data).Err(); err != nil {
		return types.NewError(types.ErrChannelUnreachable,
			fmt.Sprintf("publish on %s failed", channel)).WithCause(err)
	}
	return nil
}

// Subscribe opens a Redis subscription on the named channel and pumps
// decoded messages into the mailbox.
func (b *Bus) Subscribe(ctx context.Context, channel string) (bus.Subscription, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, types.NewError(types.ErrBusClosed, "subscribe on closed bus")
	}
	b.mu.Unlock()

	pubsub := b.client.Subscribe(ctx, b.channelKey(channel))

	// Force the subscription to be established before returning, so a
	// publish immediately after Subscribe is not lost.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, types.NewError(types.ErrChannelUnreachable,
			fmt.Sprintf("subscribe on %s failed", channel)).WithCause(err)
	}

	sub := &subscription{
		pubsub: pubsub,
		ch:     make(chan *types.MissionMessage, b.config.MailboxSize),
	}

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	go b.pump(channel, sub)

	return sub, nil
}

// pump decodes incoming payloads into the subscription mailbox. It exits
// when the underlying pubsub is closed.
func (b *Bus) pump(channel string, sub *subscription) {
	defer close(sub.ch)
	defer func() {
		b.mu.Lock()
		delete(b.subs, sub)
		b.mu.Unlock()
	}()

	for raw := range sub.pubsub.Channel() {
		msg, err := types.DecodeMissionMessage([]byte(raw.Payload))
		if err != nil {
			b.logger.Warn("dropping undecodable message",
				zap.String("channel", channel),
				zap.Error(err),
			)
			continue
		}
		select {
		case sub.ch <- msg:
		default:
			b.logger.Debug("mailbox full, dropping message",
				zap.String("channel", channel),
				zap.String("kind", string(msg.Kind)),
			)
		}
	}
}

// Close terminates all subscriptions and closes the Redis client.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	subs := make([]*subscription, 0, len(b.subs))
	for sub := range b.subs {
		subs = append(subs, sub)
	}
	b.mu.Unlock()

	for _, sub := range subs {
		sub.pubsub.Close()
	}
	return b.client.Close()
}

// Ping checks bus health.
func (b *Bus) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

type subscription struct {
	pubsub *redis.PubSub
	ch     chan *types.MissionMessage
	once   sync.Once
}

func (s *subscription) C() <-chan *types.MissionMessage { return s.ch }

func (s *subscription) Unsubscribe() {
	s.once.Do(func() {
		s.pubsub.Close()
	})
}

var _ bus.Bus = (*Bus)(nil)
