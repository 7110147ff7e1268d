// Package inproc provides an in-process Bus for single-process fleets
// and tests. Delivery is synchronous into per-subscription mailboxes;
// a full mailbox drops the message, matching the no-backpressure
// contract of the bus boundary.
package inproc

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/Juancams/behaviorfleets/bus"
	"github.com/Juancams/behaviorfleets/types"
)

// DefaultMailboxSize is the buffer size of a subscription mailbox.
const DefaultMailboxSize = 64

// Bus is an in-memory implementation of bus.Bus.
type Bus struct {
	mailboxSize int
	logger      *zap.Logger

	mu     sync.RWMutex
	subs   map[string]map[int]*subscription
	seq    int
	closed bool
}

// Option configures the in-process bus.
type Option func(*Bus)

// WithMailboxSize overrides the per-subscription mailbox buffer size.
func WithMailboxSize(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.mailboxSize = n
		}
	}
}

// WithLogger sets the bus logger.
func WithLogger(logger *zap.Logger) Option {
	return func(b *Bus) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// New creates an in-process bus.
func New(opts ...Option) *Bus {
	b := &Bus{
		mailboxSize: DefaultMailboxSize,
		logger:      zap.NewNop(),
		subs:        make(map[string]map[int]*subscription),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With(zap.String("component", "inproc_bus"))
	return b
}

type subscription struct {
	bus     *Bus
	channel string
	id      int
	ch      chan *types.MissionMessage
	once    sync.Once
}

func (s *subscription) C() <-chan *types.MissionMessage { return s.ch }

func (s *subscription) Unsubscribe() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		if subs, ok := s.bus.subs[s.channel]; ok {
			delete(subs, s.id)
			if len(subs) == 0 {
				delete(s.bus.subs, s.channel)
			}
		}
		s.bus.mu.Unlock()
		close(s.ch)
	})
}

// Publish delivers a clone of msg to every subscriber of the channel.
// Subscribers with a full mailbox miss the message.
func (b *Bus) Publish(ctx context.Context, channel string, msg *types.MissionMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return types.NewError(types.ErrBusClosed, "publish on closed bus")
	}

	for _, sub := range b.subs[channel] {
		select {
		case sub.ch <- msg.Clone():
		default:
			b.logger.Debug("mailbox full, dropping message",
				zap.String("channel", channel),
				zap.String("kind", string(msg.Kind)),
			)
		}
	}
	return nil
}

// Subscribe opens a mailbox for the named channel.
func (b *Bus) Subscribe(ctx context.Context, channel string) (bus.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, types.NewError(types.ErrBusClosed, "subscribe on closed bus")
	}

	b.seq++
	sub := &subscription{
		bus:     b,
		channel: channel,
		id:      b.seq,
		ch:      make(chan *types.MissionMessage, b.mailboxSize),
	}
	if b.subs[channel] == nil {
		b.subs[channel] = make(map[int]*subscription)
	}
	b.subs[channel][sub.id] = sub
	return sub, nil
}

// Close terminates all subscriptions and marks the bus closed.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	all := make([]*subscription, 0)
	for _, subs := range b.subs {
		for _, sub := range subs {
			all = append(all, sub)
		}
	}
	b.subs = make(map[string]map[int]*subscription)
	b.mu.Unlock()

	for _, sub := range all {
		sub.once.Do(func() { close(sub.ch) })
	}
	return nil
}

var _ bus.Bus = (*Bus)(nil)
