// Package bus defines the message-bus boundary used for all inter-agent
// coordination: named channels with many-to-many publish/subscribe,
// at-least-once delivery, and no ordering guarantee. Implementations do
// not require a channel-creation handshake before the first publish.
package bus

import (
	"context"

	"github.com/Juancams/behaviorfleets/types"
)

// Subscription is a live subscription to one named channel. Messages are
// delivered into the subscription's mailbox; a slow consumer loses
// messages rather than blocking the publisher.
type Subscription interface {
	// C returns the mailbox channel messages are delivered on. The
	// channel is closed after Unsubscribe.
	C() <-chan *types.MissionMessage

	// Unsubscribe stops delivery and releases the mailbox.
	Unsubscribe()
}

// Bus is the inter-agent coordination medium. All implementations are
// safe for concurrent use.
type Bus interface {
	// Publish sends a message on the named channel. Publishing to a
	// channel with no subscribers is not an error.
	Publish(ctx context.Context, channel string, msg *types.MissionMessage) error

	// Subscribe opens a mailbox for the named channel.
	Subscribe(ctx context.Context, channel string) (Subscription, error)

	// Close releases the bus. Open subscriptions are terminated.
	Close() error
}
