// Package channel hosts the chat destinations the delivery gate broadcasts
// to.
package channel

import (
	"context"

	"github.com/rnovak/newswatch/internal/bus"
)

// Channel is one chat destination. Start begins receiving (where the
// platform supports it) and must not block; Send pushes one rendered message
// to the channel's configured targets.
type Channel interface {
	Name() string
	Start(ctx context.Context) error
	Send(msg bus.OutboundMessage) error
	Stop() error
}

// BaseChannel carries the pieces every channel shares.
type BaseChannel struct {
	name string
	bus  *bus.MessageBus
}

func NewBaseChannel(name string, b *bus.MessageBus) BaseChannel {
	return BaseChannel{name: name, bus: b}
}

func (c *BaseChannel) Name() string { return c.name }

func (c *BaseChannel) Bus() *bus.MessageBus { return c.bus }
