package bus

import (
	"log"
	"sync"
)

// MessageBus decouples the pipeline from the chat channels. Outbound
// messages fan out to per-channel subscribers; commands and events each get
// a single buffered stream.
type MessageBus struct {
	mu       sync.RWMutex
	outbound map[string]func(OutboundMessage)
	commands chan Command
	events   chan Event
}

func NewMessageBus(bufSize int) *MessageBus {
	return &MessageBus{
		outbound: make(map[string]func(OutboundMessage)),
		commands: make(chan Command, bufSize),
		events:   make(chan Event, bufSize),
	}
}

// SubscribeOutbound registers the send function for one channel name.
func (b *MessageBus) SubscribeOutbound(channel string, fn func(OutboundMessage)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.outbound[channel] = fn
}

// PublishOutbound delivers a message to its channel, or to every channel
// when msg.Channel is empty.
func (b *MessageBus) PublishOutbound(msg OutboundMessage) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if msg.Channel != "" {
		if fn, ok := b.outbound[msg.Channel]; ok {
			fn(msg)
		}
		return
	}
	for _, fn := range b.outbound {
		fn(msg)
	}
}

// PublishCommand queues a command intent; drops with a log line when the
// buffer is full rather than blocking a channel's receive loop.
func (b *MessageBus) PublishCommand(cmd Command) {
	select {
	case b.commands <- cmd:
	default:
		log.Printf("[bus] command buffer full, dropping %s", cmd.Name)
	}
}

func (b *MessageBus) Commands() <-chan Command {
	return b.commands
}

// PublishEvent queues a pipeline event, dropping when full.
func (b *MessageBus) PublishEvent(ev Event) {
	select {
	case b.events <- ev:
	default:
	}
}

func (b *MessageBus) Events() <-chan Event {
	return b.events
}
