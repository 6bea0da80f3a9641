package channel

import (
	"context"
	"fmt"
	"log"

	"github.com/rnovak/newswatch/internal/bus"
	"github.com/rnovak/newswatch/internal/config"
)

// ChannelManager owns the enabled channels and is the messaging transport
// the delivery gate talks to.
type ChannelManager struct {
	channels map[string]Channel
	bus      *bus.MessageBus
	started  bool
}

func NewChannelManager(cfg config.ChannelsConfig, b *bus.MessageBus) (*ChannelManager, error) {
	return NewChannelManagerWithFactory(cfg, b, nil)
}

// NewChannelManagerWithFactory injects a telegram bot factory, used by tests
// to avoid the network.
func NewChannelManagerWithFactory(cfg config.ChannelsConfig, b *bus.MessageBus, factory BotFactory) (*ChannelManager, error) {
	m := &ChannelManager{
		channels: make(map[string]Channel),
		bus:      b,
	}

	if cfg.Telegram.Enabled {
		ch, err := newTelegramForManager(cfg.Telegram, b, factory)
		if err != nil {
			return nil, fmt.Errorf("init telegram channel: %w", err)
		}
		m.add(ch)
	}

	if cfg.Webhook.Enabled {
		ch, err := NewWebhookChannel(cfg.Webhook, b)
		if err != nil {
			return nil, fmt.Errorf("init webhook channel: %w", err)
		}
		m.add(ch)
	}

	return m, nil
}

func newTelegramForManager(cfg config.TelegramConfig, b *bus.MessageBus, factory BotFactory) (*TelegramChannel, error) {
	if factory == nil {
		return NewTelegramChannel(cfg, b)
	}
	return NewTelegramChannelWithFactory(cfg, b, factory)
}

func (m *ChannelManager) add(ch Channel) {
	m.channels[ch.Name()] = ch
	m.bus.SubscribeOutbound(ch.Name(), func(msg bus.OutboundMessage) {
		if err := ch.Send(msg); err != nil {
			log.Printf("[channel-mgr] send to %s failed: %v", ch.Name(), err)
		}
	})
}

func (m *ChannelManager) StartAll(ctx context.Context) error {
	for name, ch := range m.channels {
		log.Printf("[channel-mgr] starting %s", name)
		if err := ch.Start(ctx); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	m.started = true
	return nil
}

func (m *ChannelManager) StopAll() error {
	for name, ch := range m.channels {
		log.Printf("[channel-mgr] stopping %s", name)
		if err := ch.Stop(); err != nil {
			log.Printf("[channel-mgr] error stopping %s: %v", name, err)
		}
	}
	return nil
}

// IsReady reports whether the manager has channels running.
func (m *ChannelManager) IsReady() bool {
	return m.started && len(m.channels) > 0
}

// Broadcast sends one message to every channel. Returns true iff at least
// one channel accepted it.
func (m *ChannelManager) Broadcast(text string) bool {
	accepted := 0
	for name, ch := range m.channels {
		if err := ch.Send(bus.OutboundMessage{Channel: name, Content: text}); err != nil {
			log.Printf("[channel-mgr] broadcast to %s failed: %v", name, err)
			continue
		}
		accepted++
	}
	return accepted > 0
}

// Telegram exposes the telegram channel when configured, for chat
// registration commands.
func (m *ChannelManager) Telegram() (*TelegramChannel, bool) {
	ch, ok := m.channels[telegramChannelName]
	if !ok {
		return nil, false
	}
	tg, ok := ch.(*TelegramChannel)
	return tg, ok
}

func (m *ChannelManager) EnabledChannels() []string {
	names := make([]string, 0, len(m.channels))
	for name := range m.channels {
		names = append(names, name)
	}
	return names
}
