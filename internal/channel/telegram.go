package channel

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rnovak/newswatch/internal/bus"
	"github.com/rnovak/newswatch/internal/config"
)

const telegramChannelName = "telegram"

// TelegramBot is the slice of tgbotapi.BotAPI the channel uses, kept as an
// interface so tests can fake it.
type TelegramBot interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetSelf() tgbotapi.User
}

type tgBotWrapper struct {
	bot *tgbotapi.BotAPI
}

func (w *tgBotWrapper) GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return w.bot.GetUpdatesChan(config)
}

func (w *tgBotWrapper) StopReceivingUpdates() {
	w.bot.StopReceivingUpdates()
}

func (w *tgBotWrapper) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	return w.bot.Send(c)
}

func (w *tgBotWrapper) GetSelf() tgbotapi.User {
	return w.bot.Self
}

// BotFactory creates TelegramBot instances (allows mocking).
type BotFactory func(token string, client *http.Client) (TelegramBot, error)

var defaultBotFactory BotFactory = func(token string, client *http.Client) (TelegramBot, error) {
	bot, err := tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, client)
	if err != nil {
		return nil, err
	}
	return &tgBotWrapper{bot: bot}, nil
}

// TelegramChannel broadcasts delivered items to a set of chat IDs and turns
// chat commands (/ping, /register, /fetch) into command intents on the bus.
type TelegramChannel struct {
	BaseChannel
	token      string
	proxy      string
	bot        TelegramBot
	botFactory BotFactory
	cancel     context.CancelFunc

	mu      sync.Mutex
	chatIDs []int64
}

func NewTelegramChannel(cfg config.TelegramConfig, b *bus.MessageBus) (*TelegramChannel, error) {
	return NewTelegramChannelWithFactory(cfg, b, defaultBotFactory)
}

// NewTelegramChannelWithFactory creates a TelegramChannel with a custom bot
// factory (for testing).
func NewTelegramChannelWithFactory(cfg config.TelegramConfig, b *bus.MessageBus, factory BotFactory) (*TelegramChannel, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("telegram token is required")
	}
	return &TelegramChannel{
		BaseChannel: NewBaseChannel(telegramChannelName, b),
		token:       cfg.Token,
		proxy:       cfg.Proxy,
		botFactory:  factory,
		chatIDs:     append([]int64(nil), cfg.ChatIDs...),
	}, nil
}

func (t *TelegramChannel) initBot() error {
	client := http.DefaultClient
	if t.proxy != "" {
		proxyURL, err := url.Parse(t.proxy)
		if err != nil {
			return fmt.Errorf("parse proxy url: %w", err)
		}
		client = &http.Client{
			Transport: &http.Transport{Proxy: http.ProxyURL(proxyURL)},
		}
	}

	bot, err := t.botFactory(t.token, client)
	if err != nil {
		return fmt.Errorf("create telegram bot: %w", err)
	}
	t.bot = bot
	log.Printf("[telegram] authorized as @%s", bot.GetSelf().UserName)
	return nil
}

func (t *TelegramChannel) Start(ctx context.Context) error {
	if err := t.initBot(); err != nil {
		return err
	}

	ctx, t.cancel = context.WithCancel(ctx)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := t.bot.GetUpdatesChan(u)

	go func() {
		for {
			select {
			case update := <-updates:
				if update.Message == nil {
					continue
				}
				t.handleMessage(update.Message)
			case <-ctx.Done():
				return
			}
		}
	}()

	log.Printf("[telegram] polling started")
	return nil
}

func (t *TelegramChannel) handleMessage(msg *tgbotapi.Message) {
	text := strings.TrimSpace(msg.Text)
	if !strings.HasPrefix(text, "/") {
		return
	}

	name, arg, _ := strings.Cut(strings.TrimPrefix(text, "/"), " ")
	// Strip the @botname suffix Telegram appends in groups.
	name, _, _ = strings.Cut(strings.ToLower(name), "@")

	switch name {
	case bus.CommandPing, bus.CommandRegister, bus.CommandFetch:
	default:
		return
	}

	t.Bus().PublishCommand(bus.Command{
		Name:      name,
		Channel:   telegramChannelName,
		ChatID:    strconv.FormatInt(msg.Chat.ID, 10),
		Arg:       strings.TrimSpace(arg),
		Timestamp: time.Unix(int64(msg.Date), 0),
	})
}

// RegisterChat adds a chat to the broadcast set at runtime.
func (t *TelegramChannel) RegisterChat(chatID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, id := range t.chatIDs {
		if id == chatID {
			return
		}
	}
	t.chatIDs = append(t.chatIDs, chatID)
	log.Printf("[telegram] registered chat %d", chatID)
}

// Send pushes the message to one chat when msg.ChatID is set, otherwise to
// every registered chat. It fails only when no target accepted the message.
func (t *TelegramChannel) Send(msg bus.OutboundMessage) error {
	if t.bot == nil {
		return fmt.Errorf("telegram bot not initialized")
	}

	targets := t.targets(msg.ChatID)
	if len(targets) == 0 {
		return fmt.Errorf("no telegram chats registered")
	}

	delivered := 0
	for _, chatID := range targets {
		out := tgbotapi.NewMessage(chatID, msg.Content)
		out.DisableWebPagePreview = false
		if _, err := t.bot.Send(out); err != nil {
			log.Printf("[telegram] send to %d failed: %v", chatID, err)
			continue
		}
		delivered++
	}
	if delivered == 0 {
		return fmt.Errorf("telegram delivery failed for all %d chats", len(targets))
	}
	return nil
}

// ParseChatID converts the string chat ID carried on bus messages back to
// the telegram numeric form.
func ParseChatID(chatID string) (int64, error) {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse chat id %q: %w", chatID, err)
	}
	return id, nil
}

func (t *TelegramChannel) targets(chatID string) []int64 {
	if chatID != "" {
		if id, err := strconv.ParseInt(chatID, 10, 64); err == nil {
			return []int64{id}
		}
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]int64(nil), t.chatIDs...)
}

func (t *TelegramChannel) Stop() error {
	if t.cancel != nil {
		t.cancel()
	}
	if t.bot != nil {
		t.bot.StopReceivingUpdates()
	}
	return nil
}
