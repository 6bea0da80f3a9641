// Package gateway wires configuration, sources, channels, the scheduler and
// the control surface into one running process.
package gateway

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rnovak/newswatch/internal/bus"
	"github.com/rnovak/newswatch/internal/channel"
	"github.com/rnovak/newswatch/internal/config"
	"github.com/rnovak/newswatch/internal/control"
	"github.com/rnovak/newswatch/internal/deliver"
	"github.com/rnovak/newswatch/internal/embed"
	"github.com/rnovak/newswatch/internal/scheduler"
	"github.com/rnovak/newswatch/internal/similarity"
	"github.com/rnovak/newswatch/internal/source"
	"github.com/rnovak/newswatch/internal/store"
)

// Options for creating a Gateway.
type Options struct {
	BotFactory channel.BotFactory // for testing telegram without the network
	SignalChan chan os.Signal     // for testing signal handling
}

type Gateway struct {
	cfg        *config.Config
	bus        *bus.MessageBus
	channels   *channel.ChannelManager
	adapters   []*source.Adapter
	sched      *scheduler.Scheduler
	ctrl       *control.Server
	signalChan chan os.Signal
}

// New creates a Gateway with default options.
func New(cfg *config.Config) (*Gateway, error) {
	return NewWithOptions(cfg, Options{})
}

// NewWithOptions creates a Gateway with custom options for testing.
func NewWithOptions(cfg *config.Config, opts Options) (*Gateway, error) {
	g := &Gateway{cfg: cfg, signalChan: opts.SignalChan}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	g.bus = bus.NewMessageBus(config.DefaultBufSize)

	// Shared persistence: one seen store and one similarity index, keyed
	// by source name inside each.
	seen := store.NewSeenStore(cfg.DataDir)
	var index *similarity.Index
	if embed.Configured(cfg.Embedding) {
		index = similarity.NewIndex(cfg.DataDir, embed.NewEmbedder(cfg.Embedding))
	} else {
		log.Printf("[gateway] no embedding provider configured, near-duplicate filtering is off")
	}

	g.adapters = buildAdapters(cfg, seen, index)

	initCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for _, a := range g.adapters {
		a.Initialize(initCtx)
	}

	var err error
	if opts.BotFactory != nil {
		g.channels, err = channel.NewChannelManagerWithFactory(cfg.Channels, g.bus, opts.BotFactory)
	} else {
		g.channels, err = channel.NewChannelManager(cfg.Channels, g.bus)
	}
	if err != nil {
		return nil, fmt.Errorf("create channel manager: %w", err)
	}

	gate := deliver.NewGate(g.channels, g.bus)
	g.sched = scheduler.New(g.adapters, gate, scheduler.Options{
		BaseInterval:   time.Duration(cfg.Scheduler.BaseIntervalMinutes) * time.Minute,
		MaxInterval:    time.Duration(cfg.Scheduler.MaxIntervalMinutes) * time.Minute,
		Increment:      time.Duration(cfg.Scheduler.IncrementSeconds) * time.Second,
		SweepSchedules: cfg.Scheduler.SweepSchedules,
	})

	if cfg.Control.Enabled {
		g.ctrl = control.NewServer(cfg.Control.Host, cfg.Control.Port, g.sched, g.adapters, g.persistSourceState)
	}

	return g, nil
}

// buildAdapters assembles the four source adapters from configuration. A
// source without required credentials is constructed but force-disabled.
func buildAdapters(cfg *config.Config, seen *store.SeenStore, index *similarity.Index) []*source.Adapter {
	src := cfg.Sources

	social := source.New(source.Spec{
		Name:       "social",
		Fetch:      source.NewRedditFetch(src.Social),
		Configured: true,
		Lookback:   hours(src.Social.LookbackHours),
		Retention:  hours(src.Social.RetentionHours),
		Timeout:    seconds(src.Social.TimeoutSeconds),
		Author:     src.Social.Author,
		Denylist:   cfg.Denylist,
		Language:   true,
		Similarity: src.Social.SimilarityEnabled,
		SimParams:  simParams(src.Social.SourceSettings),
	}, src.Social.Enabled, src.Social.Weight, seen, index)

	legislative := source.New(source.Spec{
		Name:       "legislative",
		Fetch:      source.NewCongressFetch(src.Legislative),
		Configured: src.Legislative.APIKey != "",
		Lookback:   hours(src.Legislative.LookbackHours),
		Retention:  hours(src.Legislative.RetentionHours),
		Timeout:    seconds(src.Legislative.TimeoutSeconds),
		Denylist:   cfg.Denylist,
		Similarity: src.Legislative.SimilarityEnabled,
		SimParams:  simParams(src.Legislative.SourceSettings),
	}, src.Legislative.Enabled, src.Legislative.Weight, seen, index)

	neoLimit := src.Neo.DailyLimit
	if neoLimit == 0 {
		neoLimit = config.DefaultNeoDailyLimit
	}
	neo := source.New(source.Spec{
		Name:       "neo",
		Fetch:      source.NewNeoFetch(src.Neo),
		Configured: src.Neo.APIKey != "",
		Lookback:   hours(src.Neo.LookbackHours),
		Retention:  hours(src.Neo.RetentionHours),
		Timeout:    seconds(src.Neo.TimeoutSeconds),
		Denylist:   cfg.Denylist,
		Quota:      source.NewDailyQuota(neoLimit),
	}, src.Neo.Enabled, src.Neo.Weight, seen, index)

	market := source.New(source.Spec{
		Name:       "market",
		Fetch:      source.NewMarketFetch(src.Market),
		Configured: src.Market.APIKey != "",
		Lookback:   hours(src.Market.LookbackHours),
		Retention:  hours(src.Market.RetentionHours),
		Timeout:    seconds(src.Market.TimeoutSeconds),
		Denylist:   cfg.Denylist,
		Language:   true,
		Similarity: src.Market.SimilarityEnabled,
		SimParams:  simParams(src.Market.SourceSettings),
	}, src.Market.Enabled, src.Market.Weight, seen, index)

	return []*source.Adapter{social, legislative, neo, market}
}

func hours(h int) time.Duration {
	if h <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(h) * time.Hour
}

func seconds(s int) time.Duration {
	if s <= 0 {
		return time.Duration(config.DefaultFetchTimeoutS) * time.Second
	}
	return time.Duration(s) * time.Second
}

func simParams(s config.SourceSettings) similarity.Params {
	p := similarity.Params{
		Threshold:      s.SimilarityThreshold,
		MaxHistorySize: s.MaxHistorySize,
		RetentionHours: s.SimilarityRetentionHours,
	}
	if p.Threshold == 0 {
		p.Threshold = config.DefaultSimilarityThreshold
	}
	return p
}

// Run blocks until a termination signal arrives.
func (g *Gateway) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := g.channels.StartAll(ctx); err != nil {
		return fmt.Errorf("start channels: %w", err)
	}
	log.Printf("[gateway] channels started: %v", g.channels.EnabledChannels())

	if g.ctrl != nil {
		g.ctrl.Start()
	}

	go g.commandLoop(ctx)
	go g.eventLoop(ctx)

	schedDone := make(chan struct{})
	go func() {
		g.sched.Run(ctx)
		close(schedDone)
	}()

	sigCh := g.signalChan
	if sigCh == nil {
		sigCh = make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	}
	select {
	case <-sigCh:
	case <-ctx.Done():
	}

	log.Printf("[gateway] shutting down...")
	cancel()

	// Let an in-flight cycle finish before tearing the channels down.
	select {
	case <-schedDone:
	case <-time.After(30 * time.Second):
		log.Printf("[gateway] scheduler still mid-cycle after 30s, abandoning it")
	}
	return g.Shutdown()
}

// RunOnce executes a single fetch cycle and exits. Used by the fetch CLI
// command.
func (g *Gateway) RunOnce(ctx context.Context) (bool, error) {
	if err := g.channels.StartAll(ctx); err != nil {
		return false, fmt.Errorf("start channels: %w", err)
	}
	defer func() {
		if err := g.channels.StopAll(); err != nil {
			log.Printf("[gateway] channel stop warning: %v", err)
		}
	}()
	return g.sched.RunOnce(ctx), nil
}

// commandLoop reacts to chat-side commands: ping answers, register adds the
// chat to the broadcast set, fetch kicks the scheduler.
func (g *Gateway) commandLoop(ctx context.Context) {
	for {
		select {
		case cmd := <-g.bus.Commands():
			g.handleCommand(cmd)
		case <-ctx.Done():
			return
		}
	}
}

func (g *Gateway) handleCommand(cmd bus.Command) {
	log.Printf("[gateway] command %s from %s/%s", cmd.Name, cmd.Channel, cmd.ChatID)

	switch cmd.Name {
	case bus.CommandPing:
		g.reply(cmd, "pong")

	case bus.CommandRegister:
		tg, ok := g.channels.Telegram()
		if !ok {
			g.reply(cmd, "telegram channel is not enabled")
			return
		}
		chatID, err := channel.ParseChatID(cmd.ChatID)
		if err != nil {
			g.reply(cmd, "could not register this chat")
			return
		}
		tg.RegisterChat(chatID)
		g.reply(cmd, "registered, news will be delivered here")

	case bus.CommandFetch:
		if name := strings.TrimSpace(cmd.Arg); name != "" {
			g.fetchNamed(cmd, name)
			return
		}
		g.sched.Trigger()
		g.reply(cmd, "fetch cycle triggered")
	}
}

// fetchNamed requests a cycle for one named adapter. The fetch itself runs
// on the scheduler loop; adapters and their stores are only ever touched by
// one cycle at a time, so the command path must not call them directly.
func (g *Gateway) fetchNamed(cmd bus.Command, name string) {
	for _, a := range g.adapters {
		if a.Name() != name {
			continue
		}
		if !a.Enabled() {
			g.reply(cmd, fmt.Sprintf("source %q is disabled", name))
			return
		}
		g.sched.TriggerSource(name)
		g.reply(cmd, fmt.Sprintf("fetch from %q triggered", name))
		return
	}
	g.reply(cmd, fmt.Sprintf("unknown source %q", name))
}

func (g *Gateway) reply(cmd bus.Command, text string) {
	g.bus.PublishOutbound(bus.OutboundMessage{
		Channel: cmd.Channel,
		ChatID:  cmd.ChatID,
		Content: text,
	})
}

// eventLoop logs pipeline events. Events are observability only.
func (g *Gateway) eventLoop(ctx context.Context) {
	for {
		select {
		case ev := <-g.bus.Events():
			log.Printf("[event] %s source=%s %s", ev.Kind, ev.Source, ev.Detail)
		case <-ctx.Done():
			return
		}
	}
}

// persistSourceState writes runtime source changes from the control surface
// back into the config file. Failure is logged, not fatal.
func (g *Gateway) persistSourceState() {
	apply := func(s *config.SourceSettings, snap source.State) {
		s.Enabled = snap.Enabled
		s.Weight = snap.Weight
		if snap.SimilarityThreshold > 0 {
			s.SimilarityThreshold = snap.SimilarityThreshold
		}
	}
	for _, a := range g.adapters {
		snap := a.Snapshot()
		switch snap.Name {
		case "social":
			apply(&g.cfg.Sources.Social.SourceSettings, snap)
		case "legislative":
			apply(&g.cfg.Sources.Legislative.SourceSettings, snap)
		case "neo":
			apply(&g.cfg.Sources.Neo.SourceSettings, snap)
		case "market":
			apply(&g.cfg.Sources.Market.SourceSettings, snap)
		}
	}
	if err := config.SaveConfig(g.cfg); err != nil {
		log.Printf("[gateway] persist config warning: %v", err)
	}
}

// Adapters exposes the source adapters, ordered as configured.
func (g *Gateway) Adapters() []*source.Adapter {
	return g.adapters
}

// Scheduler exposes the running scheduler.
func (g *Gateway) Scheduler() *scheduler.Scheduler {
	return g.sched
}

func (g *Gateway) Shutdown() error {
	if g.ctrl != nil {
		if err := g.ctrl.Stop(context.Background()); err != nil {
			log.Printf("[gateway] control stop warning: %v", err)
		}
	}
	if err := g.channels.StopAll(); err != nil {
		log.Printf("[gateway] channel stop warning: %v", err)
	}
	log.Printf("[gateway] stopped")
	return nil
}
