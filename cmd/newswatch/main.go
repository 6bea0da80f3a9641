package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/rnovak/newswatch/internal/config"
	"github.com/rnovak/newswatch/internal/gateway"
)

var rootCmd = &cobra.Command{
	Use:   "newswatch",
	Short: "newswatch - news selection and delivery gateway",
}

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Start the full gateway (sources + channels + scheduler + control API)",
	RunE:  runGateway,
}

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Run a single fetch cycle and exit",
	RunE:  runFetch,
}

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Initialize config and data directory",
	RunE:  runOnboard,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show newswatch status",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(gatewayCmd, fetchCmd, onboardCmd, statusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runGateway(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	gw, err := gateway.New(cfg)
	if err != nil {
		return fmt.Errorf("create gateway: %w", err)
	}

	return gw.Run(context.Background())
}

func runFetch(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	gw, err := gateway.New(cfg)
	if err != nil {
		return fmt.Errorf("create gateway: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	delivered, err := gw.RunOnce(ctx)
	if err != nil {
		return err
	}
	if delivered {
		fmt.Println("Delivered one item.")
	} else {
		fmt.Println("Nothing new this cycle.")
	}
	return nil
}

func runOnboard(cmd *cobra.Command, args []string) error {
	cfgDir := config.ConfigDir()
	cfgPath := config.ConfigPath()

	if err := os.MkdirAll(cfgDir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		cfg := config.DefaultConfig()
		data, _ := json.MarshalIndent(cfg, "", "  ")
		if err := os.WriteFile(cfgPath, data, 0644); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
		fmt.Printf("Created config: %s\n", cfgPath)
	} else {
		fmt.Printf("Config already exists: %s\n", cfgPath)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	fmt.Printf("Data directory ready: %s\n", cfg.DataDir)

	fmt.Println("\nNext steps:")
	fmt.Printf("  1. Edit %s to enable channels and sources\n", cfgPath)
	fmt.Println("  2. Set NEWSWATCH_TELEGRAM_TOKEN (or put the token in the config)")
	fmt.Println("  3. Run 'newswatch fetch' to test a single cycle")

	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Config: error (%v)\n", err)
		return nil
	}

	fmt.Printf("Config: %s\n", config.ConfigPath())
	fmt.Printf("Data dir: %s\n", cfg.DataDir)
	fmt.Printf("Polling: base=%dm max=%dm increment=%ds\n",
		cfg.Scheduler.BaseIntervalMinutes, cfg.Scheduler.MaxIntervalMinutes, cfg.Scheduler.IncrementSeconds)

	fmt.Printf("Telegram: enabled=%v chats=%d\n", cfg.Channels.Telegram.Enabled, len(cfg.Channels.Telegram.ChatIDs))
	fmt.Printf("Webhook: enabled=%v\n", cfg.Channels.Webhook.Enabled)

	printSource := func(name string, s config.SourceSettings, configured bool) {
		state := "disabled"
		if s.Enabled && configured {
			state = "enabled"
		} else if s.Enabled {
			state = "missing credentials"
		}
		fmt.Printf("Source %-12s %s (weight %.1f)\n", name+":", state, s.Weight)
	}
	printSource("social", cfg.Sources.Social.SourceSettings, true)
	printSource("legislative", cfg.Sources.Legislative.SourceSettings, cfg.Sources.Legislative.APIKey != "")
	printSource("neo", cfg.Sources.Neo.SourceSettings, cfg.Sources.Neo.APIKey != "")
	printSource("market", cfg.Sources.Market.SourceSettings, cfg.Sources.Market.APIKey != "")

	if cfg.Embedding.APIKey != "" || cfg.Embedding.Provider == "ollama" {
		fmt.Printf("Embeddings: %s via %s\n", cfg.Embedding.Model, cfg.Embedding.Provider)
	} else {
		fmt.Println("Embeddings: not configured (near-duplicate filter off)")
	}

	if cfg.Control.Enabled {
		fmt.Printf("Control API: http://%s:%d\n", cfg.Control.Host, cfg.Control.Port)
	} else {
		fmt.Println("Control API: disabled")
	}

	return nil
}
