// ABOUTME: Entry point for the chatflow bot engine
// ABOUTME: Wires store, pollers, dispatcher, and the alert job together

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/fatih/color"

	"github.com/2389/chatflow/internal/alerts"
	"github.com/2389/chatflow/internal/config"
	"github.com/2389/chatflow/internal/dedupe"
	"github.com/2389/chatflow/internal/dispatch"
	"github.com/2389/chatflow/internal/features/directions"
	"github.com/2389/chatflow/internal/features/fileshare"
	"github.com/2389/chatflow/internal/features/relay"
	"github.com/2389/chatflow/internal/features/weather"
	"github.com/2389/chatflow/internal/fsm"
	"github.com/2389/chatflow/internal/i18n"
	"github.com/2389/chatflow/internal/ingest"
	"github.com/2389/chatflow/internal/remote"
	"github.com/2389/chatflow/internal/store"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
      _           _    __ _
  ___| |__   __ _| |_ / _| | _____      __
 / __| '_ \ / _' | __| |_| |/ _ \ \ /\ / /
| (__| | | | (_| | |_|  _| | (_) \ V  V /
 \___|_| |_|\__,_|\__|_| |_|\___/ \_/\_/
`

// getConfigPath returns the path to the chatflow config file.
// Priority: CHATFLOW_CONFIG env var > XDG_CONFIG_HOME/chatflow/config.yaml > ~/.config/chatflow/config.yaml
func getConfigPath() string {
	if envPath := os.Getenv("CHATFLOW_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "chatflow", "config.yaml")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: chatflow <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve     Start the bot engine")
		fmt.Println("  migrate   Apply pending schema migrations and exit")
		fmt.Println("  version   Print the version")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "migrate":
		err = runMigrate()
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)
	slog.SetDefault(logger)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:   %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Database: %s\n", cfg.Database.Path)
	green.Print("    ▶ ")
	fmt.Printf("Bots:     %d\n\n", len(cfg.Bots))

	logger.Info("starting chatflow",
		"config", configPath,
		"database", cfg.Database.Path,
		"bots", len(cfg.Bots),
	)

	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	catalog, err := i18n.Load()
	if err != nil {
		return fmt.Errorf("loading locales: %w", err)
	}

	client := remote.NewHTTPClient(cfg.Platform.BaseURL)
	engine := fsm.NewEngine(st, client, catalog)

	cache := dedupe.New(cfg.Dispatch.DedupeTTL, cfg.Dispatch.DedupeMaxSize)
	defer cache.Close()

	dispatcher := dispatch.New(engine, cache, cfg.Dispatch.Workers, cfg.Dispatch.QueueSize)

	var weatherProvider weather.Provider
	weatherToken := ""
	for _, bot := range cfg.Bots {
		m, err := buildMachine(cfg, bot.Feature, catalog)
		if err != nil {
			return err
		}
		dispatcher.Register(bot.Token, m)

		if bot.Feature == "weather" {
			weatherProvider = weather.NewHTTPProvider(cfg.Providers.Weather.BaseURL, cfg.Providers.Weather.APIKey)
			weatherToken = bot.Token
		}
	}

	dispatcher.Start(ctx)

	var wg sync.WaitGroup
	for _, bot := range cfg.Bots {
		poller := ingest.NewPoller(client, st, dispatcher, bot.Token, cfg.Polling.Timeout, cfg.Polling.Backoff)
		wg.Add(1)
		go func() {
			defer wg.Done()
			poller.Run(ctx)
		}()
	}

	if weatherToken != "" && len(cfg.Alerts.Times) > 0 {
		times := make([]alerts.TimeOfDay, 0, len(cfg.Alerts.Times))
		for _, raw := range cfg.Alerts.Times {
			tod, err := alerts.ParseTimeOfDay(raw)
			if err != nil {
				return fmt.Errorf("parsing alert time: %w", err)
			}
			times = append(times, tod)
		}

		job := alerts.NewJob(st, client, weatherProvider, catalog, weatherToken, times, cfg.Alerts.PoolSize)
		wg.Add(1)
		go func() {
			defer wg.Done()
			job.Run(ctx)
		}()
	}

	<-ctx.Done()
	logger.Info("shutting down")

	wg.Wait()
	dispatcher.Stop()

	logger.Info("shutdown complete")
	return nil
}

// buildMachine constructs the conversation machine for one configured
// feature.
func buildMachine(cfg *config.Config, feature string, catalog *i18n.Catalog) (*fsm.Machine, error) {
	switch feature {
	case "weather":
		provider := weather.NewHTTPProvider(cfg.Providers.Weather.BaseURL, cfg.Providers.Weather.APIKey)
		return weather.New(provider, catalog), nil
	case "directions":
		return directions.New(directions.NewHTTPProvider(cfg.Providers.Directions.BaseURL)), nil
	case "files":
		return fileshare.New(), nil
	case "relay":
		return relay.New(), nil
	default:
		return nil, fmt.Errorf("unknown feature %q", feature)
	}
}

func runMigrate() error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Opening the store applies any pending migrations.
	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("migrating: %w", err)
	}
	if err := st.Close(); err != nil {
		return err
	}

	fmt.Println("migrations applied")
	return nil
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = &colorHandler{
			level: level,
		}
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	mu     sync.Mutex
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder

	// Format timestamp
	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	// Colorize level
	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	// Print message
	buf.WriteString(r.Message)

	// Print handler-level attrs first (from WithAttrs)
	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

	// Print record attrs
	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")
	fmt.Print(buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}
