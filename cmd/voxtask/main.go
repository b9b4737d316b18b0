// Command voxtask is the main entry point for the voxtask completion server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"

	"github.com/voxtask/voxtask/internal/app"
	"github.com/voxtask/voxtask/internal/config"
	"github.com/voxtask/voxtask/internal/health"
	"github.com/voxtask/voxtask/internal/ingress"
	"github.com/voxtask/voxtask/internal/observe"
	"github.com/voxtask/voxtask/internal/task"
	"github.com/voxtask/voxtask/pkg/provider/embeddings"
	oaembed "github.com/voxtask/voxtask/pkg/provider/embeddings/openai"
	"github.com/voxtask/voxtask/pkg/provider/llm"
	"github.com/voxtask/voxtask/pkg/provider/llm/anyllm"
)

// version is overridden at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	tasksPath := flag.String("tasks", "", "path to a checklist JSON file loaded at startup")
	flag.Parse()

	// ── Configuration (watched for runtime threshold changes) ─────────────────
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		if old.Matching.Threshold != new.Matching.Threshold {
			slog.Info("matching threshold updated",
				"old", old.Matching.Threshold,
				"new", new.Matching.Threshold,
			)
		}
	})
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "voxtask: config file %q not found (copy configs/example.yaml to get started)\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "voxtask: %v\n", err)
		}
		return 1
	}
	defer watcher.Stop()
	cfg := watcher.Current()

	// ── Logger ────────────────────────────────────────────────────────────────
	slog.SetDefault(newLogger(cfg.Server.LogLevel))
	slog.Info("voxtask starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Metrics ───────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "voxtask",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise metrics", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("metrics shutdown error", "err", err)
		}
	}()

	metrics, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		slog.Error("failed to create metric instruments", "err", err)
		return 1
	}

	// ── Providers ─────────────────────────────────────────────────────────────
	providers, err := buildProviders(cfg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Checklist ─────────────────────────────────────────────────────────────
	store := task.NewMemStore()
	if *tasksPath != "" {
		tasks, err := task.LoadFile(*tasksPath)
		if err != nil {
			slog.Error("failed to load checklist", "err", err)
			return 1
		}
		store.Put(tasks...)
		slog.Info("checklist loaded", "path", *tasksPath, "tasks", len(tasks))
	}

	// ── Application ───────────────────────────────────────────────────────────
	application, err := app.New(cfg, providers,
		app.WithTaskStore(store),
		app.WithThresholdFunc(watcher.Threshold),
		app.WithMetrics(metrics),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// ── HTTP server: ingress, health, metrics ─────────────────────────────────
	mux := http.NewServeMux()
	mux.Handle("/transcripts", ingress.NewHandler(application))
	mux.Handle("GET /metrics", promhttp.Handler())
	checkers := []health.Checker{
		{Name: "checklist", Check: func(context.Context) error {
			if len(store.ListOpen()) == 0 {
				return errors.New("no open tasks loaded")
			}
			return nil
		}},
	}
	for name, b := range application.RemoteBreakers() {
		checkers = append(checkers, health.BreakerClosed(name, b))
	}
	health.New(checkers...).Register(mux)

	srv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("http server listening", "addr", cfg.Server.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "err", err)
			stop()
		}
	}()

	slog.Info("server ready, press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("shutdown signal received, stopping…")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http shutdown error", "err", err)
	}

	slog.Info("goodbye")
	return 0
}

// buildProviders instantiates the remote scoring providers named in cfg.
// Either slot may be empty; the scorer degrades to its lexical path.
func buildProviders(cfg *config.Config) (*app.Providers, error) {
	ps := &app.Providers{}

	if name := cfg.Providers.LLM.Name; name != "" {
		p, err := buildLLM(name, cfg.Providers.LLM)
		if err != nil {
			return nil, fmt.Errorf("create llm provider %q: %w", name, err)
		}
		ps.LLM = p
		slog.Info("provider created", "kind", "llm", "name", name, "model", cfg.Providers.LLM.Model)
	}

	if name := cfg.Providers.Embeddings.Name; name != "" {
		p, err := buildEmbeddings(name, cfg.Providers.Embeddings)
		if err != nil {
			return nil, fmt.Errorf("create embeddings provider %q: %w", name, err)
		}
		ps.Embeddings = p
		slog.Info("provider created", "kind", "embeddings", "name", name, "model", cfg.Providers.Embeddings.Model)
	}

	return ps, nil
}

// buildLLM constructs an LLM provider from a config entry. All supported
// backends share the any-llm pattern: optional APIKey + optional BaseURL
// (ollama is a local server and only uses BaseURL).
func buildLLM(name string, entry config.ProviderEntry) (llm.Provider, error) {
	var opts []anyllmlib.Option
	if entry.APIKey != "" && name != "ollama" {
		opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
	}
	if entry.BaseURL != "" {
		opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
	}
	return anyllm.New(name, entry.Model, opts...)
}

// buildEmbeddings constructs an embeddings provider from a config entry.
func buildEmbeddings(name string, entry config.ProviderEntry) (embeddings.Provider, error) {
	switch name {
	case "openai":
		var opts []oaembed.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaembed.WithBaseURL(entry.BaseURL))
		}
		return oaembed.New(entry.APIKey, entry.Model, opts...)
	default:
		return nil, fmt.Errorf("unknown embeddings provider %q", name)
	}
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
