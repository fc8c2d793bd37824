// Package app provides the main application struct for centralized dependency management
// and lifecycle control of the lingogate server.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"lingogate/config"
	"lingogate/internal/httpclient"
	"lingogate/internal/observability"
	"lingogate/internal/providers"
	"lingogate/internal/providers/anthropic"
	"lingogate/internal/providers/azure"
	"lingogate/internal/providers/elevenlabs"
	"lingogate/internal/providers/mistral"
	"lingogate/internal/providers/openai"
	"lingogate/internal/server"
	"lingogate/internal/sessions"
	"lingogate/internal/storage"
	"lingogate/internal/usage"
)

// App represents the main application with all its dependencies.
// It provides centralized lifecycle management for all components.
type App struct {
	config   *config.Config
	logger   *slog.Logger
	metrics  *observability.Metrics
	storage  storage.Storage
	sessions sessions.Store
	usage    usage.Recorder
	usageDB  usage.Store
	server   *server.Server

	shutdownMu sync.Mutex
	shutdown   bool
}

// New builds every upstream adapter, the sessions store and the HTTP server
// once, injecting the shared HTTP client into each adapter.
// The caller must call Shutdown to release resources.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("app config is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	app := &App{config: cfg, logger: logger}
	if cfg.Metrics.Enabled {
		app.metrics = observability.NewMetrics()
	}

	store, err := app.openSessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize sessions store: %w", err)
	}
	app.sessions = store

	if err := app.openUsage(); err != nil {
		if closeErr := app.closeStores(); closeErr != nil {
			logger.Error("failed to close stores after usage init error", "error", closeErr)
		}
		return nil, fmt.Errorf("failed to initialize usage tracking: %w", err)
	}

	app.logStartupInfo()

	app.server = server.New(app.backends(), &server.Config{
		MasterKey:        cfg.Server.MasterKey,
		MetricsEnabled:   cfg.Metrics.Enabled,
		MetricsEndpoint:  cfg.Metrics.Endpoint,
		BodySizeLimit:    cfg.Server.BodySizeLimit,
		CORSAllowOrigins: cfg.Server.CORSAllowOrigins,
		Metrics:          app.metrics,
		Logger:           logger,
	})
	return app, nil
}

// openSessions connects the configured database. No storage type leaves the
// sink disabled so the rest of the gateway still serves.
func (a *App) openSessions(ctx context.Context) (sessions.Store, error) {
	sc := a.config.Storage
	if sc.Type == "" {
		return sessions.DisabledStore{}, nil
	}

	st, err := storage.New(ctx, storage.Config{
		Type:       sc.Type,
		SQLite:     storage.SQLiteConfig{Path: sc.SQLite.Path},
		PostgreSQL: storage.PostgreSQLConfig{URL: sc.PostgreSQL.URL, MaxConns: sc.PostgreSQL.MaxConns},
	})
	if err != nil {
		return nil, err
	}
	store, err := sessions.NewStore(st)
	if err != nil {
		if closeErr := st.Close(); closeErr != nil {
			return nil, fmt.Errorf("%w (also: storage close error: %v)", err, closeErr)
		}
		return nil, err
	}
	a.storage = st
	return store, nil
}

// openUsage starts the usage recorder on the sessions database. Recording
// needs storage; without it the setting is ignored with a warning.
func (a *App) openUsage() error {
	uc := a.config.Usage
	if !uc.Enabled {
		return nil
	}
	if a.storage == nil {
		a.logger.Warn("usage tracking enabled but no storage configured - usage will not be recorded")
		return nil
	}

	store, err := usage.NewStore(a.storage, uc.RetentionDays)
	if err != nil {
		return err
	}
	a.usageDB = store
	a.usage = usage.NewBufferedRecorder(store, usage.Config{
		BufferSize:    uc.BufferSize,
		FlushInterval: time.Duration(uc.FlushInterval) * time.Second,
		RetentionDays: uc.RetentionDays,
	}, a.logger)
	return nil
}

// backends constructs the provider adapters around one pooled HTTP client.
func (a *App) backends() server.Backends {
	cfg := a.config
	opts := providers.ProviderOptions{
		HTTPClient: httpclient.NewHTTPClient(&httpclient.ClientConfig{
			Timeout:               time.Duration(cfg.HTTP.Timeout) * time.Second,
			ResponseHeaderTimeout: time.Duration(cfg.HTTP.ResponseHeaderTimeout) * time.Second,
		}),
		Hooks: a.metrics.Hooks(),
	}

	oa := openai.New(openai.Config{
		APIKey:       cfg.OpenAI.APIKey,
		BaseURL:      cfg.OpenAI.BaseURL,
		ChatModel:    cfg.OpenAI.ChatModel,
		AssistantID:  cfg.OpenAI.AssistantID,
		PollInterval: time.Duration(cfg.OpenAI.PollIntervalMs) * time.Millisecond,
	}, opts)
	mi := mistral.New(mistral.Config{
		APIKey:  cfg.Mistral.APIKey,
		BaseURL: cfg.Mistral.BaseURL,
		Model:   cfg.Mistral.Model,
	}, opts)
	an := anthropic.New(anthropic.Config{
		APIKey:  cfg.Anthropic.APIKey,
		BaseURL: cfg.Anthropic.BaseURL,
		Model:   cfg.Anthropic.Model,
	}, opts)
	el := elevenlabs.New(elevenlabs.Config{
		APIKey:  cfg.ElevenLabs.APIKey,
		BaseURL: cfg.ElevenLabs.BaseURL,
		Model:   cfg.ElevenLabs.Model,
		Voices:  cfg.ElevenLabs.Voices,
	}, opts)
	az := azure.New(azure.Config{
		Key:    cfg.Azure.Key,
		Region: cfg.Azure.Region,
	}, opts)

	b := server.Backends{
		OpenAIChat:       oa,
		MistralChat:      mi,
		ClaudeChat:       an,
		Assistant:        oa,
		OpenAISpeech:     oa,
		ElevenLabs:       el,
		ElevenLabsStream: el,
		AzureSpeech:      az,
		Transcriber:      oa,
		AzureToken:       az,
		Sessions:         a.sessions,
	}
	if a.usage != nil {
		b.Usage = a.usage
		b.UsageReport = a.usageDB
	}
	return b
}

// Handler exposes the HTTP handler, for tests.
func (a *App) Handler() http.Handler {
	return a.server
}

// Start starts the HTTP server on the given address. It blocks until the
// server stops and returns nil after a graceful shutdown.
func (a *App) Start(addr string) error {
	if a.server == nil {
		return fmt.Errorf("server is not initialized")
	}
	a.logger.Info("starting server", "address", addr)
	if err := a.server.Start(addr); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			a.logger.Info("server stopped gracefully")
			return nil
		}
		return fmt.Errorf("server failed to start: %w", err)
	}
	return nil
}

// Shutdown stops the server and closes the sessions store. It is safe to call more than once.
func (a *App) Shutdown(ctx context.Context) error {
	a.shutdownMu.Lock()
	if a.shutdown {
		a.shutdownMu.Unlock()
		return nil
	}
	a.shutdown = true
	a.shutdownMu.Unlock()

	a.logger.Info("shutting down application...")

	var errs []error

	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			a.logger.Error("server shutdown error", "error", err)
			errs = append(errs, fmt.Errorf("server shutdown: %w", err))
		}
	}

	if err := a.closeStores(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}

	a.logger.Info("application shutdown complete")
	return nil
}

// closeStores flushes the usage recorder, then closes the sessions store and
// the database connection they share.
func (a *App) closeStores() error {
	var errs []error

	if a.usage != nil {
		if err := a.usage.Close(); err != nil {
			a.logger.Error("usage recorder close error", "error", err)
			errs = append(errs, fmt.Errorf("usage close: %w", err))
		}
	}

	if a.sessions != nil {
		if err := a.sessions.Close(); err != nil {
			a.logger.Error("sessions store close error", "error", err)
			errs = append(errs, fmt.Errorf("sessions close: %w", err))
		}
	}

	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			a.logger.Error("storage close error", "error", err)
			errs = append(errs, fmt.Errorf("storage close: %w", err))
		}
	}

	return errors.Join(errs...)
}

func (a *App) logStartupInfo() {
	cfg := a.config

	if cfg.Server.MasterKey == "" {
		a.logger.Warn("MASTER_KEY not set - API routes are unauthenticated")
	} else {
		a.logger.Info("authentication enabled", "mode", "master_key")
	}

	if cfg.Metrics.Enabled {
		a.logger.Info("prometheus metrics enabled", "endpoint", cfg.Metrics.Endpoint)
	} else {
		a.logger.Info("prometheus metrics disabled")
	}

	if cfg.Storage.Type == "" {
		a.logger.Warn("no storage configured - insert-user and update-user are disabled")
	} else {
		a.logger.Info("storage configured", "type", cfg.Storage.Type)
	}

	if a.usage != nil {
		a.logger.Info("usage tracking enabled", "retention_days", cfg.Usage.RetentionDays)
	}

	configured := map[string]bool{
		"openai":     cfg.OpenAI.APIKey != "",
		"mistral":    cfg.Mistral.APIKey != "",
		"anthropic":  cfg.Anthropic.APIKey != "",
		"elevenlabs": cfg.ElevenLabs.APIKey != "",
		"azure":      cfg.Azure.Key != "" && cfg.Azure.Region != "",
	}
	for name, ok := range configured {
		if !ok {
			a.logger.Warn("provider credentials missing; its services will answer 500", "provider", name)
		}
	}
}
