package cli

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/synheart/synheart-recorder/internal/config"
	"github.com/synheart/synheart-recorder/internal/export"
	"github.com/synheart/synheart-recorder/internal/hub"
	"github.com/synheart/synheart-recorder/internal/logging"
	"github.com/synheart/synheart-recorder/internal/metrics"
	"github.com/synheart/synheart-recorder/internal/models"
	"github.com/synheart/synheart-recorder/internal/recorder"
	"github.com/synheart/synheart-recorder/internal/session"
	"github.com/synheart/synheart-recorder/internal/store"
)

const storeTimeout = 10 * time.Second

func generateToken() (string, error) {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return "sh_" + hex.EncodeToString(bytes), nil
}

// signalContext is cancelled on interrupt or SIGTERM.
func signalContext(ui *UI) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigChan:
			ui.Infof("\n⏹  Received interrupt signal, shutting down...\n")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()
	return ctx, cancel
}

func newLogger(cfg *config.Config) *slog.Logger {
	return logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)
}

// recorderRuntime is the hub plus the sinks a long-running command wires
// around it.
type recorderRuntime struct {
	logger    *slog.Logger
	metrics   *metrics.Metrics
	hub       *hub.Hub
	store     *store.Store
	journal   *recorder.Journal
	plugins   []*export.PluginExporter
	followers sync.WaitGroup
}

// newRecorderRuntime builds the hub and attaches the store and journal
// configured in cfg. Plugins are registered as extra export formats.
func newRecorderRuntime(ctx context.Context, cfg *config.Config, logger *slog.Logger, pluginPaths []string) (*recorderRuntime, error) {
	rt := &recorderRuntime{logger: logger, metrics: metrics.New()}

	recording := models.DefaultConfiguration()
	if cfg.Profile != "" {
		profile, err := config.LoadRecordingProfile(cfg.Profile)
		if err != nil {
			return nil, err
		}
		recording = profile
	}

	registry, plugins, err := buildRegistry(ctx, pluginPaths)
	if err != nil {
		return nil, err
	}
	rt.plugins = plugins

	rt.hub = hub.New(
		hub.WithLogger(logger),
		hub.WithMetrics(rt.metrics),
		hub.WithExporters(registry),
		hub.WithEnvironment(models.CaptureEnvironment(cfg.AppName, cfg.AppVersion)),
		hub.WithConfiguration(recording),
	)

	if cfg.StoreDriver != "" {
		st, err := store.Open(ctx, cfg.StoreDriver, cfg.StoreDSN, logger)
		if err != nil {
			rt.Close()
			return nil, err
		}
		rt.store = st
		rt.hub.OnSessionFinished(st.SaveFinished(context.Background(), storeTimeout))
	}

	if cfg.JournalPath != "" {
		j, err := recorder.NewJournal(cfg.JournalPath)
		if err != nil {
			rt.Close()
			return nil, err
		}
		rt.journal = j
		rt.hub.OnSessionFinished(func(s *session.Session) {
			if err := j.WriteSession(s.Info()); err != nil {
				logger.Error("failed to journal session", "session_id", s.ID(), "error", err)
			}
		})
	}

	return rt, nil
}

// follow starts the journal writer, if configured. It runs until the hub
// is closed so entries recorded during shutdown still reach the journal.
func (rt *recorderRuntime) follow() {
	if rt.journal == nil {
		return
	}
	ch, unsubscribe := rt.hub.Subscribe(1024)
	rt.followers.Add(1)
	go func() {
		defer rt.followers.Done()
		defer unsubscribe()
		if err := rt.journal.Follow(context.Background(), ch, nil); err != nil {
			rt.logger.Error("journal stopped", "error", err)
		}
	}()
}

// Close stops the hub, waits for the journal to catch up and releases
// every sink.
func (rt *recorderRuntime) Close() {
	if rt.hub != nil {
		rt.hub.Close()
	}
	rt.followers.Wait()
	if rt.journal != nil {
		if err := rt.journal.Close(); err != nil {
			rt.logger.Warn("failed to close journal", "error", err)
		}
	}
	if rt.store != nil {
		rt.store.Close()
	}
	for _, p := range rt.plugins {
		p.Close(context.Background())
	}
}

// buildRegistry returns the default exporters plus any wasm plugins.
func buildRegistry(ctx context.Context, pluginPaths []string) (*export.Registry, []*export.PluginExporter, error) {
	registry := export.DefaultRegistry()
	var plugins []*export.PluginExporter
	for _, path := range pluginPaths {
		p, err := export.LoadPlugin(ctx, path, "")
		if err != nil {
			for _, loaded := range plugins {
				loaded.Close(ctx)
			}
			return nil, nil, fmt.Errorf("failed to load plugin %s: %w", path, err)
		}
		registry.Register(p)
		plugins = append(plugins, p)
	}
	return registry, plugins, nil
}
