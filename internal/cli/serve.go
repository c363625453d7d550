package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/synheart/synheart-recorder/internal/publish"
	"github.com/synheart/synheart-recorder/internal/server"
	"github.com/synheart/synheart-recorder/internal/transport"
)

var (
	serveStart   string
	serveGzip    bool
	servePlugins []string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the recording hub with its HTTP control API",
	Long: `Runs a recording hub behind an HTTP control API. Clients start, stop,
pause and resume recording, post events, and export sessions over HTTP.

Recorded entries can be streamed to dashboards over WebSocket or SSE,
mirrored to a Redis stream, journaled to NDJSON, and finished sessions are
saved to the session store.

Examples:
  synheart-recorder serve
  synheart-recorder serve --addr 0.0.0.0:8790 --token mysecrettoken
  synheart-recorder serve --ws-addr 127.0.0.1:8791 --sse-addr 127.0.0.1:8792
  synheart-recorder serve --start "Checkout flow" --journal session.ndjson`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("addr", "", "Control API address (env RECORDER_HTTP_ADDR)")
	serveCmd.Flags().String("token", "", "Static bearer token (auto-generated if not provided)")
	serveCmd.Flags().String("ws-addr", "", "WebSocket dashboard address (env RECORDER_DASHBOARD_WS_ADDR)")
	serveCmd.Flags().String("sse-addr", "", "SSE dashboard address (env RECORDER_DASHBOARD_SSE_ADDR)")
	serveCmd.Flags().String("journal", "", "Append recorded entries to an NDJSON journal")
	serveCmd.Flags().String("redis-url", "", "Mirror entries to a Redis stream (env RECORDER_REDIS_URL)")
	serveCmd.Flags().String("redis-stream", "", "Redis stream name (env RECORDER_REDIS_STREAM)")
	serveCmd.Flags().String("profile", "", "Recording configuration YAML profile")
	serveCmd.Flags().Float64("events-rps", 0, "Rate limit for POST /v1/events, 0 disables (env RECORDER_EVENTS_RPS)")
	serveCmd.Flags().Bool("no-store", false, "Do not save finished sessions")
	addStoreFlags(serveCmd)
	serveCmd.Flags().StringVar(&serveStart, "start", "", "Start recording immediately with this session name")
	serveCmd.Flags().BoolVar(&serveGzip, "gzip", true, "Accept gzip-compressed request bodies")
	serveCmd.Flags().StringArrayVar(&servePlugins, "plugin", nil, "Wasm exporter plugin to register (repeatable)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	ui := newUI(cmd)
	logger := newLogger(cfg)

	token := cfg.Token
	if token == "" {
		generated, err := generateToken()
		if err != nil {
			return fmt.Errorf("failed to generate token: %w", err)
		}
		token = generated
		ui.Warnf("No token configured, generated one for this run\n")
	}

	ctx, cancel := signalContext(ui)
	defer cancel()

	rt, err := newRecorderRuntime(ctx, cfg, logger, servePlugins)
	if err != nil {
		return err
	}
	defer rt.Close()
	rt.follow()

	var dashboards []string
	if cfg.DashboardWSAddr != "" {
		ws := transport.NewWebSocketServer(cfg.DashboardWSAddr, logger)
		if err := ws.Listen(); err != nil {
			return fmt.Errorf("websocket dashboard: %w", err)
		}
		ch, unsubscribe := rt.hub.Subscribe(256)
		defer unsubscribe()
		go ws.Follow(ctx, ch)
		go func() {
			if err := ws.Start(ctx); err != nil {
				logger.Error("WebSocket server error", "error", err)
			}
		}()
		dashboards = append(dashboards, ws.Address())
	}
	if cfg.DashboardSSEAddr != "" {
		sse := transport.NewSSEServer(cfg.DashboardSSEAddr, logger)
		if err := sse.Listen(); err != nil {
			return fmt.Errorf("sse dashboard: %w", err)
		}
		ch, unsubscribe := rt.hub.Subscribe(256)
		defer unsubscribe()
		go sse.Follow(ctx, ch)
		go func() {
			if err := sse.Start(ctx); err != nil {
				logger.Error("SSE server error", "error", err)
			}
		}()
		dashboards = append(dashboards, sse.Address())
	}

	if cfg.RedisURL != "" {
		pub, err := publish.NewStreamPublisher(ctx, cfg.RedisURL, cfg.RedisStream, logger)
		if err != nil {
			return err
		}
		defer pub.Close()
		ch, unsubscribe := rt.hub.Subscribe(1024)
		defer unsubscribe()
		go pub.Follow(ctx, ch)
	}

	srv := server.New(server.Config{
		Addr:            cfg.HTTPAddr,
		Token:           token,
		AcceptGzip:      serveGzip,
		EventsPerSecond: cfg.EventsPerSecond,
	}, rt.hub, rt.metrics, logger)

	if serveStart != "" {
		rt.hub.Start(serveStart)
	}

	printServeBanner(ui, srv.Address(), token, cfg.StoreDriver, cfg.JournalPath, dashboards)

	if err := srv.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("server error: %w", err)
	}

	if info, ok := rt.hub.Stop(); ok {
		ui.Infof("\n%s %s (%d events)\n", ui.green("✓ Session saved:"), info.Name, info.EventCount)
	}

	stats := srv.GetStats()
	ui.Infof("\n📊 Request Stats:\n")
	ui.Infof("   Received:   %d\n", stats.TotalReceived)
	ui.Infof("   Duplicates: %d\n", stats.TotalDuplicates)
	ui.Infof("   Rejected:   %d\n", stats.TotalRejected)
	ui.Infof("   Errors:     %d\n", stats.TotalErrors)
	ui.Infof("\n✓ Shutdown complete\n")
	return nil
}

func printServeBanner(ui *UI, address, token, storeDriver, journal string, dashboards []string) {
	ui.Infof("\n")
	ui.Infof("╔═══════════════════════════════════════════════════════════════╗\n")
	ui.Infof("║                 %s                    ║\n", ui.bold("🎬 Synheart Recorder Started"))
	ui.Infof("╚═══════════════════════════════════════════════════════════════╝\n")
	ui.Infof("\n")
	ui.Infof("  Control API: %s/v1/recording\n", address)
	ui.Infof("  Token:       %s\n", token)
	for _, d := range dashboards {
		ui.Infof("  Dashboard:   %s\n", d)
	}
	if storeDriver != "" {
		ui.Infof("  Store:       %s\n", storeDriver)
	}
	if journal != "" {
		ui.Infof("  Journal:     %s\n", journal)
	}
	ui.Infof("\n")
	ui.Infof("───────────────────────────────────────────────────────────────────\n")
	ui.Infof("  curl -X POST -H 'Authorization: Bearer %s' %s/v1/recording/start\n", token, address)
	ui.Infof("───────────────────────────────────────────────────────────────────\n")
	ui.Infof("\n")
	ui.Infof("Waiting for events... (Press Ctrl+C to stop)\n")
	ui.Infof("\n")
}
