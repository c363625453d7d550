package cli

import (
	"context"
	"net"
	"runtime"
	"time"

	"github.com/spf13/cobra"
	"github.com/synheart/synheart-recorder/internal/config"
	"github.com/synheart/synheart-recorder/internal/publish"
	"github.com/synheart/synheart-recorder/internal/store"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check environment and print connection info",
	Long:  `Validates configuration, checks port availability and the session store, and provides connection examples.`,
	RunE:  runDoctor,
}

func runDoctor(cmd *cobra.Command, args []string) error {
	ui := newUI(cmd)
	ui.Printf("🏥 Synheart Recorder Environment Check\n\n")

	ui.Printf("Go Version:        %s\n", runtime.Version())
	ui.Printf("OS/Arch:           %s/%s\n\n", runtime.GOOS, runtime.GOARCH)

	cfg, err := config.Load()
	if err != nil {
		ui.Printf("❌ Configuration: %v\n\n", err)
		return nil
	}
	ui.Printf("✅ Configuration loaded (log level %s, format %s)\n", cfg.LogLevel, cfg.LogFormat)

	if cfg.Profile != "" {
		if _, err := config.LoadRecordingProfile(cfg.Profile); err != nil {
			ui.Printf("❌ Recording profile: %v\n", err)
		} else {
			ui.Printf("✅ Recording profile: %s\n", cfg.Profile)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if cfg.StoreDriver != "" {
		st, err := store.Open(ctx, cfg.StoreDriver, cfg.StoreDSN, nil)
		if err != nil {
			ui.Printf("❌ Session store (%s): %v\n", cfg.StoreDriver, err)
		} else {
			infos, _ := st.List(ctx)
			ui.Printf("✅ Session store (%s): %d sessions\n", cfg.StoreDriver, len(infos))
			st.Close()
		}
	}

	if cfg.RedisURL != "" {
		pub, err := publish.NewStreamPublisher(ctx, cfg.RedisURL, cfg.RedisStream, nil)
		if err != nil {
			ui.Printf("❌ Redis: %v\n", err)
		} else {
			ui.Printf("✅ Redis reachable, stream %s\n", cfg.RedisStream)
			pub.Close()
		}
	}
	ui.Printf("\n")

	for _, addr := range []string{cfg.HTTPAddr, cfg.DashboardWSAddr, cfg.DashboardSSEAddr} {
		if addr == "" {
			continue
		}
		if isPortAvailable(addr) {
			ui.Printf("✅ %s is available\n", addr)
		} else {
			ui.Printf("⚠️  %s is in use\n", addr)
			ui.Printf("   Use --addr, --ws-addr or --sse-addr to choose another address\n")
		}
	}
	ui.Printf("\n")

	ui.Printf("📡 Connection Examples:\n\n")

	ui.Printf("Control API:\n")
	ui.Printf("  curl -X POST -H 'Authorization: Bearer $TOKEN' http://%s/v1/recording/start -d '{\"name\":\"Login\"}'\n", cfg.HTTPAddr)
	ui.Printf("  curl -H 'Authorization: Bearer $TOKEN' 'http://%s/v1/export?format=gotest'\n\n", cfg.HTTPAddr)

	ui.Printf("JavaScript dashboard:\n")
	ui.Printf("  const ws = new WebSocket('ws://localhost:8791/ws');\n")
	ui.Printf("  ws.onmessage = (msg) => {\n")
	ui.Printf("    const n = JSON.parse(msg.data);\n")
	ui.Printf("    if (n.kind === 'entryRecorded') console.log(n.event);\n")
	ui.Printf("  };\n\n")

	ui.Printf("Go:\n")
	ui.Printf("  client := capture.NewClient(h)\n")
	ui.Printf("  resp, err := client.Get(\"https://api.example.com/orders\")\n\n")

	ui.Printf("✅ Environment check complete\n")
	return nil
}

func isPortAvailable(addr string) bool {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return false
	}
	listener.Close()
	return true
}
