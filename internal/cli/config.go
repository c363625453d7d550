package cli

import (
	"github.com/spf13/cobra"
	"github.com/synheart/synheart-recorder/internal/config"
)

// GlobalOptions are shared flags that apply across commands.
type GlobalOptions struct {
	Format    string
	NoColor   bool
	Quiet     bool
	Verbose   bool
	LogLevel  string
	LogFormat string
}

var globalOpts = GlobalOptions{
	Format: "text",
}

// loadSettings reads the environment and applies flags the user set.
func loadSettings(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	if globalOpts.LogLevel != "" {
		cfg.LogLevel = globalOpts.LogLevel
	}
	if globalOpts.LogFormat != "" {
		cfg.LogFormat = globalOpts.LogFormat
	}
	if globalOpts.Verbose {
		cfg.LogLevel = "debug"
	}

	flags := cmd.Flags()
	overrides := map[string]*string{
		"addr":         &cfg.HTTPAddr,
		"token":        &cfg.Token,
		"ws-addr":      &cfg.DashboardWSAddr,
		"sse-addr":     &cfg.DashboardSSEAddr,
		"journal":      &cfg.JournalPath,
		"redis-url":    &cfg.RedisURL,
		"redis-stream": &cfg.RedisStream,
		"store-driver": &cfg.StoreDriver,
		"store-dsn":    &cfg.StoreDSN,
		"profile":      &cfg.Profile,
	}
	for name, dst := range overrides {
		if flags.Lookup(name) != nil && flags.Changed(name) {
			*dst, _ = flags.GetString(name)
		}
	}
	if flags.Lookup("no-store") != nil {
		if off, _ := flags.GetBool("no-store"); off {
			cfg.StoreDriver = ""
		}
	}
	if flags.Lookup("events-rps") != nil && flags.Changed("events-rps") {
		cfg.EventsPerSecond, _ = flags.GetFloat64("events-rps")
	}

	return cfg, cfg.Validate()
}

// addStoreFlags registers the session store flags on cmd.
func addStoreFlags(cmd *cobra.Command) {
	cmd.Flags().String("store-driver", "", "Session store driver: sqlite|postgres (env RECORDER_STORE_DRIVER)")
	cmd.Flags().String("store-dsn", "", "Session store DSN or sqlite file path (env RECORDER_STORE_DSN)")
}
