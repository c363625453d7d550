package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "synheart-recorder",
	Short: "Synheart Recorder - capture user sessions and turn them into tests",
	Long: `Synheart Recorder captures user interactions, commands, navigation,
window changes and outbound HTTP calls into ordered sessions.

Recorded sessions can be streamed to dashboards, stored, and exported as
structured data (json, ndjson, yaml, protobuf) or as replayable test code
(gotest, xunit).`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&globalOpts.Format, "output", "o", globalOpts.Format, "Output format for listings: text|json")
	flags.BoolVar(&globalOpts.NoColor, "no-color", false, "Disable colored output")
	flags.BoolVarP(&globalOpts.Quiet, "quiet", "q", false, "Suppress status output")
	flags.BoolVarP(&globalOpts.Verbose, "verbose", "v", false, "Verbose output and debug logging")
	flags.StringVar(&globalOpts.LogLevel, "log-level", "", "Log level: debug|info|warn|error (env RECORDER_LOG_LEVEL)")
	flags.StringVar(&globalOpts.LogFormat, "log-format", "", "Log format: text|json (env RECORDER_LOG_FORMAT)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(proxyCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(formatsCmd)
	rootCmd.AddCommand(doctorCmd)
	rootCmd.AddCommand(versionCmd)
}
