package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/synheart/synheart-recorder/internal/models"
	"github.com/synheart/synheart-recorder/internal/session"
	"github.com/synheart/synheart-recorder/internal/store"
)

var showEvents bool

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect stored sessions",
	Long:  `Lists, shows and deletes sessions saved in the session store.`,
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored sessions, newest first",
	Args:  cobra.NoArgs,
	RunE:  runSessionsList,
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show a stored session",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsShow,
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete <session-id>",
	Short: "Delete a stored session",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsDelete,
}

func init() {
	addStoreFlags(sessionsListCmd)
	addStoreFlags(sessionsShowCmd)
	addStoreFlags(sessionsDeleteCmd)
	sessionsShowCmd.Flags().BoolVar(&showEvents, "events", false, "List every recorded event")

	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsShowCmd)
	sessionsCmd.AddCommand(sessionsDeleteCmd)
}

func openStore(ctx context.Context, cmd *cobra.Command) (*store.Store, error) {
	cfg, err := loadSettings(cmd)
	if err != nil {
		return nil, err
	}
	if cfg.StoreDriver == "" {
		return nil, fmt.Errorf("no session store configured (set --store-driver or RECORDER_STORE_DRIVER)")
	}
	return store.Open(ctx, cfg.StoreDriver, cfg.StoreDSN, newLogger(cfg))
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	st, err := openStore(ctx, cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	infos, err := st.List(ctx)
	if err != nil {
		return err
	}
	return writeSessionList(cmd.OutOrStdout(), infos, time.Now())
}

func writeSessionList(out io.Writer, infos []session.Info, now time.Time) error {
	if globalOpts.Format == "json" {
		if infos == nil {
			infos = []session.Info{}
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(infos)
	}

	if len(infos) == 0 {
		fmt.Fprintln(out, "No sessions recorded yet.")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSTARTED\tDURATION\tEVENTS")
	for _, info := range infos {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			shortID(info.SessionID),
			info.Name,
			formatStarted(info.StartTime, now),
			formatDuration(info),
			humanize.Comma(int64(info.EventCount)),
		)
	}
	return tw.Flush()
}

func runSessionsShow(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	st, err := openStore(ctx, cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	info, events, err := st.Load(ctx, args[0])
	if err != nil {
		return err
	}

	if globalOpts.Format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{"session": info, "events": events})
	}
	writeSessionDetail(newUI(cmd), info, events, showEvents)
	return nil
}

func writeSessionDetail(ui *UI, info session.Info, events []models.Event, withEvents bool) {
	ui.Printf("%s\n", ui.bold(info.Name))
	ui.Printf("  ID:          %s\n", info.SessionID)
	ui.Printf("  Started:     %s\n", info.StartTime.Local().Format(time.RFC1123))
	ui.Printf("  Duration:    %s\n", formatDuration(info))
	ui.Printf("  Events:      %d\n", info.EventCount)
	if info.DroppedWhilePaused > 0 {
		ui.Printf("  Dropped:     %d %s\n", info.DroppedWhilePaused, ui.dim("(while paused)"))
	}
	ui.Printf("  Machine:     %s (%s)\n", info.Environment.MachineName, info.Environment.OSVersion)
	if info.Environment.ApplicationName != "" {
		ui.Printf("  Application: %s %s\n", info.Environment.ApplicationName, info.Environment.ApplicationVersion)
	}
	for _, issue := range info.ConfigIssues {
		ui.Printf("  %s %s\n", ui.yellow("config:"), issue.Error())
	}

	counts := countTypes(events)
	if len(events) > 0 {
		ui.Printf("\n")
		for _, t := range session.SortedTypes(counts) {
			share := float64(counts[t]) / float64(len(events))
			ui.Printf("  %-10s %s %d\n", t, renderBar(share, 20), counts[t])
		}
	}

	if withEvents {
		ui.Printf("\n")
		for _, e := range events {
			line := describeEvent(e)
			if c, ok := e.(models.CommandEvent); ok && !c.IsSuccess {
				line = ui.red(line)
			}
			ui.Printf("%s\n", line)
		}
	}
}

func runSessionsDelete(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	st, err := openStore(ctx, cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.Delete(ctx, args[0]); err != nil {
		return err
	}
	ui := newUI(cmd)
	ui.Infof("%s deleted %s\n", ui.green("✓"), args[0])
	return nil
}
