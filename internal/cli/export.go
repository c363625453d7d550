package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/synheart/synheart-recorder/internal/models"
	"github.com/synheart/synheart-recorder/internal/recorder"
	"github.com/synheart/synheart-recorder/internal/session"
	"github.com/synheart/synheart-recorder/internal/store"
)

var (
	exportSession string
	exportJournal string
	exportFormats []string
	exportOut     string
	exportName    string
	exportPlugins []string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a recorded session",
	Long: `Renders a recorded session as structured data or test code.

The session is read from the session store (--session) or from an NDJSON
journal (--journal). Session ids may be abbreviated to a unique prefix.

Examples:
  synheart-recorder export --session 3f2a --format gotest
  synheart-recorder export --journal session.ndjson --format json --format xunit --out ./generated
  synheart-recorder export --session 3f2a --plugin ./csv.wasm --format csv`,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVar(&exportSession, "session", "", "Session id or unique prefix")
	exportCmd.Flags().StringVar(&exportJournal, "journal", "", "Read the session from an NDJSON journal instead of the store")
	exportCmd.Flags().StringArrayVar(&exportFormats, "format", []string{"json"}, "Export format (repeatable)")
	exportCmd.Flags().StringVar(&exportOut, "out", "", "Output directory (stdout if not set)")
	exportCmd.Flags().StringVar(&exportName, "name", "", "Output file name, with a single --format")
	exportCmd.Flags().StringArrayVar(&exportPlugins, "plugin", nil, "Wasm exporter plugin to register (repeatable)")
	addStoreFlags(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	if exportSession == "" && exportJournal == "" {
		return fmt.Errorf("either --session or --journal is required")
	}
	if exportName != "" && len(exportFormats) > 1 {
		return fmt.Errorf("--name can only be used with a single --format")
	}

	cfg, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	ctx := context.Background()
	logger := newLogger(cfg)

	registry, plugins, err := buildRegistry(ctx, exportPlugins)
	if err != nil {
		return err
	}
	defer func() {
		for _, p := range plugins {
			p.Close(ctx)
		}
	}()
	for _, f := range exportFormats {
		if _, err := registry.Get(f); err != nil {
			return err
		}
	}

	var (
		info   session.Info
		events []models.Event
	)
	if exportJournal != "" {
		info, events, err = loadFromJournal(exportJournal, exportSession)
	} else {
		if cfg.StoreDriver == "" {
			return fmt.Errorf("no session store configured (set --store-driver or RECORDER_STORE_DRIVER)")
		}
		var st *store.Store
		st, err = store.Open(ctx, cfg.StoreDriver, cfg.StoreDSN, logger)
		if err != nil {
			return err
		}
		defer st.Close()
		info, events, err = st.Load(ctx, exportSession)
	}
	if err != nil {
		return err
	}

	writer, err := artifactWriter(exportOut, exportName, cmd)
	if err != nil {
		return err
	}
	defer writer.Close()

	ui := newUI(cmd)
	for _, f := range exportFormats {
		ui.Debugf("rendering %s (%d events)\n", f, len(events))
		a, err := registry.Render(f, events, &info)
		if err != nil {
			return err
		}
		if err := writer.Write(a); err != nil {
			return fmt.Errorf("failed to write %s export: %w", a.Format, err)
		}
		if exportOut != "" {
			name := exportName
			if name == "" {
				name = a.FileName()
			}
			ui.Infof("%s %s\n", ui.green("✓"), name)
		}
	}
	return nil
}

// loadFromJournal picks a session from a journal. Without an id the journal
// must hold exactly one session.
func loadFromJournal(path, id string) (session.Info, []models.Event, error) {
	sessions, err := recorder.LoadJournal(path)
	if err != nil {
		return session.Info{}, nil, err
	}
	if id != "" {
		s, err := recorder.FindSession(sessions, id)
		if err != nil {
			return session.Info{}, nil, err
		}
		return s.Info, s.Events, nil
	}

	switch len(sessions) {
	case 0:
		return session.Info{}, nil, fmt.Errorf("journal %s contains no sessions", path)
	case 1:
		return sessions[0].Info, sessions[0].Events, nil
	}
	ids := make([]string, len(sessions))
	for i, s := range sessions {
		ids[i] = s.Info.SessionID
	}
	return session.Info{}, nil, fmt.Errorf("journal holds %d sessions, choose one with --session: %s", len(sessions), strings.Join(ids, ", "))
}
