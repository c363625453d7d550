package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/spf13/cobra"
	"github.com/synheart/synheart-recorder/internal/capture"
	"github.com/synheart/synheart-recorder/internal/export"
)

var (
	proxyTarget  string
	proxyListen  string
	proxyName    string
	proxyFormats []string
	proxyOut     string
	proxyTrace   bool
)

var proxyCmd = &cobra.Command{
	Use:   "proxy",
	Short: "Record HTTP traffic through a reverse proxy",
	Long: `Starts a reverse proxy in front of --target and records every proxied
exchange as an API call. Recording stops on Ctrl+C; the session is saved
and optionally exported.

Examples:
  synheart-recorder proxy --target http://localhost:5000
  synheart-recorder proxy --target https://api.example.com --name "Checkout" --export json --export gotest --out ./recordings`,
	RunE: runProxy,
}

func init() {
	proxyCmd.Flags().StringVar(&proxyTarget, "target", "", "Upstream base URL (required)")
	proxyCmd.Flags().StringVar(&proxyListen, "listen", "127.0.0.1:8791", "Proxy listen address")
	proxyCmd.Flags().StringVar(&proxyName, "name", "", "Session name")
	proxyCmd.Flags().StringArrayVar(&proxyFormats, "export", nil, "Export the session in this format on stop (repeatable)")
	proxyCmd.Flags().StringVar(&proxyOut, "out", "", "Directory for exports (stdout if not set)")
	proxyCmd.Flags().BoolVar(&proxyTrace, "trace", false, "Propagate OpenTelemetry trace context upstream")
	proxyCmd.Flags().String("journal", "", "Append recorded entries to an NDJSON journal")
	proxyCmd.Flags().String("profile", "", "Recording configuration YAML profile")
	proxyCmd.Flags().Bool("no-store", false, "Do not save the finished session")
	addStoreFlags(proxyCmd)
	proxyCmd.MarkFlagRequired("target")
}

func runProxy(cmd *cobra.Command, args []string) error {
	target, err := url.Parse(proxyTarget)
	if err != nil || target.Scheme == "" || target.Host == "" {
		return fmt.Errorf("invalid --target %q (expected an absolute URL)", proxyTarget)
	}

	cfg, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	ui := newUI(cmd)
	logger := newLogger(cfg)

	ctx, cancel := signalContext(ui)
	defer cancel()

	rt, err := newRecorderRuntime(ctx, cfg, logger, nil)
	if err != nil {
		return err
	}
	defer rt.Close()
	rt.follow()

	for _, f := range proxyFormats {
		if _, err := rt.hub.Exporters().Get(f); err != nil {
			return err
		}
	}

	opts := []capture.TransportOption{
		capture.WithHTTPLogger(logger),
		capture.WithHTTPMetrics(rt.metrics),
	}
	if proxyTrace {
		opts = append(opts, capture.WithTracing())
	}
	rp := newRecordingProxy(target, capture.NewTransport(rt.hub, opts...))

	server := &http.Server{
		Addr:              proxyListen,
		Handler:           rp,
		ReadHeaderTimeout: 10 * time.Second,
	}

	rt.hub.Start(proxyName)
	ui.Infof("🎬 Recording %s via http://%s (Press Ctrl+C to stop)\n", target, proxyListen)

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("proxy error: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	server.Shutdown(shutdownCtx)

	info, ok := rt.hub.Stop()
	if !ok {
		return nil
	}
	ui.Infof("%s %s: %d API calls\n", ui.green("✓ Session finished"), info.Name, info.EventCount)

	return exportCurrent(rt, proxyFormats, proxyOut, cmd)
}

// newRecordingProxy forwards every request to target through rt.
func newRecordingProxy(target *url.URL, rt http.RoundTripper) *httputil.ReverseProxy {
	rp := httputil.NewSingleHostReverseProxy(target)
	director := rp.Director
	rp.Director = func(r *http.Request) {
		director(r)
		r.Host = target.Host
	}
	rp.Transport = rt
	return rp
}

func exportCurrent(rt *recorderRuntime, formats []string, out string, cmd *cobra.Command) error {
	if len(formats) == 0 {
		return nil
	}
	writer, err := artifactWriter(out, "", cmd)
	if err != nil {
		return err
	}
	defer writer.Close()

	for _, f := range formats {
		a, err := rt.hub.Render(f)
		if err != nil {
			return err
		}
		if err := writer.Write(a); err != nil {
			return fmt.Errorf("failed to write %s export: %w", a.Format, err)
		}
	}
	return nil
}

func artifactWriter(dir, name string, cmd *cobra.Command) (export.Writer, error) {
	if dir == "" {
		return export.NewStdoutWriter(cmd.OutOrStdout()), nil
	}
	return export.NewFileWriter(dir, name)
}
