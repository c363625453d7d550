package cli

import (
	"fmt"
	"io"
)

const (
	ansiReset  = "\033[0m"
	ansiBold   = "\033[1m"
	ansiDim    = "\033[2m"
	ansiRed    = "\033[31m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
)

// UI writes human-facing command output.
type UI struct {
	out     io.Writer
	err     io.Writer
	noColor bool
	quiet   bool
	verbose bool
}

func NewUI(out, err io.Writer, noColor, quiet, verbose bool) *UI {
	return &UI{out: out, err: err, noColor: noColor, quiet: quiet, verbose: verbose}
}

func (u *UI) Printf(format string, args ...any) {
	if u.quiet {
		return
	}
	fmt.Fprintf(u.out, format, args...)
}

// Infof writes status lines to the error stream so stdout stays clean for
// exported data.
func (u *UI) Infof(format string, args ...any) {
	if u.quiet {
		return
	}
	fmt.Fprintf(u.err, format, args...)
}

func (u *UI) Debugf(format string, args ...any) {
	if !u.verbose {
		return
	}
	fmt.Fprintf(u.err, u.dim(format), args...)
}

func (u *UI) Warnf(format string, args ...any) {
	fmt.Fprintf(u.err, u.yellow(format), args...)
}

func (u *UI) paint(code, s string) string {
	if u.noColor {
		return s
	}
	return code + s + ansiReset
}

func (u *UI) bold(s string) string   { return u.paint(ansiBold, s) }
func (u *UI) dim(s string) string    { return u.paint(ansiDim, s) }
func (u *UI) red(s string) string    { return u.paint(ansiRed, s) }
func (u *UI) green(s string) string  { return u.paint(ansiGreen, s) }
func (u *UI) yellow(s string) string { return u.paint(ansiYellow, s) }

func newUI(cmd interface {
	OutOrStdout() io.Writer
	ErrOrStderr() io.Writer
}) *UI {
	return NewUI(cmd.OutOrStdout(), cmd.ErrOrStderr(), globalOpts.NoColor, globalOpts.Quiet, globalOpts.Verbose)
}
