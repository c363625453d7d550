package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var formatsPlugins []string

var formatsCmd = &cobra.Command{
	Use:   "formats",
	Short: "List export formats",
	Args:  cobra.NoArgs,
	RunE:  runFormats,
}

func init() {
	formatsCmd.Flags().StringArrayVar(&formatsPlugins, "plugin", nil, "Wasm exporter plugin to include (repeatable)")
}

func runFormats(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	registry, plugins, err := buildRegistry(ctx, formatsPlugins)
	if err != nil {
		return err
	}
	defer func() {
		for _, p := range plugins {
			p.Close(ctx)
		}
	}()

	type formatInfo struct {
		Name      string `json:"name"`
		Extension string `json:"extension"`
	}
	var formats []formatInfo
	for _, name := range registry.Formats() {
		e, err := registry.Get(name)
		if err != nil {
			return err
		}
		formats = append(formats, formatInfo{Name: e.FormatName(), Extension: e.FileExtension()})
	}

	out := cmd.OutOrStdout()
	if globalOpts.Format == "json" {
		return json.NewEncoder(out).Encode(formats)
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FORMAT\tEXTENSION")
	for _, f := range formats {
		fmt.Fprintf(tw, "%s\t%s\n", f.Name, f.Extension)
	}
	return tw.Flush()
}
