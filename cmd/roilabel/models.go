package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/nao1215/markdown"
	"github.com/nao1215/roilabel/internal/config"
	"github.com/nao1215/roilabel/internal/infer"
	"github.com/spf13/cobra"
)

// NewModelsCmd creates the models command.
func NewModelsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List the models the server offers",
		Long: `Models queries the server and lists its models with their type, labels and
how roilabel treats their results: override replaces existing annotations of
the model's labels in the region, additive keeps them.

Examples:
  roilabel models
  roilabel models -s http://gpu-host:8000 -f markdown`,
		Args: cobra.NoArgs,
		RunE: runModelsCmd,
	}

	addServerFlags(cmd)
	cmd.Flags().StringP("format", "f", config.FormatText,
		"Output format: text, json or markdown")

	return cmd
}

func runModelsCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.ReportFormat, err = cmd.Flags().GetString("format"); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger, err := setupLogger(cfg)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	client, err := newClient(cfg, logger)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd.Context(), logger)
	defer cancel()

	info, err := client.Info(ctx)
	if err != nil {
		return fmt.Errorf("failed to query server %s: %w", client.BaseURL(), err)
	}
	return writeModels(cmd.OutOrStdout(), cfg.ReportFormat, info)
}

// modelRow is one model as listed by the models command.
type modelRow struct {
	Name   string   `json:"name"`
	Type   string   `json:"type"`
	Labels []string `json:"labels"`
	Clicks string   `json:"clicks"`
	Mode   string   `json:"mode"`
}

func modelRows(info *infer.ServerInfo) []modelRow {
	names := info.ModelNames()
	rows := make([]modelRow, 0, len(names))
	for _, name := range names {
		m := info.Models[name]
		mode := "additive"
		if m.Override() {
			mode = "override"
		}
		labels := []string(m.Labels)
		if labels == nil {
			labels = []string{}
		}
		rows = append(rows, modelRow{
			Name:   name,
			Type:   m.Type,
			Labels: labels,
			Clicks: m.MarkerMode().String(),
			Mode:   mode,
		})
	}
	return rows
}

func writeModels(w io.Writer, format string, info *infer.ServerInfo) error {
	rows := modelRows(info)

	switch format {
	case config.FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	case config.FormatMarkdown:
		md := markdown.NewMarkdown(w)
		title := "Models"
		if info.Name != "" {
			title = info.Name + " Models"
		}
		md.H1(title)
		md.PlainText("")
		if len(rows) == 0 {
			md.Note("The server offers no models.")
			return md.Build()
		}
		table := make([][]string, 0, len(rows))
		for _, r := range rows {
			table = append(table, []string{"`" + r.Name + "`", r.Type, strings.Join(r.Labels, ", "), r.Clicks, r.Mode})
		}
		md.Table(markdown.TableSet{
			Header: []string{"Model", "Type", "Labels", "Clicks", "Mode"},
			Rows:   table,
		})
		return md.Build()
	default:
		if len(rows) == 0 {
			_, err := fmt.Fprintln(w, "The server offers no models.")
			return err
		}
		for _, r := range rows {
			if _, err := fmt.Fprintf(w, "%-20s %-14s %-8s %-12s %s\n",
				r.Name, r.Type, r.Mode, r.Clicks, strings.Join(r.Labels, ", ")); err != nil {
				return err
			}
		}
		return nil
	}
}
