package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/nao1215/markdown"
	"github.com/nao1215/roilabel/internal/config"
	"github.com/nao1215/roilabel/internal/database"
	"github.com/nao1215/roilabel/internal/report"
	"github.com/spf13/cobra"
)

// defaultHistoryLimit is the number of runs listed without --limit.
const defaultHistoryLimit = 20

// NewHistoryCmd creates the history command.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [image]",
		Short: "Show recorded inference runs",
		Long: `History lists the inference runs recorded by 'roilabel infer', newest first.

Each run records the model, region, number of annotations added and removed,
and the digest of the document the server returned.

Examples:
  # Latest runs for all images
  roilabel history

  # Runs of one image
  roilabel history slide

  # Full report of a run
  roilabel history --show 12

  # All images with recorded runs
  roilabel history --images`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistoryCmd,
	}

	addHistoryFlags(cmd)
	cmd.Flags().IntP("limit", "n", defaultHistoryLimit,
		"Maximum number of runs to list (0 for all)")
	cmd.Flags().Int64P("show", "i", 0,
		"Show the full report of the run with this ID")
	cmd.Flags().BoolP("images", "L", false,
		"List all images with recorded runs")
	cmd.Flags().StringP("format", "f", config.FormatText,
		"Output format: text, json or markdown")

	return cmd
}

func runHistoryCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	limit, err := flags.GetInt("limit")
	if err != nil {
		return err
	}
	show, err := flags.GetInt64("show")
	if err != nil {
		return err
	}
	images, err := flags.GetBool("images")
	if err != nil {
		return err
	}
	if cfg.ReportFormat, err = flags.GetString("format"); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	if cfg.DBDir == "" {
		return errors.New("no history directory configured")
	}

	db, err := openHistory(cfg.DBDir)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out := cmd.OutOrStdout()

	switch {
	case show > 0:
		r, err := db.GetRun(ctx, show)
		if err != nil {
			return err
		}
		w, err := report.New(cfg.ReportFormat, out, getVersion())
		if err != nil {
			return err
		}
		_, err = w.Write(r)
		return err
	case images:
		names, err := db.ListImages(ctx)
		if err != nil {
			return err
		}
		return writeImages(out, cfg.ReportFormat, names)
	default:
		image := ""
		if len(args) == 1 {
			image = args[0]
		}
		runs, err := db.ListRuns(ctx, image, limit)
		if err != nil {
			return err
		}
		return writeRuns(out, cfg.ReportFormat, runs)
	}
}

func writeImages(w io.Writer, format string, names []string) error {
	if names == nil {
		names = []string{}
	}
	switch format {
	case config.FormatJSON:
		return json.NewEncoder(w).Encode(names)
	case config.FormatMarkdown:
		md := markdown.NewMarkdown(w)
		md.H1("Images")
		md.PlainText("")
		if len(names) == 0 {
			md.Note("No runs recorded yet.")
			return md.Build()
		}
		md.BulletList(names...)
		return md.Build()
	default:
		if len(names) == 0 {
			_, err := fmt.Fprintln(w, "No runs recorded yet.")
			return err
		}
		for _, name := range names {
			if _, err := fmt.Fprintln(w, name); err != nil {
				return err
			}
		}
		return nil
	}
}

// runEntry is the JSON form of a listed run.
type runEntry struct {
	ID        int64  `json:"id"`
	Image     string `json:"image"`
	Model     string `json:"model"`
	Region    string `json:"region"`
	Override  bool   `json:"override"`
	Added     int    `json:"added"`
	Removed   int    `json:"removed"`
	Digest    string `json:"digest,omitempty"`
	Error     string `json:"error,omitempty"`
	Timestamp string `json:"timestamp"`
}

const timestampLayout = "2006-01-02 15:04:05"

func writeRuns(w io.Writer, format string, runs []database.RunMetadata) error {
	switch format {
	case config.FormatJSON:
		entries := make([]runEntry, 0, len(runs))
		for _, r := range runs {
			entries = append(entries, runEntry{
				ID:        r.ID,
				Image:     r.Image,
				Model:     r.Model,
				Region:    r.Region,
				Override:  r.Override,
				Added:     r.Added,
				Removed:   r.Removed,
				Digest:    r.Digest,
				Error:     r.Error,
				Timestamp: r.Timestamp.Format(timestampLayout),
			})
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	case config.FormatMarkdown:
		md := markdown.NewMarkdown(w)
		md.H1("Run History")
		md.PlainText("")
		if len(runs) == 0 {
			md.Note("No runs recorded yet.")
			return md.Build()
		}
		rows := make([][]string, 0, len(runs))
		for _, r := range runs {
			rows = append(rows, []string{
				strconv.FormatInt(r.ID, 10),
				r.Timestamp.Format(timestampLayout),
				"`" + r.Image + "`",
				r.Model,
				r.Region,
				strconv.Itoa(r.Added),
				strconv.Itoa(r.Removed),
				runStatus(r),
			})
		}
		md.Table(markdown.TableSet{
			Header: []string{"ID", "Time", "Image", "Model", "Region", "Added", "Removed", "Status"},
			Rows:   rows,
		})
		return md.Build()
	default:
		if len(runs) == 0 {
			_, err := fmt.Fprintln(w, "No runs recorded yet.")
			return err
		}
		for _, r := range runs {
			if _, err := fmt.Fprintf(w, "%4d  %s  %-20s %-16s %-26s +%d -%d  %s\n",
				r.ID, r.Timestamp.Format(timestampLayout), r.Image, r.Model, r.Region,
				r.Added, r.Removed, runStatus(r)); err != nil {
				return err
			}
		}
		return nil
	}
}

func runStatus(r database.RunMetadata) string {
	if r.Error != "" {
		return "error: " + r.Error
	}
	return "ok"
}
