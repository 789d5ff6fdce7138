package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/nao1215/roilabel/internal/model"
)

// TextWriter outputs human-readable run reports for terminal display.
type TextWriter struct {
	baseWriter

	// verbose adds digests and point counts.
	verbose bool
}

// TextWriterOption configures a TextWriter.
type TextWriterOption func(*TextWriter)

// WithVerbose enables verbose output with additional details.
func WithVerbose(verbose bool) TextWriterOption {
	return func(w *TextWriter) {
		w.verbose = verbose
	}
}

// NewTextWriter creates a TextWriter that outputs to the given writer.
func NewTextWriter(output io.Writer, opts ...TextWriterOption) *TextWriter {
	w := &TextWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs one report.
func (w *TextWriter) Write(report *model.RunReport) (int, error) {
	var sb strings.Builder
	w.writeReport(&sb, report)
	return io.WriteString(w.output, sb.String())
}

// WriteBatch outputs every report followed by a one-line total.
func (w *TextWriter) WriteBatch(reports []*model.RunReport) (int, error) {
	var sb strings.Builder
	for _, r := range reports {
		w.writeReport(&sb, r)
	}
	s := Summarize(reports)
	fmt.Fprintf(&sb, "%d image(s): %d added, %d removed, %d failed\n", s.Images, s.Added, s.Removed, s.Failed)
	return io.WriteString(w.output, sb.String())
}

func (w *TextWriter) writeReport(sb *strings.Builder, r *model.RunReport) {
	w.writeHeader(sb, r)
	w.writeChanges(sb, r)
	w.writeWarnings(sb, r)
}

func (w *TextWriter) writeHeader(sb *strings.Builder, r *model.RunReport) {
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	fmt.Fprintf(sb, "Image:     %s\n", r.Image)
	name := r.Model
	if r.ModelType != "" {
		name += " (" + r.ModelType + ")"
	}
	fmt.Fprintf(sb, "Model:     %s\n", name)
	fmt.Fprintf(sb, "Region:    %s\n", r.Region)
	fmt.Fprintf(sb, "Tile size: %d\n", r.TileSize)
	fmt.Fprintf(sb, "Mode:      %s\n", mode(r))
	if r.Uploaded {
		fmt.Fprintf(sb, "Uploaded:  yes (offset %g, %g)\n", r.Offset.X, r.Offset.Y)
	}
	if d := r.Duration(); d > 0 {
		fmt.Fprintf(sb, "Duration:  %s\n", d.Round(time.Millisecond))
	}
	if r.Failed() {
		fmt.Fprintf(sb, "Status:    ERROR - %s\n", r.Error)
	} else {
		fmt.Fprintf(sb, "Status:    %s\n", status(r))
	}
	if w.verbose {
		fmt.Fprintf(sb, "Clicks:    %d foreground, %d background\n", r.ForegroundPoints, r.BackgroundPoints)
		fmt.Fprintf(sb, "Exported:  %d\n", r.Exported)
		if r.DocumentDigest != "" {
			fmt.Fprintf(sb, "Digest:    %s\n", r.DocumentDigest)
		}
	}
	sb.WriteString("\n")
}

func (w *TextWriter) writeChanges(sb *strings.Builder, r *model.RunReport) {
	if r.Failed() {
		return
	}
	fmt.Fprintf(sb, "  Decoded: %d\n", r.Decoded)
	fmt.Fprintf(sb, "  Removed: %d\n", r.Removed)
	fmt.Fprintf(sb, "  Added:   %d\n", r.Added)
	for _, name := range sortedLabels(r.AddedByLabel) {
		fmt.Fprintf(sb, "    [+] %-24s %d\n", DisplayName(name), r.AddedByLabel[name])
	}
	sb.WriteString("\n")
}

func (w *TextWriter) writeWarnings(sb *strings.Builder, r *model.RunReport) {
	for _, warning := range r.Warnings {
		fmt.Fprintf(sb, "  [!] %s\n", warning)
	}
	if len(r.Warnings) > 0 {
		sb.WriteString("\n")
	}
}

func mode(r *model.RunReport) string {
	if r.Override {
		return "override"
	}
	return "additive"
}
