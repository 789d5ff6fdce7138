package report

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"
	"github.com/nao1215/roilabel/internal/model"
)

// MarkdownWriter outputs reports in Markdown format.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{baseWriter: newBaseWriter(output)}
}

// Write outputs one report in Markdown format.
func (w *MarkdownWriter) Write(report *model.RunReport) (int, error) {
	md := markdown.NewMarkdown(w.output)

	md.H1("ROI Inference Report")
	md.PlainText("")
	w.writeRun(md, report)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// WriteBatch outputs a summary table followed by one section per report.
func (w *MarkdownWriter) WriteBatch(reports []*model.RunReport) (int, error) {
	md := markdown.NewMarkdown(w.output)

	md.H1("ROI Inference Report")
	md.PlainText("")

	rows := make([][]string, 0, len(reports))
	for _, r := range reports {
		rows = append(rows, []string{
			"`" + r.Image + "`",
			r.Model,
			strconv.Itoa(r.Added),
			strconv.Itoa(r.Removed),
			statusText(r),
		})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Image", "Model", "Added", "Removed", "Status"},
		Rows:   rows,
	})
	md.PlainText("")

	for _, r := range reports {
		md.H2(r.Image)
		md.PlainText("")
		w.writeRun(md, r)
	}
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeRun(md *markdown.Markdown, r *model.RunReport) {
	rows := [][]string{
		{"Image", "`" + r.Image + "`"},
		{"Model", r.Model},
	}
	if r.ModelType != "" {
		rows = append(rows, []string{"Model Type", r.ModelType})
	}
	rows = append(rows,
		[]string{"Region", "`" + r.Region.String() + "`"},
		[]string{"Tile Size", strconv.Itoa(r.TileSize)},
		[]string{"Mode", mode(r)},
		[]string{"Uploaded", strconv.FormatBool(r.Uploaded)},
		[]string{"Started", r.StartedAt.Format("2006-01-02 15:04:05 MST")},
		[]string{"Duration", r.Duration().Round(time.Millisecond).String()},
		[]string{"Status", statusText(r)},
	)
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows:   rows,
	})
	md.PlainText("")

	w.writeAlert(md, r)
	if r.Failed() {
		return
	}

	md.Table(markdown.TableSet{
		Header: []string{"Decoded", "Removed", "Added"},
		Rows: [][]string{{
			strconv.Itoa(r.Decoded),
			strconv.Itoa(r.Removed),
			strconv.Itoa(r.Added),
		}},
	})
	md.PlainText("")

	if len(r.AddedByLabel) > 0 {
		w.writeLabels(md, r)
	}
}

// writeLabels writes the per-label counts and their distribution chart.
func (w *MarkdownWriter) writeLabels(md *markdown.Markdown, r *model.RunReport) {
	names := sortedLabels(r.AddedByLabel)

	rows := make([][]string, 0, len(names))
	for _, name := range names {
		rows = append(rows, []string{DisplayName(name), strconv.Itoa(r.AddedByLabel[name])})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Label", "Added"},
		Rows:   rows,
	})
	md.PlainText("")

	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Added Annotations by Label"),
		piechart.WithShowData(true),
	)
	for _, name := range names {
		chart.LabelAndIntValue(DisplayName(name), uint64(r.AddedByLabel[name]))
	}
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, r *model.RunReport) {
	switch {
	case r.Failed():
		md.Cautionf("Inference failed: %s", r.Error)
	case len(r.Warnings) > 0:
		for _, warning := range r.Warnings {
			md.Warningf("%s", warning)
		}
	case r.Added == 0 && r.Removed == 0:
		md.Note("The model returned no changes for this region.")
	default:
		md.Tip(fmt.Sprintf("%d annotation(s) added, %d removed.", r.Added, r.Removed))
	}
	md.PlainText("")
}

func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainText("*Report generated by roilabel*")
}

func statusText(r *model.RunReport) string {
	if r.Failed() {
		return "❌ Error - " + r.Error
	}
	if len(r.Warnings) > 0 {
		return "⚠️ Complete with warnings"
	}
	return "✅ " + status(r)
}
