package report

import (
	"encoding/json"
	"io"

	"github.com/nao1215/roilabel/internal/model"
)

// JSONWriter outputs reports in JSON format for tool integration.
type JSONWriter struct {
	baseWriter

	// indent enables pretty-printed JSON output.
	indent bool

	indentPrefix string
	indentString string
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithIndent enables pretty-printed JSON output.
// The prefix is prepended to each line, and indent is used for each level.
func WithIndent(prefix, indent string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.indent = true
		w.indentPrefix = prefix
		w.indentString = indent
	}
}

// WithPrettyPrint enables pretty-printed JSON with two-space indentation.
func WithPrettyPrint() JSONWriterOption {
	return WithIndent("", "  ")
}

// NewJSONWriter creates a JSONWriter that outputs to the given writer.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs the report as a JSON object.
func (w *JSONWriter) Write(report *model.RunReport) (int, error) {
	return w.writeJSON(report)
}

// WriteBatch outputs the reports as a JSON array.
func (w *JSONWriter) WriteBatch(reports []*model.RunReport) (int, error) {
	if reports == nil {
		reports = []*model.RunReport{}
	}
	return w.writeJSON(reports)
}

// writeJSON marshals v and writes it followed by a newline.
func (w *JSONWriter) writeJSON(v any) (int, error) {
	var (
		data []byte
		err  error
	)
	if w.indent {
		data, err = json.MarshalIndent(v, w.indentPrefix, w.indentString)
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return 0, err
	}
	data = append(data, '\n')
	return w.output.Write(data)
}

// JSONReport wraps run reports with the version of the tool that made them.
type JSONReport struct {
	// Version is the roilabel version that generated this report.
	Version string `json:"version"`

	// Runs holds one entry per processed image.
	Runs []*model.RunReport `json:"runs"`

	// Summary totals the runs.
	Summary Summary `json:"summary"`
}

// Summary totals a set of runs.
type Summary struct {
	Images  int `json:"images"`
	Added   int `json:"added"`
	Removed int `json:"removed"`
	Failed  int `json:"failed"`
}

// Summarize totals the given reports.
func Summarize(reports []*model.RunReport) Summary {
	s := Summary{Images: len(reports)}
	for _, r := range reports {
		s.Added += r.Added
		s.Removed += r.Removed
		if r.Failed() {
			s.Failed++
		}
	}
	return s
}

// NewJSONReport creates a JSONReport wrapper with version information.
func NewJSONReport(version string, reports ...*model.RunReport) *JSONReport {
	if reports == nil {
		reports = []*model.RunReport{}
	}
	return &JSONReport{
		Version: version,
		Runs:    reports,
		Summary: Summarize(reports),
	}
}

// FullJSONWriter outputs reports inside a JSONReport wrapper.
type FullJSONWriter struct {
	*JSONWriter

	version string
}

// NewFullJSONWriter creates a writer for wrapped reports.
func NewFullJSONWriter(output io.Writer, version string, opts ...JSONWriterOption) *FullJSONWriter {
	return &FullJSONWriter{
		JSONWriter: NewJSONWriter(output, opts...),
		version:    version,
	}
}

// Write outputs a single report wrapped with metadata.
func (w *FullJSONWriter) Write(report *model.RunReport) (int, error) {
	return w.writeJSON(NewJSONReport(w.version, report))
}

// WriteBatch outputs all reports wrapped with metadata.
func (w *FullJSONWriter) WriteBatch(reports []*model.RunReport) (int, error) {
	return w.writeJSON(NewJSONReport(w.version, reports...))
}
