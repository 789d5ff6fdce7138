// Package report renders run reports and inference results.
//
// Run reports are written by one of the Writer implementations:
//   - TextWriter: plain text for the terminal
//   - JSONWriter: structured output for other tools
//   - MarkdownWriter: tables and a label chart for sharing
//
// GeoJSONWriter exports annotation outlines as a FeatureCollection that
// slide viewers such as QuPath can import.
package report
