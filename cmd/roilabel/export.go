package main

import (
	"bytes"
	"fmt"
	"os"

	"github.com/nao1215/roilabel/internal/asap"
	"github.com/nao1215/roilabel/internal/geometry"
	"github.com/nao1215/roilabel/internal/model"
	"github.com/nao1215/roilabel/internal/report"
	"github.com/spf13/cobra"
)

// Export formats.
const (
	exportFormatASAP    = "asap"
	exportFormatGeoJSON = "geojson"
)

// NewExportCmd creates the export command.
func NewExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export [image]",
		Short: "Write the annotations inside a region as an exchange document",
		Long: `Export encodes the annotations of an image that lie inside a region into the
ASAP document sent to the server, with coordinates relative to the region
origin. This is the document --sync-labels uploads.

With --format geojson the annotations are written as a GeoJSON
FeatureCollection in image coordinates instead.

Examples:
  # Print the label document of a region
  roilabel export -r 1000,2000,512,512 slide.svs

  # Whole image as GeoJSON
  roilabel export -r 0,0,0,0 -f geojson -o slide.geojson slide.svs`,
		Args: cobra.ExactArgs(1),
		RunE: runExportCmd,
	}

	cmd.Flags().StringP("region", "r", "0,0,0,0",
		"Region as x,y,width,height; 0,0,0,0 is the whole image")
	cmd.Flags().StringP("annotations", "a", "",
		"ASAP annotation file to read (default: <image>.xml)")
	cmd.Flags().StringP("output", "o", "",
		"Output file (default: stdout)")
	cmd.Flags().StringP("format", "f", exportFormatASAP,
		"Output format: asap or geojson")

	return cmd
}

func runExportCmd(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	regionFlag, err := flags.GetString("region")
	if err != nil {
		return err
	}
	input, err := flags.GetString("annotations")
	if err != nil {
		return err
	}
	output, err := flags.GetString("output")
	if err != nil {
		return err
	}
	format, err := flags.GetString("format")
	if err != nil {
		return err
	}

	region, err := geometry.ParseRegion(regionFlag)
	if err != nil {
		return err
	}
	if input == "" {
		input = annotationsPath(args[0])
	}
	collection, _, err := asap.LoadFile(input)
	if err != nil {
		return fmt.Errorf("failed to read annotations %s: %w", input, err)
	}

	var buf bytes.Buffer
	switch format {
	case exportFormatASAP:
		doc, err := asap.Encode(region, collection.Snapshot())
		if err != nil {
			return err
		}
		if _, err := doc.WriteTo(&buf); err != nil {
			return err
		}
	case exportFormatGeoJSON:
		var inside []model.Annotation
		for _, a := range collection.Snapshot() {
			if c, ok := a.Centroid(); ok && region.Contains(c) {
				inside = append(inside, a)
			}
		}
		if _, err := report.NewGeoJSONWriter(&buf).Write(inside); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown export format %q: expected asap or geojson", format)
	}

	if output == "" {
		_, err = buf.WriteTo(cmd.OutOrStdout())
		return err
	}
	if err := os.WriteFile(output, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	return nil
}
