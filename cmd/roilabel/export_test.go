package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nao1215/roilabel/internal/model"
)

func TestExportCommand(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	image := filepath.Join(dir, "slide.svs")
	tumor := &model.ClassLabel{Name: "tumor", Color: 0xFF0000}
	writeAnnotations(t, annotationsPath(image),
		model.NewAnnotation(model.KindPolygon, rect(110, 120, 10, 10), tumor),
		model.NewAnnotation(model.KindPolygon, rect(900, 900, 10, 10), tumor),
	)

	t.Run("asap document relative to region", func(t *testing.T) {
		t.Parallel()

		out, err := execute(t, "export", "-r", "100,100,50,50", image)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(out, "ASAP_Annotations") {
			t.Fatalf("expected an ASAP document, got:\n%s", out)
		}
		if strings.Count(out, "<Annotation ") != 1 {
			t.Errorf("expected one annotation inside the region, got:\n%s", out)
		}
		if !strings.Contains(out, `X="10"`) || !strings.Contains(out, `Y="20"`) {
			t.Errorf("expected coordinates relative to the region, got:\n%s", out)
		}
	})

	t.Run("empty region fails", func(t *testing.T) {
		t.Parallel()

		if _, err := execute(t, "export", "-r", "5000,5000,10,10", image); err == nil {
			t.Error("expected error for a region without annotations")
		}
	})

	t.Run("empty region leaves output untouched", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		existing := filepath.Join(dir, "existing.xml")
		if err := os.WriteFile(existing, []byte("keep"), 0o600); err != nil {
			t.Fatal(err)
		}
		if _, err := execute(t, "export", "-r", "5000,5000,10,10", "-o", existing, image); err == nil {
			t.Fatal("expected error for a region without annotations")
		}
		data, err := os.ReadFile(existing)
		if err != nil {
			t.Fatal(err)
		}
		if string(data) != "keep" {
			t.Errorf("expected output file to be kept, got %q", data)
		}

		fresh := filepath.Join(dir, "fresh.xml")
		if _, err := execute(t, "export", "-r", "5000,5000,10,10", "-o", fresh, image); err == nil {
			t.Fatal("expected error for a region without annotations")
		}
		if _, err := os.Stat(fresh); !os.IsNotExist(err) {
			t.Errorf("expected no output file, got %v", err)
		}
	})

	t.Run("geojson to file", func(t *testing.T) {
		t.Parallel()

		output := filepath.Join(t.TempDir(), "slide.geojson")
		if _, err := execute(t, "export", "-f", "geojson", "-o", output, image); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		data, err := os.ReadFile(output)
		if err != nil {
			t.Fatal(err)
		}
		var fc struct {
			Features []json.RawMessage `json:"features"`
		}
		if err := json.Unmarshal(data, &fc); err != nil {
			t.Fatalf("invalid GeoJSON: %v", err)
		}
		if len(fc.Features) != 2 {
			t.Errorf("expected 2 features for the whole image, got %d", len(fc.Features))
		}
	})

	t.Run("unknown format", func(t *testing.T) {
		t.Parallel()

		if _, err := execute(t, "export", "-f", "svg", image); err == nil {
			t.Error("expected error for unknown format")
		}
	})

	t.Run("missing annotations", func(t *testing.T) {
		t.Parallel()

		if _, err := execute(t, "export", filepath.Join(t.TempDir(), "other.svs")); err == nil {
			t.Error("expected error for missing annotations")
		}
	})
}
