package pipeline

import (
	"context"
	"errors"
	"os"

	"github.com/nao1215/roilabel/internal/asap"
	"github.com/nao1215/roilabel/internal/geometry"
	"github.com/nao1215/roilabel/internal/infer"
	"github.com/nao1215/roilabel/internal/model"
	"github.com/nao1215/roilabel/internal/reconcile"
)

// Server is the part of the model server a run talks to.
// *monailabel.Client implements it.
type Server interface {
	infer.ImageStore
	SaveImage(ctx context.Context, image, path string, params map[string]any) (string, error)
	SaveLabel(ctx context.Context, image, path, tag string, params map[string]any) error
	Infer(ctx context.Context, image, uploadPath string, req *infer.Request) ([]byte, error)
}

// Run is the state of one inference run.
type Run struct {
	// Source is the image path, or a bare name for images only the server has.
	Source   string
	Region   geometry.Region
	TileSize int
	Model    infer.ModelInfo

	Collection model.Collection
	Registry   model.LabelRegistry

	Report *model.RunReport

	// Set by the steps.
	Document   *asap.Document
	Target     *infer.Target
	Request    *infer.Request
	UploadedID string
	Response   []byte
	Decoded    []asap.Decoded
	Result     reconcile.Result

	artifacts []string
}

// NewRun creates a run of m over region of source, merging into collection.
func NewRun(source string, m infer.ModelInfo, region geometry.Region, tileSize int, collection model.Collection, registry model.LabelRegistry) *Run {
	if tileSize <= 0 {
		tileSize = model.DefaultTileSize
	}
	report := model.NewRunReport(infer.ImageName(source), m.Name)
	report.ModelType = m.Type
	report.Region = region
	report.TileSize = tileSize
	report.Override = m.Override()

	return &Run{
		Source:     source,
		Region:     region,
		TileSize:   tileSize,
		Model:      m,
		Collection: collection,
		Registry:   registry,
		Report:     report,
	}
}

// AddArtifact registers a temporary file to remove when the run ends.
func (r *Run) AddArtifact(path string) {
	r.artifacts = append(r.artifacts, path)
}

// Artifacts returns the temporary files still owned by the run.
func (r *Run) Artifacts() []string {
	out := append([]string(nil), r.artifacts...)
	if r.Target != nil {
		out = append(out, r.Target.Artifacts()...)
	}
	return out
}

// inferImage returns the image ID and upload file for the infer call.
func (r *Run) inferImage() (image, uploadPath string) {
	switch {
	case r.Target == nil:
		return infer.ImageName(r.Source), ""
	case r.Target.Resident():
		return *r.Target.Image, ""
	case r.UploadedID != "":
		return r.UploadedID, ""
	default:
		return r.Target.UploadName, r.Target.UploadPath
	}
}

// cleanup removes every temporary file of the run. It is safe to call twice.
func (r *Run) cleanup() error {
	var errs []error
	for _, path := range r.artifacts {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	r.artifacts = nil
	if r.Target != nil {
		errs = append(errs, r.Target.Cleanup())
	}
	return errors.Join(errs...)
}
