package model

import (
	"time"

	"github.com/nao1215/roilabel/internal/geometry"
)

// DefaultTileSize is the tile size used when none was remembered or given.
const DefaultTileSize = 1024

// RunReport is the outcome of one inference run against one image.
// It is filled in step by step by the pipeline and stored in the run history.
type RunReport struct {
	// ID is the database row ID. Zero until the report is saved.
	ID int64 `json:"id,omitempty"`

	// Image is the image name as known to the server.
	Image string `json:"image"`

	// Model is the model the request was sent to.
	Model string `json:"model"`

	// ModelType is the model type reported by the server.
	ModelType string `json:"model_type,omitempty"`

	Region   geometry.Region `json:"region"`
	TileSize int             `json:"tile_size"`

	// Override is true when the run replaced existing annotations in the region.
	Override bool `json:"override"`

	// Uploaded is true when the image or a patch had to be sent to the server.
	Uploaded bool `json:"uploaded"`

	// Offset is the translation applied to returned coordinates.
	Offset geometry.Offset `json:"offset"`

	// Exported is the number of annotations encoded into the label document.
	// Zero when labels were not synced.
	Exported int `json:"exported"`

	// ForegroundPoints and BackgroundPoints count the clicks sent.
	ForegroundPoints int `json:"foreground_points"`
	BackgroundPoints int `json:"background_points"`

	// Decoded is the number of polygons found in the response.
	Decoded int `json:"decoded"`

	// Removed is the number of existing annotations deleted during reconciliation.
	Removed int `json:"removed"`

	// Added is the number of annotations inserted during reconciliation.
	Added int `json:"added"`

	// AddedByLabel counts inserted annotations per label name.
	AddedByLabel map[string]int `json:"added_by_label,omitempty"`

	// DocumentDigest is the SHA3-256 digest of the response document.
	DocumentDigest string `json:"document_digest,omitempty"`

	// Warnings collects non-fatal conditions such as an ignored region.
	Warnings []string `json:"warnings,omitempty"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	// Error is set when the run failed.
	Error string `json:"error,omitempty"`
}

// NewRunReport creates a report for the given image and model.
func NewRunReport(image, modelName string) *RunReport {
	return &RunReport{
		Image:        image,
		Model:        modelName,
		AddedByLabel: make(map[string]int),
		StartedAt:    time.Now(),
	}
}

// AddWarning records a non-fatal condition.
func (r *RunReport) AddWarning(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

// Duration returns how long the run took. Zero until FinishedAt is set.
func (r *RunReport) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Failed reports whether the run ended with an error.
func (r *RunReport) Failed() bool {
	return r.Error != ""
}

// Defaults are the values remembered from the previous run and used to
// pre-populate the next one. They never affect correctness.
type Defaults struct {
	Model    string          `json:"model"`
	Region   geometry.Region `json:"region"`
	TileSize int             `json:"tile_size"`
}

// NewDefaults returns defaults with the standard tile size.
func NewDefaults() Defaults {
	return Defaults{TileSize: DefaultTileSize}
}
