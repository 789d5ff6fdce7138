package infer

import (
	"github.com/nao1215/roilabel/internal/geometry"
	"github.com/nao1215/roilabel/internal/model"
)

// MinRegionSize is the smallest width and height accepted by interactive models.
const MinRegionSize = 128

// DefaultMaxWorkers is the server-side worker count sent when none is configured.
const DefaultMaxWorkers = 1

// Request is the inference request sent to the server.
type Request struct {
	ModelName string `json:"model_name"`

	// ImageName is nil when the image is not resident on the server and is
	// uploaded with the request.
	ImageName *string `json:"image_name"`

	Location [2]int `json:"location"`
	Size     [2]int `json:"size"`
	TileSize [2]int `json:"tile_size"`
	Params   Params `json:"params"`
}

// Params are the model parameters of a request.
type Params struct {
	ForegroundPoints Points `json:"foreground_points"`
	BackgroundPoints Points `json:"background_points"`
	MaxWorkers       int    `json:"max_workers"`
}

// Points encodes as a list of [x, y] pairs.
type Points [][2]float64

func pointsOf(pts []geometry.Point) Points {
	out := make(Points, len(pts))
	for i, p := range pts {
		out[i] = [2]float64{p.X, p.Y}
	}
	return out
}

// Collect returns the click points for a role, translated into the local
// frame of offset.
//
// Only markers are considered. In SingleClassMarker mode every marker
// contributes and role is ignored; otherwise the marker's label must equal
// role case-insensitively. Each point must lie inside region in global
// coordinates.
func Collect(role string, annotations []model.Annotation, region geometry.Region, offset geometry.Offset, mode MarkerMode) []geometry.Point {
	var clicks []geometry.Point
	for _, a := range annotations {
		if !a.IsPoint() {
			continue
		}
		if mode != SingleClassMarker && (a.Label == nil || !a.Label.MatchesRole(role)) {
			continue
		}
		for _, p := range a.Geometry {
			if region.Contains(p) {
				clicks = append(clicks, offset.ToLocal(p))
			}
		}
	}
	return clicks
}

// Builder assembles inference requests.
type Builder struct {
	maxWorkers int
}

// NewBuilder creates a builder sending maxWorkers as the server-side worker
// count. Non-positive values use DefaultMaxWorkers.
func NewBuilder(maxWorkers int) *Builder {
	if maxWorkers <= 0 {
		maxWorkers = DefaultMaxWorkers
	}
	return &Builder{maxWorkers: maxWorkers}
}

// Build creates the request for running m over region of target.
//
// For models that validate clicks a region smaller than MinRegionSize in
// either dimension fails with ErrRegionTooSmall, and a request without any
// click fails with ErrInsufficientInteraction. Both are wrapped in a
// *ValidationError.
func (b *Builder) Build(m ModelInfo, region geometry.Region, tileSize int, annotations []model.Annotation, target *Target) (*Request, error) {
	if err := region.Validate(); err != nil {
		return nil, err
	}
	if tileSize <= 0 {
		tileSize = model.DefaultTileSize
	}

	var offset geometry.Offset
	var image *string
	if target != nil {
		offset = target.Offset
		image = target.Image
	}

	mode := m.MarkerMode()
	var fg, bg []geometry.Point
	if mode == SingleClassMarker {
		fg = Collect("", annotations, region, offset, mode)
	} else {
		fg = Collect(model.PositiveLabel, annotations, region, offset, mode)
		bg = Collect(model.NegativeLabel, annotations, region, offset, mode)
	}

	if m.ValidatesClicks() {
		if region.Width < MinRegionSize || region.Height < MinRegionSize {
			return nil, &ValidationError{Model: m.Name, Region: region, Err: ErrRegionTooSmall}
		}
		if len(fg) == 0 && len(bg) == 0 {
			return nil, &ValidationError{Model: m.Name, Region: region, Err: ErrInsufficientInteraction}
		}
	}

	return &Request{
		ModelName: m.Name,
		ImageName: image,
		Location:  [2]int{region.X, region.Y},
		Size:      [2]int{region.Width, region.Height},
		TileSize:  [2]int{tileSize, tileSize},
		Params: Params{
			ForegroundPoints: pointsOf(fg),
			BackgroundPoints: pointsOf(bg),
			MaxWorkers:       b.maxWorkers,
		},
	}, nil
}
