package infer

import (
	"errors"
	"fmt"

	"github.com/nao1215/roilabel/internal/geometry"
)

var (
	// ErrRemoteImageWithoutRegion is returned when the image is not resident on
	// the server, cannot be uploaded whole, and no region was given to crop.
	ErrRemoteImageWithoutRegion = errors.New("cannot run inference on a remote image without a region: image does not exist in the datastore")

	// ErrInsufficientInteraction is returned for interactive models when no
	// positive or negative click lies inside the region.
	ErrInsufficientInteraction = errors.New("need at least one positive or negative click point within the region")

	// ErrRegionTooSmall is returned for interactive models when the region is
	// narrower or shorter than MinRegionSize.
	ErrRegionTooSmall = errors.New("region is too small for an interactive model")

	// ErrNoPatchRenderer is returned when a patch must be rendered but no
	// renderer is configured.
	ErrNoPatchRenderer = errors.New("no patch renderer configured: the image is not in the datastore and is not a flat image")

	// ErrUnknownModel is returned when the server does not offer the requested model.
	ErrUnknownModel = errors.New("model not found on server")

	// ErrNoModels is returned when the server offers no models at all.
	ErrNoModels = errors.New("server has no models")
)

// ValidationError reports a click validation failure for a model.
type ValidationError struct {
	Model  string
	Region geometry.Region
	Err    error
}

func (e *ValidationError) Error() string {
	if errors.Is(e.Err, ErrRegionTooSmall) {
		return fmt.Sprintf("%s: %v: min height/width is %d, got %dx%d",
			e.Model, e.Err, MinRegionSize, e.Region.Width, e.Region.Height)
	}
	return fmt.Sprintf("%s: %v", e.Model, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}
