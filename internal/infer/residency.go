package infer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/nao1215/roilabel/internal/geometry"
)

// ImageStore answers whether an image is resident on the server.
type ImageStore interface {
	ImageExists(ctx context.Context, image string) (bool, error)
}

// PatchRenderer writes the pixels of region from source to a PNG file at dst.
type PatchRenderer interface {
	RenderPatch(ctx context.Context, source string, region geometry.Region, dst string) error
}

// Target describes where the server reads the pixels of a run from.
type Target struct {
	// Name is the image name derived from the source file.
	Name string

	// Image is the resident image name, or nil when pixels are uploaded.
	Image *string

	// UploadPath is the file to send with the request when Image is nil.
	UploadPath string

	// UploadName is the datastore ID the upload is stored under.
	UploadName string

	// Offset translates server coordinates back to global coordinates.
	Offset geometry.Offset

	// Warning is a non-fatal condition to report to the user.
	Warning string

	artifacts []string
}

// Resident reports whether the server already has the image.
func (t *Target) Resident() bool {
	return t.Image != nil
}

// Artifacts returns the temporary files created for the target.
func (t *Target) Artifacts() []string {
	return t.artifacts
}

// Cleanup removes the temporary files created for the target.
func (t *Target) Cleanup() error {
	var errs []error
	for _, path := range t.artifacts {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	t.artifacts = nil
	return errors.Join(errs...)
}

// ImageName returns the file name of source without directory or extension.
func ImageName(source string) string {
	base := filepath.Base(source)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// IsFlatImage reports whether source is a plain raster image that can be
// uploaded whole rather than cropped.
func IsFlatImage(source string) bool {
	switch strings.ToLower(filepath.Ext(source)) {
	case ".png", ".jpg", ".jpeg":
		return true
	default:
		return false
	}
}

// PatchName returns the datastore ID of a patch cut from image at region.
func PatchName(image string, region geometry.Region) string {
	return fmt.Sprintf("%s-patch-%d_%d_%d_%d", image, region.X, region.Y, region.Width, region.Height)
}

// Plan decides how the server gets the pixels of source for region.
//
//   - resident: the server reads its own copy, offset is zero.
//   - flat image present on disk: uploaded whole, the region is ignored for
//     cropping and offset is zero; a warning is set.
//   - otherwise a patch covering region is rendered into a temporary PNG and
//     uploaded; offset is the region origin. Without a region to crop this
//     fails with ErrRemoteImageWithoutRegion.
//
// Temporary files are recorded on the target; call Cleanup when done.
func Plan(ctx context.Context, store ImageStore, source string, region geometry.Region, renderer PatchRenderer) (*Target, error) {
	name := ImageName(source)
	target := &Target{Name: name}

	exists, err := store.ImageExists(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to check image %q on server: %w", name, err)
	}
	if exists {
		target.Image = &name
		return target, nil
	}

	if IsFlatImage(source) && fileExists(source) {
		target.UploadPath = source
		target.UploadName = name
		target.Warning = "ignoring region: running inference over the full non-WSI image"
		return target, nil
	}

	if !region.HasArea() {
		return nil, ErrRemoteImageWithoutRegion
	}
	if renderer == nil {
		return nil, ErrNoPatchRenderer
	}

	f, err := os.CreateTemp("", "patch-*.png")
	if err != nil {
		return nil, fmt.Errorf("failed to create patch file: %w", err)
	}
	patch := f.Name()
	if err := f.Close(); err != nil {
		_ = os.Remove(patch)
		return nil, fmt.Errorf("failed to create patch file: %w", err)
	}

	if err := renderer.RenderPatch(ctx, source, region, patch); err != nil {
		_ = os.Remove(patch)
		return nil, fmt.Errorf("failed to render patch %s: %w", region, err)
	}

	target.UploadPath = patch
	target.UploadName = PatchName(name, region)
	target.Offset = geometry.OffsetOf(region)
	target.artifacts = append(target.artifacts, patch)
	return target, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// PrerenderedPatch is a PatchRenderer that copies a patch rendered elsewhere,
// for example by a slide viewer, instead of reading the slide itself.
type PrerenderedPatch struct {
	Path string
}

// RenderPatch copies p.Path to dst. The region is not inspected.
func (p PrerenderedPatch) RenderPatch(ctx context.Context, _ string, _ geometry.Region, dst string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	src, err := os.Open(p.Path)
	if err != nil {
		return err
	}
	defer src.Close()

	out, err := os.Create(dst) //nolint:gosec // dst is a temp file created by Plan
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, src); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
