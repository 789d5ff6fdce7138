package asap

import (
	"errors"
	"fmt"

	"github.com/nao1215/roilabel/internal/geometry"
)

var (
	// ErrEmptyExport is returned by Encode when no annotation survives filtering.
	// An empty document is never sent: it means either nothing relevant was
	// drawn or the selected region is wrong.
	ErrEmptyExport = errors.New("no annotations found to export")

	// ErrMalformedResponse is returned by Decode when the document cannot be
	// parsed at all. Per-entry problems are skipped instead.
	ErrMalformedResponse = errors.New("malformed annotation document")
)

// EmptyExportError carries the region that yielded no annotations.
type EmptyExportError struct {
	Region geometry.Region
}

func (e *EmptyExportError) Error() string {
	return fmt.Sprintf("%s in region %s", ErrEmptyExport, e.Region)
}

// Is makes errors.Is(err, ErrEmptyExport) match.
func (e *EmptyExportError) Is(target error) bool {
	return target == ErrEmptyExport
}

// MalformedResponseError wraps the underlying XML error.
type MalformedResponseError struct {
	Err error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("%s: %v", ErrMalformedResponse, e.Err)
}

func (e *MalformedResponseError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrMalformedResponse) match.
func (e *MalformedResponseError) Is(target error) bool {
	return target == ErrMalformedResponse
}
