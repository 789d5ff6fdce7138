package model

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/nao1215/roilabel/internal/geometry"
)

// Interaction marker roles. They are matched case-insensitively.
const (
	PositiveLabel = "Positive"
	NegativeLabel = "Negative"
)

// ClassLabel is a named annotation class with a display color.
type ClassLabel struct {
	// Name identifies the class. Comparison is case-sensitive.
	Name string `json:"name"`

	// Color is an RGB color. Only the low 24 bits are meaningful.
	Color int `json:"color"`
}

// Hex formats the color as "#rrggbb" after masking it to 24 bits.
func (l ClassLabel) Hex() string {
	return fmt.Sprintf("#%06x", l.Color&0xFFFFFF)
}

// MatchesRole reports whether the label plays the given interaction role.
func (l ClassLabel) MatchesRole(role string) bool {
	return strings.EqualFold(l.Name, role)
}

// IsInteractionRole reports whether name is Positive or Negative in any case.
func IsInteractionRole(name string) bool {
	return strings.EqualFold(name, PositiveLabel) || strings.EqualFold(name, NegativeLabel)
}

// Kind distinguishes the role an annotation plays.
type Kind int

const (
	// KindPolygon is a region outline.
	KindPolygon Kind = iota

	// KindPoint is an interaction marker (one or more click points).
	KindPoint

	// KindCell is a cell outline carrying a nucleus sub-geometry.
	KindCell
)

// String returns the lowercase kind name used in snapshots and reports.
func (k Kind) String() string {
	switch k {
	case KindPolygon:
		return "polygon"
	case KindPoint:
		return "point"
	case KindCell:
		return "cell"
	default:
		return "unknown"
	}
}

// Annotation is one object in a Collection.
type Annotation struct {
	// ID is unique within a collection.
	ID string `json:"id"`

	// Geometry holds the outline vertices in global image coordinates.
	// For markers it holds the click points.
	Geometry geometry.Polygon `json:"geometry"`

	// Label is nil for unclassified objects.
	Label *ClassLabel `json:"label,omitempty"`

	Kind Kind `json:"kind"`

	// Shape is the geometry type name written to exchange documents
	// ("Polygon", "Rectangle", "PointSet" ...). Empty means derive from Kind.
	Shape string `json:"shape,omitempty"`

	// Nucleus is only set for KindCell.
	Nucleus geometry.Polygon `json:"nucleus,omitempty"`
}

// NewAnnotation creates an annotation with a fresh ID.
func NewAnnotation(kind Kind, geom geometry.Polygon, label *ClassLabel) Annotation {
	return Annotation{
		ID:       uuid.NewString(),
		Geometry: geom,
		Label:    label,
		Kind:     kind,
	}
}

// IsPoint reports whether the annotation is an interaction marker.
func (a Annotation) IsPoint() bool {
	return a.Kind == KindPoint
}

// LabelName returns the label name, or "" when unclassified.
func (a Annotation) LabelName() string {
	if a.Label == nil {
		return ""
	}
	return a.Label.Name
}

// ShapeName returns Shape, falling back to a name derived from Kind.
func (a Annotation) ShapeName() string {
	if a.Shape != "" {
		return a.Shape
	}
	if a.Kind == KindPoint {
		return "PointSet"
	}
	return "Polygon"
}

// ExportGeometry returns the geometry that represents the annotation in an
// exchange document: the nucleus for cells, the outline otherwise.
// ok is false when there is nothing to export.
func (a Annotation) ExportGeometry() (geometry.Polygon, bool) {
	g := a.Geometry
	if a.Kind == KindCell {
		g = a.Nucleus
	}
	return g, len(g) > 0
}

// Centroid returns the centroid of the outline geometry.
func (a Annotation) Centroid() (geometry.Point, bool) {
	return a.Geometry.Centroid()
}
