package geometry

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrInvalidRegion is returned when a region has a negative extent or cannot be parsed.
var ErrInvalidRegion = errors.New("invalid region: expected x,y,w,h with non-negative width and height")

// Point is an immutable 2D coordinate.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Polygon is an ordered list of vertices. Vertex order is significant.
type Polygon []Point

// Region is an axis-aligned rectangle in global image coordinates.
//
// A region with zero width and zero height is the whole-image sentinel:
// no crop is applied and every point is considered inside.
type Region struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Offset translates between global coordinates and a local frame.
// It is zero when the image is resident on the server and equal to the
// region origin when a cropped patch had to be uploaded.
type Offset struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// OffsetOf returns the offset whose local frame starts at the region origin.
func OffsetOf(r Region) Offset {
	return Offset{X: float64(r.X), Y: float64(r.Y)}
}

// IsZero reports whether the offset leaves coordinates unchanged.
func (o Offset) IsZero() bool {
	return o.X == 0 && o.Y == 0
}

// ToLocal converts a global point into the offset's local frame.
func (o Offset) ToLocal(p Point) Point {
	return Point{X: p.X - o.X, Y: p.Y - o.Y}
}

// ToGlobal converts a local point back into global coordinates.
func (o Offset) ToGlobal(p Point) Point {
	return Point{X: p.X + o.X, Y: p.Y + o.Y}
}

// PolygonToLocal converts every vertex of poly into the local frame.
func (o Offset) PolygonToLocal(poly Polygon) Polygon {
	out := make(Polygon, len(poly))
	for i, p := range poly {
		out[i] = o.ToLocal(p)
	}
	return out
}

// PolygonToGlobal converts every vertex of poly into global coordinates.
func (o Offset) PolygonToGlobal(poly Polygon) Polygon {
	out := make(Polygon, len(poly))
	for i, p := range poly {
		out[i] = o.ToGlobal(p)
	}
	return out
}

// IsWholeImage reports whether r is the "whole image, no crop" sentinel.
func (r Region) IsWholeImage() bool {
	return r.Width == 0 && r.Height == 0
}

// HasArea reports whether r describes a real crop window. A region with only
// one zero dimension has no area and applies no spatial filter either.
func (r Region) HasArea() bool {
	return r.Width > 0 && r.Height > 0
}

// Validate checks the non-negative extent invariant.
func (r Region) Validate() error {
	if r.Width < 0 || r.Height < 0 {
		return fmt.Errorf("%w: got %s", ErrInvalidRegion, r)
	}
	return nil
}

// Contains reports whether the global point p lies inside r.
// The test is half-open: the left and top edges are inside, the right and
// bottom edges are not. The whole-image sentinel contains every point.
func (r Region) Contains(p Point) bool {
	if r.IsWholeImage() {
		return true
	}
	return p.X >= float64(r.X) && p.X < float64(r.X+r.Width) &&
		p.Y >= float64(r.Y) && p.Y < float64(r.Y+r.Height)
}

// String formats r as "[x, y, w, h]", the same form ParseRegion accepts.
func (r Region) String() string {
	return fmt.Sprintf("[%d, %d, %d, %d]", r.X, r.Y, r.Width, r.Height)
}

// ParseRegion parses "x,y,w,h". Surrounding brackets and whitespace are
// ignored so that the output of Region.String round-trips.
func ParseRegion(s string) (Region, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")

	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return Region{}, fmt.Errorf("%w: %q", ErrInvalidRegion, s)
	}

	var v [4]int
	for i, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return Region{}, fmt.Errorf("%w: %q", ErrInvalidRegion, s)
		}
		v[i] = n
	}

	r := Region{X: v[0], Y: v[1], Width: v[2], Height: v[3]}
	if err := r.Validate(); err != nil {
		return Region{}, err
	}
	return r, nil
}

// Truncate converts a coordinate to an integer toward zero.
// It is applied once, at document write time.
func Truncate(v float64) int {
	return int(v)
}

// Centroid returns the area-weighted centroid of the polygon.
// Degenerate shapes (points, lines, zero area) fall back to the vertex mean.
// An empty polygon yields the zero point and ok=false.
func (poly Polygon) Centroid() (c Point, ok bool) {
	n := len(poly)
	if n == 0 {
		return Point{}, false
	}
	if n < 3 {
		return poly.mean(), true
	}

	var area, cx, cy float64
	for i := 0; i < n; i++ {
		p := poly[i]
		q := poly[(i+1)%n]
		cross := p.X*q.Y - q.X*p.Y
		area += cross
		cx += (p.X + q.X) * cross
		cy += (p.Y + q.Y) * cross
	}
	area /= 2
	if math.Abs(area) < 1e-12 {
		return poly.mean(), true
	}

	return Point{X: cx / (6 * area), Y: cy / (6 * area)}, true
}

func (poly Polygon) mean() Point {
	var sx, sy float64
	for _, p := range poly {
		sx += p.X
		sy += p.Y
	}
	n := float64(len(poly))
	return Point{X: sx / n, Y: sy / n}
}
