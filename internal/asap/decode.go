package asap

import (
	"encoding/xml"
	"errors"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/nao1215/roilabel/internal/geometry"
)

// Decoded is one polygon read from a response document, in global coordinates.
type Decoded struct {
	Label   string
	Polygon geometry.Polygon
}

var errNoRoot = errors.New("document has no root element")

// Decode reads every Annotation element of a document, at any depth, and
// shifts its coordinates by offset into global space.
//
// Each Coordinates block of an annotation yields its own polygon. Coordinates
// with a missing or non-numeric X or Y are skipped, blocks left empty are
// dropped, and annotations without a Name are dropped. Only a document that
// cannot be parsed at all fails, with a *MalformedResponseError.
func Decode(r io.Reader, offset geometry.Offset) ([]Decoded, error) {
	var out []Decoded
	err := walk(r, func(a *xmlAnnotation) {
		if a.Name == "" {
			return
		}
		for _, block := range a.Coordinates {
			poly := parsePolygon(block)
			if len(poly) == 0 {
				continue
			}
			out = append(out, Decoded{
				Label:   a.Name,
				Polygon: offset.PolygonToGlobal(poly),
			})
		}
	}, nil)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// walk streams the document and calls fn for each Annotation element and
// groupFn, when non-nil, for each Group element. Callbacks run only after the
// whole document parsed, so a syntax error anywhere leaves them uncalled.
func walk(r io.Reader, fn func(*xmlAnnotation), groupFn func(*xmlGroup)) error {
	dec := xml.NewDecoder(r)
	var pending []*xmlAnnotation
	var groups []*xmlGroup
	sawRoot := false

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return &MalformedResponseError{Err: err}
		}

		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		sawRoot = true

		switch start.Name.Local {
		case "Annotation":
			var a xmlAnnotation
			if err := dec.DecodeElement(&a, &start); err != nil {
				return &MalformedResponseError{Err: err}
			}
			pending = append(pending, &a)
		case "Group":
			var g xmlGroup
			if err := dec.DecodeElement(&g, &start); err != nil {
				return &MalformedResponseError{Err: err}
			}
			groups = append(groups, &g)
		}
	}

	if !sawRoot {
		return &MalformedResponseError{Err: errNoRoot}
	}
	for _, a := range pending {
		fn(a)
	}
	if groupFn != nil {
		for _, g := range groups {
			groupFn(g)
		}
	}
	return nil
}

func parsePolygon(block xmlCoordinates) geometry.Polygon {
	poly := make(geometry.Polygon, 0, len(block.Items))
	for _, c := range block.Items {
		p, ok := parsePoint(c)
		if !ok {
			continue
		}
		poly = append(poly, p)
	}
	return poly
}

func parsePoint(c xmlCoordinate) (geometry.Point, bool) {
	x, err := strconv.ParseFloat(strings.TrimSpace(c.X), 64)
	if err != nil {
		return geometry.Point{}, false
	}
	y, err := strconv.ParseFloat(strings.TrimSpace(c.Y), 64)
	if err != nil {
		return geometry.Point{}, false
	}
	if !finite(x) || !finite(y) {
		return geometry.Point{}, false
	}
	return geometry.Point{X: x, Y: y}, true
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
