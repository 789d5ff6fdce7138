package asap

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/nao1215/roilabel/internal/geometry"
	"github.com/nao1215/roilabel/internal/model"
)

// WriteSnapshot writes every annotation of a collection to w in global
// coordinates. Unlike Encode nothing is filtered and coordinates are not
// truncated, so LoadCollection restores the same geometry.
//
// Markers are written with Type="PointSet". Cells are written with
// Type="Cell" and two Coordinates blocks: the outline, then the nucleus.
func WriteSnapshot(w io.Writer, annotations []model.Annotation) error {
	doc := &xmlDocument{}
	groups := make(map[string]string)

	for _, a := range annotations {
		item := xmlAnnotation{
			Name:        a.LabelName(),
			Type:        a.ShapeName(),
			PartOfGroup: noGroup,
			Coordinates: []xmlCoordinates{formatPolygon(a.Geometry)},
		}
		if a.Label != nil {
			item.PartOfGroup = a.Label.Name
			item.Color = a.Label.Hex()
			groups[a.Label.Name] = item.Color
		}
		if a.Kind == model.KindCell {
			item.Type = TypeCell
			item.Coordinates = append(item.Coordinates, formatPolygon(a.Nucleus))
		}
		doc.Annotations.Items = append(doc.Annotations.Items, item)
	}

	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		doc.Groups.Items = append(doc.Groups.Items, xmlGroup{
			Name:        name,
			PartOfGroup: noGroup,
			Color:       groups[name],
		})
	}

	data, err := marshalDocument(doc)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	_, err = w.Write(data)
	return err
}

// SaveSnapshot writes a snapshot to path, replacing any existing file.
func SaveSnapshot(path string, annotations []model.Annotation) error {
	var buf bytes.Buffer
	if err := WriteSnapshot(&buf, annotations); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return nil
}

// LoadCollection reads a document into an in-memory collection and a label
// registry seeded with every group and annotation color it declares.
// Any ASAP document is accepted, not only snapshots: geometry is taken as
// global and each extra Coordinates block of a non-cell becomes its own
// annotation.
func LoadCollection(r io.Reader) (*model.Hierarchy, *model.Labels, error) {
	var annotations []*xmlAnnotation
	var groups []*xmlGroup

	err := walk(r, func(a *xmlAnnotation) {
		annotations = append(annotations, a)
	}, func(g *xmlGroup) {
		groups = append(groups, g)
	})
	if err != nil {
		return nil, nil, err
	}

	labels := model.NewLabels()
	for _, g := range groups {
		if color, ok := parseColor(g.Color); ok && g.Name != "" {
			_, _ = labels.Resolve(g.Name, color)
		}
	}

	h := model.NewHierarchy()
	for _, a := range annotations {
		var label *model.ClassLabel
		if a.Name != "" {
			color, _ := parseColor(a.Color)
			label, _ = labels.Resolve(a.Name, color)
		}

		blocks := make([]geometry.Polygon, 0, len(a.Coordinates))
		for _, c := range a.Coordinates {
			blocks = append(blocks, parsePolygon(c))
		}
		if len(blocks) == 0 {
			continue
		}

		switch {
		case strings.EqualFold(a.Type, TypeCell):
			ann := model.NewAnnotation(model.KindCell, blocks[0], label)
			if len(blocks) > 1 {
				ann.Nucleus = blocks[1]
			}
			h.Add(ann)
		case isPointType(a.Type):
			ann := model.NewAnnotation(model.KindPoint, flatten(blocks), label)
			ann.Shape = a.Type
			h.Add(ann)
		default:
			for _, poly := range blocks {
				if len(poly) == 0 {
					continue
				}
				ann := model.NewAnnotation(model.KindPolygon, poly, label)
				ann.Shape = a.Type
				h.Add(ann)
			}
		}
	}
	return h, labels, nil
}

// LoadFile reads a document from path with LoadCollection.
func LoadFile(path string) (*model.Hierarchy, *model.Labels, error) {
	f, err := os.Open(path) //nolint:gosec // path is provided by the user
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	return LoadCollection(f)
}

func isPointType(t string) bool {
	switch strings.ToLower(t) {
	case "pointset", "point", "points", "dot":
		return true
	default:
		return false
	}
}

func flatten(blocks []geometry.Polygon) geometry.Polygon {
	var out geometry.Polygon
	for _, b := range blocks {
		out = append(out, b...)
	}
	return out
}

func formatPolygon(poly geometry.Polygon) xmlCoordinates {
	block := xmlCoordinates{Items: make([]xmlCoordinate, len(poly))}
	for i, p := range poly {
		block.Items[i] = xmlCoordinate{
			Order: strconv.Itoa(i),
			X:     strconv.FormatFloat(p.X, 'f', -1, 64),
			Y:     strconv.FormatFloat(p.Y, 'f', -1, 64),
		}
	}
	return block
}

// parseColor parses "#rrggbb".
func parseColor(s string) (int, bool) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) != 6 {
		return 0, false
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, false
	}
	return int(v), true
}
