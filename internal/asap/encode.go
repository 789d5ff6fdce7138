package asap

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	"github.com/nao1215/roilabel/internal/geometry"
	"github.com/nao1215/roilabel/internal/model"
)

// Document is a label document scoped to a region.
// It is built by Encode and not modified afterwards.
type Document struct {
	// Region is the bounding region the document was scoped to.
	Region geometry.Region

	// Annotations are the exported annotations in collection order.
	Annotations []Entry

	// Groups maps every label name used by Annotations to its "#rrggbb" color.
	Groups map[string]string
}

// Entry is one exported annotation.
type Entry struct {
	Name        string
	Type        string
	Color       string
	Coordinates []Coordinate
}

// Coordinate is a truncated, region-local vertex.
type Coordinate struct {
	Order int
	X     int
	Y     int
}

// Encode builds a label document from the annotations that belong to region.
//
// Unlabelled annotations and interaction markers are skipped. Cells are
// represented by their nucleus. When region has an area, annotations whose
// centroid lies outside it are skipped. Vertices are truncated to integers and
// expressed relative to the region origin.
//
// Encode returns an *EmptyExportError when nothing qualifies.
func Encode(region geometry.Region, annotations []model.Annotation) (*Document, error) {
	if err := region.Validate(); err != nil {
		return nil, err
	}

	doc := &Document{
		Region: region,
		Groups: make(map[string]string),
	}
	scoped := region.HasArea()

	for _, a := range annotations {
		name := a.LabelName()
		if name == "" || a.IsPoint() {
			continue
		}

		geom, ok := a.ExportGeometry()
		if !ok {
			continue
		}

		if scoped {
			c, _ := geom.Centroid()
			if !region.Contains(c) {
				continue
			}
		}

		color := a.Label.Hex()
		doc.Groups[name] = color

		entry := Entry{
			Name:        name,
			Type:        exportType(a),
			Color:       color,
			Coordinates: make([]Coordinate, len(geom)),
		}
		for i, p := range geom {
			entry.Coordinates[i] = Coordinate{
				Order: i,
				X:     geometry.Truncate(p.X) - region.X,
				Y:     geometry.Truncate(p.Y) - region.Y,
			}
		}
		doc.Annotations = append(doc.Annotations, entry)
	}

	if len(doc.Annotations) == 0 {
		return nil, &EmptyExportError{Region: region}
	}
	return doc, nil
}

func exportType(a model.Annotation) string {
	if a.Kind == model.KindCell {
		return TypePolygon
	}
	return a.ShapeName()
}

// Len returns the number of exported annotations.
func (d *Document) Len() int {
	return len(d.Annotations)
}

func (d *Document) toXML() *xmlDocument {
	out := &xmlDocument{
		Annotations: xmlAnnotations{
			X: d.Region.X,
			Y: d.Region.Y,
			W: d.Region.Width,
			H: d.Region.Height,
		},
	}

	for _, e := range d.Annotations {
		coords := xmlCoordinates{Items: make([]xmlCoordinate, len(e.Coordinates))}
		for i, c := range e.Coordinates {
			coords.Items[i] = xmlCoordinate{
				Order: strconv.Itoa(c.Order),
				X:     strconv.Itoa(c.X),
				Y:     strconv.Itoa(c.Y),
			}
		}
		out.Annotations.Items = append(out.Annotations.Items, xmlAnnotation{
			Name:        e.Name,
			Type:        e.Type,
			PartOfGroup: e.Name,
			Color:       e.Color,
			Coordinates: []xmlCoordinates{coords},
		})
	}

	names := make([]string, 0, len(d.Groups))
	for name := range d.Groups {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		out.Groups.Items = append(out.Groups.Items, xmlGroup{
			Name:        name,
			PartOfGroup: noGroup,
			Color:       d.Groups[name],
		})
	}
	return out
}

// Marshal returns the indented XML encoding of the document.
func (d *Document) Marshal() ([]byte, error) {
	return marshalDocument(d.toXML())
}

// WriteTo writes the XML encoding of the document to w.
func (d *Document) WriteTo(w io.Writer) (int64, error) {
	data, err := d.Marshal()
	if err != nil {
		return 0, err
	}
	return bytes.NewReader(data).WriteTo(w)
}

// WriteTempFile writes the document to a new temporary file in dir and
// returns its path. The caller owns the file and must remove it.
func (d *Document) WriteTempFile(dir, pattern string) (string, error) {
	f, err := os.CreateTemp(dir, pattern+"-*.xml")
	if err != nil {
		return "", fmt.Errorf("failed to create label document: %w", err)
	}
	path := f.Name()

	if _, err := d.WriteTo(f); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("failed to write label document: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("failed to close label document: %w", err)
	}
	return path, nil
}
