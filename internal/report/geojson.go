package report

import (
	"encoding/json"
	"io"

	"github.com/nao1215/roilabel/internal/geometry"
	"github.com/nao1215/roilabel/internal/model"
)

// FeatureCollection is a GeoJSON document of annotation outlines.
type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

// Feature is one annotation outline.
type Feature struct {
	Type       string     `json:"type"`
	ID         string     `json:"id,omitempty"`
	Geometry   Geometry   `json:"geometry"`
	Properties Properties `json:"properties"`
}

// Geometry is a GeoJSON Polygon with a single closed ring.
type Geometry struct {
	Type        string         `json:"type"`
	Coordinates [][][2]float64 `json:"coordinates"`
}

// Properties follows the layout QuPath reads.
type Properties struct {
	ObjectType     string          `json:"objectType"`
	Classification *Classification `json:"classification,omitempty"`
}

// Classification names the class and its RGB color.
type Classification struct {
	Name  string `json:"name"`
	Color [3]int `json:"color"`
}

// NewFeatureCollection converts annotations into features. Interaction
// markers and outlines with fewer than three vertices are skipped.
func NewFeatureCollection(annotations []model.Annotation) *FeatureCollection {
	fc := &FeatureCollection{Type: "FeatureCollection", Features: []Feature{}}
	for _, a := range annotations {
		if a.IsPoint() || len(a.Geometry) < 3 {
			continue
		}
		f := Feature{
			Type: "Feature",
			ID:   a.ID,
			Geometry: Geometry{
				Type:        "Polygon",
				Coordinates: [][][2]float64{closedRing(a.Geometry)},
			},
			Properties: Properties{ObjectType: "annotation"},
		}
		if a.Label != nil {
			f.Properties.Classification = &Classification{
				Name:  DisplayName(a.Label.Name),
				Color: rgb(a.Label.Color),
			}
		}
		fc.Features = append(fc.Features, f)
	}
	return fc
}

// closedRing returns the polygon vertices with the first vertex repeated
// at the end unless the polygon is already closed.
func closedRing(p geometry.Polygon) [][2]float64 {
	ring := make([][2]float64, 0, len(p)+1)
	for _, pt := range p {
		ring = append(ring, [2]float64{pt.X, pt.Y})
	}
	if ring[0] != ring[len(ring)-1] {
		ring = append(ring, ring[0])
	}
	return ring
}

func rgb(color int) [3]int {
	return [3]int{(color >> 16) & 0xFF, (color >> 8) & 0xFF, color & 0xFF}
}

// GeoJSONWriter writes annotations as a GeoJSON FeatureCollection.
type GeoJSONWriter struct {
	baseWriter
}

// NewGeoJSONWriter creates a GeoJSONWriter that outputs to the given writer.
func NewGeoJSONWriter(output io.Writer) *GeoJSONWriter {
	return &GeoJSONWriter{baseWriter: newBaseWriter(output)}
}

// Write outputs the feature collection of annotations.
func (w *GeoJSONWriter) Write(annotations []model.Annotation) (int, error) {
	data, err := json.Marshal(NewFeatureCollection(annotations))
	if err != nil {
		return 0, err
	}
	data = append(data, '\n')
	return w.output.Write(data)
}
