package reconcile

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/nao1215/roilabel/internal/asap"
	"github.com/nao1215/roilabel/internal/geometry"
	"github.com/nao1215/roilabel/internal/model"
)

func rect(x, y, w, h float64) geometry.Polygon {
	return geometry.Polygon{{X: x, Y: y}, {X: x + w, Y: y}, {X: x + w, Y: y + h}, {X: x, Y: y + h}}
}

func labelSet(names ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return set
}

func countLabel(h *model.Hierarchy, name string, region geometry.Region) (inside, outside int) {
	for _, a := range h.Snapshot() {
		if a.LabelName() != name {
			continue
		}
		c, _ := a.Centroid()
		if region.Contains(c) {
			inside++
		} else {
			outside++
		}
	}
	return inside, outside
}

// TestReconcileOverrideReplaces tests override replacement within the region.
func TestReconcileOverrideReplaces(t *testing.T) {
	t.Parallel()

	region := geometry.Region{X: 0, Y: 0, Width: 100, Height: 100}
	tumor := &model.ClassLabel{Name: "Tumor", Color: 0x00ff00}
	outside := model.NewAnnotation(model.KindPolygon, rect(500, 500, 10, 10), tumor)

	h := model.NewHierarchy(
		model.NewAnnotation(model.KindPolygon, rect(10, 10, 10, 10), tumor),
		model.NewAnnotation(model.KindPolygon, rect(50, 50, 10, 10), tumor),
		outside,
	)
	registry := model.LabelsFrom(h.Snapshot())
	decoded := []asap.Decoded{{Label: "Tumor", Polygon: rect(30, 30, 20, 20)}}

	res := Reconcile(h, registry, labelSet("Tumor"), decoded, region, true)

	if res.Removed != 2 || res.Added != 1 {
		t.Errorf("unexpected result: %+v", res)
	}
	in, out := countLabel(h, "Tumor", region)
	if in != 1 || out != 1 {
		t.Fatalf("expected one Tumor inside and one outside, got %d and %d", in, out)
	}

	var added model.Annotation
	for _, a := range h.Snapshot() {
		if a.ID == outside.ID {
			continue
		}
		added = a
	}
	if added.Geometry[0] != (geometry.Point{X: 30, Y: 30}) || added.Kind != model.KindPolygon {
		t.Errorf("expected the new polygon, got %+v", added)
	}
	if added.Label != tumor {
		t.Error("expected the existing label to be reused")
	}
	if h.Notifications() != 1 {
		t.Errorf("expected one notification in override mode, got %d", h.Notifications())
	}
}

// TestReconcileOverrideIdempotent tests that repeating an override run keeps the count stable.
func TestReconcileOverrideIdempotent(t *testing.T) {
	t.Parallel()

	region := geometry.Region{X: 0, Y: 0, Width: 200, Height: 200}
	h := model.NewHierarchy(
		model.NewAnnotation(model.KindPolygon, rect(10, 10, 5, 5), &model.ClassLabel{Name: "Tumor"}),
		model.NewAnnotation(model.KindPolygon, rect(20, 20, 5, 5), &model.ClassLabel{Name: "Stroma"}),
	)
	registry := model.LabelsFrom(h.Snapshot())
	decoded := []asap.Decoded{
		{Label: "Tumor", Polygon: rect(40, 40, 5, 5)},
		{Label: "Tumor", Polygon: rect(60, 60, 5, 5)},
		{Label: "Stroma", Polygon: rect(80, 80, 5, 5)},
	}
	labels := labelSet("Tumor", "Stroma")

	Reconcile(h, registry, labels, decoded, region, true)
	first := h.Len()
	res := Reconcile(h, registry, labels, decoded, region, true)

	if h.Len() != first {
		t.Errorf("expected %d annotations after second run, got %d", first, h.Len())
	}
	if res.Removed != 3 || res.Added != 3 {
		t.Errorf("second run should remove what the first added, got %+v", res)
	}
}

// TestReconcileOverrideScope tests which annotations override removes.
func TestReconcileOverrideScope(t *testing.T) {
	t.Parallel()

	region := geometry.Region{X: 0, Y: 0, Width: 100, Height: 100}
	keepCase := model.NewAnnotation(model.KindPolygon, rect(10, 10, 5, 5), &model.ClassLabel{Name: "tumor"})
	keepOther := model.NewAnnotation(model.KindPolygon, rect(10, 10, 5, 5), &model.ClassLabel{Name: "Stroma"})
	keepUnlabelled := model.NewAnnotation(model.KindPolygon, rect(10, 10, 5, 5), nil)
	keepEdge := model.NewAnnotation(model.KindPolygon, rect(95, 95, 10, 10), &model.ClassLabel{Name: "Tumor"})
	removeMarker := model.NewAnnotation(model.KindPoint, geometry.Polygon{{X: 5, Y: 5}}, &model.ClassLabel{Name: "Tumor"})
	h := model.NewHierarchy(keepCase, keepOther, keepUnlabelled, keepEdge, removeMarker)

	res := Reconcile(h, model.NewLabels(), labelSet("Tumor"), nil, region, true)

	if res.Removed != 1 || res.Added != 0 {
		t.Errorf("unexpected result: %+v", res)
	}
	if h.Len() != 4 {
		t.Errorf("expected 4 annotations kept, got %d", h.Len())
	}
	for _, a := range h.Snapshot() {
		if a.ID == removeMarker.ID {
			t.Error("expected in-region Tumor marker to be removed")
		}
	}
}

// TestReconcileAdditive tests additive merging.
func TestReconcileAdditive(t *testing.T) {
	t.Parallel()

	region := geometry.Region{X: 0, Y: 0, Width: 100, Height: 100}
	existing := model.NewAnnotation(model.KindPolygon, rect(10, 10, 5, 5), &model.ClassLabel{Name: "Nuclei"})
	pos := model.NewAnnotation(model.KindPoint, geometry.Polygon{{X: 1, Y: 1}}, &model.ClassLabel{Name: "positive"})
	neg := model.NewAnnotation(model.KindPoint, geometry.Polygon{{X: 2, Y: 2}}, &model.ClassLabel{Name: "NEGATIVE"})
	scratch := model.NewAnnotation(model.KindPoint, geometry.Polygon{{X: 3, Y: 3}}, &model.ClassLabel{Name: "Seed"})
	unlabelled := model.NewAnnotation(model.KindPoint, geometry.Polygon{{X: 500, Y: 500}}, nil)
	h := model.NewHierarchy(existing, pos, neg, scratch, unlabelled)

	var notified []int
	h.Observe(func() { notified = append(notified, h.Len()) })

	decoded := []asap.Decoded{
		{Label: "Nuclei", Polygon: rect(10, 10, 5, 5)},
		{Label: "NewClass", Polygon: rect(20, 20, 5, 5)},
	}
	registry := model.LabelsFrom(h.Snapshot())
	res := Reconcile(h, registry, labelSet("Nuclei"), decoded, region, false)

	if res.Removed != 2 || res.Added != 2 {
		t.Errorf("unexpected result: %+v", res)
	}
	if h.Len() != 5 {
		t.Errorf("expected 5 annotations, got %d", h.Len())
	}

	ids := make(map[string]bool)
	for _, a := range h.Snapshot() {
		ids[a.ID] = true
	}
	for _, a := range []model.Annotation{existing, pos, neg} {
		if !ids[a.ID] {
			t.Errorf("expected %s annotation %q to be kept", a.Kind, a.LabelName())
		}
	}
	for _, a := range []model.Annotation{scratch, unlabelled} {
		if ids[a.ID] {
			t.Errorf("expected transient marker %q to be removed", a.LabelName())
		}
	}

	if len(notified) != 2 || notified[0] != 3 || notified[1] != 5 {
		t.Errorf("expected a notification after removal and one after insertion, got sizes %v", notified)
	}

	created, _ := registry.Resolve("NewClass", 0)
	if created.Color != DefaultLabelColor {
		t.Errorf("expected new label with default color, got %#x", created.Color)
	}
	if res.AddedByLabel["Nuclei"] != 1 || res.AddedByLabel["NewClass"] != 1 {
		t.Errorf("unexpected per-label counts: %v", res.AddedByLabel)
	}
}

type failingRegistry struct {
	inner model.LabelRegistry
	fail  string
}

func (r failingRegistry) Resolve(name string, color int) (*model.ClassLabel, error) {
	if name == r.fail {
		return nil, errors.New("registry is read-only")
	}
	return r.inner.Resolve(name, color)
}

// TestReconcileDropsUnresolvable tests that label failures drop the entry without aborting.
func TestReconcileDropsUnresolvable(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	h := model.NewHierarchy()
	registry := failingRegistry{inner: model.NewLabels(), fail: "Locked"}
	decoded := []asap.Decoded{
		{Label: "Locked", Polygon: rect(0, 0, 1, 1)},
		{Label: "Tumor", Polygon: rect(0, 0, 1, 1)},
		{Label: "", Polygon: rect(0, 0, 1, 1)},
	}

	res := Reconcile(h, registry, labelSet(), decoded, geometry.Region{}, true, WithLogger(logger))

	if res.Added != 1 || h.Len() != 1 {
		t.Errorf("expected only the resolvable entry, got %+v with %d annotations", res, h.Len())
	}
	if strings.Count(buf.String(), "dropping polygon") != 2 {
		t.Errorf("expected two warnings, got %q", buf.String())
	}
	if h.Notifications() != 1 {
		t.Errorf("expected one notification, got %d", h.Notifications())
	}
}

// TestReconcileCopiesGeometry tests that inserted annotations do not alias decoded data.
func TestReconcileCopiesGeometry(t *testing.T) {
	t.Parallel()

	h := model.NewHierarchy()
	decoded := []asap.Decoded{{Label: "Tumor", Polygon: rect(0, 0, 1, 1)}}
	Reconcile(h, model.NewLabels(), labelSet("Tumor"), decoded, geometry.Region{}, true)

	decoded[0].Polygon[0] = geometry.Point{X: 99, Y: 99}
	if h.Snapshot()[0].Geometry[0] != (geometry.Point{}) {
		t.Error("expected inserted geometry to be independent of the decoded slice")
	}
}
