package infer

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nao1215/roilabel/internal/geometry"
	"github.com/nao1215/roilabel/internal/model"
)

var (
	positive = &model.ClassLabel{Name: "Positive", Color: 0x00ff00}
	negative = &model.ClassLabel{Name: "negative", Color: 0x0000ff}
	other    = &model.ClassLabel{Name: "Other"}
)

func click(label *model.ClassLabel, pts ...geometry.Point) model.Annotation {
	return model.NewAnnotation(model.KindPoint, geometry.Polygon(pts), label)
}

var (
	deepedit     = ModelInfo{Name: "deepedit", Type: TypeDeepEdit, Labels: Labels{"Tumor"}}
	segmentation = ModelInfo{Name: "segmentation", Type: TypeSegmentation, Labels: Labels{"Tumor", "Stroma"}}
	nuclick      = ModelInfo{Name: "nuclick", Type: TypeSegmentation, Nuclick: true, Labels: Labels{"Nuclei"}}
)

// TestServerInfoJSON tests decoding of the server's /info/ payload.
func TestServerInfoJSON(t *testing.T) {
	t.Parallel()

	const body = `{
		"name": "pathology",
		"models": {
			"segmentation": {"type": "segmentation", "labels": {"stroma": 2, "tumor": 1, "other": 3}},
			"nuclick": {"type": "nuclick", "labels": ["Nuclei"], "nuclick": true},
			"deepedit": {"type": "deepedit", "labels": null}
		}
	}`

	var info ServerInfo
	if err := json.Unmarshal([]byte(body), &info); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := strings.Join(info.ModelNames(), ","); got != "deepedit,nuclick,segmentation" {
		t.Errorf("unexpected model names: %s", got)
	}

	seg, err := info.Model("segmentation")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seg.Name != "segmentation" {
		t.Errorf("expected name from map key, got %q", seg.Name)
	}
	if got := strings.Join(seg.Labels, ","); got != "tumor,stroma,other" {
		t.Errorf("expected labels ordered by index, got %s", got)
	}

	nc, _ := info.Model("nuclick")
	if !nc.Nuclick || len(nc.Labels) != 1 {
		t.Errorf("unexpected nuclick model: %+v", nc)
	}

	de, _ := info.Model("deepedit")
	if de.Labels != nil {
		t.Errorf("expected nil labels, got %v", de.Labels)
	}

	if _, err := info.Model("missing"); !errors.Is(err, ErrUnknownModel) {
		t.Errorf("expected ErrUnknownModel, got %v", err)
	}
}

// TestLabelsInvalid tests rejection of unsupported label encodings.
func TestLabelsInvalid(t *testing.T) {
	t.Parallel()

	var l Labels
	if err := json.Unmarshal([]byte(`42`), &l); err == nil {
		t.Error("expected error for numeric labels")
	}
}

// TestSelectModel tests model selection from remembered defaults.
func TestSelectModel(t *testing.T) {
	t.Parallel()

	info := &ServerInfo{Models: map[string]ModelInfo{
		"b": {Name: "b"},
		"a": {Name: "a"},
	}}

	testCases := []struct {
		name       string
		candidates []string
		want       string
	}{
		{name: "first candidate offered", candidates: []string{"b", "a"}, want: "b"},
		{name: "skip unknown and empty", candidates: []string{"", "zzz", "b"}, want: "b"},
		{name: "fall back to first by name", candidates: []string{"zzz"}, want: "a"},
		{name: "no candidates", want: "a"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			m, err := info.SelectModel(tc.candidates...)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if m.Name != tc.want {
				t.Errorf("got %q, want %q", m.Name, tc.want)
			}
		})
	}

	empty := &ServerInfo{}
	if _, err := empty.SelectModel("a"); !errors.Is(err, ErrNoModels) {
		t.Errorf("expected ErrNoModels, got %v", err)
	}
}

// TestModelPolicy tests marker mode, validation and merge policy per model type.
func TestModelPolicy(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		model     ModelInfo
		mode      MarkerMode
		validates bool
		override  bool
	}{
		{model: segmentation, mode: SingleClassMarker, validates: false, override: true},
		{model: nuclick, mode: SingleClassMarker, validates: false, override: false},
		{model: ModelInfo{Type: "NuClick"}, mode: SingleClassMarker, validates: false, override: false},
		{model: deepedit, mode: DualClassMarker, validates: true, override: false},
		{model: ModelInfo{Type: "DeepGrow"}, mode: DualClassMarker, validates: true, override: false},
		{model: ModelInfo{Type: TypeInteractive}, mode: DualClassMarker, validates: true, override: false},
		{model: ModelInfo{}, mode: SingleClassMarker, validates: false, override: true},
	}

	for _, tc := range testCases {
		t.Run(tc.model.Type+"/"+tc.model.Name, func(t *testing.T) {
			t.Parallel()
			if got := tc.model.MarkerMode(); got != tc.mode {
				t.Errorf("MarkerMode() = %s, want %s", got, tc.mode)
			}
			if got := tc.model.ValidatesClicks(); got != tc.validates {
				t.Errorf("ValidatesClicks() = %v, want %v", got, tc.validates)
			}
			if got := tc.model.Override(); got != tc.override {
				t.Errorf("Override() = %v, want %v", got, tc.override)
			}
		})
	}

	if SingleClassMarker.String() != "single-class" || DualClassMarker.String() != "dual-class" || MarkerMode(9).String() != "unknown" {
		t.Error("unexpected MarkerMode strings")
	}
}

// TestCollect tests click point collection.
func TestCollect(t *testing.T) {
	t.Parallel()

	region := geometry.Region{X: 100, Y: 100, Width: 200, Height: 200}
	offset := geometry.OffsetOf(region)
	anns := []model.Annotation{
		click(positive, geometry.Point{X: 150, Y: 150}, geometry.Point{X: 10, Y: 10}),
		click(negative, geometry.Point{X: 299, Y: 299}, geometry.Point{X: 300, Y: 300}),
		click(other, geometry.Point{X: 200, Y: 200}),
		click(nil, geometry.Point{X: 210, Y: 210}),
		model.NewAnnotation(model.KindPolygon, geometry.Polygon{{X: 120, Y: 120}}, positive),
	}

	t.Run("dual-class positive", func(t *testing.T) {
		t.Parallel()
		got := Collect(model.PositiveLabel, anns, region, offset, DualClassMarker)
		if len(got) != 1 || got[0] != (geometry.Point{X: 50, Y: 50}) {
			t.Errorf("got %v", got)
		}
	})

	t.Run("dual-class negative matches case-insensitively", func(t *testing.T) {
		t.Parallel()
		got := Collect(model.NegativeLabel, anns, region, offset, DualClassMarker)
		if len(got) != 1 || got[0] != (geometry.Point{X: 199, Y: 199}) {
			t.Errorf("got %v", got)
		}
	})

	t.Run("single-class takes every marker inside", func(t *testing.T) {
		t.Parallel()
		got := Collect("", anns, region, geometry.Offset{}, SingleClassMarker)
		want := []geometry.Point{{X: 150, Y: 150}, {X: 299, Y: 299}, {X: 200, Y: 200}, {X: 210, Y: 210}}
		if len(got) != len(want) {
			t.Fatalf("got %v, want %v", got, want)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("point %d: got %+v, want %+v", i, got[i], want[i])
			}
		}
	})
}

// TestBuildInteractiveWithoutClicks tests that an interactive model without clicks is rejected.
func TestBuildInteractiveWithoutClicks(t *testing.T) {
	t.Parallel()

	region := geometry.Region{Width: 200, Height: 200}
	req, err := NewBuilder(2).Build(deepedit, region, 1024, nil, &Target{})
	if req != nil {
		t.Error("expected no request")
	}
	if !errors.Is(err, ErrInsufficientInteraction) {
		t.Fatalf("expected ErrInsufficientInteraction, got %v", err)
	}
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Model != "deepedit" || verr.Region != region {
		t.Errorf("expected *ValidationError with context, got %#v", err)
	}
}

// TestBuildRegionTooSmall tests the minimum region rule regardless of clicks.
func TestBuildRegionTooSmall(t *testing.T) {
	t.Parallel()

	withClicks := []model.Annotation{click(positive, geometry.Point{X: 10, Y: 10})}

	testCases := []struct {
		name   string
		region geometry.Region
		anns   []model.Annotation
	}{
		{name: "narrow with clicks", region: geometry.Region{Width: 127, Height: 500}, anns: withClicks},
		{name: "short with clicks", region: geometry.Region{Width: 500, Height: 100}, anns: withClicks},
		{name: "small without clicks", region: geometry.Region{Width: 64, Height: 64}},
		{name: "whole image sentinel", region: geometry.Region{}, anns: withClicks},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := NewBuilder(1).Build(deepedit, tc.region, 1024, tc.anns, &Target{})
			if !errors.Is(err, ErrRegionTooSmall) {
				t.Errorf("expected ErrRegionTooSmall, got %v", err)
			}
			if err != nil && !strings.Contains(err.Error(), "128") {
				t.Errorf("expected message to name the minimum, got %q", err)
			}
		})
	}
}

// TestBuildSingleClassSkipsValidation tests that non-interactive models never validate clicks.
func TestBuildSingleClassSkipsValidation(t *testing.T) {
	t.Parallel()

	for _, m := range []ModelInfo{segmentation, nuclick} {
		req, err := NewBuilder(0).Build(m, geometry.Region{Width: 10, Height: 10}, 0, nil, &Target{})
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", m.Name, err)
		}
		if req.TileSize != [2]int{model.DefaultTileSize, model.DefaultTileSize} {
			t.Errorf("%s: expected default tile size, got %v", m.Name, req.TileSize)
		}
		if req.Params.MaxWorkers != DefaultMaxWorkers {
			t.Errorf("%s: expected default workers, got %d", m.Name, req.Params.MaxWorkers)
		}
	}
}

// TestBuildRequest tests the assembled request and its JSON encoding.
func TestBuildRequest(t *testing.T) {
	t.Parallel()

	region := geometry.Region{X: 1000, Y: 2000, Width: 256, Height: 300}
	anns := []model.Annotation{
		click(positive, geometry.Point{X: 1010.5, Y: 2020}),
		click(negative, geometry.Point{X: 1100, Y: 2100}),
	}

	t.Run("uploaded patch uses local clicks", func(t *testing.T) {
		t.Parallel()

		target := &Target{Offset: geometry.OffsetOf(region)}
		req, err := NewBuilder(4).Build(deepedit, region, 512, anns, target)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		data, err := json.Marshal(req)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := `{"model_name":"deepedit","image_name":null,"location":[1000,2000],"size":[256,300],"tile_size":[512,512],` +
			`"params":{"foreground_points":[[10.5,20]],"background_points":[[100,100]],"max_workers":4}}`
		if string(data) != want {
			t.Errorf("got  %s\nwant %s", data, want)
		}
	})

	t.Run("resident image uses global clicks", func(t *testing.T) {
		t.Parallel()

		name := "slide-1"
		req, err := NewBuilder(1).Build(deepedit, region, 512, anns, &Target{Name: name, Image: &name})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if req.ImageName == nil || *req.ImageName != "slide-1" {
			t.Errorf("expected image name, got %v", req.ImageName)
		}
		if req.Params.ForegroundPoints[0] != [2]float64{1010.5, 2020} {
			t.Errorf("expected global click, got %v", req.Params.ForegroundPoints)
		}
	})

	t.Run("empty point sets encode as lists", func(t *testing.T) {
		t.Parallel()

		req, err := NewBuilder(1).Build(segmentation, region, 512, nil, &Target{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		data, _ := json.Marshal(req.Params)
		if !strings.Contains(string(data), `"foreground_points":[]`) || !strings.Contains(string(data), `"background_points":[]`) {
			t.Errorf("unexpected params: %s", data)
		}
	})
}

type fakeStore struct {
	resident map[string]bool
	err      error
}

func (s fakeStore) ImageExists(_ context.Context, image string) (bool, error) {
	return s.resident[image], s.err
}

type fakeRenderer struct {
	err    error
	called int
	dst    string
}

func (r *fakeRenderer) RenderPatch(_ context.Context, _ string, _ geometry.Region, dst string) error {
	r.called++
	r.dst = dst
	if r.err != nil {
		return r.err
	}
	return os.WriteFile(dst, []byte("png"), 0o600)
}

// TestPlan tests image residency planning.
func TestPlan(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	region := geometry.Region{X: 10, Y: 20, Width: 300, Height: 400}

	t.Run("resident image", func(t *testing.T) {
		t.Parallel()

		target, err := Plan(ctx, fakeStore{resident: map[string]bool{"slide-1": true}}, "/data/slide-1.svs", region, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !target.Resident() || *target.Image != "slide-1" || !target.Offset.IsZero() || target.UploadPath != "" {
			t.Errorf("unexpected target: %+v", target)
		}
	})

	t.Run("flat image on disk is uploaded whole", func(t *testing.T) {
		t.Parallel()

		src := filepath.Join(t.TempDir(), "Image.JPG")
		if err := os.WriteFile(src, []byte("jpg"), 0o600); err != nil {
			t.Fatal(err)
		}

		r := &fakeRenderer{}
		target, err := Plan(ctx, fakeStore{}, src, region, r)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if target.Resident() || target.UploadPath != src || target.UploadName != "Image" {
			t.Errorf("unexpected target: %+v", target)
		}
		if !target.Offset.IsZero() || target.Warning == "" {
			t.Errorf("expected zero offset and a warning, got %+v", target)
		}
		if r.called != 0 || len(target.Artifacts()) != 0 {
			t.Error("flat upload must not render a patch")
		}
	})

	t.Run("remote slide without region", func(t *testing.T) {
		t.Parallel()

		r := &fakeRenderer{}
		_, err := Plan(ctx, fakeStore{}, "/data/slide-1.svs", geometry.Region{}, r)
		if !errors.Is(err, ErrRemoteImageWithoutRegion) {
			t.Errorf("expected ErrRemoteImageWithoutRegion, got %v", err)
		}
		if r.called != 0 {
			t.Error("renderer must not be called")
		}
	})

	t.Run("missing flat image falls back to patch", func(t *testing.T) {
		t.Parallel()

		r := &fakeRenderer{}
		target, err := Plan(ctx, fakeStore{}, "/nonexistent/photo.png", region, r)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer target.Cleanup()
		if target.UploadName != "photo-patch-10_20_300_400" {
			t.Errorf("unexpected patch name %q", target.UploadName)
		}
	})

	t.Run("patch is rendered and cleaned up", func(t *testing.T) {
		t.Parallel()

		r := &fakeRenderer{}
		target, err := Plan(ctx, fakeStore{}, "/data/slide-1.svs", region, r)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if target.Offset != geometry.OffsetOf(region) {
			t.Errorf("expected region offset, got %+v", target.Offset)
		}
		if target.UploadName != "slide-1-patch-10_20_300_400" || filepath.Ext(target.UploadPath) != ".png" {
			t.Errorf("unexpected target: %+v", target)
		}
		if _, err := os.Stat(target.UploadPath); err != nil {
			t.Fatalf("expected patch file: %v", err)
		}
		if len(target.Artifacts()) != 1 {
			t.Fatalf("expected one artifact, got %v", target.Artifacts())
		}

		if err := target.Cleanup(); err != nil {
			t.Fatalf("Cleanup failed: %v", err)
		}
		if _, err := os.Stat(target.UploadPath); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("expected patch removed, got %v", err)
		}
		if err := target.Cleanup(); err != nil {
			t.Errorf("second Cleanup must be a no-op, got %v", err)
		}
	})

	t.Run("render failure leaves no file", func(t *testing.T) {
		t.Parallel()

		r := &fakeRenderer{err: errors.New("read error")}
		_, err := Plan(ctx, fakeStore{}, "/data/slide-2.svs", region, r)
		if err == nil || !strings.Contains(err.Error(), "read error") {
			t.Fatalf("expected render error, got %v", err)
		}
		if _, err := os.Stat(r.dst); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("expected patch file %q removed, got %v", r.dst, err)
		}
	})

	t.Run("no renderer", func(t *testing.T) {
		t.Parallel()

		_, err := Plan(ctx, fakeStore{}, "/data/slide-1.svs", region, nil)
		if !errors.Is(err, ErrNoPatchRenderer) {
			t.Errorf("expected ErrNoPatchRenderer, got %v", err)
		}
	})

	t.Run("store error", func(t *testing.T) {
		t.Parallel()

		boom := errors.New("connection refused")
		_, err := Plan(ctx, fakeStore{err: boom}, "/data/slide-1.svs", region, nil)
		if !errors.Is(err, boom) {
			t.Errorf("expected store error, got %v", err)
		}
	})
}

// TestPrerenderedPatch tests copying a patch rendered elsewhere.
func TestPrerenderedPatch(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	src := filepath.Join(dir, "patch.png")
	if err := os.WriteFile(src, []byte("pixels"), 0o600); err != nil {
		t.Fatal(err)
	}
	dst := filepath.Join(dir, "out.png")

	if err := (PrerenderedPatch{Path: src}).RenderPatch(context.Background(), "slide.svs", geometry.Region{}, dst); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, err := os.ReadFile(dst) //nolint:gosec // test file
	if err != nil || string(data) != "pixels" {
		t.Errorf("got %q, %v", data, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := (PrerenderedPatch{Path: src}).RenderPatch(ctx, "", geometry.Region{}, dst); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

// TestImageNaming tests image name helpers.
func TestImageNaming(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		source string
		name   string
		flat   bool
	}{
		{source: "/a/b/slide.svs", name: "slide", flat: false},
		{source: "photo.PNG", name: "photo", flat: true},
		{source: "x.y.jpeg", name: "x.y", flat: true},
		{source: "noext", name: "noext", flat: false},
	}

	for _, tc := range testCases {
		t.Run(tc.source, func(t *testing.T) {
			t.Parallel()
			if got := ImageName(tc.source); got != tc.name {
				t.Errorf("ImageName = %q, want %q", got, tc.name)
			}
			if got := IsFlatImage(tc.source); got != tc.flat {
				t.Errorf("IsFlatImage = %v, want %v", got, tc.flat)
			}
		})
	}
}
