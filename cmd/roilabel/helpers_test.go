package main

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/nao1215/roilabel/internal/asap"
	"github.com/nao1215/roilabel/internal/geometry"
	"github.com/nao1215/roilabel/internal/model"
)

const testInfo = `{
	"name": "Test Server",
	"models": {
		"segmentation": {"type": "segmentation", "labels": ["tumor", "stroma"]},
		"deepedit": {"type": "deepedit", "labels": {"background": 0, "tumor": 1}}
	}
}`

// fakeServer is a minimal model server. Every image is resident.
type fakeServer struct {
	mu       sync.Mutex
	paths    []string
	response string
}

func (s *fakeServer) handler(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.paths = append(s.paths, r.URL.Path)
	s.mu.Unlock()

	switch {
	case r.URL.Path == "/info/":
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, testInfo)
	case r.URL.Path == "/datastore/image":
		w.WriteHeader(http.StatusOK)
	case strings.HasPrefix(r.URL.Path, "/infer/"):
		_, _ = io.WriteString(w, s.response)
	default:
		http.NotFound(w, r)
	}
}

func (s *fakeServer) inferPaths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, p := range s.paths {
		if strings.HasPrefix(p, "/infer/") {
			out = append(out, p)
		}
	}
	return out
}

func newFakeServer(t *testing.T, response string) (*httptest.Server, *fakeServer) {
	t.Helper()
	fs := &fakeServer{response: response}
	srv := httptest.NewServer(http.HandlerFunc(fs.handler))
	t.Cleanup(srv.Close)
	return srv, fs
}

// asapDocument builds a response with one polygon per label.
func asapDocument(polys map[string]geometry.Polygon) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0"?><ASAP_Annotations><Annotations>`)
	for label, poly := range polys {
		fmt.Fprintf(&b, `<Annotation Name=%q Type="Polygon" PartOfGroup=%q Color="#ff0000"><Coordinates>`, label, label)
		for i, p := range poly {
			fmt.Fprintf(&b, `<Coordinate Order="%d" X="%g" Y="%g"/>`, i, p.X, p.Y)
		}
		b.WriteString(`</Coordinates></Annotation>`)
	}
	b.WriteString(`</Annotations><AnnotationGroups/></ASAP_Annotations>`)
	return b.String()
}

func rect(x, y, w, h float64) geometry.Polygon {
	return geometry.Polygon{{X: x, Y: y}, {X: x + w, Y: y}, {X: x + w, Y: y + h}, {X: x, Y: y + h}}
}

// writeConfig writes a configuration file so tests never pick up a
// developer's own .roilabel.
func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func writeAnnotations(t *testing.T, path string, annotations ...model.Annotation) {
	t.Helper()
	if err := asap.SaveSnapshot(path, annotations); err != nil {
		t.Fatalf("failed to write annotations: %v", err)
	}
}

// execute runs the root command with args and returns its stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}
