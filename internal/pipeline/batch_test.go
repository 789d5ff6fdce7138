package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nao1215/roilabel/internal/geometry"
	"github.com/nao1215/roilabel/internal/model"
)

func batchRuns(n int) []*Run {
	runs := make([]*Run, n)
	for i := range runs {
		runs[i] = NewRun(fmt.Sprintf("slide-%d.svs", i), segmentation, geometry.Region{Width: 256, Height: 256}, 0, model.NewHierarchy(), model.NewLabels())
	}
	return runs
}

// TestBatchProcessorNew tests the BatchProcessor constructor.
func TestBatchProcessorNew(t *testing.T) {
	t.Parallel()

	t.Run("creates processor with defaults", func(t *testing.T) {
		t.Parallel()

		bp := NewBatchProcessor(func() *Pipeline { return New() })
		if bp.concurrency != DefaultConcurrency {
			t.Errorf("expected default concurrency %d, got %d", DefaultConcurrency, bp.concurrency)
		}
		if bp.logger == nil {
			t.Error("expected default logger")
		}
	})

	t.Run("applies WithConcurrency option", func(t *testing.T) {
		t.Parallel()

		bp := NewBatchProcessor(func() *Pipeline { return New() }, WithConcurrency(5))
		if bp.concurrency != 5 {
			t.Errorf("expected concurrency 5, got %d", bp.concurrency)
		}
	})

	t.Run("ignores non-positive concurrency", func(t *testing.T) {
		t.Parallel()

		bp := NewBatchProcessor(func() *Pipeline { return New() }, WithConcurrency(0))
		if bp.concurrency != DefaultConcurrency {
			t.Errorf("expected default concurrency, got %d", bp.concurrency)
		}
	})

	t.Run("applies WithBatchLogger option", func(t *testing.T) {
		t.Parallel()

		logger := quietLogger()
		bp := NewBatchProcessor(func() *Pipeline { return New() }, WithBatchLogger(logger))
		if bp.logger != logger {
			t.Error("expected custom logger")
		}
	})
}

// TestProcessBatch tests ordering, failure isolation and the concurrency limit.
func TestProcessBatch(t *testing.T) {
	t.Parallel()

	var running, peak atomic.Int32
	factory := func() *Pipeline {
		p := New(WithLogger(quietLogger()))
		p.AddStep(&mockStep{name: "work", doFunc: func(_ context.Context, run *Run) error {
			n := running.Add(1)
			defer running.Add(-1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			if run.Report.Image == "slide-2" {
				return errors.New("server returned status 500")
			}
			run.Report.Added = 1
			return nil
		}})
		return p
	}

	runs := batchRuns(6)
	bp := NewBatchProcessor(factory, WithConcurrency(2), WithBatchLogger(quietLogger()))
	reports, err := bp.ProcessBatch(context.Background(), runs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(reports) != 6 {
		t.Fatalf("expected 6 reports, got %d", len(reports))
	}
	for i, r := range reports {
		if r.Image != fmt.Sprintf("slide-%d", i) {
			t.Errorf("report %d out of order: %s", i, r.Image)
		}
		if i == 2 {
			if !r.Failed() {
				t.Error("expected slide-2 to fail")
			}
			continue
		}
		if r.Failed() || r.Added != 1 {
			t.Errorf("unexpected report %+v", r)
		}
	}
	if peak.Load() > 2 {
		t.Errorf("expected at most 2 concurrent runs, saw %d", peak.Load())
	}
}

// TestProcessBatchWithCallback tests that every finished run is reported.
func TestProcessBatchWithCallback(t *testing.T) {
	t.Parallel()

	var (
		mu   sync.Mutex
		seen = map[int]string{}
	)
	bp := NewBatchProcessor(func() *Pipeline { return New(WithLogger(quietLogger())) }, WithBatchLogger(quietLogger()))
	err := bp.ProcessBatchWithCallback(context.Background(), batchRuns(3), func(run *Run, index int) {
		mu.Lock()
		defer mu.Unlock()
		seen[index] = run.Report.Image
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(seen) != 3 || seen[1] != "slide-1" {
		t.Errorf("unexpected callbacks %v", seen)
	}
}

// TestProcessBatchCancelled tests that a cancelled batch starts no runs.
func TestProcessBatchCancelled(t *testing.T) {
	t.Parallel()

	var started atomic.Int32
	factory := func() *Pipeline {
		p := New(WithLogger(quietLogger()))
		p.AddStep(&mockStep{name: "work", doFunc: func(context.Context, *Run) error {
			started.Add(1)
			return nil
		}})
		return p
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	bp := NewBatchProcessor(factory, WithBatchLogger(quietLogger()))
	reports, err := bp.ProcessBatch(ctx, batchRuns(4))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if started.Load() != 0 {
		t.Errorf("expected no run to start, %d did", started.Load())
	}
	for i, r := range reports {
		if r != nil {
			t.Errorf("expected nil report for run %d", i)
		}
	}
}
