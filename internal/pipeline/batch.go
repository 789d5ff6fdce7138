package pipeline

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/roilabel/internal/model"
)

// DefaultConcurrency is the number of runs processed at once.
const DefaultConcurrency = 2

// BatchProcessor runs several images concurrently. Each run needs its own
// collection; two runs must never share one.
type BatchProcessor struct {
	// pipelineFactory creates a fresh pipeline per run.
	pipelineFactory func() *Pipeline
	concurrency     int
	logger          *slog.Logger
}

// BatchOption configures a BatchProcessor.
type BatchOption func(*BatchProcessor)

// WithBatchLogger sets the logger for batch-level messages.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(b *BatchProcessor) {
		b.logger = logger
	}
}

// WithConcurrency sets the maximum number of concurrent runs.
// Non-positive values keep the default.
func WithConcurrency(n int) BatchOption {
	return func(b *BatchProcessor) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// NewBatchProcessor creates a BatchProcessor.
func NewBatchProcessor(pipelineFactory func() *Pipeline, opts ...BatchOption) *BatchProcessor {
	bp := &BatchProcessor{
		pipelineFactory: pipelineFactory,
		concurrency:     DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(bp)
	}
	if bp.logger == nil {
		bp.logger = slog.Default()
	}
	return bp
}

// ProcessBatch executes every run and returns their reports in input order.
// A failed run does not stop the others; its error is on its report. The
// returned error is non-nil only when ctx was cancelled, in which case runs
// that never started have a nil report.
func (bp *BatchProcessor) ProcessBatch(ctx context.Context, runs []*Run) ([]*model.RunReport, error) {
	reports := make([]*model.RunReport, len(runs))
	err := bp.ProcessBatchWithCallback(ctx, runs, func(run *Run, index int) {
		reports[index] = run.Report
	})
	return reports, err
}

// ProcessBatchWithCallback executes every run and calls callback after each
// one finishes. callback runs on the worker goroutine and must be safe for
// concurrent use.
func (bp *BatchProcessor) ProcessBatchWithCallback(ctx context.Context, runs []*Run, callback func(run *Run, index int)) error {
	bp.logger.Debug("starting batch", "runs", len(runs), "concurrency", bp.concurrency)
	start := time.Now()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(bp.concurrency)

	for i, run := range runs {
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			if err := bp.pipelineFactory().Execute(ctx, run); err != nil {
				bp.logger.Warn("run failed", "image", run.Report.Image, "index", i+1, "total", len(runs), "error", err)
			}
			callback(run, i)
			return nil
		})
	}

	err := g.Wait()
	bp.logger.Debug("batch complete", "runs", len(runs), "elapsed", time.Since(start))
	return err
}
