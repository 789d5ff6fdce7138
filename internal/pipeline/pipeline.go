package pipeline

import (
	"context"
	"log/slog"
	"time"
)

// Step is one stage of a run. Steps execute in sequence and communicate
// through the Run.
type Step interface {
	// Do executes the step. An error stops the run.
	Do(ctx context.Context, run *Run) error

	// Name returns the step's name for logging.
	Name() string
}

// Pipeline executes steps in order.
type Pipeline struct {
	steps  []Step
	logger *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// New creates an empty pipeline.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{steps: make([]Step, 0)}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// AddStep appends a step.
func (p *Pipeline) AddStep(step Step) {
	p.steps = append(p.steps, step)
}

// AddSteps appends steps in order.
func (p *Pipeline) AddSteps(steps ...Step) {
	p.steps = append(p.steps, steps...)
}

// Execute runs every step on run and stops at the first error, which is
// also recorded on run.Report. Cancellation is checked before each step.
// Temporary files of the run are removed before Execute returns.
func (p *Pipeline) Execute(ctx context.Context, run *Run) (err error) {
	defer func() {
		if cerr := run.cleanup(); cerr != nil {
			p.logger.Warn("failed to remove temporary files", "image", run.Report.Image, "error", cerr)
		}
		run.Report.FinishedAt = time.Now()
		if err != nil {
			run.Report.Error = err.Error()
		}
	}()

	for _, step := range p.steps {
		select {
		case <-ctx.Done():
			p.logger.Warn("run cancelled", "step", step.Name(), "image", run.Report.Image, "reason", ctx.Err())
			return ctx.Err()
		default:
		}

		p.logger.Debug("executing step", "step", step.Name(), "image", run.Report.Image)
		if err := step.Do(ctx, run); err != nil {
			p.logger.Error("step failed", "step", step.Name(), "image", run.Report.Image, "error", err)
			return err
		}
	}
	return nil
}

// StepCount returns the number of steps.
func (p *Pipeline) StepCount() int {
	return len(p.steps)
}

// StepNames returns the step names in execution order.
func (p *Pipeline) StepNames() []string {
	names := make([]string, len(p.steps))
	for i, step := range p.steps {
		names[i] = step.Name()
	}
	return names
}
