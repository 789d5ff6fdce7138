package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nao1215/roilabel/internal/asap"
	"github.com/nao1215/roilabel/internal/infer"
	"github.com/nao1215/roilabel/internal/reconcile"
)

// Settings selects the optional behavior of the standard steps.
type Settings struct {
	// SyncLabels uploads the exported label document to the image inference
	// runs on, after the request is validated. An empty export then fails the
	// run, and non-resident images are stored first as with UploadFirst.
	SyncLabels bool

	// LabelTag is the datastore tag of synced labels.
	LabelTag string

	// UploadFirst stores a non-resident image or patch in the datastore and
	// runs inference on the stored copy instead of sending the file along.
	UploadFirst bool

	// MaxWorkers is the server-side worker count sent with the request.
	MaxWorkers int

	Logger *slog.Logger
}

// Steps returns the standard inference steps in order.
func Steps(server Server, renderer infer.PatchRenderer, s Settings) []Step {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}

	steps := []Step{
		&ExportStep{strict: s.SyncLabels, logger: logger},
		&ResidencyStep{store: server, renderer: renderer, logger: logger},
		&BuildStep{builder: infer.NewBuilder(s.MaxWorkers)},
	}
	if s.UploadFirst || s.SyncLabels {
		steps = append(steps, &UploadStep{server: server})
	}
	if s.SyncLabels {
		steps = append(steps, &SyncLabelStep{server: server, tag: s.LabelTag})
	}
	return append(steps,
		&InferStep{server: server},
		&DecodeStep{},
		&ReconcileStep{logger: logger},
	)
}

// ExportStep encodes the local annotations in the region. An empty export
// fails the run in strict mode and is only logged otherwise.
type ExportStep struct {
	strict bool
	logger *slog.Logger
}

// Name returns the step name.
func (s *ExportStep) Name() string {
	return "export"
}

// Do executes the export step.
func (s *ExportStep) Do(_ context.Context, run *Run) error {
	doc, err := asap.Encode(run.Region, run.Collection.Snapshot())
	if err != nil {
		if errors.Is(err, asap.ErrEmptyExport) && !s.strict {
			s.logger.Debug("nothing to export", "region", run.Region)
			return nil
		}
		return err
	}
	run.Document = doc
	return nil
}

// ResidencyStep decides whether the server already has the image or a
// patch has to be sent.
type ResidencyStep struct {
	store    infer.ImageStore
	renderer infer.PatchRenderer
	logger   *slog.Logger
}

// Name returns the step name.
func (s *ResidencyStep) Name() string {
	return "residency"
}

// Do executes the residency step.
func (s *ResidencyStep) Do(ctx context.Context, run *Run) error {
	target, err := infer.Plan(ctx, s.store, run.Source, run.Region, s.renderer)
	if err != nil {
		return err
	}
	run.Target = target

	run.Report.Offset = target.Offset
	run.Report.Uploaded = !target.Resident()
	if target.Warning != "" {
		s.logger.Warn(target.Warning, "image", target.Name)
		run.Report.AddWarning(target.Warning)
	}
	return nil
}

// BuildStep assembles and validates the inference request.
type BuildStep struct {
	builder *infer.Builder
}

// Name returns the step name.
func (s *BuildStep) Name() string {
	return "build_request"
}

// Do executes the build step.
func (s *BuildStep) Do(_ context.Context, run *Run) error {
	req, err := s.builder.Build(run.Model, run.Region, run.TileSize, run.Collection.Snapshot(), run.Target)
	if err != nil {
		return err
	}
	run.Request = req
	run.Report.ForegroundPoints = len(req.Params.ForegroundPoints)
	run.Report.BackgroundPoints = len(req.Params.BackgroundPoints)
	run.Report.TileSize = req.TileSize[0]
	return nil
}

// UploadStep stores the image or patch in the datastore before inference.
// Resident images are left alone.
type UploadStep struct {
	server Server
}

// Name returns the step name.
func (s *UploadStep) Name() string {
	return "upload"
}

// Do executes the upload step.
func (s *UploadStep) Do(ctx context.Context, run *Run) error {
	if run.Target == nil || run.Target.Resident() {
		return nil
	}
	id, err := s.server.SaveImage(ctx, run.Target.UploadName, run.Target.UploadPath, nil)
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", run.Target.UploadName, err)
	}
	// The stored copy keeps the upload name when the server returns no ID.
	if id == "" {
		id = run.Target.UploadName
	}
	run.UploadedID = id
	return nil
}

// SyncLabelStep writes the exported document to a temporary file and
// uploads it as the label of the image inference will run on.
type SyncLabelStep struct {
	server Server
	tag    string
}

// Name returns the step name.
func (s *SyncLabelStep) Name() string {
	return "sync_labels"
}

// Do executes the label sync step.
func (s *SyncLabelStep) Do(ctx context.Context, run *Run) error {
	if run.Document == nil {
		return errors.New("sync_labels: no document exported")
	}
	path, err := run.Document.WriteTempFile("", "labels")
	if err != nil {
		return err
	}
	run.AddArtifact(path)

	image, _ := run.inferImage()
	if err := s.server.SaveLabel(ctx, image, path, s.tag, nil); err != nil {
		return fmt.Errorf("failed to upload labels for %s: %w", image, err)
	}
	run.Report.Exported = run.Document.Len()
	return nil
}

// InferStep sends the request and keeps the raw response.
type InferStep struct {
	server Server
}

// Name returns the step name.
func (s *InferStep) Name() string {
	return "infer"
}

// Do executes the infer step.
func (s *InferStep) Do(ctx context.Context, run *Run) error {
	if run.Request == nil {
		return errors.New("infer: no request built")
	}
	image, uploadPath := run.inferImage()

	body, err := s.server.Infer(ctx, image, uploadPath, run.Request)
	if err != nil {
		return fmt.Errorf("inference with model %q failed: %w", run.Model.Name, err)
	}
	run.Response = body
	return nil
}

// DecodeStep parses the response into global polygons. Nothing is kept
// unless the whole document parses.
type DecodeStep struct{}

// Name returns the step name.
func (s *DecodeStep) Name() string {
	return "decode"
}

// Do executes the decode step.
func (s *DecodeStep) Do(_ context.Context, run *Run) error {
	offset := run.Report.Offset
	if run.Target != nil {
		offset = run.Target.Offset
	}

	decoded, err := asap.Decode(bytes.NewReader(run.Response), offset)
	if err != nil {
		return err
	}
	run.Decoded = decoded
	run.Report.Decoded = len(decoded)
	run.Report.DocumentDigest = asap.Digest(run.Response)
	return nil
}

// ReconcileStep merges the decoded polygons into the collection using the
// model's merge policy.
type ReconcileStep struct {
	logger *slog.Logger
}

// Name returns the step name.
func (s *ReconcileStep) Name() string {
	return "reconcile"
}

// Do executes the reconcile step.
func (s *ReconcileStep) Do(_ context.Context, run *Run) error {
	res := reconcile.Reconcile(
		run.Collection,
		run.Registry,
		run.Model.LabelSet(),
		run.Decoded,
		run.Region,
		run.Model.Override(),
		reconcile.WithLogger(s.logger),
	)
	run.Result = res
	run.Report.Removed = res.Removed
	run.Report.Added = res.Added
	for name, n := range res.AddedByLabel {
		run.Report.AddedByLabel[name] = n
	}
	return nil
}
