package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/nao1215/roilabel/internal/asap"
	"github.com/nao1215/roilabel/internal/config"
	"github.com/nao1215/roilabel/internal/database"
	"github.com/nao1215/roilabel/internal/geometry"
	"github.com/nao1215/roilabel/internal/infer"
	"github.com/nao1215/roilabel/internal/model"
	"github.com/nao1215/roilabel/internal/pipeline"
	"github.com/nao1215/roilabel/internal/report"
	"github.com/spf13/cobra"
)

// NewInferCmd creates the infer command.
func NewInferCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "infer [image...]",
		Short: "Run a model over a region and merge the result into the annotations",
		Long: `Infer runs a MONAI Label model over a region of each image and merges the
returned outlines into the image's ASAP annotation file.

Annotations are read from <image>.xml next to the image unless --annotations
is given, and written back to the same file unless --output is given.
Images the server already has are referenced by name. Plain images (png, jpg)
are uploaded whole; for other images a pre-rendered patch of the region must
be supplied with --patch-file.

The model, region and tile size of the last run against a server are
remembered and used when the flags are omitted.

Examples:
  # Segment a region of a slide the server already has
  roilabel infer -m segmentation -r 1000,2000,512,512 slide.svs

  # Interactive model: clicks labeled Positive/Negative in slide.xml are sent
  roilabel infer -m deepedit -r 1000,2000,256,256 slide.svs

  # Slide unknown to the server: send a pre-rendered patch of the region
  roilabel infer -m segmentation -r 0,0,512,512 --patch-file patch.png slide.svs

  # Several plain images, two at a time, with a Markdown report
  roilabel infer -m segmentation -b 2 -f markdown --report-file report.md *.png`,
		Args: cobra.ArbitraryArgs,
		RunE: runInferCmd,
	}

	addServerFlags(cmd)
	addHistoryFlags(cmd)

	// Inference flags
	cmd.Flags().StringP("model", "m", "",
		"Model name (default: last used, else the first model the server offers)")
	cmd.Flags().StringP("region", "r", "",
		"Region as x,y,width,height in image pixels (default: last used; 0,0,0,0 is the whole image)")
	cmd.Flags().Int("tile-size", 0,
		"Tile size the server splits the region into (default: configured or last used)")
	cmd.Flags().Int("max-workers", 0,
		"Server-side worker count (default: configured or 1)")

	// Annotation flags
	cmd.Flags().StringP("annotations", "a", "",
		"ASAP annotation file to read (default: <image>.xml; single image only)")
	cmd.Flags().StringP("output", "o", "",
		"ASAP annotation file to write (default: the file read; single image only)")
	cmd.Flags().String("patch-file", "",
		"Pre-rendered PNG of the region for images the server does not have (single image only)")
	cmd.Flags().Bool("sync-labels", false,
		"Upload the annotations in the region as the image's label before inference")
	cmd.Flags().String("label-tag", config.DefaultLabelTag,
		"Datastore tag of labels uploaded with --sync-labels")
	cmd.Flags().Bool("upload-first", false,
		"Store images and patches in the datastore before inference")

	// Batch and report flags
	cmd.Flags().IntP("batch", "b", config.DefaultBatchSize,
		"Number of images processed concurrently")
	cmd.Flags().StringP("format", "f", config.FormatText,
		"Report format: text, json or markdown")
	cmd.Flags().String("report-file", "",
		"Write the report to this file instead of stdout")
	cmd.Flags().Bool("geojson", false,
		"Also write the annotations as GeoJSON next to the output file")
	cmd.Flags().Bool("no-history", false,
		"Do not read or record run history and remembered defaults")

	return cmd
}

// inferOptions are the infer flags that do not belong in config.Config.
type inferOptions struct {
	images      []string
	model       string
	region      string
	annotations string
	output      string
	patchFile   string
	uploadFirst bool
	noHistory   bool
}

func runInferCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}
	opts, err := parseInferFlags(cmd, cfg, args)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger, err := setupLogger(cfg)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	ctx, cancel := signalContext(cmd.Context(), logger)
	defer cancel()

	return runInfer(ctx, cmd.OutOrStdout(), cfg, opts, logger)
}

// parseInferFlags copies the infer flags into cfg and returns the rest.
func parseInferFlags(cmd *cobra.Command, cfg *config.Config, args []string) (*inferOptions, error) {
	flags := cmd.Flags()
	opts := &inferOptions{images: args}
	var err error

	if opts.model, err = flags.GetString("model"); err != nil {
		return nil, err
	}
	if opts.region, err = flags.GetString("region"); err != nil {
		return nil, err
	}
	if cfg.TileSize, err = flags.GetInt("tile-size"); err != nil {
		return nil, err
	}
	if cfg.MaxWorkers, err = flags.GetInt("max-workers"); err != nil {
		return nil, err
	}
	if opts.annotations, err = flags.GetString("annotations"); err != nil {
		return nil, err
	}
	if opts.output, err = flags.GetString("output"); err != nil {
		return nil, err
	}
	if opts.patchFile, err = flags.GetString("patch-file"); err != nil {
		return nil, err
	}
	if cfg.SyncLabels, err = flags.GetBool("sync-labels"); err != nil {
		return nil, err
	}
	if cfg.LabelTag, err = flags.GetString("label-tag"); err != nil {
		return nil, err
	}
	if opts.uploadFirst, err = flags.GetBool("upload-first"); err != nil {
		return nil, err
	}
	if cfg.BatchSize, err = flags.GetInt("batch"); err != nil {
		return nil, err
	}
	if cfg.ReportFormat, err = flags.GetString("format"); err != nil {
		return nil, err
	}
	if cfg.ReportFile, err = flags.GetString("report-file"); err != nil {
		return nil, err
	}
	if cfg.GeoJSON, err = flags.GetBool("geojson"); err != nil {
		return nil, err
	}
	if opts.noHistory, err = flags.GetBool("no-history"); err != nil {
		return nil, err
	}
	if opts.noHistory {
		cfg.DBDir = ""
	}

	if len(opts.images) == 0 {
		return nil, errNoImages
	}
	if len(opts.images) > 1 && (opts.annotations != "" || opts.output != "" || opts.patchFile != "") {
		return nil, errors.New("--annotations, --output and --patch-file need exactly one image")
	}
	if err := checkDistinctAnnotations(opts.images); err != nil {
		return nil, err
	}
	return opts, nil
}

// checkDistinctAnnotations rejects images that would read and write the same
// annotation file in one batch.
func checkDistinctAnnotations(images []string) error {
	seen := make(map[string]string, len(images))
	for _, image := range images {
		path := filepath.Clean(annotationsPath(image))
		if prev, ok := seen[path]; ok {
			return fmt.Errorf("%s and %s share the annotation file %s", prev, image, path)
		}
		seen[path] = image
	}
	return nil
}

// job is one image of an infer invocation.
type job struct {
	image  string
	input  string
	output string
	run    *pipeline.Run
}

// annotationsPath returns <image without extension>.xml.
func annotationsPath(image string) string {
	return strings.TrimSuffix(image, filepath.Ext(image)) + ".xml"
}

// geoJSONPath returns the GeoJSON file written next to an output file.
func geoJSONPath(output string) string {
	return strings.TrimSuffix(output, filepath.Ext(output)) + ".geojson"
}

// loadAnnotations reads the annotation file at path. A missing file gives
// an empty collection. Configured colors are registered without replacing
// colors the file declares.
func loadAnnotations(path string, colors []config.LabelColor) (*model.Hierarchy, *model.Labels, error) {
	collection, labels, err := asap.LoadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		collection, labels, err = model.NewHierarchy(), model.NewLabels(), nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read annotations %s: %w", path, err)
	}
	for _, c := range colors {
		if _, err := labels.Resolve(c.Name, c.Color); err != nil {
			return nil, nil, err
		}
	}
	return collection, labels, nil
}

// resolveModel picks the model: the flag must name an offered model, the
// remembered one is used when still offered.
func resolveModel(info *infer.ServerInfo, flag, remembered string) (infer.ModelInfo, error) {
	if flag != "" {
		return info.Model(flag)
	}
	return info.SelectModel(remembered)
}

// runInfer executes the infer command.
func runInfer(ctx context.Context, out io.Writer, cfg *config.Config, opts *inferOptions, logger *slog.Logger) error {
	client, err := newClient(cfg, logger)
	if err != nil {
		return err
	}

	db, err := openHistory(cfg.DBDir)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	defaults := model.NewDefaults()
	if db != nil {
		if d, err := db.LoadDefaults(ctx, cfg.ServerURL); err != nil {
			logger.Warn("ignoring remembered defaults", "error", err)
		} else {
			defaults = d
		}
	}

	info, err := client.Info(ctx)
	if err != nil {
		return fmt.Errorf("failed to query server %s: %w", client.BaseURL(), err)
	}
	m, err := resolveModel(info, opts.model, defaults.Model)
	if err != nil {
		return err
	}

	region := defaults.Region
	if opts.region != "" {
		if region, err = geometry.ParseRegion(opts.region); err != nil {
			return err
		}
	}

	settings := cfg.ModelSettings(m.Name)
	tileSize := settings.TileSize
	if tileSize <= 0 {
		tileSize = defaults.TileSize
	}

	var colors []config.LabelColor
	if cfg.File != nil {
		if colors, err = cfg.File.LabelColors(); err != nil {
			return err
		}
	}

	jobs := make([]*job, 0, len(opts.images))
	for _, image := range opts.images {
		j := &job{image: image, input: opts.annotations, output: opts.output}
		if j.input == "" {
			j.input = annotationsPath(image)
		}
		if j.output == "" {
			j.output = j.input
		}
		collection, labels, err := loadAnnotations(j.input, colors)
		if err != nil {
			return err
		}
		j.run = pipeline.NewRun(image, m, region, tileSize, collection, labels)
		jobs = append(jobs, j)
	}

	logger.Info("starting inference",
		"server", client.BaseURL(),
		"model", m.Name,
		"region", region,
		"tileSize", tileSize,
		"images", len(jobs),
	)

	var renderer infer.PatchRenderer
	if opts.patchFile != "" {
		renderer = infer.PrerenderedPatch{Path: opts.patchFile}
	}
	steps := pipeline.Settings{
		SyncLabels:  cfg.SyncLabels,
		LabelTag:    cfg.LabelTag,
		UploadFirst: opts.uploadFirst,
		MaxWorkers:  settings.MaxWorkers,
		Logger:      logger,
	}
	bp := pipeline.NewBatchProcessor(
		func() *pipeline.Pipeline {
			p := pipeline.New(pipeline.WithLogger(logger))
			p.AddSteps(pipeline.Steps(client, renderer, steps)...)
			return p
		},
		pipeline.WithConcurrency(cfg.BatchSize),
		pipeline.WithBatchLogger(logger),
	)

	runs := make([]*pipeline.Run, len(jobs))
	for i, j := range jobs {
		runs[i] = j.run
	}

	// Results are persisted even when the invocation is being cancelled.
	saveCtx := context.WithoutCancel(ctx)
	var mu sync.Mutex
	batchErr := bp.ProcessBatchWithCallback(ctx, runs, func(_ *pipeline.Run, index int) {
		mu.Lock()
		defer mu.Unlock()
		finishJob(saveCtx, jobs[index], cfg, db, logger)
	})

	reports := make([]*model.RunReport, 0, len(jobs))
	for _, j := range jobs {
		if !j.run.Report.FinishedAt.IsZero() {
			reports = append(reports, j.run.Report)
		}
	}
	if err := writeReports(out, cfg, reports); err != nil {
		return err
	}
	if batchErr != nil {
		return batchErr
	}

	if db != nil {
		d := model.Defaults{Model: m.Name, Region: region, TileSize: tileSize}
		if err := db.SaveDefaults(saveCtx, cfg.ServerURL, d); err != nil {
			logger.Warn("failed to remember defaults", "error", err)
		}
	}

	if s := report.Summarize(reports); s.Failed > 0 {
		return fmt.Errorf("%d of %d run(s) failed", s.Failed, s.Images)
	}
	return nil
}

// finishJob writes the annotations of a successful run and records the run.
func finishJob(ctx context.Context, j *job, cfg *config.Config, db *database.HistoryDB, logger *slog.Logger) {
	r := j.run.Report
	if !r.Failed() {
		annotations := j.run.Collection.Snapshot()
		if err := asap.SaveSnapshot(j.output, annotations); err != nil {
			logger.Error("failed to save annotations", "image", r.Image, "error", err)
			r.Error = err.Error()
		} else if cfg.GeoJSON {
			if err := writeGeoJSON(geoJSONPath(j.output), annotations); err != nil {
				logger.Error("failed to write GeoJSON", "image", r.Image, "error", err)
				r.AddWarning(err.Error())
			}
		}
	}

	if db == nil {
		return
	}
	if _, err := db.SaveRun(ctx, r); err != nil {
		logger.Error("failed to save run", "image", r.Image, "error", err)
	}
}

func writeGeoJSON(path string, annotations []model.Annotation) error {
	f, err := os.Create(path) //nolint:gosec // path is derived from the user's output file
	if err != nil {
		return fmt.Errorf("failed to create GeoJSON file: %w", err)
	}
	if _, err := report.NewGeoJSONWriter(f).Write(annotations); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write GeoJSON: %w", err)
	}
	return f.Close()
}

// writeReports writes the run reports to out or to the configured file.
func writeReports(out io.Writer, cfg *config.Config, reports []*model.RunReport) error {
	if cfg.ReportFile != "" {
		dir := filepath.Dir(cfg.ReportFile)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return fmt.Errorf("failed to create report directory: %w", err)
			}
		}
		f, err := os.Create(cfg.ReportFile)
		if err != nil {
			return fmt.Errorf("failed to create report file: %w", err)
		}
		defer f.Close()
		out = f
	}

	w, err := report.New(cfg.ReportFormat, out, getVersion())
	if err != nil {
		return err
	}
	if len(reports) == 1 {
		_, err = w.Write(reports[0])
	} else {
		_, err = w.WriteBatch(reports)
	}
	if err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
