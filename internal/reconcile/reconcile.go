package reconcile

import (
	"log/slog"

	"github.com/nao1215/roilabel/internal/asap"
	"github.com/nao1215/roilabel/internal/geometry"
	"github.com/nao1215/roilabel/internal/model"
)

// DefaultLabelColor is the color given to labels created during reconciliation.
const DefaultLabelColor = 0xFF0000

// Result counts the mutations of one reconciliation.
type Result struct {
	Removed int `json:"removed"`
	Added   int `json:"added"`

	// AddedByLabel counts inserted annotations per label name.
	AddedByLabel map[string]int `json:"added_by_label,omitempty"`
}

// Option configures Reconcile.
type Option func(*options)

type options struct {
	logger *slog.Logger
}

// WithLogger sets the logger used to report dropped entries.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// Reconcile applies decoded polygons to the collection.
//
// With override set, every annotation whose label is in labels (case-sensitive)
// and whose centroid lies in region is removed. Otherwise every marker not
// labelled Positive or Negative is removed and observers are notified.
//
// Each decoded polygon is then inserted as a new polygon annotation whose
// label is resolved through registry, creating it with DefaultLabelColor when
// missing. Entries whose label cannot be resolved are dropped and not counted.
// Observers are notified once after all insertions.
//
// decoded must be fully materialised before calling; Reconcile does not fail
// once it has started mutating the collection.
func Reconcile(collection model.Collection, registry model.LabelRegistry, labels map[string]struct{}, decoded []asap.Decoded, region geometry.Region, override bool, opts ...Option) Result {
	o := options{logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(&o)
	}

	res := Result{AddedByLabel: make(map[string]int)}
	existing := collection.Snapshot()

	if override {
		for _, a := range existing {
			if a.Label == nil {
				continue
			}
			if _, ok := labels[a.Label.Name]; !ok {
				continue
			}
			c, ok := a.Centroid()
			if !ok || !region.Contains(c) {
				continue
			}
			if collection.Remove(a.ID) {
				res.Removed++
			}
		}
	} else {
		for _, a := range existing {
			if !a.IsPoint() {
				continue
			}
			if a.Label != nil && model.IsInteractionRole(a.Label.Name) {
				continue
			}
			if collection.Remove(a.ID) {
				res.Removed++
			}
		}
		collection.NotifyChanged()
	}

	for _, d := range decoded {
		label, err := registry.Resolve(d.Label, DefaultLabelColor)
		if err != nil {
			o.logger.Warn("dropping polygon with unresolvable label", "label", d.Label, "error", err)
			continue
		}
		poly := make(geometry.Polygon, len(d.Polygon))
		copy(poly, d.Polygon)

		collection.Add(model.NewAnnotation(model.KindPolygon, poly, label))
		res.Added++
		res.AddedByLabel[label.Name]++
	}

	collection.NotifyChanged()
	o.logger.Debug("reconciled annotations", "override", override, "removed", res.Removed, "added", res.Added)
	return res
}
