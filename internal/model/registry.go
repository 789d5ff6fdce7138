package model

import (
	"errors"
	"sync"
)

// ErrEmptyLabelName is returned when resolving a label with no name.
var ErrEmptyLabelName = errors.New("label name is empty")

// LabelRegistry resolves class labels by name, creating missing ones.
type LabelRegistry interface {
	// Resolve returns the label registered under name. When none exists a
	// new label with defaultColor is created and returned.
	Resolve(name string, defaultColor int) (*ClassLabel, error)
}

// Labels is an in-memory LabelRegistry. Names are case-sensitive.
type Labels struct {
	mu     sync.Mutex
	byName map[string]*ClassLabel
	order  []string
}

var _ LabelRegistry = (*Labels)(nil)

// NewLabels creates a registry seeded with the given labels.
// Later duplicates of a name are ignored.
func NewLabels(labels ...ClassLabel) *Labels {
	r := &Labels{byName: make(map[string]*ClassLabel, len(labels))}
	for _, l := range labels {
		if l.Name == "" {
			continue
		}
		if _, ok := r.byName[l.Name]; ok {
			continue
		}
		label := l
		r.byName[l.Name] = &label
		r.order = append(r.order, l.Name)
	}
	return r
}

// LabelsFrom seeds a registry with every label referenced by annotations.
func LabelsFrom(annotations []Annotation) *Labels {
	var labels []ClassLabel
	for _, a := range annotations {
		if a.Label != nil {
			labels = append(labels, *a.Label)
		}
	}
	return NewLabels(labels...)
}

// Resolve implements LabelRegistry.
func (r *Labels) Resolve(name string, defaultColor int) (*ClassLabel, error) {
	if name == "" {
		return nil, ErrEmptyLabelName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if l, ok := r.byName[name]; ok {
		return l, nil
	}
	l := &ClassLabel{Name: name, Color: defaultColor}
	r.byName[name] = l
	r.order = append(r.order, name)
	return l, nil
}

// All returns copies of the registered labels in registration order.
func (r *Labels) All() []ClassLabel {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]ClassLabel, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, *r.byName[name])
	}
	return out
}
