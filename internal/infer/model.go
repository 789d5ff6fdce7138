package infer

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// MarkerMode selects how interaction markers become click points.
type MarkerMode int

const (
	// SingleClassMarker sends every marker, whatever its class, as one
	// foreground set.
	SingleClassMarker MarkerMode = iota

	// DualClassMarker sends Positive markers as foreground and Negative
	// markers as background.
	DualClassMarker
)

// String returns the mode name.
func (m MarkerMode) String() string {
	switch m {
	case SingleClassMarker:
		return "single-class"
	case DualClassMarker:
		return "dual-class"
	default:
		return "unknown"
	}
}

// Model types reported by the server.
const (
	TypeSegmentation = "segmentation"
	TypeNuClick      = "nuclick"
	TypeDeepEdit     = "deepedit"
	TypeDeepGrow     = "deepgrow"
	TypeInteractive  = "interactive"
)

// ServerInfo is the server's self description.
type ServerInfo struct {
	Name        string               `json:"name"`
	Description string               `json:"description,omitempty"`
	Version     string               `json:"version,omitempty"`
	Models      map[string]ModelInfo `json:"models"`
}

// UnmarshalJSON fills ModelInfo.Name from the models map keys.
func (s *ServerInfo) UnmarshalJSON(data []byte) error {
	type plain ServerInfo
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	for name, m := range p.Models {
		m.Name = name
		p.Models[name] = m
	}
	*s = ServerInfo(p)
	return nil
}

// ModelNames returns the model names in lexical order.
func (s *ServerInfo) ModelNames() []string {
	names := make([]string, 0, len(s.Models))
	for name := range s.Models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Model returns the named model.
func (s *ServerInfo) Model(name string) (ModelInfo, error) {
	m, ok := s.Models[name]
	if !ok {
		return ModelInfo{}, fmt.Errorf("%w: %q (available: %s)", ErrUnknownModel, name, strings.Join(s.ModelNames(), ", "))
	}
	return m, nil
}

// SelectModel returns the first of the candidates the server offers, falling
// back to the first model by name. Empty candidates are ignored.
func (s *ServerInfo) SelectModel(candidates ...string) (ModelInfo, error) {
	for _, name := range candidates {
		if name == "" {
			continue
		}
		if m, ok := s.Models[name]; ok {
			return m, nil
		}
	}
	names := s.ModelNames()
	if len(names) == 0 {
		return ModelInfo{}, ErrNoModels
	}
	return s.Models[names[0]], nil
}

// ModelInfo describes one model offered by the server.
type ModelInfo struct {
	// Name is the key under which the server lists the model.
	Name string `json:"-"`

	Type        string `json:"type"`
	Labels      Labels `json:"labels"`
	Nuclick     bool   `json:"nuclick,omitempty"`
	Dimension   int    `json:"dimension,omitempty"`
	Description string `json:"description,omitempty"`
}

// MarkerMode derives the marker mode from the model metadata.
// NuClick style models take undifferentiated clicks, DeepEdit style models
// take positive and negative clicks, everything else ignores class.
func (m ModelInfo) MarkerMode() MarkerMode {
	if m.isNuClick() {
		return SingleClassMarker
	}
	switch strings.ToLower(m.Type) {
	case TypeDeepEdit, TypeDeepGrow, TypeInteractive:
		return DualClassMarker
	default:
		return SingleClassMarker
	}
}

// ValidatesClicks reports whether click validation applies to the model.
func (m ModelInfo) ValidatesClicks() bool {
	return m.MarkerMode() == DualClassMarker
}

// Override reports whether results replace existing annotations of the
// model's labels in the region. Interactive models merge additively.
func (m ModelInfo) Override() bool {
	return !m.isNuClick() && m.MarkerMode() != DualClassMarker
}

func (m ModelInfo) isNuClick() bool {
	return m.Nuclick || strings.EqualFold(m.Type, TypeNuClick)
}

// LabelSet returns the model's labels as a set.
func (m ModelInfo) LabelSet() map[string]struct{} {
	set := make(map[string]struct{}, len(m.Labels))
	for _, l := range m.Labels {
		set[l] = struct{}{}
	}
	return set
}

// Labels is a list of label names. The server sends either a JSON list or a
// {name: index} object; objects are ordered by index.
type Labels []string

// UnmarshalJSON accepts both wire forms.
func (l *Labels) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" {
		*l = nil
		return nil
	}

	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*l = list
		return nil
	}

	var byName map[string]int
	if err := json.Unmarshal(data, &byName); err != nil {
		return fmt.Errorf("labels must be a list or a name to index map: %w", err)
	}
	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if byName[names[i]] != byName[names[j]] {
			return byName[names[i]] < byName[names[j]]
		}
		return names[i] < names[j]
	})
	*l = names
	return nil
}
