package config

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"
)

// ServerConfig is the server section of the configuration file.
type ServerConfig struct {
	// URL is the MONAI Label server base URL.
	URL string `yaml:"url,omitempty"`

	// Proxy is a SOCKS5 proxy address in "host:port" format.
	Proxy         string `yaml:"proxy,omitempty"`
	ProxyUser     string `yaml:"proxyUser,omitempty"`
	ProxyPassword string `yaml:"proxyPassword,omitempty"`

	// Headers are sent with every request, e.g. Authorization.
	Headers map[string]string `yaml:"headers,omitempty"`

	// Timeout bounds a single request, e.g. "10m".
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// ModelConfig holds inference settings for one model.
type ModelConfig struct {
	// TileSize overrides the tile edge. Zero keeps the inherited value.
	TileSize int `yaml:"tileSize,omitempty"`

	// MaxWorkers overrides the server-side worker count.
	MaxWorkers int `yaml:"maxWorkers,omitempty"`
}

// File is the structure of the .roilabel configuration file.
type File struct {
	Server ServerConfig `yaml:"server,omitempty"`

	// Defaults apply to every model unless overridden in Models.
	Defaults ModelConfig `yaml:"defaults,omitempty"`

	// Models maps model names to their settings.
	Models map[string]ModelConfig `yaml:"models,omitempty"`

	// Colors maps label names to "#rrggbb". Labels created by inference
	// use these instead of the default red.
	Colors map[string]string `yaml:"colors,omitempty"`
}

// GetModelConfig returns the settings for modelName merged over the defaults.
func (f *File) GetModelConfig(modelName string) ModelConfig {
	result := f.Defaults
	mc, ok := f.Models[modelName]
	if !ok {
		return result
	}
	if mc.TileSize != 0 {
		result.TileSize = mc.TileSize
	}
	if mc.MaxWorkers != 0 {
		result.MaxWorkers = mc.MaxWorkers
	}
	return result
}

// LabelColors returns the configured colors, parsed, sorted by label name.
func (f *File) LabelColors() ([]LabelColor, error) {
	names := slices.Sorted(maps.Keys(f.Colors))
	out := make([]LabelColor, 0, len(names))
	for _, name := range names {
		c, err := ParseColor(f.Colors[name])
		if err != nil {
			return nil, fmt.Errorf("label %q: %w", name, err)
		}
		out = append(out, LabelColor{Name: name, Color: c})
	}
	return out, nil
}

// LabelColor is a configured label color.
type LabelColor struct {
	Name  string
	Color int
}

// Validate checks the settings in the file.
func (f *File) Validate() error {
	check := func(mc ModelConfig) error {
		if mc.TileSize < 0 {
			return ErrInvalidTileSize
		}
		if mc.MaxWorkers < 0 {
			return ErrInvalidMaxWorkers
		}
		return nil
	}
	if err := check(f.Defaults); err != nil {
		return err
	}
	for _, name := range slices.Sorted(maps.Keys(f.Models)) {
		if err := check(f.Models[name]); err != nil {
			return fmt.Errorf("model %q: %w", name, err)
		}
	}
	if f.Server.Timeout < 0 {
		return ErrInvalidTimeout
	}
	_, err := f.LabelColors()
	return err
}

// ParseColor parses "#rrggbb" (the '#' is optional) into a packed RGB int.
func ParseColor(s string) (int, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(hex) != 6 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidColor, s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidColor, s)
	}
	return int(v), nil
}
