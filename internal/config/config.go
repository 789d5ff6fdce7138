package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
const (
	// AppName is used for XDG directory paths.
	AppName = "roilabel"

	// DefaultServerURL is where a locally started MONAI Label server listens.
	DefaultServerURL = "http://127.0.0.1:8000"

	// DefaultTimeout bounds one server request. Whole-slide inference can
	// take minutes.
	DefaultTimeout = 10 * time.Minute

	// DefaultTileSize is the tile edge the server splits large regions into.
	DefaultTileSize = 1024

	// DefaultMaxWorkers is the server-side parallelism requested per run.
	DefaultMaxWorkers = 1

	// DefaultBatchSize is the number of images processed concurrently.
	DefaultBatchSize = 2

	// DefaultLabelTag is the datastore tag used with --sync-labels.
	DefaultLabelTag = "roilabel"
)

// Report formats.
const (
	FormatText     = "text"
	FormatJSON     = "json"
	FormatMarkdown = "markdown"
)

// Config holds the options of one roilabel invocation. It is built from
// defaults, then the configuration file, then command line flags.
type Config struct {
	// ServerURL is the MONAI Label server base URL.
	ServerURL string

	// ProxyAddress routes requests through a SOCKS5 proxy ("host:port").
	ProxyAddress  string
	ProxyUser     string
	ProxyPassword string

	// Headers are sent with every server request, e.g. Authorization.
	Headers map[string]string

	Timeout time.Duration

	// TileSize and MaxWorkers are the inference parameters. Zero means
	// "use the model's configured value or the default".
	TileSize   int
	MaxWorkers int

	// BatchSize is the number of images processed concurrently.
	BatchSize int

	Verbose   bool
	LogFormat string

	// ReportFormat is one of FormatText, FormatJSON or FormatMarkdown.
	ReportFormat string

	// ReportFile is written instead of stdout when set.
	ReportFile string

	// GeoJSON also writes the resulting annotations as GeoJSON next to
	// each annotation file.
	GeoJSON bool

	// DBDir holds the run history database. Empty disables persistence.
	DBDir string

	// SyncLabels uploads the exported document to the datastore before
	// inference. An empty export then aborts the run.
	SyncLabels bool
	LabelTag   string

	// ConfigFilePath is the explicit configuration file, if any.
	ConfigFilePath string

	// File is the loaded configuration file; nil when none was found.
	File *File
}

// NewConfig creates a Config with default values.
func NewConfig() *Config {
	return &Config{
		ServerURL:    DefaultServerURL,
		Headers:      make(map[string]string),
		Timeout:      DefaultTimeout,
		BatchSize:    DefaultBatchSize,
		ReportFormat: FormatText,
		LabelTag:     DefaultLabelTag,
		DBDir:        XDGDataDir(),
	}
}

// XDGDataDir returns the data directory, e.g. ~/.local/share/roilabel.
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the config directory, e.g. ~/.config/roilabel.
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// ApplyFile copies the server section of f into c. Flags are applied after
// this, so they win.
func (c *Config) ApplyFile(f *File) {
	if f == nil {
		return
	}
	c.File = f

	s := f.Server
	if s.URL != "" {
		c.ServerURL = s.URL
	}
	if s.Proxy != "" {
		c.ProxyAddress = s.Proxy
	}
	if s.ProxyUser != "" {
		c.ProxyUser = s.ProxyUser
		c.ProxyPassword = s.ProxyPassword
	}
	if s.Timeout > 0 {
		c.Timeout = s.Timeout
	}
	if c.Headers == nil {
		c.Headers = make(map[string]string)
	}
	for k, v := range s.Headers {
		c.Headers[k] = v
	}
}

// ModelSettings returns the effective tile size and worker count for a
// model: flags, then the model's section, then the file defaults.
func (c *Config) ModelSettings(modelName string) ModelConfig {
	var mc ModelConfig
	if c.File != nil {
		mc = c.File.GetModelConfig(modelName)
	}
	if c.TileSize > 0 {
		mc.TileSize = c.TileSize
	}
	if c.MaxWorkers > 0 {
		mc.MaxWorkers = c.MaxWorkers
	}
	if mc.MaxWorkers <= 0 {
		mc.MaxWorkers = DefaultMaxWorkers
	}
	return mc
}

// Validate checks the configuration and returns the first problem found.
func (c *Config) Validate() error {
	if c.ServerURL == "" {
		return ErrNoServer
	}
	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.TileSize < 0 {
		return ErrInvalidTileSize
	}
	if c.MaxWorkers < 0 {
		return ErrInvalidMaxWorkers
	}
	if c.BatchSize <= 0 {
		return ErrInvalidBatchSize
	}
	switch c.ReportFormat {
	case FormatText, FormatJSON, FormatMarkdown:
	default:
		return ErrUnknownReportFormat
	}
	if c.File != nil {
		return c.File.Validate()
	}
	return nil
}
