package config

import "errors"

// Configuration validation errors returned by Config.Validate and File.Validate.
var (
	// ErrNoServer is returned when no server URL is configured.
	ErrNoServer = errors.New("no server specified: use --server or set server.url in the configuration file")

	// ErrInvalidTimeout is returned when the timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidTileSize is returned when the tile size is negative.
	ErrInvalidTileSize = errors.New("invalid tile size: must be non-negative")

	// ErrInvalidMaxWorkers is returned when the worker count is negative.
	ErrInvalidMaxWorkers = errors.New("invalid max workers: must be non-negative")

	// ErrInvalidBatchSize is returned when the batch size is not positive.
	ErrInvalidBatchSize = errors.New("invalid batch size: must be positive")

	// ErrUnknownReportFormat is returned for a report format other than
	// text, json or markdown.
	ErrUnknownReportFormat = errors.New("unknown report format: expected text, json or markdown")

	// ErrInvalidColor is returned when a label color is not #rrggbb.
	ErrInvalidColor = errors.New("invalid label color: expected #rrggbb")

	// ErrConfigNotFound is returned when the configuration file does not exist.
	ErrConfigNotFound = errors.New("configuration file not found")
)
