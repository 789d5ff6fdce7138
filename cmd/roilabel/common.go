package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nao1215/roilabel/internal/config"
	"github.com/nao1215/roilabel/internal/database"
	"github.com/nao1215/roilabel/internal/log"
	"github.com/nao1215/roilabel/internal/monailabel"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// addServerFlags registers the flags of commands that talk to the server.
func addServerFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("server", "s", config.DefaultServerURL,
		"MONAI Label server URL")
	cmd.Flags().String("proxy", "",
		"Route requests through a SOCKS5 proxy (host:port)")
	cmd.Flags().StringToString("header", nil,
		"Extra request header as name=value (repeatable)")
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout,
		"Timeout for each server request")
}

// addHistoryFlags registers the flags that locate the run history.
func addHistoryFlags(cmd *cobra.Command) {
	cmd.Flags().String("db-dir", "",
		"Directory of the run history database (default: XDG data directory)")
}

// persistentString reads a flag from the command or its root.
func persistentString(cmd *cobra.Command, name string) string {
	v, err := cmd.Flags().GetString(name)
	if err != nil {
		v, err = cmd.Root().PersistentFlags().GetString(name)
		if err != nil {
			return ""
		}
	}
	return v
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// buildConfig creates a Config from defaults, the configuration file and
// the command line flags, in that order.
func buildConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.NewConfig()
	cfg.Verbose = getVerboseFlag(cmd)
	cfg.LogFormat = persistentString(cmd, "log-format")
	cfg.ConfigFilePath = persistentString(cmd, "config")

	// An explicit path must exist; otherwise a missing file means defaults.
	path := config.FindConfigFile(cfg.ConfigFilePath)
	switch {
	case path != "":
		f, err := config.LoadConfigFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
		cfg.ApplyFile(f)
	case cfg.ConfigFilePath != "":
		return nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, cfg.ConfigFilePath)
	}

	if err := applyServerFlags(cmd.Flags(), cfg); err != nil {
		return nil, err
	}
	if f := cmd.Flags().Lookup("db-dir"); f != nil && f.Changed {
		cfg.DBDir = f.Value.String()
	}
	return cfg, nil
}

// applyServerFlags copies the server flags that were set explicitly.
func applyServerFlags(flags *pflag.FlagSet, cfg *config.Config) error {
	var err error
	if flags.Changed("server") {
		if cfg.ServerURL, err = flags.GetString("server"); err != nil {
			return err
		}
	}
	if flags.Changed("proxy") {
		if cfg.ProxyAddress, err = flags.GetString("proxy"); err != nil {
			return err
		}
	}
	if flags.Changed("timeout") {
		if cfg.Timeout, err = flags.GetDuration("timeout"); err != nil {
			return err
		}
	}
	if flags.Changed("header") {
		headers, err := flags.GetStringToString("header")
		if err != nil {
			return err
		}
		for k, v := range headers {
			cfg.Headers[k] = v
		}
	}
	return nil
}

// setupLogger creates the secure logger selected by the configuration.
func setupLogger(cfg *config.Config) (*slog.Logger, error) {
	format, err := log.ParseFormat(cfg.LogFormat)
	if err != nil {
		return nil, err
	}
	return log.New(os.Stderr, log.Options{Verbose: cfg.Verbose, Format: format}), nil
}

// newClient creates a server client from the configuration.
func newClient(cfg *config.Config, logger *slog.Logger) (*monailabel.Client, error) {
	opts := []monailabel.Option{
		monailabel.WithTimeout(cfg.Timeout),
		monailabel.WithHeaders(cfg.Headers),
		monailabel.WithLogger(logger),
	}
	if cfg.ProxyAddress != "" {
		opts = append(opts, monailabel.WithProxy(cfg.ProxyAddress, cfg.ProxyUser, cfg.ProxyPassword))
	}
	client, err := monailabel.New(cfg.ServerURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create server client: %w", err)
	}
	return client, nil
}

// openHistory opens the run history, or returns nil when dbDir is empty.
func openHistory(dbDir string) (*database.HistoryDB, error) {
	if dbDir == "" {
		return nil, nil
	}
	db, err := database.Open(dbDir, database.DefaultOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context, logger *slog.Logger) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		defer signal.Stop(sigCh)
		select {
		case <-sigCh:
			logger.Info("received shutdown signal, cancelling...")
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// errNoImages is returned by commands that need at least one image.
var errNoImages = errors.New("no images provided (specify one or more image paths as arguments)")
