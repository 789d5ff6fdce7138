package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for roilabel.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "roilabel",
		Short: "Region-of-interest inference for slide annotations",
		Long: `roilabel sends a region of a slide or plain image to a MONAI Label server,
runs a segmentation or interactive model on it and merges the returned
outlines into a local ASAP annotation file.

Existing annotations in the region are sent along as clicks for interactive
models (deepedit, deepgrow, NuClick) or replaced by the result for plain
segmentation models.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().StringP("config", "c", "",
		"Configuration file path (default: .roilabel in current or home directory)")
	cmd.PersistentFlags().String("log-format", "text", "Log format: text or json")

	cmd.AddCommand(NewInferCmd())
	cmd.AddCommand(NewExportCmd())
	cmd.AddCommand(NewModelsCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
