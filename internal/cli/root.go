package cli

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/ArcanaFramework/frametree-flywheel/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the frametree CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "frametree",
		Short: "frametree - dataset trees over data stores",
		Long: `Address the rows of multi-dimensional datasets held in local directory trees
or remote services, and read and write their entries.

Stores are registered under nicknames in $FRAMETREE_HOME/stores.yaml and
datasets are located as <store-nickname>//<dataset-id>[@<dataset-name>].`,
		SilenceErrors: true, // commands report their own errors; main prints the rest
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewStoreCommand(opts))
	cmd.AddCommand(NewDatasetCommand(opts))
	cmd.AddCommand(NewBlueprintCommand(opts))

	return cmd
}

// newFormatter builds the formatter for a command invocation.
func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // keeps JSON on stdout clean
		Verbose:   opts.Verbose,
	}
}

// newLogger returns a logger writing to the diagnostic stream. Without --verbose
// only warnings are shown.
func newLogger(formatter *OutputFormatter) *slog.Logger {
	level := slog.LevelWarn
	if formatter.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(formatter.GetErrWriter(), &slog.HandlerOptions{Level: level}))
}

// loadConfig loads the store registry, reporting failures as command errors.
func loadConfig(formatter *OutputFormatter) (*config.Config, error) {
	cfg, err := config.LoadDefault()
	if err != nil {
		return nil, fail(formatter, ErrCodeConfig, "cannot load store registry", err)
	}
	formatter.VerboseLog("Using store registry in %s", cfg.Home)
	return cfg, nil
}
