package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ArcanaFramework/frametree-flywheel/internal/blueprint"
	"github.com/ArcanaFramework/frametree-flywheel/internal/dataset"
	"github.com/ArcanaFramework/frametree-flywheel/internal/frequency"
)

// MakeResult is the output of the blueprint make command.
type MakeResult struct {
	Blueprint string         `json:"blueprint"`
	Locator   string         `json:"locator"`
	Rows      map[string]int `json:"rows"`
}

// NewBlueprintCommand creates the blueprint command group.
func NewBlueprintCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "blueprint",
		Short: "Generate test datasets from blueprints",
		Long: `Generate test datasets from blueprints.

Without --file the built-in blueprints are used. --file accepts a YAML file, a
single CUE file or a directory holding a CUE package.`,
	}
	cmd.AddCommand(newBlueprintListCommand(rootOpts))
	cmd.AddCommand(newBlueprintMakeCommand(rootOpts))
	return cmd
}

// loadBlueprints returns the blueprints in path, or the built-ins when path is empty.
func loadBlueprints(formatter *OutputFormatter, path string) ([]*blueprint.Blueprint, error) {
	if path == "" {
		var bps []*blueprint.Blueprint
		for _, name := range blueprint.Builtins() {
			bp, err := blueprint.Builtin(name)
			if err != nil {
				return nil, fail(formatter, ErrCodeGeneric, "cannot load built-in blueprint", err)
			}
			bps = append(bps, bp)
		}
		return bps, nil
	}
	bps, err := blueprint.Load(path)
	if err != nil {
		return nil, fail(formatter, ErrCodeLoadFailed, "cannot load blueprints", err)
	}
	formatter.VerboseLog("Loaded %d blueprint(s) from %s", len(bps), path)
	return bps, nil
}

func newBlueprintListCommand(rootOpts *RootOptions) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:           "ls",
		Short:         "List available blueprints",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd)
			bps, err := loadBlueprints(formatter, file)
			if err != nil {
				return err
			}
			var text strings.Builder
			for _, bp := range bps {
				fmt.Fprintf(&text, "%s\t%s\t%v\n", bp.Name, strings.Join(bp.Dims, ","), bp.DimLengths)
			}
			return formatter.Success(bps, text.String())
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "blueprint file or CUE package directory")
	return cmd
}

func newBlueprintMakeCommand(rootOpts *RootOptions) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "make <blueprint> <store>//<dataset-id>[@<name>]",
		Short: "Populate a store with a dataset built from a blueprint",
		Long: `Populate a store with a dataset built from a blueprint.

The store tree is created, every entry of the blueprint is uploaded to every
leaf row, and the dataset definition is saved under the locator's name.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBlueprintMake(rootOpts, file, args[0], args[1], cmd)
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "blueprint file or CUE package directory")
	return cmd
}

func runBlueprintMake(opts *RootOptions, file, name, arg string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)
	ctx := cmd.Context()

	loc, err := ParseLocator(arg)
	if err != nil {
		return fail(formatter, ErrCodeInvalidArgs, "invalid locator", err)
	}
	bps, err := loadBlueprints(formatter, file)
	if err != nil {
		return err
	}
	bp, err := blueprint.Find(bps, name)
	if err != nil {
		return fail(formatter, ErrCodeNotFound, "unknown blueprint", err)
	}

	st, err := openStore(formatter, loc)
	if err != nil {
		return err
	}
	ds, err := bp.MakeDataset(ctx, st, loc.ID,
		dataset.WithName(loc.Name), dataset.WithLogger(st.Logger()))
	if err != nil {
		return storeFailure(formatter, "cannot make dataset", err)
	}
	if err := ds.Save(ctx); err != nil {
		return storeFailure(formatter, "cannot save dataset definition", err)
	}

	result := MakeResult{Blueprint: bp.Name, Locator: loc.String(), Rows: map[string]int{}}
	space := ds.Space()
	for _, f := range []frequency.Frequency{space.Root(), space.Leaf()} {
		ids, err := ds.RowIDs(ctx, f)
		if err != nil {
			return storeFailure(formatter, "cannot read dataset rows", err)
		}
		result.Rows[space.Format(f)] = len(ids)
	}

	return formatter.Success(result, fmt.Sprintf("✓ Made dataset %s from blueprint %q (%d leaf rows)\n",
		loc, bp.Name, result.Rows[space.Format(space.Leaf())]))
}
