package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ArcanaFramework/frametree-flywheel/internal/dataset"
	"github.com/ArcanaFramework/frametree-flywheel/internal/frequency"
	"github.com/ArcanaFramework/frametree-flywheel/internal/record"
	"github.com/ArcanaFramework/frametree-flywheel/internal/store"
)

// DefineOptions holds flags for the dataset define command.
type DefineOptions struct {
	Space     string
	Dims      []string
	Hierarchy []string
	Include   []string // dim=id,id
	Exclude   []string
}

// RowsResult is the output of the dataset rows command.
type RowsResult struct {
	Frequency string   `json:"frequency"`
	Rows      []string `json:"rows"`
}

// NewDatasetCommand creates the dataset command group.
func NewDatasetCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dataset",
		Short: "Define and inspect datasets",
	}
	cmd.AddCommand(newDatasetDefineCommand(rootOpts))
	cmd.AddCommand(newDatasetShowCommand(rootOpts))
	cmd.AddCommand(newDatasetRowsCommand(rootOpts))
	return cmd
}

func newDatasetDefineCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DefineOptions{}

	cmd := &cobra.Command{
		Use:   "define <store>//<dataset-id>[@<name>]",
		Short: "Save a dataset definition to a store",
		Long: `Save a dataset definition to a store.

The dimensions name the axes of the frequency space; the hierarchy lists the
levels of the store tree from the top, each naming one or more dimensions
joined by '+'. Rows can be filtered with --include and --exclude, given as
<dim>=<id>,<id>.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDatasetDefine(rootOpts, opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Space, "space", "default", "name of the frequency space")
	cmd.Flags().StringSliceVar(&opts.Dims, "dims", nil, "dimensions of the space, coarsest first")
	cmd.Flags().StringSliceVar(&opts.Hierarchy, "hierarchy", nil, "levels of the store tree (default: one per dimension)")
	cmd.Flags().StringArrayVar(&opts.Include, "include", nil, "only include these ids of a dimension (dim=id,id)")
	cmd.Flags().StringArrayVar(&opts.Exclude, "exclude", nil, "exclude these ids of a dimension (dim=id,id)")
	_ = cmd.MarkFlagRequired("dims")

	return cmd
}

func runDatasetDefine(rootOpts *RootOptions, opts *DefineOptions, arg string, cmd *cobra.Command) error {
	formatter := newFormatter(rootOpts, cmd)

	loc, err := ParseLocator(arg)
	if err != nil {
		return fail(formatter, ErrCodeInvalidArgs, "invalid locator", err)
	}
	space, err := frequency.NewSpace(opts.Space, opts.Dims...)
	if err != nil {
		return fail(formatter, ErrCodeInvalidArgs, "invalid dimensions", err)
	}

	dsOpts := []dataset.Option{dataset.WithName(loc.Name)}
	if len(opts.Hierarchy) > 0 {
		dsOpts = append(dsOpts, dataset.WithHierarchy(opts.Hierarchy...))
	}
	for _, filter := range opts.Include {
		dim, ids, err := parseFilter(filter)
		if err != nil {
			return fail(formatter, ErrCodeInvalidArgs, "invalid --include", err)
		}
		dsOpts = append(dsOpts, dataset.WithInclude(dim, ids...))
	}
	for _, filter := range opts.Exclude {
		dim, ids, err := parseFilter(filter)
		if err != nil {
			return fail(formatter, ErrCodeInvalidArgs, "invalid --exclude", err)
		}
		dsOpts = append(dsOpts, dataset.WithExclude(dim, ids...))
	}

	st, err := openStore(formatter, loc)
	if err != nil {
		return err
	}
	dsOpts = append(dsOpts, dataset.WithLogger(st.Logger()))
	ds, err := dataset.New(st, loc.ID, space, dsOpts...)
	if err != nil {
		return fail(formatter, ErrCodeInvalidArgs, "invalid dataset", err)
	}
	if err := ds.Save(cmd.Context()); err != nil {
		return storeFailure(formatter, "cannot save dataset definition", err)
	}

	return formatter.Success(map[string]any{
		"locator":   loc.String(),
		"hierarchy": ds.Hierarchy(),
	}, fmt.Sprintf("✓ Defined dataset %s\n", loc))
}

// parseFilter splits "dim=id,id".
func parseFilter(filter string) (string, []string, error) {
	dim, list, ok := strings.Cut(filter, "=")
	if !ok || dim == "" || list == "" {
		return "", nil, fmt.Errorf("expected <dim>=<id>[,<id>...], got %q", filter)
	}
	return dim, strings.Split(list, ","), nil
}

func newDatasetShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "show <store>//<dataset-id>[@<name>]",
		Short:         "Print a saved dataset definition",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd)
			ds, err := loadDataset(cmd.Context(), formatter, args[0])
			if err != nil {
				return err
			}
			def := ds.Definition()
			return formatter.Success(record.ToAny(def), describe(ds))
		},
	}
}

// describe renders a dataset definition for text output.
func describe(ds *dataset.Dataset) string {
	var b strings.Builder
	space := ds.Space()
	fmt.Fprintf(&b, "id:        %s\n", ds.ID())
	if ds.Name() != "" {
		fmt.Fprintf(&b, "name:      %s\n", ds.Name())
	}
	fmt.Fprintf(&b, "space:     %s (%s)\n", space.Name(), strings.Join(space.Dims(), ", "))
	fmt.Fprintf(&b, "hierarchy: %s\n", strings.Join(ds.Hierarchy(), " / "))
	for _, dim := range space.Dims() {
		if ids := ds.Include(dim); len(ids) > 0 {
			fmt.Fprintf(&b, "include:   %s=%s\n", dim, strings.Join(ids, ","))
		}
		if ids := ds.Exclude(dim); len(ids) > 0 {
			fmt.Fprintf(&b, "exclude:   %s=%s\n", dim, strings.Join(ids, ","))
		}
	}
	for _, c := range ds.Columns() {
		kind := "source"
		if c.Sink {
			kind = "sink"
		}
		fmt.Fprintf(&b, "column:    %s %s %s @ %s (%s)\n", kind, c.Name, c.Datatype.Name, space.Format(c.Frequency), c.Path)
	}
	return b.String()
}

func newDatasetRowsCommand(rootOpts *RootOptions) *cobra.Command {
	var freq string

	cmd := &cobra.Command{
		Use:           "rows <store>//<dataset-id>[@<name>]",
		Short:         "List the row ids of a dataset at a frequency",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDatasetRows(rootOpts, args[0], freq, cmd)
		},
	}
	cmd.Flags().StringVarP(&freq, "frequency", "f", "", "row frequency, e.g. subject+session (default: leaf)")
	return cmd
}

func runDatasetRows(opts *RootOptions, arg, freq string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)
	ctx := cmd.Context()

	ds, err := loadDataset(ctx, formatter, arg)
	if err != nil {
		return err
	}
	f := ds.LeafFrequency()
	if freq != "" {
		if f, err = ds.Space().Parse(freq); err != nil {
			return fail(formatter, ErrCodeInvalidArgs, "invalid frequency", err)
		}
	}
	ids, err := ds.RowIDs(ctx, f)
	if err != nil {
		return storeFailure(formatter, "cannot read dataset rows", err)
	}

	var text strings.Builder
	for _, id := range ids {
		if id == "" {
			id = "<root>"
		}
		text.WriteString(id + "\n")
	}
	return formatter.Success(RowsResult{Frequency: ds.Space().Format(f), Rows: ids}, text.String())
}

// openStore resolves the store named by a locator from the registry.
func openStore(formatter *OutputFormatter, loc Locator) (*store.Store, error) {
	cfg, err := loadConfig(formatter)
	if err != nil {
		return nil, err
	}
	st, err := cfg.Open(loc.Store, newLogger(formatter))
	if err != nil {
		return nil, fail(formatter, ErrCodeNotFound, "unknown store", err)
	}
	return st, nil
}

// loadDataset parses a locator and loads the saved dataset definition it names.
func loadDataset(ctx context.Context, formatter *OutputFormatter, arg string) (*dataset.Dataset, error) {
	loc, err := ParseLocator(arg)
	if err != nil {
		return nil, fail(formatter, ErrCodeInvalidArgs, "invalid locator", err)
	}
	st, err := openStore(formatter, loc)
	if err != nil {
		return nil, err
	}
	ds, err := dataset.Load(ctx, st, loc.ID, loc.Name, dataset.WithLogger(st.Logger()))
	if err != nil {
		return nil, storeFailure(formatter, "cannot load dataset", err)
	}
	formatter.VerboseLog("Loaded dataset %s", loc)
	return ds, nil
}
