package dataset

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"

	"github.com/ArcanaFramework/frametree-flywheel/internal/errs"
	"github.com/ArcanaFramework/frametree-flywheel/internal/frequency"
	"github.com/ArcanaFramework/frametree-flywheel/internal/item"
	"github.com/ArcanaFramework/frametree-flywheel/internal/store"
)

// DerivativeSep separates a sink column name from the dataset name in entry paths.
const DerivativeSep = "@"

// Dataset is a view over one dataset id in a store.
type Dataset struct {
	id     string
	name   string
	store  *store.Store
	space  *frequency.Space
	logger *slog.Logger

	// hierarchy lists the frequency added by each store level, outermost first.
	hierarchy []frequency.Frequency

	include map[string][]string
	exclude map[string][]string

	columns map[string]*Column
	order   []string

	tree *Tree
}

// Option configures a Dataset.
type Option func(*Dataset) error

// WithName names the dataset. Sink entries are stored as "<column>@<name>".
func WithName(name string) Option {
	return func(d *Dataset) error {
		if strings.Contains(name, DerivativeSep) {
			return fmt.Errorf("dataset name %q must not contain %q", name, DerivativeSep)
		}
		d.name = name
		return nil
	}
}

// WithHierarchy sets the store hierarchy. Each level is a frequency name ("a" or
// "a+b") adding dimensions not fixed by the levels above it.
func WithHierarchy(levels ...string) Option {
	return func(d *Dataset) error {
		d.hierarchy = d.hierarchy[:0]
		for _, l := range levels {
			f, err := d.space.Parse(l)
			if err != nil {
				return err
			}
			d.hierarchy = append(d.hierarchy, f)
		}
		return nil
	}
}

// WithInclude restricts a dimension to the given ids.
func WithInclude(dim string, ids ...string) Option {
	return func(d *Dataset) error {
		if d.space.Index(dim) < 0 {
			return errs.New(errs.CodeInvalidFrequency, "cannot filter unknown dimension %q", dim)
		}
		d.include[dim] = append(d.include[dim], ids...)
		return nil
	}
}

// WithExclude drops the given ids of a dimension.
func WithExclude(dim string, ids ...string) Option {
	return func(d *Dataset) error {
		if d.space.Index(dim) < 0 {
			return errs.New(errs.CodeInvalidFrequency, "cannot filter unknown dimension %q", dim)
		}
		d.exclude[dim] = append(d.exclude[dim], ids...)
		return nil
	}
}

// WithLogger sets the dataset logger. Defaults to the store's logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dataset) error {
		if l != nil {
			d.logger = l
		}
		return nil
	}
}

// New creates a dataset over id in st. The hierarchy defaults to one level per
// dimension, in space order.
func New(st *store.Store, id string, space *frequency.Space, opts ...Option) (*Dataset, error) {
	d := &Dataset{
		id:      id,
		store:   st,
		space:   space,
		logger:  st.Logger(),
		include: map[string][]string{},
		exclude: map[string][]string{},
		columns: map[string]*Column{},
	}
	for _, dim := range space.Dims() {
		d.hierarchy = append(d.hierarchy, space.MustOf(dim))
	}
	for _, opt := range opts {
		if err := opt(d); err != nil {
			return nil, fmt.Errorf("new dataset %q: %w", id, err)
		}
	}
	if err := d.validateHierarchy(); err != nil {
		return nil, fmt.Errorf("new dataset %q: %w", id, err)
	}
	d.tree = newTree(d)
	return d, nil
}

func (d *Dataset) validateHierarchy() error {
	var seen frequency.Frequency
	for i, level := range d.hierarchy {
		if level.IsRoot() {
			return errs.New(errs.CodeInvalidFrequency, "hierarchy level %d fixes no dimensions", i)
		}
		if level.Intersect(seen) != 0 {
			return errs.New(errs.CodeInvalidFrequency,
				"hierarchy level %d (%s) repeats dimensions fixed above it", i, d.space.Format(level))
		}
		seen = seen.Union(level)
	}
	if seen != d.space.Leaf() {
		return errs.New(errs.CodeInvalidFrequency,
			"hierarchy covers %s, not every dimension of %s", d.space.Format(seen), d.space.Format(d.space.Leaf()))
	}
	return nil
}

// ID returns the dataset id within the store.
func (d *Dataset) ID() string { return d.id }

// Name returns the dataset name ("" for the default dataset).
func (d *Dataset) Name() string { return d.name }

// Store returns the backing store.
func (d *Dataset) Store() *store.Store { return d.store }

// Space returns the row-frequency space.
func (d *Dataset) Space() *frequency.Space { return d.space }

// Tree returns the dataset's row tree.
func (d *Dataset) Tree() *Tree { return d.tree }

// LeafFrequency returns the frequency of the finest rows.
func (d *Dataset) LeafFrequency() frequency.Frequency { return d.space.Leaf() }

// Hierarchy returns the formatted hierarchy levels.
func (d *Dataset) Hierarchy() []string {
	out := make([]string, len(d.hierarchy))
	for i, l := range d.hierarchy {
		out[i] = d.space.Format(l)
	}
	return out
}

// Include returns the include filter of a dimension.
func (d *Dataset) Include(dim string) []string { return slices.Clone(d.include[dim]) }

// Exclude returns the exclude filter of a dimension.
func (d *Dataset) Exclude(dim string) []string { return slices.Clone(d.exclude[dim]) }

// admits reports whether a leaf's dimension ids pass the include/exclude filters.
func (d *Dataset) admits(ids map[string]string) bool {
	for dim, allowed := range d.include {
		if len(allowed) > 0 && !slices.Contains(allowed, ids[dim]) {
			return false
		}
	}
	for dim, denied := range d.exclude {
		if slices.Contains(denied, ids[dim]) {
			return false
		}
	}
	return true
}

// Column is a named selector over the dataset's entries.
type Column struct {
	Name      string
	Path      string
	Datatype  item.Datatype
	Frequency frequency.Frequency
	Sink      bool
}

// SourceOption configures a source column.
type SourceOption func(*Column)

// FromPath reads the source from a store path other than the column name.
func FromPath(path string) SourceOption {
	return func(c *Column) { c.Path = path }
}

// AtFrequency declares the source's row frequency. Defaults to the leaf frequency.
func AtFrequency(f frequency.Frequency) SourceOption {
	return func(c *Column) { c.Frequency = f }
}

// AddSource registers a column selecting pre-existing entries.
func (d *Dataset) AddSource(name string, dt item.Datatype, opts ...SourceOption) (*Column, error) {
	c := &Column{Name: name, Path: name, Datatype: dt, Frequency: d.space.Leaf()}
	for _, opt := range opts {
		opt(c)
	}
	if err := d.addColumn(c); err != nil {
		return nil, err
	}
	return c, nil
}

// AddSink registers a column for outputs written at frequency f. Its entries are
// stored as "<name>@<dataset name>".
func (d *Dataset) AddSink(name string, dt item.Datatype, f frequency.Frequency) (*Column, error) {
	c := &Column{
		Name:      name,
		Path:      name + DerivativeSep + d.name,
		Datatype:  dt,
		Frequency: f,
		Sink:      true,
	}
	if err := d.addColumn(c); err != nil {
		return nil, err
	}
	return c, nil
}

func (d *Dataset) addColumn(c *Column) error {
	if c.Name == "" {
		return fmt.Errorf("add column: empty name")
	}
	if c.Datatype.IsZero() {
		return fmt.Errorf("add column %q: no datatype", c.Name)
	}
	if err := d.space.Validate(c.Frequency); err != nil {
		return err
	}
	if _, ok := d.columns[c.Name]; ok {
		return errs.New(errs.CodeEntryExists, "column %q is already defined", c.Name).At(c.Path, "", d.space.Format(c.Frequency))
	}
	d.columns[c.Name] = c
	d.order = append(d.order, c.Name)
	return nil
}

// Column returns a registered column.
func (d *Dataset) Column(name string) (*Column, error) {
	c, ok := d.columns[name]
	if !ok {
		return nil, errs.New(errs.CodeEntryNotFound, "no column named %q", name).At(name, "", "")
	}
	return c, nil
}

// Columns returns the registered columns in registration order.
func (d *Dataset) Columns() []*Column {
	out := make([]*Column, len(d.order))
	for i, n := range d.order {
		out[i] = d.columns[n]
	}
	return out
}

// Rows returns the rows at f, populating the tree first if needed.
func (d *Dataset) Rows(ctx context.Context, f frequency.Frequency) ([]*Row, error) {
	if err := d.space.Validate(f); err != nil {
		return nil, err
	}
	if err := d.tree.ensure(ctx); err != nil {
		return nil, err
	}
	return d.tree.rows(f), nil
}

// Row returns the row at f with the given id.
func (d *Dataset) Row(ctx context.Context, f frequency.Frequency, id string) (*Row, error) {
	if err := d.space.Validate(f); err != nil {
		return nil, err
	}
	if err := d.tree.ensure(ctx); err != nil {
		return nil, err
	}
	row := d.tree.row(f, id)
	if row == nil {
		return nil, errs.New(errs.CodeEntryNotFound, "no such row").At("", id, d.space.Format(f))
	}
	return row, nil
}

// Root returns the dataset-wide row.
func (d *Dataset) Root(ctx context.Context) (*Row, error) {
	return d.Row(ctx, d.space.Root(), "")
}

// RowIDs returns the ids of the rows at f, sorted.
func (d *Dataset) RowIDs(ctx context.Context, f frequency.Frequency) ([]string, error) {
	rows, err := d.Rows(ctx, f)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.ID()
	}
	sort.Strings(ids)
	return ids, nil
}
