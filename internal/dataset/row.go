package dataset

import (
	"context"
	"maps"
	"sort"
	"sync"

	"github.com/ArcanaFramework/frametree-flywheel/internal/frequency"
	"github.com/ArcanaFramework/frametree-flywheel/internal/item"
	"github.com/ArcanaFramework/frametree-flywheel/internal/record"
	"github.com/ArcanaFramework/frametree-flywheel/internal/store"
)

// Row is one row of a dataset at a given frequency.
type Row struct {
	ds  *Dataset
	ref store.RowRef
	ids map[string]string

	mu      sync.Mutex
	scanned bool
	entries map[string]store.Entry
	items   map[string]item.Item
}

func newRow(ds *Dataset, f frequency.Frequency, id string, ids map[string]string, path []string) *Row {
	fixed := make(map[string]string)
	for _, dim := range ds.space.DimsOf(f) {
		fixed[dim] = ids[dim]
	}
	return &Row{
		ds:      ds,
		ref:     ds.ref(f, id, path),
		ids:     fixed,
		entries: map[string]store.Entry{},
		items:   map[string]item.Item{},
	}
}

// Frequency returns the row's frequency.
func (r *Row) Frequency() frequency.Frequency { return r.ref.Frequency }

// ID returns the row id: the ids of the fixed dimensions joined by '.'.
func (r *Row) ID() string { return r.ref.ID }

// IDs returns the id of each fixed dimension.
func (r *Row) IDs() map[string]string { return maps.Clone(r.ids) }

// Ref returns the row's store reference.
func (r *Row) Ref() store.RowRef { return r.ref }

// String returns "<frequency>:<id>".
func (r *Row) String() string { return r.ref.String() }

// scan loads the row's entries from the store once.
func (r *Row) scan(ctx context.Context) error {
	r.mu.Lock()
	scanned := r.scanned
	r.mu.Unlock()
	if scanned {
		return nil
	}

	return r.ds.store.WithConnection(ctx, func(ctx context.Context) error {
		entries, err := r.ds.store.ScanRow(ctx, r.ref)
		if err != nil {
			return err
		}
		r.mu.Lock()
		defer r.mu.Unlock()
		for _, e := range entries {
			if _, ok := r.entries[e.Path]; !ok {
				r.entries[e.Path] = e
			}
		}
		r.scanned = true
		return nil
	})
}

// Entries returns the row's entries, sorted by path.
func (r *Row) Entries(ctx context.Context) ([]store.Entry, error) {
	if err := r.scan(ctx); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]store.Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// Entry returns the entry stored under path, if any.
func (r *Row) Entry(ctx context.Context, path string) (store.Entry, bool, error) {
	if err := r.scan(ctx); err != nil {
		return store.Entry{}, false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[path]
	return e, ok, nil
}

// Cell is a column's value in one row.
type Cell struct {
	Row    *Row
	Column *Column

	// Entry is nil and Item is nil for an empty cell.
	Entry *store.Entry
	Item  item.Item
}

// IsEmpty reports whether the cell has no stored item.
func (c *Cell) IsEmpty() bool { return c.Item == nil }

// Get returns the column's item in this row, converted to the column's datatype.
func (r *Row) Get(ctx context.Context, column string) (item.Item, error) {
	cell, err := r.Cell(ctx, column, false)
	if err != nil {
		return nil, err
	}
	return cell.Item, nil
}

// Cell resolves a column in this row. With allowEmpty, a missing entry yields an
// empty cell instead of EntryNotFound.
func (r *Row) Cell(ctx context.Context, column string, allowEmpty bool) (*Cell, error) {
	col, err := r.ds.Column(column)
	if err != nil {
		return nil, err
	}
	return resolve(ctx, r, col, allowEmpty)
}

// PutOption configures Row.Put.
type PutOption func(*putConfig)

type putConfig struct {
	provenance record.Map
}

// WithProvenance attaches a provenance record to the written entry.
func WithProvenance(prov record.Map) PutOption {
	return func(c *putConfig) { c.provenance = prov }
}

// Put writes an item to a sink column in this row. The item is persisted to the
// store and cached on the row, so later reads in the same session see it
// without a store round-trip.
func (r *Row) Put(ctx context.Context, column string, it item.Item, opts ...PutOption) error {
	col, err := r.ds.Column(column)
	if err != nil {
		return err
	}
	var cfg putConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	return write(ctx, r, col, it, cfg)
}

func (r *Row) cached(path string) (item.Item, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	it, ok := r.items[path]
	return it, ok
}

func (r *Row) remember(entry store.Entry, it item.Item) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[entry.Path] = entry
	r.items[entry.Path] = it
}
