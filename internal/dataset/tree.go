package dataset

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ArcanaFramework/frametree-flywheel/internal/errs"
	"github.com/ArcanaFramework/frametree-flywheel/internal/frequency"
	"github.com/ArcanaFramework/frametree-flywheel/internal/store"
)

// IDSep joins dimension ids into row ids, and multi-dimension hierarchy labels.
const IDSep = "."

// Tree is the cached row structure of a dataset.
//
// Entering the tree opens a store connection scope and populates the rows on
// first use. Exiting releases the scope but keeps the cache; Refresh rebuilds it.
type Tree struct {
	ds *Dataset

	mu        sync.Mutex
	populated bool
	byFreq    map[frequency.Frequency]*rowIndex
}

type rowIndex struct {
	order []*Row
	byID  map[string]*Row
}

func newTree(ds *Dataset) *Tree {
	return &Tree{ds: ds}
}

// Enter opens a scope: connects the store and populates the tree if it is not cached.
func (t *Tree) Enter(ctx context.Context) error {
	if err := t.ds.store.Connect(ctx); err != nil {
		return err
	}
	if err := t.ensure(ctx); err != nil {
		return errors.Join(err, t.ds.store.Disconnect(ctx))
	}
	return nil
}

// Exit closes a scope opened by Enter. The row cache is kept.
func (t *Tree) Exit(ctx context.Context) error {
	return t.ds.store.Disconnect(ctx)
}

// Do runs fn inside a tree scope, exiting on every path.
func (t *Tree) Do(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if err := t.Enter(ctx); err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, t.Exit(ctx))
	}()
	return fn(ctx)
}

// Populated reports whether the row cache is filled.
func (t *Tree) Populated() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.populated
}

// Refresh drops the cached rows and items and re-reads the tree from the store.
func (t *Tree) Refresh(ctx context.Context) error {
	return t.ds.store.WithConnection(ctx, t.populate)
}

// ensure populates the tree unless it is already cached.
func (t *Tree) ensure(ctx context.Context) error {
	if t.Populated() {
		return nil
	}
	return t.ds.store.WithConnection(ctx, t.populate)
}

func (t *Tree) populate(ctx context.Context) error {
	ds := t.ds
	leaves, err := ds.store.ScanTree(ctx, ds.id, len(ds.hierarchy))
	if err != nil {
		return err
	}

	byFreq := map[frequency.Frequency]*rowIndex{}
	for _, f := range ds.space.All() {
		byFreq[f] = &rowIndex{byID: map[string]*Row{}}
	}

	kept := 0
	for _, labels := range leaves {
		ids, err := ds.decodeLabels(labels)
		if err != nil {
			return err
		}
		if !ds.admits(ids) {
			continue
		}
		kept++
		for _, f := range ds.space.All() {
			idx := byFreq[f]
			id := ds.rowID(f, ids)
			if _, ok := idx.byID[id]; ok {
				continue
			}
			var path []string
			if f == ds.space.Leaf() {
				path = append([]string{}, labels...)
			}
			row := newRow(ds, f, id, ids, path)
			idx.byID[id] = row
			idx.order = append(idx.order, row)
		}
	}

	// the root row exists even in an empty tree
	if root := byFreq[ds.space.Root()]; len(root.order) == 0 {
		row := newRow(ds, ds.space.Root(), "", map[string]string{}, nil)
		root.byID[""] = row
		root.order = append(root.order, row)
	}

	t.mu.Lock()
	t.byFreq = byFreq
	t.populated = true
	t.mu.Unlock()

	ds.logger.Info("populated dataset tree",
		"dataset", ds.id, "name", ds.name, "leaves", kept, "filtered", len(leaves)-kept)
	return nil
}

// decodeLabels maps a leaf's hierarchy labels to dimension ids.
func (d *Dataset) decodeLabels(labels []string) (map[string]string, error) {
	if len(labels) != len(d.hierarchy) {
		return nil, errs.New(errs.CodeInvalidFrequency,
			"leaf %v has %d levels, hierarchy has %d", labels, len(labels), len(d.hierarchy))
	}
	ids := make(map[string]string, d.space.Len())
	for i, level := range d.hierarchy {
		dims := d.space.DimsOf(level)
		parts := []string{labels[i]}
		if len(dims) > 1 {
			parts = strings.Split(labels[i], IDSep)
		}
		if len(parts) != len(dims) {
			return nil, errs.New(errs.CodeInvalidFrequency,
				"label %q does not hold one id for each of %v", labels[i], dims).
				At("", strings.Join(labels, "/"), d.space.Format(level))
		}
		for j, dim := range dims {
			if err := checkID(dim, parts[j]); err != nil {
				return nil, err.At("", strings.Join(labels, "/"), d.space.Format(level))
			}
			ids[dim] = parts[j]
		}
	}
	return ids, nil
}

// checkID rejects dimension ids that cannot be joined into unambiguous row ids.
func checkID(dim, id string) *errs.Error {
	if id == "" || strings.Contains(id, IDSep) {
		return errs.New(errs.CodeInvalidFrequency, "invalid id %q for dimension %q: must be non-empty without %q", id, dim, IDSep)
	}
	return nil
}

// CreateLeaves creates a leaf in the store tree for each set of dimension ids.
// Every dimension must have an id.
func (d *Dataset) CreateLeaves(ctx context.Context, leaves []map[string]string) error {
	labels := make([][]string, 0, len(leaves))
	for _, ids := range leaves {
		for _, dim := range d.space.Dims() {
			if err := checkID(dim, ids[dim]); err != nil {
				return err
			}
		}
		labels = append(labels, d.LeafLabels(ids))
	}
	err := d.store.WithConnection(ctx, func(ctx context.Context) error {
		return d.store.CreateDataTree(ctx, d.id, labels)
	})
	if err != nil {
		return fmt.Errorf("create leaves of %q: %w", d.id, err)
	}
	return nil
}

// LeafLabels returns the hierarchy labels of the leaf with the given dimension ids.
func (d *Dataset) LeafLabels(ids map[string]string) []string {
	labels := make([]string, len(d.hierarchy))
	for i, level := range d.hierarchy {
		var parts []string
		for _, dim := range d.space.DimsOf(level) {
			parts = append(parts, ids[dim])
		}
		labels[i] = strings.Join(parts, IDSep)
	}
	return labels
}

// rowID joins the ids of the dimensions fixed in f.
func (d *Dataset) rowID(f frequency.Frequency, ids map[string]string) string {
	var parts []string
	for _, dim := range d.space.DimsOf(f) {
		parts = append(parts, ids[dim])
	}
	return strings.Join(parts, IDSep)
}

func (t *Tree) rows(f frequency.Frequency) []*Row {
	t.mu.Lock()
	defer t.mu.Unlock()
	idx := t.byFreq[f]
	if idx == nil {
		return nil
	}
	return append([]*Row(nil), idx.order...)
}

func (t *Tree) row(f frequency.Frequency, id string) *Row {
	t.mu.Lock()
	defer t.mu.Unlock()
	idx := t.byFreq[f]
	if idx == nil {
		return nil
	}
	return idx.byID[id]
}

// ref builds the store reference of a row.
func (d *Dataset) ref(f frequency.Frequency, id string, path []string) store.RowRef {
	return store.RowRef{
		DatasetID:     d.id,
		Frequency:     f,
		FrequencyName: d.space.Format(f),
		ID:            id,
		Path:          path,
	}
}
