// Package local implements a store backend over a plain directory tree.
//
// A dataset id is the directory holding the tree. Layout:
//
//	<root>/<level-0 label>/.../<leaf label>/     leaf row: source files grouped by stem
//	<root>/__rows__/<frequency>/<row id>/        rows above the leaf frequency ("_" for root)
//	<row>/__entries__.json                       field values and declared datatypes
//	<row>/__derivatives__/<entry path>/          derivative fileset members
//	<row>/__provenance__/<entry path>.json       provenance records (canonical JSON)
//	<root>/__definitions__/<name>.yaml           saved dataset definitions
//
// Names starting with "__" or "." are never treated as rows or entries.
package local

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ArcanaFramework/frametree-flywheel/internal/errs"
	"github.com/ArcanaFramework/frametree-flywheel/internal/item"
	"github.com/ArcanaFramework/frametree-flywheel/internal/record"
	"github.com/ArcanaFramework/frametree-flywheel/internal/store"
)

const (
	rowsDir        = "__rows__"
	manifestFile   = "__entries__.json"
	derivativesDir = "__derivatives__"
	provenanceDir  = "__provenance__"
	definitionsDir = "__definitions__"
	rootRowDir     = "_"
)

// Backend is the local directory-tree adapter.
type Backend struct {
	connected bool
}

// New returns a local backend.
func New() *Backend {
	return &Backend{}
}

var _ store.Backend = (*Backend)(nil)

// Kind returns "local".
func (b *Backend) Kind() string { return "local" }

// Connect opens the (sessionless) local backend.
func (b *Backend) Connect(ctx context.Context) error {
	b.connected = true
	return nil
}

// Disconnect closes the local backend.
func (b *Backend) Disconnect(ctx context.Context) error {
	b.connected = false
	return nil
}

func hidden(name string) bool {
	return strings.HasPrefix(name, "__") || strings.HasPrefix(name, ".")
}

// rowDir returns the directory holding a row's entries.
func rowDir(row store.RowRef) string {
	if row.IsLeaf() {
		return filepath.Join(append([]string{row.DatasetID}, row.Path...)...)
	}
	id := row.ID
	if id == "" {
		id = rootRowDir
	}
	return filepath.Join(row.DatasetID, rowsDir, row.FrequencyName, id)
}

// CreateDataTree creates one directory per leaf label path.
func (b *Backend) CreateDataTree(ctx context.Context, datasetID string, leaves [][]string) error {
	for _, leaf := range leaves {
		dir := filepath.Join(append([]string{datasetID}, leaf...)...)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errs.Wrap(errs.CodeWriteFailure, err, "cannot create row directory %s", dir)
		}
	}
	return nil
}

// ScanTree walks depth levels of directories below the dataset root.
func (b *Backend) ScanTree(ctx context.Context, datasetID string, depth int) ([][]string, error) {
	info, err := os.Stat(datasetID)
	if err != nil || !info.IsDir() {
		return nil, errs.Wrap(errs.CodeEntryNotFound, err, "dataset directory %s does not exist", datasetID)
	}

	var leaves [][]string
	var walk func(dir string, prefix []string) error
	walk = func(dir string, prefix []string) error {
		if len(prefix) == depth {
			leaves = append(leaves, append([]string{}, prefix...))
			return nil
		}
		children, err := os.ReadDir(dir)
		if err != nil {
			return err
		}
		for _, c := range children {
			if !c.IsDir() || hidden(c.Name()) {
				continue
			}
			if err := walk(filepath.Join(dir, c.Name()), append(prefix, c.Name())); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(datasetID, nil); err != nil {
		return nil, fmt.Errorf("scan %s: %w", datasetID, err)
	}
	return leaves, nil
}

// manifestEntry records a declared datatype and, for fields, the serialised value.
type manifestEntry struct {
	Datatype string  `json:"datatype"`
	Value    *string `json:"value,omitempty"`
}

func readManifest(dir string) (map[string]manifestEntry, error) {
	data, err := os.ReadFile(filepath.Join(dir, manifestFile))
	if os.IsNotExist(err) {
		return map[string]manifestEntry{}, nil
	}
	if err != nil {
		return nil, err
	}
	m := map[string]manifestEntry{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse %s: %w", manifestFile, err)
	}
	return m, nil
}

func writeManifest(dir string, m map[string]manifestEntry) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(filepath.Join(dir, manifestFile), data)
}

// writeFileAtomic writes through a temporary file in the same directory and renames it.
func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// sourceGroups groups the visible members of a row directory by stem.
func sourceGroups(dir string) (map[string][]string, error) {
	children, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return map[string][]string{}, nil
	}
	if err != nil {
		return nil, err
	}
	groups := map[string][]string{}
	for _, c := range children {
		if hidden(c.Name()) {
			continue
		}
		stem := c.Name()
		if !c.IsDir() {
			stem, _ = item.SplitExt(c.Name())
		}
		groups[stem] = append(groups[stem], filepath.Join(dir, c.Name()))
	}
	return groups, nil
}

// inferDatatype picks the most specific registered datatype for a group of members.
func inferDatatype(paths []string) item.Datatype {
	if len(paths) == 1 {
		if info, err := os.Stat(paths[0]); err == nil && info.IsDir() {
			return item.Directory
		}
	}
	for _, name := range item.Names() {
		dt := item.MustLookup(name)
		if !dt.IsFileSet() || len(dt.Extensions) == 0 {
			continue
		}
		if _, err := item.NewFileSet(dt, paths...); err == nil {
			return dt
		}
	}
	if len(paths) == 1 {
		return item.File
	}
	return item.AnyFileSet
}

// ScanRow lists manifest entries and stem-grouped source members.
func (b *Backend) ScanRow(ctx context.Context, row store.RowRef) ([]store.Entry, error) {
	dir := rowDir(row)
	manifest, err := readManifest(dir)
	if err != nil {
		return nil, errs.Wrap(errs.CodeEntryNotFound, err, "cannot read row").At("", row.ID, row.FrequencyName)
	}
	groups, err := sourceGroups(dir)
	if err != nil {
		return nil, errs.Wrap(errs.CodeEntryNotFound, err, "cannot list row").At("", row.ID, row.FrequencyName)
	}

	seen := map[string]bool{}
	var entries []store.Entry
	for path, me := range manifest {
		dt, err := item.Lookup(me.Datatype)
		if err != nil {
			return nil, err
		}
		entries = append(entries, b.entry(path, dt, row))
		seen[path] = true
	}
	for stem, paths := range groups {
		if seen[stem] {
			continue
		}
		entries = append(entries, b.entry(stem, inferDatatype(paths), row))
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}

func (b *Backend) entry(path string, dt item.Datatype, row store.RowRef) store.Entry {
	return store.Entry{
		Path:     path,
		Datatype: dt,
		Row:      row,
		URI:      "file://" + filepath.ToSlash(filepath.Join(rowDir(row), path)),
	}
}

// CreateEntry checks the path is free in the row and returns the entry handle.
func (b *Backend) CreateEntry(ctx context.Context, path string, dt item.Datatype, row store.RowRef) (store.Entry, error) {
	if path == "" || strings.ContainsAny(path, `/\`) || hidden(path) {
		return store.Entry{}, errs.New(errs.CodeWriteFailure, "invalid entry path %q", path)
	}
	existing, err := b.ScanRow(ctx, row)
	if err != nil && !errs.IsEntryNotFound(err) {
		return store.Entry{}, err
	}
	for _, e := range existing {
		if e.Path == path {
			return store.Entry{}, errs.New(errs.CodeEntryExists, "entry already exists").
				At(path, row.ID, row.FrequencyName)
		}
	}
	if err := os.MkdirAll(rowDir(row), 0o755); err != nil {
		return store.Entry{}, errs.Wrap(errs.CodeWriteFailure, err, "cannot create row directory")
	}
	return b.entry(path, dt, row), nil
}

// Get resolves an entry from the manifest or the row's members.
func (b *Backend) Get(ctx context.Context, entry store.Entry) (item.Item, error) {
	dir := rowDir(entry.Row)
	notFound := func(err error) error {
		return errs.Wrap(errs.CodeEntryNotFound, err, "no content stored").
			At(entry.Path, entry.Row.ID, entry.Row.FrequencyName)
	}

	manifest, err := readManifest(dir)
	if err != nil {
		return nil, notFound(err)
	}
	dt := entry.Datatype
	if me, ok := manifest[entry.Path]; ok {
		if dt, err = item.Lookup(me.Datatype); err != nil {
			return nil, err
		}
		if me.Value != nil {
			return item.DecodeField(dt, *me.Value)
		}
	}
	if dt.IsField() {
		return nil, notFound(nil)
	}

	var paths []string
	if entry.IsDerivative() {
		members, err := os.ReadDir(filepath.Join(dir, derivativesDir, entry.Path))
		if err != nil {
			return nil, notFound(err)
		}
		for _, m := range members {
			paths = append(paths, filepath.Join(dir, derivativesDir, entry.Path, m.Name()))
		}
	} else {
		groups, err := sourceGroups(dir)
		if err != nil {
			return nil, notFound(err)
		}
		paths = groups[entry.Path]
	}
	if len(paths) == 0 {
		return nil, notFound(nil)
	}
	return item.NewFileSet(dt, paths...)
}

// Put writes a field into the manifest or copies fileset members into the row.
func (b *Backend) Put(ctx context.Context, it item.Item, entry store.Entry) (item.Item, error) {
	converted, err := item.Convert(it, entry.Datatype)
	if err != nil {
		return nil, err
	}
	dir := rowDir(entry.Row)
	fail := func(err error) error {
		return errs.Wrap(errs.CodeWriteFailure, err, "cannot write entry").
			At(entry.Path, entry.Row.ID, entry.Row.FrequencyName)
	}

	manifest, err := readManifest(dir)
	if err != nil {
		return nil, fail(err)
	}
	me := manifestEntry{Datatype: entry.Datatype.Name}

	var (
		stored item.Item
		undo   func() error
	)
	switch v := converted.(type) {
	case *item.Field:
		raw := v.Encode()
		me.Value = &raw
		stored = v
	case *item.FileSet:
		fs, w, err := b.putFileSet(dir, v, entry)
		if err != nil {
			return nil, fail(err)
		}
		defer w.cleanup()
		stored = fs
		undo = w.rollback
	}

	manifest[entry.Path] = me
	if err := writeManifest(dir, manifest); err != nil {
		if undo != nil {
			err = errors.Join(err, undo())
		}
		return nil, fail(err)
	}
	return stored, nil
}

// fileSetWrite records the moves made by putFileSet so they can be reverted.
type fileSetWrite struct {
	staging string
	placed  []string
	asides  [][2]string // original path, parked path
}

// rollback removes the new members and moves the previous ones back.
func (w *fileSetWrite) rollback() error {
	var all []error
	for _, p := range w.placed {
		all = append(all, os.RemoveAll(p))
	}
	for _, a := range w.asides {
		all = append(all, os.Rename(a[1], a[0]))
	}
	w.placed, w.asides = nil, nil
	return errors.Join(all...)
}

func (w *fileSetWrite) cleanup() {
	os.RemoveAll(w.staging)
}

// putFileSet builds the complete member set in a hidden staging directory
// before touching the row, then swaps it in. Previous members are parked in
// staging until the caller commits, so any failure leaves the row unchanged.
func (b *Backend) putFileSet(dir string, fs *item.FileSet, entry store.Entry) (*item.FileSet, *fileSetWrite, error) {
	var names []string
	seen := map[string]bool{}
	for _, src := range fs.Paths() {
		info, err := os.Stat(src)
		if err != nil {
			return nil, nil, err
		}
		name := store.MemberName(entry, filepath.Base(src), info.IsDir())
		if seen[name] {
			return nil, nil, fmt.Errorf("members of %q collide on name %q", entry.Path, name)
		}
		seen[name] = true
		names = append(names, name)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, err
	}
	staging, err := os.MkdirTemp(dir, ".put-*")
	if err != nil {
		return nil, nil, err
	}
	w := &fileSetWrite{staging: staging}
	abort := func(err error) (*item.FileSet, *fileSetWrite, error) {
		if rerr := w.rollback(); rerr != nil {
			err = errors.Join(err, rerr)
		}
		w.cleanup()
		return nil, nil, err
	}

	staged, err := fs.CopyTo(filepath.Join(staging, "copy"))
	if err != nil {
		return abort(err)
	}
	fresh := filepath.Join(staging, "new")
	parked := filepath.Join(staging, "old")
	for _, d := range []string{fresh, parked} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return abort(err)
		}
	}
	for i, src := range staged.Paths() {
		if err := os.Rename(src, filepath.Join(fresh, names[i])); err != nil {
			return abort(err)
		}
	}

	var paths []string
	if entry.IsDerivative() {
		target := filepath.Join(dir, derivativesDir, entry.Path)
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return abort(err)
		}
		if _, err := os.Stat(target); err == nil {
			aside := filepath.Join(parked, "entry")
			if err := os.Rename(target, aside); err != nil {
				return abort(err)
			}
			w.asides = append(w.asides, [2]string{target, aside})
		}
		if err := os.Rename(fresh, target); err != nil {
			return abort(err)
		}
		w.placed = append(w.placed, target)
		for _, name := range names {
			paths = append(paths, filepath.Join(target, name))
		}
	} else {
		groups, err := sourceGroups(dir)
		if err != nil {
			return abort(err)
		}
		for i, old := range groups[entry.Path] {
			aside := filepath.Join(parked, strconv.Itoa(i))
			if err := os.Rename(old, aside); err != nil {
				return abort(err)
			}
			w.asides = append(w.asides, [2]string{old, aside})
		}
		for _, name := range names {
			dest := filepath.Join(dir, name)
			if err := os.Rename(filepath.Join(fresh, name), dest); err != nil {
				return abort(err)
			}
			w.placed = append(w.placed, dest)
			paths = append(paths, dest)
		}
	}

	set, err := item.NewFileSet(entry.Datatype, paths...)
	if err != nil {
		return abort(err)
	}
	return set, w, nil
}

func provenancePath(entry store.Entry) string {
	return filepath.Join(rowDir(entry.Row), provenanceDir, entry.Path+".json")
}

// PutProvenance stores the record as canonical JSON beside the row.
func (b *Backend) PutProvenance(ctx context.Context, prov record.Map, entry store.Entry) error {
	data, err := record.MarshalCanonical(prov)
	if err != nil {
		return errs.Wrap(errs.CodeWriteFailure, err, "cannot serialise provenance").
			At(entry.Path, entry.Row.ID, entry.Row.FrequencyName)
	}
	if err := writeFileAtomic(provenancePath(entry), data); err != nil {
		return errs.Wrap(errs.CodeWriteFailure, err, "cannot write provenance").
			At(entry.Path, entry.Row.ID, entry.Row.FrequencyName)
	}
	return nil
}

// GetProvenance reads the record stored by PutProvenance.
func (b *Backend) GetProvenance(ctx context.Context, entry store.Entry) (record.Map, error) {
	data, err := os.ReadFile(provenancePath(entry))
	if err != nil {
		return nil, errs.Wrap(errs.CodeEntryNotFound, err, "no provenance stored").
			At(entry.Path, entry.Row.ID, entry.Row.FrequencyName)
	}
	return record.Decode(data)
}

func definitionPath(datasetID, name string) string {
	return filepath.Join(datasetID, definitionsDir, name+".yaml")
}

// SaveDatasetDefinition writes the definition as YAML.
func (b *Backend) SaveDatasetDefinition(ctx context.Context, datasetID string, def record.Map, name string) error {
	data, err := yaml.Marshal(record.ToAny(def))
	if err != nil {
		return errs.Wrap(errs.CodeWriteFailure, err, "cannot serialise definition %q", name)
	}
	if err := writeFileAtomic(definitionPath(datasetID, name), data); err != nil {
		return errs.Wrap(errs.CodeWriteFailure, err, "cannot write definition %q", name)
	}
	return nil
}

// LoadDatasetDefinition reads a definition saved by SaveDatasetDefinition.
func (b *Backend) LoadDatasetDefinition(ctx context.Context, datasetID, name string) (record.Map, error) {
	data, err := os.ReadFile(definitionPath(datasetID, name))
	if err != nil {
		return nil, errs.Wrap(errs.CodeEntryNotFound, err, "no definition named %q", name)
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse definition %q: %w", name, err)
	}
	return record.MapFromAny(raw)
}
