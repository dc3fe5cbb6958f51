package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ArcanaFramework/frametree-flywheel/internal/errs"
	"github.com/ArcanaFramework/frametree-flywheel/internal/item"
	"github.com/ArcanaFramework/frametree-flywheel/internal/record"
)

// Store is a named handle on a backend with a re-entrant connection scope.
//
// Thread-safety: the connection counter is guarded by a mutex, but operations on one
// store are expected to run sequentially within a single logical session.
type Store struct {
	name    string
	backend Backend
	logger  *slog.Logger

	mu    sync.Mutex
	depth int
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for connection and write events.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// New wraps a backend under a store nickname.
func New(name string, backend Backend, opts ...Option) *Store {
	s := &Store{
		name:    name,
		backend: backend,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the store nickname.
func (s *Store) Name() string { return s.name }

// Kind returns the backend kind.
func (s *Store) Kind() string { return s.backend.Kind() }

// Logger returns the store's logger.
func (s *Store) Logger() *slog.Logger { return s.logger }

// Connect enters a connection scope, opening the backend session on the outermost entry.
func (s *Store) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.depth > 0 {
		s.depth++
		return nil
	}
	if err := s.backend.Connect(ctx); err != nil {
		if errs.CodeOf(err) == "" {
			err = errs.Wrap(errs.CodeStoreConnection, err, "cannot connect to store %q", s.name)
		}
		return err
	}
	s.depth = 1
	s.logger.Debug("store connected", "store", s.name, "kind", s.backend.Kind())
	return nil
}

// Disconnect exits a connection scope, releasing the backend session when the
// outermost scope exits. Calling it without a matching Connect is a no-op.
func (s *Store) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.depth == 0 {
		return nil
	}
	s.depth--
	if s.depth > 0 {
		return nil
	}
	if err := s.backend.Disconnect(ctx); err != nil {
		return fmt.Errorf("disconnect store %q: %w", s.name, err)
	}
	s.logger.Debug("store disconnected", "store", s.name)
	return nil
}

// Connected reports whether a connection scope is active.
func (s *Store) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.depth > 0
}

// WithConnection runs fn inside a connection scope. The scope is released on every
// exit path and a release failure is joined with fn's error.
func (s *Store) WithConnection(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if err := s.Connect(ctx); err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, s.Disconnect(ctx))
	}()
	return fn(ctx)
}

func (s *Store) guard(op string) error {
	if !s.Connected() {
		return errs.New(errs.CodeNotConnected, "%s called on store %q outside a connection scope", op, s.name)
	}
	return nil
}

// CreateDataTree creates the row structure of a new dataset.
func (s *Store) CreateDataTree(ctx context.Context, datasetID string, leaves [][]string) error {
	if err := s.guard("create data tree"); err != nil {
		return err
	}
	if err := s.backend.CreateDataTree(ctx, datasetID, leaves); err != nil {
		return fmt.Errorf("create data tree %s: %w", datasetID, err)
	}
	s.logger.Info("data tree created", "store", s.name, "dataset", datasetID, "leaves", len(leaves))
	return nil
}

// ScanTree returns the leaf label paths of a dataset.
func (s *Store) ScanTree(ctx context.Context, datasetID string, depth int) ([][]string, error) {
	if err := s.guard("scan tree"); err != nil {
		return nil, err
	}
	leaves, err := s.backend.ScanTree(ctx, datasetID, depth)
	if err != nil {
		return nil, fmt.Errorf("scan tree %s: %w", datasetID, err)
	}
	return leaves, nil
}

// ScanRow returns the entries of a row.
func (s *Store) ScanRow(ctx context.Context, row RowRef) ([]Entry, error) {
	if err := s.guard("scan row"); err != nil {
		return nil, err
	}
	entries, err := s.backend.ScanRow(ctx, row)
	if err != nil {
		return nil, fmt.Errorf("scan row %s: %w", row, err)
	}
	return entries, nil
}

// CreateEntry registers a new entry in a row.
func (s *Store) CreateEntry(ctx context.Context, path string, dt item.Datatype, row RowRef) (Entry, error) {
	if err := s.guard("create entry"); err != nil {
		return Entry{}, err
	}
	entry, err := s.backend.CreateEntry(ctx, path, dt, row)
	if err != nil {
		return Entry{}, fmt.Errorf("create entry %s in %s: %w", path, row, err)
	}
	return entry, nil
}

// Get resolves an entry to its item.
func (s *Store) Get(ctx context.Context, entry Entry) (item.Item, error) {
	if err := s.guard("get"); err != nil {
		return nil, err
	}
	it, err := s.backend.Get(ctx, entry)
	if err != nil {
		return nil, fmt.Errorf("get %s in %s: %w", entry.Path, entry.Row, err)
	}
	return it, nil
}

// Put writes an item to an entry.
func (s *Store) Put(ctx context.Context, it item.Item, entry Entry) (item.Item, error) {
	if err := s.guard("put"); err != nil {
		return nil, err
	}
	stored, err := s.backend.Put(ctx, it, entry)
	if err != nil {
		return nil, fmt.Errorf("put %s in %s: %w", entry.Path, entry.Row, err)
	}
	s.logger.Debug("entry written", "store", s.name, "path", entry.Path, "row", entry.Row.String(),
		"datatype", entry.Datatype.Name)
	return stored, nil
}

// PutProvenance attaches a provenance record to an entry.
func (s *Store) PutProvenance(ctx context.Context, prov record.Map, entry Entry) error {
	if err := s.guard("put provenance"); err != nil {
		return err
	}
	if err := s.backend.PutProvenance(ctx, prov, entry); err != nil {
		return fmt.Errorf("put provenance %s in %s: %w", entry.Path, entry.Row, err)
	}
	return nil
}

// GetProvenance returns the provenance record of an entry.
func (s *Store) GetProvenance(ctx context.Context, entry Entry) (record.Map, error) {
	if err := s.guard("get provenance"); err != nil {
		return nil, err
	}
	prov, err := s.backend.GetProvenance(ctx, entry)
	if err != nil {
		return nil, fmt.Errorf("get provenance %s in %s: %w", entry.Path, entry.Row, err)
	}
	return prov, nil
}

// SaveDatasetDefinition stores a dataset definition under an id and name.
func (s *Store) SaveDatasetDefinition(ctx context.Context, datasetID string, def record.Map, name string) error {
	if err := s.guard("save dataset definition"); err != nil {
		return err
	}
	if err := s.backend.SaveDatasetDefinition(ctx, datasetID, def, DefinitionName(name)); err != nil {
		return fmt.Errorf("save definition %s@%s: %w", datasetID, name, err)
	}
	s.logger.Info("dataset definition saved", "store", s.name, "dataset", datasetID, "name", DefinitionName(name))
	return nil
}

// LoadDatasetDefinition returns a saved dataset definition.
func (s *Store) LoadDatasetDefinition(ctx context.Context, datasetID, name string) (record.Map, error) {
	if err := s.guard("load dataset definition"); err != nil {
		return nil, err
	}
	def, err := s.backend.LoadDatasetDefinition(ctx, datasetID, DefinitionName(name))
	if err != nil {
		return nil, fmt.Errorf("load definition %s@%s: %w", datasetID, name, err)
	}
	return def, nil
}
