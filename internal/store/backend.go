package store

import (
	"context"
	"strings"

	"github.com/ArcanaFramework/frametree-flywheel/internal/frequency"
	"github.com/ArcanaFramework/frametree-flywheel/internal/item"
	"github.com/ArcanaFramework/frametree-flywheel/internal/record"
)

// RowRef identifies a row to a backend.
type RowRef struct {
	// DatasetID is the backend's dataset identifier (a directory for local stores).
	DatasetID string

	// Frequency is the row's aggregation level; FrequencyName is its formatted name.
	Frequency     frequency.Frequency
	FrequencyName string

	// ID joins the ids of the fixed dimensions with '.', in dimension order.
	// The root row has an empty ID.
	ID string

	// Path holds the hierarchy labels of a leaf row; it is nil for other rows.
	Path []string
}

// IsLeaf reports whether the row sits at the bottom of the store hierarchy.
func (r RowRef) IsLeaf() bool { return r.Path != nil }

// String returns "<frequency>:<id>".
func (r RowRef) String() string {
	return r.FrequencyName + ":" + r.ID
}

// Entry is a named, typed reference to an item within one row.
type Entry struct {
	// Path is unique within the row. Derivative paths carry an '@' followed by
	// the name of the dataset that produced them.
	Path     string
	Datatype item.Datatype
	Row      RowRef

	// URI is a backend-specific locator for the entry's content.
	URI string
}

// IsDerivative reports whether the entry was produced by a dataset sink.
func (e Entry) IsDerivative() bool {
	return strings.Contains(e.Path, "@")
}

// Backend is the capability set a store adapter implements.
//
// Methods other than Connect are only called between a successful Connect and the
// matching Disconnect.
type Backend interface {
	// Kind names the adapter ("local", "remote").
	Kind() string

	// Connect opens the backend session. Failures are StoreConnectionError.
	Connect(ctx context.Context) error

	// Disconnect releases the session. It is called exactly once per successful Connect.
	Disconnect(ctx context.Context) error

	// CreateDataTree creates the row structure of a new dataset from its leaf label paths.
	CreateDataTree(ctx context.Context, datasetID string, leaves [][]string) error

	// ScanTree returns the label paths of every leaf at the given hierarchy depth.
	ScanTree(ctx context.Context, datasetID string, depth int) ([][]string, error)

	// ScanRow returns the entries present in a row, sorted by path.
	ScanRow(ctx context.Context, row RowRef) ([]Entry, error)

	// CreateEntry registers a new entry. Fails with EntryExists if the path is taken.
	CreateEntry(ctx context.Context, path string, dt item.Datatype, row RowRef) (Entry, error)

	// Get resolves an entry to its item, with the entry's datatype.
	Get(ctx context.Context, entry Entry) (item.Item, error)

	// Put writes an item's content to an entry and returns the stored item.
	// Either the whole item lands or WriteFailure is returned.
	Put(ctx context.Context, it item.Item, entry Entry) (item.Item, error)

	// PutProvenance attaches a provenance record to an entry.
	PutProvenance(ctx context.Context, prov record.Map, entry Entry) error

	// GetProvenance returns the provenance record of an entry, or EntryNotFound.
	GetProvenance(ctx context.Context, entry Entry) (record.Map, error)

	// SaveDatasetDefinition stores a definition under a dataset id and name.
	SaveDatasetDefinition(ctx context.Context, datasetID string, def record.Map, name string) error

	// LoadDatasetDefinition returns a saved definition, or EntryNotFound.
	LoadDatasetDefinition(ctx context.Context, datasetID, name string) (record.Map, error)
}

// DefaultDefinitionName is the definition name used when a dataset is unnamed.
const DefaultDefinitionName = "default"

// DefinitionName maps the empty dataset name to DefaultDefinitionName.
func DefinitionName(name string) string {
	if name == "" {
		return DefaultDefinitionName
	}
	return name
}

// MemberName returns the name a fileset member is stored under. Source entries
// rename members to the entry path plus the member's extension; derivative
// entries keep member names.
func MemberName(entry Entry, member string, isDir bool) string {
	if entry.IsDerivative() {
		return member
	}
	if isDir {
		return entry.Path
	}
	_, ext := item.SplitExt(member)
	return entry.Path + ext
}
