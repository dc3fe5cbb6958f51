package item

// Item is a sealed interface over *FileSet and *Field.
type Item interface {
	// Datatype returns the item's datatype.
	Datatype() Datatype

	// IsFileSet reports whether the item is a fileset; false means it is a field.
	IsFileSet() bool

	// ContentHash returns a deterministic digest of the item's content.
	ContentHash() (string, error)

	sealed()
}

func (*FileSet) sealed() {}
func (*Field) sealed()   {}
