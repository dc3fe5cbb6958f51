// Package item defines datatypes and the resolved values behind dataset entries.
//
// An Item is a closed variant over two kinds:
//   - *FileSet: one or more files or directories on disk, content-hashable
//   - *Field: a typed primitive (text, integer, decimal, boolean) or an array of one
//
// Datatypes are looked up by name from a fixed registry. Conversion between datatypes
// is checked, never inferred from runtime type inspection of callers' values.
package item
