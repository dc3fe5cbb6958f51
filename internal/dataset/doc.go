// Package dataset models a dataset over a store: a row-frequency space, a
// hierarchy describing how rows nest in the store, named columns and a lazily
// populated tree of rows.
//
// Reads and writes go through Row, which resolves columns against the row's
// entries (or an ancestor row's, for coarser source columns) and converts the
// stored items to the column's datatype. Written items are cached on the row
// and persisted to the store in the same call.
//
// Dataset methods open a store connection scope when none is active, so they
// can be called inside or outside Tree.Do.
package dataset
