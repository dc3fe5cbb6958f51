package dataset

import (
	"context"

	"github.com/ArcanaFramework/frametree-flywheel/internal/errs"
	"github.com/ArcanaFramework/frametree-flywheel/internal/item"
	"github.com/ArcanaFramework/frametree-flywheel/internal/record"
)

// target returns the row holding col's entries for row: the row itself, or its
// ancestor at the column's coarser frequency.
func target(row *Row, col *Column) (*Row, error) {
	ds := row.ds
	f := row.Frequency()
	if col.Frequency == f {
		return row, nil
	}
	if !col.Frequency.IsSubsetOf(f) {
		return nil, errs.New(errs.CodeInvalidFrequency,
			"column %q at %s cannot be read from a %s row",
			col.Name, ds.space.Format(col.Frequency), ds.space.Format(f)).
			At(col.Path, row.ID(), ds.space.Format(f))
	}
	id := ds.rowID(col.Frequency, row.ids)
	ancestor := ds.tree.row(col.Frequency, id)
	if ancestor == nil {
		return nil, errs.New(errs.CodeEntryNotFound, "no ancestor row").
			At(col.Path, id, ds.space.Format(col.Frequency))
	}
	return ancestor, nil
}

func resolve(ctx context.Context, row *Row, col *Column, allowEmpty bool) (*Cell, error) {
	holder, err := target(row, col)
	if err != nil {
		return nil, err
	}
	cell := &Cell{Row: row, Column: col}

	entry, ok, err := holder.Entry(ctx, col.Path)
	if err != nil {
		return nil, err
	}
	if !ok {
		if allowEmpty {
			return cell, nil
		}
		return nil, errs.New(errs.CodeEntryNotFound, "no entry for column %q", col.Name).
			At(col.Path, holder.ID(), holder.ref.FrequencyName)
	}

	stored, ok := holder.cached(col.Path)
	if !ok {
		err := row.ds.store.WithConnection(ctx, func(ctx context.Context) error {
			var err error
			stored, err = row.ds.store.Get(ctx, entry)
			return err
		})
		if err != nil {
			return nil, err
		}
		holder.remember(entry, stored)
	}

	converted, err := item.Convert(stored, col.Datatype)
	if err != nil {
		return nil, errs.Wrap(errs.CodeDatatypeMismatch, err, "column %q", col.Name).
			At(col.Path, holder.ID(), holder.ref.FrequencyName)
	}
	cell.Entry = &entry
	cell.Item = converted
	return cell, nil
}

func write(ctx context.Context, row *Row, col *Column, it item.Item, cfg putConfig) error {
	ds := row.ds
	freq := row.ref.FrequencyName
	if !col.Sink {
		return errs.New(errs.CodeWriteFailure, "column %q is a source and cannot be written", col.Name).
			At(col.Path, row.ID(), freq)
	}
	if col.Frequency != row.Frequency() {
		return errs.New(errs.CodeInvalidFrequency, "sink %q is written at %s, not %s",
			col.Name, ds.space.Format(col.Frequency), freq).
			At(col.Path, row.ID(), freq)
	}
	converted, err := item.Convert(it, col.Datatype)
	if err != nil {
		return errs.Wrap(errs.CodeDatatypeMismatch, err, "sink %q", col.Name).At(col.Path, row.ID(), freq)
	}

	return ds.store.WithConnection(ctx, func(ctx context.Context) error {
		entry, ok, err := row.Entry(ctx, col.Path)
		if err != nil {
			return err
		}
		if !ok {
			if entry, err = ds.store.CreateEntry(ctx, col.Path, col.Datatype, row.ref); err != nil {
				return err
			}
		}
		entry.Datatype = col.Datatype

		stored, err := ds.store.Put(ctx, converted, entry)
		if err != nil {
			return err
		}
		// the item is stored even if its provenance is not
		row.remember(entry, stored)
		if cfg.provenance != nil {
			if err := ds.store.PutProvenance(ctx, cfg.provenance, entry); err != nil {
				return err
			}
		}
		ds.logger.Debug("wrote sink", "dataset", ds.id, "column", col.Name, "row", row.String())
		return nil
	})
}

// Provenance returns the provenance record attached to a column's entry in the row.
func (r *Row) Provenance(ctx context.Context, column string) (record.Map, error) {
	col, err := r.ds.Column(column)
	if err != nil {
		return nil, err
	}
	holder, err := target(r, col)
	if err != nil {
		return nil, err
	}
	entry, ok, err := holder.Entry(ctx, col.Path)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errs.New(errs.CodeEntryNotFound, "no entry for column %q", col.Name).
			At(col.Path, holder.ID(), holder.ref.FrequencyName)
	}
	var prov record.Map
	err = r.ds.store.WithConnection(ctx, func(ctx context.Context) error {
		prov, err = r.ds.store.GetProvenance(ctx, entry)
		return err
	})
	return prov, err
}
