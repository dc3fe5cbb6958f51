package item

import (
	"github.com/ArcanaFramework/frametree-flywheel/internal/errs"
)

// Convert presents it as datatype dt.
//
// Filesets convert when their members satisfy dt (e.g. a text/plain file read as
// generic/file). Fields only widen: integers read as decimals, and any primitive
// reads as text. Arrays follow their elements, and array and scalar never mix.
// Crossing kinds always fails with DatatypeMismatch.
func Convert(it Item, dt Datatype) (Item, error) {
	if dt.IsZero() || it.Datatype().Name == dt.Name {
		return it, nil
	}
	if it.Datatype().Kind != dt.Kind {
		return nil, errs.New(errs.CodeDatatypeMismatch, "cannot convert %s %s to %s %s",
			it.Datatype().Kind, it.Datatype().Name, dt.Kind, dt.Name)
	}

	switch v := it.(type) {
	case *FileSet:
		converted, err := NewFileSet(dt, v.Paths()...)
		if err != nil {
			return nil, err
		}
		return converted, nil
	case *Field:
		if !widens(v.dt, dt) {
			return nil, errs.New(errs.CodeDatatypeMismatch, "cannot convert %s to %s", v.dt.Name, dt.Name)
		}
		converted, err := DecodeField(dt, v.Encode())
		if err != nil {
			return nil, err
		}
		return converted, nil
	default:
		return nil, errs.New(errs.CodeDatatypeMismatch, "unknown item type %T", it)
	}
}

func widens(from, to Datatype) bool {
	if from.Array != to.Array {
		return false
	}
	switch {
	case from.Field == to.Field, to.Field == FieldText:
		return true
	case from.Field == FieldInteger && to.Field == FieldDecimal:
		return true
	}
	return false
}
