package item

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ArcanaFramework/frametree-flywheel/internal/errs"
)

// Kind discriminates the two item variants.
type Kind int

const (
	KindFileSet Kind = iota + 1
	KindField
)

// String returns "fileset" or "field".
func (k Kind) String() string {
	switch k {
	case KindFileSet:
		return "fileset"
	case KindField:
		return "field"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// FieldType is the primitive type of a field datatype.
type FieldType int

const (
	FieldText FieldType = iota + 1
	FieldInteger
	FieldDecimal
	FieldBoolean
)

// String returns the primitive name.
func (t FieldType) String() string {
	switch t {
	case FieldText:
		return "text"
	case FieldInteger:
		return "integer"
	case FieldDecimal:
		return "decimal"
	case FieldBoolean:
		return "boolean"
	default:
		return fmt.Sprintf("fieldtype(%d)", int(t))
	}
}

// Datatype describes the format of an item.
type Datatype struct {
	Name string
	Kind Kind

	// Extensions lists the files of an extension-typed fileset, primary first.
	Extensions []string

	// Directory marks a fileset that is a single directory.
	Directory bool

	// AnyFiles marks a fileset accepting any non-empty set of paths.
	AnyFiles bool

	// Field is the primitive type of a field datatype.
	Field FieldType

	// Array marks a field holding a list of primitives.
	Array bool
}

// IsFileSet reports whether dt describes filesets.
func (dt Datatype) IsFileSet() bool { return dt.Kind == KindFileSet }

// IsField reports whether dt describes fields.
func (dt Datatype) IsField() bool { return dt.Kind == KindField }

// IsZero reports whether dt is unset.
func (dt Datatype) IsZero() bool { return dt.Name == "" }

// String returns the datatype name.
func (dt Datatype) String() string { return dt.Name }

var (
	File       = Datatype{Name: "generic/file", Kind: KindFileSet}
	Directory  = Datatype{Name: "generic/directory", Kind: KindFileSet, Directory: true}
	AnyFileSet = Datatype{Name: "generic/fileset", Kind: KindFileSet, AnyFiles: true}
	Text       = Datatype{Name: "text/plain", Kind: KindFileSet, Extensions: []string{".txt"}}
	JSON       = Datatype{Name: "application/json", Kind: KindFileSet, Extensions: []string{".json"}}
	NiftiGz    = Datatype{Name: "medimage/nifti-gz", Kind: KindFileSet, Extensions: []string{".nii.gz"}}
	NiftiGzX   = Datatype{Name: "medimage/nifti-gz-x", Kind: KindFileSet, Extensions: []string{".nii.gz", ".json"}}

	TextField    = Datatype{Name: "field/text", Kind: KindField, Field: FieldText}
	IntegerField = Datatype{Name: "field/integer", Kind: KindField, Field: FieldInteger}
	DecimalField = Datatype{Name: "field/decimal", Kind: KindField, Field: FieldDecimal}
	BooleanField = Datatype{Name: "field/boolean", Kind: KindField, Field: FieldBoolean}
	TextArray    = Datatype{Name: "field/array/text", Kind: KindField, Field: FieldText, Array: true}
	IntegerArray = Datatype{Name: "field/array/integer", Kind: KindField, Field: FieldInteger, Array: true}
	DecimalArray = Datatype{Name: "field/array/decimal", Kind: KindField, Field: FieldDecimal, Array: true}
	BooleanArray = Datatype{Name: "field/array/boolean", Kind: KindField, Field: FieldBoolean, Array: true}
)

var registry = map[string]Datatype{}

func init() {
	for _, dt := range []Datatype{
		File, Directory, AnyFileSet, Text, JSON, NiftiGz, NiftiGzX,
		TextField, IntegerField, DecimalField, BooleanField,
		TextArray, IntegerArray, DecimalArray, BooleanArray,
	} {
		registry[dt.Name] = dt
	}
}

// Lookup returns the registered datatype with the given name.
func Lookup(name string) (Datatype, error) {
	dt, ok := registry[name]
	if !ok {
		return Datatype{}, errs.New(errs.CodeDatatypeMismatch, "unknown datatype %q", name)
	}
	return dt, nil
}

// MustLookup is like Lookup but panics on error.
func MustLookup(name string) Datatype {
	dt, err := Lookup(name)
	if err != nil {
		panic(err)
	}
	return dt
}

// Names returns every registered datatype name, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// SplitExt splits a file name into stem and extension, recognising the compound
// extensions used by registered datatypes (e.g. ".nii.gz").
func SplitExt(name string) (stem, ext string) {
	lower := strings.ToLower(name)
	for _, compound := range compoundExtensions {
		if strings.HasSuffix(lower, compound) && len(name) > len(compound) {
			return name[:len(name)-len(compound)], name[len(name)-len(compound):]
		}
	}
	i := strings.LastIndexByte(name, '.')
	if i <= 0 {
		return name, ""
	}
	return name[:i], name[i:]
}

var compoundExtensions = []string{".nii.gz", ".tar.gz"}
