package item

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/cockroachdb/apd/v3"

	"github.com/ArcanaFramework/frametree-flywheel/internal/errs"
	"github.com/ArcanaFramework/frametree-flywheel/internal/record"
)

// Field is an item backed by a primitive value or an array of them.
//
// Values are held as string, int64, *apd.Decimal or bool; arrays as []any of those.
type Field struct {
	dt    Datatype
	value any
}

// NewField creates a field of datatype dt, coercing v to the datatype's primitive.
// Strings are parsed; int, int64 and float64 convert where lossless.
func NewField(dt Datatype, v any) (*Field, error) {
	if !dt.IsField() {
		return nil, errs.New(errs.CodeDatatypeMismatch, "%s is not a field datatype", dt.Name)
	}
	if !dt.Array {
		val, err := coerce(dt.Field, v)
		if err != nil {
			return nil, errs.Wrap(errs.CodeDatatypeMismatch, err, "cannot create %s", dt.Name)
		}
		return &Field{dt: dt, value: val}, nil
	}

	var elems []any
	switch vv := v.(type) {
	case string:
		return DecodeField(dt, vv)
	case []any:
		elems = vv
	case []string:
		for _, s := range vv {
			elems = append(elems, s)
		}
	case []int:
		for _, n := range vv {
			elems = append(elems, n)
		}
	case []int64:
		for _, n := range vv {
			elems = append(elems, n)
		}
	case []bool:
		for _, b := range vv {
			elems = append(elems, b)
		}
	default:
		return nil, errs.New(errs.CodeDatatypeMismatch, "cannot create %s from %T", dt.Name, v)
	}

	out := make([]any, len(elems))
	for i, e := range elems {
		val, err := coerce(dt.Field, e)
		if err != nil {
			return nil, errs.Wrap(errs.CodeDatatypeMismatch, err, "cannot create %s element %d", dt.Name, i)
		}
		out[i] = val
	}
	return &Field{dt: dt, value: out}, nil
}

// MustField is like NewField but panics on error.
func MustField(dt Datatype, v any) *Field {
	f, err := NewField(dt, v)
	if err != nil {
		panic(err)
	}
	return f
}

func coerce(t FieldType, v any) (any, error) {
	if s, ok := v.(string); ok {
		return parsePrimitive(t, s)
	}
	switch t {
	case FieldText:
		return validText(fmt.Sprint(v))
	case FieldInteger:
		switch n := v.(type) {
		case int:
			return int64(n), nil
		case int64:
			return n, nil
		case json.Number:
			return n.Int64()
		}
	case FieldDecimal:
		switch n := v.(type) {
		case *apd.Decimal:
			return finite(new(apd.Decimal).Set(n))
		case int:
			return apd.New(int64(n), 0), nil
		case int64:
			return apd.New(n, 0), nil
		case float64:
			d, err := new(apd.Decimal).SetFloat64(n)
			if err != nil {
				return nil, err
			}
			return finite(d)
		case json.Number:
			return parsePrimitive(t, n.String())
		}
	case FieldBoolean:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	}
	return nil, fmt.Errorf("cannot convert %T to %s", v, t)
}

func parsePrimitive(t FieldType, s string) (any, error) {
	switch t {
	case FieldText:
		return validText(s)
	case FieldInteger:
		return strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	case FieldDecimal:
		d, _, err := apd.NewFromString(strings.TrimSpace(s))
		if err != nil {
			return nil, err
		}
		return finite(d)
	case FieldBoolean:
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "true", "1", "yes":
			return true, nil
		case "false", "0", "no":
			return false, nil
		}
		return nil, fmt.Errorf("invalid boolean %q", s)
	}
	return nil, fmt.Errorf("unknown field type %s", t)
}

// finite rejects NaN and infinities, which have no stored representation.
func finite(d *apd.Decimal) (any, error) {
	if d.Form != apd.Finite {
		return nil, fmt.Errorf("decimal %s is not finite", d)
	}
	return d, nil
}

func validText(s string) (any, error) {
	if !utf8.ValidString(s) {
		return nil, fmt.Errorf("text %q is not valid UTF-8", s)
	}
	return s, nil
}

// DecodeField parses the store's serialised representation of a field.
func DecodeField(dt Datatype, raw string) (*Field, error) {
	if !dt.IsField() {
		return nil, errs.New(errs.CodeDatatypeMismatch, "%s is not a field datatype", dt.Name)
	}
	if !dt.Array {
		val, err := parsePrimitive(dt.Field, raw)
		if err != nil {
			return nil, errs.Wrap(errs.CodeDatatypeMismatch, err, "cannot decode %q as %s", raw, dt.Name)
		}
		return &Field{dt: dt, value: val}, nil
	}

	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var elems []any
	if err := dec.Decode(&elems); err != nil {
		return nil, errs.Wrap(errs.CodeDatatypeMismatch, err, "cannot decode %q as %s", raw, dt.Name)
	}
	out := make([]any, len(elems))
	for i, e := range elems {
		var (
			val any
			err error
		)
		switch ev := e.(type) {
		case json.Number:
			val, err = parsePrimitive(dt.Field, ev.String())
		case string:
			val, err = parsePrimitive(dt.Field, ev)
		default:
			val, err = coerce(dt.Field, ev)
		}
		if err != nil {
			return nil, errs.Wrap(errs.CodeDatatypeMismatch, err, "cannot decode %s element %d", dt.Name, i)
		}
		out[i] = val
	}
	return &Field{dt: dt, value: out}, nil
}

// Datatype returns the field's datatype.
func (f *Field) Datatype() Datatype { return f.dt }

// IsFileSet returns false.
func (f *Field) IsFileSet() bool { return false }

// Value returns the typed value: string, int64, *apd.Decimal, bool, or []any of those.
func (f *Field) Value() any { return f.value }

// Encode returns the serialised representation stored by backends.
// Decimals keep their exponent, so "1.50" round-trips as "1.50".
func (f *Field) Encode() string {
	if !f.dt.Array {
		return encodePrimitive(f.value)
	}
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, e := range f.value.([]any) {
		if i > 0 {
			buf.WriteByte(',')
		}
		switch ev := e.(type) {
		case string:
			b, _ := json.Marshal(ev)
			buf.Write(b)
		default:
			buf.WriteString(encodePrimitive(ev))
		}
	}
	buf.WriteByte(']')
	return buf.String()
}

func encodePrimitive(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case int64:
		return strconv.FormatInt(val, 10)
	case *apd.Decimal:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprint(val)
	}
}

// String returns Encode().
func (f *Field) String() string { return f.Encode() }

// Equal reports whether two fields have the same datatype and serialised value.
func (f *Field) Equal(other *Field) bool {
	return other != nil && f.dt.Name == other.dt.Name && f.Encode() == other.Encode()
}

// ContentHash returns a digest over the datatype name and the serialised value.
func (f *Field) ContentHash() (string, error) {
	return record.HashWithDomain(record.DomainField, []byte(f.dt.Name+"\x00"+f.Encode())), nil
}
