// Package frequency describes how a dataset's rows are organised into aggregation levels.
//
// A Space is an ordered list of dimensions (e.g. subject, session). A Frequency is a bit set
// over those dimensions naming which of them are fixed at a given aggregation level: the zero
// value is the single dataset-wide root row and the all-ones value is the leaf granularity.
// Frequencies form a lattice under Union/Intersect.
package frequency

import (
	"fmt"
	"math/bits"
	"slices"
	"sort"
	"strings"

	"github.com/ArcanaFramework/frametree-flywheel/internal/errs"
	"github.com/ArcanaFramework/frametree-flywheel/internal/record"
)

// MaxDims bounds the number of dimensions in a space.
const MaxDims = 16

// RootName is the formatted name of the zero frequency.
const RootName = "root"

// Frequency is a bit set over a space's dimensions; bit i is dimension i.
type Frequency uint32

// Union returns the frequency fixing the dimensions of either f or g.
func (f Frequency) Union(g Frequency) Frequency { return f | g }

// Intersect returns the frequency fixing the dimensions shared by f and g.
func (f Frequency) Intersect(g Frequency) Frequency { return f & g }

// Difference returns the dimensions of f that are not in g.
func (f Frequency) Difference(g Frequency) Frequency { return f &^ g }

// IsSubsetOf reports whether f's bit set is a subset of g's, i.e. f is coarser than
// (or equal to) g. Every row at g has exactly one ancestor row at f.
func (f Frequency) IsSubsetOf(g Frequency) bool { return f&g == f }

// IsRoot reports whether f fixes no dimensions.
func (f Frequency) IsRoot() bool { return f == 0 }

// NumDims returns the number of fixed dimensions.
func (f Frequency) NumDims() int { return bits.OnesCount32(uint32(f)) }

// Has reports whether dimension index i is fixed.
func (f Frequency) Has(i int) bool { return i >= 0 && i < 32 && f&(1<<uint(i)) != 0 }

// Space is an ordered list of named dimensions plus optional named aliases
// for frequently used frequencies (e.g. "session" for all dimensions).
type Space struct {
	name    string
	dims    []string
	index   map[string]int
	aliases map[string]Frequency
}

// NewSpace creates a space over the given dimension names.
// Dimension names must be unique, non-empty and must not contain '+'.
func NewSpace(name string, dims ...string) (*Space, error) {
	if len(dims) == 0 {
		return nil, fmt.Errorf("space %q: at least one dimension is required", name)
	}
	if len(dims) > MaxDims {
		return nil, fmt.Errorf("space %q: %d dimensions exceeds maximum of %d", name, len(dims), MaxDims)
	}

	s := &Space{
		name:    name,
		dims:    slices.Clone(dims),
		index:   make(map[string]int, len(dims)),
		aliases: map[string]Frequency{},
	}
	for i, d := range dims {
		if d == "" || strings.Contains(d, "+") || d == RootName {
			return nil, fmt.Errorf("space %q: invalid dimension name %q", name, d)
		}
		if _, dup := s.index[d]; dup {
			return nil, fmt.Errorf("space %q: duplicate dimension %q", name, d)
		}
		s.index[d] = i
	}
	return s, nil
}

// MustSpace is like NewSpace but panics on error.
func MustSpace(name string, dims ...string) *Space {
	s, err := NewSpace(name, dims...)
	if err != nil {
		panic(err)
	}
	return s
}

// Name returns the space name.
func (s *Space) Name() string { return s.name }

// Dims returns a copy of the ordered dimension names.
func (s *Space) Dims() []string { return slices.Clone(s.dims) }

// Len returns the number of dimensions.
func (s *Space) Len() int { return len(s.dims) }

// Root returns the dataset-wide frequency.
func (s *Space) Root() Frequency { return 0 }

// Leaf returns the finest frequency, with every dimension fixed.
func (s *Space) Leaf() Frequency { return Frequency(1)<<uint(len(s.dims)) - 1 }

// Validate fails with InvalidFrequency if f sets bits beyond the space's dimensions.
func (s *Space) Validate(f Frequency) error {
	if f&^s.Leaf() != 0 {
		return errs.New(errs.CodeInvalidFrequency,
			"frequency %#b is outside space %q with %d dimensions", uint32(f), s.name, len(s.dims))
	}
	return nil
}

// Dim returns the single-dimension frequency for a dimension name.
func (s *Space) Dim(name string) (Frequency, error) {
	i, ok := s.index[name]
	if !ok {
		return 0, errs.New(errs.CodeInvalidFrequency, "space %q has no dimension %q", s.name, name).
			At("", "", name)
	}
	return Frequency(1) << uint(i), nil
}

// Of returns the frequency fixing the named dimensions.
func (s *Space) Of(dims ...string) (Frequency, error) {
	var f Frequency
	for _, d := range dims {
		bit, err := s.Dim(d)
		if err != nil {
			return 0, err
		}
		f |= bit
	}
	return f, nil
}

// MustOf is like Of but panics on error.
func (s *Space) MustOf(dims ...string) Frequency {
	f, err := s.Of(dims...)
	if err != nil {
		panic(err)
	}
	return f
}

// Has reports whether the named dimension is fixed in f.
func (s *Space) Has(f Frequency, dim string) bool {
	i, ok := s.index[dim]
	return ok && f.Has(i)
}

// Index returns the position of a dimension, or -1.
func (s *Space) Index(dim string) int {
	if i, ok := s.index[dim]; ok {
		return i
	}
	return -1
}

// DimsOf returns the names of the dimensions fixed in f, in space order.
func (s *Space) DimsOf(f Frequency) []string {
	var out []string
	for i, d := range s.dims {
		if f.Has(i) {
			out = append(out, d)
		}
	}
	return out
}

// Alias registers a name for a frequency, e.g. "session" for the leaf frequency.
func (s *Space) Alias(name string, f Frequency) error {
	if err := s.Validate(f); err != nil {
		return err
	}
	if _, clash := s.index[name]; clash || name == RootName || name == "" {
		return fmt.Errorf("space %q: alias %q clashes with a dimension name", s.name, name)
	}
	s.aliases[name] = f
	return nil
}

// Parse reads a frequency from its formatted name: "root", an alias, or dimension
// names joined by '+'.
func (s *Space) Parse(str string) (Frequency, error) {
	str = strings.TrimSpace(str)
	if str == "" || str == RootName {
		return 0, nil
	}
	if f, ok := s.aliases[str]; ok {
		return f, nil
	}
	f, err := s.Of(strings.Split(str, "+")...)
	if err != nil {
		return 0, errs.New(errs.CodeInvalidFrequency, "cannot parse %q in space %q", str, s.name).
			At("", "", str)
	}
	return f, nil
}

// MustParse is like Parse but panics on error.
func (s *Space) MustParse(str string) Frequency {
	f, err := s.Parse(str)
	if err != nil {
		panic(err)
	}
	return f
}

// Format returns the canonical name of f: "root" or the fixed dimension names joined by '+'.
func (s *Space) Format(f Frequency) string {
	if f == 0 {
		return RootName
	}
	return strings.Join(s.DimsOf(f), "+")
}

// All returns every frequency in the space (2^d values), in ascending bit order.
func (s *Space) All() []Frequency {
	n := int(s.Leaf()) + 1
	out := make([]Frequency, n)
	for i := range out {
		out[i] = Frequency(i)
	}
	return out
}

// Count returns the number of rows at f for the given dimension lengths: the product
// of the lengths of the fixed dimensions (1 for the root).
func (s *Space) Count(f Frequency, lengths []int) (int, error) {
	if err := s.Validate(f); err != nil {
		return 0, err
	}
	if len(lengths) != len(s.dims) {
		return 0, fmt.Errorf("space %q: expected %d dimension lengths, got %d", s.name, len(s.dims), len(lengths))
	}
	n := 1
	for i, ln := range lengths {
		if f.Has(i) {
			n *= ln
		}
	}
	return n, nil
}

// Record serialises the space for dataset definitions.
func (s *Space) Record() record.Map {
	aliases := make(record.Map, len(s.aliases))
	for name, f := range s.aliases {
		aliases[name] = record.String(s.Format(f))
	}
	return record.Map{
		"name":    record.String(s.name),
		"dims":    record.Strings(s.dims),
		"aliases": aliases,
	}
}

// Aliases returns the registered alias names, sorted.
func (s *Space) Aliases() []string {
	names := make([]string, 0, len(s.aliases))
	for n := range s.aliases {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// SpaceFromRecord is the inverse of Space.Record.
func SpaceFromRecord(m record.Map) (*Space, error) {
	name, _ := m["name"].(record.String)
	rawDims, ok := m["dims"].(record.List)
	if !ok {
		return nil, fmt.Errorf("space record: missing dims")
	}
	dims := make([]string, len(rawDims))
	for i, d := range rawDims {
		ds, ok := d.(record.String)
		if !ok {
			return nil, fmt.Errorf("space record: dims[%d] is %T, not a string", i, d)
		}
		dims[i] = string(ds)
	}

	s, err := NewSpace(string(name), dims...)
	if err != nil {
		return nil, err
	}

	if aliases, ok := m["aliases"].(record.Map); ok {
		for _, alias := range aliases.SortedKeys() {
			target, ok := aliases[alias].(record.String)
			if !ok {
				return nil, fmt.Errorf("space record: alias %q is not a string", alias)
			}
			f, err := s.Parse(string(target))
			if err != nil {
				return nil, err
			}
			if err := s.Alias(alias, f); err != nil {
				return nil, err
			}
		}
	}
	return s, nil
}
