// Package blueprint declares test datasets: their dimensions, hierarchy,
// dimension lengths, the entries present in every leaf row and the derivatives
// a pipeline would write. A blueprint can populate a store and later check
// what is read back.
package blueprint

import (
	"fmt"
	"slices"
	"strings"

	"github.com/ArcanaFramework/frametree-flywheel/internal/frequency"
	"github.com/ArcanaFramework/frametree-flywheel/internal/item"
)

// DefaultSpace names the frequency space of blueprints that do not set one.
const DefaultSpace = "test"

// Blueprint describes a dataset to create in a store.
type Blueprint struct {
	Name  string `yaml:"name" json:"name"`
	Space string `yaml:"space,omitempty" json:"space,omitempty"`

	// Dims are the space's dimensions; DimLengths gives the number of ids of each.
	Dims       []string `yaml:"dims" json:"dims"`
	DimLengths []int    `yaml:"dim_lengths" json:"dim_lengths"`

	// Hierarchy lists the store levels as frequency names. Defaults to one level per dim.
	Hierarchy []string `yaml:"hierarchy,omitempty" json:"hierarchy,omitempty"`

	Include map[string][]string `yaml:"include,omitempty" json:"include,omitempty"`
	Exclude map[string][]string `yaml:"exclude,omitempty" json:"exclude,omitempty"`

	Entries     []Entry      `yaml:"entries" json:"entries"`
	Derivatives []Derivative `yaml:"derivatives,omitempty" json:"derivatives,omitempty"`
}

// Entry is a source entry uploaded to every leaf row.
type Entry struct {
	Path     string `yaml:"path" json:"path"`
	Datatype string `yaml:"datatype" json:"datatype"`

	// Filenames are the member names of a fileset entry; their stems match Path.
	Filenames []string `yaml:"filenames,omitempty" json:"filenames,omitempty"`

	// ExpectedValue is the serialised value of a field entry.
	ExpectedValue string `yaml:"expected_value,omitempty" json:"expected_value,omitempty"`
}

// Derivative is an output written by a sink at RowFrequency.
type Derivative struct {
	Path          string   `yaml:"path" json:"path"`
	RowFrequency  string   `yaml:"row_frequency" json:"row_frequency"`
	Datatype      string   `yaml:"datatype" json:"datatype"`
	Filenames     []string `yaml:"filenames,omitempty" json:"filenames,omitempty"`
	ExpectedValue string   `yaml:"expected_value,omitempty" json:"expected_value,omitempty"`
}

// DimID returns the id of the i-th (zero-based) element of a dimension, e.g. "a1".
func DimID(dim string, i int) string {
	return fmt.Sprintf("%s%d", dim, i+1)
}

// ToSpace builds the blueprint's frequency space.
func (b *Blueprint) ToSpace() (*frequency.Space, error) {
	name := b.Space
	if name == "" {
		name = DefaultSpace
	}
	return frequency.NewSpace(name, b.Dims...)
}

// Levels returns the hierarchy, defaulting to one level per dimension.
func (b *Blueprint) Levels() []string {
	if len(b.Hierarchy) > 0 {
		return slices.Clone(b.Hierarchy)
	}
	return slices.Clone(b.Dims)
}

// IDs returns the ids of a dimension that pass the include/exclude filters.
func (b *Blueprint) IDs(dim string) []string {
	i := slices.Index(b.Dims, dim)
	if i < 0 {
		return nil
	}
	var ids []string
	for n := 0; n < b.DimLengths[i]; n++ {
		id := DimID(dim, n)
		if inc := b.Include[dim]; len(inc) > 0 && !slices.Contains(inc, id) {
			continue
		}
		if slices.Contains(b.Exclude[dim], id) {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// ExpectedRows returns the number of rows a dataset made from b has at f: the
// product over fixed dimensions of the ids passing the filters.
func (b *Blueprint) ExpectedRows(space *frequency.Space, f frequency.Frequency) int {
	n := 1
	for _, dim := range space.DimsOf(f) {
		n *= len(b.IDs(dim))
	}
	return n
}

// Validate checks the blueprint is self-consistent.
func (b *Blueprint) Validate() error {
	if b.Name == "" {
		return fmt.Errorf("blueprint: name is required")
	}
	space, err := b.ToSpace()
	if err != nil {
		return fmt.Errorf("blueprint %s: %w", b.Name, err)
	}
	if len(b.DimLengths) != len(b.Dims) {
		return fmt.Errorf("blueprint %s: %d dim_lengths for %d dims", b.Name, len(b.DimLengths), len(b.Dims))
	}
	for i, n := range b.DimLengths {
		if n < 1 {
			return fmt.Errorf("blueprint %s: dimension %s has length %d", b.Name, b.Dims[i], n)
		}
	}
	for _, level := range b.Levels() {
		if _, err := space.Parse(level); err != nil {
			return fmt.Errorf("blueprint %s: hierarchy: %w", b.Name, err)
		}
	}
	for _, filter := range []map[string][]string{b.Include, b.Exclude} {
		for dim := range filter {
			if !slices.Contains(b.Dims, dim) {
				return fmt.Errorf("blueprint %s: filter on unknown dimension %q", b.Name, dim)
			}
		}
	}

	seen := map[string]bool{}
	for i, e := range b.Entries {
		if e.Path == "" || seen[e.Path] {
			return fmt.Errorf("blueprint %s: entries[%d]: missing or duplicate path %q", b.Name, i, e.Path)
		}
		seen[e.Path] = true
		if strings.Contains(e.Path, "@") {
			return fmt.Errorf("blueprint %s: entries[%d]: source path %q must not contain '@'", b.Name, i, e.Path)
		}
		if err := checkContent(e.Datatype, e.Filenames, e.ExpectedValue); err != nil {
			return fmt.Errorf("blueprint %s: entries[%d] (%s): %w", b.Name, i, e.Path, err)
		}
		for _, fn := range e.Filenames {
			if stem, _ := item.SplitExt(fn); stem != e.Path {
				return fmt.Errorf("blueprint %s: entries[%d]: file %q is not named after %q", b.Name, i, fn, e.Path)
			}
		}
	}
	for i, d := range b.Derivatives {
		if d.Path == "" || strings.Contains(d.Path, "@") {
			return fmt.Errorf("blueprint %s: derivatives[%d]: invalid path %q", b.Name, i, d.Path)
		}
		if _, err := space.Parse(d.RowFrequency); err != nil {
			return fmt.Errorf("blueprint %s: derivatives[%d]: %w", b.Name, i, err)
		}
		if err := checkContent(d.Datatype, d.Filenames, d.ExpectedValue); err != nil {
			return fmt.Errorf("blueprint %s: derivatives[%d] (%s): %w", b.Name, i, d.Path, err)
		}
	}
	return nil
}

func checkContent(datatype string, filenames []string, value string) error {
	dt, err := item.Lookup(datatype)
	if err != nil {
		return err
	}
	if dt.IsFileSet() {
		if len(filenames) == 0 {
			return fmt.Errorf("%s needs filenames", dt.Name)
		}
		return nil
	}
	if len(filenames) > 0 {
		return fmt.Errorf("%s is a field and takes no filenames", dt.Name)
	}
	_, err = item.DecodeField(dt, value)
	return err
}
