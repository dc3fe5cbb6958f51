package blueprint

import (
	"fmt"
	"sort"
)

var abcd = []string{"a", "b", "c", "d"}

var fullEntries = []Entry{
	{Path: "file1", Datatype: "text/plain", Filenames: []string{"file1.txt"}},
	{Path: "file2", Datatype: "medimage/nifti-gz-x", Filenames: []string{"file2.nii.gz", "file2.json"}},
	{Path: "dir1", Datatype: "generic/directory", Filenames: []string{"dir1"}},
	{Path: "textfield", Datatype: "field/text", ExpectedValue: "sample-text"},
	{Path: "decimalfield", Datatype: "field/decimal", ExpectedValue: "3.14159265358979323846"},
	{Path: "booleanfield", Datatype: "field/boolean", ExpectedValue: "true"},
	{Path: "intarray", Datatype: "field/array/integer", ExpectedValue: "[1,2,3]"},
}

var fullDerivatives = []Derivative{
	{Path: "deriv1", RowFrequency: "a+b+c+d", Datatype: "text/plain", Filenames: []string{"file.txt"}},
	{Path: "deriv2", RowFrequency: "c", Datatype: "medimage/nifti-gz-x", Filenames: []string{"file.nii.gz", "file.json"}},
	{Path: "deriv3", RowFrequency: "a+c", Datatype: "generic/directory", Filenames: []string{"dir"}},
	{Path: "deriv4", RowFrequency: "root", Datatype: "field/text", ExpectedValue: "value"},
	{Path: "deriv5", RowFrequency: "b+d", Datatype: "field/decimal", ExpectedValue: "0.000123"},
	{Path: "deriv6", RowFrequency: "a", Datatype: "field/array/text", ExpectedValue: `["x","y"]`},
}

var builtins = map[string]*Blueprint{
	"simple": {
		Name:       "simple",
		Dims:       abcd,
		Hierarchy:  []string{"a", "b", "c", "d"},
		DimLengths: []int{1, 1, 1, 3},
		Entries: []Entry{
			{Path: "file1", Datatype: "text/plain", Filenames: []string{"file1.txt"}},
			{Path: "file2", Datatype: "text/plain", Filenames: []string{"file2.txt"}},
		},
		Derivatives: []Derivative{
			{Path: "deriv1", RowFrequency: "a+b+c+d", Datatype: "text/plain", Filenames: []string{"file.txt"}},
			{Path: "deriv2", RowFrequency: "root", Datatype: "field/integer", ExpectedValue: "42"},
		},
	},
	"full": {
		Name:        "full",
		Dims:        abcd,
		Hierarchy:   []string{"a", "b", "c", "d"},
		DimLengths:  []int{2, 2, 2, 2},
		Entries:     fullEntries,
		Derivatives: fullDerivatives,
	},
	"one_layer": {
		Name:        "one_layer",
		Dims:        abcd,
		Hierarchy:   []string{"a+b+c+d"},
		DimLengths:  []int{1, 1, 1, 5},
		Entries:     fullEntries,
		Derivatives: fullDerivatives,
	},
	"concatenated_ids": {
		Name:       "concatenated_ids",
		Dims:       abcd,
		Hierarchy:  []string{"a+b", "c+d"},
		DimLengths: []int{2, 2, 2, 2},
		Entries: []Entry{
			{Path: "file1", Datatype: "text/plain", Filenames: []string{"file1.txt"}},
			{Path: "textfield", Datatype: "field/text", ExpectedValue: "sample-text"},
		},
		Derivatives: []Derivative{
			{Path: "deriv1", RowFrequency: "b+c", Datatype: "application/json", Filenames: []string{"file.json"}},
		},
	},
	"with_excludes": {
		Name:       "with_excludes",
		Dims:       abcd,
		Hierarchy:  []string{"a", "b", "c", "d"},
		DimLengths: []int{2, 3, 1, 3},
		Include:    map[string][]string{"d": {"d1", "d3"}},
		Exclude:    map[string][]string{"b": {"b2"}},
		Entries: []Entry{
			{Path: "file1", Datatype: "text/plain", Filenames: []string{"file1.txt"}},
			{Path: "intfield", Datatype: "field/integer", ExpectedValue: "7"},
		},
		Derivatives: []Derivative{
			{Path: "deriv1", RowFrequency: "a+d", Datatype: "field/boolean", ExpectedValue: "false"},
		},
	},
}

// Builtin returns a copy of a built-in blueprint.
func Builtin(name string) (*Blueprint, error) {
	b, ok := builtins[name]
	if !ok {
		return nil, fmt.Errorf("no built-in blueprint named %q", name)
	}
	return b.Clone(), nil
}

// Builtins returns the names of the built-in blueprints, sorted.
func Builtins() []string {
	names := make([]string, 0, len(builtins))
	for n := range builtins {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Clone returns a deep copy of b.
func (b *Blueprint) Clone() *Blueprint {
	c := *b
	c.Dims = append([]string(nil), b.Dims...)
	c.DimLengths = append([]int(nil), b.DimLengths...)
	c.Hierarchy = append([]string(nil), b.Hierarchy...)
	c.Include = cloneFilter(b.Include)
	c.Exclude = cloneFilter(b.Exclude)
	c.Entries = make([]Entry, len(b.Entries))
	for i, e := range b.Entries {
		e.Filenames = append([]string(nil), e.Filenames...)
		c.Entries[i] = e
	}
	c.Derivatives = make([]Derivative, len(b.Derivatives))
	for i, d := range b.Derivatives {
		d.Filenames = append([]string(nil), d.Filenames...)
		c.Derivatives[i] = d
	}
	return &c
}

func cloneFilter(f map[string][]string) map[string][]string {
	if f == nil {
		return nil
	}
	out := make(map[string][]string, len(f))
	for k, v := range f {
		out[k] = append([]string(nil), v...)
	}
	return out
}
