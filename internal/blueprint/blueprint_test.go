package blueprint

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ArcanaFramework/frametree-flywheel/internal/item"
)

func TestBuiltinsAreValid(t *testing.T) {
	assert.Equal(t, []string{"concatenated_ids", "full", "one_layer", "simple", "with_excludes"}, Builtins())
	for _, name := range Builtins() {
		b, err := Builtin(name)
		require.NoError(t, err)
		assert.NoError(t, b.Validate(), name)
	}

	_, err := Builtin("missing")
	assert.Error(t, err)
}

func TestBuiltinIsACopy(t *testing.T) {
	b, err := Builtin("simple")
	require.NoError(t, err)
	b.Entries[0].Filenames[0] = "changed.txt"
	b.DimLengths[3] = 9

	again, err := Builtin("simple")
	require.NoError(t, err)
	assert.Equal(t, "file1.txt", again.Entries[0].Filenames[0])
	assert.Equal(t, 3, again.DimLengths[3])
}

func TestExpectedRows(t *testing.T) {
	b, err := Builtin("with_excludes")
	require.NoError(t, err)
	space, err := b.ToSpace()
	require.NoError(t, err)

	assert.Equal(t, []string{"b1", "b3"}, b.IDs("b"))
	assert.Equal(t, []string{"d1", "d3"}, b.IDs("d"))
	assert.Equal(t, 8, b.ExpectedRows(space, space.Leaf()))
	assert.Equal(t, 1, b.ExpectedRows(space, space.Root()))
	assert.Equal(t, 4, b.ExpectedRows(space, space.MustOf("a", "b")))
}

func TestValidate(t *testing.T) {
	valid := func() *Blueprint {
		return &Blueprint{
			Name:       "t",
			Dims:       []string{"a"},
			DimLengths: []int{2},
			Entries:    []Entry{{Path: "f", Datatype: "text/plain", Filenames: []string{"f.txt"}}},
		}
	}
	require.NoError(t, valid().Validate())

	tests := map[string]func(b *Blueprint){
		"no name":             func(b *Blueprint) { b.Name = "" },
		"length mismatch":     func(b *Blueprint) { b.DimLengths = []int{1, 2} },
		"zero length":         func(b *Blueprint) { b.DimLengths = []int{0} },
		"bad hierarchy":       func(b *Blueprint) { b.Hierarchy = []string{"z"} },
		"unknown filter":      func(b *Blueprint) { b.Exclude = map[string][]string{"z": {"z1"}} },
		"unknown datatype":    func(b *Blueprint) { b.Entries[0].Datatype = "image/bmp" },
		"file not named":      func(b *Blueprint) { b.Entries[0].Filenames = []string{"g.txt"} },
		"fileset no files":    func(b *Blueprint) { b.Entries[0].Filenames = nil },
		"bad field value":     func(b *Blueprint) { b.Entries = []Entry{{Path: "n", Datatype: "field/integer", ExpectedValue: "x"}} },
		"derived source path": func(b *Blueprint) { b.Entries[0].Path = "f@x" },
		"duplicate path":      func(b *Blueprint) { b.Entries = append(b.Entries, b.Entries[0]) },
		"bad derivative freq": func(b *Blueprint) {
			b.Derivatives = []Derivative{{Path: "d", RowFrequency: "q", Datatype: "field/text", ExpectedValue: "v"}}
		},
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			b := valid()
			mutate(b)
			assert.Error(t, b.Validate())
		})
	}
}

func TestMakeItem(t *testing.T) {
	dir := t.TempDir()
	d := Derivative{Path: "deriv", RowFrequency: "root", Datatype: "medimage/nifti-gz-x", Filenames: []string{"file.nii.gz", "file.json"}}
	it, err := d.MakeItem(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"file.nii.gz", "file.json"}, it.(*item.FileSet).Names())

	d = Derivative{Path: "dir", RowFrequency: "root", Datatype: "generic/directory", Filenames: []string{"out"}}
	it, err = d.MakeItem(filepath.Join(dir, "tree"))
	require.NoError(t, err)
	assert.DirExists(t, filepath.Join(dir, "tree", "out", "sub"))

	d = Derivative{Path: "n", RowFrequency: "root", Datatype: "field/boolean", ExpectedValue: "yes"}
	it, err = d.MakeItem(dir)
	require.NoError(t, err)
	assert.Equal(t, true, it.(*item.Field).Value())
}

func TestLoadYAML(t *testing.T) {
	bps, err := Load(filepath.Join("testdata", "blueprints.yaml"))
	require.NoError(t, err)
	require.Len(t, bps, 1)

	b := bps[0]
	assert.Equal(t, "imaging", b.Name)
	assert.Equal(t, "clinical", b.Space)
	assert.Equal(t, []string{"subject", "session"}, b.Levels())
	assert.Equal(t, "12.500", b.Entries[1].ExpectedValue)
	assert.Equal(t, "subject+session", b.Derivatives[0].RowFrequency)
}

func TestLoadYAMLRejectsUnknownFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, writeFile(path, "blueprints:\n  - name: x\n    dimz: [a]\n"))
	_, err := LoadYAML(path)
	assert.Error(t, err)
}

func TestLoadCUE(t *testing.T) {
	bps, err := Load(filepath.Join("testdata", "cue"))
	require.NoError(t, err)
	require.Len(t, bps, 2)

	flat, err := Find(bps, "flat")
	require.NoError(t, err)
	assert.Equal(t, []string{"a+b"}, flat.Hierarchy)
	assert.Equal(t, []string{"file1.txt"}, flat.Entries[0].Filenames)

	grid, err := Find(bps, "session_grid")
	require.NoError(t, err)
	assert.Equal(t, []string{"notes.txt"}, grid.Entries[0].Filenames)
	assert.Equal(t, map[string][]string{"subject": {"subject2"}}, grid.Exclude)

	space, err := grid.ToSpace()
	require.NoError(t, err)
	assert.Equal(t, 3, grid.ExpectedRows(space, space.Leaf()))
}

func TestCompileCUEReportsPosition(t *testing.T) {
	src := []byte(`blueprint: broken: {
	dims: ["a"]
	dim_lengths: [1]
	entries: [{path: "f", datatype: "text/plain", filenames: ["g.txt"]}]
}
`)
	_, err := CompileCUE("broken.cue", src)
	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, "blueprint.broken", loadErr.Field)
	assert.Contains(t, loadErr.Message, "not named after")

	_, err = CompileCUE("syntax.cue", []byte("blueprint: {"))
	assert.Error(t, err)
}
