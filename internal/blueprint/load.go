package blueprint

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"
	"gopkg.in/yaml.v3"
)

// LoadError reports a blueprint that could not be loaded, with its CUE position if known.
type LoadError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// yamlFile is the top level of a blueprint YAML file.
type yamlFile struct {
	Blueprints []*Blueprint `yaml:"blueprints"`
}

// LoadYAML reads the blueprints listed in a YAML file. Unknown fields are rejected.
func LoadYAML(path string) ([]*Blueprint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read blueprint file: %w", err)
	}

	var file yamlFile
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&file); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if len(file.Blueprints) == 0 {
		return nil, fmt.Errorf("%s: no blueprints defined", path)
	}
	for _, b := range file.Blueprints {
		if err := b.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	return file.Blueprints, nil
}

// LoadCUE loads the CUE package in dir and decodes every field of its
// top-level "blueprint" struct. A blueprint without a name takes its label.
func LoadCUE(dir string) ([]*Blueprint, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, &LoadError{Field: "dir", Message: fmt.Sprintf("blueprint directory not found: %s", dir)}
	}
	if !info.IsDir() {
		return nil, &LoadError{Field: "dir", Message: fmt.Sprintf("not a directory: %s", dir)}
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, &LoadError{Field: "load", Message: "no CUE instances loaded"}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, formatCUEError(inst.Err)
	}
	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	return decodeCUE(value)
}

// CompileCUE decodes the blueprints of a single CUE source.
func CompileCUE(filename string, src []byte) ([]*Blueprint, error) {
	value := cuecontext.New().CompileBytes(src, cue.Filename(filename))
	if err := value.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return decodeCUE(value)
}

func decodeCUE(value cue.Value) ([]*Blueprint, error) {
	root := value.LookupPath(cue.ParsePath("blueprint"))
	if !root.Exists() {
		return nil, &LoadError{Field: "blueprint", Message: "no blueprint struct defined", Pos: value.Pos()}
	}
	iter, err := root.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var out []*Blueprint
	for iter.Next() {
		var b Blueprint
		if err := iter.Value().Decode(&b); err != nil {
			return nil, formatCUEError(err)
		}
		if b.Name == "" {
			b.Name = iter.Label()
		}
		if err := b.Validate(); err != nil {
			return nil, &LoadError{Field: "blueprint." + iter.Label(), Message: err.Error(), Pos: iter.Value().Pos()}
		}
		out = append(out, &b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// formatCUEError returns the first CUE error with its position.
func formatCUEError(err error) error {
	list := cueerrors.Errors(err)
	if len(list) == 0 {
		return err
	}
	first := list[0]
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		return &LoadError{Field: "cue", Message: first.Error(), Pos: positions[0]}
	}
	return err
}

// Load reads blueprints from a CUE package directory, a .cue file or a YAML file.
func Load(path string) ([]*Blueprint, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("load blueprints: %w", err)
	}
	if info.IsDir() {
		return LoadCUE(path)
	}
	switch ext := filepath.Ext(path); ext {
	case ".cue":
		src, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("load blueprints: %w", err)
		}
		return CompileCUE(path, src)
	case ".yaml", ".yml":
		return LoadYAML(path)
	default:
		return nil, fmt.Errorf("load blueprints: unsupported file type %q", ext)
	}
}

// Find returns the blueprint named name.
func Find(blueprints []*Blueprint, name string) (*Blueprint, error) {
	for _, b := range blueprints {
		if b.Name == name {
			return b, nil
		}
	}
	return nil, fmt.Errorf("no blueprint named %q", name)
}
