package dataset

import (
	"context"
	"fmt"
	"slices"

	"github.com/ArcanaFramework/frametree-flywheel/internal/frequency"
	"github.com/ArcanaFramework/frametree-flywheel/internal/item"
	"github.com/ArcanaFramework/frametree-flywheel/internal/record"
	"github.com/ArcanaFramework/frametree-flywheel/internal/store"
)

// DefinitionVersion is stamped into saved definitions as "store-version".
const DefinitionVersion = "1.0.0"

// Definition serialises the dataset, omitting the store and the dataset name.
func (d *Dataset) Definition() record.Map {
	columns := make(record.List, 0, len(d.order))
	for _, c := range d.Columns() {
		columns = append(columns, record.NewMap(
			record.P("name", record.String(c.Name)),
			record.P("path", record.String(c.Path)),
			record.P("datatype", record.String(c.Datatype.Name)),
			record.P("row-frequency", record.String(d.space.Format(c.Frequency))),
			record.P("is-sink", record.Bool(c.Sink)),
		))
	}
	return record.NewMap(
		record.P("id", record.String(d.id)),
		record.P("space", d.space.Record()),
		record.P("hierarchy", record.Strings(d.Hierarchy())),
		record.P("include", filterRecord(d.include)),
		record.P("exclude", filterRecord(d.exclude)),
		record.P("columns", columns),
	)
}

func filterRecord(filter map[string][]string) record.Map {
	m := make(record.Map, len(filter))
	for dim, ids := range filter {
		m[dim] = record.Strings(ids)
	}
	return m
}

// Save stores the dataset definition under the dataset's name.
func (d *Dataset) Save(ctx context.Context) error {
	def := d.Definition()
	def["store-version"] = record.String(DefinitionVersion)
	err := d.store.WithConnection(ctx, func(ctx context.Context) error {
		return d.store.SaveDatasetDefinition(ctx, d.id, def, d.name)
	})
	if err != nil {
		return fmt.Errorf("save dataset %q: %w", d.id, err)
	}
	d.logger.Info("saved dataset definition", "dataset", d.id, "name", store.DefinitionName(d.name))
	return nil
}

// Load reads a saved definition and rebuilds the dataset over st.
func Load(ctx context.Context, st *store.Store, id, name string, opts ...Option) (*Dataset, error) {
	var def record.Map
	err := st.WithConnection(ctx, func(ctx context.Context) error {
		var err error
		def, err = st.LoadDatasetDefinition(ctx, id, name)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("load dataset %q: %w", id, err)
	}
	return FromDefinition(st, def, name, opts...)
}

// FromDefinition rebuilds a dataset from the output of Definition.
func FromDefinition(st *store.Store, def record.Map, name string, opts ...Option) (*Dataset, error) {
	spaceRec, ok := def["space"].(record.Map)
	if !ok {
		return nil, fmt.Errorf("dataset definition: missing space")
	}
	space, err := frequency.SpaceFromRecord(spaceRec)
	if err != nil {
		return nil, fmt.Errorf("dataset definition: %w", err)
	}
	id, ok := def["id"].(record.String)
	if !ok {
		return nil, fmt.Errorf("dataset definition: missing id")
	}

	hierarchy, err := stringList(def["hierarchy"], "hierarchy")
	if err != nil {
		return nil, err
	}
	base := []Option{WithName(name), WithHierarchy(hierarchy...)}
	for _, kind := range []string{"include", "exclude"} {
		filter, _ := def[kind].(record.Map)
		for _, dim := range filter.SortedKeys() {
			ids, err := stringList(filter[dim], kind+"."+dim)
			if err != nil {
				return nil, err
			}
			if kind == "include" {
				base = append(base, WithInclude(dim, ids...))
			} else {
				base = append(base, WithExclude(dim, ids...))
			}
		}
	}

	d, err := New(st, string(id), space, append(slices.Clone(base), opts...)...)
	if err != nil {
		return nil, err
	}

	columns, _ := def["columns"].(record.List)
	for i, raw := range columns {
		c, err := columnFromRecord(space, raw)
		if err != nil {
			return nil, fmt.Errorf("dataset definition: columns[%d]: %w", i, err)
		}
		if err := d.addColumn(c); err != nil {
			return nil, fmt.Errorf("dataset definition: %w", err)
		}
	}
	return d, nil
}

func columnFromRecord(space *frequency.Space, raw record.Value) (*Column, error) {
	m, ok := raw.(record.Map)
	if !ok {
		return nil, fmt.Errorf("expected a mapping, got %T", raw)
	}
	str := func(key string) (string, error) {
		s, ok := m[key].(record.String)
		if !ok {
			return "", fmt.Errorf("missing %q", key)
		}
		return string(s), nil
	}

	name, err := str("name")
	if err != nil {
		return nil, err
	}
	path, err := str("path")
	if err != nil {
		return nil, err
	}
	dtName, err := str("datatype")
	if err != nil {
		return nil, err
	}
	dt, err := item.Lookup(dtName)
	if err != nil {
		return nil, err
	}
	freqName, err := str("row-frequency")
	if err != nil {
		return nil, err
	}
	f, err := space.Parse(freqName)
	if err != nil {
		return nil, err
	}
	sink, _ := m["is-sink"].(record.Bool)
	return &Column{Name: name, Path: path, Datatype: dt, Frequency: f, Sink: bool(sink)}, nil
}

func stringList(v record.Value, field string) ([]string, error) {
	l, ok := v.(record.List)
	if !ok {
		return nil, fmt.Errorf("dataset definition: %s is %T, not a list", field, v)
	}
	out := make([]string, len(l))
	for i, elem := range l {
		s, ok := elem.(record.String)
		if !ok {
			return nil, fmt.Errorf("dataset definition: %s[%d] is %T, not a string", field, i, elem)
		}
		out[i] = string(s)
	}
	return out, nil
}
