package blueprint

import (
	"context"
	"fmt"
	"maps"
	"os"
	"path/filepath"

	"github.com/ArcanaFramework/frametree-flywheel/internal/dataset"
	"github.com/ArcanaFramework/frametree-flywheel/internal/item"
	"github.com/ArcanaFramework/frametree-flywheel/internal/store"
)

// MakeDataset creates the blueprint's tree under id in st, uploads every entry
// to every admitted leaf row and returns the dataset.
func (b *Blueprint) MakeDataset(ctx context.Context, st *store.Store, id string, opts ...dataset.Option) (*dataset.Dataset, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	space, err := b.ToSpace()
	if err != nil {
		return nil, err
	}

	base := []dataset.Option{dataset.WithHierarchy(b.Levels()...)}
	for dim, ids := range b.Include {
		base = append(base, dataset.WithInclude(dim, ids...))
	}
	for dim, ids := range b.Exclude {
		base = append(base, dataset.WithExclude(dim, ids...))
	}
	ds, err := dataset.New(st, id, space, append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("make dataset %s: %w", b.Name, err)
	}

	staging, err := os.MkdirTemp("", "blueprint-"+b.Name+"-*")
	if err != nil {
		return nil, fmt.Errorf("make dataset %s: %w", b.Name, err)
	}
	defer os.RemoveAll(staging)

	err = st.WithConnection(ctx, func(ctx context.Context) error {
		if err := ds.CreateLeaves(ctx, b.leaves()); err != nil {
			return err
		}
		rows, err := ds.Rows(ctx, space.Leaf())
		if err != nil {
			return err
		}
		for _, row := range rows {
			for _, e := range b.Entries {
				dir := filepath.Join(staging, row.ID(), e.Path)
				it, err := makeItem(dir, e.Datatype, e.Filenames, e.ExpectedValue, row.ID())
				if err != nil {
					return err
				}
				entry, err := st.CreateEntry(ctx, e.Path, it.Datatype(), row.Ref())
				if err != nil {
					return err
				}
				if _, err := st.Put(ctx, it, entry); err != nil {
					return err
				}
			}
		}
		return ds.Tree().Refresh(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("make dataset %s: %w", b.Name, err)
	}
	st.Logger().Info("made dataset from blueprint", "blueprint", b.Name, "dataset", id, "store", st.Name())
	return ds, nil
}

// leaves returns the dimension ids of every leaf, including filtered ones.
func (b *Blueprint) leaves() []map[string]string {
	var out []map[string]string
	ids := map[string]string{}
	var walk func(i int)
	walk = func(i int) {
		if i == len(b.Dims) {
			out = append(out, maps.Clone(ids))
			return
		}
		for n := 0; n < b.DimLengths[i]; n++ {
			ids[b.Dims[i]] = DimID(b.Dims[i], n)
			walk(i + 1)
		}
	}
	walk(0)
	return out
}

// MakeItem writes the derivative's test content under dir and returns it as an item.
func (d *Derivative) MakeItem(dir string) (item.Item, error) {
	return makeItem(dir, d.Datatype, d.Filenames, d.ExpectedValue, d.Path)
}

// makeItem creates a fileset from filenames in dir, or decodes a field value.
// File content embeds tag so different rows upload different bytes.
func makeItem(dir, datatype string, filenames []string, value, tag string) (item.Item, error) {
	dt, err := item.Lookup(datatype)
	if err != nil {
		return nil, err
	}
	if dt.IsField() {
		return item.DecodeField(dt, value)
	}

	var paths []string
	for _, fn := range filenames {
		p := filepath.Join(dir, fn)
		if dt.Directory {
			err = writeTree(p, tag)
		} else {
			err = writeFile(p, fmt.Sprintf("%s %s\n", tag, fn))
		}
		if err != nil {
			return nil, fmt.Errorf("make item %s: %w", fn, err)
		}
		paths = append(paths, p)
	}
	return item.NewFileSet(dt, paths...)
}

func writeTree(dir, tag string) error {
	for _, rel := range []string{"1.txt", "2.txt", filepath.Join("sub", "3.txt")} {
		if err := writeFile(filepath.Join(dir, rel), tag+" "+rel+"\n"); err != nil {
			return err
		}
	}
	return nil
}

func writeFile(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(content), 0o644)
}
