package blueprint

import (
	"context"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ArcanaFramework/frametree-flywheel/internal/dataset"
	"github.com/ArcanaFramework/frametree-flywheel/internal/item"
	"github.com/ArcanaFramework/frametree-flywheel/internal/record"
	"github.com/ArcanaFramework/frametree-flywheel/internal/testutil"
)

// fixture is a blueprint made into a dataset in one kind of store.
type fixture struct {
	name      string
	blueprint *Blueprint
	dataset   *dataset.Dataset
}

// eachFixture runs fn for every built-in blueprint in every kind of store.
func eachFixture(t *testing.T, fn func(t *testing.T, f fixture)) {
	for _, kind := range testutil.StoreKinds {
		for _, name := range Builtins() {
			t.Run(kind+"/"+name, func(t *testing.T) {
				bp, err := Builtin(name)
				require.NoError(t, err)
				st, id := testutil.NewStore(t, kind)
				ds, err := bp.MakeDataset(context.Background(), st, id)
				require.NoError(t, err)
				fn(t, fixture{name: name, blueprint: bp, dataset: ds})
			})
		}
	}
}

func TestPopulateTree(t *testing.T) {
	eachFixture(t, func(t *testing.T, f fixture) {
		space := f.dataset.Space()
		for _, freq := range space.All() {
			rows, err := f.dataset.Rows(context.Background(), freq)
			require.NoError(t, err)
			assert.Len(t, rows, f.blueprint.ExpectedRows(space, freq), space.Format(freq))
		}
	})
}

func TestPopulateRow(t *testing.T) {
	eachFixture(t, func(t *testing.T, f fixture) {
		ctx := context.Background()
		var want []string
		for _, e := range f.blueprint.Entries {
			want = append(want, e.Path)
		}
		sort.Strings(want)

		rows, err := f.dataset.Rows(ctx, f.dataset.LeafFrequency())
		require.NoError(t, err)
		for _, row := range rows {
			entries, err := row.Entries(ctx)
			require.NoError(t, err)
			var got []string
			for _, e := range entries {
				got = append(got, e.Path)
			}
			assert.Equal(t, want, got, row.String())
		}
	})
}

func TestGet(t *testing.T) {
	eachFixture(t, func(t *testing.T, f fixture) {
		ctx := context.Background()
		for _, e := range f.blueprint.Entries {
			_, err := f.dataset.AddSource(e.Path, item.MustLookup(e.Datatype))
			require.NoError(t, err)
		}
		rows, err := f.dataset.Rows(ctx, f.dataset.LeafFrequency())
		require.NoError(t, err)
		for _, row := range rows {
			for _, e := range f.blueprint.Entries {
				it, err := row.Get(ctx, e.Path)
				require.NoError(t, err, "%s %s", row, e.Path)
				switch v := it.(type) {
				case *item.FileSet:
					names := v.TrimPaths().Names()
					sort.Strings(names)
					want := append([]string(nil), e.Filenames...)
					sort.Strings(want)
					assert.Equal(t, want, names, "%s %s", row, e.Path)
				case *item.Field:
					want, err := item.DecodeField(v.Datatype(), e.ExpectedValue)
					require.NoError(t, err)
					assert.True(t, v.Equal(want), "%s %s: got %s", row, e.Path, v)
				}
			}
		}
	})
}

func TestPost(t *testing.T) {
	eachFixture(t, func(t *testing.T, f fixture) {
		ctx := context.Background()
		ds := f.dataset
		space := ds.Space()
		checksums := map[string]string{}

		checkInserted := func(t *testing.T) {
			t.Helper()
			for _, d := range f.blueprint.Derivatives {
				rows, err := ds.Rows(ctx, space.MustParse(d.RowFrequency))
				require.NoError(t, err)
				for _, row := range rows {
					cell, err := row.Cell(ctx, d.Path, false)
					require.NoError(t, err, "%s %s", row, d.Path)
					it := cell.Item
					assert.Equal(t, d.Datatype, it.Datatype().Name)
					if fs, ok := it.(*item.FileSet); ok {
						hash, err := fs.HashFiles()
						require.NoError(t, err)
						assert.Equal(t, checksums[d.Path], hash, "%s %s", row, d.Path)
					} else {
						want, err := item.DecodeField(it.Datatype(), d.ExpectedValue)
						require.NoError(t, err)
						assert.True(t, it.(*item.Field).Equal(want), "%s %s", row, d.Path)
					}
				}
			}
		}

		err := ds.Tree().Do(ctx, func(ctx context.Context) error {
			for _, d := range f.blueprint.Derivatives {
				_, err := ds.AddSink(d.Path, item.MustLookup(d.Datatype), space.MustParse(d.RowFrequency))
				require.NoError(t, err)
				it, err := d.MakeItem(filepath.Join(t.TempDir(), d.Path))
				require.NoError(t, err)
				if fs, ok := it.(*item.FileSet); ok {
					checksums[d.Path], err = fs.HashFiles()
					require.NoError(t, err)
				}
				err = ds.Tree().Do(ctx, func(ctx context.Context) error {
					rows, err := ds.Rows(ctx, space.MustParse(d.RowFrequency))
					if err != nil {
						return err
					}
					for _, row := range rows {
						if err := row.Put(ctx, d.Path, it); err != nil {
							return err
						}
					}
					return nil
				})
				require.NoError(t, err)
			}
			// cached items reflect the writes
			checkInserted(t)
			return nil
		})
		require.NoError(t, err)

		// items can be recreated from the store
		require.NoError(t, ds.Tree().Refresh(ctx))
		checkInserted(t)
	})
}

func TestDatasetDefinitionRoundTrip(t *testing.T) {
	eachFixture(t, func(t *testing.T, f fixture) {
		ctx := context.Background()
		definition := f.dataset.Definition()
		definition["store-version"] = record.String("1.0.0")

		st := f.dataset.Store()
		var reloaded record.Map
		err := st.WithConnection(ctx, func(ctx context.Context) error {
			if err := st.SaveDatasetDefinition(ctx, f.dataset.ID(), definition, "test_dataset"); err != nil {
				return err
			}
			var err error
			reloaded, err = st.LoadDatasetDefinition(ctx, f.dataset.ID(), "test_dataset")
			return err
		})
		require.NoError(t, err)
		assert.True(t, record.Equal(definition, reloaded), "got %v", reloaded)
	})
}

func TestProvenanceRoundTrip(t *testing.T) {
	provenance := record.NewMap(
		record.P("a", record.Int(1)),
		record.P("b", record.NewList(record.Int(1), record.Int(2), record.Int(3))),
		record.P("c", record.NewMap(
			record.P("x", record.Bool(true)),
			record.P("y", record.String("foo")),
			record.P("z", record.String("bar")),
		)),
	)

	for _, kind := range testutil.StoreKinds {
		for _, dt := range []item.Datatype{item.File, item.TextField} {
			t.Run(kind+"/"+dt.Name, func(t *testing.T) {
				ctx := context.Background()
				bp, err := Builtin("simple")
				require.NoError(t, err)
				st, id := testutil.NewStore(t, kind)
				ds, err := bp.MakeDataset(ctx, st, id)
				require.NoError(t, err)
				root, err := ds.Root(ctx)
				require.NoError(t, err)

				var value item.Item
				if dt.IsFileSet() {
					path := filepath.Join(t.TempDir(), "any.dat")
					require.NoError(t, writeFile(path, "content"))
					value = item.MustFileSet(dt, path)
				} else {
					value = item.MustField(dt, "value")
				}

				var reloaded record.Map
				err = st.WithConnection(ctx, func(ctx context.Context) error {
					entry, err := st.CreateEntry(ctx, "provtest@", dt, root.Ref())
					if err != nil {
						return err
					}
					if _, err := st.Put(ctx, value, entry); err != nil {
						return err
					}
					if err := st.PutProvenance(ctx, provenance, entry); err != nil {
						return err
					}
					reloaded, err = st.GetProvenance(ctx, entry)
					return err
				})
				require.NoError(t, err)
				assert.True(t, record.Equal(provenance, reloaded))
			})
		}
	}
}
