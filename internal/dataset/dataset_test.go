package dataset

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ArcanaFramework/frametree-flywheel/internal/errs"
	"github.com/ArcanaFramework/frametree-flywheel/internal/frequency"
	"github.com/ArcanaFramework/frametree-flywheel/internal/item"
	"github.com/ArcanaFramework/frametree-flywheel/internal/record"
	"github.com/ArcanaFramework/frametree-flywheel/internal/store"
)

func TestHierarchyValidation(t *testing.T) {
	st, id := newStore(t, "local")
	space := frequency.MustSpace("s", "a", "b", "c")

	tests := []struct {
		name   string
		levels []string
		ok     bool
	}{
		{"one level per dim", []string{"a", "b", "c"}, true},
		{"combined level", []string{"a+b", "c"}, true},
		{"single leaf level", []string{"a+b+c"}, true},
		{"missing dimension", []string{"a", "b"}, false},
		{"repeated dimension", []string{"a", "a+b", "c"}, false},
		{"root level", []string{"root", "a+b+c"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(st, id, space, WithHierarchy(tt.levels...))
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.True(t, errs.Is(err, errs.CodeInvalidFrequency), "got %v", err)
			}
		})
	}
}

func TestRowCounts(t *testing.T) {
	for _, kind := range storeKinds {
		t.Run(kind, func(t *testing.T) {
			ctx := context.Background()
			st, id := newStore(t, kind)
			space := frequency.MustSpace("s", "a", "b", "c")
			ds, err := New(st, id, space)
			require.NoError(t, err)
			lengths := []int{2, 3, 2}
			grid(t, ds, lengths...)

			for _, f := range space.All() {
				want, err := space.Count(f, lengths)
				require.NoError(t, err)
				rows, err := ds.Rows(ctx, f)
				require.NoError(t, err)
				assert.Len(t, rows, want, space.Format(f))
			}
		})
	}
}

func TestSubjectSessionScenario(t *testing.T) {
	ctx := context.Background()
	st, id := newStore(t, "local")
	space := clinicalSpace(t)
	ds, err := New(st, id, space)
	require.NoError(t, err)
	grid(t, ds, 2, 2)

	counts := map[string]int{"subject+session": 4, "subject": 2, "session": 2, "root": 1}
	for name, want := range counts {
		rows, err := ds.Rows(ctx, space.MustParse(name))
		require.NoError(t, err)
		assert.Len(t, rows, want, name)
	}

	ids, err := ds.RowIDs(ctx, space.Leaf())
	require.NoError(t, err)
	assert.Equal(t, []string{
		"subject1.session1", "subject1.session2", "subject2.session1", "subject2.session2",
	}, ids)

	root, err := ds.Root(ctx)
	require.NoError(t, err)
	assert.Equal(t, "", root.ID())
	assert.Empty(t, root.IDs())

	_, err = ds.Rows(ctx, frequency.Frequency(0b100))
	assert.True(t, errs.Is(err, errs.CodeInvalidFrequency))
}

func TestCombinedLevelLabels(t *testing.T) {
	ctx := context.Background()
	st, id := newStore(t, "local")
	space := clinicalSpace(t)
	ds, err := New(st, id, space, WithHierarchy("subject+session"))
	require.NoError(t, err)

	assert.Equal(t, []string{"s1.v1"}, ds.LeafLabels(map[string]string{"subject": "s1", "session": "v1"}))
	grid(t, ds, 3, 2)

	rows, err := ds.Rows(ctx, space.MustOf("subject"))
	require.NoError(t, err)
	assert.Len(t, rows, 3)

	row, err := ds.Row(ctx, space.Leaf(), "subject2.session1")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"subject": "subject2", "session": "session1"}, row.IDs())
	assert.Equal(t, []string{"subject2.session1"}, row.Ref().Path)
}

func TestIDsContainingSeparatorAreRejected(t *testing.T) {
	for _, kind := range storeKinds {
		t.Run(kind, func(t *testing.T) {
			ctx := context.Background()
			st, id := newStore(t, kind)
			space := clinicalSpace(t)
			ds, err := New(st, id, space)
			require.NoError(t, err)

			err = ds.CreateLeaves(ctx, []map[string]string{{"subject": "x.y", "session": "z"}})
			assert.True(t, errs.Is(err, errs.CodeInvalidFrequency), "got %v", err)

			err = ds.CreateLeaves(ctx, []map[string]string{{"subject": "x"}})
			assert.True(t, errs.Is(err, errs.CodeInvalidFrequency), "got %v", err)

			// leaves whose joined ids would collide
			require.NoError(t, st.WithConnection(ctx, func(ctx context.Context) error {
				return st.CreateDataTree(ctx, id, [][]string{{"x.y", "z"}, {"x", "y.z"}})
			}))
			_, err = ds.Rows(ctx, space.Leaf())
			assert.True(t, errs.Is(err, errs.CodeInvalidFrequency), "got %v", err)
		})
	}
}

func TestIncludeExclude(t *testing.T) {
	ctx := context.Background()
	st, id := newStore(t, "local")
	space := clinicalSpace(t)

	ds, err := New(st, id, space)
	require.NoError(t, err)
	grid(t, ds, 3, 2)

	filtered, err := New(st, id, space,
		WithInclude("subject", "subject1", "subject2"),
		WithExclude("session", "session2"),
	)
	require.NoError(t, err)

	ids, err := filtered.RowIDs(ctx, space.Leaf())
	require.NoError(t, err)
	assert.Equal(t, []string{"subject1.session1", "subject2.session1"}, ids)

	_, err = New(st, id, space, WithExclude("visit", "v1"))
	assert.True(t, errs.Is(err, errs.CodeInvalidFrequency))
}

func TestTreeScope(t *testing.T) {
	ctx := context.Background()
	st, id := newStore(t, "local")
	ds, err := New(st, id, clinicalSpace(t))
	require.NoError(t, err)
	grid(t, ds, 1, 1)

	assert.False(t, ds.Tree().Populated())
	err = ds.Tree().Do(ctx, func(ctx context.Context) error {
		assert.True(t, st.Connected())
		assert.True(t, ds.Tree().Populated())
		return ds.Tree().Do(ctx, func(ctx context.Context) error { return nil })
	})
	require.NoError(t, err)
	assert.False(t, st.Connected())
	assert.True(t, ds.Tree().Populated(), "exiting keeps the cache")

	// a tree over a missing dataset fails to populate and releases the connection
	missing, err := New(st, filepath.Join(t.TempDir(), "absent"), clinicalSpace(t))
	require.NoError(t, err)
	err = missing.Tree().Enter(ctx)
	assert.True(t, errs.IsEntryNotFound(err))
	assert.False(t, st.Connected())
}

func TestColumns(t *testing.T) {
	st, id := newStore(t, "local")
	space := clinicalSpace(t)
	ds, err := New(st, id, space, WithName("analysis"))
	require.NoError(t, err)

	src, err := ds.AddSource("t1w", item.NiftiGz, FromPath("anat"))
	require.NoError(t, err)
	assert.Equal(t, "anat", src.Path)
	assert.Equal(t, space.Leaf(), src.Frequency)

	sink, err := ds.AddSink("volume", item.DecimalField, space.MustOf("subject"))
	require.NoError(t, err)
	assert.Equal(t, "volume@analysis", sink.Path)
	assert.True(t, store.Entry{Path: sink.Path}.IsDerivative())

	_, err = ds.AddSink("volume", item.DecimalField, space.Leaf())
	assert.True(t, errs.Is(err, errs.CodeEntryExists))

	_, err = ds.AddSource("bad", item.Text, AtFrequency(frequency.Frequency(0b100)))
	assert.True(t, errs.Is(err, errs.CodeInvalidFrequency))

	_, err = New(st, id, space, WithName("a@b"))
	assert.Error(t, err)

	names := []string{}
	for _, c := range ds.Columns() {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"t1w", "volume"}, names)
}

func TestDefinitionGolden(t *testing.T) {
	st, _ := newStore(t, "local")
	space := clinicalSpace(t)
	ds, err := New(st, "/data/study", space, WithName("analysis"), WithExclude("subject", "subject3"))
	require.NoError(t, err)
	_, err = ds.AddSource("t1w", item.NiftiGz, FromPath("anat"))
	require.NoError(t, err)
	_, err = ds.AddSink("brain_volume", item.DecimalField, space.Leaf())
	require.NoError(t, err)

	data, err := record.MarshalCanonical(ds.Definition())
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "definition", data)
}

func TestDefinitionRoundTrip(t *testing.T) {
	for _, kind := range storeKinds {
		t.Run(kind, func(t *testing.T) {
			ctx := context.Background()
			st, id := newStore(t, kind)
			space := clinicalSpace(t)
			require.NoError(t, space.Alias("session_level", space.Leaf()))

			ds, err := New(st, id, space, WithName("analysis"), WithInclude("session", "session1"))
			require.NoError(t, err)
			grid(t, ds, 2, 2)
			_, err = ds.AddSource("t1w", item.NiftiGz)
			require.NoError(t, err)
			_, err = ds.AddSink("count", item.IntegerField, space.MustOf("subject"))
			require.NoError(t, err)
			require.NoError(t, ds.Save(ctx))

			loaded, err := Load(ctx, st, id, "analysis")
			require.NoError(t, err)
			assert.True(t, record.Equal(ds.Definition(), loaded.Definition()))
			assert.Equal(t, "analysis", loaded.Name())
			assert.Equal(t, []string{"session1"}, loaded.Include("session"))

			ids, err := loaded.RowIDs(ctx, space.Leaf())
			require.NoError(t, err)
			assert.Equal(t, []string{"subject1.session1", "subject2.session1"}, ids)

			_, err = Load(ctx, st, id, "other")
			assert.True(t, errs.IsEntryNotFound(err))
		})
	}
}
