package dataset

import (
	"context"
	"maps"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ArcanaFramework/frametree-flywheel/internal/frequency"
	"github.com/ArcanaFramework/frametree-flywheel/internal/store"
	"github.com/ArcanaFramework/frametree-flywheel/internal/testutil"
)

var storeKinds = testutil.StoreKinds

func newStore(t *testing.T, kind string) (*store.Store, string) {
	t.Helper()
	return testutil.NewStore(t, kind)
}

// grid creates a leaf for every combination of "<dim><n>" ids for the given lengths.
func grid(t *testing.T, ds *Dataset, lengths ...int) {
	t.Helper()
	dims := ds.Space().Dims()
	require.Len(t, lengths, len(dims))

	var leaves []map[string]string
	ids := map[string]string{}
	var walk func(i int)
	walk = func(i int) {
		if i == len(dims) {
			leaves = append(leaves, maps.Clone(ids))
			return
		}
		for n := 1; n <= lengths[i]; n++ {
			ids[dims[i]] = dims[i] + string(rune('0'+n))
			walk(i + 1)
		}
	}
	walk(0)

	require.NoError(t, ds.CreateLeaves(context.Background(), leaves))
}

func clinicalSpace(t *testing.T) *frequency.Space {
	t.Helper()
	return frequency.MustSpace("clinical", "subject", "session")
}

func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	return testutil.WriteFile(t, path, content)
}
