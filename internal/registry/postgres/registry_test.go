package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/reftrack/internal/registry"
	"github.com/scrypster/reftrack/pkg/types"
)

// newTestRegistry connects to the database named by REFTRACK_TEST_POSTGRES_DSN.
// If REFTRACK_TEST_POSTGRES_DSN is not set, tests are skipped.
func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	dsn := os.Getenv("REFTRACK_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("REFTRACK_TEST_POSTGRES_DSN not set; skipping PostgreSQL integration tests")
	}

	r, err := NewRegistry(dsn, "/proj")
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = r.db.Exec("TRUNCATE TABLE taskfiles, element_assets, elements CASCADE")
		_ = r.Close()
	})
	return r
}

func TestRegistry_SyncAndLookup(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	m, err := registry.NewManifest("/proj",
		[]types.Element{
			{ID: 1, Kind: types.KindShot, Name: "sh010", Assets: []int{2}},
			{ID: 2, Kind: types.KindAsset, Name: "smurf"},
		},
		[]registry.FileRecord{
			{ID: 10, Element: 2, Task: "rig", Version: 1, ReleaseType: types.ReleaseTypeRelease, FileType: types.FileTypeScene},
			{ID: 11, Element: 2, Task: "rig", Version: 2, ReleaseType: types.ReleaseTypeRelease, FileType: types.FileTypeScene},
		},
	)
	require.NoError(t, err)
	require.NoError(t, r.Sync(ctx, m))
	require.NoError(t, r.Sync(ctx, m), "sync is idempotent")

	item, err := r.Item(ctx, 11)
	require.NoError(t, err)
	assert.Equal(t, "smurf", item.Element.Name)
	assert.Equal(t, 2, item.Version)

	id, err := r.FileID(ctx, item)
	require.NoError(t, err)
	assert.Equal(t, 11, id)

	_, err = r.Item(ctx, 99)
	assert.ErrorIs(t, err, registry.ErrNotFound)

	shot, err := r.FindElement(ctx, types.KindShot, "sh010")
	require.NoError(t, err)
	assert.Equal(t, []int{2}, shot.Assets)

	assets, err := r.LinkedAssets(ctx, shot)
	require.NoError(t, err)
	require.Len(t, assets, 1)
	assert.Equal(t, "smurf", assets[0].Name)

	options, err := r.Options(ctx, item.Element, types.ReleaseTypeRelease, "")
	require.NoError(t, err)
	require.Len(t, options, 2)
	assert.Equal(t, 1, options[0].Version)

	p, err := r.Path(ctx, item)
	require.NoError(t, err)
	assert.Contains(t, p, "smurf_rig_v002.yaml")
}
