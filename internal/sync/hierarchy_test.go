package sync

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nucleus/ingest-core/internal/graph"
)

func testGroup() *graph.RecordGroup {
	return &graph.RecordGroup{ID: "grp-1", ConnectorID: "c1", ExternalID: "bucket", ResourceType: graph.TypeFile}
}

func TestAncestorSegments(t *testing.T) {
	cases := []struct {
		key  string
		want []string
	}{
		{"a/b/c/file.txt", []string{"a", "a/b", "a/b/c"}},
		{"a/file.txt", []string{"a"}},
		{"file.txt", nil},
		{"/a/b/file.txt", []string{"a", "a/b"}},
		{"", nil},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, AncestorSegments(tc.key), "key %q", tc.key)
	}
}

func TestSynthesizerEnsure(t *testing.T) {
	ctx := context.Background()
	log := slog.Default()

	t.Run("creates ancestor chain root to leaf", func(t *testing.T) {
		store := graph.NewMemoryStore()
		synth := NewSynthesizer(store, log)

		parentExt, parentID, err := synth.Ensure(ctx, "c1", testGroup(), "a/b/file.txt")
		require.NoError(t, err)
		require.Equal(t, "bucket/a/b", parentExt)
		require.NotEmpty(t, parentID)
		require.Equal(t, 2, store.RecordCount())

		top, err := store.GetRecordByExternalID(ctx, "c1", "bucket/a")
		require.NoError(t, err)
		require.NotNil(t, top)
		require.True(t, top.IsContainer)
		require.Equal(t, "a", top.Name)
		require.Empty(t, store.ParentOf(top.ID))

		mid, err := store.GetRecordByExternalID(ctx, "c1", "bucket/a/b")
		require.NoError(t, err)
		require.NotNil(t, mid)
		require.Equal(t, "b", mid.Name)
		require.Equal(t, top.ID, store.ParentOf(mid.ID))
		require.Equal(t, mid.ID, parentID)
	})

	t.Run("rerun is idempotent", func(t *testing.T) {
		store := graph.NewMemoryStore()

		_, firstID, err := NewSynthesizer(store, log).Ensure(ctx, "c1", testGroup(), "a/b/file.txt")
		require.NoError(t, err)
		count := store.RecordCount()

		// A fresh synthesizer models a second run with a cold cache.
		_, secondID, err := NewSynthesizer(store, log).Ensure(ctx, "c1", testGroup(), "a/b/other.txt")
		require.NoError(t, err)
		require.Equal(t, count, store.RecordCount())
		require.Equal(t, firstID, secondID)
	})

	t.Run("top level key needs no parent", func(t *testing.T) {
		store := graph.NewMemoryStore()

		parentExt, parentID, err := NewSynthesizer(store, log).Ensure(ctx, "c1", testGroup(), "file.txt")
		require.NoError(t, err)
		require.Empty(t, parentExt)
		require.Empty(t, parentID)
		require.Equal(t, 0, store.RecordCount())
	})

	t.Run("placeholders carry an org read grant", func(t *testing.T) {
		store := graph.NewMemoryStore()

		_, parentID, err := NewSynthesizer(store, log).Ensure(ctx, "c1", testGroup(), "a/file.txt")
		require.NoError(t, err)
		perms := store.PermissionsOf(parentID)
		require.Len(t, perms, 1)
		require.Equal(t, graph.GrantOrg, perms[0].Kind)
		require.Equal(t, graph.RoleRead, perms[0].Role)
	})
}

func TestSynthesizerEnsurePath(t *testing.T) {
	ctx := context.Background()
	store := graph.NewMemoryStore()
	synth := NewSynthesizer(store, slog.Default())

	// Explicit container entries pin the directory itself, not just ancestors.
	extID, id, err := synth.EnsurePath(ctx, "c1", testGroup(), "a/b/")
	require.NoError(t, err)
	require.Equal(t, "bucket/a/b", extID)
	require.NotEmpty(t, id)
	require.Equal(t, 2, store.RecordCount())

	leaf, err := store.GetRecordByExternalID(ctx, "c1", "bucket/a/b")
	require.NoError(t, err)
	require.NotNil(t, leaf)
	require.True(t, leaf.IsContainer)
}
