package sync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSyncPointPatchMerge(t *testing.T) {
	ctx := context.Background()
	key := SyncPointKey{ConnectorID: "c1", ResourceType: "file", ScopeKey: "bucket"}
	ts := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	t.Run("missing key reads as zero value", func(t *testing.T) {
		store := NewMemorySyncPoints()
		sp, found, err := store.Read(ctx, key)
		require.NoError(t, err)
		require.False(t, found)
		require.Empty(t, sp.PaginationCursor)
		require.True(t, sp.HighWatermark.IsZero())
	})

	t.Run("nil fields leave stored values untouched", func(t *testing.T) {
		store := NewMemorySyncPoints()
		require.NoError(t, store.Update(ctx, key, SyncPointPatch{
			PaginationCursor: StringPtr("page-3"),
			HighWatermark:    TimePtr(ts),
		}))
		require.NoError(t, store.Update(ctx, key, SyncPointPatch{
			Extra: map[string]string{ExtraDeltaToken: "tok-1"},
		}))

		sp, found, err := store.Read(ctx, key)
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, "page-3", sp.PaginationCursor)
		require.Equal(t, ts, sp.HighWatermark)
		require.Equal(t, "tok-1", sp.Extra[ExtraDeltaToken])
	})

	t.Run("watermark never regresses", func(t *testing.T) {
		store := NewMemorySyncPoints()
		require.NoError(t, store.Update(ctx, key, SyncPointPatch{HighWatermark: TimePtr(ts)}))
		require.NoError(t, store.Update(ctx, key, SyncPointPatch{HighWatermark: TimePtr(ts.Add(-time.Hour))}))

		sp, _, err := store.Read(ctx, key)
		require.NoError(t, err)
		require.Equal(t, ts, sp.HighWatermark)
	})

	t.Run("cursor resets to empty explicitly", func(t *testing.T) {
		store := NewMemorySyncPoints()
		require.NoError(t, store.Update(ctx, key, SyncPointPatch{PaginationCursor: StringPtr("page-3")}))
		require.NoError(t, store.Update(ctx, key, SyncPointPatch{PaginationCursor: StringPtr("")}))

		sp, _, err := store.Read(ctx, key)
		require.NoError(t, err)
		require.Empty(t, sp.PaginationCursor)
	})

	t.Run("extra merges key by key", func(t *testing.T) {
		store := NewMemorySyncPoints()
		require.NoError(t, store.Update(ctx, key, SyncPointPatch{Extra: map[string]string{"a": "1", "b": "2"}}))
		require.NoError(t, store.Update(ctx, key, SyncPointPatch{Extra: map[string]string{"b": "3"}}))

		sp, _, err := store.Read(ctx, key)
		require.NoError(t, err)
		require.Equal(t, map[string]string{"a": "1", "b": "3"}, sp.Extra)
	})

	t.Run("reads return copies of extra", func(t *testing.T) {
		store := NewMemorySyncPoints()
		require.NoError(t, store.Update(ctx, key, SyncPointPatch{Extra: map[string]string{"a": "1"}}))

		sp, _, _ := store.Read(ctx, key)
		sp.Extra["a"] = "mutated"

		again, _, _ := store.Read(ctx, key)
		require.Equal(t, "1", again.Extra["a"])
	})
}
