package sync

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nucleus/ingest-core/internal/graph"
	"github.com/nucleus/ingest-core/internal/source"
)

// countingStore counts identity lookups to assert cache behavior.
type countingStore struct {
	*graph.MemoryStore
	emailLookups int
}

func (c *countingStore) GetUserByEmail(ctx context.Context, email string) (*graph.User, error) {
	c.emailLookups++
	return c.MemoryStore.GetUserByEmail(ctx, email)
}

func newTestResolver(store graph.Store, now func() time.Time) *Resolver {
	return NewResolver(store, NewIdentityCache(15*time.Minute, now), slog.Default())
}

func TestResolverForFile(t *testing.T) {
	ctx := context.Background()

	t.Run("team scope grants org read", func(t *testing.T) {
		r := newTestResolver(graph.NewMemoryStore(), nil)
		perms := r.ForFile(ctx, ScopeTeam, "alice@example.com")
		require.Equal(t, []graph.Permission{{Kind: graph.GrantOrg, Role: graph.RoleRead}}, perms)
	})

	t.Run("personal scope grants creator ownership", func(t *testing.T) {
		store := graph.NewMemoryStore()
		store.AddUser(graph.User{ID: "u1", Email: "alice@example.com"})

		perms := newTestResolver(store, nil).ForFile(ctx, ScopePersonal, "Alice@Example.com")
		require.Equal(t, []graph.Permission{{Kind: graph.GrantUser, Role: graph.RoleOwner, UserID: "u1"}}, perms)
	})

	t.Run("unresolved creator falls back to org read", func(t *testing.T) {
		perms := newTestResolver(graph.NewMemoryStore(), nil).ForFile(ctx, ScopePersonal, "ghost@example.com")
		require.Equal(t, []graph.Permission{{Kind: graph.GrantOrg, Role: graph.RoleRead}}, perms)
	})
}

func TestResolverForMessage(t *testing.T) {
	ctx := context.Background()

	t.Run("owner gets owner, others read, duplicates collapse", func(t *testing.T) {
		store := graph.NewMemoryStore()
		store.AddUser(graph.User{ID: "u1", Email: "owner@example.com"})
		store.AddUser(graph.User{ID: "u2", Email: "bob@example.com"})

		perms := newTestResolver(store, nil).ForMessage(ctx, "owner@example.com", &source.Item{
			Sender:     "owner@example.com",
			Recipients: []string{"bob@example.com", "Bob@Example.com", "ghost@example.com"},
		})
		require.ElementsMatch(t, []graph.Permission{
			{Kind: graph.GrantUser, Role: graph.RoleOwner, UserID: "u1"},
			{Kind: graph.GrantUser, Role: graph.RoleRead, UserID: "u2"},
		}, perms)
	})

	t.Run("nothing resolved falls back to org read", func(t *testing.T) {
		perms := newTestResolver(graph.NewMemoryStore(), nil).ForMessage(ctx, "owner@example.com", &source.Item{
			Sender:     "ghost@example.com",
			Recipients: []string{"phantom@example.com"},
		})
		require.Equal(t, []graph.Permission{{Kind: graph.GrantOrg, Role: graph.RoleRead}}, perms)
	})
}

func TestIdentityCache(t *testing.T) {
	ctx := context.Background()

	t.Run("hits and misses are both cached", func(t *testing.T) {
		store := &countingStore{MemoryStore: graph.NewMemoryStore()}
		store.AddUser(graph.User{ID: "u1", Email: "alice@example.com"})
		r := newTestResolver(store, nil)

		for i := 0; i < 3; i++ {
			r.ForFile(ctx, ScopePersonal, "alice@example.com")
			r.ForFile(ctx, ScopePersonal, "ghost@example.com")
		}
		require.Equal(t, 2, store.emailLookups)
	})

	t.Run("entries expire after the ttl", func(t *testing.T) {
		store := &countingStore{MemoryStore: graph.NewMemoryStore()}
		store.AddUser(graph.User{ID: "u1", Email: "alice@example.com"})

		now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
		r := newTestResolver(store, func() time.Time { return now })

		r.ForFile(ctx, ScopePersonal, "alice@example.com")
		now = now.Add(16 * time.Minute)
		r.ForFile(ctx, ScopePersonal, "alice@example.com")
		require.Equal(t, 2, store.emailLookups)
	})
}
