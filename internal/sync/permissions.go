package sync

import (
	"context"
	"log/slog"
	"strings"
	gosync "sync"
	"time"

	"github.com/nucleus/ingest-core/internal/graph"
	"github.com/nucleus/ingest-core/internal/source"
)

// Scope determines whether grants are organization-wide or tied to an
// individual creator.
type Scope string

const (
	ScopeTeam     Scope = "TEAM"
	ScopePersonal Scope = "PERSONAL"
)

// IdentityCache memoizes identity lookups with a TTL. The clock is injected
// so expiry is testable; entries are constructor-injected per-run state, not
// process globals.
type IdentityCache struct {
	ttl     time.Duration
	now     func() time.Time
	mu      gosync.Mutex
	entries map[string]identityEntry
}

type identityEntry struct {
	user    *graph.User // nil caches a confirmed miss
	expires time.Time
}

// NewIdentityCache creates a cache with the given TTL and clock.
func NewIdentityCache(ttl time.Duration, now func() time.Time) *IdentityCache {
	if now == nil {
		now = time.Now
	}
	return &IdentityCache{
		ttl:     ttl,
		now:     now,
		entries: make(map[string]identityEntry),
	}
}

func (c *IdentityCache) get(email string) (*graph.User, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[strings.ToLower(email)]
	if !ok || c.now().After(e.expires) {
		return nil, false
	}
	return e.user, true
}

func (c *IdentityCache) put(email string, u *graph.User) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[strings.ToLower(email)] = identityEntry{user: u, expires: c.now().Add(c.ttl)}
}

// Resolver derives access grants from connector scope and cached identity.
// Resolution failures are never fatal: every record leaves with at least one
// grant.
type Resolver struct {
	store graph.Store
	cache *IdentityCache
	log   *slog.Logger
}

// NewResolver creates a permission resolver over the given store and cache.
func NewResolver(store graph.Store, cache *IdentityCache, log *slog.Logger) *Resolver {
	return &Resolver{store: store, cache: cache, log: log}
}

// ForFile derives grants for a file-like record. TEAM scope yields a single
// org-wide READ. PERSONAL scope yields an OWNER grant for the creator,
// resolved once per run; an unresolvable creator falls back to org READ.
func (r *Resolver) ForFile(ctx context.Context, scope Scope, creatorEmail string) []graph.Permission {
	if scope != ScopePersonal {
		return []graph.Permission{{Kind: graph.GrantOrg, Role: graph.RoleRead}}
	}
	if u := r.resolve(ctx, creatorEmail); u != nil {
		return []graph.Permission{{Kind: graph.GrantUser, Role: graph.RoleOwner, UserID: u.ID}}
	}
	r.log.Warn("creator unresolved, falling back to org grant", "email", creatorEmail)
	return []graph.Permission{{Kind: graph.GrantOrg, Role: graph.RoleRead}}
}

// ForMessage derives per-message grants from the sender/recipient list: the
// mailbox owner's address maps to OWNER, all others to READ. Unresolvable
// addresses are skipped with a warning, never fatal.
func (r *Resolver) ForMessage(ctx context.Context, ownerEmail string, item *source.Item) []graph.Permission {
	seen := make(map[string]struct{})
	var grants []graph.Permission

	addresses := make([]string, 0, len(item.Recipients)+1)
	if item.Sender != "" {
		addresses = append(addresses, item.Sender)
	}
	addresses = append(addresses, item.Recipients...)

	for _, addr := range addresses {
		key := strings.ToLower(addr)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		u := r.resolve(ctx, addr)
		if u == nil {
			r.log.Warn("message participant unresolved, skipping grant", "email", addr)
			continue
		}
		role := graph.RoleRead
		if strings.EqualFold(addr, ownerEmail) {
			role = graph.RoleOwner
		}
		grants = append(grants, graph.Permission{Kind: graph.GrantUser, Role: role, UserID: u.ID})
	}

	if len(grants) == 0 {
		r.log.Warn("no message participants resolved, falling back to org grant", "owner", ownerEmail)
		grants = append(grants, graph.Permission{Kind: graph.GrantOrg, Role: graph.RoleRead})
	}
	return grants
}

func (r *Resolver) resolve(ctx context.Context, email string) *graph.User {
	if email == "" {
		return nil
	}
	if u, ok := r.cache.get(email); ok {
		return u
	}
	u, err := r.store.GetUserByEmail(ctx, email)
	if err != nil {
		r.log.Warn("identity lookup failed", "email", email, "error", err)
		return nil
	}
	// Misses are cached too so one run asks the store at most once per
	// address.
	r.cache.put(email, u)
	return u
}
