package sync

import (
	"context"
	"log/slog"

	"github.com/nucleus/ingest-core/internal/graph"
)

// Thread ordering tokens are hex-encoded conversation indexes: a fixed
// 22-byte root plus zero or more 5-byte reply-hop blocks.
const (
	ThreadRootLen = 44 // hex chars
	ThreadHopLen  = 10 // hex chars per reply hop
)

// Reconstructor links a mailbox's messages into reply chains after they are
// committed. A message's parent token is its own token minus the last hop
// block; the parent is looked up among the messages ingested in the same run.
// Edge creation is best-effort: a miss (parent outside current scope) skips
// the edge and never fails the sync.
type Reconstructor struct {
	store graph.Store
	log   *slog.Logger
}

// NewReconstructor creates a thread reconstructor over the given store.
func NewReconstructor(store graph.Store, log *slog.Logger) *Reconstructor {
	return &Reconstructor{store: store, log: log}
}

// Link walks the run's token -> record id index and creates reply edges.
// Returns the number of edges created.
func (t *Reconstructor) Link(ctx context.Context, byToken map[string]string) int {
	linked := 0
	for token, childID := range byToken {
		parentToken, ok := ParentToken(token)
		if !ok {
			continue // thread root or malformed token
		}
		parentID, found := byToken[parentToken]
		if !found {
			continue // parent outside current scope
		}
		if err := t.store.CreateReplyEdge(ctx, childID, parentID); err != nil {
			t.log.Warn("reply edge creation failed", "child", childID, "parent", parentID, "error", err)
			continue
		}
		linked++
	}
	return linked
}

// ParentToken strips the last reply-hop block. ok is false for thread roots
// and for tokens whose length does not match the root+hops geometry.
func ParentToken(token string) (string, bool) {
	if len(token) <= ThreadRootLen {
		return "", false
	}
	if (len(token)-ThreadRootLen)%ThreadHopLen != 0 {
		return "", false
	}
	return token[:len(token)-ThreadHopLen], true
}
