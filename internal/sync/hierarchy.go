package sync

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nucleus/ingest-core/internal/graph"
)

// Synthesizer derives implicit folder placeholders from flat key namespaces.
// For "a/b/c/file.txt" it ensures placeholder records for "a", "a/b" and
// "a/b/c", each parented on the previous segment, committed strictly
// root-to-leaf so a child never references a missing parent even under
// partial failure. Placeholder external ids are deterministic
// (<group external id>/<segment path>), which with the existence probe makes
// reruns idempotent.
type Synthesizer struct {
	store graph.Store
	log   *slog.Logger

	// ensured caches segment path -> record id for the lifetime of one
	// resource run.
	ensured map[string]string
}

// NewSynthesizer creates a per-resource-run hierarchy synthesizer.
func NewSynthesizer(store graph.Store, log *slog.Logger) *Synthesizer {
	return &Synthesizer{
		store:   store,
		log:     log,
		ensured: make(map[string]string),
	}
}

// Ensure upserts the ancestor chain for key and returns the external and
// internal ids of the item's direct parent ("" when the key has no folder
// components).
func (s *Synthesizer) Ensure(ctx context.Context, connectorID string, group *graph.RecordGroup, key string) (parentExternalID, parentID string, err error) {
	return s.ensureSegments(ctx, connectorID, group, AncestorSegments(key))
}

// EnsurePath ensures placeholders for dirPath itself and all its ancestors,
// for sources that report explicit container entries (zero-byte "a/b/" keys).
func (s *Synthesizer) EnsurePath(ctx context.Context, connectorID string, group *graph.RecordGroup, dirPath string) (externalID, id string, err error) {
	dirPath = strings.Trim(dirPath, "/")
	if dirPath == "" {
		return "", "", nil
	}
	segments := append(AncestorSegments(dirPath), dirPath)
	return s.ensureSegments(ctx, connectorID, group, segments)
}

func (s *Synthesizer) ensureSegments(ctx context.Context, connectorID string, group *graph.RecordGroup, segments []string) (string, string, error) {
	if len(segments) == 0 {
		return "", "", nil
	}

	prevExt, prevID := "", ""
	for _, seg := range segments {
		extID := group.ExternalID + "/" + seg
		if id, ok := s.ensured[extID]; ok {
			prevExt, prevID = extID, id
			continue
		}

		existing, err := s.store.GetRecordByExternalID(ctx, connectorID, extID)
		if err != nil {
			return "", "", err
		}
		if existing != nil {
			s.ensured[extID] = existing.ID
			prevExt, prevID = extID, existing.ID
			continue
		}

		placeholder := graph.Record{
			ID:               uuid.NewString(),
			ConnectorID:      connectorID,
			ExternalID:       extID,
			Name:             baseName(seg),
			Path:             seg,
			IsContainer:      true,
			Version:          0,
			GroupID:          group.ID,
			ParentExternalID: prevExt,
			ParentID:         prevID,
			SourceModifiedAt: time.Time{},
		}
		// Committed one at a time, parent before child.
		if err := s.store.BatchUpsert(ctx, []graph.Upsert{{
			Record:      placeholder,
			Permissions: []graph.Permission{{Kind: graph.GrantOrg, Role: graph.RoleRead}},
		}}); err != nil {
			return "", "", err
		}
		s.log.Debug("synthesized folder placeholder", "connector", connectorID, "path", seg)
		s.ensured[extID] = placeholder.ID
		prevExt, prevID = extID, placeholder.ID
	}
	return prevExt, prevID, nil
}

// AncestorSegments returns the ordered implicit folder paths for a flat key:
// "a/b/c/file.txt" -> ["a", "a/b", "a/b/c"].
func AncestorSegments(key string) []string {
	key = strings.Trim(key, "/")
	parts := strings.Split(key, "/")
	if len(parts) <= 1 {
		return nil
	}
	segments := make([]string, 0, len(parts)-1)
	for i := 1; i < len(parts); i++ {
		segments = append(segments, strings.Join(parts[:i], "/"))
	}
	return segments
}

func baseName(path string) string {
	if idx := strings.LastIndex(path, "/"); idx >= 0 {
		return path[idx+1:]
	}
	return path
}
