package graph

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store used by tests and local runs. It keeps
// the same commit semantics as the Postgres store: BatchUpsert is atomic,
// parent edges are replaced wholesale, permissions are recomputed.
type MemoryStore struct {
	mu sync.Mutex

	records map[string]*Record              // by internal id
	byExt   map[string]string               // connector|external -> id
	perms   map[string][]Permission         // by record id
	parents map[string]string               // child id -> parent id
	replies map[string]string               // child id -> parent id
	groups  map[string]*RecordGroup         // connector|external -> group
	users   map[string]*User                // by id
	byEmail map[string]*User                // by lowercased email

	// FailBatches makes the next n BatchUpsert calls fail with the given
	// code, for exercising retry and watermark-safety paths.
	FailBatches  int
	FailCode     string
	BatchCommits int
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*Record),
		byExt:   make(map[string]string),
		perms:   make(map[string][]Permission),
		parents: make(map[string]string),
		replies: make(map[string]string),
		groups:  make(map[string]*RecordGroup),
		users:   make(map[string]*User),
		byEmail: make(map[string]*User),
	}
}

func extKey(connectorID, externalID string) string { return connectorID + "|" + externalID }

func (m *MemoryStore) GetRecordByExternalID(ctx context.Context, connectorID, externalID string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.byExt[extKey(connectorID, externalID)]; ok {
		cp := *m.records[id]
		return &cp, nil
	}
	return nil, nil
}

func (m *MemoryStore) GetRecordByFingerprint(ctx context.Context, connectorID, fingerprint string) (*Record, error) {
	if fingerprint == "" {
		return nil, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var found *Record
	for _, r := range m.records {
		if r.ConnectorID == connectorID && r.Fingerprint == fingerprint {
			if found == nil || r.UpdatedAt.After(found.UpdatedAt) {
				found = r
			}
		}
	}
	if found == nil {
		return nil, nil
	}
	cp := *found
	return &cp, nil
}

func (m *MemoryStore) DeleteParentEdges(ctx context.Context, recordID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.parents, recordID)
	return nil
}

func (m *MemoryStore) BatchUpsert(ctx context.Context, upserts []Upsert) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailBatches > 0 {
		m.FailBatches--
		code := m.FailCode
		if code == "" {
			code = CodeContention
		}
		return WrapError(code, nil)
	}

	now := time.Now().UTC()
	for i := range upserts {
		r := upserts[i].Record
		key := extKey(r.ConnectorID, r.ExternalID)
		if prev, ok := m.byExt[key]; ok && prev != r.ID {
			// The external id must map to exactly one record; replacing the
			// internal id here would break identity stability.
			delete(m.records, prev)
		}
		if existing, ok := m.records[r.ID]; ok {
			r.CreatedAt = existing.CreatedAt
			// A moved record may arrive under a new external id; drop the
			// stale identity mapping.
			delete(m.byExt, extKey(existing.ConnectorID, existing.ExternalID))
		} else {
			r.CreatedAt = now
		}
		r.UpdatedAt = now
		m.records[r.ID] = &r
		m.byExt[key] = r.ID

		if r.ParentID != "" {
			m.parents[r.ID] = r.ParentID
		} else {
			delete(m.parents, r.ID)
		}
		m.perms[r.ID] = append([]Permission(nil), upserts[i].Permissions...)
	}
	m.BatchCommits++
	return nil
}

func (m *MemoryStore) CreateReplyEdge(ctx context.Context, childID, parentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replies[childID] = parentID
	return nil
}

func (m *MemoryStore) EnsureGroup(ctx context.Context, group RecordGroup) (*RecordGroup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := extKey(group.ConnectorID, group.ExternalID)
	if existing, ok := m.groups[key]; ok {
		existing.Name = group.Name
		existing.ResourceType = group.ResourceType
		cp := *existing
		return &cp, nil
	}
	if group.ID == "" {
		group.ID = uuid.NewString()
	}
	m.groups[key] = &group
	cp := group
	return &cp, nil
}

func (m *MemoryStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.byEmail[lower(email)]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

func (m *MemoryStore) GetUserByID(ctx context.Context, id string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

// AddUser seeds an identity, for tests and local runs.
func (m *MemoryStore) AddUser(u User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	m.users[u.ID] = &u
	m.byEmail[lower(u.Email)] = &u
}

// ParentOf returns the internal parent id of a record, "" when unlinked.
func (m *MemoryStore) ParentOf(recordID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.parents[recordID]
}

// ReplyParentOf returns the thread parent of a mail record, "" when unlinked.
func (m *MemoryStore) ReplyParentOf(recordID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.replies[recordID]
}

// PermissionsOf returns the current grants on a record.
func (m *MemoryStore) PermissionsOf(recordID string) []Permission {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Permission(nil), m.perms[recordID]...)
}

// RecordCount returns the number of persisted records.
func (m *MemoryStore) RecordCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

var _ Store = (*MemoryStore)(nil)

func lower(s string) string { return strings.ToLower(s) }
