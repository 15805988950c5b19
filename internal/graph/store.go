package graph

import "context"

// Store is the transactional target the sync engine commits into. Lookups
// return (nil, nil) on a clean miss; errors are tagged (Contention | Fatal |
// NotFound). BatchUpsert is the sole multi-item atomic boundary: all records
// and their permissions in one call commit or fail together.
type Store interface {
	GetRecordByExternalID(ctx context.Context, connectorID, externalID string) (*Record, error)
	GetRecordByFingerprint(ctx context.Context, connectorID, fingerprint string) (*Record, error)

	// DeleteParentEdges removes the record's parent linkage prior to a move
	// relink. Removing edges of a record that has none is a no-op.
	DeleteParentEdges(ctx context.Context, recordID string) error

	// BatchUpsert commits records with their recomputed permission sets as
	// one unit, in slice order (parents must precede children).
	BatchUpsert(ctx context.Context, upserts []Upsert) error

	// CreateReplyEdge links a mail record to its thread parent. Post-hoc and
	// additive; re-creating an existing edge is a no-op.
	CreateReplyEdge(ctx context.Context, childID, parentID string) error

	// EnsureGroup upserts a record group and returns it with ID populated.
	EnsureGroup(ctx context.Context, group RecordGroup) (*RecordGroup, error)

	GetUserByEmail(ctx context.Context, email string) (*User, error)
	GetUserByID(ctx context.Context, id string) (*User, error)
}
