// Package graph holds the record/permission model and the target store
// contract the sync engine commits into.
package graph

import "time"

// Grant kinds and roles. Permissions are recomputed on every sync, not
// incrementally patched.
const (
	GrantOrg  = "org"  // organization-wide grant
	GrantUser = "user" // identity-scoped grant

	RoleOwner = "OWNER"
	RoleRead  = "READ"
)

// Resource record types.
const (
	TypeFile    = "file"
	TypeMessage = "message"
)

// Record is a persisted graph node for one external item. Invariant: exactly
// one Record per (ConnectorID, ExternalID); Version is 0 at creation and
// increases by exactly 1 per detected change.
type Record struct {
	ID          string // internal id, stable, assigned once
	ConnectorID string
	ExternalID  string

	Name        string
	Path        string // flat source key, "" for mail
	ContentType string
	Size        int64
	IsContainer bool

	Fingerprint string
	Version     int64

	GroupID          string // owning RecordGroup
	ParentExternalID string
	ParentID         string // resolved internal parent, may lag ParentExternalID

	AccessURL string // short-lived content URL, informational

	SourceCreatedAt  time.Time
	SourceModifiedAt time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Permission is a single grant on a record.
type Permission struct {
	Kind   string // GrantOrg | GrantUser
	Role   string // RoleOwner | RoleRead
	UserID string // set when Kind == GrantUser
}

// RecordGroup is a top-level container (bucket, mailbox) whose permissions
// apply to descendants unless overridden.
type RecordGroup struct {
	ID           string
	ConnectorID  string
	ExternalID   string
	Name         string
	ResourceType string // TypeFile | TypeMessage
}

// Upsert pairs a record with its recomputed permission set for one commit.
type Upsert struct {
	Record      Record
	Permissions []Permission
}

// User is a resolved platform identity.
type User struct {
	ID    string
	Email string
	Name  string
}
