// Package source defines the adapter contract every connector implements:
// paginated listing, optional delta listing, item metadata, and short-lived
// access URL generation. The sync engine consumes adapters only through
// these interfaces.
package source

import (
	"context"
	"time"
)

// Item is a source-reported listing or metadata entry before it is mapped
// into a graph record. Items are ephemeral; nothing here is persisted as-is.
type Item struct {
	ExternalID  string
	Name        string
	Path        string // flat key within the resource, "" for mail
	ContentType string
	Size        int64
	IsContainer bool

	// Fingerprint is the strongest content-stability signal the adapter can
	// offer. Weak marks signals that also change on metadata-only edits
	// (multipart ETags, mail change keys).
	Fingerprint     string
	WeakFingerprint bool

	CreatedAt  time.Time
	ModifiedAt time.Time

	// CreatedBy is the creator identity hint (an email address when the
	// source exposes one).
	CreatedBy string

	// AccessURL is a source-provided deep link reported with the listing,
	// when the source has one that needs no signing (mail web links).
	AccessURL string

	// Mail-only fields.
	OrderingToken string // hex thread token, see sync.Reconstructor
	Sender        string
	Recipients    []string
}

// Page is one unit of cursor-paginated enumeration.
type Page struct {
	Items      []Item
	NextCursor string
	HasMore    bool
}

// DeltaPage is one unit of delta enumeration. While HasMore is true,
// NextDeltaToken continues the current enumeration; once false, it is the
// token to persist for the next run.
type DeltaPage struct {
	Items          []Item
	NextDeltaToken string
	HasMore        bool
}

// Capabilities describes what a given adapter supports.
type Capabilities struct {
	SupportsDelta      bool
	SupportsAccessURLs bool
}

// Adapter is the per-source listing/metadata/URL-generation surface.
// Implementations live under internal/connector and register themselves
// with the default registry at init time.
type Adapter interface {
	// ID returns the connector template ID, e.g. "object.s3".
	ID() string

	Capabilities() Capabilities

	// List enumerates one page of items for a resource (bucket, mailbox).
	// An empty cursor starts from the beginning.
	List(ctx context.Context, resourceKey, cursor string) (*Page, error)

	// ListDelta enumerates changes since deltaToken. An empty token performs
	// the initial full enumeration. Only valid when Capabilities reports
	// SupportsDelta.
	ListDelta(ctx context.Context, resourceKey, deltaToken string) (*DeltaPage, error)

	// GetMetadata fetches a single item by ID. Returns a coded not-found
	// error when the item does not exist.
	GetMetadata(ctx context.Context, resourceKey, itemID string) (*Item, error)

	// GenerateAccessURL returns a short-lived URL for the item's content.
	GenerateAccessURL(ctx context.Context, resourceKey, itemID string, ttl time.Duration) (string, error)

	// Close releases adapter resources.
	Close() error
}
