// Package objectstore implements the object.s3 source adapter over any
// S3-compatible endpoint. Buckets are resources; object keys form the flat
// namespace the sync engine synthesizes folders from.
package objectstore

import (
	"context"
	"fmt"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/nucleus/ingest-core/internal/source"
)

// Adapter implements source.Adapter for S3-compatible object stores.
type Adapter struct {
	cfg   *Config
	store ObjectStore
}

var _ source.Adapter = (*Adapter)(nil)

// New creates the adapter with a real S3 client and verifies the endpoint is
// reachable with the given credentials before any listing starts.
func New(ctx context.Context, config map[string]any) (*Adapter, error) {
	cfg := ParseConfig(config)
	client, err := NewS3Client(cfg)
	if err != nil {
		return nil, err
	}
	return connect(ctx, cfg, client)
}

func connect(ctx context.Context, cfg *Config, store ObjectStore) (*Adapter, error) {
	if err := store.Ping(ctx); err != nil {
		return nil, err
	}
	return &Adapter{cfg: cfg, store: store}, nil
}

// NewWithStore creates the adapter over an injected store, for tests.
func NewWithStore(cfg *Config, store ObjectStore) *Adapter {
	if cfg == nil {
		cfg = &Config{PageSize: defaultPageSize}
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}
	return &Adapter{cfg: cfg, store: store}
}

// ID returns the connector template ID.
func (a *Adapter) ID() string { return "object.s3" }

func (a *Adapter) Capabilities() source.Capabilities {
	return source.Capabilities{
		SupportsDelta:      false, // S3 listing has no change feed
		SupportsAccessURLs: true,
	}
}

// List enumerates one lexicographic page of a bucket. The cursor is the last
// key of the previous page (StartAfter semantics).
func (a *Adapter) List(ctx context.Context, resourceKey, cursor string) (*source.Page, error) {
	metas, hasMore, err := a.store.ListPage(ctx, resourceKey, cursor, a.cfg.PageSize)
	if err != nil {
		return nil, err
	}

	page := &source.Page{HasMore: hasMore}
	for _, m := range metas {
		page.Items = append(page.Items, a.toItem(resourceKey, m))
	}
	if hasMore && len(metas) > 0 {
		page.NextCursor = metas[len(metas)-1].Key
	}
	return page, nil
}

// ListDelta is unsupported; S3-compatible stores expose no delta feed.
func (a *Adapter) ListDelta(ctx context.Context, resourceKey, deltaToken string) (*source.DeltaPage, error) {
	return nil, source.WrapError(source.CodeListFailed, false,
		fmt.Errorf("object.s3 does not support delta listing"))
}

func (a *Adapter) GetMetadata(ctx context.Context, resourceKey, itemID string) (*source.Item, error) {
	key := strings.TrimPrefix(itemID, resourceKey+"/")
	meta, err := a.store.Stat(ctx, resourceKey, key)
	if err != nil {
		return nil, err
	}
	item := a.toItem(resourceKey, *meta)
	item.CreatedBy = meta.Creator
	return &item, nil
}

func (a *Adapter) GenerateAccessURL(ctx context.Context, resourceKey, itemID string, ttl time.Duration) (string, error) {
	key := strings.TrimPrefix(itemID, resourceKey+"/")
	return a.store.PresignGet(ctx, resourceKey, key, ttl)
}

func (a *Adapter) Close() error { return nil }

func (a *Adapter) toItem(bucket string, m ObjectMeta) source.Item {
	contentType := m.ContentType
	if contentType == "" {
		contentType = mime.TypeByExtension(filepath.Ext(m.Key))
	}
	return source.Item{
		ExternalID:      bucket + "/" + m.Key,
		Name:            baseName(m.Key),
		Path:            m.Key,
		ContentType:     contentType,
		Size:            m.Size,
		IsContainer:     strings.HasSuffix(m.Key, "/"),
		Fingerprint:     m.ETag,
		WeakFingerprint: multipartETag(m.ETag),
		CreatedAt:       m.LastModified,
		ModifiedAt:      m.LastModified,
	}
}

// multipartETag reports the aggregated "<md5hex>-<partcount>" form. Those are
// not content hashes and change when the upload chunking changes, so they
// only rate as weak fingerprints.
func multipartETag(etag string) bool {
	idx := strings.LastIndex(etag, "-")
	if idx < 0 || idx == len(etag)-1 {
		return false
	}
	for _, r := range etag[idx+1:] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func baseName(key string) string {
	key = strings.TrimSuffix(key, "/")
	if idx := strings.LastIndex(key, "/"); idx >= 0 {
		return key[idx+1:]
	}
	return key
}
