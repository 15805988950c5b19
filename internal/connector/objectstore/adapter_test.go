package objectstore

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/nucleus/ingest-core/internal/source"
)

// stubStore serves canned listings lexicographically after startAfter.
type stubStore struct {
	objects []ObjectMeta
	pingErr error
}

func (s *stubStore) Ping(ctx context.Context) error { return s.pingErr }

func (s *stubStore) ListPage(ctx context.Context, bucket, startAfter string, max int) ([]ObjectMeta, bool, error) {
	var metas []ObjectMeta
	hasMore := false
	for _, m := range s.objects {
		if m.Key <= startAfter {
			continue
		}
		if len(metas) >= max {
			hasMore = true
			break
		}
		metas = append(metas, m)
	}
	return metas, hasMore, nil
}

func (s *stubStore) Stat(ctx context.Context, bucket, key string) (*ObjectMeta, error) {
	for _, m := range s.objects {
		if m.Key == key {
			cp := m
			return &cp, nil
		}
	}
	return nil, source.WrapError(source.CodeNotFound, false, fmt.Errorf("no such key: %s", key))
}

func (s *stubStore) PresignGet(ctx context.Context, bucket, key string, ttl time.Duration) (string, error) {
	return "https://s3.example.test/" + bucket + "/" + key + "?signed", nil
}

func newStubAdapter(pageSize int, objects []ObjectMeta) *Adapter {
	return NewWithStore(&Config{PageSize: pageSize}, &stubStore{objects: objects})
}

func TestAdapterList(t *testing.T) {
	ctx := context.Background()
	mod := time.Date(2026, 7, 15, 12, 0, 0, 0, time.UTC)
	objects := []ObjectMeta{
		{Key: "docs/a.pdf", ETag: "etag-a", Size: 10, LastModified: mod},
		{Key: "docs/b.txt", ETag: "etag-b", Size: 20, LastModified: mod},
		{Key: "logs/", ETag: "", Size: 0, LastModified: mod},
		{Key: "readme.md", ETag: "etag-c", Size: 5, LastModified: mod},
	}

	t.Run("paginates with start-after cursors", func(t *testing.T) {
		adapter := newStubAdapter(2, objects)

		page, err := adapter.List(ctx, "bucket", "")
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(page.Items) != 2 || !page.HasMore {
			t.Fatalf("expected 2 items with more, got %d (more=%v)", len(page.Items), page.HasMore)
		}
		if page.NextCursor != "docs/b.txt" {
			t.Fatalf("expected cursor at last key, got %q", page.NextCursor)
		}

		page, err = adapter.List(ctx, "bucket", page.NextCursor)
		if err != nil {
			t.Fatalf("List page 2 failed: %v", err)
		}
		if len(page.Items) != 2 || page.HasMore {
			t.Fatalf("expected final 2 items, got %d (more=%v)", len(page.Items), page.HasMore)
		}
	})

	t.Run("maps object metadata onto items", func(t *testing.T) {
		adapter := newStubAdapter(10, objects)
		page, err := adapter.List(ctx, "bucket", "")
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}

		item := page.Items[0]
		if item.ExternalID != "bucket/docs/a.pdf" {
			t.Fatalf("unexpected external id: %s", item.ExternalID)
		}
		if item.Name != "a.pdf" || item.Path != "docs/a.pdf" {
			t.Fatalf("unexpected name/path: %s %s", item.Name, item.Path)
		}
		if item.Fingerprint != "etag-a" || item.WeakFingerprint {
			t.Fatalf("plain etag must be a strong fingerprint: %+v", item)
		}
		if item.ContentType != "application/pdf" {
			t.Fatalf("expected mime fallback, got %q", item.ContentType)
		}
		if !item.ModifiedAt.Equal(mod) {
			t.Fatalf("unexpected modified time: %v", item.ModifiedAt)
		}
	})

	t.Run("only multipart etags are weak fingerprints", func(t *testing.T) {
		cases := []struct {
			etag string
			weak bool
		}{
			{"abc123-17", true},
			{"d41d8cd98f00b204e9800998ecf8427e", false},
			{"etag-a", false}, // dash followed by non-digits is not a part count
			{"abc123-", false},
		}
		for _, tc := range cases {
			adapter := newStubAdapter(10, []ObjectMeta{
				{Key: "big.bin", ETag: tc.etag, Size: 1 << 30, LastModified: mod},
			})
			page, err := adapter.List(ctx, "bucket", "")
			if err != nil {
				t.Fatalf("List failed for %q: %v", tc.etag, err)
			}
			if page.Items[0].WeakFingerprint != tc.weak {
				t.Fatalf("etag %q: expected weak=%v", tc.etag, tc.weak)
			}
		}
	})

	t.Run("trailing slash keys are containers", func(t *testing.T) {
		adapter := newStubAdapter(10, objects)
		page, _ := adapter.List(ctx, "bucket", "")
		for _, item := range page.Items {
			want := item.Path == "logs/"
			if item.IsContainer != want {
				t.Fatalf("container mismatch for %q: %v", item.Path, item.IsContainer)
			}
		}
	})
}

func TestAdapterMetadataAndURL(t *testing.T) {
	ctx := context.Background()
	objects := []ObjectMeta{
		{Key: "docs/a.pdf", ETag: "etag-a", Size: 10, Creator: "alice@example.com"},
	}
	adapter := newStubAdapter(10, objects)

	t.Run("metadata resolves by external id", func(t *testing.T) {
		item, err := adapter.GetMetadata(ctx, "bucket", "bucket/docs/a.pdf")
		if err != nil {
			t.Fatalf("GetMetadata failed: %v", err)
		}
		if item.CreatedBy != "alice@example.com" {
			t.Fatalf("expected creator metadata, got %q", item.CreatedBy)
		}
	})

	t.Run("missing key returns a coded not-found", func(t *testing.T) {
		_, err := adapter.GetMetadata(ctx, "bucket", "bucket/ghost.pdf")
		if !source.IsNotFound(err) {
			t.Fatalf("expected not-found, got %v", err)
		}
	})

	t.Run("access url is presigned per item", func(t *testing.T) {
		u, err := adapter.GenerateAccessURL(ctx, "bucket", "bucket/docs/a.pdf", time.Hour)
		if err != nil {
			t.Fatalf("GenerateAccessURL failed: %v", err)
		}
		if u != "https://s3.example.test/bucket/docs/a.pdf?signed" {
			t.Fatalf("unexpected url: %s", u)
		}
	})

	t.Run("delta listing is unsupported", func(t *testing.T) {
		if _, err := adapter.ListDelta(ctx, "bucket", ""); err == nil {
			t.Fatal("expected delta listing to fail")
		}
		if adapter.Capabilities().SupportsDelta {
			t.Fatal("object.s3 must not report delta support")
		}
	})
}

func TestConnect(t *testing.T) {
	ctx := context.Background()

	t.Run("verifies the endpoint before use", func(t *testing.T) {
		pingErr := source.WrapError(source.CodeAuthInvalid, false, fmt.Errorf("bad credentials"))
		_, err := connect(ctx, &Config{PageSize: 10}, &stubStore{pingErr: pingErr})
		var se *source.Error
		if !errors.As(err, &se) || se.Code != source.CodeAuthInvalid {
			t.Fatalf("expected the ping failure to surface, got %v", err)
		}
	})

	t.Run("reachable endpoint yields a working adapter", func(t *testing.T) {
		adapter, err := connect(ctx, &Config{PageSize: 10}, &stubStore{})
		if err != nil {
			t.Fatalf("connect failed: %v", err)
		}
		if _, err := adapter.List(ctx, "bucket", ""); err != nil {
			t.Fatalf("List failed: %v", err)
		}
	})
}

func TestParseConfig(t *testing.T) {
	cfg := ParseConfig(map[string]any{
		"endpointUrl":     " https://s3.example.test ",
		"accessKeyId":     "key",
		"secretAccessKey": "secret",
		"useSSL":          "true",
		"pageSize":        float64(250),
	})
	if cfg.EndpointURL != "https://s3.example.test" {
		t.Fatalf("unexpected endpoint: %q", cfg.EndpointURL)
	}
	if !cfg.UseSSL || cfg.PageSize != 250 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	missing := ParseConfig(map[string]any{"endpointUrl": "https://s3.example.test"})
	if err := missing.Validate(); err == nil {
		t.Fatal("expected validation failure without credentials")
	}
}
