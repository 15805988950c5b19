package outlook

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nucleus/ingest-core/internal/source"
)

func newTestAdapter(client *http.Client) *Adapter {
	return &Adapter{
		cfg:         &Config{ClientID: "cid", RefreshToken: "rt", TenantID: "common", PageSize: 50},
		httpClient:  client,
		accessToken: "test-token",
		tokenExpiry: time.Now().Add(time.Hour),
	}
}

const messageValues = `[
  {
    "id": "msg-1",
    "subject": "Quarterly report",
    "changeKey": "CQAAABYA",
    "conversationIndex": "AQHcAAECAwQFBgcICQoLDA0ODxAREhMUFQ==",
    "receivedDateTime": "2026-08-01T10:00:00Z",
    "lastModifiedDateTime": "2026-08-01T10:05:00Z",
    "webLink": "https://outlook.example.test/msg-1",
    "from": {"emailAddress": {"name": "Bob", "address": "bob@example.com"}},
    "toRecipients": [{"emailAddress": {"address": "owner@example.com"}}],
    "ccRecipients": [{"emailAddress": {"address": "carol@example.com"}}]
  },
  {"id": "msg-gone", "@removed": {"reason": "deleted"}}
]`

func TestAdapterListDelta(t *testing.T) {
	ctx := context.Background()

	t.Run("maps messages and carries the delta link forward", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer test-token" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"value": ` + messageValues +
				`, "@odata.deltaLink": "http://` + r.Host + `/delta?token=next"}`))
		}))
		defer ts.Close()

		adapter := newTestAdapter(ts.Client())
		page, err := adapter.ListDelta(ctx, "inbox", ts.URL+"/delta")
		if err != nil {
			t.Fatalf("ListDelta failed: %v", err)
		}
		if page.HasMore {
			t.Fatal("delta link means enumeration is complete")
		}
		if page.NextDeltaToken != ts.URL+"/delta?token=next" {
			t.Fatalf("unexpected delta token: %s", page.NextDeltaToken)
		}

		// The @removed tombstone is dropped from the page.
		if len(page.Items) != 1 {
			t.Fatalf("expected 1 item, got %d", len(page.Items))
		}
		item := page.Items[0]
		if item.ExternalID != "msg-1" || item.Name != "Quarterly report" {
			t.Fatalf("unexpected item identity: %+v", item)
		}
		if item.Fingerprint != "CQAAABYA" || !item.WeakFingerprint {
			t.Fatal("change key must be a weak fingerprint")
		}
		if item.ContentType != "message/rfc822" {
			t.Fatalf("unexpected content type: %s", item.ContentType)
		}
		if item.Sender != "bob@example.com" || item.CreatedBy != "bob@example.com" {
			t.Fatalf("unexpected sender: %s", item.Sender)
		}
		if len(item.Recipients) != 2 {
			t.Fatalf("expected to+cc recipients, got %v", item.Recipients)
		}
		if item.AccessURL != "https://outlook.example.test/msg-1" {
			t.Fatalf("unexpected web link: %s", item.AccessURL)
		}
		if item.OrderingToken == "" {
			t.Fatal("conversation index must decode to an ordering token")
		}
		want := time.Date(2026, 8, 1, 10, 5, 0, 0, time.UTC)
		if !item.ModifiedAt.Equal(want) {
			t.Fatalf("unexpected modified time: %v", item.ModifiedAt)
		}
	})

	t.Run("http 410 surfaces as expired delta token", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusGone)
		}))
		defer ts.Close()

		adapter := newTestAdapter(ts.Client())
		_, err := adapter.ListDelta(ctx, "inbox", ts.URL+"/delta?token=stale")
		if !source.IsDeltaExpired(err) {
			t.Fatalf("expected delta-expired, got %v", err)
		}
	})
}

func TestAdapterList(t *testing.T) {
	ctx := context.Background()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/page1":
			w.Write([]byte(`{"value": [{"id": "msg-1", "subject": "a"}], "@odata.nextLink": "` +
				"http://" + r.Host + `/page2"}`))
		default:
			w.Write([]byte(`{"value": [{"id": "msg-2", "subject": "b"}]}`))
		}
	}))
	defer ts.Close()

	adapter := newTestAdapter(ts.Client())

	page, err := adapter.List(ctx, "inbox", ts.URL+"/page1")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if !page.HasMore || page.NextCursor != ts.URL+"/page2" {
		t.Fatalf("expected next-link cursor, got %q (more=%v)", page.NextCursor, page.HasMore)
	}

	page, err = adapter.List(ctx, "inbox", page.NextCursor)
	if err != nil {
		t.Fatalf("List page 2 failed: %v", err)
	}
	if page.HasMore || len(page.Items) != 1 || page.Items[0].ExternalID != "msg-2" {
		t.Fatalf("unexpected final page: %+v", page)
	}
}

func TestClassifyGraphError(t *testing.T) {
	cases := []struct {
		status int
		code   string
	}{
		{http.StatusUnauthorized, source.CodeAuthInvalid},
		{http.StatusForbidden, source.CodeAuthInvalid},
		{http.StatusNotFound, source.CodeNotFound},
		{http.StatusTooManyRequests, source.CodeRateLimited},
		{http.StatusGone, source.CodeDeltaExpired},
		{http.StatusGatewayTimeout, source.CodeTimeout},
		{http.StatusBadGateway, source.CodeEndpointUnreachable},
		{http.StatusBadRequest, source.CodeListFailed},
	}
	for _, tc := range cases {
		err := classifyGraphError(tc.status, nil)
		se, ok := err.(*source.Error)
		if !ok {
			t.Fatalf("status %d: expected coded error, got %T", tc.status, err)
		}
		if se.Code != tc.code {
			t.Fatalf("status %d: expected %s, got %s", tc.status, tc.code, se.Code)
		}
	}
}
