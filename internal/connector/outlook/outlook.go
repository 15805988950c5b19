// Package outlook implements the mail.outlook source adapter over the
// Microsoft Graph mail API. Mail folders are resources; messages carry
// ordering tokens decoded from their ConversationIndex so the sync engine
// can reconstruct reply threads.
package outlook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/nucleus/ingest-core/internal/source"
)

const (
	graphAPIBase = "https://graph.microsoft.com/v1.0"
	tokenURL     = "https://login.microsoftonline.com/%s/oauth2/v2.0/token"

	messageSelect = "id,subject,changeKey,conversationIndex,receivedDateTime,lastModifiedDateTime,webLink,from,toRecipients,ccRecipients"
)

// Adapter implements source.Adapter for Outlook mailboxes via Graph.
type Adapter struct {
	cfg         *Config
	httpClient  *http.Client
	accessToken string
	tokenExpiry time.Time
	tokenMu     sync.RWMutex
}

var _ source.Adapter = (*Adapter)(nil)

// New creates a new Outlook adapter.
func New(config map[string]any) (*Adapter, error) {
	cfg, err := ParseConfig(config)
	if err != nil {
		return nil, source.WrapError(source.CodeAuthInvalid, false, err)
	}

	return &Adapter{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}, nil
}

// =============================================================================
// ADAPTER INTERFACE
// =============================================================================

// ID returns the connector template ID.
func (a *Adapter) ID() string { return "mail.outlook" }

func (a *Adapter) Capabilities() source.Capabilities {
	return source.Capabilities{
		SupportsDelta:      true, // Graph /delta on mail folders
		SupportsAccessURLs: true, // webLink passthrough
	}
}

// List enumerates one page of messages in a mail folder. The cursor is the
// full @odata.nextLink URL of the previous page.
func (a *Adapter) List(ctx context.Context, resourceKey, cursor string) (*source.Page, error) {
	reqURL := cursor
	if reqURL == "" {
		reqURL = fmt.Sprintf("%s/me/mailFolders/%s/messages?$select=%s&$top=%d",
			graphAPIBase, url.PathEscape(resourceKey), messageSelect, a.cfg.PageSize)
	}

	resp, err := a.fetchPage(ctx, reqURL)
	if err != nil {
		return nil, err
	}

	page := &source.Page{
		NextCursor: resp.NextLink,
		HasMore:    resp.NextLink != "",
	}
	for _, msg := range resp.Value {
		if msg.Removed != nil {
			continue
		}
		page.Items = append(page.Items, toItem(msg))
	}
	return page, nil
}

// ListDelta enumerates changes since deltaToken, which is the full
// @odata.deltaLink (or intermediate @odata.nextLink) URL. An empty token
// starts a fresh delta enumeration.
func (a *Adapter) ListDelta(ctx context.Context, resourceKey, deltaToken string) (*source.DeltaPage, error) {
	reqURL := deltaToken
	if reqURL == "" {
		reqURL = fmt.Sprintf("%s/me/mailFolders/%s/messages/delta?$select=%s",
			graphAPIBase, url.PathEscape(resourceKey), messageSelect)
	}

	resp, err := a.fetchPage(ctx, reqURL)
	if err != nil {
		return nil, err
	}

	page := &source.DeltaPage{}
	for _, msg := range resp.Value {
		if msg.Removed != nil {
			continue
		}
		page.Items = append(page.Items, toItem(msg))
	}

	switch {
	case resp.NextLink != "":
		page.NextDeltaToken = resp.NextLink
		page.HasMore = true
	case resp.DeltaLink != "":
		page.NextDeltaToken = resp.DeltaLink
	}
	return page, nil
}

// GetMetadata fetches a single message by ID.
func (a *Adapter) GetMetadata(ctx context.Context, resourceKey, itemID string) (*source.Item, error) {
	reqURL := fmt.Sprintf("%s/me/messages/%s?$select=%s",
		graphAPIBase, url.PathEscape(itemID), messageSelect)

	body, err := a.graphRequest(ctx, reqURL)
	if err != nil {
		return nil, err
	}

	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, source.WrapError(source.CodeListFailed, false, err)
	}

	item := toItem(msg)
	return &item, nil
}

// GenerateAccessURL returns the message's webLink. Graph issues no presigned
// content URLs for mail, so the deep link stands in; the ttl is ignored.
func (a *Adapter) GenerateAccessURL(ctx context.Context, resourceKey, itemID string, ttl time.Duration) (string, error) {
	item, err := a.GetMetadata(ctx, resourceKey, itemID)
	if err != nil {
		return "", err
	}
	return item.AccessURL, nil
}

// Close releases resources.
func (a *Adapter) Close() error { return nil }

// =============================================================================
// OAUTH TOKEN MANAGEMENT
// =============================================================================

func (a *Adapter) ensureAccessToken(ctx context.Context) error {
	a.tokenMu.RLock()
	if a.accessToken != "" && time.Now().Before(a.tokenExpiry) {
		a.tokenMu.RUnlock()
		return nil
	}
	a.tokenMu.RUnlock()

	a.tokenMu.Lock()
	defer a.tokenMu.Unlock()

	// Double-check after acquiring write lock
	if a.accessToken != "" && time.Now().Before(a.tokenExpiry) {
		return nil
	}

	return a.refreshAccessToken(ctx)
}

func (a *Adapter) refreshAccessToken(ctx context.Context) error {
	tokenEndpoint := fmt.Sprintf(tokenURL, a.cfg.TenantID)

	data := url.Values{}
	data.Set("client_id", a.cfg.ClientID)
	data.Set("grant_type", "refresh_token")
	data.Set("refresh_token", a.cfg.RefreshToken)
	data.Set("scope", "https://graph.microsoft.com/.default offline_access")

	if a.cfg.ClientSecret != "" {
		data.Set("client_secret", a.cfg.ClientSecret)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", tokenEndpoint, strings.NewReader(data.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return source.WrapError(source.CodeEndpointUnreachable, true, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return source.WrapError(source.CodeAuthInvalid, false,
			fmt.Errorf("token refresh failed: %s", string(body)))
	}

	var tokenResp TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return source.WrapError(source.CodeAuthInvalid, false, err)
	}

	a.accessToken = tokenResp.AccessToken
	a.tokenExpiry = time.Now().Add(time.Duration(tokenResp.ExpiresIn-60) * time.Second)

	// Update refresh token if a new one was provided
	if tokenResp.RefreshToken != "" {
		a.cfg.RefreshToken = tokenResp.RefreshToken
	}

	return nil
}

// =============================================================================
// GRAPH API OPERATIONS
// =============================================================================

func (a *Adapter) fetchPage(ctx context.Context, reqURL string) (*ListResponse, error) {
	body, err := a.graphRequest(ctx, reqURL)
	if err != nil {
		return nil, err
	}

	var resp ListResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, source.WrapError(source.CodeListFailed, false, err)
	}
	return &resp, nil
}

func (a *Adapter) graphRequest(ctx context.Context, reqURL string) ([]byte, error) {
	if err := a.ensureAccessToken(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return nil, err
	}

	a.tokenMu.RLock()
	req.Header.Set("Authorization", "Bearer "+a.accessToken)
	a.tokenMu.RUnlock()
	req.Header.Set("Accept", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, source.WrapError(source.CodeEndpointUnreachable, true, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, source.WrapError(source.CodeEndpointUnreachable, true, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, classifyGraphError(resp.StatusCode, body)
	}
	return body, nil
}

func classifyGraphError(status int, body []byte) error {
	err := fmt.Errorf("graph API error %d: %s", status, string(body))
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return source.WrapError(source.CodeAuthInvalid, false, err)
	case http.StatusNotFound:
		return source.WrapError(source.CodeNotFound, false, err)
	case http.StatusTooManyRequests:
		return source.WrapError(source.CodeRateLimited, true, err)
	case http.StatusGone:
		// Delta token no longer honored; caller restarts with an empty token.
		return source.WrapError(source.CodeDeltaExpired, false, err)
	case http.StatusGatewayTimeout, http.StatusRequestTimeout:
		return source.WrapError(source.CodeTimeout, true, err)
	default:
		if status >= 500 {
			return source.WrapError(source.CodeEndpointUnreachable, true, err)
		}
		return source.WrapError(source.CodeListFailed, false, err)
	}
}

// =============================================================================
// ITEM MAPPING
// =============================================================================

func toItem(msg Message) source.Item {
	item := source.Item{
		ExternalID:  msg.ID,
		Name:        msg.Subject,
		AccessURL:   msg.WebLink,
		ContentType: "message/rfc822",
		// ChangeKey rotates on any property change, reads included, so it
		// only rates as a weak signal.
		Fingerprint:     msg.ChangeKey,
		WeakFingerprint: true,
		CreatedAt:       parseGraphTime(msg.ReceivedDateTime),
		ModifiedAt:      parseGraphTime(msg.LastModifiedDateTime),
		OrderingToken:   DecodeOrderingToken(msg.ConversationIndex),
	}
	if item.ModifiedAt.IsZero() {
		item.ModifiedAt = item.CreatedAt
	}

	if msg.From != nil {
		item.Sender = msg.From.EmailAddress.Address
		item.CreatedBy = msg.From.EmailAddress.Address
	}
	for _, r := range msg.ToRecipients {
		if r.EmailAddress.Address != "" {
			item.Recipients = append(item.Recipients, r.EmailAddress.Address)
		}
	}
	for _, r := range msg.CcRecipients {
		if r.EmailAddress.Address != "" {
			item.Recipients = append(item.Recipients, r.EmailAddress.Address)
		}
	}
	return item
}

func parseGraphTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
