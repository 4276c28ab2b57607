// Package backend is the HTTP client for the local Think Box agent service.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.aimuz.me/thinkbox/cache"
	"go.aimuz.me/thinkbox/internal/types"
)

// SessionHeader carries the per-install session id on every request.
const SessionHeader = "X-Session-Id"

const (
	defaultTimeout = 30 * time.Second
	registryTTL    = 5 * time.Minute
	thumbnailTTL   = 30 * time.Minute
	registryKey    = "settings/registry"
)

// APIError is a non-2xx answer from the backend.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: %d - %s", e.Status, e.Body)
}

// Options configures a Client.
type Options struct {
	// HTTP is used for request/response calls. Defaults to a client with
	// a 30s timeout.
	HTTP *http.Client
	// Stream is used for the event stream, which has no overall deadline.
	Stream *http.Client
	// Cache, when set, holds the settings registry and capture thumbnails.
	Cache *cache.Cache
}

// Client talks to the backend REST API.
type Client struct {
	http      *http.Client
	stream    *http.Client
	cache     *cache.Cache
	baseURL   string
	sessionID string
}

// New creates a client for baseURL (e.g. http://127.0.0.1:8000/api/v1).
func New(baseURL, sessionID string, opts Options) *Client {
	c := &Client{
		http:      opts.HTTP,
		stream:    opts.Stream,
		cache:     opts.Cache,
		baseURL:   strings.TrimRight(baseURL, "/"),
		sessionID: sessionID,
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: defaultTimeout}
	}
	if c.stream == nil {
		c.stream = &http.Client{}
	}
	return c
}

// ─────────────────────────────────────────────────────────────────────────────
// Settings
// ─────────────────────────────────────────────────────────────────────────────

// OverlaySettings returns the overlay keys of the settings bag, with
// defaults for any key the backend does not send.
func (c *Client) OverlaySettings(ctx context.Context) (types.OverlaySettings, error) {
	s := types.DefaultOverlaySettings()
	if err := c.do(ctx, http.MethodGet, "/settings", nil, &s); err != nil {
		return types.DefaultOverlaySettings(), fmt.Errorf("get settings: %w", err)
	}
	return s, nil
}

// UpdateSettings applies a partial update and returns the new bag.
func (c *Client) UpdateSettings(ctx context.Context, patch map[string]any) (map[string]any, error) {
	var out map[string]any
	if err := c.do(ctx, http.MethodPatch, "/settings", patch, &out); err != nil {
		return nil, fmt.Errorf("update settings: %w", err)
	}
	return out, nil
}

// SettingsRegistry describes every known settings key. Results are cached;
// refresh drops the cached copy first.
func (c *Client) SettingsRegistry(ctx context.Context, refresh bool) ([]types.SettingsEntry, error) {
	var entries []types.SettingsEntry
	if c.cache != nil {
		if refresh {
			if err := c.cache.Delete(registryKey); err != nil {
				slog.Warn("drop cached settings registry", "error", err)
			}
		} else if c.cache.Get(registryKey, &entries) {
			return entries, nil
		}
	}

	if err := c.do(ctx, http.MethodGet, "/settings/registry", nil, &entries); err != nil {
		return nil, fmt.Errorf("get settings registry: %w", err)
	}

	if c.cache != nil {
		if err := c.cache.Set(registryKey, entries, registryTTL); err != nil {
			slog.Warn("cache settings registry", "error", err)
		}
	}
	return entries, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Permissions
// ─────────────────────────────────────────────────────────────────────────────

// CheckPermission asks whether perm is currently granted for this session.
func (c *Client) CheckPermission(ctx context.Context, perm types.Permission) (types.PermissionCheck, error) {
	var out types.PermissionCheck
	body := map[string]any{"permission": perm}
	if err := c.do(ctx, http.MethodPost, "/permissions/check", body, &out); err != nil {
		return types.PermissionCheck{}, fmt.Errorf("check permission: %w", err)
	}
	return out, nil
}

// GrantPermission stores a grant with the given scope.
func (c *Client) GrantPermission(ctx context.Context, perm types.Permission, scope types.Scope) (types.PermissionGrant, error) {
	var out types.PermissionGrant
	body := map[string]any{"permission": perm, "scope": scope}
	if err := c.do(ctx, http.MethodPost, "/permissions/grant", body, &out); err != nil {
		return types.PermissionGrant{}, fmt.Errorf("grant permission: %w", err)
	}
	return out, nil
}

// RevokePermission drops any grant of perm for this session.
func (c *Client) RevokePermission(ctx context.Context, perm types.Permission) error {
	if err := c.do(ctx, http.MethodPost, "/permissions/revoke/"+url.PathEscape(string(perm)), nil, nil); err != nil {
		return fmt.Errorf("revoke permission: %w", err)
	}
	return nil
}

// Grants lists the grants visible to this session.
func (c *Client) Grants(ctx context.Context) ([]types.PermissionGrant, error) {
	var out []types.PermissionGrant
	if err := c.do(ctx, http.MethodGet, "/permissions/grants", nil, &out); err != nil {
		return nil, fmt.Errorf("list grants: %w", err)
	}
	return out, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Think Box
// ─────────────────────────────────────────────────────────────────────────────

// SubmitMessage starts a run and returns its id.
func (c *Client) SubmitMessage(ctx context.Context, req types.MessageRequest) (string, error) {
	var out struct {
		RunID string `json:"run_id"`
	}
	if err := c.do(ctx, http.MethodPost, "/thinkbox/message", req, &out); err != nil {
		return "", fmt.Errorf("submit message: %w", err)
	}
	if out.RunID == "" {
		return "", fmt.Errorf("submit message: empty run id")
	}
	return out.RunID, nil
}

// OpenStream opens the event stream for runID. The caller closes the body.
func (c *Client) OpenStream(ctx context.Context, runID string) (io.ReadCloser, error) {
	q := url.Values{"run_id": {runID}}
	req, err := c.newRequest(ctx, http.MethodGet, "/thinkbox/stream?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.stream.Do(req)
	if err != nil {
		return nil, fmt.Errorf("open stream: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("open stream: %w", &APIError{Status: resp.StatusCode, Body: string(body)})
	}
	return resp.Body, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Screen and clipboard
// ─────────────────────────────────────────────────────────────────────────────

// Capture stores a screen capture on the backend.
func (c *Client) Capture(ctx context.Context, req types.CaptureRequest) (types.CaptureResult, error) {
	var out types.CaptureResult
	if err := c.do(ctx, http.MethodPost, "/screen/capture", req, &out); err != nil {
		return types.CaptureResult{}, fmt.Errorf("capture screen: %w", err)
	}

	if c.cache != nil && out.CaptureID != "" && out.ThumbnailDataURL != "" {
		if err := c.cache.Set(thumbnailKey(out.CaptureID), out.ThumbnailDataURL, thumbnailTTL); err != nil {
			slog.Warn("cache thumbnail", "capture_id", out.CaptureID, "error", err)
		}
	}
	return out, nil
}

// Thumbnail returns a recently stored capture thumbnail.
func (c *Client) Thumbnail(captureID string) (string, bool) {
	if c.cache == nil {
		return "", false
	}
	var s string
	ok := c.cache.Get(thumbnailKey(captureID), &s)
	return s, ok
}

// ReadClipboard returns the clipboard text as seen by the backend.
func (c *Client) ReadClipboard(ctx context.Context) (string, error) {
	var out struct {
		Text string `json:"text"`
	}
	if err := c.do(ctx, http.MethodPost, "/clipboard/read", nil, &out); err != nil {
		return "", fmt.Errorf("read clipboard: %w", err)
	}
	return out.Text, nil
}

// WriteClipboard replaces the clipboard text.
func (c *Client) WriteClipboard(ctx context.Context, text string) error {
	if err := c.do(ctx, http.MethodPost, "/clipboard/write", map[string]string{"text": text}, nil); err != nil {
		return fmt.Errorf("write clipboard: %w", err)
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

func thumbnailKey(captureID string) string {
	return cache.GenerateKey("thumbnail", captureID)
}

func (c *Client) newRequest(ctx context.Context, method, path string, in any) (*http.Request, error) {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(SessionHeader, c.sessionID)
	return req, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	req, err := c.newRequest(ctx, method, path, in)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Status: resp.StatusCode, Body: string(body)}
	}

	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}
