package supervisor

import (
	"context"
	"io"
	"net/http"
	"time"

	"go.aimuz.me/thinkbox/backend"
)

const probeTimeout = 2 * time.Second

// HealthChecker reports whether the backend is serving.
type HealthChecker interface {
	Healthy(ctx context.Context) bool
}

// Prober checks an HTTP health endpoint. Any 2xx answer is healthy;
// everything else, including transport errors, is not.
type Prober struct {
	url       string
	sessionID string
	http      *http.Client
}

// NewProber creates a prober for url. Probes carry sessionID like every
// other backend request.
func NewProber(url, sessionID string) *Prober {
	return &Prober{url: url, sessionID: sessionID, http: &http.Client{Timeout: probeTimeout}}
}

// URL returns the probed endpoint.
func (p *Prober) URL() string {
	return p.url
}

// Healthy performs one probe.
func (p *Prober) Healthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return false
	}
	if p.sessionID != "" {
		req.Header.Set(backend.SessionHeader, p.sessionID)
	}
	resp, err := p.http.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode >= 200 && resp.StatusCode <= 299
}
