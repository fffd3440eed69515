// Package fetch retrieves source pages over plain HTTP or through a
// headless browser, producing the body and transport fingerprint the
// change evaluator works from.
package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"webnotify/app/source"
)

const (
	maxRetries   = 2
	retryBackoff = 500 * time.Millisecond
	maxBodySize  = 5 << 20
)

var retryableStatuses = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

type Fetcher struct {
	limiter   *hostLimiter
	renderer  *Renderer
	userAgent string
}

// New creates a Fetcher. The renderer may be nil, in which case
// rendered-mode sources fail their checks instead of launching a browser.
func New(renderer *Renderer, userAgent string) *Fetcher {
	return &Fetcher{
		limiter:   newHostLimiter(),
		renderer:  renderer,
		userAgent: userAgent,
	}
}

// Fetch retrieves the source's page in its configured mode. HTTP-mode
// sources that fail over the wire fall back to a rendered fetch when a
// renderer is available, since login walls and bot checks commonly break
// the plain request path first.
func (f *Fetcher) Fetch(ctx context.Context, src *source.Source) (*Result, error) {
	u, err := url.Parse(src.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid source URL: %w", err)
	}

	if err := f.limiter.wait(ctx, u.Host); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	mode := src.Config.EffectiveMode()
	if mode == source.ModeRequests {
		result, err := f.fetchHTTP(ctx, src)
		if err == nil {
			return result, nil
		}
		if f.renderer == nil {
			return nil, err
		}
		slog.Warn("HTTP fetch failed, falling back to rendered",
			"source", src.Name, "error", err)
	}

	if f.renderer == nil {
		return nil, fmt.Errorf("source %q requires rendered mode but no renderer is configured", src.Name)
	}

	shortHTML, html, err := f.renderer.Render(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("rendered fetch: %w", err)
	}

	return &Result{
		Mode:        source.ModeRendered,
		HTML:        html,
		ShortHTML:   shortHTML,
		Fingerprint: source.Fingerprint{BodyHash: hashBody(html), SavedAt: time.Now().UTC()},
	}, nil
}

func (f *Fetcher) fetchHTTP(ctx context.Context, src *source.Source) (*Result, error) {
	connect, read := src.Config.Timeouts()

	transport := &http.Transport{
		DialContext:         (&net.Dialer{Timeout: connect}).DialContext,
		TLSHandshakeTimeout: connect,
	}
	defer transport.CloseIdleConnections()

	client := &http.Client{
		Transport: transport,
		Timeout:   read,
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := retryBackoff << (attempt - 1)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		result, retryable, err := f.doRequest(ctx, client, src)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !retryable {
			return nil, err
		}
	}

	return nil, lastErr
}

func (f *Fetcher) doRequest(ctx context.Context, client *http.Client, src *source.Source) (*Result, bool, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", src.URL, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Connection", "close")

	for k, v := range src.Config.Headers {
		req.Header.Set(k, v)
	}
	if cookie := cookieHeader(src.Config.Cookies); cookie != "" {
		req.Header.Set("Cookie", cookie)
	}

	prior := src.Baseline.Fingerprint
	if prior.ETag != "" {
		req.Header.Set("If-None-Match", prior.ETag)
	}
	if prior.LastModified != "" {
		req.Header.Set("If-Modified-Since", prior.LastModified)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		return &Result{
			Mode:        source.ModeRequests,
			Fingerprint: prior,
			NotModified: true,
		}, false, nil
	}

	if resp.StatusCode >= 400 {
		err := fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
		return nil, retryableStatuses[resp.StatusCode], err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, true, fmt.Errorf("failed to read response body: %w", err)
	}

	html := string(body)
	return &Result{
		Mode: source.ModeRequests,
		HTML: html,
		Fingerprint: source.Fingerprint{
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
			BodyHash:     hashBody(html),
			SavedAt:      time.Now().UTC(),
		},
	}, false, nil
}

func hashBody(body string) string {
	sum := sha256.Sum256([]byte(body))
	return hex.EncodeToString(sum[:])
}

// cookieHeader serialises cookies in a stable order so repeated fetches
// send identical headers.
func cookieHeader(cookies map[string]string) string {
	if len(cookies) == 0 {
		return ""
	}
	names := make([]string, 0, len(cookies))
	for name := range cookies {
		names = append(names, name)
	}
	sort.Strings(names)

	pairs := make([]string, 0, len(names))
	for _, name := range names {
		pairs = append(pairs, name+"="+cookies[name])
	}
	return strings.Join(pairs, "; ")
}
