// Package fetch retrieves raw source content over HTTP: web pages (directly or
// through CORS proxies), PDF files, and YouTube transcripts with oEmbed
// metadata.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/net/html/charset"

	"github.com/hyperifyio/notelo/internal/cache"
)

// DefaultMaxBodyBytes caps a single response body.
const DefaultMaxBodyBytes = 20 << 20

// HTMLTypes is the default content-type allowlist.
var HTMLTypes = []string{"text/html", "application/xhtml+xml"}

// StatusError reports a non-2xx response.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	if e.Code >= 500 {
		return fmt.Sprintf("server error: %d", e.Code)
	}
	return fmt.Sprintf("unexpected status: %d", e.Code)
}

// ErrUnsupportedType is returned when the response content type is not in
// the client's allowlist.
var ErrUnsupportedType = errors.New("unsupported content type")

// ErrTooLarge is returned when a body exceeds MaxBodyBytes.
var ErrTooLarge = errors.New("response body too large")

// Client wraps http.Client with timeouts, limited retry on transient errors,
// a content-type allowlist and an optional on-disk cache.
type Client struct {
	HTTPClient *http.Client
	UserAgent  string
	// MaxAttempts includes the initial attempt. Minimum 1.
	MaxAttempts int
	// PerRequestTimeout bounds each request.
	PerRequestTimeout time.Duration
	// AllowedTypes lists accepted media types. Empty means HTMLTypes.
	AllowedTypes []string
	// MaxBodyBytes caps the body. Zero means DefaultMaxBodyBytes.
	MaxBodyBytes int64

	// Cache stores bodies with their validators for conditional requests.
	Cache *cache.HTTPCache
	// CacheMaxAge serves cached bodies without revalidation while younger
	// than this. Zero always revalidates.
	CacheMaxAge time.Duration
	// BypassCache fetches fresh without conditional headers but still saves.
	BypassCache bool

	// RedirectMaxHops caps redirect following. Zero means 5.
	RedirectMaxHops int
	// MaxConcurrent limits in-flight requests. Zero means unlimited.
	MaxConcurrent int

	gate     *gate
	gateOnce sync.Once
}

// gate bounds in-flight requests across a client and its copies.
type gate struct {
	slots chan struct{}
}

// WithAllowedTypes returns a copy of c that accepts the given media types.
// The copy shares c's concurrency gate, so MaxConcurrent bounds requests
// across all of them.
func (c *Client) WithAllowedTypes(types ...string) *Client {
	return &Client{
		HTTPClient:        c.HTTPClient,
		UserAgent:         c.UserAgent,
		MaxAttempts:       c.MaxAttempts,
		PerRequestTimeout: c.PerRequestTimeout,
		AllowedTypes:      types,
		MaxBodyBytes:      c.MaxBodyBytes,
		Cache:             c.Cache,
		CacheMaxAge:       c.CacheMaxAge,
		BypassCache:       c.BypassCache,
		RedirectMaxHops:   c.RedirectMaxHops,
		MaxConcurrent:     c.MaxConcurrent,
		gate:              c.sharedGate(),
	}
}

func (c *Client) getHTTPClient() *http.Client {
	if c.HTTPClient != nil {
		base := *c.HTTPClient
		base.CheckRedirect = c.checkRedirectFunc()
		return &base
	}
	return &http.Client{Timeout: c.PerRequestTimeout, CheckRedirect: c.checkRedirectFunc()}
}

// Get issues a GET with context, user agent and bounded retry for transient
// errors. It returns the raw body and its content type.
func (c *Client) Get(ctx context.Context, target string) ([]byte, string, error) {
	var etag, lastMod string
	if c.Cache != nil && !c.BypassCache {
		if meta, err := c.Cache.LoadMeta(ctx, target); err == nil && meta != nil {
			if meta.Fresh(time.Now(), c.CacheMaxAge) && c.allowed(meta.ContentType) {
				if body, err := c.Cache.LoadBody(ctx, target); err == nil {
					log.Ctx(ctx).Debug().Str("url", target).Msg("cache hit")
					return body, meta.ContentType, nil
				}
			}
			etag = meta.ETag
			lastMod = meta.LastModified
		}
	}
	attempts := c.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		body, ct, newEtag, newLastMod, status, err := c.tryOnce(ctx, target, etag, lastMod)
		if err == nil {
			if status == http.StatusNotModified && c.Cache != nil {
				if cached, err := c.Cache.LoadBody(ctx, target); err == nil {
					if meta, err := c.Cache.LoadMeta(ctx, target); err == nil && meta.ContentType != "" {
						ct = meta.ContentType
					}
					return cached, ct, nil
				}
			}
			if c.Cache != nil && status == http.StatusOK {
				if err := c.Cache.Save(ctx, target, ct, newEtag, newLastMod, body); err != nil {
					log.Ctx(ctx).Debug().Err(err).Str("url", target).Msg("cache save failed")
				}
			}
			return body, ct, nil
		}
		if !isTransient(err) || i == attempts-1 {
			return nil, "", err
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return nil, "", ctx.Err()
		case <-time.After(time.Duration(i+1) * 200 * time.Millisecond):
		}
	}
	if lastErr == nil {
		lastErr = errors.New("unknown error")
	}
	return nil, "", lastErr
}

// GetHTML fetches target and returns the body transcoded to UTF-8.
func (c *Client) GetHTML(ctx context.Context, target string) (string, error) {
	body, ct, err := c.Get(ctx, target)
	if err != nil {
		return "", err
	}
	return DecodeHTML(body, ct)
}

// DecodeHTML converts body to UTF-8 using the content type charset and, when
// that is absent, <meta> sniffing.
func DecodeHTML(body []byte, contentType string) (string, error) {
	r, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		return "", fmt.Errorf("charset: %w", err)
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("transcode: %w", err)
	}
	return string(b), nil
}

func (c *Client) tryOnce(ctx context.Context, target string, etag string, lastMod string) ([]byte, string, string, string, int, error) {
	if err := c.acquire(ctx); err != nil {
		return nil, "", "", "", 0, err
	}
	defer c.release()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, "", "", "", 0, fmt.Errorf("new request: %w", err)
	}
	if !isHTTPScheme(req.URL) {
		return nil, "", "", "", 0, fmt.Errorf("unsupported URL scheme: %q", req.URL.String())
	}
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}
	if lastMod != "" {
		req.Header.Set("If-Modified-Since", lastMod)
	}

	if c.PerRequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(req.Context(), c.PerRequestTimeout)
		defer cancel()
		req = req.WithContext(ctx)
	}

	resp, err := c.getHTTPClient().Do(req)
	if err != nil {
		return nil, "", "", "", 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		return nil, resp.Header.Get("Content-Type"), resp.Header.Get("ETag"), resp.Header.Get("Last-Modified"), resp.StatusCode, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", "", "", resp.StatusCode, &StatusError{URL: target, Code: resp.StatusCode}
	}

	contentType := resp.Header.Get("Content-Type")
	if !c.allowed(contentType) {
		return nil, "", "", "", resp.StatusCode, fmt.Errorf("%w: %s", ErrUnsupportedType, contentType)
	}
	limit := c.MaxBodyBytes
	if limit <= 0 {
		limit = DefaultMaxBodyBytes
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, "", "", "", resp.StatusCode, fmt.Errorf("read body: %w", err)
	}
	if int64(len(b)) > limit {
		return nil, "", "", "", resp.StatusCode, ErrTooLarge
	}
	return b, contentType, resp.Header.Get("ETag"), resp.Header.Get("Last-Modified"), resp.StatusCode, nil
}

func (c *Client) allowed(contentType string) bool {
	types := c.AllowedTypes
	if len(types) == 0 {
		types = HTMLTypes
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mt = strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	}
	for _, t := range types {
		if strings.EqualFold(mt, t) {
			return true
		}
	}
	return false
}

func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var se *StatusError
	return errors.As(err, &se) && se.Code >= 500
}

func (c *Client) checkRedirectFunc() func(req *http.Request, via []*http.Request) error {
	max := c.RedirectMaxHops
	if max <= 0 {
		max = 5
	}
	return func(req *http.Request, via []*http.Request) error {
		if len(via) >= max {
			return errors.New("too many redirects")
		}
		if !isHTTPScheme(req.URL) {
			return errors.New("redirect to unsupported scheme")
		}
		return nil
	}
}

func isHTTPScheme(u *url.URL) bool {
	if u == nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return scheme == "http" || scheme == "https"
}

func (c *Client) sharedGate() *gate {
	if c.MaxConcurrent <= 0 {
		return nil
	}
	c.gateOnce.Do(func() {
		if c.gate == nil {
			c.gate = &gate{slots: make(chan struct{}, c.MaxConcurrent)}
		}
	})
	return c.gate
}

func (c *Client) acquire(ctx context.Context) error {
	g := c.sharedGate()
	if g == nil {
		return nil
	}
	select {
	case g.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) release() {
	if g := c.sharedGate(); g != nil {
		<-g.slots
	}
}
