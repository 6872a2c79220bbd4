package httpt

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/skybit/restcore"
)

// Transport sends restcore requests over a standard *http.Client.
//
// Pattern: Adapter — bridges net/http and the restcore Transport
// boundary without the core importing transport internals.
type Transport struct {
	hc     *http.Client
	header http.Header
}

// Option configures a Transport.
type Option func(*Transport)

// WithHeader adds a header sent with every request, such as an
// authorization token. Per-request headers with the same name win.
func WithHeader(key, value string) Option {
	return func(t *Transport) {
		t.header.Set(key, value)
	}
}

// New creates a Transport over hc. A nil hc means http.DefaultClient.
func New(hc *http.Client, opts ...Option) *Transport {
	if hc == nil {
		hc = http.DefaultClient
	}

	t := &Transport{
		hc:     hc,
		header: make(http.Header),
	}
	for _, opt := range opts {
		opt(t)
	}

	return t
}

// Send performs one HTTP exchange. The response body is fully read and
// returned so that the caller may classify and retry without holding a
// network stream open.
func (t *Transport) Send(ctx context.Context, req restcore.Request) (restcore.Response, error) {
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	hreq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return restcore.Response{}, fmt.Errorf("httpt: build request: %w", err)
	}

	for key, values := range t.header {
		hreq.Header[key] = values
	}
	for key, values := range req.Header {
		hreq.Header[key] = values
	}

	hresp, err := t.hc.Do(hreq)
	if err != nil {
		return restcore.Response{}, err
	}
	defer hresp.Body.Close()

	data, err := io.ReadAll(hresp.Body)
	if err != nil {
		return restcore.Response{}, err
	}

	return restcore.Response{
		Status: hresp.StatusCode,
		Header: hresp.Header,
		Body:   data,
	}, nil
}

// ---------------------------------------------------------------------------
// Rate-limit header contract
// ---------------------------------------------------------------------------

// RateHeaders names the response headers carrying the server's
// rate-limit observation. The names are an external-API contract;
// [DefaultRateHeaders] covers the common convention.
type RateHeaders struct {
	Limit     string
	Remaining string
	Reset     string // seconds until the budget refills
}

// DefaultRateHeaders returns the conventional header-name triple.
func DefaultRateHeaders() RateHeaders {
	return RateHeaders{
		Limit:     "X-RateLimit-Limit",
		Remaining: "X-RateLimit-Remaining",
		Reset:     "X-RateLimit-Reset",
	}
}

// Parser returns a restcore.RateInfoParser reading this header triple.
// A response missing all three headers reports ok false.
func (h RateHeaders) Parser() restcore.RateInfoParser {
	return func(resp restcore.Response) (restcore.RateInfo, bool) {
		if resp.Header == nil {
			return restcore.RateInfo{}, false
		}

		var (
			info restcore.RateInfo
			seen bool
		)

		if v, err := strconv.ParseFloat(resp.Header.Get(h.Limit), 64); err == nil {
			info.Limit = v
			seen = true
		}
		if v, err := strconv.ParseFloat(resp.Header.Get(h.Remaining), 64); err == nil {
			info.Remaining = v
			seen = true
		}
		if v, err := strconv.ParseFloat(resp.Header.Get(h.Reset), 64); err == nil {
			info.Reset = time.Duration(v * float64(time.Second))
			seen = true
		}

		return info, seen
	}
}

// ---------------------------------------------------------------------------
// Versioned REST endpoint
// ---------------------------------------------------------------------------

// VersionedEndpoint builds requests for one collection of versioned
// resources laid out the usual way:
// {base}/spaces/{space}/environments/{environment}/{collection}/{id}.
// The optimistic-lock version travels in VersionHeader on writes.
type VersionedEndpoint struct {
	// Base is the API root, e.g. "https://api.example.com/v1".
	Base string
	// Collection is the resource collection segment, e.g. "entries".
	Collection string
	// VersionHeader carries the optimistic-lock token on writes.
	// Empty means "X-Version".
	VersionHeader string
}

// Get builds the read request for ref.
func (e VersionedEndpoint) Get(ref restcore.ResourceRef) restcore.Request {
	return restcore.Request{
		Method: http.MethodGet,
		URL:    e.url(ref),
	}
}

// Put builds the versioned write request for ref.
func (e VersionedEndpoint) Put(ref restcore.ResourceRef, version int, body []byte) restcore.Request {
	name := e.VersionHeader
	if name == "" {
		name = "X-Version"
	}

	header := make(http.Header)
	header.Set(name, strconv.Itoa(version))
	header.Set("Content-Type", "application/json")

	return restcore.Request{
		Method: http.MethodPut,
		URL:    e.url(ref),
		Header: header,
		Body:   body,
	}
}

func (e VersionedEndpoint) url(ref restcore.ResourceRef) string {
	return fmt.Sprintf(
		"%s/spaces/%s/environments/%s/%s/%s",
		strings.TrimSuffix(e.Base, "/"),
		ref.SpaceID,
		ref.EnvironmentID,
		e.Collection,
		ref.ResourceID,
	)
}
