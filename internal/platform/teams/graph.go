package teams

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"agentlink/internal/domain"
)

// DefaultBaseURL is the Microsoft Graph v1.0 root.
const DefaultBaseURL = "https://graph.microsoft.com/v1.0"

// maxErrorBody bounds how much of a failed response is kept in graphError.
const maxErrorBody = 4 << 10

// QueryParam is one OData query option. Keys such as "$filter" are sent
// verbatim; values are percent-encoded.
type QueryParam struct {
	Key   string
	Value string
}

// Query is an ordered list of query options.
type Query []QueryParam

// Encode renders the query with spaces as %20, which Graph requires inside
// $filter expressions.
func (q Query) Encode() string {
	parts := make([]string, 0, len(q))
	for _, p := range q {
		v := strings.ReplaceAll(url.QueryEscape(p.Value), "+", "%20")
		parts = append(parts, p.Key+"="+v)
	}
	return strings.Join(parts, "&")
}

// Graph is the slice of the Microsoft Graph REST API the client uses.
type Graph interface {
	Get(ctx context.Context, path string, query Query, out any) error
	Post(ctx context.Context, path string, body, out any) error
}

// graphError is returned for any non-2xx Graph response.
type graphError struct {
	Status int
	Body   string

	retryAfter string
}

func (e *graphError) Error() string {
	return fmt.Sprintf("graph: status %d: %s", e.Status, e.Body)
}

func (e *graphError) Is(target error) bool { return target == domain.ErrTransport }

// HTTPGraph performs JSON requests against a Graph base URL.
type HTTPGraph struct {
	baseURL string
	client  *http.Client

	maxRetries int
	backoff    time.Duration
}

// NewHTTPGraph creates a Graph over client. Authorization is the client's
// concern (see NewAuthorizedClient).
func NewHTTPGraph(baseURL string, client *http.Client) *HTTPGraph {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPGraph{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

// WithRetry enables up to max retries of GETs that were throttled (429) or
// failed with 5xx. POSTs are never resent. Waits grow quadratically from
// base with jitter; a Retry-After header overrides the computed wait.
func (g *HTTPGraph) WithRetry(max int, base time.Duration) *HTTPGraph {
	g.maxRetries = max
	g.backoff = base
	return g
}

func (g *HTTPGraph) Get(ctx context.Context, path string, query Query, out any) error {
	u := g.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return g.do(ctx, http.MethodGet, u, nil, out)
}

func (g *HTTPGraph) Post(ctx context.Context, path string, body, out any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(body); err != nil {
		return fmt.Errorf("graph: encode %s: %w", path, err)
	}
	return g.do(ctx, http.MethodPost, g.baseURL+path, buf.Bytes(), out)
}

func (g *HTTPGraph) do(ctx context.Context, method, u string, body []byte, out any) error {
	var lastErr *graphError
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			wait := g.wait(attempt, lastErr.retryAfter)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}

		resp, err := g.send(ctx, method, u, body)
		if err != nil {
			return err
		}

		if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
			defer resp.Body.Close()
			return decode(resp.Body, out)
		}

		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		resp.Body.Close()
		lastErr = &graphError{Status: resp.StatusCode, Body: string(data), retryAfter: resp.Header.Get("Retry-After")}
		if attempt >= g.maxRetries || !retryable(method, resp.StatusCode) {
			return lastErr
		}
	}
}

func (g *HTTPGraph) send(ctx context.Context, method, u string, body []byte) (*http.Response, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, r)
	if err != nil {
		return nil, fmt.Errorf("graph: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("graph: %s %s: %w", method, req.URL.Path, err)
	}
	return resp, nil
}

// retryable reports whether a failed response may be sent again. Only GETs
// qualify: a resent POST could create a second chat or message.
func retryable(method string, status int) bool {
	if method != http.MethodGet {
		return false
	}
	return status == http.StatusTooManyRequests || status >= 500
}

func (g *HTTPGraph) wait(attempt int, retryAfter string) time.Duration {
	if secs, err := strconv.Atoi(retryAfter); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	base := time.Duration(attempt*attempt) * g.backoff
	return base + time.Duration(rand.Int64N(int64(base/2+1)))
}

func decode(body io.Reader, out any) error {
	if out == nil {
		return nil
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("graph: read response: %w", err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("graph: decode response: %w", err)
	}
	return nil
}

// NewAuthorizedClient returns a pooled HTTP client that attaches bearer
// tokens from ts to every request.
func NewAuthorizedClient(ts oauth2.TokenSource, timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: &oauth2.Transport{Source: ts, Base: transport},
	}
}
