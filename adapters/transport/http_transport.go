package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/layer-3/leaderboard/core"
	"github.com/layer-3/leaderboard/ports"
)

const (
	// DefaultBaseURL is the production leaderboard API
	DefaultBaseURL = "https://api.monaverse.com"

	// DefaultTimeout bounds every call at the transport boundary
	DefaultTimeout = 10 * time.Second

	maxResponseBytes = 1 << 20
)

// HTTPTransport implements the Transport interface on top of net/http
type HTTPTransport struct {
	baseURL *url.URL
	client  *http.Client
}

// NewHTTPTransport creates a transport for baseURL. A nil client gets DefaultTimeout.
func NewHTTPTransport(baseURL string, client *http.Client) (*HTTPTransport, error) {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base url: %v", core.ErrConfiguration, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: base url must be http or https", core.ErrConfiguration)
	}
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	return &HTTPTransport{baseURL: u, client: client}, nil
}

var _ ports.Transport = (*HTTPTransport)(nil)

// Send performs req on its own goroutine and reports through done
func (t *HTTPTransport) Send(ctx context.Context, req *ports.Request, done func(*ports.Response, error)) {
	go func() {
		done(t.Do(ctx, req))
	}()
}

// Do performs req synchronously
func (t *HTTPTransport) Do(ctx context.Context, req *ports.Request) (*ports.Response, error) {
	target := t.baseURL.JoinPath(req.Path)
	if len(req.Query) > 0 {
		target.RawQuery = req.Query.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", core.ErrTransport, err)
	}
	for k, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(k, v)
		}
	}
	if httpReq.Header.Get("Accept") == "" {
		httpReq.Header.Set("Accept", "application/json")
	}
	httpReq.Header.Set("X-Request-Id", uuid.NewString())

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", core.ErrTransport, req.Method, req.Path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", core.ErrTransport, err)
	}

	return &ports.Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
	}, nil
}
