package ports

import (
	"context"
	"net/http"
	"net/url"
)

// Request is an outbound call to the leaderboard API, Path is relative to the base URL
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	Body   []byte
}

// Response is what the API answered
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Transport issues requests asynchronously. Send returns immediately and calls done
// exactly once, possibly from another goroutine. err is set only when no response
// was received.
type Transport interface {
	Send(ctx context.Context, req *Request, done func(*Response, error))
}

// Codec encodes request bodies and decodes response bodies
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}
