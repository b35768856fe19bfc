package service_test

import (
	"context"
	"net/http"
	"sync"

	"github.com/goccy/go-json"

	"github.com/layer-3/leaderboard/core"
	"github.com/layer-3/leaderboard/ports"
)

// fakeTransport answers every request with handler on its own goroutine
type fakeTransport struct {
	mu       sync.Mutex
	requests []*ports.Request
	handler  func(*ports.Request) (*ports.Response, error)
}

func newFakeTransport(handler func(*ports.Request) (*ports.Response, error)) *fakeTransport {
	return &fakeTransport{handler: handler}
}

func (f *fakeTransport) Send(_ context.Context, req *ports.Request, done func(*ports.Response, error)) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	go func() { done(f.handler(req)) }()
}

func (f *fakeTransport) count(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.requests {
		if r.Path == path {
			n++
		}
	}
	return n
}

func (f *fakeTransport) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *fakeTransport) sent(path string) []*ports.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*ports.Request
	for _, r := range f.requests {
		if r.Path == path {
			out = append(out, r)
		}
	}
	return out
}

// routes dispatches by path; unknown paths get a 404
type routes map[string]func(*ports.Request) (*ports.Response, error)

func (r routes) handle(req *ports.Request) (*ports.Response, error) {
	if h, ok := r[req.Path]; ok {
		return h(req)
	}
	return status(http.StatusNotFound), nil
}

func status(code int) *ports.Response {
	return &ports.Response{StatusCode: code, Header: http.Header{}}
}

func reply(code int, body any) func(*ports.Request) (*ports.Response, error) {
	return func(*ports.Request) (*ports.Response, error) {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		return &ports.Response{StatusCode: code, Header: http.Header{}, Body: data}, nil
	}
}

// sequence answers the n-th call with the n-th handler and repeats the last one
func sequence(steps ...func(*ports.Request) (*ports.Response, error)) func(*ports.Request) (*ports.Response, error) {
	var mu sync.Mutex
	i := 0
	return func(req *ports.Request) (*ports.Response, error) {
		mu.Lock()
		step := steps[i]
		if i < len(steps)-1 {
			i++
		}
		mu.Unlock()
		return step(req)
	}
}

// recorder collects published events
type recorder struct {
	mu     sync.Mutex
	events []core.Event
}

func (r *recorder) Publish(_ context.Context, e core.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) ofType(t core.EventType) []core.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []core.Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func (r *recorder) failures(op string) []error {
	var out []error
	for _, e := range r.ofType(core.EventFailed) {
		if e.Op == op {
			out = append(out, e.Err)
		}
	}
	return out
}

func decodeBody(req *ports.Request) map[string]any {
	out := map[string]any{}
	_ = json.Unmarshal(req.Body, &out)
	return out
}
