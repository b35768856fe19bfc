package events

import (
	"context"
	"sync"

	"github.com/layer-3/leaderboard/core"
	"github.com/layer-3/leaderboard/ports"
)

// Handler receives a settled event
type Handler func(core.Event)

// Dispatcher is an in-process observer registry. Handlers run synchronously on
// the goroutine that published the event, which may be a transport worker. The
// operation is still in flight while its handlers run, so a handler calling
// SessionManager.Wait deadlocks.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[core.EventType][]Handler
	all      []Handler
}

// NewDispatcher creates an empty dispatcher
func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[core.EventType][]Handler)}
}

var _ ports.EventPublisher = (*Dispatcher)(nil)

// On registers h for events of type t
func (d *Dispatcher) On(t core.EventType, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[t] = append(d.handlers[t], h)
}

// OnAny registers h for every event
func (d *Dispatcher) OnAny(h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.all = append(d.all, h)
}

// OnScorePosted registers h for successful score submissions
func (d *Dispatcher) OnScorePosted(h func()) {
	d.On(core.EventScorePosted, func(core.Event) { h() })
}

// OnOTPVerified registers h for completed logins
func (d *Dispatcher) OnOTPVerified(h func()) {
	d.On(core.EventOTPVerified, func(core.Event) { h() })
}

// OnTopScores registers h for received leaderboards
func (d *Dispatcher) OnTopScores(h func(core.TopScores)) {
	d.On(core.EventScoresReceived, func(e core.Event) {
		if e.Scores != nil {
			h(*e.Scores)
		}
	})
}

// OnFailure registers h for failed operations
func (d *Dispatcher) OnFailure(h func(op string, err error)) {
	d.On(core.EventFailed, func(e core.Event) { h(e.Op, e.Err) })
}

// Publish calls every matching handler
func (d *Dispatcher) Publish(_ context.Context, event core.Event) error {
	d.mu.RLock()
	handlers := make([]Handler, 0, len(d.handlers[event.Type])+len(d.all))
	handlers = append(handlers, d.handlers[event.Type]...)
	handlers = append(handlers, d.all...)
	d.mu.RUnlock()

	for _, h := range handlers {
		h(event)
	}
	return nil
}

// Fanout publishes to several publishers and returns the first error
type Fanout []ports.EventPublisher

// Publish delivers event to every publisher even if one fails
func (f Fanout) Publish(ctx context.Context, event core.Event) error {
	var first error
	for _, p := range f {
		if err := p.Publish(ctx, event); err != nil && first == nil {
			first = err
		}
	}
	return first
}
