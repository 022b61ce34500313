package track

import (
	"context"
	"sync"
	"time"

	"github.com/srotas-space/moniof/domain"
)

// ctxKey is an unexported type for context keys defined in this package.
type ctxKey struct{}

var requestIDKey = ctxKey{}

// WithRequestID returns a context carrying the moniof request id. The HTTP
// middleware attaches it to the incoming request so driver instrumentation
// can route events back to the right RequestContext.
func WithRequestID(parent context.Context, id string) context.Context {
	return context.WithValue(parent, requestIDKey, id)
}

// RequestIDFromContext extracts the moniof request id, if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDKey).(string)
	return id, ok && id != ""
}

// RequestContext accumulates the database events recorded during one HTTP
// request. Appends may arrive concurrently from driver callbacks running on
// internal driver goroutines; the mutex makes every append visible to the
// single reader that finishes the context after handler completion.
type RequestContext struct {
	mu        sync.Mutex
	startedAt time.Time
	events    []domain.DBEvent
	finished  bool
}

func newRequestContext(now time.Time) *RequestContext {
	return &RequestContext{startedAt: now}
}

// StartedAt returns the time the enclosing request entered the middleware.
func (c *RequestContext) StartedAt() time.Time { return c.startedAt }

// append adds ev to the event list. It reports false when the context has
// already been finished, in which case the event is dropped.
func (c *RequestContext) append(ev domain.DBEvent) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.finished {
		return false
	}
	c.events = append(c.events, ev)
	return true
}

// snapshot returns a copy of the events recorded so far without closing the
// context. Used to populate response headers while the handler may, in
// principle, still be running trailing work.
func (c *RequestContext) snapshot() []domain.DBEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.DBEvent, len(c.events))
	copy(out, c.events)
	return out
}

// finish marks the context immutable and returns the final event list.
// Further appends are rejected.
func (c *RequestContext) finish() []domain.DBEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.finished = true
	return c.events
}
