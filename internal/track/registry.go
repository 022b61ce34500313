package track

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/srotas-space/moniof/domain"
)

// DefaultStaleAfter is how long an entry may sit in the registry without
// being finished before the sweeper discards it. Covers requests that were
// aborted before reaching finalization.
const DefaultStaleAfter = 2 * time.Minute

type entry struct {
	ctx *RequestContext
	// trace ids aliased to this request, removed together with it
	aliases []string
}

// Registry is the process-wide mapping from request id to RequestContext.
// Entries are inserted on request start and removed on finish; recording for
// an id that is absent is a silent no-op. A secondary alias table maps OTel
// trace ids onto request ids so span-based instrumentation can reach the
// same context.
type Registry struct {
	mu      sync.RWMutex
	byID    map[string]*entry
	byTrace map[string]string

	staleAfter time.Duration
	log        *zap.Logger

	stopOnce sync.Once
	stop     chan struct{}
}

// NewRegistry creates a registry and starts its stale-entry sweeper. Pass a
// non-positive staleAfter to use DefaultStaleAfter.
func NewRegistry(staleAfter time.Duration, log *zap.Logger) *Registry {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	if log == nil {
		log = zap.NewNop()
	}
	r := &Registry{
		byID:       make(map[string]*entry),
		byTrace:    make(map[string]string),
		staleAfter: staleAfter,
		log:        log,
		stop:       make(chan struct{}),
	}
	go r.sweepLoop()
	return r
}

// Start registers a fresh RequestContext under id. Starting an id that is
// already present resets it; ids are expected to be unique per request.
func (r *Registry) Start(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[id] = &entry{ctx: newRequestContext(time.Now())}
}

// Alias binds traceID to an in-flight request id. Unknown request ids are
// ignored.
func (r *Registry) Alias(traceID, id string) {
	if traceID == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byID[id]
	if !ok {
		return
	}
	e.aliases = append(e.aliases, traceID)
	r.byTrace[traceID] = id
}

// Resolve maps a trace id back to its request id.
func (r *Registry) Resolve(traceID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byTrace[traceID]
	return id, ok
}

// Record appends ev to the context registered under id. Events for unknown
// or already-finished ids are dropped; Record never blocks on anything but
// the context mutex and never panics, since it runs inside driver callbacks.
func (r *Registry) Record(id string, ev domain.DBEvent) {
	r.mu.RLock()
	e, ok := r.byID[id]
	r.mu.RUnlock()
	if !ok {
		return
	}
	e.ctx.append(ev)
}

// Snapshot returns a copy of the events recorded so far for id.
func (r *Registry) Snapshot(id string) ([]domain.DBEvent, bool) {
	r.mu.RLock()
	e, ok := r.byID[id]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return e.ctx.snapshot(), true
}

// Finish seals the context for id, removes it (and its trace aliases) from
// the registry and returns the final event list plus the request start time.
// The second finish of the same id reports ok=false.
func (r *Registry) Finish(id string) (events []domain.DBEvent, startedAt time.Time, ok bool) {
	r.mu.Lock()
	e, found := r.byID[id]
	if found {
		delete(r.byID, id)
		for _, t := range e.aliases {
			delete(r.byTrace, t)
		}
	}
	r.mu.Unlock()
	if !found {
		return nil, time.Time{}, false
	}
	return e.ctx.finish(), e.ctx.StartedAt(), true
}

// Len reports the number of in-flight entries.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// Close stops the sweeper goroutine.
func (r *Registry) Close() {
	r.stopOnce.Do(func() { close(r.stop) })
}

func (r *Registry) sweepLoop() {
	interval := r.staleAfter / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			r.sweep(time.Now())
		}
	}
}

// sweep discards entries whose request started longer than staleAfter ago.
func (r *Registry) sweep(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	swept := 0
	for id, e := range r.byID {
		if now.Sub(e.ctx.StartedAt()) <= r.staleAfter {
			continue
		}
		e.ctx.finish()
		delete(r.byID, id)
		for _, t := range e.aliases {
			delete(r.byTrace, t)
		}
		swept++
	}
	if swept > 0 {
		r.log.Debug("swept stale request contexts", zap.Int("count", swept))
	}
}
