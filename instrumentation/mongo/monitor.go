// Package mongo hooks moniof into the official MongoDB driver's command
// monitoring. Attach the monitor to options.Client().SetMonitor to have every
// completed command reported as a DBEvent keyed "mongo/<collection>/<op>".
package mongo

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/event"
	"go.uber.org/zap"

	"github.com/srotas-space/moniof/domain"
)

// inflightKey identifies one in-flight command. The driver guarantees
// (connection id, request id) is unique while the command is outstanding.
type inflightKey struct {
	connectionID string
	requestID    int64
}

type inflightEntry struct {
	startedAt  time.Time
	collection string
	op         string
}

type monitor struct {
	rec domain.Recorder
	log *zap.Logger

	mu       sync.Mutex
	inflight map[inflightKey]inflightEntry
}

// NewCommandMonitor builds an event.CommandMonitor that reports completed
// commands to rec. Commands run on driver-internal goroutines; the monitor
// is safe for concurrent use and never blocks beyond its own map mutex.
func NewCommandMonitor(rec domain.Recorder, log *zap.Logger) *event.CommandMonitor {
	if log == nil {
		log = zap.NewNop()
	}
	m := &monitor{
		rec:      rec,
		log:      log,
		inflight: make(map[inflightKey]inflightEntry),
	}
	return &event.CommandMonitor{
		Started:   m.started,
		Succeeded: m.succeeded,
		Failed:    m.failed,
	}
}

// eventKey builds the logical key for a command.
func eventKey(collection, op string) string {
	return "mongo/" + collection + "/" + op
}

// extractCollection pulls the target collection out of the started command.
// For most commands the value of the command-name field is the collection
// ("find": "users"); the database name is a good-enough fallback label.
func extractCollection(evt *event.CommandStartedEvent) string {
	if v, ok := evt.Command.Lookup(evt.CommandName).StringValueOK(); ok && v != "" {
		return v
	}
	return evt.DatabaseName
}

func (m *monitor) started(_ context.Context, evt *event.CommandStartedEvent) {
	entry := inflightEntry{
		startedAt:  time.Now(),
		collection: extractCollection(evt),
		op:         strings.ToLower(evt.CommandName),
	}

	m.mu.Lock()
	m.inflight[inflightKey{evt.ConnectionID, evt.RequestID}] = entry
	m.mu.Unlock()

	m.log.Debug("mongo command started",
		zap.String("db", evt.DatabaseName),
		zap.String("key", eventKey(entry.collection, entry.op)))
}

func (m *monitor) succeeded(ctx context.Context, evt *event.CommandSucceededEvent) {
	m.finish(ctx, evt.ConnectionID, evt.RequestID, evt.CommandName, "")
}

func (m *monitor) failed(ctx context.Context, evt *event.CommandFailedEvent) {
	reason := evt.Failure
	if reason == "" {
		reason = "command failed"
	}
	m.finish(ctx, evt.ConnectionID, evt.RequestID, evt.CommandName, reason)
}

// finish resolves the in-flight entry and reports the event. A missing entry
// (monitor attached mid-command) falls back to the command name alone.
func (m *monitor) finish(ctx context.Context, connectionID string, requestID int64, commandName, failure string) {
	key := inflightKey{connectionID, requestID}

	m.mu.Lock()
	entry, ok := m.inflight[key]
	if ok {
		delete(m.inflight, key)
	}
	m.mu.Unlock()

	if !ok {
		entry = inflightEntry{
			startedAt:  time.Now(),
			collection: "unknown",
			op:         strings.ToLower(commandName),
		}
	}

	m.rec.OnDBEvent(ctx, domain.DBEvent{
		Key:       eventKey(entry.collection, entry.op),
		Kind:      domain.KindMongo,
		StartedAt: entry.startedAt,
		Duration:  time.Since(entry.startedAt),
		Failure:   failure,
	})
}
