package mongo

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/event"

	"github.com/srotas-space/moniof/domain"
)

type memoryRecorder struct {
	mu     sync.Mutex
	events []domain.DBEvent
}

func (r *memoryRecorder) OnDBEvent(_ context.Context, ev domain.DBEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *memoryRecorder) all() []domain.DBEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.DBEvent, len(r.events))
	copy(out, r.events)
	return out
}

func startedEvent(t *testing.T, commandName, collection, db string, requestID int64) *event.CommandStartedEvent {
	t.Helper()
	raw, err := bson.Marshal(bson.D{{Key: commandName, Value: collection}, {Key: "$db", Value: db}})
	require.NoError(t, err)
	return &event.CommandStartedEvent{
		Command:      bson.Raw(raw),
		DatabaseName: db,
		CommandName:  commandName,
		RequestID:    requestID,
		ConnectionID: "conn-1",
	}
}

func TestMonitor_SucceededCommand(t *testing.T) {
	rec := &memoryRecorder{}
	mon := NewCommandMonitor(rec, nil)
	ctx := context.Background()

	mon.Started(ctx, startedEvent(t, "find", "users", "appdb", 1))
	mon.Succeeded(ctx, &event.CommandSucceededEvent{
		CommandFinishedEvent: event.CommandFinishedEvent{
			CommandName:  "find",
			RequestID:    1,
			ConnectionID: "conn-1",
		},
	})

	events := rec.all()
	require.Len(t, events, 1)
	assert.Equal(t, "mongo/users/find", events[0].Key)
	assert.Equal(t, domain.KindMongo, events[0].Kind)
	assert.False(t, events[0].Failed())
	assert.GreaterOrEqual(t, events[0].Duration, time.Duration(0))
}

func TestMonitor_FailedCommand(t *testing.T) {
	rec := &memoryRecorder{}
	mon := NewCommandMonitor(rec, nil)
	ctx := context.Background()

	mon.Started(ctx, startedEvent(t, "insert", "orders", "appdb", 7))
	mon.Failed(ctx, &event.CommandFailedEvent{
		CommandFinishedEvent: event.CommandFinishedEvent{
			CommandName:  "insert",
			RequestID:    7,
			ConnectionID: "conn-1",
		},
		Failure: "duplicate key error",
	})

	events := rec.all()
	require.Len(t, events, 1)
	assert.Equal(t, "mongo/orders/insert", events[0].Key)
	assert.Equal(t, "duplicate key error", events[0].Failure)
}

func TestMonitor_FallsBackToDatabaseName(t *testing.T) {
	rec := &memoryRecorder{}
	mon := NewCommandMonitor(rec, nil)
	ctx := context.Background()

	// ping has no collection argument
	raw, err := bson.Marshal(bson.D{{Key: "ping", Value: 1}})
	require.NoError(t, err)
	mon.Started(ctx, &event.CommandStartedEvent{
		Command:      bson.Raw(raw),
		DatabaseName: "admin",
		CommandName:  "ping",
		RequestID:    2,
		ConnectionID: "conn-1",
	})
	mon.Succeeded(ctx, &event.CommandSucceededEvent{
		CommandFinishedEvent: event.CommandFinishedEvent{
			CommandName:  "ping",
			RequestID:    2,
			ConnectionID: "conn-1",
		},
	})

	events := rec.all()
	require.Len(t, events, 1)
	assert.Equal(t, "mongo/admin/ping", events[0].Key)
}

func TestMonitor_UnmatchedFinishStillReports(t *testing.T) {
	rec := &memoryRecorder{}
	mon := NewCommandMonitor(rec, nil)

	// Succeeded without a Started (monitor attached mid-command).
	mon.Succeeded(context.Background(), &event.CommandSucceededEvent{
		CommandFinishedEvent: event.CommandFinishedEvent{
			CommandName:  "Find",
			RequestID:    99,
			ConnectionID: "conn-9",
		},
	})

	events := rec.all()
	require.Len(t, events, 1)
	assert.Equal(t, "mongo/unknown/find", events[0].Key)
}

func TestMonitor_ConcurrentCommands(t *testing.T) {
	rec := &memoryRecorder{}
	mon := NewCommandMonitor(rec, nil)
	ctx := context.Background()

	raw, err := bson.Marshal(bson.D{{Key: "find", Value: "users"}})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			mon.Started(ctx, &event.CommandStartedEvent{
				Command:      bson.Raw(raw),
				DatabaseName: "appdb",
				CommandName:  "find",
				RequestID:    id,
				ConnectionID: "conn-1",
			})
			mon.Succeeded(ctx, &event.CommandSucceededEvent{
				CommandFinishedEvent: event.CommandFinishedEvent{
					CommandName:  "find",
					RequestID:    id,
					ConnectionID: "conn-1",
				},
			})
		}(int64(i))
	}
	wg.Wait()

	events := rec.all()
	require.Len(t, events, 50)
	for _, ev := range events {
		assert.Equal(t, "mongo/users/find", ev.Key)
	}
}
