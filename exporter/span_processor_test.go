package exporter

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/srotas-space/moniof/domain"
	"github.com/srotas-space/moniof/internal/track"
)

// memorySpanRecorder captures everything the processor hands over.
type memorySpanRecorder struct {
	mu      sync.Mutex
	events  map[string][]domain.DBEvent // trace id -> events
	aliases map[string]string           // trace id -> request id
}

func newMemorySpanRecorder() *memorySpanRecorder {
	return &memorySpanRecorder{
		events:  make(map[string][]domain.DBEvent),
		aliases: make(map[string]string),
	}
}

func (r *memorySpanRecorder) OnSpanEvent(traceID string, ev domain.DBEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events[traceID] = append(r.events[traceID], ev)
}

func (r *memorySpanRecorder) AliasTrace(traceID, requestID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aliases[traceID] = requestID
}

func newTracer(rec SpanRecorder) (trace.Tracer, *sdktrace.TracerProvider) {
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(NewSpanProcessor(rec, nil)),
	)
	return tp.Tracer("test"), tp
}

func TestSpanProcessor_DBClientSpanBecomesEvent(t *testing.T) {
	rec := newMemorySpanRecorder()
	tracer, tp := newTracer(rec)
	defer tp.Shutdown(context.Background())

	_, span := tracer.Start(context.Background(), "users-query",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			semconv.DBSystemSqlite,
			attribute.String("db.statement", "SELECT name FROM users WHERE id = 3"),
		),
	)
	traceID := span.SpanContext().TraceID().String()
	time.Sleep(time.Millisecond)
	span.End()

	events := rec.events[traceID]
	require.Len(t, events, 1)
	assert.Equal(t, "sql/select name from users where id = ?", events[0].Key)
	assert.Equal(t, domain.KindSQL, events[0].Kind)
	assert.Greater(t, events[0].Duration, time.Duration(0))
	assert.False(t, events[0].Failed())
}

func TestSpanProcessor_IgnoresNonDBSpans(t *testing.T) {
	rec := newMemorySpanRecorder()
	tracer, tp := newTracer(rec)
	defer tp.Shutdown(context.Background())

	_, server := tracer.Start(context.Background(), "/users", trace.WithSpanKind(trace.SpanKindServer))
	server.End()

	_, client := tracer.Start(context.Background(), "http-call", trace.WithSpanKind(trace.SpanKindClient))
	client.End()

	assert.Empty(t, rec.events)
}

func TestSpanProcessor_MongoSystemMapsToMongoKind(t *testing.T) {
	rec := newMemorySpanRecorder()
	tracer, tp := newTracer(rec)
	defer tp.Shutdown(context.Background())

	_, span := tracer.Start(context.Background(), "users.find",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(semconv.DBSystemMongoDB),
	)
	traceID := span.SpanContext().TraceID().String()
	span.End()

	events := rec.events[traceID]
	require.Len(t, events, 1)
	assert.Equal(t, domain.KindMongo, events[0].Kind)
	assert.Equal(t, "mongo/users.find", events[0].Key, "span name is the fallback key")
}

func TestSpanProcessor_ErrorStatusBecomesFailure(t *testing.T) {
	rec := newMemorySpanRecorder()
	tracer, tp := newTracer(rec)
	defer tp.Shutdown(context.Background())

	_, span := tracer.Start(context.Background(), "bad-query",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(semconv.DBSystemSqlite),
	)
	traceID := span.SpanContext().TraceID().String()
	span.SetStatus(codes.Error, "syntax error")
	span.End()

	events := rec.events[traceID]
	require.Len(t, events, 1)
	assert.Equal(t, "syntax error", events[0].Failure)
}

func TestSpanProcessor_AliasesTraceToRequest(t *testing.T) {
	rec := newMemorySpanRecorder()
	tracer, tp := newTracer(rec)
	defer tp.Shutdown(context.Background())

	ctx := track.WithRequestID(context.Background(), "req-123")
	_, span := tracer.Start(ctx, "child",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(semconv.DBSystemSqlite),
	)
	traceID := span.SpanContext().TraceID().String()
	span.End()

	assert.Equal(t, "req-123", rec.aliases[traceID])
}
