// Package exporter bridges OpenTelemetry tracing into moniof. Applications
// already instrumented with otelsql (or any client library that emits
// db.system spans) can register the span processor on their TracerProvider
// and get the same per-request aggregation as the wrapped-driver path,
// without touching their database setup.
package exporter

import (
	"context"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/srotas-space/moniof/domain"
	moniofsql "github.com/srotas-space/moniof/instrumentation/sql"
	"github.com/srotas-space/moniof/internal/track"
)

// SpanRecorder is the ingestion contract the processor needs: trace-keyed
// event recording plus trace-to-request binding. The probe's recorder
// implements it.
type SpanRecorder interface {
	OnSpanEvent(traceID string, ev domain.DBEvent)
	AliasTrace(traceID, requestID string)
}

// SpanProcessor inspects finished spans and turns database client spans into
// DBEvents. Processing happens synchronously in OnEnd so events land in the
// request context before the middleware finalizes; the work per span is a
// handful of attribute lookups.
type SpanProcessor struct {
	rec SpanRecorder
	log *zap.Logger
}

var _ sdktrace.SpanProcessor = (*SpanProcessor)(nil)

func NewSpanProcessor(rec SpanRecorder, log *zap.Logger) *SpanProcessor {
	if log == nil {
		log = zap.NewNop()
	}
	return &SpanProcessor{rec: rec, log: log}
}

// OnStart binds the span's trace to the moniof request id carried in the
// parent context, if any. Child spans started inside an instrumented handler
// inherit that context, so the binding is established as soon as the first
// span starts.
func (p *SpanProcessor) OnStart(parent context.Context, s sdktrace.ReadWriteSpan) {
	id, ok := track.RequestIDFromContext(parent)
	if !ok {
		return
	}
	p.rec.AliasTrace(s.SpanContext().TraceID().String(), id)
}

// OnEnd routes finished database client spans into the recorder.
func (p *SpanProcessor) OnEnd(s sdktrace.ReadOnlySpan) {
	if s.SpanKind() != trace.SpanKindClient {
		return
	}

	var (
		system    string
		statement string
	)
	for _, attr := range s.Attributes() {
		switch {
		case attr.Key == semconv.DBSystemKey:
			system = attr.Value.AsString()
		case string(attr.Key) == "db.statement":
			statement = attr.Value.AsString()
		}
	}
	if system == "" {
		return
	}

	kind := domain.KindSQL
	if system == semconv.DBSystemMongoDB.Value.AsString() {
		kind = domain.KindMongo
	}

	key := string(kind) + "/" + s.Name()
	if statement != "" {
		key = moniofsql.Key(statement)
	}

	ev := domain.DBEvent{
		Key:       key,
		Kind:      kind,
		StartedAt: s.StartTime(),
		Duration:  s.EndTime().Sub(s.StartTime()),
	}
	if st := s.Status(); st.Code == codes.Error {
		ev.Failure = st.Description
		if ev.Failure == "" {
			ev.Failure = "span ended with error status"
		}
	}

	p.rec.OnSpanEvent(s.SpanContext().TraceID().String(), ev)
}

func (p *SpanProcessor) Shutdown(context.Context) error   { return nil }
func (p *SpanProcessor) ForceFlush(context.Context) error { return nil }
