package moniof

import (
	"context"

	"go.uber.org/zap"

	"github.com/srotas-space/moniof/domain"
	"github.com/srotas-space/moniof/exporter"
	"github.com/srotas-space/moniof/internal/track"
)

// recorder is the probe's single ingestion point. Both instrumentation paths
// funnel through it: the context path (wrapped drivers, command monitors)
// and the span path (OTel processor). Per-event metric observation and slow
// command handling happen here so every driver gets identical treatment.
type recorder struct {
	p *Probe
}

var (
	_ domain.Recorder       = (*recorder)(nil)
	_ exporter.SpanRecorder = (*recorder)(nil)
)

// OnDBEvent correlates ev with the request id carried in ctx. Events without
// a correlatable request (background jobs, late callbacks) still feed the
// process-wide metrics but are dropped from per-request aggregation.
func (r *recorder) OnDBEvent(ctx context.Context, ev domain.DBEvent) {
	if id, ok := track.RequestIDFromContext(ctx); ok {
		r.p.registry.Record(id, ev)
	}
	r.observe(ev)
}

// OnSpanEvent correlates ev with the request bound to traceID.
func (r *recorder) OnSpanEvent(traceID string, ev domain.DBEvent) {
	if id, ok := r.p.registry.Resolve(traceID); ok {
		r.p.registry.Record(id, ev)
	}
	r.observe(ev)
}

// AliasTrace binds a trace id to an in-flight request.
func (r *recorder) AliasTrace(traceID, requestID string) {
	r.p.registry.Alias(traceID, requestID)
}

// observe handles the per-event concerns that do not depend on the request:
// the command histogram, optional per-event logging, and the slow/fast
// single-command checks.
func (r *recorder) observe(ev domain.DBEvent) {
	cfg := r.p.cfg
	r.p.metrics.ObserveCommand(string(ev.Kind), ev.Key, ev.Duration.Seconds())

	if cfg.LogEachDBEvent {
		if ev.Failed() {
			r.p.log.Warn("db command failed",
				zap.String("key", ev.Key),
				zap.Duration("latency", ev.Duration),
				zap.String("reason", ev.Failure))
		} else {
			r.p.log.Debug("db command completed",
				zap.String("key", ev.Key),
				zap.Duration("latency", ev.Duration))
		}
	}

	if cfg.SlowDBThreshold > 0 && ev.Duration >= cfg.SlowDBThreshold {
		r.p.log.Warn("slow db command",
			zap.String("key", ev.Key),
			zap.Duration("latency", ev.Duration),
			zap.Duration("threshold", cfg.SlowDBThreshold))
	}
	if cfg.LowDBThreshold > 0 && !ev.Failed() && ev.Duration <= cfg.LowDBThreshold {
		r.p.log.Debug("very fast db command (check instrumentation or cache)",
			zap.String("key", ev.Key),
			zap.Duration("latency", ev.Duration),
			zap.Duration("threshold", cfg.LowDBThreshold))
	}
}
