package httpmiddleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/srotas-space/moniof/domain"
	"github.com/srotas-space/moniof/internal/aggregate"
	"github.com/srotas-space/moniof/internal/alert"
	"github.com/srotas-space/moniof/internal/metrics"
	"github.com/srotas-space/moniof/internal/track"
	"github.com/srotas-space/moniof/pkg/config"
)

// Response headers describing the request's database activity.
const (
	HeaderTotal          = "x-moniof-total"
	HeaderElapsedMS      = "x-moniof-elapsed-ms"
	HeaderDBTotalMS      = "x-moniof-db-total-ms"
	HeaderSlowestKey     = "x-moniof-slowest-key"
	HeaderSlowestLatency = "x-moniof-slowest-latency-ms"
	HeaderNPlusOneKey    = "x-moniof-n-plus-one-key"
	HeaderNPlusOneCount  = "x-moniof-n-plus-one-count"
)

// requestIDHeader is honored on the incoming request so upstream proxies can
// pick the correlation id; otherwise one is generated.
const requestIDHeader = "X-Request-ID"

// Middleware drives the per-request lifecycle: it registers a RequestContext
// on entry, lets driver instrumentation record into it while the handler
// runs, and on exit aggregates the events, writes the x-moniof-* headers,
// updates Prometheus and hands alerts to the sink.
type Middleware struct {
	cfg     *config.Config
	reg     *track.Registry
	metrics *metrics.Set
	sink    domain.AlertSink
	log     *zap.Logger
}

func New(cfg *config.Config, reg *track.Registry, m *metrics.Set, sink domain.AlertSink, log *zap.Logger) *Middleware {
	if log == nil {
		log = zap.NewNop()
	}
	return &Middleware{cfg: cfg, reg: reg, metrics: m, sink: sink, log: log}
}

// Wrap returns next wrapped with the moniof request lifecycle.
func (mw *Middleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get(requestIDHeader)
		if reqID == "" {
			reqID = uuid.NewString()
		}

		ctx := track.WithRequestID(r.Context(), reqID)
		mw.reg.Start(reqID)
		// Bind the active trace so span-based instrumentation reaches the
		// same context.
		if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
			mw.reg.Alias(sc.TraceID().String(), reqID)
		}

		mw.metrics.IncInflight()
		start := time.Now()

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		if mw.cfg.AddResponseHeaders {
			// Headers must be in place before the first byte of the response
			// goes out, so they reflect the events recorded up to that point.
			rw.beforeHeader = func(h http.Header) {
				mw.writeHeaders(h, reqID, start)
			}
		}

		next.ServeHTTP(rw, r.WithContext(ctx))
		rw.flushHeaders()

		mw.finalize(r, reqID, rw.statusCode, start)
	})
}

// writeHeaders snapshots the events recorded so far and sets the x-moniof-*
// headers. Absent values omit their header.
func (mw *Middleware) writeHeaders(h http.Header, reqID string, start time.Time) {
	events, ok := mw.reg.Snapshot(reqID)
	if !ok {
		return
	}
	rep := aggregate.Build(events, mw.cfg.NPlusOneThreshold)

	h.Set(HeaderTotal, strconv.Itoa(rep.TotalCalls))
	h.Set(HeaderElapsedMS, strconv.FormatInt(time.Since(start).Milliseconds(), 10))
	h.Set(HeaderDBTotalMS, strconv.FormatInt(rep.TotalDBTime.Milliseconds(), 10))

	if rep.SlowestKey != "" {
		h.Set(HeaderSlowestKey, rep.SlowestKey)
		if ks, found := rep.Stats(rep.SlowestKey); found {
			h.Set(HeaderSlowestLatency, strconv.FormatInt(ks.MaxTime.Milliseconds(), 10))
		}
	}
	if rep.NPlusOneKey != "" {
		h.Set(HeaderNPlusOneKey, rep.NPlusOneKey)
		h.Set(HeaderNPlusOneCount, strconv.Itoa(rep.NPlusOneCount))
	}
}

// finalize runs exactly once per request, after the handler returned: it
// seals the context, aggregates the final event list, updates metrics, logs
// warnings and ships alerts. Aggregation always runs, even for an empty
// event list.
func (mw *Middleware) finalize(r *http.Request, reqID string, status int, start time.Time) {
	mw.metrics.DecInflight()
	elapsed := time.Since(start)

	events, _, ok := mw.reg.Finish(reqID)
	if !ok {
		// Swept as stale mid-flight; nothing left to aggregate.
		return
	}
	rep := aggregate.Build(events, mw.cfg.NPlusOneThreshold)

	mw.metrics.ObserveRequest(r.Method, status, elapsed.Seconds())
	mw.observeDBTotals(events)

	if mw.cfg.LogWarnings {
		mw.logWarnings(r, rep, elapsed)
	}

	alerts := alert.Evaluate(events, rep, mw.cfg)
	if len(alerts) == 0 || mw.sink == nil {
		return
	}
	sum := domain.RequestSummary{
		Method:  r.Method,
		Path:    r.URL.Path,
		Status:  status,
		Elapsed: elapsed,
		Report:  rep,
	}
	// Fire-and-forget: delivery must never delay response finalization.
	go mw.sink.Deliver(context.Background(), sum, alerts)
}

func (mw *Middleware) observeDBTotals(events []domain.DBEvent) {
	perKind := make(map[domain.Kind]time.Duration, 2)
	for _, ev := range events {
		perKind[ev.Kind] += ev.Duration
	}
	for kind, total := range perKind {
		mw.metrics.ObserveDBTotal(string(kind), total.Seconds())
	}
}

func (mw *Middleware) logWarnings(r *http.Request, rep domain.Report, elapsed time.Duration) {
	if mw.cfg.MaxTotalQueries > 0 && rep.TotalCalls > mw.cfg.MaxTotalQueries {
		mw.log.Warn("high DB query count in request",
			zap.String("path", r.URL.Path),
			zap.Int("total", rep.TotalCalls),
			zap.Int("max_total", mw.cfg.MaxTotalQueries),
			zap.Duration("elapsed", elapsed),
			zap.Duration("db_total", rep.TotalDBTime))
	}
	if rep.NPlusOneKey != "" {
		mw.log.Warn("repeated DB key in request (possible N+1)",
			zap.String("path", r.URL.Path),
			zap.String("key", rep.NPlusOneKey),
			zap.Int("count", rep.NPlusOneCount))
	}
	if mw.cfg.LowDBThreshold > 0 && rep.TotalCalls > 0 && rep.TotalDBTime <= mw.cfg.LowDBThreshold {
		mw.log.Warn("suspiciously low cumulative DB latency (check instrumentation or cache)",
			zap.String("path", r.URL.Path),
			zap.Int("total", rep.TotalCalls),
			zap.Duration("db_total", rep.TotalDBTime),
			zap.Duration("threshold", mw.cfg.LowDBThreshold))
	}
}

// responseWriter captures the status code and gives the middleware a hook to
// inject headers right before they are flushed to the client.
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	wroteHeader  bool
	beforeHeader func(http.Header)
}

func (rw *responseWriter) WriteHeader(code int) {
	if rw.wroteHeader {
		return
	}
	rw.wroteHeader = true
	rw.statusCode = code
	if rw.beforeHeader != nil {
		rw.beforeHeader(rw.Header())
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}

// flushHeaders covers handlers that never write a body or status.
func (rw *responseWriter) flushHeaders() {
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}
}
