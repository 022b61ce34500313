// Package moniof is an observability middleware for net/http services: it
// correlates database driver events (MongoDB command monitoring, wrapped
// database/sql drivers, OTel client spans) with the enclosing HTTP request,
// aggregates per-request database latency, flags N+1 query patterns, exposes
// Prometheus collectors and ships Slack alerts for slow or failing calls.
package moniof

import (
	"context"
	"fmt"
	"net/http"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/srotas-space/moniof/domain"
	"github.com/srotas-space/moniof/exporter"
	"github.com/srotas-space/moniof/internal/metrics"
	"github.com/srotas-space/moniof/internal/ports/httpmiddleware"
	"github.com/srotas-space/moniof/internal/slack"
	"github.com/srotas-space/moniof/internal/track"
	"github.com/srotas-space/moniof/pkg/config"
)

// Probe bundles the wired moniof components for one process. Construct it
// once at startup and share it between the middleware and the driver
// instrumentation; the configuration is read-only after New returns.
type Probe struct {
	cfg      *config.Config
	log      *zap.Logger
	registry *track.Registry
	metrics  *metrics.Set
	notifier *slack.Notifier
	mw       *httpmiddleware.Middleware
	rec      *recorder
}

// New validates cfg and wires up a probe. Pass nil for defaults; pass a nil
// logger to disable logging.
func New(cfg *config.Config, log *zap.Logger) (*Probe, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if log == nil {
		log = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("moniof: %w", err)
	}

	p := &Probe{
		cfg:      cfg,
		log:      log,
		registry: track.NewRegistry(cfg.StaleAfter, log),
		metrics:  metrics.NewSet(),
		notifier: slack.NewNotifier(cfg.SlackWebhook, log),
	}
	p.rec = &recorder{p: p}
	p.mw = httpmiddleware.New(cfg, p.registry, p.metrics, p.notifier, log)

	log.Info("moniof initialized",
		zap.Bool("slack", p.notifier.Enabled()),
		zap.Int("n_plus_one_trigger", cfg.NPlusOneThreshold))
	return p, nil
}

// Middleware wraps next with the per-request collection and finalization
// lifecycle.
func (p *Probe) Middleware(next http.Handler) http.Handler {
	return p.mw.Wrap(next)
}

// Recorder is the ingestion point handed to driver instrumentation.
func (p *Probe) Recorder() domain.Recorder { return p.rec }

// SpanProcessor returns a processor for an OTel TracerProvider that feeds
// database client spans into the per-request aggregation.
func (p *Probe) SpanProcessor() sdktrace.SpanProcessor {
	return exporter.NewSpanProcessor(p.rec, p.log)
}

// MetricsHandler serves the probe's Prometheus registry.
func (p *Probe) MetricsHandler() http.Handler { return p.metrics.Handler() }

// Shutdown stops background work. In-flight request contexts are discarded.
func (p *Probe) Shutdown(context.Context) error {
	p.registry.Close()
	return nil
}
