// Package http composes OpenTelemetry server spans with the moniof request
// lifecycle. Wrapping with otelhttp on the outside gives every request a
// trace, which the probe middleware then binds to its request context so the
// span-based instrumentation path can correlate.
package http

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/srotas-space/moniof"
)

// Wrap returns handler instrumented with an otelhttp server span around the
// probe's middleware.
func Wrap(handler http.Handler, probe *moniof.Probe, operation string) http.Handler {
	return otelhttp.NewHandler(probe.Middleware(handler), operation)
}
