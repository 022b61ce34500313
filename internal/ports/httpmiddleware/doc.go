// Package httpmiddleware wires the moniof request lifecycle into net/http:
// request entry creates the per-request context, request exit aggregates the
// recorded database events, writes the x-moniof-* response headers, updates
// Prometheus collectors and hands alerts to the configured sink.
package httpmiddleware
