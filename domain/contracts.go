package domain

import "context"

// Recorder is the single capability driver instrumentation depends on: it
// receives a completed database operation together with the context the
// operation ran under. Implementations correlate the event with the enclosing
// request via the request id carried in ctx; events that cannot be correlated
// (request already finished, background work) are dropped silently. OnDBEvent
// must be safe for concurrent use and must never block, since drivers invoke
// it from synchronous event callbacks.
type Recorder interface {
	OnDBEvent(ctx context.Context, ev DBEvent)
}

// AlertSink delivers a batch of alert messages for one finished request.
// Delivery runs off the request path; failures are the sink's problem and
// must never surface to the caller.
type AlertSink interface {
	Deliver(ctx context.Context, summary RequestSummary, alerts []AlertMessage)
}
