package domain

import "time"

// Kind identifies the driver family that produced a database event. It is
// used as a metric label and as the first segment of event keys.
type Kind string

const (
	KindMongo Kind = "mongo"
	KindSQL   Kind = "sql"
	KindOther Kind = "other"
)

// DBEvent describes one completed database operation as reported by a driver
// collaborator. The key is an opaque, pre-normalized operation identifier
// (e.g. "mongo/users/find" or a parameter-stripped SQL shape); moniof never
// interprets it. A DBEvent is immutable once created.
type DBEvent struct {
	Key       string
	Kind      Kind
	StartedAt time.Time
	Duration  time.Duration

	// Failure carries the driver-reported error message. Empty means the
	// operation succeeded.
	Failure string
}

// Failed reports whether the operation ended in a driver error.
func (e DBEvent) Failed() bool { return e.Failure != "" }
