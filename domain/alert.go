package domain

import "time"

// AlertKind classifies an alert message.
type AlertKind string

const (
	AlertFailure   AlertKind = "failure"
	AlertSlowQuery AlertKind = "slow_query"
	AlertNPlusOne  AlertKind = "n_plus_one"
)

// AlertMessage is one structured alert produced by the alerting policy.
// Which fields are set depends on the kind: Failure carries Reason, SlowQuery
// carries Duration, NPlusOne carries Count.
type AlertMessage struct {
	Kind     AlertKind
	Key      string
	Reason   string
	Duration time.Duration
	Count    int
}
