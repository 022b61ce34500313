package domain

import "time"

// KeyStats accumulates the per-key numbers for one request.
type KeyStats struct {
	Key       string
	Count     int
	TotalTime time.Duration
	MaxTime   time.Duration
}

// Report is the aggregation result for a single request. It is derived once
// from the final event list and is immutable afterwards. PerKey preserves
// first-seen order, which is also the tie-break order for SlowestKey and
// NPlusOneKey. Empty SlowestKey/NPlusOneKey mean "absent".
type Report struct {
	TotalCalls  int
	TotalDBTime time.Duration
	PerKey      []KeyStats

	SlowestKey    string
	NPlusOneKey   string
	NPlusOneCount int
}

// Stats returns the accumulated stats for key, if the key was seen.
func (r Report) Stats(key string) (KeyStats, bool) {
	for _, ks := range r.PerKey {
		if ks.Key == key {
			return ks, true
		}
	}
	return KeyStats{}, false
}

// RequestSummary bundles the request-level facts handed to alert delivery.
type RequestSummary struct {
	Method  string
	Path    string
	Status  int
	Elapsed time.Duration
	Report  Report
}
