// Package aggregate turns the raw event list of one request into a Report:
// totals, per-key stats, the slowest key and the N+1 candidate. Build is a
// pure function of its inputs; all state lives in the returned Report.
package aggregate

import "github.com/srotas-space/moniof/domain"

// DefaultTrigger is the repeat count at which a key becomes an N+1
// candidate: any key issued more than once in a single request qualifies.
const DefaultTrigger = 2

// Build computes the aggregation report for a finished request. The event
// slice must be in call order; per-key stats, the slowest key and the N+1
// key all break ties by first-seen order. An empty event list yields a
// zero-valued report with both keys absent.
func Build(events []domain.DBEvent, trigger int) domain.Report {
	if trigger <= 0 {
		trigger = DefaultTrigger
	}

	rep := domain.Report{TotalCalls: len(events)}
	if len(events) == 0 {
		return rep
	}

	index := make(map[string]int, len(events))
	for _, ev := range events {
		rep.TotalDBTime += ev.Duration

		i, seen := index[ev.Key]
		if !seen {
			i = len(rep.PerKey)
			index[ev.Key] = i
			rep.PerKey = append(rep.PerKey, domain.KeyStats{Key: ev.Key})
		}
		ks := &rep.PerKey[i]
		ks.Count++
		ks.TotalTime += ev.Duration
		if ev.Duration > ks.MaxTime {
			ks.MaxTime = ev.Duration
		}
	}

	// Slowest key by cumulative time. Iterating the slice, not the map,
	// keeps ties deterministic.
	slowest := 0
	for i := range rep.PerKey {
		if rep.PerKey[i].TotalTime > rep.PerKey[slowest].TotalTime {
			slowest = i
		}
	}
	rep.SlowestKey = rep.PerKey[slowest].Key

	// N+1 candidate: the qualifying key with the highest repeat count.
	best := -1
	for i := range rep.PerKey {
		if rep.PerKey[i].Count < trigger {
			continue
		}
		if best < 0 || rep.PerKey[i].Count > rep.PerKey[best].Count {
			best = i
		}
	}
	if best >= 0 {
		rep.NPlusOneKey = rep.PerKey[best].Key
		rep.NPlusOneCount = rep.PerKey[best].Count
	}

	return rep
}
