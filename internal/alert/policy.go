// Package alert implements the alerting policy: it classifies a finished
// request's events and aggregation report into structured alert messages.
// The policy performs no I/O; delivery is the sink's job.
package alert

import (
	"github.com/srotas-space/moniof/domain"
	"github.com/srotas-space/moniof/pkg/config"
)

// Evaluate applies the alert rules in order. Each rule triggers
// independently, so one request can emit several alerts:
//
//   - a Failure alert for every event with a driver-reported failure,
//   - a SlowQuery alert for every event at or above SlowDBThreshold,
//   - one NPlusOne alert when the report carries an N+1 key.
//
// It always runs, webhook configured or not, so logs and headers stay
// consistent with delivery.
func Evaluate(events []domain.DBEvent, rep domain.Report, cfg *config.Config) []domain.AlertMessage {
	var alerts []domain.AlertMessage

	for _, ev := range events {
		if ev.Failed() {
			alerts = append(alerts, domain.AlertMessage{
				Kind:     domain.AlertFailure,
				Key:      ev.Key,
				Reason:   ev.Failure,
				Duration: ev.Duration,
			})
		}
	}

	if cfg.SlowDBThreshold > 0 {
		for _, ev := range events {
			if ev.Duration >= cfg.SlowDBThreshold {
				alerts = append(alerts, domain.AlertMessage{
					Kind:     domain.AlertSlowQuery,
					Key:      ev.Key,
					Duration: ev.Duration,
				})
			}
		}
	}

	if rep.NPlusOneKey != "" {
		alerts = append(alerts, domain.AlertMessage{
			Kind:  domain.AlertNPlusOne,
			Key:   rep.NPlusOneKey,
			Count: rep.NPlusOneCount,
		})
	}

	return alerts
}
