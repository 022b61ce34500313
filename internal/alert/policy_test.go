package alert

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srotas-space/moniof/domain"
	"github.com/srotas-space/moniof/internal/aggregate"
	"github.com/srotas-space/moniof/pkg/config"
)

func TestEvaluate_SingleFailureEmitsOneAlert(t *testing.T) {
	cfg := config.Default()
	cfg.SlowDBThreshold = time.Second

	events := []domain.DBEvent{{
		Key:      "mongo/users/find",
		Kind:     domain.KindMongo,
		Duration: 3 * time.Millisecond,
		Failure:  "cursor not found",
	}}
	rep := aggregate.Build(events, cfg.NPlusOneThreshold)

	alerts := Evaluate(events, rep, cfg)
	require.Len(t, alerts, 1)
	assert.Equal(t, domain.AlertFailure, alerts[0].Kind)
	assert.Equal(t, "mongo/users/find", alerts[0].Key)
	assert.Equal(t, "cursor not found", alerts[0].Reason)
}

func TestEvaluate_SlowThresholdIsInclusive(t *testing.T) {
	cfg := config.Default()
	cfg.SlowDBThreshold = 100 * time.Millisecond

	events := []domain.DBEvent{
		{Key: "sql/select 1", Duration: 100 * time.Millisecond}, // exactly at the boundary
		{Key: "sql/select 2", Duration: 99 * time.Millisecond},
	}
	rep := aggregate.Build(events, cfg.NPlusOneThreshold)

	alerts := Evaluate(events, rep, cfg)
	require.Len(t, alerts, 1)
	assert.Equal(t, domain.AlertSlowQuery, alerts[0].Kind)
	assert.Equal(t, "sql/select 1", alerts[0].Key)
	assert.Equal(t, 100*time.Millisecond, alerts[0].Duration)
}

func TestEvaluate_ZeroThresholdDisablesSlowChecks(t *testing.T) {
	cfg := config.Default()
	events := []domain.DBEvent{{Key: "sql/select 1", Duration: time.Hour}}
	rep := aggregate.Build(events, cfg.NPlusOneThreshold)

	assert.Empty(t, Evaluate(events, rep, cfg))
}

func TestEvaluate_NPlusOneAlert(t *testing.T) {
	cfg := config.Default()
	events := []domain.DBEvent{
		{Key: "sql/select name from users where id = ?", Duration: time.Millisecond},
		{Key: "sql/select name from users where id = ?", Duration: time.Millisecond},
		{Key: "sql/select * from orders", Duration: time.Millisecond},
	}
	rep := aggregate.Build(events, cfg.NPlusOneThreshold)

	alerts := Evaluate(events, rep, cfg)
	require.Len(t, alerts, 1)
	assert.Equal(t, domain.AlertNPlusOne, alerts[0].Kind)
	assert.Equal(t, "sql/select name from users where id = ?", alerts[0].Key)
	assert.Equal(t, 2, alerts[0].Count)
}

func TestEvaluate_RulesTriggerIndependently(t *testing.T) {
	cfg := config.Default()
	cfg.SlowDBThreshold = 5 * time.Millisecond

	events := []domain.DBEvent{
		{Key: "a", Duration: 10 * time.Millisecond, Failure: "timeout"},
		{Key: "a", Duration: time.Millisecond},
	}
	rep := aggregate.Build(events, cfg.NPlusOneThreshold)

	alerts := Evaluate(events, rep, cfg)
	require.Len(t, alerts, 3)
	assert.Equal(t, domain.AlertFailure, alerts[0].Kind)
	assert.Equal(t, domain.AlertSlowQuery, alerts[1].Kind)
	assert.Equal(t, domain.AlertNPlusOne, alerts[2].Kind)
}

func TestEvaluate_EmptyRequest(t *testing.T) {
	cfg := config.Default()
	rep := aggregate.Build(nil, cfg.NPlusOneThreshold)
	assert.Empty(t, Evaluate(nil, rep, cfg))
}
