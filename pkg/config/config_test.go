package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Empty(t, cfg.SlackWebhook)
	assert.Equal(t, 2, cfg.NPlusOneThreshold)
	assert.Equal(t, 60, cfg.MaxTotalQueries)
	assert.True(t, cfg.AddResponseHeaders)
	assert.True(t, cfg.LogWarnings)
	assert.Equal(t, 2*time.Minute, cfg.StaleAfter)
	assert.Zero(t, cfg.SlowDBThreshold)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("MONIOF_SLOW_DB_THRESHOLD", "250ms")
	t.Setenv("MONIOF_N_PLUS_ONE_TRIGGER_COUNT", "5")
	t.Setenv("MONIOF_LOG_EACH_DB_EVENT", "true")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 250*time.Millisecond, cfg.SlowDBThreshold)
	assert.Equal(t, 5, cfg.NPlusOneThreshold)
	assert.True(t, cfg.LogEachDBEvent)
}

func TestValidate_RejectsBadWebhook(t *testing.T) {
	cfg := Default()
	cfg.SlackWebhook = "not a url at all"
	assert.Error(t, cfg.Validate())

	cfg.SlackWebhook = "ftp://hooks.slack.com/services/x"
	assert.Error(t, cfg.Validate())

	cfg.SlackWebhook = "https://hooks.slack.com/services/T000/B000/XXXX"
	assert.NoError(t, cfg.Validate())
}

func TestValidate_RejectsNegativeTrigger(t *testing.T) {
	cfg := Default()
	cfg.NPlusOneThreshold = -1
	assert.Error(t, cfg.Validate())
}
