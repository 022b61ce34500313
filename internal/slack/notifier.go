// Package slack posts alert messages to a Slack incoming webhook. Delivery
// is best-effort: failures are logged and swallowed, never surfaced to the
// request that produced the alert.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/srotas-space/moniof/domain"
)

const defaultTimeout = 5 * time.Second

type payload struct {
	Text string `json:"text"`
}

// Notifier implements domain.AlertSink against a Slack webhook. A Notifier
// with an empty webhook is a valid no-op sink.
type Notifier struct {
	webhook string
	client  *http.Client
	log     *zap.Logger
}

var _ domain.AlertSink = (*Notifier)(nil)

// NewNotifier builds a notifier for the given webhook URL. Pass an empty
// webhook to get a no-op sink.
func NewNotifier(webhook string, log *zap.Logger) *Notifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &Notifier{
		webhook: strings.TrimSpace(webhook),
		client:  &http.Client{Timeout: defaultTimeout},
		log:     log,
	}
}

// Enabled reports whether a webhook is configured.
func (n *Notifier) Enabled() bool { return n.webhook != "" }

// Deliver renders the request summary plus alerts into one Slack message and
// posts it. Intended to be called off the request path (go Deliver(...)).
func (n *Notifier) Deliver(ctx context.Context, sum domain.RequestSummary, alerts []domain.AlertMessage) {
	if !n.Enabled() || len(alerts) == 0 {
		return
	}
	n.Notify(ctx, renderMessage(sum, alerts))
}

// Notify posts a raw text message to the webhook. Failures are logged at
// warn level and dropped.
func (n *Notifier) Notify(ctx context.Context, text string) {
	if !n.Enabled() {
		return
	}

	body, err := json.Marshal(payload{Text: text})
	if err != nil {
		n.log.Warn("slack payload marshal failed", zap.Error(err))
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhook, bytes.NewReader(body))
	if err != nil {
		n.log.Warn("slack request build failed", zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		n.log.Warn("slack notify failed", zap.Error(err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		n.log.Warn("slack notify rejected", zap.Int("status", resp.StatusCode))
	}
}

func renderMessage(sum domain.RequestSummary, alerts []domain.AlertMessage) string {
	lines := []string{
		"⚠️ *moniof alert*",
		fmt.Sprintf("• status: %d", sum.Status),
		fmt.Sprintf("• method: %s %s", sum.Method, sum.Path),
		fmt.Sprintf("• total queries: %d", sum.Report.TotalCalls),
		fmt.Sprintf("• req elapsed: %.3fs", sum.Elapsed.Seconds()),
		fmt.Sprintf("• db total latency: %d ms", sum.Report.TotalDBTime.Milliseconds()),
	}
	if sum.Report.SlowestKey != "" {
		if ks, ok := sum.Report.Stats(sum.Report.SlowestKey); ok {
			lines = append(lines, fmt.Sprintf("• slowest key: `%s` (%d ms total)", ks.Key, ks.TotalTime.Milliseconds()))
		}
	}
	for _, a := range alerts {
		switch a.Kind {
		case domain.AlertFailure:
			lines = append(lines, fmt.Sprintf("    ↳ ❌ failed: `%s` — %s", a.Key, a.Reason))
		case domain.AlertSlowQuery:
			lines = append(lines, fmt.Sprintf("    ↳ 🐢 slow: `%s` (%d ms)", a.Key, a.Duration.Milliseconds()))
		case domain.AlertNPlusOne:
			lines = append(lines, fmt.Sprintf("    ↳ 🔁 N+1 suspect: `%s` ×%d", a.Key, a.Count))
		}
	}
	return strings.Join(lines, "\n")
}
