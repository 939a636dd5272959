// Package opsalert posts a Slack notification when the refresh loop raises
// a fatal refresh error, so operators learn about a stale snapshot without
// tailing logs.
package opsalert

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/semiotic-ai/network-topology/internal/topology"
)

// SlackChannel posts fatal refresh errors to a Slack incoming webhook.
type SlackChannel struct {
	webhookURL string
	client     *http.Client
}

// NewSlackChannel builds a SlackChannel. A nil *SlackChannel is valid and
// silently does nothing on Notify (so callers can wire it unconditionally).
func NewSlackChannel(webhookURL string) *SlackChannel {
	if webhookURL == "" {
		return nil
	}
	return &SlackChannel{webhookURL: webhookURL, client: &http.Client{Timeout: 5 * time.Second}}
}

// Notify posts err and the refresh's stats to Slack. Failures are logged by
// the caller (topology.FailureHook); Notify itself only ever returns an
// error for the caller to decide whether to log it.
func (c *SlackChannel) Notify(err error, stats topology.RefreshStats) error {
	if c == nil {
		return nil
	}

	payload := buildPayload(err, stats)
	body, marshalErr := json.Marshal(payload)
	if marshalErr != nil {
		return fmt.Errorf("opsalert: marshal slack payload: %w", marshalErr)
	}

	resp, reqErr := c.client.Post(c.webhookURL, "application/json", bytes.NewReader(body))
	if reqErr != nil {
		return fmt.Errorf("opsalert: slack webhook request: %w", reqErr)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("opsalert: slack webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func buildPayload(err error, stats topology.RefreshStats) map[string]any {
	return map[string]any{
		"blocks": []map[string]any{
			{
				"type": "header",
				"text": map[string]any{
					"type": "plain_text",
					"text": "\xF0\x9F\x94\xB4 network-topology refresh failed",
				},
			},
			{
				"type": "section",
				"text": map[string]any{
					"type": "mrkdwn",
					"text": fmt.Sprintf("Previous snapshot retained. Error: `%v`", err),
				},
			},
			{
				"type": "context",
				"elements": []map[string]any{
					{
						"type": "mrkdwn",
						"text": fmt.Sprintf("*Started:* %s | *Failed after:* %s",
							stats.StartedAt.UTC().Format("2006-01-02 15:04:05 UTC"), stats.Duration),
					},
				},
			},
		},
		"attachments": []map[string]any{
			{"color": "#ef4444"},
		},
	}
}
