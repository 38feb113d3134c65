// Package notify — template.go
//
// Renders the per-channel notification body. Email gets an HTML
// template; webhook-style channels get a compact JSON payload.

package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"

	"github.com/lqt0707/monitor/internal/alerting"
)

var emailTemplate = template.Must(template.New("alert").Parse(`<html>
<body>
<h2>Alert: {{.RuleID}}</h2>
<p><strong>Project:</strong> {{.ProjectID}}</p>
<p><strong>Message:</strong> {{.Message}}</p>
<p><strong>Occurrences:</strong> {{.OccurrenceCount}}</p>
<p><strong>Affected users:</strong> {{.AffectedUsers}}</p>
<p><strong>Triggered value:</strong> {{.TriggeredValue}}</p>
<p><strong>Threshold:</strong> {{.Threshold}}</p>
</body>
</html>`))

// notificationView is the data bound into emailTemplate and the webhook
// JSON payload. Built from a Notification's Aggregation when one exists
// (errorCount/errorRate/custom rules); performance rules have no
// aggregation to key off of, so their view is built from the metric name
// and triggered value instead.
type notificationView struct {
	RuleID          string
	ProjectID       string
	Message         string
	OccurrenceCount int
	AffectedUsers   int
	TriggeredValue  float64
	Threshold       float64
}

func viewFor(n alerting.Notification) notificationView {
	view := notificationView{
		RuleID:         n.Rule.ID,
		ProjectID:      n.Project.ProjectID,
		TriggeredValue: n.TriggeredValue,
		Threshold:      n.Rule.Threshold,
	}
	if n.Aggregation != nil {
		view.Message = n.Aggregation.Message
		view.OccurrenceCount = n.Aggregation.OccurrenceCount
		view.AffectedUsers = len(n.Aggregation.AffectedUsers)
	} else {
		view.Message = fmt.Sprintf("metric %q averaged %.2f over the rule's window", n.Metric, n.TriggeredValue)
	}
	return view
}

// RenderEmail produces the HTML body for an email notification.
func RenderEmail(n alerting.Notification) (string, error) {
	var buf bytes.Buffer
	if err := emailTemplate.Execute(&buf, viewFor(n)); err != nil {
		return "", fmt.Errorf("render email template: %w", err)
	}
	return buf.String(), nil
}

// webhookPayload is the JSON body posted to webhook/Slack/DingTalk channels.
type webhookPayload struct {
	RuleID          string  `json:"ruleId"`
	ProjectID       string  `json:"projectId"`
	Message         string  `json:"message"`
	OccurrenceCount int     `json:"occurrenceCount"`
	AffectedUsers   int     `json:"affectedUsers"`
	TriggeredValue  float64 `json:"triggeredValue"`
	Threshold       float64 `json:"threshold"`
}

// RenderWebhook produces the JSON body for a webhook-style channel.
func RenderWebhook(n alerting.Notification) ([]byte, error) {
	view := viewFor(n)
	payload := webhookPayload{
		RuleID:          view.RuleID,
		ProjectID:       view.ProjectID,
		Message:         view.Message,
		OccurrenceCount: view.OccurrenceCount,
		AffectedUsers:   view.AffectedUsers,
		TriggeredValue:  view.TriggeredValue,
		Threshold:       view.Threshold,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal webhook payload: %w", err)
	}
	return data, nil
}
