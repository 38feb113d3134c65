// Package notify — dispatcher.go
//
// Dispatcher sends a fired alert's notification across its configured
// channels: email via SMTP, everything else via a plain HTTP POST of the
// JSON payload.

package notify

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/smtp"

	"go.uber.org/zap"

	"github.com/lqt0707/monitor/internal/alerting"
	"github.com/lqt0707/monitor/internal/model"
)

// SMTPConfig holds the outbound mail server settings.
type SMTPConfig struct {
	Addr     string
	From     string
	Username string
	Password string
	Host     string // used for PlainAuth, usually Addr without the port
}

// HistoryUpdater marks a fired alert's terminal status.
type HistoryUpdater interface {
	UpdateStatus(ctx context.Context, id string, status model.AlertHistoryStatus) error
}

// Dispatcher sends notifications and records their outcome.
type Dispatcher struct {
	smtp    SMTPConfig
	client  *http.Client
	pacer   *Pacer
	history HistoryUpdater
	log     *zap.Logger
}

func NewDispatcher(smtpCfg SMTPConfig, client *http.Client, pacer *Pacer, history HistoryUpdater, log *zap.Logger) *Dispatcher {
	if client == nil {
		client = http.DefaultClient
	}
	if pacer == nil {
		pacer = NewPacer(DefaultMinInterval)
	}
	return &Dispatcher{smtp: smtpCfg, client: client, pacer: pacer, history: history, log: log}
}

// Dispatch sends n across every action channel on its rule, logs
// per-channel failures, and updates the alert history entry's terminal
// status. historyID is the AlertHistory row Evaluate() already appended.
func (d *Dispatcher) Dispatch(ctx context.Context, n alerting.Notification, historyID string) {
	status := model.AlertStatusSent
	for _, ch := range n.Rule.Actions {
		if err := d.send(ctx, ch, n); err != nil {
			status = model.AlertStatusFailed
			if d.log != nil {
				d.log.Warn("notification channel failed",
					zap.String("channel", string(ch)), zap.String("ruleId", n.Rule.ID), zap.Error(err))
			}
		}
	}
	if d.history != nil {
		if err := d.history.UpdateStatus(ctx, historyID, status); err != nil && d.log != nil {
			d.log.Warn("failed to update alert history status", zap.Error(err))
		}
	}
}

func (d *Dispatcher) send(ctx context.Context, ch model.ActionChannel, n alerting.Notification) error {
	switch ch {
	case model.ActionEmail:
		return d.sendEmail(ctx, n)
	case model.ActionWebhook, model.ActionSlack, model.ActionDingTalk:
		return d.sendWebhook(ctx, n)
	default:
		return fmt.Errorf("unknown action channel %q", ch)
	}
}

func (d *Dispatcher) sendEmail(ctx context.Context, n alerting.Notification) error {
	if n.Project.AlertEmail == "" {
		return fmt.Errorf("project %s has no alertEmail configured", n.Project.ProjectID)
	}
	if err := d.pacer.Wait(ctx, n.Project.AlertEmail); err != nil {
		return fmt.Errorf("wait for send pacing: %w", err)
	}

	body, err := RenderEmail(n)
	if err != nil {
		return err
	}

	msg := buildMIMEMessage(d.smtp.From, n.Project.AlertEmail, fmt.Sprintf("[alert] %s", n.Rule.ID), body)

	var auth smtp.Auth
	if d.smtp.Username != "" {
		auth = smtp.PlainAuth("", d.smtp.Username, d.smtp.Password, d.smtp.Host)
	}
	if err := smtp.SendMail(d.smtp.Addr, auth, d.smtp.From, []string{n.Project.AlertEmail}, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

func buildMIMEMessage(from, to, subject, htmlBody string) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", to)
	fmt.Fprintf(&buf, "Subject: %s\r\n", subject)
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n\r\n")
	buf.WriteString(htmlBody)
	return buf.Bytes()
}

func (d *Dispatcher) sendWebhook(ctx context.Context, n alerting.Notification) error {
	if n.Rule.Target == "" {
		return fmt.Errorf("rule %s has no target configured for channel", n.Rule.ID)
	}
	if err := d.pacer.Wait(ctx, n.Rule.Target); err != nil {
		return fmt.Errorf("wait for send pacing: %w", err)
	}

	payload, err := RenderWebhook(n)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.Rule.Target, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
