// Package monitoring raises webhook alerts for extraction runs that went badly.
package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/bill-extract/internal/batch"
	"github.com/sells-group/bill-extract/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertUnreadableRate AlertType = "unreadable_rate"
	AlertFilenameBillNo AlertType = "filename_bill_no_rate"
	AlertWorkerPanic    AlertType = "worker_panic"
	AlertRunAborted     AlertType = "run_aborted"
)

// minDocuments is the smallest run that rate alerts are computed for.
const minDocuments = 5

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	RunID     string         `json:"run_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a batch summary against configured thresholds
// and sends alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate checks a finished run and returns any alerts. runErr is the
// error the run returned, if any.
func (a *Alerter) Evaluate(sum batch.Summary, runErr error) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	if sum.Documents >= minDocuments && a.cfg.UnreadableRateThreshold > 0 {
		rate := float64(sum.Unreadable) / float64(sum.Documents)
		if rate > a.cfg.UnreadableRateThreshold {
			alerts = append(alerts, Alert{
				Type:     AlertUnreadableRate,
				Severity: "high",
				Message: fmt.Sprintf(
					"Unreadable rate %.1f%% exceeds threshold %.1f%% (%d of %d bills)",
					rate*100, a.cfg.UnreadableRateThreshold*100, sum.Unreadable, sum.Documents,
				),
				RunID: sum.RunID,
				Details: map[string]any{
					"unreadable_rate": rate,
					"threshold":       a.cfg.UnreadableRateThreshold,
					"unreadable":      sum.Unreadable,
					"documents":       sum.Documents,
				},
				Timestamp: now,
			})
		}
	}

	if sum.Documents >= minDocuments && a.cfg.FilenameBillNoThreshold > 0 {
		rate := float64(sum.FilenameDocumentNo) / float64(sum.Documents)
		if rate > a.cfg.FilenameBillNoThreshold {
			alerts = append(alerts, Alert{
				Type:     AlertFilenameBillNo,
				Severity: "medium",
				Message: fmt.Sprintf(
					"%d of %d bills fell back to the filename for the bill number",
					sum.FilenameDocumentNo, sum.Documents,
				),
				RunID: sum.RunID,
				Details: map[string]any{
					"filename_rate":        rate,
					"threshold":            a.cfg.FilenameBillNoThreshold,
					"missing_running_bill": sum.MissingSequence,
				},
				Timestamp: now,
			})
		}
	}

	if sum.Panics > 0 {
		alerts = append(alerts, Alert{
			Type:      AlertWorkerPanic,
			Severity:  "high",
			Message:   fmt.Sprintf("%d bill(s) panicked during extraction", sum.Panics),
			RunID:     sum.RunID,
			Details:   map[string]any{"panics": sum.Panics, "recycled": sum.Recycled},
			Timestamp: now,
		})
	}

	if runErr != nil {
		alerts = append(alerts, Alert{
			Type:     AlertRunAborted,
			Severity: "critical",
			Message:  fmt.Sprintf("Run stopped after flushing %d bills in %d chunks: %v", sum.Flushed, sum.Chunks, runErr),
			RunID:    sum.RunID,
			Details: map[string]any{
				"flushed":   sum.Flushed,
				"chunks":    sum.Chunks,
				"cancelled": sum.Cancelled,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

// sendWebhook posts a single alert to the webhook URL.
func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
