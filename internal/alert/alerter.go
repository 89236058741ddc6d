// Package alert delivers operational alerts about the proxy cluster and its
// upstream SDK bridge to Slack and generic webhooks.
package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/SVOIcom/everscale-connect-backend/internal/metrics"
)

type AlertType string

const (
	AlertTypeWorkerCrashLoop   AlertType = "WORKER_CRASH_LOOP"
	AlertTypeWorkerRecovered   AlertType = "WORKER_RECOVERED"
	AlertTypeUpstreamDown      AlertType = "UPSTREAM_DOWN"
	AlertTypeUpstreamRecovered AlertType = "UPSTREAM_RECOVERED"
)

// Alert is one alert event. Component names the part of the proxy that
// raised it; Network is the Everscale network server, when relevant.
type Alert struct {
	Type      AlertType
	Component string
	Network   string
	Title     string
	Message   string
	Fields    map[string]string
}

type Alerter interface {
	Send(ctx context.Context, alert Alert) error
}

// New builds the configured channels behind a MultiAlerter. With no channel
// configured it returns a NoopAlerter.
func New(slackURL, webhookURL string, cooldown time.Duration, logger *slog.Logger) Alerter {
	var channels []Alerter
	if slackURL != "" {
		channels = append(channels, NewSlackAlerter(slackURL))
	}
	if webhookURL != "" {
		channels = append(channels, NewWebhookAlerter(webhookURL))
	}
	if len(channels) == 0 {
		return NoopAlerter{}
	}
	return NewMultiAlerter(cooldown, logger, channels...)
}

// MultiAlerter fans an alert out to every channel. Repeats of the same
// type, component and network inside the cooldown window are dropped.
type MultiAlerter struct {
	alerters []Alerter
	cooldown time.Duration
	logger   *slog.Logger
	nowFunc  func() time.Time

	mu       sync.Mutex
	lastSent map[string]time.Time
}

func NewMultiAlerter(cooldown time.Duration, logger *slog.Logger, alerters ...Alerter) *MultiAlerter {
	return &MultiAlerter{
		alerters: alerters,
		cooldown: cooldown,
		logger:   logger.With("component", "alerter"),
		nowFunc:  time.Now,
		lastSent: make(map[string]time.Time),
	}
}

func cooldownKey(a Alert) string {
	return string(a.Type) + "|" + a.Component + "|" + a.Network
}

// Send returns the first channel error; the remaining channels are still
// tried.
func (m *MultiAlerter) Send(ctx context.Context, alert Alert) error {
	key := cooldownKey(alert)
	now := m.nowFunc()

	m.mu.Lock()
	if last, ok := m.lastSent[key]; ok && now.Sub(last) < m.cooldown {
		m.mu.Unlock()
		m.logger.Debug("alert suppressed by cooldown", "key", key)
		for _, a := range m.alerters {
			metrics.AlertsCooldownSkipped.WithLabelValues(channelName(a), string(alert.Type)).Inc()
		}
		return nil
	}
	m.lastSent[key] = now
	m.mu.Unlock()

	var firstErr error
	for _, a := range m.alerters {
		if err := a.Send(ctx, alert); err != nil {
			m.logger.Warn("alert send failed",
				"channel", channelName(a),
				"type", alert.Type,
				"error", err,
			)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		metrics.AlertsSentTotal.WithLabelValues(channelName(a), string(alert.Type)).Inc()
	}
	return firstErr
}

func channelName(a Alerter) string {
	switch a.(type) {
	case *SlackAlerter:
		return "slack"
	case *WebhookAlerter:
		return "webhook"
	default:
		return "other"
	}
}

// scope renders "component/network", or just the component.
func (a Alert) scope() string {
	if a.Network == "" {
		return a.Component
	}
	return a.Component + "/" + a.Network
}

func postJSON(ctx context.Context, client *http.Client, url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}

type SlackAlerter struct {
	webhookURL string
	client     *http.Client
}

func NewSlackAlerter(webhookURL string) *SlackAlerter {
	return &SlackAlerter{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

func slackEmoji(t AlertType) string {
	switch t {
	case AlertTypeWorkerRecovered, AlertTypeUpstreamRecovered:
		return ":white_check_mark:"
	case AlertTypeUpstreamDown:
		return ":rotating_light:"
	default:
		return ":warning:"
	}
}

func (s *SlackAlerter) Send(ctx context.Context, alert Alert) error {
	var b strings.Builder
	fmt.Fprintf(&b, "%s *[%s]* %s: %s\n%s", slackEmoji(alert.Type), alert.Type, alert.scope(), alert.Title, alert.Message)

	if len(alert.Fields) > 0 {
		keys := make([]string, 0, len(alert.Fields))
		for k := range alert.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("\n")
		for _, k := range keys {
			fmt.Fprintf(&b, "- *%s*: %s\n", k, alert.Fields[k])
		}
	}

	if err := postJSON(ctx, s.client, s.webhookURL, map[string]string{"text": b.String()}); err != nil {
		return fmt.Errorf("send slack alert: %w", err)
	}
	return nil
}

type WebhookAlerter struct {
	url    string
	client *http.Client
}

func NewWebhookAlerter(url string) *WebhookAlerter {
	return &WebhookAlerter{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (w *WebhookAlerter) Send(ctx context.Context, alert Alert) error {
	payload := map[string]any{
		"type":      string(alert.Type),
		"component": alert.Component,
		"network":   alert.Network,
		"title":     alert.Title,
		"message":   alert.Message,
		"fields":    alert.Fields,
		"time":      time.Now().UTC().Format(time.RFC3339),
	}
	if err := postJSON(ctx, w.client, w.url, payload); err != nil {
		return fmt.Errorf("send webhook alert: %w", err)
	}
	return nil
}

type NoopAlerter struct{}

func (NoopAlerter) Send(context.Context, Alert) error { return nil }
