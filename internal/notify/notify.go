// Package notify provides alert notification delivery.
package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"net/smtp"
	"time"

	"github.com/rs/zerolog"

	"mintstack/internal/config"
)

// AlertNotification carries everything needed to deliver one
// triggered-alert notification.
type AlertNotification struct {
	RecipientEmail string
	RecipientName  string
	Symbol         string
	AlertTypeLabel string
	TargetValue    float64
	CurrentValue   float64
}

// Notifier delivers triggered-alert notifications. Delivery is
// best-effort: the boolean result only feeds the notificationSent flag
// and a failed delivery is never retried.
type Notifier interface {
	SendAlertNotification(ctx context.Context, n AlertNotification) bool
}

// Channel is one delivery mechanism.
type Channel interface {
	Name() string
	Send(ctx context.Context, n AlertNotification) error
	IsEnabled() bool
}

// MultiNotifier fans a notification out to all enabled channels.
// Delivery succeeds when at least one channel succeeds.
type MultiNotifier struct {
	channels []Channel
	logger   zerolog.Logger
}

// NewMultiNotifier creates a notifier from the notification configuration.
func NewMultiNotifier(cfg config.NotificationConfig, logger zerolog.Logger) *MultiNotifier {
	mn := &MultiNotifier{
		logger: logger.With().Str("component", "notify").Logger(),
	}

	if !cfg.Enabled {
		return mn
	}

	mn.AddChannel(NewEmailChannel(cfg.Email))
	mn.AddChannel(NewWebhookChannel(cfg.Webhook))

	return mn
}

// AddChannel registers a delivery channel.
func (mn *MultiNotifier) AddChannel(ch Channel) {
	mn.channels = append(mn.channels, ch)
}

// SendAlertNotification delivers via every enabled channel and reports
// whether at least one delivery succeeded.
func (mn *MultiNotifier) SendAlertNotification(ctx context.Context, n AlertNotification) bool {
	sent := false
	for _, ch := range mn.channels {
		if !ch.IsEnabled() {
			continue
		}
		if err := ch.Send(ctx, n); err != nil {
			mn.logger.Warn().Err(err).
				Str("channel", ch.Name()).
				Str("symbol", n.Symbol).
				Msg("Notification delivery failed")
			continue
		}
		sent = true
	}
	return sent
}

// ============================================================================
// Email channel
// ============================================================================

// EmailChannel delivers notifications over SMTP.
type EmailChannel struct {
	smtpHost string
	smtpPort int
	username string
	password string
	from     string
	enabled  bool
}

// NewEmailChannel creates a new email channel.
func NewEmailChannel(cfg config.EmailConfig) *EmailChannel {
	return &EmailChannel{
		smtpHost: cfg.SMTPHost,
		smtpPort: cfg.SMTPPort,
		username: cfg.Username,
		password: cfg.Password,
		from:     cfg.From,
		enabled:  cfg.Enabled && cfg.SMTPHost != "" && cfg.From != "",
	}
}

// Name returns the channel name.
func (e *EmailChannel) Name() string {
	return "email"
}

// IsEnabled returns whether the channel is enabled.
func (e *EmailChannel) IsEnabled() bool {
	return e.enabled
}

// Send delivers one alert notification email.
func (e *EmailChannel) Send(ctx context.Context, n AlertNotification) error {
	subject := fmt.Sprintf("Price alert: %s %s %.2f", n.Symbol, n.AlertTypeLabel, n.TargetValue)
	body := fmt.Sprintf(
		"Hello %s,\n\nYour alert for %s has triggered.\n\nCondition: %s %.2f\nCurrent value: %.2f\n",
		n.RecipientName, n.Symbol, n.AlertTypeLabel, n.TargetValue, n.CurrentValue)

	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n%s",
		e.from, n.RecipientEmail, subject, body)

	addr := fmt.Sprintf("%s:%d", e.smtpHost, e.smtpPort)

	var auth smtp.Auth
	if e.username != "" && e.password != "" {
		auth = smtp.PlainAuth("", e.username, e.password, e.smtpHost)
	}

	// Implicit TLS on port 465, STARTTLS or plain otherwise
	if e.smtpPort == 465 {
		return e.sendWithTLS(addr, auth, n.RecipientEmail, msg)
	}

	return smtp.SendMail(addr, auth, e.from, []string{n.RecipientEmail}, []byte(msg))
}

// sendWithTLS sends email using implicit TLS (port 465).
func (e *EmailChannel) sendWithTLS(addr string, auth smtp.Auth, to, msg string) error {
	tlsConfig := &tls.Config{
		ServerName: e.smtpHost,
	}

	conn, err := tls.Dial("tcp", addr, tlsConfig)
	if err != nil {
		return fmt.Errorf("TLS dial failed: %w", err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, e.smtpHost)
	if err != nil {
		return fmt.Errorf("creating SMTP client: %w", err)
	}
	defer client.Close()

	if auth != nil {
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP auth failed: %w", err)
		}
	}

	if err := client.Mail(e.from); err != nil {
		return fmt.Errorf("SMTP MAIL command failed: %w", err)
	}

	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("SMTP RCPT command failed: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("SMTP DATA command failed: %w", err)
	}

	if _, err = w.Write([]byte(msg)); err != nil {
		return fmt.Errorf("writing email body: %w", err)
	}

	if err = w.Close(); err != nil {
		return fmt.Errorf("closing email body: %w", err)
	}

	return client.Quit()
}

// ============================================================================
// Webhook channel
// ============================================================================

// WebhookChannel posts notifications to a configured URL.
type WebhookChannel struct {
	url     string
	enabled bool
	client  *http.Client
}

// NewWebhookChannel creates a new webhook channel.
func NewWebhookChannel(cfg config.WebhookConfig) *WebhookChannel {
	return &WebhookChannel{
		url:     cfg.URL,
		enabled: cfg.Enabled && cfg.URL != "",
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Name returns the channel name.
func (w *WebhookChannel) Name() string {
	return "webhook"
}

// IsEnabled returns whether the channel is enabled.
func (w *WebhookChannel) IsEnabled() bool {
	return w.enabled
}

// Send posts the notification as JSON.
func (w *WebhookChannel) Send(ctx context.Context, n AlertNotification) error {
	payload := map[string]interface{}{
		"recipient": n.RecipientEmail,
		"symbol":    n.Symbol,
		"condition": n.AlertTypeLabel,
		"target":    n.TargetValue,
		"current":   n.CurrentValue,
		"timestamp": time.Now().Format(time.RFC3339),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	return nil
}

// ============================================================================
// No-op channel
// ============================================================================

// NoOpNotifier is a notifier that does nothing (for testing or disabled
// notifications).
type NoOpNotifier struct{}

// NewNoOpNotifier creates a new NoOpNotifier.
func NewNoOpNotifier() *NoOpNotifier {
	return &NoOpNotifier{}
}

// SendAlertNotification does nothing and reports success.
func (n *NoOpNotifier) SendAlertNotification(ctx context.Context, _ AlertNotification) bool {
	return true
}
