package telegram

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"VeilleScanner/internal/domain"
	"VeilleScanner/internal/ports"
)

// maxMessageLen is the Telegram limit for a single text message.
const maxMessageLen = 4096

// Notifier sends alert digests to a Telegram chat via bot API.
type Notifier struct {
	endpoint string
	botToken string
	chatID   string
	client   *http.Client
}

var _ ports.Notifier = (*Notifier)(nil)

// NewNotifier registers bot token and chat identifier. An empty endpoint
// targets the public Telegram API.
func NewNotifier(endpoint, botToken, chatID string, client *http.Client) *Notifier {
	if endpoint == "" {
		endpoint = "https://api.telegram.org"
	}
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &Notifier{
		endpoint: strings.TrimSuffix(endpoint, "/"),
		botToken: botToken,
		chatID:   chatID,
		client:   client,
	}
}

// PublishAlerts posts one plain-text message listing the alerts.
func (n *Notifier) PublishAlerts(ctx context.Context, alerts []domain.Alert) error {
	if len(alerts) == 0 {
		return nil
	}
	return n.send(ctx, buildAlertMessage(alerts))
}

func (n *Notifier) send(ctx context.Context, text string) error {
	if n.botToken == "" || n.chatID == "" || n.client == nil {
		return fmt.Errorf("telegram notifier misconfigured")
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", n.endpoint, n.botToken)
	form := url.Values{}
	form.Set("chat_id", n.chatID)
	form.Set("text", text)
	form.Set("disable_web_page_preview", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram error: %s", resp.Status)
	}

	return nil
}

func buildAlertMessage(alerts []domain.Alert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Veille: %d new alert(s)\n\n", len(alerts))
	for _, a := range alerts {
		fmt.Fprintf(&b, "[%s] %s\n", a.Type, a.Message)
		if a.ReferenceURL != "" {
			b.WriteString(a.ReferenceURL)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	msg := strings.TrimRight(b.String(), "\n")
	if runes := []rune(msg); len(runes) > maxMessageLen {
		msg = string(runes[:maxMessageLen-1]) + "…"
	}
	return msg
}
