package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const telegramAPIBase = "https://api.telegram.org"

// Telegram delivers messages through the Telegram Bot API.
type Telegram struct {
	token   string
	chatID  string
	baseURL string
	client  *http.Client
}

// TelegramOption configures Telegram.
type TelegramOption func(*Telegram)

// WithBaseURL overrides the API endpoint.
func WithBaseURL(u string) TelegramOption {
	return func(t *Telegram) {
		t.baseURL = u
	}
}

// NewTelegram creates a notifier for the given bot token and chat id.
func NewTelegram(token, chatID string, opts ...TelegramOption) *Telegram {
	t := &Telegram{
		token:   token,
		chatID:  chatID,
		baseURL: telegramAPIBase,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Send posts the message to the configured chat.
func (t *Telegram) Send(ctx context.Context, message string) error {
	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token)

	payload, err := json.Marshal(map[string]interface{}{
		"chat_id":                  t.chatID,
		"text":                     message,
		"disable_web_page_preview": true,
	})
	if err != nil {
		return fmt.Errorf("telegram: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("telegram: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("telegram: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	return nil
}
