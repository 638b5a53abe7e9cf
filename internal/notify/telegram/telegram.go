// Package telegram implements the Telegram trigger dispatch: an HTTP POST
// to the Bot API's sendMessage endpoint with the rendered body.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/chainwatch/monitor/infrastructure/errors"
	"github.com/chainwatch/monitor/infrastructure/secrets"
	"github.com/chainwatch/monitor/internal/model"
)

const apiBase = "https://api.telegram.org"

type sendMessageRequest struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

// Client dispatches Telegram bot notifications.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// New builds a telegram Client.
func New() *Client {
	return &Client{httpClient: &http.Client{Timeout: 15 * time.Second}, baseURL: apiBase}
}

// Send posts title+body (joined, since Telegram has no separate subject
// field) to cfg.ChatID via the bot identified by cfg.BotToken.
func (c *Client) Send(ctx context.Context, cfg *model.TelegramConfig, resolver *secrets.Resolver, title, body string) error {
	token, err := cfg.BotToken.Resolve(ctx, resolver)
	if err != nil {
		return errors.Wrap(errors.KindNotification, "notify.telegram", "resolve bot token", err)
	}

	text := body
	if title != "" {
		text = title + "\n" + body
	}
	raw, err := json.Marshal(sendMessageRequest{ChatID: cfg.ChatID, Text: text})
	if err != nil {
		return errors.Wrap(errors.KindNotification, "notify.telegram", "encode payload", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", c.baseURL, token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return errors.Wrap(errors.KindNotification, "notify.telegram", "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(errors.KindNotification, "notify.telegram", "do request", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.New(errors.KindNotification, "notify.telegram", fmt.Sprintf("telegram api returned status %d", resp.StatusCode))
	}
	return nil
}
