package model

import (
	"context"
	"fmt"
	"net/mail"
	"regexp"
	"strings"

	"github.com/chainwatch/monitor/infrastructure/secrets"
)

// TriggerKind discriminates the Trigger tagged union.
type TriggerKind string

const (
	TriggerWebhook  TriggerKind = "webhook"
	TriggerEmail    TriggerKind = "email"
	TriggerSlack    TriggerKind = "slack"
	TriggerDiscord  TriggerKind = "discord"
	TriggerTelegram TriggerKind = "telegram"
	TriggerScript   TriggerKind = "script"
)

// Template is the rendered title/body pair used by notification triggers.
type Template struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// WebhookConfig configures Webhook, Slack, and Discord triggers — all three
// are HTTP POST-to-URL with an optional HMAC signature header.
type WebhookConfig struct {
	URL            secrets.Secret    `json:"url"`
	Method         string            `json:"method,omitempty"`
	Headers        map[string]string `json:"headers,omitempty"`
	Template       Template          `json:"template"`
	SigningSecret  *secrets.Secret   `json:"signing_secret,omitempty"`
}

// EmailConfig configures an Email trigger.
type EmailConfig struct {
	SMTPHost  string         `json:"smtp_host"`
	SMTPPort  int            `json:"smtp_port"`
	Username  string         `json:"username"`
	Password  secrets.Secret `json:"password"`
	From      string         `json:"from"`
	To        []string       `json:"to"`
	Template  Template       `json:"template"`
}

// TelegramConfig configures a Telegram bot trigger.
type TelegramConfig struct {
	BotToken secrets.Secret `json:"bot_token"`
	ChatID   string         `json:"chat_id"`
	Template Template       `json:"template"`
}

// ScriptConfig configures a Script trigger.
type ScriptConfig struct {
	Path      string `json:"path"`
	Language  string `json:"language,omitempty"`
	TimeoutMs int    `json:"timeout_ms,omitempty"`
}

// Trigger is a user-defined action fired upon a match: a tagged variant
// carrying its channel-specific config.
type Trigger struct {
	Name     string          `json:"name"`
	Kind     TriggerKind     `json:"kind"`
	Webhook  *WebhookConfig  `json:"webhook,omitempty"`
	Email    *EmailConfig    `json:"email,omitempty"`
	Telegram *TelegramConfig `json:"telegram,omitempty"`
	Script   *ScriptConfig   `json:"script,omitempty"`
}

var botTokenPattern = regexp.MustCompile(`^\d+:[A-Za-z0-9_-]{30,}$`)

// Validate checks the variant-specific invariants from spec §3.
func (t *Trigger) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("trigger: name is required")
	}
	switch t.Kind {
	case TriggerWebhook, TriggerSlack, TriggerDiscord:
		if t.Webhook == nil {
			return fmt.Errorf("trigger %s: %s requires webhook config", t.Name, t.Kind)
		}
		if t.Webhook.URL.IsZero() {
			return fmt.Errorf("trigger %s: webhook url is required", t.Name)
		}
		if t.Webhook.Template.Title == "" && t.Webhook.Template.Body == "" {
			return fmt.Errorf("trigger %s: webhook template must not be empty", t.Name)
		}
	case TriggerEmail:
		if t.Email == nil {
			return fmt.Errorf("trigger %s: email requires email config", t.Name)
		}
		if _, err := mail.ParseAddress(t.Email.From); err != nil {
			return fmt.Errorf("trigger %s: invalid from address: %w", t.Name, err)
		}
		if len(t.Email.To) == 0 {
			return fmt.Errorf("trigger %s: at least one recipient is required", t.Name)
		}
		for _, addr := range t.Email.To {
			if _, err := mail.ParseAddress(addr); err != nil {
				return fmt.Errorf("trigger %s: invalid recipient %q: %w", t.Name, addr, err)
			}
		}
	case TriggerTelegram:
		if t.Telegram == nil {
			return fmt.Errorf("trigger %s: telegram requires telegram config", t.Name)
		}
		if t.Telegram.ChatID == "" {
			return fmt.Errorf("trigger %s: telegram chat_id is required", t.Name)
		}
		if t.Telegram.BotToken.Kind() == secrets.KindPlain {
			if token, err := t.Telegram.BotToken.Resolve(context.Background(), nil); err == nil {
				if !botTokenPattern.MatchString(token) {
					return fmt.Errorf("trigger %s: bot_token does not match the expected shape", t.Name)
				}
			}
		}
	case TriggerScript:
		if t.Script == nil || strings.TrimSpace(t.Script.Path) == "" {
			return fmt.Errorf("trigger %s: script path is required", t.Name)
		}
	default:
		return fmt.Errorf("trigger %s: unknown kind %q", t.Name, t.Kind)
	}
	return nil
}
