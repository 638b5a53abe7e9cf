// Package webhook implements the Webhook/Slack/Discord trigger dispatch
// (spec §4.9): an HTTP request carrying the rendered title/body, optionally
// HMAC-signed when the trigger configures a shared secret.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/crypto/hkdf"

	"github.com/chainwatch/monitor/infrastructure/errors"
	"github.com/chainwatch/monitor/infrastructure/secrets"
	"github.com/chainwatch/monitor/internal/model"
)

// hkdfInfo labels the signing-key derivation so the same shared secret
// never doubles as a signing key for an unrelated HMAC use.
const hkdfInfo = "chainwatch-monitor/webhook-signature"

// payload is the JSON body sent to the webhook endpoint.
type payload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Client dispatches webhook/chat notifications over HTTP.
type Client struct {
	httpClient *http.Client
}

// New builds a Client using http.Client with a bounded request timeout.
func New() *Client {
	return &Client{httpClient: &http.Client{Timeout: 15 * time.Second}}
}

// Send renders nothing itself — title/body are expected pre-rendered by
// internal/trigger — and POSTs (or cfg.Method) them as JSON to cfg.URL,
// signing the request if cfg.SigningSecret is set.
func (c *Client) Send(ctx context.Context, cfg *model.WebhookConfig, resolver *secrets.Resolver, title, body string) error {
	url, err := cfg.URL.Resolve(ctx, resolver)
	if err != nil {
		return errors.Wrap(errors.KindNotification, "notify.webhook", "resolve url", err)
	}

	msg := payload{Title: title, Body: body}
	raw, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(errors.KindNotification, "notify.webhook", "encode payload", err)
	}

	method := cfg.Method
	if method == "" {
		method = http.MethodPost
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(raw))
	if err != nil {
		return errors.Wrap(errors.KindNotification, "notify.webhook", "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}

	if cfg.SigningSecret != nil && !cfg.SigningSecret.IsZero() {
		secret, err := cfg.SigningSecret.Resolve(ctx, resolver)
		if err != nil {
			return errors.Wrap(errors.KindNotification, "notify.webhook", "resolve signing secret", err)
		}
		sig, ts, err := sign(secret, raw)
		if err != nil {
			return errors.Wrap(errors.KindNotification, "notify.webhook", "sign request", err)
		}
		req.Header.Set("X-Signature", sig)
		req.Header.Set("X-Timestamp", ts)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(errors.KindNotification, "notify.webhook", "do request", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.New(errors.KindNotification, "notify.webhook", fmt.Sprintf("webhook returned status %d", resp.StatusCode))
	}
	return nil
}

// sign derives a per-dispatch signing key from secret via HKDF-SHA256 and
// HMACs payload||timestamp_ms, returning the hex signature and the
// timestamp used (spec §4.9 "X-Signature = HMAC-SHA256 over
// {body_payload_repr || timestamp_ms}").
func sign(secret string, payload []byte) (signature, timestamp string, err error) {
	key := make([]byte, sha256.Size)
	kdf := hkdf.New(sha256.New, []byte(secret), nil, []byte(hkdfInfo))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return "", "", err
	}

	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
	mac := hmac.New(sha256.New, key)
	mac.Write(payload)
	mac.Write([]byte(ts))
	return hex.EncodeToString(mac.Sum(nil)), ts, nil
}
