// Package email implements the Email trigger dispatch (spec §4.9): an SMTP
// message with STARTTLS when the port is not 465, else an implicit-TLS
// (SMTPS) connection.
package email

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/mail"
	"net/smtp"
	"strings"

	"github.com/chainwatch/monitor/infrastructure/errors"
	"github.com/chainwatch/monitor/infrastructure/secrets"
	"github.com/chainwatch/monitor/internal/model"
)

// maxSubjectLen enforces RFC 5322's practical line-length convention (spec
// §4.9: "subject length <= 998 chars").
const maxSubjectLen = 998

// Client dispatches Email trigger notifications via SMTP.
type Client struct{}

// New builds an email Client.
func New() *Client { return &Client{} }

// Send connects to cfg.SMTPHost:cfg.SMTPPort and delivers a message with
// the rendered subject/body.
func (c *Client) Send(ctx context.Context, cfg *model.EmailConfig, resolver *secrets.Resolver, subject, body string) error {
	if _, err := mail.ParseAddress(cfg.From); err != nil {
		return errors.Wrap(errors.KindNotification, "notify.email", "invalid from address", err)
	}
	for _, to := range cfg.To {
		if _, err := mail.ParseAddress(to); err != nil {
			return errors.Wrap(errors.KindNotification, "notify.email", "invalid recipient address", err)
		}
	}
	if len(subject) > maxSubjectLen {
		subject = subject[:maxSubjectLen]
	}

	password, err := cfg.Password.Resolve(ctx, resolver)
	if err != nil {
		return errors.Wrap(errors.KindNotification, "notify.email", "resolve password", err)
	}

	addr := fmt.Sprintf("%s:%d", cfg.SMTPHost, cfg.SMTPPort)
	msg := buildMessage(cfg.From, cfg.To, subject, body)

	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, password, cfg.SMTPHost)
	}

	if cfg.SMTPPort == 465 {
		return sendSMTPS(addr, cfg.SMTPHost, auth, cfg.From, cfg.To, msg)
	}
	return smtp.SendMail(addr, auth, cfg.From, cfg.To, msg)
}

func sendSMTPS(addr, host string, auth smtp.Auth, from string, to []string, msg []byte) error {
	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: host})
	if err != nil {
		return errors.Wrap(errors.KindNotification, "notify.email", "dial smtps", err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, host)
	if err != nil {
		return errors.Wrap(errors.KindNotification, "notify.email", "smtp handshake", err)
	}
	defer client.Close()

	if auth != nil {
		if err := client.Auth(auth); err != nil {
			return errors.Wrap(errors.KindNotification, "notify.email", "smtp auth", err)
		}
	}
	if err := client.Mail(from); err != nil {
		return errors.Wrap(errors.KindNotification, "notify.email", "mail from", err)
	}
	for _, addr := range to {
		if err := client.Rcpt(addr); err != nil {
			return errors.Wrap(errors.KindNotification, "notify.email", "rcpt to", err)
		}
	}
	w, err := client.Data()
	if err != nil {
		return errors.Wrap(errors.KindNotification, "notify.email", "data", err)
	}
	if _, err := w.Write(msg); err != nil {
		return errors.Wrap(errors.KindNotification, "notify.email", "write message", err)
	}
	return w.Close()
}

func buildMessage(from string, to []string, subject, body string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n\r\n")
	b.WriteString(body)
	return []byte(b.String())
}
