package mailer

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"

	"github.com/soundpost/campaigner/internal/dkim"
)

// SMTPConfig holds relay connection settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	Timeout  time.Duration
}

// SMTPTransport submits messages to an authenticated SMTP relay over
// STARTTLS. If a DKIM signer is set, messages are signed before submission.
type SMTPTransport struct {
	cfg    SMTPConfig
	signer *dkim.Signer
	logger *slog.Logger
}

// NewSMTPTransport creates a relay transport. A nil logger uses the default.
func NewSMTPTransport(cfg SMTPConfig, logger *slog.Logger) *SMTPTransport {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SMTPTransport{
		cfg:    cfg,
		logger: logger.With("component", "smtp"),
	}
}

// SetDKIMSigner configures DKIM signing for outgoing messages.
func (t *SMTPTransport) SetDKIMSigner(signer *dkim.Signer) {
	t.signer = signer
}

// Send encodes, optionally signs, and submits a single message.
func (t *SMTPTransport) Send(ctx context.Context, msg *Message) (*Result, error) {
	data, messageID := msg.Encode()

	if t.signer != nil {
		signed, err := t.signer.Sign(data)
		if err != nil {
			t.logger.Warn("DKIM signing failed, sending unsigned",
				"domain", t.signer.Domain(),
				"error", err,
			)
		} else {
			data = signed
		}
	}

	if err := t.submit(ctx, msg.From, msg.To, data); err != nil {
		return nil, err
	}

	t.logger.Info("message submitted",
		"to", msg.To,
		"message_id", messageID,
	)
	return &Result{MessageID: messageID}, nil
}

func (t *SMTPTransport) submit(ctx context.Context, from, to string, data []byte) error {
	addr := net.JoinHostPort(t.cfg.Host, strconv.Itoa(t.cfg.Port))

	tlsConfig := &tls.Config{
		ServerName: t.cfg.Host,
		MinVersion: tls.VersionTLS12,
	}

	// Dial the connection ourselves so the deadline covers the whole
	// exchange, STARTTLS negotiation included.
	dialer := &net.Dialer{Timeout: t.cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("connection to %s failed: %w", addr, err)
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(t.cfg.Timeout)
	}
	_ = conn.SetDeadline(deadline)

	client, err := smtp.NewClientStartTLS(conn, tlsConfig)
	if err != nil {
		conn.Close()
		return fmt.Errorf("STARTTLS negotiation with %s failed: %w", addr, err)
	}
	defer client.Close()

	if t.cfg.Username != "" {
		auth := sasl.NewPlainClient("", t.cfg.Username, t.cfg.Password)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("AUTH failed: %w", err)
		}
	}

	if err := client.SendMail(from, []string{to}, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("submission failed: %w", err)
	}

	return client.Quit()
}
