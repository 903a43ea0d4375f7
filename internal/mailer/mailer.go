// Package mailer defines the outbound email transport and its SMTP relay
// implementation.
package mailer

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Message is one outbound email.
type Message struct {
	From     string // address only
	FromName string
	To       string
	Subject  string
	HTML     string
	Text     string
}

// Result reports a transport outcome. MessageID is set on success only.
type Result struct {
	MessageID string
}

// Transport delivers a single message. Implementations return an error for
// any delivery failure; the dispatch loop records it on the recipient's
// send row and moves on.
type Transport interface {
	Send(ctx context.Context, msg *Message) (*Result, error)
}

// FromHeader formats the From header value.
func (m *Message) FromHeader() string {
	if m.FromName == "" {
		return m.From
	}
	return m.FromName + " <" + m.From + ">"
}

// Encode constructs the RFC 5322 wire form of the message as a
// multipart/alternative body with text and HTML parts. The generated
// Message-ID is returned alongside the data.
func (m *Message) Encode() ([]byte, string) {
	messageID := fmt.Sprintf("%s@%s", uuid.New().String(), extractDomain(m.From))
	boundary := uuid.New().String()

	var buf bytes.Buffer
	buf.WriteString(fmt.Sprintf("From: %s\r\n", m.FromHeader()))
	buf.WriteString(fmt.Sprintf("To: %s\r\n", m.To))
	buf.WriteString(fmt.Sprintf("Subject: %s\r\n", m.Subject))
	buf.WriteString(fmt.Sprintf("Date: %s\r\n", time.Now().Format(time.RFC1123Z)))
	buf.WriteString(fmt.Sprintf("Message-ID: <%s>\r\n", messageID))
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString(fmt.Sprintf("Content-Type: multipart/alternative; boundary=\"%s\"\r\n", boundary))
	buf.WriteString("\r\n")

	if m.Text != "" {
		buf.WriteString(fmt.Sprintf("--%s\r\n", boundary))
		buf.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
		buf.WriteString("\r\n")
		buf.WriteString(m.Text)
		buf.WriteString("\r\n")
	}

	buf.WriteString(fmt.Sprintf("--%s\r\n", boundary))
	buf.WriteString("Content-Type: text/html; charset=utf-8\r\n")
	buf.WriteString("\r\n")
	buf.WriteString(m.HTML)
	buf.WriteString("\r\n")
	buf.WriteString(fmt.Sprintf("--%s--\r\n", boundary))

	return buf.Bytes(), messageID
}

func extractDomain(email string) string {
	if i := strings.LastIndex(email, "@"); i >= 0 && i < len(email)-1 {
		return email[i+1:]
	}
	return "localhost"
}
