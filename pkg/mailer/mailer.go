package mailer

import (
	"fmt"
	"net/smtp"
	"strings"
)

// Mailer delivers plain-text mail. Send failures are surfaced to the caller,
// who decides whether delivery is critical for the flow.
type Mailer interface {
	Send(to, subject, body string) error
}

// SMTPMailer sends mail over SMTP with STARTTLS and plain auth.
type SMTPMailer struct {
	addr     string
	host     string
	username string
	password string
	from     string
}

// NewSMTPMailer builds a mailer for the given SMTP endpoint ("host:port").
func NewSMTPMailer(addr, username, password, from string) (*SMTPMailer, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, fmt.Errorf("smtp addr is required")
	}
	host := addr
	if idx := strings.LastIndex(addr, ":"); idx > 0 {
		host = addr[:idx]
	}
	from = strings.TrimSpace(from)
	if from == "" {
		from = strings.TrimSpace(username)
	}
	if from == "" {
		return nil, fmt.Errorf("smtp sender address is required")
	}
	return &SMTPMailer{
		addr:     addr,
		host:     host,
		username: username,
		password: password,
		from:     from,
	}, nil
}

// Send delivers a single plain-text message.
func (m *SMTPMailer) Send(to, subject, body string) error {
	to = strings.TrimSpace(to)
	if to == "" {
		return fmt.Errorf("recipient address is required")
	}
	msg := strings.Builder{}
	fmt.Fprintf(&msg, "From: %s\r\n", m.from)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", sanitizeHeader(subject))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)

	var auth smtp.Auth
	if m.username != "" {
		auth = smtp.PlainAuth("", m.username, m.password, m.host)
	}
	if err := smtp.SendMail(m.addr, auth, m.from, []string{to}, []byte(msg.String())); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}

// sanitizeHeader strips CR/LF so user-influenced values cannot inject headers.
func sanitizeHeader(v string) string {
	v = strings.ReplaceAll(v, "\r", " ")
	return strings.ReplaceAll(v, "\n", " ")
}
