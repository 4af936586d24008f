// Package mailer delivers single review-request emails through SMTP
// submission or Amazon SES.
package mailer

import (
	"context"
	"errors"
	"net/mail"
	"strings"
)

var ErrInvalidRecipient = errors.New("invalid recipient address")

// Message is one outgoing email
type Message struct {
	To         string
	ToName     string
	Subject    string
	HTML       string
	Text       string
	SenderName string
	Headers    map[string]string
}

// Result describes an accepted message
type Result struct {
	MessageID string
	SentFrom  string
}

// Transport sends a single message. A returned error means the message was
// not accepted by the upstream server.
type Transport interface {
	Send(ctx context.Context, msg *Message) (*Result, error)
	Name() string
}

// Sender is the envelope sender shared by all transports
type Sender struct {
	Address string
	Name    string
}

// from returns the display form of the sender, preferring the per-message
// name over the configured default.
func (s Sender) from(override string) string {
	name := strings.TrimSpace(override)
	if name == "" {
		name = s.Name
	}
	addr := mail.Address{Name: name, Address: s.Address}
	return addr.String()
}

// extractDomain extracts domain from email address
func extractDomain(email string) string {
	addr, err := mail.ParseAddress(email)
	if err == nil {
		email = addr.Address
	}
	if i := strings.LastIndex(email, "@"); i >= 0 && i < len(email)-1 {
		return email[i+1:]
	}
	return "localhost"
}

func validateRecipient(msg *Message) error {
	if msg == nil || msg.To == "" {
		return ErrInvalidRecipient
	}
	if _, err := mail.ParseAddress(msg.To); err != nil {
		return errors.Join(ErrInvalidRecipient, err)
	}
	return nil
}
