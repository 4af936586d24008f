package mailer

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
)

// TLS modes for the submission connection
const (
	TLSNone     = "none"
	TLSStartTLS = "starttls"
	TLSImplicit = "tls"
)

// SMTPOptions configures submission to a relay
type SMTPOptions struct {
	Host               string
	Port               int
	Username           string
	Password           string
	TLSMode            string
	InsecureSkipVerify bool
	HelloName          string
	Timeout            time.Duration
}

// SMTPTransport submits messages to a relay with go-smtp, one connection
// per message.
type SMTPTransport struct {
	opts   SMTPOptions
	sender Sender
	signer *DKIMSigner
	logger *slog.Logger
	now    func() time.Time
}

func NewSMTPTransport(opts SMTPOptions, sender Sender, logger *slog.Logger) *SMTPTransport {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.TLSMode == "" {
		opts.TLSMode = TLSStartTLS
	}
	return &SMTPTransport{
		opts:   opts,
		sender: sender,
		logger: logger,
		now:    time.Now,
	}
}

// SetDKIMSigner enables DKIM signing of outgoing messages
func (t *SMTPTransport) SetDKIMSigner(signer *DKIMSigner) {
	t.signer = signer
}

func (t *SMTPTransport) Name() string {
	return "smtp"
}

// Send submits a message and returns its Message-ID
func (t *SMTPTransport) Send(ctx context.Context, msg *Message) (*Result, error) {
	if err := validateRecipient(msg); err != nil {
		return nil, err
	}

	from := t.sender.from(msg.SenderName)
	data, messageID := buildMessage(from, msg, t.now())

	// Sign message with DKIM if signer is configured
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

	client, err := t.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	if err := client.Hello(t.helloName()); err != nil {
		return nil, describeSMTPError("HELO", err)
	}

	if t.opts.TLSMode == TLSStartTLS {
		if ok, _ := client.Extension("STARTTLS"); !ok {
			return nil, fmt.Errorf("relay %s does not support STARTTLS", t.opts.Host)
		}
		if err := client.StartTLS(t.tlsConfig()); err != nil {
			return nil, describeSMTPError("STARTTLS", err)
		}
	}

	if t.opts.Username != "" {
		if err := client.Auth(sasl.NewPlainClient("", t.opts.Username, t.opts.Password)); err != nil {
			return nil, describeSMTPError("AUTH", err)
		}
	}

	if err := client.SendMail(t.sender.Address, []string{msg.To}, bytes.NewReader(data)); err != nil {
		return nil, describeSMTPError("send", err)
	}

	client.Quit()

	return &Result{MessageID: messageID, SentFrom: from}, nil
}

func (t *SMTPTransport) dial(ctx context.Context) (*smtp.Client, error) {
	addr := net.JoinHostPort(t.opts.Host, strconv.Itoa(t.opts.Port))

	done := make(chan dialResult, 1)
	go func() {
		var c *smtp.Client
		var err error
		if t.opts.TLSMode == TLSImplicit {
			c, err = smtp.DialTLS(addr, t.tlsConfig())
		} else {
			c, err = smtp.Dial(addr)
		}
		done <- dialResult{c, err}
	}()

	timer := time.NewTimer(t.opts.Timeout)
	defer timer.Stop()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, fmt.Errorf("connection failed to %s: %w", addr, r.err)
		}
		r.client.CommandTimeout = t.opts.Timeout
		r.client.SubmissionTimeout = t.opts.Timeout
		return r.client, nil
	case <-ctx.Done():
		go closeLate(done)
		return nil, ctx.Err()
	case <-timer.C:
		go closeLate(done)
		return nil, fmt.Errorf("connection to %s timed out", addr)
	}
}

type dialResult struct {
	client *smtp.Client
	err    error
}

// closeLate closes a connection that completed after the caller gave up
func closeLate(done <-chan dialResult) {
	if r := <-done; r.client != nil {
		r.client.Close()
	}
}

func (t *SMTPTransport) tlsConfig() *tls.Config {
	return &tls.Config{
		ServerName:         t.opts.Host,
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: t.opts.InsecureSkipVerify,
	}
}

func (t *SMTPTransport) helloName() string {
	if t.opts.HelloName != "" {
		return t.opts.HelloName
	}
	return extractDomain(t.sender.Address)
}

// describeSMTPError prefixes the failed stage and keeps the server reply
func describeSMTPError(stage string, err error) error {
	var smtpErr *smtp.SMTPError
	if errors.As(err, &smtpErr) {
		return fmt.Errorf("%s failed: %d %s: %w", stage, smtpErr.Code, smtpErr.Message, err)
	}
	return fmt.Errorf("%s failed: %w", stage, err)
}
