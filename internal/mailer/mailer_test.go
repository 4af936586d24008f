package mailer

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/emersion/go-msgauth/dkim"
	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSender_From(t *testing.T) {
	s := Sender{Address: "reviews@acme.example", Name: "Acme"}

	if got := s.from(""); got != `"Acme" <reviews@acme.example>` {
		t.Errorf("from() = %q", got)
	}
	if got := s.from("Dr. Rao"); got != `"Dr. Rao" <reviews@acme.example>` {
		t.Errorf("from(override) = %q", got)
	}
	if got := (Sender{Address: "a@b.example"}).from(""); got != "<a@b.example>" {
		t.Errorf("from(no name) = %q", got)
	}
}

func TestBuildMessage(t *testing.T) {
	msg := &Message{
		To:      "john@example.com",
		ToName:  "John Smith",
		Subject: "How did we do? ★",
		HTML:    "<p>Hi John</p>",
		Text:    "Hi John",
		Headers: map[string]string{"X-Customer-ID": "c-1"},
	}

	data, messageID := buildMessage(`"Acme" <reviews@acme.example>`, msg, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	raw := string(data)

	if !strings.HasPrefix(messageID, "<") || !strings.HasSuffix(messageID, "@acme.example>") {
		t.Errorf("messageID = %q", messageID)
	}
	for _, want := range []string{
		"From: \"Acme\" <reviews@acme.example>\r\n",
		"To: \"John Smith\" <john@example.com>\r\n",
		"Message-ID: " + messageID + "\r\n",
		"X-Customer-ID: c-1\r\n",
		"Content-Type: multipart/alternative",
		"Content-Type: text/plain; charset=utf-8",
		"Content-Type: text/html; charset=utf-8",
		"<p>Hi John</p>",
	} {
		if !strings.Contains(raw, want) {
			t.Errorf("message missing %q", want)
		}
	}
	if strings.Contains(raw, "Subject: How did we do? ★") {
		t.Error("non-ASCII subject should be encoded")
	}
}

func TestBuildMessage_TextOnly(t *testing.T) {
	data, _ := buildMessage("<a@b.example>", &Message{To: "c@d.example", Subject: "Hi", Text: "plain"}, time.Now())
	raw := string(data)
	if strings.Contains(raw, "multipart") {
		t.Error("text-only message should not be multipart")
	}
	if !strings.Contains(raw, "Content-Type: text/plain; charset=utf-8") {
		t.Error("missing text/plain content type")
	}
}

func TestDKIMSigner_Sign(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}
	pub, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("MarshalPKIXPublicKey() error = %v", err)
	}
	record := "v=DKIM1; k=rsa; p=" + base64.StdEncoding.EncodeToString(pub)

	signer := NewDKIMSigner(key, "acme.example", "rf1")
	data, _ := buildMessage(`"Acme" <reviews@acme.example>`, &Message{To: "john@example.com", Subject: "Hi", Text: "hello"}, time.Now())

	signed, err := signer.Sign(data)
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}
	if !bytes.HasPrefix(signed, []byte("DKIM-Signature:")) {
		t.Fatal("signed message should start with DKIM-Signature")
	}

	verifications, err := dkim.VerifyWithOptions(bytes.NewReader(signed), &dkim.VerifyOptions{
		LookupTXT: func(domain string) ([]string, error) {
			if domain != "rf1._domainkey.acme.example" {
				return nil, errors.New("unexpected lookup " + domain)
			}
			return []string{record}, nil
		},
	})
	if err != nil {
		t.Fatalf("VerifyWithOptions() error = %v", err)
	}
	if len(verifications) != 1 || verifications[0].Err != nil {
		t.Fatalf("verifications = %+v", verifications)
	}
}

func TestGenerateDKIMKey(t *testing.T) {
	keyFile := filepath.Join(t.TempDir(), "keys", "dkim.pem")

	signer, err := GenerateDKIMKey(keyFile, "acme.example", "rf1")
	if err != nil {
		t.Fatalf("GenerateDKIMKey() error = %v", err)
	}
	if got := signer.DNSName(); got != "rf1._domainkey.acme.example" {
		t.Errorf("DNSName() = %q", got)
	}
	record, err := signer.DNSRecord()
	if err != nil || !strings.HasPrefix(record, "v=DKIM1; k=rsa; p=") {
		t.Errorf("DNSRecord() = %q, %v", record, err)
	}

	info, err := os.Stat(keyFile)
	if err != nil {
		t.Fatalf("key file not written: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("key file mode = %v, want 0600", info.Mode().Perm())
	}

	loaded, err := LoadDKIMSigner(keyFile, "acme.example", "rf1")
	if err != nil {
		t.Fatalf("LoadDKIMSigner() error = %v", err)
	}
	if r, _ := loaded.DNSRecord(); r != record {
		t.Error("loaded key does not match the generated key")
	}
}

// fakeSES records SendEmail calls
type fakeSES struct {
	input *sesv2.SendEmailInput
	err   error
}

func (f *fakeSES) SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.input = params
	if f.err != nil {
		return nil, f.err
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("ses-123")}, nil
}

func TestSESTransport_Send(t *testing.T) {
	fake := &fakeSES{}
	transport := newSESTransport(fake, SESOptions{ConfigurationSet: "reviews"}, Sender{Address: "reviews@acme.example", Name: "Acme"})

	res, err := transport.Send(context.Background(), &Message{
		To: "john@example.com", Subject: "Hi", HTML: "<p>x</p>", Text: "x", SenderName: "Acme Dental",
		Headers: map[string]string{"X-Customer-ID": "c-1"},
	})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if res.MessageID != "ses-123" || res.SentFrom != `"Acme Dental" <reviews@acme.example>` {
		t.Errorf("Send() = %+v", res)
	}
	if got := fake.input.Destination.ToAddresses; len(got) != 1 || got[0] != "john@example.com" {
		t.Errorf("ToAddresses = %v", got)
	}
	if aws.ToString(fake.input.ConfigurationSetName) != "reviews" {
		t.Errorf("ConfigurationSetName = %v", fake.input.ConfigurationSetName)
	}
	if fake.input.Content.Simple.Body.Html == nil || fake.input.Content.Simple.Body.Text == nil {
		t.Error("both body parts should be set")
	}
	if len(fake.input.EmailTags) != 1 {
		t.Errorf("EmailTags = %v", fake.input.EmailTags)
	}

	fake.err = errors.New("MessageRejected: Email address is not verified")
	if _, err := transport.Send(context.Background(), &Message{To: "john@example.com", Subject: "Hi", Text: "x"}); err == nil {
		t.Error("Send() expected error from SES")
	}

	if _, err := transport.Send(context.Background(), &Message{To: "not an address"}); !errors.Is(err, ErrInvalidRecipient) {
		t.Errorf("Send(invalid) error = %v, want ErrInvalidRecipient", err)
	}
}

// relay is an in-process SMTP server capturing submitted messages
type relay struct {
	mu       sync.Mutex
	messages []relayed
	reject   string
	authed   string
}

type relayed struct {
	from string
	to   []string
	data []byte
}

func (r *relay) NewSession(c *smtp.Conn) (smtp.Session, error) {
	return &relaySession{relay: r}, nil
}

type relaySession struct {
	relay *relay
	from  string
	to    []string
}

func (s *relaySession) AuthMechanisms() []string {
	return []string{sasl.Plain}
}

func (s *relaySession) Auth(mech string) (sasl.Server, error) {
	return sasl.NewPlainServer(func(identity, username, password string) error {
		if username != "relay" || password != "secret" {
			return smtp.ErrAuthFailed
		}
		s.relay.mu.Lock()
		s.relay.authed = username
		s.relay.mu.Unlock()
		return nil
	}), nil
}

func (s *relaySession) Mail(from string, opts *smtp.MailOptions) error {
	s.from = from
	return nil
}

func (s *relaySession) Rcpt(to string, opts *smtp.RcptOptions) error {
	if to == s.relay.reject {
		return &smtp.SMTPError{Code: 550, EnhancedCode: smtp.EnhancedCode{5, 1, 1}, Message: "mailbox unavailable"}
	}
	s.to = append(s.to, to)
	return nil
}

func (s *relaySession) Data(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.relay.mu.Lock()
	s.relay.messages = append(s.relay.messages, relayed{from: s.from, to: s.to, data: data})
	s.relay.mu.Unlock()
	return nil
}

func (s *relaySession) Reset()        {}
func (s *relaySession) Logout() error { return nil }

func startRelay(t *testing.T, r *relay) (string, int) {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := smtp.NewServer(r)
	srv.Domain = "localhost"
	srv.AllowInsecureAuth = true
	go srv.Serve(l)
	t.Cleanup(func() { srv.Close() })

	addr := l.Addr().(*net.TCPAddr)
	return addr.IP.String(), addr.Port
}

func TestSMTPTransport_Send(t *testing.T) {
	r := &relay{reject: "gone@example.com"}
	host, port := startRelay(t, r)

	transport := NewSMTPTransport(SMTPOptions{
		Host: host, Port: port, Username: "relay", Password: "secret",
		TLSMode: TLSNone, Timeout: 5 * time.Second,
	}, Sender{Address: "reviews@acme.example", Name: "Acme"}, testLogger())

	res, err := transport.Send(context.Background(), &Message{
		To: "john@example.com", ToName: "John", Subject: "Hi", HTML: "<p>hi</p>", Text: "hi",
	})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if res.MessageID == "" || res.SentFrom != `"Acme" <reviews@acme.example>` {
		t.Errorf("Send() = %+v", res)
	}

	r.mu.Lock()
	if len(r.messages) != 1 {
		r.mu.Unlock()
		t.Fatalf("relay received %d messages, want 1", len(r.messages))
	}
	got := r.messages[0]
	authed := r.authed
	r.mu.Unlock()

	if got.from != "reviews@acme.example" || len(got.to) != 1 || got.to[0] != "john@example.com" {
		t.Errorf("envelope = %s -> %v", got.from, got.to)
	}
	if !bytes.Contains(got.data, []byte("Message-ID: "+res.MessageID)) {
		t.Error("relayed data does not carry the returned Message-ID")
	}
	if authed != "relay" {
		t.Errorf("authenticated user = %q, want relay", authed)
	}

	_, err = transport.Send(context.Background(), &Message{To: "gone@example.com", Subject: "Hi", Text: "hi"})
	if err == nil || !strings.Contains(err.Error(), "550") {
		t.Errorf("Send(rejected) error = %v, want 550", err)
	}
}

func TestSMTPTransport_ConnectionRefused(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := l.Addr().(*net.TCPAddr)
	l.Close()

	transport := NewSMTPTransport(SMTPOptions{
		Host: addr.IP.String(), Port: addr.Port, TLSMode: TLSNone, Timeout: 2 * time.Second,
	}, Sender{Address: "reviews@acme.example"}, testLogger())

	if _, err := transport.Send(context.Background(), &Message{To: "john@example.com", Subject: "Hi", Text: "hi"}); err == nil {
		t.Error("Send() expected connection error")
	}
}
