package mailer

import (
	"bytes"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/emersion/go-msgauth/dkim"
)

// DKIMSigner signs outgoing messages for one domain
type DKIMSigner struct {
	key      crypto.Signer
	domain   string
	selector string
}

func NewDKIMSigner(key crypto.Signer, domain, selector string) *DKIMSigner {
	return &DKIMSigner{key: key, domain: domain, selector: selector}
}

// LoadDKIMSigner reads a PEM encoded RSA key (PKCS#1 or PKCS#8)
func LoadDKIMSigner(keyFile, domain, selector string) (*DKIMSigner, error) {
	data, err := os.ReadFile(keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read DKIM key: %w", err)
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("failed to decode DKIM key PEM")
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return NewDKIMSigner(key, domain, selector), nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DKIM key: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("DKIM key is not an RSA key")
	}
	return NewDKIMSigner(key, domain, selector), nil
}

// GenerateDKIMKey creates an RSA 2048 key, writes it to keyFile as PKCS#1
// PEM and returns a signer for it.
func GenerateDKIMKey(keyFile, domain, selector string) (*DKIMSigner, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("failed to generate RSA key: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(keyFile), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	block := &pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}
	if err := os.WriteFile(keyFile, pem.EncodeToMemory(block), 0600); err != nil {
		return nil, fmt.Errorf("failed to write DKIM key: %w", err)
	}

	return NewDKIMSigner(key, domain, selector), nil
}

// DNSName is the name of the TXT record publishing the public key
func (s *DKIMSigner) DNSName() string {
	return s.selector + "._domainkey." + s.domain
}

// DNSRecord is the TXT record value publishing the public key
func (s *DKIMSigner) DNSRecord() (string, error) {
	pub, err := x509.MarshalPKIXPublicKey(s.key.Public())
	if err != nil {
		return "", fmt.Errorf("failed to encode public key: %w", err)
	}
	return "v=DKIM1; k=rsa; p=" + base64.StdEncoding.EncodeToString(pub), nil
}

// Sign returns the message with a DKIM-Signature header prepended
func (s *DKIMSigner) Sign(message []byte) ([]byte, error) {
	options := &dkim.SignOptions{
		Domain:                 s.domain,
		Selector:               s.selector,
		Signer:                 s.key,
		Hash:                   crypto.SHA256,
		HeaderCanonicalization: dkim.CanonicalizationRelaxed,
		BodyCanonicalization:   dkim.CanonicalizationRelaxed,
	}

	var signed bytes.Buffer
	if err := dkim.Sign(&signed, bytes.NewReader(message), options); err != nil {
		return nil, fmt.Errorf("failed to sign message: %w", err)
	}
	return signed.Bytes(), nil
}

func (s *DKIMSigner) Domain() string {
	return s.domain
}
