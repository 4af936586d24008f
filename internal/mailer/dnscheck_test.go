package mailer

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"net"
	"testing"
)

// fakeTXT serves TXT records from a map; missing names are NXDOMAIN
type fakeTXT map[string][]string

func (f fakeTXT) LookupTXT(ctx context.Context, name string) ([]string, error) {
	if records, ok := f[name]; ok {
		return records, nil
	}
	return nil, &net.DNSError{Err: "no such host", Name: name, IsNotFound: true}
}

func TestCheckSenderDomain(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}
	signer := NewDKIMSigner(key, "acme.example", "rf1")
	record, _ := signer.DNSRecord()

	other, _ := rsa.GenerateKey(rand.Reader, 2048)
	otherRecord, _ := NewDKIMSigner(other, "acme.example", "rf1").DNSRecord()

	tests := []struct {
		name    string
		records fakeTXT
		want    []string // SPF, DMARC, DKIM
	}{
		{
			name: "all ok",
			records: fakeTXT{
				"acme.example":                {"google-site-verification=x", "v=spf1 include:_spf.example ~all"},
				"_dmarc.acme.example":         {"v=DMARC1; p=quarantine"},
				"rf1._domainkey.acme.example": {record[:60], record[60:]},
			},
			want: []string{CheckOK, CheckOK, CheckOK},
		},
		{
			name:    "nothing published",
			records: fakeTXT{},
			want:    []string{CheckNotFound, CheckNotFound, CheckNotFound},
		},
		{
			name: "weak policies and wrong key",
			records: fakeTXT{
				"acme.example":                {"v=spf1 +all"},
				"_dmarc.acme.example":         {"v=DMARC1; p=none"},
				"rf1._domainkey.acme.example": {otherRecord},
			},
			want: []string{CheckWarning, CheckWarning, CheckError},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results := CheckSenderDomain(context.Background(), tt.records, "acme.example", signer)
			if len(results) != 3 {
				t.Fatalf("got %d results, want 3", len(results))
			}
			for i, r := range results {
				if r.Status != tt.want[i] {
					t.Errorf("%s status = %s, want %s (%s)", r.Type, r.Status, tt.want[i], r.Message)
				}
			}
		})
	}
}

func TestCheckSenderDomain_WithoutDKIM(t *testing.T) {
	results := CheckSenderDomain(context.Background(), fakeTXT{}, "acme.example", nil)
	if len(results) != 2 {
		t.Errorf("got %d results, want 2", len(results))
	}
}
