package mailer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// Check statuses
const (
	CheckOK       = "ok"
	CheckWarning  = "warning"
	CheckError    = "error"
	CheckNotFound = "not_found"
)

// CheckResult is the outcome of one sender domain record check
type CheckResult struct {
	Type    string `json:"type"`
	Status  string `json:"status"`
	Value   string `json:"value,omitempty"`
	Message string `json:"message,omitempty"`
}

// TXTResolver looks up TXT records. *net.Resolver implements it.
type TXTResolver interface {
	LookupTXT(ctx context.Context, name string) ([]string, error)
}

// CheckSenderDomain verifies the SPF and DMARC records of domain and, when
// signer is set, that the published DKIM key matches it.
func CheckSenderDomain(ctx context.Context, resolver TXTResolver, domain string, signer *DKIMSigner) []CheckResult {
	if resolver == nil {
		resolver = net.DefaultResolver
	}

	results := []CheckResult{
		checkSPF(ctx, resolver, domain),
		checkDMARC(ctx, resolver, domain),
	}
	if signer != nil {
		results = append(results, checkDKIM(ctx, resolver, signer))
	}
	return results
}

func lookup(ctx context.Context, resolver TXTResolver, name string, result *CheckResult) ([]string, bool) {
	records, err := resolver.LookupTXT(ctx, name)
	if err != nil {
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
			result.Status = CheckNotFound
			return nil, false
		}
		result.Status = CheckError
		result.Message = fmt.Sprintf("Lookup failed: %v", err)
		return nil, false
	}
	return records, true
}

func checkSPF(ctx context.Context, resolver TXTResolver, domain string) CheckResult {
	result := CheckResult{Type: "SPF"}
	records, ok := lookup(ctx, resolver, domain, &result)
	if !ok {
		if result.Status == CheckNotFound {
			result.Message = "No SPF record found"
		}
		return result
	}

	for _, txt := range records {
		if !strings.HasPrefix(txt, "v=spf1") {
			continue
		}
		result.Status = CheckOK
		result.Value = txt
		if strings.Contains(txt, "+all") {
			result.Status = CheckWarning
			result.Message = "SPF uses +all (allows any sender)"
		}
		return result
	}

	result.Status = CheckNotFound
	result.Message = "No SPF record found"
	return result
}

func checkDMARC(ctx context.Context, resolver TXTResolver, domain string) CheckResult {
	result := CheckResult{Type: "DMARC"}
	records, ok := lookup(ctx, resolver, "_dmarc."+domain, &result)
	if !ok {
		if result.Status == CheckNotFound {
			result.Message = "No DMARC record found"
		}
		return result
	}

	record := strings.Join(records, "")
	result.Value = record
	switch {
	case !strings.HasPrefix(record, "v=DMARC1"):
		result.Status = CheckWarning
		result.Message = "TXT record is not a DMARC record"
	case strings.Contains(record, "p=none"):
		result.Status = CheckWarning
		result.Message = "DMARC policy is none (monitoring only)"
	default:
		result.Status = CheckOK
	}
	return result
}

func checkDKIM(ctx context.Context, resolver TXTResolver, signer *DKIMSigner) CheckResult {
	result := CheckResult{Type: "DKIM (" + signer.DNSName() + ")"}
	records, ok := lookup(ctx, resolver, signer.DNSName(), &result)
	if !ok {
		if result.Status == CheckNotFound {
			result.Message = "No DKIM record published for the configured selector"
		}
		return result
	}

	want, err := signer.DNSRecord()
	if err != nil {
		result.Status = CheckError
		result.Message = err.Error()
		return result
	}

	published := dkimPublicKey(strings.Join(records, ""))
	switch {
	case published == "":
		result.Status = CheckWarning
		result.Message = "TXT record has no public key (p=)"
	case published != dkimPublicKey(want):
		result.Status = CheckError
		result.Message = "Published key does not match the configured key file"
	default:
		result.Status = CheckOK
	}
	return result
}

// dkimPublicKey returns the p= tag of a DKIM record
func dkimPublicKey(record string) string {
	for _, tag := range strings.Split(record, ";") {
		k, v, ok := strings.Cut(strings.TrimSpace(tag), "=")
		if ok && strings.TrimSpace(k) == "p" {
			return strings.Join(strings.Fields(v), "")
		}
	}
	return ""
}
