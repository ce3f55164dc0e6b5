package dns

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/go-logr/logr"

	"github.com/yuriy-kovalchuk/yk-ddns/internal/addr"
)

func TestSplitHostname(t *testing.T) {
	tests := []struct {
		fqdn, host, domain string
	}{
		{"app.example.com", "app", "example.com"},
		{"app.example.com.", "app", "example.com"},
		{"sub.app.example.com", "sub", "app.example.com"},
		{"localhost", "localhost", ""},
	}
	for _, tt := range tests {
		t.Run(tt.fqdn, func(t *testing.T) {
			host, domain := SplitHostname(tt.fqdn)
			if host != tt.host || domain != tt.domain {
				t.Errorf("SplitHostname(%q) = (%q, %q), want (%q, %q)", tt.fqdn, host, domain, tt.host, tt.domain)
			}
		})
	}
}

func TestJoinHostname(t *testing.T) {
	tests := []struct {
		name, domain, fqdn string
	}{
		{"www", "example.com", "www.example.com"},
		{"@", "example.com", "example.com"},
		{"", "example.com", "example.com"},
		{"a.b", "example.com.", "a.b.example.com"},
		{"www", "", "www"},
	}
	for _, tt := range tests {
		t.Run(tt.fqdn, func(t *testing.T) {
			if got := JoinHostname(tt.name, tt.domain); got != tt.fqdn {
				t.Errorf("JoinHostname(%q, %q) = %q, want %q", tt.name, tt.domain, got, tt.fqdn)
			}
		})
	}
}

func TestParseRecordType(t *testing.T) {
	for _, s := range []string{"a", "AAAA", " txt ", "Srv"} {
		if _, err := ParseRecordType(s); err != nil {
			t.Errorf("ParseRecordType(%q): unexpected error: %v", s, err)
		}
	}
	if _, err := ParseRecordType("PTR"); err == nil {
		t.Error("expected error for unsupported type PTR")
	}
}

func TestRecordTypeFamily(t *testing.T) {
	if f, ok := TypeA.Family(); !ok || f != addr.IPv4 {
		t.Errorf("A.Family() = %v, %v", f, ok)
	}
	if f, ok := TypeAAAA.Family(); !ok || f != addr.IPv6 {
		t.Errorf("AAAA.Family() = %v, %v", f, ok)
	}
	if _, ok := TypeCNAME.Family(); ok {
		t.Error("CNAME should not carry an address family")
	}
}

type nopProvider struct{ opts Options }

func (nopProvider) Get(context.Context, string, RecordType) (*Record, error) { return nil, nil }
func (nopProvider) Set(context.Context, Record) error                       { return nil }
func (nopProvider) Delete(context.Context, string, RecordType) error        { return nil }

func TestRegistry(t *testing.T) {
	var got Options
	Register("test-nop", func(_ logr.Logger, opts Options) (Provider, error) {
		got = opts
		return nopProvider{opts: opts}, nil
	})

	if _, err := NewProvider("test-nop", logr.Discard(), Options{Domain: "example.com"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.HTTPClient == nil {
		t.Error("expected a default HTTP client to be supplied")
	}
	if got.Settings == nil {
		t.Error("expected non-nil settings")
	}

	found := false
	for _, n := range Names() {
		if n == "test-nop" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected test-nop in Names(), got %v", Names())
	}

	if _, err := NewProvider("test-nop", logr.Discard(), Options{}); err == nil {
		t.Error("expected error for missing domain")
	}

	_, err := NewProvider("does-not-exist", logr.Discard(), Options{Domain: "example.com"})
	if !errors.Is(err, ErrUnknownProvider) {
		t.Errorf("expected ErrUnknownProvider, got %v", err)
	}
}

func TestRegisterDuplicatePanics(t *testing.T) {
	Register("test-dup", func(logr.Logger, Options) (Provider, error) { return nopProvider{}, nil })
	defer func() {
		if recover() == nil {
			t.Error("expected panic on duplicate registration")
		}
	}()
	Register("test-dup", func(logr.Logger, Options) (Provider, error) { return nopProvider{}, nil })
}

func TestNewHTTPClient(t *testing.T) {
	c, err := NewHTTPClient(3*time.Second, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Timeout != 3*time.Second {
		t.Errorf("expected timeout 3s, got %s", c.Timeout)
	}
	if c.Transport.(*http.Transport).Proxy != nil {
		t.Error("expected no proxy when proxyURL is empty")
	}

	c, err = NewHTTPClient(time.Second, DefaultProxyURL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	req, _ := http.NewRequest(http.MethodGet, "https://api.cloudflare.com/client/v4", nil)
	proxy, err := c.Transport.(*http.Transport).Proxy(req)
	if err != nil {
		t.Fatalf("unexpected proxy error: %v", err)
	}
	want, _ := url.Parse(DefaultProxyURL)
	if proxy.String() != want.String() {
		t.Errorf("expected proxy %s, got %s", want, proxy)
	}

	if _, err := NewHTTPClient(time.Second, "ftp://proxy:21"); err == nil {
		t.Error("expected error for unsupported proxy scheme")
	}
}
