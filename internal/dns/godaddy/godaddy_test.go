package godaddy

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-logr/logr"
	"github.com/google/go-cmp/cmp"

	"github.com/yuriy-kovalchuk/yk-ddns/internal/dns"
)

// fakeGoDaddy stores one record list per "TYPE/name" key.
type fakeGoDaddy struct {
	mu      sync.Mutex
	records map[string][]gdRecord
	calls   []string
}

func (f *fakeGoDaddy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, r.Method+" "+r.URL.Path)

	if r.Header.Get("Authorization") != "sso-key k:s" {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(gdError{Code: "UNABLE_TO_AUTHENTICATE", Message: "bad key"})
		return
	}

	const prefix = "/v1/domains/example.com/records/"
	if len(r.URL.Path) <= len(prefix) || r.URL.Path[:len(prefix)] != prefix {
		http.NotFound(w, r)
		return
	}
	key := r.URL.Path[len(prefix):]

	switch r.Method {
	case http.MethodGet:
		recs := f.records[key]
		if recs == nil {
			recs = []gdRecord{}
		}
		json.NewEncoder(w).Encode(recs)
	case http.MethodPut:
		data, _ := io.ReadAll(r.Body)
		var recs []gdRecord
		if err := json.Unmarshal(data, &recs); err != nil {
			w.WriteHeader(http.StatusUnprocessableEntity)
			return
		}
		f.records[key] = recs
		w.WriteHeader(http.StatusOK)
	case http.MethodDelete:
		if _, ok := f.records[key]; !ok {
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(gdError{Code: "NOT_FOUND", Message: "record not found"})
			return
		}
		delete(f.records, key)
		w.WriteHeader(http.StatusNoContent)
	}
}

func newTestProvider(t *testing.T, serverURL, secret string) *Provider {
	t.Helper()
	p, err := New(logr.Discard(), dns.Options{
		Domain:     "example.com",
		HTTPClient: http.DefaultClient,
		Settings: map[string]string{
			"key":      "k",
			"secret":   secret,
			"base_url": serverURL + "/v1",
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func TestNew_MissingCredentials(t *testing.T) {
	for _, settings := range []map[string]string{
		{"secret": "s"},
		{"key": "k"},
	} {
		if _, err := New(logr.Discard(), dns.Options{Domain: "example.com", Settings: settings}); err == nil {
			t.Errorf("expected error for settings %v", settings)
		}
	}
}

func TestSetGetDelete(t *testing.T) {
	fake := &fakeGoDaddy{records: map[string][]gdRecord{}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	p := newTestProvider(t, srv.URL, "s")
	ctx := context.Background()

	rec, err := p.Get(ctx, "home", dns.TypeA)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec != nil {
		t.Fatalf("expected no record, got %+v", rec)
	}

	if err := p.Set(ctx, dns.Record{Name: "home", Type: dns.TypeA, Value: "203.0.113.5"}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	rec, err = p.Get(ctx, "home", dns.TypeA)
	if err != nil {
		t.Fatalf("Get after Set: %v", err)
	}
	want := &dns.Record{Domain: "example.com", Name: "home", Type: dns.TypeA, Value: "203.0.113.5", TTL: dns.DefaultTTL}
	if diff := cmp.Diff(want, rec); diff != "" {
		t.Errorf("record mismatch (-want +got):\n%s", diff)
	}

	if err := p.Delete(ctx, "home", dns.TypeA); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := p.Delete(ctx, "home", dns.TypeA); err != nil {
		t.Fatalf("Delete of absent record should succeed, got %v", err)
	}

	wantCalls := []string{
		"GET /v1/domains/example.com/records/A/home",
		"PUT /v1/domains/example.com/records/A/home",
		"GET /v1/domains/example.com/records/A/home",
		"DELETE /v1/domains/example.com/records/A/home",
		"DELETE /v1/domains/example.com/records/A/home",
	}
	if diff := cmp.Diff(wantCalls, fake.calls); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}
}

func TestApexName(t *testing.T) {
	fake := &fakeGoDaddy{records: map[string][]gdRecord{}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	p := newTestProvider(t, srv.URL, "s")
	if _, err := p.Get(context.Background(), "", dns.TypeAAAA); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if fake.calls[0] != "GET /v1/domains/example.com/records/AAAA/@" {
		t.Errorf("expected apex to map to @, got %q", fake.calls[0])
	}
}

func TestUnauthorized(t *testing.T) {
	fake := &fakeGoDaddy{records: map[string][]gdRecord{}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	p := newTestProvider(t, srv.URL, "wrong")
	ctx := context.Background()

	if _, err := p.Get(ctx, "home", dns.TypeA); err == nil {
		t.Error("expected Get error for bad credentials")
	}
	if err := p.Set(ctx, dns.Record{Name: "home", Type: dns.TypeA, Value: "203.0.113.5"}); err == nil {
		t.Error("expected Set error for bad credentials")
	}
	if err := p.Delete(ctx, "home", dns.TypeA); err == nil {
		t.Error("expected Delete error for bad credentials")
	}
}
