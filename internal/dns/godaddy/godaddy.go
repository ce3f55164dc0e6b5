// Package godaddy implements dns.Provider on top of the GoDaddy domains API.
package godaddy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-logr/logr"

	"github.com/yuriy-kovalchuk/yk-ddns/internal/dns"
)

func init() {
	dns.Register("godaddy", func(log logr.Logger, opts dns.Options) (dns.Provider, error) {
		return New(log, opts)
	})
}

const defaultBaseURL = "https://api.godaddy.com/v1"

// Provider implements dns.Provider for GoDaddy.
type Provider struct {
	baseURL string
	key     string
	secret  string
	domain  string
	client  *http.Client
	log     logr.Logger
}

// New creates a GoDaddy provider.
// Required settings: key, secret. Optional: base_url.
func New(log logr.Logger, opts dns.Options) (*Provider, error) {
	key := opts.Settings["key"]
	if key == "" {
		return nil, fmt.Errorf("godaddy: missing required setting 'key'")
	}
	secret := opts.Settings["secret"]
	if secret == "" {
		return nil, fmt.Errorf("godaddy: missing required setting 'secret'")
	}
	baseURL := opts.Settings["base_url"]
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Provider{
		baseURL: strings.TrimRight(baseURL, "/"),
		key:     key,
		secret:  secret,
		domain:  opts.Domain,
		client:  opts.HTTPClient,
		log:     log,
	}, nil
}

// gdRecord is a record as returned and accepted by the GoDaddy API.
type gdRecord struct {
	Data string `json:"data"`
	Name string `json:"name,omitempty"`
	TTL  int    `json:"ttl,omitempty"`
	Type string `json:"type,omitempty"`
}

// gdError is the error body returned on non-2xx responses.
type gdError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (p *Provider) recordPath(name string, recordType dns.RecordType) string {
	if name == "" {
		name = "@"
	}
	return fmt.Sprintf("/domains/%s/records/%s/%s",
		url.PathEscape(p.domain), url.PathEscape(string(recordType)), url.PathEscape(name))
}

func (p *Provider) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("godaddy: marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("godaddy: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "sso-key "+p.key+":"+p.secret)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("godaddy: %s %s: %w", method, path, err)
	}
	return resp, nil
}

// statusError describes a non-success response including its body.
func statusError(op string, resp *http.Response) error {
	data, _ := io.ReadAll(resp.Body)
	var e gdError
	if json.Unmarshal(data, &e) == nil && e.Code != "" {
		return fmt.Errorf("godaddy: %s returned status %d: %s: %s", op, resp.StatusCode, e.Code, e.Message)
	}
	return fmt.Errorf("godaddy: %s returned status %d: %s", op, resp.StatusCode, strings.TrimSpace(string(data)))
}

// Get returns the first record for name and type, or nil if none exists.
func (p *Provider) Get(ctx context.Context, name string, recordType dns.RecordType) (*dns.Record, error) {
	resp, err := p.do(ctx, http.MethodGet, p.recordPath(name, recordType), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError("get", resp)
	}

	var records []gdRecord
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, fmt.Errorf("godaddy: decode get response: %w", err)
	}
	p.log.V(1).Info("fetched records", "name", name, "type", recordType, "count", len(records))
	if len(records) == 0 {
		return nil, nil
	}
	return &dns.Record{
		Domain: p.domain,
		Name:   name,
		Type:   recordType,
		Value:  records[0].Data,
		TTL:    records[0].TTL,
	}, nil
}

// Set replaces all records for the record's name and type with its value.
func (p *Provider) Set(ctx context.Context, record dns.Record) error {
	ttl := record.TTL
	if ttl == 0 {
		ttl = dns.DefaultTTL
	}
	p.log.Info("replacing record", "name", record.Name, "type", record.Type, "value", record.Value)

	resp, err := p.do(ctx, http.MethodPut, p.recordPath(record.Name, record.Type), []gdRecord{{Data: record.Value, TTL: ttl}})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError("set", resp)
	}
	return nil
}

// Delete removes all records for name and type. A 404 is not an error.
func (p *Provider) Delete(ctx context.Context, name string, recordType dns.RecordType) error {
	p.log.Info("deleting record", "name", name, "type", recordType)

	resp, err := p.do(ctx, http.MethodDelete, p.recordPath(name, recordType), nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNoContent, http.StatusOK:
		return nil
	case http.StatusNotFound:
		p.log.V(1).Info("no record to delete", "name", name, "type", recordType)
		return nil
	}
	return statusError("delete", resp)
}
