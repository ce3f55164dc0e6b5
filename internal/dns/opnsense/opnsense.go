package opnsense

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-logr/logr"

	"github.com/yuriy-kovalchuk/yk-ddns/internal/dns"
)

func init() {
	dns.Register("opnsense", func(log logr.Logger, opts dns.Options) (dns.Provider, error) {
		return New(log, opts)
	})
}

const description = "managed by yk-ddns"

// Provider implements dns.Provider for OPNsense Unbound DNS host overrides.
type Provider struct {
	baseURL   string
	apiKey    string
	apiSecret string
	domain    string
	client    *http.Client
	log       logr.Logger
}

// New creates an OPNsense DNS provider from the given options.
// Required settings: base_url, api_key, api_secret.
// Optional settings: skip_tls_verify (default false).
func New(log logr.Logger, opts dns.Options) (*Provider, error) {
	settings := opts.Settings
	baseURL := settings["base_url"]
	if baseURL == "" {
		return nil, fmt.Errorf("opnsense: missing required setting 'base_url'")
	}
	apiKey := settings["api_key"]
	if apiKey == "" {
		return nil, fmt.Errorf("opnsense: missing required setting 'api_key'")
	}
	apiSecret := settings["api_secret"]
	if apiSecret == "" {
		return nil, fmt.Errorf("opnsense: missing required setting 'api_secret'")
	}

	client := opts.HTTPClient
	if v := settings["skip_tls_verify"]; v != "" {
		skip, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("opnsense: invalid skip_tls_verify %q: %w", v, err)
		}
		if skip {
			client = insecureCopy(client)
		}
	}

	return &Provider{
		baseURL:   baseURL,
		apiKey:    apiKey,
		apiSecret: apiSecret,
		domain:    opts.Domain,
		client:    client,
		log:       log,
	}, nil
}

// insecureCopy returns a shallow copy of c whose transport skips TLS
// verification. The proxy settings of the original transport are kept.
func insecureCopy(c *http.Client) *http.Client {
	var transport *http.Transport
	if t, ok := c.Transport.(*http.Transport); ok {
		transport = t.Clone()
	} else {
		transport = http.DefaultTransport.(*http.Transport).Clone()
	}
	transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	cp := *c
	cp.Transport = transport
	return &cp
}

// doRequest builds and executes an HTTP request against the OPNsense API.
func (p *Provider) doRequest(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("opnsense: marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	url := strings.TrimRight(p.baseURL, "/") + "/" + strings.TrimLeft(path, "/")
	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("opnsense: build request: %w", err)
	}

	req.SetBasicAuth(p.apiKey, p.apiSecret)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("opnsense: %s %s: %w", method, path, err)
	}
	return resp, nil
}

// reconfigure tells OPNsense to apply DNS changes.
func (p *Provider) reconfigure(ctx context.Context) error {
	resp, err := p.doRequest(ctx, http.MethodPost, "unbound/service/reconfigure", struct{}{})
	if err != nil {
		return fmt.Errorf("opnsense: reconfigure: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("opnsense: reconfigure returned status %d", resp.StatusCode)
	}

	var result struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("opnsense: decode reconfigure response: %w", err)
	}
	p.log.V(1).Info("reconfigure completed", "status", result.Status)
	return nil
}

// searchResponse is the shape returned by searchHostOverride.
type searchResponse struct {
	Rows []hostRow `json:"rows"`
}

// hostRow represents a single host override row from the search response.
type hostRow struct {
	UUID        string `json:"uuid"`
	Enabled     string `json:"enabled"`
	Hostname    string `json:"hostname"`
	Domain      string `json:"domain"`
	RR          string `json:"rr"`
	Server      string `json:"server"`
	Description string `json:"description"`
}

// findOverride searches for an existing host override matching fqdn and record type.
// It returns nil when no override matches.
func (p *Provider) findOverride(ctx context.Context, fqdn string, recordType dns.RecordType) (*hostRow, error) {
	resp, err := p.doRequest(ctx, http.MethodGet, "unbound/settings/searchHostOverride", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("opnsense: searchHostOverride returned status %d", resp.StatusCode)
	}

	var sr searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("opnsense: decode search response: %w", err)
	}

	host, domain := dns.SplitHostname(fqdn)
	for _, row := range sr.Rows {
		if strings.EqualFold(row.Hostname, host) &&
			strings.EqualFold(row.Domain, domain) &&
			strings.EqualFold(row.RR, string(recordType)) {
			return &row, nil
		}
	}
	return nil, nil
}

// buildHostBody creates the JSON body for add/set host override calls.
func buildHostBody(record dns.Record) map[string]any {
	host, domain := dns.SplitHostname(record.FQDN())
	comment := record.Comment
	if comment == "" {
		comment = description
	}
	return map[string]any{
		"host": map[string]string{
			"enabled":     "1",
			"hostname":    host,
			"domain":      domain,
			"rr":          string(record.Type),
			"server":      record.Value,
			"description": comment,
			"mxprio":      "",
			"mx":          "",
		},
	}
}

// mutate posts body to the given endpoint and checks the result field.
func (p *Provider) mutate(ctx context.Context, path string, body any, want string) (string, error) {
	resp, err := p.doRequest(ctx, http.MethodPost, path, body)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	endpoint := strings.SplitN(strings.TrimPrefix(path, "unbound/settings/"), "/", 2)[0]
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("opnsense: %s returned status %d: %s", endpoint, resp.StatusCode, string(respBody))
	}

	var result struct {
		Result string `json:"result"`
		UUID   string `json:"uuid"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("opnsense: decode %s response: %w", endpoint, err)
	}
	if result.Result != want {
		return "", fmt.Errorf("opnsense: %s unexpected result: %s", endpoint, result.Result)
	}
	return result.UUID, nil
}

// Get returns the host override for name and type, or nil if none exists.
func (p *Provider) Get(ctx context.Context, name string, recordType dns.RecordType) (*dns.Record, error) {
	fqdn := dns.JoinHostname(name, p.domain)
	p.log.V(1).Info("looking up host override", "hostname", fqdn, "type", recordType)

	row, err := p.findOverride(ctx, fqdn, recordType)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, nil
	}
	return &dns.Record{
		ID:      row.UUID,
		Domain:  p.domain,
		Name:    name,
		Type:    recordType,
		Value:   row.Server,
		Comment: row.Description,
	}, nil
}

// Set adds a host override, or updates the existing one in place.
func (p *Provider) Set(ctx context.Context, record dns.Record) error {
	record.Domain = p.domain
	fqdn := record.FQDN()

	row, err := p.findOverride(ctx, fqdn, record.Type)
	if err != nil {
		return fmt.Errorf("opnsense: set lookup: %w", err)
	}

	body := buildHostBody(record)
	if row == nil {
		p.log.Info("creating record", "hostname", fqdn, "type", record.Type, "value", record.Value)
		uuid, err := p.mutate(ctx, "unbound/settings/addHostOverride", body, "saved")
		if err != nil {
			return err
		}
		p.log.Info("record created", "uuid", uuid)
	} else {
		p.log.Info("updating record", "hostname", fqdn, "type", record.Type, "value", record.Value)
		if _, err := p.mutate(ctx, "unbound/settings/setHostOverride/"+row.UUID, body, "saved"); err != nil {
			return err
		}
		p.log.Info("record updated", "uuid", row.UUID)
	}
	return p.reconfigure(ctx)
}

// Delete removes a host override. A missing override is not an error.
func (p *Provider) Delete(ctx context.Context, name string, recordType dns.RecordType) error {
	fqdn := dns.JoinHostname(name, p.domain)
	p.log.Info("deleting record", "hostname", fqdn, "type", recordType)

	row, err := p.findOverride(ctx, fqdn, recordType)
	if err != nil {
		return err
	}
	if row == nil {
		p.log.V(1).Info("no host override to delete", "hostname", fqdn, "type", recordType)
		return nil
	}

	if _, err := p.mutate(ctx, "unbound/settings/delHostOverride/"+row.UUID, struct{}{}, "deleted"); err != nil {
		return err
	}
	p.log.Info("record deleted", "uuid", row.UUID)
	return p.reconfigure(ctx)
}
