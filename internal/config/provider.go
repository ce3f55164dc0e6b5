package config

import (
	"fmt"
	"time"

	"github.com/yuriy-kovalchuk/yk-ddns/internal/dns"
	"github.com/yuriy-kovalchuk/yk-ddns/internal/task"
)

// Target holds the DNS provider type, its connection settings and the
// records it manages for one domain.
type Target struct {
	Provider    string            `yaml:"provider"`
	Domain      string            `yaml:"domain"`
	UseProxy    bool              `yaml:"use_proxy"`
	ProxyURL    string            `yaml:"proxy_url"`
	Timeout     time.Duration     `yaml:"timeout"`
	TTL         int               `yaml:"ttl"`
	MaxFailures int               `yaml:"max_failures"`
	Settings    map[string]string `yaml:"settings"`
	Records     []Record          `yaml:"records"`
}

// Record is one tracked record of a target.
type Record struct {
	Name   string `yaml:"name"`
	Type   string `yaml:"type"`
	Source string `yaml:"source"`
}

func (r Record) usesRouter() bool {
	t, err := dns.ParseRecordType(r.Type)
	if err != nil {
		return false
	}
	s, err := task.ParseSourceKind(r.Source)
	return err == nil && s == task.SourceRouter && t == dns.TypeA
}

// Name identifies the target in logs and metrics as provider@domain.
func (t Target) Name() string {
	return t.Provider + "@" + t.Domain
}

func (t *Target) applyDefaults() {
	if t.Timeout == 0 {
		t.Timeout = 10 * time.Second
	}
	if t.TTL == 0 {
		t.TTL = dns.DefaultTTL
	}
	if t.UseProxy && t.ProxyURL == "" {
		t.ProxyURL = dns.DefaultProxyURL
	}
	if t.Settings == nil {
		t.Settings = map[string]string{}
	}
}

func (t *Target) validate() error {
	switch {
	case t.Provider == "":
		return fmt.Errorf("missing required field 'provider'")
	case t.Domain == "":
		return fmt.Errorf("missing required field 'domain'")
	case t.Timeout < 0:
		return fmt.Errorf("timeout must not be negative")
	case t.TTL < 0:
		return fmt.Errorf("ttl must not be negative")
	case t.MaxFailures < 0:
		return fmt.Errorf("max_failures must not be negative")
	case len(t.Records) == 0:
		return fmt.Errorf("no records configured")
	}

	if _, err := t.RecordConfigs(); err != nil {
		return err
	}
	return nil
}

// RecordConfigs converts the records into task configuration.
func (t Target) RecordConfigs() ([]task.RecordConfig, error) {
	out := make([]task.RecordConfig, 0, len(t.Records))
	seen := map[string]bool{}
	for _, r := range t.Records {
		typ, err := dns.ParseRecordType(r.Type)
		if err != nil {
			return nil, fmt.Errorf("record %q: %w", r.Name, err)
		}
		src, err := task.ParseSourceKind(r.Source)
		if err != nil {
			return nil, fmt.Errorf("record %q: %w", r.Name, err)
		}
		key := dns.JoinHostname(r.Name, t.Domain) + "/" + string(typ)
		if seen[key] {
			return nil, fmt.Errorf("record %q type %s listed twice", r.Name, typ)
		}
		seen[key] = true
		out = append(out, task.RecordConfig{Name: r.Name, Type: typ, Source: src})
	}
	return out, nil
}

// ProxyAddress returns the proxy the target's HTTP client routes through,
// or "" for a direct connection.
func (t Target) ProxyAddress() string {
	if !t.UseProxy {
		return ""
	}
	return t.ProxyURL
}

// ProviderOptions builds the options passed to dns.NewProvider.
func (t Target) ProviderOptions() (dns.Options, error) {
	client, err := dns.NewHTTPClient(t.Timeout, t.ProxyAddress())
	if err != nil {
		return dns.Options{}, fmt.Errorf("target %s: %w", t.Name(), err)
	}
	return dns.Options{
		Domain:     t.Domain,
		Settings:   t.Settings,
		HTTPClient: client,
		Timeout:    t.Timeout,
	}, nil
}
