// Package cloudflare implements dns.Provider with the official Cloudflare SDK.
package cloudflare

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	cf "github.com/cloudflare/cloudflare-go"
	"github.com/go-logr/logr"

	"github.com/yuriy-kovalchuk/yk-ddns/internal/dns"
)

func init() {
	dns.Register("cloudflare", func(log logr.Logger, opts dns.Options) (dns.Provider, error) {
		return New(log, opts)
	})
}

// Provider implements dns.Provider for one Cloudflare zone.
//
// The zone ID is taken from the zone_id setting when present and otherwise
// looked up by domain name on first use.
type Provider struct {
	api     *cf.API
	domain  string
	proxied bool
	log     logr.Logger

	mu     sync.Mutex
	zoneID string
}

// New creates a Cloudflare provider.
// Required settings: token. Optional: zone_id, proxied, base_url.
func New(log logr.Logger, opts dns.Options) (*Provider, error) {
	token := opts.Settings["token"]
	if token == "" {
		return nil, fmt.Errorf("cloudflare: missing required setting 'token'")
	}

	proxied := false
	if v := opts.Settings["proxied"]; v != "" {
		var err error
		if proxied, err = strconv.ParseBool(v); err != nil {
			return nil, fmt.Errorf("cloudflare: invalid proxied %q: %w", v, err)
		}
	}

	// Retries are left to the reconciliation loop.
	apiOpts := []cf.Option{
		cf.HTTPClient(opts.HTTPClient),
		cf.UsingRetryPolicy(0, 0, 0),
		cf.UserAgent("yk-ddns"),
	}
	if v := opts.Settings["base_url"]; v != "" {
		apiOpts = append(apiOpts, cf.BaseURL(v))
	}

	api, err := cf.NewWithAPIToken(token, apiOpts...)
	if err != nil {
		return nil, fmt.Errorf("cloudflare: creating api client: %w", err)
	}

	return &Provider{
		api:     api,
		domain:  opts.Domain,
		proxied: proxied,
		log:     log,
		zoneID:  opts.Settings["zone_id"],
	}, nil
}

func (p *Provider) zone() (*cf.ResourceContainer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.zoneID == "" {
		zid, err := p.api.ZoneIDByName(p.domain)
		if err != nil {
			return nil, fmt.Errorf("cloudflare: unable to get zone ID for %s: %w", p.domain, err)
		}
		p.log.V(1).Info("resolved zone ID", "zone", p.domain, "id", zid)
		p.zoneID = zid
	}
	return cf.ZoneIdentifier(p.zoneID), nil
}

func (p *Provider) lookup(ctx context.Context, rc *cf.ResourceContainer, fqdn string, recordType dns.RecordType) (*cf.DNSRecord, error) {
	records, _, err := p.api.ListDNSRecords(ctx, rc, cf.ListDNSRecordsParams{
		Type: string(recordType),
		Name: fqdn,
	})
	if err != nil {
		return nil, fmt.Errorf("cloudflare: listing %s records for %s: %w", recordType, fqdn, err)
	}
	p.log.V(1).Info("found existing records", "name", fqdn, "type", recordType, "count", len(records))
	if len(records) == 0 {
		return nil, nil
	}
	return &records[0], nil
}

// Get returns the first record matching name and type, or nil.
func (p *Provider) Get(ctx context.Context, name string, recordType dns.RecordType) (*dns.Record, error) {
	rc, err := p.zone()
	if err != nil {
		return nil, err
	}
	r, err := p.lookup(ctx, rc, dns.JoinHostname(name, p.domain), recordType)
	if err != nil || r == nil {
		return nil, err
	}
	return &dns.Record{
		ID:      r.ID,
		Domain:  p.domain,
		Name:    name,
		Type:    recordType,
		Value:   r.Content,
		TTL:     r.TTL,
		Comment: r.Comment,
	}, nil
}

// Set patches the existing record or creates a new one.
func (p *Provider) Set(ctx context.Context, record dns.Record) error {
	rc, err := p.zone()
	if err != nil {
		return err
	}
	fqdn := dns.JoinHostname(record.Name, p.domain)
	ttl := record.TTL
	if ttl == 0 {
		ttl = dns.DefaultTTL
	}

	existing, err := p.lookup(ctx, rc, fqdn, record.Type)
	if err != nil {
		return err
	}

	if existing != nil {
		p.log.Info("updating record", "name", fqdn, "type", record.Type, "value", record.Value, "id", existing.ID)
		_, err := p.api.UpdateDNSRecord(ctx, rc, cf.UpdateDNSRecordParams{
			ID:      existing.ID,
			Type:    string(record.Type),
			Name:    fqdn,
			Content: record.Value,
			TTL:     ttl,
		})
		if err != nil {
			return fmt.Errorf("cloudflare: updating record %s: %w", existing.ID, err)
		}
		return nil
	}

	p.log.Info("creating record", "name", fqdn, "type", record.Type, "value", record.Value)
	proxied := p.proxied
	created, err := p.api.CreateDNSRecord(ctx, rc, cf.CreateDNSRecordParams{
		Type:    string(record.Type),
		Name:    fqdn,
		Content: record.Value,
		TTL:     ttl,
		Proxied: &proxied,
		Comment: record.Comment,
	})
	if err != nil {
		return fmt.Errorf("cloudflare: creating record for %s: %w", fqdn, err)
	}
	p.log.V(1).Info("record created", "id", created.ID)
	return nil
}

// Delete removes the record matching name and type, if any.
func (p *Provider) Delete(ctx context.Context, name string, recordType dns.RecordType) error {
	rc, err := p.zone()
	if err != nil {
		return err
	}
	fqdn := dns.JoinHostname(name, p.domain)

	existing, err := p.lookup(ctx, rc, fqdn, recordType)
	if err != nil {
		return err
	}
	if existing == nil {
		p.log.V(1).Info("no record to delete", "name", fqdn, "type", recordType)
		return nil
	}

	p.log.Info("deleting record", "name", fqdn, "type", recordType, "id", existing.ID)
	if err := p.api.DeleteDNSRecord(ctx, rc, existing.ID); err != nil {
		return fmt.Errorf("cloudflare: unable to delete DNS record %s: %w", existing.ID, err)
	}
	return nil
}
