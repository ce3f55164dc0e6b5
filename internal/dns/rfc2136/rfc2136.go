// Package rfc2136 implements dns.Provider using dynamic DNS updates
// (RFC 2136) against an authoritative name server, optionally signed with TSIG.
package rfc2136

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/go-logr/logr"
	mdns "github.com/miekg/dns"

	"github.com/yuriy-kovalchuk/yk-ddns/internal/dns"
)

func init() {
	dns.Register("rfc2136", func(log logr.Logger, opts dns.Options) (dns.Provider, error) {
		return New(log, opts)
	})
}

const defaultTimeout = 10 * time.Second

var algorithms = map[string]string{
	"hmac-md5":    mdns.HmacMD5,
	"hmac-sha1":   mdns.HmacSHA1,
	"hmac-sha224": mdns.HmacSHA224,
	"hmac-sha256": mdns.HmacSHA256,
	"hmac-sha384": mdns.HmacSHA384,
	"hmac-sha512": mdns.HmacSHA512,
}

// Provider sends queries and updates to a single name server.
type Provider struct {
	server     string
	zone       string
	domain     string
	net        string
	timeout    time.Duration
	tsigKey    string
	tsigSecret string
	tsigAlgo   string
	log        logr.Logger
}

// New creates an RFC 2136 provider.
// Required settings: server. Optional: net (udp|tcp), tsig_key, tsig_secret,
// tsig_algorithm (default hmac-sha256).
func New(log logr.Logger, opts dns.Options) (*Provider, error) {
	s := opts.Settings
	server := s["server"]
	if server == "" {
		return nil, fmt.Errorf("rfc2136: missing required setting 'server'")
	}
	if _, _, err := net.SplitHostPort(server); err != nil {
		server = net.JoinHostPort(server, "53")
	}

	network := s["net"]
	switch network {
	case "":
		network = "udp"
	case "udp", "tcp":
	default:
		return nil, fmt.Errorf("rfc2136: invalid net %q", network)
	}

	p := &Provider{
		server:  server,
		zone:    mdns.Fqdn(opts.Domain),
		domain:  opts.Domain,
		net:     network,
		timeout: opts.Timeout,
		log:     log,
	}
	if p.timeout <= 0 {
		p.timeout = defaultTimeout
	}

	if key := s["tsig_key"]; key != "" {
		if s["tsig_secret"] == "" {
			return nil, fmt.Errorf("rfc2136: tsig_key requires tsig_secret")
		}
		name := strings.ToLower(s["tsig_algorithm"])
		if name == "" {
			name = "hmac-sha256"
		}
		algo, ok := algorithms[strings.TrimSuffix(name, ".")]
		if !ok {
			return nil, fmt.Errorf("rfc2136: unsupported tsig_algorithm %q", s["tsig_algorithm"])
		}
		p.tsigKey = mdns.Fqdn(key)
		p.tsigSecret = s["tsig_secret"]
		p.tsigAlgo = algo
	}
	return p, nil
}

func (p *Provider) exchange(ctx context.Context, m *mdns.Msg) (*mdns.Msg, error) {
	c := &mdns.Client{Net: p.net, Timeout: p.timeout}
	if p.tsigKey != "" {
		c.TsigSecret = map[string]string{p.tsigKey: p.tsigSecret}
		m.SetTsig(p.tsigKey, p.tsigAlgo, 300, time.Now().Unix())
	}
	r, _, err := c.ExchangeContext(ctx, m, p.server)
	if err != nil {
		return nil, fmt.Errorf("rfc2136: exchange with %s: %w", p.server, err)
	}
	return r, nil
}

func qtype(t dns.RecordType) (uint16, error) {
	v, ok := mdns.StringToType[string(t)]
	if !ok {
		return 0, fmt.Errorf("rfc2136: unsupported record type %q", t)
	}
	return v, nil
}

// Get queries the server for name and type and returns the first answer.
func (p *Provider) Get(ctx context.Context, name string, recordType dns.RecordType) (*dns.Record, error) {
	qt, err := qtype(recordType)
	if err != nil {
		return nil, err
	}
	fqdn := mdns.Fqdn(dns.JoinHostname(name, p.domain))

	m := new(mdns.Msg)
	m.SetQuestion(fqdn, qt)
	m.RecursionDesired = false

	r, err := p.exchange(ctx, m)
	if err != nil {
		return nil, err
	}
	switch r.Rcode {
	case mdns.RcodeSuccess:
	case mdns.RcodeNameError:
		return nil, nil
	default:
		return nil, fmt.Errorf("rfc2136: query %s %s: %s", fqdn, recordType, mdns.RcodeToString[r.Rcode])
	}

	for _, rr := range r.Answer {
		h := rr.Header()
		if h.Rrtype != qt || !strings.EqualFold(h.Name, fqdn) {
			continue
		}
		return &dns.Record{
			Domain: p.domain,
			Name:   name,
			Type:   recordType,
			Value:  strings.TrimPrefix(rr.String(), h.String()),
			TTL:    int(h.Ttl),
		}, nil
	}
	return nil, nil
}

func (p *Provider) update(ctx context.Context, m *mdns.Msg, op string) error {
	r, err := p.exchange(ctx, m)
	if err != nil {
		return err
	}
	if r.Rcode != mdns.RcodeSuccess {
		return fmt.Errorf("rfc2136: %s rejected: %s", op, mdns.RcodeToString[r.Rcode])
	}
	return nil
}

// Set replaces the record set for the record's name and type with one record.
func (p *Provider) Set(ctx context.Context, record dns.Record) error {
	ttl := record.TTL
	if ttl == 0 {
		ttl = dns.DefaultTTL
	}
	fqdn := mdns.Fqdn(dns.JoinHostname(record.Name, p.domain))
	rr, err := mdns.NewRR(fmt.Sprintf("%s %d IN %s %s", fqdn, ttl, record.Type, record.Value))
	if err != nil {
		return fmt.Errorf("rfc2136: building %s record for %s: %w", record.Type, fqdn, err)
	}

	m := new(mdns.Msg)
	m.SetUpdate(p.zone)
	m.RemoveRRset([]mdns.RR{rr})
	m.Insert([]mdns.RR{rr})

	p.log.Info("updating record", "name", fqdn, "type", record.Type, "value", record.Value)
	return p.update(ctx, m, "update")
}

// Delete removes the whole record set for name and type.
func (p *Provider) Delete(ctx context.Context, name string, recordType dns.RecordType) error {
	qt, err := qtype(recordType)
	if err != nil {
		return err
	}
	fqdn := mdns.Fqdn(dns.JoinHostname(name, p.domain))

	m := new(mdns.Msg)
	m.SetUpdate(p.zone)
	m.RemoveRRset([]mdns.RR{&mdns.ANY{Hdr: mdns.RR_Header{Name: fqdn, Rrtype: qt, Class: mdns.ClassINET}}})

	p.log.Info("deleting record", "name", fqdn, "type", recordType)
	return p.update(ctx, m, "delete")
}
