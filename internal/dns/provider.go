package dns

import (
	"context"
	"fmt"
	"strings"

	"github.com/yuriy-kovalchuk/yk-ddns/internal/addr"
)

// RecordType is a DNS resource record type.
type RecordType string

const (
	TypeA     RecordType = "A"
	TypeAAAA  RecordType = "AAAA"
	TypeCNAME RecordType = "CNAME"
	TypeMX    RecordType = "MX"
	TypeNS    RecordType = "NS"
	TypeSOA   RecordType = "SOA"
	TypeSRV   RecordType = "SRV"
	TypeTXT   RecordType = "TXT"
)

// DefaultTTL is applied to records that do not specify one.
const DefaultTTL = 600

// ParseRecordType converts s (case-insensitive) into a known RecordType.
func ParseRecordType(s string) (RecordType, error) {
	t := RecordType(strings.ToUpper(strings.TrimSpace(s)))
	switch t {
	case TypeA, TypeAAAA, TypeCNAME, TypeMX, TypeNS, TypeSOA, TypeSRV, TypeTXT:
		return t, nil
	}
	return "", fmt.Errorf("unknown record type %q", s)
}

// Family returns the address family carried by the record type. The second
// result is false for types that do not hold an address.
func (t RecordType) Family() (addr.Family, bool) {
	switch t {
	case TypeA:
		return addr.IPv4, true
	case TypeAAAA:
		return addr.IPv6, true
	}
	return 0, false
}

// Record represents a single DNS record in a zone.
type Record struct {
	ID      string     // provider handle, empty until fetched
	Domain  string     // zone, e.g. "example.com"
	Name    string     // relative name, e.g. "www"; "@" for the apex
	Type    RecordType // "A", "AAAA", ...
	Value   string     // IP address or target
	TTL     int        // 0 = DefaultTTL
	Comment string
}

// FQDN returns the fully-qualified name of the record without a trailing dot.
func (r Record) FQDN() string {
	return JoinHostname(r.Name, r.Domain)
}

// Provider is the interface that DNS providers must implement. Every
// provider instance is scoped to one domain and one set of credentials.
type Provider interface {
	// Get returns the current record for name and type, or nil when the
	// provider holds no matching record.
	Get(ctx context.Context, name string, recordType RecordType) (*Record, error)
	// Set creates the record or updates it in place.
	Set(ctx context.Context, record Record) error
	// Delete removes the record. Deleting an absent record is not an error.
	Delete(ctx context.Context, name string, recordType RecordType) error
}
