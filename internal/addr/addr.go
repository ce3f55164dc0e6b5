// Package addr classifies IP addresses for dynamic DNS purposes.
package addr

import (
	"fmt"
	"net/netip"
)

// Family is an IP address family.
type Family int

const (
	IPv4 Family = iota
	IPv6
)

func (f Family) String() string {
	switch f {
	case IPv4:
		return "IPv4"
	case IPv6:
		return "IPv6"
	default:
		return fmt.Sprintf("Family(%d)", int(f))
	}
}

// reserved lists special-purpose ranges that are never reachable from the
// internet. Documentation ranges are not listed and count as public.
var reserved = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),     // "this network"
	netip.MustParsePrefix("100.64.0.0/10"), // carrier-grade NAT, RFC 6598
	netip.MustParsePrefix("192.0.0.0/24"),  // IETF protocol assignments
	netip.MustParsePrefix("198.18.0.0/15"), // benchmarking
	netip.MustParsePrefix("240.0.0.0/4"),   // reserved, includes broadcast
	netip.MustParsePrefix("100::/64"),      // discard-only
}

// IsPrivate reports whether a is unusable as a public DNS answer.
// It covers RFC1918, unique-local, loopback, link-local, multicast,
// unspecified, carrier-grade NAT and IANA special-purpose addresses.
// Invalid addresses are private.
func IsPrivate(a netip.Addr) bool {
	if !a.IsValid() {
		return true
	}
	a = a.Unmap()
	switch {
	case a.IsPrivate(),
		a.IsLoopback(),
		a.IsLinkLocalUnicast(),
		a.IsMulticast(),
		a.IsUnspecified():
		return true
	}
	for _, p := range reserved {
		if p.Contains(a) {
			return true
		}
	}
	return false
}

// Loopback returns the loopback address for the family.
func Loopback(f Family) netip.Addr {
	if f == IPv6 {
		return netip.IPv6Loopback()
	}
	return netip.AddrFrom4([4]byte{127, 0, 0, 1})
}

// Unspecified returns the all-zero address for the family.
func Unspecified(f Family) netip.Addr {
	if f == IPv6 {
		return netip.IPv6Unspecified()
	}
	return netip.IPv4Unspecified()
}

// Matches reports whether a belongs to the family.
func Matches(a netip.Addr, f Family) bool {
	a = a.Unmap()
	if f == IPv6 {
		return a.Is6()
	}
	return a.Is4()
}
