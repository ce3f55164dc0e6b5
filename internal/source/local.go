package source

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"regexp"

	"github.com/go-logr/logr"

	"github.com/yuriy-kovalchuk/yk-ddns/internal/addr"
)

// DefaultInterfacePattern matches predictable names of wired NICs (enp3s0, eno1s0, ...),
// ignoring case.
const DefaultInterfacePattern = `(?i)^en[op][0-9]s[0-9]`

// Interface is the subset of a network interface the local source needs.
type Interface struct {
	Name     string
	Up       bool
	Loopback bool
	Addrs    []netip.Addr
}

// InterfaceLister enumerates the host's network interfaces.
type InterfaceLister func() ([]Interface, error)

// SystemInterfaces lists the interfaces of the running host.
func SystemInterfaces() ([]Interface, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("source: listing interfaces: %w", err)
	}
	out := make([]Interface, 0, len(ifaces))
	for _, ifi := range ifaces {
		addrs, err := ifi.Addrs()
		if err != nil {
			return nil, fmt.Errorf("source: addresses of %s: %w", ifi.Name, err)
		}
		it := Interface{
			Name:     ifi.Name,
			Up:       ifi.Flags&net.FlagUp != 0,
			Loopback: ifi.Flags&net.FlagLoopback != 0,
		}
		// addr: ip+net:192.168.86.253/24
		for _, a := range addrs {
			p, err := netip.ParsePrefix(a.String())
			if err != nil {
				continue
			}
			it.Addrs = append(it.Addrs, p.Addr())
		}
		out = append(out, it)
	}
	return out, nil
}

// Local reads addresses from the first matching local interface.
type Local struct {
	pattern *regexp.Regexp
	list    InterfaceLister
	log     logr.Logger
}

// NewLocal returns a local source. An empty pattern selects any interface
// that is up and not a loopback. A nil lister uses SystemInterfaces.
func NewLocal(log logr.Logger, pattern string, list InterfaceLister) (*Local, error) {
	l := &Local{list: list, log: log}
	if l.list == nil {
		l.list = SystemInterfaces
	}
	if pattern != "" {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("source: invalid interface pattern %q: %w", pattern, err)
		}
		l.pattern = re
	}
	return l, nil
}

func (l *Local) selects(it Interface) bool {
	if !it.Up || it.Loopback {
		return false
	}
	return l.pattern == nil || l.pattern.MatchString(it.Name)
}

// Current returns the address of the first selected interface carrying one
// of the requested family. A public address wins over a private one on the
// same interface. When nothing is found the family's loopback is returned.
func (l *Local) Current(_ context.Context, family addr.Family) netip.Addr {
	fallback := addr.Loopback(family)

	ifaces, err := l.list()
	if err != nil {
		l.log.Error(err, "unable to enumerate interfaces, using fallback", "family", family, "fallback", fallback)
		return fallback
	}

	for _, it := range ifaces {
		if !l.selects(it) {
			continue
		}
		var first netip.Addr
		for _, a := range it.Addrs {
			if !addr.Matches(a, family) {
				continue
			}
			a = a.Unmap()
			if !addr.IsPrivate(a) {
				l.log.V(1).Info("local address", "interface", it.Name, "family", family, "address", a)
				return a
			}
			if !first.IsValid() {
				first = a
			}
		}
		if first.IsValid() {
			l.log.V(1).Info("local address is private", "interface", it.Name, "family", family, "address", first)
			return first
		}
	}

	l.log.Info("no interface carries an address of this family, using fallback", "family", family, "fallback", fallback)
	return fallback
}
