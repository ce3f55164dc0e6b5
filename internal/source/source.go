// Package source observes the addresses a host is reachable at, either from
// its own network interfaces or from the WAN side of an ASUS-style router.
//
// Sources never fail: when discovery is impossible they log a warning and
// return a fallback address that addr.IsPrivate classifies as private, so the
// reconciliation engine treats it as "nothing to publish".
package source

import (
	"context"
	"net/netip"

	"github.com/yuriy-kovalchuk/yk-ddns/internal/addr"
)

// Source yields the current address of the host for a family.
type Source interface {
	Current(ctx context.Context, family addr.Family) netip.Addr
}

// Router is a Source that can also report the two addresses needed to detect
// carrier-grade NAT: the address assigned to its WAN port and the public
// address it believes it is reachable at.
type Router interface {
	Source
	WAN(ctx context.Context) netip.Addr
	Real(ctx context.Context) netip.Addr
}
