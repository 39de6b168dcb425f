package stun

import (
	"context"
	"fmt"
	"net"

	"github.com/miekg/dns"
)

// ResolveHost resolves host's A record via the given DNS server
// (host:port), used to look up the canonical STUN server hostnames
// spec.md §4.2 calls IP_A/IP_B before probing them.
func ResolveHost(ctx context.Context, dnsServer, host string) (net.IP, error) {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(host), dns.TypeA)
	c := new(dns.Client)
	resp, _, err := c.ExchangeContext(ctx, m, dnsServer)
	if err != nil {
		return nil, fmt.Errorf("stun: resolving %s via %s: %w", host, dnsServer, err)
	}
	for _, rr := range resp.Answer {
		if a, ok := rr.(*dns.A); ok {
			return a.A, nil
		}
	}
	return nil, fmt.Errorf("stun: no A record for %s", host)
}
