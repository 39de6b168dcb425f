package turn

import (
	"context"
	"fmt"
	"time"

	"github.com/miekg/dns"
)

// DNSResolver returns a streamhost resolver backed by a SRV lookup for
// `_proxy64._tcp.<domain>` against dnsServer (host:port), caching nothing
// itself — callers bound the cache lifetime via the session's Discover
// call cadence, per spec.md §4.4's "cached for a bounded interval".
func DNSResolver(dnsServer string) func(ctx context.Context, domain string) ([]Candidate, error) {
	return func(ctx context.Context, domain string) ([]Candidate, error) {
		m := new(dns.Msg)
		m.SetQuestion(dns.Fqdn("_proxy64._tcp."+domain), dns.TypeSRV)
		c := new(dns.Client)
		c.Timeout = 5 * time.Second

		resp, _, err := c.ExchangeContext(ctx, m, dnsServer)
		if err != nil {
			return nil, fmt.Errorf("turn: SRV lookup for %s via %s: %w", domain, dnsServer, err)
		}

		candidates := make([]Candidate, 0, len(resp.Answer))
		for _, rr := range resp.Answer {
			srv, ok := rr.(*dns.SRV)
			if !ok {
				continue
			}
			candidates = append(candidates, Candidate{
				JID:  srv.Target,
				Host: srv.Target,
				Port: srv.Port,
			})
		}
		return candidates, nil
	}
}

// WithResolver attaches a streamhost discovery resolver to the session,
// used when Discover is called with no preconfigured candidates.
func (s *Session) WithResolver(resolver func(ctx context.Context, server string) ([]Candidate, error)) *Session {
	s.resolver = resolver
	return s
}
