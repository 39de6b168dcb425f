// Package socketconnector implements the direct-TCP leg of remote-socket
// acquisition (spec.md §4.5): sequential connect across a sorted address
// list, IPv6 first, bounded per-address.
package socketconnector

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"sort"
	"sync"
	"time"

	"github.com/datawire/dlib/dlog"

	"github.com/suniljakhar/mojop2p/pkg/perr"
)

// Config bounds a Connector's per-address timeout.
type Config struct {
	PerAddressTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{PerAddressTimeout: 8 * time.Second}
}

// Connector attempts a sequential TCP connect across a resolved address
// list, per spec.md §4.5.
type Connector struct {
	cfg Config

	mu      sync.Mutex
	dialing net.Conn
	aborted bool
}

func New(cfg Config) *Connector {
	return &Connector{cfg: cfg}
}

// sortAddrs orders a resolved address list IPv6-first, per spec.md §4.5.
func sortAddrs(ips []net.IP) []net.IP {
	sorted := make([]net.IP, len(ips))
	copy(sorted, ips)
	sort.SliceStable(sorted, func(i, j int) bool {
		return isIPv6(sorted[i]) && !isIPv6(sorted[j])
	})
	return sorted
}

func isIPv6(ip net.IP) bool {
	if addr, ok := netip.AddrFromSlice(ip); ok {
		return addr.Is6() && !addr.Is4In6()
	}
	return false
}

// Connect resolves host, sorts the results IPv6-first, and attempts a TCP
// connect to each in turn, each bounded by cfg.PerAddressTimeout. The
// first success wins; if every address fails, it returns
// AllAddressesFailed.
func (c *Connector) Connect(ctx context.Context, host string, port uint16) (net.Conn, error) {
	ips, err := net.DefaultResolver.LookupIP(ctx, "ip", host)
	if err != nil {
		return nil, perr.New(perr.AllAddressesFailed, fmt.Errorf("socketconnector: resolving %s: %w", host, err))
	}
	return c.ConnectAddrs(ctx, sortAddrs(ips), port)
}

// ConnectAddrs is Connect's core loop, exposed directly for callers that
// already hold a resolved, ordered address list.
func (c *Connector) ConnectAddrs(ctx context.Context, ips []net.IP, port uint16) (net.Conn, error) {
	if len(ips) == 0 {
		return nil, perr.New(perr.AllAddressesFailed, fmt.Errorf("socketconnector: no addresses to try"))
	}

	var lastErr error
	for _, ip := range ips {
		if c.isAborted() {
			return nil, perr.New(perr.Canceled, fmt.Errorf("socketconnector: aborted"))
		}

		addrCtx, cancel := context.WithTimeout(ctx, c.cfg.PerAddressTimeout)
		conn, err := c.dialOne(addrCtx, net.JoinHostPort(ip.String(), fmt.Sprintf("%d", port)))
		cancel()
		if err == nil {
			return conn, nil
		}
		lastErr = err
		dlog.Debugf(ctx, "socketconnector: %s unreachable: %v", ip, err)

		if ctx.Err() != nil {
			return nil, perr.New(perr.Canceled, ctx.Err())
		}
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no addresses attempted")
	}
	return nil, perr.New(perr.AllAddressesFailed, fmt.Errorf("socketconnector: all addresses failed, last: %w", lastErr))
}

func (c *Connector) dialOne(ctx context.Context, addr string) (net.Conn, error) {
	d := &net.Dialer{}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.aborted {
		c.mu.Unlock()
		_ = conn.Close()
		return nil, perr.New(perr.Canceled, fmt.Errorf("socketconnector: aborted during connect"))
	}
	c.dialing = conn
	c.mu.Unlock()
	return conn, nil
}

func (c *Connector) isAborted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.aborted
}

// Abort synchronously marks the connector cancelled and closes any
// in-flight socket, per spec.md §5's cancellation contract.
func (c *Connector) Abort() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.aborted = true
	if c.dialing != nil {
		_ = c.dialing.Close()
		c.dialing = nil
	}
}
