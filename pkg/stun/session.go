package stun

import (
	"bytes"
	"context"
	"crypto/rand"
	"fmt"
	"net"
	"time"

	"github.com/datawire/dlib/dlog"

	"github.com/suniljakhar/mojop2p/pkg/perr"
)

// Config bounds a Session's probing and validation behavior, per spec.md
// §3's STUN transaction model and §4.2's validation window.
type Config struct {
	InitialRTO        time.Duration // 500ms per spec.md §3
	MaxRetries        int           // 9 retries, doubling RTO each time
	ValidationTimeout time.Duration // 15s typical, spec.md §4.2
	AttemptBudget     int           // 2 full attempts, spec.md §4.2
}

// DefaultConfig matches spec.md's stated defaults.
func DefaultConfig() Config {
	return Config{
		InitialRTO:        500 * time.Millisecond,
		MaxRetries:        9,
		ValidationTimeout: 15 * time.Second,
		AttemptBudget:     2,
	}
}

// Session discovers the local UDP mapping's external view, classifies the
// NAT, predicts the peer's allocation pattern, and runs a validated
// hole-punch, per spec.md §4.2.
type Session struct {
	uuid string
	cfg  Config
}

func NewSession(uuid string, cfg Config) *Session {
	return &Session{uuid: uuid, cfg: cfg}
}

// Probe sends one Binding Request to server and waits for the matching
// Binding Response, retrying with doubling RTO up to cfg.MaxRetries times
// per spec.md §3.
func (s *Session) Probe(ctx context.Context, conn net.PacketConn, server net.Addr) (*Message, error) {
	req := NewBindingRequest()
	wire := req.Encode()
	rto := s.cfg.InitialRTO

	for attempt := 0; attempt <= s.cfg.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, perr.New(perr.Canceled, ctx.Err())
		}
		if _, err := conn.WriteTo(wire, server); err != nil {
			return nil, perr.New(perr.NoMapping, fmt.Errorf("stun: writing binding request to %s: %w", server, err))
		}
		_ = conn.SetReadDeadline(time.Now().Add(rto))
		buf := make([]byte, 512)
		n, from, err := conn.ReadFrom(buf)
		if err == nil && sameHost(from, server) {
			resp, derr := Decode(buf[:n])
			if derr == nil && resp.TransactionID == req.TransactionID && resp.Type == TypeBindingResponse {
				return resp, nil
			}
		}
		rto *= 2
		if rto > 60*time.Second {
			rto = 60 * time.Second
		}
	}
	return nil, perr.New(perr.NoMapping, fmt.Errorf("stun: no response from %s after %d attempts", server, s.cfg.MaxRetries+1))
}

func sameHost(a, b net.Addr) bool {
	ua, ok1 := a.(*net.UDPAddr)
	ub, ok2 := b.(*net.UDPAddr)
	if !ok1 || !ok2 {
		return a.String() == b.String()
	}
	return ua.IP.Equal(ub.IP)
}

// Discover runs the four-probe classification sequence of spec.md §4.2
// against (serverA, serverB), each probed at portA and portB.
func (s *Session) Discover(ctx context.Context, conn net.PacketConn, serverA, serverB *net.UDPAddr, portB uint16) (Probes, RouterType, error) {
	localIP, localPort := localAddrParts(conn)

	serverAPortB := &net.UDPAddr{IP: serverA.IP, Port: int(portB)}
	serverBPortA := &net.UDPAddr{IP: serverB.IP, Port: serverA.Port}

	r1, err := s.Probe(ctx, conn, serverA)
	if err != nil {
		return Probes{}, "", err
	}
	r2, err := s.Probe(ctx, conn, serverAPortB)
	if err != nil {
		return Probes{}, "", err
	}
	r3, err := s.Probe(ctx, conn, serverBPortA)
	if err != nil {
		return Probes{}, "", err
	}
	r4, err := s.Probe(ctx, conn, serverB)
	if err != nil {
		return Probes{}, "", err
	}

	p1, _ := r1.ExternalAddress()
	p2, _ := r2.ExternalAddress()
	p3, _ := r3.ExternalAddress()
	p4, _ := r4.ExternalAddress()

	probes := Probes{P1: p1, P2: p2, P3: p3, P4: p4, LocalIP: localIP, LocalPort: localPort}
	router := Classify(probes)
	dlog.Debugf(ctx, "stun[%s]: classified router as %s", s.uuid, router)
	return probes, router, nil
}

func localAddrParts(conn net.PacketConn) (string, uint16) {
	if ua, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		return ua.IP.String(), uint16(ua.Port)
	}
	return "", 0
}

// Predict computes the peer's predicted mapped port for a port-sensitive
// symmetric NAT, or fails with PredictionUnavailable for any other router
// type, per spec.md §4.2.
func (s *Session) Predict(router RouterType, probes Probes) (PredictedRange, error) {
	if !CanPredict(router) {
		return PredictedRange{}, perr.New(perr.PredictionUnavailable, fmt.Errorf("stun: router type %s does not support point prediction", router))
	}
	return PredictPort(probes.P1.Port, probes.P2.Port, probes.P3.Port, probes.P4.Port), nil
}

type candidateState struct {
	addr    *net.UDPAddr
	readOK  bool
	writeOK bool
}

// Validate runs spec.md §4.2's validated hole-punch: a 32-byte nonce is
// sent to every candidate repeatedly; the session succeeds for the first
// candidate for which both directions are confirmed within timeout.
func (s *Session) Validate(ctx context.Context, conn net.PacketConn, candidates []*net.UDPAddr, timeout time.Duration) (*net.UDPAddr, error) {
	if len(candidates) == 0 {
		return nil, perr.New(perr.ValidationFailure, fmt.Errorf("stun: no candidates to validate"))
	}

	nonce := make([]byte, 32)
	_, _ = rand.Read(nonce)

	states := make(map[string]*candidateState, len(candidates))
	for _, c := range candidates {
		states[c.String()] = &candidateState{addr: c}
	}

	send := func() {
		for _, c := range candidates {
			_, _ = conn.WriteTo(nonce, c)
		}
	}
	send()

	ticker := time.NewTicker(300 * time.Millisecond)
	defer ticker.Stop()
	deadline := time.Now().Add(timeout)
	buf := make([]byte, 64)

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return nil, perr.New(perr.Canceled, ctx.Err())
		case <-ticker.C:
			send()
		default:
		}

		_ = conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
		n, from, err := conn.ReadFrom(buf)
		if err == nil {
			if udpFrom, ok := from.(*net.UDPAddr); ok {
				if st, found := states[udpFrom.String()]; found && n == 32 {
					if bytes.Equal(buf[:32], nonce) {
						st.writeOK = true
						_, _ = conn.WriteTo(nonce, udpFrom)
					} else {
						st.readOK = true
						_, _ = conn.WriteTo(buf[:32], udpFrom)
					}
				}
			}
		}

		for _, st := range states {
			if st.readOK && st.writeOK {
				return st.addr, nil
			}
		}
	}

	for _, st := range states {
		if st.readOK != st.writeOK {
			dir := "write"
			if st.readOK {
				dir = "read"
			}
			return nil, perr.New(perr.ValidationPartial, fmt.Errorf("stun: only %s validation completed for %s", dir, st.addr))
		}
	}
	return nil, perr.New(perr.ValidationFailure, fmt.Errorf("stun: no candidate validated within %s", timeout))
}
