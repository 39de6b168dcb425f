// Package turn implements the TURN fallback transport (spec.md §4.4): a
// relayed TCP stream rendezvoused through an XEP-0065 SOCKS5 bytestream
// proxy ("streamhost"), negotiated over the signaling channel.
package turn

import (
	"context"
	"crypto/sha1" //nolint:gosec // protocol-mandated hash, not used for secrecy
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"net"
	"time"

	"github.com/datawire/dlib/dlog"
	"golang.org/x/net/proxy"

	"github.com/suniljakhar/mojop2p/pkg/perr"
	"github.com/suniljakhar/mojop2p/pkg/signaling"
	"github.com/suniljakhar/mojop2p/pkg/streamsocket"
)

// State is a TurnSession state, per spec.md §3: DISCO, ACTIVATE, CONNECT,
// DONE, FAILED.
type State int32

const (
	StateDisco State = iota
	StateActivate
	StateConnect
	StateDone
	StateFailed
)

// Role distinguishes which side initiates the `start_turn` handshake.
type Role string

const (
	RoleInitiator Role = "initiator"
	RoleTarget    Role = "target"
)

// Candidate is one streamhost: a SOCKS5 proxy named by a signaling JID.
type Candidate struct {
	JID  string
	Host string
	Port uint16
}

// Config bounds a Session's per-candidate and overall timeouts, per
// spec.md §4.4.
type Config struct {
	PerCandidateTimeout time.Duration // 10s default
	SessionTimeout      time.Duration // 60s outer bound
}

func DefaultConfig() Config {
	return Config{PerCandidateTimeout: 10 * time.Second, SessionTimeout: 60 * time.Second}
}

// Session is one TurnSession: its uuid, role, initiator and target JIDs,
// the proxy candidate list and the index of the candidate being tried. It
// keeps no separate streamhost list or index and no target public key.
type Session struct {
	UUID           string
	Role           Role
	Initiator      string
	Target         string
	cfg            Config
	Candidates     []Candidate
	candidateIndex int
	State          State

	sender   signaling.Sender
	resolver func(ctx context.Context, server string) ([]Candidate, error)
}

func NewSession(uuid string, role Role, initiator, target string, cfg Config, sender signaling.Sender) *Session {
	return &Session{UUID: uuid, Role: role, Initiator: initiator, Target: target, cfg: cfg, sender: sender, State: StateDisco}
}

// username computes hex(SHA1(uuid ‖ initiator ‖ target)), the SOCKS5
// DST.ADDR domain-name value identifying this bytestream, per spec.md §6.
func (s *Session) username() string {
	h := sha1.New()
	h.Write([]byte(s.UUID))
	h.Write([]byte(s.Initiator))
	h.Write([]byte(s.Target))
	return hex.EncodeToString(h.Sum(nil))
}

// Discover populates Candidates either from pre-configured streamhosts or,
// absent those, a service-discovery query whose results are cached for the
// life of the session (spec.md §4.4 "Discovery").
func (s *Session) Discover(ctx context.Context, preconfigured []Candidate, discoveryServer string) error {
	if len(preconfigured) > 0 {
		s.Candidates = preconfigured
		return nil
	}
	if s.resolver == nil {
		return perr.New(perr.NoProxyCandidate, fmt.Errorf("turn: no streamhosts configured and no discovery resolver set"))
	}
	candidates, err := s.resolver(ctx, discoveryServer)
	if err != nil {
		return perr.New(perr.NoProxyCandidate, fmt.Errorf("turn: streamhost discovery failed: %w", err))
	}
	if len(candidates) == 0 {
		return perr.New(perr.NoProxyCandidate, fmt.Errorf("turn: discovery returned no streamhosts"))
	}
	s.Candidates = candidates
	return nil
}

// SendInvite announces the candidate list to the peer via start_turn.
func (s *Session) SendInvite(to string) error {
	if s.sender == nil {
		return nil
	}
	hosts := make([]signaling.StreamhostCandidate, 0, len(s.Candidates))
	for _, c := range s.Candidates {
		hosts = append(hosts, signaling.StreamhostCandidate{JID: c.JID, Host: c.Host, Port: c.Port})
	}
	msg := signaling.StartTurn{UUID: s.UUID, Streamhosts: hosts}
	return s.sender.SendEnvelope(to, encodeStartTurn(msg))
}

// encodeStartTurn renders msg as its start_turn XML element, one
// streamhost child per candidate.
func encodeStartTurn(msg signaling.StartTurn) []byte {
	out, err := xml.Marshal(msg)
	if err != nil {
		return nil
	}
	return out
}

// Connect iterates Candidates in order, attempting a SOCKS5 CONNECT to
// each with a per-candidate timeout, per spec.md §4.4. On success it
// sends `activate(streamhost_jid)` to bridge the two halves and returns
// the resulting stream wrapped as a StreamSocket.
func (s *Session) Connect(ctx context.Context) (streamsocket.Socket, error) {
	s.State = StateConnect
	ctx, cancel := context.WithTimeout(ctx, s.cfg.SessionTimeout)
	defer cancel()

	dstAddr := fmt.Sprintf("%s:0", s.username())

	var lastErr error
	for s.candidateIndex = 0; s.candidateIndex < len(s.Candidates); s.candidateIndex++ {
		c := s.Candidates[s.candidateIndex]
		candCtx, candCancel := context.WithTimeout(ctx, s.cfg.PerCandidateTimeout)

		conn, err := s.dialCandidate(candCtx, c, dstAddr)
		candCancel()
		if err != nil {
			lastErr = err
			dlog.Debugf(ctx, "turn[%s]: candidate %s refused: %v", s.UUID, c.JID, err)
			continue
		}

		s.State = StateActivate
		if s.sender != nil {
			if err := s.sender.SendEnvelope(c.JID, encodeActivate(signaling.Activate{StreamhostJID: c.JID})); err != nil {
				_ = conn.Close()
				lastErr = perr.New(perr.ProxyRefused, fmt.Errorf("turn: activate failed for %s: %w", c.JID, err))
				continue
			}
		}

		s.State = StateDone
		return streamsocket.FromTCP(conn, streamsocket.KindTurn), nil
	}

	s.State = StateFailed
	if lastErr == nil {
		lastErr = perr.New(perr.NoProxyCandidate, fmt.Errorf("turn: no candidates to attempt"))
	}
	return nil, lastErr
}

func (s *Session) dialCandidate(ctx context.Context, c Candidate, dstAddr string) (net.Conn, error) {
	proxyAddr := fmt.Sprintf("%s:%d", c.Host, c.Port)
	dialer, err := proxy.SOCKS5("tcp", proxyAddr, nil, proxy.Direct)
	if err != nil {
		return nil, perr.New(perr.ProxyRefused, fmt.Errorf("turn: building SOCKS5 dialer for %s: %w", proxyAddr, err))
	}

	type result struct {
		conn net.Conn
		err  error
	}
	done := make(chan result, 1)
	go func() {
		conn, err := dialer.Dial("tcp", dstAddr)
		done <- result{conn, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, perr.New(perr.ProxyRefused, fmt.Errorf("turn: CONNECT via %s: %w", proxyAddr, r.err))
		}
		return r.conn, nil
	case <-ctx.Done():
		return nil, perr.New(perr.ProxyRefused, fmt.Errorf("turn: CONNECT via %s timed out: %w", proxyAddr, ctx.Err()))
	}
}

func encodeActivate(msg signaling.Activate) []byte {
	return []byte(fmt.Sprintf("<activate streamhost-jid=%q/>", msg.StreamhostJID))
}
