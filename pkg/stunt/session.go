// Package stunt implements TCP-over-NAT hole punching (spec.md §4.3):
// a symmetric SYN exchange from both sides, with port prediction and a
// port-mapping accelerator.
package stunt

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/datawire/dlib/dlog"

	"github.com/suniljakhar/mojop2p/pkg/perr"
	"github.com/suniljakhar/mojop2p/pkg/portmap"
	"github.com/suniljakhar/mojop2p/pkg/signaling"
)

// protocolVersion is advertised in every StartStunt/StartStuntAck message.
const protocolVersion = "1.0"

// Role distinguishes the STUNT initiator from the responder; the protocol
// is otherwise symmetric (spec.md §3).
type Role string

const (
	RoleClient Role = "client"
	RoleServer Role = "server"
)

// State is a StuntSession state, per spec.md §3.
type State int32

const (
	StateInit State = iota
	StatePortPrediction
	StateInviteSent
	StateAwaitAccept
	StatePunch
	StateValidate
	StateDone
	StateFailed
)

// Config bounds a Session's retry and timeout behavior.
type Config struct {
	AttemptBudget int           // 2 full cycles, spec.md §4.3
	PunchTimeout  time.Duration // bound on one simultaneous-open attempt
}

func DefaultConfig() Config {
	return Config{AttemptBudget: 2, PunchTimeout: 8 * time.Second}
}

// Session is one StuntSession: {uuid, role, attempt, local/remote mapped
// and predicted ports}, per spec.md §3.
type Session struct {
	UUID   string
	Role   Role
	cfg    Config
	attempt int

	LocalExternalIP    net.IP
	LocalServerPort    uint16
	LocalMappedPort    uint16
	LocalPredictedPort uint16

	RemoteIP4           net.IP
	RemoteIP6           net.IP
	RemotePredictedPort uint16
	RemoteServerPort    uint16

	State State
}

func NewSession(uuid string, role Role, cfg Config, localServerPort uint16) *Session {
	return &Session{UUID: uuid, Role: role, cfg: cfg, LocalServerPort: localServerPort, State: StateInit}
}

// TryPortMapping asks the external port-mapping facade to install a
// mapping for the local server port; on success LocalMappedPort equals
// LocalPredictedPort, per spec.md §4.3. On any error the caller should
// fall back to a StunSession-derived prediction, or the raw server port
// as a last resort.
func (s *Session) TryPortMapping(ctx context.Context, facade portmap.Facade) bool {
	s.State = StatePortPrediction
	if facade == nil {
		return false
	}
	ext, err := facade.AddMapping(ctx, s.LocalServerPort)
	if err != nil {
		dlog.Debugf(ctx, "stunt[%s]: port mapping unavailable: %v", s.UUID, err)
		return false
	}
	s.LocalMappedPort = ext
	s.LocalPredictedPort = ext
	return true
}

// UsePredictedPort falls back to a StunSession-derived prediction when
// the port-mapping accelerator is unavailable.
func (s *Session) UsePredictedPort(predicted uint16) {
	s.LocalPredictedPort = predicted
}

// UseServerPort is the last-resort fallback: the raw local listening
// port, unmapped and unpredicted.
func (s *Session) UseServerPort() {
	s.LocalPredictedPort = s.LocalServerPort
}

// BuildInvite composes the StartStunt message advertising this session's
// local candidates to the peer, per spec.md §4.3.
func (s *Session) BuildInvite() signaling.StartStunt {
	s.State = StateInviteSent
	msg := signaling.StartStunt{
		UUID:          s.UUID,
		PredictedPort: s.LocalPredictedPort,
		ServerPort:    s.LocalServerPort,
		Version:       protocolVersion,
	}
	if s.LocalExternalIP != nil {
		if v4 := s.LocalExternalIP.To4(); v4 != nil {
			msg.IP4 = v4.String()
		} else {
			msg.IP6 = s.LocalExternalIP.String()
		}
	}
	return msg
}

// BuildAck composes the StartStuntAck reply advertising this session's own
// candidates back to the inviter.
func (s *Session) BuildAck() signaling.StartStuntAck {
	ack := signaling.StartStuntAck{
		UUID:          s.UUID,
		PredictedPort: s.LocalPredictedPort,
		ServerPort:    s.LocalServerPort,
		Version:       protocolVersion,
	}
	if s.LocalExternalIP != nil {
		if v4 := s.LocalExternalIP.To4(); v4 != nil {
			ack.IP4 = v4.String()
		} else {
			ack.IP6 = s.LocalExternalIP.String()
		}
	}
	return ack
}

// ApplyPeer records the remote candidates carried by a StartStunt or
// StartStuntAck message and moves the session to await the simultaneous
// open, per spec.md §4.3.
func (s *Session) ApplyPeer(ip4, ip6 string, predictedPort, serverPort uint16) {
	if ip4 != "" {
		s.RemoteIP4 = net.ParseIP(ip4)
	}
	if ip6 != "" {
		s.RemoteIP6 = net.ParseIP(ip6)
	}
	s.RemotePredictedPort = predictedPort
	s.RemoteServerPort = serverPort
	s.State = StateAwaitAccept
}

// Candidates returns the peer addresses to attempt punching, in priority
// order: the predicted port first, the raw server port as fallback,
// matching spec.md §4.3's two-cycle attempt budget.
func (s *Session) Candidates() []*net.TCPAddr {
	ip := s.RemoteIP4
	if ip == nil {
		ip = s.RemoteIP6
	}
	if ip == nil {
		return nil
	}
	out := make([]*net.TCPAddr, 0, 2)
	if s.RemotePredictedPort != 0 {
		out = append(out, &net.TCPAddr{IP: ip, Port: int(s.RemotePredictedPort)})
	}
	if s.RemoteServerPort != 0 && s.RemoteServerPort != s.RemotePredictedPort {
		out = append(out, &net.TCPAddr{IP: ip, Port: int(s.RemoteServerPort)})
	}
	return out
}

// Punch performs the simultaneous-open attempt for one cycle: it opens a
// listening socket on LocalPredictedPort AND dials the peer's predicted
// (ip, port) from that same local port (SO_REUSEADDR/SO_REUSEPORT), per
// spec.md §4.3. The first side to complete a handshake wins; the other
// attempt is abandoned.
func (s *Session) Punch(ctx context.Context, peerAddr *net.TCPAddr) (net.Conn, error) {
	s.State = StatePunch
	ctx, cancel := context.WithTimeout(ctx, s.cfg.PunchTimeout)
	defer cancel()

	lc := reuseListenConfig()
	ln, err := lc.Listen(ctx, "tcp", fmt.Sprintf(":%d", s.LocalPredictedPort))
	if err != nil {
		s.State = StateFailed
		return nil, perr.New(perr.NoMapping, fmt.Errorf("stunt: listen on predicted port %d: %w", s.LocalPredictedPort, err))
	}

	type result struct {
		conn net.Conn
		err  error
	}
	winner := make(chan result, 2)

	go func() {
		conn, err := ln.Accept()
		winner <- result{conn, err}
	}()
	go func() {
		d := reuseDialer(int(s.LocalPredictedPort))
		conn, err := d.DialContext(ctx, "tcp", peerAddr.String())
		winner <- result{conn, err}
	}()

	select {
	case r := <-winner:
		_ = ln.Close()
		if r.err != nil || r.conn == nil {
			// Wait for the other attempt; it may still succeed.
			select {
			case r2 := <-winner:
				if r2.err != nil || r2.conn == nil {
					s.State = StateFailed
					return nil, perr.New(perr.NoMapping, fmt.Errorf("stunt: both punch attempts failed"))
				}
				s.State = StateValidate
				return r2.conn, nil
			case <-ctx.Done():
				s.State = StateFailed
				return nil, perr.New(perr.NoMapping, ctx.Err())
			}
		}
		s.State = StateValidate
		return r.conn, nil
	case <-ctx.Done():
		_ = ln.Close()
		s.State = StateFailed
		return nil, perr.New(perr.NoMapping, ctx.Err())
	}
}

// RunAttempts drives up to cfg.AttemptBudget full punch cycles against
// successive peer candidates (e.g. predicted port, then server port),
// per spec.md §4.3's "Attempt budget: 2 full cycles".
func (s *Session) RunAttempts(ctx context.Context, candidates []*net.TCPAddr) (net.Conn, error) {
	var lastErr error
	for s.attempt = 0; s.attempt < s.cfg.AttemptBudget && s.attempt < len(candidates); s.attempt++ {
		conn, err := s.Punch(ctx, candidates[s.attempt])
		if err == nil {
			s.State = StateDone
			return conn, nil
		}
		lastErr = err
		dlog.Debugf(ctx, "stunt[%s]: attempt %d failed: %v", s.UUID, s.attempt, err)
	}
	s.State = StateFailed
	if lastErr == nil {
		lastErr = perr.New(perr.NoMapping, fmt.Errorf("stunt: no candidates to attempt"))
	}
	return nil, lastErr
}
