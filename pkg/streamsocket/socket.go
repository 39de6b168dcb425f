// Package streamsocket provides the uniform reliable-stream façade that
// bridges real TCP connections and PseudoTcp connections, per spec.md
// §4's StreamSocket component. The gateway's launchers and TurnSession
// hand back a Socket rather than a concrete net.Conn or *pseudotcp.Conn
// (the STUNT launcher wraps the net.Conn its session returns), so the
// pool and pipe loop never need to know which transport produced it.
package streamsocket

import (
	"io"
	"net"
	"time"

	"github.com/suniljakhar/mojop2p/pkg/pseudotcp"
)

// Kind names the transport that produced a Socket; used only for
// telemetry (spec.md §4.6's per-transport counters).
type Kind string

const (
	KindTCP     Kind = "tcp"
	KindStunt   Kind = "stunt"
	KindPTcp    Kind = "ptcp"
	KindTurn    Kind = "turn"
)

// Socket is the narrow, transport-agnostic reliable byte stream every
// session delivers to its caller.
type Socket interface {
	io.Reader
	io.Writer
	// Close performs a hard close. Unacked PseudoTcp data triggers an RST
	// (spec.md §4.1); TCP sockets are closed directly.
	Close() error
	// CloseWrite performs a graceful half-close: PseudoTcp runs its
	// four-way close, TCP sends a FIN via CloseWrite.
	CloseWrite() error
	Kind() Kind
	RemoteAddr() net.Addr
}

// tcpSocket adapts a real *net.TCPConn (or any net.Conn that also closes
// its write half) to Socket.
type tcpSocket struct {
	conn net.Conn
	kind Kind
}

// FromTCP wraps an already-connected TCP socket, as produced by
// SocketConnector or the StuntSession winning handshake.
func FromTCP(conn net.Conn, kind Kind) Socket {
	return &tcpSocket{conn: conn, kind: kind}
}

func (s *tcpSocket) Read(p []byte) (int, error)  { return s.conn.Read(p) }
func (s *tcpSocket) Write(p []byte) (int, error) { return s.conn.Write(p) }
func (s *tcpSocket) Close() error                { return s.conn.Close() }
func (s *tcpSocket) Kind() Kind                   { return s.kind }
func (s *tcpSocket) RemoteAddr() net.Addr         { return s.conn.RemoteAddr() }

func (s *tcpSocket) CloseWrite() error {
	if cw, ok := s.conn.(interface{ CloseWrite() error }); ok {
		return cw.CloseWrite()
	}
	return s.conn.Close()
}

// ptcpSocket adapts a *pseudotcp.Conn to Socket, used by StunSession's
// PseudoTcp-carried path (spec.md §4.2, S3).
type ptcpSocket struct {
	conn       *pseudotcp.Conn
	remoteAddr net.Addr
}

// FromPseudoTcp wraps an established *pseudotcp.Conn.
func FromPseudoTcp(conn *pseudotcp.Conn, remoteAddr net.Addr) Socket {
	return &ptcpSocket{conn: conn, remoteAddr: remoteAddr}
}

func (s *ptcpSocket) Read(p []byte) (int, error)  { return s.conn.Read(p) }
func (s *ptcpSocket) Write(p []byte) (int, error) { return s.conn.Write(p) }
func (s *ptcpSocket) Close() error                { return s.conn.Close() }
func (s *ptcpSocket) CloseWrite() error            { return s.conn.CloseAfterWriting() }
func (s *ptcpSocket) Kind() Kind                   { return KindPTcp }
func (s *ptcpSocket) RemoteAddr() net.Addr         { return s.remoteAddr }

// DeadlineSocket is implemented by Sockets whose underlying transport
// supports I/O deadlines (real TCP does; PseudoTcp currently does not).
// Callers that need a deadline should type-assert for it rather than
// require it of every Socket.
type DeadlineSocket interface {
	Socket
	SetDeadline(t time.Time) error
}

var _ DeadlineSocket = (*tcpSocket)(nil)

func (s *tcpSocket) SetDeadline(t time.Time) error { return s.conn.SetDeadline(t) }
