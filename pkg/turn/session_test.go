package turn

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/suniljakhar/mojop2p/pkg/perr"
)

// fakeSocksProxy speaks just enough RFC 1928 NO_AUTH + CONNECT to satisfy
// golang.org/x/net/proxy's client, then echoes whatever it receives so
// tests can confirm the bridged stream is live.
func fakeSocksProxy(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go serveSocksConn(conn)
		}
	}()
	return ln
}

func serveSocksConn(conn net.Conn) {
	defer conn.Close()
	greeting := make([]byte, 2)
	if _, err := conn.Read(greeting); err != nil {
		return
	}
	nmethods := int(greeting[1])
	methods := make([]byte, nmethods)
	if _, err := conn.Read(methods); err != nil {
		return
	}
	if _, err := conn.Write([]byte{0x05, 0x00}); err != nil {
		return
	}

	header := make([]byte, 4)
	if _, err := conn.Read(header); err != nil {
		return
	}
	if header[3] == 0x03 { // ATYP domain name
		lenBuf := make([]byte, 1)
		if _, err := conn.Read(lenBuf); err != nil {
			return
		}
		rest := make([]byte, int(lenBuf[0])+2)
		if _, err := conn.Read(rest); err != nil {
			return
		}
	}
	if _, err := conn.Write([]byte{0x05, 0x00, 0x00, 0x01, 0, 0, 0, 0, 0, 0}); err != nil {
		return
	}

	buf := make([]byte, 256)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		if _, err := conn.Write(buf[:n]); err != nil {
			return
		}
	}
}

func listenerPort(t *testing.T, ln net.Listener) uint16 {
	t.Helper()
	return uint16(ln.Addr().(*net.TCPAddr).Port)
}

func TestConnectSucceedsAgainstFirstCandidate(t *testing.T) {
	ln := fakeSocksProxy(t)
	defer ln.Close()

	s := NewSession("sess-1", RoleInitiator, "alice@example.com", "bob@example.com", DefaultConfig(), nil)
	s.Candidates = []Candidate{{JID: "proxy64.example.com", Host: "127.0.0.1", Port: listenerPort(t, ln)}}

	sock, err := s.Connect(context.Background())
	require.NoError(t, err)
	defer sock.Close()
	require.Equal(t, StateDone, s.State)

	_, err = sock.Write([]byte("ping"))
	require.NoError(t, err)
	buf := make([]byte, 4)
	n, err := sock.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "ping", string(buf[:n]))
}

func TestConnectFallsThroughToSecondCandidate(t *testing.T) {
	ln := fakeSocksProxy(t)
	defer ln.Close()

	s := NewSession("sess-2", RoleInitiator, "alice@example.com", "bob@example.com", DefaultConfig(), nil)
	s.Candidates = []Candidate{
		{JID: "dead.example.com", Host: "127.0.0.1", Port: 1}, // nothing listening
		{JID: "proxy64.example.com", Host: "127.0.0.1", Port: listenerPort(t, ln)},
	}
	s.cfg.PerCandidateTimeout = 500 * time.Millisecond

	sock, err := s.Connect(context.Background())
	require.NoError(t, err)
	defer sock.Close()
	require.Equal(t, 1, s.candidateIndex)
}

func TestConnectFailsWithNoCandidates(t *testing.T) {
	s := NewSession("sess-3", RoleInitiator, "a", "b", DefaultConfig(), nil)
	_, err := s.Connect(context.Background())
	require.Error(t, err)
	require.Equal(t, perr.NoProxyCandidate, perr.KindOf(err))
	require.Equal(t, StateFailed, s.State)
}

func TestUsernameIsStableHash(t *testing.T) {
	s1 := NewSession("sess-4", RoleInitiator, "alice", "bob", DefaultConfig(), nil)
	s2 := NewSession("sess-4", RoleInitiator, "alice", "bob", DefaultConfig(), nil)
	require.Equal(t, s1.username(), s2.username())
	require.Len(t, s1.username(), 40) // hex-encoded SHA1
}

func TestDiscoverRequiresResolverWhenUnconfigured(t *testing.T) {
	s := NewSession("sess-5", RoleInitiator, "a", "b", DefaultConfig(), nil)
	err := s.Discover(context.Background(), nil, "proxy.example.com")
	require.Error(t, err)
	require.Equal(t, perr.NoProxyCandidate, perr.KindOf(err))
}
