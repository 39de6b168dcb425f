package gateway

import (
	"bufio"
	"context"
	"net"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/suniljakhar/mojop2p/pkg/streamsocket"
	"github.com/suniljakhar/mojop2p/pkg/stunt"
)

func freeLoopbackPort(t *testing.T) uint16 {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return uint16(port)
}

// TestStuntLauncherWinsOnPassthroughWithoutCandidates exercises spec.md
// §4.3's early-fallback contract: with no punch candidates to race, the
// server-side HTTP passthrough is the only way the launcher can win, and
// it must produce a streamsocket.Socket of KindStunt.
func TestStuntLauncherWinsOnPassthroughWithoutCandidates(t *testing.T) {
	port := freeLoopbackPort(t)
	session := stunt.NewSession("peer-uuid", stunt.RoleServer, stunt.Config{AttemptBudget: 1, PunchTimeout: time.Second}, port)
	session.LocalPredictedPort = port

	launcher := NewStuntLauncher(session, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	type result struct {
		sock streamsocket.Socket
		err  error
	}
	resultCh := make(chan result, 1)
	go func() {
		sock, err := launcher(ctx, Target{})
		resultCh <- result{sock, err}
	}()

	// Give the launcher a moment to open its passthrough listener before
	// dialing, since RunAttempts with no candidates fails near-instantly.
	var conn net.Conn
	var err error
	require.Eventually(t, func() bool {
		conn, err = net.Dial("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(int(port))))
		return err == nil
	}, 2*time.Second, 20*time.Millisecond)
	require.NoError(t, err)
	defer conn.Close()

	req, err := http.NewRequest(stunt.RequestMethod, "http://stunt.local/", nil)
	require.NoError(t, err)
	req.Header.Set(stunt.UUIDHeader, "peer-uuid")
	require.NoError(t, req.Write(conn))

	resp, err := http.ReadResponse(bufio.NewReader(conn), req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	select {
	case r := <-resultCh:
		require.NoError(t, r.err)
		require.NotNil(t, r.sock)
		require.Equal(t, streamsocket.KindStunt, r.sock.Kind())
	case <-time.After(4 * time.Second):
		t.Fatal("launcher never returned after the passthrough request")
	}
}
