package gateway

import (
	"bufio"
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/suniljakhar/mojop2p/pkg/streamsocket"
)

func dialTCP(t *testing.T, addr string) streamsocket.Socket {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	return streamsocket.FromTCP(conn, streamsocket.KindTCP)
}

// TestGatewayRoundTripsPlainRequest drives a real loopback client through
// Server.Serve to a real upstream httptest server, exercising the full
// accept -> parse -> dial -> forward -> classify-keep-alive path.
func TestGatewayRoundTripsPlainRequest(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("hello"))
	}))
	defer upstream.Close()
	upstreamAddr := upstream.Listener.Addr().(*net.TCPAddr)

	direct := func(ctx context.Context, target Target) (streamsocket.Socket, error) {
		return dialTCP(t, upstreamAddr.String()), nil
	}
	dialer := NewRemoteDialer(direct, nil, nil, nil)

	srv, err := New(dialer)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = srv.Serve(ctx) }()
	defer srv.Close(context.Background())

	client, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	defer client.Close()

	req, err := http.NewRequest(http.MethodGet, "http://"+upstreamAddr.String()+"/", nil)
	require.NoError(t, err)
	require.NoError(t, req.Write(client))

	resp, err := http.ReadResponse(bufio.NewReader(client), req)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, "hello", string(body))
	require.Equal(t, int64(1), srv.Counters().DirectSuccess)
}

// TestGateway401InterceptionReissuesWithDigest exercises the 401
// interception path end to end: the upstream challenges once with
// Digest, the gateway reissues transparently, and the client only ever
// sees the final 200.
func TestGateway401InterceptionReissuesWithDigest(t *testing.T) {
	var challenged bool
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !challenged {
			challenged = true
			w.Header().Set("WWW-Authenticate", `Digest realm="r", nonce="n", qop="auth"`)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		require.NotEmpty(t, r.Header.Get("Authorization"))
		w.Write([]byte("authorized"))
	}))
	defer upstream.Close()
	upstreamAddr := upstream.Listener.Addr().(*net.TCPAddr)

	direct := func(ctx context.Context, target Target) (streamsocket.Socket, error) {
		return dialTCP(t, upstreamAddr.String()), nil
	}
	dialer := NewRemoteDialer(direct, nil, nil, nil)

	srv, err := New(dialer)
	require.NoError(t, err)
	srv.SetCredentials(Credentials{Username: "alice", Password: "secret"}, true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = srv.Serve(ctx) }()
	defer srv.Close(context.Background())

	client, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	defer client.Close()

	req, err := http.NewRequest(http.MethodGet, "http://"+upstreamAddr.String()+"/", nil)
	require.NoError(t, err)
	require.NoError(t, req.Write(client))

	_ = client.SetReadDeadline(time.Now().Add(5 * time.Second))
	resp, err := http.ReadResponse(bufio.NewReader(client), req)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "authorized", string(body))
}

// TestGateway401InterceptionExhaustsAfterSecondChallenge exercises spec.md
// §7's AuthExhausted path: the upstream rejects the credentials offered on
// retry, and the gateway must surface a 5xx rather than relay the second
// 401 to the local client, which never supplied credentials of its own.
func TestGateway401InterceptionExhaustsAfterSecondChallenge(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("WWW-Authenticate", `Digest realm="r", nonce="n", qop="auth"`)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer upstream.Close()
	upstreamAddr := upstream.Listener.Addr().(*net.TCPAddr)

	direct := func(ctx context.Context, target Target) (streamsocket.Socket, error) {
		return dialTCP(t, upstreamAddr.String()), nil
	}
	dialer := NewRemoteDialer(direct, nil, nil, nil)

	srv, err := New(dialer)
	require.NoError(t, err)
	srv.SetCredentials(Credentials{Username: "alice", Password: "wrong"}, true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = srv.Serve(ctx) }()
	defer srv.Close(context.Background())

	client, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	defer client.Close()

	req, err := http.NewRequest(http.MethodGet, "http://"+upstreamAddr.String()+"/", nil)
	require.NoError(t, err)
	require.NoError(t, req.Write(client))

	_ = client.SetReadDeadline(time.Now().Add(5 * time.Second))
	resp, err := http.ReadResponse(bufio.NewReader(client), req)
	require.NoError(t, err)
	_, _ = io.ReadAll(resp.Body)
	require.NotEqual(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestTargetFromRequestParsesHostAndPort(t *testing.T) {
	req, err := http.NewRequest(http.MethodGet, "http://example.com:8080/path", nil)
	require.NoError(t, err)
	target := targetFromRequest(req)
	require.Equal(t, "example.com", target.Host)
	require.Equal(t, uint16(8080), target.Port)
}

func TestTargetFromRequestDefaultsPort80(t *testing.T) {
	req, err := http.NewRequest(http.MethodGet, "http://example.com/path", nil)
	require.NoError(t, err)
	target := targetFromRequest(req)
	require.Equal(t, uint16(80), target.Port)
}
