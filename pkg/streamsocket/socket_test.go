package streamsocket

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFromTCPRoundTrip(t *testing.T) {
	server, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer server.Close()

	clientConn, err := net.Dial("tcp", server.Addr().String())
	require.NoError(t, err)
	serverConn, err := server.Accept()
	require.NoError(t, err)

	client := FromTCP(clientConn, KindTCP)
	srv := FromTCP(serverConn, KindTCP)
	defer client.Close()
	defer srv.Close()

	require.Equal(t, KindTCP, client.Kind())
	require.Equal(t, serverConn.LocalAddr().String(), client.RemoteAddr().String())

	_, err = client.Write([]byte("ping"))
	require.NoError(t, err)
	buf := make([]byte, 4)
	n, err := srv.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "ping", string(buf[:n]))
}

func TestDeadlineSocketAssertion(t *testing.T) {
	server, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer server.Close()
	conn, err := net.Dial("tcp", server.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	s := FromTCP(conn, KindTCP)
	ds, ok := s.(DeadlineSocket)
	require.True(t, ok)
	require.NotNil(t, ds)
}
