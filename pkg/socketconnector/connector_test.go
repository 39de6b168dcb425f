package socketconnector

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/suniljakhar/mojop2p/pkg/perr"
)

func TestSortAddrsPrefersIPv6First(t *testing.T) {
	ips := []net.IP{net.IPv4(127, 0, 0, 1), net.ParseIP("::1"), net.IPv4(10, 0, 0, 1)}
	sorted := sortAddrs(ips)
	require.True(t, isIPv6(sorted[0]))
	require.False(t, isIPv6(sorted[1]))
	require.False(t, isIPv6(sorted[2]))
}

func TestConnectAddrsSucceedsOnFirstReachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			conn.Close()
		}
	}()

	c := New(Config{PerAddressTimeout: 2 * time.Second})
	port := uint16(ln.Addr().(*net.TCPAddr).Port)
	conn, err := c.ConnectAddrs(context.Background(), []net.IP{net.IPv4(127, 0, 0, 1)}, port)
	require.NoError(t, err)
	conn.Close()
}

func TestConnectAddrsFallsThroughToSecondAddress(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			conn.Close()
		}
	}()

	c := New(Config{PerAddressTimeout: 1 * time.Second})
	port := uint16(ln.Addr().(*net.TCPAddr).Port)
	// 192.0.2.1 is TEST-NET-1 (RFC 5737), guaranteed unroutable/non-listening.
	conn, err := c.ConnectAddrs(context.Background(), []net.IP{net.IPv4(192, 0, 2, 1), net.IPv4(127, 0, 0, 1)}, port)
	require.NoError(t, err)
	conn.Close()
}

func TestConnectAddrsAllAddressesFailed(t *testing.T) {
	c := New(Config{PerAddressTimeout: 300 * time.Millisecond})
	_, err := c.ConnectAddrs(context.Background(), []net.IP{net.IPv4(127, 0, 0, 1)}, 1)
	require.Error(t, err)
	require.Equal(t, perr.AllAddressesFailed, perr.KindOf(err))
}

func TestConnectAddrsEmptyListFails(t *testing.T) {
	c := New(DefaultConfig())
	_, err := c.ConnectAddrs(context.Background(), nil, 80)
	require.Error(t, err)
	require.Equal(t, perr.AllAddressesFailed, perr.KindOf(err))
}

func TestAbortPreventsFurtherConnect(t *testing.T) {
	c := New(DefaultConfig())
	c.Abort()
	_, err := c.ConnectAddrs(context.Background(), []net.IP{net.IPv4(127, 0, 0, 1)}, 80)
	require.Error(t, err)
	require.Equal(t, perr.Canceled, perr.KindOf(err))
}

func TestAbortClosesInFlightSocket(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	c := New(Config{PerAddressTimeout: 5 * time.Second})
	port := uint16(ln.Addr().(*net.TCPAddr).Port)
	conn, err := c.ConnectAddrs(context.Background(), []net.IP{net.IPv4(127, 0, 0, 1)}, port)
	require.NoError(t, err)
	defer conn.Close()

	server := <-accepted
	defer server.Close()

	c.Abort()

	buf := make([]byte, 1)
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err = conn.Read(buf)
	require.Error(t, err)
}
