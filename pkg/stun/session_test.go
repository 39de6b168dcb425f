package stun

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/suniljakhar/mojop2p/pkg/perr"
)

// fakeStunServer answers every Binding Request with the request's own
// observed source as the external mapping, echoing back via
// XOR-MAPPED-ADDRESS.
func fakeStunServer(t *testing.T) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	go func() {
		buf := make([]byte, 512)
		for {
			n, from, err := conn.ReadFromUDP(buf)
			if err != nil {
				return
			}
			req, derr := Decode(buf[:n])
			if derr != nil {
				continue
			}
			resp := &Message{Type: TypeBindingResponse, TransactionID: req.TransactionID}
			resp.AddXorMappedAddress(Addr{IP: from.IP, Port: uint16(from.Port)})
			_, _ = conn.WriteToUDP(resp.Encode(), from)
		}
	}()
	return conn
}

func TestProbeRoundTrip(t *testing.T) {
	server := fakeStunServer(t)
	defer server.Close()

	client, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer client.Close()

	s := NewSession("test-uuid", DefaultConfig())
	resp, err := s.Probe(context.Background(), client, server.LocalAddr())
	require.NoError(t, err)
	addr, ok := resp.ExternalAddress()
	require.True(t, ok)
	require.Equal(t, client.LocalAddr().(*net.UDPAddr).Port, int(addr.Port))
}

func TestValidateSucceedsBetweenTwoSockets(t *testing.T) {
	a, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer a.Close()
	b, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer b.Close()

	sa := NewSession("a", DefaultConfig())
	sb := NewSession("b", DefaultConfig())

	errCh := make(chan error, 2)
	addrCh := make(chan *net.UDPAddr, 2)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	go func() {
		addr, err := sa.Validate(ctx, a, []*net.UDPAddr{b.LocalAddr().(*net.UDPAddr)}, 3*time.Second)
		errCh <- err
		addrCh <- addr
	}()
	go func() {
		addr, err := sb.Validate(ctx, b, []*net.UDPAddr{a.LocalAddr().(*net.UDPAddr)}, 3*time.Second)
		errCh <- err
		addrCh <- addr
	}()

	for i := 0; i < 2; i++ {
		require.NoError(t, <-errCh)
		require.NotNil(t, <-addrCh)
	}
}

func TestPredictUnavailableForAddressSensitive(t *testing.T) {
	s := NewSession("x", DefaultConfig())
	_, err := s.Predict(RouterSymmetricAddress, Probes{})
	require.Error(t, err)
	require.Equal(t, perr.PredictionUnavailable, perr.KindOf(err))
}
