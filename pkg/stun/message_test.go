package stun

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoundTripAllAttributeTypes(t *testing.T) {
	msg := NewBindingRequest()
	addr := Addr{IP: net.IPv4(203, 0, 113, 7), Port: 40001}

	msg.AddMappedAddress(addr)
	msg.addAttr(AttrResponseAddress, encodeAddrValue(addr))
	msg.AddChangeRequest(ChangeIP | ChangePort)
	msg.addAttr(AttrSourceAddress, encodeAddrValue(addr))
	msg.addAttr(AttrChangedAddress, encodeAddrValue(addr))
	msg.addAttr(AttrUsername, []byte("alice"))
	msg.addAttr(AttrPassword, []byte("secret"))
	msg.addAttr(AttrMessageIntegrity, make([]byte, 20))
	msg.addAttr(AttrErrorCode, []byte{0, 0, 4, 1, 'B', 'a', 'd'})
	msg.addAttr(AttrUnknownAttributes, []byte{0x00, 0x01})
	msg.addAttr(AttrReflectedFrom, encodeAddrValue(addr))
	msg.AddXorMappedAddress(addr)

	wire := msg.Encode()
	decoded, err := Decode(wire)
	require.NoError(t, err)

	require.Equal(t, msg.Type, decoded.Type)
	require.Equal(t, msg.TransactionID, decoded.TransactionID)
	require.Equal(t, len(msg.Attrs), len(decoded.Attrs))
	for i := range msg.Attrs {
		require.Equal(t, msg.Attrs[i].Type, decoded.Attrs[i].Type)
		require.Equal(t, msg.Attrs[i].Value, decoded.Attrs[i].Value)
	}

	mapped, ok := decoded.MappedAddress()
	require.True(t, ok)
	require.Equal(t, addr.Port, mapped.Port)
	require.True(t, addr.IP.Equal(mapped.IP))

	xored, ok := decoded.XorMappedAddress()
	require.True(t, ok)
	require.Equal(t, addr.Port, xored.Port)
	require.True(t, addr.IP.Equal(xored.IP))
}

func TestExternalAddressPrefersXorMapped(t *testing.T) {
	msg := NewBindingRequest()
	plain := Addr{IP: net.IPv4(198, 51, 100, 1), Port: 1000}
	xor := Addr{IP: net.IPv4(198, 51, 100, 2), Port: 2000}
	msg.AddMappedAddress(plain)
	msg.AddXorMappedAddress(xor)

	wire := msg.Encode()
	decoded, err := Decode(wire)
	require.NoError(t, err)

	got, ok := decoded.ExternalAddress()
	require.True(t, ok)
	require.Equal(t, xor.Port, got.Port)
}

func TestDecodeRejectsTruncatedMessage(t *testing.T) {
	_, err := Decode([]byte{0, 1, 0, 2})
	require.Error(t, err)
}
