package connid_test

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/sys/unix"

	"github.com/suniljakhar/mojop2p/pkg/connid"
)

func TestRoundTripIPv4(t *testing.T) {
	id := connid.New(unix.IPPROTO_TCP, net.ParseIP("10.0.0.1"), net.ParseIP("10.0.0.2"), 1234, 80)
	assert.True(t, id.IsIPv4())
	assert.Equal(t, "10.0.0.1", id.Source().String())
	assert.Equal(t, uint16(1234), id.SourcePort())
	assert.Equal(t, "10.0.0.2", id.Destination().String())
	assert.Equal(t, uint16(80), id.DestinationPort())
	assert.Equal(t, "tcp 10.0.0.1:1234 -> 10.0.0.2:80", id.String())
}

func TestReplySwapsEnds(t *testing.T) {
	id := connid.New(unix.IPPROTO_UDP, net.ParseIP("10.0.0.1"), net.ParseIP("10.0.0.2"), 1234, 80)
	r := id.Reply()
	assert.Equal(t, "10.0.0.2", r.Source().String())
	assert.Equal(t, uint16(80), r.SourcePort())
	assert.Equal(t, "10.0.0.1", r.Destination().String())
	assert.Equal(t, uint16(1234), r.DestinationPort())
}
