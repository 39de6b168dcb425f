// Package connid provides a compact, comparable key identifying a
// protocol+source+destination+port 4-tuple, suitable for use as a map key
// when demultiplexing inbound datagrams or pooling outbound streams.
//
// Adapted from the teacher's pkg/connpool/connid.go: same packed
// byte-string encoding, trimmed to the two protocols this repo cares about.
package connid

import (
	"encoding/binary"
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// ID is a compact and immutable representation of protocol, source IP,
// source port, destination IP and destination port suitable as a map key.
type ID string

// New returns a new ID for the given values.
func New(proto int, src, dst net.IP, srcPort, dstPort uint16) ID {
	src4 := src.To4()
	dst4 := dst.To4()
	if src4 != nil && dst4 != nil {
		src = src4
		dst = dst4
	} else {
		src = src.To16()
		dst = dst.To16()
	}
	ls := len(src)
	ld := len(dst)
	bs := make([]byte, ls+ld+5)
	copy(bs, src)
	binary.BigEndian.PutUint16(bs[ls:], srcPort)
	ls += 2
	copy(bs[ls:], dst)
	ls += ld
	binary.BigEndian.PutUint16(bs[ls:], dstPort)
	ls += 2
	bs[ls] = byte(proto)
	return ID(bs)
}

// IsIPv4 returns true if the source and destination of this ID are IPv4.
func (id ID) IsIPv4() bool {
	return len(id) == 13
}

// Source returns the source IP.
func (id ID) Source() net.IP {
	if id.IsIPv4() {
		return net.IP(id[0:4])
	}
	return net.IP(id[0:16])
}

// SourcePort returns the source port.
func (id ID) SourcePort() uint16 {
	if id.IsIPv4() {
		return binary.BigEndian.Uint16([]byte(id)[4:])
	}
	return binary.BigEndian.Uint16([]byte(id)[16:])
}

// Destination returns the destination IP.
func (id ID) Destination() net.IP {
	if id.IsIPv4() {
		return net.IP(id[6:10])
	}
	return net.IP(id[18:34])
}

// DestinationPort returns the destination port.
func (id ID) DestinationPort() uint16 {
	if id.IsIPv4() {
		return binary.BigEndian.Uint16([]byte(id)[10:])
	}
	return binary.BigEndian.Uint16([]byte(id)[34:])
}

// Protocol returns the IP protocol, e.g. unix.IPPROTO_TCP.
func (id ID) Protocol() int {
	return int(id[len(id)-1])
}

func protoString(proto int) string {
	switch proto {
	case unix.IPPROTO_TCP:
		return "tcp"
	case unix.IPPROTO_UDP:
		return "udp"
	default:
		return fmt.Sprintf("IP-protocol %d", proto)
	}
}

// Reply returns a copy of this ID with swapped source and destination.
func (id ID) Reply() ID {
	return New(id.Protocol(), id.Destination(), id.Source(), id.DestinationPort(), id.SourcePort())
}

// String returns a formatted string suitable for logging: "tcp 1.2.3.4:5 -> 6.7.8.9:10".
func (id ID) String() string {
	return fmt.Sprintf("%s %s:%d -> %s:%d", protoString(id.Protocol()), id.Source(), id.SourcePort(), id.Destination(), id.DestinationPort())
}
