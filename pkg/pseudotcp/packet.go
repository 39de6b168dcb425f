package pseudotcp

import (
	"encoding/binary"
	"fmt"
)

// HeaderLen is the fixed 12-byte header length defined in spec.md §3.
const HeaderLen = 12

// Flags is the 8-bit flags field of a Packet.
type Flags uint8

const (
	FlagSYN  Flags = 1 << 0
	FlagACK  Flags = 1 << 1
	FlagRST  Flags = 1 << 2
	FlagSACK Flags = 1 << 3
	// FlagFIN is not named in spec.md's flag table (SYN, ACK, RST, SACK +
	// 3 reserved); the close handshake in spec.md §4.1 still needs a FIN
	// signal, so this repo spends one reserved bit on it.
	FlagFIN Flags = 1 << 4
)

func (f Flags) SYN() bool  { return f&FlagSYN != 0 }
func (f Flags) ACK() bool  { return f&FlagACK != 0 }
func (f Flags) RST() bool  { return f&FlagRST != 0 }
func (f Flags) SACK() bool { return f&FlagSACK != 0 }
func (f Flags) FIN() bool  { return f&FlagFIN != 0 }

func (f Flags) String() string {
	s := ""
	for _, p := range []struct {
		b Flags
		n string
	}{{FlagSYN, "SYN"}, {FlagACK, "ACK"}, {FlagRST, "RST"}, {FlagSACK, "SACK"}, {FlagFIN, "FIN"}} {
		if f&p.b != 0 {
			if s != "" {
				s += "|"
			}
			s += p.n
		}
	}
	if s == "" {
		return "-"
	}
	return s
}

// Packet is one PseudoTcp datagram: the 12-byte fixed header, an optional
// trailing 32-bit SACK sequence when FlagSACK is set, and payload.
//
// Invariant (spec.md §3): len(Payload) <= MSS, and when FlagSACK is set the
// SACK sequence immediately follows the fixed header (i.e. precedes the
// payload, not the other way round).
type Packet struct {
	Seq     uint32
	Ack     uint32
	Control uint8
	Flags   Flags
	Window  uint16
	SackSeq uint32
	Payload []byte
}

// Encode serializes p per spec.md §3.
func (p Packet) Encode() []byte {
	n := HeaderLen
	if p.Flags.SACK() {
		n += 4
	}
	buf := make([]byte, n+len(p.Payload))
	binary.BigEndian.PutUint32(buf[0:], p.Seq)
	binary.BigEndian.PutUint32(buf[4:], p.Ack)
	buf[8] = p.Control
	buf[9] = byte(p.Flags)
	binary.BigEndian.PutUint16(buf[10:], p.Window)
	off := HeaderLen
	if p.Flags.SACK() {
		binary.BigEndian.PutUint32(buf[off:], p.SackSeq)
		off += 4
	}
	copy(buf[off:], p.Payload)
	return buf
}

// Decode parses a Packet out of buf, which must be a datagram read verbatim
// off the wire (no framing beyond the UDP datagram boundary).
func Decode(buf []byte) (Packet, error) {
	if len(buf) < HeaderLen {
		return Packet{}, fmt.Errorf("pseudotcp: packet too short: %d bytes", len(buf))
	}
	p := Packet{
		Seq:     binary.BigEndian.Uint32(buf[0:]),
		Ack:     binary.BigEndian.Uint32(buf[4:]),
		Control: buf[8],
		Flags:   Flags(buf[9]),
		Window:  binary.BigEndian.Uint16(buf[10:]),
	}
	off := HeaderLen
	if p.Flags.SACK() {
		if len(buf) < off+4 {
			return Packet{}, fmt.Errorf("pseudotcp: SACK flag set but packet too short: %d bytes", len(buf))
		}
		p.SackSeq = binary.BigEndian.Uint32(buf[off:])
		off += 4
	}
	if off < len(buf) {
		payload := make([]byte, len(buf)-off)
		copy(payload, buf[off:])
		p.Payload = payload
	}
	return p, nil
}

func (p Packet) String() string {
	return fmt.Sprintf("seq=%d ack=%d win=%d flags=%s len=%d", p.Seq, p.Ack, p.Window, p.Flags, len(p.Payload))
}
