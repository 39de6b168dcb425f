// Package stun implements the RFC 3489 STUN wire codec (plus the
// XOR-MAPPED-ADDRESS extension, attribute type 0x8020) and StunSession,
// the NAT-characterization and port-prediction session described in
// spec.md §4.2.
package stun

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"net"
)

// Message types (classic STUN, RFC 3489 §11.1).
const (
	TypeBindingRequest       uint16 = 0x0001
	TypeBindingResponse      uint16 = 0x0101
	TypeBindingErrorResponse uint16 = 0x0111
)

// Attribute types, per spec.md §6's table plus the XOR-MAPPED-ADDRESS
// extension.
const (
	AttrMappedAddress     uint16 = 0x0001
	AttrResponseAddress   uint16 = 0x0002
	AttrChangeRequest     uint16 = 0x0003
	AttrSourceAddress     uint16 = 0x0004
	AttrChangedAddress    uint16 = 0x0005
	AttrUsername          uint16 = 0x0006
	AttrPassword          uint16 = 0x0007
	AttrMessageIntegrity  uint16 = 0x0008
	AttrErrorCode         uint16 = 0x0009
	AttrUnknownAttributes uint16 = 0x000A
	AttrReflectedFrom     uint16 = 0x000B
	AttrXorMappedAddress  uint16 = 0x8020
)

const headerLen = 20

// ChangeIP and ChangePort are the two flag bits of a CHANGE-REQUEST
// attribute's 32-bit value (RFC 3489 §11.2.4).
const (
	ChangeIP   uint32 = 1 << 2
	ChangePort uint32 = 1 << 1
)

// Attr is one raw TLV attribute; Value is padded to a 4-byte boundary on
// the wire but stored here unpadded.
type Attr struct {
	Type  uint16
	Value []byte
}

// Message is a decoded STUN message.
type Message struct {
	Type          uint16
	TransactionID [16]byte
	Attrs         []Attr
}

// NewTransactionID returns a fresh random 128-bit transaction id, per
// spec.md §3's STUN transaction model.
func NewTransactionID() [16]byte {
	var id [16]byte
	_, _ = rand.Read(id[:])
	return id
}

// NewBindingRequest builds an empty Binding Request with a fresh
// transaction id.
func NewBindingRequest() *Message {
	return &Message{Type: TypeBindingRequest, TransactionID: NewTransactionID()}
}

func (m *Message) addAttr(t uint16, v []byte) {
	m.Attrs = append(m.Attrs, Attr{Type: t, Value: v})
}

// AddChangeRequest attaches a CHANGE-REQUEST attribute used to probe
// filtering behavior (spec.md §4.2's classification probes).
func (m *Message) AddChangeRequest(flags uint32) {
	v := make([]byte, 4)
	binary.BigEndian.PutUint32(v, flags)
	m.addAttr(AttrChangeRequest, v)
}

// Attr returns the first attribute of type t, or nil.
func (m *Message) Attr(t uint16) *Attr {
	for i := range m.Attrs {
		if m.Attrs[i].Type == t {
			return &m.Attrs[i]
		}
	}
	return nil
}

// Encode serializes m per RFC 3489 §11.1: 20-byte header followed by
// TLV-encoded, 4-byte-aligned attributes.
func (m *Message) Encode() []byte {
	var body []byte
	for _, a := range m.Attrs {
		body = append(body, encodeAttr(a)...)
	}
	buf := make([]byte, headerLen+len(body))
	binary.BigEndian.PutUint16(buf[0:], m.Type)
	binary.BigEndian.PutUint16(buf[2:], uint16(len(body)))
	copy(buf[4:20], m.TransactionID[:])
	copy(buf[20:], body)
	return buf
}

func encodeAttr(a Attr) []byte {
	padded := len(a.Value)
	if rem := padded % 4; rem != 0 {
		padded += 4 - rem
	}
	out := make([]byte, 4+padded)
	binary.BigEndian.PutUint16(out[0:], a.Type)
	binary.BigEndian.PutUint16(out[2:], uint16(len(a.Value)))
	copy(out[4:], a.Value)
	return out
}

// Decode parses a wire-format STUN message.
func Decode(buf []byte) (*Message, error) {
	if len(buf) < headerLen {
		return nil, fmt.Errorf("stun: message too short: %d bytes", len(buf))
	}
	m := &Message{
		Type: binary.BigEndian.Uint16(buf[0:]),
	}
	length := binary.BigEndian.Uint16(buf[2:])
	copy(m.TransactionID[:], buf[4:20])
	body := buf[20:]
	if len(body) < int(length) {
		return nil, fmt.Errorf("stun: truncated body: want %d have %d", length, len(body))
	}
	body = body[:length]
	for len(body) > 0 {
		if len(body) < 4 {
			return nil, fmt.Errorf("stun: truncated attribute header")
		}
		t := binary.BigEndian.Uint16(body[0:])
		l := binary.BigEndian.Uint16(body[2:])
		padded := int(l)
		if rem := padded % 4; rem != 0 {
			padded += 4 - rem
		}
		if len(body) < 4+padded {
			return nil, fmt.Errorf("stun: truncated attribute value")
		}
		value := make([]byte, l)
		copy(value, body[4:4+l])
		m.Attrs = append(m.Attrs, Attr{Type: t, Value: value})
		body = body[4+padded:]
	}
	return m, nil
}

// Addr is a decoded (MAPPED|XOR-MAPPED|SOURCE|CHANGED)-ADDRESS attribute
// value. Only IPv4 (family 0x01) is supported, matching every example in
// the corpus's dual-stack handling elsewhere: IPv6 candidates are carried
// unmapped.
type Addr struct {
	IP   net.IP
	Port uint16
}

func encodeAddrValue(a Addr) []byte {
	v := make([]byte, 8)
	v[1] = 0x01 // family: IPv4
	binary.BigEndian.PutUint16(v[2:], a.Port)
	copy(v[4:8], a.IP.To4())
	return v
}

func decodeAddrValue(v []byte) (Addr, error) {
	if len(v) < 8 {
		return Addr{}, fmt.Errorf("stun: address attribute too short: %d bytes", len(v))
	}
	port := binary.BigEndian.Uint16(v[2:])
	ip := net.IPv4(v[4], v[5], v[6], v[7])
	return Addr{IP: ip, Port: port}, nil
}

// AddMappedAddress attaches a plain MAPPED-ADDRESS attribute.
func (m *Message) AddMappedAddress(a Addr) {
	m.addAttr(AttrMappedAddress, encodeAddrValue(a))
}

// MappedAddress returns the MAPPED-ADDRESS attribute, if present.
func (m *Message) MappedAddress() (Addr, bool) {
	a := m.Attr(AttrMappedAddress)
	if a == nil {
		return Addr{}, false
	}
	addr, err := decodeAddrValue(a.Value)
	if err != nil {
		return Addr{}, false
	}
	return addr, true
}

// AddXorMappedAddress attaches an XOR-MAPPED-ADDRESS attribute (0x8020):
// the address attribute value, XORed byte-for-byte against the 16-byte
// transaction id, as the extension spec.md §6 names.
func (m *Message) AddXorMappedAddress(a Addr) {
	v := encodeAddrValue(a)
	xorWithTransactionID(v, m.TransactionID)
	m.addAttr(AttrXorMappedAddress, v)
}

// XorMappedAddress returns the decoded, un-XORed XOR-MAPPED-ADDRESS
// attribute, if present.
func (m *Message) XorMappedAddress() (Addr, bool) {
	a := m.Attr(AttrXorMappedAddress)
	if a == nil {
		return Addr{}, false
	}
	v := append([]byte(nil), a.Value...)
	xorWithTransactionID(v, m.TransactionID)
	addr, err := decodeAddrValue(v)
	if err != nil {
		return Addr{}, false
	}
	return addr, true
}

// xorWithTransactionID XORs the port (v[2:4]) and address (v[4:]) fields
// of an address attribute value against the transaction id, per the
// 0x8020 XOR-MAPPED-ADDRESS extension named in spec.md §6.
func xorWithTransactionID(v []byte, txID [16]byte) {
	if len(v) < 4 {
		return
	}
	v[2] ^= txID[0]
	v[3] ^= txID[1]
	for i := 4; i < len(v) && i-4 < len(txID); i++ {
		v[i] ^= txID[i-4]
	}
}

// ExternalAddress prefers XOR-MAPPED-ADDRESS, falling back to the plain
// MAPPED-ADDRESS for servers that only implement the older attribute.
func (m *Message) ExternalAddress() (Addr, bool) {
	if a, ok := m.XorMappedAddress(); ok {
		return a, ok
	}
	return m.MappedAddress()
}
