// Package signaling defines the wire shapes exchanged over the external
// XMPP-style chat channel that every transport session in this repo only
// *consumes* (spec.md §1, §6). The core never implements an XMPP client;
// it depends on the narrow Sender/Receiver interfaces below, supplied by
// the surrounding application.
package signaling

import "encoding/xml"

// Namespaces for the two private protocol elements spec.md §6 names.
const (
	NSStunt = "http://deusty.com/protocol/stunt"
	NSStun  = "http://deusty.com/protocol/stun"
)

// Envelope is the outer XML element common to every signaling message:
// an opaque stanza the core hands to, or receives from, the external
// chat transport.
type Envelope struct {
	XMLName xml.Name `xml:"message"`
	To      string   `xml:"to,attr"`
	From    string   `xml:"from,attr"`
	Type    string   `xml:"type,attr,omitempty"`
	UUID    string   `xml:"uuid,attr"`
	Version string   `xml:"version,attr"`
	Body    []byte   `xml:",innerxml"`
}

// StunInvite is the `{routerType, ip, port, portRange, version, uuid}`
// payload spec.md §4.2 names for the StunSession invite/reply exchange.
type StunInvite struct {
	XMLName    xml.Name `xml:"stun"`
	RouterType string   `xml:"routerType,attr"`
	IP         string   `xml:"ip,attr"`
	Port       uint16   `xml:"port,attr"`
	PortRange  string   `xml:"portRange,attr,omitempty"`
	Version    string   `xml:"version,attr"`
	UUID       string   `xml:"uuid,attr"`
}

// StartStunt is the `start_stunt(uuid, ip4, ip6?, predictedPort,
// serverPort, version)` message of spec.md §4.3.
type StartStunt struct {
	XMLName       xml.Name `xml:"start_stunt"`
	UUID          string   `xml:"uuid,attr"`
	IP4           string   `xml:"ip4,attr"`
	IP6           string   `xml:"ip6,attr,omitempty"`
	PredictedPort uint16   `xml:"predictedPort,attr"`
	ServerPort    uint16   `xml:"serverPort,attr"`
	Version       string   `xml:"version,attr"`
}

// StartStuntAck is `start_stunt_ack(...)`, or an error reply, to a
// StartStunt invite.
type StartStuntAck struct {
	XMLName       xml.Name `xml:"start_stunt_ack"`
	UUID          string   `xml:"uuid,attr"`
	IP4           string   `xml:"ip4,attr"`
	IP6           string   `xml:"ip6,attr,omitempty"`
	PredictedPort uint16   `xml:"predictedPort,attr"`
	ServerPort    uint16   `xml:"serverPort,attr"`
	Version       string   `xml:"version,attr"`
	Error         string   `xml:"error,attr,omitempty"`
}

// StreamhostCandidate is one `(jid, host, port)` TURN proxy candidate.
type StreamhostCandidate struct {
	JID  string `xml:"jid,attr"`
	Host string `xml:"host,attr"`
	Port uint16 `xml:"port,attr"`
}

// StartTurn is `start_turn(uuid, streamhosts[])` of spec.md §4.4.
type StartTurn struct {
	XMLName     xml.Name               `xml:"start_turn"`
	UUID        string                 `xml:"uuid,attr"`
	Streamhosts []StreamhostCandidate  `xml:"streamhost"`
}

// Activate is the `activate(streamhost_jid)` bridging message sent to the
// winning TURN proxy.
type Activate struct {
	XMLName      xml.Name `xml:"activate"`
	StreamhostJID string  `xml:"streamhost-jid,attr"`
}

// Sender is the narrow outbound half of the signaling channel the core
// consumes: send_envelope(to, xml).
type Sender interface {
	SendEnvelope(to string, body []byte) error
}

// Receiver is the narrow inbound half: on_envelope(from, xml), delivered
// by the surrounding application's XMPP client as messages arrive.
type Receiver interface {
	OnEnvelope(from string, body []byte)
}
