package pseudotcp

// State is a PseudoTcp connection state, per spec.md §3.
type State int32

const (
	StateClosed State = iota
	StateSynSent
	StateSynReceived
	StateEstablished
	StateCloseWait
	StateLastAck
	StateFinWait
	StateClosing
	StateTimeWait
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateSynSent:
		return "SYN-SENT"
	case StateSynReceived:
		return "SYN-RECEIVED"
	case StateEstablished:
		return "ESTABLISHED"
	case StateCloseWait:
		return "CLOSE-WAIT"
	case StateLastAck:
		return "LAST-ACK"
	case StateFinWait:
		return "FIN-WAIT"
	case StateClosing:
		return "CLOSING"
	case StateTimeWait:
		return "TIME-WAIT"
	default:
		return "UNKNOWN"
	}
}
