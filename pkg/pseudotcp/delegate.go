package pseudotcp

// Delegate is the single-threaded cooperative callback contract from
// spec.md §4.1. All five methods are invoked from the connection's own
// reactor goroutine; implementations MUST NOT block or call back into the
// Conn synchronously.
type Delegate interface {
	// DidOpen is called once the handshake completes and the connection
	// reaches ESTABLISHED.
	DidOpen()

	// HasBytesAvailable is called whenever previously-unavailable bytes
	// become readable (i.e. rcv_next advances).
	HasBytesAvailable()

	// CanAcceptBytes is called whenever the send window opens up enough
	// to accept more write()s (e.g. after having been full).
	CanAcceptBytes()

	// WillClose is called once, with a non-nil err for abnormal closure
	// (OpenTimeout, IdleTimeout, PeerUnreachable, Canceled) and nil for a
	// clean four-way close.
	WillClose(err error)

	// DidClose is called once the connection has fully released its
	// socket and timers.
	DidClose()
}

// NopDelegate implements Delegate with no-ops; embed it to implement only
// the callbacks a caller cares about.
type NopDelegate struct{}

func (NopDelegate) DidOpen()             {}
func (NopDelegate) HasBytesAvailable()   {}
func (NopDelegate) CanAcceptBytes()      {}
func (NopDelegate) WillClose(err error)  {}
func (NopDelegate) DidClose()            {}
