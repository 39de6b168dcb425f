package stunt

import (
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// reuseControl sets SO_REUSEADDR and SO_REUSEPORT on the raw socket so the
// same local port can be used for both the listening socket and the
// outbound SYN, the precondition for the simultaneous-open hole punch of
// spec.md §4.3.
func reuseControl(_, _ string, c syscall.RawConn) error {
	var operr error
	err := c.Control(func(fd uintptr) {
		if operr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); operr != nil {
			return
		}
		operr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
	})
	if err != nil {
		return err
	}
	return operr
}

// reuseListenConfig returns a net.ListenConfig that binds with
// SO_REUSEADDR/SO_REUSEPORT, grounded on the teacher's
// pkg/client/connector/misc_unix.go getFreePort helper.
func reuseListenConfig() net.ListenConfig {
	return net.ListenConfig{Control: reuseControl}
}

// reuseDialer returns a net.Dialer that binds its local outbound socket to
// localPort with SO_REUSEADDR/SO_REUSEPORT before connecting, so it can
// share the port with a listener on the same machine.
func reuseDialer(localPort int) *net.Dialer {
	return &net.Dialer{
		Control:   reuseControl,
		LocalAddr: &net.TCPAddr{Port: localPort},
	}
}
