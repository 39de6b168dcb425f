package stunt

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/http"

	"github.com/datawire/dlib/dlog"
)

// RequestMethod is the HTTP method of the specially formed CONNECT-like
// passthrough request recognized by HandleStuntRequest, per spec.md
// §4.3's "HTTP-layer passthrough" paragraph.
const RequestMethod = "STUNT-CONNECT"

// UUIDHeader names the header a passthrough request carries to identify
// which pending session it is trying to rendezvous with.
const UUIDHeader = "X-Mojo-Stunt-Uuid"

// HandleStuntRequest recognizes a specially formed HTTP CONNECT-like
// request on an already-accepted socket and decides whether to consume
// or reject it, per spec.md §4.3: the caller supplies the already-
// accepted socket and the parsed request; this session either answers
// with 200 and keeps the socket (consumed) or answers with 404 and
// leaves it to the caller to close (rejected). It does not touch s.State:
// AcceptPassthrough typically runs concurrently with Punch/RunAttempts
// racing for the same session, and only the race's winner should decide
// the session's terminal state.
func (s *Session) HandleStuntRequest(sock net.Conn, req *http.Request) (consumed bool, err error) {
	if req.Method != RequestMethod || req.Header.Get(UUIDHeader) != s.UUID {
		resp := &http.Response{
			Status:     "404 Not Found",
			StatusCode: http.StatusNotFound,
			ProtoMajor: 1,
			ProtoMinor: 1,
			Header:     http.Header{},
			Body:       http.NoBody,
		}
		return false, resp.Write(sock)
	}

	resp := &http.Response{
		Status:     "200 Connection Established",
		StatusCode: http.StatusOK,
		ProtoMajor: 1,
		ProtoMinor: 1,
		Header:     http.Header{},
		Body:       http.NoBody,
	}
	if err := resp.Write(sock); err != nil {
		return false, err
	}
	return true, nil
}

// ListenPassthrough opens an additional SO_REUSEADDR/SO_REUSEPORT listener
// on this session's predicted port, independent of the listener Punch
// opens for the raw simultaneous-open attempt, so a caller can watch both
// at once — the same "up to 6 sockets" allowance spec.md §4.3 gives the
// full accelerator scheme.
func (s *Session) ListenPassthrough(ctx context.Context) (net.Listener, error) {
	lc := reuseListenConfig()
	return lc.Listen(ctx, "tcp", fmt.Sprintf(":%d", s.LocalPredictedPort))
}

// AcceptPassthrough listens on ln for a passthrough request addressed to
// this session, answering and returning the connection on a match,
// letting the server side fall into a StuntSession even before the
// normal signaling round-trip completes, per spec.md §4.3. Any other
// request, or a connection that closes without sending one (e.g. a
// competing Punch dial landing on the same shared listener), is rejected
// and the loop keeps waiting until ctx is done. A connection that stays
// open without sending a request holds the loop until it sends, closes,
// or ctx is done.
func (s *Session) AcceptPassthrough(ctx context.Context, ln net.Listener) (net.Conn, error) {
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			return nil, err
		}

		stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
		req, err := http.ReadRequest(bufio.NewReader(conn))
		stop()
		if err != nil {
			dlog.Debugf(ctx, "stunt[%s]: discarding non-passthrough connection: %v", s.UUID, err)
			_ = conn.Close()
			continue
		}

		consumed, err := s.HandleStuntRequest(conn, req)
		if err != nil {
			_ = conn.Close()
			continue
		}
		if !consumed {
			_ = conn.Close()
			continue
		}
		return conn, nil
	}
}
