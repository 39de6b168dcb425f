package gateway

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/datawire/dlib/dlog"

	"github.com/suniljakhar/mojop2p/pkg/perr"
	"github.com/suniljakhar/mojop2p/pkg/streamsocket"
)

// Connection is one accepted loopback connection: it parses HTTP/1.1
// requests incrementally, selects or acquires a remote stream from the
// pool, forwards the request, and pipes the response back, per spec.md
// §4.6. Grounded on the teacher's pkg/connpool readLoop/writeLoop pairing
// (one goroutine direction per socket, deadline-bounded reads) adapted
// from a message-framed tunnel to a plain HTTP/1.1 byte stream.
type Connection struct {
	local  net.Conn
	server *Server
	creds  *Credentials
	secure bool
}

func newConnection(local net.Conn, srv *Server) *Connection {
	return &Connection{local: local, server: srv, creds: srv.creds, secure: srv.secure}
}

// Serve handles every request arriving on the local connection until the
// client disconnects or a non-recoverable error occurs. Request/response
// ordering is preserved; pipelining is not required, per spec.md §5.
func (c *Connection) Serve(ctx context.Context) {
	defer c.local.Close()
	reader := bufio.NewReader(c.local)

	for {
		req, err := http.ReadRequest(reader)
		if err != nil {
			if err != io.EOF {
				dlog.Debugf(ctx, "gateway: reading request: %v", err)
			}
			return
		}

		keepLocal, err := c.handleOne(ctx, req)
		if err != nil {
			dlog.Errorf(ctx, "gateway: %s %s: %v", req.Method, req.URL, err)
			return
		}
		if !keepLocal {
			return
		}
	}
}

func targetFromRequest(req *http.Request) Target {
	host := req.URL.Hostname()
	if host == "" {
		host = req.Host
	}
	portStr := req.URL.Port()
	port := uint16(80)
	if portStr != "" {
		if p, err := strconv.Atoi(portStr); err == nil {
			port = uint16(p)
		}
	}
	return Target{Host: host, Port: port}
}

// handleOne forwards one request/response exchange and reports whether
// the local connection should stay open for a subsequent request.
func (c *Connection) handleOne(ctx context.Context, req *http.Request) (bool, error) {
	target := targetFromRequest(req)
	key := target.String()

	var body []byte
	if req.Body != nil {
		var err error
		body, err = io.ReadAll(req.Body)
		if err != nil {
			return false, err
		}
		_ = req.Body.Close()
	}

	sock := c.server.pool.take(ctx, key)
	if sock == nil {
		// Bound the fresh acquire by the live validation timeout so a
		// config reload (spec.md §5) takes effect on the very next
		// request, without restarting the server.
		acquireCtx, cancel := context.WithTimeout(ctx, c.server.Options().ValidationTimeout())
		var err error
		sock, err = c.server.dialer.Acquire(acquireCtx, target, c.server.counters)
		cancel()
		if err != nil {
			return false, err
		}
		c.server.pool.noteFreshAcquire(ctx, key)
	}

	resp, err := c.roundTrip(sock, req, body)
	if err != nil {
		_ = sock.Close()
		return false, err
	}

	if resp.StatusCode == http.StatusUnauthorized && c.secure && c.creds != nil {
		if retried, retryErr := c.retryWithAuth(ctx, sock, req, body, resp); retryErr == nil && retried != nil {
			resp = retried
			if resp.StatusCode == http.StatusUnauthorized {
				// The retry already carried our one shot at
				// credentials; a second 401 means they were
				// rejected, not that the client should retry
				// on its own. Surface perr.AuthExhausted
				// rather than relaying a 401 the local client
				// never challenged.
				_, _ = io.Copy(io.Discard, resp.Body)
				_ = resp.Body.Close()
				resp = authExhaustedResponse(req, perr.New(perr.AuthExhausted, fmt.Errorf("gateway: upstream still unauthorized after auth retry")))
			}
		}
	}

	if err := resp.Write(c.local); err != nil {
		_ = sock.Close()
		return false, err
	}

	if c.classifyKeepAlive(resp) {
		c.server.pool.putIdle(ctx, key, sock)
	} else {
		c.server.pool.discard(ctx, key)
		_ = sock.Close()
	}

	return !req.Close, nil
}

// roundTrip writes req (with body already buffered) to sock and parses
// the HTTP/1.1 response.
func (c *Connection) roundTrip(sock streamsocket.Socket, req *http.Request, body []byte) (*http.Response, error) {
	req.Body = io.NopCloser(bytes.NewReader(body))
	req.ContentLength = int64(len(body))
	if err := req.Write(sock); err != nil {
		return nil, err
	}
	return http.ReadResponse(bufio.NewReader(sock), req)
}

// retryWithAuth synthesizes an Authorization header from the challenge in
// resp and reissues req on the same socket, per spec.md §4.6's 401
// interception. Subsequent 401s are surfaced, not retried again.
func (c *Connection) retryWithAuth(ctx context.Context, sock streamsocket.Socket, req *http.Request, body []byte, resp *http.Response) (*http.Response, error) {
	challengeHeader := resp.Header.Get("WWW-Authenticate")
	if challengeHeader == "" {
		return nil, nil
	}
	parsed, ok := parseChallenge(challengeHeader)
	if !ok {
		return nil, nil
	}

	authz, err := buildAuthorization(parsed, *c.creds, req.Method, req.URL.RequestURI())
	if err != nil {
		return nil, err
	}

	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()

	retryReq := req.Clone(ctx)
	retryReq.Header.Set("Authorization", authz)
	stripHopByHop(retryReq.Header)

	retried, err := c.roundTrip(sock, retryReq, body)
	if err != nil {
		return nil, err
	}
	if retried.StatusCode == http.StatusUnauthorized {
		dlog.Debugf(ctx, "gateway: auth retry for %s still unauthorized", req.URL)
	}
	return retried, nil
}

// authExhaustedResponse synthesizes the 5xx handed to the local client in
// place of a second, unanswerable 401: the local client never supplied
// credentials of its own, so re-challenging it would be meaningless, per
// spec.md §7's AuthExhausted contract (testable property S5).
func authExhaustedResponse(req *http.Request, cause *perr.Error) *http.Response {
	body := cause.Error()
	return &http.Response{
		Status:        "502 Bad Gateway",
		StatusCode:    http.StatusBadGateway,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        http.Header{"Content-Type": []string{"text/plain; charset=utf-8"}},
		Body:          io.NopCloser(strings.NewReader(body)),
		ContentLength: int64(len(body)),
		Close:         true,
		Request:       req,
	}
}

// classifyKeepAlive applies spec.md §4.6's three conditions for returning
// a stream to the pool.
func (c *Connection) classifyKeepAlive(resp *http.Response) bool {
	if resp.Close {
		return false
	}
	if resp.ContentLength < 0 && resp.TransferEncoding == nil {
		return false
	}
	return true
}
