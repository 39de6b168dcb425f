// Package gateway implements the GatewayServer/GatewayConnection
// component (spec.md §4.6): a loopback HTTP/1.1 front door that races
// the other four transports to acquire a remote stream per request.
package gateway

import (
	"context"
	"net"
	"sync/atomic"

	"github.com/datawire/dlib/dlog"
	"github.com/hashicorp/go-multierror"

	"github.com/suniljakhar/mojop2p/pkg/config"
	"github.com/suniljakhar/mojop2p/pkg/perr"
)

// Server listens on an ephemeral loopback port and serves one Connection
// per accepted client, per spec.md §4.6.
type Server struct {
	ln       net.Listener
	dialer   *RemoteDialer
	pool     *pool
	counters *Counters
	creds    *Credentials
	secure   bool

	opts          atomic.Pointer[config.Options]
	configUpdates <-chan *config.Options
}

// New constructs a Server bound to an ephemeral loopback port. Call Addr
// after New to discover the assigned port.
func New(dialer *RemoteDialer) (*Server, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, perr.New(perr.UpstreamClosed, err)
	}
	s := &Server{ln: ln, dialer: dialer, pool: newPool(), counters: &Counters{}}
	s.opts.Store(config.Default())
	return s, nil
}

// Options returns the tunable set most recently applied, either the
// default or the last value read off a channel passed to SetConfigUpdates,
// per spec.md §5's hot-reload contract.
func (s *Server) Options() *config.Options {
	return s.opts.Load()
}

// SetConfigUpdates wires updates (as produced by config.Watch) into the
// server: Serve spawns a goroutine that applies every value pushed down
// the channel to live requests, without a restart. Must be called before
// Serve.
func (s *Server) SetConfigUpdates(updates <-chan *config.Options) {
	s.configUpdates = updates
}

// watchConfig applies every Options pushed down updates until ctx is done
// or the channel closes.
func (s *Server) watchConfig(ctx context.Context, updates <-chan *config.Options) {
	for {
		select {
		case <-ctx.Done():
			return
		case opts, ok := <-updates:
			if !ok {
				return
			}
			s.opts.Store(opts)
			dlog.Debugf(ctx, "gateway: applied config reload: validationTimeout=%s turnPerCandidate=%s",
				opts.ValidationTimeout(), opts.TurnPerCandidate())
		}
	}
}

// Addr returns the loopback address the server is listening on.
func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}

// SetCredentials enables spec.md §4.6's 401 interception: when secure is
// true and creds is non-nil, a 401 from the remote triggers a single
// Digest/Basic retry using creds.
func (s *Server) SetCredentials(creds Credentials, secure bool) {
	s.creds = &creds
	s.secure = secure
}

// Counters exposes the per-transport-kind success/failure telemetry.
func (s *Server) Counters() Snapshot {
	return s.counters.Snapshot()
}

// Serve accepts connections until ctx is canceled or the listener fails.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = s.ln.Close()
	}()
	if s.configUpdates != nil {
		go s.watchConfig(ctx, s.configUpdates)
	}

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return perr.New(perr.UpstreamClosed, err)
		}
		dlog.Debugf(ctx, "gateway: accepted loopback connection from %s", conn.RemoteAddr())
		gc := newConnection(conn, s)
		go gc.Serve(ctx)
	}
}

// Close stops accepting new connections and closes every pooled idle
// remote socket.
func (s *Server) Close(ctx context.Context) error {
	var result *multierror.Error
	if err := s.ln.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	s.pool.closeAll(ctx)
	return result.ErrorOrNil()
}
