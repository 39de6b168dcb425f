package gateway

import (
	"context"
	"net"

	"github.com/suniljakhar/mojop2p/pkg/streamsocket"
	"github.com/suniljakhar/mojop2p/pkg/stunt"
)

// NewStuntLauncher adapts a *stunt.Session into a Launcher the RemoteDialer
// race can join. It watches two independent paths at once: the session's
// normal simultaneous-open Punch cycle against candidates, and its
// server-side HTTP passthrough (spec.md §4.3) on a second
// SO_REUSEPORT-shared listener bound to the same predicted port. Whichever
// completes first wins; the other is abandoned. The passthrough path lets
// a peer that already knows our predicted port skip waiting on the full
// signaling round-trip, falling into the session early.
func NewStuntLauncher(session *stunt.Session, candidates []*net.TCPAddr) Launcher {
	return func(ctx context.Context, _ Target) (streamsocket.Socket, error) {
		ln, err := session.ListenPassthrough(ctx)
		if err != nil {
			return nil, err
		}

		raceCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		type result struct {
			conn net.Conn
			err  error
		}
		results := make(chan result, 2)

		go func() {
			conn, err := session.AcceptPassthrough(raceCtx, ln)
			results <- result{conn, err}
		}()
		go func() {
			conn, err := session.RunAttempts(raceCtx, candidates)
			results <- result{conn, err}
		}()

		r := <-results
		if r.err != nil || r.conn == nil {
			select {
			case r2 := <-results:
				cancel()
				_ = ln.Close()
				if r2.err != nil || r2.conn == nil {
					if r.err != nil {
						return nil, r.err
					}
					return nil, r2.err
				}
				return streamsocket.FromTCP(r2.conn, streamsocket.KindStunt), nil
			case <-ctx.Done():
				_ = ln.Close()
				return nil, ctx.Err()
			}
		}
		cancel()
		_ = ln.Close()
		return streamsocket.FromTCP(r.conn, streamsocket.KindStunt), nil
	}
}
