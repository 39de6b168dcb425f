package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/datawire/dlib/dlog"

	"github.com/suniljakhar/mojop2p/pkg/perr"
	"github.com/suniljakhar/mojop2p/pkg/streamsocket"
)

// Target names the remote-socket request GatewayConnection needs
// satisfied: a host:port pair, or (exclusively) a peer identity the
// signaling-backed sessions resolve on their own.
type Target struct {
	Host    string
	Port    uint16
	PeerJID string
}

func (t Target) String() string {
	if t.PeerJID != "" {
		return t.PeerJID
	}
	return fmt.Sprintf("%s:%d", t.Host, t.Port)
}

// Launcher dials one transport kind for target. It is a narrow seam: the
// gateway core never constructs concrete StunSession/StuntSession/
// TurnSession/SocketConnector instances itself (those need signaling
// identities, STUN server addresses, and discovered streamhosts that are
// deployment configuration, not gateway-core state) — it only races
// whatever launchers the caller supplies, per spec.md §4.6 step 2-3.
type Launcher func(ctx context.Context, target Target) (streamsocket.Socket, error)

// RemoteDialer races the transport attempts spec.md §4.6 describes: a
// SocketConnector launches immediately; StuntSession and StunSession
// join the race if direct TCP hasn't connected within DirectGrace; if
// every concurrent attempt fails, a TurnSession is attempted last.
// Grounded on _examples/cppla-moto/controller/boost.go's "race N dial
// attempts, first success wins, cancel the losers" shape, generalized
// from N identical TCP dials to N distinct transport kinds joining the
// race at staggered times.
type RemoteDialer struct {
	Direct Launcher
	Stunt  Launcher
	Stun   Launcher
	Turn   Launcher

	DirectGrace time.Duration // default 2s, spec.md §4.6 step 2
}

func NewRemoteDialer(direct, stunt, stun, turn Launcher) *RemoteDialer {
	return &RemoteDialer{Direct: direct, Stunt: stunt, Stun: stun, Turn: turn, DirectGrace: 2 * time.Second}
}

type raceResult struct {
	sock streamsocket.Socket
	kind streamsocket.Kind
	err  error
}

// Acquire runs the full selection policy and returns the winning
// StreamSocket, recording per-kind outcomes in counters.
func (d *RemoteDialer) Acquire(ctx context.Context, target Target, counters *Counters) (streamsocket.Socket, error) {
	grace := d.DirectGrace
	if grace <= 0 {
		grace = 2 * time.Second
	}

	raceCtx, cancelRace := context.WithCancel(ctx)
	defer cancelRace()

	results := make(chan raceResult, 3)
	pending := 0

	launch := func(l Launcher, kind streamsocket.Kind) {
		if l == nil {
			return
		}
		pending++
		go func() {
			sock, err := l(raceCtx, target)
			results <- raceResult{sock: sock, kind: kind, err: err}
		}()
	}

	launch(d.Direct, streamsocket.KindTCP)

	graceTimer := time.NewTimer(grace)
	defer graceTimer.Stop()
	graceFired := false
	if d.Stunt == nil && d.Stun == nil {
		graceFired = true // nothing left to join, stop waiting on the timer
	}

	var firstErr error
	for pending > 0 || !graceFired {
		var graceC <-chan time.Time
		if !graceFired {
			graceC = graceTimer.C
		}

		select {
		case r := <-results:
			pending--
			if r.err == nil {
				counters.recordFor(r.kind, true)
				cancelRace()
				drainRace(results, pending)
				return r.sock, nil
			}
			counters.recordFor(r.kind, false)
			if firstErr == nil {
				firstErr = r.err
			}
			dlog.Debugf(ctx, "gateway: %s transport failed for %s: %v", r.kind, target, r.err)

		case <-graceC:
			graceFired = true
			launch(d.Stunt, streamsocket.KindStunt)
			launch(d.Stun, streamsocket.KindPTcp)

		case <-ctx.Done():
			cancelRace()
			drainRace(results, pending)
			return nil, perr.New(perr.Canceled, ctx.Err())
		}
	}

	if d.Turn == nil {
		if firstErr == nil {
			firstErr = perr.New(perr.UpstreamClosed, fmt.Errorf("gateway: no transport available for %s", target))
		}
		return nil, firstErr
	}

	sock, err := d.Turn(ctx, target)
	if err != nil {
		counters.recordFor(streamsocket.KindTurn, false)
		if firstErr == nil {
			firstErr = err
		}
		return nil, firstErr
	}
	counters.recordFor(streamsocket.KindTurn, true)
	return sock, nil
}

// drainRace closes any socket delivered by a still-outstanding launcher
// after the race has already been decided, so the loser's connection
// doesn't leak.
func drainRace(results chan raceResult, pending int) {
	go func() {
		for i := 0; i < pending; i++ {
			r := <-results
			if r.err == nil && r.sock != nil {
				_ = r.sock.Close()
			}
		}
	}()
}
