package gateway

import (
	"sync/atomic"

	"github.com/suniljakhar/mojop2p/pkg/streamsocket"
)

// Counters tallies per-transport-kind success/failure counts for
// diagnostic telemetry, per spec.md §4.6's "Success/failure counters per
// transport kind".
type Counters struct {
	direct kindCounter
	stunt  kindCounter
	stun   kindCounter
	turn   kindCounter
}

type kindCounter struct {
	successes int64
	failures  int64
}

func (c *kindCounter) recordSuccess() { atomic.AddInt64(&c.successes, 1) }
func (c *kindCounter) recordFailure() { atomic.AddInt64(&c.failures, 1) }

func (c *kindCounter) snapshot() (int64, int64) {
	return atomic.LoadInt64(&c.successes), atomic.LoadInt64(&c.failures)
}

// Snapshot is a point-in-time read of every transport kind's counters.
type Snapshot struct {
	DirectSuccess, DirectFailure int64
	StuntSuccess, StuntFailure  int64
	StunSuccess, StunFailure    int64
	TurnSuccess, TurnFailure    int64
}

func (c *Counters) recordFor(kind streamsocket.Kind, success bool) {
	kc := c.counterFor(kind)
	if kc == nil {
		return
	}
	if success {
		kc.recordSuccess()
	} else {
		kc.recordFailure()
	}
}

func (c *Counters) counterFor(kind streamsocket.Kind) *kindCounter {
	switch kind {
	case streamsocket.KindTCP:
		return &c.direct
	case streamsocket.KindStunt:
		return &c.stunt
	case streamsocket.KindPTcp:
		return &c.stun
	case streamsocket.KindTurn:
		return &c.turn
	default:
		return nil
	}
}

func (c *Counters) Snapshot() Snapshot {
	ds, df := c.direct.snapshot()
	ss, sf := c.stunt.snapshot()
	uns, unf := c.stun.snapshot()
	ts, tf := c.turn.snapshot()
	return Snapshot{
		DirectSuccess: ds, DirectFailure: df,
		StuntSuccess: ss, StuntFailure: sf,
		StunSuccess: uns, StunFailure: unf,
		TurnSuccess: ts, TurnFailure: tf,
	}
}
