package pseudotcp

// congestion implements RFC 2581 slow-start/congestion-avoidance plus the
// NewReno (RFC 3782) fast-retransmit/fast-recovery extension, per spec.md
// §4.1.
type congestion struct {
	mss      uint32
	cwnd     uint32
	ssthresh uint32

	dupAcks     int
	inRecovery  bool
	recover     uint32
}

const initialSsthresh = 64 * 1024

func newCongestion(mss uint32) *congestion {
	return &congestion{
		mss:      mss,
		cwnd:     2 * mss,
		ssthresh: initialSsthresh,
	}
}

func (c *congestion) window() uint32 {
	return c.cwnd
}

// onNewAck is called whenever snd_una advances by ackedBytes (> 0), and
// reports whether the caller must retransmit the next hole: a partial
// ACK arrived while still in fast recovery (RFC 3782 step 4's "partial
// ACK" case), as opposed to an ACK that passed recover and ended it.
func (c *congestion) onNewAck(ackedBytes int, sndUna uint32) (retransmitHole bool) {
	if c.inRecovery {
		if seqGreaterEq(sndUna, c.recover) {
			// Full recovery: deflate the window back to ssthresh.
			c.inRecovery = false
			c.dupAcks = 0
			c.cwnd = c.ssthresh
			return false
		}
		// Partial ACK during recovery: keep cwnd inflated and signal the
		// caller to retransmit the next unacked hole (NewReno).
		c.cwnd += uint32(ackedBytes)
		if c.cwnd > c.mss {
			c.cwnd -= c.mss
		}
		return true
	}
	c.dupAcks = 0
	if c.cwnd < c.ssthresh {
		// Slow start: one MSS of growth per ACK covering new data.
		grow := uint32(ackedBytes)
		if grow > c.mss {
			grow = c.mss
		}
		c.cwnd += grow
	} else {
		// Congestion avoidance: ~1 MSS growth per RTT.
		c.cwnd += c.mss * c.mss / c.cwnd
	}
	return false
}

// onDupAck is called for every duplicate ACK received while established.
// It returns true exactly once three duplicates have accumulated, at which
// point the caller must retransmit the oldest unacked segment.
func (c *congestion) onDupAck(flightBytes int, sndNxt uint32) (enterFastRetransmit bool) {
	if c.inRecovery {
		// Additional dup ACKs during recovery just inflate cwnd (NewReno).
		c.cwnd += c.mss
		return false
	}
	c.dupAcks++
	if c.dupAcks != 3 {
		return false
	}
	c.ssthresh = maxU32(uint32(flightBytes)/2, 2*c.mss)
	c.cwnd = c.ssthresh + 3*c.mss
	c.recover = sndNxt
	c.inRecovery = true
	return true
}

// onRTOLoss resets to slow start after a retransmission-timer expiry.
func (c *congestion) onRTOLoss(flightBytes int) {
	c.ssthresh = maxU32(uint32(flightBytes)/2, 2*c.mss)
	c.cwnd = c.mss
	c.dupAcks = 0
	c.inRecovery = false
}

func maxU32(a, b uint32) uint32 {
	if a > b {
		return a
	}
	return b
}
