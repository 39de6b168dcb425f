package pseudotcp

import "time"

// outSegment is one in-flight sender-side record, per spec.md §3's sliding
// window invariants: first_sent timestamp, retransmitted bit, and
// empty-window-probe bit.
type outSegment struct {
	seq           uint32
	payloadLen    int
	encoded       []byte
	firstSent     time.Time
	lastSent      time.Time
	retransmitted bool
	probe         bool
}

// sendQueue is the ordered set of in-flight packets, keyed by seq and kept
// sorted ascending (oldest unacked first). A packet leaves the queue only
// when strictly below the cumulative ACK (snd_una); SACK entries never
// remove an entry (spec.md §3). The sender does not consult the peer's
// SACK sequence at all: fast retransmit is driven by three duplicate
// ACKs only.
type sendQueue struct {
	segs []*outSegment
}

func (q *sendQueue) push(s *outSegment) {
	q.segs = append(q.segs, s)
}

func (q *sendQueue) flightBytes() int {
	n := 0
	for _, s := range q.segs {
		n += s.payloadLen
	}
	return n
}

// ackTo removes every segment strictly below una and returns them (oldest
// first), plus the number of payload bytes freed.
func (q *sendQueue) ackTo(una uint32) (removed []*outSegment, freedBytes int) {
	i := 0
	for i < len(q.segs) && seqLess(q.segs[i].seq, una) {
		freedBytes += q.segs[i].payloadLen
		removed = append(removed, q.segs[i])
		i++
	}
	q.segs = q.segs[i:]
	return removed, freedBytes
}

// firstUnacked returns the oldest outstanding segment, or nil.
func (q *sendQueue) firstUnacked() *outSegment {
	if len(q.segs) == 0 {
		return nil
	}
	return q.segs[0]
}

// segmentAt returns the segment with the given seq, or nil.
func (q *sendQueue) segmentAt(seq uint32) *outSegment {
	for _, s := range q.segs {
		if s.seq == seq {
			return s
		}
	}
	return nil
}

func (q *sendQueue) empty() bool {
	return len(q.segs) == 0
}
