package pseudotcp

import "sort"

// oooSegment is one received-but-not-yet-contiguous segment.
type oooSegment struct {
	seq     uint32
	payload []byte
}

// recvQueue holds packets with seq > rcvNext until they become
// deliverable, per spec.md §3's receiver state.
type recvQueue struct {
	segs []oooSegment // sorted ascending by seq, deduplicated
}

// insert buffers a segment that arrived ahead of rcvNext. Duplicates
// (same seq already buffered) are ignored.
func (q *recvQueue) insert(seq uint32, payload []byte) {
	i := sort.Search(len(q.segs), func(i int) bool { return seqGreaterEq(q.segs[i].seq, seq) })
	if i < len(q.segs) && q.segs[i].seq == seq {
		return // duplicate
	}
	q.segs = append(q.segs, oooSegment{})
	copy(q.segs[i+1:], q.segs[i:])
	q.segs[i] = oooSegment{seq: seq, payload: payload}
}

// drainContiguous removes and returns, concatenated, every buffered
// segment that extends contiguously from rcvNext, and the new rcvNext.
func (q *recvQueue) drainContiguous(rcvNext uint32) ([]byte, uint32) {
	var out []byte
	i := 0
	for i < len(q.segs) && q.segs[i].seq == rcvNext {
		out = append(out, q.segs[i].payload...)
		rcvNext += uint32(len(q.segs[i].payload))
		i++
	}
	q.segs = q.segs[i:]
	return out, rcvNext
}

func (q *recvQueue) empty() bool {
	return len(q.segs) == 0
}
