package pseudotcp

// Serial number arithmetic, wraparound-safe per spec.md §4.1: "a < b iff
// (int32)(a - b) < 0". All window/ack comparisons in this package go
// through these helpers instead of raw operators.

func seqLess(a, b uint32) bool {
	return int32(a-b) < 0
}

func seqLessEq(a, b uint32) bool {
	return a == b || seqLess(a, b)
}

func seqGreater(a, b uint32) bool {
	return seqLess(b, a)
}

func seqGreaterEq(a, b uint32) bool {
	return a == b || seqGreater(a, b)
}

// seqInRange reports whether a is in [lo, hi) under serial arithmetic.
func seqInRange(a, lo, hi uint32) bool {
	return seqGreaterEq(a, lo) && seqLess(a, hi)
}
