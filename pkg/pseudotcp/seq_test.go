package pseudotcp

import "testing"

func TestSeqWraparound(t *testing.T) {
	isn := uint32(1<<32 - 10)
	cases := []struct {
		a, b uint32
		less bool
	}{
		{isn, isn + 1, true},
		{isn + 1, isn, false},
		{isn + 20, isn + 10, false}, // wraps past zero, 20 is "after" 10
		{isn + 10, isn + 20, true},
	}
	for _, c := range cases {
		if got := seqLess(c.a, c.b); got != c.less {
			t.Errorf("seqLess(%d,%d) = %v, want %v", c.a, c.b, got, c.less)
		}
	}
}

func TestSeqInRange(t *testing.T) {
	isn := uint32(1<<32 - 5)
	if !seqInRange(isn+2, isn, isn+10) {
		t.Error("expected isn+2 to be in range spanning the wrap")
	}
	if seqInRange(isn+20, isn, isn+10) {
		t.Error("expected isn+20 to be out of range")
	}
}
