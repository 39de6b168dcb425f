package gateway

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/suniljakhar/mojop2p/pkg/streamsocket"
)

func TestCountersRecordPerKind(t *testing.T) {
	c := &Counters{}
	c.recordFor(streamsocket.KindTCP, true)
	c.recordFor(streamsocket.KindTCP, false)
	c.recordFor(streamsocket.KindStunt, true)
	c.recordFor(streamsocket.KindTurn, false)

	snap := c.Snapshot()
	require.Equal(t, int64(1), snap.DirectSuccess)
	require.Equal(t, int64(1), snap.DirectFailure)
	require.Equal(t, int64(1), snap.StuntSuccess)
	require.Equal(t, int64(0), snap.StunSuccess)
	require.Equal(t, int64(1), snap.TurnFailure)
}
