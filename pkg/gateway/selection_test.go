package gateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/suniljakhar/mojop2p/pkg/streamsocket"
)

func TestDirectWinsWithinGraceWindow(t *testing.T) {
	direct := func(ctx context.Context, target Target) (streamsocket.Socket, error) {
		return streamsocket.FromTCP(nil, streamsocket.KindTCP), nil
	}
	d := NewRemoteDialer(direct, nil, nil, nil)
	d.DirectGrace = 50 * time.Millisecond

	counters := &Counters{}
	sock, err := d.Acquire(context.Background(), Target{Host: "example.com", Port: 80}, counters)
	require.NoError(t, err)
	require.NotNil(t, sock)
	require.Equal(t, int64(1), counters.Snapshot().DirectSuccess)
}

func TestStuntJoinsAfterGraceWindow(t *testing.T) {
	direct := func(ctx context.Context, target Target) (streamsocket.Socket, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	var stuntLaunched int32
	stunt := func(ctx context.Context, target Target) (streamsocket.Socket, error) {
		stuntLaunched = 1
		return streamsocket.FromTCP(nil, streamsocket.KindTCP), nil
	}
	d := NewRemoteDialer(direct, stunt, nil, nil)
	d.DirectGrace = 30 * time.Millisecond

	counters := &Counters{}
	sock, err := d.Acquire(context.Background(), Target{Host: "example.com", Port: 80}, counters)
	require.NoError(t, err)
	require.NotNil(t, sock)
	require.Equal(t, int32(1), stuntLaunched)
}

func TestTurnIsLastResort(t *testing.T) {
	failing := func(ctx context.Context, target Target) (streamsocket.Socket, error) {
		return nil, errors.New("boom")
	}
	turnCalled := false
	turn := func(ctx context.Context, target Target) (streamsocket.Socket, error) {
		turnCalled = true
		return streamsocket.FromTCP(nil, streamsocket.KindTCP), nil
	}
	d := NewRemoteDialer(failing, failing, failing, turn)
	d.DirectGrace = 10 * time.Millisecond

	counters := &Counters{}
	sock, err := d.Acquire(context.Background(), Target{Host: "example.com", Port: 80}, counters)
	require.NoError(t, err)
	require.NotNil(t, sock)
	require.True(t, turnCalled)
	require.Equal(t, int64(1), counters.Snapshot().TurnSuccess)
}

func TestAllTransportsFailWithNoTurn(t *testing.T) {
	failing := func(ctx context.Context, target Target) (streamsocket.Socket, error) {
		return nil, errors.New("boom")
	}
	d := NewRemoteDialer(failing, failing, failing, nil)
	d.DirectGrace = 10 * time.Millisecond

	counters := &Counters{}
	_, err := d.Acquire(context.Background(), Target{Host: "example.com", Port: 80}, counters)
	require.Error(t, err)
}
