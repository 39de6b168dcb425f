package gateway

import (
	"context"
	"sync"

	"github.com/datawire/dlib/dlog"

	"github.com/suniljakhar/mojop2p/pkg/streamsocket"
)

// pool keeps idle remote streams keyed by destination so a later request
// to the same target can reuse a keep-alive connection instead of racing
// a fresh remote-socket acquisition, per spec.md §4.6 step 1. Grounded on
// the teacher's pkg/connpool.Pool (map keyed by connection id, guarded by
// one mutex, with ++/-- debug bookkeeping).
type pool struct {
	mu    sync.Mutex
	idle  map[string][]streamsocket.Socket
	inUse int
}

func newPool() *pool {
	return &pool{idle: make(map[string][]streamsocket.Socket)}
}

// take returns an idle socket for key, if one is available, removing it
// from the pool.
func (p *pool) take(ctx context.Context, key string) streamsocket.Socket {
	p.mu.Lock()
	defer p.mu.Unlock()
	bucket := p.idle[key]
	if len(bucket) == 0 {
		return nil
	}
	sock := bucket[len(bucket)-1]
	p.idle[key] = bucket[:len(bucket)-1]
	p.inUse++
	dlog.Debugf(ctx, "++ GWP %s (in-use now %d)", key, p.inUse)
	return sock
}

// noteFreshAcquire records that key has a newly dialed (not pooled)
// socket now in use, so putIdle/discard's "-- GWP" bookkeeping stays
// balanced against take's "++ GWP".
func (p *pool) noteFreshAcquire(ctx context.Context, key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inUse++
	dlog.Debugf(ctx, "++ GWP %s (in-use now %d)", key, p.inUse)
}

// putIdle returns sock to the pool for reuse under key, per spec.md
// §4.6's keep-alive classification.
func (p *pool) putIdle(ctx context.Context, key string, sock streamsocket.Socket) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.idle[key] = append(p.idle[key], sock)
	p.inUse--
	dlog.Debugf(ctx, "-- GWP %s (in-use now %d)", key, p.inUse)
}

// discard releases a socket that failed keep-alive classification,
// without returning it to the idle bucket.
func (p *pool) discard(ctx context.Context, key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inUse--
	dlog.Debugf(ctx, "-- GWP %s discarded (in-use now %d)", key, p.inUse)
}

// closeAll closes every idle socket, used at server shutdown.
func (p *pool) closeAll(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for key, bucket := range p.idle {
		for _, sock := range bucket {
			dlog.Debugf(ctx, "closing pooled socket for %s", key)
			_ = sock.Close()
		}
	}
	p.idle = make(map[string][]streamsocket.Socket)
}
