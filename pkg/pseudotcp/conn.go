package pseudotcp

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/datawire/dlib/derror"
	"github.com/datawire/dlib/dlog"

	"github.com/suniljakhar/mojop2p/pkg/perr"
)

// Config bounds the tunable behavior of a Conn. Fields correspond to
// spec.md §6's configuration table; a *pkg/config.Options is translated
// into one of these by the caller that owns the session (StunSession /
// StuntSession), not by this package.
type Config struct {
	MSS           uint32
	InitialRTO    time.Duration
	RecvWindow    uint32
	OpenRetries   int
	KeepaliveIdle time.Duration
	KeepaliveDead time.Duration
	PersistCap    time.Duration
	AckDelay      time.Duration
	MSL           time.Duration
}

// DefaultConfig matches spec.md §6's stated defaults.
func DefaultConfig() Config {
	return Config{
		MSS:           1400,
		InitialRTO:    1 * time.Second,
		RecvWindow:    64 * 1024,
		OpenRetries:   9,
		KeepaliveIdle: 30 * time.Second,
		KeepaliveDead: 75 * time.Second,
		PersistCap:    60 * time.Second,
		AckDelay:      200 * time.Millisecond,
		MSL:           30 * time.Second,
	}
}

type writeReq struct {
	data   []byte
	result chan error
}

type closeReq struct {
	graceful bool
	result   chan error
}

// Conn is a single PseudoTcp connection: a reliable, in-order,
// congestion-controlled byte stream carried over one connected UDP socket,
// per spec.md §4.1. All internal state is touched only by the connection's
// own reactor goroutine; Read, Write, Close, CloseAfterWriting and Abort
// are the only methods safe to call from other goroutines.
type Conn struct {
	cfg      Config
	sock     net.Conn
	delegate Delegate

	ctx      context.Context
	cancel   context.CancelFunc
	closeOnce sync.Once
	abortErr error

	incoming  chan Packet
	writeReqs chan writeReq
	closeReqs chan closeReq
	closed    chan struct{}
	windowOpened chan struct{}

	openDone chan error
	passive  bool
	terminal bool

	// reactor-owned state
	state   State
	isn     uint32
	sndUna  uint32
	sndNxt  uint32
	peerISN uint32
	rcvNext uint32
	rwnd    uint32

	cong *congestion
	rtt  *rttEstimator

	sendQ sendQueue
	recvQ recvQueue

	pendingWrite []byte
	pendingSack  *uint32

	openAttempts int
	rtoFires     int

	finSent bool
	finSeq  uint32
	peerFin bool

	unackedSinceAck int

	ackTimer       *time.Timer
	ackArmed       bool
	rtoTimer       *time.Timer
	rtoArmed       bool
	persistTimer   *time.Timer
	persistArmed   bool
	persistRTO     time.Duration
	timeWaitTimer  *time.Timer

	lastRecv      time.Time
	keepaliveSent bool

	mu      sync.Mutex
	cond    *sync.Cond
	readBuf []byte
	readErr error
}

// NewConn wires a Conn around an already-connected UDP socket (as returned
// by net.DialUDP against the peer's predicted or signaled address). ctx
// bounds the connection's entire lifetime; canceling it aborts the
// connection exactly as Abort does.
func NewConn(ctx context.Context, sock net.Conn, delegate Delegate, cfg Config) *Conn {
	if delegate == nil {
		delegate = NopDelegate{}
	}
	cctx, cancel := context.WithCancel(ctx)
	c := &Conn{
		cfg:          cfg,
		sock:         sock,
		delegate:     delegate,
		ctx:          cctx,
		cancel:       cancel,
		incoming:     make(chan Packet, 64),
		writeReqs:    make(chan writeReq, 16),
		closeReqs:    make(chan closeReq, 1),
		closed:       make(chan struct{}),
		windowOpened: make(chan struct{}, 1),
		persistRTO:   cfg.InitialRTO,
	}
	c.cond = sync.NewCond(&c.mu)
	c.cong = newCongestion(cfg.MSS)
	c.rtt = newRTTEstimator(cfg.InitialRTO)
	return c
}

func randomISN() uint32 {
	var b [4]byte
	_, _ = rand.Read(b[:])
	return binary.BigEndian.Uint32(b[:])
}

// ActiveOpen performs the active-open handshake (spec.md §4.1): send SYN,
// wait for SYN+ACK, enter ESTABLISHED. It blocks until the handshake
// resolves, the open-retry budget is exhausted (OpenTimeout), or callerCtx
// is canceled.
func (c *Conn) ActiveOpen(callerCtx context.Context) error {
	c.isn = randomISN()
	c.sndUna = c.isn
	c.sndNxt = c.isn + 1
	c.state = StateSynSent
	done := make(chan error, 1)
	c.openDone = done
	go c.run()
	select {
	case err := <-done:
		return err
	case <-callerCtx.Done():
		c.Abort(perr.New(perr.Canceled, callerCtx.Err()))
		return perr.New(perr.Canceled, callerCtx.Err())
	}
}

// PassiveOpen waits for an inbound SYN on sock and completes the
// corresponding SYN+ACK handshake, per spec.md §4.1's LISTEN-equivalent.
func (c *Conn) PassiveOpen(callerCtx context.Context) error {
	c.passive = true
	c.state = StateClosed
	done := make(chan error, 1)
	c.openDone = done
	go c.run()
	select {
	case err := <-done:
		return err
	case <-callerCtx.Done():
		c.Abort(perr.New(perr.Canceled, callerCtx.Err()))
		return perr.New(perr.Canceled, callerCtx.Err())
	}
}

// Abort cancels the connection. It is idempotent: only the first call's
// error reaches the delegate's WillClose.
func (c *Conn) Abort(err error) {
	c.closeOnce.Do(func() {
		if err == nil {
			err = perr.New(perr.Canceled, context.Canceled)
		}
		c.abortErr = err
		c.cancel()
	})
}

// Read blocks until at least one byte is available, the peer's FIN has
// been consumed (io.EOF), or the connection has closed with an error.
func (c *Conn) Read(p []byte) (int, error) {
	c.mu.Lock()
	wasFull := uint32(len(c.readBuf)) >= c.cfg.RecvWindow
	for len(c.readBuf) == 0 && c.readErr == nil {
		c.cond.Wait()
	}
	var n int
	var err error
	if len(c.readBuf) == 0 {
		err = c.readErr
	} else {
		n = copy(p, c.readBuf)
		c.readBuf = c.readBuf[n:]
	}
	nowFull := uint32(len(c.readBuf)) >= c.cfg.RecvWindow
	c.mu.Unlock()

	if wasFull && !nowFull {
		select {
		case c.windowOpened <- struct{}{}:
		default:
		}
	}
	return n, err
}

// Write queues p for transmission and returns once it has been accepted
// into the send buffer; it does not wait for acknowledgment. The stack
// segments queued bytes into MSS-sized packets as the window allows.
func (c *Conn) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	req := writeReq{data: append([]byte(nil), p...), result: make(chan error, 1)}
	select {
	case c.writeReqs <- req:
	case <-c.closed:
		return 0, perr.New(perr.Canceled, io.ErrClosedPipe)
	}
	select {
	case err := <-req.result:
		if err != nil {
			return 0, err
		}
		return len(p), nil
	case <-c.closed:
		return 0, perr.New(perr.Canceled, io.ErrClosedPipe)
	}
}

// CloseAfterWriting drains the send buffer, sends FIN, and follows the
// standard four-way close (spec.md §4.1).
func (c *Conn) CloseAfterWriting() error {
	return c.requestClose(true)
}

// Close closes the connection immediately. Unacked data at hard close
// causes an RST to be sent to the peer.
func (c *Conn) Close() error {
	return c.requestClose(false)
}

func (c *Conn) requestClose(graceful bool) error {
	req := closeReq{graceful: graceful, result: make(chan error, 1)}
	select {
	case c.closeReqs <- req:
	case <-c.closed:
		return nil
	}
	select {
	case err := <-req.result:
		return err
	case <-c.closed:
		return nil
	}
}

// run is the single reactor goroutine: the only place that touches the
// connection's state machine, timers, and congestion/RTT estimators.
func (c *Conn) run() {
	defer close(c.closed)
	defer func() {
		if r := recover(); r != nil {
			dlog.Errorf(c.ctx, "pseudotcp: reactor panic: %v", derror.PanicToError(r))
		}
	}()
	defer c.delegate.DidClose()

	go c.readLoop()

	c.ackTimer = time.NewTimer(time.Hour)
	stopTimer(c.ackTimer)
	c.rtoTimer = time.NewTimer(time.Hour)
	stopTimer(c.rtoTimer)
	c.persistTimer = time.NewTimer(time.Hour)
	stopTimer(c.persistTimer)
	c.timeWaitTimer = time.NewTimer(time.Hour)
	stopTimer(c.timeWaitTimer)
	houseKeeping := time.NewTicker(1 * time.Second)
	defer houseKeeping.Stop()

	c.lastRecv = time.Now()

	if c.state == StateSynSent {
		c.openAttempts = 1
		c.sendSYNRaw()
		c.armRTOAt(c.rtt.RTO())
	}

	for {
		select {
		case <-c.ctx.Done():
			err := c.abortErr
			if err == nil {
				err = perr.New(perr.Canceled, c.ctx.Err())
			}
			c.teardown(err)

		case pkt := <-c.incoming:
			c.handlePacket(pkt)

		case req := <-c.writeReqs:
			c.pendingWrite = append(c.pendingWrite, req.data...)
			c.trySend()
			req.result <- nil

		case req := <-c.closeReqs:
			c.handleCloseRequest(req)

		case <-c.ackTimer.C:
			c.ackArmed = false
			c.sendAckNow()

		case <-c.rtoTimer.C:
			c.rtoArmed = false
			c.onRTOFire()

		case <-c.persistTimer.C:
			c.persistArmed = false
			c.sendPersistProbe()

		case <-c.timeWaitTimer.C:
			c.teardown(nil)

		case <-c.windowOpened:
			c.sendAckNow()

		case <-houseKeeping.C:
			c.onHouseKeeping()
		}

		if c.terminal {
			return
		}
	}
}

// readLoop is the only goroutine that blocks on socket I/O; it exists so
// the reactor's select loop never performs blocking reads, per spec.md
// §5's "blocking file I/O is forbidden on the reactor".
func (c *Conn) readLoop() {
	buf := make([]byte, 65535)
	for {
		n, err := c.sock.Read(buf)
		if err != nil {
			c.Abort(perr.New(perr.PeerUnreachable, err))
			return
		}
		pkt, derr := Decode(buf[:n])
		if derr != nil {
			continue
		}
		select {
		case c.incoming <- pkt:
		case <-c.closed:
			return
		}
	}
}

func (c *Conn) writeRaw(pkt Packet) {
	_, _ = c.sock.Write(pkt.Encode())
}

func (c *Conn) sendSYNRaw() {
	c.writeRaw(Packet{Seq: c.isn, Flags: FlagSYN, Window: uint16(c.availableRecvWindow())})
}

func (c *Conn) sendSYNACKRaw() {
	c.writeRaw(Packet{Seq: c.isn, Ack: c.rcvNext, Flags: FlagSYN | FlagACK, Window: uint16(c.availableRecvWindow())})
}

func (c *Conn) openPending() bool {
	return c.state == StateSynSent || c.state == StateSynReceived
}

func (c *Conn) openComplete(err error) {
	if c.openDone == nil {
		return
	}
	done := c.openDone
	c.openDone = nil
	done <- err
	if err == nil {
		c.delegate.DidOpen()
	}
}

func (c *Conn) failOpen(err error) {
	c.teardown(err)
	c.openComplete(err)
}

func (c *Conn) handlePacket(pkt Packet) {
	c.lastRecv = time.Now()
	c.keepaliveSent = false

	if pkt.Flags.RST() {
		c.teardown(perr.New(perr.PeerUnreachable, fmt.Errorf("peer reset the connection")))
		return
	}

	switch c.state {
	case StateSynSent:
		c.handleSynSent(pkt)
		return
	case StateClosed:
		if c.passive && pkt.Flags.SYN() {
			c.handlePassiveSyn(pkt)
		}
		return
	case StateSynReceived:
		c.handleSynReceived(pkt)
		return
	}

	if pkt.Flags.ACK() {
		c.onAck(pkt.Ack, pkt.Window)
	}
	if len(pkt.Payload) > 0 {
		c.onData(pkt.Seq, pkt.Payload)
	}
	if pkt.Flags.FIN() {
		c.onFin(pkt.Seq)
	}
}

func (c *Conn) handleSynSent(pkt Packet) {
	if !pkt.Flags.SYN() {
		return
	}
	c.peerISN = pkt.Seq
	c.rcvNext = pkt.Seq + 1
	c.rwnd = uint32(pkt.Window)
	if pkt.Flags.ACK() && pkt.Ack == c.sndNxt {
		c.sndUna = pkt.Ack
		c.state = StateEstablished
		stopTimer(c.rtoTimer)
		c.rtoArmed = false
		c.sendAckNow()
		dlog.Debugf(c.ctx, "pseudotcp: established (active)")
		c.openComplete(nil)
		return
	}
	// Simultaneous open: the peer sent a bare SYN of its own.
	c.state = StateSynReceived
	c.sendSYNACKRaw()
}

func (c *Conn) handlePassiveSyn(pkt Packet) {
	c.peerISN = pkt.Seq
	c.rcvNext = pkt.Seq + 1
	c.rwnd = uint32(pkt.Window)
	c.isn = randomISN()
	c.sndUna = c.isn
	c.sndNxt = c.isn + 1
	c.state = StateSynReceived
	c.openAttempts = 1
	c.sendSYNACKRaw()
	c.armRTOAt(c.rtt.RTO())
}

func (c *Conn) handleSynReceived(pkt Packet) {
	if pkt.Flags.SYN() && !pkt.Flags.ACK() {
		c.sendSYNACKRaw()
		return
	}
	if pkt.Flags.ACK() && seqGreaterEq(pkt.Ack, c.sndUna+1) {
		c.sndUna = pkt.Ack
		c.rwnd = uint32(pkt.Window)
		c.state = StateEstablished
		stopTimer(c.rtoTimer)
		c.rtoArmed = false
		dlog.Debugf(c.ctx, "pseudotcp: established (passive)")
		c.openComplete(nil)
	}
}

// onRTOFire handles both handshake-retry and data-retransmission RTO
// expiry, per spec.md §4.1.
func (c *Conn) onRTOFire() {
	if c.openPending() {
		c.openAttempts++
		if c.openAttempts > c.cfg.OpenRetries {
			c.failOpen(perr.New(perr.OpenTimeout, fmt.Errorf("no response after %d attempts", c.openAttempts-1)))
			return
		}
		c.rtt.backoff()
		if c.state == StateSynSent {
			c.sendSYNRaw()
		} else {
			c.sendSYNACKRaw()
		}
		c.armRTOAt(c.rtt.RTO())
		return
	}

	if c.sendQ.empty() {
		return
	}
	c.rtoFires++
	if c.rtoFires >= 10 {
		c.teardown(perr.New(perr.PeerUnreachable, fmt.Errorf("no progress after %d consecutive retransmission timeouts", c.rtoFires)))
		return
	}
	c.cong.onRTOLoss(c.sendQ.flightBytes())
	seg := c.sendQ.firstUnacked()
	if seg != nil {
		seg.retransmitted = true
		seg.lastSent = time.Now()
		_, _ = c.sock.Write(seg.encoded)
	}
	c.rtt.backoff()
	c.armRTOAt(c.rtt.RTO())
}

func (c *Conn) onAck(ackNum uint32, window uint16) {
	c.rwnd = uint32(window)

	if seqGreater(ackNum, c.sndUna) {
		removed, freed := c.sendQ.ackTo(ackNum)
		c.sndUna = ackNum
		now := time.Now()
		for _, seg := range removed {
			if !seg.retransmitted && !seg.probe {
				c.rtt.sample(now.Sub(seg.firstSent))
			}
		}
		if freed > 0 {
			if c.cong.onNewAck(freed, c.sndUna) {
				// Partial ACK during fast recovery: retransmit the
				// segment immediately following sndUna (the next
				// hole), per RFC 3782 step 4 / spec.md §4.1.
				if seg := c.sendQ.firstUnacked(); seg != nil {
					seg.retransmitted = true
					seg.lastSent = now
					_, _ = c.sock.Write(seg.encoded)
				}
			}
		}
		c.rtoFires = 0
		if c.sendQ.empty() {
			stopTimer(c.rtoTimer)
			c.rtoArmed = false
		} else {
			c.armRTOAt(c.rtt.RTO())
		}
		if c.rwnd > 0 && c.persistArmed {
			stopTimer(c.persistTimer)
			c.persistArmed = false
		}
		c.checkFinAcked(ackNum)
		c.trySend()
	} else if ackNum == c.sndUna {
		if c.cong.onDupAck(c.sendQ.flightBytes(), c.sndNxt) {
			seg := c.sendQ.firstUnacked()
			if seg != nil {
				seg.retransmitted = true
				seg.lastSent = time.Now()
				_, _ = c.sock.Write(seg.encoded)
			}
		}
	}

	if c.rwnd == 0 && !c.sendQ.empty() && !c.persistArmed {
		c.armPersist()
	}
}

func (c *Conn) checkFinAcked(ackNum uint32) {
	if !c.finSent || !seqGreaterEq(ackNum, c.finSeq+1) {
		return
	}
	switch c.state {
	case StateFinWait:
		if c.peerFin {
			c.enterTimeWait()
		}
	case StateClosing:
		c.enterTimeWait()
	case StateLastAck:
		c.teardown(nil)
	}
}

func (c *Conn) onData(seq uint32, payload []byte) {
	if seqLess(seq, c.rcvNext) {
		c.scheduleAck(false)
		return
	}
	if seq == c.rcvNext {
		c.rcvNext += uint32(len(payload))
		more, newNext := c.recvQ.drainContiguous(c.rcvNext)
		c.rcvNext = newNext
		buf := payload
		if len(more) > 0 {
			buf = append(append([]byte(nil), payload...), more...)
		}
		c.deliverReadable(buf)
		c.scheduleAck(false)
		return
	}
	c.recvQ.insert(seq, payload)
	sack := seq
	c.pendingSack = &sack
	c.scheduleAck(true)
}

func (c *Conn) onFin(seq uint32) {
	if c.peerFin || seq != c.rcvNext {
		return
	}
	c.peerFin = true
	c.rcvNext++
	c.scheduleAck(true)

	switch c.state {
	case StateEstablished:
		c.state = StateCloseWait
		c.setReadErr(io.EOF)
	case StateFinWait:
		if seqGreaterEq(c.sndUna, c.finSeq+1) {
			c.enterTimeWait()
		} else {
			c.state = StateClosing
		}
	}
}

func (c *Conn) enterTimeWait() {
	c.state = StateTimeWait
	resetTimer(c.timeWaitTimer, 2*c.cfg.MSL)
}

func (c *Conn) handleCloseRequest(req closeReq) {
	if req.graceful {
		c.finSeq = c.sndNxt
		pkt := Packet{Seq: c.finSeq, Ack: c.rcvNext, Flags: FlagACK | FlagFIN, Window: uint16(c.availableRecvWindow())}
		encoded := pkt.Encode()
		now := time.Now()
		c.sendQ.push(&outSegment{seq: c.finSeq, payloadLen: 1, encoded: encoded, firstSent: now, lastSent: now})
		c.sndNxt++
		c.finSent = true
		_, _ = c.sock.Write(encoded)
		if !c.rtoArmed {
			c.armRTOAt(c.rtt.RTO())
		}
		switch c.state {
		case StateEstablished:
			c.state = StateFinWait
		case StateCloseWait:
			c.state = StateLastAck
		}
		req.result <- nil
		return
	}

	if !c.sendQ.empty() || len(c.pendingWrite) > 0 {
		rst := Packet{Seq: c.sndNxt, Flags: FlagRST}
		_, _ = c.sock.Write(rst.Encode())
	}
	c.teardown(nil)
	req.result <- nil
}

func (c *Conn) onHouseKeeping() {
	if c.state != StateEstablished {
		return
	}
	idle := time.Since(c.lastRecv)
	if idle >= c.cfg.KeepaliveDead {
		c.teardown(perr.New(perr.IdleTimeout, fmt.Errorf("no packet received for %s", idle)))
		return
	}
	if idle >= c.cfg.KeepaliveIdle {
		if !c.keepaliveSent {
			c.writeRaw(Packet{Seq: c.sndNxt, Ack: c.rcvNext, Flags: FlagACK, Window: uint16(c.availableRecvWindow())})
			c.keepaliveSent = true
		}
	}
}

func (c *Conn) armPersist() {
	c.persistRTO = c.rtt.RTO()
	resetTimer(c.persistTimer, c.persistRTO)
	c.persistArmed = true
}

func (c *Conn) sendPersistProbe() {
	if c.rwnd != 0 {
		return
	}
	seq := c.sndNxt
	pkt := Packet{Seq: seq, Ack: c.rcvNext, Flags: FlagACK, Window: uint16(c.availableRecvWindow()), Payload: []byte{0}}
	encoded := pkt.Encode()
	now := time.Now()
	c.sendQ.push(&outSegment{seq: seq, payloadLen: 1, encoded: encoded, firstSent: now, lastSent: now, probe: true})
	c.sndNxt++
	_, _ = c.sock.Write(encoded)

	c.persistRTO *= 2
	if c.persistRTO > c.cfg.PersistCap {
		c.persistRTO = c.cfg.PersistCap
	}
	resetTimer(c.persistTimer, c.persistRTO)
	c.persistArmed = true
}

func (c *Conn) scheduleAck(immediate bool) {
	c.unackedSinceAck++
	if immediate || c.unackedSinceAck >= 2 {
		c.sendAckNow()
		return
	}
	if !c.ackArmed {
		resetTimer(c.ackTimer, c.cfg.AckDelay)
		c.ackArmed = true
	}
}

func (c *Conn) sendAckNow() {
	stopTimer(c.ackTimer)
	c.ackArmed = false
	c.unackedSinceAck = 0
	pkt := Packet{Seq: c.sndNxt, Ack: c.rcvNext, Flags: FlagACK, Window: uint16(c.availableRecvWindow())}
	if c.pendingSack != nil {
		pkt.Flags |= FlagSACK
		pkt.SackSeq = *c.pendingSack
		c.pendingSack = nil
	}
	c.writeRaw(pkt)
}

// trySend segments pendingWrite into MSS-sized packets, bounded by
// min(cwnd, rwnd), per spec.md §4.1.
func (c *Conn) trySend() {
	if c.state != StateEstablished && c.state != StateCloseWait {
		return
	}
	for len(c.pendingWrite) > 0 {
		win := c.cong.window()
		if c.rwnd < win {
			win = c.rwnd
		}
		flight := uint32(c.sendQ.flightBytes())
		if flight >= win {
			break
		}
		room := win - flight
		chunkLen := c.cfg.MSS
		if uint32(len(c.pendingWrite)) < chunkLen {
			chunkLen = uint32(len(c.pendingWrite))
		}
		if chunkLen > room {
			chunkLen = room
		}
		if chunkLen == 0 {
			break
		}
		payload := c.pendingWrite[:chunkLen]
		c.pendingWrite = c.pendingWrite[chunkLen:]

		seq := c.sndNxt
		pkt := Packet{Seq: seq, Ack: c.rcvNext, Flags: FlagACK, Window: uint16(c.availableRecvWindow()), Payload: payload}
		encoded := pkt.Encode()
		now := time.Now()
		c.sendQ.push(&outSegment{seq: seq, payloadLen: len(payload), encoded: encoded, firstSent: now, lastSent: now})
		c.sndNxt += uint32(len(payload))
		_, _ = c.sock.Write(encoded)
		if !c.rtoArmed {
			c.armRTOAt(c.rtt.RTO())
		}
	}
	if len(c.pendingWrite) < int(c.cfg.MSS) {
		c.delegate.CanAcceptBytes()
	}
}

func (c *Conn) armRTOAt(d time.Duration) {
	resetTimer(c.rtoTimer, d)
	c.rtoArmed = true
}

// availableRecvWindow reports the window this side can currently accept,
// accounting for bytes already delivered but not yet consumed by Read.
func (c *Conn) availableRecvWindow() uint32 {
	c.mu.Lock()
	used := len(c.readBuf)
	c.mu.Unlock()
	if uint32(used) >= c.cfg.RecvWindow {
		return 0
	}
	avail := c.cfg.RecvWindow - uint32(used)
	if avail > 0xFFFF {
		avail = 0xFFFF
	}
	return avail
}

func (c *Conn) deliverReadable(data []byte) {
	if len(data) == 0 {
		return
	}
	c.mu.Lock()
	c.readBuf = append(c.readBuf, data...)
	c.mu.Unlock()
	c.cond.Broadcast()
	c.delegate.HasBytesAvailable()
}

func (c *Conn) setReadErr(err error) {
	c.mu.Lock()
	if c.readErr == nil {
		c.readErr = err
	}
	c.mu.Unlock()
	c.cond.Broadcast()
}

// teardown is the single path to a terminated connection: it stops every
// timer, closes the socket, releases any blocked Read, and fires WillClose
// exactly once. Idempotent.
func (c *Conn) teardown(err error) {
	if c.terminal {
		return
	}
	c.terminal = true
	c.state = StateClosed
	stopTimer(c.ackTimer)
	stopTimer(c.rtoTimer)
	stopTimer(c.persistTimer)
	stopTimer(c.timeWaitTimer)
	_ = c.sock.Close()
	if err != nil {
		c.setReadErr(err)
	} else {
		c.setReadErr(io.EOF)
	}
	c.delegate.WillClose(err)
}

func stopTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
}

func resetTimer(t *time.Timer, d time.Duration) {
	stopTimer(t)
	t.Reset(d)
}
