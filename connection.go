package stomp

import (
	"context"
	"crypto/tls"
	"net"
	"sync/atomic"
	"time"

	"github.com/flowmq/stomp-go/internal/backoff"
	"github.com/flowmq/stomp-go/internal/frame"
	"github.com/flowmq/stomp-go/internal/heartbeat"
	"github.com/flowmq/stomp-go/internal/registry"
	"github.com/flowmq/stomp-go/internal/wireid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Received is one frame delivered on the handle's inbound stream:
// either an ordinary server-origin command or an ERROR frame,
// distinguished by IsServerError rather than by failing the handle.
type Received struct {
	Frame         frame.Frame
	IsServerError bool
}

// AsError returns the Received value as an error when it carries a
// server ERROR frame, nil otherwise.
func (r Received) AsError() error {
	if !r.IsServerError {
		return nil
	}
	return &ServerError{Frame: r.Frame}
}

// outboundFrame is one entry on the command channel. done, if set, is
// closed by serveConnection right after the frame is written to the
// wire — used by close() to know the DISCONNECT actually went out
// before tearing the connection down, not just that it was queued.
type outboundFrame struct {
	f    frame.Frame
	done chan struct{}
}

// supervisor owns the transport for one logical connection's lifetime:
// it dials, handshakes, runs the read/write/heartbeat loop, and
// reconnects with stability-aware backoff on an unexpected drop. All
// handle clones share one supervisor.
type supervisor struct {
	addr     string
	opts     Options
	dialOpts DialOptions

	reg    *registry.Registry
	subIDs *wireid.Subscriptions

	cmdCh   chan outboundFrame
	unsubCh chan string

	received chan Received

	ctx    context.Context
	cancel context.CancelFunc

	logger *zap.Logger
	seq    *backoff.Sequence

	refcount atomic.Int64
	runDone  chan struct{}
}

func newSupervisor(addr string, opts Options, dial DialOptions) *supervisor {
	ctx, cancel := context.WithCancel(context.Background())
	return &supervisor{
		addr:     addr,
		opts:     opts,
		dialOpts: dial,
		reg:      registry.New(),
		subIDs:   &wireid.Subscriptions{},
		cmdCh:    make(chan outboundFrame, opts.CommandQueueSize),
		unsubCh:  make(chan string, opts.CommandQueueSize),
		received: make(chan Received, 16),
		ctx:      ctx,
		cancel:   cancel,
		logger:   opts.Logger,
		seq:      backoff.NewSequence(),
		runDone:  make(chan struct{}),
	}
}

// enqueue writes f to the outbound command channel, blocking while it
// is full (backpressure) until ctx is cancelled or the supervisor
// itself is closed.
func (s *supervisor) enqueue(ctx context.Context, f frame.Frame) error {
	select {
	case s.cmdCh <- outboundFrame{f: f}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.ctx.Done():
		return ErrClosed
	}
}

// requestUnsubscribe asks the single processing loop (the same
// goroutine that dispatches inbound MESSAGE frames) to remove and
// close a subscription. Routing this through the loop instead of
// closing sub.Deliver directly from the caller's goroutine is what
// prevents a send-on-closed-channel panic: dispatch's "look up the
// channel, then send" can't race a concurrent close once both steps
// happen on the same goroutine.
func (s *supervisor) requestUnsubscribe(id string) {
	select {
	case s.unsubCh <- id:
	case <-s.ctx.Done():
	}
}

// connectOnce dials the transport and performs the CONNECT/CONNECTED
// handshake once. It returns ErrServerRejected (wrapped in
// *RejectedError) on a handshake-time ERROR, ErrHandshakeTimeout on a
// timeout, and ErrProtocol on any other unexpected response.
func (s *supervisor) connectOnce(ctx context.Context) (net.Conn, heartbeat.Pair, error) {
	conn, err := s.dialOpts.Dial("tcp", s.addr)
	if err != nil {
		return nil, heartbeat.Pair{}, errors.Wrap(ErrTransport, err.Error())
	}

	if s.dialOpts.TLSConfig != nil {
		tlsConn := tls.Client(conn, s.dialOpts.TLSConfig)
		if err := tlsHandshake(tlsConn, s.dialOpts.TLSHandshakeTimeout); err != nil {
			conn.Close()
			return nil, heartbeat.Pair{}, errors.Wrap(ErrTransport, err.Error())
		}
		conn = tlsConn
	}

	if err := frame.Encode(conn, s.opts.connectFrame()); err != nil {
		conn.Close()
		return nil, heartbeat.Pair{}, errors.Wrap(ErrTransport, err.Error())
	}

	deadline := time.Now().Add(s.opts.HandshakeTimeout)
	conn.SetReadDeadline(deadline)
	f, err := readOneFrame(conn)
	conn.SetReadDeadline(time.Time{})
	if err != nil {
		conn.Close()
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil, heartbeat.Pair{}, ErrHandshakeTimeout
		}
		if errors.Cause(err) == ErrProtocol {
			return nil, heartbeat.Pair{}, err
		}
		return nil, heartbeat.Pair{}, errors.Wrap(ErrTransport, err.Error())
	}

	switch f.Command {
	case "CONNECTED":
		var sx, sy time.Duration
		if hb, ok := f.Get("heart-beat"); ok {
			sx, sy, err = parseHeartbeatHeader(hb)
			if err != nil {
				conn.Close()
				return nil, heartbeat.Pair{}, err
			}
		}
		pair := heartbeat.Negotiate(s.opts.HeartbeatSend, s.opts.HeartbeatRecv, sx, sy)
		return conn, pair, nil
	case "ERROR":
		conn.Close()
		return nil, heartbeat.Pair{}, &RejectedError{Frame: f}
	default:
		conn.Close()
		return nil, heartbeat.Pair{}, errors.Wrapf(ErrProtocol, "unexpected frame %q during handshake", f.Command)
	}
}

// tlsHandshake runs conn's handshake, optionally bounded by timeout.
func tlsHandshake(conn *tls.Conn, timeout time.Duration) error {
	errc := make(chan error, 1)
	var timer *time.Timer
	if timeout > 0 {
		timer = time.AfterFunc(timeout, func() {
			errc <- errors.New("stomp: tls handshake timed out")
		})
	}
	go func() {
		err := conn.Handshake()
		if timer != nil {
			timer.Stop()
		}
		select {
		case errc <- err:
		default:
		}
	}()
	return <-errc
}

// readOneFrame blocks until a single non-heartbeat frame arrives on
// conn, or a read error (including a deadline timeout) occurs. Used
// only for the handshake, where exactly one reply is expected.
func readOneFrame(conn net.Conn) (frame.Frame, error) {
	c := frame.NewCodec()
	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			c.Feed(buf[:n])
			for {
				f, ok, perr := c.Next()
				if perr != nil {
					return frame.Frame{}, perr
				}
				if !ok {
					break
				}
				if frame.IsHeartbeat(f) {
					continue
				}
				return f, nil
			}
		}
		if err != nil {
			return frame.Frame{}, err
		}
	}
}

// run drives the supervisor for its entire lifetime: serve the
// already-established first connection, then on any unexpected drop,
// wait out the stability-aware backoff and reconnect, replaying
// subscriptions each time, until Close cancels the context.
func (s *supervisor) run(conn net.Conn, pair heartbeat.Pair) {
	defer close(s.runDone)

	for {
		connectedAt := time.Now()
		err := s.serveConnection(conn, pair)
		if s.ctx.Err() != nil {
			return
		}

		stable := time.Since(connectedAt) >= s.seq.StabilityThreshold()
		if stable {
			s.seq.NoteStableDisconnect()
		} else {
			s.seq.NoteFailure()
		}
		s.logger.Warn("stomp: connection lost, will reconnect", zap.Error(err), zap.Duration("backoff", s.seq.Current()))
		s.reg.FailAllWaiters(ErrDisconnected)

		conn, pair, err = s.reconnectLoop()
		if err != nil {
			// context was cancelled during the reconnect loop.
			return
		}
	}
}

// reconnectLoop retries connectOnce with the backoff sequence until
// it succeeds or the supervisor is closed. On success it writes the
// replayed SUBSCRIBE frames before returning, so they reach the wire
// ahead of anything already queued on cmdCh.
func (s *supervisor) reconnectLoop() (net.Conn, heartbeat.Pair, error) {
	for {
		select {
		case <-time.After(s.seq.Current()):
		case <-s.ctx.Done():
			return nil, heartbeat.Pair{}, s.ctx.Err()
		}

		conn, pair, err := s.connectOnce(s.ctx)
		if err != nil {
			if s.ctx.Err() != nil {
				return nil, heartbeat.Pair{}, s.ctx.Err()
			}
			s.seq.NoteFailure()
			s.logger.Warn("stomp: reconnect attempt failed", zap.Error(err), zap.Duration("backoff", s.seq.Current()))
			continue
		}

		ok := true
		for _, rf := range s.reg.Replay() {
			if werr := frame.Encode(conn, rf); werr != nil {
				ok = false
				break
			}
		}
		if !ok {
			conn.Close()
			s.seq.NoteFailure()
			continue
		}
		s.logger.Info("stomp: reconnected")
		return conn, pair, nil
	}
}

// serveConnection owns conn for as long as it stays healthy: a
// dedicated reader goroutine feeds raw bytes to a channel (since
// net.Conn.Read blocks), and this goroutine's single select loop
// decodes, dispatches, writes queued commands, and drives the
// heartbeat clock — the same single-processing-loop shape as the
// read/write/timer select in a classic STOMP connection handler.
func (s *supervisor) serveConnection(conn net.Conn, pair heartbeat.Pair) error {
	defer conn.Close()

	// sessionDone is closed whenever this call returns, for any reason
	// (transport error, watchdog, or ctx cancellation). The reader
	// goroutine below only ever knows about s.ctx, which stays open
	// across reconnects — without sessionDone, a reader blocked on
	// "rawCh <- chunk" after a non-ctx exit (e.g. the watchdog case)
	// would leak until the whole supervisor is finally closed.
	sessionDone := make(chan struct{})
	defer close(sessionDone)

	clock := heartbeat.NewClock(pair)
	defer clock.Stop()

	rawCh := make(chan []byte, 4)
	errCh := make(chan error, 1)
	go func() {
		buf := make([]byte, 4096)
		for {
			n, err := conn.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				select {
				case rawCh <- chunk:
				case <-sessionDone:
					return
				case <-s.ctx.Done():
					return
				}
			}
			if err != nil {
				select {
				case errCh <- err:
				default:
				}
				return
			}
		}
	}()

	codec := frame.NewCodec()
	for {
		select {
		case chunk := <-rawCh:
			codec.Feed(chunk)
			for {
				f, ok, perr := codec.Next()
				if perr != nil {
					return perr
				}
				if !ok {
					break
				}
				clock.ResetRecv()
				if frame.IsHeartbeat(f) {
					continue
				}
				s.dispatch(f)
			}

		case err := <-errCh:
			return errors.Wrap(ErrTransport, err.Error())

		case id := <-s.unsubCh:
			if sub, ok := s.reg.RemoveSubscription(id); ok {
				close(sub.Deliver)
			}

		case cmd := <-s.cmdCh:
			if err := frame.Encode(conn, cmd.f); err != nil {
				return errors.Wrap(ErrTransport, err.Error())
			}
			clock.ResetSend()
			if cmd.done != nil {
				close(cmd.done)
			}

		case <-clock.SendC():
			if err := frame.Encode(conn, frame.Frame{}); err != nil {
				return errors.Wrap(ErrTransport, err.Error())
			}
			clock.ResetSend()

		case <-clock.RecvTimeoutC():
			return errRecvWatchdog

		case <-s.ctx.Done():
			return nil
		}
	}
}

var errRecvWatchdog = errors.New("stomp: heartbeat receive watchdog fired")

// dispatch routes one post-handshake inbound frame to the registry or
// the inbound stream, depending on its command.
func (s *supervisor) dispatch(f frame.Frame) {
	switch f.Command {
	case "MESSAGE":
		if ch, ok := s.reg.DispatchMessage(f); ok {
			select {
			case ch <- f:
			case <-s.ctx.Done():
			}
		}
		// No matching subscription: it was already unsubscribed. Drop.
		// Safe because unsubscribe removal runs on this same goroutine
		// (see requestUnsubscribe/unsubCh), so this lookup can never
		// race a concurrent close of the channel it would send to.

	case "RECEIPT":
		if id, ok := f.Get("receipt-id"); ok {
			s.reg.ResolveReceipt(id)
		}
		// No matching waiter: drop.

	case "ERROR":
		if id, ok := f.Get("receipt-id"); ok {
			s.reg.FailReceipt(id, &ServerError{Frame: f})
		}
		s.deliverReceived(Received{Frame: f, IsServerError: true})

	default:
		s.deliverReceived(Received{Frame: f})
	}
}

func (s *supervisor) deliverReceived(r Received) {
	select {
	case s.received <- r:
	case <-s.ctx.Done():
	}
}

// sendAwaitingReceipt registers a receipt waiter, enqueues f (which
// must already carry the matching "receipt" header), and blocks for
// either the RECEIPT, a timeout (timeout <= 0 means no timeout), or
// ctx cancellation.
func (s *supervisor) sendAwaitingReceipt(ctx context.Context, f frame.Frame, receiptID string, timeout time.Duration) error {
	ch := s.reg.AddWaiter(receiptID)

	select {
	case s.cmdCh <- outboundFrame{f: f}:
	case <-ctx.Done():
		s.reg.RemoveWaiter(receiptID)
		return ctx.Err()
	case <-s.ctx.Done():
		s.reg.RemoveWaiter(receiptID)
		return ErrClosed
	}

	var timeoutC <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutC = timer.C
	}

	select {
	case res := <-ch:
		return registry.ErrReceiptResult(res)
	case <-timeoutC:
		s.reg.RemoveWaiter(receiptID)
		return &ReceiptTimeoutError{ReceiptID: receiptID, Elapsed: timeout}
	case <-ctx.Done():
		s.reg.RemoveWaiter(receiptID)
		return ctx.Err()
	case <-s.ctx.Done():
		s.reg.RemoveWaiter(receiptID)
		return ErrClosed
	}
}

// disconnectFlushTimeout bounds how long close() waits for the
// DISCONNECT frame to actually reach the wire before giving up and
// proceeding to unconditional shutdown. Separate from
// CloseOptions.ConfirmTimeout, which bounds waiting for the broker's
// RECEIPT of that DISCONNECT, not the local write.
const disconnectFlushTimeout = 2 * time.Second

// close sends a best-effort DISCONNECT (with a receipt if
// opts.ConfirmTimeout > 0), gives it a bounded chance to actually be
// written before cancelling the connection, waits briefly for the
// receipt if requested, then unconditionally shuts down the
// supervisor and fails every outstanding subscription and waiter.
func (s *supervisor) close(opts CloseOptions) {
	var receiptID string
	var waitReceipt func()
	if opts.ConfirmTimeout > 0 {
		receiptID = wireid.Receipt()
		ch := s.reg.AddWaiter(receiptID)
		waitReceipt = func() {
			select {
			case <-ch:
			case <-time.After(opts.ConfirmTimeout):
			}
		}
	}

	sent := make(chan struct{})
	select {
	case s.cmdCh <- outboundFrame{f: disconnectFrame(receiptID), done: sent}:
		select {
		case <-sent:
		case <-time.After(disconnectFlushTimeout):
			// Queued but never written (e.g. the connection dropped
			// mid-flush) — proceed to shutdown rather than block.
		}
	case <-time.After(disconnectFlushTimeout):
		// Never even queued (no active connection, or cmdCh is full) —
		// proceed to shutdown rather than block indefinitely.
	}

	if waitReceipt != nil {
		waitReceipt()
		s.reg.RemoveWaiter(receiptID)
	}

	s.cancel()
	<-s.runDone

	s.reg.FailAllWaiters(ErrClosed)
	s.reg.FailAllSubscriptions()
}
