// Package heartbeat implements STOMP 1.2 heart-beat negotiation and
// the two idle timers (send ticker, receive watchdog) that depend on
// it.
package heartbeat

import "time"

// Grace is the multiplier applied to the negotiated receive interval
// before the watchdog considers the connection lost. STOMP brokers
// commonly jitter their heartbeat cadence, so the watchdog must
// tolerate more than one missed beat's worth of slack.
const Grace = 1.5

// Pair is a negotiated (send, receive) heartbeat interval pair. Zero
// means disabled.
type Pair struct {
	Send time.Duration
	Recv time.Duration
}

// Negotiate computes the negotiated send/receive intervals from the
// client's advertised (cx, cy) and the server's advertised (sx, sy):
// zero if either side opts out, else the max of the two non-zero
// commitments.
func Negotiate(clientCx, clientCy, serverSx, serverSy time.Duration) Pair {
	var p Pair
	if clientCx != 0 && serverSy != 0 {
		p.Send = maxDuration(clientCx, serverSy)
	}
	if clientCy != 0 && serverSx != 0 {
		p.Recv = maxDuration(clientCy, serverSx)
	}
	return p
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}

// Clock drives the send ticker and receive watchdog for one
// connection's lifetime. It is not safe for concurrent use; the
// connection supervisor's single processing loop owns it.
type Clock struct {
	pair Pair

	sendTimer *time.Timer
	recvTimer *time.Timer
}

// NewClock creates a Clock for the negotiated pair and arms both
// timers (a zero interval leaves its timer nil / permanently
// disabled).
func NewClock(pair Pair) *Clock {
	c := &Clock{pair: pair}
	if pair.Send > 0 {
		c.sendTimer = time.NewTimer(pair.Send)
	}
	if pair.Recv > 0 {
		c.recvTimer = time.NewTimer(time.Duration(float64(pair.Recv) * Grace))
	}
	return c
}

// SendC fires when send_interval has elapsed since the last
// ResetSend; nil (blocks forever in a select) when sending is
// disabled.
func (c *Clock) SendC() <-chan time.Time {
	if c.sendTimer == nil {
		return nil
	}
	return c.sendTimer.C
}

// RecvTimeoutC fires when recv_interval*Grace has elapsed since the
// last ResetRecv; nil when the receive watchdog is disabled.
func (c *Clock) RecvTimeoutC() <-chan time.Time {
	if c.recvTimer == nil {
		return nil
	}
	return c.recvTimer.C
}

// ResetSend is called after every outbound write (real frame or
// heartbeat) to push the send timer back out.
func (c *Clock) ResetSend() {
	if c.sendTimer == nil {
		return
	}
	if !c.sendTimer.Stop() {
		drain(c.sendTimer.C)
	}
	c.sendTimer.Reset(c.pair.Send)
}

// ResetRecv is called after every inbound read (real frame or
// heartbeat) to push the receive watchdog back out.
func (c *Clock) ResetRecv() {
	if c.recvTimer == nil {
		return
	}
	if !c.recvTimer.Stop() {
		drain(c.recvTimer.C)
	}
	c.recvTimer.Reset(time.Duration(float64(c.pair.Recv) * Grace))
}

// Stop releases both timers. Safe to call on a disabled Clock.
func (c *Clock) Stop() {
	if c.sendTimer != nil {
		c.sendTimer.Stop()
	}
	if c.recvTimer != nil {
		c.recvTimer.Stop()
	}
}

func drain(ch <-chan time.Time) {
	select {
	case <-ch:
	default:
	}
}
