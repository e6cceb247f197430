package heartbeat

import (
	"testing"
	"time"
)

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

func TestNegotiate(t *testing.T) {
	cases := []struct {
		name                   string
		cx, cy, sx, sy         int
		wantSend, wantRecv int
	}{
		{"both sides willing", 10000, 10000, 5000, 20000, 20000, 10000},
		{"client disables send, server disables recv", 0, 10000, 5000, 0, 0, 10000},
		{"fully disabled", 0, 0, 0, 0, 0, 0},
		{"server fully willing, client fully willing", 1000, 2000, 3000, 4000, 4000, 3000},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := Negotiate(ms(c.cx), ms(c.cy), ms(c.sx), ms(c.sy))
			if got.Send != ms(c.wantSend) || got.Recv != ms(c.wantRecv) {
				t.Fatalf("Negotiate(%d,%d,%d,%d) = %+v, want send=%d recv=%d",
					c.cx, c.cy, c.sx, c.sy, got, c.wantSend, c.wantRecv)
			}
		})
	}
}

func TestClockSendFiresAfterIdleInterval(t *testing.T) {
	c := NewClock(Pair{Send: 20 * time.Millisecond})
	defer c.Stop()

	select {
	case <-c.SendC():
	case <-time.After(200 * time.Millisecond):
		t.Fatal("send timer never fired")
	}
}

func TestClockResetSendPostponesFiring(t *testing.T) {
	c := NewClock(Pair{Send: 40 * time.Millisecond})
	defer c.Stop()

	deadline := time.Now().Add(150 * time.Millisecond)
	for time.Now().Before(deadline) {
		time.Sleep(15 * time.Millisecond)
		c.ResetSend()
	}
	select {
	case <-c.SendC():
		t.Fatal("send timer fired despite repeated resets")
	default:
	}
}

func TestClockDisabledIntervalNeverFires(t *testing.T) {
	c := NewClock(Pair{})
	defer c.Stop()
	if c.SendC() != nil || c.RecvTimeoutC() != nil {
		t.Fatal("expected both channels nil when both intervals are zero")
	}
}
