package stomp

import (
	"context"
	"testing"
	"time"

	"github.com/flowmq/stomp-go/internal/frame"
)

func TestTxCommitSendsBeginSendCommitInOrder(t *testing.T) {
	dial, serverCh := pipeDialOptions()
	received := make(chan frame.Frame, 8)
	brokerDone := make(chan struct{})
	go func() {
		defer close(brokerDone)
		b := newFakeBroker(<-serverCh)
		if _, err := b.readFrame(); err != nil {
			return
		}
		b.writeFrame(connectedFrame())
		for i := 0; i < 3; i++ {
			f, err := b.readFrame()
			if err != nil {
				return
			}
			received <- f
		}
		b.drain()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c, err := ConnectWithOptions(ctx, "broker:61613", testOptions(), dial)
	if err != nil {
		t.Fatalf("ConnectWithOptions: %v", err)
	}
	defer c.Close(CloseOptions{})

	tx, err := c.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := tx.Send(ctx, "/queue/a", nil, []byte("hi")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	var got []frame.Frame
	for i := 0; i < 3; i++ {
		select {
		case f := <-received:
			got = append(got, f)
		case <-time.After(2 * time.Second):
			t.Fatalf("only received %d of 3 frames", len(got))
		}
	}

	if got[0].Command != "BEGIN" {
		t.Fatalf("frame 0 = %s, want BEGIN", got[0].Command)
	}
	beginID, _ := got[0].Get("transaction")
	if beginID != tx.id {
		t.Fatalf("BEGIN transaction = %q, want %q", beginID, tx.id)
	}

	if got[1].Command != "SEND" {
		t.Fatalf("frame 1 = %s, want SEND", got[1].Command)
	}
	if sendTx, _ := got[1].Get("transaction"); sendTx != tx.id {
		t.Fatalf("SEND transaction = %q, want %q", sendTx, tx.id)
	}

	if got[2].Command != "COMMIT" {
		t.Fatalf("frame 2 = %s, want COMMIT", got[2].Command)
	}
	if commitTx, _ := got[2].Get("transaction"); commitTx != tx.id {
		t.Fatalf("COMMIT transaction = %q, want %q", commitTx, tx.id)
	}
}

func TestTxOperationsFailAfterCommit(t *testing.T) {
	dial, serverCh := pipeDialOptions()
	brokerDone := make(chan struct{})
	go func() {
		defer close(brokerDone)
		b := newFakeBroker(<-serverCh)
		if _, err := b.readFrame(); err != nil {
			return
		}
		b.writeFrame(connectedFrame())
		b.drain()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c, err := ConnectWithOptions(ctx, "broker:61613", testOptions(), dial)
	if err != nil {
		t.Fatalf("ConnectWithOptions: %v", err)
	}
	defer c.Close(CloseOptions{})

	tx, err := c.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("first Commit: %v", err)
	}

	if err := tx.Commit(ctx); err != ErrTxDone {
		t.Fatalf("second Commit = %v, want ErrTxDone", err)
	}
	if err := tx.Send(ctx, "/queue/a", nil, []byte("too late")); err != ErrTxDone {
		t.Fatalf("Send after commit = %v, want ErrTxDone", err)
	}
	if err := tx.Ack(ctx, "ack-1"); err != ErrTxDone {
		t.Fatalf("Ack after commit = %v, want ErrTxDone", err)
	}
	if err := tx.Nack(ctx, "ack-1"); err != ErrTxDone {
		t.Fatalf("Nack after commit = %v, want ErrTxDone", err)
	}
	// Abort after Commit is a documented no-op, not ErrTxDone.
	if err := tx.Abort(ctx); err != nil {
		t.Fatalf("Abort after commit = %v, want nil", err)
	}
}
