package stomp

import (
	"context"
	"sync"

	"github.com/flowmq/stomp-go/internal/frame"
	"github.com/pkg/errors"
)

// ErrTxDone is returned when a transaction is used after a commit or
// abort.
var ErrTxDone = errors.New("stomp: transaction has already been committed or aborted")

// Tx represents an ongoing STOMP transaction. All of its methods
// enqueue frames carrying the transaction's id; Commit and Abort are
// terminal.
type Tx struct {
	id  string
	sup *supervisor

	mu   sync.Mutex
	done bool
}

func (t *Tx) markDone() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	return true
}

func (t *Tx) isDone() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.done
}

// Commit commits the transaction.
func (t *Tx) Commit(ctx context.Context) error {
	if !t.markDone() {
		return ErrTxDone
	}
	return t.sup.enqueue(ctx, commitFrame(t.id, ""))
}

// Abort aborts the transaction. Unlike Commit, a second Abort (e.g.
// from a deferred cleanup after an explicit Commit) is a harmless
// no-op rather than ErrTxDone.
func (t *Tx) Abort(ctx context.Context) error {
	if !t.markDone() {
		return nil
	}
	return t.sup.enqueue(ctx, abortFrame(t.id, ""))
}

// Send sends a message as part of the transaction.
func (t *Tx) Send(ctx context.Context, destination string, headers []frame.Header, body []byte) error {
	if t.isDone() {
		return ErrTxDone
	}
	return t.sup.enqueue(ctx, txSendFrame(destination, headers, body, t.id, ""))
}

// Ack acknowledges a message as part of the transaction.
func (t *Tx) Ack(ctx context.Context, ackID string) error {
	if t.isDone() {
		return ErrTxDone
	}
	return t.sup.enqueue(ctx, ackFrame(ackID, t.id, ""))
}

// Nack is Ack's negative counterpart.
func (t *Tx) Nack(ctx context.Context, ackID string) error {
	if t.isDone() {
		return ErrTxDone
	}
	return t.sup.enqueue(ctx, nackFrame(ackID, t.id, ""))
}
