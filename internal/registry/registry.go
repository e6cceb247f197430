// Package registry implements the subscription and receipt tables the
// connection supervisor routes inbound frames through. A Registry is
// the library's single coordinating primitive: every mutation is a
// short insert/lookup/remove under one mutex, and no I/O ever happens
// while it is held.
package registry

import (
	"sort"
	"sync"

	"github.com/flowmq/stomp-go/internal/frame"
)

// Subscription is a live subscription entry. Extra is preserved
// verbatim so Replay can reproduce the original SUBSCRIBE frame after
// a reconnect.
type Subscription struct {
	ID          string
	Destination string
	Ack         string
	Extra       []frame.Header
	Deliver     chan frame.Frame

	order int
}

// Registry holds the subscription table and the receipt waiter table
// behind one mutex.
type Registry struct {
	mu      sync.Mutex
	subs    map[string]*Subscription
	waiters map[string]chan ReceiptResult
	nextSeq int
}

// ReceiptResult is delivered to a receipt waiter at most once: Err is
// nil on a resolved RECEIPT, non-nil on failure (disconnect, close, or
// a server ERROR carrying the receipt id).
type ReceiptResult struct {
	Err error
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{
		subs:    make(map[string]*Subscription),
		waiters: make(map[string]chan ReceiptResult),
	}
}

// AddSubscription inserts a new subscription entry. The caller is
// responsible for writing the SUBSCRIBE frame; AddSubscription only
// updates bookkeeping.
func (r *Registry) AddSubscription(sub *Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub.order = r.nextSeq
	r.nextSeq++
	r.subs[sub.ID] = sub
}

// RemoveSubscription deletes the entry and returns it (closing its
// Deliver channel is the caller's job, done outside the lock).
func (r *Registry) RemoveSubscription(id string) (*Subscription, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.subs[id]
	if ok {
		delete(r.subs, id)
	}
	return sub, ok
}

// DispatchMessage routes a MESSAGE frame to the subscription named by
// its "subscription" header. Returns false if no such subscription
// exists (race with Unsubscribe) or the frame lacks the header — the
// caller drops the frame in that case,.
func (r *Registry) DispatchMessage(f frame.Frame) (chan frame.Frame, bool) {
	id, ok := f.Get("subscription")
	if !ok {
		return nil, false
	}
	r.mu.Lock()
	sub, ok := r.subs[id]
	r.mu.Unlock()
	if !ok {
		return nil, false
	}
	return sub.Deliver, true
}

// Replay returns a SUBSCRIBE frame for every live subscription, in
// the order they were originally created — what the supervisor
// writes after a successful reconnect.
func (r *Registry) Replay() []frame.Frame {
	r.mu.Lock()
	subs := make([]*Subscription, 0, len(r.subs))
	for _, s := range r.subs {
		subs = append(subs, s)
	}
	r.mu.Unlock()

	sort.Slice(subs, func(i, j int) bool { return subs[i].order < subs[j].order })

	frames := make([]frame.Frame, 0, len(subs))
	for _, s := range subs {
		b := frame.New("SUBSCRIBE").
			Append("destination", s.Destination).
			Append("id", s.ID).
			Append("ack", s.Ack)
		for _, h := range s.Extra {
			b.Append(h.Name, h.Value)
		}
		frames = append(frames, b.Build())
	}
	return frames
}

// AddWaiter registers a one-shot receipt waiter before the frame
// carrying the receipt header is written. The returned channel
// receives at most one value: a nil Err on success (RECEIPT observed),
// or an error (disconnected / closed / server ERROR). A waiter removed
// with RemoveWaiter, as on a timeout, receives nothing.
func (r *Registry) AddWaiter(receiptID string) chan ReceiptResult {
	ch := make(chan ReceiptResult, 1)
	r.mu.Lock()
	r.waiters[receiptID] = ch
	r.mu.Unlock()
	return ch
}

// RemoveWaiter deletes a waiter without resolving it — used when the
// caller gives up (e.g. cancels its own wait) and doesn't want a
// late-arriving RECEIPT to write to a channel nobody reads anymore.
func (r *Registry) RemoveWaiter(receiptID string) {
	r.mu.Lock()
	delete(r.waiters, receiptID)
	r.mu.Unlock()
}

// ResolveReceipt completes the waiter for receiptID with a nil error.
// Returns false if there is no such waiter, in which case the caller
// just drops the RECEIPT.
func (r *Registry) ResolveReceipt(receiptID string) bool {
	return r.completeWaiter(receiptID, nil)
}

// FailReceipt completes the waiter for receiptID with err. Used when
// an ERROR frame carries a matching receipt-id.
func (r *Registry) FailReceipt(receiptID string, err error) bool {
	return r.completeWaiter(receiptID, err)
}

func (r *Registry) completeWaiter(receiptID string, err error) bool {
	r.mu.Lock()
	ch, ok := r.waiters[receiptID]
	if ok {
		delete(r.waiters, receiptID)
	}
	r.mu.Unlock()
	if !ok {
		return false
	}
	ch <- ReceiptResult{Err: err}
	return true
}

// FailAllWaiters completes every outstanding receipt waiter with err
// and clears the table — used on reconnect (waiters for frames that
// will never be acknowledged by the dropped session) and on Close.
func (r *Registry) FailAllWaiters(err error) {
	r.mu.Lock()
	waiters := r.waiters
	r.waiters = make(map[string]chan ReceiptResult)
	r.mu.Unlock()
	for _, ch := range waiters {
		ch <- ReceiptResult{Err: err}
	}
}

// FailAllSubscriptions closes every subscription's Deliver channel
// and clears the table — used on permanent Close only; a transient
// reconnect must NOT call this, since live subscriptions are replayed
// rather than torn down.
func (r *Registry) FailAllSubscriptions() {
	r.mu.Lock()
	subs := r.subs
	r.subs = make(map[string]*Subscription)
	r.mu.Unlock()
	for _, s := range subs {
		close(s.Deliver)
	}
}

// ErrReceiptResult unwraps the result channel's value into a plain
// error, nil meaning success.
func ErrReceiptResult(res ReceiptResult) error { return res.Err }
