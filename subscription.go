package stomp

import (
	"context"
	"sync"

	"github.com/flowmq/stomp-go/internal/frame"
)

// Message is one delivered MESSAGE, with enough of its own ack id
// retained to acknowledge it without the caller tracking subscription
// state itself.
type Message struct {
	Destination string
	Headers     []frame.Header
	Body        []byte

	ack string
	sup *supervisor
}

// Get returns the first value of the named header, STOMP's
// first-occurrence-wins lookup rule.
func (m *Message) Get(name string) (string, bool) {
	for _, h := range m.Headers {
		if h.Name == name {
			return h.Value, true
		}
	}
	return "", false
}

// Ack acknowledges this message using the ack id observed on its
// MESSAGE frame.
func (m *Message) Ack(ctx context.Context) error {
	return m.sup.enqueue(ctx, ackFrame(m.ack, "", ""))
}

// Nack is Ack's negative counterpart.
func (m *Message) Nack(ctx context.Context) error {
	return m.sup.enqueue(ctx, nackFrame(m.ack, "", ""))
}

// Subscription is a live subscription's message stream. Dropping it
// without calling Unsubscribe leaks the registry entry until the
// connection closes; Unsubscribe is the normal way to end it early.
type Subscription struct {
	id  string
	sup *supervisor

	raw chan frame.Frame
	out chan *Message

	unsubOnce sync.Once
}

// pump translates raw MESSAGE frames into Message values, stopping
// when raw is closed (by Unsubscribe or by the connection's permanent
// shutdown).
func (s *Subscription) pump() {
	defer close(s.out)
	for f := range s.raw {
		msg := &Message{Headers: f.Headers, Body: f.Body, sup: s.sup}
		if d, ok := f.Get("destination"); ok {
			msg.Destination = d
		}
		if a, ok := f.Get("ack"); ok {
			msg.ack = a
		}
		s.out <- msg
	}
}

// Messages returns the channel of delivered messages. It closes when
// the subscription ends, whether by Unsubscribe or by the connection
// closing for good.
func (s *Subscription) Messages() <-chan *Message {
	return s.out
}

// Unsubscribe removes the subscription from the registry, closes the
// delivery channel, and writes UNSUBSCRIBE. Safe to call more than
// once; only the first call has any effect on local state.
//
// The removal itself is handed to the supervisor's single processing
// goroutine rather than done here: that goroutine is the same one
// that looks up and sends to Deliver when a MESSAGE arrives, so
// routing removal through it rules out closing Deliver while a send
// to it is in flight.
func (s *Subscription) Unsubscribe(ctx context.Context) error {
	s.unsubOnce.Do(func() {
		s.sup.requestUnsubscribe(s.id)
	})
	return s.sup.enqueue(ctx, unsubscribeFrame(s.id, ""))
}
