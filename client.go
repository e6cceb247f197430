package stomp

import (
	"context"
	"time"

	"github.com/flowmq/stomp-go/internal/frame"
	"github.com/flowmq/stomp-go/internal/registry"
	"github.com/flowmq/stomp-go/internal/wireid"
)

// Client is a cheaply cloneable, thread-safe handle onto one logical
// STOMP connection. Every clone shares the same supervisor; the
// connection is torn down only once the last clone is closed.
type Client struct {
	sup *supervisor
}

// Connect dials addr and performs the CONNECT/CONNECTED handshake
// using default options, then starts the background connection that
// keeps reconnecting until the returned handle is closed.
func Connect(ctx context.Context, addr string) (*Client, error) {
	return ConnectWithOptions(ctx, addr, DefaultOptions(), DefaultDialOptions())
}

// ConnectWithOptions is Connect with explicit protocol and transport
// options. The first dial and handshake happen synchronously; only on
// success does the background reconnect loop start.
func ConnectWithOptions(ctx context.Context, addr string, opts Options, dial DialOptions) (*Client, error) {
	opts = opts.withDefaults()
	dial = dial.withDefaults()

	sup := newSupervisor(addr, opts, dial)
	conn, pair, err := sup.connectOnce(ctx)
	if err != nil {
		sup.cancel()
		return nil, err
	}

	sup.refcount.Store(1)
	go sup.run(conn, pair)
	return &Client{sup: sup}, nil
}

// Clone returns a new handle onto the same connection. The connection
// is not actually closed until every clone (including this one) has
// called Close.
func (c *Client) Clone() *Client {
	c.sup.refcount.Add(1)
	return &Client{sup: c.sup}
}

// Close releases this handle. Once the last outstanding clone is
// closed, it disconnects per opts and shuts the connection down.
func (c *Client) Close(opts CloseOptions) error {
	if c.sup.refcount.Add(-1) > 0 {
		return nil
	}
	c.sup.close(opts)
	return nil
}

// Send enqueues a SEND frame. It blocks while the outbound command
// queue is full until ctx is cancelled.
func (c *Client) Send(ctx context.Context, destination string, headers []frame.Header, body []byte) error {
	return c.sup.enqueue(ctx, sendFrame(destination, headers, body, ""))
}

// SendWithReceipt sends and waits for the matching RECEIPT. A timeout
// <= 0 uses DefaultReceiptTimeout rather than waiting forever.
func (c *Client) SendWithReceipt(ctx context.Context, destination string, headers []frame.Header, body []byte, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultReceiptTimeout
	}
	receiptID := wireid.Receipt()
	f := sendFrame(destination, headers, body, receiptID)
	return c.sup.sendAwaitingReceipt(ctx, f, receiptID, timeout)
}

// SendConfirmed is an alias for SendWithReceipt, for callers who want
// the explicit-timeout framing at the call site even though the two
// behave identically.
func (c *Client) SendConfirmed(ctx context.Context, destination string, headers []frame.Header, body []byte, timeout time.Duration) error {
	return c.SendWithReceipt(ctx, destination, headers, body, timeout)
}

// Subscribe opens a subscription with no extra headers.
func (c *Client) Subscribe(ctx context.Context, destination string, ack AckMode) (*Subscription, error) {
	return c.SubscribeWithOptions(ctx, destination, ack, SubscribeOptions{})
}

// SubscribeWithOptions allocates a subscription id, registers it, and
// writes SUBSCRIBE. It returns once the frame is enqueued, not once
// the broker confirms. A RECEIPT with no registered waiter is dropped,
// so a receipt header placed in opts.Extra produces no confirmation
// the caller can observe.
func (c *Client) SubscribeWithOptions(ctx context.Context, destination string, ack AckMode, opts SubscribeOptions) (*Subscription, error) {
	id := c.sup.subIDs.Next()
	raw := make(chan frame.Frame, 16)
	c.sup.reg.AddSubscription(&registry.Subscription{
		ID:          id,
		Destination: destination,
		Ack:         string(ack),
		Extra:       opts.Extra,
		Deliver:     raw,
	})

	if err := c.sup.enqueue(ctx, subscribeFrame(id, destination, ack, opts.Extra, "")); err != nil {
		if sub, ok := c.sup.reg.RemoveSubscription(id); ok {
			close(sub.Deliver)
		}
		return nil, err
	}

	sub := &Subscription{
		id:  id,
		sup: c.sup,
		raw: raw,
		out: make(chan *Message, 16),
	}
	go sub.pump()
	return sub, nil
}

// Ack acknowledges a message by the ack id observed on its MESSAGE
// frame. Most callers should prefer Message.Ack, which threads the id
// through automatically.
func (c *Client) Ack(ctx context.Context, ackID, transactionID string) error {
	return c.sup.enqueue(ctx, ackFrame(ackID, transactionID, ""))
}

// Nack is Ack's negative counterpart.
func (c *Client) Nack(ctx context.Context, ackID, transactionID string) error {
	return c.sup.enqueue(ctx, nackFrame(ackID, transactionID, ""))
}

// NextFrame blocks for the next inbound frame that is neither a
// MESSAGE nor a RECEIPT (those go to subscriptions and receipt
// waiters, and are dropped when none matches): any other server-origin
// command, or an ERROR frame tagged via Received.IsServerError. ERROR never
// fails the handle itself — only this call's result reflects it.
func (c *Client) NextFrame(ctx context.Context) (Received, error) {
	select {
	case r := <-c.sup.received:
		return r, nil
	case <-ctx.Done():
		return Received{}, ctx.Err()
	case <-c.sup.ctx.Done():
		return Received{}, ErrClosed
	}
}

// Begin opens a transaction.
func (c *Client) Begin(ctx context.Context) (*Tx, error) {
	id := wireid.Transaction()
	if err := c.sup.enqueue(ctx, beginFrame(id, "")); err != nil {
		return nil, err
	}
	return &Tx{id: id, sup: c.sup}, nil
}
