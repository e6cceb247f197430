package stomp

import (
	"fmt"
	"time"

	"github.com/flowmq/stomp-go/internal/frame"
	"github.com/pkg/errors"
)

// Sentinel errors covering the failure modes callers need to tell
// apart. Wrap with errors.Wrap/errors.Wrapf when adding context;
// compare with errors.Is or errors.Cause.
var (
	// ErrTransport signals that the underlying byte stream failed a
	// read or write.
	ErrTransport = errors.New("stomp: transport error")

	// ErrProtocol signals a parser rejection, an unexpected command
	// during handshake, or any other wire-level violation. Re-exported
	// from internal/frame so callers never need to import it.
	ErrProtocol = frame.ErrProtocol

	// ErrServerRejected is returned synchronously from Connect when
	// the broker answers the handshake CONNECT with ERROR.
	ErrServerRejected = errors.New("stomp: server rejected the connection")

	// ErrHandshakeTimeout is returned when the broker does not answer
	// CONNECT within Options.HandshakeTimeout.
	ErrHandshakeTimeout = errors.New("stomp: handshake timed out")

	// ErrClosed is returned to callers, and delivered to outstanding
	// subscriptions/waiters, once Close has completed.
	ErrClosed = errors.New("stomp: connection closed")

	// ErrDisconnected is delivered to outstanding receipt waiters when
	// the session they were registered on drops before a RECEIPT
	// arrived and the connection reconnects. Close delivers ErrClosed
	// instead.
	ErrDisconnected = errors.New("stomp: disconnected before receipt arrived")
)

// ServerError wraps an ERROR frame received after a successful
// handshake. It is delivered on the handle's inbound stream as a
// Received value with IsServerError set, never by failing the handle
// itself.
type ServerError struct {
	Frame frame.Frame
}

func (e *ServerError) Error() string {
	msg, _ := e.Frame.Get("message")
	if msg == "" {
		return "stomp: broker sent ERROR"
	}
	return "stomp: broker sent ERROR: " + msg
}

// RejectedError wraps the ERROR frame a broker answers a CONNECT
// with. Unwraps to ErrServerRejected so callers can use errors.Is.
type RejectedError struct {
	Frame frame.Frame
}

func (e *RejectedError) Error() string {
	msg, _ := e.Frame.Get("message")
	if msg == "" {
		return "stomp: server rejected the connection"
	}
	return "stomp: server rejected the connection: " + msg
}

func (e *RejectedError) Unwrap() error { return ErrServerRejected }

// ReceiptTimeoutError is returned by SendWithReceipt/SendConfirmed
// when no RECEIPT arrives within the requested deadline.
type ReceiptTimeoutError struct {
	ReceiptID string
	Elapsed   time.Duration
}

func (e *ReceiptTimeoutError) Error() string {
	return fmt.Sprintf("stomp: receipt %q timed out after %s", e.ReceiptID, e.Elapsed)
}
