package stomp

import (
	"crypto/tls"
	"net"
	"time"

	"github.com/flowmq/stomp-go/internal/frame"
	"go.uber.org/zap"
)

// AcceptVersion is the only STOMP version this library speaks. STOMP
// versions below 1.2 are not implemented.
const AcceptVersion = "1.2"

// Default heart-beat and backoff constants.
const (
	DefaultHeartbeatSend = 10 * time.Second
	DefaultHeartbeatRecv = 10 * time.Second
	DisabledHeartbeat    = 0 * time.Second

	DefaultHandshakeTimeout = 10 * time.Second
	DefaultReceiptTimeout   = 5 * time.Second
	DefaultCommandQueueSize = 64
)

// Options configures protocol-level connection behavior: identity,
// heartbeat negotiation, and the headers sent on CONNECT. Protocol
// knobs live here; transport knobs live in DialOptions.
type Options struct {
	// Login and Passcode authenticate the client, if the broker
	// requires it. Both empty means an anonymous CONNECT.
	Login    string
	Passcode string

	// Host is the virtual host header sent on CONNECT. Defaults to
	// "/" when empty.
	Host string

	// HeartbeatSend is the interval this client commits to send
	// something on an idle connection; HeartbeatRecv is the interval
	// at which it wants to receive something. Zero disables that
	// direction. Defaults to 10s/10s.
	HeartbeatSend time.Duration
	HeartbeatRecv time.Duration

	// Extra carries additional CONNECT headers (e.g. "client-id"),
	// forwarded verbatim. The library never special-cases broker
	// extensions beyond this passthrough.
	Extra []frame.Header

	// HandshakeTimeout bounds how long Connect waits for CONNECTED
	// after writing CONNECT. Defaults to 10s.
	HandshakeTimeout time.Duration

	// CommandQueueSize bounds the outbound command channel; Send
	// blocks (backpressure) once it is full. Defaults to 64.
	CommandQueueSize int

	// Logger receives supervisor lifecycle events (connection loss,
	// failed reconnect attempts, successful reconnects). Defaults to a
	// no-op logger.
	Logger *zap.Logger
}

// DefaultOptions returns a fresh Options with every field set to its
// documented default. A constructor rather than a shared package var,
// since callers routinely mutate the result, and a shared pointer
// would let one caller's edit leak into another's connection.
func DefaultOptions() Options {
	return Options{
		Host:             "/",
		HeartbeatSend:    DefaultHeartbeatSend,
		HeartbeatRecv:    DefaultHeartbeatRecv,
		HandshakeTimeout: DefaultHandshakeTimeout,
		CommandQueueSize: DefaultCommandQueueSize,
		Logger:           zap.NewNop(),
	}
}

func (o Options) withDefaults() Options {
	if o.Host == "" {
		o.Host = "/"
	}
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if o.CommandQueueSize <= 0 {
		o.CommandQueueSize = DefaultCommandQueueSize
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// DialOptions configures the transport: how the TCP (or TCP+TLS) byte
// stream is obtained. The library only needs something satisfying
// net.Conn, and will drive TLS handshakes transparently if TLSConfig
// is set.
type DialOptions struct {
	// Dial creates the underlying connection. Defaults to net.Dial.
	Dial func(network, addr string) (net.Conn, error)

	// TLSConfig, if non-nil, wraps the dialed connection with
	// tls.Client before the STOMP handshake begins.
	TLSConfig *tls.Config

	// TLSHandshakeTimeout bounds the TLS handshake. Zero means no
	// timeout.
	TLSHandshakeTimeout time.Duration
}

// DefaultDialOptions returns a fresh DialOptions using net.Dial and no
// TLS.
func DefaultDialOptions() DialOptions {
	return DialOptions{Dial: net.Dial}
}

func (d DialOptions) withDefaults() DialOptions {
	if d.Dial == nil {
		d.Dial = net.Dial
	}
	return d
}

// AckMode is a STOMP 1.2 subscription acknowledgement policy.
type AckMode string

const (
	AckAuto             AckMode = "auto"
	AckClient           AckMode = "client"
	AckClientIndividual AckMode = "client-individual"
)

// SubscribeOptions configures a subscription beyond destination and
// ack mode.
type SubscribeOptions struct {
	// Extra carries additional SUBSCRIBE headers (e.g. "selector",
	// or a broker-specific "durable-queue" convention), preserved
	// verbatim and replayed on reconnect.
	Extra []frame.Header
}

// CloseOptions configures Close's DISCONNECT handshake.
type CloseOptions struct {
	// ConfirmTimeout, if positive, requests a receipt on DISCONNECT
	// and waits up to this long for it before shutting the transport
	// down unconditionally.
	ConfirmTimeout time.Duration
}
