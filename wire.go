package stomp

import (
	"strconv"
	"strings"
	"time"

	"github.com/flowmq/stomp-go/internal/frame"
	"github.com/pkg/errors"
)

// formatHeartbeat renders a heart-beat header value in milliseconds,
// "heart-beat: cx,cy".
func formatHeartbeat(cx, cy time.Duration) string {
	return strconv.FormatInt(cx.Milliseconds(), 10) + "," + strconv.FormatInt(cy.Milliseconds(), 10)
}

// parseHeartbeatHeader parses a "cx,cy" heart-beat header value. A
// malformed value (wrong shape, non-numeric) fails the connect rather
// than guessing at intent.
func parseHeartbeatHeader(v string) (cx, cy time.Duration, err error) {
	parts := strings.Split(v, ",")
	if len(parts) != 2 {
		return 0, 0, errors.Wrapf(ErrProtocol, "malformed heart-beat header %q", v)
	}
	x, errX := strconv.ParseUint(strings.TrimSpace(parts[0]), 10, 32)
	y, errY := strconv.ParseUint(strings.TrimSpace(parts[1]), 10, 32)
	if errX != nil || errY != nil {
		return 0, 0, errors.Wrapf(ErrProtocol, "malformed heart-beat header %q", v)
	}
	return time.Duration(x) * time.Millisecond, time.Duration(y) * time.Millisecond, nil
}

func (o Options) connectFrame() frame.Frame {
	b := frame.New("CONNECT").
		Append("accept-version", AcceptVersion).
		Append("host", o.Host).
		Append("heart-beat", formatHeartbeat(o.HeartbeatSend, o.HeartbeatRecv)).
		AppendIf(o.Login != "", "login", o.Login).
		AppendIf(o.Passcode != "", "passcode", o.Passcode)
	for _, h := range o.Extra {
		b.Append(h.Name, h.Value)
	}
	return b.Build()
}

func sendFrame(destination string, headers []frame.Header, body []byte, receiptID string) frame.Frame {
	return txSendFrame(destination, headers, body, "", receiptID)
}

func txSendFrame(destination string, headers []frame.Header, body []byte, transactionID, receiptID string) frame.Frame {
	b := frame.New("SEND").Append("destination", destination)
	for _, h := range headers {
		b.Append(h.Name, h.Value)
	}
	b.AppendIf(transactionID != "", "transaction", transactionID)
	b.AppendIf(receiptID != "", "receipt", receiptID)
	return b.Body(body).Build()
}

func subscribeFrame(id, destination string, ack AckMode, extra []frame.Header, receiptID string) frame.Frame {
	b := frame.New("SUBSCRIBE").
		Append("destination", destination).
		Append("id", id).
		Append("ack", string(ack))
	for _, h := range extra {
		b.Append(h.Name, h.Value)
	}
	b.AppendIf(receiptID != "", "receipt", receiptID)
	return b.Build()
}

func unsubscribeFrame(id, receiptID string) frame.Frame {
	return frame.New("UNSUBSCRIBE").Append("id", id).
		AppendIf(receiptID != "", "receipt", receiptID).Build()
}

func ackFrame(id, transactionID, receiptID string) frame.Frame {
	return frame.New("ACK").Append("id", id).
		AppendIf(transactionID != "", "transaction", transactionID).
		AppendIf(receiptID != "", "receipt", receiptID).Build()
}

func nackFrame(id, transactionID, receiptID string) frame.Frame {
	return frame.New("NACK").Append("id", id).
		AppendIf(transactionID != "", "transaction", transactionID).
		AppendIf(receiptID != "", "receipt", receiptID).Build()
}

func beginFrame(transactionID, receiptID string) frame.Frame {
	return frame.New("BEGIN").Append("transaction", transactionID).
		AppendIf(receiptID != "", "receipt", receiptID).Build()
}

func commitFrame(transactionID, receiptID string) frame.Frame {
	return frame.New("COMMIT").Append("transaction", transactionID).
		AppendIf(receiptID != "", "receipt", receiptID).Build()
}

func abortFrame(transactionID, receiptID string) frame.Frame {
	return frame.New("ABORT").Append("transaction", transactionID).
		AppendIf(receiptID != "", "receipt", receiptID).Build()
}

func disconnectFrame(receiptID string) frame.Frame {
	return frame.New("DISCONNECT").AppendIf(receiptID != "", "receipt", receiptID).Build()
}
