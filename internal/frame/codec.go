package frame

import (
	"io"
	"strconv"

	"github.com/pkg/errors"
)

// compactThreshold bounds how much already-consumed slack the receive
// buffer tolerates before it is shifted back to the front. Chosen so
// a steady stream of small frames doesn't compact on every Next call
// (cheap amortized cost) while a single oversized frame still gets
// its buffer reclaimed promptly.
const compactThreshold = 4096

// Codec drives Parse over a growable receive buffer: Feed appends
// newly read bytes, Next yields frames one at a time until the
// buffer's unconsumed tail is incomplete. It is stateless with
// respect to the transport — it knows nothing about net.Conn, only
// []byte in and Frame out.
type Codec struct {
	buf []byte
	pos int // index of the first unconsumed byte in buf
}

// NewCodec returns an empty Codec.
func NewCodec() *Codec {
	return &Codec{}
}

// Feed appends p to the receive buffer. The caller's slice is copied;
// Codec never aliases caller-owned memory.
func (c *Codec) Feed(p []byte) {
	c.buf = append(c.buf, p...)
}

// Next returns the next complete frame in the receive buffer, if any.
// ok is false when the buffer's tail is an incomplete frame — the
// caller should Feed more bytes and call Next again. err is non-nil
// only on a fatal protocol violation, at which point the Codec (and
// the connection it serves) must be discarded.
func (c *Codec) Next() (f Frame, ok bool, err error) {
	f, consumed, need, err := Parse(c.buf[c.pos:])
	if err != nil {
		return Frame{}, false, err
	}
	if need {
		c.reclaim()
		return Frame{}, false, nil
	}
	c.pos += consumed
	c.reclaim()
	return f, true, nil
}

// reclaim shifts the unconsumed tail to the front of buf once the
// consumed prefix grows past compactThreshold, so a long-lived
// connection's receive buffer doesn't grow without bound.
func (c *Codec) reclaim() {
	if c.pos == 0 {
		return
	}
	if c.pos < compactThreshold && c.pos < len(c.buf) {
		return
	}
	n := copy(c.buf, c.buf[c.pos:])
	c.buf = c.buf[:n]
	c.pos = 0
}

// Encode writes f to w in wire form: command, headers (escaped,
// content-length auto-inserted for a non-empty body the caller didn't
// set one for), blank line, body, terminal NUL. A heartbeat (empty
// command, no headers, no body) is written as the bare LF byte.
func Encode(w io.Writer, f Frame) error {
	if IsHeartbeat(f) {
		_, err := w.Write([]byte{'\n'})
		return err
	}

	var out []byte
	out = append(out, f.Command...)
	out = append(out, '\n')

	_, hasLength, _ := f.ContentLength()
	for _, h := range f.Headers {
		out = append(out, Escape(h.Name)...)
		out = append(out, ':')
		out = append(out, Escape(h.Value)...)
		out = append(out, '\n')
	}
	if len(f.Body) > 0 && !hasLength {
		out = append(out, "content-length:"...)
		out = append(out, strconv.Itoa(len(f.Body))...)
		out = append(out, '\n')
	}

	out = append(out, '\n')
	out = append(out, f.Body...)
	out = append(out, 0x00)

	if _, err := w.Write(out); err != nil {
		return errors.Wrap(err, "stomp/frame: write frame")
	}
	return nil
}
