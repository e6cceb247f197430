// Package frame implements the STOMP 1.2 frame value type, its wire
// escape rules, and a chunk-tolerant parser/codec pair.
package frame

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ErrProtocol is the base error wrapped by every fatal parse failure:
// malformed escapes, non-numeric content-length, a missing terminal
// NUL, or a command containing control bytes. Use errors.Cause to
// recover it.
var ErrProtocol = errors.New("stomp/frame: protocol error")

// Header is a single ordered (name, value) wire header pair.
type Header struct {
	Name  string
	Value string
}

// Frame is an immutable STOMP frame: a command, an ordered list of
// header pairs (duplicates permitted, first occurrence wins on
// lookup), and an optional body.
type Frame struct {
	Command string
	Headers []Header
	Body    []byte
}

// Get returns the value of the first header named name, STOMP 1.2
// first-occurrence-wins semantics.
func (f Frame) Get(name string) (string, bool) {
	for _, h := range f.Headers {
		if h.Name == name {
			return h.Value, true
		}
	}
	return "", false
}

// ContentLength returns the parsed content-length header, if present
// and well-formed.
func (f Frame) ContentLength() (n int, ok bool, err error) {
	v, present := f.Get("content-length")
	if !present {
		return 0, false, nil
	}
	n, err = strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, true, errors.Wrap(ErrProtocol, "malformed content-length")
	}
	return n, true, nil
}

// Builder constructs a Frame header-by-header. Headers are appended
// in call order, preserving wire order for duplicates.
type Builder struct {
	f Frame
}

// New starts a Builder for the given command.
func New(command string) *Builder {
	return &Builder{f: Frame{Command: command}}
}

// Append adds a header pair, preserving insertion order.
func (b *Builder) Append(name, value string) *Builder {
	b.f.Headers = append(b.f.Headers, Header{Name: name, Value: value})
	return b
}

// AppendIf appends name:value only when cond is true. Convenient for
// optional headers (login, passcode, receipt, ...).
func (b *Builder) AppendIf(cond bool, name, value string) *Builder {
	if cond {
		b.Append(name, value)
	}
	return b
}

// Body sets the frame body.
func (b *Builder) Body(body []byte) *Builder {
	b.f.Body = body
	return b
}

// Build returns the finished, independent Frame value. The Builder
// must not be reused afterwards.
func (b *Builder) Build() Frame {
	return b.f
}

// escape table per STOMP 1.2: \\ \r \n \c.
const (
	escBackslash = '\\'
	escCR        = 'r'
	escLF        = 'n'
	escColon     = 'c'
)

// Escape replaces LF, CR, colon and backslash with their two-byte
// escape sequences. Used when writing header names/values to the
// wire.
func Escape(s string) string {
	if strings.IndexAny(s, "\n\r:\\") < 0 {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 4)
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\':
			b.WriteByte(escBackslash)
			b.WriteByte(escBackslash)
		case '\n':
			b.WriteByte(escBackslash)
			b.WriteByte(escLF)
		case '\r':
			b.WriteByte(escBackslash)
			b.WriteByte(escCR)
		case ':':
			b.WriteByte(escBackslash)
			b.WriteByte(escColon)
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

// Unescape reverses Escape. An unrecognized escape sequence is a
// protocol error.
func Unescape(s string) (string, error) {
	if strings.IndexByte(s, '\\') < 0 {
		return s, nil
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' {
			b.WriteByte(c)
			continue
		}
		i++
		if i >= len(s) {
			return "", errors.Wrap(ErrProtocol, "dangling escape at end of header")
		}
		switch s[i] {
		case escBackslash:
			b.WriteByte('\\')
		case escLF:
			b.WriteByte('\n')
		case escCR:
			b.WriteByte('\r')
		case escColon:
			b.WriteByte(':')
		default:
			return "", errors.Wrapf(ErrProtocol, "unknown escape sequence \\%c", s[i])
		}
	}
	return b.String(), nil
}
