package frame

import (
	"bytes"

	"github.com/pkg/errors"
)

// Parse is a pure function over buf implementing the STOMP 1.2 frame
// grammar. It returns exactly one of three outcomes:
//
//   - need == true: buf does not yet hold a complete frame; the
//     caller must append more bytes and retry. Nothing is consumed.
//   - err != nil: buf's prefix is not a valid STOMP frame. Fatal —
//     the connection must be abandoned (errors.Cause(err) == ErrProtocol).
//   - otherwise: f holds the parsed frame and consumed is the number
//     of leading bytes of buf the frame occupied.
//
// Parse never mutates buf; header and body bytes are copied into the
// returned Frame so the caller is free to reuse or discard buf
// afterwards.
func Parse(buf []byte) (f Frame, consumed int, need bool, err error) {
	if len(buf) == 0 {
		return Frame{}, 0, true, nil
	}

	idx := 0

	// A lone LF is itself the heartbeat frame. A leading CRLF is
	// tolerated ahead of a real command — some brokers emit a stray
	// EOL between frames.
	if buf[0] == '\n' {
		return Frame{Command: heartbeatCommand}, 1, false, nil
	}
	if buf[0] == '\r' {
		if len(buf) < 2 {
			return Frame{}, 0, true, nil
		}
		if buf[1] != '\n' {
			return Frame{}, 0, false, errors.Wrap(ErrProtocol, "lone CR at start of frame")
		}
		idx = 2
		if idx >= len(buf) {
			return Frame{}, 0, true, nil
		}
		if buf[idx] == '\n' {
			return Frame{Command: heartbeatCommand}, idx + 1, false, nil
		}
	}

	lf := bytes.IndexByte(buf[idx:], '\n')
	if lf < 0 {
		return Frame{}, 0, true, nil
	}
	lf += idx
	cmdLine := buf[idx:lf]
	if len(cmdLine) > 0 && cmdLine[len(cmdLine)-1] == '\r' {
		cmdLine = cmdLine[:len(cmdLine)-1]
	}
	if len(cmdLine) == 0 {
		return Frame{}, 0, false, errors.Wrap(ErrProtocol, "empty command")
	}
	for _, b := range cmdLine {
		if b < 0x20 {
			return Frame{}, 0, false, errors.Wrap(ErrProtocol, "control byte in command")
		}
	}
	command := string(cmdLine)
	pos := lf + 1

	var headers []Header
	for {
		hlf := bytes.IndexByte(buf[pos:], '\n')
		if hlf < 0 {
			return Frame{}, 0, true, nil
		}
		hlf += pos
		line := buf[pos:hlf]
		pos = hlf + 1
		if len(line) > 0 && line[len(line)-1] == '\r' {
			line = line[:len(line)-1]
		}
		if len(line) == 0 {
			break
		}
		colon := bytes.IndexByte(line, ':')
		if colon < 0 {
			return Frame{}, 0, false, errors.Wrap(ErrProtocol, "header line missing colon")
		}
		name, err := Unescape(string(line[:colon]))
		if err != nil {
			return Frame{}, 0, false, err
		}
		value, err := Unescape(string(line[colon+1:]))
		if err != nil {
			return Frame{}, 0, false, err
		}
		headers = append(headers, Header{Name: name, Value: value})
	}

	f = Frame{Command: command, Headers: headers}

	contentLength, hasLength, err := f.ContentLength()
	if err != nil {
		return Frame{}, 0, false, err
	}

	var bodyEnd int // index, exclusive, of the body's last byte; buf[bodyEnd] must be NUL
	if hasLength {
		if len(buf) < pos+contentLength+1 {
			return Frame{}, 0, true, nil
		}
		bodyEnd = pos + contentLength
		if buf[bodyEnd] != 0x00 {
			return Frame{}, 0, false, errors.Wrap(ErrProtocol, "missing NUL terminator after content-length body")
		}
	} else {
		nul := bytes.IndexByte(buf[pos:], 0x00)
		if nul < 0 {
			return Frame{}, 0, true, nil
		}
		bodyEnd = pos + nul
	}

	if bodyEnd > pos {
		body := make([]byte, bodyEnd-pos)
		copy(body, buf[pos:bodyEnd])
		f.Body = body
	}
	pos = bodyEnd + 1 // consume the terminal NUL

	// Optionally consume one trailing EOL. This is tolerance only — if
	// the bytes aren't available yet we leave them for the next Parse
	// call rather than blocking on them.
	if pos < len(buf) && buf[pos] == '\n' {
		pos++
	} else if pos+1 < len(buf) && buf[pos] == '\r' && buf[pos+1] == '\n' {
		pos += 2
	}

	return f, pos, false, nil
}

// heartbeatCommand is the sentinel Command value of a parsed
// heartbeat "frame" (which has no real command on the wire).
const heartbeatCommand = ""

// IsHeartbeat reports whether f represents a heartbeat rather than a
// real frame.
func IsHeartbeat(f Frame) bool {
	return f.Command == heartbeatCommand && f.Headers == nil && f.Body == nil
}
