package frame

import (
	"bytes"
	"testing"
)

func TestEncodeMinimalSendMatchesWireFixture(t *testing.T) {
	f := New("SEND").Append("destination", "/queue/test").Body([]byte("hi")).Build()
	var buf bytes.Buffer
	if err := Encode(&buf, f); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !bytes.Equal(buf.Bytes(), s1Wire) {
		t.Fatalf("Encode() = %q, want %q", buf.Bytes(), s1Wire)
	}
}

func TestEncodeInsertsContentLengthForNonEmptyBody(t *testing.T) {
	f := New("SEND").Append("destination", "/q").Body([]byte{0x00, 0x01, 0x00}).Build()
	var buf bytes.Buffer
	if err := Encode(&buf, f); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, consumed, need, err := Parse(buf.Bytes())
	if err != nil || need {
		t.Fatalf("round trip parse failed: need=%v err=%v", need, err)
	}
	if consumed != buf.Len() {
		t.Fatalf("consumed = %d, want %d", consumed, buf.Len())
	}
	if !bytes.Equal(decoded.Body, f.Body) {
		t.Fatalf("Body = %v, want %v", decoded.Body, f.Body)
	}
	if v, ok := decoded.Get("content-length"); !ok || v != "3" {
		t.Fatalf("content-length = %q, %v", v, ok)
	}
}

func TestEncodeOmitsContentLengthForEmptyBody(t *testing.T) {
	f := New("ACK").Append("id", "42").Build()
	var buf bytes.Buffer
	if err := Encode(&buf, f); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if _, ok, _ := frameMustParse(t, buf.Bytes()).ContentLength(); ok {
		t.Fatal("did not expect a content-length header on an empty body")
	}
}

func TestEncodeHeartbeat(t *testing.T) {
	var buf bytes.Buffer
	if err := Encode(&buf, Frame{Command: heartbeatCommand}); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !bytes.Equal(buf.Bytes(), []byte{'\n'}) {
		t.Fatalf("Encode(heartbeat) = %v", buf.Bytes())
	}
}

func TestEncodeEscapesHeaders(t *testing.T) {
	f := New("SEND").Append("destination", "/q").Append("selector", "x>1\nand y:z").Build()
	var buf bytes.Buffer
	if err := Encode(&buf, f); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded := frameMustParse(t, buf.Bytes())
	if v, _ := decoded.Get("selector"); v != "x>1\nand y:z" {
		t.Fatalf("selector round trip = %q", v)
	}
}

func frameMustParse(t *testing.T, buf []byte) Frame {
	t.Helper()
	f, _, need, err := Parse(buf)
	if err != nil || need {
		t.Fatalf("Parse(%q): need=%v err=%v", buf, need, err)
	}
	return f
}

func TestCodecReclaimsConsumedPrefix(t *testing.T) {
	c := NewCodec()
	for i := 0; i < 10; i++ {
		c.Feed(s1Wire)
		f, ok, err := c.Next()
		if err != nil || !ok {
			t.Fatalf("iteration %d: ok=%v err=%v", i, ok, err)
		}
		if f.Command != "SEND" {
			t.Fatalf("iteration %d: got %+v", i, f)
		}
	}
	if cap(c.buf) > len(s1Wire)*3 {
		t.Fatalf("receive buffer grew unbounded: cap=%d", cap(c.buf))
	}
}
