package frame

import (
	"bytes"
	"testing"
)

// s1Wire is a minimal SEND with a single header and a 2-byte body,
// auto content-length inserted.
var s1Wire = []byte("SEND\ndestination:/queue/test\ncontent-length:2\n\nhi\x00")

func TestParseMinimalSendRoundTrip(t *testing.T) {
	if len(s1Wire) != 50 {
		t.Fatalf("fixture length = %d, want 50", len(s1Wire))
	}

	f, consumed, need, err := Parse(s1Wire)
	if err != nil || need {
		t.Fatalf("Parse() = need=%v err=%v", need, err)
	}
	if consumed != 50 {
		t.Fatalf("consumed = %d, want 50", consumed)
	}
	if f.Command != "SEND" {
		t.Errorf("Command = %q", f.Command)
	}
	if v, _ := f.Get("destination"); v != "/queue/test" {
		t.Errorf("destination = %q", v)
	}
	if string(f.Body) != "hi" {
		t.Errorf("Body = %q", f.Body)
	}
}

func TestParseBinaryBodyWithEmbeddedNUL(t *testing.T) {
	wire := []byte("SEND\ndestination:/q\ncontent-length:3\n\n\x00\x01\x00\x00")
	f, consumed, need, err := Parse(wire)
	if err != nil || need {
		t.Fatalf("Parse() = need=%v err=%v", need, err)
	}
	if consumed != len(wire) {
		t.Fatalf("consumed = %d, want %d", consumed, len(wire))
	}
	want := []byte{0x00, 0x01, 0x00}
	if !bytes.Equal(f.Body, want) {
		t.Errorf("Body = %v, want %v", f.Body, want)
	}
}

func TestParseChunkedAtEveryOffset(t *testing.T) {
	for split := 1; split < len(s1Wire); split++ {
		c := NewCodec()
		c.Feed(s1Wire[:split])
		f, ok, err := c.Next()
		if err != nil {
			t.Fatalf("split %d: unexpected error %v", split, err)
		}
		if split < len(s1Wire) {
			if ok {
				t.Fatalf("split %d: got a frame before the full wire arrived", split)
			}
		}
		c.Feed(s1Wire[split:])
		f, ok, err = c.Next()
		if err != nil || !ok {
			t.Fatalf("split %d: Parse after full feed: ok=%v err=%v", split, ok, err)
		}
		if f.Command != "SEND" || string(f.Body) != "hi" {
			t.Fatalf("split %d: wrong frame decoded: %+v", split, f)
		}
		if _, ok, _ := c.Next(); ok {
			t.Fatalf("split %d: codec produced a second frame", split)
		}
	}
}

func TestParseFeedByteAtATime(t *testing.T) {
	c := NewCodec()
	var got Frame
	seen := false
	for i := 0; i < len(s1Wire); i++ {
		c.Feed(s1Wire[i : i+1])
		f, ok, err := c.Next()
		if err != nil {
			t.Fatalf("byte %d: unexpected error: %v", i, err)
		}
		if ok {
			if seen {
				t.Fatalf("byte %d: decoded a second frame", i)
			}
			seen = true
			got = f
		}
	}
	if !seen {
		t.Fatal("never decoded the frame")
	}
	if got.Command != "SEND" || string(got.Body) != "hi" {
		t.Fatalf("got %+v", got)
	}
}

func TestParseHeartbeat(t *testing.T) {
	f, consumed, need, err := Parse([]byte("\n"))
	if err != nil || need {
		t.Fatalf("Parse(heartbeat) = need=%v err=%v", need, err)
	}
	if consumed != 1 || !IsHeartbeat(f) {
		t.Fatalf("Parse(heartbeat) = %+v consumed=%d", f, consumed)
	}
}

func TestParseIncompleteAtEveryStep(t *testing.T) {
	cases := []string{
		"",
		"SE",
		"SEND\n",
		"SEND\ndestination:/q\n",
		"SEND\ndestination:/q\n\n",
		"SEND\ndestination:/q\ncontent-length:5\n\nhi",
	}
	for _, c := range cases {
		_, consumed, need, err := Parse([]byte(c))
		if err != nil {
			t.Fatalf("Parse(%q) unexpected error: %v", c, err)
		}
		if !need || consumed != 0 {
			t.Fatalf("Parse(%q) = need=%v consumed=%d, want need=true consumed=0", c, need, consumed)
		}
	}
}

func TestParseRejectsMissingColon(t *testing.T) {
	_, _, _, err := Parse([]byte("SEND\nbadheader\n\n\x00"))
	if err == nil {
		t.Fatal("expected error for header missing colon")
	}
}

func TestParseRejectsEmptyCommand(t *testing.T) {
	_, _, _, err := Parse([]byte("\r\n\r\n\n\x00"))
	if err == nil {
		t.Fatal("expected error for empty command")
	}
}

func TestParseRejectsMalformedContentLength(t *testing.T) {
	_, _, _, err := Parse([]byte("SEND\ndestination:/q\ncontent-length:x\n\nhi\x00"))
	if err == nil {
		t.Fatal("expected error for non-numeric content-length")
	}
}

func TestParseRejectsMissingNULAfterContentLength(t *testing.T) {
	_, _, _, err := Parse([]byte("SEND\ndestination:/q\ncontent-length:2\n\nhiX"))
	if err == nil {
		t.Fatal("expected error for missing terminal NUL")
	}
}

func TestParseDoesNotTreatEmbeddedNULAsTerminator(t *testing.T) {
	wire := []byte("SEND\ndestination:/q\ncontent-length:3\n\na\x00b\x00")
	f, consumed, need, err := Parse(wire)
	if err != nil || need {
		t.Fatalf("Parse() = need=%v err=%v", need, err)
	}
	if consumed != len(wire) {
		t.Fatalf("consumed = %d, want %d", consumed, len(wire))
	}
	if !bytes.Equal(f.Body, []byte{'a', 0x00, 'b'}) {
		t.Fatalf("Body = %v", f.Body)
	}
}
