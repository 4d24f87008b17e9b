package models

import (
	"strings"
	"testing"
)

func TestHexDump(t *testing.T) {
	lines := HexDump(0x1000, []byte("Joy!peffpwpc\x00\x00\x00\x01"), 32)
	if len(lines) != 1 {
		t.Fatalf("expected one line, got %d: %q", len(lines), lines)
	}
	line := lines[0]
	if !strings.HasPrefix(line, "0x00001000: 4a6f7921 70656666 70777063 00000001") {
		t.Fatalf("bad hex column: %q", line)
	}
	if !strings.Contains(line, "[Joy! peff pwpc ....") {
		t.Fatalf("bad text column: %q", line)
	}

	// a partial trailing word is padded
	lines = HexDump(0, make([]byte, 21), 32)
	if len(lines) != 2 {
		t.Fatalf("expected two lines, got %d", len(lines))
	}
	if !strings.HasPrefix(lines[1], "0x00000014: 00      ") {
		t.Fatalf("bad tail line: %q", lines[1])
	}
}

func TestRepr(t *testing.T) {
	if got := Repr([]byte("main\x00"), 0); got != `"main\x00"` {
		t.Fatalf("got %s", got)
	}
	if got := Repr([]byte("InterfaceLib"), 8); got != `"Inter"...` {
		t.Fatalf("got %s", got)
	}
}
