package oscpipe

import "testing"

func TestBuildMessage_PadsToFourByteBoundary(t *testing.T) {
	msg := buildMessage("/a", float32(1.5))
	if len(msg)%4 != 0 {
		t.Errorf("expected message length to be a multiple of 4, got %d", len(msg))
	}
}

func TestAppendOSCString_NullTerminatesAndPads(t *testing.T) {
	buf := appendOSCString(nil, "abc")
	// "abc" + null = 4 bytes, already aligned, no extra padding.
	if len(buf) != 4 {
		t.Fatalf("expected 4 bytes, got %d", len(buf))
	}
	if buf[3] != 0 {
		t.Error("expected null terminator")
	}

	buf2 := appendOSCString(nil, "ab")
	// "ab" + null = 3 bytes, needs 1 byte padding to reach 4.
	if len(buf2) != 4 {
		t.Fatalf("expected 4 bytes, got %d", len(buf2))
	}
}

func TestBuildMessage_RoundTripsThroughParseMessage(t *testing.T) {
	msg := buildMessage("/avatar/parameters/LeftEyeX", float32(0.25))
	addr, args, ok := parseMessage(msg)
	if !ok {
		t.Fatal("expected successful parse")
	}
	if addr != "/avatar/parameters/LeftEyeX" {
		t.Errorf("unexpected address: %q", addr)
	}
	if len(args) != 1 || args[0] != 0.25 {
		t.Errorf("unexpected args: %v", args)
	}
}

func TestParseMessage_RejectsTruncatedInput(t *testing.T) {
	if _, _, ok := parseMessage([]byte{1, 2, 3}); ok {
		t.Error("expected parse failure on truncated input")
	}
}
