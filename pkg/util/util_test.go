package util

import (
	"os"
	"testing"
	"time"
)

func TestFormatSRTTimestamp(t *testing.T) {
	cases := map[int64]string{
		0:       "00:00:00,000",
		1500:    "00:00:01,500",
		61001:   "00:01:01,001",
		3723004: "01:02:03,004",
		-10:     "00:00:00,000",
	}
	for in, want := range cases {
		if got := FormatSRTTimestamp(in); got != want {
			t.Errorf("FormatSRTTimestamp(%d) = %q, want %q", in, got, want)
		}
	}
}

func TestParseTimestamp(t *testing.T) {
	cases := map[string]time.Duration{
		"45.5":        45500 * time.Millisecond,
		"01:30":       90 * time.Second,
		"00:01:23.45": 83450 * time.Millisecond,
	}
	for in, want := range cases {
		got, err := ParseTimestamp(in)
		if err != nil {
			t.Fatalf("ParseTimestamp(%q): %v", in, err)
		}
		if diff := got - want; diff > time.Millisecond || diff < -time.Millisecond {
			t.Errorf("ParseTimestamp(%q) = %v, want %v", in, got, want)
		}
	}

	if _, err := ParseTimestamp("1:2:3:4"); err == nil {
		t.Error("expected error for four-part timestamp")
	}
	if _, err := ParseTimestamp("abc"); err == nil {
		t.Error("expected error for non-numeric timestamp")
	}
}

func TestParseFrameRate(t *testing.T) {
	if got := ParseFrameRate("30000/1001"); got < 29.96 || got > 29.98 {
		t.Errorf("ParseFrameRate = %f", got)
	}
	if got := ParseFrameRate("30/0"); got != 0 {
		t.Errorf("zero denominator should yield 0, got %f", got)
	}
}

func TestWorkspaceCloseRemovesEverything(t *testing.T) {
	ws, err := NewWorkspace(t.TempDir(), "job")
	if err != nil {
		t.Fatalf("NewWorkspace: %v", err)
	}
	if err := os.WriteFile(ws.Path("seg_0000.ts"), []byte("x"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := ws.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if FileExists(ws.Dir()) {
		t.Errorf("workspace %s still exists", ws.Dir())
	}
}
