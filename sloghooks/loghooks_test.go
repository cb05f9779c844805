package sloghooks

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func newBuf() (*bytes.Buffer, *slog.Logger) {
	var buf bytes.Buffer
	l := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return &buf, l
}

func TestRedactsKeys(t *testing.T) {
	buf, l := newBuf()
	h := New(l, Options{})
	h.DecodeFailed("app:User:secret-id", false, errors.New("bad frame"))

	out := buf.String()
	if strings.Contains(out, "secret-id") {
		t.Fatalf("store key leaked into log: %s", out)
	}
	if !strings.Contains(out, "simplecache.decode_failed") || !strings.Contains(out, "bad frame") {
		t.Fatalf("unexpected log line: %s", out)
	}
}

func TestCustomRedactor(t *testing.T) {
	buf, l := newBuf()
	h := New(l, Options{Redact: func(string) string { return "XX" }})
	h.NegativeCached("k", time.Second)
	if !strings.Contains(buf.String(), "key=XX") {
		t.Fatalf("custom redactor not used: %s", buf.String())
	}
}

func TestSampling(t *testing.T) {
	buf, l := newBuf()
	h := New(l, Options{DegradedEvery: 3})
	for i := 0; i < 9; i++ {
		h.ReadDegraded("k", errors.New("down"))
	}
	if n := strings.Count(buf.String(), "simplecache.read_degraded"); n != 3 {
		t.Fatalf("logged %d lines, want 3", n)
	}
}

func TestNilLogger(t *testing.T) {
	h := New(nil, Options{})
	h.LockLost("k")
	h.LockReleaseFailed("k", errors.New("x"))
	h.ExpirePassFailed("ns", 2)
}
