package main

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/frankferrari/lanomat/internal/logger"
)

func newTestKeyboard() (*keyboard, *bytes.Buffer, *int) {
	out := &bytes.Buffer{}
	quits := 0
	k := &keyboard{
		log:     logger.Discard(),
		baseURL: "http://192.168.1.20:8080",
		quit:    func() { quits++ },
		out:     out,
	}
	return k, out, &quits
}

func TestKeyboard_ToggleHTTPLogging(t *testing.T) {
	k, out, _ := newTestKeyboard()

	k.handle('h')
	if !k.log.IsHTTPLoggingEnabled() {
		t.Error("expected HTTP logging enabled")
	}
	k.handle('H')
	if k.log.IsHTTPLoggingEnabled() {
		t.Error("expected HTTP logging disabled")
	}
	if !strings.Contains(out.String(), "HTTP logging disabled") {
		t.Errorf("unexpected output %q", out.String())
	}
}

func TestKeyboard_CycleLogLevel(t *testing.T) {
	k, _, _ := newTestKeyboard()
	k.log.SetLevel(slog.LevelDebug)

	for _, want := range []slog.Level{slog.LevelInfo, slog.LevelWarn, slog.LevelError, slog.LevelDebug} {
		k.handle('l')
		if got := k.log.GetLevel(); got != want {
			t.Fatalf("level = %v, want %v", got, want)
		}
	}
}

func TestKeyboard_ShowURL(t *testing.T) {
	k, out, _ := newTestKeyboard()
	k.handle('u')
	if !strings.Contains(out.String(), "http://192.168.1.20:8080") {
		t.Errorf("unexpected output %q", out.String())
	}
}

func TestKeyboard_Quit(t *testing.T) {
	for _, key := range []byte{'q', 'Q', 0x03} {
		k, _, quits := newTestKeyboard()
		if !k.handle(key) {
			t.Errorf("key %q should stop the listener", key)
		}
		if *quits != 1 {
			t.Errorf("key %q: quit called %d times", key, *quits)
		}
	}
}

func TestKeyboard_UnknownKeyIgnored(t *testing.T) {
	k, out, quits := newTestKeyboard()
	if k.handle('z') || *quits != 0 || out.Len() != 0 {
		t.Error("unknown keys should do nothing")
	}
}

func TestReadKeys(t *testing.T) {
	k, out, quits := newTestKeyboard()

	// keys after q are never read
	readKeys(strings.NewReader("?hqh"), k)

	if *quits != 1 {
		t.Errorf("quit called %d times", *quits)
	}
	if !k.log.IsHTTPLoggingEnabled() {
		t.Error("expected exactly one toggle before quitting")
	}
	if !strings.Contains(out.String(), "Keyboard Shortcuts") {
		t.Error("expected help output")
	}
}

func TestReadKeys_StopsAtEOF(t *testing.T) {
	k, _, quits := newTestKeyboard()
	readKeys(strings.NewReader(""), k)
	if *quits != 0 {
		t.Error("EOF should not quit the server")
	}
}
