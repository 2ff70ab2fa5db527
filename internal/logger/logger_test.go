package logger

import (
	"bytes"
	"errors"
	"log"
	"strings"
	"testing"
)

func captureLog(t *testing.T, fn func()) string {
	t.Helper()
	var buf bytes.Buffer
	prevOut, prevFlags := log.Writer(), log.Flags()
	log.SetOutput(&buf)
	log.SetFlags(0)
	defer func() {
		log.SetOutput(prevOut)
		log.SetFlags(prevFlags)
	}()
	fn()
	return buf.String()
}

func TestDebugFormat(t *testing.T) {
	out := captureLog(t, func() { Debug(42, "task_started", "session_id=abc") })

	for _, want := range []string{"[DEBUG]", "user_id=42", "action=task_started", "details=session_id=abc"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %q in %q", want, out)
		}
	}
}

func TestErrorIncludesErrorText(t *testing.T) {
	out := captureLog(t, func() { Error(7, "settle_failed", errors.New("disk full")) })

	if !strings.HasPrefix(out, "[ERROR]") {
		t.Errorf("Expected ERROR prefix, got %q", out)
	}
	if !strings.Contains(out, "details=disk full") {
		t.Errorf("Expected error text in %q", out)
	}
}

func TestErrorNil(t *testing.T) {
	out := captureLog(t, func() { Error(0, "noop", nil) })
	if !strings.Contains(out, "details=\n") && !strings.HasSuffix(strings.TrimSpace(out), "details=") {
		t.Errorf("Expected empty details, got %q", out)
	}
}
