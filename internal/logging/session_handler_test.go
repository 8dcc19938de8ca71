package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestSessionIDHandlerStampsRecords(t *testing.T) {
	var buf bytes.Buffer
	handler := newSessionIDHandler(slog.NewJSONHandler(&buf, nil), "20260825-093000-1f2e")

	slog.New(handler).Info("daemon started")

	if output := buf.String(); !strings.Contains(output, `"session_id":"20260825-093000-1f2e"`) {
		t.Errorf("expected session_id in output, got: %s", output)
	}
}

func TestSessionIDHandlerPreservesWithAttrs(t *testing.T) {
	var buf bytes.Buffer
	handler := newSessionIDHandler(slog.NewJSONHandler(&buf, nil), "run-7")

	slog.New(handler).With("piece_title", "Arabesque").Info("queued")

	output := buf.String()
	if !strings.Contains(output, `"session_id":"run-7"`) {
		t.Errorf("expected session_id in output, got: %s", output)
	}
	if !strings.Contains(output, `"piece_title":"Arabesque"`) {
		t.Errorf("expected piece attr in output, got: %s", output)
	}
}

func TestSessionIDHandlerNilBase(t *testing.T) {
	if _, ok := newSessionIDHandler(nil, "run-1").(NoopHandler); !ok {
		t.Error("expected NoopHandler when base is nil")
	}
}
