package tui

import (
	"strings"
	"testing"
	"time"

	"github.com/thereceipt/bill-printer/internal/command"
	"github.com/thereceipt/bill-printer/internal/kvstore"
	"github.com/thereceipt/bill-printer/internal/registry"
	"github.com/thereceipt/bill-printer/internal/session"
)

func TestResultLines(t *testing.T) {
	r := &command.Result{
		Success: true,
		Message: "Discovered 1 device(s)",
		Data: map[string]any{
			"devices": []map[string]any{{"id": "AA:BB", "name": "Counter", "kind": "bluetooth"}},
		},
	}
	lines := resultLines(r)
	if len(lines) != 2 || lines[1] != "  AA:BB  Counter (bluetooth)" {
		t.Errorf("unexpected lines %q", lines)
	}

	failed := resultLines(&command.Result{Message: "Could not connect", Error: "boom"})
	if len(failed) != 2 || failed[1] != "boom" {
		t.Errorf("unexpected failure lines %q", failed)
	}
}

func TestLevelOf(t *testing.T) {
	tests := map[string]string{
		"12:00 ERRO session: connect failed": "error",
		"12:00 WARN queue: job failed":       "warning",
		"12:00 INFO api: listening":          "info",
	}
	for line, want := range tests {
		if got := levelOf(line); got != want {
			t.Errorf("levelOf(%q) = %q, want %q", line, got, want)
		}
	}
}

func TestQuoteArg(t *testing.T) {
	if quoteArg("AA:BB") != "AA:BB" {
		t.Error("plain id should not be quoted")
	}
	if quoteArg("/dev/cu.My Printer") != `"/dev/cu.My Printer"` {
		t.Error("id with spaces should be quoted")
	}
}

func TestStatusText(t *testing.T) {
	s := session.New(nil, kvstore.NewMemory())
	defer s.Close()

	d := registry.Device{DeviceName: "Counter [1]", MacAddress: "AA:BB"}
	text := statusText(session.State{Status: session.StatusConnected, Device: &d}, s, 90*time.Minute, "12212", 3)

	if !strings.Contains(text, "Connected") || !strings.Contains(text, "Uptime: 1h 30m") {
		t.Errorf("unexpected status %q", text)
	}
	if strings.Contains(text, "Counter [1]") {
		t.Errorf("device name should be escaped for tview: %q", text)
	}
}

func TestLogWriter(t *testing.T) {
	app := NewTViewApp(session.New(nil, kvstore.NewMemory()), nil, nil, "12212")
	w := app.LogWriter()
	if _, err := w.Write([]byte("INFO first\nWARN second\n")); err != nil {
		t.Fatal(err)
	}
	text := app.logsArea.GetText(true)
	if !strings.Contains(text, "first") || !strings.Contains(text, "second") {
		t.Errorf("log panel missing lines: %q", text)
	}
}
