package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestExecuteCommand(t *testing.T) {
	var got string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/command" {
			http.NotFound(w, r)
			return
		}
		var req map[string]string
		_ = json.NewDecoder(r.Body).Decode(&req)
		got = req["command"]
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"message":"Print job queued: abc","job_id":"abc","total":"30"}`))
	}))
	defer ts.Close()

	result := executeCommand(ts.Client(), ts.URL+"/", quoteArgs([]string{"print", "10", "20"}))
	if got != "print 10 20" {
		t.Errorf("server received %q", got)
	}
	if !result.Success || result.Message != "Print job queued: abc" {
		t.Errorf("unexpected result %+v", result)
	}
	if result.Data["job_id"] != "abc" || result.Data["total"] != "30" {
		t.Errorf("unexpected data %v", result.Data)
	}
}

func TestExecuteCommand_ServerDown(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	result := executeCommand(http.DefaultClient, url, "status")
	if result.Success || !strings.HasPrefix(result.Error, "failed to connect to server") {
		t.Errorf("unexpected result %+v", result)
	}
}

func TestDecodeResult_Failure(t *testing.T) {
	result := decodeResult([]byte(`{"success":false,"error":"job not found: x"}`))
	if result.Success || result.Error != "job not found: x" {
		t.Errorf("unexpected result %+v", result)
	}
	if !strings.Contains(renderError(result), "job not found: x") {
		t.Error("rendered error missing message")
	}
}

func TestQuoteArgs(t *testing.T) {
	if got := quoteArgs([]string{"connect", "My Printer"}); got != `connect "My Printer"` {
		t.Errorf("got %q", got)
	}
}

func TestPreviewText(t *testing.T) {
	payload := "[L]<font size='tall'>SHOP</font>\n[L]DATE:05/03/2024   TIME:09:07[L]<b>TOTAL</b>"
	want := "SHOP\nDATE:05/03/2024   TIME:09:07\nTOTAL"
	if got := previewText(payload); got != want {
		t.Errorf("previewText = %q, want %q", got, want)
	}
}

func TestRenderSuccess_Devices(t *testing.T) {
	result := decodeResult([]byte(`{"success":true,"message":"Found 1 device(s)","devices":[{"id":"AA:BB","name":"Counter","kind":"bluetooth"}]}`))
	out := renderSuccess(result)
	if !strings.Contains(out, "AA:BB") || !strings.Contains(out, "Counter") {
		t.Errorf("unexpected output %q", out)
	}
}
