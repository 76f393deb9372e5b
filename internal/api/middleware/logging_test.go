package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func captureLogger(buf *bytes.Buffer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: level}))
}

func decodeLogLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("parsing log output %q: %v", buf.String(), err)
	}
	return entry
}

func TestRequestLogCarriesWebhookDelivery(t *testing.T) {
	var buf bytes.Buffer
	handler := StructuredLogger(captureLogger(&buf, slog.LevelInfo))(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"action":"stream"}`))
		}))

	req := httptest.NewRequest(http.MethodPost, "/webhooks/voice/incoming", nil)
	req.RemoteAddr = "203.0.113.9:41000"
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	entry := decodeLogLine(t, &buf)
	if entry["method"] != "POST" {
		t.Errorf("method = %v, want POST", entry["method"])
	}
	if entry["path"] != "/webhooks/voice/incoming" {
		t.Errorf("path = %v", entry["path"])
	}
	// JSON numbers decode as float64.
	if entry["status"] != float64(200) {
		t.Errorf("status = %v, want 200", entry["status"])
	}
	if entry["bytes"] != float64(len(`{"action":"stream"}`)) {
		t.Errorf("bytes = %v", entry["bytes"])
	}
	if _, ok := entry["duration_ms"]; !ok {
		t.Error("missing duration_ms")
	}
}

func TestRequestLogExplicitStatus(t *testing.T) {
	var buf bytes.Buffer
	handler := StructuredLogger(captureLogger(&buf, slog.LevelInfo))(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))

	req := httptest.NewRequest(http.MethodGet, "/media/CA-unknown", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	entry := decodeLogLine(t, &buf)
	if entry["status"] != float64(404) {
		t.Errorf("status = %v, want 404", entry["status"])
	}
	if entry["path"] != "/media/CA-unknown" {
		t.Errorf("path = %v", entry["path"])
	}
}

func TestScrapeEndpointsDemotedToDebug(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	for _, path := range []string{"/healthz", "/metrics"} {
		var buf bytes.Buffer
		handler := StructuredLogger(captureLogger(&buf, slog.LevelInfo))(ok)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		if buf.Len() != 0 {
			t.Errorf("%s logged at info level: %s", path, buf.String())
		}

		buf.Reset()
		handler = StructuredLogger(captureLogger(&buf, slog.LevelDebug))(ok)
		rr = httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		if buf.Len() == 0 {
			t.Errorf("%s produced no debug log line", path)
		}
	}
}

func TestRequestLogFirstStatusWins(t *testing.T) {
	var buf bytes.Buffer
	handler := StructuredLogger(captureLogger(&buf, slog.LevelInfo))(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusCreated)
			w.WriteHeader(http.StatusInternalServerError) // ignored
		}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/organizations", nil))

	entry := decodeLogLine(t, &buf)
	if entry["status"] != float64(201) {
		t.Errorf("status = %v, want 201", entry["status"])
	}
}
