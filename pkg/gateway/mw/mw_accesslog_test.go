package mw

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type testBaseWriter struct {
	header      http.Header
	status      int
	wroteHeader bool
	body        bytes.Buffer
}

func newTestBaseWriter() *testBaseWriter {
	return &testBaseWriter{header: make(http.Header)}
}

func (w *testBaseWriter) Header() http.Header {
	return w.header
}

func (w *testBaseWriter) WriteHeader(code int) {
	if w.wroteHeader {
		return
	}
	w.status = code
	w.wroteHeader = true
}

func (w *testBaseWriter) Write(p []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.body.Write(p)
}

type testHijackerWriter struct {
	*testBaseWriter
	hijacked bool
}

func (w *testHijackerWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	w.hijacked = true
	return nil, nil, nil
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, nil))
}

func parseSingleLogRecord(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	line := strings.TrimSpace(buf.String())
	if line == "" {
		t.Fatal("expected log output")
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(line), &rec); err != nil {
		t.Fatalf("unmarshal log: %v", err)
	}
	return rec
}

func TestAccessLog_PreservesHijacker(t *testing.T) {
	writer := &testHijackerWriter{testBaseWriter: newTestBaseWriter()}
	loggerOut := &bytes.Buffer{}

	h := AccessLog(newTestLogger(loggerOut), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hj, ok := w.(http.Hijacker)
		if !ok {
			t.Fatalf("expected http.Hijacker to be preserved so /v1/live can upgrade")
		}
		_, _, err := hj.Hijack()
		if err != nil {
			t.Fatalf("hijack failed: %v", err)
		}
	}))

	h.ServeHTTP(writer, httptest.NewRequest(http.MethodGet, "/v1/live", nil).WithContext(WithRequestID(context.Background(), "req_test")))

	if !writer.hijacked {
		t.Fatalf("expected underlying hijacker to be invoked")
	}
}

func TestAccessLog_HijackFailsWhenUnderlyingWriterCannot(t *testing.T) {
	writer := newTestBaseWriter()
	loggerOut := &bytes.Buffer{}

	h := AccessLog(newTestLogger(loggerOut), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hj, ok := w.(http.Hijacker)
		if !ok {
			t.Fatalf("statusWriter must always implement http.Hijacker")
		}
		if _, _, err := hj.Hijack(); err == nil {
			t.Fatalf("expected hijack to fail when the underlying writer does not support it")
		}
	}))

	h.ServeHTTP(writer, httptest.NewRequest(http.MethodGet, "/v1/live", nil).WithContext(WithRequestID(context.Background(), "req_test")))
}

func TestAccessLog_StatusLogging_ExplicitWriteHeader(t *testing.T) {
	writer := newTestBaseWriter()
	loggerOut := &bytes.Buffer{}

	h := AccessLog(newTestLogger(loggerOut), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	h.ServeHTTP(writer, httptest.NewRequest(http.MethodGet, "/healthz", nil).WithContext(WithRequestID(context.Background(), "req_test")))

	rec := parseSingleLogRecord(t, loggerOut)
	if got, ok := rec["status"].(float64); !ok || int(got) != http.StatusCreated {
		t.Fatalf("logged status=%v (type %T), want %d", rec["status"], rec["status"], http.StatusCreated)
	}
}

func TestAccessLog_StatusLogging_ImplicitWriteIs200(t *testing.T) {
	writer := newTestBaseWriter()
	loggerOut := &bytes.Buffer{}

	h := AccessLog(newTestLogger(loggerOut), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "ok")
	}))

	h.ServeHTTP(writer, httptest.NewRequest(http.MethodGet, "/healthz", nil).WithContext(WithRequestID(context.Background(), "req_test")))

	rec := parseSingleLogRecord(t, loggerOut)
	if got, ok := rec["status"].(float64); !ok || int(got) != http.StatusOK {
		t.Fatalf("logged status=%v (type %T), want %d", rec["status"], rec["status"], http.StatusOK)
	}
}

func TestAccessLog_LogsRequestIDMethodAndPath(t *testing.T) {
	writer := newTestBaseWriter()
	loggerOut := &bytes.Buffer{}

	h := AccessLog(newTestLogger(loggerOut), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "ok")
	}))

	h.ServeHTTP(writer, httptest.NewRequest(http.MethodPost, "/v1/page-context", nil).WithContext(WithRequestID(context.Background(), "req_abc")))

	rec := parseSingleLogRecord(t, loggerOut)
	if rec["request_id"] != "req_abc" {
		t.Fatalf("request_id=%v, want req_abc", rec["request_id"])
	}
	if rec["method"] != http.MethodPost {
		t.Fatalf("method=%v, want POST", rec["method"])
	}
	if rec["path"] != "/v1/page-context" {
		t.Fatalf("path=%v, want /v1/page-context", rec["path"])
	}
}
