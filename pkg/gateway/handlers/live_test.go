package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vango-go/salesagent-gateway/pkg/core/cache"
	"github.com/vango-go/salesagent-gateway/pkg/core/llm"
	"github.com/vango-go/salesagent-gateway/pkg/gateway/config"
	"github.com/vango-go/salesagent-gateway/pkg/gateway/lifecycle"
	"github.com/vango-go/salesagent-gateway/pkg/gateway/live/sessions"
)

type fakeLLM struct {
	text string
}

func (f *fakeLLM) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	if f.text != "" {
		return &llm.Response{Text: f.text}, nil
	}
	return &llm.Response{Text: "Thanks for sharing that."}, nil
}

func newLiveTestServer(t *testing.T, llmClient llm.Client) (*httptest.Server, string) {
	t.Helper()
	h := LiveHandler{
		Config: config.Config{
			LiveMaxJSONMessageBytes: 256 * 1024,
			LiveHandshakeTimeout:    2 * time.Second,
			LiveWSPingInterval:      20 * time.Second,
			LiveWSWriteTimeout:      5 * time.Second,
			LiveTurnTimeout:         10 * time.Second,
		},
		LLM:          llmClient,
		ModelName:    "test-model",
		Cache:        cache.New(cache.DefaultTTL),
		Lifecycle:    &lifecycle.Lifecycle{},
		LiveSessions: sessions.NewTracker(),
	}
	srv := httptest.NewServer(h)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	return srv, wsURL
}

func mustDialWS(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	return conn
}

func mustWriteJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	if err := conn.WriteJSON(v); err != nil {
		t.Fatalf("write json: %v", err)
	}
}

func readJSON(conn *websocket.Conn, timeout time.Duration) (map[string]any, error) {
	_ = conn.SetReadDeadline(time.Now().Add(timeout))
	var msg map[string]any
	err := conn.ReadJSON(&msg)
	return msg, err
}

func mustReadJSON(t *testing.T, conn *websocket.Conn, timeout time.Duration) map[string]any {
	t.Helper()
	msg, err := readJSON(conn, timeout)
	if err != nil {
		t.Fatalf("read json: %v", err)
	}
	return msg
}

func baseHello(protocolVersion string) map[string]any {
	return map[string]any{
		"type":             "hello",
		"protocol_version": protocolVersion,
		"client":           map[string]any{"name": "test-client"},
	}
}

func TestLiveHandler_HandshakeUnsupportedVersion(t *testing.T) {
	srv, wsURL := newLiveTestServer(t, &fakeLLM{})
	defer srv.Close()

	conn := mustDialWS(t, wsURL)
	defer conn.Close()

	mustWriteJSON(t, conn, baseHello("2"))

	msg := mustReadJSON(t, conn, 2*time.Second)
	if msg["type"] != "error" {
		t.Fatalf("type=%v", msg["type"])
	}
	if msg["code"] != "unsupported" {
		t.Fatalf("code=%v", msg["code"])
	}
}

func TestLiveHandler_RejectsNonGet(t *testing.T) {
	h := LiveHandler{Lifecycle: &lifecycle.Lifecycle{}}
	req := httptest.NewRequest(http.MethodPost, "/v1/live", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", w.Code)
	}
}

func TestLiveHandler_RejectsWhenDraining(t *testing.T) {
	lc := &lifecycle.Lifecycle{}
	lc.SetDraining(true)
	h := LiveHandler{Lifecycle: lc}
	req := httptest.NewRequest(http.MethodGet, "/v1/live", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != 529 {
		t.Fatalf("status = %d, want 529", w.Code)
	}
}

func TestLiveHandler_RejectsDisallowedOrigin(t *testing.T) {
	h := LiveHandler{
		Lifecycle: &lifecycle.Lifecycle{},
		Config:    config.Config{CORSAllowedOrigins: map[string]struct{}{"https://allowed.example": {}}},
	}
	req := httptest.NewRequest(http.MethodGet, "/v1/live", nil)
	req.Header.Set("Origin", "https://evil.example")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", w.Code)
	}
}

func TestLiveHandler_TranscriptFinalProducesAssistantResponse(t *testing.T) {
	srv, wsURL := newLiveTestServer(t, &fakeLLM{text: "Great, let's find the right plan for you."})
	defer srv.Close()

	conn := mustDialWS(t, wsURL)
	defer conn.Close()

	mustWriteJSON(t, conn, baseHello("1"))
	ack := mustReadJSON(t, conn, 2*time.Second)
	if ack["type"] != "hello_ack" {
		t.Fatalf("ack type=%v payload=%+v", ack["type"], ack)
	}
	if ack["session_id"] == "" || ack["session_id"] == nil {
		t.Fatalf("expected a session_id in hello_ack, got %+v", ack)
	}

	mustWriteJSON(t, conn, map[string]any{
		"type":     "transcript_delta",
		"text":     "I need a plan for my team of twenty",
		"is_final": true,
	})

	seenTranscriptFinal := false
	seenAssistantFinal := false
	var assistantText string
	for i := 0; i < 10; i++ {
		msg, err := readJSON(conn, 2*time.Second)
		if err != nil {
			t.Fatalf("read json: %v", err)
		}
		switch msg["type"] {
		case "transcript_final":
			seenTranscriptFinal = true
		case "assistant_text_final":
			seenAssistantFinal = true
			assistantText, _ = msg["text"].(string)
		}
		if seenTranscriptFinal && seenAssistantFinal {
			break
		}
	}

	if !seenTranscriptFinal {
		t.Fatalf("expected a transcript_final frame")
	}
	if !seenAssistantFinal {
		t.Fatalf("expected an assistant_text_final frame")
	}
	if assistantText == "" {
		t.Fatalf("expected non-empty assistant text")
	}
}

func TestLiveHandler_ControlEndSessionClosesConnection(t *testing.T) {
	srv, wsURL := newLiveTestServer(t, &fakeLLM{})
	defer srv.Close()

	conn := mustDialWS(t, wsURL)
	defer conn.Close()

	mustWriteJSON(t, conn, baseHello("1"))
	_ = mustReadJSON(t, conn, 2*time.Second)

	mustWriteJSON(t, conn, map[string]any{"type": "control", "op": "end_session"})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
