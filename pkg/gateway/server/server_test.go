package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/vango-go/salesagent-gateway/pkg/gateway/config"
)

func testConfig() config.Config {
	return config.Config{
		AuthMode: config.AuthModeDisabled,
		APIKeys:  map[string]struct{}{},

		CORSAllowedOrigins:            map[string]struct{}{},
		UpstreamConnectTimeout:        time.Second,
		UpstreamResponseHeaderTimeout: time.Second,

		WSMaxSessionDuration:      time.Minute,
		WSMaxSessionsPerPrincipal: 1,
		LiveMaxJSONMessageBytes:   64 * 1024,
		LiveWSPingInterval:        20 * time.Second,
		LiveWSWriteTimeout:        5 * time.Second,
		LiveHandshakeTimeout:      5 * time.Second,
		LiveTurnTimeout:           30 * time.Second,

		LimitRPS:                   10,
		LimitBurst:                 20,
		LimitMaxConcurrentRequests: 20,
		LimitMaxConcurrentStreams:  10,

		LLMBackend: "http",
		LLMBaseURL: "https://example.invalid",
		LLMAPIKey:  "test-key",
		LLMModel:   "test-model",

		StripeSuccessURL: "https://example.com/checkout/success",
		StripeCancelURL:  "https://example.com/checkout/cancel",

		WorkOSAPIKey:      "test-key",
		WorkOSClientID:    "client_test",
		WorkOSRedirectURL: "https://example.com/v1/operator/callback",
	}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	s, err := New(context.Background(), testConfig(), logger)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func TestServer_UnknownRoute_ReturnsJSON404(t *testing.T) {
	s := newTestServer(t)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/does-not-exist", nil)
	s.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); !strings.Contains(ct, "application/json") {
		t.Fatalf("content-type=%q", ct)
	}
	if !strings.Contains(rr.Body.String(), `"type":"not_found_error"`) {
		t.Fatalf("unexpected body: %q", rr.Body.String())
	}
}

func TestServer_HealthzRoute_Reachable(t *testing.T) {
	s := newTestServer(t)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	s.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
}

func TestServer_ReadyzRoute_Reachable(t *testing.T) {
	s := newTestServer(t)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	s.Handler().ServeHTTP(rr, req)

	if rr.Code == http.StatusNotFound {
		t.Fatalf("/readyz unexpectedly returned 404")
	}
}

func TestServer_PageContextRoute_Reachable(t *testing.T) {
	s := newTestServer(t)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/page-context", strings.NewReader(`{"url":"https://example.com","html":"<html></html>"}`))
	s.Handler().ServeHTTP(rr, req)

	if rr.Code == http.StatusNotFound {
		t.Fatalf("/v1/page-context unexpectedly returned 404")
	}
}

func TestServer_LiveRoute_Reachable(t *testing.T) {
	s := newTestServer(t)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/live", nil)
	s.Handler().ServeHTTP(rr, req)
	if rr.Code == http.StatusNotFound {
		t.Fatalf("/v1/live unexpectedly returned 404")
	}
}

func TestServer_OperatorRoutes_Reachable(t *testing.T) {
	s := newTestServer(t)

	for _, path := range []string{"/v1/operator/login", "/v1/operator/callback", "/v1/operator/config"} {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, path, nil)
		s.Handler().ServeHTTP(rr, req)
		if rr.Code == http.StatusNotFound {
			t.Fatalf("path %s unexpectedly returned 404", path)
		}
	}
}

func TestServer_SetDraining_RejectsLiveHandshake(t *testing.T) {
	s := newTestServer(t)
	s.SetDraining()

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/live", nil)
	s.Handler().ServeHTTP(rr, req)

	if rr.Code != 529 {
		t.Fatalf("status=%d, want 529", rr.Code)
	}
}

func TestServer_WaitLiveSessions_ReturnsTrueWhenIdle(t *testing.T) {
	s := newTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if !s.WaitLiveSessions(ctx) {
		t.Fatalf("expected WaitLiveSessions to return true with no active sessions")
	}
}
