package handlers

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vango-go/salesagent-gateway/pkg/core/archive"
	"github.com/vango-go/salesagent-gateway/pkg/core/billing"
	"github.com/vango-go/salesagent-gateway/pkg/core/cache"
	"github.com/vango-go/salesagent-gateway/pkg/core/llm"
	"github.com/vango-go/salesagent-gateway/pkg/core/triggers"
	"github.com/vango-go/salesagent-gateway/pkg/core/voice/tts"
	"github.com/vango-go/salesagent-gateway/pkg/gateway/config"
	"github.com/vango-go/salesagent-gateway/pkg/gateway/ledger"
	"github.com/vango-go/salesagent-gateway/pkg/gateway/lifecycle"
	"github.com/vango-go/salesagent-gateway/pkg/gateway/live/protocol"
	"github.com/vango-go/salesagent-gateway/pkg/gateway/live/session"
	"github.com/vango-go/salesagent-gateway/pkg/gateway/live/sessions"
	"github.com/vango-go/salesagent-gateway/pkg/gateway/mw"
	"github.com/vango-go/salesagent-gateway/pkg/gateway/principal"
	"github.com/vango-go/salesagent-gateway/pkg/gateway/ratelimit"

	"github.com/PuerkitoBio/goquery"
)

// LiveHandler upgrades GET /v1/live to a WebSocket and runs one
// session.LiveSession per connection. It owns everything shared across
// connections (the LLM/TTS clients, the content cache, the trigger engine,
// the ledger/billing/archive clients) and hands a fresh Dependencies value
// to session.New for each hello it accepts.
type LiveHandler struct {
	Config config.Config
	Logger *slog.Logger

	LLM       llm.Client
	TTS       *tts.RemoteClient
	ModelName string
	Cache     *cache.Cache
	// TriggerRules is the shared rule table every connection's own
	// triggers.Engine is constructed from in ServeHTTP: cooldown/fired
	// state must stay per-session, so the *Engine itself is never shared.
	TriggerRules []triggers.Rule
	Ledger       *ledger.Store
	Billing      *billing.Client
	PlanPricing  billing.PlanPricing
	Archive      *archive.Client

	Limiter      *ratelimit.Limiter
	Lifecycle    *lifecycle.Lifecycle
	LiveSessions *sessions.Tracker
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (h LiveHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())

	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.Lifecycle.IsDraining() {
		http.Error(w, "gateway is draining", 529)
		return
	}
	if !h.originAllowed(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	principalKey := h.resolvePrincipal(r)
	var permit *ratelimit.Permit
	if h.Limiter != nil {
		dec := h.Limiter.AcquireStream(principalKey, time.Now())
		if !dec.Allowed {
			http.Error(w, "too many concurrent live sessions", http.StatusTooManyRequests)
			return
		}
		permit = dec.Permit
	}
	releasePermit := func() {
		if permit != nil {
			permit.Release()
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		releasePermit()
		return
	}
	defer releasePermit()

	if h.Config.LiveMaxJSONMessageBytes > 0 {
		conn.SetReadLimit(h.Config.LiveMaxJSONMessageBytes)
	}
	handshakeTimeout := h.Config.LiveHandshakeTimeout
	if handshakeTimeout <= 0 {
		handshakeTimeout = 5 * time.Second
	}
	_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))

	msgType, data, err := conn.ReadMessage()
	if err != nil {
		return
	}
	if msgType != websocket.TextMessage {
		h.writeWSError(conn, "bad_request", "first frame must be a hello frame", true)
		return
	}

	decoded, decodeErr := protocol.DecodeClientMessage(data)
	if decodeErr != nil {
		h.writeWSError(conn, "bad_request", decodeErr.Error(), true)
		return
	}
	hello, ok := decoded.(protocol.ClientHello)
	if !ok {
		h.writeWSError(conn, "bad_request", "first frame must be a hello frame", true)
		return
	}
	if hello.ProtocolVersion != protocol.ProtocolVersion1 {
		h.writeWSError(conn, "unsupported", "unsupported protocol_version", true)
		return
	}

	_ = conn.SetReadDeadline(time.Time{})
	sessionID := "s_" + randHex(8)

	if h.Logger != nil {
		h.Logger.Info("live: session starting", "session_id", sessionID, "request_id", reqID, "hello", hello.RedactedForLog())
	}

	s, err := session.New(session.Dependencies{
		Conn:        conn,
		Logger:      h.Logger,
		LLM:         h.LLM,
		TTS:         h.TTS,
		ModelName:   h.ModelName,
		Hello:       hello,
		SessionID:   sessionID,
		Cache:       h.Cache,
		Triggers:    triggers.NewEngine(h.TriggerRules),
		Ledger:      h.Ledger,
		Billing:     h.Billing,
		PlanPricing: h.PlanPricing,
		Archive:     h.Archive,
		Config: session.Config{
			PingInterval:          h.Config.LiveWSPingInterval,
			WriteTimeout:          h.Config.LiveWSWriteTimeout,
			ReadTimeout:           h.Config.LiveWSReadTimeout,
			SilenceCommitDuration: 800 * time.Millisecond,
			RestartDelay:          300 * time.Millisecond,
			ErrorRecoveryDelay:    2 * time.Second,
			TurnTimeout:           h.Config.LiveTurnTimeout,
			MaxUnplayedDuration:   h.Config.LiveMaxUnplayedDuration,
			PlaybackStopWait:      h.Config.LivePlaybackStopWait,
		},
	})
	if err != nil {
		h.writeWSError(conn, "internal", "failed to initialize live session", true)
		return
	}

	if pageCtx, html, ok := TokenLookup(h.Cache, hello.PageContextToken); ok {
		if doc, docErr := goquery.NewDocumentFromReader(strings.NewReader(html)); docErr == nil {
			s.UpdatePageContext(pageCtx, doc)
		}
	}

	unregister := func() {}
	if h.LiveSessions != nil {
		unregister = h.LiveSessions.Register(sessionID, sessions.Handle{
			Cancel: s.Cancel,
			Warn:   s.SendWarning,
		})
	}
	defer unregister()

	if err := s.Run(); err != nil && h.Logger != nil {
		h.Logger.Warn("live session ended with error", "session_id", sessionID, "request_id", reqID, "error", err)
	}
}

func (h LiveHandler) originAllowed(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	if len(h.Config.CORSAllowedOrigins) == 0 {
		return false
	}
	_, ok := h.Config.CORSAllowedOrigins[origin]
	return ok
}

func (h LiveHandler) resolvePrincipal(r *http.Request) string {
	p := principal.Resolve(r, h.Config)
	if strings.TrimSpace(p.Key) == "" {
		return "anonymous"
	}
	return p.Key
}

func (h LiveHandler) writeWSError(conn *websocket.Conn, code, message string, close bool) {
	_ = conn.WriteJSON(protocol.ServerError{Type: "error", Code: code, Message: message, Close: close})
	if close {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, message), time.Now().Add(2*time.Second))
	}
}

func randHex(nbytes int) string {
	b := make([]byte, nbytes)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}
