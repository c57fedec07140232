package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type AuthMode string

const (
	AuthModeRequired AuthMode = "required"
	AuthModeOptional AuthMode = "optional"
	AuthModeDisabled AuthMode = "disabled"
)

// Config is the gateway's entire runtime configuration, loaded once from the
// environment at startup. Nothing below is hot-reloaded; a config change
// means a restart.
type Config struct {
	Addr string

	AuthMode AuthMode
	APIKeys  map[string]struct{}

	// If true, client identity may be derived from proxy headers like X-Forwarded-For.
	// This should only be enabled when the gateway is deployed behind a trusted proxy/LB.
	TrustProxyHeaders bool

	MaxBodyBytes int64

	// CORS
	CORSAllowedOrigins map[string]struct{} // empty => disabled

	WSMaxSessionDuration      time.Duration
	WSMaxSessionsPerPrincipal int

	// Live WebSocket mode (/v1/live): voice turn-taking, barge-in, TTS relay.
	LiveMaxJSONMessageBytes   int64
	LiveHandshakeTimeout      time.Duration
	LiveWSPingInterval        time.Duration
	LiveWSWriteTimeout        time.Duration
	LiveWSReadTimeout         time.Duration
	LiveTurnTimeout           time.Duration
	LiveMaxUnplayedDuration   time.Duration
	LivePlaybackStopWait      time.Duration
	LiveRemoteTTSWSBaseURL    string
	LiveTTSAPIKey             string

	// Page-context cache (C2).
	PageContextCacheTTL         time.Duration
	PageContextMutationDebounce time.Duration
	PageContextSweepInterval    time.Duration

	// In-memory limits (per principal).
	LimitRPS                   float64
	LimitBurst                 int
	LimitMaxConcurrentRequests int
	LimitMaxConcurrentStreams  int

	// Operational defaults
	ReadHeaderTimeout   time.Duration
	ReadTimeout         time.Duration
	HandlerTimeout      time.Duration
	ShutdownGracePeriod time.Duration

	// Upstream HTTP client defaults (LLM backend, TTS, archive uploads).
	UpstreamConnectTimeout        time.Duration
	UpstreamResponseHeaderTimeout time.Duration

	// LLM backend (pkg/core/llm).
	LLMBackend  string // "http" or "gemini"
	LLMAPIKey   string
	LLMBaseURL  string
	LLMModel    string

	// Session ledger (pkg/gateway/ledger), backed by Postgres via pgx + goose migrations.
	LedgerDatabaseURL string

	// Billing (pkg/core/billing), backed by Stripe Checkout.
	StripeSecretKey   string
	StripeSuccessURL  string
	StripeCancelURL   string

	// Operator console (pkg/gateway/operator), authenticated via WorkOS.
	WorkOSAPIKey       string
	WorkOSClientID     string
	WorkOSRedirectURL  string

	// Voice transcript archive (pkg/core/archive), backed by S3.
	ArchiveS3Bucket string
	ArchiveS3Region string
	ArchiveEnabled  bool
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:                          envOr("SALESAGENT_ADDR", ":8080"),
		AuthMode:                      AuthMode(envOr("SALESAGENT_AUTH_MODE", string(AuthModeRequired))),
		APIKeys:                       make(map[string]struct{}),
		TrustProxyHeaders:             envBoolOr("SALESAGENT_TRUST_PROXY_HEADERS", false),
		MaxBodyBytes:                  envInt64Or("SALESAGENT_MAX_BODY_BYTES", 2<<20), // 2 MiB, covers a full-page DOM snapshot
		CORSAllowedOrigins:            make(map[string]struct{}),
		WSMaxSessionDuration:          envDurationOr("SALESAGENT_WS_MAX_DURATION", 2*time.Hour),
		WSMaxSessionsPerPrincipal:     envIntOr("SALESAGENT_WS_MAX_SESSIONS_PER_PRINCIPAL", 4),
		LiveMaxJSONMessageBytes:       envInt64Or("SALESAGENT_LIVE_MAX_JSON_MESSAGE_BYTES", 256*1024),
		LiveHandshakeTimeout:          envDurationOr("SALESAGENT_LIVE_HANDSHAKE_TIMEOUT", 5*time.Second),
		LiveWSPingInterval:            envDurationOr("SALESAGENT_LIVE_WS_PING_INTERVAL", 20*time.Second),
		LiveWSWriteTimeout:            envDurationOr("SALESAGENT_LIVE_WS_WRITE_TIMEOUT", 5*time.Second),
		LiveWSReadTimeout:             envDurationOr("SALESAGENT_LIVE_WS_READ_TIMEOUT", 0),
		LiveTurnTimeout:               envDurationOr("SALESAGENT_LIVE_TURN_TIMEOUT", 30*time.Second),
		LiveMaxUnplayedDuration:       envDurationOr("SALESAGENT_LIVE_MAX_UNPLAYED_MS", 20*time.Second),
		LivePlaybackStopWait:          envDurationOr("SALESAGENT_LIVE_PLAYBACK_STOP_WAIT_MS", 2*time.Second),
		LiveRemoteTTSWSBaseURL:        envOr("SALESAGENT_TTS_WS_BASE_URL", "wss://api.elevenlabs.io/v1/text-to-speech"),
		LiveTTSAPIKey:                 os.Getenv("SALESAGENT_TTS_API_KEY"),
		PageContextCacheTTL:           envDurationOr("SALESAGENT_PAGE_CONTEXT_CACHE_TTL", 5*time.Minute),
		PageContextMutationDebounce:   envDurationOr("SALESAGENT_PAGE_CONTEXT_MUTATION_DEBOUNCE", time.Second),
		PageContextSweepInterval:      envDurationOr("SALESAGENT_PAGE_CONTEXT_SWEEP_INTERVAL", 60*time.Second),
		LimitRPS:                      envFloat64Or("SALESAGENT_RATE_LIMIT_RPS", 4.0),
		LimitBurst:                    envIntOr("SALESAGENT_RATE_LIMIT_BURST", 8),
		LimitMaxConcurrentRequests:    envIntOr("SALESAGENT_MAX_CONCURRENT_REQUESTS", 20),
		LimitMaxConcurrentStreams:     envIntOr("SALESAGENT_MAX_STREAMS_PER_PRINCIPAL", 4),
		ReadHeaderTimeout:             envDurationOr("SALESAGENT_READ_HEADER_TIMEOUT", 10*time.Second),
		ReadTimeout:                   envDurationOr("SALESAGENT_READ_TIMEOUT", 30*time.Second),
		HandlerTimeout:                envDurationOr("SALESAGENT_TOTAL_REQUEST_TIMEOUT", 2*time.Minute),
		ShutdownGracePeriod:           envDurationOr("SALESAGENT_SHUTDOWN_GRACE_PERIOD", 30*time.Second),
		UpstreamConnectTimeout:        envDurationOr("SALESAGENT_CONNECT_TIMEOUT", 5*time.Second),
		UpstreamResponseHeaderTimeout: envDurationOr("SALESAGENT_RESPONSE_HEADER_TIMEOUT", 30*time.Second),
		LLMBackend:                    envOr("SALESAGENT_LLM_BACKEND", "gemini"),
		LLMAPIKey:                     os.Getenv("SALESAGENT_LLM_API_KEY"),
		LLMBaseURL:                    envOr("SALESAGENT_LLM_BASE_URL", ""),
		LLMModel:                      envOr("SALESAGENT_LLM_MODEL", "gemini-2.0-flash"),
		LedgerDatabaseURL:             os.Getenv("SALESAGENT_LEDGER_DATABASE_URL"),
		StripeSecretKey:               os.Getenv("SALESAGENT_STRIPE_SECRET_KEY"),
		StripeSuccessURL:              envOr("SALESAGENT_STRIPE_SUCCESS_URL", "https://example.com/checkout/success"),
		StripeCancelURL:               envOr("SALESAGENT_STRIPE_CANCEL_URL", "https://example.com/checkout/cancel"),
		WorkOSAPIKey:                  os.Getenv("SALESAGENT_WORKOS_API_KEY"),
		WorkOSClientID:                os.Getenv("SALESAGENT_WORKOS_CLIENT_ID"),
		WorkOSRedirectURL:             envOr("SALESAGENT_WORKOS_REDIRECT_URL", "https://example.com/operator/callback"),
		ArchiveS3Bucket:               os.Getenv("SALESAGENT_ARCHIVE_S3_BUCKET"),
		ArchiveS3Region:               envOr("SALESAGENT_ARCHIVE_S3_REGION", "us-east-1"),
	}
	cfg.ArchiveEnabled = strings.TrimSpace(cfg.ArchiveS3Bucket) != ""

	switch cfg.AuthMode {
	case AuthModeRequired, AuthModeOptional, AuthModeDisabled:
	default:
		return Config{}, fmt.Errorf("SALESAGENT_AUTH_MODE must be one of required|optional|disabled")
	}

	for _, key := range splitCSV(os.Getenv("SALESAGENT_API_KEYS")) {
		cfg.APIKeys[key] = struct{}{}
	}

	for _, origin := range splitCSV(os.Getenv("SALESAGENT_CORS_ORIGINS")) {
		cfg.CORSAllowedOrigins[origin] = struct{}{}
	}

	if cfg.MaxBodyBytes <= 0 {
		return Config{}, fmt.Errorf("SALESAGENT_MAX_BODY_BYTES must be > 0")
	}
	if cfg.WSMaxSessionDuration <= 0 {
		return Config{}, fmt.Errorf("SALESAGENT_WS_MAX_DURATION must be > 0")
	}
	if cfg.WSMaxSessionsPerPrincipal <= 0 {
		return Config{}, fmt.Errorf("SALESAGENT_WS_MAX_SESSIONS_PER_PRINCIPAL must be > 0")
	}
	if cfg.LiveMaxJSONMessageBytes <= 0 {
		return Config{}, fmt.Errorf("SALESAGENT_LIVE_MAX_JSON_MESSAGE_BYTES must be > 0")
	}
	if cfg.LiveHandshakeTimeout <= 0 {
		return Config{}, fmt.Errorf("SALESAGENT_LIVE_HANDSHAKE_TIMEOUT must be > 0")
	}
	if cfg.LiveWSPingInterval <= 0 {
		return Config{}, fmt.Errorf("SALESAGENT_LIVE_WS_PING_INTERVAL must be > 0")
	}
	if cfg.LiveWSWriteTimeout <= 0 {
		return Config{}, fmt.Errorf("SALESAGENT_LIVE_WS_WRITE_TIMEOUT must be > 0")
	}
	if cfg.LiveWSReadTimeout < 0 {
		return Config{}, fmt.Errorf("SALESAGENT_LIVE_WS_READ_TIMEOUT must be >= 0")
	}
	if cfg.LiveTurnTimeout < 0 {
		return Config{}, fmt.Errorf("SALESAGENT_LIVE_TURN_TIMEOUT must be >= 0")
	}
	if cfg.PageContextCacheTTL <= 0 {
		return Config{}, fmt.Errorf("SALESAGENT_PAGE_CONTEXT_CACHE_TTL must be > 0")
	}
	if cfg.PageContextSweepInterval <= 0 {
		return Config{}, fmt.Errorf("SALESAGENT_PAGE_CONTEXT_SWEEP_INTERVAL must be > 0")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("SALESAGENT_READ_HEADER_TIMEOUT must be > 0")
	}
	if cfg.ReadTimeout <= 0 {
		return Config{}, fmt.Errorf("SALESAGENT_READ_TIMEOUT must be > 0")
	}
	if cfg.HandlerTimeout <= 0 {
		return Config{}, fmt.Errorf("SALESAGENT_TOTAL_REQUEST_TIMEOUT must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return Config{}, fmt.Errorf("SALESAGENT_SHUTDOWN_GRACE_PERIOD must be > 0")
	}
	if cfg.UpstreamConnectTimeout <= 0 {
		return Config{}, fmt.Errorf("SALESAGENT_CONNECT_TIMEOUT must be > 0")
	}
	if cfg.UpstreamResponseHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("SALESAGENT_RESPONSE_HEADER_TIMEOUT must be > 0")
	}
	switch cfg.LLMBackend {
	case "http", "gemini":
	default:
		return Config{}, fmt.Errorf("SALESAGENT_LLM_BACKEND must be one of http|gemini")
	}

	if cfg.LimitRPS < 0 {
		return Config{}, fmt.Errorf("SALESAGENT_RATE_LIMIT_RPS must be >= 0")
	}
	if cfg.LimitBurst < 0 {
		return Config{}, fmt.Errorf("SALESAGENT_RATE_LIMIT_BURST must be >= 0")
	}
	if cfg.LimitMaxConcurrentRequests < 0 {
		return Config{}, fmt.Errorf("SALESAGENT_MAX_CONCURRENT_REQUESTS must be >= 0")
	}
	if cfg.LimitMaxConcurrentStreams < 0 {
		return Config{}, fmt.Errorf("SALESAGENT_MAX_STREAMS_PER_PRINCIPAL must be >= 0")
	}

	if cfg.AuthMode == AuthModeRequired && len(cfg.APIKeys) == 0 {
		return Config{}, fmt.Errorf("SALESAGENT_API_KEYS must be set when SALESAGENT_AUTH_MODE=required")
	}

	return cfg, nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt64Or(key string, def int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envIntOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envFloat64Or(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return n
}

func envBoolOr(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	switch strings.ToLower(raw) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return def
	}
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}

func splitCSV(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
