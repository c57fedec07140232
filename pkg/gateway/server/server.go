package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/vango-go/salesagent-gateway/pkg/core/archive"
	"github.com/vango-go/salesagent-gateway/pkg/core/behavior"
	"github.com/vango-go/salesagent-gateway/pkg/core/billing"
	"github.com/vango-go/salesagent-gateway/pkg/core/cache"
	"github.com/vango-go/salesagent-gateway/pkg/core/llm"
	"github.com/vango-go/salesagent-gateway/pkg/core/triggers"
	"github.com/vango-go/salesagent-gateway/pkg/core/voice/tts"
	"github.com/vango-go/salesagent-gateway/pkg/gateway/config"
	"github.com/vango-go/salesagent-gateway/pkg/gateway/handlers"
	"github.com/vango-go/salesagent-gateway/pkg/gateway/ledger"
	"github.com/vango-go/salesagent-gateway/pkg/gateway/lifecycle"
	"github.com/vango-go/salesagent-gateway/pkg/gateway/live/sessions"
	"github.com/vango-go/salesagent-gateway/pkg/gateway/mw"
	"github.com/vango-go/salesagent-gateway/pkg/gateway/operator"
	"github.com/vango-go/salesagent-gateway/pkg/gateway/ratelimit"
)

// Server wires every gateway dependency together: the shared LLM/TTS
// clients, the content cache and trigger rule table the live sessions read
// from, the ledger/billing/archive clients, and the operator console, then
// exposes the whole thing as a single http.Handler.
type Server struct {
	cfg    config.Config
	logger *slog.Logger
	mux    *http.ServeMux

	httpClient *http.Client
	limiter    *ratelimit.Limiter
	lifecycle  *lifecycle.Lifecycle

	llmClient llm.Client
	ttsClient *tts.RemoteClient
	cache     *cache.Cache
	// triggerRules is the rule table each live session's own trigger
	// engine is built from (pkg/gateway/handlers.LiveHandler constructs
	// one triggers.Engine per connection): cooldown/fired state must not
	// be shared across sessions, only the rule definitions are.
	triggerRules []triggers.Rule
	ledger       *ledger.Store
	billing      *billing.Client
	archive      *archive.Client
	operator     *operator.Console
	planPricing  billing.PlanPricing

	liveSessions *sessions.Tracker
}

// New builds a Server from a fully validated Config. It opens the ledger's
// database connection (migrating it if necessary) and constructs the
// archive/billing/operator clients eagerly so a misconfigured deployment
// fails at startup instead of on the first live session.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	httpClient := &http.Client{
		Timeout: cfg.UpstreamResponseHeaderTimeout + 30*time.Second,
	}

	llmClient, err := newLLMClient(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var ttsClient *tts.RemoteClient
	if cfg.LiveRemoteTTSWSBaseURL != "" {
		ttsClient = tts.NewRemoteClient(cfg.LiveRemoteTTSWSBaseURL, cfg.LiveTTSAPIKey)
	}

	ledgerStore, err := ledger.Open(ctx, ledger.Config{DatabaseURL: cfg.LedgerDatabaseURL})
	if err != nil {
		return nil, err
	}

	billingClient := billing.New(billing.Config{
		SecretKey:  cfg.StripeSecretKey,
		SuccessURL: cfg.StripeSuccessURL,
		CancelURL:  cfg.StripeCancelURL,
	})

	var archiveClient *archive.Client
	if cfg.ArchiveEnabled {
		archiveClient, err = archive.New(ctx, archive.Config{Bucket: cfg.ArchiveS3Bucket, Region: cfg.ArchiveS3Region})
		if err != nil {
			return nil, err
		}
	}

	operatorConsole := operator.New(operator.Config{
		APIKey:      cfg.WorkOSAPIKey,
		ClientID:    cfg.WorkOSClientID,
		RedirectURL: cfg.WorkOSRedirectURL,
	}, logger)

	s := &Server{
		cfg:        cfg,
		logger:     logger,
		mux:        http.NewServeMux(),
		httpClient: httpClient,
		limiter: ratelimit.New(ratelimit.Config{
			RPS:                   cfg.LimitRPS,
			Burst:                 cfg.LimitBurst,
			MaxConcurrentRequests: cfg.LimitMaxConcurrentRequests,
			MaxConcurrentStreams:  cfg.LimitMaxConcurrentStreams,
		}),
		lifecycle:    &lifecycle.Lifecycle{},
		llmClient:    llmClient,
		ttsClient:    ttsClient,
		cache:        cache.New(cfg.PageContextCacheTTL),
		triggerRules: triggers.DefaultRules,
		ledger:       ledgerStore,
		billing:      billingClient,
		archive:      archiveClient,
		operator:     operatorConsole,
		planPricing:  billing.PlanPricing{},
		liveSessions: sessions.NewTracker(),
	}

	s.routes()
	return s, nil
}

func newLLMClient(ctx context.Context, cfg config.Config) (llm.Client, error) {
	switch cfg.LLMBackend {
	case "gemini":
		return llm.NewGeminiClient(ctx, cfg.LLMAPIKey, cfg.LLMModel)
	default:
		return llm.NewHTTPClient(cfg.LLMBaseURL, cfg.LLMAPIKey, &http.Client{Timeout: cfg.UpstreamResponseHeaderTimeout}), nil
	}
}

// GetConfig and SetConfig implement operator.ConfigStore so the operator
// console can edit plan-to-price mappings at runtime without a redeploy.
func (s *Server) GetConfig() operator.DeploymentConfig {
	return operator.DeploymentConfig{PlanPricing: s.planPricing}
}

func (s *Server) SetConfig(cfg operator.DeploymentConfig) error {
	s.planPricing = cfg.PlanPricing
	return nil
}

func (s *Server) routes() {
	s.mux.Handle("/", handlers.NotFoundHandler{})
	s.mux.Handle("/healthz", handlers.HealthHandler{})
	s.mux.Handle("/readyz", handlers.ReadyHandler{Config: s.cfg})

	s.mux.Handle("/v1/page-context", handlers.PageContextHandler{
		Cache:        s.cache,
		Logger:       s.logger,
		MaxBodyBytes: 2 << 20,
	})

	s.mux.Handle("/v1/live", handlers.LiveHandler{
		Config:       s.cfg,
		Logger:       s.logger,
		LLM:          s.llmClient,
		TTS:          s.ttsClient,
		ModelName:    s.cfg.LLMModel,
		Cache:        s.cache,
		TriggerRules: s.triggerRules,
		Ledger:       s.ledger,
		Billing:      s.billing,
		PlanPricing:  s.planPricing,
		Archive:      s.archive,
		Limiter:      s.limiter,
		Lifecycle:    s.lifecycle,
		LiveSessions: s.liveSessions,
	})

	s.mux.HandleFunc("/v1/operator/login", s.operator.LoginHandler)
	s.mux.HandleFunc("/v1/operator/callback", s.operator.CallbackHandler)
	s.mux.Handle("/v1/operator/config", s.operator.Authenticate(operator.ConfigHandler{Store: s}))
	s.mux.Handle("/v1/operator/sessions/{id}", s.operator.Authenticate(operator.SessionHistoryHandler{Archive: s.archive}))
}

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = mw.RateLimit(s.cfg, s.limiter, h)
	h = mw.Auth(s.cfg, h)
	h = mw.CORS(s.cfg, h)
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.logger, h)
	h = mw.RequestID(h)
	return h
}

// SetDraining flips the lifecycle flag so /v1/live starts rejecting new
// connections. It does not notify sessions already running;
// WarnLiveSessionsDraining does that.
func (s *Server) SetDraining() {
	s.lifecycle.SetDraining(true)
}

// WarnLiveSessionsDraining pushes a warning frame to every active live
// session announcing the upcoming shutdown.
func (s *Server) WarnLiveSessionsDraining() {
	s.liveSessions.WarnAll("draining", "the gateway is shutting down; please reconnect shortly")
}

// WaitLiveSessions blocks until every tracked session ends or ctx expires,
// returning false in the latter case.
func (s *Server) WaitLiveSessions(ctx context.Context) bool {
	return s.liveSessions.Wait(ctx)
}

// CancelLiveSessions forcibly cancels every still-active session, used once
// WaitLiveSessions times out during shutdown.
func (s *Server) CancelLiveSessions() int {
	return s.liveSessions.CancelAll()
}

func (s *Server) Close() {
	if s.ledger != nil {
		s.ledger.Close()
	}
	if s.cache != nil {
		s.cache.Close()
	}
}

// exampleTriggerRules is not wired into New by default: the shipped engine
// starts from triggers.DefaultRules (empty), per the Operator Console
// design where a site owner populates the rule table themselves. This is
// reference material for what a populated table looks like, kept here
// rather than in the triggers package so pkg/core/triggers stays free of
// any concrete product copy.
func exampleTriggerRules() []triggers.Rule {
	return []triggers.Rule{
		{
			ID:         "exit_intent",
			Priority:   triggers.PriorityCritical,
			CooldownMS: 60_000,
			Message:    "Before you go, is there anything I can help clarify about pricing or features?",
			Condition: func(snap behavior.Snapshot, _ *behavior.Tracker) bool {
				return snap.ExitIntentDetected
			},
		},
		{
			ID:         "pricing_hesitation",
			Priority:   triggers.PriorityHigh,
			CooldownMS: 120_000,
			Message:    "Happy to walk through which plan fits best if that's helpful.",
			Condition: func(snap behavior.Snapshot, _ *behavior.Tracker) bool {
				return snap.PricingViewed && snap.TimeOnPage > 45*time.Second && snap.MessagesSent == 0
			},
		},
		{
			ID:         "plan_comparison",
			Priority:   triggers.PriorityMedium,
			CooldownMS: 120_000,
			Message:    "Comparing plans? I can summarize the differences in a sentence or two.",
			Condition: func(snap behavior.Snapshot, _ *behavior.Tracker) bool {
				return snap.PlanComparisons >= 2
			},
		},
	}
}
