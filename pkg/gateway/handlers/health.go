package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/vango-go/salesagent-gateway/pkg/gateway/config"
)

type HealthHandler struct{}

func (h HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

type ReadyHandler struct {
	Config config.Config
}

func (h ReadyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	type readyResp struct {
		OK            bool     `json:"ok"`
		AuthMode      string   `json:"auth_mode"`
		LLMBackend    string   `json:"llm_backend"`
		LedgerEnabled bool     `json:"ledger_enabled"`
		BillingEnabled bool    `json:"billing_enabled"`
		ArchiveEnabled bool    `json:"archive_enabled"`
		Issues        []string `json:"issues,omitempty"`
	}

	issues := make([]string, 0, 4)

	switch h.Config.AuthMode {
	case config.AuthModeRequired, config.AuthModeOptional, config.AuthModeDisabled:
	default:
		issues = append(issues, "invalid auth_mode")
	}
	if h.Config.AuthMode == config.AuthModeRequired && len(h.Config.APIKeys) == 0 {
		issues = append(issues, "auth_mode=required but no api keys configured")
	}
	if h.Config.MaxBodyBytes <= 0 {
		issues = append(issues, "max_body_bytes must be > 0")
	}
	if h.Config.WSMaxSessionDuration <= 0 {
		issues = append(issues, "ws max session duration must be > 0")
	}
	if h.Config.WSMaxSessionsPerPrincipal <= 0 {
		issues = append(issues, "ws max sessions per principal must be > 0")
	}
	if h.Config.ReadHeaderTimeout <= 0 || h.Config.ReadTimeout <= 0 || h.Config.HandlerTimeout <= 0 {
		issues = append(issues, "timeouts must be > 0")
	}
	if h.Config.LLMBackend == "gemini" && h.Config.LLMAPIKey == "" {
		issues = append(issues, "llm_backend=gemini but no api key configured")
	}

	ok := len(issues) == 0
	status := http.StatusOK
	if !ok {
		status = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(readyResp{
		OK:             ok,
		AuthMode:       string(h.Config.AuthMode),
		LLMBackend:     h.Config.LLMBackend,
		LedgerEnabled:  h.Config.LedgerDatabaseURL != "",
		BillingEnabled: h.Config.StripeSecretKey != "",
		ArchiveEnabled: h.Config.ArchiveEnabled,
		Issues:         issues,
	})
}
