package operator

import (
	"encoding/json"
	"net/http"
)

// DeploymentConfig is the subset of a deployment's configuration an
// operator can edit from the console: which plan names map to which Stripe
// price IDs. Behavior-trigger rules are not part of it. This is held by
// whatever the caller wires it into (the triggers.Engine and
// billing.PlanPricing live in pkg/core/triggers and pkg/core/billing); this
// handler only marshals/unmarshals the wire shape and hands mutations to a
// callback, the same separation pkg/gateway/handlers uses to keep HTTP
// concerns out of pkg/core.
type DeploymentConfig struct {
	PlanPricing map[string]string `json:"planPricing"`
}

// ConfigStore is implemented by whatever owns the live DeploymentConfig
// (typically the process's Dependencies struct) so this handler never
// needs to know about pkg/core/billing or pkg/core/triggers directly.
type ConfigStore interface {
	GetConfig() DeploymentConfig
	SetConfig(DeploymentConfig) error
}

// ConfigHandler exposes GET/PUT over a deployment's editable configuration
// to an authenticated operator. Mount it behind Console.Authenticate.
type ConfigHandler struct {
	Store ConfigStore
}

func (h ConfigHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.get(w, r)
	case http.MethodPut:
		h.put(w, r)
	default:
		w.Header().Set("Allow", "GET, PUT")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h ConfigHandler) get(w http.ResponseWriter, r *http.Request) {
	cfg := h.Store.GetConfig()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(cfg)
}

func (h ConfigHandler) put(w http.ResponseWriter, r *http.Request) {
	var cfg DeploymentConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.Store.SetConfig(cfg); err != nil {
		http.Error(w, "failed to save configuration", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
