package operator

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/vango-go/salesagent-gateway/pkg/core/archive"
)

// SessionHistoryHandler serves one archived session's manifest (transcript,
// final funnel stage, BANT score) to the operator console's session-history
// view. Mount it behind Console.Authenticate the same as ConfigHandler.
type SessionHistoryHandler struct {
	Archive *archive.Client
}

func (h SessionHistoryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	sessionID := strings.TrimSpace(r.PathValue("id"))
	if sessionID == "" {
		http.Error(w, "missing session id", http.StatusBadRequest)
		return
	}
	if !h.Archive.Enabled() {
		http.Error(w, "session archival is not configured", http.StatusNotFound)
		return
	}
	manifest, err := h.Archive.GetManifest(r.Context(), sessionID)
	if err != nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(manifest)
}
