package handlers

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/vango-go/salesagent-gateway/pkg/core"
	"github.com/vango-go/salesagent-gateway/pkg/core/cache"
	"github.com/vango-go/salesagent-gateway/pkg/core/pagecontext"
	"github.com/vango-go/salesagent-gateway/pkg/gateway/mw"
)

// pageContextTokenEntry is what PageContextHandler caches under a token:
// both the extracted semantic model and the raw HTML it came from, since
// the live session needs the HTML again to build the goquery.Document the
// Element Finder (C4) resolves selectors against.
type pageContextTokenEntry struct {
	Context *pagecontext.PageContext
	HTML    string
}

// PageContextHandler implements POST /v1/page-context: the embed snippet
// posts a raw HTML snapshot before opening the voice/chat WebSocket, gets
// back an extracted PageContext plus an opaque token, and passes that
// token as ClientHello.PageContextToken so the live session starts already
// knowing the page instead of waiting for a first extraction round trip.
type PageContextHandler struct {
	Cache        *cache.Cache
	Logger       *slog.Logger
	MaxBodyBytes int64
}

// TokenLookup resolves a page-context token to the cached extraction, used
// by pkg/gateway/handlers.LiveHandler when a hello frame carries one.
func TokenLookup(c *cache.Cache, token string) (*pagecontext.PageContext, string, bool) {
	if c == nil || token == "" {
		return nil, "", false
	}
	v, ok := c.Get("pagectx-token:" + token)
	if !ok {
		return nil, "", false
	}
	entry, ok := v.(pageContextTokenEntry)
	if !ok {
		return nil, "", false
	}
	return entry.Context, entry.HTML, true
}

func (h PageContextHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		writeCoreErrorJSON(w, reqID, &core.Error{Type: core.ErrAPI, Message: "method not allowed"}, http.StatusMethodNotAllowed)
		return
	}

	if h.MaxBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.MaxBodyBytes)
	}

	var in pagecontext.Input
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeCoreErrorJSON(w, reqID, &core.Error{Type: core.ErrInvalidRequest, Message: "invalid request body"}, http.StatusBadRequest)
		return
	}
	if in.HTML == "" {
		writeCoreErrorJSON(w, reqID, &core.Error{Type: core.ErrInvalidRequest, Message: "html is required", Param: "html"}, http.StatusBadRequest)
		return
	}

	ctx, err := pagecontext.Extract(in)
	if err != nil {
		coreErr, status := coreErrorFrom(err, reqID)
		writeCoreErrorJSON(w, reqID, coreErr, status)
		return
	}

	token := randomToken()
	if h.Cache != nil {
		h.Cache.Set("pagectx-token:"+token, pageContextTokenEntry{Context: ctx, HTML: in.HTML})
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(struct {
		Token       string                   `json:"token"`
		PageContext *pagecontext.PageContext `json:"pageContext"`
	}{Token: token, PageContext: ctx})
}

func randomToken() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
