// Package operator implements the operator console's authentication: the
// embedding customer's staff sign in via WorkOS SSO (rather than this
// gateway's own API-key auth, which authenticates the embed snippet, not a
// human) to reach the admin surface that edits the Stripe price mappings
// and shows archived session history for their deployment.
// Handler shape (stateless redirect-based login plus a session cookie set
// on callback) follows this gateway's own pkg/gateway/auth.Principal
// context-value idiom; no pack example wires workos-go, so the AuthKit
// call shapes below are this package's own best-effort SDK usage rather
// than a grounded adaptation (see DESIGN.md).
package operator

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/workos/workos-go/v6/pkg/usermanagement"
)

const sessionCookieName = "salesagent_operator_session"

// Config carries the WorkOS credentials an operator console deployment is
// configured with.
type Config struct {
	APIKey      string
	ClientID    string
	RedirectURL string
}

// Session is the authenticated operator identity attached to the request
// context after a successful callback.
type Session struct {
	UserID string
	Email  string
}

type ctxKey struct{}

func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

func SessionFrom(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(ctxKey{}).(*Session)
	return s, ok && s != nil
}

// Console wires the WorkOS-backed login flow and a cookie store mapping
// opaque session tokens to authenticated operators. The store is in-memory;
// a restart logs every operator out, which is acceptable for a low-traffic
// admin surface and mirrors how pkg/gateway/live/sessions.Tracker keeps its
// registry in memory rather than externalizing it.
type Console struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[string]Session
}

func New(cfg Config, logger *slog.Logger) *Console {
	if logger == nil {
		logger = slog.Default()
	}
	return &Console{
		cfg:      cfg,
		logger:   logger,
		sessions: make(map[string]Session),
	}
}

// Enabled reports whether WorkOS credentials were configured; an unwired
// console responds to every route with 404 so the admin surface simply
// doesn't exist for deployments that never set it up.
func (c *Console) Enabled() bool {
	return c != nil && strings.TrimSpace(c.cfg.APIKey) != "" && strings.TrimSpace(c.cfg.ClientID) != ""
}

// LoginHandler redirects the operator's browser to WorkOS AuthKit.
func (c *Console) LoginHandler(w http.ResponseWriter, r *http.Request) {
	if !c.Enabled() {
		http.NotFound(w, r)
		return
	}
	usermanagement.SetAPIKey(c.cfg.APIKey)

	url, err := usermanagement.GetAuthorizationURL(usermanagement.GetAuthorizationURLOpts{
		ClientID:    c.cfg.ClientID,
		RedirectURI: c.cfg.RedirectURL,
		Provider:    "authkit",
	})
	if err != nil {
		c.logger.Error("operator: authorization url", "err", err)
		http.Error(w, "sso unavailable", http.StatusBadGateway)
		return
	}
	http.Redirect(w, r, url.String(), http.StatusFound)
}

// CallbackHandler exchanges the AuthKit authorization code for a profile,
// mints an opaque session token, and sets it as an HttpOnly cookie.
func (c *Console) CallbackHandler(w http.ResponseWriter, r *http.Request) {
	if !c.Enabled() {
		http.NotFound(w, r)
		return
	}
	code := strings.TrimSpace(r.URL.Query().Get("code"))
	if code == "" {
		http.Error(w, "missing code", http.StatusBadRequest)
		return
	}

	usermanagement.SetAPIKey(c.cfg.APIKey)
	result, err := usermanagement.AuthenticateWithCode(r.Context(), usermanagement.AuthenticateWithCodeOpts{
		ClientID: c.cfg.ClientID,
		Code:     code,
	})
	if err != nil {
		c.logger.Error("operator: authenticate with code", "err", err)
		http.Error(w, "authentication failed", http.StatusUnauthorized)
		return
	}

	token := "ops_" + randHex(16)
	c.mu.Lock()
	c.sessions[token] = Session{UserID: result.User.ID, Email: result.User.Email}
	c.mu.Unlock()

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/v1/operator",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Now().Add(12 * time.Hour),
	})
	http.Redirect(w, r, "/v1/operator/dashboard", http.StatusFound)
}

// Authenticate is operator console middleware: it requires the session
// cookie minted by CallbackHandler and attaches the resolved Session to the
// request context, mirroring mw.Auth's bearer-token resolution for the
// embed API but keyed off a cookie instead of an Authorization header.
func (c *Console) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !c.Enabled() {
			http.NotFound(w, r)
			return
		}
		cookie, err := r.Cookie(sessionCookieName)
		if err != nil || cookie.Value == "" {
			http.Redirect(w, r, "/v1/operator/login", http.StatusFound)
			return
		}
		c.mu.Lock()
		sess, ok := c.sessions[cookie.Value]
		c.mu.Unlock()
		if !ok {
			http.Redirect(w, r, "/v1/operator/login", http.StatusFound)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), &sess)))
	})
}

func randHex(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
