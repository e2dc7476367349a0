package sso

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-esi-sso-go/internal/session"
)

// loginDefaultScope is requested when /login carries no scopes.
const loginDefaultScope = "publicData"

type Handler struct {
	svc     *SSOService
	cookies session.Cookies
	logger  *zap.SugaredLogger
}

func NewHandler(svc *SSOService, cookies session.Cookies, logger *zap.SugaredLogger) *Handler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Handler{svc: svc, cookies: cookies, logger: logger}
}

// SessionID returns the caller's session id, if any.
func (h *Handler) SessionID(r *http.Request) (string, bool) {
	return h.cookies.ID(r)
}

// Login starts a login attempt under a newly issued session id and
// redirects to the provider. A session the caller already had is logged out.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	if old, ok := h.cookies.ID(r); ok {
		if err := h.svc.Logout(r.Context(), old); err != nil {
			h.logger.Warnw("drop previous session", "error", err)
		}
	}
	sid := h.cookies.Issue(w)
	scopes := ParseScopes(r.URL.Query().Get("scopes"))
	if len(scopes) == 0 {
		scopes = []string{loginDefaultScope}
	}
	req, err := h.svc.StartLogin(r.Context(), sid, scopes)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	http.Redirect(w, r, req.AuthorizeURL, http.StatusFound)
}

func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	sid, ok := h.cookies.ID(r)
	if !ok {
		h.fail(w, r, ErrCsrfStateMismatch)
		return
	}
	id, err := h.svc.HandleCallback(r.Context(), sid, CallbackParamsFromQuery(r.URL.Query()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	next := session.NewID()
	if err := h.svc.RotateSession(r.Context(), sid, next); err != nil {
		h.fail(w, r, err)
		return
	}
	h.cookies.Set(w, next)
	WriteJSON(w, http.StatusOK, map[string]any{"status": StatusAuthenticated, "identity": id})
}

func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	sid, ok := h.cookies.ID(r)
	if !ok {
		h.fail(w, r, ErrNotAuthenticated)
		return
	}
	id, err := h.svc.Verify(r.Context(), sid)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, id)
}

// Me summarises the session. Tokens are never included.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	sid, ok := h.cookies.ID(r)
	if !ok {
		WriteJSON(w, http.StatusOK, &SessionView{Status: StatusAnonymous})
		return
	}
	view, err := h.svc.Snapshot(r.Context(), sid)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, view)
}

type claimsView struct {
	Subject     string     `json:"subject"`
	CharacterID string     `json:"character_id,omitempty"`
	Name        string     `json:"name"`
	Owner       string     `json:"owner"`
	Scopes      []string   `json:"scopes"`
	Issuer      string     `json:"issuer"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

func (h *Handler) Claims(w http.ResponseWriter, r *http.Request) {
	sid, ok := h.cookies.ID(r)
	if !ok {
		h.fail(w, r, ErrNotAuthenticated)
		return
	}
	c, err := h.svc.Claims(r.Context(), sid)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := claimsView{
		Subject:     c.Subject,
		CharacterID: c.CharacterID(),
		Name:        c.Name,
		Owner:       c.Owner,
		Scopes:      []string(c.Scopes),
		Issuer:      c.Issuer,
	}
	if c.ExpiresAt != nil {
		t := c.ExpiresAt.UTC()
		out.ExpiresAt = &t
	}
	WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if sid, ok := h.cookies.ID(r); ok {
		if err := h.svc.Logout(r.Context(), sid); err != nil {
			h.fail(w, r, err)
			return
		}
	}
	h.cookies.Clear(w)
	WriteJSON(w, http.StatusOK, map[string]any{"status": StatusAnonymous})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Errorw("sso request failed", "path", r.URL.Path, "status", status, "error", err)
	} else {
		h.logger.Infow("sso request rejected", "path", r.URL.Path, "status", status, "error", err)
	}
	WriteError(w, err)
}

// StatusFor maps an error to the HTTP status reported to clients.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, ErrProviderDenied),
		errors.Is(err, ErrCsrfStateMismatch),
		errors.Is(err, ErrMissingAuthorizationCode):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotAuthenticated), errors.Is(err, ErrSessionExpired):
		return http.StatusUnauthorized
	case errors.Is(err, ErrNetworkTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, ErrTokenExchange),
		errors.Is(err, ErrTokenRefresh),
		errors.Is(err, ErrTokenVerification),
		errors.Is(err, ErrRevocationFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// errorCode is the short machine-readable name placed in error bodies.
func errorCode(err error) string {
	switch {
	case errors.Is(err, ErrProviderDenied):
		var pd *ProviderDeniedError
		if errors.As(err, &pd) && pd.Code != "" {
			return pd.Code
		}
		return "provider_denied"
	case errors.Is(err, ErrCsrfStateMismatch):
		return "csrf_state_mismatch"
	case errors.Is(err, ErrMissingAuthorizationCode):
		return "missing_authorization_code"
	case errors.Is(err, ErrNotAuthenticated):
		return "not_authenticated"
	case errors.Is(err, ErrSessionExpired):
		return "session_expired"
	case errors.Is(err, ErrNetworkTimeout):
		return "network_timeout"
	case errors.Is(err, ErrTokenExchange):
		return "token_exchange_failed"
	case errors.Is(err, ErrTokenRefresh):
		return "token_refresh_failed"
	case errors.Is(err, ErrTokenVerification):
		return "token_verification_failed"
	case errors.Is(err, ErrRevocationFailed):
		return "revocation_failed"
	case errors.Is(err, ErrConfiguration):
		return "configuration_error"
	default:
		return "server_error"
	}
}

// WriteError writes err as {"error", "error_description"}. Internal errors
// are not described to the client.
func WriteError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	desc := err.Error()
	if status == http.StatusInternalServerError {
		desc = http.StatusText(status)
	}
	WriteJSON(w, status, map[string]string{
		"error":             errorCode(err),
		"error_description": strings.TrimPrefix(desc, "sso: "),
	})
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
