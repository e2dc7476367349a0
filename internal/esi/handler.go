package esi

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-esi-sso-go/internal/session"
	"github.com/ovaphlow/pitchfork/service-esi-sso-go/internal/sso"
)

// Sessions is the part of the SSO service the test endpoint needs.
type Sessions interface {
	EnsureFresh(ctx context.Context, sessionID string) (*sso.TokenSet, error)
	Snapshot(ctx context.Context, sessionID string) (*sso.SessionView, error)
}

type Handler struct {
	client   *Client
	sessions Sessions
	cookies  session.Cookies
	logger   *zap.SugaredLogger
}

func NewHandler(client *Client, sessions Sessions, cookies session.Cookies, logger *zap.SugaredLogger) *Handler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Handler{client: client, sessions: sessions, cookies: cookies, logger: logger}
}

// Test makes one authenticated ESI call with the session's token: the
// character sheet when the character is known, the server status otherwise.
func (h *Handler) Test(w http.ResponseWriter, r *http.Request) {
	sid, ok := h.cookies.ID(r)
	if !ok {
		sso.WriteError(w, sso.ErrNotAuthenticated)
		return
	}
	tokens, err := h.sessions.EnsureFresh(r.Context(), sid)
	if err != nil {
		sso.WriteError(w, err)
		return
	}

	characterID := h.characterID(r.Context(), sid, tokens)
	if characterID != "" {
		c, err := h.client.Character(r.Context(), tokens, characterID)
		if err != nil {
			h.fail(w, err)
			return
		}
		sso.WriteJSON(w, http.StatusOK, map[string]any{"endpoint": "character", "character_id": characterID, "data": c})
		return
	}

	st, err := h.client.Status(r.Context(), tokens)
	if err != nil {
		h.fail(w, err)
		return
	}
	sso.WriteJSON(w, http.StatusOK, map[string]any{"endpoint": "status", "data": st})
}

// characterID prefers the verified identity and falls back to the token's
// own subject.
func (h *Handler) characterID(ctx context.Context, sid string, tokens *sso.TokenSet) string {
	if view, err := h.sessions.Snapshot(ctx, sid); err == nil && view.Identity != nil {
		return view.Identity.CharacterID
	}
	if claims, err := sso.InspectAccessToken(tokens.AccessToken); err == nil {
		return claims.CharacterID()
	}
	return ""
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		sso.WriteJSON(w, http.StatusBadGateway, map[string]any{
			"error":             "esi_error",
			"error_description": apiErr.Body,
			"status":            apiErr.Status,
		})
		return
	}
	h.logger.Errorw("esi test failed", "error", err)
	sso.WriteJSON(w, http.StatusBadGateway, map[string]string{
		"error":             "esi_unavailable",
		"error_description": "ESI request failed",
	})
}
