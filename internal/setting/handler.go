package setting

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-esi-sso-go/internal/setting/entity"
	"github.com/ovaphlow/pitchfork/service-esi-sso-go/internal/sso"
)

// Handler contains dependencies for handling setting endpoints. Every
// endpoint requires "Authorization: Bearer <adminToken>"; with an empty
// token the endpoints are disabled.
type Handler struct {
	svc        *Service
	adminToken string
	logger     *zap.SugaredLogger
}

// NewHandler constructs a new Handler.
func NewHandler(svc *Service, adminToken string, logger *zap.SugaredLogger) *Handler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Handler{svc: svc, adminToken: adminToken, logger: logger}
}

// authorize rejects callers without the operator token.
func (h *Handler) authorize(w http.ResponseWriter, r *http.Request) bool {
	if h.adminToken == "" {
		sso.WriteJSON(w, http.StatusForbidden, map[string]string{
			"error":             "forbidden",
			"error_description": "settings API is disabled; set ADMIN_TOKEN or use ssoctl",
		})
		return false
	}
	got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || subtle.ConstantTimeCompare([]byte(strings.TrimSpace(got)), []byte(h.adminToken)) != 1 {
		h.logger.Warnw("settings request without valid operator token", "method", r.Method, "remote", r.RemoteAddr)
		w.Header().Set("WWW-Authenticate", `Bearer realm="settings"`)
		sso.WriteJSON(w, http.StatusUnauthorized, map[string]string{
			"error":             "unauthorized",
			"error_description": "operator token required",
		})
		return false
	}
	return true
}

// GetSSO shows the stored configuration with the secret masked.
func (h *Handler) GetSSO(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r) {
		return
	}
	cfg, err := h.svc.Load(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	sso.WriteJSON(w, http.StatusOK, cfg.View())
}

// PutSSO replaces the stored configuration. The running client keeps its
// credentials until the next restart.
func (h *Handler) PutSSO(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r) {
		return
	}
	var in entity.SsoConfig
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&in); err != nil {
		sso.WriteJSON(w, http.StatusBadRequest, map[string]string{
			"error":             "invalid_request",
			"error_description": "body must be a JSON sso configuration",
		})
		return
	}
	saved, err := h.svc.Save(r.Context(), &in)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.logger.Infow("sso configuration updated", "callback_url", saved.CallbackURL)
	sso.WriteJSON(w, http.StatusOK, map[string]any{
		"config":           saved.View(),
		"restart_required": true,
	})
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	var ce *sso.ConfigError
	if errors.As(err, &ce) {
		sso.WriteJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error":             "configuration_error",
			"error_description": ce.Field + " " + ce.Reason,
		})
		return
	}
	h.logger.Errorw("sso configuration", "error", err)
	sso.WriteError(w, err)
}
