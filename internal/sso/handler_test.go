package sso

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovaphlow/pitchfork/service-esi-sso-go/internal/session"
)

func newTestHandler(t *testing.T) (*Handler, *fixture) {
	t.Helper()
	f := newFixture(t)
	return NewHandler(f.svc, session.Cookies{TTL: time.Hour}, nil), f
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == session.CookieName {
			return c
		}
	}
	t.Fatal("no session cookie set")
	return nil
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

func TestLoginRedirectsAndCallbackAuthenticates(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := httptest.NewRecorder()
	h.Login(rec, httptest.NewRequest(http.MethodGet, "/login?scopes=publicData,esi-skills.read_skills.v1", nil))
	require.Equal(t, http.StatusFound, rec.Code)
	ck := sessionCookie(t, rec)
	assert.True(t, ck.HttpOnly)

	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "publicData esi-skills.read_skills.v1", loc.Query().Get("scope"))
	state := loc.Query().Get("state")

	req := httptest.NewRequest(http.MethodGet, "/callback?code=abc&state="+url.QueryEscape(state), nil)
	req.AddCookie(ck)
	rec = httptest.NewRecorder()
	h.Callback(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	rotated := sessionCookie(t, rec)
	assert.NotEqual(t, ck.Value, rotated.Value)
	body := decodeBody(t, rec)
	assert.Equal(t, "authenticated", body["status"])

	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.AddCookie(rotated)
	rec = httptest.NewRecorder()
	h.Me(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "at-1")
	assert.NotContains(t, rec.Body.String(), "rt-1")
	assert.Contains(t, rec.Body.String(), `"has_refresh_token":true`)
}

func TestLoginIgnoresPlantedCookie(t *testing.T) {
	h, f := newTestHandler(t)
	const planted = "attacker-chosen-id"

	req := httptest.NewRequest(http.MethodGet, "/login", nil)
	req.AddCookie(&http.Cookie{Name: session.CookieName, Value: planted})
	rec := httptest.NewRecorder()
	h.Login(rec, req)
	require.Equal(t, http.StatusFound, rec.Code)
	ck := sessionCookie(t, rec)
	assert.NotEqual(t, planted, ck.Value)

	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/callback?code=abc&state="+url.QueryEscape(loc.Query().Get("state")), nil)
	req.AddCookie(ck)
	rec = httptest.NewRecorder()
	h.Callback(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, StatusAnonymous, f.status(t, planted))
	assert.Equal(t, StatusAnonymous, f.status(t, ck.Value))
	assert.Equal(t, StatusAuthenticated, f.status(t, sessionCookie(t, rec).Value))
}

func TestLoginLogsOutPreviousSession(t *testing.T) {
	h, f := newTestHandler(t)
	f.login(t, "s1")

	req := httptest.NewRequest(http.MethodGet, "/login", nil)
	req.AddCookie(&http.Cookie{Name: session.CookieName, Value: "s1"})
	rec := httptest.NewRecorder()
	h.Login(rec, req)
	require.Equal(t, http.StatusFound, rec.Code)

	assert.Equal(t, StatusAnonymous, f.status(t, "s1"))
	assert.ElementsMatch(t, []TokenTypeHint{HintAccessToken, HintRefreshToken}, f.ex.revoked)
}

func TestLoginDefaultsToPublicData(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := httptest.NewRecorder()
	h.Login(rec, httptest.NewRequest(http.MethodGet, "/login", nil))
	require.Equal(t, http.StatusFound, rec.Code)
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "publicData", loc.Query().Get("scope"))
}

func TestCallbackWithoutCookie(t *testing.T) {
	h, f := newTestHandler(t)

	rec := httptest.NewRecorder()
	h.Callback(rec, httptest.NewRequest(http.MethodGet, "/callback?code=abc&state=x", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "csrf_state_mismatch", decodeBody(t, rec)["error"])
	exchanges, _ := f.ex.counts()
	assert.Zero(t, exchanges)
}

func TestCallbackAccessDenied(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := httptest.NewRecorder()
	h.Login(rec, httptest.NewRequest(http.MethodGet, "/login", nil))
	ck := sessionCookie(t, rec)

	req := httptest.NewRequest(http.MethodGet, "/callback?error=access_denied&error_description=nope", nil)
	req.AddCookie(ck)
	rec = httptest.NewRecorder()
	h.Callback(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "access_denied", decodeBody(t, rec)["error"])
}

func TestMeAnonymous(t *testing.T) {
	h, _ := newTestHandler(t)
	rec := httptest.NewRecorder()
	h.Me(rec, httptest.NewRequest(http.MethodGet, "/me", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "anonymous", decodeBody(t, rec)["status"])
}

func TestVerifyWithoutSession(t *testing.T) {
	h, _ := newTestHandler(t)
	rec := httptest.NewRecorder()
	h.Verify(rec, httptest.NewRequest(http.MethodGet, "/verify", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "not_authenticated", decodeBody(t, rec)["error"])
}

func TestLogoutClearsCookie(t *testing.T) {
	h, f := newTestHandler(t)
	f.login(t, "s1")

	req := httptest.NewRequest(http.MethodPost, "/logout", nil)
	req.AddCookie(&http.Cookie{Name: session.CookieName, Value: "s1"})
	rec := httptest.NewRecorder()
	h.Logout(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, -1, sessionCookie(t, rec).MaxAge)
	assert.Equal(t, StatusAnonymous, f.status(t, "s1"))
}

func TestStatusFor(t *testing.T) {
	timeout := transportError(ErrTokenRefresh, fmt.Errorf("dial: %w", context.DeadlineExceeded))
	cases := []struct {
		err  error
		want int
	}{
		{&ProviderDeniedError{Code: "access_denied"}, http.StatusBadRequest},
		{ErrCsrfStateMismatch, http.StatusBadRequest},
		{ErrMissingAuthorizationCode, http.StatusBadRequest},
		{ErrNotAuthenticated, http.StatusUnauthorized},
		{ErrSessionExpired, http.StatusUnauthorized},
		{timeout, http.StatusGatewayTimeout},
		{&ProviderError{Kind: ErrTokenExchange, Status: 400}, http.StatusBadGateway},
		{&ProviderError{Kind: ErrTokenVerification, Status: 401}, http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, StatusFor(tc.err), tc.err.Error())
	}
}

func TestWriteErrorHidesInternalDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, errors.New("pq: password authentication failed"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "server_error", body["error"])
	assert.NotContains(t, body["error_description"], "pq")
}
