package esi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovaphlow/pitchfork/service-esi-sso-go/internal/session"
	"github.com/ovaphlow/pitchfork/service-esi-sso-go/internal/sso"
)

var testTokens = &sso.TokenSet{AccessToken: "at-1", TokenType: "Bearer", ExpiresAt: time.Now().Add(time.Hour)}

func fakeESI(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer at-1", r.Header.Get("Authorization"))
		assert.Equal(t, "ESI-SSO-Go-Client/test", r.Header.Get("User-Agent"))
		switch r.URL.Path {
		case "/latest/characters/90000001/":
			_, _ = w.Write([]byte(`{"name":"Test Pilot","corporation_id":1000001,"birthday":"2015-03-24T11:37:00Z","gender":"female","race_id":1,"bloodline_id":1,"security_status":0.5}`))
		case "/latest/status/":
			_, _ = w.Write([]byte(`{"players":23456,"server_version":"2548441","start_time":"2024-05-01T11:05:00Z"}`))
		default:
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"error":"token not valid for scope"}` + strings.Repeat(" ", 1000)))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCharacter(t *testing.T) {
	srv := fakeESI(t)
	c := NewClient(Config{BaseURL: srv.URL, Timeout: time.Second}, "ESI-SSO-Go-Client/test", nil)

	ch, err := c.Character(context.Background(), testTokens, "90000001")
	require.NoError(t, err)
	assert.Equal(t, "Test Pilot", ch.Name)
	assert.EqualValues(t, 1000001, ch.CorporationID)
}

func TestStatus(t *testing.T) {
	srv := fakeESI(t)
	c := NewClient(Config{BaseURL: srv.URL + "/", Timeout: time.Second}, "ESI-SSO-Go-Client/test", nil)

	st, err := c.Status(context.Background(), testTokens)
	require.NoError(t, err)
	assert.Equal(t, 23456, st.Players)
}

func TestAPIErrorTruncated(t *testing.T) {
	srv := fakeESI(t)
	c := NewClient(Config{BaseURL: srv.URL, Timeout: time.Second}, "ESI-SSO-Go-Client/test", nil)

	_, err := c.Character(context.Background(), testTokens, "1")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.Status)
	assert.Len(t, apiErr.Body, errorBodyLimit)
	assert.True(t, strings.HasPrefix(apiErr.Body, `{"error":"token not valid for scope"}`))
}

type fakeSessions struct {
	tokens *sso.TokenSet
	view   *sso.SessionView
	err    error
}

func (f *fakeSessions) EnsureFresh(context.Context, string) (*sso.TokenSet, error) {
	return f.tokens, f.err
}

func (f *fakeSessions) Snapshot(context.Context, string) (*sso.SessionView, error) {
	return f.view, nil
}

func TestHandlerCallsCharacter(t *testing.T) {
	srv := fakeESI(t)
	c := NewClient(Config{BaseURL: srv.URL, Timeout: time.Second}, "ESI-SSO-Go-Client/test", nil)
	sessions := &fakeSessions{
		tokens: testTokens,
		view:   &sso.SessionView{Status: sso.StatusAuthenticated, Identity: &sso.Identity{CharacterID: "90000001"}},
	}
	h := NewHandler(c, sessions, session.Cookies{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/esi/test", nil)
	req.AddCookie(&http.Cookie{Name: session.CookieName, Value: "s1"})
	rec := httptest.NewRecorder()
	h.Test(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"endpoint":"character"`)
	assert.Contains(t, rec.Body.String(), "Test Pilot")
}

func TestHandlerFallsBackToStatus(t *testing.T) {
	srv := fakeESI(t)
	c := NewClient(Config{BaseURL: srv.URL, Timeout: time.Second}, "ESI-SSO-Go-Client/test", nil)
	h := NewHandler(c, &fakeSessions{tokens: testTokens, view: &sso.SessionView{Status: sso.StatusAuthenticated}}, session.Cookies{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/esi/test", nil)
	req.AddCookie(&http.Cookie{Name: session.CookieName, Value: "s1"})
	rec := httptest.NewRecorder()
	h.Test(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"endpoint":"status"`)
}

func TestHandlerExpiredSession(t *testing.T) {
	h := NewHandler(NewClient(Config{}, "ua", nil), &fakeSessions{err: sso.ErrSessionExpired}, session.Cookies{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/esi/test", nil)
	req.AddCookie(&http.Cookie{Name: session.CookieName, Value: "s1"})
	rec := httptest.NewRecorder()
	h.Test(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	h.Test(rec, httptest.NewRequest(http.MethodGet, "/esi/test", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
