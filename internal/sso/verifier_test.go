package sso

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const verifyBody = `{
	"CharacterID": 90000001,
	"CharacterName": "Test Pilot",
	"ExpiresOn": "2024-05-01T12:20:00",
	"Scopes": "publicData esi-skills.read_skills.v1",
	"TokenType": "Character",
	"CharacterOwnerHash": "owner-hash",
	"IntellectualProperty": "EVE"
}`

func TestVerify(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "Bearer at-1", r.Header.Get("Authorization"))
		assert.Equal(t, "ESI-SSO-Go-Client/client-abc", r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte(verifyBody))
	}))
	defer srv.Close()

	v := NewTokenVerifier(srv.URL+"/oauth/verify", testCreds.UserAgent(), srv.Client(), nil, nil)
	id, err := v.Verify(context.Background(), "at-1")
	require.NoError(t, err)
	assert.Equal(t, "90000001", id.CharacterID)
	assert.Equal(t, "Test Pilot", id.CharacterName)
	assert.Equal(t, "owner-hash", id.OwnerHash)
	assert.Equal(t, "Character", id.TokenType)
	assert.Equal(t, []string{"publicData", "esi-skills.read_skills.v1"}, id.Scopes)
	assert.True(t, id.ExpiresOn.Equal(time.Date(2024, 5, 1, 12, 20, 0, 0, time.UTC)))
}

func TestVerifyWithoutScopes(t *testing.T) {
	id, err := parseIdentity([]byte(`{"CharacterID":1,"CharacterName":"a","ExpiresOn":"2024-05-01T12:20:00Z","TokenType":"Character","CharacterOwnerHash":"h"}`))
	require.NoError(t, err)
	assert.NotNil(t, id.Scopes)
	assert.Empty(t, id.Scopes)
}

func TestVerifyMissingField(t *testing.T) {
	_, err := parseIdentity([]byte(`{"CharacterID":1,"ExpiresOn":"2024-05-01T12:20:00","TokenType":"Character","CharacterOwnerHash":"h"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CharacterName")
}

func TestVerifyRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"invalid_token"}`))
	}))
	defer srv.Close()

	v := NewTokenVerifier(srv.URL, "ua", srv.Client(), nil, nil)
	_, err := v.Verify(context.Background(), "expired")
	require.ErrorIs(t, err, ErrTokenVerification)
	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, http.StatusUnauthorized, pe.Status)
	assert.Contains(t, pe.Body, "invalid_token")
}

func TestVerifyMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>`))
	}))
	defer srv.Close()

	v := NewTokenVerifier(srv.URL, "ua", srv.Client(), nil, nil)
	_, err := v.Verify(context.Background(), "at")
	assert.ErrorIs(t, err, ErrTokenVerification)
}

func TestParseProviderTime(t *testing.T) {
	for _, s := range []string{"2024-05-01T12:20:00", "2024-05-01T12:20:00Z", "2024-05-01T14:20:00+02:00", "2024-05-01T12:20:00.000"} {
		got, err := parseProviderTime(s)
		require.NoError(t, err, s)
		assert.True(t, got.Equal(time.Date(2024, 5, 1, 12, 20, 0, 0, time.UTC)), s)
	}
	_, err := parseProviderTime("yesterday")
	assert.Error(t, err)
}

func signTestToken(t *testing.T, claims *AccessClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("not-the-provider-key"))
	require.NoError(t, err)
	return s
}

func TestInspectAccessToken(t *testing.T) {
	exp := time.Date(2024, 5, 1, 12, 20, 0, 0, time.UTC)
	token := signTestToken(t, &AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "CHARACTER:EVE:90000001",
			Issuer:    "login.eveonline.com",
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Name:   "Test Pilot",
		Owner:  "owner-hash",
		Scopes: jwt.ClaimStrings{"publicData"},
	})

	c, err := InspectAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, "90000001", c.CharacterID())
	assert.Equal(t, "Test Pilot", c.Name)
	assert.Equal(t, []string{"publicData"}, []string(c.Scopes))
	assert.True(t, c.ExpiresAt.Time.Equal(exp))
}

func TestInspectOpaqueToken(t *testing.T) {
	_, err := InspectAccessToken("opaque-token")
	assert.Error(t, err)

	c := &AccessClaims{RegisteredClaims: jwt.RegisteredClaims{Subject: "CORPORATION:EVE:1"}}
	assert.Empty(t, c.CharacterID())
}
