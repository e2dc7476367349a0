package sso

import (
	"net/http"
	"os"
	"strings"
	"time"
)

// Endpoints are the provider URLs. LegacyTokenURL is tried once when the
// token endpoint answers 404; Host is forced on token endpoint requests.
type Endpoints struct {
	AuthorizeURL   string
	TokenURL       string
	LegacyTokenURL string
	VerifyURL      string
	RevokeURL      string
	Host           string
}

// DefaultEndpoints are EVE Online's SSO v2 endpoints.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		AuthorizeURL:   "https://login.eveonline.com/v2/oauth/authorize",
		TokenURL:       "https://login.eveonline.com/v2/oauth/token",
		LegacyTokenURL: "https://login.eveonline.com/oauth/token",
		VerifyURL:      "https://login.eveonline.com/oauth/verify",
		RevokeURL:      "https://login.eveonline.com/v2/oauth/revoke",
		Host:           "login.eveonline.com",
	}
}

type Config struct {
	Endpoints   Endpoints
	HTTPTimeout time.Duration
	StateTTL    time.Duration
}

// ConfigFromEnv reads endpoint overrides and timeouts.
func ConfigFromEnv() Config {
	ep := DefaultEndpoints()
	override := func(dst *string, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	override(&ep.AuthorizeURL, "ESI_SSO_AUTHORIZE_URL")
	override(&ep.TokenURL, "ESI_SSO_TOKEN_URL")
	override(&ep.LegacyTokenURL, "ESI_SSO_LEGACY_TOKEN_URL")
	override(&ep.VerifyURL, "ESI_SSO_VERIFY_URL")
	override(&ep.RevokeURL, "ESI_SSO_REVOKE_URL")
	override(&ep.Host, "ESI_SSO_HOST")

	return Config{
		Endpoints:   ep,
		HTTPTimeout: durationFromEnv("ESI_HTTP_TIMEOUT", 30*time.Second),
		StateTTL:    durationFromEnv("SSO_STATE_TTL", 10*time.Minute),
	}
}

func durationFromEnv(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// NewHTTPClient returns the client shared by all provider calls.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{Timeout: timeout}
}
