package sso

import (
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// ClientCredentials identify this application to the SSO provider. They are
// loaded once at startup and never change for the lifetime of an OAuthClient.
type ClientCredentials struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
}

// Values shipped in sample configuration that must never reach the provider.
const (
	placeholderClientID     = "your_client_id_here"
	placeholderClientSecret = "your_client_secret_here"
)

// Validate rejects empty or placeholder credentials.
func (c ClientCredentials) Validate() error {
	id := strings.TrimSpace(c.ClientID)
	secret := strings.TrimSpace(c.ClientSecret)
	redirect := strings.TrimSpace(c.RedirectURI)
	switch {
	case id == "":
		return &ConfigError{Field: "client_id", Reason: "is empty"}
	case id == placeholderClientID:
		return &ConfigError{Field: "client_id", Reason: "is still the placeholder value"}
	case secret == "":
		return &ConfigError{Field: "client_secret", Reason: "is empty"}
	case secret == placeholderClientSecret:
		return &ConfigError{Field: "client_secret", Reason: "is still the placeholder value"}
	case redirect == "":
		return &ConfigError{Field: "redirect_uri", Reason: "is empty"}
	}
	u, err := url.Parse(redirect)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return &ConfigError{Field: "redirect_uri", Reason: "must be an absolute URL"}
	}
	return nil
}

// UserAgent is sent on every bearer call so the provider can identify us.
func (c ClientCredentials) UserAgent() string {
	return "ESI-SSO-Go-Client/" + c.ClientID
}

// AuthorizationRequest is one login attempt. State must be kept by the caller
// until the matching callback arrives.
type AuthorizationRequest struct {
	State        string   `json:"state"`
	Scopes       []string `json:"scopes"`
	AuthorizeURL string   `json:"authorize_url"`
}

// TokenSet is replaced as a whole on refresh, never patched.
type TokenSet struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Expired reports whether now is at or past the expiry instant.
func (t *TokenSet) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// OAuth2 converts the set for use with golang.org/x/oauth2 transports.
func (t *TokenSet) OAuth2() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  t.AccessToken,
		TokenType:    t.TokenType,
		RefreshToken: t.RefreshToken,
		Expiry:       t.ExpiresAt,
	}
}

// Identity is what the verification endpoint says about a token.
type Identity struct {
	CharacterID   string    `json:"character_id"`
	CharacterName string    `json:"character_name"`
	OwnerHash     string    `json:"owner_hash"`
	ExpiresOn     time.Time `json:"expires_on"`
	Scopes        []string  `json:"scopes"`
	TokenType     string    `json:"token_type"`
}

// CallbackParams are the query parameters the provider redirects back with.
type CallbackParams struct {
	Code             string
	State            string
	Error            string
	ErrorDescription string
}

func CallbackParamsFromQuery(q url.Values) CallbackParams {
	return CallbackParams{
		Code:             q.Get("code"),
		State:            q.Get("state"),
		Error:            q.Get("error"),
		ErrorDescription: q.Get("error_description"),
	}
}

// TokenTypeHint tells the revocation endpoint which kind of token it gets.
type TokenTypeHint string

const (
	HintAccessToken  TokenTypeHint = "access_token"
	HintRefreshToken TokenTypeHint = "refresh_token"
)

// Status is the position of a session in the login state machine.
type Status string

const (
	StatusAnonymous        Status = "anonymous"
	StatusAwaitingCallback Status = "awaiting_callback"
	StatusAuthenticated    Status = "authenticated"
	StatusExpired          Status = "expired"
)

// sessionRecord is the value persisted in the session store.
type sessionRecord struct {
	Status          Status    `json:"status"`
	State           string    `json:"state,omitempty"`
	StateExpiresAt  time.Time `json:"state_expires_at,omitempty"`
	RequestedScopes []string  `json:"requested_scopes,omitempty"`
	CharacterID     string    `json:"character_id,omitempty"`
	Token           *TokenSet `json:"token,omitempty"`
	Identity        *Identity `json:"identity,omitempty"`
}

// SessionView is a token-free summary of a session for display.
type SessionView struct {
	Status          Status     `json:"status"`
	Identity        *Identity  `json:"identity,omitempty"`
	TokenType       string     `json:"token_type,omitempty"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	HasRefreshToken bool       `json:"has_refresh_token"`
	RequestedScopes []string   `json:"requested_scopes,omitempty"`
}
