package sso

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"

	"golang.org/x/oauth2"
)

// stateBytes is the entropy behind each state value (256 bits).
const stateBytes = 32

// AuthURLBuilder constructs provider authorization URLs.
type AuthURLBuilder struct {
	creds         ClientCredentials
	authorizeURL  string
	defaultScopes []string
	rand          io.Reader
}

// NewAuthURLBuilder returns a builder; defaultScopes is used when Build gets none.
func NewAuthURLBuilder(creds ClientCredentials, authorizeURL string, defaultScopes []string) *AuthURLBuilder {
	return &AuthURLBuilder{
		creds:         creds,
		authorizeURL:  authorizeURL,
		defaultScopes: NormalizeScopes(defaultScopes),
		rand:          rand.Reader,
	}
}

// Build creates the URL and the state that the callback must echo back.
func (b *AuthURLBuilder) Build(scopes []string) (*AuthorizationRequest, error) {
	scopes = NormalizeScopes(scopes)
	if len(scopes) == 0 {
		scopes = append([]string(nil), b.defaultScopes...)
	}
	if len(scopes) == 0 {
		return nil, &ConfigError{Field: "scope", Reason: "no scopes requested and no default configured"}
	}
	state, err := GenerateState(b.rand)
	if err != nil {
		return nil, err
	}
	cfg := oauth2.Config{
		ClientID:    b.creds.ClientID,
		RedirectURL: b.creds.RedirectURI,
		Scopes:      scopes,
		Endpoint:    oauth2.Endpoint{AuthURL: b.authorizeURL},
	}
	return &AuthorizationRequest{
		State:        state,
		Scopes:       scopes,
		AuthorizeURL: cfg.AuthCodeURL(state),
	}, nil
}

// GenerateState returns a URL-safe random token with 256 bits of entropy.
func GenerateState(r io.Reader) (string, error) {
	buf := make([]byte, stateBytes)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("generate state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
