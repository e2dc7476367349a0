package sso

import (
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// AccessClaims is the payload of an SSO v2 access token.
type AccessClaims struct {
	jwt.RegisteredClaims
	Name   string           `json:"name"`
	Owner  string           `json:"owner"`
	Scopes jwt.ClaimStrings `json:"scp"`
	Tenant string           `json:"tenant,omitempty"`
}

// CharacterID extracts the id from a subject like "CHARACTER:EVE:90000001".
func (c *AccessClaims) CharacterID() string {
	parts := strings.Split(c.Subject, ":")
	if len(parts) != 3 || parts[0] != "CHARACTER" {
		return ""
	}
	return parts[2]
}

// InspectAccessToken decodes the claims of a JWT access token without
// checking its signature. The provider's verify endpoint stays the authority
// on validity; this only reads what the token says about itself.
func InspectAccessToken(token string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("inspect access token: %w", err)
	}
	return claims, nil
}
