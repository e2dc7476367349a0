package entity

import (
	"strings"
	"time"
)

// SsoConfig is the single persisted SSO application registration.
type SsoConfig struct {
	ClientID     string    `json:"client_id"`
	ClientSecret string    `json:"client_secret,omitempty"`
	CallbackURL  string    `json:"callback_url"`
	Scope        string    `json:"scope"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Scopes splits the stored space-delimited scope list.
func (c *SsoConfig) Scopes() []string {
	return strings.Fields(c.Scope)
}

// SsoConfigView is what the API shows: the client id is shortened and the
// secret is only reported as present or not.
type SsoConfigView struct {
	ClientID        string    `json:"client_id"`
	ClientSecretSet bool      `json:"client_secret_set"`
	CallbackURL     string    `json:"callback_url"`
	Scopes          []string  `json:"scopes"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (c *SsoConfig) View() *SsoConfigView {
	id := c.ClientID
	if len(id) > 8 {
		id = id[:8] + "..."
	}
	return &SsoConfigView{
		ClientID:        id,
		ClientSecretSet: c.ClientSecret != "",
		CallbackURL:     c.CallbackURL,
		Scopes:          c.Scopes(),
		UpdatedAt:       c.UpdatedAt,
	}
}
