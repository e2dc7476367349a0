package entity

import "time"

// Character is one EVE character that has completed a login, with the most
// recent tokens issued for it. Tokens are empty after logout.
type Character struct {
	CharacterID   string    `json:"character_id"`
	CharacterName string    `json:"character_name"`
	OwnerHash     string    `json:"character_owner_hash"`
	AccessToken   string    `json:"-"`
	RefreshToken  string    `json:"-"`
	ExpiresAt     time.Time `json:"expires_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// HasTokens reports whether the character is still signed in somewhere.
func (c *Character) HasTokens() bool {
	return c.AccessToken != "" || c.RefreshToken != ""
}
