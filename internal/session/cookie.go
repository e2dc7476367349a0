package session

import (
	"net/http"
	"time"

	"github.com/ovaphlow/pitchfork/service-esi-sso-go/pkg/utilities"
)

const CookieName = "esi_sso_session"

// Cookies issues and reads the session-id cookie.
type Cookies struct {
	Secure bool
	TTL    time.Duration
}

// ID returns the session id from the request, if any.
func (c Cookies) ID(r *http.Request) (string, bool) {
	ck, err := r.Cookie(CookieName)
	if err != nil || ck.Value == "" {
		return "", false
	}
	return ck.Value, true
}

// NewID returns a fresh session id.
func NewID() string {
	return utilities.NewKSUID()
}

// Issue sets a cookie carrying a fresh session id and returns it. A cookie
// sent with the request is never reused.
func (c Cookies) Issue(w http.ResponseWriter) string {
	id := NewID()
	c.Set(w, id)
	return id
}

// Set points the session cookie at id.
func (c Cookies) Set(w http.ResponseWriter, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(c.TTL.Seconds()),
		HttpOnly: true,
		Secure:   c.Secure,
		// Lax so the cookie rides along on the provider's top-level redirect back.
		SameSite: http.SameSiteLaxMode,
	})
}

// Clear expires the session cookie.
func (c Cookies) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}
