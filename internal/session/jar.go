package session

import (
	"net/http"
	"time"
)

// Jar reads and writes the gateway's session cookies for a single request.
// Cookie attributes are fixed by the wire contract: httpOnly, path=/,
// SameSite=Lax, Secure in production. Lifecycle operations take a Jar as an
// explicit parameter so they stay testable without a real HTTP stack.
type Jar struct {
	w      http.ResponseWriter
	r      *http.Request
	secure bool
}

// NewJar wraps the request/response pair of a single in-flight request.
func NewJar(w http.ResponseWriter, r *http.Request, secure bool) *Jar {
	return &Jar{w: w, r: r, secure: secure}
}

// Get returns the raw value of the named cookie, or "" when absent.
func (j *Jar) Get(name string) string {
	cookie, err := j.r.Cookie(name)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// Set writes the named cookie with the contract's fixed attributes.
func (j *Jar) Set(name, value string, maxAge time.Duration) {
	http.SetCookie(j.w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		Secure:   j.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Delete instructs the client to drop the named cookie. Deletion must be
// visible in the same response that decided it, so it writes immediately.
func (j *Jar) Delete(name string) {
	http.SetCookie(j.w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   j.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
