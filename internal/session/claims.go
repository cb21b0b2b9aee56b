// Package session implements the signed-cookie session protocol shared by the
// Edge Gate, the Identity Resolver and the lifecycle handlers.
//
// Purpose:
//
//	This package owns the wire contract of the session: the claim keys, the
//	user profile shape, the cookie names and attributes, and the Codec that
//	turns claims into signed, expiring tokens and back. The token held in the
//	client's cookie jar is the only copy of the session; the server keeps no
//	session table.
//
// Dependencies:
//   - github.com/golang-jwt/jwt/v5: HS256 signing and fail-closed parsing
//
// Key Responsibilities:
//   - Claims and UserProfile types with their JSON field names
//   - Cookie name constants (part of the wire contract)
//   - Jar: per-request cookie read/write/delete with fixed attributes
//   - Codec: Encode/Decode/Verify of signed session tokens
//
// Thread Safety:
//   - Codec is immutable after construction and safe for concurrent use
//   - Jar is request-scoped and must not be shared across requests
//
// Error Handling:
//   - Decode fails closed: malformed, forged and expired tokens all return
//     nil, indistinguishable to callers (treated as absence of session)
package session

import (
	"encoding/json"
	"time"
)

// Cookie names are part of the wire contract; changing them invalidates
// every session in the field.
const (
	// ProviderCookie holds the signed Logto provider session.
	ProviderCookie = "logto-session"
	// VirtualCookie holds the signed virtual-user session.
	VirtualCookie = "virtual-user"
	// ErrorCookie holds a short-lived signed error message for one-time display.
	ErrorCookie = "auth-error"
)

// Claim keys used across session variants.
const (
	KeyIsAuthenticated = "isAuthenticated"
	KeyUserInfo        = "userInfo"
	KeyAccessToken     = "accessToken"
	KeyIDToken         = "idToken"
	KeyIsVirtual       = "isVirtual"
	KeyLastVerified    = "lastVerified"
	KeyErrorMessage    = "errorMessage"
)

// Claims is a mapping of claim keys to JSON-serializable values, the decoded
// payload of a signed session token.
type Claims map[string]any

// UserProfile carries the identity fields read off an authenticated context.
// Sub is always present and is the durable identity key. Exp, when set, must
// be checked against the current time before the profile is trusted.
type UserProfile struct {
	Issuer      string `json:"iss,omitempty"`
	Sub         string `json:"sub"`
	Audience    string `json:"aud,omitempty"`
	Expiry      int64  `json:"exp,omitempty"`
	IssuedAt    int64  `json:"iat,omitempty"`
	Name        string `json:"name,omitempty"`
	Email       string `json:"email,omitempty"`
	PhoneNumber string `json:"phone_number,omitempty"`
	Username    string `json:"username,omitempty"`
	Picture     string `json:"picture,omitempty"`
}

// Expired reports whether the profile's expiry has passed. Profiles without
// an expiry never expire here; their enclosing token still does.
func (p *UserProfile) Expired(now time.Time) bool {
	return p.Expiry > 0 && p.Expiry <= now.Unix()
}

// NewProviderClaims builds the claims for a provider-backed session.
// Access and ID tokens are optional and omitted when empty.
func NewProviderClaims(profile *UserProfile, accessToken, idToken string) Claims {
	claims := Claims{
		KeyIsAuthenticated: true,
		KeyUserInfo:        profile,
	}
	if accessToken != "" {
		claims[KeyAccessToken] = accessToken
	}
	if idToken != "" {
		claims[KeyIDToken] = idToken
	}
	return claims
}

// NewVirtualClaims builds the claims for a virtual-user session established
// by a privileged caller, independent of the provider.
func NewVirtualClaims(profile *UserProfile, now time.Time) Claims {
	return Claims{
		KeyIsAuthenticated: true,
		KeyIsVirtual:       true,
		KeyUserInfo:        profile,
		KeyLastVerified:    now.UnixMilli(),
	}
}

// NewErrorClaims builds the short-lived error claims stored for one-time
// display after a failed lifecycle operation.
func NewErrorClaims(message string) Claims {
	return Claims{KeyErrorMessage: message}
}

// Bool returns the named claim as a bool, false when absent or not a bool.
func (c Claims) Bool(key string) bool {
	v, ok := c[key].(bool)
	return ok && v
}

// String returns the named claim as a string, empty when absent.
func (c Claims) String(key string) string {
	v, _ := c[key].(string)
	return v
}

// Profile extracts the embedded user profile. After a decode round-trip the
// profile arrives as a generic JSON object, so it is re-marshalled into the
// typed struct. Returns nil when the claim is absent or has no subject.
func (c Claims) Profile() *UserProfile {
	raw, ok := c[KeyUserInfo]
	if !ok {
		return nil
	}
	if p, ok := raw.(*UserProfile); ok {
		if p.Sub == "" {
			return nil
		}
		return p
	}
	buf, err := json.Marshal(raw)
	if err != nil {
		return nil
	}
	var profile UserProfile
	if err := json.Unmarshal(buf, &profile); err != nil || profile.Sub == "" {
		return nil
	}
	return &profile
}
