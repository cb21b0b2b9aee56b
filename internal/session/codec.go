package session

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Default token lifetimes. Session cookies live for 30 days; error cookies
// are single-purpose and expire after a minute.
const (
	DefaultTTL = 30 * 24 * time.Hour
	ErrorTTL   = time.Minute
)

// signingMethods is the allowlist for token verification. Anything outside
// HS256 (including alg=none) is rejected.
var signingMethods = []string{jwt.SigningMethodHS256.Alg()}

// Codec encodes and decodes signed, expiring session tokens using a single
// process-wide secret. It is a pure function of (claims, key, clock) and
// performs no I/O.
type Codec struct {
	secret []byte
}

// NewCodec creates a codec keyed by the shared session secret.
func NewCodec(secret string) *Codec {
	return &Codec{secret: []byte(secret)}
}

// Encode signs the claims into a token string, attaching issued-at = now and
// expiry = now + ttl. The input map is not mutated.
func (c *Codec) Encode(claims Claims, ttl time.Duration) (string, error) {
	now := time.Now()
	payload := make(jwt.MapClaims, len(claims)+2)
	for k, v := range claims {
		payload[k] = v
	}
	payload["iat"] = now.Unix()
	payload["exp"] = now.Add(ttl).Unix()

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, payload).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("session: sign token: %w", err)
	}
	return token, nil
}

// Decode verifies the token's signature and expiry and returns its claims.
// Malformed input, a wrong signature and an expired token are
// indistinguishable to the caller: all return nil. Every call site treats
// nil as "no session", never as an error path.
func (c *Codec) Decode(token string) Claims {
	parser := jwt.NewParser(
		jwt.WithValidMethods(signingMethods),
		jwt.WithExpirationRequired(),
		// Strict base64: non-canonical encodings of a valid signature do not
		// verify.
		jwt.WithStrictDecoding(),
	)

	claims := jwt.MapClaims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return c.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil
	}
	return Claims(claims)
}

// Verify reports whether the token decodes successfully. This is the
// signature+expiry-only check the Edge Gate runs; the decoded claims are
// never interpreted.
func (c *Codec) Verify(token string) bool {
	return c.Decode(token) != nil
}
