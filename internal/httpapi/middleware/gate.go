// Package middleware provides the Edge Gate: pre-routing admission control.
//
// Purpose:
//
//	This package implements the fast-path request interceptor that runs
//	before any handler. It classifies the requested path against configured
//	public and protected prefix sets and, for protected paths, verifies
//	that some valid signed session cookie is present. It never decodes
//	business fields and never contacts the provider; the Identity Resolver
//	remains the authority inside handlers.
//
// Dependencies:
//   - internal/session: signature+expiry verification of session cookies
//   - github.com/rs/zerolog: decision diagnostics
//
// Key Responsibilities:
//   - Pass public, static-asset and unclassified paths through untouched
//   - Bypass all checks when enforcement is off (mirrors the mock tier)
//   - Reject obviously-unauthenticated traffic: 401 JSON under the API
//     prefix, sign-in redirect with redirectTo elsewhere
//
// Thread Safety:
//   - The middleware is stateless and safe for concurrent use
package middleware

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/otherjamesbrown/chat-gateway/internal/identity"
	"github.com/otherjamesbrown/chat-gateway/internal/metrics"
	"github.com/otherjamesbrown/chat-gateway/internal/session"
)

// GateConfig is the Edge Gate's slice of process configuration, fixed at
// startup.
type GateConfig struct {
	// Enforced mirrors the process-wide enforcement switch; when false all
	// requests pass through regardless of classification.
	Enforced bool
	// ProtectedPrefixes must present a valid session to proceed.
	ProtectedPrefixes []string
	// PublicPrefixes always pass through, no auth check.
	PublicPrefixes []string
	// StaticSuffixes are asset paths excluded from gating.
	StaticSuffixes []string
	// APIPrefix selects 401 JSON over redirect for rejected paths.
	APIPrefix string
	// SignInPath is the redirect target for rejected page paths.
	SignInPath string
}

// EdgeGate returns the admission-control middleware. Session verification
// is a signature+expiry check only; the gate confirms decode succeeds and
// nothing more.
func EdgeGate(cfg GateConfig, codec *session.Codec, logger zerolog.Logger) func(http.Handler) http.Handler {
	log := logger.With().Str("component", "edge-gate").Logger()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.Enforced {
				next.ServeHTTP(w, r)
				return
			}

			path := r.URL.Path
			if !requiresSession(cfg, path) {
				next.ServeHTTP(w, r)
				return
			}

			// Priority order matches the resolver's cookie tiers.
			if verifyAny(r, codec, session.ProviderCookie, session.VirtualCookie) {
				metrics.RecordGateDecision("pass")
				next.ServeHTTP(w, r)
				return
			}

			if strings.HasPrefix(path, cfg.APIPrefix) {
				log.Debug().Str("path", path).Msg("rejecting unauthenticated API request")
				metrics.RecordGateDecision("unauthorized")
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(identity.ErrorBody{
					Error:   "Unauthorized",
					Message: "Authentication required",
					Code:    http.StatusUnauthorized,
				})
				return
			}

			log.Debug().Str("path", path).Msg("redirecting unauthenticated page request")
			metrics.RecordGateDecision("redirect")
			http.Redirect(w, r, identity.SignInRedirect(cfg.SignInPath, path), http.StatusFound)
		})
	}
}

// requiresSession classifies the path. Public and static paths never need a
// session; protected paths do; anything unclassified passes through.
func requiresSession(cfg GateConfig, path string) bool {
	for _, suffix := range cfg.StaticSuffixes {
		if suffix != "" && strings.HasSuffix(path, suffix) {
			return false
		}
	}
	for _, prefix := range cfg.PublicPrefixes {
		if prefix != "" && strings.HasPrefix(path, prefix) {
			return false
		}
	}
	for _, prefix := range cfg.ProtectedPrefixes {
		if prefix != "" && strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// verifyAny reports whether any of the named cookies carries a token that
// decodes with a valid signature and unexpired lifetime.
func verifyAny(r *http.Request, codec *session.Codec, names ...string) bool {
	for _, name := range names {
		cookie, err := r.Cookie(name)
		if err != nil || cookie.Value == "" {
			continue
		}
		if codec.Verify(cookie.Value) {
			return true
		}
	}
	return false
}
