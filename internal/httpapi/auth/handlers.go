// Package auth provides HTTP handlers for the session lifecycle endpoints.
//
// Purpose:
//
//	This package implements the endpoints that establish, verify and tear
//	down user sessions: sign-in initiation, OAuth callback completion,
//	sign-out, the current-user endpoint, and the one-time error reader.
//	It also exports the virtual-user helpers used by privileged callers
//	(admin impersonation) to establish sessions that bypass the provider.
//
// Dependencies:
//   - github.com/go-chi/chi/v5: HTTP router for route registration
//   - internal/session: codec and per-request cookie jar
//   - internal/identity: authoritative identity resolution
//   - internal/provider: provider client (sign-in/callback/sign-out URLs)
//   - internal/audit: lifecycle audit events
//
// Key Responsibilities:
//   - SignIn: GET /api/auth/sign-in?redirectTo=<path>
//   - Callback: GET /api/auth/callback
//   - SignOut: GET|POST /api/auth/sign-out
//   - User: GET /api/auth/user
//   - ReadError: GET /api/auth/error (read-once error message)
//   - SetVirtualUser / ClearVirtualUser helpers
//
// Error Handling:
//   - Provider and network failures are caught at every call site, logged
//     with a component tag, stored as a sanitized message in the short-lived
//     error cookie and answered with a redirect to the base URL. Raw
//     provider error text never reaches the client.
package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/otherjamesbrown/chat-gateway/internal/audit"
	"github.com/otherjamesbrown/chat-gateway/internal/config"
	"github.com/otherjamesbrown/chat-gateway/internal/identity"
	"github.com/otherjamesbrown/chat-gateway/internal/metrics"
	"github.com/otherjamesbrown/chat-gateway/internal/provider"
	"github.com/otherjamesbrown/chat-gateway/internal/session"
)

// Sanitized user-facing failure messages. Raw provider errors are logged,
// never displayed.
const (
	msgSignInFailed    = "Sign-in failed. Please try again."
	msgProviderOffline = "Cannot reach the authentication server. Please try again later."
	msgSignInStart     = "Unable to start sign-in. Please try again."
)

// Handler serves the session lifecycle endpoints.
type Handler struct {
	cfg      *config.Config
	codec    *session.Codec
	client   provider.Client
	resolver *identity.Resolver
	audit    audit.Emitter
	logger   zerolog.Logger
}

// NewHandler wires the lifecycle handler. client may be nil when enforcement
// is off.
func NewHandler(cfg *config.Config, codec *session.Codec, client provider.Client, resolver *identity.Resolver, emitter audit.Emitter, logger zerolog.Logger) *Handler {
	return &Handler{
		cfg:      cfg,
		codec:    codec,
		client:   client,
		resolver: resolver,
		audit:    emitter,
		logger:   logger.With().Str("component", "auth").Logger(),
	}
}

// RegisterRoutes mounts the session lifecycle routes beneath /api/auth.
func RegisterRoutes(router chi.Router, h *Handler) {
	router.Route("/api/auth", func(r chi.Router) {
		r.Get("/sign-in", h.SignIn)
		r.Get("/callback", h.Callback)
		r.Get("/sign-out", h.SignOut)
		r.Post("/sign-out", h.SignOut)
		r.Get("/user", h.User)
		r.Get("/error", h.ReadError)
	})
}

// SignIn initiates the provider sign-in flow. With enforcement off there is
// nothing to sign into; the request is sent home.
func (h *Handler) SignIn(w http.ResponseWriter, r *http.Request) {
	if !h.cfg.AuthEnforced || h.client == nil {
		http.Redirect(w, r, h.cfg.BaseURL, http.StatusFound)
		return
	}

	jar := session.NewJar(w, r, h.cfg.Production())
	redirectTo := r.URL.Query().Get("redirectTo")

	authURL, err := h.client.StartSignIn(r.Context(), h.callbackURL(), redirectTo)
	if err != nil {
		h.logger.Warn().Err(err).Msg("sign-in initiation failed")
		metrics.RecordProviderFailure("start_sign_in")
		h.storeError(jar, msgSignInStart)
		http.Redirect(w, r, h.cfg.BaseURL, http.StatusFound)
		return
	}

	metrics.RecordSignInStart()
	h.emit(r, audit.BuildEvent(audit.ActionSignIn, "", ""))
	http.Redirect(w, r, authURL, http.StatusFound)
}

// Callback completes the OAuth flow: exchanges the callback parameters for
// an authenticated context, mints the provider session cookie and redirects
// to the original target. No partially-written session cookie is ever left
// behind; the cookie is set only after every step has succeeded.
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	jar := session.NewJar(w, r, h.cfg.Production())

	if h.client == nil {
		http.Redirect(w, r, h.cfg.BaseURL, http.StatusFound)
		return
	}

	result, err := h.client.CompleteCallback(r.Context(), h.absoluteURL(r.URL))
	if err != nil {
		h.failCallback(w, r, jar, err)
		return
	}

	claims := session.NewProviderClaims(result.Profile, result.AccessToken, result.IDToken)
	token, err := h.codec.Encode(claims, h.cfg.SessionTTL)
	if err != nil {
		h.failCallback(w, r, jar, err)
		return
	}
	jar.Set(session.ProviderCookie, token, h.cfg.SessionTTL)

	metrics.RecordCallback("success")
	metrics.RecordSessionCreated("provider")
	h.emit(r, audit.BuildEvent(audit.ActionCallbackSuccess, result.Profile.Sub, identity.TierProvider.String()))

	http.Redirect(w, r, h.safeTarget(result.PostRedirect), http.StatusFound)
}

func (h *Handler) failCallback(w http.ResponseWriter, r *http.Request, jar *session.Jar, err error) {
	message := msgSignInFailed
	result := "failure"
	if isNetworkError(err) {
		message = msgProviderOffline
		result = "network_failure"
	}

	h.logger.Warn().Err(err).Str("result", result).Msg("callback completion failed")
	metrics.RecordCallback(result)
	metrics.RecordProviderFailure("complete_callback")

	event := audit.BuildEvent(audit.ActionCallbackFailure, "", "")
	event.Metadata = map[string]any{"result": result}
	h.emit(r, event)

	h.storeError(jar, message)
	http.Redirect(w, r, h.cfg.BaseURL, http.StatusFound)
}

// SignOut tears down the current session. Virtual sessions are local-only:
// the virtual cookie is deleted and the provider is never contacted. For
// provider sessions the provider's end-session URL is the redirect target.
// Any failure mid-operation deletes both session cookies defensively so a
// stale session is never left behind.
func (h *Handler) SignOut(w http.ResponseWriter, r *http.Request) {
	jar := session.NewJar(w, r, h.cfg.Production())
	id := h.resolver.Resolve(r.Context(), jar)

	if id.Tier == identity.TierVirtual {
		jar.Delete(session.VirtualCookie)
		metrics.RecordSessionCleared("virtual")
		h.emit(r, audit.BuildEvent(audit.ActionSignOut, id.Profile.Sub, id.Tier.String()))
		http.Redirect(w, r, h.cfg.BaseURL, http.StatusFound)
		return
	}

	jar.Delete(session.ProviderCookie)
	metrics.RecordSessionCleared("provider")

	subject := ""
	if id.Profile != nil {
		subject = id.Profile.Sub
	}
	h.emit(r, audit.BuildEvent(audit.ActionSignOut, subject, id.Tier.String()))

	if h.client == nil {
		jar.Delete(session.VirtualCookie)
		http.Redirect(w, r, h.cfg.BaseURL, http.StatusFound)
		return
	}

	signOutURL, err := h.client.StartSignOut(r.Context(), h.cfg.BaseURL)
	if err != nil {
		h.logger.Warn().Err(err).Msg("provider sign-out failed, clearing both session cookies")
		metrics.RecordProviderFailure("start_sign_out")
		jar.Delete(session.VirtualCookie)
		http.Redirect(w, r, h.cfg.BaseURL, http.StatusFound)
		return
	}
	if signOutURL == "" {
		http.Redirect(w, r, h.cfg.BaseURL, http.StatusFound)
		return
	}
	http.Redirect(w, r, signOutURL, http.StatusFound)
}

// userResponse is the body of GET /api/auth/user.
type userResponse struct {
	IsAuthenticated bool      `json:"isAuthenticated"`
	User            *userBody `json:"user"`
}

type userBody struct {
	ID       string `json:"id"`
	Name     string `json:"name,omitempty"`
	Email    string `json:"email,omitempty"`
	Picture  string `json:"picture,omitempty"`
	Username string `json:"username,omitempty"`
}

// User reports the current identity. Never fails: unauthenticated requests
// get a 401 with an explicit body, not an error.
func (h *Handler) User(w http.ResponseWriter, r *http.Request) {
	jar := session.NewJar(w, r, h.cfg.Production())
	id := h.resolver.Resolve(r.Context(), jar)

	w.Header().Set("Content-Type", "application/json")
	if !id.Authenticated() {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(userResponse{IsAuthenticated: false})
		return
	}

	_ = json.NewEncoder(w).Encode(userResponse{
		IsAuthenticated: true,
		User: &userBody{
			ID:       id.Profile.Sub,
			Name:     id.Profile.Name,
			Email:    id.Profile.Email,
			Picture:  id.Profile.Picture,
			Username: id.Profile.Username,
		},
	})
}

// ReadError returns the stored one-time error message and clears it. An
// absent or undecodable error cookie yields an empty object.
func (h *Handler) ReadError(w http.ResponseWriter, r *http.Request) {
	jar := session.NewJar(w, r, h.cfg.Production())

	w.Header().Set("Content-Type", "application/json")
	claims := h.codec.Decode(jar.Get(session.ErrorCookie))
	if claims == nil {
		_, _ = w.Write([]byte("{}\n"))
		return
	}
	jar.Delete(session.ErrorCookie)
	_ = json.NewEncoder(w).Encode(map[string]string{
		session.KeyErrorMessage: claims.String(session.KeyErrorMessage),
	})
}

// SetVirtualUser establishes a virtual session for the given subject,
// bypassing the provider entirely. Callers are privileged (admin
// impersonation); no public route is registered for this operation. The
// synthesized profile expires a fixed duration from now.
func (h *Handler) SetVirtualUser(ctx context.Context, jar *session.Jar, profile session.UserProfile) error {
	now := time.Now()
	profile.Issuer = "chat-gateway-virtual"
	profile.Audience = h.cfg.ServiceName
	profile.IssuedAt = now.Unix()
	profile.Expiry = now.Add(h.cfg.SessionTTL).Unix()

	token, err := h.codec.Encode(session.NewVirtualClaims(&profile, now), h.cfg.SessionTTL)
	if err != nil {
		return err
	}
	jar.Set(session.VirtualCookie, token, h.cfg.SessionTTL)

	metrics.RecordSessionCreated("virtual")
	if err := h.audit.Emit(ctx, audit.BuildEvent(audit.ActionVirtualSet, profile.Sub, identity.TierVirtual.String())); err != nil {
		h.logger.Warn().Err(err).Msg("audit emit failed")
	}
	return nil
}

// ClearVirtualUser deletes the virtual-user session.
func (h *Handler) ClearVirtualUser(ctx context.Context, jar *session.Jar) {
	jar.Delete(session.VirtualCookie)
	metrics.RecordSessionCleared("virtual")
	if err := h.audit.Emit(ctx, audit.BuildEvent(audit.ActionVirtualClear, "", identity.TierVirtual.String())); err != nil {
		h.logger.Warn().Err(err).Msg("audit emit failed")
	}
}

// storeError writes the sanitized message into the short-lived error cookie.
func (h *Handler) storeError(jar *session.Jar, message string) {
	token, err := h.codec.Encode(session.NewErrorClaims(message), h.cfg.ErrorTTL)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to encode error claims")
		return
	}
	jar.Set(session.ErrorCookie, token, h.cfg.ErrorTTL)
}

// callbackURL is the registered OAuth redirect URI.
func (h *Handler) callbackURL() string {
	return strings.TrimRight(h.cfg.BaseURL, "/") + "/api/auth/callback"
}

// absoluteURL resolves the incoming request URL against the configured base
// so the code exchange sees the registered redirect URI.
func (h *Handler) absoluteURL(u *url.URL) *url.URL {
	base, err := url.Parse(h.cfg.BaseURL)
	if err != nil {
		return u
	}
	return base.ResolveReference(u)
}

// safeTarget restricts post-auth redirects to local paths; anything else
// lands on the base URL.
func (h *Handler) safeTarget(target string) string {
	if strings.HasPrefix(target, "/") && !strings.HasPrefix(target, "//") {
		return target
	}
	return h.cfg.BaseURL
}

func (h *Handler) emit(r *http.Request, event audit.Event) {
	event = audit.BuildEventFromRequest(event, r)
	if err := h.audit.Emit(r.Context(), event); err != nil {
		h.logger.Warn().Err(err).Str("action", event.Action).Msg("audit emit failed")
	}
}

// networkFailureSignatures are matched against provider errors to decide
// whether the user sees the "cannot reach authentication server" message.
var networkFailureSignatures = []string{
	"connection refused",
	"connection reset",
	"no such host",
	"i/o timeout",
	"network is unreachable",
	"context deadline exceeded",
	"tls handshake",
}

func isNetworkError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, sig := range networkFailureSignatures {
		if strings.Contains(msg, sig) {
			return true
		}
	}
	return false
}
