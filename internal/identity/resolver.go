// Package identity implements the authoritative three-tier identity
// resolution used inside handlers.
//
// Purpose:
//
//	Given the current request's cookies, produce exactly one identity
//	context by fixed priority: mock (enforcement off), virtual (signed
//	virtual-user cookie), provider (Logto session). The resolver never
//	returns an error; failures collapse to Unauthenticated.
//
// Dependencies:
//   - internal/session: codec and cookie jar
//   - internal/provider: provider client (tier 3)
//   - github.com/rs/zerolog: failure diagnostics
//
// Key Responsibilities:
//   - Resolver.Resolve: the three-tier resolution pass
//   - RequireIdentity / RequireAuthOrError: control-flow wrappers returning
//     an explicit Outcome instead of throwing or writing responses
//
// Thread Safety:
//   - Resolver is immutable after construction; Resolve is idempotent apart
//     from the expired-virtual-cookie cleanup, which is request-scoped
//
// Error Handling:
//   - Provider call failures are caught, logged at warn and counted; they
//     never propagate to callers
package identity

import (
	"context"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/otherjamesbrown/chat-gateway/internal/metrics"
	"github.com/otherjamesbrown/chat-gateway/internal/provider"
	"github.com/otherjamesbrown/chat-gateway/internal/session"
)

// Tier names which identity variant holds.
type Tier int

const (
	TierNone Tier = iota
	TierMock
	TierVirtual
	TierProvider
)

// String returns the tier label used in logs and metrics.
func (t Tier) String() string {
	switch t {
	case TierMock:
		return "mock"
	case TierVirtual:
		return "virtual"
	case TierProvider:
		return "provider"
	default:
		return "none"
	}
}

// Identity is the resolution result. Exactly one variant holds: TierNone
// carries no profile, every other tier carries one; Claims is populated for
// the provider tier only.
type Identity struct {
	Tier    Tier
	Profile *session.UserProfile
	Claims  session.Claims
}

// Authenticated reports whether any identity tier matched.
func (id Identity) Authenticated() bool {
	return id.Tier != TierNone
}

// Unauthenticated is the zero resolution result.
var Unauthenticated = Identity{}

// mockProfile is the fixed synthetic identity returned whenever enforcement
// is off. It never varies within a running process.
var mockProfile = session.UserProfile{
	Issuer:   "chat-gateway-mock",
	Sub:      "mock-user",
	Audience: "chat-gateway",
	Name:     "Development User",
	Email:    "dev@localhost",
	Username: "dev",
}

// Resolver applies the fixed tier priority for every resolution pass.
type Resolver struct {
	enforced   bool
	codec      *session.Codec
	client     provider.Client
	signInPath string
	logger     zerolog.Logger
}

// NewResolver builds the resolver. client may be nil when enforcement is
// off; with enforcement on and a nil client the provider tier is skipped.
func NewResolver(enforced bool, codec *session.Codec, client provider.Client, signInPath string, logger zerolog.Logger) *Resolver {
	return &Resolver{
		enforced:   enforced,
		codec:      codec,
		client:     client,
		signInPath: signInPath,
		logger:     logger.With().Str("component", "identity").Logger(),
	}
}

// Resolve produces exactly one identity context for the request behind jar.
// It never fails; the worst outcome is Unauthenticated. Safe to call
// repeatedly per request.
func (r *Resolver) Resolve(ctx context.Context, jar *session.Jar) Identity {
	// Tier 1: mock. No cookies read, no provider call.
	if !r.enforced {
		metrics.RecordResolution(TierMock.String())
		return Identity{Tier: TierMock, Profile: &mockProfile}
	}

	// Tier 2: virtual-user cookie.
	if token := jar.Get(session.VirtualCookie); token != "" {
		if claims := r.codec.Decode(token); claims != nil && claims.Bool(session.KeyIsVirtual) {
			if profile := claims.Profile(); profile != nil {
				if profile.Expired(time.Now()) {
					// Stale override: clean it up before falling through.
					jar.Delete(session.VirtualCookie)
				} else {
					metrics.RecordResolution(TierVirtual.String())
					return Identity{Tier: TierVirtual, Profile: profile}
				}
			}
		}
	}

	// Tier 3: provider session.
	if r.client != nil {
		pctx, err := r.client.GetContext(ctx, jar.Get(session.ProviderCookie), false)
		if err != nil {
			r.logger.Warn().Err(err).Msg("provider context lookup failed")
			metrics.RecordProviderFailure("get_context")
		} else if pctx.IsAuthenticated && pctx.Profile != nil {
			metrics.RecordResolution(TierProvider.String())
			return Identity{Tier: TierProvider, Profile: pctx.Profile, Claims: pctx.Claims}
		}
	}

	metrics.RecordResolution(TierNone.String())
	return Unauthenticated
}

// RequireIdentity resolves the request and, when unauthenticated, yields a
// redirect to the sign-in entry point with the original path preserved.
func (r *Resolver) RequireIdentity(ctx context.Context, jar *session.Jar, originalPath string) Outcome {
	return r.RequireAuthOrError(ctx, jar, false, originalPath)
}

// RequireAuthOrError resolves the request. Unauthenticated API callers get
// a structured 401 body; unauthenticated page callers get a sign-in
// redirect. One predicate selects the behavior.
func (r *Resolver) RequireAuthOrError(ctx context.Context, jar *session.Jar, isAPICall bool, originalPath string) Outcome {
	id := r.Resolve(ctx, jar)
	if id.Authenticated() {
		return Outcome{Kind: Continue, Identity: id}
	}
	if isAPICall {
		return Outcome{Kind: JSONError, Body: &ErrorBody{
			Error:   "Unauthorized",
			Message: "Authentication required",
			Code:    401,
		}}
	}
	return Outcome{Kind: Redirect, Location: SignInRedirect(r.signInPath, originalPath)}
}

// SignInRedirect builds the sign-in entry point URL with the original path
// preserved as redirectTo.
func SignInRedirect(signInPath, originalPath string) string {
	if originalPath == "" {
		return signInPath
	}
	return signInPath + "?redirectTo=" + url.QueryEscape(originalPath)
}
