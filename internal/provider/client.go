// Package provider wraps the external identity provider behind a narrow,
// typed interface.
//
// Purpose:
//
//	The rest of the gateway never depends on the provider SDK's own type
//	shapes. Four operations cover everything this system consumes: start a
//	sign-in, complete a callback, fetch the current authenticated context,
//	and start a sign-out. All four are fallible, context-aware and opaque.
//
// Dependencies:
//   - github.com/coreos/go-oidc/v3/oidc: OIDC discovery, ID-token verification, userinfo
//   - golang.org/x/oauth2: authorization-code flow
//
// Key Responsibilities:
//   - Client interface: the only provider surface consumed by callers
//   - Logto: OIDC implementation against a Logto tenant
//
// Error Handling:
//   - Every method returns errors unwrapped from the underlying OIDC/OAuth2
//     libraries; callers are responsible for catching and sanitizing them
package provider

import (
	"context"
	"net/url"

	"github.com/otherjamesbrown/chat-gateway/internal/session"
)

// Context is the provider's view of the current request's identity.
type Context struct {
	IsAuthenticated bool
	Profile         *session.UserProfile
	Claims          map[string]any
}

// CallbackResult carries everything the lifecycle layer needs to mint a
// provider session after a successful code exchange.
type CallbackResult struct {
	Profile      *session.UserProfile
	Claims       map[string]any
	AccessToken  string
	IDToken      string
	PostRedirect string
}

// Client is the narrow contract consumed from the identity provider.
type Client interface {
	// StartSignIn builds the provider authorization URL. postRedirect is
	// carried through the flow and returned by CompleteCallback.
	StartSignIn(ctx context.Context, redirectURI, postRedirect string) (string, error)

	// CompleteCallback exchanges the callback parameters for an
	// authenticated context.
	CompleteCallback(ctx context.Context, requestURL *url.URL) (*CallbackResult, error)

	// GetContext resolves the current identity from the raw provider
	// session token. With fetchProfile set it refreshes the profile from
	// the provider's userinfo endpoint (network call); otherwise it trusts
	// the profile embedded in the session.
	GetContext(ctx context.Context, sessionToken string, fetchProfile bool) (Context, error)

	// StartSignOut builds the provider's end-session URL. Returns an empty
	// URL without error when the provider advertises no end-session
	// endpoint.
	StartSignOut(ctx context.Context, returnTo string) (string, error)
}
