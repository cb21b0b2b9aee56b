package provider

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/otherjamesbrown/chat-gateway/internal/session"
)

// defaultScopes are requested on every sign-in. Logto returns profile
// fields (name, username, picture) under the profile scope and contact
// fields under email/phone.
var defaultScopes = []string{oidc.ScopeOpenID, "profile", "email", "phone", "offline_access"}

// Logto implements Client against a Logto tenant using standard OIDC
// discovery. Construction performs the discovery request; all other network
// traffic happens inside the four Client operations.
type Logto struct {
	provider     *oidc.Provider
	verifier     *oidc.IDTokenVerifier
	clientID     string
	clientSecret string
	endSession   string
	codec        *session.Codec
	logger       zerolog.Logger
}

// NewLogto discovers the tenant's OIDC configuration and returns a ready
// client. The codec is needed to read provider session tokens in GetContext.
func NewLogto(ctx context.Context, issuerURL, clientID, clientSecret string, codec *session.Codec, logger zerolog.Logger) (*Logto, error) {
	prov, err := oidc.NewProvider(ctx, issuerURL)
	if err != nil {
		return nil, fmt.Errorf("provider: discover %s: %w", issuerURL, err)
	}

	// Logto advertises end_session_endpoint in its discovery document.
	var extra struct {
		EndSessionEndpoint string `json:"end_session_endpoint"`
	}
	if err := prov.Claims(&extra); err != nil {
		logger.Warn().Err(err).Msg("provider metadata missing end_session_endpoint")
	}

	return &Logto{
		provider:     prov,
		verifier:     prov.Verifier(&oidc.Config{ClientID: clientID}),
		clientID:     clientID,
		clientSecret: clientSecret,
		endSession:   extra.EndSessionEndpoint,
		codec:        codec,
		logger:       logger.With().Str("component", "logto").Logger(),
	}, nil
}

// signInState rides the OAuth2 state parameter through the flow, carrying
// the post-auth redirect target alongside a CSRF nonce.
type signInState struct {
	Nonce        string `json:"nonce"`
	PostRedirect string `json:"post_redirect,omitempty"`
}

// StartSignIn builds the authorization URL for the code flow.
func (l *Logto) StartSignIn(ctx context.Context, redirectURI, postRedirect string) (string, error) {
	nonce, err := randomToken()
	if err != nil {
		return "", fmt.Errorf("provider: generate state: %w", err)
	}

	stateJSON, err := json.Marshal(signInState{Nonce: nonce, PostRedirect: postRedirect})
	if err != nil {
		return "", fmt.Errorf("provider: encode state: %w", err)
	}
	state := base64.RawURLEncoding.EncodeToString(stateJSON)

	cfg := l.oauthConfig(redirectURI)
	return cfg.AuthCodeURL(state, oauth2.AccessTypeOffline), nil
}

// CompleteCallback exchanges the authorization code for tokens, verifies the
// ID token and extracts the user profile from its claims.
func (l *Logto) CompleteCallback(ctx context.Context, requestURL *url.URL) (*CallbackResult, error) {
	query := requestURL.Query()
	if errCode := query.Get("error"); errCode != "" {
		return nil, fmt.Errorf("provider: callback rejected: %s (%s)", errCode, query.Get("error_description"))
	}

	code := query.Get("code")
	if code == "" {
		return nil, fmt.Errorf("provider: callback missing authorization code")
	}

	var state signInState
	if raw := query.Get("state"); raw != "" {
		stateJSON, err := base64.RawURLEncoding.DecodeString(raw)
		if err != nil {
			return nil, fmt.Errorf("provider: invalid state parameter: %w", err)
		}
		if err := json.Unmarshal(stateJSON, &state); err != nil {
			return nil, fmt.Errorf("provider: invalid state parameter: %w", err)
		}
	}

	redirect := *requestURL
	redirect.RawQuery = ""
	redirect.Fragment = ""
	cfg := l.oauthConfig(redirect.String())

	token, err := cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("provider: exchange authorization code: %w", err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, fmt.Errorf("provider: token response missing id_token")
	}

	idToken, err := l.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("provider: verify id_token: %w", err)
	}

	var claims map[string]any
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("provider: extract claims: %w", err)
	}

	profile := profileFromClaims(claims)
	if profile == nil {
		return nil, fmt.Errorf("provider: id_token missing subject")
	}

	return &CallbackResult{
		Profile:      profile,
		Claims:       claims,
		AccessToken:  token.AccessToken,
		IDToken:      rawIDToken,
		PostRedirect: state.PostRedirect,
	}, nil
}

// GetContext resolves the identity carried by a provider session token. An
// undecodable or expired token yields an unauthenticated context, not an
// error; errors are reserved for provider round-trip failures.
func (l *Logto) GetContext(ctx context.Context, sessionToken string, fetchProfile bool) (Context, error) {
	if sessionToken == "" {
		return Context{}, nil
	}

	claims := l.codec.Decode(sessionToken)
	if claims == nil || !claims.Bool(session.KeyIsAuthenticated) {
		return Context{}, nil
	}

	profile := claims.Profile()
	if profile == nil {
		return Context{}, nil
	}

	if fetchProfile {
		accessToken := claims.String(session.KeyAccessToken)
		if accessToken == "" {
			return Context{}, fmt.Errorf("provider: session has no access token for profile fetch")
		}
		info, err := l.provider.UserInfo(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken}))
		if err != nil {
			return Context{}, fmt.Errorf("provider: fetch userinfo: %w", err)
		}
		var fresh map[string]any
		if err := info.Claims(&fresh); err != nil {
			return Context{}, fmt.Errorf("provider: decode userinfo: %w", err)
		}
		if p := profileFromClaims(fresh); p != nil {
			p.Issuer = profile.Issuer
			p.Audience = profile.Audience
			p.Expiry = profile.Expiry
			p.IssuedAt = profile.IssuedAt
			profile = p
		}
	}

	return Context{IsAuthenticated: true, Profile: profile, Claims: claims}, nil
}

// StartSignOut builds the end-session URL. Callers fall back to a plain
// redirect when the provider has no end-session endpoint.
func (l *Logto) StartSignOut(ctx context.Context, returnTo string) (string, error) {
	if l.endSession == "" {
		return "", nil
	}
	u, err := url.Parse(l.endSession)
	if err != nil {
		return "", fmt.Errorf("provider: parse end-session endpoint: %w", err)
	}
	q := u.Query()
	q.Set("client_id", l.clientID)
	if returnTo != "" {
		q.Set("post_logout_redirect_uri", returnTo)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (l *Logto) oauthConfig(redirectURI string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     l.clientID,
		ClientSecret: l.clientSecret,
		Endpoint:     l.provider.Endpoint(),
		RedirectURL:  redirectURI,
		Scopes:       defaultScopes,
	}
}

// profileFromClaims maps standard OIDC claims into a UserProfile. Returns
// nil when the subject is missing.
func profileFromClaims(claims map[string]any) *session.UserProfile {
	str := func(key string) string {
		v, _ := claims[key].(string)
		return v
	}
	num := func(key string) int64 {
		v, _ := claims[key].(float64)
		return int64(v)
	}

	sub := str("sub")
	if sub == "" {
		return nil
	}

	aud := str("aud")
	if aud == "" {
		// aud may arrive as a single-element array.
		if list, ok := claims["aud"].([]any); ok && len(list) > 0 {
			aud, _ = list[0].(string)
		}
	}

	return &session.UserProfile{
		Issuer:      str("iss"),
		Sub:         sub,
		Audience:    aud,
		Expiry:      num("exp"),
		IssuedAt:    num("iat"),
		Name:        str("name"),
		Email:       str("email"),
		PhoneNumber: str("phone_number"),
		Username:    str("username"),
		Picture:     str("picture"),
	}
}

func randomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
