package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otherjamesbrown/chat-gateway/internal/audit"
	"github.com/otherjamesbrown/chat-gateway/internal/config"
	"github.com/otherjamesbrown/chat-gateway/internal/identity"
	"github.com/otherjamesbrown/chat-gateway/internal/provider"
	"github.com/otherjamesbrown/chat-gateway/internal/session"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type fakeProvider struct {
	signInURL      string
	signInErr      error
	callbackResult *provider.CallbackResult
	callbackErr    error
	ctx            provider.Context
	ctxErr         error
	signOutURL     string
	signOutErr     error
	signOutCalls   int
}

func (f *fakeProvider) StartSignIn(ctx context.Context, redirectURI, postRedirect string) (string, error) {
	return f.signInURL, f.signInErr
}

func (f *fakeProvider) CompleteCallback(ctx context.Context, requestURL *url.URL) (*provider.CallbackResult, error) {
	return f.callbackResult, f.callbackErr
}

func (f *fakeProvider) GetContext(ctx context.Context, sessionToken string, fetchProfile bool) (provider.Context, error) {
	return f.ctx, f.ctxErr
}

func (f *fakeProvider) StartSignOut(ctx context.Context, returnTo string) (string, error) {
	f.signOutCalls++
	return f.signOutURL, f.signOutErr
}

func testConfig(enforced bool) *config.Config {
	return &config.Config{
		ServiceName:   "chat-gateway",
		Environment:   "test",
		BaseURL:       "http://localhost:8080",
		AuthEnforced:  enforced,
		SessionSecret: testSecret,
		SessionTTL:    720 * time.Hour,
		ErrorTTL:      time.Minute,
		SignInPath:    "/api/auth/sign-in",
	}
}

func newTestHandler(t *testing.T, cfg *config.Config, client provider.Client) (*Handler, http.Handler) {
	t.Helper()
	codec := session.NewCodec(cfg.SessionSecret)
	resolver := identity.NewResolver(cfg.AuthEnforced, codec, client, cfg.SignInPath, zerolog.Nop())
	h := NewHandler(cfg, codec, client, resolver, &audit.NoopEmitter{}, zerolog.Nop())

	router := chi.NewRouter()
	RegisterRoutes(router, h)
	return h, router
}

func findCookie(t *testing.T, resp *http.Response, name string) *http.Cookie {
	t.Helper()
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func virtualRequestCookie(t *testing.T, codec *session.Codec) *http.Cookie {
	t.Helper()
	profile := &session.UserProfile{Sub: "virt-1", Name: "Impersonated", Expiry: time.Now().Add(time.Hour).Unix()}
	token, err := codec.Encode(session.NewVirtualClaims(profile, time.Now()), time.Hour)
	require.NoError(t, err)
	return &http.Cookie{Name: session.VirtualCookie, Value: token}
}

func providerRequestCookie(t *testing.T, codec *session.Codec) *http.Cookie {
	t.Helper()
	token, err := codec.Encode(session.NewProviderClaims(&session.UserProfile{Sub: "prov-1"}, "at", "it"), time.Hour)
	require.NoError(t, err)
	return &http.Cookie{Name: session.ProviderCookie, Value: token}
}

func TestSignIn_EnforcementOffGoesHome(t *testing.T) {
	cfg := testConfig(false)
	_, router := newTestHandler(t, cfg, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/sign-in?redirectTo=/chat", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, cfg.BaseURL, w.Header().Get("Location"))
}

func TestSignIn_RedirectsToProvider(t *testing.T) {
	cfg := testConfig(true)
	client := &fakeProvider{signInURL: "https://idp.example.com/auth?state=abc"}
	_, router := newTestHandler(t, cfg, client)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/sign-in?redirectTo=/chat", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, client.signInURL, w.Header().Get("Location"))
}

func TestSignIn_FailureStoresErrorAndGoesHome(t *testing.T) {
	cfg := testConfig(true)
	client := &fakeProvider{signInErr: errors.New("authorization endpoint exploded")}
	h, router := newTestHandler(t, cfg, client)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/sign-in", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, cfg.BaseURL, w.Header().Get("Location"))

	errCookie := findCookie(t, w.Result(), session.ErrorCookie)
	require.NotNil(t, errCookie)
	claims := h.codec.Decode(errCookie.Value)
	require.NotNil(t, claims)
	assert.Equal(t, msgSignInStart, claims.String(session.KeyErrorMessage))
	// Raw provider error text never reaches the client.
	assert.NotContains(t, claims.String(session.KeyErrorMessage), "exploded")
}

func TestCallback_SuccessMintsSession(t *testing.T) {
	cfg := testConfig(true)
	client := &fakeProvider{callbackResult: &provider.CallbackResult{
		Profile:      &session.UserProfile{Sub: "prov-1", Name: "Ada", Email: "ada@example.com"},
		AccessToken:  "access",
		IDToken:      "idtok",
		PostRedirect: "/chat",
	}}
	h, router := newTestHandler(t, cfg, client)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/callback?code=c&state=s", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/chat", w.Header().Get("Location"))

	cookie := findCookie(t, w.Result(), session.ProviderCookie)
	require.NotNil(t, cookie)
	claims := h.codec.Decode(cookie.Value)
	require.NotNil(t, claims)
	assert.True(t, claims.Bool(session.KeyIsAuthenticated))
	assert.Equal(t, "access", claims.String(session.KeyAccessToken))

	profile := claims.Profile()
	require.NotNil(t, profile)
	assert.Equal(t, "prov-1", profile.Sub)
}

func TestCallback_UnsafePostRedirectGoesHome(t *testing.T) {
	cfg := testConfig(true)
	client := &fakeProvider{callbackResult: &provider.CallbackResult{
		Profile:      &session.UserProfile{Sub: "prov-1"},
		PostRedirect: "https://evil.example.com/phish",
	}}
	_, router := newTestHandler(t, cfg, client)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/callback?code=c", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, cfg.BaseURL, w.Header().Get("Location"))
}

func TestCallback_FailureLeavesNoSession(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		message string
	}{
		{"provider rejection", errors.New("invalid_grant: code expired"), msgSignInFailed},
		{"network failure", errors.New("dial tcp 10.0.0.1:443: connection refused"), msgProviderOffline},
		{"timeout", errors.New("Get \"https://idp\": context deadline exceeded"), msgProviderOffline},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(true)
			client := &fakeProvider{callbackErr: tt.err}
			h, router := newTestHandler(t, cfg, client)

			req := httptest.NewRequest(http.MethodGet, "/api/auth/callback?code=c", nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusFound, w.Code)
			assert.Equal(t, cfg.BaseURL, w.Header().Get("Location"))

			// No partially-written session cookie.
			assert.Nil(t, findCookie(t, w.Result(), session.ProviderCookie))

			errCookie := findCookie(t, w.Result(), session.ErrorCookie)
			require.NotNil(t, errCookie)
			claims := h.codec.Decode(errCookie.Value)
			require.NotNil(t, claims)
			assert.Equal(t, tt.message, claims.String(session.KeyErrorMessage))
		})
	}
}

func TestSignOut_VirtualSessionSkipsProvider(t *testing.T) {
	cfg := testConfig(true)
	client := &fakeProvider{signOutURL: "https://idp.example.com/end-session"}
	h, router := newTestHandler(t, cfg, client)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/sign-out", nil)
	req.AddCookie(virtualRequestCookie(t, h.codec))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, cfg.BaseURL, w.Header().Get("Location"))
	assert.Zero(t, client.signOutCalls, "provider must not be contacted for virtual sessions")

	virtual := findCookie(t, w.Result(), session.VirtualCookie)
	require.NotNil(t, virtual)
	assert.Negative(t, virtual.MaxAge)
	assert.Nil(t, findCookie(t, w.Result(), session.ProviderCookie), "provider cookie untouched")
}

func TestSignOut_ProviderSessionRedirectsToEndSession(t *testing.T) {
	cfg := testConfig(true)
	codec := session.NewCodec(cfg.SessionSecret)
	client := &fakeProvider{
		ctx:        provider.Context{IsAuthenticated: true, Profile: &session.UserProfile{Sub: "prov-1"}},
		signOutURL: "https://idp.example.com/end-session?client_id=app",
	}
	_, router := newTestHandler(t, cfg, client)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/sign-out", nil)
	req.AddCookie(providerRequestCookie(t, codec))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, client.signOutURL, w.Header().Get("Location"))

	providerCookie := findCookie(t, w.Result(), session.ProviderCookie)
	require.NotNil(t, providerCookie)
	assert.Negative(t, providerCookie.MaxAge)
}

func TestSignOut_ProviderFailureClearsBothCookies(t *testing.T) {
	cfg := testConfig(true)
	codec := session.NewCodec(cfg.SessionSecret)
	client := &fakeProvider{
		ctx:        provider.Context{IsAuthenticated: true, Profile: &session.UserProfile{Sub: "prov-1"}},
		signOutErr: errors.New("end-session endpoint unavailable"),
	}
	_, router := newTestHandler(t, cfg, client)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/sign-out", nil)
	req.AddCookie(providerRequestCookie(t, codec))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	// Redirect home, never an error page.
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, cfg.BaseURL, w.Header().Get("Location"))

	// Both session cookies cleared defensively.
	for _, name := range []string{session.ProviderCookie, session.VirtualCookie} {
		cookie := findCookie(t, w.Result(), name)
		require.NotNil(t, cookie, "expected deletion for %s", name)
		assert.Negative(t, cookie.MaxAge)
	}
}

func TestUser_Authenticated(t *testing.T) {
	cfg := testConfig(true)
	codec := session.NewCodec(cfg.SessionSecret)
	_, router := newTestHandler(t, cfg, &fakeProvider{})

	req := httptest.NewRequest(http.MethodGet, "/api/auth/user", nil)
	req.AddCookie(virtualRequestCookie(t, codec))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"isAuthenticated":true,"user":{"id":"virt-1","name":"Impersonated"}}`, w.Body.String())
}

func TestUser_Unauthenticated(t *testing.T) {
	cfg := testConfig(true)
	_, router := newTestHandler(t, cfg, &fakeProvider{})

	req := httptest.NewRequest(http.MethodGet, "/api/auth/user", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"isAuthenticated":false,"user":null}`, w.Body.String())
}

func TestReadError_ReadOnce(t *testing.T) {
	cfg := testConfig(true)
	h, router := newTestHandler(t, cfg, &fakeProvider{})

	token, err := h.codec.Encode(session.NewErrorClaims(msgSignInFailed), cfg.ErrorTTL)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/error", nil)
	req.AddCookie(&http.Cookie{Name: session.ErrorCookie, Value: token})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"errorMessage":"Sign-in failed. Please try again."}`, w.Body.String())

	deleted := findCookie(t, w.Result(), session.ErrorCookie)
	require.NotNil(t, deleted)
	assert.Negative(t, deleted.MaxAge)
}

func TestReadError_Empty(t *testing.T) {
	cfg := testConfig(true)
	_, router := newTestHandler(t, cfg, &fakeProvider{})

	req := httptest.NewRequest(http.MethodGet, "/api/auth/error", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{}`, w.Body.String())
}

func TestSetVirtualUser(t *testing.T) {
	cfg := testConfig(true)
	h, _ := newTestHandler(t, cfg, &fakeProvider{})

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/admin/impersonate", nil)
	jar := session.NewJar(w, r, false)

	before := time.Now()
	err := h.SetVirtualUser(context.Background(), jar, session.UserProfile{Sub: "target-user", Name: "Target"})
	require.NoError(t, err)

	cookie := findCookie(t, w.Result(), session.VirtualCookie)
	require.NotNil(t, cookie)

	claims := h.codec.Decode(cookie.Value)
	require.NotNil(t, claims)
	assert.True(t, claims.Bool(session.KeyIsVirtual))
	assert.NotNil(t, claims[session.KeyLastVerified])

	profile := claims.Profile()
	require.NotNil(t, profile)
	assert.Equal(t, "target-user", profile.Sub)
	assert.Equal(t, "chat-gateway-virtual", profile.Issuer)
	// Fixed-duration expiry from now.
	assert.GreaterOrEqual(t, profile.Expiry, before.Add(cfg.SessionTTL).Unix()-1)
	assert.LessOrEqual(t, profile.Expiry, time.Now().Add(cfg.SessionTTL).Unix()+1)
}

func TestClearVirtualUser(t *testing.T) {
	cfg := testConfig(true)
	h, _ := newTestHandler(t, cfg, &fakeProvider{})

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/admin/impersonate", nil)
	jar := session.NewJar(w, r, false)

	h.ClearVirtualUser(context.Background(), jar)

	cookie := findCookie(t, w.Result(), session.VirtualCookie)
	require.NotNil(t, cookie)
	assert.Negative(t, cookie.MaxAge)
}

func TestIsNetworkError(t *testing.T) {
	assert.False(t, isNetworkError(nil))
	assert.False(t, isNetworkError(errors.New("invalid_grant")))
	assert.True(t, isNetworkError(errors.New("dial tcp: connection refused")))
	assert.True(t, isNetworkError(errors.New("lookup idp.example.com: no such host")))
	assert.True(t, isNetworkError(errors.New("read tcp: i/o timeout")))
}
