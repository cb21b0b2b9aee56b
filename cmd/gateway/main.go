// Command gateway is the chat application's session gateway.
//
// Purpose:
//
//	This binary wires configuration, logging, the session codec, the Logto
//	provider client, the identity resolver and the Edge Gate into one HTTP
//	server, and handles graceful shutdown.
//
// Key Responsibilities:
//   - Load configuration and construct the logger
//   - Discover the Logto tenant when enforcement is on
//   - Install the Edge Gate before route matching
//   - Register the /api/auth lifecycle routes
//   - Handle graceful shutdown (SIGINT/SIGTERM) with a 10s timeout
//
// Debugging Notes:
//   - With AUTH_ENFORCED=false the gateway runs without any Logto
//     configuration; every request resolves to the mock identity
//   - Provider discovery failures at startup are fatal (misconfiguration),
//     request-time provider failures are not
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/otherjamesbrown/chat-gateway/internal/audit"
	"github.com/otherjamesbrown/chat-gateway/internal/config"
	"github.com/otherjamesbrown/chat-gateway/internal/httpapi/auth"
	gatemw "github.com/otherjamesbrown/chat-gateway/internal/httpapi/middleware"
	"github.com/otherjamesbrown/chat-gateway/internal/identity"
	"github.com/otherjamesbrown/chat-gateway/internal/logging"
	"github.com/otherjamesbrown/chat-gateway/internal/provider"
	"github.com/otherjamesbrown/chat-gateway/internal/server"
	"github.com/otherjamesbrown/chat-gateway/internal/session"
)

func main() {
	cfg := config.MustLoad()
	logger := logging.New(cfg.ServiceName, cfg.LogLevel, cfg.Environment)
	logger.Info().
		Str("env", cfg.Environment).
		Int("port", cfg.HTTPPort).
		Bool("auth_enforced", cfg.AuthEnforced).
		Msg("starting session gateway")

	ctx := context.Background()
	codec := session.NewCodec(cfg.SessionSecret)

	var client provider.Client
	if cfg.AuthEnforced {
		logto, err := provider.NewLogto(ctx, cfg.LogtoIssuerURL, cfg.LogtoClientID, cfg.LogtoClientSecret, codec, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to discover identity provider")
		}
		client = logto
		logger.Info().Str("issuer", cfg.LogtoIssuerURL).Msg("identity provider discovered")
	} else {
		logger.Warn().Msg("authentication enforcement is off; all requests use the mock identity")
	}

	emitter := audit.NewEmitter(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaClientID, logger)
	resolver := identity.NewResolver(cfg.AuthEnforced, codec, client, cfg.SignInPath, logger)
	handler := auth.NewHandler(cfg, codec, client, resolver, emitter, logger)

	gate := gatemw.EdgeGate(gatemw.GateConfig{
		Enforced:          cfg.AuthEnforced,
		ProtectedPrefixes: cfg.ProtectedPrefixes,
		PublicPrefixes:    cfg.PublicPrefixes,
		StaticSuffixes:    cfg.StaticExcludeSuffixes,
		APIPrefix:         cfg.APIPrefix,
		SignInPath:        cfg.SignInPath,
	}, codec, logger)

	srv := server.New(server.Options{
		Port:        cfg.HTTPPort,
		Logger:      logger,
		ServiceName: cfg.ServiceName,
		PreRouting:  []func(http.Handler) http.Handler{gate},
		RegisterRoutes: func(r chi.Router) {
			auth.RegisterRoutes(r, handler)
		},
	})

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("graceful shutdown failed")
	}
	if closer, ok := emitter.(*audit.KafkaEmitter); ok {
		if err := closer.Close(); err != nil {
			logger.Warn().Err(err).Msg("failed to close audit emitter")
		}
	}
	logger.Info().Msg("stopped")
}
