package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"hookguard/internal/api"
	"hookguard/internal/api/handlers"
	"hookguard/internal/api/middleware"
	"hookguard/internal/engine/webhooks"
	"hookguard/internal/pkg/logger"
	"hookguard/internal/platform/audit"
	"hookguard/internal/platform/auth"
	"hookguard/internal/platform/config"
	"hookguard/internal/platform/database"
	"hookguard/internal/platform/metrics"
	"hookguard/internal/platform/repositories"
	"hookguard/internal/platform/secrets"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// No secret, no service.
	secret, err := secrets.Load(ctx, secrets.ChainProvider{
		secrets.StaticProvider{Value: cfg.Webhooks.Secret},
		secrets.FileProvider{Path: cfg.Webhooks.SecretFile},
	})
	if err != nil {
		log.Fatal().Err(err).Msg("webhook secret unavailable, refusing to start")
	}
	defer secret.Destroy()
	log.Info().Object("webhook_secret", secret).Msg("webhook secret loaded")

	db, err := database.Open(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer db.Close()

	if err := database.Migrate(db, "up"); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate database")
	}

	tokenSvc, err := auth.NewTokenService(cfg.JWT)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create token service")
	}

	signer, err := webhooks.NewSigner(secret)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create signer")
	}
	verifier := webhooks.NewVerifier(secret)
	m := metrics.New()

	// Repositories
	endpointRepo := repositories.NewEndpointRepository(db)
	deliveryRepo := repositories.NewDeliveryRepository(db)
	inboundRepo := repositories.NewInboundRepository(db)
	auditLogger := audit.NewLogger(db)

	dispatcher := webhooks.NewDispatcher(endpointRepo, deliveryRepo, signer, cfg.Webhooks, m)

	rateLimiter := middleware.NewRateLimiter(cfg.RateLimit.ReceiverPerMinute, cfg.RateLimit.Burst)
	go rateLimiter.Cleanup(time.Minute, ctx.Done())

	deps := &api.Dependencies{
		ReceiverHandler:     handlers.NewReceiverHandler(inboundRepo, cfg.Webhooks.DeliveryHeader),
		EndpointHandler:     handlers.NewEndpointHandler(endpointRepo, auditLogger),
		EventHandler:        handlers.NewEventHandler(dispatcher, auditLogger, eventTimeout(cfg.Webhooks)),
		DeliveryHandler:     handlers.NewDeliveryHandler(deliveryRepo, dispatcher, auditLogger),
		InboundHandler:      handlers.NewInboundHandler(inboundRepo),
		AuditHandler:        handlers.NewAuditHandler(auditLogger),
		HealthHandler:       handlers.NewHealthHandler(db),
		MetricsHandler:      handlers.NewMetricsHandler(m),
		AuthMiddleware:      middleware.NewAuthMiddleware(tokenSvc),
		SignatureMiddleware: middleware.NewSignatureMiddleware(verifier, cfg.Webhooks.SignatureHeader, cfg.Webhooks.MaxBodyBytes, m),
		RateLimiter:         rateLimiter,
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      api.NewRouter(deps),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("server failed")
	}
}

// eventTimeout bounds a synchronous dispatch: every retry with its backoff
// must fit, plus a margin for the database writes.
func eventTimeout(cfg config.WebhooksConfig) time.Duration {
	attempts := max(cfg.RetryAttempts, 1)
	return time.Duration(attempts)*(cfg.RequestTimeout+cfg.RetryMaxInterval) + 10*time.Second
}
