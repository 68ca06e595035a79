package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"hookguard/internal/engine/webhooks"
	"hookguard/internal/pkg/logger"
	"hookguard/internal/platform/config"
	"hookguard/internal/platform/database"
	"hookguard/internal/platform/metrics"
	"hookguard/internal/platform/repositories"
	"hookguard/internal/platform/secrets"
	"hookguard/internal/workers"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to config file")
	once := flag.Bool("once", false, "Run a single retry pass and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Init(cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Redeliveries resend stored signatures, but the dispatcher still
	// refuses to exist without a secret.
	secret, err := secrets.Load(ctx, secrets.ChainProvider{
		secrets.StaticProvider{Value: cfg.Webhooks.Secret},
		secrets.FileProvider{Path: cfg.Webhooks.SecretFile},
	})
	if err != nil {
		log.Fatal().Err(err).Msg("webhook secret unavailable, refusing to start")
	}
	defer secret.Destroy()

	db, err := database.Open(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer db.Close()

	signer, err := webhooks.NewSigner(secret)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create signer")
	}

	deliveryRepo := repositories.NewDeliveryRepository(db)
	dispatcher := webhooks.NewDispatcher(repositories.NewEndpointRepository(db), deliveryRepo, signer, cfg.Webhooks, metrics.New())

	if *once {
		n, err := workers.RetryFailedDeliveries(ctx, deliveryRepo, dispatcher, cfg.Webhooks)
		if err != nil {
			log.Fatal().Err(err).Msg("retry pass failed")
		}
		log.Info().Int("redelivered", n).Msg("retry pass complete")
		return
	}

	log.Info().Dur("interval", cfg.Webhooks.RetryInterval).Msg("starting delivery retry worker")
	workers.Run(ctx, deliveryRepo, dispatcher, cfg.Webhooks)
	log.Info().Msg("worker stopped")
}
