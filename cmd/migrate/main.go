package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"hookguard/internal/pkg/logger"
	"hookguard/internal/platform/config"
	"hookguard/internal/platform/database"
)

func main() {
	direction := flag.String("direction", "up", "Migration direction: up or down")
	configPath := flag.String("config", "configs/config.yaml", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Init(cfg.Logging)

	db, err := database.Open(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer db.Close()

	if err := database.Migrate(db, *direction); err != nil {
		log.Fatal().Err(err).Str("direction", *direction).Msg("migration failed")
	}

	log.Info().Str("direction", *direction).Str("database", cfg.Database.Path).Msg("migration completed successfully")
}
