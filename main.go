package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/rs/zerolog"
	_ "go.uber.org/automaxprocs"

	"github.com/LaureanoOlocco/concurrency-lab/config"
	"github.com/LaureanoOlocco/concurrency-lab/sim"
)

// configFile is picked up when present; otherwise the built-in modeled
// instance runs.
const configFile = "simulation.yml"

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		With().Timestamp().Logger().
		Level(zerolog.InfoLevel)

	cfg := config.Default()
	if _, err := os.Stat(configFile); err == nil {
		parsed, err := config.ParseFile(configFile)
		if err != nil {
			logger.Fatal().Err(err).Str("file", configFile).Msg("invalid configuration")
		}
		cfg = parsed
		logger.Info().Str("file", configFile).Msg("configuration loaded")
	}

	s, err := sim.Build(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build simulation")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := s.Run(ctx); err != nil {
		logger.Fatal().Err(err).Msg("simulation failed")
	}
}
