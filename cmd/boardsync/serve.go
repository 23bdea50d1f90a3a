package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/gosuda/boardsync/internal/config"
	"github.com/gosuda/boardsync/internal/realtime"
	"github.com/gosuda/boardsync/internal/server"
	"github.com/gosuda/boardsync/internal/store/postgres"
	redisstore "github.com/gosuda/boardsync/internal/store/redis"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and websocket relay",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context())
		},
	}
}

func serve(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	if cfg.Database.MaxConns < 0 || cfg.Database.MaxConns > math.MaxInt32 {
		return fmt.Errorf("database max_conns %d out of int32 range", cfg.Database.MaxConns)
	}

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Connect to PostgreSQL.
	store, err := postgres.New(ctx, cfg.Database.DSN(), int32(cfg.Database.MaxConns)) //nolint:gosec // bounds checked above
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		return err
	}

	checks := []server.HealthCheck{{Name: "postgres", Ping: store.Ping}}

	// Background failures stop the process with a non-zero exit.
	failed := make(chan error, 2)
	fail := func(err error) {
		failed <- err
		cancel()
	}

	// Rooms and versions are shared through Redis when configured,
	// otherwise they live in this process.
	var (
		rooms    realtime.Rooms
		versions realtime.Versions
	)
	if cfg.Redis.Enabled() {
		pubsub, redisErr := redisstore.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if redisErr != nil {
			return redisErr
		}
		defer pubsub.Close()

		fanout := redisstore.NewFanout(realtime.NewRegistry(), pubsub)
		go func() {
			if runErr := fanout.Run(ctx); runErr != nil && !errors.Is(runErr, context.Canceled) {
				log.Error().Err(runErr).Msg("redis fan-out stopped")
				fail(runErr)
			}
		}()

		rooms = fanout
		versions = redisstore.NewVersionLedger(pubsub)
		checks = append(checks, server.HealthCheck{Name: "redis", Ping: pubsub.Ping})
		log.Info().Str("addr", cfg.Redis.Addr).Msg("sharing rooms through redis")
	} else {
		rooms = realtime.NewRegistry()
		versions = realtime.NewLedger()
		log.Info().Msg("redis not configured, running single node")
	}

	engine := realtime.NewEngine(rooms, versions)
	srv := server.New(ctx, cfg, store, engine, checks...)

	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Msg("starting server")
		if startErr := srv.Start(ctx); startErr != nil {
			log.Error().Err(startErr).Msg("server error")
			fail(startErr)
		}
	}()

	// Block until shutdown signal.
	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	select {
	case err := <-failed:
		return err
	default:
	}
	log.Info().Msg("stopped")
	return nil
}
