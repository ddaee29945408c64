package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"member-security/core"
)

func main() {
	boot := core.NewLogger(os.Stderr, "api", "info")

	cfg, err := core.Load()
	if err != nil {
		boot.Fatal().Err(err).Msg("invalid configuration")
	}

	logger, logCloser, err := core.SetupLogging(cfg, "api.log")
	if err != nil {
		boot.Fatal().Err(err).Msg("failed to setup logging")
	}
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error().Err(err).Msg("api server stopped with error")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg core.Config, logger *core.Logger) error {
	db, err := core.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()

	if cfg.MigrateOnStart {
		if err := core.Migrate(db); err != nil {
			return err
		}
	}

	redisClient, err := core.NewRedisClient(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer redisClient.Close()
	store := core.NewRedisStore(redisClient, []byte(cfg.SessionKey))

	checks := []core.HealthCheck{
		{Name: "database", Ping: db.Ping},
		{Name: "redis", Ping: func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}},
	}

	policy, err := core.LoadRoutePolicy(cfg.RoutePolicyFile)
	if err != nil {
		return err
	}

	hasher := core.NewBcryptHasher(cfg.BcryptCost)
	members := core.NewPgMemberRepository(db)
	credentials := core.NewCredentialStore(members, hasher, cfg.DefaultRoles)

	if err := core.BootstrapAdmin(ctx, members, credentials, cfg, logger); err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}

	router := core.NewRouter(cfg, store, credentials, hasher, policy, logger, checks...)
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("starting api server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down api server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
