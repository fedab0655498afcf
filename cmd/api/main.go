package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-playground/validator/v10"
	"go.uber.org/multierr"

	"github.com/messagely/message-api/api"
	"github.com/messagely/message-api/auth"
	"github.com/messagely/message-api/config"
	"github.com/messagely/message-api/logging"
	"github.com/messagely/message-api/postgres"
	"github.com/messagely/message-api/redis"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	configPath := flag.String("config", "config.yaml", "Path to the YAML config file")
	addr := flag.String("addr", "", "HTTP network address (overrides config)")
	connStr := flag.String("connection-string", "", "Postgres connection string (overrides config)")
	redisAddr := flag.String("redis-address", "", "Redis endpoint (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *connStr != "" {
		cfg.Postgres.DSN = *connStr
	}
	if *redisAddr != "" {
		cfg.Redis.Addr = *redisAddr
	}

	logger := logging.New(logging.Config{
		Service:   cfg.Logging.Service,
		Version:   cfg.Logging.Version,
		Env:       logging.ParseEnv(cfg.Logging.Env),
		Backend:   logging.Backend(cfg.Logging.Backend),
		Level:     logging.ParseLevel(cfg.Logging.Level),
		AddSource: cfg.Logging.AddSource,
	})
	slog.SetDefault(logger)

	pg, err := postgres.Connect(ctx, cfg.Postgres.DSN)
	if err != nil {
		logger.Error("Could not connect to PostgreSQL", "error", err.Error())
		return err
	}

	cache, err := redis.Connect(ctx, redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		TTL:      cfg.Redis.TTL,
	})
	if err != nil {
		logger.Error("Could not connect to Redis", "error", err.Error())
		return multierr.Append(err, pg.Close())
	}
	defer func() {
		if err := multierr.Combine(pg.Close(), cache.Close()); err != nil {
			logger.Error("Could not close storage", "error", err.Error())
		}
	}()

	lis, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		logger.Error("Could not listen", "error", err)
		return err
	}

	api := &api.API{
		Logger:         logger,
		DB:             pg,
		Cache:          cache,
		Validate:       validator.New(validator.WithRequiredStructEnabled()),
		Tokens:         auth.NewTokens(cfg.Auth.SecretKey, cfg.Auth.TokenTTL),
		BcryptCost:     cfg.Auth.BcryptCost,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	}

	srv := &http.Server{
		Handler: api,
	}

	go func() {
		<-ctx.Done()
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Could not shut down cleanly", "error", err)
		}
	}()

	logger.Info("Ready to accept traffic", "address", cfg.Server.Addr)
	if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Could not start server", "error", err)
		return err
	}
	return nil
}
