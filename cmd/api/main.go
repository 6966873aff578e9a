package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"playtime/auth"
	"playtime/cart"
	"playtime/catalog"
	"playtime/config"
	"playtime/db"
	"playtime/httpapi"
	"playtime/payments"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	// Missing .env is fine outside local development.
	_ = godotenv.Load()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	tokens := auth.NewTokenService(cfg.JWTSecret)
	accounts := auth.NewService(auth.NewRepository(pool), tokens)
	classes := catalog.NewService(catalog.NewRepository(pool))
	carts := cart.NewService(cart.NewRepository(pool))
	settlements := payments.NewService(
		pool,
		payments.NewRepository(pool),
		payments.NewStripeIntents(cfg.StripeSecretKey),
		logger,
	)

	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: httpapi.NewServer(accounts, tokens, classes, carts, settlements, logger).Router(),
	}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		logger.Info("http server listening", "addr", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return group.Wait()
}
