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

	"github.com/comanda-pos/api/internal/config"
	"github.com/comanda-pos/api/internal/database"
	"github.com/comanda-pos/api/internal/logger"
	"github.com/comanda-pos/api/internal/notify"
	"github.com/comanda-pos/api/internal/printq"
	"github.com/comanda-pos/api/internal/router"
	"github.com/comanda-pos/api/internal/ws"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync() //nolint:errcheck

	if err := run(cfg, log); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	log.Info("connected to database")

	hub := ws.NewHub(log.Named("ws"))
	go hub.Run(ctx)

	// With Redis every instance relays kitchen display events to its own
	// sockets; without it the local hub is the only audience.
	var kds ws.Broadcaster = hub
	if cfg.RedisURL != "" {
		rdb, err := ws.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer rdb.Close()
		relay := ws.NewRelay(rdb, cfg.RedisChannel, hub, log.Named("relay"))
		go func() {
			if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("kds relay stopped", zap.Error(err))
			}
		}()
		kds = relay
		log.Info("kds events relayed through redis", zap.String("channel", cfg.RedisChannel))
	}

	var pq notify.PrintQueue
	if cfg.AMQPURL != "" {
		pub, err := printq.Dial(cfg.AMQPURL, cfg.PrintExchange, log.Named("printq"))
		if err != nil {
			return fmt.Errorf("connect print queue: %w", err)
		}
		defer pub.Close() //nolint:errcheck
		pq = pub
		log.Info("print jobs published to rabbitmq", zap.String("exchange", cfg.PrintExchange))
	} else {
		pq = printq.NewLogPublisher(log.Named("printq"))
		log.Warn("AMQP_URL not set, print jobs are only logged")
	}

	notifier := notify.NewDispatcher(pq, kds, log.Named("notify"))
	svc := router.NewServices(pool, notifier, log)
	r := router.New(cfg, log, database.New(pool), svc, hub)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting server", zap.String("port", cfg.Port), zap.String("env", cfg.Env))
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

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
