package main

import (
	"context"
	"database/sql"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/hwlab/inventory/internal/adapter/handler"
	"github.com/hwlab/inventory/internal/adapter/storage"
	"github.com/hwlab/inventory/internal/config"
	"github.com/hwlab/inventory/internal/core/domain"
	"github.com/hwlab/inventory/internal/core/service"
	"github.com/hwlab/inventory/internal/port"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.With().Str("service", "hw-inventory").Logger()

	configPath := flag.String("config", os.Getenv("CONFIG_FILE"), "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// MySQL
	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open mysql")
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping mysql")
	}
	log.Info().Msg("connected to mysql")

	// Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		PoolSize: cfg.RedisPoolSize,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal().Err(err).Msg("failed to connect redis")
	}
	log.Info().Msg("connected to redis")

	// Adapters and service
	store := storage.NewMySQLAdapter(db)
	cache := storage.NewRedisAdapter(rdb)
	reservations := service.NewReservationService(store, cache, store, cfg.QueueSize)

	// Audit ledger workers
	var wg sync.WaitGroup
	for i := 0; i < cfg.WorkerCount; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			ledgerWorker(id, reservations.Events(), store)
		}(i)
	}
	log.Info().Int("count", cfg.WorkerCount).Msg("started ledger workers")

	// gRPC health endpoint for deployment probes
	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Fatal().Err(err).Str("addr", cfg.GRPCAddr).Msg("failed to listen")
	}

	// HTTP API
	mux := http.NewServeMux()
	handler.NewHTTPHandler(reservations).Register(mux)
	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: mux,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", cfg.GRPCAddr).Msg("gRPC health server listening")
		return grpcServer.Serve(lis)
	})
	g.Go(func() error {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()

		log.Info().Msg("shutting down")
		healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("HTTP shutdown error")
		}
		grpcServer.GracefulStop()
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("server error")
	}

	// Drain the audit queue before closing connections.
	reservations.Close()
	wg.Wait()
	log.Info().Msg("ledger workers stopped")

	rdb.Close()
	db.Close()
	log.Info().Msg("connections closed")
}

func ledgerWorker(id int, events <-chan domain.LedgerEvent, repo port.InventoryRepository) {
	for ev := range events {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)

		if err := repo.AppendLedgerEvent(ctx, ev); err != nil {
			// Audit trail is best effort; the reservation itself already
			// committed.
			log.Error().Err(err).Int("worker", id).Str("event", ev.ID).Msg("failed to persist ledger event")
		} else {
			log.Debug().Int("worker", id).Str("event", ev.ID).Str("action", string(ev.Action)).Msg("ledger event persisted")
		}

		cancel()
	}
}
