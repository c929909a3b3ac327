package main

import (
	"context"
	"fmt"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/zach-short/ceros/internal/archive"
	"github.com/zach-short/ceros/internal/auth"
	"github.com/zach-short/ceros/internal/broker"
	"github.com/zach-short/ceros/internal/config"
	"github.com/zach-short/ceros/internal/handler"
	"github.com/zach-short/ceros/internal/hub"
	"github.com/zach-short/ceros/internal/registry"
	"github.com/zach-short/ceros/internal/rooms"
	"github.com/zach-short/ceros/internal/store"
	"github.com/zach-short/ceros/pkg/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		stdlog.Fatalf("Failed to load configuration: %v", err)
	}

	log.Init(cfg.Log)
	logger := log.L()
	logger.Info().Str("host", cfg.Server.Host).Int("port", cfg.Server.Port).Msg("starting chat server")

	if cfg.Auth.JWTSecret == "" {
		logger.Fatal().Msg("auth.jwt_secret is required")
	}
	verifier := auth.NewJWTVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer)

	// Message store
	var messageStore store.MessageStore
	var membership rooms.Source
	switch cfg.Store.Backend {
	case "redis":
		rs, err := store.NewRedisStore(cfg.Redis)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialize redis store")
		}
		messageStore = rs

		src, err := rooms.NewRedisSource(cfg.Redis)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialize redis membership source")
		}
		membership = src
		logger.Info().Str("address", cfg.Redis.Address).Msg("connected to redis")
	default:
		messageStore = store.NewMemoryStore()
		membership = rooms.NewStaticSource()
		logger.Warn().Msg("using in-memory message store; messages will not survive a restart")
	}
	defer messageStore.Close()

	wsHub := hub.NewHub(logger)
	chatBroker := broker.New(wsHub, messageStore, membership, cfg.Chat, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Room presence registry (redis backend only)
	if cfg.Store.Backend == "redis" {
		reg, err := registry.NewRedisRegistry(cfg.Redis)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialize presence registry")
		}
		defer reg.Close()
		if err := reg.StartHeartbeat(ctx); err != nil {
			logger.Fatal().Err(err).Msg("failed to start registry heartbeat")
		}
		chatBroker.WithRegistry(reg)
	}

	// Event archiver
	if cfg.Kafka.Enabled {
		archiver, err := archive.NewConfluentArchiver(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.Partitions)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialize kafka archiver")
		}
		defer archiver.Close()
		chatBroker.WithArchiver(archiver)
		logger.Info().Str("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("connected to kafka")
	}

	wsHandler := handler.NewWSHandler(wsHub, chatBroker, verifier, cfg.WebSocket)
	historyHandler := handler.NewHistoryHandler(messageStore, membership, verifier, cfg.Chat)

	mux := http.NewServeMux()
	wsHandler.RegisterRoutes(mux)
	historyHandler.RegisterRoutes(mux)

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", server.Addr).Msg("chat server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down chat server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("chat server stopped")
}
