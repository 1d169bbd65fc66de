package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cwrk-planet/coop-relay/config"
	"github.com/cwrk-planet/coop-relay/internal/postgres"
	"github.com/cwrk-planet/coop-relay/internal/service"
	grpcx "github.com/cwrk-planet/coop-relay/internal/transport/grpc"
	httpx "github.com/cwrk-planet/coop-relay/internal/transport/http"
	"github.com/cwrk-planet/coop-relay/internal/transport/ws"
	"github.com/cwrk-planet/coop-relay/pkg/logger"
)

func main() {
	// --- config ---
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger.Init(logger.Config{
		Env:       logger.ParseEnv(cfg.Logging.Env),
		Service:   cfg.Logging.Service,
		Version:   cfg.Logging.Version,
		Backend:   logger.Backend(cfg.Logging.Backend),
		Level:     logger.ParseLevel(cfg.Logging.Level),
		AddSource: cfg.Logging.AddSource,
		Debug:     cfg.Logging.Debug,
	})
	slog.Info("starting coop-relay",
		"env", cfg.Logging.Env, "version", cfg.Logging.Version)

	ctx := context.Background()

	// --- postgres (опционально) ---
	var (
		db       *postgres.DB
		journalQ *service.JournalQueue
		events   service.EventPublisher
		history  httpx.EventHistory
	)
	if cfg.Postgres.DSN != "" {
		db, err = postgres.New(ctx, postgres.Config{
			DSN:             cfg.Postgres.DSN,
			MaxConns:        cfg.Postgres.MaxConns,
			ApplicationName: cfg.Postgres.ApplicationName,
		})
		if err != nil {
			log.Fatalf("postgres: %v", err)
		}
		repo := postgres.NewJournalRepository(db.Pool)
		journalQ = service.NewJournalQueue(repo, cfg.Postgres.QueueSize)
		events = journalQ
		history = repo
		slog.Info("session journal enabled")
	} else {
		slog.Info("session journal disabled")
	}

	// --- relay core ---
	world := service.NewWorld(cfg.WorldConfig())
	rooms := service.NewDirectory(world)
	coord := service.NewCoordinator(service.NewRegistry(), rooms, events)

	// --- WS Hub & Server ---
	hub := ws.NewHub()
	wsServer := ws.NewServer(hub, coord, ws.Options{
		ReadLimit:    cfg.WS.ReadLimit,
		SendBuffer:   cfg.WS.SendBuffer,
		PingEvery:    cfg.PingInterval(),
		WriteTimeout: cfg.WriteTimeout(),
	})

	// --- HTTP ---
	handler := httpx.NewHandler(coord, history, httpx.ExtensionsConfig{
		Enabled: cfg.Extensions.Enabled,
		Dir:     cfg.Extensions.Dir,
	})
	router := httpx.NewRouter(handler, wsServer.HandleWS, httpx.RouterConfig{
		AllowedOrigins: cfg.CORS.AllowedOrigins,
	})
	// WriteTimeout не ставим: WS-соединения живут долго
	httpSrv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 2)

	lis, err := net.Listen("tcp", cfg.HTTP.Addr)
	if err != nil {
		log.Fatalf("http listen: %v", err)
	}
	printBanner(cfg.Port())

	go func() {
		if err := httpSrv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// --- gRPC health (опционально) ---
	var grpcSrv *grpcx.Server
	if cfg.GRPC.Addr != "" {
		grpcSrv = grpcx.NewServer()
		go func() {
			lis, err := net.Listen("tcp", cfg.GRPC.Addr)
			if err != nil {
				errCh <- err
				return
			}
			if err := grpcSrv.Serve(lis); err != nil {
				errCh <- err
			}
		}()
	}

	// --- graceful shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal", "sig", sig)
	case err := <-errCh:
		slog.Error("server error", "err", err)
	}

	if grpcSrv != nil {
		grpcSrv.Draining()
	}

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Shutdown не ждёт hijacked WS-соединения, их закрываем сами
	_ = httpSrv.Shutdown(ctxShutdown)
	if err := wsServer.Shutdown(ctxShutdown); err != nil {
		slog.Warn("ws shutdown", "err", err)
	}
	coord.Close()

	if grpcSrv != nil {
		grpcSrv.Shutdown()
	}
	if journalQ != nil {
		journalQ.Close()
		slog.Info("journal flushed", "dropped", journalQ.Dropped())
	}
	if db != nil {
		db.Close()
	}
	slog.Info("stopped")
}
