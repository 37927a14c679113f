package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/cwrk-planet/poker-service/config"
	"github.com/cwrk-planet/poker-service/internal/docstore"
	"github.com/cwrk-planet/poker-service/internal/docstore/memory"
	"github.com/cwrk-planet/poker-service/internal/postgres"
	"github.com/cwrk-planet/poker-service/internal/service"
	grpcx "github.com/cwrk-planet/poker-service/internal/transport/grpc"
	httpx "github.com/cwrk-planet/poker-service/internal/transport/http"
	"github.com/cwrk-planet/poker-service/internal/transport/ws"
	"github.com/cwrk-planet/poker-service/pkg/logger"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
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
		AddSource: cfg.Logging.AddSource,
		Debug:     cfg.Logging.Debug,
	})
	slog.Info("starting poker-service",
		"env", cfg.Logging.Env, "version", cfg.Logging.Version, "storage", cfg.Storage.Driver)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	// --- storage ---
	var store docstore.Store
	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		db, err := postgres.New(ctx, postgres.Config{
			DSN:               cfg.Postgres.DSN,
			MaxConns:          cfg.Postgres.MaxConns,
			MinConns:          cfg.Postgres.MinConns,
			MaxConnLifetime:   cfg.Postgres.MaxConnLifetime,
			MaxConnIdleTime:   cfg.Postgres.MaxConnIdleTime,
			HealthCheckPeriod: cfg.Postgres.HealthCheckPeriod,
			ApplicationName:   cfg.Postgres.ApplicationName,
		})
		if err != nil {
			log.Fatalf("postgres: %v", err)
		}
		defer db.Close()

		if err := postgres.CreateSchema(ctx, db.Pool); err != nil {
			log.Fatalf("postgres: %v", err)
		}
		pgStore := postgres.NewDocumentStore(db.Pool)
		g.Go(func() error { return pgStore.Listen(gctx) })
		store = pgStore
	default:
		store = memory.New()
	}

	// --- services ---
	roomSvc := service.NewRoomService(store)
	if err := roomSvc.EnsureRoom(ctx, cfg.Room.DefaultID); err != nil {
		log.Fatalf("ensure room %q: %v", cfg.Room.DefaultID, err)
	}

	// --- WS Hub & Server ---
	hub := ws.NewHub(gctx, roomSvc)
	wsServer := ws.NewServer(hub, cfg.HTTP.AllowedOrigins...)

	// --- HTTP ---
	handler := httpx.NewHandler(roomSvc, cfg.Room.Deck)
	router := httpx.NewRouter(handler, wsServer, httpx.RouterConfig{
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		RequestTimeout: cfg.HTTP.RequestTimeout,
	})
	httpSrv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	// --- gRPC ---
	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(grpcx.UnaryServerInterceptor(cfg.GRPC.CallTimeout)),
		grpc.ChainStreamInterceptor(grpcx.StreamServerInterceptor()),
	)
	grpcx.Register(grpcServer, grpcx.NewServer(roomSvc, cfg.Room.Deck))
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthSrv)
	healthSrv.SetServingStatus(grpcx.ServiceName, healthpb.HealthCheckResponse_SERVING)

	// --- run both servers ---
	g.Go(func() error {
		slog.Info("http listen", "addr", cfg.HTTP.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		lis, err := net.Listen("tcp", cfg.GRPC.Addr)
		if err != nil {
			return err
		}
		slog.Info("grpc listen", "addr", cfg.GRPC.Addr)
		return grpcServer.Serve(lis)
	})

	// --- graceful shutdown ---
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")
		healthSrv.Shutdown()

		ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		// стримы WatchRoom не завершаются сами: по таймауту рвём жёстко
		stopped := make(chan struct{})
		go func() {
			grpcServer.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-ctxShutdown.Done():
			grpcServer.Stop()
		}
		return httpSrv.Shutdown(ctxShutdown)
	})

	if err := g.Wait(); err != nil {
		slog.Error("server error", "err", err)
	}
	slog.Info("stopped")
}
