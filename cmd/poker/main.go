package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/cwrk-planet/poker-service/config"
	"github.com/cwrk-planet/poker-service/internal/cli"
	"github.com/cwrk-planet/poker-service/internal/docstore"
	"github.com/cwrk-planet/poker-service/internal/docstore/memory"
	"github.com/cwrk-planet/poker-service/internal/identity"
	"github.com/cwrk-planet/poker-service/internal/kv"
	"github.com/cwrk-planet/poker-service/internal/postgres"
	"github.com/cwrk-planet/poker-service/internal/roomview"
	"github.com/cwrk-planet/poker-service/internal/service"
	"github.com/cwrk-planet/poker-service/pkg/logger"

	"golang.org/x/sync/errgroup"
)

func main() {
	opts, err := cli.ParseArgs(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		// ошибки флагов flag уже напечатал сам
		if !errors.Is(err, cli.ErrUsage) {
			fmt.Fprintln(os.Stderr, "poker:", err)
		}
		os.Exit(2)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger.Init(logger.Config{
		Env:     logger.ParseEnv(cfg.Logging.Env),
		Service: "poker-cli",
		Version: cfg.Logging.Version,
		Backend: logger.Backend(cfg.Logging.Backend),
		Debug:   cfg.Logging.Debug,
		Output:  os.Stderr,
	})

	if opts.RoomID == "" {
		opts.RoomID = cfg.Room.DefaultID
	}
	if opts.Deck == "" {
		opts.Deck = cfg.Room.Deck
	}
	if opts.KVPath == "" {
		opts.KVPath = cfg.Client.KVPath
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, opts); err != nil {
		fmt.Fprintln(os.Stderr, "poker:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, opts cli.Options) error {
	local, err := kv.OpenSQLite(opts.KVPath)
	if err != nil {
		return err
	}
	defer local.Close()

	// слушатель postgres живёт, пока работает команда
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	var store docstore.Store
	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		db, err := postgres.New(ctx, postgres.Config{
			DSN:             cfg.Postgres.DSN,
			MaxConns:        cfg.Postgres.MaxConns,
			MinConns:        cfg.Postgres.MinConns,
			ApplicationName: "poker-cli",
		})
		if err != nil {
			return err
		}
		defer db.Close()

		pgStore := postgres.NewDocumentStore(db.Pool)
		g.Go(func() error { return pgStore.Listen(gctx) })
		store = pgStore
	default:
		// в памяти комната живёт только в этом процессе
		store = memory.New()
	}

	roomSvc := service.NewRoomService(store)
	if err := roomSvc.EnsureRoom(ctx, opts.RoomID); err != nil {
		return err
	}

	app := &cli.App{
		View:   roomview.New(roomSvc, identity.New(local), opts.Deck),
		Rooms:  roomSvc,
		RoomID: opts.RoomID,
		Out:    os.Stdout,
	}

	g.Go(func() error {
		defer cancel()
		return app.Run(gctx, opts.Command, opts.Args)
	})
	return g.Wait()
}
