package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/mohammed-shakir/pctile-server/internal/core/config"
	"github.com/mohammed-shakir/pctile-server/internal/core/observability"
	"github.com/mohammed-shakir/pctile-server/internal/core/server"
	"github.com/mohammed-shakir/pctile-server/internal/logger"
	"github.com/mohammed-shakir/pctile-server/internal/metrics"
	"github.com/mohammed-shakir/pctile-server/internal/pool"
	"github.com/mohammed-shakir/pctile-server/internal/store"
)

var Version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	cfg := config.FromEnv()
	if Version != "dev" {
		cfg.BuildVersion = Version
	}

	// flags override the environment
	port := flag.Int("port", 0, "listen port (overrides ADDR)")
	flag.StringVar(&cfg.RootDir, "root", cfg.RootDir, "directory holding the .gpkg data sources")
	flag.IntVar(&cfg.Workers, "workers", cfg.Workers, "number of request workers")
	flag.Parse()
	if *port > 0 {
		cfg.Addr = fmt.Sprintf(":%d", *port)
	}

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogConsole,
		SampleN:   cfg.LogSampleN,
		Component: "pctile-server",
		Version:   cfg.BuildVersion,
	}, os.Stdout)
	appLog := logger.NewSlog(&zl)

	if err := cfg.Validate(); err != nil {
		appLog.Error("invalid configuration", "err", err)
		return 2
	}

	prov := metrics.Init(metrics.ReadBuildInfo(cfg.BuildVersion))
	observability.Init(prov.Registerer())

	appLog.Info("starting pctile server",
		"addr", cfg.Addr,
		"ops_addr", cfg.OpsAddr,
		"root", cfg.RootDir,
		"workers", cfg.Workers,
		"request_timeout", cfg.RequestTimeout)

	slotLog := appLog.With("subsystem", "store")
	workers := pool.New(cfg.Workers, func() *store.Slot {
		return store.NewSlot(cfg.RootDir, store.SQLiteOpener{}, slotLog)
	}, appLog.With("subsystem", "pool"))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Run(gctx, cfg, appLog, server.APIRouter(appLog, cfg, workers))
	})
	if cfg.OpsAddr != "" {
		g.Go(func() error {
			return server.RunOps(gctx, cfg, appLog, server.OpsRouter(prov, workers))
		})
	}

	err := g.Wait()
	// listeners are down and in-flight requests answered; drain the queue
	workers.Close()
	if err != nil {
		appLog.Error("server exited with error", "err", err)
		return 1
	}
	appLog.Info("server stopped")
	return 0
}
