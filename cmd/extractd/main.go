package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mohammed-shakir/overture-extract/internal/app"
	"github.com/mohammed-shakir/overture-extract/internal/core/config"
	"github.com/mohammed-shakir/overture-extract/internal/core/server"
	"github.com/mohammed-shakir/overture-extract/internal/invalidation/kafkaconsumer"
	"github.com/mohammed-shakir/overture-extract/internal/logger"
	"github.com/mohammed-shakir/overture-extract/internal/metrics"
)

var Version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	envFile := flag.String("env-file", ".env", "optional dotenv file")
	addr := flag.String("addr", "", "listen address (overrides ADDR)")
	flag.Parse()

	cfg := config.Load(*envFile)
	if *addr != "" {
		cfg.Addr = strings.TrimSpace(*addr)
	}

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogConsole,
		SampleN:   cfg.LogSampleN,
		Component: "extractd",
	}, os.Stdout)
	appLog := logger.NewSlog(&zl)

	appLog.Info("starting extractd",
		"addr", cfg.Addr,
		"version", Version,
		"storage_root", cfg.StorageRoot,
		"policy", cfg.RetrievalPolicy,
		"min_zoom", cfg.MinDownloadZoom)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, appLog)
	if err != nil {
		appLog.Error("pipeline setup failed", "err", err)
		return 1
	}
	defer func() { _ = a.Close() }()

	// readiness stays red until this succeeds; requests retry on their own
	go func() {
		wctx, cancel := context.WithTimeout(ctx, cfg.FetchTimeout+5*time.Second)
		defer cancel()
		if err := a.Warm(wctx); err != nil {
			appLog.Warn("manifest warmup failed", "err", err)
		}
	}()

	if cfg.Invalidation.Enabled {
		kzl := logger.Build(logger.Config{
			Level:     cfg.LogLevel,
			Console:   cfg.LogConsole,
			Component: "release_consumer",
		}, os.Stdout)
		consumer, err := kafkaconsumer.New(kafkaconsumer.FromConfig(cfg.Invalidation), appLog, &kzl, a.Resolver, a.Service)
		if err != nil {
			appLog.Error("release consumer setup failed", "err", err)
			return 1
		}
		go func() {
			if err := consumer.Start(ctx); err != nil {
				appLog.Error("release consumer stopped", "err", err)
			}
		}()
	}

	deps := server.Deps{
		Service:     a.Service,
		Invalidator: a.Resolver,
		Ready:       a.ReadyChecks(cfg),
	}
	if cfg.MetricsEnabled {
		p := metrics.Init(metrics.Config{
			Enabled: true,
			Path:    cfg.MetricsPath,
			Build: metrics.BuildInfo{
				Version:   Version,
				Revision:  cfg.Build.Revision,
				BuildDate: cfg.Build.Date,
			},
		})
		deps.Metrics = p.Handler()
		deps.MetricsPath = p.Path()
	}

	if err := server.Run(ctx, cfg, appLog, deps); err != nil {
		appLog.Error("server exited with error", "err", err)
		return 1
	}
	appLog.Info("server stopped")
	return 0
}
