package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/mkalvans/facilitymap/internal/analytics"
	"github.com/mkalvans/facilitymap/internal/cache"
	"github.com/mkalvans/facilitymap/internal/cache/redisstore"
	"github.com/mkalvans/facilitymap/internal/core/config"
	"github.com/mkalvans/facilitymap/internal/core/health"
	"github.com/mkalvans/facilitymap/internal/core/httpclient"
	"github.com/mkalvans/facilitymap/internal/core/observability"
	"github.com/mkalvans/facilitymap/internal/core/router"
	"github.com/mkalvans/facilitymap/internal/core/server"
	"github.com/mkalvans/facilitymap/internal/locate"
	"github.com/mkalvans/facilitymap/internal/logger"
	"github.com/mkalvans/facilitymap/internal/overpass"
	"github.com/mkalvans/facilitymap/internal/session"
	"github.com/mkalvans/facilitymap/internal/vsync"
)

var Version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	_ = godotenv.Load()
	cfg := config.FromEnv()

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   strings.ToLower(os.Getenv("LOG_CONSOLE")) == "true",
		Component: "server",
	}, os.Stdout)
	appLog := logger.NewSlog(&zl)

	observability.ExposeBuildInfo(Version)
	appLog.Info("starting facilitymap",
		"addr", cfg.Addr,
		"version", Version,
		"overpass", cfg.OverpassURL)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ovp, err := overpass.New(appLog, httpclient.NewOutbound(), cfg.OverpassURL)
	if err != nil {
		appLog.Error("overpass client init failed", "err", err)
		return 1
	}

	readiness := &health.Checker{}

	var store cache.Store
	if cfg.RedisAddr != "" {
		rc, err := redisstore.New(ctx, cfg.RedisAddr)
		if err != nil {
			appLog.Error("redis init failed", "err", err)
			return 1
		}
		defer func() { _ = rc.Close() }()
		store = rc
		readiness.Probes = append(readiness.Probes, health.Probe{Name: "redis", Check: rc.Ping})
		appLog.Info("facility cache backed by redis", "addr", cfg.RedisAddr)
	} else {
		store = cache.NewMemoryStore(cfg.CacheSize, cfg.CacheTTL)
		appLog.Info("facility cache in process", "size", cfg.CacheSize)
	}
	fetcher := cache.NewCachingFetcher(ovp, store, appLog, cfg.CacheTTL, cfg.CacheH3Res, overpass.QueryTemplate)

	var sink analytics.Sink = analytics.Nop{}
	if cfg.Analytics.Enabled {
		ks, err := analytics.NewKafkaSink(
			strings.Split(cfg.Analytics.Brokers, ","),
			cfg.Analytics.Topic,
			cfg.Analytics.QueueSize,
			appLog)
		if err != nil {
			// analytics is optional by contract, run without it
			appLog.Warn("analytics sink unavailable, continuing without", "err", err)
		} else {
			defer func() { _ = ks.Close() }()
			sink = ks
		}
	}

	resolver, err := locate.NewResolver(appLog, cfg.GeoIPPath)
	if err != nil {
		appLog.Warn("geoip resolver unavailable, location fallback disabled", "err", err)
		resolver, _ = locate.NewResolver(appLog, "")
	}
	defer func() { _ = resolver.Close() }()

	mgr := session.NewManager(appLog, fetcher, sink,
		vsync.Config{Debounce: cfg.Debounce, Threshold: cfg.MoveThreshold},
		cfg.SessionTTL)
	go mgr.Run(ctx)

	h := &router.Handlers{
		Logger:   appLog,
		Sessions: mgr,
		Fetcher:  fetcher,
		Resolver: resolver,
	}

	if err := server.Run(ctx, cfg, appLog, h, readiness); err != nil {
		appLog.Error("server error", "err", err)
		return 1
	}
	return 0
}
