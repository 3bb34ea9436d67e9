// cmd/smartcdn/main.go
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/siriyd/SMART-CDN/internal/api"
	"github.com/siriyd/SMART-CDN/internal/applier"
	"github.com/siriyd/SMART-CDN/internal/auth"
	"github.com/siriyd/SMART-CDN/internal/baseline"
	"github.com/siriyd/SMART-CDN/internal/config"
	"github.com/siriyd/SMART-CDN/internal/database"
	"github.com/siriyd/SMART-CDN/internal/edgecache"
	"github.com/siriyd/SMART-CDN/internal/engine"
	"github.com/siriyd/SMART-CDN/internal/forecast"
	"github.com/siriyd/SMART-CDN/internal/policy"
	"github.com/siriyd/SMART-CDN/internal/store"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}
	config.LoadFromEnv(cfg)

	clk := clock.New()

	// Cache key-value backend shared by the edge caches and the baseline
	// control arm.
	var kv store.Store
	switch cfg.Store.Backend {
	case "redis":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		kv, err = store.NewRedisStore(ctx, store.RedisConfig{
			Address:      cfg.Store.RedisAddress,
			Password:     cfg.Store.RedisPass,
			Database:     cfg.Store.RedisDB,
			DialTimeout:  cfg.Store.DialTimeout,
			ReadTimeout:  cfg.Store.ReadTimeout,
			WriteTimeout: cfg.Store.WriteTimeout,
		}, logger)
		cancel()
		if err != nil {
			logger.Fatal("connect redis", zap.Error(err))
		}
		logger.Info("using redis store", zap.String("address", cfg.Store.RedisAddress))

	case "memory", "":
		kv = store.NewMemoryStore()
		logger.Info("using in-memory store")

	default:
		logger.Fatal("invalid store backend", zap.String("backend", cfg.Store.Backend))
	}
	defer func() { _ = kv.Close() }()

	edges := make(map[string]*edgecache.Cache, len(cfg.Edges))
	for _, e := range cfg.Edges {
		ttl := e.DefaultTTL
		if ttl <= 0 {
			ttl = time.Hour
		}
		edges[e.EdgeID] = edgecache.New(e.EdgeID, kv, ttl, logger)
		logger.Info("registered edge",
			zap.String("edge_id", e.EdgeID),
			zap.String("region", e.Region),
			zap.Int("capacity_mb", e.CapacityMB))
	}

	predictor := forecast.NewPredictor(forecast.Config{Beta: cfg.Predictor.Beta}, clk, logger)
	policyEngine := policy.NewEngine(policy.Config{
		PrefetchThreshold: cfg.Policy.PrefetchThreshold,
		EvictionThreshold: cfg.Policy.EvictionThreshold,
		MinTTL:            cfg.Policy.MinTTLSeconds,
		MaxTTL:            cfg.Policy.MaxTTLSeconds,
	}, logger)
	eng := engine.New(predictor, policyEngine, cfg.Server.ModelMode, clk, logger)

	app := applier.New(edges, nil, applier.DefaultApplyTimeout, logger)
	base := baseline.New(kv, cfg.Baseline.DefaultTTL, clk, logger)

	authSvc := auth.NewService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	for _, u := range cfg.Auth.Users {
		authSvc.SeedUser(u.Username, u.PasswordHash, u.Role)
	}

	var db *database.Postgres
	if cfg.Database.Enabled {
		db, err = database.NewPostgres(database.Config{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			Database: cfg.Database.Database,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			SSLMode:  cfg.Database.SSLMode,
		})
		if err != nil {
			logger.Fatal("open database", zap.Error(err))
		}
		defer func() { _ = db.Close() }()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := db.Ping(ctx); err != nil {
			cancel()
			logger.Fatal("ping database", zap.Error(err))
		}
		if err := db.CreateTables(ctx); err != nil {
			cancel()
			logger.Fatal("create tables", zap.Error(err))
		}
		cancel()
		logger.Info("database connected", zap.String("host", cfg.Database.Host))
	}

	server := api.NewServer(cfg, logger, eng, app, authSvc, db, base, edges)

	// Handle shutdown gracefully
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down server...")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Error("shutdown error", zap.Error(err))
		}
		os.Exit(0)
	}()

	logger.Info("smartcdn started",
		zap.Int("port", cfg.Server.Port),
		zap.String("store", cfg.Store.Backend),
		zap.String("model_mode", cfg.Server.ModelMode),
		zap.Int("edges", len(edges)))

	if err := server.Start(); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}
