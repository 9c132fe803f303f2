// Package main runs the acquisition worker process.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/trendscout/crawler/internal/api"
	"github.com/trendscout/crawler/internal/clock/system"
	"github.com/trendscout/crawler/internal/config"
	redisstore "github.com/trendscout/crawler/internal/coordination/redis"
	"github.com/trendscout/crawler/internal/crawl"
	"github.com/trendscout/crawler/internal/fingerprint"
	"github.com/trendscout/crawler/internal/logging"
	"github.com/trendscout/crawler/internal/metrics"
	"github.com/trendscout/crawler/internal/normalize"
	"github.com/trendscout/crawler/internal/proxy"
	redisqueue "github.com/trendscout/crawler/internal/queue/redis"
	"github.com/trendscout/crawler/internal/ratelimit"
	"github.com/trendscout/crawler/internal/safety"
	"github.com/trendscout/crawler/internal/storage/postgres"
	"github.com/trendscout/crawler/internal/tier/browser"
	"github.com/trendscout/crawler/internal/tier/direct"
	"github.com/trendscout/crawler/internal/tier/synthetic"
	"github.com/trendscout/crawler/internal/worker"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.Init()

	coordStore, err := redisstore.NewStore(ctx, redisstore.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		logger.Fatal("coordination store init failed", zap.Error(err))
	}
	defer coordStore.Close() //nolint:errcheck // best-effort teardown

	jobQueue, err := redisqueue.NewQueue(ctx, redisqueue.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		Key:      cfg.Redis.QueueKey,
	})
	if err != nil {
		logger.Fatal("job queue init failed", zap.Error(err))
	}
	defer jobQueue.Close() //nolint:errcheck // best-effort teardown

	productStore, err := postgres.NewStore(ctx, postgres.Config{
		DSN:           cfg.DB.DSN,
		ProductsTable: cfg.DB.ProductsTable,
		JobsTable:     cfg.DB.JobsTable,
		MaxConns:      cfg.DB.MaxConns,
		MinConns:      cfg.DB.MinConns,
	}, logger.Named("postgres"))
	if err != nil {
		logger.Fatal("product store init failed", zap.Error(err))
	}
	defer productStore.Close()

	tokens, err := config.LoadSessionTokens(cfg.Source.SessionTokensFile)
	if err != nil {
		logger.Fatal("session tokens load failed", zap.Error(err))
	}

	clock := system.New()
	breaker := safety.New(coordStore, safety.Config{
		Threshold: cfg.Breaker.Threshold,
		Cooldown:  cfg.Breaker.Cooldown(),
	}, clock, logger.Named("safety"))
	limiter := ratelimit.New(ratelimit.Config{
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		Burst:             cfg.RateLimit.Burst,
	})

	endpoints := make([]proxy.EndpointConfig, 0, len(cfg.Proxy.Endpoints))
	for _, ep := range cfg.Proxy.Endpoints {
		endpoints = append(endpoints, proxy.EndpointConfig{
			Address:  ep.Address,
			Username: ep.Username,
			Password: ep.Password,
		})
	}

	// Each worker gets its own tier chain. The browser tier owns a
	// long-lived Chrome process and the fingerprint history is
	// per-worker state; only the proxy pool and rate limiter are shared.
	pool := proxy.NewPool(proxy.Config{Endpoints: endpoints}, logger.Named("proxy"))
	makeTiers := func(workerLogger *zap.Logger) []crawl.Tier {
		tiers := []crawl.Tier{
			direct.New(direct.Config{
				BaseURL:    cfg.Source.BaseURL,
				UserAgent:  cfg.Source.UserAgent,
				Timeout:    cfg.Direct.Timeout(),
				MaxRetries: cfg.Direct.MaxRetries,
				PageSize:   cfg.Direct.PageSize,
				Tokens:     tokens,
			}, limiter, workerLogger.Named("direct")),
		}
		if cfg.Browser.Enabled {
			tiers = append(tiers, browser.New(browser.Config{
				BaseURL:           cfg.Source.BaseURL,
				NavigationTimeout: cfg.Browser.NavTimeout(),
				ScrollPasses:      cfg.Browser.ScrollPasses,
				ScrollDelay:       cfg.Browser.ScrollDelay(),
				MaxRecords:        cfg.Browser.MaxRecords,
				BlockKeywords:     cfg.Browser.BlockKeywords,
			}, fingerprint.New(), pool, workerLogger.Named("browser")))
		}
		tiers = append(tiers, synthetic.New(cfg.Source.BaseURL, workerLogger.Named("synthetic")))
		return tiers
	}

	workerCfg := worker.Config{
		DequeueTimeout: cfg.Worker.DequeueTimeout(),
		IdleSleep:      cfg.Worker.IdleSleep(),
		MinRecords:     cfg.Worker.MinRecords,
		RecycleEvery:   cfg.Worker.RecycleEvery,
	}

	var wg sync.WaitGroup
	for i := 0; i < cfg.Worker.Concurrency; i++ {
		workerLogger := logger.Named("worker").With(zap.Int("index", i))
		w := worker.New(
			jobQueue,
			productStore,
			makeTiers(workerLogger),
			breaker,
			normalize.New(clock, workerLogger.Named("normalize")),
			clock,
			workerCfg,
			workerLogger,
		)
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Run(ctx)
		}()
	}
	logger.Info("workers started", zap.Int("count", cfg.Worker.Concurrency))

	apiServer := api.NewServer(breaker, jobQueue, logger.Named("api"))
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	wg.Wait()
	logger.Info("shutdown complete")
}
