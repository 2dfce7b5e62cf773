package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"docqa-gateway/completion"
	"docqa-gateway/docqa"
	"docqa-gateway/extract"
	"docqa-gateway/httpapi"
	"docqa-gateway/metrics"
	"docqa-gateway/middleware/ratelimit"
	"docqa-gateway/middleware/ratelimit/application"
	"docqa-gateway/middleware/ratelimit/domain"
	"docqa-gateway/middleware/ratelimit/infra"
	"docqa-gateway/session"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP gateway",
	RunE:  runServe,
}

// backend é o Counter Store escolhido (Redis ou memória) e o que depende dele.
type backend struct {
	counters domain.CounterStore
	kv       session.KV
	rdb      redis.UniversalClient
	ping     func(ctx context.Context) error
	janitor  func(ctx infra.DoneContext)
	close    func() error
}

func openBackend(cfg config) (*backend, error) {
	if cfg.store == storeMemory {
		mem := infra.NewMemoryCounterStore(infra.WithMemoryCleanupEvery(cfg.cleanupEvery))
		return &backend{
			counters: mem,
			kv:       mem,
			ping:     mem.Ping,
			janitor:  mem.StartJanitor,
			close:    func() error { return nil },
		}, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.redisAddr,
		Password: cfg.redisPassword,
		DB:       cfg.redisDB,
	})
	store := infra.NewRedisCounterStore(rdb)

	pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	err := store.Ping(pingCtx)
	cancel()
	if err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &backend{
		counters: store,
		kv:       store,
		rdb:      rdb,
		ping:     store.Ping,
		janitor:  func(infra.DoneContext) {},
		close:    rdb.Close,
	}, nil
}

func setupLogging(level slog.Level) *slog.Logger {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

func runServe(cmd *cobra.Command, _ []string) error {
	if err := loadEnvFiles(); err != nil {
		return err
	}
	cfg, err := readConfig()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := setupLogging(cfg.logLevel)

	be, err := openBackend(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = be.close() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	be.janitor(ctx)

	recorder := metrics.New()
	var statsReader domain.StatsReader
	var statsStore domain.StatsStore
	var memStats *infra.MemoryStatsStore
	if cfg.statsRedis {
		rs := infra.NewRedisStatsStore(be.rdb,
			infra.WithStatsPrefix(cfg.ratePrefix+":stats"),
			infra.WithStatsTTL(cfg.statsTTL),
			infra.WithStatsSeries(cfg.statsSeries),
			infra.WithStatsTrackKeys(cfg.statsTrackKeys),
		)
		statsReader, statsStore = rs, rs
	} else {
		memStats = infra.NewMemoryStatsStore()
		statsReader, statsStore = memStats, memStats
	}

	limiter := application.Service{
		Store:    be.counters,
		Policies: cfg.policies,
		Stats:    infra.TeeStatsStore{statsStore, recorder},
		Prefix:   cfg.ratePrefix,
		Logger:   log,
	}
	sessions := session.NewStore(be.kv,
		session.WithPrefix(cfg.sessionPrefix),
		session.WithTTL(cfg.sessionTTL),
		session.WithMaxChars(cfg.sessionMaxChars),
	)

	if cfg.completionAPIKey == "" {
		log.Warn("COMPLETION_API_KEY (or GROQ_API_KEY) is empty; queries will fail upstream")
	}
	completer := completion.New(cfg.completionAPIKey,
		completion.WithBaseURL(cfg.completionBaseURL),
		completion.WithModel(cfg.completionModel),
		completion.WithMaxTokens(cfg.completionMaxTokens),
		completion.WithTemperature(float32(cfg.completionTemperature)),
		completion.WithTimeout(cfg.completionTimeout),
		completion.WithSystemPrompt(cfg.completionPrompt),
		completion.WithThrottle(cfg.completionRPS, cfg.completionBurst),
		completion.WithLogger(log),
	)

	var buckets domain.BucketStore
	if cfg.burstRPS > 0 {
		bs := infra.NewBucketStore(cfg.burstRPS, cfg.burstSize,
			infra.WithIdleTTL(cfg.burstIdleTTL),
			infra.WithCleanupEvery(cfg.cleanupEvery),
		)
		bs.StartJanitor(ctx)
		buckets = bs
	}
	var pool domain.SlotPool
	if cfg.concurrencyMax > 0 {
		cp := infra.NewChanPool(cfg.concurrencyMax)
		recorder.TrackInUse("concurrency_in_use", "Requests currently holding a concurrency slot.", cp.InUse)
		pool = cp
	}

	handler := httpapi.NewRouter(httpapi.Config{
		Upload: docqa.UploadPipeline{
			Limiter:   limiter,
			Sessions:  sessions,
			Extractor: extract.PDF{},
			Observer:  recorder,
			Logger:    log,
		},
		Query: docqa.QueryPipeline{
			Limiter:   limiter,
			Sessions:  sessions,
			Completer: completer,
			Observer:  recorder,
			Logger:    log,
		},
		Stats:   statsReader,
		Metrics: recorder.Handler(),
		Burst: ratelimit.Options{
			Store:               buckets,
			KeyHeader:           cfg.rateKeyHeader,
			TrustXForwardedFor:  cfg.trustXFF,
			AddRateLimitHeaders: true,
		},
		Concurrency: ratelimit.ConcurrencyOptions{
			Pool:           pool,
			AcquireTimeout: cfg.concurrencyTimeout,
		},
		MaxUploadBytes: cfg.uploadMaxBytes,
		Logger:         log,
	})

	srv := &http.Server{
		Addr:              cfg.listenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.completionTimeout + 30*time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("gateway listening", "addr", cfg.listenAddr, "store", cfg.store)
	for _, s := range []domain.Scope{domain.GlobalScope(domain.Upload), domain.ClientScope(domain.Upload, ""), domain.ClientScope(domain.Query, "")} {
		p, _ := cfg.policies.For(s)
		log.Info("policy", "scope", s.Name(), "limit", p.Limit, "window", p.Window, "granularity", p.Granularity, "charge_rejected", p.ChargeRejected)
	}
	log.Info("burst guard", "rps", cfg.burstRPS, "burst", cfg.burstSize, "key_header", cfg.rateKeyHeader, "trust_xff", cfg.trustXFF)
	log.Info("concurrency", "max", cfg.concurrencyMax, "acquire_timeout", cfg.concurrencyTimeout)
	log.Info("stats", "redis", cfg.statsRedis, "ttl", cfg.statsTTL, "series", cfg.statsSeries, "track_keys", cfg.statsTrackKeys)
	log.Info("completion", "base_url", cfg.completionBaseURL, "model", cfg.completionModel, "rps", cfg.completionRPS)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	if memStats != nil {
		total := memStats.Total()
		log.Info("gateway stopped", "admitted", total.Allowed, "rejected", total.Denied)
		return nil
	}
	log.Info("gateway stopped")
	return nil
}
