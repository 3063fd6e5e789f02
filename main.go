package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/yourorg/address-formatter/internal/archive"
	"github.com/yourorg/address-formatter/internal/assets"
	"github.com/yourorg/address-formatter/internal/audit"
	"github.com/yourorg/address-formatter/internal/env"
	"github.com/yourorg/address-formatter/internal/events"
	"github.com/yourorg/address-formatter/internal/formatter"
	"github.com/yourorg/address-formatter/internal/logger"
	"github.com/yourorg/address-formatter/internal/metrics"
	"github.com/yourorg/address-formatter/internal/redisx"
	"github.com/yourorg/address-formatter/internal/registry"
	"github.com/yourorg/address-formatter/internal/store"
)

type config struct {
	Port             int
	RulesDir         string
	RulesBaseURL     string
	RulesLangs       []string
	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	CacheTTL         time.Duration
	PGDSN            string
	ArchiveWorkers   int
	ArchiveRate      float64
	Abbreviate       bool
	AppendCountry    bool
	LogLevel         string
	RateLimit        int
	BatchConcurrency int
}

func loadConfig() config {
	return config{
		Port:             env.GetInt("PORT", 4002),
		RulesDir:         env.Get("RULES_DIR", ""),
		RulesBaseURL:     env.Get("RULES_BASE_URL", ""),
		RulesLangs:       env.GetList("RULES_LANGS"),
		RedisAddr:        env.Get("REDIS_ADDR", ""),
		RedisPassword:    os.Getenv("REDIS_PASSWORD"),
		RedisDB:          env.GetInt("REDIS_DB", 0),
		CacheTTL:         env.GetDuration("CACHE_TTL", 24*time.Hour),
		PGDSN:            env.Get("PG_DSN", ""),
		ArchiveWorkers:   env.GetInt("ARCHIVE_WORKERS", 2),
		ArchiveRate:      env.GetFloat("ARCHIVE_RATE", 50),
		Abbreviate:       env.GetBool("ABBREVIATE", false),
		AppendCountry:    env.GetBool("APPEND_COUNTRY", false),
		LogLevel:         env.Get("LOG_LEVEL", "info"),
		RateLimit:        env.GetInt("RATE_LIMIT", 600),
		BatchConcurrency: env.GetInt("BATCH_CONCURRENCY", 8),
	}
}

// loadRegistry picks the rule source: a local directory, a remote base URL,
// or the embedded rule set.
func loadRegistry(ctx context.Context, cfg config, log *slog.Logger) (*registry.Registry, error) {
	switch {
	case cfg.RulesDir != "":
		log.Info("loading rules", "dir", cfg.RulesDir)
		return registry.LoadFS(os.DirFS(cfg.RulesDir))
	case cfg.RulesBaseURL != "":
		log.Info("loading rules", "url", cfg.RulesBaseURL)
		ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		return assets.NewClient(cfg.RulesBaseURL, log).Load(ctx, cfg.RulesLangs)
	default:
		return registry.Default()
	}
}

func main() {
	if err := run(); err != nil {
		slog.Error("address-formatter stopped", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := loadConfig()
	log := logger.New(cfg.LogLevel)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg, err := loadRegistry(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("load rules: %w", err)
	}
	f, err := formatter.New(reg,
		formatter.WithAbbreviate(cfg.Abbreviate),
		formatter.WithAppendCountry(cfg.AppendCountry),
		formatter.WithLogger(log),
	)
	if err != nil {
		return fmt.Errorf("build formatter: %w", err)
	}

	promReg := prometheus.NewRegistry()
	m := metrics.New(promReg)

	deps := RouterDeps{
		Formatter:        f,
		Metrics:          m,
		Gatherer:         promReg,
		Logger:           log,
		RateLimit:        cfg.RateLimit,
		BatchConcurrency: cfg.BatchConcurrency,
	}

	if cfg.RedisAddr != "" {
		rdb := redisx.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		defer rdb.Close()
		if err := rdb.Ping(ctx); err != nil {
			log.Warn("redis unavailable, serving without result cache", "addr", cfg.RedisAddr, "error", err)
		} else {
			deps.Cache = redisx.NewResultCache(rdb, cfg.CacheTTL)
		}
	}

	if cfg.PGDSN != "" {
		st, err := store.Open(cfg.PGDSN)
		if err != nil {
			return fmt.Errorf("open postgres: %w", err)
		}
		defer st.Close()
		if err := st.Ping(ctx); err != nil {
			return fmt.Errorf("ping postgres: %w", err)
		}
		if err := st.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate postgres: %w", err)
		}
		pub := events.NewInMemory(1024)
		go (&audit.Logger{Pub: pub, Logger: log}).Run(ctx)

		arch := &archive.Archiver{Store: st, Pub: pub, Metrics: m, Logger: log}
		queue := archive.NewQueue(1024, cfg.ArchiveWorkers, cfg.ArchiveRate, arch.Run)
		// drains pending writes before the store closes
		defer queue.Close()
		deps.Archive = queue
		deps.Store = st
	}

	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Port),
		Handler:           BuildRouter(deps),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("address-formatter listening", "port", cfg.Port, "countries", len(reg.Codes()))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}
