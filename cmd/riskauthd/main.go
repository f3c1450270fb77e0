// Command riskauthd serves riskAuth over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/redis/go-redis/v9"

	riskAuth "github.com/MrEthical07/riskAuth"
	"github.com/MrEthical07/riskAuth/audit/export/kafka"
	"github.com/MrEthical07/riskAuth/captcha"
	"github.com/MrEthical07/riskAuth/geo"
	"github.com/MrEthical07/riskAuth/internal/config"
	"github.com/MrEthical07/riskAuth/internal/httpapi"
	promexport "github.com/MrEthical07/riskAuth/metrics/export/prometheus"
	"github.com/MrEthical07/riskAuth/mfa"
	"github.com/MrEthical07/riskAuth/permission"
	"github.com/MrEthical07/riskAuth/risk"
	"github.com/MrEthical07/riskAuth/store/postgres"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("riskauthd stopped", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(redisOpts)
	defer rdb.Close()

	store, err := postgres.Open(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer store.Close()

	startupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := store.Migrate(startupCtx); err != nil {
		return err
	}

	priv, pub, err := cfg.KeyMaterial()
	if err != nil {
		return err
	}

	builder := riskAuth.New().
		WithConfig(cfg.EngineConfig(priv, pub)).
		WithRedis(rdb).
		WithUserStore(store).
		WithLogger(logger)

	policies, err := policyStore(ctx, cfg, store, logger)
	if err != nil {
		return err
	}
	builder = builder.WithPolicyStore(policies)

	intel, err := threatIntel(cfg, rdb)
	if err != nil {
		return err
	}
	builder = builder.WithThreatIntel(intel)

	if cfg.Geo.Endpoint != "" {
		builder = builder.WithGeoLocator(geo.NewCachedLocator(
			geo.NewHTTPLocator(cfg.Geo.Endpoint), rdb,
			geo.CacheConfig{RatePerSecond: 40, Burst: 10}, logger))
	}

	if cfg.Captcha.Endpoint != "" {
		verifier := captcha.NewSiteVerify(cfg.Captcha.Endpoint, cfg.Captcha.Secret)
		verifier.MinScore = cfg.Captcha.MinScore
		builder = builder.WithCaptcha(verifier)
	}

	if cfg.OTP.WebhookURL != "" {
		builder = builder.WithDeliverer(mfa.WebhookDeliverer{URL: cfg.OTP.WebhookURL, Token: cfg.OTP.WebhookToken})
	} else {
		logger.Warn("no otp webhook configured, codes are logged")
		builder = builder.WithDeliverer(mfa.LogDeliverer{Logger: logger})
	}

	if len(cfg.Audit.KafkaBrokers) > 0 {
		sink, err := kafka.NewSink(cfg.Audit.KafkaBrokers, cfg.Audit.KafkaTopic)
		if err != nil {
			return err
		}
		defer sink.Close()
		builder = builder.WithAuditSink(sink)
	} else {
		builder = builder.WithAuditSink(riskAuth.NewJSONWriterSink(os.Stdout))
	}

	engine, err := builder.Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	proxies, err := cfg.ProxyPrefixes()
	if err != nil {
		return err
	}

	router := httpapi.NewRouter(engine, httpapi.Options{
		Logger:         logger,
		Metrics:        promexport.Handler(engine),
		TrustedProxies: proxies,
		Health: func(ctx context.Context) error {
			if err := rdb.Ping(ctx).Err(); err != nil {
				return err
			}
			return store.Ping(ctx)
		},
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("riskauthd listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancelShutdown()
	return srv.Shutdown(shutdownCtx)
}

func policyStore(ctx context.Context, cfg config.Config, store *postgres.Store, logger *slog.Logger) (permission.PolicyStore, error) {
	if cfg.Policies.File == "" {
		return store.Policies(cfg.Policies.CacheTTL), nil
	}

	files, err := permission.NewFileStore(cfg.Policies.File, logger)
	if err != nil {
		return nil, err
	}
	go func() {
		if err := files.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("policy watcher stopped", "error", err)
		}
	}()
	return files, nil
}

func threatIntel(cfg config.Config, rdb redis.UniversalClient) (risk.ThreatIntel, error) {
	static, err := risk.NewStaticList(cfg.ThreatIPs...)
	if err != nil {
		return nil, fmt.Errorf("threat_ips: %w", err)
	}
	return risk.AnyOf(static, risk.NewRedisSet(rdb, "")), nil
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
