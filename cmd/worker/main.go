package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rezerva/internal/alert"
	"rezerva/internal/artifact"
	"rezerva/internal/config"
	"rezerva/internal/database"
	"rezerva/internal/domain"
	"rezerva/internal/events"
	"rezerva/internal/logging"
	"rezerva/internal/metrics"
	"rezerva/internal/notify"
	"rezerva/internal/repository"
	"rezerva/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	if closer != nil {
		defer (func(c io.Closer) { _ = c.Close() })(closer)
	}

	db, err := database.NewDB(cfg.Database.Path, logger)
	if err != nil {
		return fmt.Errorf("init database: %w", err)
	}
	defer db.Close()

	store, err := artifact.NewStore(cfg.Storage.ArtifactsPath, logger)
	if err != nil {
		return fmt.Errorf("init artifact store: %w", err)
	}
	generator := artifact.NewGenerator(cfg.App.AgencyName)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient, cache := initCache(ctx, cfg, logger)
	if redisClient != nil {
		defer func() { _ = repository.Close(redisClient) }()
	}

	channels, err := initChannels(cfg, logger)
	if err != nil {
		return err
	}

	eventBus := events.NewEventBus()
	alerter := initAlerter(cfg, logger)

	metrics.Register()
	if cfg.Monitoring.PrometheusEnabled {
		go serveMetrics(cfg.Monitoring.PrometheusPort, logger)
	}

	w := worker.NewDeliveryWorker(db, generator, store, channels, redisClient, worker.Options{
		Retry: worker.RetryPolicy{
			MaxAttempts:   cfg.Queue.MaxAttempts,
			InitialDelay:  cfg.Queue.RetryInitialDelay(),
			MaxDelay:      cfg.Queue.RetryMaxDelay(),
			BackoffFactor: cfg.Queue.BackoffFactor,
		},
		PollInterval:     cfg.Queue.PollInterval(),
		BatchSize:        cfg.Queue.BatchSize,
		RetainCompleted:  cfg.Queue.RetainCompleted,
		StaleActiveAfter: cfg.Queue.StaleActiveAfter(),
		Cache:            cache,
		Events:           eventBus,
		Alerter:          alerter,
	}, logger)

	logger.Info().
		Str("database", cfg.Database.Path).
		Str("artifacts", cfg.Storage.ArtifactsPath).
		Int("max_attempts", cfg.Queue.MaxAttempts).
		Msg("starting delivery worker")

	w.Start(ctx)
	return nil
}

func initCache(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*redis.Client, domain.DeliveryCache) {
	ttl := time.Duration(cfg.Redis.TTLHours) * time.Hour
	memory := repository.NewMemoryDeliveryCache(ttl)

	if !cfg.Redis.Enabled {
		logger.Info().Msg("redis disabled, using in-memory delivery cache")
		return nil, memory
	}

	client := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, client); err != nil {
		logger.Warn().Err(err).Msg("redis unreachable at startup, continuing with failover cache")
	}
	primary := repository.NewRedisDeliveryCache(client, ttl)
	return client, repository.NewFailoverDeliveryCache(primary, memory, logger)
}

func initChannels(cfg *config.Config, logger *zerolog.Logger) ([]notify.Channel, error) {
	email, err := notify.NewEmailChannel(notify.EmailConfig{
		APIURL:     cfg.Email.APIURL,
		APIKey:     cfg.Email.APIKey,
		From:       cfg.Email.From,
		FromName:   cfg.Email.FromName,
		AgencyName: cfg.App.AgencyName,
		Timeout:    time.Duration(cfg.Email.TimeoutSeconds) * time.Second,
		RPS:        cfg.Email.RPS,
		Burst:      cfg.Email.Burst,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("init email channel: %w", err)
	}

	sms, err := notify.NewSMSChannel(notify.SMSConfig{
		APIURL:  cfg.SMS.APIURL,
		APIKey:  cfg.SMS.APIKey,
		Sender:  cfg.SMS.Sender,
		Timeout: time.Duration(cfg.SMS.TimeoutSeconds) * time.Second,
		RPS:     cfg.SMS.RPS,
		Burst:   cfg.SMS.Burst,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("init sms channel: %w", err)
	}

	return []notify.Channel{email, sms}, nil
}

func initAlerter(cfg *config.Config, logger *zerolog.Logger) domain.Alerter {
	if !cfg.Telegram.Enabled {
		return nil
	}
	alerter, err := alert.NewTelegramAlerter(cfg.Telegram, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("telegram alerting unavailable, parked jobs will only be logged")
		return nil
	}
	return alerter
}

func serveMetrics(port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	addr := fmt.Sprintf(":%d", port)
	logger.Info().Str("addr", addr).Msg("metrics server listening")
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
