package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/lexpraxis/backend-lexis/internal/billing"
	"github.com/lexpraxis/backend-lexis/internal/common"
	"github.com/lexpraxis/backend-lexis/internal/config"
	"github.com/lexpraxis/backend-lexis/internal/events"
	"github.com/lexpraxis/backend-lexis/internal/lock"
	"github.com/lexpraxis/backend-lexis/internal/notify"
	"github.com/lexpraxis/backend-lexis/internal/obs"
	"github.com/lexpraxis/backend-lexis/internal/receivables"
	"github.com/lexpraxis/backend-lexis/internal/tasks"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("component", "worker").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool := mustInitDatabase(ctx, cfg, logger)
	defer pool.Close()

	redisClient := mustInitRedis(ctx, cfg, logger)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()

	mailer := common.NopEmailSender{}

	notifyStore := notify.NewStore(pool)
	dispatcher := &notify.Dispatcher{
		Store:              notifyStore,
		Client:             notify.HTTPClient(cfg.WebhookRequestTimeout, cfg.WebhookAllowInsecureTLS),
		BackoffBaseSec:     cfg.WebhookBackoffBaseSec,
		DefaultMaxAttempts: cfg.WebhookDefaultMaxAttempts,
		Enabled:            cfg.WebhookDeliveryEnabled,
		Replay:             notify.RedisReplayProtector{Client: redisClient},
		ReplayTTL:          cfg.WebhookReplayTTL,
	}
	bus := &events.Bus{
		Store: events.NewStore(pool),
		Subs:  []events.Subscriber{dispatcher},
	}

	recvSvc := &receivables.Service{
		Store:         receivables.NewStore(pool),
		Docs:          billing.NewStore(pool),
		Events:        bus,
		Email:         mailer,
		From:          cfg.NotifyEmailFrom,
		Cache:         redisClient,
		CacheTTL:      cfg.DashboardTTL,
		DueSoonWindow: time.Duration(cfg.DueSoonWindowDays) * 24 * time.Hour,
	}

	handlers := &tasks.Handlers{
		Receivables:  recvSvc,
		Dispatcher:   dispatcher,
		Locker:       lock.Locker{R: redisClient, RetryBackoff: 250 * time.Millisecond},
		LockTTL:      2 * time.Minute,
		WebhookBatch: 50,
		Log:          logger,
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	asynqRedis := asynq.RedisClientOpt{Addr: redisOpts.Addr, Password: redisOpts.Password, DB: redisOpts.DB}

	mux := asynq.NewServeMux()
	handlers.Register(mux)

	srv := asynq.NewServer(asynqRedis, asynq.Config{
		Concurrency: 4,
		Logger:      asynqLogger{logger},
	})
	sched := asynq.NewScheduler(asynqRedis, &asynq.SchedulerOpts{
		Logger: asynqLogger{logger},
	})
	if err := tasks.RegisterSchedule(sched, tasks.DefaultSchedule()); err != nil {
		logger.Fatal().Err(err).Msg("register schedule")
	}

	if err := sched.Start(); err != nil {
		logger.Fatal().Err(err).Msg("start scheduler")
	}
	if err := srv.Start(mux); err != nil {
		logger.Fatal().Err(err).Msg("start worker")
	}
	logger.Info().Msg("worker started")

	<-ctx.Done()
	sched.Shutdown()
	srv.Shutdown()
	logger.Info().Msg("worker shutdown complete")
}

// asynqLogger adapts zerolog to asynq's logger interface.
type asynqLogger struct {
	log zerolog.Logger
}

func (l asynqLogger) Debug(args ...any) { l.log.Debug().Msgf("%v", args) }
func (l asynqLogger) Info(args ...any)  { l.log.Info().Msgf("%v", args) }
func (l asynqLogger) Warn(args ...any)  { l.log.Warn().Msgf("%v", args) }
func (l asynqLogger) Error(args ...any) { l.log.Error().Msgf("%v", args) }
func (l asynqLogger) Fatal(args ...any) { l.log.Fatal().Msgf("%v", args) }

func mustInitDatabase(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *pgxpool.Pool {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "lexis-worker"

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}
	return pool
}

func mustInitRedis(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *redis.Client {
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	client := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}
	return client
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		if trimmed := strings.TrimSpace(val); trimmed != "" {
			return trimmed
		}
	}
	return fallback
}
