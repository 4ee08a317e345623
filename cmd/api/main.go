package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"

	"github.com/lexpraxis/backend-lexis/internal/auth"
	"github.com/lexpraxis/backend-lexis/internal/billing"
	"github.com/lexpraxis/backend-lexis/internal/common"
	"github.com/lexpraxis/backend-lexis/internal/config"
	"github.com/lexpraxis/backend-lexis/internal/crm"
	"github.com/lexpraxis/backend-lexis/internal/events"
	"github.com/lexpraxis/backend-lexis/internal/health"
	"github.com/lexpraxis/backend-lexis/internal/notify"
	"github.com/lexpraxis/backend-lexis/internal/obs"
	"github.com/lexpraxis/backend-lexis/internal/projects"
	"github.com/lexpraxis/backend-lexis/internal/publications"
	"github.com/lexpraxis/backend-lexis/internal/ratelimit"
	"github.com/lexpraxis/backend-lexis/internal/receivables"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("env", cfg.AppEnv).Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "lexis")
	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)

	tracingEnabled := envBool("OBS_ENABLE_TRACING", true)
	if tracingEnabled {
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "lexis-api",
			Endpoint:      envOrDefault("OBS_OTLP_ENDPOINT", ""),
			Exporter:      envOrDefault("OBS_TRACING_EXPORTER", "otlp"),
			SamplingRatio: envFloat("OBS_TRACING_SAMPLING_RATIO", 1.0),
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "lexis-api"

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if metricsEnabled {
		if err := redisotel.InstrumentMetrics(redisClient); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}

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
	emailNotifier := &notify.EmailNotifier{
		Sender:  mailer,
		To:      splitCSV(envOrDefault("NOTIFY_ALERT_RECIPIENTS", "")),
		ReplyTo: cfg.NotifyEmailReplyTo,
		Enabled: cfg.NotifyEmailEnabled,
		Log:     logger,
	}
	bus := &events.Bus{
		Store: events.NewStore(pool),
		Subs:  []events.Subscriber{dispatcher, emailNotifier, events.LogSubscriber{Log: logger}},
	}

	billingStore := billing.NewStore(pool)
	billingSvc := &billing.Service{
		Store:  billingStore,
		Email:  mailer,
		Events: bus,
		From:   cfg.NotifyEmailFrom,
	}
	billingHandler := &billing.Handler{Svc: billingSvc}

	recvStore := receivables.NewStore(pool)
	recvSvc := &receivables.Service{
		Store:         recvStore,
		Docs:          billingStore,
		Events:        bus,
		Email:         mailer,
		From:          cfg.NotifyEmailFrom,
		Cache:         redisClient,
		CacheTTL:      cfg.DashboardTTL,
		DueSoonWindow: time.Duration(cfg.DueSoonWindowDays) * 24 * time.Hour,
	}
	recvHandler := &receivables.Handler{Svc: recvSvc}

	authSvc := &auth.Service{
		Store:      auth.NewStore(pool),
		Email:      mailer,
		From:       cfg.NotifyEmailFrom,
		ResetURL:   cfg.PublicBaseURL,
		Secret:     []byte(cfg.JWTSecret),
		AccessTTL:  cfg.AccessTokenTTL,
		RefreshTTL: cfg.RefreshTokenTTL,
		Log:        logger,
	}
	authMw := &auth.Middleware{Service: authSvc, AccessCookie: cfg.AccessCookieName}
	authHandler := &auth.Handler{Svc: authSvc, Mw: authMw}

	crmHandler := &crm.Handler{
		Svc:         &crm.Service{Store: crm.NewStore(pool)},
		DefaultPage: cfg.DefaultPageSize,
		MaxPage:     cfg.MaxPageSize,
	}
	pubHandler := &publications.Handler{
		Svc:         &publications.Service{Store: publications.NewStore(pool)},
		DefaultPage: cfg.DefaultPageSize,
		MaxPage:     cfg.MaxPageSize,
	}
	projHandler := &projects.Handler{
		Svc:     &projects.Service{Store: projects.NewStore(pool)},
		PerPage: cfg.DefaultPageSize,
	}
	notifyAdmin := &notify.AdminHandler{Store: notifyStore, Dispatcher: dispatcher}

	idem := common.Idem{R: redisClient, TTL: cfg.IdempotencyTTL}

	reminderLimiter, err := ratelimit.New(redisClient, cfg.ReminderRateLimit)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise reminder rate limiter")
	}
	recvHandler.Idempotency = idem.Middleware
	recvHandler.ReminderLimit = ratelimit.Middleware(reminderLimiter)

	var httpMetrics *obs.HTTPMetrics
	if metricsEnabled {
		buckets := obs.ParseBucketsCSV(envOrDefault("OBS_METRICS_BUCKETS_MS", ""))
		httpMetrics = obs.NewHTTPMetrics(metricsNamespace, buckets, nil)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if metricsEnabled && httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	health.Handler{
		Checker:      health.Deps{Pool: pool, Redis: redisClient},
		DBTimeout:    envDurationMillis("HEALTH_READY_DB_TIMEOUT_MS", 500),
		RedisTimeout: envDurationMillis("HEALTH_READY_REDIS_TIMEOUT_MS", 300),
	}.Register(r)

	r.Route("/api/v1", func(v chi.Router) {
		v.Use(authMw.Authenticate)

		authHandler.Register(v)

		v.Group(func(p chi.Router) {
			p.Use(authMw.RequireAuth)

			billingHandler.Register(p)
			crmHandler.Register(p)
			pubHandler.Register(p)
			projHandler.Register(p)

			recvHandler.Register(p)

			p.Group(func(admin chi.Router) {
				admin.Use(authMw.RequireRole("admin"))
				notifyAdmin.Register(admin)
			})
		})
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown")
	}
	logger.Info().Msg("server stopped")
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

func splitCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		if trimmed := strings.TrimSpace(val); trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "1", "t", "true", "yes", "on":
			return true
		case "0", "f", "false", "no", "off":
			return false
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func envDurationMillis(key string, fallback int) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(val)); err == nil && parsed > 0 {
			return time.Duration(parsed) * time.Millisecond
		}
	}
	return time.Duration(fallback) * time.Millisecond
}
