package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	validator "github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/groupbuy-api/internal/admin"
	"github.com/noah-isme/groupbuy-api/internal/aggregate"
	"github.com/noah-isme/groupbuy-api/internal/common"
	"github.com/noah-isme/groupbuy-api/internal/config"
	"github.com/noah-isme/groupbuy-api/internal/events"
	"github.com/noah-isme/groupbuy-api/internal/gate"
	"github.com/noah-isme/groupbuy-api/internal/health"
	"github.com/noah-isme/groupbuy-api/internal/live"
	"github.com/noah-isme/groupbuy-api/internal/obs"
	"github.com/noah-isme/groupbuy-api/internal/order"
	"github.com/noah-isme/groupbuy-api/internal/ratelimit"
	"github.com/noah-isme/groupbuy-api/internal/security"
	"github.com/noah-isme/groupbuy-api/internal/settings"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("env", cfg.AppEnv).Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "groupbuy")
	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)

	tracingEnabled := envBool("OBS_ENABLE_TRACING", true)
	if tracingEnabled {
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "groupbuy-api",
			Endpoint:      envOrDefault("OBS_OTLP_ENDPOINT", ""),
			Exporter:      envOrDefault("OBS_TRACING_EXPORTER", "otlp"),
			SamplingRatio: 1.0,
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

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	initCtx, cancel := context.WithTimeout(rootCtx, 5*time.Second)
	defer cancel()

	pool := mustInitDatabase(initCtx, cfg, logger)
	defer pool.Close()

	redisClient := mustInitRedis(initCtx, cfg, logger, metricsEnabled)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()

	store := &order.Store{Pool: pool}
	settingsStore := &settings.Store{Pool: pool}

	forcedOpen := settings.NewFlag(settingsStore, settings.KeyForcedOpen, logger)
	forcedOpen.Refresh(initCtx)

	tracker := aggregate.NewTracker(store, logger)
	if err := tracker.Reseed(initCtx); err != nil {
		logger.Error().Err(err).Msg("initial seed failed, retrying in background")
		go func() {
			if err := tracker.SeedWithRetry(rootCtx, cfg.SeedRetryInitial, cfg.SeedRetryMax); err != nil {
				logger.Error().Err(err).Msg("background seeding abandoned")
			}
		}()
	}

	bus := &events.Bus{R: redisClient, Logger: logger, Prefix: "groupbuy:"}

	hub := &live.Hub{
		Logger:    logger,
		Heartbeat: cfg.LiveHeartbeat,
		Snapshot: func() any {
			totals, state := tracker.Snapshot()
			sum := totals.Sum()
			return map[string]any{
				"aggregate": map[string]any{
					"variant_a":  totals.VariantA,
					"variant_b":  totals.VariantB,
					"total":      sum,
					"unit_price": cfg.PricingTiers.UnitPrice(sum),
					"tier_min":   cfg.PricingTiers.Resolve(sum).Min,
					"state":      state,
				},
				"window": gate.Describe(time.Now(), cfg.OrderDeadline, forcedOpen.Value()),
			}
		},
	}

	subs := subscribeAll(rootCtx, bus, tracker, forcedOpen, hub, logger)
	defer func() {
		for _, sub := range subs {
			_ = sub.Close()
		}
	}()

	orderHandler := &order.Handler{
		Store:        store,
		Tracker:      tracker,
		Tiers:        cfg.PricingTiers,
		Bus:          bus,
		Validate:     validator.New(),
		Logger:       logger,
		Deadline:     cfg.OrderDeadline,
		Forced:       forcedOpen.Value,
		QuantityStep: cfg.QuantityStep,
		EnforceStep:  cfg.EnforceQuantityStep,
	}
	adminHandler := &admin.Handler{
		Orders:   store,
		Settings: settingsStore,
		Flag:     forcedOpen,
		Tiers:    cfg.PricingTiers,
		Bus:      bus,
		Logger:   logger,
	}

	idem := common.Idem{R: redisClient, TTL: cfg.IdempotencyTTL}

	submitLimiter, err := ratelimit.New(redisClient, "ratelimit:orders", cfg.RateLimitWindow, cfg.RateLimitMax)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise rate limiter")
	}
	limit := ratelimit.Handler{
		Limiter: submitLimiter,
		Config: ratelimit.Config{
			Key:    common.ClientIP,
			Window: cfg.RateLimitWindow,
			Max:    cfg.RateLimitMax,
		},
		OnError: func(err error) {
			logger.Error().Err(err).Msg("rate limiter unavailable")
		},
	}

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
	r.Use(security.Headers{Enable: true}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{"X-Request-ID", "X-RateLimit-Remaining"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	healthHandler := health.Handler{
		Checker: health.Probe{DB: pool, Redis: redisClient},
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	bodyLimit := security.BodyLimit{Max: cfg.BodyLimitBytes}

	r.Route("/api/v1", func(v chi.Router) {
		v.Get("/aggregate", orderHandler.Aggregate)
		v.Get("/window", orderHandler.Window)
		v.Get("/pricing/tiers", orderHandler.PricingTiers)
		v.Get("/orders/quote", orderHandler.Quote)
		v.With(bodyLimit.Middleware, limit.Middleware, idem.Middleware).Post("/orders", orderHandler.Submit)

		v.Get("/live/aggregate", hub.Stream)

		v.Route("/admin", func(a chi.Router) {
			a.Get("/orders", adminHandler.ListOrders)
			a.Get("/summary", adminHandler.Summary)
			a.With(bodyLimit.Middleware).Put("/settings/forced-open", adminHandler.SetForcedOpen)
		})
	})

	srv := &http.Server{
		Addr:    cfg.HTTPAddr(),
		Handler: r,
	}

	go func() {
		<-rootCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("server shutdown")
		}
	}()

	logger.Info().Str("addr", srv.Addr).Time("deadline", cfg.OrderDeadline).Msg("server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server exited unexpectedly")
	}
	logger.Info().Msg("server shutdown complete")
}

// subscribeAll wires the push channel into the in-process consumers: the
// aggregate tracker, the forced-open flag, and the SSE hub.
func subscribeAll(ctx context.Context, bus *events.Bus, tracker *aggregate.Tracker, forcedOpen *settings.Flag, hub *live.Hub, logger zerolog.Logger) []*events.Subscription {
	var subs []*events.Subscription

	add := func(topic string, handler events.Handler) {
		sub, err := bus.Subscribe(ctx, topic, handler)
		if err != nil {
			logger.Fatal().Err(err).Str("topic", topic).Msg("subscribe failed")
		}
		subs = append(subs, sub)
	}

	add(events.TopicOrderCreated, func(_ context.Context, payload []byte) {
		var ev events.OrderCreated
		if err := json.Unmarshal(payload, &ev); err != nil {
			logger.Error().Err(err).Msg("malformed order-created notification")
			return
		}
		tracker.ApplyInsert(ev.QtyA, ev.QtyB)
		hub.Push()
	})

	add(events.TopicAggregateSnapshot, func(_ context.Context, payload []byte) {
		var ev events.AggregateSnapshot
		if err := json.Unmarshal(payload, &ev); err != nil {
			logger.Error().Err(err).Msg("malformed snapshot notification")
			return
		}
		applied := tracker.ReplaceFromSnapshot(aggregate.Totals{VariantA: ev.VariantA, VariantB: ev.VariantB}, ev.TakenAt)
		if applied {
			hub.Push()
		}
	})

	add(events.TopicSettingChanged, func(_ context.Context, payload []byte) {
		var ev events.SettingChanged
		if err := json.Unmarshal(payload, &ev); err != nil {
			logger.Error().Err(err).Msg("malformed setting-changed notification")
			return
		}
		if ev.Key == settings.KeyForcedOpen {
			forcedOpen.Set(ev.Value)
			hub.Push()
		}
	})

	return subs
}

func mustInitDatabase(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *pgxpool.Pool {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "groupbuy-api"

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}
	return pool
}

func mustInitRedis(ctx context.Context, cfg *config.Config, logger zerolog.Logger, metricsEnabled bool) *redis.Client {
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
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}
	return redisClient
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
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
