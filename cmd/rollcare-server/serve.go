package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/rollcare/rollcare/internal/config"
	"github.com/rollcare/rollcare/internal/domain/device"
	"github.com/rollcare/rollcare/internal/domain/patient"
	"github.com/rollcare/rollcare/internal/domain/prescription"
	"github.com/rollcare/rollcare/internal/domain/quote"
	"github.com/rollcare/rollcare/internal/domain/ticket"
	"github.com/rollcare/rollcare/internal/platform/auth"
	"github.com/rollcare/rollcare/internal/platform/db"
	"github.com/rollcare/rollcare/internal/platform/dberr"
	"github.com/rollcare/rollcare/internal/platform/middleware"
	"github.com/rollcare/rollcare/internal/platform/notification"
	"github.com/rollcare/rollcare/internal/platform/objectstore"
	"github.com/rollcare/rollcare/internal/platform/telemetry"
	"github.com/rollcare/rollcare/pkg/envelope"
)

const serviceName = "rollcare-api"

// routeModule is implemented by every handler that mounts routes under /api/v1.
type routeModule interface {
	RegisterRoutes(r *auth.Routes)
}

// stack is what the HTTP pipeline needs from the process. A nil Registry
// disables /metrics.
type stack struct {
	Pinger      db.Pinger
	Registry    *prometheus.Registry
	Limiter     middleware.Limiter
	Verifier    auth.Verifier
	Revocations auth.RevocationStore
	Modules     []routeModule
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, logSink := newLogger(os.Stdout, cfg.Env, cfg.LogLevel)
	defer logSink.Close()

	if err := cfg.Validate(); err != nil {
		logger.Error().Err(err).Msg("invalid configuration")
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Tracing
	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Config{
		Enabled:     cfg.OTelEnabled,
		Endpoint:    cfg.OTelEndpoint,
		Insecure:    cfg.OTelInsecure,
		SampleRatio: cfg.OTelSampleRatio,
		ServiceName: serviceName,
		Version:     version,
		Environment: cfg.Env,
	})
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Warn().Err(err).Msg("tracer shutdown failed")
		}
	}()

	// Database
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Redis backs rate limiting and revocation when configured.
	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parse REDIS_URL: %w", err)
		}
		rdb = redis.NewClient(opts)
		defer rdb.Close()
		logger.Info().Msg("using redis for rate limiting and token revocation")
	}

	st := stack{Pinger: pool}

	if cfg.MetricsEnabled {
		st.Registry = prometheus.NewRegistry()
		st.Registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	var revocations auth.RevocationStore
	if rdb != nil {
		st.Limiter = middleware.NewRedisLimiter(rdb)
		revocations = auth.NewRedisRevocationStore(rdb)
	} else {
		st.Limiter = middleware.NewMemoryLimiter()
		mem := auth.NewMemoryRevocationStore()
		defer mem.Close()
		revocations = mem
	}
	st.Revocations = revocations

	switch cfg.ResolvedAuthMode() {
	case "development":
		logger.Warn().Msg("AUTH_MODE=development: dev credentials are accepted")
		st.Verifier = auth.DevVerifier{}
	default:
		v, err := auth.NewJWTVerifier(ctx, auth.JWTConfig{
			SigningKey: []byte(cfg.AuthSigningKey),
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			JWKSURL:    cfg.AuthJWKSURL,
		}, revocations)
		if err != nil {
			return fmt.Errorf("auth: %w", err)
		}
		st.Verifier = v
	}

	// Object storage
	store, err := newObjectStore(ctx, cfg)
	if err != nil {
		return err
	}

	// Notifications
	var email notification.EmailSender = notification.NewLogSender(logger)
	if cfg.SMTPAddr != "" {
		email = notification.NewSMTPSender(notification.SMTPConfig{
			Addr:     cfg.SMTPAddr,
			From:     cfg.SMTPFrom,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
		})
	}
	dispatcher := notification.NewDispatcher(
		email,
		notification.NewLogSender(logger),
		notification.NewTemplateEngine(),
		logger,
		notification.WithQueueSize(256),
		notification.WithRetry(3, 2*time.Second),
	)

	// Domain services
	patientSvc := patient.NewService(patient.NewRepoPG(pool))
	prescriptionSvc := prescription.NewService(
		prescription.NewRepoPG(pool),
		patientSvc,
		prescription.Documents{Store: store, Bucket: cfg.S3Bucket, TTL: cfg.PresignTTL},
		dispatcher,
	)
	quoteSvc := quote.NewService(quote.NewRepoPG(pool), prescriptionSvc, patientSvc, dispatcher)
	deviceSvc := device.NewService(device.NewDeviceRepoPG(pool), quoteSvc, patientSvc)
	ticketSvc := ticket.NewService(ticket.NewRepoPG(pool), deviceSvc, patientSvc, dispatcher, db.NewTransactor(pool))

	st.Modules = []routeModule{
		patient.NewHandler(patientSvc),
		prescription.NewHandler(prescriptionSvc),
		quote.NewHandler(quoteSvc),
		device.NewHandler(deviceSvc),
		ticket.NewHandler(ticketSvc),
		notification.NewHandler(dispatcher),
	}

	e, err := newRouter(cfg, logger, st)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return dispatcher.Run(gctx)
	})
	g.Go(func() error {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("version", version).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down server")
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(sctx)
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("server stopped with error")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

// newRouter assembles the request pipeline. Order matters: the request id
// exists before tracing and logging read it, and the logger sees the final
// status because it resolves errors itself.
func newRouter(cfg *config.Config, logger zerolog.Logger, st stack) (*echo.Echo, error) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	var metrics *middleware.Metrics
	handlerOpts := []middleware.ErrorHandlerOption{middleware.WithTranslator(dberr.Translate)}
	if st.Registry != nil {
		metrics = middleware.NewMetrics(st.Registry)
		handlerOpts = append(handlerOpts, middleware.WithErrorMetrics(metrics))
	}
	e.HTTPErrorHandler = middleware.NewErrorHandler(logger, handlerOpts...).Handle

	e.Use(middleware.RequestID())
	e.Use(telemetry.Middleware(serviceName, middleware.RequestIDFrom))
	if metrics != nil {
		e.Use(metrics.Middleware())
	}
	e.Use(middleware.Logger(logger))
	e.Use(middleware.Recovery())
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:  cfg.CORSOrigins,
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders:  []string{echo.HeaderAuthorization, echo.HeaderContentType, echo.HeaderXRequestID},
		ExposeHeaders: []string{echo.HeaderXRequestID, echo.HeaderRetryAfter},
	}))
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	e.Use(middleware.Sanitize(logger))

	e.GET("/health", func(c echo.Context) error {
		return envelope.JSON(c, http.StatusOK, map[string]string{"status": "ok", "version": version})
	})
	if st.Pinger != nil {
		e.GET("/health/db", db.HealthHandler(st.Pinger))
	}
	if st.Registry != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(st.Registry, promhttp.HandlerOpts{})))
	}

	routeQuotas, err := middleware.ParseRouteQuotas(cfg.RateLimitRoutes)
	if err != nil {
		return nil, fmt.Errorf("RATE_LIMIT_ROUTES: %w", err)
	}

	table := auth.NewRouteTable()
	api := e.Group("/api/v1",
		middleware.RateLimit(middleware.RateLimitConfig{
			Default: middleware.Quota{Rate: cfg.RateLimitRPS, Burst: cfg.RateLimitBurst},
			Routes:  routeQuotas,
			Limiter: st.Limiter,
			Logger:  logger,
		}),
		auth.Gate(st.Verifier, auth.RoleAuthorizer{}, table),
	)
	routes := auth.NewRoutes(api, table)
	for _, m := range st.Modules {
		m.RegisterRoutes(routes)
	}
	if st.Revocations != nil {
		auth.RegisterRevocationRoutes(routes, st.Revocations)
	}
	return e, nil
}

// newObjectStore signs against S3 (or an S3-compatible endpoint) outside
// development. Development without S3_ENDPOINT keeps documents in memory.
func newObjectStore(ctx context.Context, cfg *config.Config) (objectstore.Store, error) {
	if cfg.IsDev() && cfg.S3Endpoint == "" {
		return objectstore.NewMemoryStore(), nil
	}
	s, err := objectstore.NewS3Store(ctx, objectstore.S3Config{
		Endpoint:        cfg.S3Endpoint,
		Region:          cfg.S3Region,
		UsePathStyle:    cfg.S3UsePathStyle,
		AccessKeyID:     cfg.S3AccessKeyID,
		SecretAccessKey: cfg.S3SecretAccessKey,
	})
	if err != nil {
		return nil, fmt.Errorf("object store: %w", err)
	}
	return s, nil
}
