package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/larsks/gnocchi-senml-proxy/internal/bridge"
	"github.com/larsks/gnocchi-senml-proxy/internal/config"
	"github.com/larsks/gnocchi-senml-proxy/internal/constants"
	"github.com/larsks/gnocchi-senml-proxy/internal/delivery"
	"github.com/larsks/gnocchi-senml-proxy/internal/gnocchi"
	"github.com/larsks/gnocchi-senml-proxy/internal/ingest"
	"github.com/larsks/gnocchi-senml-proxy/internal/logger"
	"github.com/larsks/gnocchi-senml-proxy/internal/senml"
	"github.com/larsks/gnocchi-senml-proxy/internal/transport"
	"github.com/larsks/gnocchi-senml-proxy/pkg/bootstrap"
	"github.com/larsks/gnocchi-senml-proxy/pkg/health"
	"github.com/larsks/gnocchi-senml-proxy/pkg/metrics"
	"github.com/larsks/gnocchi-senml-proxy/pkg/middleware"
	"github.com/larsks/gnocchi-senml-proxy/pkg/ratelimit"
	"github.com/larsks/gnocchi-senml-proxy/pkg/tracing"
)

type App struct {
	*bootstrap.Base
	dbConnector *bootstrap.DatabaseConnector

	rdb            *redis.Client
	queue          bridge.Queue
	backend        *gnocchi.CircuitBreakerBackend
	source         transport.Source
	handler        *ingest.Handler
	worker         *delivery.Worker
	tracerProvider *tracing.TracerProvider
	server         *http.Server
	health         *health.CheckerRegistry
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	if sugaredLogger, ok := log.(*logger.SugaredLogger); ok {
		sugaredLogger.SetServiceName(constants.ServiceName)
	}
	return &App{
		Base:        bootstrap.NewBase(cfg, log),
		dbConnector: bootstrap.NewDatabaseConnector(cfg, log),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	metrics.Register()

	tp, err := tracing.Init(a.Config.Tracing, constants.ServiceName)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracerProvider = tp

	if err := a.initBridge(ctx); err != nil {
		return fmt.Errorf("failed to initialize bridge: %w", err)
	}

	if err := a.initDelivery(); err != nil {
		return fmt.Errorf("failed to initialize delivery: %w", err)
	}

	if err := a.initIngest(); err != nil {
		return fmt.Errorf("failed to initialize ingest: %w", err)
	}

	source, err := transport.NewSource(a.Config.Transport, a.Logger.Named("transport"))
	if err != nil {
		return fmt.Errorf("failed to initialize transport: %w", err)
	}
	a.source = source
	a.OnShutdown("transport", func(context.Context) error {
		return a.source.Close()
	})

	a.initHealth()

	if a.Config.Server.Enabled {
		a.initHTTPServer(ctx)
	}

	return nil
}

func (a *App) initBridge(ctx context.Context) error {
	rdb, err := a.dbConnector.InitRedis(ctx)
	if err != nil {
		return err
	}
	if rdb != nil {
		a.rdb = rdb
		a.OnShutdown("redis", func(context.Context) error {
			return rdb.Close()
		})
	}

	queue, err := bridge.New(a.Config.Bridge, rdb)
	if err != nil {
		return err
	}
	a.queue = queue
	a.OnShutdown("bridge", func(context.Context) error {
		return queue.Close()
	})

	a.Logger.Infow("bridge initialized", "type", a.Config.Bridge.Type)
	return nil
}

func (a *App) initDelivery() error {
	client, err := gnocchi.NewClient(a.Config.Gnocchi, a.Logger.Named("gnocchi"))
	if err != nil {
		return err
	}
	a.backend = gnocchi.NewCircuitBreakerBackend(client, a.Config.CircuitBreaker)

	publisher := delivery.NewPublisher(
		a.backend,
		a.Config.Gnocchi.ResourceType,
		a.Config.Delivery.RetryInterval,
		a.Logger.Named("publisher"),
	)
	a.worker = delivery.NewWorker(a.queue, publisher, a.Config.Delivery, a.Config.Bridge.Type, a.Logger.Named("worker"))
	return nil
}

func (a *App) initIngest() error {
	schema, err := senml.LoadSchema(a.Config.SenML.SchemaFile)
	if err != nil {
		return err
	}

	log := a.Logger.Named("ingest")

	filter, err := ingest.NewSensorFilter(a.Config.Filtering, log)
	if err != nil {
		return err
	}

	a.handler = ingest.NewHandler(
		senml.NewDecoder(schema, a.Config.SenML.NamePrefix),
		senml.NewAggregator(a.Config.SenML.NamePrefix, log),
		filter,
		a.queue,
		log,
	)
	return nil
}

func (a *App) initHealth() {
	a.health = health.NewCheckerRegistry()
	a.health.Register(health.NewTransportChecker(a.source))
	// Gnocchi being down only delays delivery; units stay queued.
	a.health.RegisterOptional(health.NewBackendChecker("gnocchi", a.backend))
	if a.rdb != nil {
		a.health.Register(health.NewRedisChecker(a.rdb))
	}
}

func (a *App) initHTTPServer(ctx context.Context) {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	if a.Config.Tracing.Enabled {
		router.Use(tracing.GinMiddleware(constants.ServiceName))
	}

	router.Use(middleware.RecoveryMiddleware(a.Logger))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.LoggerMiddleware(a.Logger, "/health", "/metrics"))

	if a.Config.Server.RateLimit.Enabled {
		rateLimitConfig := ratelimit.FromConfig(a.Config.Server.RateLimit)
		router.Use(ratelimit.RateLimitMiddleware(ctx, rateLimitConfig))
		a.Logger.InfowCtx(ctx, "rate limiting enabled", "rps", rateLimitConfig.RPS, "burst", rateLimitConfig.Burst)
	}

	router.GET("/health", func(c *gin.Context) {
		h := a.health.Check(c.Request.Context())
		statusCode := http.StatusOK
		if h.Status == health.StatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}
		c.JSON(statusCode, h)
	})

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	a.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(a.Config.Server.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(a.Config.Server.WriteTimeoutSeconds) * time.Second,
	}
}

// Run blocks until ctx is done or one of the long-lived tasks fails.
func (a *App) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	if a.server != nil {
		g.Go(func() error {
			a.Logger.InfowCtx(ctx, "http server starting", "port", a.Config.Server.Port)
			if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return fmt.Errorf("HTTP server error: %w", err)
			}
			return nil
		})

		g.Go(func() error {
			<-gCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
			defer cancel()
			return a.server.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		return a.worker.Run(gCtx)
	})

	g.Go(func() error {
		return a.worker.MonitorQueue(gCtx)
	})

	g.Go(func() error {
		if err := a.source.Start(gCtx, a.handler.Handle); err != nil {
			return fmt.Errorf("%s transport: %w", a.source.Name(), err)
		}
		return nil
	})

	return g.Wait()
}

func (a *App) Shutdown(ctx context.Context) error {
	additionalShutdown := func(ctx context.Context) []error {
		var errs []error

		if a.tracerProvider != nil {
			if err := a.tracerProvider.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("tracer provider shutdown error: %w", err))
			}
		}

		return errs
	}

	return a.Base.Shutdown(ctx, additionalShutdown)
}
