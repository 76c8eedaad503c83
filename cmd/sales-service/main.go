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

	redisClient "github.com/go-redis/redis/v8"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"sales-engine/internal/api/handlers"
	"sales-engine/internal/config"
	"sales-engine/internal/infrastructure/auth"
	"sales-engine/internal/infrastructure/gateway"
	"sales-engine/internal/infrastructure/leader"
	"sales-engine/internal/infrastructure/mysql"
	"sales-engine/internal/infrastructure/redis"
	"sales-engine/internal/metrics"
	"sales-engine/internal/services"
	"sales-engine/pkg/logger"
	"sales-engine/pkg/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("Starting sales service", "instance_id", cfg.Instance.ID, "config", cfg.GetConfigString())
	if cfg.Auth.JWTSecret == "" {
		log.Warn("auth.jwt_secret is empty; every bearer token will be rejected")
	}
	if err := run(ctx, cfg, log); err != nil {
		log.Error("Sales service stopped with error", "error", err)
		os.Exit(1)
	}
	log.Info("Sales service stopped")
}

func run(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	// Initialize Redis
	rdb := redisClient.NewClient(&redisClient.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}
	log.Info("Connected to Redis", "address", cfg.Redis.Address)

	// Initialize MySQL
	db, err := utils.InitializeMysql(pingCtx, cfg.MySQL)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Failed to close MySQL connection", "error", err)
		}
	}()
	log.Info("Connected to MySQL")

	if cfg.MySQL.Migrate {
		if err := mysql.Migrate(ctx, db); err != nil {
			return err
		}
		log.Info("Database migrations applied")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.NewRecorder(registry)

	inventory := redis.NewRedisInventory(rdb)
	eventPublisher := redis.NewEventPublisher(rdb)
	storeRepo := mysql.NewMySQLStoreRepository(db)
	orderRepo := mysql.NewMySQLOrderRepository(db)
	identity := auth.NewJWTIdentityResolver(cfg.Auth.JWTSecret, cfg.Auth.GuestPrefix)
	leaderElection := leader.NewRedisLeaderElection(rdb, cfg.Leader.Key, cfg.Leader.TTL)

	settlement := services.NewSettlementCoordinator(
		inventory,
		storeRepo,
		orderRepo,
		gateway.NewHTTPPaymentGateway(cfg.Gateways.PaymentURL, cfg.Gateways.Timeout),
		gateway.NewHTTPShippingGateway(cfg.Gateways.ShippingURL, cfg.Gateways.Timeout),
		recorder,
		log,
	)
	bidService := services.NewBidService(settlement, identity, eventPublisher, recorder, log)
	auctionService := services.NewAuctionService(settlement, identity, eventPublisher, recorder, log)
	reconciler := services.NewStockReconciler(inventory, storeRepo, log)
	scheduler := services.NewCronScheduler(cfg.Scheduler.SweepSpec, cfg.Scheduler.ReconcileSpec,
		bidService, reconciler, leaderElection, cfg.Instance.ID, log)

	e := newServer(cfg, log, recorder, registry, rdb)
	api := e.Group("/api/v1")
	handlers.NewBidHandler(bidService, identity, log).Register(api)
	handlers.NewAuctionHandler(auctionService, identity, log).Register(api)
	handlers.NewStoreHandler(inventory, storeRepo, orderRepo, identity, log).Register(api)
	handlers.NewSessionHandler(identity, cfg.Auth.GuestTokenTTL, log).Register(api)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("Starting HTTP server", "address", cfg.Addr())
		if err := e.Start(cfg.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		campaign(gctx, leaderElection, cfg.Instance.ID, cfg.Leader.TTL, log)
		return nil
	})

	if err := scheduler.Start(gctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down sales service...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := scheduler.Stop(); err != nil {
			log.Error("Failed to stop scheduler", "error", err)
		}
		if err := leaderElection.ReleaseLeadership(shutdownCtx, cfg.Instance.ID); err != nil {
			log.Error("Failed to release leadership", "error", err)
		}
		if err := e.Shutdown(shutdownCtx); err != nil {
			log.Error("Server forced to shutdown", "error", err)
		}
		return nil
	})

	return g.Wait()
}

func newServer(cfg *config.Config, log logger.Logger, recorder *metrics.Recorder, registry *prometheus.Registry, rdb *redisClient.Client) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handlers.NewRequestValidator()

	e.Use(middleware.RequestID())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{
			http.MethodGet, http.MethodPut, http.MethodPost, http.MethodDelete, http.MethodOptions,
		},
		AllowHeaders: []string{
			echo.HeaderOrigin,
			echo.HeaderContentType,
			echo.HeaderAccept,
			echo.HeaderAuthorization,
		},
		MaxAge: 86400,
	}))
	e.Use(recorder.Middleware())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			req := c.Request()
			log.Debug("Request handled",
				"request_id", c.Response().Header().Get(echo.HeaderXRequestID),
				"method", req.Method,
				"path", req.URL.Path,
				"status", c.Response().Status,
				"latency", time.Since(start),
				"remote_addr", c.RealIP())
			return err
		}
	})

	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	e.GET("/health", func(c echo.Context) error {
		status, code := "ok", http.StatusOK
		if err := rdb.Ping(c.Request().Context()).Err(); err != nil {
			status, code = "degraded", http.StatusServiceUnavailable
		}
		return c.JSON(code, map[string]interface{}{
			"status":      status,
			"service":     "sales-service",
			"instance_id": cfg.Instance.ID,
			"timestamp":   time.Now().Format(time.RFC3339),
		})
	})

	return e
}

// campaign keeps trying to take or hold leadership until ctx is done.
func campaign(ctx context.Context, election *leader.RedisLeaderElection, instanceID string, ttl time.Duration, log logger.Logger) {
	interval := ttl / 2
	if interval <= 0 {
		interval = 5 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	wasLeader := false
	for {
		isLeader, err := election.BecomeLeader(ctx, instanceID)
		switch {
		case err != nil && ctx.Err() == nil:
			log.Error("Failed to attempt leadership", "instance_id", instanceID, "error", err)
		case isLeader && !wasLeader:
			log.Info("Became sales leader", "instance_id", instanceID)
		case !isLeader && wasLeader:
			log.Warn("Lost sales leadership", "instance_id", instanceID)
		}
		wasLeader = isLeader

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
