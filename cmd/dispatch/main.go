package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/richxcame/ride-dispatch/internal/dispatch"
	"github.com/richxcame/ride-dispatch/internal/drivers"
	"github.com/richxcame/ride-dispatch/internal/fares"
	"github.com/richxcame/ride-dispatch/internal/geo"
	"github.com/richxcame/ride-dispatch/internal/locks"
	"github.com/richxcame/ride-dispatch/internal/pricing"
	"github.com/richxcame/ride-dispatch/internal/refunds"
	"github.com/richxcame/ride-dispatch/internal/rides"
	"github.com/richxcame/ride-dispatch/internal/scheduler"
	"github.com/richxcame/ride-dispatch/internal/wallet"
	"github.com/richxcame/ride-dispatch/pkg/config"
	"github.com/richxcame/ride-dispatch/pkg/database"
	"github.com/richxcame/ride-dispatch/pkg/eventbus"
	"github.com/richxcame/ride-dispatch/pkg/health"
	"github.com/richxcame/ride-dispatch/pkg/logger"
	"github.com/richxcame/ride-dispatch/pkg/middleware"
	"github.com/richxcame/ride-dispatch/pkg/redis"
	ws "github.com/richxcame/ride-dispatch/pkg/websocket"
)

func main() {
	cfg, err := config.Load("dispatch")
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	if err := logger.Init(cfg.Server.Environment); err != nil {
		panic("failed to init logger: " + err.Error())
	}
	defer logger.Sync()
	log := logger.Get()

	// PostgreSQL
	if err := database.RunMigrations(&cfg.Database); err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}
	pool, err := database.NewPostgresPool(&cfg.Database)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	defer database.Close(pool)
	log.Info("connected to PostgreSQL")

	// Redis
	redisClient, err := redis.NewRedisClient(&cfg.Redis)
	if err != nil {
		log.Fatal("failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	log.Info("connected to Redis")

	// NATS event bus. The booking queue rides on it, so it is not optional
	// for this service.
	bus, err := eventbus.Connect(cfg.NATS.URL)
	if err != nil {
		log.Fatal("failed to connect to NATS", zap.Error(err))
	}
	defer bus.Close()
	log.Info("connected to NATS", zap.String("url", cfg.NATS.URL))

	// WebSocket hub
	hub := ws.NewHub()

	// Shared infrastructure
	guard := locks.NewGuard(redisClient,
		cfg.Dispatch.CreateLockTTL, cfg.Dispatch.MatchLockTTL, cfg.Dispatch.AcceptLockTTL)
	index := geo.NewDriverIndex(redisClient)
	engine := fares.NewEngine()

	// Repositories
	rideRepo := rides.NewRepository(pool)
	driverRepo := drivers.NewRepository(pool)
	walletRepo := wallet.NewRepository(pool)
	pricingRepo := pricing.NewRepository(pool)

	// Services
	pricingSvc := pricing.NewService(pricingRepo, redisClient)
	driverSvc := drivers.NewService(driverRepo, index)
	gateway := refunds.NewGatewayClient(refunds.GatewayConfig{
		BaseURL:   cfg.Business.GatewayBaseURL,
		KeyID:     cfg.Business.GatewayKeyID,
		KeySecret: cfg.Business.GatewayKeySecret,
	})
	refunder := refunds.NewOrchestrator(walletRepo, rideRepo, gateway, refunds.Config{
		CancellationFee: cfg.Business.CancellationFee,
	})

	queue := dispatch.NewQueue(bus)
	rideSvc := rides.NewService(rideRepo, guard, engine, pricingSvc, queue, bus, driverRepo, refunder)
	coordinator := dispatch.NewCoordinator(rideRepo, driverRepo, index, hub, guard, bus,
		cfg.Dispatch.SearchRadiiKm, cfg.Dispatch.MaxCandidates)

	// Handlers
	rideHandler := rides.NewHandler(rideSvc)
	driverHandler := drivers.NewHandler(driverSvc)
	dispatchHandler := dispatch.NewHandler(coordinator)
	walletHandler := wallet.NewHandler(walletRepo)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Discovery job consumer
	sub, err := queue.StartConsumer(rootCtx, coordinator)
	if err != nil {
		log.Fatal("failed to start dispatch consumer", zap.Error(err))
	}
	defer sub.Drain()
	log.Info("dispatch job consumer started")

	// Scheduler worker
	worker := scheduler.NewWorker(pool, bus, rideSvc, log, scheduler.Config{
		Interval:         cfg.Dispatch.SchedulerInterval,
		ActivationWindow: cfg.Dispatch.PromotionLookback,
		StaleAfter:       cfg.Dispatch.StaleRideTimeout,
	})
	go worker.Start(rootCtx)
	defer worker.Stop()

	// HTTP server
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.Metrics())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = splitOrigins(cfg.Server.CORSOrigins)
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Correlation-ID"}
	router.Use(cors.New(corsConfig))

	checkers := []health.Checker{
		health.DatabaseChecker(pool),
		health.RedisChecker(redisClient.Client),
	}
	router.GET("/healthz", func(c *gin.Context) {
		failures := health.Run(c.Request.Context(), checkers...)
		if len(failures) > 0 {
			failed := make([]string, 0, len(failures))
			for name := range failures {
				failed = append(failed, name)
			}
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "failed": failed})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	jwtSecret := cfg.JWT.Secret
	api := router.Group("/api/v1")
	{
		// Public trip sharing
		api.GET("/shared/:token", rideHandler.GetSharedRide)

		auth := api.Group("", middleware.AuthMiddleware(jwtSecret))
		{
			// WebSocket sessions for riders and drivers
			auth.GET("/ws", func(c *gin.Context) {
				userID, err := middleware.GetUserID(c)
				if err != nil {
					c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
					return
				}
				if err := hub.Serve(c, userID); err != nil {
					logger.WithContext(c.Request.Context()).Warn("websocket upgrade failed", zap.Error(err))
				}
			})

			rider := auth.Group("", middleware.RequireRole(middleware.RoleRider))
			{
				rider.POST("/rides", rideHandler.RequestRide)
				rider.GET("/rides", rideHandler.ListRides)
				rider.PATCH("/rides/:id", rideHandler.UpdateRide)
				rider.POST("/rides/:id/share", rideHandler.ShareRide)
				rider.DELETE("/rides/:id/share", rideHandler.UnshareRide)
			}

			driver := auth.Group("", middleware.RequireRole(middleware.RoleDriver))
			{
				driver.POST("/rides/:id/accept", dispatchHandler.AcceptRide)
				driver.POST("/rides/:id/arrived", rideHandler.MarkArrived)
				driver.POST("/rides/:id/start", rideHandler.StartRide)
				driver.POST("/rides/:id/complete", rideHandler.CompleteRide)
				driver.POST("/drivers/location", driverHandler.UpdateLocation)
				driver.POST("/drivers/online", driverHandler.GoOnline)
				driver.POST("/drivers/offline", driverHandler.GoOffline)
				driver.POST("/drivers/reconcile", driverHandler.Reconcile)
			}

			// Shared by both roles; the service enforces ownership.
			auth.GET("/rides/:id", rideHandler.GetRide)
			auth.POST("/rides/:id/cancel", rideHandler.CancelRide)
			auth.GET("/wallet", walletHandler.GetWallet)
			auth.GET("/wallet/transactions", walletHandler.ListTransactions)
		}
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		log.Info("dispatch service listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	<-rootCtx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
	}
}

func splitOrigins(origins string) []string {
	if origins == "" || origins == "*" {
		return []string{"*"}
	}
	var out []string
	for _, o := range strings.Split(origins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}
