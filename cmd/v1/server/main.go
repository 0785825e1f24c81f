package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/chess-room-engine/backend/internal/v1/auth"
	"github.com/chess-room-engine/backend/internal/v1/bus"
	"github.com/chess-room-engine/backend/internal/v1/catalog"
	"github.com/chess-room-engine/backend/internal/v1/config"
	"github.com/chess-room-engine/backend/internal/v1/health"
	"github.com/chess-room-engine/backend/internal/v1/logging"
	"github.com/chess-room-engine/backend/internal/v1/middleware"
	"github.com/chess-room-engine/backend/internal/v1/ratelimit"
	"github.com/chess-room-engine/backend/internal/v1/room"
	"github.com/chess-room-engine/backend/internal/v1/tracing"
)

const serviceName = "chess-room-engine"

func main() {
	envPaths := []string{".env", "../../../.env", "../../.env"}
	var envLoaded bool
	for _, path := range envPaths {
		if err := godotenv.Load(path); err == nil {
			envLoaded = true
			break
		}
	}

	cfg, err := config.ValidateEnv()
	if err != nil {
		panic(err)
	}

	if err := logging.Initialize(cfg.DevelopmentMode); err != nil {
		panic(err)
	}
	ctx := context.Background()
	if !envLoaded {
		logging.Warn(ctx, "no .env file found in any expected location, relying on environment variables")
	}

	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, serviceName, cfg.OtelCollectorAddr)
		if err != nil {
			logging.Error(ctx, "failed to initialize tracing, continuing without it", zap.Error(err))
		} else {
			defer func() { _ = tp.Shutdown(ctx) }()
		}
	}

	validator := buildValidator(ctx, cfg)

	var busService *bus.Service
	var roomBus room.BusService
	var redisClient *redis.Client
	if cfg.RedisEnabled {
		svc, err := bus.NewService(cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			logging.Error(ctx, "failed to connect to redis, running in single-process mode", zap.Error(err))
		} else {
			busService = svc
			roomBus = svc
			redisClient = svc.Client()
			defer func() { _ = svc.Close() }()
			logging.Info(ctx, "redis pub/sub enabled", zap.String("addr", cfg.RedisAddr))
		}
	}

	hub := room.NewHub(validator, roomBus)
	defer hub.Stop()

	rl, err := ratelimit.NewRateLimiter(cfg, redisClient)
	if err != nil {
		logging.Fatal(ctx, "failed to initialize rate limiter", zap.Error(err))
	}

	healthHandler := health.NewHandler(busService)

	if cfg.DevelopmentMode {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CorrelationID())
	if cfg.TracingEnabled {
		router.Use(otelgin.Middleware(serviceName))
	}

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = auth.GetAllowedOriginsFromEnv("ALLOWED_ORIGINS", []string{"http://localhost:3000"})
	router.Use(cors.New(corsConfig))

	router.Use(rl.GlobalMiddleware())

	router.GET("/health/live", healthHandler.Liveness)
	router.GET("/health/ready", healthHandler.Readiness)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	{
		rooms := api.Group("/rooms")
		rooms.Use(rl.MiddlewareForEndpoint("rooms"))
		rooms.GET("/listings", func(c *gin.Context) {
			var filter catalog.Filter
			if c.Query("timedOnly") == "true" {
				filter.TimedOnly = true
			}
			if c.Query("untimedOnly") == "true" {
				filter.UntimedOnly = true
			}
			c.JSON(http.StatusOK, gin.H{"rooms": catalog.List(hub, filter)})
		})
		rooms.GET("/:roomId", func(c *gin.Context) {
			snap, ok := hub.RoomByID(room.RoomIdType(c.Param("roomId")))
			if !ok {
				c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
				return
			}
			c.JSON(http.StatusOK, snap)
		})
	}

	router.GET("/ws", func(c *gin.Context) {
		if !rl.CheckWebSocket(c) {
			return
		}
		hub.ServeWs(c)
	})

	port := cfg.Port
	if port == "" {
		port = "8080"
	}
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	go func() {
		logging.Info(ctx, "server starting", zap.String("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Fatal(ctx, "failed to run server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logging.Info(ctx, "shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error(ctx, "server forced to shutdown", zap.Error(err))
	}

	logging.Info(ctx, "server exiting")
}

// buildValidator wires the JWT validator: Auth0/JWKS in production, a dev
// MockValidator when SKIP_AUTH is set.
func buildValidator(ctx context.Context, cfg *config.Config) room.TokenValidator {
	if cfg.SkipAuth {
		logging.Warn(ctx, "authentication disabled via SKIP_AUTH, do not use in production")
		return &auth.MockValidator{}
	}
	if cfg.Auth0Domain == "" || cfg.Auth0Audience == "" {
		logging.Fatal(ctx, "AUTH0_DOMAIN and AUTH0_AUDIENCE must be set when SKIP_AUTH=false")
	}
	validator, err := auth.NewValidator(ctx, cfg.Auth0Domain, cfg.Auth0Audience)
	if err != nil {
		logging.Fatal(ctx, "failed to create auth validator", zap.Error(err))
	}
	logging.Info(ctx, "auth0 validator initialized", zap.String("domain", cfg.Auth0Domain))
	return validator
}
