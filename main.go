package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"civicfeed-be/config"
	"civicfeed-be/controllers"
	"civicfeed-be/engine"
	"civicfeed-be/engine/memstore"
	"civicfeed-be/engine/mongostore"
	"civicfeed-be/middlewares"
	"civicfeed-be/routes"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found")
	}

	cfg := config.Load()
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	if cfg.JWTSecret == "" {
		logger.Error("JWT_SECRET environment variable is required")
		os.Exit(1)
	}

	ctx := context.Background()

	var eng engine.Engine
	if cfg.MongoURI != "" {
		db, err := config.ConnectMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			logger.Error("failed to connect to MongoDB", "error", err)
			os.Exit(1)
		}
		store := mongostore.New(db, mongostore.WithTimeout(cfg.StoreTimeout))
		if err := store.EnsureIndexes(ctx); err != nil {
			logger.Error("failed to create indexes", "error", err)
			os.Exit(1)
		}
		eng = store
		logger.Info("connected to MongoDB", "database", cfg.MongoDatabase)
	} else {
		eng = memstore.New()
		logger.Warn("MONGODB_URI not set, using in-memory store; data is not durable")
	}

	var redisClient *redis.Client
	if cfg.RedisAddress != "" {
		client, err := config.ConnectRedis(ctx, cfg.RedisAddress, cfg.RedisPassword)
		if err != nil {
			logger.Error("failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		redisClient = client
		logger.Info("connected to Redis", "address", cfg.RedisAddress)
	} else {
		logger.Warn("REDIS_ADDRESS not set, issue rate limiting disabled")
	}

	controllers.RegisterValidators()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middlewares.RequestID())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: false,
	}))

	auth := middlewares.AuthMiddleware(cfg.JWTSecret)
	rateLimit := middlewares.IssueRateLimiter(redisClient, "issue_create", cfg.IssueRateMax)

	issueController := controllers.NewIssueController(eng, logger)
	authController := controllers.NewAuthController(eng, cfg.JWTSecret, logger)

	routes.IssueRoutes(r, issueController, auth, rateLimit)
	routes.AuthRoutes(r, authController, auth)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "ok"})
	})

	logger.Info("starting server", "port", cfg.Port)
	if err := r.Run(":" + cfg.Port); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}
