package main

import (
	"context"
	"net/http"
	"time"

	"github.com/communityconnect/connect/backend/go-services/handlers"
	"github.com/communityconnect/connect/backend/go-services/internal/cache"
	"github.com/communityconnect/connect/backend/go-services/internal/config"
	"github.com/communityconnect/connect/backend/go-services/internal/notify"
	reporthandler "github.com/communityconnect/connect/backend/go-services/internal/report/handler"
	"github.com/communityconnect/connect/backend/go-services/internal/report/service"
	"github.com/communityconnect/connect/backend/go-services/internal/storage"
	"github.com/communityconnect/connect/backend/go-services/internal/users"
	"github.com/communityconnect/connect/backend/go-services/pkg/apperr"
	"github.com/communityconnect/connect/backend/go-services/pkg/middleware"
	"github.com/communityconnect/connect/backend/go-services/pkg/response"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
)

var startTime = time.Now()

// routeDeps are the services the HTTP surface is built from. cache, redis,
// verifier and ready may be nil.
type routeDeps struct {
	users    *users.Service
	reports  *service.Service
	verifier middleware.Verifier
	cache    *cache.Cache
	redis    *redis.Client
	ready    gin.HandlerFunc
}

// setupRouter mounts every route under /api. The rate limiter runs after
// identity resolution so buckets are per user where a caller is known.
func setupRouter(cfg *config.Config, d routeDeps) *gin.Engine {
	r := gin.New()
	r.Use(middleware.Recovery(), middleware.RequestLogger(), cors(cfg))

	var limit []gin.HandlerFunc
	if lim := rateLimiter(cfg.RateLimit, d.redis); lim != nil {
		limit = append(limit, lim)
	}

	api := r.Group("/api")
	api.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"success":   true,
			"message":   "Community Connect API is running",
			"timestamp": time.Now().UTC(),
			"uptime":    time.Since(startTime).String(),
		})
	})
	if d.ready != nil {
		api.GET("/ready", d.ready)
	}
	api.GET("/metrics", gin.WrapH(promhttp.Handler()))
	handlers.RegisterSwagger(api)

	identity := middleware.Identity(d.users)
	handlers.NewAuthHandler(d.users, d.verifier, d.cache).Register(api, identity, limit...)
	handlers.NewAdminHandler(d.reports, d.users, d.cache, cfg.StatsCacheTTL).Register(api, identity, limit...)
	guarded := append(gin.HandlersChain{identity}, limit...)
	reporthandler.RegisterReportRoutes(api.Group("/reports", guarded...), d.reports)

	r.NoRoute(func(c *gin.Context) {
		response.Fail(c, apperr.NotFound("Route not found"))
	})
	return r
}

func rateLimiter(cfg config.RateLimitConfig, rdb *redis.Client) gin.HandlerFunc {
	if !cfg.Enabled {
		return nil
	}
	if cfg.UseRedis && rdb != nil {
		win := time.Duration(cfg.WindowSeconds) * time.Second
		return middleware.RedisRateLimitMiddleware(rdb, cfg.RPS, cfg.Burst, win)
	}
	return middleware.RateLimitMiddleware(cfg.RPS, cfg.Burst)
}

// cors is permissive in development; elsewhere only CLIENT_URL may call.
func cors(cfg *config.Config) gin.HandlerFunc {
	origin := cfg.ClientURL
	if cfg.Server.IsDevelopment() || origin == "" {
		origin = "*"
	}
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-User-Id, User-Id")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Content-Length, Retry-After")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusOK)
			return
		}
		c.Next()
	}
}

type readyChecks struct {
	mongo   *mongo.Client
	storage *storage.MinIOStorage
	cache   *cache.Cache
	mailer  notify.Mailer
}

// readiness reports 503 when MongoDB (if configured) or the Redis limiter
// (if enabled) is down. Mail and storage are informational only.
func readiness(cfg *config.Config, p readyChecks) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		ready := true
		deps := gin.H{"mail": p.mailer != nil && p.mailer.Available()}
		if p.mongo != nil {
			err := p.mongo.Ping(ctx, nil)
			deps["mongo"] = err == nil
			ready = ready && err == nil
		} else {
			deps["mongo"] = "memory"
		}
		deps["storage"] = p.storage != nil && p.storage.Ping(ctx) == nil
		if p.cache != nil {
			err := p.cache.Ping(ctx)
			deps["redis"] = err == nil
			if cfg.RateLimit.UseRedis {
				ready = ready && err == nil
			}
		} else if cfg.RateLimit.UseRedis {
			deps["redis"] = false
			ready = false
		}
		status, state := http.StatusOK, "ready"
		if !ready {
			status, state = http.StatusServiceUnavailable, "not_ready"
		}
		c.JSON(status, gin.H{"success": ready, "status": state, "deps": deps, "uptime": time.Since(startTime).String()})
	}
}
