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

	"github.com/communityconnect/connect/backend/go-services/internal/cache"
	"github.com/communityconnect/connect/backend/go-services/internal/config"
	"github.com/communityconnect/connect/backend/go-services/internal/database"
	"github.com/communityconnect/connect/backend/go-services/internal/media"
	"github.com/communityconnect/connect/backend/go-services/internal/notify"
	"github.com/communityconnect/connect/backend/go-services/internal/oidc"
	"github.com/communityconnect/connect/backend/go-services/internal/report/repository"
	"github.com/communityconnect/connect/backend/go-services/internal/report/service"
	"github.com/communityconnect/connect/backend/go-services/internal/storage"
	"github.com/communityconnect/connect/backend/go-services/internal/users"
	"github.com/communityconnect/connect/backend/go-services/pkg/logger"
	"github.com/communityconnect/connect/backend/go-services/pkg/metrics"
	"github.com/communityconnect/connect/backend/go-services/pkg/response"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
)

func main() {
	// LOG_LEVEL: debug|info|warn|error|fatal
	logger.Init(os.Getenv("LOG_LEVEL"))
	logger.Debugf("startup: LOG_LEVEL=%s", logger.LevelString())

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	response.SetDevelopment(cfg.Server.IsDevelopment())
	if !cfg.Server.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
		logger.SetJSON(true)
	}
	logger.Infof("config loaded: env=%s mongo=%v redis=%v mail=%v storage=%v oidc=%v",
		cfg.Server.Environment, cfg.MongoDB.URI != "", cfg.Redis.Host != "",
		cfg.Mail.Configured(), cfg.Storage.Endpoint != "", cfg.OIDC.Issuer != "")

	ctx := context.Background()

	// Redis backs the distributed rate limiter and the admin stats cache.
	var rdb *redis.Client
	if client := cache.NewClient(cfg.Redis); client != nil {
		pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := client.Ping(pctx).Err(); err != nil {
			logger.Warnf("failed to connect to Redis (%s:%s): %v", cfg.Redis.Host, cfg.Redis.Port, err)
			_ = client.Close()
		} else {
			rdb = client
			logger.Infof("connected to Redis %s:%s", cfg.Redis.Host, cfg.Redis.Port)
		}
		cancel()
	}

	// MongoDB holds users and reports; without it both live in memory.
	var (
		mongoClient *mongo.Client
		userRepo    users.UserRepository  = users.NewMemoryRepo()
		reportRepo  repository.Repository = repository.NewMemoryRepo()
	)
	if cfg.MongoDB.URI != "" {
		client, err := database.ConnectWithRetry(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout, 5, time.Second)
		if err != nil {
			logger.Warnf("could not connect to MongoDB, using in-memory stores: %v", err)
		} else {
			mongoClient = client
			db := client.Database(cfg.MongoDB.Database)
			ur := users.NewMongoUserRepository(db.Collection("users"))
			rr := repository.NewMongoRepo(db.Collection("reports"))
			ictx, cancel := context.WithTimeout(ctx, cfg.MongoDB.Timeout)
			if err := ur.EnsureIndexes(ictx); err != nil {
				logger.Warnf("user indexes: %v", err)
			}
			if err := rr.EnsureIndexes(ictx); err != nil {
				logger.Warnf("report indexes: %v", err)
			}
			cancel()
			userRepo, reportRepo = ur, rr
			logger.Infof("connected to MongoDB database %s", cfg.MongoDB.Database)
		}
	}

	// Image storage. A nil Storage leaves uploads soft-failing.
	var (
		objects media.Storage
		minio   *storage.MinIOStorage
	)
	if mc := storage.FromConfig(cfg.Storage); mc != nil {
		st, err := storage.NewMinIOStorage(ctx, mc)
		if err != nil {
			logger.Warnf("image storage unavailable: %v", err)
		} else {
			objects, minio = st, st
			logger.Infof("image storage ready: %s/%s", mc.Endpoint, mc.Bucket)
		}
	}
	attachments := media.NewManager(objects)

	var mailer notify.Mailer
	smtp, err := notify.NewSMTPMailer(cfg.Mail)
	if err != nil {
		logger.Warnf("mail channel disabled: %v", err)
	} else if smtp != nil {
		vctx, cancel := context.WithTimeout(ctx, cfg.Mail.Timeout)
		if err := smtp.Verify(vctx); err != nil {
			logger.Warnf("mail server not reachable yet, failed sends will be simulated: %v", err)
		} else {
			logger.Infof("mail channel ready via %s:%d", cfg.Mail.Host, cfg.Mail.Port)
		}
		cancel()
		mailer = smtp
	}

	userSvc := users.NewService(userRepo)
	dispatcher := notify.NewDispatcher(mailer, userSvc, cfg.ClientURL)
	reportSvc := service.New(reportRepo, userSvc, attachments, dispatcher)
	verifier := oidc.FromConfig(ctx, cfg.OIDC)

	var statsCache *cache.Cache
	if rdb != nil {
		statsCache = cache.New(rdb, "cache:")
	}

	metrics.RegisterCollectors(prometheus.DefaultRegisterer)

	r := setupRouter(cfg, routeDeps{
		users:    userSvc,
		reports:  reportSvc,
		verifier: verifier,
		cache:    statsCache,
		redis:    rdb,
		ready: readiness(cfg, readyChecks{
			mongo:   mongoClient,
			storage: minio,
			cache:   statsCache,
			mailer:  mailer,
		}),
	})

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		logger.Infof("Community Connect API listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.Infof("received %s, shutting down", sig)

	sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		logger.Errorf("server shutdown: %v", err)
	}
	// let in-flight notifications finish before dropping the stores
	drained := make(chan struct{})
	go func() {
		dispatcher.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-sctx.Done():
		logger.Warnf("shutdown: notifications still in flight, giving up")
	}
	if mongoClient != nil {
		dctx, dcancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = mongoClient.Disconnect(dctx)
		dcancel()
	}
	if rdb != nil {
		_ = rdb.Close()
	}
}
