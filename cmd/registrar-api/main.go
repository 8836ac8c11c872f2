package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/fasch-registrar-api/api/swagger"
	"github.com/noah-isme/fasch-registrar-api/internal/bootstrap"
	"github.com/noah-isme/fasch-registrar-api/internal/handler"
	"github.com/noah-isme/fasch-registrar-api/internal/middleware"
	"github.com/noah-isme/fasch-registrar-api/internal/router"
	"github.com/noah-isme/fasch-registrar-api/pkg/cache"
	"github.com/noah-isme/fasch-registrar-api/pkg/config"
	"github.com/noah-isme/fasch-registrar-api/pkg/database"
	"github.com/noah-isme/fasch-registrar-api/pkg/events"
	"github.com/noah-isme/fasch-registrar-api/pkg/jobs"
	"github.com/noah-isme/fasch-registrar-api/pkg/logger"
	"github.com/noah-isme/fasch-registrar-api/pkg/mailer"
	corsmiddleware "github.com/noah-isme/fasch-registrar-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/fasch-registrar-api/pkg/middleware/requestid"
)

// @title FASCH Registrar API
// @version 1.0.0
// @description Course catalog, enrollment, grading, transcripts and admissions for FASCH.
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg, "registrar-api")
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Fatal("failed to connect to redis", zap.Error(err))
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	var publisher events.Publisher = events.NopPublisher{}
	natsConn, err := events.Connect(cfg.NATS, logr)
	if err != nil {
		logr.Fatal("failed to connect to nats", zap.Error(err))
	}
	if natsConn != nil {
		defer natsConn.Drain() //nolint:errcheck
		publisher = events.NewNATSPublisher(natsConn, cfg.NATS.SubjectPrefix)
	}

	queue := jobs.NewQueue("notifications", jobs.QueueConfig{
		Workers:    cfg.Notifications.Workers,
		BufferSize: cfg.Notifications.BufferSize,
		MaxRetries: cfg.Notifications.MaxRetries,
		RetryDelay: cfg.Notifications.RetryDelay,
		Logger:     logr,
		OnDiscard: func(job jobs.Job, err error) {
			logr.Error("notification job discarded", zap.String("job_id", job.ID), zap.String("type", job.Type), zap.Error(err))
		},
	})

	svc := bootstrap.New(cfg, bootstrap.Infrastructure{
		DB:        db,
		Redis:     redisClient,
		Publisher: publisher,
		Queue:     queue,
		Mailer:    mailer.New(cfg.Mail, logr),
	}, logr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	queue.Start(ctx)
	defer queue.Stop()

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(svc.Metrics))

	checks := map[string]handler.Pinger{"database": db.PingContext}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}
	metricsHandler := handler.NewMetricsHandler(svc.Metrics, checks)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	router.Register(r, cfg.APIPrefix, router.Dependencies{
		Auth:          handler.NewAuthHandler(svc.Auth),
		Users:         handler.NewUserHandler(svc.Users, svc.Profiles),
		Catalog:       handler.NewCatalogHandler(svc.Catalog),
		Enrollments:   handler.NewEnrollmentHandler(svc.Enrollments),
		Grades:        handler.NewGradeHandler(svc.Grades),
		Transcripts:   handler.NewTranscriptHandler(svc.Transcripts),
		Notifications: handler.NewNotificationHandler(svc.Notifications),
		Candidatures:  handler.NewCandidatureHandler(svc.Candidatures),
		JWT:           middleware.JWT(svc.Auth),
		Audit: func(resource string) gin.HandlerFunc {
			return middleware.Audit(svc.Repos.Users, logr, resource)
		},
	}, logr)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
	logr.Info("server stopped")
}
