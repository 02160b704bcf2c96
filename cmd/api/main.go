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
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/wildpark/pointwatch-api/api/swagger"
	"github.com/wildpark/pointwatch-api/internal/handler"
	"github.com/wildpark/pointwatch-api/internal/middleware"
	"github.com/wildpark/pointwatch-api/internal/models"
	"github.com/wildpark/pointwatch-api/internal/repository"
	"github.com/wildpark/pointwatch-api/internal/service"
	"github.com/wildpark/pointwatch-api/pkg/cache"
	"github.com/wildpark/pointwatch-api/pkg/config"
	"github.com/wildpark/pointwatch-api/pkg/database"
	"github.com/wildpark/pointwatch-api/pkg/logger"
	"github.com/wildpark/pointwatch-api/pkg/mailer"
	corsmiddleware "github.com/wildpark/pointwatch-api/pkg/middleware/cors"
	reqidmiddleware "github.com/wildpark/pointwatch-api/pkg/middleware/requestid"
	"github.com/wildpark/pointwatch-api/pkg/realtime"
	"github.com/wildpark/pointwatch-api/pkg/storage"
)

// @title PointWatch API
// @version 1.0.0
// @description Term clearance and SWTD point reconciliation engine
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	validate := validator.New()

	// Repositories.
	userRepo := repository.NewUserRepository(db)
	departmentRepo := repository.NewDepartmentRepository(db)
	termRepo := repository.NewTermRepository(db)
	swtdRepo := repository.NewSWTDRepository(db)
	swtdCommentRepo := repository.NewSWTDCommentRepository(db)
	clearingRepo := repository.NewClearingRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	metricsSvc := service.NewMetricsService()

	// Redis is optional; without it the cache layer reports misses and
	// every read goes to postgres.
	var cacheSvc *service.CacheService
	if cfg.Cache.Enabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer redisClient.Close()
		cacheSvc = service.NewCacheService(repository.NewRedisCacheRepository(redisClient), metricsSvc, cfg.Cache.TTL, logr, true)
	} else {
		cacheSvc = service.NewCacheService(nil, metricsSvc, cfg.Cache.TTL, logr, false)
	}

	mailSender := mailer.NewSMTPSender(cfg.Mail, logr)
	hub := realtime.NewHub(cfg.Realtime.WriteTimeout, logr)

	// Services.
	summarySvc := service.NewSummaryService(swtdRepo, departmentRepo, logr)
	notificationSvc := service.NewNotificationService(notificationRepo, hub, mailSender, logr)
	clearanceSvc := service.NewClearanceService(clearingRepo, userRepo, termRepo, summarySvc, notificationSvc, metricsSvc, logr)
	swtdSvc := service.NewSWTDService(swtdRepo, swtdCommentRepo, userRepo, termRepo, notificationSvc, metricsSvc, validate, logr)
	authSvc := service.NewAuthService(userRepo, mailSender, cfg.JWT, validate, logr)
	userSvc := service.NewUserService(userRepo, validate, logr)
	departmentSvc := service.NewDepartmentService(departmentRepo, cacheSvc, validate, logr)
	termSvc := service.NewTermService(termRepo, cacheSvc, validate, logr)

	var reportSvc *service.ReportService
	if cfg.Reports.Enabled {
		store, err := storage.NewLocalStorage(cfg.Reports.StorageDir)
		if err != nil {
			logr.Fatal("failed to init report storage", zap.Error(err))
		}
		signer := storage.NewSignedURLSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL)
		reportSvc = service.NewReportService(swtdRepo, userRepo, termRepo, summarySvc, store, signer, cfg.Reports.WorkerConcurrency, cfg.Reports.WorkerRetries, logr)
		reportSvc.Start(ctx)
		defer reportSvc.Stop()
	}

	// Handlers.
	authHandler := handler.NewAuthHandler(authSvc)
	userHandler := handler.NewUserHandler(userSvc, clearanceSvc)
	departmentHandler := handler.NewDepartmentHandler(departmentSvc)
	termHandler := handler.NewTermHandler(termSvc)
	swtdHandler := handler.NewSWTDHandler(swtdSvc)
	clearanceHandler := handler.NewClearanceHandler(clearanceSvc)
	notificationHandler := handler.NewNotificationHandler(notificationSvc, hub, cfg.Realtime.MaxMessageBytes, logr)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	api.POST("/auth/login", authHandler.Login)
	api.POST("/auth/recovery", authHandler.RequestRecovery)
	api.POST("/auth/reset", authHandler.ResetPassword)

	authed := api.Group("", middleware.JWT(authSvc, userRepo))

	authed.GET("/auth/me", authHandler.Me)
	authed.POST("/auth/refresh", authHandler.Refresh)
	authed.PUT("/auth/password", authHandler.ChangePassword)

	authed.GET("/users", middleware.RequireLevel(models.AccessHead), userHandler.List)
	authed.POST("/users", middleware.RequireLevel(models.AccessStaff), userHandler.Create)
	authed.GET("/users/:id", middleware.RequireLevelOrSelf(models.AccessHead), userHandler.Get)
	authed.PUT("/users/:id", middleware.RequireLevelOrSelf(models.AccessStaff), userHandler.Update)
	authed.DELETE("/users/:id", middleware.RequireLevel(models.AccessStaff), userHandler.Delete)
	authed.GET("/users/:id/points", middleware.RequireLevelOrSelf(models.AccessHead), userHandler.PointBalance)
	authed.GET("/users/:id/terms/:termId/summary", userHandler.TermSummary)
	authed.POST("/users/:id/clearances/:termId", middleware.RequireLevel(models.AccessHead), clearanceHandler.Grant)
	authed.DELETE("/users/:id/clearances/:termId", middleware.RequireLevel(models.AccessHead), clearanceHandler.Revoke)

	authed.GET("/departments", departmentHandler.List)
	authed.GET("/departments/:id", departmentHandler.Get)
	authed.GET("/departments/:id/members", middleware.RequireLevel(models.AccessHead), departmentHandler.Members)
	authed.POST("/departments", middleware.RequireLevel(models.AccessStaff), departmentHandler.Create)
	authed.PUT("/departments/:id", middleware.RequireLevel(models.AccessStaff), departmentHandler.Update)
	authed.DELETE("/departments/:id", middleware.RequireLevel(models.AccessStaff), departmentHandler.Delete)

	authed.GET("/terms", termHandler.List)
	authed.GET("/terms/:id", termHandler.Get)
	authed.POST("/terms", middleware.RequireLevel(models.AccessStaff), termHandler.Create)
	authed.PUT("/terms/:id", middleware.RequireLevel(models.AccessStaff), termHandler.Update)
	authed.DELETE("/terms/:id", middleware.RequireLevel(models.AccessStaff), termHandler.Delete)
	authed.GET("/terms/:id/clearances", middleware.RequireLevel(models.AccessHead), clearanceHandler.ListByTerm)

	authed.GET("/swtds", swtdHandler.List)
	authed.POST("/swtds", swtdHandler.Create)
	authed.GET("/swtds/:id", swtdHandler.Get)
	authed.PUT("/swtds/:id", swtdHandler.Update)
	authed.DELETE("/swtds/:id", swtdHandler.Delete)
	authed.PUT("/swtds/:id/validation", middleware.RequireLevel(models.AccessHead), swtdHandler.Validate)
	authed.GET("/swtds/:id/comments", swtdHandler.ListComments)
	authed.POST("/swtds/:id/comments", swtdHandler.AddComment)
	authed.PUT("/swtds/:id/comments/:commentId", swtdHandler.UpdateComment)
	authed.DELETE("/swtds/:id/comments/:commentId", swtdHandler.DeleteComment)

	authed.GET("/notifications", notificationHandler.List)
	authed.PUT("/notifications/:id/viewed", notificationHandler.MarkViewed)
	if cfg.Realtime.Enabled {
		authed.GET("/notifications/subscribe", notificationHandler.Subscribe)
	}

	if reportSvc != nil {
		reportHandler := handler.NewReportHandler(reportSvc)
		authed.POST("/reports", reportHandler.Enqueue)
		authed.GET("/reports/:id", reportHandler.Status)
		// Download URLs carry their own signed token, no session required.
		r.GET("/reports/download", reportHandler.Download)
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("forced shutdown", zap.Error(err))
	}
}
