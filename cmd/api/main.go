package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/smiict/course-api/api/swagger"
	"github.com/smiict/course-api/internal/gateway"
	"github.com/smiict/course-api/internal/handler"
	"github.com/smiict/course-api/internal/middleware"
	"github.com/smiict/course-api/internal/models"
	"github.com/smiict/course-api/internal/notify"
	"github.com/smiict/course-api/internal/repository"
	"github.com/smiict/course-api/internal/service"
	"github.com/smiict/course-api/pkg/cache"
	"github.com/smiict/course-api/pkg/config"
	"github.com/smiict/course-api/pkg/database"
	"github.com/smiict/course-api/pkg/export"
	"github.com/smiict/course-api/pkg/logger"
	"github.com/smiict/course-api/pkg/mailer"
	corsmiddleware "github.com/smiict/course-api/pkg/middleware/cors"
	reqidmiddleware "github.com/smiict/course-api/pkg/middleware/requestid"
	"github.com/smiict/course-api/pkg/storage"
)

// @title Course Platform API
// @version 1.0.0
// @description Course enrollment, coupons and payments
// @BasePath /api/v1
// @schemes http

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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	files, err := storage.NewLocalStorage(cfg.Uploads.Dir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init upload storage", "error", err)
	}

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	appRepo := repository.NewApplicationRepository(db)
	couponRepo := repository.NewCouponRepository(db)
	messageRepo := repository.NewMessageRepository(db)

	dispatcher := notify.NewDispatcher(
		mailer.NewSMTPMailer(cfg.Mail, logr),
		userRepo,
		cfg.Notify,
		cfg.BaseURL,
		cfg.Institute,
		logr,
	)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	dispatcher.Start(ctx)
	defer dispatcher.Stop()

	var cacheTTL time.Duration
	if cfg.Catalog.CacheEnabled {
		cacheTTL = cfg.Catalog.CacheTTL
	}
	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, catalog cache disabled", "error", err)
		redisClient = nil
	}

	metricsSvc := service.NewMetricsService()
	authSvc := service.NewAuthService(userRepo, dispatcher, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "course-api",
		Audience:           []string{"course-api"},
	})
	courseSvc := service.NewCourseService(courseRepo, redisClient, files, cacheTTL, logr)
	couponSvc := service.NewCouponService(couponRepo, logr)
	applicationSvc := service.NewApplicationService(appRepo, courseRepo, userRepo, dispatcher, export.NewPDFExporter(), cfg.Institute, logr)
	paymentSvc := service.NewPaymentService(appRepo, courseRepo, couponSvc, gateway.NewClient(cfg.Gateway, logr), dispatcher, logr).
		WithMetrics(metricsSvc)
	userSvc := service.NewUserService(userRepo, logr)
	messageSvc := service.NewMessageService(messageRepo, dispatcher, logr)
	reportSvc := service.NewReportService(appRepo, export.NewCSVExporter(), export.NewPDFExporter(), logr)

	authHandler := handler.NewAuthHandler(authSvc)
	courseHandler := handler.NewCourseHandler(courseSvc)
	applicationHandler := handler.NewApplicationHandler(applicationSvc)
	paymentHandler := handler.NewPaymentHandler(paymentSvc)
	couponHandler := handler.NewCouponHandler(couponSvc, courseSvc)
	messageHandler := handler.NewMessageHandler(messageSvc)
	userHandler := handler.NewUserHandler(userSvc)
	reportHandler := handler.NewReportHandler(reportSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

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
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))
	r.Static("/uploads", files.BaseDir())

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/register", authHandler.Register)
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/forgot-password", authHandler.ForgotPassword)
		auth.POST("/reset-password", authHandler.ResetPassword)
	}

	api.GET("/courses", courseHandler.List)
	api.GET("/courses/:id", courseHandler.Get)
	api.POST("/messages", messageHandler.Submit)
	api.GET("/payments/callback", paymentHandler.Callback)

	authed := api.Group("")
	authed.Use(middleware.JWT(authSvc))
	{
		authed.GET("/auth/me", authHandler.Me)
		authed.POST("/auth/logout", authHandler.Logout)
		authed.POST("/auth/change-password", authHandler.ChangePassword)

		authed.POST("/courses/:id/apply", applicationHandler.Apply)
		authed.GET("/applications", applicationHandler.ListOwn)
		authed.GET("/applications/:id", applicationHandler.Get)
		authed.GET("/applications/:id/receipt", applicationHandler.Receipt)

		authed.POST("/payments/initialize", paymentHandler.Initialize)
		authed.GET("/payments/verify/:reference", paymentHandler.Verify)
		authed.POST("/coupons/validate", couponHandler.Validate)
	}

	staff := api.Group("/admin")
	staff.Use(middleware.JWT(authSvc), middleware.RequireRoles(models.RoleAdmin, models.RoleStaff))
	{
		staff.GET("/applications", applicationHandler.List)
		staff.PUT("/applications/:id/review", applicationHandler.Review)
		staff.GET("/messages", messageHandler.List)
		staff.GET("/messages/:id", messageHandler.Get)
		staff.GET("/reports/stats", reportHandler.Stats)
		staff.GET("/reports/payments", reportHandler.PaymentsExport)
	}

	admin := api.Group("/admin")
	admin.Use(middleware.JWT(authSvc), middleware.RequireRoles(models.RoleAdmin))
	{
		admin.POST("/courses", courseHandler.Create)
		admin.PUT("/courses/:id", courseHandler.Update)
		admin.DELETE("/courses/:id", courseHandler.Delete)
		admin.POST("/courses/:id/image", courseHandler.UploadImage)

		admin.GET("/coupons", couponHandler.List)
		admin.POST("/coupons", couponHandler.Create)
		admin.GET("/coupons/:id", couponHandler.Get)
		admin.PUT("/coupons/:id", couponHandler.Update)
		admin.PUT("/coupons/:id/toggle", couponHandler.Toggle)
		admin.DELETE("/coupons/:id", couponHandler.Delete)

		admin.GET("/users", userHandler.List)
		admin.GET("/users/:id", userHandler.Get)
		admin.PUT("/users/:id/approve", userHandler.Approve)
		admin.DELETE("/users/:id/reject", userHandler.Reject)
		admin.PUT("/users/:id/active", userHandler.SetActive)
		admin.DELETE("/users/:id", userHandler.Delete)

		admin.DELETE("/messages/:id", messageHandler.Delete)
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
