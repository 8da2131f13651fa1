package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/unireg-ph/prereg-api/api/swagger"
	"github.com/unireg-ph/prereg-api/internal/handler"
	"github.com/unireg-ph/prereg-api/internal/repository"
	"github.com/unireg-ph/prereg-api/internal/service"
	"github.com/unireg-ph/prereg-api/pkg/cache"
	"github.com/unireg-ph/prereg-api/pkg/config"
	"github.com/unireg-ph/prereg-api/pkg/database"
	"github.com/unireg-ph/prereg-api/pkg/jobs"
	"github.com/unireg-ph/prereg-api/pkg/logger"
	"github.com/unireg-ph/prereg-api/pkg/mailer"
	corsmiddleware "github.com/unireg-ph/prereg-api/pkg/middleware/cors"
	reqidmiddleware "github.com/unireg-ph/prereg-api/pkg/middleware/requestid"
	"github.com/unireg-ph/prereg-api/pkg/realtime"
	"github.com/unireg-ph/prereg-api/pkg/spreadsheet"

	internalmw "github.com/unireg-ph/prereg-api/internal/middleware"
)

// @title Pre-Registration API
// @version 1.0.0
// @description University pre-registration and enrollment-day queueing backend
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect database", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect redis", "error", err)
	}
	defer redisClient.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Repositories.
	userRepo := repository.NewUserRepository(db)
	programRepo := repository.NewProgramRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	scheduleRepo := repository.NewScheduleRepository(db)
	semesterRepo := repository.NewSemesterRepository(db)
	ticketRepo := repository.NewQueueRepository(db)
	counterRepo := repository.NewCounterRepository(db)

	// Services.
	metrics := service.NewMetricsService()
	broadcaster := realtime.NewRedisBroadcaster(redisClient, cfg.Queue.BroadcastChan, logr)

	notifier := service.NewEmailNotifier(mailer.NewSMTP(cfg.Mailer), userRepo, jobs.QueueConfig{
		Workers:    cfg.Notifications.Workers,
		BufferSize: cfg.Notifications.BufferSize,
		MaxRetries: cfg.Notifications.MaxRetries,
		RetryDelay: cfg.Notifications.RetryDelay,
	}, logr)
	notifier.Start(ctx)
	defer notifier.Stop()

	authService := service.NewAuthService(userRepo, cfg.JWT, nil, logr)
	userService := service.NewUserService(userRepo, notifier, nil, logr)
	programService := service.NewProgramService(programRepo, nil, logr)
	courseService := service.NewCourseService(courseRepo, programRepo, nil, logr)
	codeGenerator := service.NewCodeGenerator(counterRepo, semesterRepo, nil, logr)
	scheduleService := service.NewScheduleService(scheduleRepo, courseRepo, codeGenerator, nil, logr)
	semesterService := service.NewSemesterService(semesterRepo, logr)
	eligibilityService := service.NewEligibilityService(userRepo, courseRepo, semesterRepo, notifier, nil, logr)
	queueService := service.NewQueueService(ticketRepo, counterRepo, userRepo, broadcaster, metrics,
		cfg.Queue.Destinations, cfg.Queue.ServiceMinutes, nil, logr)
	importService := service.NewImportService(spreadsheet.NewReader(), courseRepo, scheduleRepo, userRepo,
		programRepo, codeGenerator, eligibilityService, notifier, logr)
	exportService := service.NewExportService(queueService, courseRepo, userRepo, logr)

	// Nightly sweep of stale terminal tickets.
	var scheduler *cron.Cron
	if cfg.Maintenance.Enabled {
		scheduler = cron.New()
		_, err := scheduler.AddFunc(cfg.Maintenance.ArchiveCron, func() {
			sweepCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			archived, err := queueService.ArchiveStale(sweepCtx, cfg.Maintenance.SweepMaxAge)
			if err != nil {
				logr.Warn("ticket sweep failed", zap.Error(err))
				return
			}
			logr.Info("ticket sweep finished", zap.Int64("archived", archived))
		})
		if err != nil {
			logr.Sugar().Fatalw("failed to schedule ticket sweep", "error", err)
		}
		scheduler.Start()
		defer scheduler.Stop()
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmw.Metrics(metrics))

	handler.Register(r, cfg.APIPrefix, authService, handler.Handlers{
		Auth:       handler.NewAuthHandler(authService),
		Users:      handler.NewUserHandler(userService),
		Programs:   handler.NewProgramHandler(programService),
		Courses:    handler.NewCourseHandler(courseService),
		Schedules:  handler.NewScheduleHandler(scheduleService),
		Semesters:  handler.NewSemesterHandler(semesterService),
		Enrollment: handler.NewEnrollmentHandler(eligibilityService),
		Queue:      handler.NewQueueHandler(queueService),
		Imports:    handler.NewImportHandler(importService, cfg.Imports.MaxFileSizeBytes),
		Exports:    handler.NewExportHandler(exportService),
		Metrics:    handler.NewMetricsHandler(metrics),
	})

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
