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

	"github.com/kennangle/studio-insights-api/internal/handler"
	"github.com/kennangle/studio-insights-api/internal/importer"
	"github.com/kennangle/studio-insights-api/internal/middleware"
	"github.com/kennangle/studio-insights-api/internal/mindbody"
	"github.com/kennangle/studio-insights-api/internal/repository"
	"github.com/kennangle/studio-insights-api/internal/service"
	"github.com/kennangle/studio-insights-api/pkg/cache"
	"github.com/kennangle/studio-insights-api/pkg/config"
	"github.com/kennangle/studio-insights-api/pkg/database"
	"github.com/kennangle/studio-insights-api/pkg/logger"
	corsmiddleware "github.com/kennangle/studio-insights-api/pkg/middleware/cors"
	reqidmiddleware "github.com/kennangle/studio-insights-api/pkg/middleware/requestid"
)

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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, quota telemetry disabled", "error", err)
		redisClient = nil
	}

	jobRepo := repository.NewImportJobRepository(db)
	skippedRepo := repository.NewSkippedRecordRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	classRepo := repository.NewClassRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)
	revenueRepo := repository.NewRevenueRepository(db)
	quotaRepo := repository.NewQuotaRepository(redisClient)

	mbClient := mindbody.NewClient(cfg.Mindbody, logr)
	metricsSvc := service.NewMetricsService()

	worker := importer.NewWorker(
		jobRepo, studentRepo, classRepo, attendanceRepo, revenueRepo, skippedRepo,
		mbClient, quotaRepo, metricsSvc, cfg.Import, logr)

	importSvc := service.NewImportService(jobRepo, skippedRepo, quotaRepo, worker, cfg.Import, logr)

	watchdog := importer.NewWatchdog(jobRepo, metricsSvc, cfg.Import.WatchdogInterval, cfg.Import.StaleThreshold, logr)
	scheduler := importer.NewScheduler(cfg.Scheduler, importSvc, logr)

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The worker runs off its own context so the shutdown signal does not
	// abort an in-flight page before HTTP has drained.
	workerCtx, stopWorker := context.WithCancel(context.Background())
	defer stopWorker()

	worker.Start(workerCtx)
	if err := worker.Recover(rootCtx); err != nil {
		logr.Sugar().Warnw("startup job recovery failed", "error", err)
	}
	watchdog.Start(rootCtx)
	if err := scheduler.Start(); err != nil {
		logr.Sugar().Fatalw("failed to start scheduler", "error", err)
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

	api := r.Group(cfg.APIPrefix)
	handler.NewImportHandler(importSvc).RegisterRoutes(api)

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

	<-rootCtx.Done()
	logr.Sugar().Infow("shutdown signal received")

	// Drain HTTP first, then cancel the worker run context; the in-flight
	// job stops at its next page boundary with the checkpoint persisted and
	// is re-enqueued by Recover on the next start.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Warnw("http shutdown incomplete", "error", err)
	}
	scheduler.Stop()
	stopWorker()
	worker.Stop()
	logr.Sugar().Infow("shutdown complete")
}
