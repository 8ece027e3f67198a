package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"noticeboard/config"
	"noticeboard/internal/handler"
	"noticeboard/internal/httpserver"
	"noticeboard/internal/repository"
	"noticeboard/internal/service/announce"
	"noticeboard/internal/service/dispatch"
	"noticeboard/internal/service/notice"
	"noticeboard/pkg/db"
	"noticeboard/pkg/logger"
	"noticeboard/pkg/mq"
	"noticeboard/pkg/redis"
)

func main() {
	cfg := config.Load()

	log := logger.NewLogger()
	defer log.Sync()

	log.Info("Starting noticeboard api...",
		zap.String("db_host", cfg.DB.Host),
		zap.Int("db_port", cfg.DB.Port),
		zap.String("mq_url", cfg.MQ.URL),
	)

	dbConn, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		log.Fatal("Failed to init DB", zap.Error(err))
	}
	defer dbConn.Close()

	rdb := redis.NewClient(cfg.Redis)
	defer rdb.Close()

	publisher, err := mq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		log.Fatal("Failed to init MQ publisher", zap.Error(err))
	}
	defer publisher.Close()

	// Repositories
	notificationRepo := repository.NewNotificationRepository(dbConn, log)
	announcementRepo := repository.NewAnnouncementRepository(dbConn, log)
	batchRepo := repository.NewBatchRepository(dbConn, log)
	userRepo := repository.NewUserRepository(dbConn, log)
	noticeRepo := repository.NewNoticeRepository(dbConn, log)

	// Services
	announceSvc := announce.NewService(dbConn, notificationRepo, announcementRepo, batchRepo, log)
	dispatchSvc := dispatch.NewService(dbConn, announcementRepo, userRepo, batchRepo, publisher, rdb, log)
	noticeSvc := notice.NewService(noticeRepo, notificationRepo, log)

	// Handlers
	validate := validator.New()
	announcementHandler := handler.NewAnnouncementHandler(announceSvc, dispatchSvc, validate, log)
	noticeHandler := handler.NewNoticeHandler(noticeSvc, log)

	router := httpserver.NewRouter(announcementHandler, noticeHandler, cfg.JWT.Secret, dbConn)

	port := cfg.Server.Port
	if port == "" {
		port = "8080"
	}
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: router.Engine,
	}

	go func() {
		log.Info("HTTP server starting", zap.String("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down noticeboard api gracefully...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}

	log.Info("noticeboard api shutdown complete")
}
