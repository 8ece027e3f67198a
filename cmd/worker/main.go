package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"noticeboard/config"
	mqcontracts "noticeboard/contracts/mq"
	"noticeboard/internal/mqhandler"
	"noticeboard/internal/repository"
	"noticeboard/internal/service/dispatch"
	"noticeboard/pkg/db"
	"noticeboard/pkg/logger"
	"noticeboard/pkg/mq"
	"noticeboard/pkg/redis"
	"noticeboard/pkg/util"
)

func main() {
	cfg := config.Load()

	log := logger.NewLogger()
	defer log.Sync()

	log.Info("Starting noticeboard worker...",
		zap.String("db_host", cfg.DB.Host),
		zap.String("mq_url", cfg.MQ.URL),
		zap.Int("workers", cfg.Dispatch.Workers),
	)

	dbConn, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		log.Fatal("Failed to init DB", zap.Error(err))
	}
	defer dbConn.Close()

	rdb := redis.NewClient(cfg.Redis)
	defer rdb.Close()

	// Repositories
	notificationRepo := repository.NewNotificationRepository(dbConn, log)
	announcementRepo := repository.NewAnnouncementRepository(dbConn, log)
	batchRepo := repository.NewBatchRepository(dbConn, log)

	dispatcher := dispatch.NewDispatcher(cfg.Dispatch, batchRepo, announcementRepo, notificationRepo, log)
	deduper := util.NewDeduper(rdb, 24*time.Hour, log)
	dispatchHandler := mqhandler.NewDispatchRequestedHandler(dispatcher, deduper, log)

	consumer, err := mq.NewConsumer(cfg.MQ.URL, mqcontracts.DispatchQueue, mqcontracts.DispatchRequestedKey, log)
	if err != nil {
		log.Fatal("Failed to init consumer", zap.Error(err))
	}
	defer consumer.Close()

	consumer.SetHandler(dispatchHandler.Handle)

	go func() {
		log.Info("Starting announcement.dispatch consumer...")
		if err := consumer.StartConsuming(); err != nil {
			log.Fatal("Dispatch consumer failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down noticeboard worker gracefully...")
	consumer.Stop()
	log.Info("noticeboard worker shutdown complete")
}
