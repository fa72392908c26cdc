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

	"github.com/evimparca-cloud/stock-sub001/config"
	"github.com/evimparca-cloud/stock-sub001/internal/api"
	"github.com/evimparca-cloud/stock-sub001/internal/broker"
	"github.com/evimparca-cloud/stock-sub001/internal/matcher"
	"github.com/evimparca-cloud/stock-sub001/internal/redisclient"
	"github.com/evimparca-cloud/stock-sub001/internal/scheduler"
	"github.com/evimparca-cloud/stock-sub001/internal/service"
	"github.com/evimparca-cloud/stock-sub001/internal/store"
	"github.com/evimparca-cloud/stock-sub001/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting stock sync service")

	tp, err := util.InitTracer("stock-sync", cfg.Observ.JaegerEndpoint)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
	}()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Database connected")

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	log.Println("Redis connected")

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicNotifications)
	defer producer.Close()
	log.Println("Kafka producer initialized")

	notifier := broker.NewKafkaNotifier(producer)

	productMatcher := matcher.NewMatcher(db)
	ingestService := service.NewIngestService(db, productMatcher, notifier, redisClient, cfg.Business.LowStockThreshold)
	webhookService := service.NewWebhookService(db, ingestService, redisClient)

	marketplaceClient := service.NewHTTPMarketplaceClient(cfg.Marketplace.APIBaseURL)
	pollService := service.NewPollService(marketplaceClient, ingestService, redisClient)

	poller := scheduler.New(
		time.Duration(cfg.Business.PollIntervalSeconds)*time.Second,
		cfg.Business.PollStatuses,
		func(ctx context.Context, marketplaceID, remoteStatus string) {
			if _, err := pollService.SyncByStatus(ctx, marketplaceID, remoteStatus); err != nil {
				logger.Warn("Scheduled sync failed",
					zap.String("marketplace_id", marketplaceID),
					zap.String("status", remoteStatus),
					zap.Error(err))
			}
		},
	)
	defer poller.StopAll()

	for _, marketplaceID := range cfg.Marketplace.AutoPoll {
		if err := poller.Start(marketplaceID); err != nil {
			logger.Warn("Failed to start poller", zap.String("marketplace_id", marketplaceID), zap.Error(err))
		}
	}

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(webhookService, pollService, ingestService, db, redisClient, poller)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	poller.StopAll()

	log.Println("Server exited")
}
