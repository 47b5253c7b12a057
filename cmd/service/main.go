package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fulfillment-service/config"
	"fulfillment-service/internal/cache"
	"fulfillment-service/internal/models"
	"fulfillment-service/internal/outbox"
	"fulfillment-service/internal/payment"
	"fulfillment-service/internal/periodic"
	"fulfillment-service/internal/producer"
	"fulfillment-service/internal/repository"
	"fulfillment-service/internal/service"
	"fulfillment-service/internal/token"
	gtransport "fulfillment-service/internal/transport/grpc"
	"fulfillment-service/internal/transport/http/router"
	"fulfillment-service/pkg/database"
	"fulfillment-service/pkg/logger"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()
	isDev := os.Getenv("ENV") == "development"
	if err := logger.Init(isDev); err != nil {
		panic(err)
	}

	defer logger.Sync()

	log := logger.L()

	cfg := config.Load(log)
	db := database.ConnectDB(&cfg.DB.Config, log)
	defer database.CloseDB(db, log)

	repos := repository.New(db)

	var (
		locator service.RiderLocator = cache.NewSQLRiderLocator(repos.Riders)
		locker  service.Locker
	)
	if cfg.Redis.Enabled {
		rc, err := cache.NewRedisClient(context.Background(), cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, log)
		if err != nil {
			log.Warn("redis unavailable, falling back to SQL rider search", zap.Error(err))
		} else {
			defer rc.Close()
			geo := cache.NewRiderGeoIndex(rc, repos.Riders, log)
			if _, err := geo.Seed(context.Background()); err != nil {
				log.Warn("rider geo seed failed", zap.Error(err))
			}
			locator = geo
			locker = rc
		}
	}

	var notifier service.Notifier = producer.NewLogNotifier(log)
	if len(cfg.Kafka.Brokers) > 0 {
		kn := producer.NewKafkaNotifier(cfg.Kafka.Brokers, cfg.Kafka.NotificationsTopic, cfg.Kafka.TrackingTopic)
		defer kn.Close()
		notifier = kn
	}

	dispatchOpts := service.DefaultDispatchOptions()
	dispatchOpts.RadiusKm = cfg.Dispatch.RadiusKm
	dispatchOpts.TopN = cfg.Dispatch.TopN
	dispatchOpts.RetryThreshold = cfg.Dispatch.RetryThreshold
	dispatcher := service.NewDispatcher(repos, locator, locker, dispatchOpts, log)

	ledger := service.NewLedger(repos, log)
	svc := service.NewFulfillmentService(repos, ledger, dispatcher, notifier, locator, service.Options{
		TaxRate:     cfg.Orders.TaxRate,
		CancelGrace: cfg.Orders.CancelGrace,
	}, log)

	gateway := payment.NewHTTPGateway(cfg.Payment.BaseURL, cfg.Payment.APIKey, cfg.Payment.Timeout)
	jobs := outbox.NewDispatcher(repos, log, cfg.Outbox.MaxAttempts)
	jobs.Handle(models.JobKindRefund, outbox.RefundHandler(repos, gateway, log))
	jobs.Handle(models.JobKindNotify, outbox.NotifyHandler(notifier))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	scheduler := periodic.NewScheduler(dispatcher, jobs, ledger, periodic.Intervals{
		RetrySweep:  cfg.Dispatch.RetryInterval,
		OutboxPoll:  cfg.Outbox.PollInterval,
		LedgerAudit: cfg.Ledger.AuditInterval,
	}, log)
	scheduler.Start(ctx)

	pinger := database.Pinger{DB: db}

	grpcServer, healthSrv := gtransport.NewServer(log)
	go gtransport.WatchHealth(ctx, healthSrv, pinger, 10*time.Second, log)

	lis, err := net.Listen("tcp", cfg.GRPCPort)
	if err != nil {
		log.Fatal("failed to listen", zap.Error(err))
	}
	go func() {
		log.Info("Starting gRPC health server", zap.String("addr", cfg.GRPCPort))
		if err := grpcServer.Serve(lis); err != nil {
			log.Fatal("gRPC server failed", zap.Error(err))
		}
	}()

	httpServer := &http.Server{
		Addr: cfg.Port,
		Handler: router.Router(router.Deps{
			Service:       svc,
			Tokens:        token.NewHSProvider(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.Audience),
			WebhookSecret: cfg.Webhook.Secret,
			Health:        pinger,
		}, log),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info("Starting HTTP server", zap.String("addr", cfg.Port))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down fulfillment service...")
	scheduler.Stop()
	cancel()

	shutdownCtx, done := context.WithTimeout(context.Background(), 15*time.Second)
	defer done()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP shutdown failed", zap.Error(err))
	}
	grpcServer.GracefulStop()
	log.Info("Fulfillment service stopped gracefully")
}
