package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"milestone-service/contracts/mq"
	"milestone-service/internal/client"
	"milestone-service/internal/config"
	"milestone-service/internal/mqhandler"
	"milestone-service/internal/repository"
	"milestone-service/internal/service/lifecycle"
	"milestone-service/internal/service/report"
	"milestone-service/internal/service/sweep"
	"milestone-service/pkg/db"
	"milestone-service/pkg/logger"
	"milestone-service/pkg/outbox"
	"milestone-service/pkg/redis"
	"milestone-service/pkg/util"

	pkgmq "milestone-service/pkg/mq"
)

func main() {
	cfg := config.Load()

	log := logger.NewLogger()
	defer log.Sync()

	log.Info("Starting milestone-service sweeper...",
		zap.String("db_host", cfg.DB.Host),
		zap.Int("db_port", cfg.DB.Port),
		zap.String("mq_url", cfg.MQ.URL),
		zap.Int("sweep_interval_minutes", cfg.Sweep.IntervalMinutes),
		zap.Int("approval_sla_hours", cfg.Sweep.ApprovalSLAHours),
	)

	// DB
	dbConn, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		log.Fatal("Failed to init DB", zap.Error(err))
	}
	defer dbConn.Close()
	log.Info("Database connection established successfully")

	// Redis
	rdb := redis.NewClient(cfg.Redis)
	defer rdb.Close()

	// MQ Publisher
	publisher, err := pkgmq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		log.Fatal("Failed to init MQ publisher", zap.Error(err))
	}
	defer publisher.Close()

	// Repositories and services
	milestoneRepo := repository.NewMilestoneRepository(dbConn, log)
	reportRepo := repository.NewReportRepository(dbConn, log)
	extensionRepo := repository.NewExtensionRepository(dbConn, log)
	outboxRepo := outbox.NewRepository(dbConn)
	ledgerRepo := repository.NewLedgerRepository(dbConn, outboxRepo, log)

	signer := util.NewServiceTokenSigner(
		cfg.ServiceToken.Secret,
		cfg.ServiceToken.Issuer,
		time.Duration(cfg.ServiceToken.TTLMinutes)*time.Minute,
	)
	escrowClient := client.NewEscrowClient(
		cfg.Escrow.BaseURL,
		time.Duration(cfg.Escrow.TimeoutSeconds)*time.Second,
		signer,
	)

	reportWorkflow := report.NewWorkflow(reportRepo, publisher, log)
	lifecycleSvc := lifecycle.NewService(milestoneRepo, reportRepo, extensionRepo, escrowClient, ledgerRepo, publisher, log)

	// Report auto-approval sweep
	lock := util.NewAdvisoryLock(
		rdb,
		"lock:report-sweep",
		time.Duration(cfg.Sweep.LockTTLSeconds)*time.Second,
		log,
	)
	sweeper := sweep.NewSweeper(
		reportRepo,
		reportWorkflow,
		lock,
		time.Duration(cfg.Sweep.ApprovalSLAHours)*time.Hour,
		time.Duration(cfg.Sweep.IntervalMinutes)*time.Minute,
		cfg.Sweep.BatchSize,
		log,
	)

	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	defer sweepCancel()
	go sweeper.Start(sweepCtx)

	// escrow.deposit.confirmed consumer
	deduper := util.NewDeduper(rdb, 24*time.Hour, log)
	depositHandler := mqhandler.NewDepositConfirmedHandler(lifecycleSvc, deduper, log)

	consumer, err := pkgmq.NewConsumer(cfg.MQ.URL, "escrow.deposit.confirmed.q", mq.RoutingKeyDepositConfirmed, log)
	if err != nil {
		log.Fatal("Failed to init deposit consumer", zap.Error(err))
	}
	defer consumer.Close()
	consumer.SetHandler(depositHandler.Handle)

	go func() {
		log.Info("Starting escrow.deposit.confirmed consumer...")
		if err := consumer.StartConsuming(); err != nil {
			log.Fatal("Deposit consumer failed", zap.Error(err))
		}
	}()

	// Health endpoints only; the API surface lives in cmd/server.
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.GET("/readyz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c, 1*time.Second)
		defer cancel()
		if err := dbConn.Ping(ctx); err != nil {
			c.JSON(500, gin.H{"status": "db_not_ready"})
			return
		}
		c.JSON(200, gin.H{"status": "ready"})
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: r,
	}
	go func() {
		log.Info("Health server starting", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Health server failed", zap.Error(err))
		}
	}()

	log.Info("milestone-service sweeper is fully initialized and running")

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down milestone-service sweeper gracefully...")

	sweepCancel()
	consumer.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Health server shutdown error", zap.Error(err))
	}

	publisher.Close()
	dbConn.Close()

	log.Info("milestone-service sweeper shutdown complete")
}
