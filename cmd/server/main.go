package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"milestone-service/internal/client"
	"milestone-service/internal/config"
	"milestone-service/internal/handler"
	"milestone-service/internal/httpserver"
	"milestone-service/internal/repository"
	"milestone-service/internal/service/allocation"
	"milestone-service/internal/service/ledger"
	"milestone-service/internal/service/lifecycle"
	"milestone-service/internal/service/report"
	"milestone-service/pkg/db"
	"milestone-service/pkg/logger"
	"milestone-service/pkg/mq"
	"milestone-service/pkg/outbox"
	"milestone-service/pkg/util"
)

func main() {
	cfg := config.Load()

	log := logger.NewLogger()
	defer log.Sync()

	log.Info("Starting milestone-service API...",
		zap.String("db_host", cfg.DB.Host),
		zap.Int("db_port", cfg.DB.Port),
		zap.String("mq_url", cfg.MQ.URL),
	)

	// DB
	dbConn, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		log.Fatal("Failed to init DB", zap.Error(err))
	}
	defer dbConn.Close()
	log.Info("Database connection established successfully")

	// MQ Publisher
	publisher, err := mq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		log.Fatal("Failed to init MQ publisher", zap.Error(err))
	}
	defer publisher.Close()

	// Repositories
	milestoneRepo := repository.NewMilestoneRepository(dbConn, log)
	reportRepo := repository.NewReportRepository(dbConn, log)
	extensionRepo := repository.NewExtensionRepository(dbConn, log)
	disbursementRepo := repository.NewDisbursementRepository(dbConn, log)
	allocationRepo := repository.NewAllocationRepository(dbConn, log)
	outboxRepo := outbox.NewRepository(dbConn)
	ledgerRepo := repository.NewLedgerRepository(dbConn, outboxRepo, log)

	// Collaborator clients
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
	identityClient := client.NewIdentityClient(
		cfg.Identity.BaseURL,
		time.Duration(cfg.Identity.TimeoutSeconds)*time.Second,
		signer,
	)

	// Services
	reportWorkflow := report.NewWorkflow(reportRepo, publisher, log)
	lifecycleSvc := lifecycle.NewService(milestoneRepo, reportRepo, extensionRepo, escrowClient, ledgerRepo, publisher, log)
	ledgerSvc := ledger.NewService(milestoneRepo, disbursementRepo, ledgerRepo, identityClient, log)
	allocationSvc := allocation.NewService(disbursementRepo, allocationRepo, ledgerRepo, identityClient, log)

	// Outbox dispatcher
	dispatcher := outbox.NewDispatcher(outboxRepo, publisher, log)
	dispatcherCtx, dispatcherCancel := context.WithCancel(context.Background())
	defer dispatcherCancel()
	go dispatcher.Start(dispatcherCtx)

	// HTTP server
	handlers := httpserver.Handlers{
		Milestone:    handler.NewMilestoneHandler(milestoneRepo, lifecycleSvc, log),
		Report:       handler.NewReportHandler(reportWorkflow, reportRepo, log),
		Extension:    handler.NewExtensionHandler(lifecycleSvc, extensionRepo, log),
		Disbursement: handler.NewDisbursementHandler(ledgerSvc, log),
		Allocation:   handler.NewAllocationHandler(allocationSvc, log),
	}
	router := httpserver.NewRouter(handlers, log, dbConn, publisher)

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	go func() {
		log.Info("HTTP server starting", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	log.Info("milestone-service API is fully initialized and running",
		zap.String("http_port", cfg.Server.Port),
	)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down milestone-service API gracefully...")

	dispatcherCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	} else {
		log.Info("HTTP server stopped")
	}

	publisher.Close()
	dbConn.Close()

	log.Info("milestone-service API shutdown complete")
}
