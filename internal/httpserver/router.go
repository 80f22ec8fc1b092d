package httpserver

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"milestone-service/internal/handler"
	"milestone-service/pkg/metrics"
	"milestone-service/pkg/mq"
)

type Handlers struct {
	Milestone    *handler.MilestoneHandler
	Report       *handler.ReportHandler
	Extension    *handler.ExtensionHandler
	Disbursement *handler.DisbursementHandler
	Allocation   *handler.AllocationHandler
}

func NewRouter(h Handlers, logger *zap.Logger, db *pgxpool.Pool, publisher *mq.Publisher) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.Use(func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()
		metrics.RecordHTTPRequestDuration(c.Request.Method, path, strconv.Itoa(status), latency)
		logger.Info("HTTP Request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
		)
	})

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.HEAD("/healthz", func(c *gin.Context) {
		c.Status(200)
	})

	r.GET("/readyz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c, 1*time.Second)
		defer cancel()

		if err := db.Ping(ctx); err != nil {
			c.JSON(500, gin.H{"status": "db_not_ready", "error": err.Error()})
			return
		}
		if publisher != nil && !publisher.IsConnected() {
			c.JSON(500, gin.H{"status": "mq_not_ready"})
			return
		}
		c.JSON(200, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.POST("/milestones", h.Milestone.Create)
	r.GET("/milestones/:id", h.Milestone.Get)
	r.POST("/milestones/:id/deposit", h.Milestone.ConfirmDeposit)
	r.POST("/milestones/:id/complete", h.Milestone.Complete)
	r.POST("/milestones/:id/pay", h.Milestone.Pay)

	r.POST("/milestones/:id/reports", h.Report.Submit)
	r.GET("/reports/:id", h.Report.Get)
	r.POST("/reports/:id/approve", h.Report.Approve)
	r.POST("/reports/:id/request-changes", h.Report.RequestChanges)

	r.POST("/milestones/:id/extensions", h.Extension.Request)
	r.GET("/extensions/:id", h.Extension.Get)
	r.POST("/extensions/:id/decide", h.Extension.Decide)

	r.POST("/milestones/:id/disbursement/preview", h.Disbursement.Preview)
	r.GET("/milestones/:id/disbursement", h.Disbursement.GetByMilestone)
	r.POST("/disbursements/:id/execute", h.Disbursement.Execute)
	r.GET("/disbursements/:id/ledger", h.Disbursement.Trail)

	r.PUT("/disbursements/:id/allocations/:role", h.Allocation.Commit)
	r.GET("/disbursements/:id/allocations/:role", h.Allocation.Get)
	r.POST("/disbursements/:id/allocations/:role/payout", h.Allocation.Payout)

	return r
}
