package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"milestone-service/internal/model"
	"milestone-service/internal/repository"
	"milestone-service/internal/service/lifecycle"
)

type MilestoneHandler struct {
	repo      *repository.MilestoneRepository
	lifecycle *lifecycle.Service
	logger    *zap.Logger
}

func NewMilestoneHandler(repo *repository.MilestoneRepository, lc *lifecycle.Service, logger *zap.Logger) *MilestoneHandler {
	return &MilestoneHandler{repo: repo, lifecycle: lc, logger: logger}
}

type createMilestoneRequest struct {
	ProjectID int64     `json:"project_id" binding:"required"`
	Budget    int64     `json:"budget" binding:"required"`
	StartDate time.Time `json:"start_date" binding:"required"`
	EndDate   time.Time `json:"end_date" binding:"required"`
}

func (h *MilestoneHandler) Create(c *gin.Context) {
	var req createMilestoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Budget <= 0 {
		writeError(c, model.ErrInvalidAmount)
		return
	}

	m := &model.Milestone{
		ProjectID: req.ProjectID,
		Budget:    req.Budget,
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
		Status:    model.MilestoneStatusPendingDeposit,
	}
	if _, err := h.repo.Insert(c.Request.Context(), m); err != nil {
		h.logger.Error("Create milestone failed",
			zap.Int64("project_id", req.ProjectID),
			zap.Error(err),
		)
		writeError(c, err)
		return
	}

	h.logger.Info("Milestone created",
		zap.Int64("milestone_id", m.ID),
		zap.Int64("project_id", m.ProjectID),
		zap.Int64("budget", m.Budget),
	)
	c.JSON(http.StatusCreated, gin.H{"milestone": m})
}

func (h *MilestoneHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	m, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"milestone": m})
}

type confirmDepositRequest struct {
	Amount int64 `json:"amount" binding:"required"`
}

// ConfirmDeposit is the manual path for escrow confirmation; the usual path
// is the escrow.deposit.confirmed consumer.
func (h *MilestoneHandler) ConfirmDeposit(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req confirmDepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.lifecycle.MarkDeposited(c.Request.Context(), id, req.Amount); err != nil {
		h.logger.Warn("ConfirmDeposit failed",
			zap.Int64("milestone_id", id),
			zap.Error(err),
		)
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deposited"})
}

func (h *MilestoneHandler) Complete(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.lifecycle.MarkCompleted(c.Request.Context(), id); err != nil {
		h.logger.Warn("Complete milestone failed",
			zap.Int64("milestone_id", id),
			zap.Error(err),
		)
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "completed"})
}

func (h *MilestoneHandler) Pay(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.lifecycle.MarkPaid(c.Request.Context(), id); err != nil {
		h.logger.Warn("Pay milestone failed",
			zap.Int64("milestone_id", id),
			zap.Error(err),
		)
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "paid"})
}
