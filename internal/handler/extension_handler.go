package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"milestone-service/internal/repository"
	"milestone-service/internal/service/lifecycle"
)

type ExtensionHandler struct {
	lifecycle *lifecycle.Service
	repo      *repository.ExtensionRepository
	logger    *zap.Logger
}

func NewExtensionHandler(lc *lifecycle.Service, repo *repository.ExtensionRepository, logger *zap.Logger) *ExtensionHandler {
	return &ExtensionHandler{lifecycle: lc, repo: repo, logger: logger}
}

type requestExtensionRequest struct {
	RequesterID      int64     `json:"requester_id" binding:"required"`
	RequestedEndDate time.Time `json:"requested_end_date" binding:"required"`
	Reason           string    `json:"reason" binding:"required"`
}

func (h *ExtensionHandler) Request(c *gin.Context) {
	milestoneID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req requestExtensionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ext, err := h.lifecycle.RequestExtension(c.Request.Context(), milestoneID, req.RequesterID, req.RequestedEndDate, req.Reason)
	if err != nil {
		h.logger.Error("Request extension failed",
			zap.Int64("milestone_id", milestoneID),
			zap.Error(err),
		)
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"extension_request": ext})
}

func (h *ExtensionHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	ext, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"extension_request": ext})
}

type decideExtensionRequest struct {
	Approve bool   `json:"approve"`
	Reason  string `json:"reason" binding:"required"`
}

func (h *ExtensionHandler) Decide(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req decideExtensionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.lifecycle.DecideExtension(c.Request.Context(), id, req.Approve, req.Reason); err != nil {
		h.logger.Warn("Decide extension failed",
			zap.Int64("request_id", id),
			zap.Bool("approve", req.Approve),
			zap.Error(err),
		)
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "decided"})
}
