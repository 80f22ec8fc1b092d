package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"milestone-service/internal/model"
	"milestone-service/internal/service/ledger"
)

type DisbursementHandler struct {
	ledger *ledger.Service
	logger *zap.Logger
}

func NewDisbursementHandler(svc *ledger.Service, logger *zap.Logger) *DisbursementHandler {
	return &DisbursementHandler{ledger: svc, logger: logger}
}

type previewRequest struct {
	TotalAmount int64 `json:"total_amount" binding:"required"`
}

func (h *DisbursementHandler) Preview(c *gin.Context) {
	milestoneID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req previewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	d, err := h.ledger.Preview(c.Request.Context(), milestoneID, req.TotalAmount)
	if err != nil {
		h.logger.Warn("Preview disbursement failed",
			zap.Int64("milestone_id", milestoneID),
			zap.Error(err),
		)
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"disbursement": d})
}

// Execute releases the disbursement. A repeat of an already executed one is a
// benign no-op answered with the stored record, so callers can retry blindly.
func (h *DisbursementHandler) Execute(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	d, err := h.ledger.Execute(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, model.ErrAlreadyDisbursed) {
			c.JSON(http.StatusOK, gin.H{
				"disbursement": d,
				"status":       "already_disbursed",
			})
			return
		}
		h.logger.Error("Execute disbursement failed",
			zap.Int64("disbursement_id", id),
			zap.Error(err),
		)
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"disbursement": d,
		"status":       "executed",
	})
}

func (h *DisbursementHandler) GetByMilestone(c *gin.Context) {
	milestoneID, ok := pathID(c, "id")
	if !ok {
		return
	}

	d, err := h.ledger.GetByMilestone(c.Request.Context(), milestoneID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"disbursement": d})
}

func (h *DisbursementHandler) Trail(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	trail, err := h.ledger.Trail(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": trail})
}
