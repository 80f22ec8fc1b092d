package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"milestone-service/internal/model"
	"milestone-service/internal/service/allocation"
)

type AllocationHandler struct {
	allocations *allocation.Service
	logger      *zap.Logger
}

func NewAllocationHandler(svc *allocation.Service, logger *zap.Logger) *AllocationHandler {
	return &AllocationHandler{allocations: svc, logger: logger}
}

func poolRole(c *gin.Context) (model.PoolRole, bool) {
	role := model.PoolRole(strings.ToUpper(c.Param("role")))
	if !role.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid pool role"})
		return "", false
	}
	return role, true
}

type commitAllocationsRequest struct {
	Allocations map[int64]int64 `json:"allocations" binding:"required"`
	Version     int64           `json:"version"`
}

// Commit stores a leader's member split. Version 0 creates the set; later
// writes must carry the version the editor last saw.
func (h *AllocationHandler) Commit(c *gin.Context) {
	disbursementID, ok := pathID(c, "id")
	if !ok {
		return
	}
	role, ok := poolRole(c)
	if !ok {
		return
	}

	var req commitAllocationsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	set, err := h.allocations.Commit(c.Request.Context(), disbursementID, role, req.Allocations, req.Version)
	if err != nil {
		h.logger.Warn("Commit allocations failed",
			zap.Int64("disbursement_id", disbursementID),
			zap.String("pool_role", string(role)),
			zap.Error(err),
		)
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"allocation_set": set})
}

func (h *AllocationHandler) Payout(c *gin.Context) {
	disbursementID, ok := pathID(c, "id")
	if !ok {
		return
	}
	role, ok := poolRole(c)
	if !ok {
		return
	}

	err := h.allocations.Payout(c.Request.Context(), disbursementID, role)
	if err != nil {
		if errors.Is(err, model.ErrAlreadyDisbursed) {
			c.JSON(http.StatusOK, gin.H{"status": "already_paid"})
			return
		}
		h.logger.Error("Pool payout failed",
			zap.Int64("disbursement_id", disbursementID),
			zap.String("pool_role", string(role)),
			zap.Error(err),
		)
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "paid"})
}

func (h *AllocationHandler) Get(c *gin.Context) {
	disbursementID, ok := pathID(c, "id")
	if !ok {
		return
	}
	role, ok := poolRole(c)
	if !ok {
		return
	}

	set, members, percentages, err := h.allocations.View(c.Request.Context(), disbursementID, role)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"allocation_set": set,
		"members":        members,
		"percentages":    percentages,
	})
}
