// Package handler exposes the engine over HTTP. Handlers translate the
// service error taxonomy into status codes; business rules live below.
package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"milestone-service/internal/model"
)

// writeError maps a service error onto an HTTP response.
func writeError(c *gin.Context, err error) {
	var escrowErr *model.InsufficientEscrowError
	var overErr *model.OverAllocationError
	var invalidAlloc *model.InvalidAllocationError

	switch {
	case errors.Is(err, model.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, model.ErrInvalidAmount),
		errors.Is(err, model.ErrFeedbackRequired):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.As(err, &invalidAlloc):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     err.Error(),
			"member_id": invalidAlloc.MemberID,
		})
	case errors.Is(err, model.ErrInvalidStatusTransition),
		errors.Is(err, model.ErrConcurrentModification),
		errors.Is(err, model.ErrIncompleteDeliverable):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.As(err, &overErr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":      err.Error(),
			"pool_share": overErr.PoolShare,
			"allocated":  overErr.Allocated,
			"excess":     overErr.Excess(),
		})
	case errors.As(err, &escrowErr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":     err.Error(),
			"required":  escrowErr.Required,
			"available": escrowErr.Available,
			"shortfall": escrowErr.Shortfall(),
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// pathID parses a path parameter as an int64 id, writing the 400 itself on
// failure.
func pathID(c *gin.Context, param string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(param), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + param})
		return 0, false
	}
	return id, true
}
