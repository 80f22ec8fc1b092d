package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"milestone-service/internal/model"
	"milestone-service/internal/repository"
	"milestone-service/internal/service/report"
)

type ReportHandler struct {
	workflow *report.Workflow
	repo     *repository.ReportRepository
	logger   *zap.Logger
}

func NewReportHandler(workflow *report.Workflow, repo *repository.ReportRepository, logger *zap.Logger) *ReportHandler {
	return &ReportHandler{workflow: workflow, repo: repo, logger: logger}
}

type submitReportRequest struct {
	AuthorID    int64    `json:"author_id" binding:"required"`
	AuthorRole  string   `json:"author_role" binding:"required"`
	ReportType  string   `json:"report_type" binding:"required"`
	Content     string   `json:"content" binding:"required"`
	Attachments []string `json:"attachments"`
}

func (h *ReportHandler) Submit(c *gin.Context) {
	milestoneID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req submitReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rep, err := h.workflow.Submit(c.Request.Context(), &model.Report{
		MilestoneID: milestoneID,
		AuthorID:    req.AuthorID,
		AuthorRole:  model.AuthorRole(req.AuthorRole),
		ReportType:  model.ReportType(req.ReportType),
		Content:     req.Content,
		Attachments: req.Attachments,
	})
	if err != nil {
		h.logger.Error("Submit report failed",
			zap.Int64("milestone_id", milestoneID),
			zap.Error(err),
		)
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"report": rep})
}

func (h *ReportHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	rep, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"report": rep})
}

func (h *ReportHandler) Approve(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.workflow.Approve(c.Request.Context(), id, ""); err != nil {
		h.logger.Warn("Approve report failed",
			zap.Int64("report_id", id),
			zap.Error(err),
		)
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "approved"})
}

type requestChangesRequest struct {
	Feedback string `json:"feedback"`
}

func (h *ReportHandler) RequestChanges(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req requestChangesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.workflow.RequestChanges(c.Request.Context(), id, req.Feedback); err != nil {
		h.logger.Warn("Request changes failed",
			zap.Int64("report_id", id),
			zap.Error(err),
		)
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "changes_requested"})
}
