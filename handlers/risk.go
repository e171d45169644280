package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"infra-risk-api/models"
	"infra-risk-api/risk"
	"infra-risk-api/services"
)

// RiskPredictor is the part of services.RiskService the handlers use.
type RiskPredictor interface {
	PredictAll(ctx context.Context) ([]risk.ProjectRisk, error)
	PredictProject(ctx context.Context, id string) (risk.ProjectRisk, error)
	Summary(ctx context.Context) (risk.Summary, error)
	History(ctx context.Context, projectID string, before *time.Time, limit int) ([]models.RiskAssessment, error)
}

type RiskHandler struct {
	svc RiskPredictor
}

func NewRiskHandler(svc RiskPredictor) *RiskHandler {
	return &RiskHandler{svc: svc}
}

// GetPredictions serves the ranked batch. Without query parameters the body is
// the plain sorted array.
func (h *RiskHandler) GetPredictions(c *gin.Context) {
	var label risk.Label
	if raw := c.Query("label"); raw != "" {
		l, ok := risk.ParseLabel(raw)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid label parameter, must be SAFE, MODERATE or CRITICAL"})
			return
		}
		label = l
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		l, err := strconv.Atoi(raw)
		if err != nil || l <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit parameter, must be a positive integer"})
			return
		}
		limit = l
	}

	results, err := h.svc.PredictAll(c.Request.Context())
	if err != nil {
		zap.L().Error("handlers: predict risk failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to calculate predictive risk"})
		return
	}

	if label != "" {
		filtered := make([]risk.ProjectRisk, 0, len(results))
		for _, r := range results {
			if r.Prediction.RiskLabel == label {
				filtered = append(filtered, r)
			}
		}
		results = filtered
	}
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	if results == nil {
		results = []risk.ProjectRisk{}
	}

	c.JSON(http.StatusOK, results)
}

func (h *RiskHandler) GetSummary(c *gin.Context) {
	summary, err := h.svc.Summary(c.Request.Context())
	if err != nil {
		zap.L().Error("handlers: risk summary failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to calculate predictive risk"})
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *RiskHandler) GetProjectRisk(c *gin.Context) {
	id := c.Param("id")

	pr, err := h.svc.PredictProject(c.Request.Context(), id)
	switch {
	case eris.Is(err, services.ErrProjectNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "project not found"})
		return
	case eris.Is(err, services.ErrMissingLocation):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "project has no coordinates"})
		return
	case err != nil:
		zap.L().Error("handlers: project risk failed", zap.String("project_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to calculate predictive risk"})
		return
	}

	c.JSON(http.StatusOK, pr)
}

func (h *RiskHandler) GetHistory(c *gin.Context) {
	id := c.Param("id")
	p := ParsePagination(c)

	rows, err := h.svc.History(c.Request.Context(), id, p.Before, p.Limit+1)
	if err != nil {
		zap.L().Error("handlers: risk history failed", zap.String("project_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "database query failed"})
		return
	}

	c.JSON(http.StatusOK, Page(rows, p.Limit, func(a models.RiskAssessment) time.Time { return a.TS }))
}
