package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/aescanero/dago-direct/pkg/domain"
	"github.com/aescanero/dago-direct/pkg/ports"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail represents error details
type ErrorDetail struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// handleHealth handles health check requests
func (s *Server) handleHealth(c *gin.Context) {
	status := s.engine.Status()

	code, health := http.StatusOK, "healthy"
	if status.State == domain.RunStateFailed {
		code, health = http.StatusServiceUnavailable, "unhealthy"
	}

	pool := "idle"
	if w := status.Workers; w != nil && status.State == domain.RunStateRunning {
		switch {
		case w.Stopped > 0:
			pool = "unhealthy"
			code, health = http.StatusServiceUnavailable, "unhealthy"
		case w.Saturated:
			pool = "saturated"
		default:
			pool = "healthy"
		}
	}

	c.JSON(code, gin.H{
		"status":    health,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks": gin.H{
			"engine":  string(status.State),
			"workers": pool,
		},
	})
}

// handleGetStatus handles getting the engine status
func (s *Server) handleGetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.Status())
}

// handleListRuns lists the runs that have a stored report
func (s *Server) handleListRuns(c *gin.Context) {
	if s.reports == nil {
		s.reportsUnavailable(c)
		return
	}

	ids, err := s.reports.ListReports(c.Request.Context())
	if err != nil {
		s.logger.Error("failed to list reports", zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: ErrorDetail{
				Code:    "STORAGE_ERROR",
				Message: "Failed to list run reports",
				Details: err.Error(),
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"runs":  ids,
		"total": len(ids),
	})
}

// handleGetReport handles getting the report of a finished run
func (s *Server) handleGetReport(c *gin.Context) {
	if s.reports == nil {
		s.reportsUnavailable(c)
		return
	}

	runID := c.Param("id")

	report, err := s.reports.GetReport(c.Request.Context(), runID)
	if err != nil {
		if errors.Is(err, ports.ErrReportNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error: ErrorDetail{
					Code:    "NOT_FOUND",
					Message: "Run report not found",
				},
			})
			return
		}
		s.logger.Error("failed to get report", zap.String("run_id", runID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: ErrorDetail{
				Code:    "STORAGE_ERROR",
				Message: "Failed to retrieve run report",
				Details: err.Error(),
			},
		})
		return
	}

	c.JSON(http.StatusOK, report)
}

func (s *Server) reportsUnavailable(c *gin.Context) {
	c.JSON(http.StatusServiceUnavailable, ErrorResponse{
		Error: ErrorDetail{
			Code:    "REPORTS_NOT_AVAILABLE",
			Message: "Report storage is not configured",
		},
	})
}
