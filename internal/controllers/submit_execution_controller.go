package controllers

import (
	"net/http"
	"strings"

	"github.com/osvaldoandrade/suiterun/internal/middleware"
	"github.com/osvaldoandrade/suiterun/internal/mockserver"
	"github.com/osvaldoandrade/suiterun/pkg/domain"

	"github.com/gin-gonic/gin"
)

type submitExecutionController struct{ script *mockserver.Script }

func NewSubmitExecutionController(script *mockserver.Script) *submitExecutionController {
	return &submitExecutionController{script}
}

type executionRef struct {
	ExecutionID string `json:"execution_id"`
}

func (h *submitExecutionController) Handle(c *gin.Context) {
	var req domain.ExecutionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	if strings.TrimSpace(req.ProjectID) == "" || strings.TrimSpace(req.SuiteID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "project_id and suite_id are required"})
		return
	}
	if req.Strategy != domain.StrategyCallback {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported strategy"})
		return
	}

	execs := h.script.Submit(req)
	refs := make([]executionRef, 0, len(execs))
	for _, e := range execs {
		refs = append(refs, executionRef{ExecutionID: e.ID})
	}
	middleware.Logger(c).Info("suite queued",
		"project_id", req.ProjectID,
		"suite_id", req.SuiteID,
		"executions", len(refs),
	)
	c.JSON(http.StatusOK, gin.H{"executions": refs})
}
