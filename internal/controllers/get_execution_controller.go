package controllers

import (
	"errors"
	"net/http"

	"github.com/osvaldoandrade/suiterun/internal/mockserver"

	"github.com/gin-gonic/gin"
)

type getExecutionController struct{ script *mockserver.Script }

func NewGetExecutionController(script *mockserver.Script) *getExecutionController {
	return &getExecutionController{script}
}

func (h *getExecutionController) Handle(c *gin.Context) {
	id := c.Query("execution_id")
	project := c.Query("project_id")
	if id == "" || project == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "execution_id and project_id are required"})
		return
	}

	snap, err := h.script.Status(project, id)
	switch {
	case errors.Is(err, mockserver.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	case errors.Is(err, mockserver.ErrProjectMismatch):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, gin.H{"data": snap})
}
