package handlers

import (
	"errors"
	"net/http"

	"bitbucket.org/mmdatafocus/poultry_backend/utils"
	"bitbucket.org/mmdatafocus/poultry_backend/workflow"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Handler exposes the engine over REST. It owns no state beyond its
// collaborators; all semantics live in the workflow package.
type Handler struct {
	engine *workflow.Engine
	logger *logrus.Logger
}

func NewHandler(engine *workflow.Engine, logger *logrus.Logger) *Handler {
	return &Handler{engine: engine, logger: logger}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/live-batches", h.CreateLiveBatch)
	r.POST("/live-batches/:id/mortality", h.RecordMortality)
	r.POST("/live-batches/process", h.ProcessBatch)

	r.GET("/batches/:id/availability", h.Availability)
	r.GET("/dressed-batches/:id/lineage", h.Lineage)
	r.GET("/dressed-batches/:id/yield", h.Yield)

	r.POST("/orders", h.CreateOrder)
	r.POST("/orders/validate", h.ValidateOrder)
	r.PATCH("/orders/:id", h.UpdateOrder)
	r.POST("/orders/:id/cancel", h.CancelOrder)
	r.POST("/orders/batch-update", h.BatchUpdateOrders)
}

// writeError maps engine errors onto HTTP statuses. Conflict-class errors
// carry retryable so clients know a replay may succeed; a lineage violation
// is a 409 too, but replaying it will not help.
func (h *Handler) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	retryable := false
	switch {
	case errors.Is(err, utils.ErrorInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, utils.ErrorRecordNotFound):
		status = http.StatusNotFound
	case errors.Is(err, utils.ErrorInsufficientInventory):
		status = http.StatusConflict
	case errors.Is(err, utils.ErrorLineageViolation):
		status = http.StatusConflict
	case errors.Is(err, utils.ErrorConcurrencyConflict):
		status = http.StatusConflict
		retryable = true
	}
	c.JSON(status, gin.H{"error": err.Error(), "retryable": retryable})
}
