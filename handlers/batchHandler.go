package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"bitbucket.org/mmdatafocus/poultry_backend/models"
	"bitbucket.org/mmdatafocus/poultry_backend/utils"
	"bitbucket.org/mmdatafocus/poultry_backend/workflow"
	"github.com/gin-gonic/gin"
)

func pathId(c *gin.Context) (int, error) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: bad id %q", utils.ErrorInvalidInput, c.Param("id"))
	}
	return id, nil
}

func (h *Handler) CreateLiveBatch(c *gin.Context) {
	var input models.NewLiveBatch
	if err := c.ShouldBindJSON(&input); err != nil {
		h.writeError(c, fmt.Errorf("%w: %s", utils.ErrorInvalidInput, err.Error()))
		return
	}
	batch, err := h.engine.CreateLiveBatch(c.Request.Context(), &input)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, batch)
}

func (h *Handler) RecordMortality(c *gin.Context) {
	id, err := pathId(c)
	if err != nil {
		h.writeError(c, err)
		return
	}
	var input struct {
		Count int `json:"count" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		h.writeError(c, fmt.Errorf("%w: %s", utils.ErrorInvalidInput, err.Error()))
		return
	}
	batch, err := h.engine.RecordMortality(c.Request.Context(), id, input.Count)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"batch": batch, "mortality": batch.Mortality()})
}

func (h *Handler) ProcessBatch(c *gin.Context) {
	var input workflow.ProcessBatchInput
	if err := c.ShouldBindJSON(&input); err != nil {
		h.writeError(c, fmt.Errorf("%w: %s", utils.ErrorInvalidInput, err.Error()))
		return
	}

	// Best-effort cross-instance lock; the engine's own locking still holds
	// if Redis is down.
	ctx := c.Request.Context()
	release, _ := utils.BatchLock(ctx, input.SourceBatchId, "handlers", "ProcessBatch")
	defer release()

	result, err := h.engine.ProcessBatch(ctx, &input)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func (h *Handler) Availability(c *gin.Context) {
	id, err := pathId(c)
	if err != nil {
		h.writeError(c, err)
		return
	}
	source := models.InventorySource(c.DefaultQuery("source", string(models.InventorySourceLive)))
	if !source.Valid() {
		h.writeError(c, fmt.Errorf("%w: unknown inventory source %q", utils.ErrorInvalidInput, source))
		return
	}
	var part *models.PartType
	if raw := c.Query("part_type"); raw != "" {
		p := models.PartType(raw)
		if !p.Valid() {
			h.writeError(c, fmt.Errorf("%w: unknown part type %q", utils.ErrorInvalidInput, raw))
			return
		}
		part = &p
	}

	available, err := h.engine.AvailableQuantity(c.Request.Context(), id, source, part)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"batch_id": id, "source": source, "available": available})
}

func (h *Handler) Lineage(c *gin.Context) {
	id, err := pathId(c)
	if err != nil {
		h.writeError(c, err)
		return
	}
	edge, source, err := h.engine.Lineage(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"edge": edge, "source": source})
}

func (h *Handler) Yield(c *gin.Context) {
	id, err := pathId(c)
	if err != nil {
		h.writeError(c, err)
		return
	}
	rate, anomalous, err := h.engine.Yield(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"yield_rate": rate, "anomalous": anomalous})
}
