package handlers

import (
	"fmt"
	"net/http"

	"bitbucket.org/mmdatafocus/poultry_backend/models"
	"bitbucket.org/mmdatafocus/poultry_backend/utils"
	"github.com/gin-gonic/gin"
)

func (h *Handler) CreateOrder(c *gin.Context) {
	var input models.NewOrder
	if err := c.ShouldBindJSON(&input); err != nil {
		h.writeError(c, fmt.Errorf("%w: %s", utils.ErrorInvalidInput, err.Error()))
		return
	}
	order, err := h.engine.CommitOrder(c.Request.Context(), &input)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, order)
}

// ValidateOrder is the dry-run endpoint order forms hit before submit.
func (h *Handler) ValidateOrder(c *gin.Context) {
	var input models.NewOrder
	if err := c.ShouldBindJSON(&input); err != nil {
		h.writeError(c, fmt.Errorf("%w: %s", utils.ErrorInvalidInput, err.Error()))
		return
	}
	if err := h.engine.ValidateOrder(c.Request.Context(), &input); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": true})
}

func (h *Handler) UpdateOrder(c *gin.Context) {
	id, err := pathId(c)
	if err != nil {
		h.writeError(c, err)
		return
	}
	var input models.UpdateOrderInput
	if err := c.ShouldBindJSON(&input); err != nil {
		h.writeError(c, fmt.Errorf("%w: %s", utils.ErrorInvalidInput, err.Error()))
		return
	}
	order, warnings, err := h.engine.UpdateOrder(c.Request.Context(), id, &input)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": order, "warnings": warnings})
}

func (h *Handler) CancelOrder(c *gin.Context) {
	id, err := pathId(c)
	if err != nil {
		h.writeError(c, err)
		return
	}
	order, err := h.engine.CancelOrder(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) BatchUpdateOrders(c *gin.Context) {
	var input models.BatchUpdateOrdersInput
	if err := c.ShouldBindJSON(&input); err != nil {
		h.writeError(c, fmt.Errorf("%w: %s", utils.ErrorInvalidInput, err.Error()))
		return
	}
	orders, warnings, err := h.engine.BatchUpdateOrders(c.Request.Context(), &input)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders, "warnings": warnings})
}
