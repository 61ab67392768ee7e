package main

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// InventoryHandler contém os handlers HTTP de catálogo e estoque
type InventoryHandler struct {
	useCase *InventoryUseCase
	logger  *zap.Logger
}

func NewInventoryHandler(useCase *InventoryUseCase, logger *zap.Logger) *InventoryHandler {
	return &InventoryHandler{useCase: useCase, logger: logger}
}

func (h *InventoryHandler) RegisterRoutes(r gin.IRouter) {
	api := r.Group("/api")
	api.GET("/ticket-types/:id", h.GetTicketType)
	api.PUT("/ticket-types/:id/decrease", h.DecreaseStock)
	api.PUT("/ticket-types/:id/increase", h.IncreaseStock)
	api.GET("/events/:id", h.GetEvent)
}

func (h *InventoryHandler) GetTicketType(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	tt, err := h.useCase.GetTicketType(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tt)
}

func (h *InventoryHandler) GetEvent(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	ev, err := h.useCase.GetEvent(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ev)
}

func (h *InventoryHandler) DecreaseStock(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	quantity, ok := queryQuantity(c)
	if !ok {
		return
	}
	mv, err := h.useCase.DecreaseStock(c.Request.Context(), id, quantity)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, mv)
}

func (h *InventoryHandler) IncreaseStock(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	quantity, ok := queryQuantity(c)
	if !ok {
		return
	}
	mv, err := h.useCase.IncreaseStock(c.Request.Context(), id, quantity)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, mv)
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

func queryQuantity(c *gin.Context) (int, bool) {
	quantity, err := strconv.Atoi(c.Query("quantity"))
	if err != nil || quantity <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": ErrInvalidQuantity.Error()})
		return 0, false
	}
	return quantity, true
}

func (h *InventoryHandler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrTicketTypeNotFound), errors.Is(err, ErrEventNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, ErrInsufficientStock), errors.Is(err, ErrTicketTypeInactive):
		c.JSON(http.StatusConflict, gin.H{"error": ErrInsufficientStock.Error(), "detail": err.Error()})
	case errors.Is(err, ErrInvalidQuantity):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.logger.Error("❌ Inventory operation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
