package main

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type NotificationHandler struct {
	useCase *NotificationUseCase
	logger  *zap.Logger
}

func NewNotificationHandler(useCase *NotificationUseCase, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{useCase: useCase, logger: logger}
}

func (h *NotificationHandler) RegisterRoutes(r gin.IRouter) {
	r.POST("/api/notifications", h.Send)
	r.GET("/api/notifications/:id", h.Get)
}

// Send responde 202 assim que a notificação está na fila
func (h *NotificationHandler) Send(c *gin.Context) {
	var req NotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	receipt, err := h.useCase.Enqueue(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, ErrQueueUnavailable) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": ErrQueueUnavailable.Error()})
			return
		}
		h.logger.Error("❌ Failed to accept notification", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusAccepted, receipt)
}

func (h *NotificationHandler) Get(c *gin.Context) {
	n, err := h.useCase.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrNotificationNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("❌ Failed to get notification", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, n)
}
