package main

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// PaymentHandler contém os handlers HTTP de pagamentos
type PaymentHandler struct {
	useCase *PaymentUseCase
	logger  *zap.Logger
}

func NewPaymentHandler(useCase *PaymentUseCase, logger *zap.Logger) *PaymentHandler {
	return &PaymentHandler{useCase: useCase, logger: logger}
}

func (h *PaymentHandler) RegisterRoutes(r gin.IRouter) {
	r.POST("/api/payments/authorize", h.Authorize)
	r.GET("/api/payments/:paymentId", h.GetPayment)
}

// Authorize responde 200 para aprovados e 402 para recusados, com o mesmo corpo
func (h *PaymentHandler) Authorize(c *gin.Context) {
	var req AuthorizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader("Idempotency-Key")
	}

	payment, replayed, err := h.useCase.Authorize(c.Request.Context(), req)
	if err != nil {
		h.logger.Error("❌ Failed to authorize payment", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process payment"})
		return
	}

	status := http.StatusOK
	if payment.Status == StatusRejected {
		status = http.StatusPaymentRequired
	}
	c.JSON(status, payment.Response(replayed))
}

func (h *PaymentHandler) GetPayment(c *gin.Context) {
	payment, err := h.useCase.GetPayment(c.Request.Context(), c.Param("paymentId"))
	if err != nil {
		if errors.Is(err, ErrPaymentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("❌ Failed to get payment", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, payment.Response(false))
}
