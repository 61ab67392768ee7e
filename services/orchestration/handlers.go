package main

import (
	"errors"
	"net/http"
	"regexp"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

var expiryPattern = regexp.MustCompile(`^(0[1-9]|1[0-2])/[0-9]{2}$`)

// RegisterValidators registra as validações customizadas no validator do gin
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return errors.New("unexpected gin validator engine")
	}
	return v.RegisterValidation("expiry", func(fl validator.FieldLevel) bool {
		return expiryPattern.MatchString(fl.Field().String())
	})
}

// BreakerStateFunc expõe o estado do circuit breaker de pagamentos
type BreakerStateFunc func() string

// PurchaseHandler contém os handlers HTTP da API de compras
type PurchaseHandler struct {
	useCase      *PurchaseUseCase
	breakerState BreakerStateFunc
	logger       *zap.Logger
}

func NewPurchaseHandler(useCase *PurchaseUseCase, breakerState BreakerStateFunc, logger *zap.Logger) *PurchaseHandler {
	return &PurchaseHandler{useCase: useCase, breakerState: breakerState, logger: logger}
}

func (h *PurchaseHandler) RegisterRoutes(r gin.IRouter) {
	r.POST("/api/purchases", h.PurchaseTicket)
	r.GET("/api/purchases/payment-breaker", h.PaymentBreaker)
}

type errorResponse struct {
	Kind          Kind   `json:"kind"`
	Error         string `json:"error"`
	PaymentID     string `json:"payment_id,omitempty"`
	ReservationID string `json:"reservation_id,omitempty"`
}

// PurchaseTicket responde 201 com o recibo ou o status do Kind da falha
func (h *PurchaseHandler) PurchaseTicket(c *gin.Context) {
	userID := c.GetHeader("X-User-ID")
	if userID == "" {
		c.JSON(http.StatusBadRequest, errorResponse{Kind: KindValidation, Error: "X-User-ID header is required"})
		return
	}

	var req PurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Kind: KindValidation, Error: err.Error()})
		return
	}

	key := req.IdempotencyKey
	if key == "" {
		key = c.GetHeader("Idempotency-Key")
	}

	receipt, err := h.useCase.PurchaseTicket(c.Request.Context(), PurchaseCommand{
		UserID:         userID,
		UserEmail:      c.GetHeader("X-User-Email"),
		TicketTypeID:   req.TicketTypeID,
		Quantity:       req.Quantity,
		IdempotencyKey: key,
		PaymentMethod:  req.PaymentMethod,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, receipt)
}

func (h *PurchaseHandler) PaymentBreaker(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"state": h.breakerState()})
}

func (h *PurchaseHandler) respondError(c *gin.Context, err error) {
	var perr *PurchaseError
	if !errors.As(err, &perr) {
		h.logger.Error("❌ Unexpected purchase error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(perr.Kind.HTTPStatus(), errorResponse{
		Kind:          perr.Kind,
		Error:         perr.Message,
		PaymentID:     perr.PaymentID,
		ReservationID: perr.ReservationID,
	})
}
