package main

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// TicketHandler contém os handlers HTTP de reservas e ingressos
type TicketHandler struct {
	reservations *ReservationUseCase
	tickets      *TicketUseCase
	logger       *zap.Logger
}

func NewTicketHandler(reservations *ReservationUseCase, tickets *TicketUseCase, logger *zap.Logger) *TicketHandler {
	return &TicketHandler{
		reservations: reservations,
		tickets:      tickets,
		logger:       logger,
	}
}

// RegisterRoutes registra as rotas do serviço
func (h *TicketHandler) RegisterRoutes(r gin.IRouter) {
	api := r.Group("/api")

	api.POST("/reservations", h.CreateReservation)
	api.GET("/reservations/active", h.ListActiveReservations)
	api.GET("/reservations/:id", h.GetReservation)
	api.PUT("/reservations/:id/confirm", h.ConfirmReservation)
	api.PUT("/reservations/:id/release", h.ReleaseReservation)
	api.PUT("/reservations/:id/cancel", h.CancelReservation)

	api.POST("/tickets", h.IssueTicket)
	api.GET("/tickets", h.ListTickets)
	api.GET("/tickets/:ticketId", h.GetTicket)
	api.GET("/payments/:paymentId/ticket", h.GetTicketByPayment)
}

func (h *TicketHandler) CreateReservation(c *gin.Context) {
	var req CreateReservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.reservations.Create(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, res, err)
		return
	}

	c.JSON(http.StatusCreated, res.View(h.reservations.Now()))
}

func (h *TicketHandler) GetReservation(c *gin.Context) {
	res, err := h.reservations.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, nil, err)
		return
	}
	c.JSON(http.StatusOK, res.View(h.reservations.Now()))
}

func (h *TicketHandler) ConfirmReservation(c *gin.Context) {
	res, err := h.reservations.Confirm(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, res, err)
		return
	}
	c.JSON(http.StatusOK, res.View(h.reservations.Now()))
}

func (h *TicketHandler) ReleaseReservation(c *gin.Context) {
	res, err := h.reservations.Release(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, res, err)
		return
	}
	c.JSON(http.StatusOK, res.View(h.reservations.Now()))
}

func (h *TicketHandler) CancelReservation(c *gin.Context) {
	res, err := h.reservations.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, res, err)
		return
	}
	c.JSON(http.StatusOK, res.View(h.reservations.Now()))
}

func (h *TicketHandler) ListActiveReservations(c *gin.Context) {
	list, err := h.reservations.ListActive(c.Request.Context(), c.Query("user_id"))
	if err != nil {
		h.respondError(c, nil, err)
		return
	}

	now := h.reservations.Now()
	views := make([]ReservationView, 0, len(list))
	for i := range list {
		views = append(views, list[i].View(now))
	}
	c.JSON(http.StatusOK, views)
}

func (h *TicketHandler) IssueTicket(c *gin.Context) {
	var req IssueTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ticket, created, err := h.tickets.Issue(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, nil, err)
		return
	}

	status := http.StatusCreated
	if !created {
		status = http.StatusOK
	}
	c.JSON(status, ticket)
}

func (h *TicketHandler) GetTicket(c *gin.Context) {
	ticket, err := h.tickets.Get(c.Request.Context(), c.Param("ticketId"))
	if err != nil {
		h.respondError(c, nil, err)
		return
	}
	c.JSON(http.StatusOK, ticket)
}

func (h *TicketHandler) GetTicketByPayment(c *gin.Context) {
	ticket, err := h.tickets.GetByPayment(c.Request.Context(), c.Param("paymentId"))
	if err != nil {
		h.respondError(c, nil, err)
		return
	}
	c.JSON(http.StatusOK, ticket)
}

func (h *TicketHandler) ListTickets(c *gin.Context) {
	list, err := h.tickets.ListByUser(c.Request.Context(), c.Query("user_id"))
	if err != nil {
		h.respondError(c, nil, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *TicketHandler) respondError(c *gin.Context, res *Reservation, err error) {
	var stateErr *StateError

	switch {
	case errors.Is(err, ErrInvalidRequest):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, ErrReservationNotFound), errors.Is(err, ErrTicketNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, ErrReservationExpired):
		c.JSON(http.StatusGone, gin.H{"error": err.Error()})
	case errors.As(err, &stateErr):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "state": stateErr.State})
	case errors.Is(err, ErrInsufficientStock):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, ErrStockRestoreFailed):
		body := gin.H{"error": err.Error()}
		if res != nil {
			body["state"] = res.State
		}
		c.JSON(http.StatusBadGateway, body)
	default:
		h.logger.Error("❌ Unexpected error", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
