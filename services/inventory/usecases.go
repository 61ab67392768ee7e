package main

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// InventoryUseCase encapsula a lógica de catálogo e estoque
type InventoryUseCase struct {
	catalog   CatalogRepository
	stock     StockStore
	logger    *zap.Logger
	tracer    trace.Tracer
	movements metric.Int64Counter
}

func NewInventoryUseCase(catalog CatalogRepository, stock StockStore, logger *zap.Logger, tracer trace.Tracer) *InventoryUseCase {
	meter := otel.Meter("inventory-service")
	movements, _ := meter.Int64Counter("inventory_stock_movements_total")

	return &InventoryUseCase{
		catalog:   catalog,
		stock:     stock,
		logger:    logger,
		tracer:    tracer,
		movements: movements,
	}
}

// GetTicketType retorna o tipo de entrada com o saldo atual do StockStore
func (uc *InventoryUseCase) GetTicketType(ctx context.Context, id int64) (*TicketType, error) {
	tt, err := uc.catalog.GetTicketType(ctx, id)
	if err != nil {
		return nil, err
	}
	available, err := uc.stock.Available(ctx, id)
	if err != nil {
		return nil, err
	}
	tt.AvailableQty = available
	return tt, nil
}

func (uc *InventoryUseCase) GetEvent(ctx context.Context, id int64) (*Event, error) {
	return uc.catalog.GetEvent(ctx, id)
}

// DecreaseStock retira unidades; tipo inativo conta como estoque insuficiente
func (uc *InventoryUseCase) DecreaseStock(ctx context.Context, id int64, quantity int) (*StockMovement, error) {
	ctx, span := uc.tracer.Start(ctx, "inventory.DecreaseStock")
	defer span.End()
	span.SetAttributes(attribute.Int64("ticket_type_id", id), attribute.Int("quantity", quantity))

	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	tt, err := uc.catalog.GetTicketType(ctx, id)
	if err != nil {
		return nil, err
	}
	if !tt.Active {
		uc.logger.Warn("❌ [DECREASE] Ticket type is not active", zap.Int64("ticket_type_id", id))
		return nil, ErrTicketTypeInactive
	}

	remaining, err := uc.stock.Decrease(ctx, id, quantity)
	if err != nil {
		if errors.Is(err, ErrInsufficientStock) {
			uc.logger.Warn("❌ [DECREASE] Insufficient stock",
				zap.Int64("ticket_type_id", id),
				zap.Int("requested", quantity))
		}
		return nil, err
	}

	uc.movements.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", OperationDecrease)))
	uc.logger.Info("📦 [DECREASE] Stock decreased",
		zap.Int64("ticket_type_id", id),
		zap.Int("quantity", quantity),
		zap.Int("available", remaining))
	return &StockMovement{TicketTypeID: id, Operation: OperationDecrease, Quantity: quantity, AvailableQty: remaining}, nil
}

// IncreaseStock devolve unidades ao estoque
func (uc *InventoryUseCase) IncreaseStock(ctx context.Context, id int64, quantity int) (*StockMovement, error) {
	ctx, span := uc.tracer.Start(ctx, "inventory.IncreaseStock")
	defer span.End()
	span.SetAttributes(attribute.Int64("ticket_type_id", id), attribute.Int("quantity", quantity))

	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	remaining, err := uc.stock.Increase(ctx, id, quantity)
	if err != nil {
		return nil, err
	}

	uc.movements.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", OperationIncrease)))
	uc.logger.Info("🔄 [INCREASE] Stock restored",
		zap.Int64("ticket_type_id", id),
		zap.Int("quantity", quantity),
		zap.Int("available", remaining))
	return &StockMovement{TicketTypeID: id, Operation: OperationIncrease, Quantity: quantity, AvailableQty: remaining}, nil
}
