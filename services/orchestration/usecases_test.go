package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matheusmosca/ticket-purchase-saga/internal/clients/inventory"
	"github.com/matheusmosca/ticket-purchase-saga/internal/clients/notification"
	"github.com/matheusmosca/ticket-purchase-saga/internal/clients/payment"
	"github.com/matheusmosca/ticket-purchase-saga/internal/clients/tickets"
)

func requirePurchaseError(t *testing.T, err error, kind Kind) *PurchaseError {
	t.Helper()
	var perr *PurchaseError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, kind, perr.Kind, perr.Error())
	return perr
}

func TestPurchaseTicket_Success(t *testing.T) {
	// Arrange
	f := newSagaFixture(t)

	// Act
	receipt, err := f.uc.PurchaseTicket(context.Background(), purchaseCommand(1, 2, "order-1"))

	// Assert
	require.NoError(t, err)
	assert.NotEmpty(t, receipt.TicketID)
	assert.NotEmpty(t, receipt.ReservationID)
	assert.Equal(t, "PAY-00000001", receipt.PaymentID)
	assert.Equal(t, 500.0, receipt.Total)
	assert.Equal(t, "Rock in Rio", receipt.EventName)
	assert.Equal(t, "Pista", receipt.TicketTypeName)
	assert.Equal(t, "PAID", receipt.Status)

	assert.Equal(t, 3, f.reservations.Stock())
	assert.Equal(t, map[string]int{"CONFIRMED": 1}, f.reservations.States())
	assert.Equal(t, []notification.Type{notification.TypeTicketPurchased}, f.notifier.Types())
	assert.Equal(t, []string{"user-1:order-1"}, f.payments.keys)
	assert.Empty(t, f.escalator.incidents)
}

func TestPurchaseTicket_PaymentRejectedReleasesReservation(t *testing.T) {
	// Arrange: 2 x 750 = 1500, acima do limite do gateway
	f := newSagaFixture(t)

	// Act
	receipt, err := f.uc.PurchaseTicket(context.Background(), purchaseCommand(2, 2, "order-2"))

	// Assert
	assert.Nil(t, receipt)
	perr := requirePurchaseError(t, err, KindPaymentRejected)
	assert.Contains(t, perr.Message, "funds")
	assert.NotEmpty(t, perr.PaymentID)
	assert.Equal(t, 5, f.reservations.Stock(), "stock must be restored")
	assert.Equal(t, map[string]int{"RELEASED": 1}, f.reservations.States())
	assert.Equal(t, []notification.Type{notification.TypePaymentRejected}, f.notifier.Types())
	assert.Equal(t, 1, f.payments.calls, "business declines are never retried")
}

func TestPurchaseTicket_IssueFailureAfterPaymentIsCritical(t *testing.T) {
	// Arrange
	f := newSagaFixture(t)
	f.issuer.err = fmt.Errorf("%w: status 500", tickets.ErrUnavailable)

	// Act
	_, err := f.uc.PurchaseTicket(context.Background(), purchaseCommand(1, 1, "order-3"))

	// Assert
	perr := requirePurchaseError(t, err, KindCriticalInconsistency)
	assert.Equal(t, "PAY-00000001", perr.PaymentID)
	assert.Contains(t, perr.Message, "PAY-00000001")
	assert.Equal(t, 1, f.reservations.releases, "release must be attempted")

	require.Len(t, f.escalator.incidents, 1)
	incident := f.escalator.incidents[0]
	assert.Equal(t, "issue-ticket", incident.FailedStep)
	assert.Equal(t, "PAY-00000001", incident.PaymentID)
	assert.Equal(t, perr.ReservationID, incident.ReservationID)
	assert.Equal(t, 250.0, incident.Amount)
	assert.Empty(t, f.notifier.Types())
}

func TestPurchaseTicket_ExpiredReservationAtConfirmIsCritical(t *testing.T) {
	f := newSagaFixture(t)
	f.reservations.confirmErr = fmt.Errorf("%w: reservation expired", tickets.ErrReservationExpired)

	_, err := f.uc.PurchaseTicket(context.Background(), purchaseCommand(1, 1, "order-4"))

	perr := requirePurchaseError(t, err, KindCriticalInconsistency)
	assert.ErrorIs(t, err, tickets.ErrReservationExpired)
	assert.NotEmpty(t, perr.PaymentID)
	require.Len(t, f.escalator.incidents, 1)
	assert.Equal(t, "confirm-reservation", f.escalator.incidents[0].FailedStep)
	assert.Equal(t, 5, f.reservations.Stock())
}

func TestPurchaseTicket_CriticalRecordsCompensationFailure(t *testing.T) {
	f := newSagaFixture(t)
	f.reservations.confirmErr = tickets.ErrUnavailable
	f.reservations.releaseErr = tickets.ErrUnavailable
	f.escalator.err = errBoom

	_, err := f.uc.PurchaseTicket(context.Background(), purchaseCommand(1, 1, "order-5"))

	requirePurchaseError(t, err, KindCriticalInconsistency)
	require.Len(t, f.escalator.incidents, 1)
	assert.Contains(t, f.escalator.incidents[0].CompensationError, "release-reservation")
}

func TestPurchaseTicket_PaymentTransportErrorReleases(t *testing.T) {
	f := newSagaFixture(t)
	f.payments.err = fmt.Errorf("%w: status 503", payment.ErrTransport)

	_, err := f.uc.PurchaseTicket(context.Background(), purchaseCommand(1, 2, "order-6"))

	perr := requirePurchaseError(t, err, KindPaymentError)
	assert.ErrorIs(t, err, payment.ErrTransport)
	assert.Empty(t, perr.PaymentID)
	assert.Equal(t, 5, f.reservations.Stock())
	assert.Equal(t, map[string]int{"RELEASED": 1}, f.reservations.States())
	assert.Empty(t, f.notifier.Types())
}

func TestPurchaseTicket_OpenCircuitIsServiceUnavailable(t *testing.T) {
	f := newSagaFixture(t)
	f.payments.fallback = true

	_, err := f.uc.PurchaseTicket(context.Background(), purchaseCommand(1, 1, "order-7"))

	requirePurchaseError(t, err, KindServiceUnavailable)
	assert.Equal(t, 5, f.reservations.Stock())
	assert.Equal(t, map[string]int{"RELEASED": 1}, f.reservations.States())
}

func TestPurchaseTicket_CatalogPreCheckRejectsBeforeReserving(t *testing.T) {
	tests := []struct {
		name         string
		ticketTypeID int64
		quantity     int
	}{
		{name: "more than available", ticketTypeID: 1, quantity: 6},
		{name: "inactive ticket type", ticketTypeID: 3, quantity: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newSagaFixture(t)

			_, err := f.uc.PurchaseTicket(context.Background(), purchaseCommand(tt.ticketTypeID, tt.quantity, ""))

			requirePurchaseError(t, err, KindInsufficientStock)
			assert.Empty(t, f.reservations.States())
			assert.Zero(t, f.payments.calls)
		})
	}
}

func TestPurchaseTicket_ReservationInsufficientStock(t *testing.T) {
	// Arrange: catálogo ainda mostra saldo, mas outra compra levou o estoque
	f := newSagaFixture(t)
	f.reservations.stock = 1

	// Act
	_, err := f.uc.PurchaseTicket(context.Background(), purchaseCommand(1, 2, "order-8"))

	// Assert
	requirePurchaseError(t, err, KindInsufficientStock)
	assert.Zero(t, f.payments.calls)
	assert.Zero(t, f.reservations.releases, "nothing to compensate")
}

func TestPurchaseTicket_ReservationServiceDown(t *testing.T) {
	f := newSagaFixture(t)
	f.reservations.createErr = fmt.Errorf("%w: connection refused", tickets.ErrUnavailable)

	_, err := f.uc.PurchaseTicket(context.Background(), purchaseCommand(1, 1, "order-9"))

	requirePurchaseError(t, err, KindServiceUnavailable)
	assert.Zero(t, f.payments.calls)
}

func TestPurchaseTicket_CatalogErrors(t *testing.T) {
	f := newSagaFixture(t)

	_, err := f.uc.PurchaseTicket(context.Background(), purchaseCommand(99, 1, ""))
	requirePurchaseError(t, err, KindNotFound)

	f.catalog.err = fmt.Errorf("%w: timeout", inventory.ErrUnavailable)
	_, err = f.uc.PurchaseTicket(context.Background(), purchaseCommand(1, 1, ""))
	requirePurchaseError(t, err, KindServiceUnavailable)
}

func TestPurchaseTicket_ValidatesQuantity(t *testing.T) {
	f := newSagaFixture(t)

	_, err := f.uc.PurchaseTicket(context.Background(), purchaseCommand(1, 0, ""))

	requirePurchaseError(t, err, KindValidation)
}

func TestPurchaseTicket_WithoutEmailSkipsNotification(t *testing.T) {
	f := newSagaFixture(t)
	cmd := purchaseCommand(1, 1, "order-10")
	cmd.UserEmail = ""

	_, err := f.uc.PurchaseTicket(context.Background(), cmd)

	require.NoError(t, err)
	assert.Empty(t, f.notifier.Types())
}

func TestPurchaseTicket_GeneratesIdempotencyKeyWhenMissing(t *testing.T) {
	f := newSagaFixture(t)

	_, err := f.uc.PurchaseTicket(context.Background(), purchaseCommand(1, 1, ""))

	require.NoError(t, err)
	require.Len(t, f.payments.keys, 1)
	assert.True(t, strings.HasPrefix(f.payments.keys[0], "saga-"))
}

func TestPurchaseTicket_CompensationSurvivesCallerCancellation(t *testing.T) {
	// Arrange: o cliente desconecta durante o pagamento
	f := newSagaFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	f.payments.authorize = func(context.Context, payment.AuthorizeRequest) { cancel() }
	f.payments.err = fmt.Errorf("%w: context canceled", payment.ErrTransport)

	var releaseCtxErr error
	f.reservations.onRelease = func(ctx context.Context) { releaseCtxErr = ctx.Err() }

	// Act
	_, err := f.uc.PurchaseTicket(ctx, purchaseCommand(1, 2, ""))

	// Assert
	requirePurchaseError(t, err, KindPaymentError)
	assert.NoError(t, releaseCtxErr, "compensation must not inherit the caller cancellation")
	assert.Equal(t, 5, f.reservations.Stock())
}

func TestPurchaseTicket_DuplicateSubmissionKeepsStockConserved(t *testing.T) {
	// Arrange
	f := newSagaFixture(t)
	first, err := f.uc.PurchaseTicket(context.Background(), purchaseCommand(1, 2, "same-key"))
	require.NoError(t, err)

	// Act
	second, err := f.uc.PurchaseTicket(context.Background(), purchaseCommand(1, 2, "same-key"))

	// Assert
	require.NoError(t, err)
	assert.Equal(t, first.PaymentID, second.PaymentID)
	assert.Equal(t, first.TicketID, second.TicketID)
	assert.Equal(t, 3, f.reservations.Stock(), "only the first purchase keeps stock")
	assert.Equal(t, map[string]int{"CONFIRMED": 1, "RELEASED": 1}, f.reservations.States())
	assert.Len(t, f.payments.byKey, 1)
}

func TestPurchaseTicket_SameKeyFromAnotherUserIsIndependent(t *testing.T) {
	// Arrange
	f := newSagaFixture(t)
	first, err := f.uc.PurchaseTicket(context.Background(), purchaseCommand(1, 2, "order-1"))
	require.NoError(t, err)

	other := purchaseCommand(1, 1, "order-1")
	other.UserID = "user-2"

	// Act
	second, err := f.uc.PurchaseTicket(context.Background(), other)

	// Assert
	require.NoError(t, err)
	assert.NotEqual(t, first.PaymentID, second.PaymentID)
	assert.NotEqual(t, first.TicketID, second.TicketID)
	assert.Equal(t, "user-2", second.UserID)
	assert.Equal(t, 1, second.Quantity)
	assert.Equal(t, "user-2", f.issuer.byPayment[second.PaymentID].UserID)
	assert.Equal(t, 2, f.reservations.Stock())
	assert.Equal(t, map[string]int{"CONFIRMED": 2}, f.reservations.States())
	assert.Equal(t, []string{"user-1:order-1", "user-2:order-1"}, f.payments.keys)
}

func TestPurchaseTicket_RetryAfterCriticalConfirmsOwnReservation(t *testing.T) {
	// Arrange: a primeira execução paga mas perde a reserva antes de confirmar
	f := newSagaFixture(t)
	f.reservations.confirmErr = fmt.Errorf("%w: reservation expired", tickets.ErrReservationExpired)
	_, err := f.uc.PurchaseTicket(context.Background(), purchaseCommand(1, 2, "order-9"))
	requirePurchaseError(t, err, KindCriticalInconsistency)
	require.Equal(t, 5, f.reservations.Stock())
	f.reservations.confirmErr = nil

	// Act
	receipt, err := f.uc.PurchaseTicket(context.Background(), purchaseCommand(1, 2, "order-9"))

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "PAY-00000001", receipt.PaymentID)
	assert.Equal(t, 2, receipt.Quantity)
	assert.Equal(t, 3, f.reservations.Stock(), "the issued ticket must hold stock")
	assert.Equal(t, map[string]int{"RELEASED": 1, "CONFIRMED": 1}, f.reservations.States())
	assert.Len(t, f.issuer.byPayment, 1)
	assert.Len(t, f.payments.byKey, 1)
}

func TestPurchaseTicket_ReplayedPaymentForDifferentAmountConflicts(t *testing.T) {
	f := newSagaFixture(t)
	_, err := f.uc.PurchaseTicket(context.Background(), purchaseCommand(1, 2, "order-10"))
	require.NoError(t, err)

	_, err = f.uc.PurchaseTicket(context.Background(), purchaseCommand(1, 1, "order-10"))

	perr := requirePurchaseError(t, err, KindIdempotencyConflict)
	assert.Equal(t, "PAY-00000001", perr.PaymentID)
	assert.Equal(t, 3, f.reservations.Stock())
	assert.Len(t, f.issuer.byPayment, 1)
}

func TestPurchaseTicket_ReplayedTicketOfAnotherOwnerConflicts(t *testing.T) {
	// Arrange: pagamento e ingresso já existentes em nome de outro usuário
	f := newSagaFixture(t)
	f.payments.byKey["user-1:order-11"] = payment.Result{PaymentID: "PAY-00000077", Status: payment.StatusApproved, Amount: 250}
	f.issuer.byPayment["PAY-00000077"] = tickets.Ticket{TicketID: "TKT-00000077", UserID: "user-9", TicketTypeID: 1, Quantity: 1, PaymentID: "PAY-00000077"}

	// Act
	receipt, err := f.uc.PurchaseTicket(context.Background(), purchaseCommand(1, 1, "order-11"))

	// Assert
	assert.Nil(t, receipt)
	requirePurchaseError(t, err, KindIdempotencyConflict)
	assert.Equal(t, 5, f.reservations.Stock())
	assert.Equal(t, map[string]int{"RELEASED": 1}, f.reservations.States())
}

func TestPurchaseTicket_ReplayedPaymentLookupFailureReleases(t *testing.T) {
	f := newSagaFixture(t)
	f.payments.byKey["user-1:order-12"] = payment.Result{PaymentID: "PAY-00000088", Status: payment.StatusApproved, Amount: 250}
	f.issuer.lookupErr = fmt.Errorf("%w: connection refused", tickets.ErrUnavailable)

	_, err := f.uc.PurchaseTicket(context.Background(), purchaseCommand(1, 1, "order-12"))

	perr := requirePurchaseError(t, err, KindServiceUnavailable)
	assert.Equal(t, "PAY-00000088", perr.PaymentID)
	assert.Equal(t, 5, f.reservations.Stock())
	assert.Empty(t, f.escalator.incidents)
}

func TestPurchaseTicket_ConcurrentSameKeyChargesOnce(t *testing.T) {
	// Arrange
	f := newSagaFixture(t)
	const callers = 10
	var wg sync.WaitGroup
	receipts := make([]*TicketReceipt, callers)
	errs := make([]error, callers)

	// Act
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			receipts[i], errs[i] = f.uc.PurchaseTicket(context.Background(), purchaseCommand(1, 1, "concurrent-key"))
		}(i)
	}
	wg.Wait()

	// Assert
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, receipts[0].PaymentID, receipts[i].PaymentID)
		assert.Equal(t, receipts[0].TicketID, receipts[i].TicketID)
	}
	assert.Len(t, f.payments.byKey, 1)
	assert.Equal(t, 4, f.reservations.Stock())
	assert.Equal(t, 1, f.reservations.States()["CONFIRMED"])
}

func TestPurchaseError_KindStatusMapping(t *testing.T) {
	tests := map[Kind]int{
		KindValidation:            400,
		KindNotFound:              404,
		KindInsufficientStock:     409,
		KindPaymentRejected:       402,
		KindPaymentError:          502,
		KindServiceUnavailable:    503,
		KindCriticalInconsistency: 500,
		KindIdempotencyConflict:   409,
	}
	for kind, status := range tests {
		assert.Equal(t, status, kind.HTTPStatus(), kind)
	}

	err := newPurchaseError(KindPaymentError, "payment could not be processed", errBoom)
	assert.True(t, errors.Is(err, errBoom))
	assert.Contains(t, err.Error(), "PAYMENT_ERROR")
}
