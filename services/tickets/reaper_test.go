package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// selectiveStock falha ao devolver estoque de um tipo específico
type selectiveStock struct {
	*fakeStock
	brokenType int64
}

func (s selectiveStock) IncreaseStock(ctx context.Context, id int64, qty int) error {
	if id == s.brokenType {
		return errStockDown
	}
	return s.fakeStock.IncreaseStock(ctx, id, qty)
}

func TestReaper_Sweep_ReleasesOnlyExpired(t *testing.T) {
	// Arrange
	repo := NewMemoryRepository()
	stock := newFakeStock(ticketTypeID, 10)
	uc, clk := newTestReservationUseCase(t, repo, stock)
	reaper := NewReaper(uc, repo, time.Second, zaptest.NewLogger(t))

	old := createReservation(t, uc, 2)
	clk.Advance(8 * time.Minute)
	fresh := createReservation(t, uc, 3)
	clk.Advance(3 * time.Minute)

	// Act
	released, failed := reaper.Sweep(context.Background())

	// Assert
	assert.Equal(t, 1, released)
	assert.Equal(t, 0, failed)
	oldState, _ := repo.GetReservation(context.Background(), old.ID)
	freshState, _ := repo.GetReservation(context.Background(), fresh.ID)
	assert.Equal(t, StateReleased, oldState.State)
	assert.Equal(t, StateActive, freshState.State)
	assert.Equal(t, 7, stock.Available(ticketTypeID))
}

func TestReaper_Sweep_ContinuesAfterFailure(t *testing.T) {
	// Arrange
	repo := NewMemoryRepository()
	base := newFakeStock(ticketTypeID, 10)
	base.available[99] = 10
	uc, clk := newTestReservationUseCase(t, repo, selectiveStock{fakeStock: base, brokenType: 99})
	reaper := NewReaper(uc, repo, time.Second, zaptest.NewLogger(t))

	broken, err := uc.Create(context.Background(), CreateReservationRequest{TicketTypeID: 99, UserID: "u", Quantity: 1})
	require.NoError(t, err)
	clk.Advance(time.Second)
	healthy := createReservation(t, uc, 1)
	clk.Advance(DefaultReservationTTL + time.Minute)

	// Act
	released, failed := reaper.Sweep(context.Background())

	// Assert
	assert.Equal(t, 1, released)
	assert.Equal(t, 1, failed)
	brokenState, _ := repo.GetReservation(context.Background(), broken.ID)
	healthyState, _ := repo.GetReservation(context.Background(), healthy.ID)
	assert.Equal(t, StateActive, brokenState.State)
	assert.Equal(t, StateReleased, healthyState.State)
}

func TestReaper_Sweep_PagesPastFailingReservations(t *testing.T) {
	// Arrange: as duas reservas mais antigas não conseguem devolver estoque
	repo := NewMemoryRepository()
	base := newFakeStock(ticketTypeID, 10)
	base.available[99] = 10
	uc, clk := newTestReservationUseCase(t, repo, selectiveStock{fakeStock: base, brokenType: 99})
	reaper := NewReaper(uc, repo, time.Second, zaptest.NewLogger(t))
	reaper.batchSize = 2

	for i := 0; i < 2; i++ {
		_, err := uc.Create(context.Background(), CreateReservationRequest{TicketTypeID: 99, UserID: "u", Quantity: 1})
		require.NoError(t, err)
		clk.Advance(time.Second)
	}
	var healthy []*Reservation
	for i := 0; i < 3; i++ {
		healthy = append(healthy, createReservation(t, uc, 1))
		clk.Advance(time.Second)
	}
	clk.Advance(DefaultReservationTTL + time.Minute)

	// Act
	released, failed := reaper.Sweep(context.Background())

	// Assert
	assert.Equal(t, 3, released)
	assert.Equal(t, 2, failed)
	for _, res := range healthy {
		state, _ := repo.GetReservation(context.Background(), res.ID)
		assert.Equal(t, StateReleased, state.State)
	}
	assert.Equal(t, 10, base.Available(ticketTypeID))
}

func TestReaper_Sweep_ConfirmedReservationsAreNotTouched(t *testing.T) {
	repo := NewMemoryRepository()
	stock := newFakeStock(ticketTypeID, 10)
	uc, clk := newTestReservationUseCase(t, repo, stock)
	reaper := NewReaper(uc, repo, time.Second, zaptest.NewLogger(t))
	res := createReservation(t, uc, 2)
	_, err := uc.Confirm(context.Background(), res.ID)
	require.NoError(t, err)
	clk.Advance(time.Hour)

	released, _ := reaper.Sweep(context.Background())

	assert.Equal(t, 0, released)
	assert.Equal(t, 8, stock.Available(ticketTypeID))
}

func TestReaper_Run_StopsOnCancel(t *testing.T) {
	repo := NewMemoryRepository()
	uc, _ := newTestReservationUseCase(t, repo, newFakeStock(ticketTypeID, 1))
	reaper := NewReaper(uc, repo, 10*time.Millisecond, zaptest.NewLogger(t))
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- reaper.Run(ctx) }()
	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("reaper did not stop")
	}
}
