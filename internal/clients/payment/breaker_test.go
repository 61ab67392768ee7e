package payment

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var errBoom = errors.New("boom")

type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time { return f.now }

func (f *fakeClock) Advance(d time.Duration) { f.now = f.now.Add(d) }

func newTestBreaker() (*CircuitBreaker, *fakeClock) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	cb := NewCircuitBreaker(DefaultBreakerConfig())
	cb.now = clock.Now
	return cb, clock
}

func succeed() error { return nil }
func fail() error    { return errBoom }

func TestCircuitBreaker_StaysClosedBelowMinimumCalls(t *testing.T) {
	cb, _ := newTestBreaker()

	for i := 0; i < 4; i++ {
		assert.ErrorIs(t, cb.Execute(fail), errBoom)
	}

	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_OpensAtFiftyPercentFailures(t *testing.T) {
	// Arrange
	cb, _ := newTestBreaker()
	var transitions []BreakerState
	cb.onStateChange = func(_, to BreakerState) { transitions = append(transitions, to) }

	// Act: 3 sucessos + 3 falhas = 50% de 6 chamadas
	for i := 0; i < 3; i++ {
		assert.NoError(t, cb.Execute(succeed))
	}
	for i := 0; i < 3; i++ {
		_ = cb.Execute(fail)
	}

	// Assert
	assert.Equal(t, StateOpen, cb.State())
	assert.Equal(t, []BreakerState{StateOpen}, transitions)
}

func TestCircuitBreaker_StaysClosedBelowThreshold(t *testing.T) {
	cb, _ := newTestBreaker()

	for i := 0; i < 6; i++ {
		assert.NoError(t, cb.Execute(succeed))
	}
	for i := 0; i < 4; i++ {
		_ = cb.Execute(fail)
	}

	// 4 falhas em 10 = 40%
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_WindowOnlyCountsRecentCalls(t *testing.T) {
	cb, _ := newTestBreaker()

	for i := 0; i < 10; i++ {
		assert.NoError(t, cb.Execute(succeed))
	}
	for i := 0; i < 4; i++ {
		_ = cb.Execute(fail)
	}
	// janela: 6 sucessos + 4 falhas
	assert.Equal(t, StateClosed, cb.State())

	_ = cb.Execute(fail)

	// 5 de 10 na janela, embora só 5 de 15 no total
	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreaker_FailsFastWhileOpen(t *testing.T) {
	cb, clock := newTestBreaker()
	for i := 0; i < 5; i++ {
		_ = cb.Execute(fail)
	}
	called := false

	clock.Advance(29 * time.Second)
	err := cb.Execute(func() error {
		called = true
		return nil
	})

	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestCircuitBreaker_HalfOpenClosesOnSuccessfulTrials(t *testing.T) {
	// Arrange
	cb, clock := newTestBreaker()
	for i := 0; i < 5; i++ {
		_ = cb.Execute(fail)
	}
	clock.Advance(30 * time.Second)
	assert.Equal(t, StateHalfOpen, cb.State())

	// Act: 2 sucessos e 1 falha = 33%
	assert.NoError(t, cb.Execute(succeed))
	_ = cb.Execute(fail)
	assert.NoError(t, cb.Execute(succeed))

	// Assert
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenReopensOnFailures(t *testing.T) {
	cb, clock := newTestBreaker()
	for i := 0; i < 5; i++ {
		_ = cb.Execute(fail)
	}
	clock.Advance(30 * time.Second)

	_ = cb.Execute(fail)
	_ = cb.Execute(fail)
	assert.NoError(t, cb.Execute(succeed))

	assert.Equal(t, StateOpen, cb.State())
	assert.ErrorIs(t, cb.Execute(succeed), ErrCircuitOpen)
}

func TestCircuitBreaker_HalfOpenLimitsTrialCalls(t *testing.T) {
	cb, clock := newTestBreaker()
	for i := 0; i < 5; i++ {
		_ = cb.Execute(fail)
	}
	clock.Advance(30 * time.Second)

	release := make(chan struct{})
	started := make(chan struct{}, 3)
	done := make(chan struct{}, 3)
	for i := 0; i < 3; i++ {
		go func() {
			_ = cb.Execute(func() error {
				started <- struct{}{}
				<-release
				return nil
			})
			done <- struct{}{}
		}()
	}
	for i := 0; i < 3; i++ {
		<-started
	}

	// a quarta chamada excede as 3 permitidas em half-open
	assert.ErrorIs(t, cb.Execute(succeed), ErrCircuitOpen)

	close(release)
	for i := 0; i < 3; i++ {
		<-done
	}
	assert.Equal(t, StateClosed, cb.State())
}

func TestNewCircuitBreaker_AppliesDefaults(t *testing.T) {
	cb := NewCircuitBreaker(BreakerConfig{})

	assert.Equal(t, DefaultBreakerConfig(), cb.cfg)
	assert.Equal(t, StateClosed, cb.State())
}
