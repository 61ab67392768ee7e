package payment

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen é retornado sem chamar o serviço enquanto o circuito está aberto
var ErrCircuitOpen = errors.New("payment: circuit breaker is open")

// BreakerState representa os estados do circuit breaker
type BreakerState string

const (
	StateClosed   BreakerState = "CLOSED"
	StateOpen     BreakerState = "OPEN"
	StateHalfOpen BreakerState = "HALF_OPEN"
)

// BreakerConfig segue a janela por contagem: últimas WindowSize chamadas,
// avaliada a partir de MinimumCalls.
type BreakerConfig struct {
	WindowSize           int
	MinimumCalls         int
	FailureRateThreshold float64
	OpenDuration         time.Duration
	HalfOpenCalls        int
}

// DefaultBreakerConfig: 10 chamadas, mínimo 5, 50%, 30s aberto, 3 chamadas de teste
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		WindowSize:           10,
		MinimumCalls:         5,
		FailureRateThreshold: 0.5,
		OpenDuration:         30 * time.Second,
		HalfOpenCalls:        3,
	}
}

// CircuitBreaker com janela deslizante por contagem
type CircuitBreaker struct {
	cfg           BreakerConfig
	now           func() time.Time
	onStateChange func(from, to BreakerState)

	mu       sync.Mutex
	state    BreakerState
	window   []bool // true = falha
	next     int
	filled   int
	openedAt time.Time

	halfOpenInFlight int
	halfOpenDone     int
	halfOpenFailures int
}

// NewCircuitBreaker cria o breaker no estado fechado
func NewCircuitBreaker(cfg BreakerConfig) *CircuitBreaker {
	def := DefaultBreakerConfig()
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = def.WindowSize
	}
	if cfg.MinimumCalls <= 0 {
		cfg.MinimumCalls = def.MinimumCalls
	}
	if cfg.MinimumCalls > cfg.WindowSize {
		cfg.MinimumCalls = cfg.WindowSize
	}
	if cfg.FailureRateThreshold <= 0 {
		cfg.FailureRateThreshold = def.FailureRateThreshold
	}
	if cfg.OpenDuration <= 0 {
		cfg.OpenDuration = def.OpenDuration
	}
	if cfg.HalfOpenCalls <= 0 {
		cfg.HalfOpenCalls = def.HalfOpenCalls
	}

	return &CircuitBreaker{
		cfg:    cfg,
		now:    time.Now,
		state:  StateClosed,
		window: make([]bool, cfg.WindowSize),
	}
}

// State retorna o estado atual, já considerando a expiração do período aberto
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.refreshLocked()
	return cb.state
}

// Execute chama fn se o circuito permitir e registra o resultado.
// Erros de fn contam como falha; nil conta como sucesso.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	halfOpen, err := cb.acquire()
	if err != nil {
		return err
	}

	fnErr := fn()
	cb.record(halfOpen, fnErr != nil)
	return fnErr
}

func (cb *CircuitBreaker) acquire() (halfOpen bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.refreshLocked()

	switch cb.state {
	case StateOpen:
		return false, ErrCircuitOpen
	case StateHalfOpen:
		if cb.halfOpenInFlight+cb.halfOpenDone >= cb.cfg.HalfOpenCalls {
			return false, ErrCircuitOpen
		}
		cb.halfOpenInFlight++
		return true, nil
	default:
		return false, nil
	}
}

func (cb *CircuitBreaker) record(halfOpen, failed bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if halfOpen {
		// o circuito pode ter mudado enquanto a chamada estava em andamento
		if cb.state != StateHalfOpen {
			return
		}
		cb.halfOpenInFlight--
		cb.halfOpenDone++
		if failed {
			cb.halfOpenFailures++
		}
		if cb.halfOpenDone < cb.cfg.HalfOpenCalls {
			return
		}
		rate := float64(cb.halfOpenFailures) / float64(cb.halfOpenDone)
		if rate >= cb.cfg.FailureRateThreshold {
			cb.transitionLocked(StateOpen)
		} else {
			cb.transitionLocked(StateClosed)
		}
		return
	}

	if cb.state != StateClosed {
		return
	}

	cb.window[cb.next] = failed
	cb.next = (cb.next + 1) % len(cb.window)
	if cb.filled < len(cb.window) {
		cb.filled++
	}

	if cb.filled < cb.cfg.MinimumCalls {
		return
	}

	failures := 0
	for i := 0; i < cb.filled; i++ {
		if cb.window[i] {
			failures++
		}
	}
	if float64(failures)/float64(cb.filled) >= cb.cfg.FailureRateThreshold {
		cb.transitionLocked(StateOpen)
	}
}

func (cb *CircuitBreaker) refreshLocked() {
	if cb.state == StateOpen && !cb.now().Before(cb.openedAt.Add(cb.cfg.OpenDuration)) {
		cb.transitionLocked(StateHalfOpen)
	}
}

func (cb *CircuitBreaker) transitionLocked(to BreakerState) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to

	switch to {
	case StateOpen:
		cb.openedAt = cb.now()
	case StateClosed:
		cb.resetWindowLocked()
	}
	cb.halfOpenInFlight = 0
	cb.halfOpenDone = 0
	cb.halfOpenFailures = 0

	if cb.onStateChange != nil {
		cb.onStateChange(from, to)
	}
}

func (cb *CircuitBreaker) resetWindowLocked() {
	for i := range cb.window {
		cb.window[i] = false
	}
	cb.next = 0
	cb.filled = 0
}
