// Package payment é o cliente resiliente do serviço de pagamentos:
// retry com backoff exponencial para falhas de transporte e circuit breaker com fallback.
package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/matheusmosca/ticket-purchase-saga/internal/platform/httpclient"
)

// ErrTransport indica falha de rede, timeout ou resposta 5xx
var ErrTransport = errors.New("payment: transport failure")

// Status do resultado de uma autorização
type Status string

const (
	StatusApproved           Status = "APPROVED"
	StatusRejected           Status = "REJECTED"
	StatusServiceUnavailable Status = "SERVICE_UNAVAILABLE"
)

// DefaultReadTimeout é o tempo máximo de processamento de uma autorização
const DefaultReadTimeout = 30 * time.Second

// AuthorizeRequest é o payload enviado ao serviço de pagamentos
type AuthorizeRequest struct {
	IdempotencyKey string  `json:"idempotency_key,omitempty"`
	Amount         float64 `json:"amount"`
	CardNumber     string  `json:"card_number"`
	CVV            string  `json:"cvv"`
	ExpiryDate     string  `json:"expiry_date"`
	CardHolder     string  `json:"card_holder"`
}

// Result é a resposta estruturada: aprovação, recusa ou indisponibilidade (fallback)
type Result struct {
	PaymentID string  `json:"payment_id"`
	Status    Status  `json:"status"`
	Amount    float64 `json:"amount"`
	Message   string  `json:"message"`
	Replayed  bool    `json:"replayed"`
	// Attempts é o número de tentativas feitas até obter o resultado
	Attempts  int     `json:"-"`
}

type wireResponse struct {
	Result
	Error string `json:"error"`
}

// Client autoriza pagamentos com retry e circuit breaker
type Client struct {
	http           *resty.Client
	breaker        *CircuitBreaker
	attempts       uint
	initialBackoff time.Duration
	logger         *zap.Logger
	fallbacks      metric.Int64Counter
	retries        metric.Int64Counter
}

// Option customiza o Client
type Option func(*Client)

// WithRetry define tentativas e o primeiro intervalo do backoff (multiplicador 2)
func WithRetry(attempts int, initialBackoff time.Duration) Option {
	return func(c *Client) {
		if attempts > 0 {
			c.attempts = uint(attempts)
		}
		if initialBackoff > 0 {
			c.initialBackoff = initialBackoff
		}
	}
}

// WithBreaker substitui o circuit breaker padrão
func WithBreaker(cb *CircuitBreaker) Option {
	return func(c *Client) {
		c.breaker = cb
	}
}

// WithLogger define o logger
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient cria o cliente com 3 tentativas, backoff de 1s e breaker padrão
func NewClient(cfg httpclient.Config, opts ...Option) *Client {
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}

	c := &Client{
		http:           httpclient.New(cfg),
		attempts:       3,
		initialBackoff: time.Second,
		logger:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.breaker == nil {
		c.breaker = NewCircuitBreaker(DefaultBreakerConfig())
	}

	meter := otel.Meter("payment-client")
	c.fallbacks, _ = meter.Int64Counter("payment_client_fallbacks_total")
	c.retries, _ = meter.Int64Counter("payment_client_retries_total")

	stateChanges, _ := meter.Int64Counter("payment_client_breaker_transitions_total")
	c.breaker.onStateChange = func(from, to BreakerState) {
		c.logger.Warn("⚡ Payment circuit breaker state change",
			zap.String("from", string(from)),
			zap.String("to", string(to)))
		stateChanges.Add(context.Background(), 1, metric.WithAttributes(attribute.String("to", string(to))))
	}

	return c
}

// Breaker expõe o circuit breaker (health/diagnóstico)
func (c *Client) Breaker() *CircuitBreaker {
	return c.breaker
}

// Authorize envia a autorização. Recusas voltam como Result (nunca com retry);
// falhas de transporte são repetidas e, esgotadas as tentativas, retornam ErrTransport.
// Com o circuito aberto retorna Result SERVICE_UNAVAILABLE sem erro.
func (c *Client) Authorize(ctx context.Context, req AuthorizeRequest) (*Result, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.initialBackoff
	policy.Multiplier = 2
	policy.RandomizationFactor = 0

	attempt := 0
	result, err := backoff.Retry(ctx, func() (*Result, error) {
		attempt++
		var res *Result
		err := c.breaker.Execute(func() error {
			r, err := c.send(ctx, req)
			if err != nil {
				return err
			}
			res = r
			return nil
		})
		if errors.Is(err, ErrCircuitOpen) {
			return nil, backoff.Permanent(err)
		}
		if err != nil {
			return nil, err
		}
		return res, nil
	},
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(c.attempts),
		backoff.WithNotify(func(err error, wait time.Duration) {
			c.retries.Add(ctx, 1)
			c.logger.Warn("🔁 Retrying payment authorization",
				zap.String("idempotency_key", req.IdempotencyKey),
				zap.Int("attempt", attempt),
				zap.Duration("backoff", wait),
				zap.Error(err))
		}),
	)

	if errors.Is(err, ErrCircuitOpen) {
		c.fallbacks.Add(ctx, 1)
		c.logger.Error("❌ Payment service unavailable, using fallback",
			zap.String("idempotency_key", req.IdempotencyKey),
			zap.Error(err))
		return &Result{
			Status:  StatusServiceUnavailable,
			Amount:  req.Amount,
			Message: "payment service unavailable, try again later",
		}, nil
	}
	if err != nil {
		return nil, err
	}
	result.Attempts = attempt
	return result, nil
}

func (c *Client) send(ctx context.Context, req AuthorizeRequest) (*Result, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Idempotency-Key", req.IdempotencyKey).
		SetBody(req).
		SetResult(&wireResponse{}).
		SetError(&wireResponse{}).
		Post("/api/payments/authorize")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	if httpclient.IsServerError(resp) {
		return nil, fmt.Errorf("%w: status %d", ErrTransport, resp.StatusCode())
	}

	var body *wireResponse
	if resp.IsError() {
		body, _ = resp.Error().(*wireResponse)
	} else {
		body, _ = resp.Result().(*wireResponse)
	}
	if body == nil {
		body = &wireResponse{}
	}

	res := body.Result
	if resp.IsError() {
		// 402 e demais 4xx são recusas estruturadas
		res.Status = StatusRejected
		if res.Message == "" {
			res.Message = body.Error
		}
		if res.Message == "" {
			res.Message = fmt.Sprintf("payment rejected (status %d)", resp.StatusCode())
		}
	}
	if res.Status == "" {
		return nil, fmt.Errorf("%w: response without status (http %d)", ErrTransport, resp.StatusCode())
	}
	if resp.StatusCode() == http.StatusOK && res.Status != StatusApproved && res.Status != StatusRejected {
		return nil, fmt.Errorf("%w: unknown payment status %q", ErrTransport, res.Status)
	}
	return &res, nil
}
