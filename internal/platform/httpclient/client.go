// Package httpclient cria clientes resty com timeouts de conexão/leitura e propagação de trace.
package httpclient

import (
	"net"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// DefaultConnectTimeout é o limite para estabelecer a conexão TCP com o colaborador
const DefaultConnectTimeout = 10 * time.Second

// Config define destino e limites de tempo de um colaborador
type Config struct {
	BaseURL        string
	ConnectTimeout time.Duration
	// ReadTimeout cobre a requisição inteira, incluindo leitura da resposta
	ReadTimeout time.Duration
}

// New cria um cliente resty sem retry próprio; quem precisar de retry decide a política.
func New(cfg Config) *resty.Client {
	connectTimeout := cfg.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = DefaultConnectTimeout
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   connectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   connectTimeout,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   20,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: time.Second,
	}

	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTransport(transport).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	if cfg.ReadTimeout > 0 {
		client.SetTimeout(cfg.ReadTimeout)
	}

	client.OnBeforeRequest(injectTraceContext)

	return client
}

func injectTraceContext(_ *resty.Client, req *resty.Request) error {
	otel.GetTextMapPropagator().Inject(req.Context(), propagation.HeaderCarrier(req.Header))
	return nil
}

// IsServerError indica resposta 5xx, tratada pelos clientes como falha de transporte
func IsServerError(resp *resty.Response) bool {
	return resp != nil && resp.StatusCode() >= http.StatusInternalServerError
}
