package sap

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker"

	"github.com/Nestorcanpac/pda-app/internal/infra/metrics"
)

type Config struct {
	BaseURL   string // p.ej. https://srvhana:50000/b1s/v1
	ODataURL  string // servicio OData auxiliar (ItemVersion, Employee)
	CompanyDB string
	Timeout   time.Duration
}

// SessionInfo es la respuesta del Login del Service Layer.
type SessionInfo struct {
	SessionID      string `json:"SessionId"`
	Version        string `json:"Version"`
	SessionTimeout int    `json:"SessionTimeout"` // minutos
}

// Client habla con el Service Layer de SAP B1. Todas las llamadas pasan por
// el circuit breaker; los errores salen siempre normalizados como *Error.
type Client struct {
	http    *resty.Client
	odata   *resty.Client
	breaker *gobreaker.CircuitBreaker
	log     *slog.Logger

	companyDB string

	mu        sync.RWMutex
	sessionID string
}

func NewClient(cfg Config, log *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:     "service-layer",
		Interval: 15 * time.Second,
		Timeout:  30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && ratio >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.BreakerState.WithLabelValues(name).Set(breakerStateValue(to))
			log.Info("circuit breaker state changed", "circuit", name, "from", from.String(), "to", to.String())
		},
		// Un rechazo del Service Layer no es un fallo de infraestructura:
		// solo cuentan para abrir el circuito los errores de red y sesión.
		IsSuccessful: func(err error) bool {
			se := AsError(err)
			return se == nil || se.Kind == KindRejected
		},
	})

	return &Client{
		http:      resty.New().SetBaseURL(cfg.BaseURL).SetTimeout(timeout).SetRetryCount(0),
		odata:     resty.New().SetBaseURL(cfg.ODataURL).SetTimeout(timeout).SetRetryCount(0),
		breaker:   breaker,
		log:       log,
		companyDB: cfg.CompanyDB,
	}
}

func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateOpen:
		return 1
	case gobreaker.StateHalfOpen:
		return 2
	default:
		return 0
	}
}

// SessionID devuelve el id de sesión actual ("" si no hay sesión).
func (c *Client) SessionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID
}

func (c *Client) setSession(id string) {
	c.mu.Lock()
	c.sessionID = id
	c.mu.Unlock()
}

// Login abre sesión en el Service Layer y guarda el SessionId para las
// llamadas siguientes.
func (c *Client) Login(ctx context.Context, userName, password string) (SessionInfo, error) {
	var info SessionInfo
	body := map[string]string{
		"CompanyDB": c.companyDB,
		"UserName":  userName,
		"Password":  password,
	}
	err := c.do(ctx, "Login", func() (*resty.Response, error) {
		return c.http.R().
			SetContext(ctx).
			SetBody(body).
			SetResult(&info).
			Post("/Login")
	})
	if err != nil {
		return SessionInfo{}, err
	}
	c.setSession(info.SessionID)
	return info, nil
}

// Logout cierra la sesión. Ignora el fallo si la sesión ya había caducado.
func (c *Client) Logout(ctx context.Context) {
	sid := c.SessionID()
	c.setSession("")
	if sid == "" {
		return
	}
	_, err := c.http.R().
		SetContext(ctx).
		SetHeader("B1SESSION", sid).
		Post("/Logout")
	if err != nil {
		c.log.Warn("logout failed", "err", err)
	}
}

// do ejecuta una llamada a través del breaker y normaliza el resultado.
func (c *Client) do(ctx context.Context, op string, call func() (*resty.Response, error)) error {
	start := time.Now()
	_, err := c.breaker.Execute(func() (any, error) {
		resp, err := call()
		if err != nil {
			return nil, Network()
		}
		if resp.StatusCode() >= 400 {
			return nil, FromResponse(resp.StatusCode(), resp.Body())
		}
		return nil, nil
	})
	metrics.ServiceLayerDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err == nil {
		return nil
	}
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return Network()
	}
	se := AsError(err)
	if se.Kind == KindSession {
		// La sesión guardada ya no sirve.
		c.setSession("")
	}
	c.log.Warn("service layer call failed", "op", op, "kind", string(se.Kind), "status", se.Status, "msg", se.Message)
	return se
}

func (c *Client) authed(ctx context.Context) (*resty.Request, error) {
	sid := c.SessionID()
	if sid == "" {
		return nil, SessionExpired()
	}
	return c.http.R().SetContext(ctx).SetHeader("B1SESSION", sid), nil
}

// CreateStockTransfer da de alta un documento StockTransfers. Devuelve el
// acuse del Service Layer tal cual.
func (c *Client) CreateStockTransfer(ctx context.Context, payload any) (map[string]any, error) {
	var ack map[string]any
	req, err := c.authed(ctx)
	if err != nil {
		return nil, err
	}
	err = c.do(ctx, "StockTransfers", func() (*resty.Response, error) {
		return req.SetBody(payload).SetResult(&ack).Post("/StockTransfers")
	})
	if err != nil {
		return nil, err
	}
	return ack, nil
}

// odataFirst consulta una entidad del servicio OData filtrando por un campo
// y devuelve la primera fila, o nil si no hay resultados.
func (c *Client) odataFirst(ctx context.Context, entity, field, value string) (map[string]any, error) {
	var out struct {
		Value []map[string]any `json:"value"`
	}
	err := c.do(ctx, "odata/"+entity, func() (*resty.Response, error) {
		return c.odata.R().
			SetContext(ctx).
			SetQueryParam("$filter", fmt.Sprintf("%s eq '%s'", field, value)).
			SetHeader("Accept", "application/json").
			SetResult(&out).
			Get("/" + entity)
	})
	if err != nil {
		return nil, err
	}
	if len(out.Value) == 0 {
		return nil, nil
	}
	return out.Value[0], nil
}

// Ping comprueba que el Service Layer responde (basta con que conteste,
// aunque sea 401: eso ya prueba conectividad).
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.http.R().SetContext(ctx).Get("/")
	if err != nil {
		return Network()
	}
	if resp.StatusCode() >= http.StatusInternalServerError {
		return Network()
	}
	return nil
}
