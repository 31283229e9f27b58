// Package server expone hacia las pantallas de la PDA la API JSON del
// cliente de almacén: sesión, consultas de stock, flujo de traslado,
// picking y el clasificador de escaneos.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"github.com/Nestorcanpac/pda-app/internal/picking"
	"github.com/Nestorcanpac/pda-app/internal/sap"
	"github.com/Nestorcanpac/pda-app/internal/session"
	"github.com/Nestorcanpac/pda-app/internal/stock"
	"github.com/Nestorcanpac/pda-app/internal/transfer"
)

// FactorSource es lo que la pantalla de traslado necesita para conocer las
// unidades por caja al entrar en un lote.
type FactorSource interface {
	PackageFactor(ctx context.Context, itemCode string) (decimal.Decimal, bool, error)
}

// Pinger comprueba que el servicio de inventario responde.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Directory resuelve el nombre de un operario por su número de tarjeta.
type Directory interface {
	EmployeeName(ctx context.Context, cardNumber string) (string, error)
}

type Server struct {
	log      *slog.Logger
	sessions *session.Manager
	locator  *stock.Locator
	builder  *transfer.Builder
	board    *picking.Board
	queries  stock.QueryExecutor
	factors  FactorSource
	pinger   Pinger
	staff    Directory
	gate     session.Gate

	scanThreshold time.Duration
	scanners      *scannerRegistry

	srv *http.Server
}

type Options struct {
	Addr          string
	Metrics       bool
	ScanThreshold time.Duration
}

func New(opts Options, log *slog.Logger, sessions *session.Manager, locator *stock.Locator,
	builder *transfer.Builder, board *picking.Board, queries stock.QueryExecutor,
	factors FactorSource, pinger Pinger, staff Directory) *Server {

	s := &Server{
		log:           log,
		sessions:      sessions,
		locator:       locator,
		builder:       builder,
		board:         board,
		queries:       queries,
		factors:       factors,
		pinger:        pinger,
		staff:         staff,
		gate:          sessions,
		scanThreshold: opts.ScanThreshold,
		scanners:      newScannerRegistry(),
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), s.requestLog())

	router.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})
	if opts.Metrics {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	api := router.Group("/api")
	{
		api.GET("/ping", s.handlePing)
		api.POST("/login", s.handleLogin)
		api.POST("/logout", s.handleLogout)
		api.GET("/session", s.handleSession)
		api.GET("/employee/:card", s.handleEmployee)

		api.POST("/query/:name", s.handleQuery)

		api.POST("/stock/bin", s.handleStockByBin)
		api.POST("/stock/lot", s.handleStockByLot)
		api.GET("/stock/export", s.handleStockExport)

		api.POST("/transfer", s.handleTransferBegin)
		api.GET("/transfer/:id", s.handleTransferGet)
		api.POST("/transfer/:id/mode", s.handleTransferMode)
		api.POST("/transfer/:id/cases", s.handleTransferCases)
		api.POST("/transfer/:id/quantity", s.handleTransferQuantity)
		api.POST("/transfer/:id/destination", s.handleTransferDestination)
		api.POST("/transfer/:id/confirm", s.handleTransferConfirm)
		api.POST("/transfer/:id/submit", s.handleTransferSubmit)
		api.DELETE("/transfer/:id", s.handleTransferCancel)

		api.POST("/scan/keys", s.handleScanKeys)
		api.DELETE("/scan/:screen", s.handleScanDetach)

		api.GET("/picking", s.handlePickingList)
		api.POST("/picking/:id/lines/:line/toggle", s.handlePickingToggle)
	}

	s.srv = &http.Server{Addr: opts.Addr, Handler: router}
	return s
}

func (s *Server) Start() error {
	return s.srv.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"dur", time.Since(start).String(),
		)
	}
}

// ok responde con el sobre {ok:true, data} que esperan las pantallas.
func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{"ok": true, "data": data})
}

// fail responde {ok:false, error, kind} con el estado HTTP según la clase
// del error.
func fail(c *gin.Context, err error) {
	se := sap.AsError(err)
	status := http.StatusBadRequest
	switch se.Kind {
	case sap.KindSession:
		status = http.StatusUnauthorized
	case sap.KindNetwork:
		status = http.StatusBadGateway
	case sap.KindRejected:
		status = http.StatusUnprocessableEntity
	}
	c.JSON(status, gin.H{"ok": false, "error": se.Message, "kind": string(se.Kind)})
}

// failState es fail pero adjuntando el estado del intento para que la
// pantalla pueda pintarlo junto al mensaje.
func failState(c *gin.Context, snap transfer.Snapshot, err error) {
	se := sap.AsError(err)
	status := http.StatusBadRequest
	switch se.Kind {
	case sap.KindSession:
		status = http.StatusUnauthorized
	case sap.KindNetwork:
		status = http.StatusBadGateway
	case sap.KindRejected:
		status = http.StatusUnprocessableEntity
	}
	c.JSON(status, gin.H{"ok": false, "error": se.Message, "kind": string(se.Kind), "data": snap})
}
