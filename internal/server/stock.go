package server

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Nestorcanpac/pda-app/internal/sap"
	"github.com/Nestorcanpac/pda-app/internal/stock"
)

func errBadRequest(err error) *sap.Error {
	return sap.Validation("Petición inválida: %v", err)
}

type binRequest struct {
	BinCode string `json:"binCode"`
}

type lotRequest struct {
	Lote string `json:"lote"`
}

type queryRequest map[string]string

func searchPayload(res stock.Result) gin.H {
	return gin.H{
		"kind":    res.Kind.String(),
		"lots":    res.Lots,
		"factors": res.Factors,
	}
}

func (s *Server) handleStockByBin(c *gin.Context) {
	var req binRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, errBadRequest(err))
		return
	}
	res, err := s.locator.ByBin(c.Request.Context(), req.BinCode)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, searchPayload(res))
}

func (s *Server) handleStockByLot(c *gin.Context) {
	var req lotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, errBadRequest(err))
		return
	}
	res, err := s.locator.ByLot(c.Request.Context(), req.Lote)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, searchPayload(res))
}

// handleStockExport descarga el resultado de una consulta de bin como .xlsx.
func (s *Server) handleStockExport(c *gin.Context) {
	binCode := c.Query("bin")
	res, err := s.locator.ByBin(c.Request.Context(), binCode)
	if err != nil {
		fail(c, err)
		return
	}
	if res.Kind != stock.Found {
		fail(c, sap.Validation("No se encontraron resultados para este bin"))
		return
	}

	f, err := stock.ExportWorkbook(binCode, res.Lots)
	if err != nil {
		s.log.Error("stock export failed", "bin", binCode, "err", err)
		fail(c, sap.Validation("Error al generar el fichero de stock"))
		return
	}
	defer func() { _ = f.Close() }()

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=stock_%s.xlsx", binCode))
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Status(http.StatusOK)
	if err := f.Write(c.Writer); err != nil {
		s.log.Error("stock export write failed", "bin", binCode, "err", err)
	}
}

// handleQuery es el proxy genérico de queries con nombre que usa la
// pantalla de diagnóstico: parámetros planos, nunca sintaxis pre-formateada.
func (s *Server) handleQuery(c *gin.Context) {
	var params queryRequest
	if err := c.ShouldBindJSON(&params); err != nil {
		fail(c, errBadRequest(err))
		return
	}
	if !s.gate.Valid() && !s.gate.Refresh(c.Request.Context()) {
		fail(c, sap.SessionExpired())
		return
	}
	rows, err := s.queries.ExecuteQuery(c.Request.Context(), c.Param("name"), params)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, rows)
}
