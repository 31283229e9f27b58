package server

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Nestorcanpac/pda-app/internal/sap"
	"github.com/Nestorcanpac/pda-app/internal/stock"
	"github.com/Nestorcanpac/pda-app/internal/transfer"
)

type beginTransferRequest struct {
	Lot stock.Lot `json:"lot" binding:"required"`
}

// handleTransferBegin crea un intento de traslado a partir del lote que el
// operador ha seleccionado en la lista. El factor de caja se consulta al
// entrar; si no se puede obtener, el modo cajas queda deshabilitado pero la
// pantalla se abre igualmente.
func (s *Server) handleTransferBegin(c *gin.Context) {
	var req beginTransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, errBadRequest(err))
		return
	}

	factor := decimal.Zero
	hasFactor := false
	if req.Lot.ItemCode != "" {
		f, found, err := s.factors.PackageFactor(c.Request.Context(), req.Lot.ItemCode)
		if err != nil {
			s.log.Warn("package factor unavailable", "item", req.Lot.ItemCode, "err", err)
		} else if found {
			factor, hasFactor = f, true
		}
	}

	ok(c, s.builder.Begin(req.Lot, factor, hasFactor))
}

func intentID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		fail(c, sap.Validation("Identificador de movimiento inválido"))
		return uuid.Nil, false
	}
	return id, true
}

func respond(c *gin.Context, snap transfer.Snapshot, err error) {
	if err != nil {
		failState(c, snap, err)
		return
	}
	ok(c, snap)
}

func (s *Server) handleTransferGet(c *gin.Context) {
	id, valid := intentID(c)
	if !valid {
		return
	}
	snap, err := s.builder.Get(id)
	respond(c, snap, err)
}

func (s *Server) handleTransferMode(c *gin.Context) {
	id, valid := intentID(c)
	if !valid {
		return
	}
	var req struct {
		Mode transfer.Mode `json:"mode"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, errBadRequest(err))
		return
	}
	snap, err := s.builder.SetMode(id, req.Mode)
	respond(c, snap, err)
}

func (s *Server) handleTransferCases(c *gin.Context) {
	id, valid := intentID(c)
	if !valid {
		return
	}
	var req struct {
		Cases int64 `json:"cases"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, errBadRequest(err))
		return
	}
	snap, err := s.builder.SetCases(id, req.Cases)
	respond(c, snap, err)
}

func (s *Server) handleTransferQuantity(c *gin.Context) {
	id, valid := intentID(c)
	if !valid {
		return
	}
	var req struct {
		Payload string `json:"payload"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, errBadRequest(err))
		return
	}
	snap, err := s.builder.SetQuantity(id, req.Payload)
	respond(c, snap, err)
}

func (s *Server) handleTransferDestination(c *gin.Context) {
	id, valid := intentID(c)
	if !valid {
		return
	}
	var req struct {
		Text string `json:"text"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, errBadRequest(err))
		return
	}
	snap, err := s.builder.SetDestinationText(id, req.Text)
	respond(c, snap, err)
}

func (s *Server) handleTransferConfirm(c *gin.Context) {
	id, valid := intentID(c)
	if !valid {
		return
	}
	snap, err := s.builder.ConfirmDestination(c.Request.Context(), id)
	respond(c, snap, err)
}

func (s *Server) handleTransferSubmit(c *gin.Context) {
	id, valid := intentID(c)
	if !valid {
		return
	}
	snap, err := s.builder.Submit(c.Request.Context(), id)
	respond(c, snap, err)
}

func (s *Server) handleTransferCancel(c *gin.Context) {
	id, valid := intentID(c)
	if !valid {
		return
	}
	if err := s.builder.Cancel(id); err != nil {
		fail(c, err)
		return
	}
	s.scanners.detachIntent(id)
	ok(c, gin.H{"cancelled": true})
}
