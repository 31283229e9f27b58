package server

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Nestorcanpac/pda-app/internal/sap"
)

func (s *Server) handlePickingList(c *gin.Context) {
	pending, finished := s.board.Snapshot()
	ok(c, gin.H{"pending": pending, "finished": finished})
}

type pickingToggleRequest struct {
	Mark string `json:"mark" binding:"required"` // picked | staged
}

func (s *Server) handlePickingToggle(c *gin.Context) {
	lineID, err := strconv.Atoi(c.Param("line"))
	if err != nil {
		fail(c, sap.Validation("Número de línea inválido: %s", c.Param("line")))
		return
	}
	var req pickingToggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, errBadRequest(err))
		return
	}
	doc, terr := s.board.Toggle(c.Param("id"), lineID, req.Mark)
	if terr != nil {
		fail(c, terr)
		return
	}
	ok(c, doc)
}
