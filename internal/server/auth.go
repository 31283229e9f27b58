package server

import (
	"github.com/gin-gonic/gin"

	"github.com/Nestorcanpac/pda-app/internal/sap"
)

type loginRequest struct {
	CompanyDB string `json:"CompanyDB"`
	UserName  string `json:"UserName" binding:"required"`
	Password  string `json:"Password" binding:"required"`
}

func (s *Server) handlePing(c *gin.Context) {
	if err := s.pinger.Ping(c.Request.Context()); err != nil {
		fail(c, err)
		return
	}
	c.JSON(200, gin.H{"ok": true, "message": "Backend operativo"})
}

func (s *Server) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, errBadRequest(err))
		return
	}
	if err := s.sessions.Login(c.Request.Context(), req.UserName, req.Password); err != nil {
		fail(c, err)
		return
	}
	c.JSON(200, gin.H{"ok": true})
}

func (s *Server) handleLogout(c *gin.Context) {
	s.sessions.Clear(c.Request.Context())
	c.JSON(200, gin.H{"ok": true})
}

func (s *Server) handleSession(c *gin.Context) {
	c.JSON(200, gin.H{"ok": true, "session": s.sessions.Current()})
}

// handleEmployee resuelve el nombre del operario por su tarjeta, para la
// etiqueta de operario de los traslados.
func (s *Server) handleEmployee(c *gin.Context) {
	if !s.gate.Valid() && !s.gate.Refresh(c.Request.Context()) {
		fail(c, sap.SessionExpired())
		return
	}
	name, err := s.staff.EmployeeName(c.Request.Context(), c.Param("card"))
	if err != nil {
		fail(c, err)
		return
	}
	if name == "" {
		fail(c, sap.Validation("No se encontró ningún operario con esa tarjeta"))
		return
	}
	c.JSON(200, gin.H{"ok": true, "data": gin.H{"name": name}})
}
