package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) handleCheckCredential(c *gin.Context) {
	valid, message := s.Credential.Check(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"valid":   valid,
		"message": message,
	})
}

// handleRefreshCredential blocks through the whole QR login. The async
// variant below is what interactive clients use.
func (s *Server) handleRefreshCredential(c *gin.Context) {
	ok, message := s.Credential.Refresh(c.Request.Context())
	status := http.StatusOK
	if !ok {
		status = http.StatusBadGateway
	}
	c.JSON(status, gin.H{
		"success": ok,
		"message": message,
	})
}

func (s *Server) handleRefreshCredentialAsync(c *gin.Context) {
	s.Credential.StartRefresh()
	c.JSON(http.StatusAccepted, gin.H{
		"message": "refresh started, poll /api/v1/credential/status",
	})
}

func (s *Server) handleRefreshStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.Credential.Status())
}
