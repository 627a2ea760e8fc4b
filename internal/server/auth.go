package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/cdwc233/WeChat-official-account-management/internal/service"
)

type loginRequest struct {
	Code string `json:"code"`
}

func (s *Server) handleLogin(c *gin.Context) {
	if !s.Auth.Enabled() {
		s.respondError(c, &service.ConflictError{Reason: "authentication is not configured"})
		return
	}

	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, &service.ValidationError{Field: "body", Reason: err.Error()})
		return
	}

	token, err := s.Auth.Login(req.Code)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token})
}

// handleAuthSetup mints a fresh TOTP secret for the operator to configure.
// Only available while the API still runs open; once a secret is set this
// endpoint refuses, otherwise it would let anyone rotate the lock.
func (s *Server) handleAuthSetup(c *gin.Context) {
	if s.Auth.Enabled() {
		s.respondError(c, &service.ConflictError{Reason: "authentication is already configured"})
		return
	}

	secret, url, err := s.Auth.GenerateSecret(s.Config.WeChat.AccountName)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"secret":      secret,
		"otpauth_url": url,
	})
}

func (s *Server) handleListRuns(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit <= 0 {
		s.respondError(c, &service.ValidationError{Field: "limit", Reason: "must be a positive integer"})
		return
	}

	runs, err := s.Monitoring.RecentRuns(limit)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"runs": runs})
}
