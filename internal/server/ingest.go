package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cdwc233/WeChat-official-account-management/internal/service"
)

// handleSync pulls the official-account feed. The run is gated on a live
// admin session so an expired cookie fails fast instead of producing a batch
// of login-page fetches.
func (s *Server) handleSync(c *gin.Context) {
	valid, message := s.Credential.Check(c.Request.Context())
	if !valid {
		s.respondError(c, &service.ConflictError{
			Reason: "credential invalid, refresh before syncing: " + message,
		})
		return
	}

	skipExisting := c.DefaultQuery("overwrite", "false") != "true"
	stats, err := s.Sync.Run(c.Request.Context(), s.Official, s.crawlDelay, skipExisting)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"stats": stats})
}

func (s *Server) handleCrawl(c *gin.Context) {
	skipExisting := c.DefaultQuery("overwrite", "false") != "true"
	stats, err := s.Sync.Run(c.Request.Context(), s.Crawled, s.crawlDelay, skipExisting)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"stats": stats})
}

func (s *Server) handleClean(c *gin.Context) {
	result, err := s.Retention.Clean()
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"cleaned": result})
}
