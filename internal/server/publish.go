package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/cdwc233/WeChat-official-account-management/internal/render"
	"github.com/cdwc233/WeChat-official-account-management/internal/service"
)

func (s *Server) parsePID(c *gin.Context) (uint, bool) {
	pid, err := strconv.ParseUint(c.Param("pid"), 10, 32)
	if err != nil {
		s.respondError(c, &service.ValidationError{Field: "pid", Reason: "must be a positive integer"})
		return 0, false
	}
	return uint(pid), true
}

func (s *Server) handleListPublishes(c *gin.Context) {
	recs, err := s.Publish.List()
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"publishes": recs})
}

func (s *Server) handleGetPublish(c *gin.Context) {
	pid, ok := s.parsePID(c)
	if !ok {
		return
	}

	rec, err := s.Publish.Get(pid)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"publish": rec})
}

type updatePublishRequest struct {
	Title       string `json:"title"`
	ContentHTML string `json:"content_html"`
}

func (s *Server) handleUpdatePublish(c *gin.Context) {
	pid, ok := s.parsePID(c)
	if !ok {
		return
	}

	var req updatePublishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, &service.ValidationError{Field: "body", Reason: err.Error()})
		return
	}

	if err := s.Publish.UpdateRecord(pid, req.Title, req.ContentHTML); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "publish record updated"})
}

func (s *Server) handlePushWeChat(c *gin.Context) {
	pid, ok := s.parsePID(c)
	if !ok {
		return
	}

	mediaID, err := s.Publish.PushToWeChat(c.Request.Context(), pid)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"media_id": mediaID})
}

func (s *Server) handlePushWebsite(c *gin.Context) {
	pid, ok := s.parsePID(c)
	if !ok {
		return
	}

	wid, err := s.Publish.PushToWebsite(c.Request.Context(), pid)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"wid": wid})
}

type renderRequest struct {
	Content string `json:"content"`
}

func (s *Server) handleRender(c *gin.Context) {
	var req renderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, &service.ValidationError{Field: "body", Reason: err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"html": render.ToHTML(req.Content)})
}
