package server

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/cdwc233/WeChat-official-account-management/internal/models"
	"github.com/cdwc233/WeChat-official-account-management/internal/render"
	"github.com/cdwc233/WeChat-official-account-management/internal/service"
	"github.com/cdwc233/WeChat-official-account-management/pkg/util"
)

func (s *Server) parseNID(c *gin.Context) (uint, bool) {
	nid, err := strconv.ParseUint(c.Param("nid"), 10, 32)
	if err != nil {
		s.respondError(c, &service.ValidationError{Field: "nid", Reason: "must be a positive integer"})
		return 0, false
	}
	return uint(nid), true
}

func (s *Server) handleListArticles(c *gin.Context) {
	origin, err := models.ParseSourceType(c.DefaultQuery("origin", string(models.SourceOfficial)))
	if err != nil {
		s.respondError(c, &service.ValidationError{Field: "origin", Reason: err.Error()})
		return
	}

	articles, err := s.Articles.List(origin)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"articles": articles})
}

func (s *Server) handleGetArticle(c *gin.Context) {
	nid, ok := s.parseNID(c)
	if !ok {
		return
	}

	article, err := s.Articles.Get(nid)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"article":      article,
		"content_html": render.ToHTML(article.Content),
	})
}

type updateArticleRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

func (s *Server) handleUpdateArticle(c *gin.Context) {
	nid, ok := s.parseNID(c)
	if !ok {
		return
	}

	var req updateArticleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, &service.ValidationError{Field: "body", Reason: err.Error()})
		return
	}

	if err := s.Articles.Update(nid, req.Title, req.Content); err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "article updated"})
}

type discardArticleRequest struct {
	Origin string `json:"origin"`
}

func (s *Server) handleDiscardArticle(c *gin.Context) {
	nid, ok := s.parseNID(c)
	if !ok {
		return
	}

	var req discardArticleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, &service.ValidationError{Field: "body", Reason: err.Error()})
		return
	}

	origin, err := models.ParseSourceType(req.Origin)
	if err != nil {
		s.respondError(c, &service.ValidationError{Field: "origin", Reason: err.Error()})
		return
	}

	if err := s.Articles.Discard(nid, origin); err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "article discarded"})
}

func (s *Server) handleGenerateSummary(c *gin.Context) {
	nid, ok := s.parseNID(c)
	if !ok {
		return
	}

	article, err := s.Articles.Get(nid)
	if err != nil {
		s.respondError(c, err)
		return
	}

	summary, err := s.Enrichment.GenerateSummary(c.Request.Context(), article.Content)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"summary": summary})
}

func (s *Server) handleGenerateCover(c *gin.Context) {
	nid, ok := s.parseNID(c)
	if !ok {
		return
	}

	article, err := s.Articles.Get(nid)
	if err != nil {
		s.respondError(c, err)
		return
	}

	destPath := filepath.Join(s.Config.Server.StaticDir, "covers", fmt.Sprintf("cover_%d.png", nid))
	if _, err := s.Enrichment.GenerateCover(c.Request.Context(), article.Title, destPath); err != nil {
		s.respondError(c, err)
		return
	}

	coverURL := fmt.Sprintf("/static/covers/cover_%d.png", nid)
	if err := s.Articles.SetCover(nid, coverURL); err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"cover_url": coverURL})
}

type publishArticleRequest struct {
	TargetPlatform string `json:"target_platform"`
	Title          string `json:"title"`
	Content        string `json:"content"`
	Summary        string `json:"summary"`
	CoverURL       string `json:"cover_url"`
}

func (s *Server) handlePublishArticle(c *gin.Context) {
	nid, ok := s.parseNID(c)
	if !ok {
		return
	}

	var req publishArticleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, &service.ValidationError{Field: "body", Reason: err.Error()})
		return
	}

	platform, err := models.ParseTargetPlatform(req.TargetPlatform)
	if err != nil {
		s.respondError(c, &service.ValidationError{Field: "target_platform", Reason: err.Error()})
		return
	}

	rec, created, err := s.Publish.UpsertRecord(nid, service.PublishInput{
		Title:    req.Title,
		Content:  req.Content,
		Summary:  req.Summary,
		CoverURL: req.CoverURL,
		Platform: platform,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"publish": rec})
}

// handleUploadImage stores an uploaded image under the article's asset folder
// with a collision-free name and returns the servable path.
func (s *Server) handleUploadImage(c *gin.Context) {
	nid, ok := s.parseNID(c)
	if !ok {
		return
	}

	article, err := s.Articles.Get(nid)
	if err != nil {
		s.respondError(c, err)
		return
	}

	file, err := c.FormFile("image")
	if err != nil {
		s.respondError(c, &service.ValidationError{Field: "image", Reason: "missing multipart file"})
		return
	}

	ext := strings.ToLower(filepath.Ext(file.Filename))
	switch ext {
	case ".png", ".jpg", ".jpeg", ".gif", ".webp":
	default:
		s.respondError(c, &service.ValidationError{Field: "image", Reason: fmt.Sprintf("unsupported file type %q", ext)})
		return
	}

	folder := util.ArticleFolder(article.SourceURL, nid)
	filename := uuid.New().String() + ext
	destPath := filepath.Join(s.Config.Server.StaticDir, "images", folder, filename)

	if err := c.SaveUploadedFile(file, destPath); err != nil {
		s.respondError(c, fmt.Errorf("failed to save uploaded image: %w", err))
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"url": fmt.Sprintf("/static/images/%s/%s", folder, filename),
	})
}

func (s *Server) handleLastUpdate(c *gin.Context) {
	official, err := s.Articles.LastUpdateTime(models.SourceOfficial)
	if err != nil {
		s.respondError(c, err)
		return
	}
	crawled, err := s.Articles.LastUpdateTime(models.SourceCrawled)
	if err != nil {
		s.respondError(c, err)
		return
	}
	counts, err := s.Articles.Counts()
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"official": official,
		"crawled":  crawled,
		"counts":   counts,
	})
}
