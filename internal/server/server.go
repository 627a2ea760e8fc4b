package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cdwc233/WeChat-official-account-management/internal/config"
	"github.com/cdwc233/WeChat-official-account-management/internal/platform/sitecrawler"
	"github.com/cdwc233/WeChat-official-account-management/internal/platform/website"
	"github.com/cdwc233/WeChat-official-account-management/internal/platform/wechat"
	"github.com/cdwc233/WeChat-official-account-management/internal/render"
	"github.com/cdwc233/WeChat-official-account-management/internal/service"
)

type Server struct {
	Config *config.Config
	DB     *gorm.DB
	Router *gin.Engine
	Logger *zap.Logger
	Server *http.Server

	// Services
	Articles   *service.ArticleService
	Retention  *service.RetentionService
	Sync       *service.SyncService
	Credential *service.CredentialService
	Enrichment *service.EnrichmentService
	Publish    *service.PublishService
	Monitoring *service.MonitoringService
	Auth       *service.AuthService
	Scheduler  *service.Scheduler
	Janitor    *service.RunLogJanitor

	// Origin crawlers
	Official service.Crawler
	Crawled  service.Crawler

	crawlDelay time.Duration
	website    *website.Store
}

func NewServer(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	// Set gin mode
	gin.SetMode(cfg.Server.Mode)

	// Initialize database
	db, err := service.NewDatabase(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	crawlDelay, err := time.ParseDuration(cfg.Sync.CrawlDelay)
	if err != nil {
		return nil, fmt.Errorf("invalid crawl delay %q: %w", cfg.Sync.CrawlDelay, err)
	}

	// Initialize collaborators
	officialClient := wechat.NewClient(&cfg.WeChat, logger, cfg.Sync.PageSize)
	capturer := wechat.NewQRLoginCapturer(&cfg.WeChat, cfg.Server.StaticDir, logger)
	siteCrawler := sitecrawler.NewCrawler(&cfg.Crawler, logger)

	websiteStore, err := website.NewStore(&cfg.WebsiteDatabase, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize website store: %w", err)
	}

	// Initialize services
	credentialService := service.NewCredentialService(logger, cfg.WeChat.CredentialFile, officialClient, capturer)
	credentialService.AddReloader(officialClient)
	if err := credentialService.Load(); err != nil {
		return nil, fmt.Errorf("failed to load credential: %w", err)
	}

	sessionTTL, err := time.ParseDuration(cfg.Auth.SessionTTL)
	if err != nil {
		return nil, fmt.Errorf("invalid session ttl %q: %w", cfg.Auth.SessionTTL, err)
	}

	articleService := service.NewArticleService(db, logger, cfg.Sync.PageSize)
	retentionService := service.NewRetentionService(db, logger, cfg.Sync.PageSize)
	monitoringService := service.NewMonitoringService(db, logger)
	syncService := service.NewSyncService(db, logger, retentionService, monitoringService)
	enrichmentService := service.NewEnrichmentService(&cfg.AI, logger)
	authService := service.NewAuthService(logger, cfg.Auth.TOTPSecret, sessionTTL)
	publishService := service.NewPublishService(db, logger, render.ToHTML,
		websiteStore, wechat.NewDraftClient(&cfg.WeChat, cfg.Server.StaticDir, logger))
	scheduler := service.NewScheduler(&cfg.Scheduler, logger, syncService,
		credentialService, officialClient, crawlDelay)
	janitor := service.NewRunLogJanitor(monitoringService, logger, 24*time.Hour)

	// Create router
	router := gin.New()

	srv := &Server{
		Config:     cfg,
		DB:         db,
		Router:     router,
		Logger:     logger,
		Articles:   articleService,
		Retention:  retentionService,
		Sync:       syncService,
		Credential: credentialService,
		Enrichment: enrichmentService,
		Publish:    publishService,
		Monitoring: monitoringService,
		Auth:       authService,
		Scheduler:  scheduler,
		Janitor:    janitor,
		Official:   officialClient,
		Crawled:    siteCrawler,
		crawlDelay: crawlDelay,
		website:    websiteStore,
	}

	srv.setupMiddleware()
	srv.setupRoutes()

	return srv, nil
}

func (s *Server) setupMiddleware() {
	// Recovery middleware
	s.Router.Use(gin.Recovery())

	// Logger middleware
	s.Router.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		Formatter: func(param gin.LogFormatterParams) string {
			return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
				param.ClientIP,
				param.TimeStamp.Format(time.RFC3339),
				param.Method,
				param.Path,
				param.Request.Proto,
				param.StatusCode,
				param.Latency,
				param.Request.UserAgent(),
				param.ErrorMessage,
			)
		},
	}))

	// CORS middleware
	s.Router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// Session auth, no-op unless a TOTP secret is configured
	s.Router.Use(s.Auth.Middleware())
}

func (s *Server) setupRoutes() {
	// Health check
	s.Router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().Unix(),
		})
	})

	// Static assets (QR codes, covers, uploaded images)
	s.Router.Static("/static", s.Config.Server.StaticDir)

	// API routes
	api := s.Router.Group("/api/v1")
	{
		auth := api.Group("/auth")
		{
			auth.POST("/login", s.handleLogin)
			auth.POST("/setup", s.handleAuthSetup)
		}

		articles := api.Group("/articles")
		{
			articles.GET("", s.handleListArticles)
			articles.GET("/:nid", s.handleGetArticle)
			articles.PUT("/:nid", s.handleUpdateArticle)
			articles.POST("/:nid/discard", s.handleDiscardArticle)
			articles.POST("/:nid/summary", s.handleGenerateSummary)
			articles.POST("/:nid/cover", s.handleGenerateCover)
			articles.POST("/:nid/publish", s.handlePublishArticle)
			articles.POST("/:nid/images", s.handleUploadImage)
		}

		api.GET("/last-update", s.handleLastUpdate)
		api.GET("/runs", s.handleListRuns)
		api.POST("/sync", s.handleSync)
		api.POST("/crawl", s.handleCrawl)
		api.POST("/clean", s.handleClean)

		credential := api.Group("/credential")
		{
			credential.GET("/check", s.handleCheckCredential)
			credential.POST("/refresh", s.handleRefreshCredential)
			credential.POST("/refresh/async", s.handleRefreshCredentialAsync)
			credential.GET("/status", s.handleRefreshStatus)
		}

		publishes := api.Group("/publishes")
		{
			publishes.GET("", s.handleListPublishes)
			publishes.GET("/:pid", s.handleGetPublish)
			publishes.PUT("/:pid", s.handleUpdatePublish)
			publishes.POST("/:pid/push/wechat", s.handlePushWeChat)
			publishes.POST("/:pid/push/website", s.handlePushWebsite)
		}

		api.POST("/render", s.handleRender)
	}
}

func (s *Server) Start(ctx context.Context) error {
	// Start scheduler
	if err := s.Scheduler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	s.Janitor.Start(ctx)

	addr := fmt.Sprintf("%s:%d", s.Config.Server.Host, s.Config.Server.Port)

	s.Server = &http.Server{
		Addr:    addr,
		Handler: s.Router,
	}

	s.Logger.Info("Starting HTTP server", zap.String("addr", addr))

	if s.Config.Server.CertFile != "" && s.Config.Server.KeyFile != "" {
		return s.Server.ListenAndServeTLS(s.Config.Server.CertFile, s.Config.Server.KeyFile)
	}

	return s.Server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	// Stop background workers first
	s.Scheduler.Stop()
	s.Janitor.Stop()

	if s.website != nil {
		if err := s.website.Close(); err != nil {
			s.Logger.Warn("Failed to close website store", zap.Error(err))
		}
	}

	if s.Server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	return s.Server.Shutdown(shutdownCtx)
}
