package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/hypecasthq/hypecast/internal/config"
	"github.com/hypecasthq/hypecast/internal/service"
)

// Server exposes the ops API over the scheduling pipeline. Dependencies are
// constructed once at process start and injected; the server owns none of
// them except the HTTP listener.
type Server struct {
	Config    *config.Config
	Router    *gin.Engine
	Logger    *zap.Logger
	Server    *http.Server
	Scheduler *service.PostScheduler
	Manager   *service.PostManager
	Accounts  *service.AccountRegistry
}

func NewServer(
	cfg *config.Config,
	logger *zap.Logger,
	scheduler *service.PostScheduler,
	manager *service.PostManager,
	accounts *service.AccountRegistry,
) *Server {
	// Set gin mode
	gin.SetMode(cfg.Server.Mode)

	router := gin.New()

	srv := &Server{
		Config:    cfg,
		Router:    router,
		Logger:    logger,
		Scheduler: scheduler,
		Manager:   manager,
		Accounts:  accounts,
	}

	srv.setupMiddleware()
	srv.setupRoutes()

	return srv
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
}

func (s *Server) setupRoutes() {
	// Health check
	s.Router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().Unix(),
		})
	})

	// API routes
	api := s.Router.Group("/api/v1")
	{
		posts := api.Group("/posts")
		{
			posts.GET("", s.handleGetStatus)
			posts.POST("/schedule", s.handleSchedule)
			posts.POST("/now", s.handlePostNow)
			posts.POST("/check", s.handleCheckDue)
			posts.GET("/history", s.handleGetHistory)
		}

		accounts := api.Group("/accounts")
		{
			accounts.GET("/:platform", s.handleGetAccounts)
			accounts.GET("/:platform/:username/status", s.handleAccountStatus)
			accounts.PATCH("/:platform/:username", s.handleSetAccountEnabled)
		}
	}
}

func (s *Server) handleGetStatus(c *gin.Context) {
	summary := s.Scheduler.Status()
	c.JSON(http.StatusOK, gin.H{
		"scheduled_posts": summary.Scheduled,
		"posted":          summary.Posted,
		"failed":          summary.Failed,
		"last_update":     summary.LastUpdate,
		"queue_length":    s.Scheduler.QueueLen(),
	})
}

type scheduleRequest struct {
	Videos    []string `json:"videos"`
	Platforms []string `json:"platforms,omitempty"`
	Frequency string   `json:"frequency,omitempty"`
	StartDate string   `json:"start_date,omitempty"`
}

func (s *Server) handleSchedule(c *gin.Context) {
	var req scheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	opts := service.ScheduleOptions{
		Platforms: req.Platforms,
		Frequency: req.Frequency,
	}
	if req.StartDate != "" {
		start, err := time.ParseInLocation("2006-01-02", req.StartDate, time.Local)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid start_date, expected YYYY-MM-DD"})
			return
		}
		opts.StartDate = &start
	}

	result, err := s.Scheduler.SchedulePosts(req.Videos, opts)
	if err != nil {
		s.Logger.Error("Failed to schedule posts", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}

func (s *Server) handlePostNow(c *gin.Context) {
	var req service.PostNowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result := s.Manager.PostNow(c.Request.Context(), req)
	status := http.StatusOK
	if !result.Success {
		status = http.StatusBadGateway
	}
	c.JSON(status, result)
}

func (s *Server) handleCheckDue(c *gin.Context) {
	processed := s.Manager.CheckScheduledPosts()
	c.JSON(http.StatusOK, gin.H{"processed": processed})
}

func (s *Server) handleGetHistory(c *gin.Context) {
	posts, err := s.Manager.History()
	if err != nil {
		s.Logger.Error("Failed to load post history", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load history"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"posts": posts})
}

type accountView struct {
	Username         string `json:"username"`
	Email            string `json:"email,omitempty"`
	TwoFactorEnabled bool   `json:"two_factor_enabled"`
	Enabled          bool   `json:"enabled"`
	Avatar           string `json:"avatar,omitempty"`
}

func (s *Server) handleGetAccounts(c *gin.Context) {
	platform := c.Param("platform")

	// Never expose credentials through the API
	views := []accountView{}
	for _, account := range s.Accounts.All(platform) {
		views = append(views, accountView{
			Username:         account.Username,
			Email:            account.Email,
			TwoFactorEnabled: account.TwoFactorEnabled,
			Enabled:          account.Enabled,
			Avatar:           account.Avatar,
		})
	}

	c.JSON(http.StatusOK, gin.H{"accounts": views})
}

type setEnabledRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// handleSetAccountEnabled lets an operator bench or reinstate an account
// without restarting the service.
func (s *Server) handleSetAccountEnabled(c *gin.Context) {
	platform := c.Param("platform")
	username := c.Param("username")

	var req setEnabledRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "expected body {\"enabled\": true|false}"})
		return
	}

	if !s.Accounts.SetEnabled(platform, username, *req.Enabled) {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("account %s not found on %s", username, platform)})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"platform": platform,
		"username": username,
		"enabled":  *req.Enabled,
	})
}

func (s *Server) handleAccountStatus(c *gin.Context) {
	platform := c.Param("platform")
	username := c.Param("username")

	status, err := s.Manager.CheckAccountStatus(c.Request.Context(), platform, username)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, status)
}

func (s *Server) Start(ctx context.Context) error {
	// Recover pending posts and start the worker unless disabled
	pending := s.Scheduler.RestoreQueue()
	if pending > 0 {
		s.Logger.Info("Restored pending posts", zap.Int("count", pending))
	}
	if !s.Config.Scheduler.DisableWorker {
		s.Scheduler.Start()
	}
	if s.Config.Scheduler.SweepSpec != "" {
		if err := s.Manager.StartSweeper(s.Config.Scheduler.SweepSpec); err != nil {
			return fmt.Errorf("failed to start sweeper: %w", err)
		}
	}

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
	// Stop dispatch first so nothing new starts mid-shutdown
	s.Manager.StopSweeper()
	s.Scheduler.Stop()

	if s.Server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	return s.Server.Shutdown(shutdownCtx)
}
