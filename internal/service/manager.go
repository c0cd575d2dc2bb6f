package service

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/hypecasthq/hypecast/internal/models"
	"github.com/hypecasthq/hypecast/internal/service/handler"
	"github.com/hypecasthq/hypecast/internal/storage"
	"github.com/hypecasthq/hypecast/pkg/util"
)

// PostNowRequest describes a manually-triggered post.
type PostNowRequest struct {
	VideoPath       string   `json:"video_path"`
	Caption         string   `json:"caption,omitempty"`
	Avatar          string   `json:"avatar,omitempty"`
	Platform        string   `json:"platform"`
	Hashtags        []string `json:"hashtags,omitempty"`
	AccountUsername string   `json:"account,omitempty"`
}

// PostManager is the immediate-posting and account-resolution facade. All
// scheduled dispatch goes through the PostScheduler and its status
// database; the manager only adds the manual path and its separate
// immutable history trail.
type PostManager struct {
	logger    *zap.Logger
	registry  *handler.Registry
	accounts  *AccountRegistry
	captions  *CaptionGenerator
	scheduler *PostScheduler
	history   *storage.HistoryStore

	cron *cron.Cron
	now  func() time.Time
}

func NewPostManager(
	logger *zap.Logger,
	registry *handler.Registry,
	accounts *AccountRegistry,
	captions *CaptionGenerator,
	scheduler *PostScheduler,
	history *storage.HistoryStore,
) *PostManager {
	return &PostManager{
		logger:    logger,
		registry:  registry,
		accounts:  accounts,
		captions:  captions,
		scheduler: scheduler,
		history:   history,
		now:       time.Now,
	}
}

// PostNow posts a video immediately, blocking for the full upload. All
// failures come back in the result; the manager never panics outward.
func (m *PostManager) PostNow(ctx context.Context, req PostNowRequest) (result *handler.PostResult) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("PostNow panicked",
				zap.Any("panic", r),
				zap.String("stack", string(debug.Stack())))
			result = &handler.PostResult{Success: false, Error: fmt.Sprintf("internal error: %v", r)}
		}
	}()

	if _, err := os.Stat(req.VideoPath); err != nil {
		return &handler.PostResult{Success: false, Error: "video file not found"}
	}

	h, err := m.registry.Get(req.Platform)
	if err != nil {
		return &handler.PostResult{Success: false, Error: err.Error()}
	}

	account := m.resolveAccount(req)
	if account == nil {
		return &handler.PostResult{
			Success: false,
			Error:   fmt.Sprintf("no account available for platform %s", req.Platform),
		}
	}

	caption := req.Caption
	if caption == "" {
		caption = m.captions.Caption(req.Avatar, req.Platform)
	}
	hashtags := req.Hashtags
	if len(hashtags) == 0 {
		hashtags = m.captions.Hashtags(req.Platform)
	}

	m.logger.Info("Posting immediately",
		zap.String("platform", req.Platform),
		zap.String("account", account.Username),
		zap.String("video", req.VideoPath))

	result, err = h.PostVideo(ctx, handler.PostRequest{
		VideoPath: req.VideoPath,
		Caption:   caption,
		Hashtags:  hashtags,
		Account:   account,
	})
	if err != nil {
		m.logger.Error("Handler failed", zap.String("platform", req.Platform), zap.Error(err))
		return &handler.PostResult{Success: false, Error: err.Error()}
	}

	if result.Success {
		m.recordHistory(req, account.Username, caption, hashtags, result)
	}

	return result
}

// SchedulePost queues a single post for a specific time through the
// scheduler's store, so the background worker owns its dispatch.
func (m *PostManager) SchedulePost(req PostNowRequest, at time.Time) (*models.Post, error) {
	account := m.resolveAccount(req)
	if account == nil {
		return nil, fmt.Errorf("no account available for platform %s", req.Platform)
	}

	caption := req.Caption
	if caption == "" {
		caption = m.captions.Caption(req.Avatar, req.Platform)
	}
	hashtags := req.Hashtags
	if len(hashtags) == 0 {
		hashtags = m.captions.Hashtags(req.Platform)
	}

	now := m.now()
	post := &models.Post{
		ID:            util.GeneratePostID(now),
		VideoPath:     req.VideoPath,
		Caption:       caption,
		Hashtags:      hashtags,
		Avatar:        req.Avatar,
		Platform:      req.Platform,
		Account:       account.Username,
		ScheduledTime: at,
		Status:        models.PostStatusScheduled,
		CreatedAt:     now,
	}

	if err := m.scheduler.Enqueue(post); err != nil {
		return nil, fmt.Errorf("enqueue post: %w", err)
	}

	m.logger.Info("Post scheduled",
		zap.String("post_id", post.ID),
		zap.String("platform", post.Platform),
		zap.Time("scheduled_time", at))

	return post, nil
}

// CheckScheduledPosts dispatches every due post once, synchronously. This
// is the polling alternative for deployments that keep the background
// worker off; it shares the scheduler's queue and store.
func (m *PostManager) CheckScheduledPosts() int {
	processed := m.scheduler.ProcessDue()
	if processed > 0 {
		m.logger.Info("Due posts processed", zap.Int("count", processed))
	}
	return processed
}

// StartSweeper runs CheckScheduledPosts on a cron schedule.
func (m *PostManager) StartSweeper(spec string) error {
	if m.cron != nil {
		return nil
	}

	c := cron.New()
	if _, err := c.AddFunc(spec, func() { m.CheckScheduledPosts() }); err != nil {
		return fmt.Errorf("register sweep job: %w", err)
	}
	c.Start()
	m.cron = c

	m.logger.Info("Scheduled-post sweeper started", zap.String("spec", spec))
	return nil
}

func (m *PostManager) StopSweeper() {
	if m.cron != nil {
		m.cron.Stop()
		m.cron = nil
	}
}

// GetAccountForAvatar resolves an account with avatar priority and
// platform fallback. Returns nil when neither pool has an enabled account.
func (m *PostManager) GetAccountForAvatar(avatar, platform string) *models.Account {
	return m.accounts.ForAvatar(avatar, platform)
}

// CheckAccountStatus proxies to the platform handler.
func (m *PostManager) CheckAccountStatus(ctx context.Context, platform, username string) (*handler.AccountStatus, error) {
	h, err := m.registry.Get(platform)
	if err != nil {
		return nil, err
	}
	return h.CheckAccountStatus(ctx, username)
}

// History returns the manual-post audit trail, newest first.
func (m *PostManager) History() ([]*models.Post, error) {
	return m.history.List()
}

// resolveAccount applies the resolution priority: explicit username, then
// avatar pool, then platform pool.
func (m *PostManager) resolveAccount(req PostNowRequest) *models.Account {
	if req.AccountUsername != "" {
		return m.accounts.Find(req.Platform, req.AccountUsername)
	}
	return m.accounts.ForAvatar(req.Avatar, req.Platform)
}

func (m *PostManager) recordHistory(req PostNowRequest, username, caption string, hashtags []string, result *handler.PostResult) {
	now := m.now()
	record := &models.Post{
		ID:            util.GeneratePostID(now),
		VideoPath:     req.VideoPath,
		Caption:       caption,
		Hashtags:      hashtags,
		Avatar:        req.Avatar,
		Platform:      req.Platform,
		Account:       username,
		ScheduledTime: now,
		Status:        models.PostStatusPosted,
		PostURL:       result.PostURL,
		PostID:        result.PostID,
		CreatedAt:     now,
		PostedTime:    &now,
	}

	if err := m.history.Record(record); err != nil {
		// History is best-effort; the upload already succeeded.
		m.logger.Warn("Failed to record post history",
			zap.String("post_id", record.ID),
			zap.Error(err))
	}
}
