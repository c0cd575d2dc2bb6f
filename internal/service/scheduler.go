package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hypecasthq/hypecast/internal/config"
	"github.com/hypecasthq/hypecast/internal/models"
	"github.com/hypecasthq/hypecast/internal/service/handler"
	"github.com/hypecasthq/hypecast/internal/storage"
	"github.com/hypecasthq/hypecast/pkg/util"
)

// ErrFrequencyUnsupported is returned for posting frequencies the
// calendar builder does not implement (currently everything but "daily").
var ErrFrequencyUnsupported = errors.New("posting frequency not supported")

const (
	emptyQueuePoll = 30 * time.Second
	maxWaitPoll    = 60 * time.Second
	errorPause     = 10 * time.Second
	stopTimeout    = 5 * time.Second
	jitterMinutes  = 5
	scheduleCutoff = 20 // schedules started at or after this hour begin tomorrow
)

// ScheduleOptions override posting-config defaults for one SchedulePosts
// call. Zero values fall back to configuration.
type ScheduleOptions struct {
	Platforms    []string
	Frequency    string
	OptimalTimes map[string][]string
	StartDate    *time.Time
}

// PostScheduler builds the posting calendar and runs the background worker
// that delivers due posts. The status database is the source of truth; the
// in-memory queue is its working set.
type PostScheduler struct {
	cfg      *config.PostingConfig
	logger   *zap.Logger
	store    *storage.StatusStore
	registry *handler.Registry
	accounts *AccountRegistry
	captions *CaptionGenerator

	mu      sync.Mutex
	queue   *postQueue
	queued  map[string]bool
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	// dispatchMu serializes processPost across the worker and the
	// synchronous sweep: posts upload strictly one at a time.
	dispatchMu sync.Mutex

	// now is swapped out in tests
	now func() time.Time
}

func NewPostScheduler(
	cfg *config.PostingConfig,
	logger *zap.Logger,
	store *storage.StatusStore,
	registry *handler.Registry,
	accounts *AccountRegistry,
	captions *CaptionGenerator,
) *PostScheduler {
	return &PostScheduler{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		registry: registry,
		accounts: accounts,
		captions: captions,
		queue:    newPostQueue(),
		queued:   make(map[string]bool),
		now:      time.Now,
	}
}

// SchedulePosts spreads the given videos across a per-day, per-platform
// posting calendar, persists the resulting posts, loads the queue and
// makes sure the worker is running. The returned TotalScheduled may be
// lower than len(videos) when no account could be resolved for some of
// them; callers detect partial scheduling from the count.
func (s *PostScheduler) SchedulePosts(videos []string, opts ScheduleOptions) (result *models.ScheduleResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("SchedulePosts panicked",
				zap.Any("panic", r),
				zap.String("stack", string(debug.Stack())))
			result = nil
			err = fmt.Errorf("schedule posts: %v", r)
		}
	}()

	frequency := opts.Frequency
	if frequency == "" {
		frequency = s.cfg.PostingFrequency
	}
	if frequency != "daily" {
		return nil, fmt.Errorf("%w: %q", ErrFrequencyUnsupported, frequency)
	}

	batchID := uuid.NewString()
	result = &models.ScheduleResult{
		ScheduledPosts: []*models.Post{},
		BatchID:        batchID,
	}

	if len(videos) == 0 {
		return result, nil
	}

	platforms := opts.Platforms
	if len(platforms) == 0 {
		platforms = s.cfg.Platforms
	}

	avatars := s.knownAvatars()
	posts := s.buildCalendar(videos, platforms, avatars, opts, batchID)

	if len(posts) > 0 {
		if err := s.store.AppendScheduled(posts...); err != nil {
			return nil, fmt.Errorf("persist scheduled posts: %w", err)
		}
	}

	s.reloadQueue(false)
	s.Start()

	result.ScheduledPosts = posts
	result.TotalScheduled = len(posts)

	s.logger.Info("Posting calendar built",
		zap.String("batch_id", batchID),
		zap.Int("videos", len(videos)),
		zap.Int("scheduled", len(posts)))

	return result, nil
}

// buildCalendar walks day by day, platform by platform, consuming videos
// until every one is scheduled or skipped.
func (s *PostScheduler) buildCalendar(videos, platforms, avatars []string, opts ScheduleOptions, batchID string) []*models.Post {
	now := s.now()

	startDay := s.firstDay(now, opts.StartDate)

	videoAvatars := make([]string, len(videos))
	for i, video := range videos {
		avatar := util.MatchAvatar(video, avatars)
		if avatar == "" && len(avatars) > 0 {
			avatar = avatars[rand.Intn(len(avatars))]
		}
		videoAvatars[i] = avatar
	}

	timeIdx := make(map[string]int)
	lastSlot := make(map[string]time.Time)
	interval := time.Duration(s.cfg.PostingIntervalMinutes) * time.Minute
	var posts []*models.Post
	videoIdx := 0

	for day := 0; videoIdx < len(videos); day++ {
		dayStart := startDay.AddDate(0, 0, day)
		progressed := false

		for _, platform := range platforms {
			maxPerDay := s.cfg.MaxPostsPerDay[platform]
			if maxPerDay <= 0 {
				maxPerDay = 1
			}

			for n := 0; n < maxPerDay && videoIdx < len(videos); n++ {
				video := videos[videoIdx]
				avatar := videoAvatars[videoIdx]

				account := s.accounts.ForAvatar(avatar, platform)
				if account == nil {
					// Silent partial failure by contract: the video is
					// consumed without a post and the caller sees the
					// shortfall in TotalScheduled.
					s.logger.Warn("No account for video, skipping",
						zap.String("video", video),
						zap.String("avatar", avatar),
						zap.String("platform", platform))
					videoIdx++
					progressed = true
					continue
				}

				scheduledTime := s.slotTime(dayStart, platform, timeIdx[platform], opts.OptimalTimes)
				timeIdx[platform]++

				// Keep same-platform posts at least the configured
				// interval apart, even when optimal times cluster.
				if interval > 0 {
					if last, ok := lastSlot[platform]; ok {
						if earliest := last.Add(interval); scheduledTime.Before(earliest) {
							scheduledTime = earliest
						}
					}
				}
				lastSlot[platform] = scheduledTime

				posts = append(posts, &models.Post{
					ID:            util.GeneratePostID(now),
					VideoPath:     video,
					Caption:       s.captions.Caption(avatar, platform),
					Hashtags:      s.captions.Hashtags(platform),
					Avatar:        avatar,
					Platform:      platform,
					Account:       account.Username,
					ScheduledTime: scheduledTime,
					Status:        models.PostStatusScheduled,
					BatchID:       batchID,
					CreatedAt:     now,
				})
				videoIdx++
				progressed = true
			}
		}

		if !progressed {
			// No platform accepted anything this day; bail out rather
			// than looping forever.
			break
		}
	}

	return posts
}

// firstDay picks the schedule's first day, midnight-normalized. Starting
// at or after the evening cutoff pushes it to tomorrow.
func (s *PostScheduler) firstDay(now time.Time, startDate *time.Time) time.Time {
	if startDate != nil {
		d := *startDate
		return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, d.Location())
	}

	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if now.Hour() >= scheduleCutoff {
		day = day.AddDate(0, 0, 1)
	}
	return day
}

// slotTime resolves an optimal time by cycling index, then applies a small
// random jitter so two schedules never collide on the exact timestamp.
// The jittered minute is clamped to [0,59]; it never carries into the hour.
func (s *PostScheduler) slotTime(dayStart time.Time, platform string, idx int, overrides map[string][]string) time.Time {
	times := overrides[platform]
	if len(times) == 0 {
		times = s.cfg.OptimalTimes[platform]
	}
	if len(times) == 0 {
		times = []string{"12:00"}
	}

	hour, minute := parseClock(times[idx%len(times)])

	minute += rand.Intn(2*jitterMinutes+1) - jitterMinutes
	if minute < 0 {
		minute = 0
	}
	if minute > 59 {
		minute = 59
	}

	return dayStart.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

func parseClock(s string) (hour, minute int) {
	if _, err := fmt.Sscanf(s, "%d:%d", &hour, &minute); err != nil {
		return 12, 0
	}
	if hour < 0 || hour > 23 {
		hour = 12
	}
	if minute < 0 || minute > 59 {
		minute = 0
	}
	return hour, minute
}

func (s *PostScheduler) knownAvatars() []string {
	seen := make(map[string]bool)
	var avatars []string
	for _, name := range s.accounts.Avatars() {
		if !seen[name] {
			seen[name] = true
			avatars = append(avatars, name)
		}
	}
	for _, name := range s.cfg.Avatars {
		if !seen[name] {
			seen[name] = true
			avatars = append(avatars, name)
		}
	}
	return avatars
}

// Enqueue persists a single externally-built post and places it in the
// queue. Used by the manager's explicit single-post scheduling.
func (s *PostScheduler) Enqueue(post *models.Post) error {
	if err := s.store.AppendScheduled(post); err != nil {
		return err
	}

	s.mu.Lock()
	if !s.queued[post.ID] {
		s.queue.Push(post)
		s.queued[post.ID] = true
	}
	s.mu.Unlock()

	s.Start()
	return nil
}

// reloadQueue rebuilds the in-memory queue from the status database.
// Posts in processing belong to a live dispatch and are left alone unless
// resetProcessing is set (startup recovery after a crash).
func (s *PostScheduler) reloadQueue(resetProcessing bool) {
	scheduled := s.store.ListScheduled()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.queue.Clear()
	s.queued = make(map[string]bool)
	for _, post := range scheduled {
		if post.Status == models.PostStatusProcessing {
			if !resetProcessing {
				continue
			}
			post.Status = models.PostStatusScheduled
			if err := s.store.UpdateScheduled(post); err != nil {
				s.logger.Warn("Failed to reset interrupted post",
					zap.String("post_id", post.ID),
					zap.Error(err))
			}
		}
		s.queue.Push(post)
		s.queued[post.ID] = true
	}
}

// RestoreQueue reloads pending posts after a restart. Posts left in
// processing by a crash go back to scheduled. The caller decides whether
// to start the worker; polling-only deployments keep it off.
func (s *PostScheduler) RestoreQueue() int {
	s.reloadQueue(true)

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Len()
}

// Start launches the background worker. Idempotent: a live worker makes
// this a no-op.
func (s *PostScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}

	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})

	go s.run(s.stopCh, s.doneCh)
	s.logger.Info("Post worker started")
}

// Stop signals the worker and waits up to five seconds for it to exit. A
// post mid-dispatch still completes; there is no mid-flight cancellation.
func (s *PostScheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	stopCh := s.stopCh
	doneCh := s.doneCh
	s.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		s.logger.Info("Post worker stopped")
	case <-time.After(stopTimeout):
		s.logger.Warn("Post worker did not stop within timeout")
	}
}

func (s *PostScheduler) run(stopCh, doneCh chan struct{}) {
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		close(doneCh)
	}()

	for {
		select {
		case <-stopCh:
			return
		default:
		}

		s.iterate(stopCh)
	}
}

// iterate runs one poll cycle. Nothing that happens inside may take the
// worker down: panics are logged and followed by a pause.
func (s *PostScheduler) iterate(stopCh chan struct{}) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Worker iteration panicked",
				zap.Any("panic", r),
				zap.String("stack", string(debug.Stack())))
			sleepOrStop(errorPause, stopCh)
		}
	}()

	s.mu.Lock()
	next := s.queue.Peek()
	if next == nil {
		s.mu.Unlock()
		sleepOrStop(emptyQueuePoll, stopCh)
		return
	}

	now := s.now()
	if next.ScheduledTime.After(now) {
		wait := next.ScheduledTime.Sub(now)
		if wait > maxWaitPoll {
			wait = maxWaitPoll
		}
		s.mu.Unlock()
		sleepOrStop(wait, stopCh)
		return
	}

	post := s.queue.Pop()
	delete(s.queued, post.ID)
	s.mu.Unlock()

	if err := s.dispatch(post); err != nil {
		s.logger.Error("Failed to process post",
			zap.String("post_id", post.ID),
			zap.Error(err))
		sleepOrStop(errorPause, stopCh)
	}
}

// dispatch runs processPost under the dispatch lock so the worker and the
// sweep never upload two posts at once.
func (s *PostScheduler) dispatch(post *models.Post) error {
	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()
	return s.processPost(post)
}

// processPost dispatches one due post and records the outcome. Precondition
// failures (missing video, unregistered platform, unknown account) are
// permanent; handler-reported failures retry up to the configured cap with
// a fixed delay.
func (s *PostScheduler) processPost(post *models.Post) error {
	post.Status = models.PostStatusProcessing
	if err := s.store.UpdateScheduled(post); err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}

	if _, err := os.Stat(post.VideoPath); err != nil {
		return s.failPermanently(post, "video file not found")
	}

	h, err := s.registry.Get(post.Platform)
	if err != nil {
		return s.failPermanently(post, fmt.Sprintf("no handler for platform %s", post.Platform))
	}

	account := s.accounts.Find(post.Platform, post.Account)
	if account == nil {
		return s.failPermanently(post, fmt.Sprintf("account %s not configured for %s", post.Account, post.Platform))
	}

	s.logger.Info("Dispatching post",
		zap.String("post_id", post.ID),
		zap.String("platform", post.Platform),
		zap.String("account", post.Account),
		zap.String("video", post.VideoPath))

	result, err := h.PostVideo(context.Background(), handler.PostRequest{
		VideoPath: post.VideoPath,
		Caption:   post.Caption,
		Hashtags:  post.Hashtags,
		Account:   account,
	})

	if err == nil && result != nil && result.Success {
		now := s.now()
		post.Status = models.PostStatusPosted
		post.PostedTime = &now
		post.PostURL = result.PostURL
		post.PostID = result.PostID
		post.Error = ""

		if err := s.store.MoveToPosted(post); err != nil {
			return fmt.Errorf("record posted: %w", err)
		}

		s.logger.Info("Post published",
			zap.String("post_id", post.ID),
			zap.String("platform", post.Platform),
			zap.String("post_url", post.PostURL))
		return nil
	}

	errMsg := "handler error"
	switch {
	case err != nil:
		errMsg = err.Error()
	case result != nil && result.Error != "":
		errMsg = result.Error
	}

	return s.retryOrFail(post, errMsg)
}

// retryOrFail re-enqueues a transiently failed post with a fresh scheduled
// time, or moves it to the failed list when retries are exhausted.
func (s *PostScheduler) retryOrFail(post *models.Post, errMsg string) error {
	post.Retries++
	post.Error = errMsg

	if post.Retries < s.cfg.RetryAttempts {
		retryTime := s.now().Add(time.Duration(s.cfg.RetryDelayMinutes) * time.Minute)
		post.Status = models.PostStatusRetrying
		post.ScheduledTime = retryTime

		if err := s.store.UpdateScheduled(post); err != nil {
			return fmt.Errorf("record retry: %w", err)
		}

		s.mu.Lock()
		if !s.queued[post.ID] {
			s.queue.Push(post)
			s.queued[post.ID] = true
		}
		s.mu.Unlock()

		s.logger.Warn("Post failed, retrying",
			zap.String("post_id", post.ID),
			zap.String("error", errMsg),
			zap.Int("retries", post.Retries),
			zap.Time("retry_time", retryTime))
		return nil
	}

	post.Status = models.PostStatusFailed
	if err := s.store.MoveToFailed(post); err != nil {
		return fmt.Errorf("record failure: %w", err)
	}

	s.logger.Error("Post failed permanently, retries exhausted",
		zap.String("post_id", post.ID),
		zap.String("error", errMsg),
		zap.Int("retries", post.Retries))
	return nil
}

// failPermanently handles non-retryable precondition and configuration
// failures.
func (s *PostScheduler) failPermanently(post *models.Post, errMsg string) error {
	post.Status = models.PostStatusFailed
	post.Error = errMsg

	if err := s.store.MoveToFailed(post); err != nil {
		return fmt.Errorf("record permanent failure: %w", err)
	}

	s.logger.Error("Post failed permanently",
		zap.String("post_id", post.ID),
		zap.String("error", errMsg))
	return nil
}

// ProcessDue synchronously dispatches every post whose scheduled time has
// passed. This is the polling alternative to the background worker; both
// paths share the queue and the status database.
func (s *PostScheduler) ProcessDue() int {
	processed := 0
	for {
		s.mu.Lock()
		next := s.queue.Peek()
		if next == nil || next.ScheduledTime.After(s.now()) {
			s.mu.Unlock()
			return processed
		}
		post := s.queue.Pop()
		delete(s.queued, post.ID)
		s.mu.Unlock()

		if err := s.dispatch(post); err != nil {
			s.logger.Error("Failed to process due post",
				zap.String("post_id", post.ID),
				zap.Error(err))
		}
		processed++
	}
}

// Status returns the current status database snapshot.
func (s *PostScheduler) Status() *models.StatusSummary {
	return s.store.Summary()
}

// QueueLen reports how many posts are waiting in the in-memory queue.
func (s *PostScheduler) QueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Len()
}

func sleepOrStop(d time.Duration, stopCh chan struct{}) {
	select {
	case <-time.After(d):
	case <-stopCh:
	}
}
