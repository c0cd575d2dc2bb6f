package service

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hypecasthq/hypecast/internal/models"
	"github.com/hypecasthq/hypecast/internal/storage"
)

type managerFixture struct {
	manager *PostManager
	*schedulerFixture
	history *storage.HistoryStore
}

func newManagerFixture(t *testing.T) *managerFixture {
	t.Helper()

	sf := newSchedulerFixture(t, testPostingConfig(), testAccountsConfig())
	history, err := storage.NewHistoryStore(filepath.Join(t.TempDir(), "history"))
	if err != nil {
		t.Fatalf("NewHistoryStore() error = %v", err)
	}

	s := sf.scheduler
	m := NewPostManager(zap.NewNop(), s.registry, s.accounts, s.captions, s, history)
	m.now = s.now

	return &managerFixture{manager: m, schedulerFixture: sf, history: history}
}

func TestPostNow_Success(t *testing.T) {
	f := newManagerFixture(t)
	video := writeVideo(t, "luna_promo.mp4")

	result := f.manager.PostNow(context.Background(), PostNowRequest{
		VideoPath: video,
		Platform:  "tiktok",
		Avatar:    "luna",
	})
	if !result.Success {
		t.Fatalf("PostNow() result = %+v, want success", result)
	}
	if result.PostURL == "" {
		t.Error("PostNow() result has no URL")
	}

	// Manual posts leave an audit record.
	posts, err := f.manager.History()
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(posts) != 1 {
		t.Fatalf("history len = %d, want 1", len(posts))
	}
	if posts[0].Account != "luna_account" {
		t.Errorf("history account = %s, want luna_account (avatar pool)", posts[0].Account)
	}
	if posts[0].Status != models.PostStatusPosted {
		t.Errorf("history status = %s, want posted", posts[0].Status)
	}
}

func TestPostNow_MissingVideo(t *testing.T) {
	f := newManagerFixture(t)

	result := f.manager.PostNow(context.Background(), PostNowRequest{
		VideoPath: "/no/such/video.mp4",
		Platform:  "tiktok",
	})
	if result.Success || result.Error != "video file not found" {
		t.Errorf("PostNow() result = %+v, want video-not-found failure", result)
	}
	if len(f.handler.callOrder()) != 0 {
		t.Error("handler was called despite missing video")
	}
}

func TestPostNow_UnsupportedPlatform(t *testing.T) {
	f := newManagerFixture(t)

	result := f.manager.PostNow(context.Background(), PostNowRequest{
		VideoPath: writeVideo(t, "a.mp4"),
		Platform:  "instagram",
	})
	if result.Success {
		t.Fatal("PostNow() succeeded on an unregistered platform")
	}
	if !strings.Contains(result.Error, "instagram") {
		t.Errorf("error = %q, want platform named", result.Error)
	}
}

func TestPostNow_ExplicitAccountNotConfigured(t *testing.T) {
	f := newManagerFixture(t)

	result := f.manager.PostNow(context.Background(), PostNowRequest{
		VideoPath:       writeVideo(t, "a.mp4"),
		Platform:        "tiktok",
		AccountUsername: "ghost",
	})
	if result.Success {
		t.Fatal("PostNow() succeeded with an unknown account")
	}
}

func TestPostNow_FailureSkipsHistory(t *testing.T) {
	f := newManagerFixture(t)
	f.handler.failCount = 1

	result := f.manager.PostNow(context.Background(), PostNowRequest{
		VideoPath: writeVideo(t, "a.mp4"),
		Platform:  "tiktok",
	})
	if result.Success {
		t.Fatal("PostNow() reported success from a failing handler")
	}

	posts, err := f.manager.History()
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(posts) != 0 {
		t.Errorf("history len = %d, want 0 for a failed post", len(posts))
	}
}

func TestSchedulePost_GoesThroughScheduler(t *testing.T) {
	f := newManagerFixture(t)

	at := time.Date(2026, 9, 2, 15, 0, 0, 0, time.Local)
	post, err := f.manager.SchedulePost(PostNowRequest{
		VideoPath: writeVideo(t, "luna_later.mp4"),
		Platform:  "tiktok",
		Avatar:    "luna",
	}, at)
	if err != nil {
		t.Fatalf("SchedulePost() error = %v", err)
	}
	if !post.ScheduledTime.Equal(at) {
		t.Errorf("scheduled time = %v, want %v", post.ScheduledTime, at)
	}

	scheduled := f.store.ListScheduled()
	if len(scheduled) != 1 || scheduled[0].ID != post.ID {
		t.Errorf("store scheduled = %v, want the new post", scheduled)
	}
	if got := f.scheduler.QueueLen(); got != 1 {
		t.Errorf("QueueLen() = %d, want 1", got)
	}
}

func TestCheckScheduledPosts_DispatchesDue(t *testing.T) {
	f := newManagerFixture(t)

	base := time.Date(2026, 9, 1, 12, 0, 0, 0, time.Local)
	f.enqueueDirect(t, duePost("post_due", writeVideo(t, "due.mp4"), base))
	f.setClock(base.Add(time.Minute))

	if n := f.manager.CheckScheduledPosts(); n != 1 {
		t.Fatalf("CheckScheduledPosts() = %d, want 1", n)
	}
	if got := len(f.store.Summary().Posted); got != 1 {
		t.Errorf("posted = %d, want 1", got)
	}
}

func TestGetAccountForAvatar_Fallback(t *testing.T) {
	f := newManagerFixture(t)

	if acc := f.manager.GetAccountForAvatar("luna", "tiktok"); acc == nil || acc.Username != "luna_account" {
		t.Errorf("GetAccountForAvatar(luna) = %v, want luna_account", acc)
	}
	// Unknown avatar falls back to the platform pool.
	if acc := f.manager.GetAccountForAvatar("nova", "tiktok"); acc == nil || acc.Username != "main_account" {
		t.Errorf("GetAccountForAvatar(nova) = %v, want main_account fallback", acc)
	}
	if acc := f.manager.GetAccountForAvatar("nova", "youtube"); acc != nil {
		t.Errorf("GetAccountForAvatar(youtube) = %v, want nil", acc)
	}
}
