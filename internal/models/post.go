package models

import (
	"time"
)

// PostStatus tracks a post through its lifecycle.
type PostStatus string

const (
	PostStatusScheduled  PostStatus = "scheduled"
	PostStatusProcessing PostStatus = "processing"
	PostStatusRetrying   PostStatus = "retrying"
	PostStatusPosted     PostStatus = "posted"
	PostStatusFailed     PostStatus = "failed"
)

// Post is the unit of work moving through the scheduling pipeline.
// A post is never deleted: it lives in exactly one of the status
// database's scheduled/posted/failed lists at any time.
type Post struct {
	ID            string     `json:"id"`
	VideoPath     string     `json:"video_path"`
	Caption       string     `json:"caption"`
	Hashtags      []string   `json:"hashtags"`
	Avatar        string     `json:"avatar"`
	Platform      string     `json:"platform"`
	Account       string     `json:"account"`
	ScheduledTime time.Time  `json:"scheduled_time"`
	Status        PostStatus `json:"status"`
	Retries       int        `json:"retries"`
	Error         string     `json:"error,omitempty"`
	PostURL       string     `json:"post_url,omitempty"`
	PostID        string     `json:"post_id,omitempty"`
	BatchID       string     `json:"batch_id,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	PostedTime    *time.Time `json:"posted_time,omitempty"`
}

// ScheduleResult is returned by PostScheduler.SchedulePosts. TotalScheduled
// may be lower than the number of input videos when accounts are missing;
// callers must compare it against their input to detect partial scheduling.
type ScheduleResult struct {
	ScheduledPosts []*Post `json:"scheduled_posts"`
	TotalScheduled int     `json:"total_scheduled"`
	BatchID        string  `json:"batch_id"`
}

// StatusSummary is the caller-facing view of the status database.
type StatusSummary struct {
	Scheduled  []*Post   `json:"scheduled_posts"`
	Posted     []*Post   `json:"posted"`
	Failed     []*Post   `json:"failed"`
	LastUpdate time.Time `json:"last_update"`
}
