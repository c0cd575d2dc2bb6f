package handler

import (
	"context"
	"time"

	"github.com/hypecasthq/hypecast/internal/models"
)

// PostRequest carries everything a platform handler needs to upload one
// video.
type PostRequest struct {
	VideoPath string          `json:"video_path"`
	Caption   string          `json:"caption"`
	Hashtags  []string        `json:"hashtags"`
	Account   *models.Account `json:"account,omitempty"`
}

// PostResult reports the outcome of an upload. Ordinary failures (login
// rejected, upload timeout, missing selector) come back here with
// Success=false; the error return of PostVideo is reserved for programmer
// and infrastructure faults.
type PostResult struct {
	Success  bool              `json:"success"`
	PostURL  string            `json:"post_url,omitempty"`
	PostID   string            `json:"post_id,omitempty"`
	Error    string            `json:"error,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
	PostedAt time.Time         `json:"posted_at"`
}

// AccountState is the session state of one platform login.
type AccountState string

const (
	AccountLoggedIn  AccountState = "logged_in"
	AccountLoggedOut AccountState = "logged_out"
	AccountUnknown   AccountState = "unknown"
	AccountError     AccountState = "error"
)

type AccountStatus struct {
	State   AccountState `json:"status"`
	Message string       `json:"message,omitempty"`
}

// Handler is the capability a platform contributes: authenticated upload
// plus session inspection. Handlers own their cookie persistence and must
// recover from expired sessions on their own.
type Handler interface {
	Platform() string
	PostVideo(ctx context.Context, req PostRequest) (*PostResult, error)
	CheckAccountStatus(ctx context.Context, username string) (*AccountStatus, error)
}
