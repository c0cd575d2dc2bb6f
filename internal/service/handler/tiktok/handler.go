package tiktok

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pquerna/otp/totp"
	"go.uber.org/zap"

	"github.com/hypecasthq/hypecast/internal/models"
	"github.com/hypecasthq/hypecast/internal/service/handler"
)

const (
	defaultBaseURL = "https://www.tiktok.com"

	// Video uploads can take minutes on slow links.
	uploadTimeout = 10 * time.Minute
)

// Handler posts videos to TikTok over a persistent-cookie HTTP session.
// Sessions are cached per username and survive restarts through the cookie
// files under config/cookies/tiktok/. One instance serves the background
// worker and every API request goroutine concurrently.
type Handler struct {
	logger     *zap.Logger
	cookiesDir string
	baseURL    string

	mu       sync.Mutex
	sessions map[string]*handler.Session
}

func NewHandler(logger *zap.Logger, cookiesDir string) *Handler {
	return &Handler{
		logger:     logger,
		cookiesDir: cookiesDir,
		baseURL:    defaultBaseURL,
		sessions:   make(map[string]*handler.Session),
	}
}

func (h *Handler) Platform() string {
	return "tiktok"
}

// PostVideo uploads one video. Ordinary failures (bad credentials, expired
// session that cannot be refreshed, upload rejection) are reported through
// the result, never as an error.
func (h *Handler) PostVideo(ctx context.Context, req handler.PostRequest) (*handler.PostResult, error) {
	if req.Account == nil || req.Account.Username == "" {
		return failure("no account provided"), nil
	}

	session, err := h.session(req.Account.Username)
	if err != nil {
		return nil, fmt.Errorf("open session for %s: %w", req.Account.Username, err)
	}

	if err := h.ensureLoggedIn(ctx, session, req.Account); err != nil {
		h.logger.Warn("TikTok login failed",
			zap.String("username", req.Account.Username),
			zap.Error(err))
		return failure(fmt.Sprintf("login failed: %v", err)), nil
	}

	result, err := h.upload(ctx, session, req)
	if err != nil {
		return nil, err
	}

	if result.Success {
		// Keep the refreshed session for the next upload
		if err := session.SaveCookies(); err != nil {
			h.logger.Warn("Failed to persist TikTok cookies",
				zap.String("username", req.Account.Username),
				zap.Error(err))
		}
		h.logger.Info("TikTok upload completed",
			zap.String("username", req.Account.Username),
			zap.String("video", req.VideoPath),
			zap.String("post_id", result.PostID))
	}

	return result, nil
}

// CheckAccountStatus probes the session without side effects.
func (h *Handler) CheckAccountStatus(ctx context.Context, username string) (*handler.AccountStatus, error) {
	session, err := h.session(username)
	if err != nil {
		return nil, fmt.Errorf("open session for %s: %w", username, err)
	}

	if !session.HasCookies() {
		return &handler.AccountStatus{
			State:   handler.AccountLoggedOut,
			Message: "no saved session",
		}, nil
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, h.baseURL+"/upload", nil)
	if err != nil {
		return nil, fmt.Errorf("build status request: %w", err)
	}
	httpReq.Header.Set("User-Agent", session.UserAgent())

	resp, err := session.Client().Do(httpReq)
	if err != nil {
		return &handler.AccountStatus{
			State:   handler.AccountError,
			Message: err.Error(),
		}, nil
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if isLoginRedirect(resp) {
		return &handler.AccountStatus{
			State:   handler.AccountLoggedOut,
			Message: "session expired",
		}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return &handler.AccountStatus{
			State:   handler.AccountUnknown,
			Message: fmt.Sprintf("unexpected status %d", resp.StatusCode),
		}, nil
	}

	return &handler.AccountStatus{State: handler.AccountLoggedIn}, nil
}

func (h *Handler) session(username string) (*handler.Session, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if s, ok := h.sessions[username]; ok {
		return s, nil
	}

	s, err := handler.NewSession(handler.SessionConfig{
		CookiesDir: h.cookiesDir,
		Platform:   "tiktok",
		Username:   username,
		BaseURL:    h.baseURL,
		Timeout:    uploadTimeout,
	})
	if err != nil {
		return nil, err
	}

	h.sessions[username] = s
	return s, nil
}

// ensureLoggedIn verifies the saved session still works and
// re-authenticates when TikTok bounces us to the login page.
func (h *Handler) ensureLoggedIn(ctx context.Context, session *handler.Session, account *models.Account) error {
	if session.HasCookies() {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, h.baseURL+"/upload", nil)
		if err != nil {
			return fmt.Errorf("build probe request: %w", err)
		}
		httpReq.Header.Set("User-Agent", session.UserAgent())

		resp, err := session.Client().Do(httpReq)
		if err != nil {
			return fmt.Errorf("probe session: %w", err)
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		if !isLoginRedirect(resp) && resp.StatusCode == http.StatusOK {
			return nil
		}

		h.logger.Info("TikTok session expired, re-authenticating",
			zap.String("username", account.Username))
		if err := session.ClearCookies(); err != nil {
			return fmt.Errorf("clear stale cookies: %w", err)
		}
	}

	return h.login(ctx, session, account)
}

func (h *Handler) login(ctx context.Context, session *handler.Session, account *models.Account) error {
	form := url.Values{}
	form.Set("username", account.Username)
	form.Set("password", account.Password)

	if account.TwoFactorEnabled {
		if account.TOTPSecret == "" {
			return fmt.Errorf("two-factor enabled but no totp secret configured")
		}
		code, err := totp.GenerateCode(account.TOTPSecret, time.Now())
		if err != nil {
			return fmt.Errorf("generate totp code: %w", err)
		}
		form.Set("code", code)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/login/", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build login request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("User-Agent", session.UserAgent())
	httpReq.Header.Set("Referer", h.baseURL)

	resp, err := session.Client().Do(httpReq)
	if err != nil {
		return fmt.Errorf("login request: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("login rejected with status %d", resp.StatusCode)
	}
	if !session.HasCookies() {
		return fmt.Errorf("login returned no session cookies")
	}

	if err := session.SaveCookies(); err != nil {
		return fmt.Errorf("persist cookies: %w", err)
	}

	h.logger.Info("TikTok login succeeded", zap.String("username", account.Username))
	return nil
}

type uploadResponse struct {
	StatusCode int    `json:"status_code"`
	StatusMsg  string `json:"status_msg"`
	ItemID     string `json:"item_id"`
	ShareURL   string `json:"share_url"`
}

func (h *Handler) upload(ctx context.Context, session *handler.Session, req handler.PostRequest) (*handler.PostResult, error) {
	video, err := os.Open(req.VideoPath)
	if err != nil {
		// The scheduler checks existence before dispatch, so this is a
		// race with an external deletion; still an ordinary failure.
		return failure(fmt.Sprintf("open video: %v", err)), nil
	}
	defer video.Close()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("video", filepath.Base(req.VideoPath))
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, video); err != nil {
		return nil, fmt.Errorf("read video: %w", err)
	}

	caption := req.Caption
	if len(req.Hashtags) > 0 {
		caption = strings.TrimSpace(caption + " " + strings.Join(req.Hashtags, " "))
	}
	if err := writer.WriteField("caption", caption); err != nil {
		return nil, fmt.Errorf("write caption field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/api/v1/item/upload/", body)
	if err != nil {
		return nil, fmt.Errorf("build upload request: %w", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())
	httpReq.Header.Set("User-Agent", session.UserAgent())
	httpReq.Header.Set("Referer", h.baseURL+"/upload")

	resp, err := session.Client().Do(httpReq)
	if err != nil {
		return failure(fmt.Sprintf("upload request: %v", err)), nil
	}
	defer resp.Body.Close()

	if isLoginRedirect(resp) {
		return failure("session expired during upload"), nil
	}
	if resp.StatusCode != http.StatusOK {
		return failure(fmt.Sprintf("upload rejected with status %d", resp.StatusCode)), nil
	}

	var parsed uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return failure(fmt.Sprintf("decode upload response: %v", err)), nil
	}
	if parsed.StatusCode != 0 {
		return failure(fmt.Sprintf("upload failed: %s", parsed.StatusMsg)), nil
	}

	return &handler.PostResult{
		Success:  true,
		PostID:   parsed.ItemID,
		PostURL:  parsed.ShareURL,
		PostedAt: time.Now(),
	}, nil
}

// isLoginRedirect detects TikTok bouncing an unauthenticated request to
// the login page.
func isLoginRedirect(resp *http.Response) bool {
	if resp.Request != nil && resp.Request.URL != nil &&
		strings.Contains(resp.Request.URL.Path, "/login") {
		return true
	}
	loc := resp.Header.Get("Location")
	return strings.Contains(loc, "/login")
}

func failure(msg string) *handler.PostResult {
	return &handler.PostResult{Success: false, Error: msg}
}
