package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Session is a persistent-cookie HTTP session for one account on one
// platform. Cookies live at <cookiesDir>/<platform>/<username>.json so a
// fresh process resumes an existing login without re-authenticating.
type Session struct {
	platform   string
	username   string
	cookiePath string
	baseURL    *url.URL
	jar        http.CookieJar
	client     *http.Client
	userAgent  string
	mu         sync.Mutex
}

// SessionConfig configures session behavior.
type SessionConfig struct {
	CookiesDir string
	Platform   string
	Username   string
	BaseURL    string
	UserAgent  string
	Timeout    time.Duration
}

func NewSession(cfg SessionConfig) (*Session, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}

	if cfg.UserAgent == "" {
		cfg.UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}

	s := &Session{
		platform:   cfg.Platform,
		username:   cfg.Username,
		cookiePath: filepath.Join(cfg.CookiesDir, cfg.Platform, cfg.Username+".json"),
		baseURL:    base,
		jar:        jar,
		userAgent:  cfg.UserAgent,
		client: &http.Client{
			Timeout: cfg.Timeout,
			Jar:     jar,
		},
	}

	// Cookies file may not exist yet; that's a first login, not an error.
	if err := s.LoadCookies(); err != nil {
		return nil, err
	}

	return s, nil
}

// Client returns the HTTP client backed by the session's cookie jar.
func (s *Session) Client() *http.Client {
	return s.client
}

// UserAgent returns the User-Agent header value for requests.
func (s *Session) UserAgent() string {
	return s.userAgent
}

// HasCookies reports whether the jar currently holds cookies for the
// platform's domain.
func (s *Session) HasCookies() bool {
	return len(s.jar.Cookies(s.baseURL)) > 0
}

// SaveCookies persists the jar's cookies for the platform domain.
func (s *Session) SaveCookies() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cookies := s.jar.Cookies(s.baseURL)

	data, err := json.MarshalIndent(cookies, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal cookies: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.cookiePath), 0700); err != nil {
		return fmt.Errorf("create cookie directory: %w", err)
	}

	// Restricted permissions, these are session credentials
	if err := os.WriteFile(s.cookiePath, data, 0600); err != nil {
		return fmt.Errorf("write cookie file: %w", err)
	}

	return nil
}

// LoadCookies restores persisted cookies into the jar. A missing file is
// not an error.
func (s *Session) LoadCookies() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.cookiePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read cookie file: %w", err)
	}

	var cookies []*http.Cookie
	if err := json.Unmarshal(data, &cookies); err != nil {
		return fmt.Errorf("unmarshal cookie file: %w", err)
	}

	s.jar.SetCookies(s.baseURL, cookies)
	return nil
}

// ClearCookies drops in-memory and persisted cookies, forcing a fresh
// login on the next request.
func (s *Session) ClearCookies() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	jar, err := cookiejar.New(nil)
	if err != nil {
		return fmt.Errorf("create cookie jar: %w", err)
	}
	s.jar = jar
	s.client.Jar = jar

	if err := os.Remove(s.cookiePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove cookie file: %w", err)
	}
	return nil
}
