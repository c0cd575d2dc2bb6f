package tiktok

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/hypecasthq/hypecast/internal/models"
	"github.com/hypecasthq/hypecast/internal/service/handler"
)

// fakePlatform is a stand-in for tiktok.com: login hands out a session
// cookie, /upload answers authenticated probes, and the upload endpoint
// replies with whatever uploadReply holds.
type fakePlatform struct {
	server      *httptest.Server
	uploadReply string

	mu      sync.Mutex
	logins  int
	uploads int
}

func newFakePlatform(t *testing.T) *fakePlatform {
	t.Helper()
	f := &fakePlatform{
		uploadReply: `{"status_code": 0, "status_msg": "", "item_id": "7123", "share_url": "https://example.com/v/7123"}`,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/login/", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.logins++
		f.mu.Unlock()
		http.SetCookie(w, &http.Cookie{Name: "sessionid", Value: "s3cret", Path: "/"})
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/upload", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/api/v1/item/upload/", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.uploads++
		f.mu.Unlock()
		if _, err := r.Cookie("sessionid"); err != nil {
			http.Redirect(w, r, "/login/", http.StatusFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, f.uploadReply)
	})

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func newTestHandler(t *testing.T, platform *fakePlatform) *Handler {
	t.Helper()
	h := NewHandler(zap.NewNop(), t.TempDir())
	if platform != nil {
		h.baseURL = platform.server.URL
	}
	return h
}

func testVideo(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.mp4")
	if err := os.WriteFile(path, []byte("fake mp4"), 0644); err != nil {
		t.Fatalf("write video: %v", err)
	}
	return path
}

func testAccount() *models.Account {
	return &models.Account{Username: "tester", Password: "pw", Enabled: true}
}

func TestPostVideo_LoginAndUpload(t *testing.T) {
	platform := newFakePlatform(t)
	h := newTestHandler(t, platform)

	result, err := h.PostVideo(context.Background(), handler.PostRequest{
		VideoPath: testVideo(t),
		Caption:   "hello",
		Hashtags:  []string{"#fyp"},
		Account:   testAccount(),
	})
	if err != nil {
		t.Fatalf("PostVideo() error = %v", err)
	}
	if !result.Success {
		t.Fatalf("PostVideo() result = %+v, want success", result)
	}
	if result.PostID != "7123" || result.PostURL != "https://example.com/v/7123" {
		t.Errorf("result ids = %s / %s, want values from the upload response", result.PostID, result.PostURL)
	}
	if platform.logins != 1 || platform.uploads != 1 {
		t.Errorf("logins = %d, uploads = %d; want 1 and 1", platform.logins, platform.uploads)
	}

	// The refreshed session is persisted for the next process.
	session, err := h.session("tester")
	if err != nil {
		t.Fatalf("session() error = %v", err)
	}
	if !session.HasCookies() {
		t.Error("session cookies were not kept after upload")
	}
}

func TestPostVideo_UploadRejectedInResult(t *testing.T) {
	platform := newFakePlatform(t)
	platform.uploadReply = `{"status_code": 8, "status_msg": "file too large"}`
	h := newTestHandler(t, platform)

	result, err := h.PostVideo(context.Background(), handler.PostRequest{
		VideoPath: testVideo(t),
		Account:   testAccount(),
	})
	// Ordinary failures come back in the result, not as an error.
	if err != nil {
		t.Fatalf("PostVideo() error = %v, want nil", err)
	}
	if result.Success {
		t.Fatal("PostVideo() reported success for a rejected upload")
	}
	if !strings.Contains(result.Error, "file too large") {
		t.Errorf("result error = %q, want the platform's message", result.Error)
	}
}

func TestPostVideo_LoginRejectedInResult(t *testing.T) {
	f := &fakePlatform{}
	mux := http.NewServeMux()
	mux.HandleFunc("/login/", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad credentials", http.StatusForbidden)
	})
	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)

	h := newTestHandler(t, f)
	result, err := h.PostVideo(context.Background(), handler.PostRequest{
		VideoPath: testVideo(t),
		Account:   testAccount(),
	})
	if err != nil {
		t.Fatalf("PostVideo() error = %v, want nil", err)
	}
	if result.Success || !strings.Contains(result.Error, "login failed") {
		t.Errorf("result = %+v, want login failure in the result", result)
	}
}

func TestPostVideo_NoAccount(t *testing.T) {
	h := newTestHandler(t, nil)

	result, err := h.PostVideo(context.Background(), handler.PostRequest{VideoPath: "x.mp4"})
	if err != nil {
		t.Fatalf("PostVideo() error = %v, want nil", err)
	}
	if result.Success || result.Error != "no account provided" {
		t.Errorf("result = %+v, want no-account failure", result)
	}
}

func TestCheckAccountStatus_NoSavedSession(t *testing.T) {
	h := newTestHandler(t, nil)

	status, err := h.CheckAccountStatus(context.Background(), "tester")
	if err != nil {
		t.Fatalf("CheckAccountStatus() error = %v", err)
	}
	if status.State != handler.AccountLoggedOut {
		t.Errorf("state = %s, want logged_out", status.State)
	}
}

func TestSessionCache_ConcurrentAccess(t *testing.T) {
	h := newTestHandler(t, nil)

	// The worker and API goroutines share one handler; the cache must
	// tolerate simultaneous lookups for different usernames.
	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				if _, err := h.session(fmt.Sprintf("user_%d", n)); err != nil {
					errs <- err
					return
				}
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("session() error = %v", err)
	}

	if got := len(h.sessions); got != 8 {
		t.Errorf("session cache size = %d, want 8", got)
	}

	// Repeat lookups reuse the cached session.
	a, _ := h.session("user_0")
	b, _ := h.session("user_0")
	if a != b {
		t.Error("session cache returned different instances for one username")
	}
}

func TestIsLoginRedirect(t *testing.T) {
	byPath := &http.Response{
		Request: httptest.NewRequest(http.MethodGet, "https://www.tiktok.com/login/?redirect=upload", nil),
	}
	if !isLoginRedirect(byPath) {
		t.Error("isLoginRedirect() missed a request landing on the login page")
	}

	byHeader := &http.Response{Header: http.Header{"Location": []string{"/login?next=/upload"}}}
	if !isLoginRedirect(byHeader) {
		t.Error("isLoginRedirect() missed a Location redirect")
	}

	plain := &http.Response{
		Request: httptest.NewRequest(http.MethodGet, "https://www.tiktok.com/upload", nil),
		Header:  http.Header{},
	}
	if isLoginRedirect(plain) {
		t.Error("isLoginRedirect() flagged an ordinary response")
	}
}
