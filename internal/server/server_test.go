package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/hypecasthq/hypecast/internal/config"
	"github.com/hypecasthq/hypecast/internal/models"
	"github.com/hypecasthq/hypecast/internal/service"
	"github.com/hypecasthq/hypecast/internal/service/handler"
	"github.com/hypecasthq/hypecast/internal/storage"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	logger := zap.NewNop()
	cfg := &config.Config{
		Server:  config.ServerConfig{Mode: gin.TestMode},
		Posting: *config.DefaultPostingConfig(),
	}

	store, err := storage.NewStatusStore(filepath.Join(t.TempDir(), "status.json"))
	if err != nil {
		t.Fatalf("NewStatusStore() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })

	history, err := storage.NewHistoryStore(filepath.Join(t.TempDir(), "history"))
	if err != nil {
		t.Fatalf("NewHistoryStore() error = %v", err)
	}

	accounts := service.NewAccountRegistry(&models.AccountsConfig{
		Platforms: map[string][]*models.Account{
			"tiktok": {{Username: "main_account", Password: "pw", Enabled: true}},
		},
	}, logger)
	captions := service.NewCaptionGenerator(&cfg.Posting, t.TempDir())
	registry := handler.NewRegistry(logger)

	scheduler := service.NewPostScheduler(&cfg.Posting, logger, store, registry, accounts, captions)
	manager := service.NewPostManager(logger, registry, accounts, captions, scheduler, history)

	return NewServer(cfg, logger, scheduler, manager, accounts)
}

func doRequest(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	srv.Router.ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t)
	w := doRequest(t, srv, http.MethodGet, "/health", "")
	if w.Code != http.StatusOK {
		t.Errorf("GET /health = %d, want 200", w.Code)
	}
}

func TestGetStatusEndpoint(t *testing.T) {
	srv := newTestServer(t)
	w := doRequest(t, srv, http.MethodGet, "/api/v1/posts", "")
	if w.Code != http.StatusOK {
		t.Fatalf("GET /api/v1/posts = %d, want 200", w.Code)
	}

	var body map[string]json.RawMessage
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	for _, key := range []string{"scheduled_posts", "posted", "failed", "queue_length"} {
		if _, ok := body[key]; !ok {
			t.Errorf("status response missing %q", key)
		}
	}
}

func TestSetAccountEnabled(t *testing.T) {
	srv := newTestServer(t)

	w := doRequest(t, srv, http.MethodPatch, "/api/v1/accounts/tiktok/main_account", `{"enabled": false}`)
	if w.Code != http.StatusOK {
		t.Fatalf("PATCH account = %d, want 200 (body %s)", w.Code, w.Body.String())
	}

	// The account is out of selection until re-enabled.
	if acc := srv.Accounts.ForPlatform("tiktok"); acc != nil {
		t.Errorf("ForPlatform() = %v after disabling, want nil", acc)
	}

	w = doRequest(t, srv, http.MethodPatch, "/api/v1/accounts/tiktok/main_account", `{"enabled": true}`)
	if w.Code != http.StatusOK {
		t.Fatalf("PATCH re-enable = %d, want 200", w.Code)
	}
	if acc := srv.Accounts.ForPlatform("tiktok"); acc == nil {
		t.Error("ForPlatform() = nil after re-enabling")
	}
}

func TestSetAccountEnabled_UnknownAccount(t *testing.T) {
	srv := newTestServer(t)
	w := doRequest(t, srv, http.MethodPatch, "/api/v1/accounts/tiktok/ghost", `{"enabled": false}`)
	if w.Code != http.StatusNotFound {
		t.Errorf("PATCH unknown account = %d, want 404", w.Code)
	}
}

func TestSetAccountEnabled_BadBody(t *testing.T) {
	srv := newTestServer(t)
	w := doRequest(t, srv, http.MethodPatch, "/api/v1/accounts/tiktok/main_account", `{}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("PATCH with empty body = %d, want 400", w.Code)
	}
}
