package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	yamlenv "github.com/ifuryst/go-yaml-env"

	"github.com/hypecasthq/hypecast/internal/models"
	"github.com/hypecasthq/hypecast/pkg/logger"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Logger    logger.Config   `yaml:"logger"`
	Storage   StorageConfig   `yaml:"storage"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Posting   PostingConfig   `yaml:"-"`
}

// SchedulerConfig controls the background worker and the optional cron
// sweep that replaces it.
type SchedulerConfig struct {
	DisableWorker bool   `yaml:"disable_worker"`
	SweepSpec     string `yaml:"sweep_spec"`
}

type ServerConfig struct {
	Port     int    `yaml:"port"`
	Host     string `yaml:"host"`
	Mode     string `yaml:"mode"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// StorageConfig points at the JSON documents and directories on disk.
type StorageConfig struct {
	StatusFile   string `yaml:"status_file"`
	HistoryDir   string `yaml:"history_dir"`
	CookiesDir   string `yaml:"cookies_dir"`
	AccountsFile string `yaml:"accounts_file"`
	PostingFile  string `yaml:"posting_file"`
	ScriptsDir   string `yaml:"scripts_dir"`
}

// PostingConfig mirrors config/content_creation_config.json.
type PostingConfig struct {
	Platforms              []string            `json:"platforms"`
	PostingFrequency       string              `json:"posting_frequency"`
	OptimalTimes           map[string][]string `json:"optimal_times"`
	MaxPostsPerDay         map[string]int      `json:"max_posts_per_day"`
	PostingIntervalMinutes int                 `json:"posting_interval_minutes"`
	RetryAttempts          int                 `json:"retry_attempts"`
	RetryDelayMinutes      int                 `json:"retry_delay_minutes"`
	BaseHashtags           map[string][]string `json:"base_hashtags,omitempty"`
	HashtagPools           map[string][]string `json:"hashtag_pools,omitempty"`
	Captions               map[string]string   `json:"captions,omitempty"`
	Avatars                []string            `json:"avatars,omitempty"`
}

func LoadConfig(configPath string) (*Config, error) {
	cfg, err := yamlenv.LoadConfig[Config](configPath)
	if err != nil {
		return nil, err
	}

	// Set default values
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 5380
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = "debug"
	}
	if cfg.Storage.StatusFile == "" {
		cfg.Storage.StatusFile = "data/scheduler_status.json"
	}
	if cfg.Storage.HistoryDir == "" {
		cfg.Storage.HistoryDir = "data/post_history"
	}
	if cfg.Storage.CookiesDir == "" {
		cfg.Storage.CookiesDir = "config/cookies"
	}
	if cfg.Storage.AccountsFile == "" {
		cfg.Storage.AccountsFile = "config/accounts.json"
	}
	if cfg.Storage.PostingFile == "" {
		cfg.Storage.PostingFile = "config/content_creation_config.json"
	}
	if cfg.Storage.ScriptsDir == "" {
		cfg.Storage.ScriptsDir = "data/scripts"
	}

	posting, err := LoadPostingConfig(cfg.Storage.PostingFile)
	if err != nil {
		return nil, err
	}
	cfg.Posting = *posting

	return cfg, nil
}

// LoadPostingConfig reads the posting configuration JSON. A missing file is
// not an error: the in-memory defaults apply so an unattended scheduler
// keeps running.
func LoadPostingConfig(path string) (*PostingConfig, error) {
	cfg := DefaultPostingConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read posting config: %w", err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse posting config %s: %w", path, err)
	}

	applyPostingDefaults(cfg)
	return cfg, nil
}

// LoadAccounts reads config/accounts.json. A missing file yields an empty
// registry rather than an error.
func LoadAccounts(path string) (*models.AccountsConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &models.AccountsConfig{
				Platforms: make(map[string][]*models.Account),
				Avatars:   make(map[string]map[string][]*models.Account),
			}, nil
		}
		return nil, fmt.Errorf("read accounts config: %w", err)
	}

	cfg := &models.AccountsConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse accounts config %s: %w", path, err)
	}
	return cfg, nil
}

func DefaultPostingConfig() *PostingConfig {
	cfg := &PostingConfig{
		Platforms:              []string{"tiktok", "instagram"},
		PostingFrequency:       "daily",
		PostingIntervalMinutes: 60,
		RetryAttempts:          3,
		RetryDelayMinutes:      15,
		OptimalTimes: map[string][]string{
			"tiktok":    {"09:00", "12:00", "19:00", "22:00"},
			"instagram": {"11:00", "14:00", "20:00"},
			"youtube":   {"15:00", "18:00"},
		},
		MaxPostsPerDay: map[string]int{
			"tiktok":    3,
			"instagram": 2,
			"youtube":   1,
		},
		BaseHashtags: map[string][]string{
			"tiktok":    {"#fyp", "#foryou"},
			"instagram": {"#reels", "#explore"},
			"youtube":   {"#shorts"},
		},
		HashtagPools: map[string][]string{
			"tiktok":    {"#viral", "#trending", "#foodie", "#recipe", "#cooking", "#tasty", "#yum", "#foodtok"},
			"instagram": {"#instafood", "#foodgram", "#delicious", "#homemade", "#foodlover", "#eats"},
			"youtube":   {"#food", "#recipe", "#cooking", "#quickmeals"},
		},
		Captions: map[string]string{
			"tiktok":    "You have to try this! Save for later",
			"instagram": "New favorite right here ✨ Save this one!",
			"youtube":   "Quick recipe you can make today!",
		},
	}
	return cfg
}

func applyPostingDefaults(cfg *PostingConfig) {
	defaults := DefaultPostingConfig()

	if len(cfg.Platforms) == 0 {
		cfg.Platforms = defaults.Platforms
	}
	if cfg.PostingFrequency == "" {
		cfg.PostingFrequency = defaults.PostingFrequency
	}
	if cfg.PostingIntervalMinutes == 0 {
		cfg.PostingIntervalMinutes = defaults.PostingIntervalMinutes
	}
	if cfg.RetryAttempts == 0 {
		cfg.RetryAttempts = defaults.RetryAttempts
	}
	if cfg.RetryDelayMinutes == 0 {
		cfg.RetryDelayMinutes = defaults.RetryDelayMinutes
	}
	if len(cfg.OptimalTimes) == 0 {
		cfg.OptimalTimes = defaults.OptimalTimes
	}
	if len(cfg.MaxPostsPerDay) == 0 {
		cfg.MaxPostsPerDay = defaults.MaxPostsPerDay
	}
	if len(cfg.BaseHashtags) == 0 {
		cfg.BaseHashtags = defaults.BaseHashtags
	}
	if len(cfg.HashtagPools) == 0 {
		cfg.HashtagPools = defaults.HashtagPools
	}
	if len(cfg.Captions) == 0 {
		cfg.Captions = defaults.Captions
	}
}
