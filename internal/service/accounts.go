package service

import (
	"math/rand"
	"sort"

	"go.uber.org/zap"

	"github.com/hypecasthq/hypecast/internal/models"
)

// AccountRegistry resolves which account posts a given video. Accounts are
// loaded once at startup; only the Enabled flag changes afterwards.
type AccountRegistry struct {
	cfg    *models.AccountsConfig
	logger *zap.Logger
}

func NewAccountRegistry(cfg *models.AccountsConfig, logger *zap.Logger) *AccountRegistry {
	return &AccountRegistry{cfg: cfg, logger: logger}
}

// ForAvatar resolves an account for an avatar/platform pair. Avatar-bound
// accounts take priority; when none are configured the platform-general
// pool is used. Returns nil when neither has an enabled account.
func (r *AccountRegistry) ForAvatar(avatar, platform string) *models.Account {
	if avatar != "" {
		if byPlatform, ok := r.cfg.Avatars[avatar]; ok {
			if account := pick(byPlatform[platform]); account != nil {
				return account
			}
		}
	}
	return r.ForPlatform(platform)
}

// ForPlatform picks any enabled account registered for the platform.
func (r *AccountRegistry) ForPlatform(platform string) *models.Account {
	return pick(r.cfg.Platforms[platform])
}

// All returns every account registered for the platform, including
// avatar-bound and disabled ones.
func (r *AccountRegistry) All(platform string) []*models.Account {
	accounts := append([]*models.Account{}, r.cfg.Platforms[platform]...)
	for _, byPlatform := range r.cfg.Avatars {
		accounts = append(accounts, byPlatform[platform]...)
	}
	return accounts
}

// Find looks up a specific username on a platform, searching the platform
// pool and every avatar pool.
func (r *AccountRegistry) Find(platform, username string) *models.Account {
	for _, account := range r.cfg.Platforms[platform] {
		if account.Username == username {
			return account
		}
	}
	for _, byPlatform := range r.cfg.Avatars {
		for _, account := range byPlatform[platform] {
			if account.Username == username {
				return account
			}
		}
	}
	return nil
}

// Avatars returns the known avatar names in stable order.
func (r *AccountRegistry) Avatars() []string {
	names := make([]string, 0, len(r.cfg.Avatars))
	for name := range r.cfg.Avatars {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SetEnabled toggles an account in or out of random selection. Returns
// false when the account does not exist.
func (r *AccountRegistry) SetEnabled(platform, username string, enabled bool) bool {
	account := r.Find(platform, username)
	if account == nil {
		return false
	}
	account.Enabled = enabled
	r.logger.Info("Account enabled flag changed",
		zap.String("platform", platform),
		zap.String("username", username),
		zap.Bool("enabled", enabled))
	return true
}

// pick selects uniformly at random among enabled accounts. No weighting,
// no least-recently-used policy.
func pick(accounts []*models.Account) *models.Account {
	var enabled []*models.Account
	for _, account := range accounts {
		if account.Enabled {
			enabled = append(enabled, account)
		}
	}
	if len(enabled) == 0 {
		return nil
	}
	return enabled[rand.Intn(len(enabled))]
}
