package models

import "encoding/json"

// Account identifies a login on one platform. Credentials are loaded once
// at startup and are read-only afterwards except for Enabled toggling.
type Account struct {
	Username         string `json:"username"`
	Password         string `json:"password"`
	Email            string `json:"email,omitempty"`
	Phone            string `json:"phone,omitempty"`
	TwoFactorEnabled bool   `json:"two_factor_enabled,omitempty"`
	TOTPSecret       string `json:"totp_secret,omitempty"`
	Enabled          bool   `json:"enabled"`
	Avatar           string `json:"avatar,omitempty"`
}

// AccountsConfig mirrors config/accounts.json: accounts grouped per
// platform, plus optional per-avatar groupings.
type AccountsConfig struct {
	Platforms map[string][]*Account
	Avatars   map[string]map[string][]*Account
}

// UnmarshalJSON handles the accounts.json layout where platform names sit
// at the top level next to the reserved "avatars" key.
func (c *AccountsConfig) UnmarshalJSON(data []byte) error {
	raw := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	c.Platforms = make(map[string][]*Account)
	c.Avatars = make(map[string]map[string][]*Account)

	for key, value := range raw {
		if key == "avatars" {
			if err := json.Unmarshal(value, &c.Avatars); err != nil {
				return err
			}
			continue
		}

		var accounts []*Account
		if err := json.Unmarshal(value, &accounts); err != nil {
			return err
		}
		c.Platforms[key] = accounts
	}

	return nil
}

func (c AccountsConfig) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(c.Platforms)+1)
	for platform, accounts := range c.Platforms {
		out[platform] = accounts
	}
	if len(c.Avatars) > 0 {
		out["avatars"] = c.Avatars
	}
	return json.Marshal(out)
}
