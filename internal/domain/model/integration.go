package model

import "strings"

// Integration is a user's stored connection to one external platform.
// Credentials arrive decrypted; the pipeline only ever reads integrations.
type Integration struct {
	ID       string `json:"id"       db:"id"`
	UserID   string `json:"user_id"  db:"user_id"`
	Platform string `json:"platform" db:"platform"`
	IsActive bool   `json:"is_active" db:"is_active"`

	// Credentials holds platform-specific secret fields (access tokens,
	// API keys, app passwords). Never logged.
	Credentials map[string]string `json:"-" db:"credentials"`

	// Config holds platform-specific non-secret settings (page id,
	// board id, subreddit, owner URN).
	Config map[string]string `json:"config,omitempty" db:"config"`
}

// PlatformKey returns the canonical lower-cased platform identifier.
func (i *Integration) PlatformKey() string {
	return strings.ToLower(strings.TrimSpace(i.Platform))
}

// Credential returns the named credential field, trimmed, or "" when absent.
func (i *Integration) Credential(name string) string {
	if i == nil || i.Credentials == nil {
		return ""
	}
	return strings.TrimSpace(i.Credentials[name])
}

// Setting returns the named config field, trimmed, or "" when absent.
func (i *Integration) Setting(name string) string {
	if i == nil || i.Config == nil {
		return ""
	}
	return strings.TrimSpace(i.Config[name])
}
