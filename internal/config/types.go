package config

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Notion   NotionConfig   `json:"notion"`
	Buffer   BufferConfig   `json:"buffer,omitempty"`
	Logging  LoggingConfig  `json:"logging"`
	History  *HistoryConfig `json:"history,omitempty"`
	Janitor  *JanitorConfig `json:"janitor,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`

	// AllowedUserIDs is the submitter allowlist. Empty means the bot
	// answers nobody, which is almost certainly a misconfiguration, so
	// Validate rejects it.
	AllowedUserIDs []int64 `json:"allowed_user_ids"`

	GroupLog string `json:"group_log,omitempty"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type NotionConfig struct {
	Token string `json:"token"`
	// Version is the Notion-Version API header. Leave empty for the
	// client default.
	Version      string `json:"version,omitempty"`
	ParentPageID string `json:"parent_page_id"`
	RatePerSec   int    `json:"rate_per_sec,omitempty"`
	// Timeout is a Go duration string bounding a single API call.
	Timeout string `json:"timeout,omitempty"`
}

// BufferConfig controls the per-submitter aggregation window.
type BufferConfig struct {
	// Window is a Go duration string (e.g. "30s"). Zero means the
	// built-in default.
	Window string `json:"window,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// HistoryConfig controls the optional upload-history store.
//
// Example:
//
//	"history": { "driver": "sqlite", "path": "./notibot.db" }
type HistoryConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// JanitorConfig controls the temp-directory sweeper.
type JanitorConfig struct {
	Enabled bool `json:"enabled"`
	// Schedule is a cron spec (e.g. "@every 1h").
	Schedule string `json:"schedule,omitempty"`
	// MaxAge is a Go duration string; directories older than this are removed.
	MaxAge string `json:"max_age,omitempty"`
}
