package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks the pieces the app cannot start (or safely reload) without.
// Duration strings are parsed here so a bad reload is rejected before commit.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		return errors.New("telegram.token is required")
	}
	if len(cfg.Telegram.AllowedUserIDs) == 0 {
		return errors.New("telegram.allowed_user_ids must list at least one user")
	}
	if strings.TrimSpace(cfg.Notion.Token) == "" {
		return errors.New("notion.token is required")
	}
	if strings.TrimSpace(cfg.Notion.ParentPageID) == "" {
		return errors.New("notion.parent_page_id is required")
	}
	if cfg.Notion.RatePerSec < 0 {
		return errors.New("notion.rate_per_sec must be >= 0")
	}
	if _, err := ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("notion.timeout", cfg.Notion.Timeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("buffer.window", cfg.Buffer.Window); err != nil {
		return err
	}
	if h := cfg.History; h != nil {
		switch strings.ToLower(strings.TrimSpace(h.Driver)) {
		case "", "none", "sqlite", "sqlite3":
		default:
			return fmt.Errorf("history.driver: unknown driver %q", h.Driver)
		}
		if _, err := ParseDurationField("history.busy_timeout", h.BusyTimeout); err != nil {
			return err
		}
	}
	if j := cfg.Janitor; j != nil {
		if _, err := ParseDurationField("janitor.max_age", j.MaxAge); err != nil {
			return err
		}
	}
	return nil
}
