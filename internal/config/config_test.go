package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

const validYAML = `
telegram:
  token: "123:abc"
  allowed_user_ids: [42, 99]
notion:
  token: "secret_x"
  parent_page_id: "deadbeef"
  rate_per_sec: 3
buffer:
  window: "30s"
logging:
  level: "info"
  console: true
  file:
    enabled: false
    path: ""
  telegram:
    enabled: false
    min_level: "warn"
    rate_per_sec: 1
`

func TestLoadYAML(t *testing.T) {
	t.Parallel()
	m := NewManager(writeFile(t, "config.yaml", validYAML))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram.Token != "123:abc" {
		t.Fatalf("token = %q", cfg.Telegram.Token)
	}
	if len(cfg.Telegram.AllowedUserIDs) != 2 || cfg.Telegram.AllowedUserIDs[1] != 99 {
		t.Fatalf("allowed_user_ids = %v", cfg.Telegram.AllowedUserIDs)
	}
	if cfg.Notion.ParentPageID != "deadbeef" {
		t.Fatalf("parent_page_id = %q", cfg.Notion.ParentPageID)
	}
	if got := m.Get(); got != cfg {
		t.Fatalf("Get returned a different config")
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	m := NewManager(writeFile(t, "config.yaml", validYAML+"\nmystery: true\n"))
	if _, err := m.Load(); err == nil {
		t.Fatalf("want error for unknown field")
	}
}

func TestLoadJSON(t *testing.T) {
	t.Parallel()
	body := `{
  "telegram": {"token": "t", "allowed_user_ids": [1]},
  "notion": {"token": "n", "parent_page_id": "p"},
  "logging": {"level": "debug", "console": true, "file": {"enabled": false, "path": ""}, "telegram": {"enabled": false, "min_level": "", "rate_per_sec": 0}}
}`
	m := NewManager(writeFile(t, "config.json", body))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("level = %q", cfg.Logging.Level)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	base := func() *Config {
		return &Config{
			Telegram: TelegramConfig{Token: "t", AllowedUserIDs: []int64{1}},
			Notion:   NotionConfig{Token: "n", ParentPageID: "p"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantSub string
	}{
		{"ok", func(c *Config) {}, ""},
		{"missing telegram token", func(c *Config) { c.Telegram.Token = " " }, "telegram.token"},
		{"empty allowlist", func(c *Config) { c.Telegram.AllowedUserIDs = nil }, "allowed_user_ids"},
		{"missing notion token", func(c *Config) { c.Notion.Token = "" }, "notion.token"},
		{"missing parent page", func(c *Config) { c.Notion.ParentPageID = "" }, "parent_page_id"},
		{"bad window", func(c *Config) { c.Buffer.Window = "soon" }, "buffer.window"},
		{"negative rate", func(c *Config) { c.Notion.RatePerSec = -1 }, "rate_per_sec"},
		{"unknown history driver", func(c *Config) { c.History = &HistoryConfig{Driver: "postgres"} }, "history.driver"},
		{"bad janitor max_age", func(c *Config) { c.Janitor = &JanitorConfig{Enabled: true, MaxAge: "-1h"} }, "janitor.max_age"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := Validate(cfg)
			if tt.wantSub == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantSub) {
				t.Fatalf("err = %v, want mention of %q", err, tt.wantSub)
			}
		})
	}
}

func TestParseDurationOrDefault(t *testing.T) {
	t.Parallel()
	d, err := ParseDurationOrDefault("x", "", 30*time.Second)
	if err != nil || d != 30*time.Second {
		t.Fatalf("got %v, %v", d, err)
	}
	d, err = ParseDurationOrDefault("x", "45s", 30*time.Second)
	if err != nil || d != 45*time.Second {
		t.Fatalf("got %v, %v", d, err)
	}
	if _, err := ParseDurationField("x", "nope"); err == nil {
		t.Fatalf("want parse error")
	}
}

func TestChangedSections(t *testing.T) {
	t.Parallel()
	a := &Config{
		Telegram: TelegramConfig{Token: "t", AllowedUserIDs: []int64{1}},
		Notion:   NotionConfig{Token: "n", ParentPageID: "p"},
		Buffer:   BufferConfig{Window: "30s"},
	}
	b := *a
	b.Buffer.Window = "45s"
	b.Notion.RatePerSec = 5

	got := changedSections(a, &b)
	want := []string{"notion", "buffer"}
	if len(got) != len(want) {
		t.Fatalf("changed = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("changed = %v, want %v", got, want)
		}
	}
}
