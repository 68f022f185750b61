package config

import (
	"reflect"
	"strings"
)

// changedSections returns a compact list of top-level sections that differ
// between two configs. Used only for reload logging; tokens are never
// included in the output.
func changedSections(oldCfg, newCfg *Config) []string {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)

	if oldCfg.Telegram.Token != newCfg.Telegram.Token ||
		!reflect.DeepEqual(oldCfg.Telegram.AllowedUserIDs, newCfg.Telegram.AllowedUserIDs) ||
		strings.TrimSpace(oldCfg.Telegram.GroupLog) != strings.TrimSpace(newCfg.Telegram.GroupLog) ||
		strings.TrimSpace(oldCfg.Telegram.PollTimeout) != strings.TrimSpace(newCfg.Telegram.PollTimeout) {
		changed = append(changed, "telegram")
	}

	if oldCfg.Notion != newCfg.Notion {
		changed = append(changed, "notion")
	}

	if strings.TrimSpace(oldCfg.Buffer.Window) != strings.TrimSpace(newCfg.Buffer.Window) {
		changed = append(changed, "buffer")
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
	}

	if !reflect.DeepEqual(oldCfg.History, newCfg.History) {
		changed = append(changed, "history")
	}

	if !reflect.DeepEqual(oldCfg.Janitor, newCfg.Janitor) {
		changed = append(changed, "janitor")
	}

	return changed
}
