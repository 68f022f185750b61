// Package record defines the normalized representation of one unit of
// inbound content, independent of its transport origin.
package record

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Submission is one unit of user-submitted content. LocalFilePath and
// ExternalURL are mutually exclusive; FileCount and LinkCount are derived
// at construction time and should not be set by callers.
type Submission struct {
	Text string

	LocalFilePath string
	FileName      string
	ContentType   string

	ExternalURL string

	// GroupID correlates units arriving as one logical batch.
	GroupID string
	// UnitID identifies this unit inside a batch. Assigned by New.
	UnitID string

	SubmitterID int64
	ReceivedAt  time.Time

	FileCount int
	LinkCount int
}

// New fills in derived fields: unit ID, receive time, and the file/link
// counters computed from the content.
func New(s Submission) Submission {
	if s.UnitID == "" {
		s.UnitID = uuid.NewString()
	}
	if s.ReceivedAt.IsZero() {
		s.ReceivedAt = time.Now()
	}
	s.FileCount = 0
	if s.LocalFilePath != "" || s.ExternalURL != "" {
		s.FileCount = 1
	}
	s.LinkCount = countLinks(s.Text)
	if s.ExternalURL != "" {
		s.LinkCount++
	}
	return s
}

// HasFile reports whether the unit carries an attachment (local or external).
func (s Submission) HasFile() bool {
	return s.LocalFilePath != "" || s.ExternalURL != ""
}

const titleMax = 50

// Title derives the destination page title: the first line of the text
// (truncated), the file name, or a timestamped fallback.
func (s Submission) Title() string {
	text := strings.TrimSpace(s.Text)
	if text != "" {
		line := text
		if i := strings.IndexByte(line, '\n'); i >= 0 {
			line = line[:i]
		}
		r := []rune(line)
		if len(r) > titleMax {
			return string(r[:titleMax]) + "..."
		}
		return line
	}
	if s.FileName != "" {
		return s.FileName
	}
	if s.ExternalURL != "" {
		return s.ExternalURL
	}
	return fmt.Sprintf("Telegram message %s", s.ReceivedAt.Format("2006-01-02 15:04:05"))
}

// countLinks counts well-formed absolute http(s) URLs in free text.
func countLinks(text string) int {
	n := 0
	for _, f := range strings.Fields(text) {
		f = strings.TrimRight(f, ".,;:!?)")
		if !strings.HasPrefix(f, "http://") && !strings.HasPrefix(f, "https://") {
			continue
		}
		u, err := url.Parse(f)
		if err != nil || u.Host == "" {
			continue
		}
		n++
	}
	return n
}
