// Package janitor sweeps stale download directories out of the bot's
// temp root. Directories are normally removed as soon as a submission is
// handled; the janitor catches the ones a crash or kill left behind.
package janitor

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "notibot/pkg/logx"
)

const (
	DefaultSchedule = "@every 1h"
	DefaultMaxAge   = 6 * time.Hour
)

type Config struct {
	// Root is the directory holding per-submission download dirs.
	Root string
	// Schedule is a cron spec understood by robfig/cron ("@every 1h",
	// "0 * * * *", ...).
	Schedule string
	// MaxAge is how old an entry must be before it is swept.
	MaxAge time.Duration
}

type Service struct {
	cfg Config
	log logx.Logger

	mu sync.Mutex
	c  *cron.Cron

	// now is swapped out in tests.
	now func() time.Time
}

func New(cfg Config, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultSchedule
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = DefaultMaxAge
	}
	return &Service{cfg: cfg, log: log, now: time.Now}
}

func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}
	c := cron.New()
	if _, err := c.AddFunc(s.cfg.Schedule, func() { s.Sweep() }); err != nil {
		return err
	}
	s.c = c
	c.Start()
	s.log.Info("janitor started",
		logx.String("root", s.cfg.Root),
		logx.String("schedule", s.cfg.Schedule),
		logx.Duration("max_age", s.cfg.MaxAge))
	return nil
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
}

// Sweep removes entries under Root whose mtime is older than MaxAge.
// Returns the number of entries removed.
func (s *Service) Sweep() int {
	entries, err := os.ReadDir(s.cfg.Root)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warn("janitor read root failed", logx.String("root", s.cfg.Root), logx.Any("err", err))
		}
		return 0
	}

	cutoff := s.now().Add(-s.cfg.MaxAge)
	removed := 0
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		p := filepath.Join(s.cfg.Root, e.Name())
		if err := os.RemoveAll(p); err != nil {
			s.log.Warn("janitor remove failed", logx.String("path", p), logx.Any("err", err))
			continue
		}
		removed++
	}
	if removed > 0 {
		s.log.Info("janitor sweep", logx.Int("removed", removed), logx.String("root", s.cfg.Root))
	}
	return removed
}
