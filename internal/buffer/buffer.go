// Package buffer coalesces rapid bursts of submissions from one user into
// a single destination page. Each submitter has at most one open entry; an
// inactivity timer closes it and reports a summary.
package buffer

import (
	"context"
	"sync"
	"time"

	"notibot/internal/notion"
	"notibot/internal/record"
	"notibot/internal/transport"
	logx "notibot/pkg/logx"
)

// Uploader is the slice of the orchestrator the buffer needs.
type Uploader interface {
	UploadMessage(ctx context.Context, rec record.Submission, parentPageID string, appendOnly bool) (string, error)
}

// Summary describes one closed entry, emitted when the inactivity window
// elapses.
type Summary struct {
	SubmitterID int64
	PageID      string
	PageURL     string
	FileCount   int
	TextCount   int
	// HadError is sticky: true if any unit failed during the entry's
	// lifetime, even when later units succeeded.
	HadError bool
	ReplyTo  transport.ChatTarget
}

const DefaultWindow = 30 * time.Second

type Config struct {
	// Window is the inactivity period after which an open entry is
	// finalized. Zero means DefaultWindow.
	Window time.Duration
}

// entry is the per-submitter state. It exists only between the first
// accepted unit and the inactivity timeout.
type entry struct {
	pageID string

	openGroupID  string
	groupMembers map[string]record.Submission

	timer *time.Timer
	// gen invalidates timers that fired but were superseded before they
	// could take the lock.
	gen uint64

	hadError  bool
	fileCount int
	textCount int

	replyTo transport.ChatTarget
}

// Buffer owns all entries behind one coarse lock. Mutation and the
// orchestrator calls it triggers are serialized; submission order per page
// follows from that.
type Buffer struct {
	mu      sync.Mutex
	entries map[int64]*entry
	window  time.Duration

	up      Uploader
	onClose func(Summary)
	log     logx.Logger
}

func New(cfg Config, up Uploader, onClose func(Summary), log logx.Logger) *Buffer {
	window := cfg.Window
	if window <= 0 {
		window = DefaultWindow
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Buffer{
		entries: make(map[int64]*entry),
		window:  window,
		up:      up,
		onClose: onClose,
		log:     log,
	}
}

// SetWindow changes the inactivity window for future (re)schedules.
func (b *Buffer) SetWindow(d time.Duration) {
	if d <= 0 {
		return
	}
	b.mu.Lock()
	b.window = d
	b.mu.Unlock()
}

// Open reports the number of currently open entries.
func (b *Buffer) Open() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// Snapshot reports the running counters of a submitter's open entry.
// open is false when no entry exists (never opened, or already closed).
func (b *Buffer) Snapshot(submitterID int64) (fileCount, textCount int, open bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ent, ok := b.entries[submitterID]
	if !ok {
		return 0, 0, false
	}
	return ent.fileCount, ent.textCount, true
}

// AddUnit accepts one submission. The first unit from a submitter creates a
// page and returns its URL; units arriving within the inactivity window
// append to the open page and return "". An append failure is reported to
// the caller but leaves the entry open for further units.
func (b *Buffer) AddUnit(ctx context.Context, rec record.Submission, replyTo transport.ChatTarget) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ent, ok := b.entries[rec.SubmitterID]
	if !ok {
		// First unit: the page must exist before an entry does. A failure
		// here leaves no half-initialized state behind.
		pageID, err := b.up.UploadMessage(ctx, rec, "", false)
		if err != nil {
			b.log.Error("first unit rejected", logx.Int64("submitter", rec.SubmitterID), logx.Err(err))
			return "", err
		}
		ent = &entry{
			pageID:       pageID,
			groupMembers: make(map[string]record.Submission),
			replyTo:      replyTo,
		}
		ent.count(rec)
		b.entries[rec.SubmitterID] = ent
		b.schedule(rec.SubmitterID, ent)
		b.log.Info("entry opened",
			logx.Int64("submitter", rec.SubmitterID),
			logx.String("page_id", pageID))
		return notion.PageURL(pageID), nil
	}

	if rec.GroupID != "" {
		if ent.openGroupID != rec.GroupID {
			ent.openGroupID = rec.GroupID
			ent.groupMembers = map[string]record.Submission{rec.UnitID: rec}
		} else {
			ent.groupMembers[rec.UnitID] = rec
		}
	}

	_, err := b.up.UploadMessage(ctx, rec, ent.pageID, true)
	if err != nil {
		ent.hadError = true
		b.log.Warn("append failed, entry stays open",
			logx.Int64("submitter", rec.SubmitterID),
			logx.String("page_id", ent.pageID),
			logx.Err(err))
	} else {
		ent.count(rec)
	}

	ent.replyTo = replyTo
	b.schedule(rec.SubmitterID, ent)
	return "", err
}

func (e *entry) count(rec record.Submission) {
	if rec.HasFile() {
		e.fileCount++
	}
	if rec.Text != "" {
		e.textCount++
	}
}

// schedule replaces the entry's timer with a fresh full window. Callers
// hold b.mu.
func (b *Buffer) schedule(submitterID int64, ent *entry) {
	if ent.timer != nil {
		ent.timer.Stop()
	}
	ent.gen++
	gen := ent.gen
	ent.timer = time.AfterFunc(b.window, func() {
		b.expire(submitterID, gen)
	})
}

// expire closes the entry if it still exists and the firing timer was not
// superseded. A stale or already-closed timer is a silent no-op.
func (b *Buffer) expire(submitterID int64, gen uint64) {
	b.mu.Lock()
	ent, ok := b.entries[submitterID]
	if !ok || ent.gen != gen {
		b.mu.Unlock()
		return
	}
	delete(b.entries, submitterID)
	sum := Summary{
		SubmitterID: submitterID,
		PageID:      ent.pageID,
		PageURL:     notion.PageURL(ent.pageID),
		FileCount:   ent.fileCount,
		TextCount:   ent.textCount,
		HadError:    ent.hadError,
		ReplyTo:     ent.replyTo,
	}
	b.mu.Unlock()

	b.log.Info("entry closed",
		logx.Int64("submitter", submitterID),
		logx.Int("files", sum.FileCount),
		logx.Int("texts", sum.TextCount),
		logx.Bool("had_error", sum.HadError))
	if b.onClose != nil {
		b.onClose(sum)
	}
}

// Shutdown stops all timers without emitting summaries. Buffer state is
// in-memory only; nothing is persisted.
func (b *Buffer) Shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ent := range b.entries {
		if ent.timer != nil {
			ent.timer.Stop()
		}
		delete(b.entries, id)
	}
}
