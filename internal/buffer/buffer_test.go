package buffer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"notibot/internal/record"
	"notibot/internal/transport"
	logx "notibot/pkg/logx"
)

type upCall struct {
	Parent     string
	AppendOnly bool
}

type fakeUploader struct {
	mu       sync.Mutex
	calls    []upCall
	failNext error
	nextPage int
}

func (f *fakeUploader) UploadMessage(ctx context.Context, rec record.Submission, parent string, appendOnly bool) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, upCall{Parent: parent, AppendOnly: appendOnly})
	if f.failNext != nil {
		err := f.failNext
		f.failNext = nil
		return "", err
	}
	if appendOnly {
		return parent, nil
	}
	f.nextPage++
	return fmt.Sprintf("page-%d", f.nextPage), nil
}

func (f *fakeUploader) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func newTestBuffer(window time.Duration, up Uploader) (*Buffer, chan Summary) {
	closed := make(chan Summary, 4)
	b := New(Config{Window: window}, up, func(s Summary) { closed <- s }, logx.Nop())
	return b, closed
}

func unit(submitter int64, text string) record.Submission {
	return record.New(record.Submission{Text: text, SubmitterID: submitter})
}

func waitSummary(t *testing.T, ch chan Summary, within time.Duration) Summary {
	t.Helper()
	select {
	case s := <-ch:
		return s
	case <-time.After(within):
		t.Fatal("timed out waiting for close summary")
		return Summary{}
	}
}

func TestFirstUnitReturnsURLFollowupsAppend(t *testing.T) {
	t.Parallel()
	up := &fakeUploader{}
	b, closed := newTestBuffer(40*time.Millisecond, up)
	target := transport.ChatTarget{ChatID: 7}

	url, err := b.AddUnit(context.Background(), unit(1, "hello"), target)
	if err != nil {
		t.Fatalf("AddUnit: %v", err)
	}
	if url != "https://www.notion.so/page1" {
		t.Fatalf("url = %q", url)
	}

	url, err = b.AddUnit(context.Background(), unit(1, "world"), target)
	if err != nil {
		t.Fatalf("AddUnit: %v", err)
	}
	if url != "" {
		t.Fatalf("second unit must not return a URL, got %q", url)
	}

	up.mu.Lock()
	if len(up.calls) != 2 || up.calls[0].AppendOnly || !up.calls[1].AppendOnly || up.calls[1].Parent != "page-1" {
		t.Fatalf("unexpected calls: %+v", up.calls)
	}
	up.mu.Unlock()

	sum := waitSummary(t, closed, time.Second)
	if sum.PageID != "page-1" || sum.TextCount != 2 || sum.FileCount != 0 || sum.HadError {
		t.Fatalf("unexpected summary: %+v", sum)
	}
	if sum.ReplyTo != target {
		t.Fatalf("summary target = %+v", sum.ReplyTo)
	}
	if b.Open() != 0 {
		t.Fatalf("entries still open: %d", b.Open())
	}
}

func TestUnitAfterWindowStartsNewPage(t *testing.T) {
	t.Parallel()
	up := &fakeUploader{}
	b, closed := newTestBuffer(30*time.Millisecond, up)

	url1, err := b.AddUnit(context.Background(), unit(1, "a"), transport.ChatTarget{})
	if err != nil {
		t.Fatalf("AddUnit: %v", err)
	}
	waitSummary(t, closed, time.Second)

	url2, err := b.AddUnit(context.Background(), unit(1, "b"), transport.ChatTarget{})
	if err != nil {
		t.Fatalf("AddUnit: %v", err)
	}
	if url2 == "" || url2 == url1 {
		t.Fatalf("expected a fresh page URL, got %q then %q", url1, url2)
	}
}

func TestEachUnitReschedulesFullWindow(t *testing.T) {
	t.Parallel()
	up := &fakeUploader{}
	b, closed := newTestBuffer(80*time.Millisecond, up)

	if _, err := b.AddUnit(context.Background(), unit(1, "a"), transport.ChatTarget{}); err != nil {
		t.Fatalf("AddUnit: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if _, err := b.AddUnit(context.Background(), unit(1, "b"), transport.ChatTarget{}); err != nil {
		t.Fatalf("AddUnit: %v", err)
	}

	// The first timer would have fired by now; the reschedule must have
	// superseded it.
	select {
	case s := <-closed:
		t.Fatalf("entry closed too early: %+v", s)
	case <-time.After(50 * time.Millisecond):
	}

	waitSummary(t, closed, time.Second)
}

func TestFailedFirstUnitLeavesNoEntry(t *testing.T) {
	t.Parallel()
	up := &fakeUploader{failNext: errors.New("remote says no")}
	b, _ := newTestBuffer(time.Minute, up)

	_, err := b.AddUnit(context.Background(), unit(1, "a"), transport.ChatTarget{})
	if err == nil {
		t.Fatal("expected first unit to fail")
	}
	if b.Open() != 0 {
		t.Fatal("no entry may persist past a failed first unit")
	}

	// The next unit starts over and gets a URL.
	url, err := b.AddUnit(context.Background(), unit(1, "b"), transport.ChatTarget{})
	if err != nil {
		t.Fatalf("AddUnit after failure: %v", err)
	}
	if url == "" {
		t.Fatal("expected a page URL after recovery")
	}
}

func TestAppendFailureKeepsEntryOpenAndFlagsSummary(t *testing.T) {
	t.Parallel()
	up := &fakeUploader{}
	b, closed := newTestBuffer(60*time.Millisecond, up)

	if _, err := b.AddUnit(context.Background(), unit(1, "a"), transport.ChatTarget{}); err != nil {
		t.Fatalf("AddUnit: %v", err)
	}

	up.mu.Lock()
	up.failNext = errors.New("append rejected")
	up.mu.Unlock()
	if _, err := b.AddUnit(context.Background(), unit(1, "b"), transport.ChatTarget{}); err == nil {
		t.Fatal("expected append error to propagate")
	}
	if b.Open() != 1 {
		t.Fatal("entry must stay open after a failed append")
	}

	// A later success does not clear the sticky error flag.
	if _, err := b.AddUnit(context.Background(), unit(1, "c"), transport.ChatTarget{}); err != nil {
		t.Fatalf("AddUnit: %v", err)
	}

	sum := waitSummary(t, closed, time.Second)
	if !sum.HadError {
		t.Fatal("summary must report the earlier failure")
	}
	// The failed unit is not counted.
	if sum.TextCount != 2 {
		t.Fatalf("TextCount = %d, want 2", sum.TextCount)
	}
}

func TestSubmittersAreIndependent(t *testing.T) {
	t.Parallel()
	up := &fakeUploader{}
	b, closed := newTestBuffer(40*time.Millisecond, up)

	url1, err := b.AddUnit(context.Background(), unit(1, "a"), transport.ChatTarget{ChatID: 1})
	if err != nil {
		t.Fatalf("AddUnit: %v", err)
	}
	url2, err := b.AddUnit(context.Background(), unit(2, "b"), transport.ChatTarget{ChatID: 2})
	if err != nil {
		t.Fatalf("AddUnit: %v", err)
	}
	if url1 == url2 {
		t.Fatalf("submitters must get distinct pages, both got %q", url1)
	}

	first := waitSummary(t, closed, time.Second)
	second := waitSummary(t, closed, time.Second)
	if first.SubmitterID == second.SubmitterID {
		t.Fatal("expected one summary per submitter")
	}
}

func TestGroupMembersMergeByUnitID(t *testing.T) {
	t.Parallel()
	up := &fakeUploader{}
	b, _ := newTestBuffer(time.Minute, up)

	if _, err := b.AddUnit(context.Background(), unit(1, "start"), transport.ChatTarget{}); err != nil {
		t.Fatalf("AddUnit: %v", err)
	}
	g1 := record.New(record.Submission{SubmitterID: 1, Text: "x", GroupID: "album-1"})
	g2 := record.New(record.Submission{SubmitterID: 1, Text: "y", GroupID: "album-1"})
	if _, err := b.AddUnit(context.Background(), g1, transport.ChatTarget{}); err != nil {
		t.Fatalf("AddUnit: %v", err)
	}
	if _, err := b.AddUnit(context.Background(), g2, transport.ChatTarget{}); err != nil {
		t.Fatalf("AddUnit: %v", err)
	}

	b.mu.Lock()
	ent := b.entries[1]
	if ent.openGroupID != "album-1" || len(ent.groupMembers) != 2 {
		b.mu.Unlock()
		t.Fatalf("group state: id=%q members=%d", ent.openGroupID, len(ent.groupMembers))
	}
	// A new group replaces the old one.
	b.mu.Unlock()
	g3 := record.New(record.Submission{SubmitterID: 1, Text: "z", GroupID: "album-2"})
	if _, err := b.AddUnit(context.Background(), g3, transport.ChatTarget{}); err != nil {
		t.Fatalf("AddUnit: %v", err)
	}
	b.mu.Lock()
	ent = b.entries[1]
	if ent.openGroupID != "album-2" || len(ent.groupMembers) != 1 {
		b.mu.Unlock()
		t.Fatalf("group state after switch: id=%q members=%d", ent.openGroupID, len(ent.groupMembers))
	}
	b.mu.Unlock()
}

func TestStaleTimerIsNoOp(t *testing.T) {
	t.Parallel()
	up := &fakeUploader{}
	b, closed := newTestBuffer(time.Minute, up)

	if _, err := b.AddUnit(context.Background(), unit(1, "a"), transport.ChatTarget{}); err != nil {
		t.Fatalf("AddUnit: %v", err)
	}
	b.mu.Lock()
	gen := b.entries[1].gen
	b.mu.Unlock()

	// A timer generation that was superseded must not close the entry.
	b.expire(1, gen-1)
	if b.Open() != 1 {
		t.Fatal("stale timer closed the entry")
	}
	// An expire for an unknown submitter is silent.
	b.expire(99, 1)

	select {
	case s := <-closed:
		t.Fatalf("unexpected summary: %+v", s)
	default:
	}
}

func TestShutdownDropsEntriesSilently(t *testing.T) {
	t.Parallel()
	up := &fakeUploader{}
	b, closed := newTestBuffer(20*time.Millisecond, up)

	if _, err := b.AddUnit(context.Background(), unit(1, "a"), transport.ChatTarget{}); err != nil {
		t.Fatalf("AddUnit: %v", err)
	}
	b.Shutdown()
	if b.Open() != 0 {
		t.Fatal("entries remain after shutdown")
	}
	select {
	case s := <-closed:
		t.Fatalf("shutdown must not emit summaries, got %+v", s)
	case <-time.After(60 * time.Millisecond):
	}
	if up.callCount() != 1 {
		t.Fatalf("unexpected uploader calls: %d", up.callCount())
	}
}

func TestSnapshotTracksRunningCounts(t *testing.T) {
	t.Parallel()
	up := &fakeUploader{}
	b, _ := newTestBuffer(time.Hour, up)
	defer b.Shutdown()

	if _, _, open := b.Snapshot(1); open {
		t.Fatal("snapshot open before any unit")
	}

	ctx := context.Background()
	if _, err := b.AddUnit(ctx, unit(1, "a"), transport.ChatTarget{}); err != nil {
		t.Fatalf("AddUnit: %v", err)
	}
	if _, err := b.AddUnit(ctx, unit(1, "b"), transport.ChatTarget{}); err != nil {
		t.Fatalf("AddUnit: %v", err)
	}

	files, texts, open := b.Snapshot(1)
	if !open || files != 0 || texts != 2 {
		t.Fatalf("Snapshot = (%d, %d, %v), want (0, 2, true)", files, texts, open)
	}
	if _, _, open := b.Snapshot(2); open {
		t.Fatal("snapshot open for unknown submitter")
	}
}
