// Package uploader drives the chunked upload protocol against the
// destination API and attaches the results to pages.
package uploader

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"notibot/internal/notion"
	"notibot/internal/record"
	logx "notibot/pkg/logx"
)

// Client is the slice of the destination client the orchestrator needs.
type Client interface {
	CreatePage(ctx context.Context, title string) (string, error)
	AppendText(ctx context.Context, pageID, text string) error
	AppendBookmark(ctx context.Context, pageID, url string) error
	CreateFileUpload(ctx context.Context, fileName, contentType string, size int64) (notion.UploadSession, error)
	UploadFile(ctx context.Context, filePath, uploadURL, contentType string) error
	UploadFilePart(ctx context.Context, filePath, uploadURL, contentType string, partNumber int, startByte, endByte int64) error
	CompleteMultipartUpload(ctx context.Context, uploadID string) error
	GetUploadStatus(ctx context.Context, uploadID string) (notion.UploadStatus, error)
	AppendFileBlock(ctx context.Context, pageID, uploadID, fileName, mimeType string) error
}

const (
	defaultPollInitial  = 5 * time.Second
	defaultPollAttempts = 6
)

// Uploader orchestrates one submission: page creation or reuse, text
// append, and the create/transfer/complete upload protocol. It keeps no
// state across calls.
type Uploader struct {
	client Client
	log    logx.Logger

	pollInitial  time.Duration
	pollAttempts int
	sleep        func(ctx context.Context, d time.Duration) error
}

func New(client Client, log logx.Logger) *Uploader {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Uploader{
		client:       client,
		log:          log,
		pollInitial:  defaultPollInitial,
		pollAttempts: defaultPollAttempts,
		sleep:        sleepCtx,
	}
}

// UploadMessage sends one submission to the destination and returns the
// page ID used. With appendOnly the unit is appended to parentPageID;
// otherwise a new page is created first. A failure after page creation
// leaves the page in place; partial success is expected, not exceptional.
func (u *Uploader) UploadMessage(ctx context.Context, rec record.Submission, parentPageID string, appendOnly bool) (string, error) {
	var pageID string
	if appendOnly {
		if parentPageID == "" {
			return "", ErrMissingParentPage
		}
		pageID = parentPageID
	} else {
		id, err := u.client.CreatePage(ctx, rec.Title())
		if err != nil {
			return "", fmt.Errorf("create page: %w", err)
		}
		pageID = id
	}

	if rec.Text != "" {
		if err := u.client.AppendText(ctx, pageID, rec.Text); err != nil {
			return pageID, fmt.Errorf("append text: %w", err)
		}
	}

	switch {
	case rec.LocalFilePath != "":
		if err := u.attachFile(ctx, pageID, rec); err != nil {
			return pageID, err
		}
	case rec.ExternalURL != "":
		if err := u.client.AppendBookmark(ctx, pageID, rec.ExternalURL); err != nil {
			return pageID, fmt.Errorf("append bookmark: %w", err)
		}
	}

	return pageID, nil
}

func (u *Uploader) attachFile(ctx context.Context, pageID string, rec record.Submission) error {
	info, err := os.Stat(rec.LocalFilePath)
	if err != nil {
		return fmt.Errorf("stat file: %w", err)
	}
	size := info.Size()
	if size == 0 {
		return ErrEmptyFile
	}

	fileName := resolveFileName(rec.FileName, rec.LocalFilePath)
	contentType := resolveContentType(rec.ContentType, fileName)

	// Markdown goes in as text, not as an opaque attachment.
	if contentType == markdownContentType {
		b, err := os.ReadFile(rec.LocalFilePath)
		if err != nil {
			return fmt.Errorf("read markdown: %w", err)
		}
		if err := u.client.AppendText(ctx, pageID, string(b)); err != nil {
			return fmt.Errorf("append markdown: %w", err)
		}
		return nil
	}

	if !isSupportedType(contentType) {
		return &UnsupportedFileTypeError{FileName: fileName, ContentType: contentType}
	}

	sess, err := u.client.CreateFileUpload(ctx, fileName, contentType, size)
	if err != nil {
		return fmt.Errorf("create upload: %w", err)
	}

	u.log.Debug("transferring file",
		logx.String("file", fileName),
		logx.String("mode", sess.Mode),
		logx.Int64("size", size),
		logx.Int("parts", sess.Parts))

	if sess.Mode == notion.ModeMultiPart {
		if err := u.transferParts(ctx, rec.LocalFilePath, sess, contentType, size); err != nil {
			return err
		}
		if err := u.client.CompleteMultipartUpload(ctx, sess.ID); err != nil {
			return fmt.Errorf("complete upload: %w", err)
		}
	} else {
		if err := u.client.UploadFile(ctx, rec.LocalFilePath, sess.UploadURL, contentType); err != nil {
			return fmt.Errorf("transfer file: %w", err)
		}
	}

	if err := u.waitForUpload(ctx, sess.ID); err != nil {
		return err
	}

	if err := u.client.AppendFileBlock(ctx, pageID, sess.ID, fileName, contentType); err != nil {
		return fmt.Errorf("attach file block: %w", err)
	}
	return nil
}

// transferParts runs all part transfers concurrently and joins. A single
// failed part fails the whole transfer; complete is never called then.
func (u *Uploader) transferParts(ctx context.Context, filePath string, sess notion.UploadSession, contentType string, size int64) error {
	parts := splitParts(size, sess.Parts)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	for _, p := range parts {
		wg.Add(1)
		go func(p partRange) {
			defer wg.Done()
			if err := u.client.UploadFilePart(ctx, filePath, sess.UploadURL, contentType, p.Number, p.Start, p.End); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = fmt.Errorf("part %d: %w", p.Number, err)
				}
				mu.Unlock()
			}
		}(p)
	}
	wg.Wait()
	return firstErr
}

// waitForUpload polls upload status with exponential backoff until the
// destination reports it processed. A "failed" status aborts immediately
// with the remote message; exhausting the budget is a timeout.
func (u *Uploader) waitForUpload(ctx context.Context, uploadID string) error {
	delay := u.pollInitial
	for attempt := 1; attempt <= u.pollAttempts; attempt++ {
		st, err := u.client.GetUploadStatus(ctx, uploadID)
		if err != nil {
			u.log.Warn("upload status check failed", logx.Int("attempt", attempt), logx.Err(err))
		} else {
			switch st.Status {
			case notion.StatusUploaded:
				return nil
			case notion.StatusFailed:
				return &UploadFailedError{Message: st.ErrorMessage}
			}
		}
		if attempt == u.pollAttempts {
			break
		}
		if err := u.sleep(ctx, delay); err != nil {
			return err
		}
		delay *= 2
	}
	return ErrUploadTimeout
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
