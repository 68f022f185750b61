package uploader

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingParentPage is a configuration error: append-only mode needs
	// an existing page to append to. Not retryable.
	ErrMissingParentPage = errors.New("uploader: parent page id is required in append-only mode")

	ErrEmptyFile = errors.New("uploader: file is empty")

	// ErrUploadTimeout means the status-poll budget was exhausted while the
	// destination still reported the upload as pending.
	ErrUploadTimeout = errors.New("uploader: upload was not processed in time")
)

// UnsupportedFileTypeError rejects a file whose MIME type is outside the
// destination's allow-list.
type UnsupportedFileTypeError struct {
	FileName    string
	ContentType string
}

func (e *UnsupportedFileTypeError) Error() string {
	return fmt.Sprintf("uploader: unsupported file type %s (%s)", e.ContentType, e.FileName)
}

// UploadFailedError carries the destination's processing failure message.
type UploadFailedError struct {
	Message string
}

func (e *UploadFailedError) Error() string {
	if e.Message == "" {
		return "uploader: destination reported upload failure"
	}
	return "uploader: upload failed: " + e.Message
}
