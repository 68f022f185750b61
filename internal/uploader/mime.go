package uploader

import (
	"mime"
	"path/filepath"
	"strings"
)

const fallbackContentType = "application/octet-stream"
const markdownContentType = "text/markdown"

// supportedMIMETypes is the destination's allow-list: images, common
// video/audio containers, PDF, Office formats, plain text/CSV/HTML.
var supportedMIMETypes = map[string]struct{}{
	"image/jpeg": {}, "image/png": {}, "image/gif": {}, "image/webp": {}, "image/svg+xml": {},
	"video/mp4": {}, "video/quicktime": {}, "video/x-msvideo": {}, "video/webm": {},
	"audio/mpeg": {}, "audio/mp4": {}, "audio/wav": {}, "audio/ogg": {}, "audio/webm": {},
	"application/pdf":    {},
	"application/msword": {},
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": {},
	"application/vnd.ms-excel": {},
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": {},
	"application/vnd.ms-powerpoint":                                     {},
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": {},
	"text/plain": {}, "text/csv": {}, "text/markdown": {}, "text/html": {},
}

func isSupportedType(contentType string) bool {
	_, ok := supportedMIMETypes[contentType]
	return ok
}

// resolveContentType picks the effective MIME type: an explicit value wins,
// otherwise it is inferred from the file name extension, otherwise the
// generic fallback. Parameters (charset etc.) are stripped.
func resolveContentType(explicit, fileName string) string {
	ct := strings.TrimSpace(explicit)
	if ct == "" {
		ct = mime.TypeByExtension(strings.ToLower(filepath.Ext(fileName)))
	}
	if ct == "" {
		return fallbackContentType
	}
	if base, _, err := mime.ParseMediaType(ct); err == nil {
		return base
	}
	return ct
}

// resolveFileName picks the effective file name: explicit value wins, else
// the base name of the local path.
func resolveFileName(explicit, localPath string) string {
	if strings.TrimSpace(explicit) != "" {
		return explicit
	}
	return filepath.Base(localPath)
}
