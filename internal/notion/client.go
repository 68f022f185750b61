package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	logx "notibot/pkg/logx"
)

const defaultBaseURL = "https://api.notion.com/v1"

// Upload mode thresholds. These are hard constraints of the destination
// API, not tunables: anything over 20 MiB must be sent in 10 MiB parts.
const (
	maxSinglePartSize = 20 << 20
	partSize          = 10 << 20
)

const (
	ModeSinglePart = "single_part"
	ModeMultiPart  = "multi_part"
)

const (
	StatusPending  = "pending"
	StatusUploaded = "uploaded"
	StatusFailed   = "failed"
)

type Config struct {
	Token        string
	Version      string
	ParentPageID string

	// BaseURL overrides the API endpoint (tests). Empty means production.
	BaseURL string

	Timeout    time.Duration
	RatePerSec int
}

// Client is a thin typed surface over the destination's page/block/file
// upload endpoints. It performs no retries; callers own retry policy.
type Client struct {
	cfg     Config
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	log     logx.Logger

	mu     sync.Mutex
	parent string
}

// UploadSession is the result of creating a file upload object.
type UploadSession struct {
	ID        string
	UploadURL string
	Mode      string
	// Parts is the number of byte-range parts for multi-part mode, 0 otherwise.
	Parts int
}

// UploadStatus is the server-side processing state of an upload.
type UploadStatus struct {
	Status       string
	ErrorMessage string
}

func New(cfg Config, log logx.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, ErrMissingToken
	}
	if strings.TrimSpace(cfg.ParentPageID) == "" {
		return nil, ErrMissingParentPage
	}
	if cfg.Version == "" {
		cfg.Version = "2022-06-28"
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	// The destination enforces a low request rate; pace outbound calls so
	// bursts of appends don't turn into 429s.
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 3
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{
		cfg:     cfg,
		baseURL: base,
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
		log:     log,
	}, nil
}

// ParentPageID returns the current parent pointer: an explicit override if
// one was set, otherwise the configured root parent page.
func (c *Client) ParentPageID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.parent != "" {
		return c.parent
	}
	return c.cfg.ParentPageID
}

func (c *Client) SetParentPageID(id string) {
	c.mu.Lock()
	c.parent = id
	c.mu.Unlock()
}

// PageURL converts a page ID into the user-facing URL.
func PageURL(pageID string) string {
	return "https://www.notion.so/" + strings.ReplaceAll(pageID, "-", "")
}

// CreatePage creates a page titled title under the current parent and
// returns its ID.
func (c *Client) CreatePage(ctx context.Context, title string) (string, error) {
	req := createPageRequest{
		Parent:     pageParent{Type: "page_id", PageID: c.ParentPageID()},
		Properties: pageProperties{Title: pageTitle{Title: []richText{{Text: textContent{Content: title}}}}},
		Children:   []any{},
	}
	var resp struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, c.baseURL+"/pages", req, &resp); err != nil {
		return "", err
	}
	c.log.Info("page created", logx.String("page_id", short(resp.ID)))
	return resp.ID, nil
}

// AppendText appends a paragraph block to the page.
func (c *Client) AppendText(ctx context.Context, pageID, text string) error {
	req := appendChildrenRequest{Children: []any{paragraph(text)}}
	if err := c.do(ctx, http.MethodPatch, c.baseURL+"/blocks/"+pageID+"/children", req, nil); err != nil {
		return err
	}
	c.log.Debug("text appended", logx.String("page_id", short(pageID)), logx.Int("len", len(text)))
	return nil
}

// AppendBookmark appends a bookmark block pointing at an external URL.
func (c *Client) AppendBookmark(ctx context.Context, pageID, url string) error {
	req := appendChildrenRequest{Children: []any{bookmark(url)}}
	if err := c.do(ctx, http.MethodPatch, c.baseURL+"/blocks/"+pageID+"/children", req, nil); err != nil {
		return err
	}
	c.log.Debug("bookmark appended", logx.String("page_id", short(pageID)))
	return nil
}

// AppendFileBlock attaches a finished upload to the page as a typed block
// (image/video/audio/pdf, generic file otherwise).
func (c *Client) AppendFileBlock(ctx context.Context, pageID, uploadID, fileName, mimeType string) error {
	blockType := BlockTypeForMIME(mimeType)
	req := appendChildrenRequest{Children: []any{fileBlock(blockType, uploadID, fileName)}}
	if err := c.do(ctx, http.MethodPatch, c.baseURL+"/blocks/"+pageID+"/children", req, nil); err != nil {
		return err
	}
	c.log.Info("file block appended",
		logx.String("page_id", short(pageID)),
		logx.String("block_type", blockType),
		logx.String("mime", mimeType))
	return nil
}

// CreateFileUpload creates an upload object. Files over 20 MiB use
// multi-part mode with ceil(size / 10 MiB) parts.
func (c *Client) CreateFileUpload(ctx context.Context, fileName, contentType string, size int64) (UploadSession, error) {
	mode := ModeSinglePart
	parts := 0
	payload := map[string]any{
		"filename":     fileName,
		"content_type": contentType,
		"mode":         mode,
	}
	if size > maxSinglePartSize {
		mode = ModeMultiPart
		parts = int((size + partSize - 1) / partSize)
		payload["mode"] = mode
		payload["number_of_parts"] = parts
	}

	var resp struct {
		ID        string `json:"id"`
		UploadURL string `json:"upload_url"`
	}
	if err := c.do(ctx, http.MethodPost, c.baseURL+"/file_uploads", payload, &resp); err != nil {
		return UploadSession{}, err
	}
	c.log.Debug("file upload created",
		logx.String("upload_id", short(resp.ID)),
		logx.String("mode", mode),
		logx.Int("parts", parts))
	return UploadSession{ID: resp.ID, UploadURL: resp.UploadURL, Mode: mode, Parts: parts}, nil
}

// UploadFile transfers the whole file as a single part.
func (c *Client) UploadFile(ctx context.Context, filePath, uploadURL, contentType string) error {
	f, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("open %s: %w", filepath.Base(filePath), err)
	}
	defer f.Close()
	return c.postForm(ctx, uploadURL, filepath.Base(filePath), contentType, f, nil)
}

// UploadFilePart transfers exactly [startByte, endByte) of the local file as
// one numbered part. The caller guarantees parts partition the file with no
// gaps or overlaps.
func (c *Client) UploadFilePart(ctx context.Context, filePath, uploadURL, contentType string, partNumber int, startByte, endByte int64) error {
	f, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("open %s: %w", filepath.Base(filePath), err)
	}
	defer f.Close()
	if _, err := f.Seek(startByte, io.SeekStart); err != nil {
		return fmt.Errorf("seek part %d: %w", partNumber, err)
	}
	body := io.LimitReader(f, endByte-startByte)
	fields := map[string]string{"part_number": strconv.Itoa(partNumber)}
	if err := c.postForm(ctx, uploadURL, filepath.Base(filePath), contentType, body, fields); err != nil {
		return err
	}
	c.log.Debug("part uploaded", logx.Int("part", partNumber), logx.Int64("bytes", endByte-startByte))
	return nil
}

// CompleteMultipartUpload joins the transferred parts server-side.
func (c *Client) CompleteMultipartUpload(ctx context.Context, uploadID string) error {
	return c.do(ctx, http.MethodPost, c.baseURL+"/file_uploads/"+uploadID+"/complete", nil, nil)
}

// GetUploadStatus reports the server-side processing state of the upload.
func (c *Client) GetUploadStatus(ctx context.Context, uploadID string) (UploadStatus, error) {
	var resp struct {
		Status           string `json:"status"`
		FileImportResult *struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		} `json:"file_import_result"`
	}
	if err := c.do(ctx, http.MethodGet, c.baseURL+"/file_uploads/"+uploadID, nil, &resp); err != nil {
		return UploadStatus{}, err
	}
	st := UploadStatus{Status: resp.Status}
	if resp.FileImportResult != nil {
		st.ErrorMessage = resp.FileImportResult.Error.Message
	}
	return st, nil
}

// do issues one JSON request. Non-2xx becomes *RemoteError, connection-level
// failures become *TransportError.
func (c *Client) do(ctx context.Context, method, url string, payload, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return err
	}
	c.setAuth(req)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &TransportError{Op: method + " " + endpoint(url), Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Op: "read " + endpoint(url), Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &RemoteError{Status: resp.StatusCode, Body: string(raw)}
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode response from %s: %w", endpoint(url), err)
		}
	}
	return nil
}

// postForm issues one multipart/form-data request with a "file" field plus
// optional extra string fields (part_number for multi-part transfers).
func (c *Client) postForm(ctx context.Context, url, fileName, contentType string, file io.Reader, fields map[string]string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return fmt.Errorf("encode form: %w", err)
		}
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, fileName))
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	part, err := w.CreatePart(h)
	if err != nil {
		return fmt.Errorf("encode form: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return fmt.Errorf("read file %s: %w", fileName, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("encode form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return err
	}
	c.setAuth(req)
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return &TransportError{Op: "POST " + endpoint(url), Err: err}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &RemoteError{Status: resp.StatusCode, Body: string(raw)}
	}
	return nil
}

func (c *Client) setAuth(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	req.Header.Set("Notion-Version", c.cfg.Version)
}

func endpoint(url string) string {
	if i := strings.LastIndexByte(url, '/'); i >= 0 && i < len(url)-1 {
		return url[i+1:]
	}
	return url
}

func short(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8] + "..."
}
