package notion

// Wire shapes for the destination API (JSON over HTTPS). These mirror the
// fixed page/block model; only the fields this bot produces are present.

type textContent struct {
	Content string `json:"content"`
}

type richText struct {
	Type string      `json:"type,omitempty"`
	Text textContent `json:"text"`
}

type paragraphBlock struct {
	RichText []richText `json:"rich_text"`
}

type bookmarkBlock struct {
	URL     string     `json:"url"`
	Caption []richText `json:"caption,omitempty"`
}

type fileUploadRef struct {
	ID string `json:"id"`
}

type fileUploadBlock struct {
	Type       string        `json:"type"`
	FileUpload fileUploadRef `json:"file_upload"`
	Caption    []richText    `json:"caption,omitempty"`
}

type pageParent struct {
	Type   string `json:"type"`
	PageID string `json:"page_id"`
}

type pageTitle struct {
	Title []richText `json:"title"`
}

type pageProperties struct {
	Title pageTitle `json:"title"`
}

type createPageRequest struct {
	Parent     pageParent     `json:"parent"`
	Properties pageProperties `json:"properties"`
	Children   []any          `json:"children"`
}

type appendChildrenRequest struct {
	Children []any `json:"children"`
}

func paragraph(text string) map[string]any {
	return map[string]any{
		"object":    "block",
		"type":      "paragraph",
		"paragraph": paragraphBlock{RichText: []richText{{Type: "text", Text: textContent{Content: text}}}},
	}
}

func bookmark(url string) map[string]any {
	return map[string]any{
		"object":   "block",
		"type":     "bookmark",
		"bookmark": bookmarkBlock{URL: url},
	}
}

func fileBlock(blockType, uploadID, caption string) map[string]any {
	b := fileUploadBlock{
		Type:       "file_upload",
		FileUpload: fileUploadRef{ID: uploadID},
	}
	if caption != "" {
		b.Caption = []richText{{Type: "text", Text: textContent{Content: caption}}}
	}
	return map[string]any{
		"object":  "block",
		"type":    blockType,
		blockType: b,
	}
}

var blockTypesByMIME = map[string][]string{
	"image": {"image/jpeg", "image/png", "image/gif", "image/webp", "image/svg+xml"},
	"video": {"video/mp4", "video/quicktime", "video/x-msvideo", "video/webm"},
	"audio": {"audio/mpeg", "audio/mp4", "audio/wav", "audio/ogg", "audio/webm"},
	"pdf":   {"application/pdf"},
}

// BlockTypeForMIME classifies an uploaded artifact into the destination's
// typed blocks. Unknown types fall back to a generic file block.
func BlockTypeForMIME(mimeType string) string {
	for blockType, mimes := range blockTypesByMIME {
		for _, m := range mimes {
			if m == mimeType {
				return blockType
			}
		}
	}
	return "file"
}
