package transport

import "context"

// Update is one normalized inbound event from the chat platform.
type Update struct {
	Message *Message
}

// Message carries the parts of an inbound chat message the rest of the
// system cares about. Text holds either the message text or the media
// caption. File is nil for text-only messages.
type Message struct {
	ID           int
	ChatID       int64
	FromID       int64
	FromUsername string
	Text         string
	// GroupID correlates messages that arrive as one logical batch
	// (Telegram media groups / albums). Empty for standalone messages.
	GroupID string
	File    *FileRef
}

// FileRef points at a media attachment already downloaded to local disk.
// The receiver owns the file and is responsible for removing it.
type FileRef struct {
	LocalPath   string
	Name        string
	ContentType string
	Size        int64
}

type ChatTarget struct {
	ChatID int64
}

type MessageRef struct {
	ChatID    int64
	MessageID int
}

type SendOptions struct {
	DisablePreview bool
}

// BotCommand represents a single bot command menu entry.
type BotCommand struct {
	Command     string
	Description string
}

type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	EditText(ctx context.Context, ref MessageRef, text string, opt *SendOptions) error
	UpdateMenuCommands(ctx context.Context, cmds []BotCommand) error
}
