// Package telegram adapts telebot long polling to the transport types the
// rest of the bot consumes. Media attachments are downloaded to a
// per-message temp directory before the update is handed off; the consumer
// owns the directory afterwards.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	tele "gopkg.in/telebot.v4"

	"notibot/internal/transport"
	logx "notibot/pkg/logx"
)

type Config struct {
	Token       string
	PollTimeout time.Duration
	// TempRoot is where media downloads land. Defaults to
	// <os.TempDir()>/notibot.
	TempRoot string
}

type Adapter struct {
	cfg Config
	log logx.Logger

	bot       *tele.Bot
	out       chan<- transport.Update
	runCancel context.CancelFunc
	runWG     sync.WaitGroup
	runMu     sync.Mutex
	running   bool

	// droppedUpdates counts updates dropped because the consumer was slower
	// than the poll loop. Logged periodically to avoid per-update spam.
	droppedUpdates uint64

	menuMu   sync.Mutex
	menuHash uint64
	http     *http.Client
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 10 * time.Second
	}
	if cfg.TempRoot == "" {
		cfg.TempRoot = filepath.Join(os.TempDir(), "notibot")
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: cfg.PollTimeout},
	})
	if err != nil {
		return nil, err
	}
	return &Adapter{cfg: cfg, log: log, bot: b, http: &http.Client{Timeout: 8 * time.Second}}, nil
}

// TempRoot reports the directory media downloads are placed under.
func (a *Adapter) TempRoot() string { return a.cfg.TempRoot }

func (a *Adapter) Start(ctx context.Context, out chan<- transport.Update) error {
	a.runMu.Lock()
	if a.running {
		a.runMu.Unlock()
		return nil
	}
	a.running = true
	a.out = out
	rctx, cancel := context.WithCancel(ctx)
	a.runCancel = cancel
	a.runWG.Add(2)
	a.runMu.Unlock()

	// Periodic summary for dropped updates.
	go func() {
		defer a.runWG.Done()
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-rctx.Done():
				if n := atomic.SwapUint64(&a.droppedUpdates, 0); n > 0 {
					a.log.Warn("incoming updates dropped (channel full)",
						logx.Int64("count", int64(n)), logx.Int("chan_cap", cap(out)))
				}
				return
			case <-ticker.C:
				if n := atomic.SwapUint64(&a.droppedUpdates, 0); n > 0 {
					a.log.Warn("incoming updates dropped (channel full)",
						logx.Int64("count", int64(n)), logx.Int("chan_cap", cap(out)))
				}
			}
		}
	}()

	a.bot.Handle(tele.OnText, func(c tele.Context) error {
		m := c.Message()
		if m == nil {
			return nil
		}
		a.deliver(a.baseMessage(m))
		return nil
	})

	media := func(c tele.Context) error {
		m := c.Message()
		if m == nil {
			return nil
		}
		msg := a.baseMessage(m)
		ref, err := a.downloadMedia(m)
		if err != nil {
			a.log.Warn("media download failed",
				logx.Int("message_id", m.ID),
				logx.Int64("from", msg.FromID),
				logx.Any("err", err))
			return nil
		}
		msg.File = ref
		a.deliver(msg)
		return nil
	}
	for _, ev := range []string{tele.OnDocument, tele.OnPhoto, tele.OnVideo, tele.OnAudio, tele.OnVoice} {
		a.bot.Handle(ev, media)
	}

	go func() {
		defer a.runWG.Done()
		go func() {
			<-rctx.Done()
			a.bot.Stop()
		}()
		a.log.Info("polling started")
		a.bot.Start() // blocks until Stop() called
	}()

	return nil
}

func (a *Adapter) baseMessage(m *tele.Message) *transport.Message {
	text := m.Text
	if text == "" {
		text = m.Caption
	}
	msg := &transport.Message{
		ID:      m.ID,
		ChatID:  m.Chat.ID,
		Text:    text,
		GroupID: m.AlbumID,
	}
	if m.Sender != nil {
		msg.FromID = m.Sender.ID
		msg.FromUsername = m.Sender.Username
	}
	return msg
}

func (a *Adapter) deliver(msg *transport.Message) {
	select {
	case a.out <- transport.Update{Message: msg}:
	default:
		atomic.AddUint64(&a.droppedUpdates, 1)
		// The file would leak if nobody consumes the update.
		if msg.File != nil {
			_ = os.RemoveAll(filepath.Dir(msg.File.LocalPath))
		}
	}
}

// downloadMedia fetches the message's attachment into a fresh directory
// under TempRoot and describes it as a FileRef.
func (a *Adapter) downloadMedia(m *tele.Message) (*transport.FileRef, error) {
	file, name, contentType := mediaParts(m)
	if file == nil {
		return nil, errors.New("message has no downloadable media")
	}

	dir := filepath.Join(a.cfg.TempRoot, uuid.NewString())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	local := filepath.Join(dir, name)
	if err := a.bot.Download(file, local); err != nil {
		_ = os.RemoveAll(dir)
		return nil, err
	}
	info, err := os.Stat(local)
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, err
	}
	return &transport.FileRef{
		LocalPath:   local,
		Name:        name,
		ContentType: contentType,
		Size:        info.Size(),
	}, nil
}

// mediaParts picks the attachment out of a message and resolves a filename
// and content type for it. Telegram strips names from photos and voice
// notes, so those get synthetic names keyed by the file's unique ID.
func mediaParts(m *tele.Message) (file *tele.File, name, contentType string) {
	switch {
	case m.Document != nil:
		d := m.Document
		name = d.FileName
		if name == "" {
			name = "document_" + d.UniqueID
		}
		return &d.File, name, d.MIME
	case m.Photo != nil:
		p := m.Photo
		return &p.File, "photo_" + p.UniqueID + ".jpg", "image/jpeg"
	case m.Video != nil:
		v := m.Video
		name = v.FileName
		if name == "" {
			name = "video_" + v.UniqueID + ".mp4"
		}
		ct := v.MIME
		if ct == "" {
			ct = "video/mp4"
		}
		return &v.File, name, ct
	case m.Audio != nil:
		au := m.Audio
		name = au.FileName
		if name == "" {
			name = "audio_" + au.UniqueID + ".mp3"
		}
		ct := au.MIME
		if ct == "" {
			ct = "audio/mpeg"
		}
		return &au.File, name, ct
	case m.Voice != nil:
		v := m.Voice
		ct := v.MIME
		if ct == "" {
			ct = "audio/ogg"
		}
		return &v.File, "voice_" + v.UniqueID + ".ogg", ct
	}
	return nil, "", ""
}

func (a *Adapter) Stop(ctx context.Context) error {
	// Best-effort graceful stop; never block shutdown on the long poll.
	a.runMu.Lock()
	cancel := a.runCancel
	a.runCancel = nil
	wasRunning := a.running
	a.running = false
	a.runMu.Unlock()

	if !wasRunning {
		return nil
	}
	if cancel != nil {
		cancel()
	}
	if a.bot != nil {
		go a.bot.Stop()
	}

	done := make(chan struct{})
	go func() {
		a.runWG.Wait()
		close(done)
	}()

	// Grace window keeps shutdown snappy even while getUpdates is waiting.
	grace := 2 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		rem := time.Until(dl)
		if rem > 0 && rem < grace {
			grace = rem
		}
	}
	t := time.NewTimer(grace)
	defer t.Stop()

	select {
	case <-done:
		a.log.Info("polling stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		a.log.Warn("telegram stop grace elapsed; continuing shutdown")
		return nil
	}
}

func (a *Adapter) SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error) {
	if opt == nil {
		opt = &transport.SendOptions{}
	}
	chat := &tele.Chat{ID: to.ChatID}
	sendOpt := &tele.SendOptions{
		DisableWebPagePreview: opt.DisablePreview,
	}
	msg, err := a.bot.Send(chat, text, sendOpt)
	if err != nil {
		return transport.MessageRef{}, err
	}
	return transport.MessageRef{ChatID: to.ChatID, MessageID: msg.ID}, nil
}

func (a *Adapter) EditText(ctx context.Context, ref transport.MessageRef, text string, opt *transport.SendOptions) error {
	if opt == nil {
		opt = &transport.SendOptions{}
	}
	m := &tele.Message{ID: ref.MessageID, Chat: &tele.Chat{ID: ref.ChatID}}
	_, err := a.bot.Edit(m, text, &tele.SendOptions{DisableWebPagePreview: opt.DisablePreview})
	return err
}

// UpdateMenuCommands updates Telegram's /menu command list (setMyCommands).
// Best-effort: it only performs a network call when the list changes.
func (a *Adapter) UpdateMenuCommands(ctx context.Context, cmds []transport.BotCommand) error {
	a.menuMu.Lock()
	defer a.menuMu.Unlock()

	h := fnv.New64a()
	for _, c := range cmds {
		h.Write([]byte(c.Command))
		h.Write([]byte{0})
		h.Write([]byte(c.Description))
		h.Write([]byte{0})
	}
	sum := h.Sum64()
	if sum == a.menuHash {
		return nil
	}

	type cmd struct {
		Command     string `json:"command"`
		Description string `json:"description"`
	}
	payload := struct {
		Commands []cmd `json:"commands"`
	}{Commands: make([]cmd, 0, len(cmds))}

	for _, c := range cmds {
		if c.Command == "" {
			continue
		}
		d := c.Description
		if d == "" {
			d = c.Command
		}
		if len(d) > 256 {
			d = d[:256]
		}
		payload.Commands = append(payload.Commands, cmd{Command: c.Command, Description: d})
		if len(payload.Commands) >= 100 {
			break
		}
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	url := "https://api.telegram.org/bot" + strings.TrimSpace(a.cfg.Token) + "/setMyCommands"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	client := a.http
	if client == nil {
		client = &http.Client{Timeout: 8 * time.Second}
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var out struct {
		OK          bool   `json:"ok"`
		ErrorCode   int    `json:"error_code"`
		Description string `json:"description"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&out)

	if resp.StatusCode/100 != 2 || !out.OK {
		if out.Description != "" {
			return fmt.Errorf("telegram setMyCommands failed: %s (code=%d http=%d)", out.Description, out.ErrorCode, resp.StatusCode)
		}
		return fmt.Errorf("telegram setMyCommands failed: http=%d", resp.StatusCode)
	}

	a.menuHash = sum
	a.log.Info("menu commands updated", logx.Int("count", len(payload.Commands)))
	return nil
}
