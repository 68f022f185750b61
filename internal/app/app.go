// Package app wires the Telegram adapter, the Notion uploader and the
// aggregation buffer together and runs the update loop.
package app

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"notibot/internal/buffer"
	"notibot/internal/config"
	"notibot/internal/history"
	"notibot/internal/janitor"
	"notibot/internal/notion"
	"notibot/internal/record"
	"notibot/internal/transport"
	telegram "notibot/internal/transport/telegram"
	"notibot/internal/uploader"
	logx "notibot/pkg/logx"
)

type App struct {
	cfgm *config.Manager

	log  logx.Logger
	logs *logx.Service

	adapter transport.Adapter
	client  *notion.Client
	up      *uploader.Uploader
	buf     *buffer.Buffer
	hist    history.Store
	jan     *janitor.Service

	updates chan transport.Update

	allowMu sync.RWMutex
	allowed map[int64]struct{}

	// replyMu guards the first-reply refs live-edited with running counts
	// while a submitter's entry is open.
	replyMu sync.Mutex
	replies map[int64]openReply

	startedAt time.Time

	runMu  sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, logx.NewConsole("INFO").With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogConfig(cfg), ad)
	log = log.With(logx.String("comp", "app"))

	notionTimeout, err := config.ParseDurationField("notion.timeout", cfg.Notion.Timeout)
	if err != nil {
		return nil, err
	}
	client, err := notion.New(notion.Config{
		Token:        cfg.Notion.Token,
		Version:      cfg.Notion.Version,
		ParentPageID: cfg.Notion.ParentPageID,
		RatePerSec:   cfg.Notion.RatePerSec,
		Timeout:      notionTimeout,
	}, log.With(logx.String("comp", "notion")))
	if err != nil {
		return nil, err
	}

	up := uploader.New(client, log.With(logx.String("comp", "uploader")))

	var hist history.Store = history.Nop()
	if hc := cfg.History; hc != nil {
		busy, err := config.ParseDurationField("history.busy_timeout", hc.BusyTimeout)
		if err != nil {
			return nil, err
		}
		hist, err = history.Open(history.Config{
			Driver:      hc.Driver,
			Path:        hc.Path,
			BusyTimeout: busy,
		}, log.With(logx.String("comp", "history")))
		if err != nil {
			return nil, err
		}
	}

	window, err := config.ParseDurationOrDefault("buffer.window", cfg.Buffer.Window, buffer.DefaultWindow)
	if err != nil {
		return nil, err
	}

	a := &App{
		cfgm:      cfgm,
		log:       log,
		logs:      logSvc,
		adapter:   ad,
		client:    client,
		up:        up,
		hist:      hist,
		updates:   make(chan transport.Update, 256),
		replies:   make(map[int64]openReply),
		startedAt: time.Now(),
	}
	a.setAllowed(cfg.Telegram.AllowedUserIDs)
	a.buf = buffer.New(buffer.Config{Window: window}, up, a.onEntryClosed, log.With(logx.String("comp", "buffer")))

	if jc := cfg.Janitor; jc != nil && jc.Enabled {
		maxAge, err := config.ParseDurationOrDefault("janitor.max_age", jc.MaxAge, janitor.DefaultMaxAge)
		if err != nil {
			return nil, err
		}
		a.jan = janitor.New(janitor.Config{
			Root:     ad.TempRoot(),
			Schedule: jc.Schedule,
			MaxAge:   maxAge,
		}, log.With(logx.String("comp", "janitor")))
	}

	return a, nil
}

func mapLogConfig(cfg *config.Config) logx.Config {
	lc := logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
	if s := strings.TrimSpace(cfg.Telegram.GroupLog); s != "" {
		if chatID, err := strconv.ParseInt(s, 10, 64); err == nil {
			lc.Telegram.ChatID = chatID
		}
	}
	return lc
}

func (a *App) setAllowed(ids []int64) {
	m := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		m[id] = struct{}{}
	}
	a.allowMu.Lock()
	a.allowed = m
	a.allowMu.Unlock()
}

func (a *App) isAllowed(id int64) bool {
	a.allowMu.RLock()
	_, ok := a.allowed[id]
	a.allowMu.RUnlock()
	return ok
}

func (a *App) Start(ctx context.Context) error {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	if a.cancel != nil {
		return nil
	}
	rctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	if err := a.adapter.Start(rctx, a.updates); err != nil {
		cancel()
		a.cancel = nil
		return err
	}
	if a.jan != nil {
		if err := a.jan.Start(); err != nil {
			a.log.Warn("janitor start failed", logx.Err(err))
		}
	}

	if err := a.adapter.UpdateMenuCommands(rctx, menuCommands()); err != nil {
		a.log.Warn("menu command update failed", logx.Err(err))
	}

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.wg.Add(3)
	go func() {
		defer a.wg.Done()
		_ = a.cfgm.Watch(rctx)
	}()
	go func() {
		defer a.wg.Done()
		a.reloadLoop(rctx)
	}()
	go func() {
		defer a.wg.Done()
		a.updateLoop(rctx)
	}()

	a.log.Info("started")
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	a.runMu.Lock()
	cancel := a.cancel
	a.cancel = nil
	a.runMu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()

	err := a.adapter.Stop(ctx)
	a.buf.Shutdown()
	if a.jan != nil {
		a.jan.Stop(ctx)
	}

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}

	if cerr := a.hist.Close(); cerr != nil {
		a.log.Warn("history close failed", logx.Err(cerr))
	}
	a.log.Info("stopped")
	_ = a.logs.Close()
	return err
}

// reloadLoop applies hot-reloadable settings from config republishes.
func (a *App) reloadLoop(ctx context.Context) {
	sub := a.cfgm.Subscribe(8)
	defer a.cfgm.Unsubscribe(sub)
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the latest config.
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						cfg = newer
					}
				default:
					goto APPLY
				}
			}
		APPLY:
			a.applyConfig(cfg)
		}
	}
}

func (a *App) applyConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}
	a.logs.Apply(mapLogConfig(cfg))
	a.setAllowed(cfg.Telegram.AllowedUserIDs)
	a.client.SetParentPageID(cfg.Notion.ParentPageID)
	if window, err := config.ParseDurationOrDefault("buffer.window", cfg.Buffer.Window, buffer.DefaultWindow); err == nil {
		a.buf.SetWindow(window)
	}
	a.log.Info("config applied")
}

func (a *App) updateLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case up, ok := <-a.updates:
			if !ok {
				return
			}
			if up.Message == nil {
				continue
			}
			a.handleMessage(ctx, up.Message)
		}
	}
}

func (a *App) handleMessage(ctx context.Context, msg *transport.Message) {
	if msg.File != nil {
		defer func() {
			// The download dir is consumed once the unit has been handed
			// to the buffer, successfully or not.
			_ = os.RemoveAll(filepath.Dir(msg.File.LocalPath))
		}()
	}

	if !a.isAllowed(msg.FromID) {
		a.log.Debug("unauthorized message ignored",
			logx.Int64("from", msg.FromID),
			logx.String("username", msg.FromUsername))
		a.reply(ctx, msg, "Sorry, you are not on the allow list for this bot.")
		return
	}

	if cmd, args, ok := parseCommand(msg.Text); ok && msg.File == nil {
		a.handleCommand(ctx, msg, cmd, args)
		return
	}

	a.handleSubmission(ctx, msg)
}

func (a *App) handleSubmission(ctx context.Context, msg *transport.Message) {
	rec := record.Submission{
		Text:        msg.Text,
		GroupID:     msg.GroupID,
		SubmitterID: msg.FromID,
	}
	if msg.File != nil {
		rec.LocalFilePath = msg.File.LocalPath
		rec.FileName = msg.File.Name
		rec.ContentType = msg.File.ContentType
	} else if u, ok := soleURL(msg.Text); ok {
		// A bare link becomes a bookmark, not a paragraph.
		rec.ExternalURL = u
		rec.Text = ""
	}
	rec = record.New(rec)

	url, err := a.buf.AddUnit(ctx, rec, transport.ChatTarget{ChatID: msg.ChatID})
	a.recordUnit(ctx, rec, err)
	if err != nil {
		a.log.Error("submission failed",
			logx.Int64("submitter", rec.SubmitterID),
			logx.String("unit", rec.UnitID),
			logx.Err(err))
		a.reply(ctx, msg, "❌ Upload failed: "+err.Error())
		return
	}
	if url != "" {
		ref, serr := a.adapter.SendText(ctx, transport.ChatTarget{ChatID: msg.ChatID},
			"📝 Saved to Notion:\n"+url, &transport.SendOptions{DisablePreview: true})
		if serr != nil {
			a.log.Warn("reply failed", logx.Int64("chat", msg.ChatID), logx.Err(serr))
			return
		}
		a.replyMu.Lock()
		a.replies[rec.SubmitterID] = openReply{ref: ref, url: url}
		a.replyMu.Unlock()
		return
	}
	a.editProgress(ctx, rec.SubmitterID)
}

// openReply is the bot's first reply for an open entry; it gets live-edited
// with running counts as further units land on the page.
type openReply struct {
	ref transport.MessageRef
	url string
}

func (a *App) editProgress(ctx context.Context, submitterID int64) {
	files, texts, open := a.buf.Snapshot(submitterID)
	if !open {
		return
	}
	a.replyMu.Lock()
	r, ok := a.replies[submitterID]
	a.replyMu.Unlock()
	if !ok {
		return
	}
	text := "📝 Saved to Notion (" + strconv.Itoa(files) + " files, " +
		strconv.Itoa(texts) + " texts):\n" + r.url
	if err := a.adapter.EditText(ctx, r.ref, text, &transport.SendOptions{DisablePreview: true}); err != nil {
		a.log.Debug("progress edit failed", logx.Int64("submitter", submitterID), logx.Err(err))
	}
}

// recordUnit writes one history row per submission unit.
func (a *App) recordUnit(ctx context.Context, rec record.Submission, err error) {
	kind := "text"
	name := rec.Title()
	// External URLs satisfy HasFile too, so they must be classified first.
	switch {
	case rec.ExternalURL != "":
		kind = "link"
		name = rec.ExternalURL
	case rec.LocalFilePath != "":
		kind = "file"
		name = rec.FileName
	}
	e := history.Entry{
		At:          rec.ReceivedAt,
		SubmitterID: rec.SubmitterID,
		Kind:        kind,
		Name:        name,
		OK:          err == nil,
	}
	if err != nil {
		e.Error = err.Error()
	}
	if herr := a.hist.Append(ctx, e); herr != nil {
		a.log.Warn("history append failed", logx.Err(herr))
	}
}

// onEntryClosed reports an aggregation summary back to the submitter.
func (a *App) onEntryClosed(s buffer.Summary) {
	a.replyMu.Lock()
	delete(a.replies, s.SubmitterID)
	a.replyMu.Unlock()

	total := s.FileCount + s.TextCount
	if total == 0 && !s.HadError {
		return
	}
	text := "✅ Collected " + strconv.Itoa(total) + " item(s) (" +
		strconv.Itoa(s.FileCount) + " files, " +
		strconv.Itoa(s.TextCount) + " texts)\n" + s.PageURL
	if s.HadError {
		text += "\n⚠️ (some uploads failed)"
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := a.adapter.SendText(ctx, s.ReplyTo, text, &transport.SendOptions{DisablePreview: true}); err != nil {
		a.log.Warn("summary reply failed",
			logx.Int64("submitter", s.SubmitterID),
			logx.Err(err))
	}

	e := history.Entry{
		At:          time.Now(),
		SubmitterID: s.SubmitterID,
		PageID:      s.PageID,
		Kind:        "page",
		Name:        s.PageURL,
		OK:          !s.HadError,
	}
	if err := a.hist.Append(ctx, e); err != nil {
		a.log.Warn("history append failed", logx.Err(err))
	}
}

func (a *App) reply(ctx context.Context, msg *transport.Message, text string) {
	to := transport.ChatTarget{ChatID: msg.ChatID}
	if _, err := a.adapter.SendText(ctx, to, text, &transport.SendOptions{DisablePreview: true}); err != nil {
		a.log.Warn("reply failed", logx.Int64("chat", msg.ChatID), logx.Err(err))
	}
}

// soleURL reports whether text consists of exactly one http(s) URL.
func soleURL(text string) (string, bool) {
	fields := strings.Fields(text)
	if len(fields) != 1 {
		return "", false
	}
	u := fields[0]
	if strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://") {
		return u, true
	}
	return "", false
}
