package app

import (
	"context"
	"strconv"
	"strings"
	"time"

	"notibot/internal/transport"
	logx "notibot/pkg/logx"
)

const helpText = `Send me text, files, photos or links and I forward them to Notion.
Messages arriving within the same half-minute burst land on one page.

/status - bot uptime and open buffers
/history - your recent uploads
/help - this message`

func menuCommands() []transport.BotCommand {
	return []transport.BotCommand{
		{Command: "start", Description: "What this bot does"},
		{Command: "help", Description: "Usage"},
		{Command: "status", Description: "Uptime and open buffers"},
		{Command: "history", Description: "Recent uploads"},
	}
}

// parseCommand splits "/cmd@botname arg ..." into (cmd, args). ok is false
// for anything that does not start with '/'.
func parseCommand(text string) (cmd string, args []string, ok bool) {
	s := strings.TrimSpace(text)
	if !strings.HasPrefix(s, "/") {
		return "", nil, false
	}
	fields := strings.Fields(s)
	cmd = strings.TrimPrefix(fields[0], "/")
	if i := strings.IndexByte(cmd, '@'); i >= 0 {
		cmd = cmd[:i]
	}
	if cmd == "" {
		return "", nil, false
	}
	return strings.ToLower(cmd), fields[1:], true
}

func (a *App) handleCommand(ctx context.Context, msg *transport.Message, cmd string, args []string) {
	switch cmd {
	case "start":
		a.reply(ctx, msg, "Hi! I forward whatever you send me to Notion.\n\n"+helpText)
	case "help":
		a.reply(ctx, msg, helpText)
	case "status":
		a.reply(ctx, msg, a.statusText())
	case "history":
		a.reply(ctx, msg, a.historyText(ctx, msg.FromID, args))
	default:
		a.reply(ctx, msg, "Unknown command. Try /help.")
	}
}

func (a *App) statusText() string {
	uptime := time.Since(a.startedAt).Round(time.Second)
	var b strings.Builder
	b.WriteString("Uptime: " + uptime.String() + "\n")
	b.WriteString("Open buffers: " + strconv.Itoa(a.buf.Open()) + "\n")
	b.WriteString("Notion parent: " + a.client.ParentPageID())
	return b.String()
}

const defaultHistoryLimit = 10

func (a *App) historyText(ctx context.Context, submitterID int64, args []string) string {
	limit := defaultHistoryLimit
	if len(args) > 0 {
		if n, err := strconv.Atoi(args[0]); err == nil && n > 0 && n <= 50 {
			limit = n
		}
	}
	entries, err := a.hist.Recent(ctx, submitterID, limit)
	if err != nil {
		a.log.Warn("history query failed", logx.Err(err))
		return "History is unavailable right now."
	}
	if len(entries) == 0 {
		return "No uploads recorded yet."
	}
	var b strings.Builder
	b.WriteString("Recent uploads:\n")
	for _, e := range entries {
		mark := "✅"
		if !e.OK {
			mark = "❌"
		}
		b.WriteString(mark + " " + e.At.Format("2006-01-02 15:04") + " " + e.Kind)
		if e.Name != "" {
			b.WriteString(" " + e.Name)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
