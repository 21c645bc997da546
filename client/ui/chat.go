package ui

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"neuralchat/client/chatsync"
	"neuralchat/models"

	"github.com/rivo/tview"
	"github.com/rs/zerolog/log"
)

// line is one entry of the message pane: a message or a system notice.
type line struct {
	msg    *models.Message
	notice string
	err    bool
}

type formatOptions struct {
	selfID     string
	timestamps bool
	width      int
	now        time.Time
	names      map[string]string // id -> username for rows without a joined name
}

// formatLines renders the message pane, inserting a separator whenever the
// day changes.
func formatLines(lines []line, opts formatOptions) string {
	var sb strings.Builder
	var lastDate string

	for _, l := range lines {
		if l.msg == nil {
			color := tagDim
			if l.err {
				color = "red"
			}
			fmt.Fprintf(&sb, "[%s]> %s[-]\n", color, tview.Escape(l.notice))
			continue
		}

		m := l.msg
		if !m.CreatedAt.IsZero() {
			local := m.CreatedAt.In(opts.now.Location())
			if date := local.Format("2006-01-02"); date != lastDate {
				label := "── " + formatDateSeparator(local, opts.now) + " ──"
				fmt.Fprintf(&sb, "[%s]%s[-]\n", tagDim, center(label, opts.width))
				lastDate = date
			}
		}

		if opts.timestamps && !m.CreatedAt.IsZero() {
			fmt.Fprintf(&sb, "[%s]%s[-] ", tagDim, m.CreatedAt.In(opts.now.Location()).Format("15:04"))
		}

		sender := m.SenderName
		if sender == "" {
			sender = opts.names[m.SenderID]
		}
		if sender == "" {
			sender = "Unknown"
		}
		color := tagPeer
		if m.SenderID == opts.selfID {
			color = tagAccent
		}
		fmt.Fprintf(&sb, "[%s::b]%s[-::-] [%s]›[-] %s\n", color, tview.Escape(sender), tagDim, tview.Escape(m.Content))

		for _, att := range m.Attachments {
			icon := "📎"
			if att.FileType == models.KindImage {
				icon = "🖼"
			}
			fmt.Fprintf(&sb, "    [%s]↳[-] %s %s [gray](%s)[-] [%s]%s[-]\n",
				tagDim, icon, tview.Escape(att.FileName), formatFileSize(att.FileSize),
				tagDim, tview.Escape(att.FileURL))
		}
	}
	return sb.String()
}

func (a *App) redrawMessages() {
	if a.messagesView == nil {
		return
	}

	// Get view width for centered separators
	_, _, width, _ := a.messagesView.GetInnerRect()
	if width < 10 {
		width = 80
	}

	names := make(map[string]string, len(a.peers)+1)
	for _, p := range a.peers {
		names[p.ID] = p.Username
	}
	names[a.self.ID] = a.self.Username

	a.messagesView.SetText(formatLines(a.lines, formatOptions{
		selfID:     a.self.ID,
		timestamps: a.prefs.Timestamps,
		width:      width,
		now:        time.Now(),
		names:      names,
	}))
	a.messagesView.ScrollToEnd()
}

func (a *App) setHeader(h chatsync.UpdateHeader) {
	a.headerState = h
	if a.header == nil {
		return
	}
	status := "[gray]○ OFFLINE[-]"
	switch {
	case h.Broadcast:
		status = fmt.Sprintf("[%s]◉ BROADCAST[-]", tagAccent)
	case h.Online:
		status = "[green]● ONLINE[-]"
	}
	a.header.SetText(fmt.Sprintf(" %s  %s", tview.Escape(h.Title), status))
	if a.messagesView != nil {
		a.messagesView.SetTitle(" " + tview.Escape(h.Title) + " ")
	}
}

func (a *App) submitMessage(text string) {
	chat := a.currentChat()
	if chat == nil {
		a.setConnectionError("Not connected. Press F6 to connect.")
		return
	}
	if err := chat.SubmitMessage(text); err != nil && !errors.Is(err, chatsync.ErrEmptyMessage) {
		log.Error().Err(err).Msg("submit")
	}
}

// notify flashes the status bar and beeps, as the preferences allow.
func (a *App) notify(n chatsync.Notify) {
	if a.prefs.Notifications && a.statusBar != nil {
		text := n.Text
		if text == "" {
			text = "[attachment]"
		}
		a.statusBar.SetText(fmt.Sprintf("[yellow]✉ %s: %s[-]", tview.Escape(n.From), tview.Escape(truncate(text, 60))))
		a.flashUntil = time.Now().Add(3 * time.Second)
	}
	if a.prefs.Sound && a.screen != nil {
		a.screen.Beep()
	}
}
