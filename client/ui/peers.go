package ui

import (
	"fmt"
	"time"

	"neuralchat/client/chatsync"

	"github.com/rivo/tview"
)

// peerLabel renders one row of the peer list.
func peerLabel(p chatsync.PeerView, now time.Time) string {
	name := tview.Escape(truncate(p.Username, 16))

	var text string
	if p.Online {
		text = fmt.Sprintf("[green]●[-] %s", name)
	} else {
		text = fmt.Sprintf("[gray]○[-] %s", name)
		if seen := formatLastSeen(p.LastSeen, now); seen != "" {
			text += fmt.Sprintf(" [gray]%s[-]", seen)
		}
	}
	if p.Unread > 0 {
		text += fmt.Sprintf(" [red](%d)[-]", p.Unread)
	}
	return text
}

func broadcastLabel(online int) string {
	return fmt.Sprintf("[%s]◉[-] %s [gray](%d online)[-]", tagAccent, chatsync.BroadcastTitle, online)
}

func (a *App) updatePeersList() {
	if a.peersList == nil {
		return
	}

	currentIdx := a.peersList.GetCurrentItem()
	a.peersList.Clear()

	now := time.Now()
	a.peersList.AddItem(broadcastLabel(a.onlineCount), "", 0, nil)
	for _, p := range a.peers {
		a.peersList.AddItem(peerLabel(p, now), "", 0, nil)
	}

	if currentIdx >= 0 && currentIdx < a.peersList.GetItemCount() {
		a.peersList.SetCurrentItem(currentIdx)
	}
}

// resetPresence marks everyone offline after the connection drops.
func (a *App) resetPresence() {
	for i := range a.peers {
		a.peers[i].Online = false
	}
	a.onlineCount = 0
	a.updatePeersList()
	if h := a.headerState; !h.Broadcast {
		h.Online = false
		a.setHeader(h)
	}
}
