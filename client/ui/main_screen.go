package ui

import (
	"fmt"
	"strings"

	"neuralchat/client/chatsync"
	"neuralchat/client/protocol"
	"neuralchat/models"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

func (a *App) showMainScreen(session protocol.Session) {
	a.self = models.Profile{ID: session.UserID, Username: session.Username, Status: models.StatusOnline}
	a.active = chatsync.Broadcast
	a.lines = nil

	if a.mainFlex != nil {
		// reconnect: keep the screen, reset its contents
		a.redrawMessages()
		a.updateSelfTitle()
		a.updateConnectionStatus()
		a.updateStatusBarText()
		return
	}

	// Remove auth dialog and background
	a.pages.RemovePage("auth")
	a.pages.RemovePage("background")

	// Create and add main page
	a.pages.AddPage("main", a.createMainPage(), true, true)
	a.updateSelfTitle()

	// Start status ticker for latency display
	a.startStatusTicker()

	// Update connection status
	a.updateConnectionStatus()
	a.updateStatusBarText()
	a.updatePeersList()

	a.app.SetFocus(a.messageInput)
}

func (a *App) createMainPage() tview.Primitive {
	// Peer list on the left
	a.peersList = tview.NewList()
	a.peersList.SetBorder(true)
	a.peersList.SetHighlightFullLine(true)
	a.peersList.ShowSecondaryText(false)

	a.peersList.SetSelectedFunc(func(index int, mainText, secondaryText string, shortcut rune) {
		chat := a.currentChat()
		if chat == nil {
			a.setConnectionError("Not connected. Press F6 to connect.")
			return
		}
		target := chatsync.Broadcast
		if index > 0 && index-1 < len(a.peers) {
			target = a.peers[index-1].ID
		}
		chat.SwitchConversation(target)
		a.app.SetFocus(a.messageInput)
	})

	a.header = tview.NewTextView()
	a.header.SetDynamicColors(true)
	a.header.SetTextAlign(tview.AlignLeft)
	a.setHeader(chatsync.UpdateHeader{Title: chatsync.BroadcastTitle, Online: true, Broadcast: true})

	a.messagesView = tview.NewTextView()
	a.messagesView.SetBorder(true)
	a.messagesView.SetDynamicColors(true)
	a.messagesView.SetScrollable(true)
	a.messagesView.SetWordWrap(true)

	a.messageInput = tview.NewInputField()
	a.messageInput.SetLabel("> ")
	a.messageInput.SetFieldWidth(0)
	a.messageInput.SetBorder(true)
	a.messageInput.SetTitle(" Transmit ")
	a.messageInput.SetDoneFunc(func(key tcell.Key) {
		if key != tcell.KeyEnter {
			return
		}
		a.submitMessage(a.messageInput.GetText())
	})

	// Connection status view
	a.connectionView = tview.NewTextView()
	a.connectionView.SetBorder(true)
	a.connectionView.SetTitle(" Connection ")
	a.connectionView.SetDynamicColors(true)
	a.connectionView.SetTextAlign(tview.AlignCenter)

	// Status bar at bottom
	a.statusBar = tview.NewTextView()
	a.statusBar.SetTextAlign(tview.AlignCenter)
	a.statusBar.SetDynamicColors(true)

	chatFlex := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(a.header, 1, 0, false).
		AddItem(a.messagesView, 0, 1, false).
		AddItem(a.messageInput, 3, 0, true)

	body := tview.NewFlex().
		AddItem(a.peersList, 32, 0, false).
		AddItem(chatFlex, 0, 1, true)

	// Main layout
	a.mainFlex = tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(body, 0, 1, true).
		AddItem(a.connectionView, 3, 0, false).
		AddItem(a.statusBar, 1, 0, false)

	a.applyColors()

	// Handle keyboard
	a.mainFlex.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyF1:
			a.showHelp()
			return nil
		case tcell.KeyF2:
			a.showAttachmentPicker()
			return nil
		case tcell.KeyF3:
			a.showRenameSelfDialog()
			return nil
		case tcell.KeyF4:
			a.showSearchDialog()
			return nil
		case tcell.KeyF5:
			if chat := a.currentChat(); chat != nil {
				chat.ReloadPeers()
			}
			return nil
		case tcell.KeyF6:
			a.toggleConnection()
			return nil
		case tcell.KeyF7:
			a.showSettingsDialog()
			return nil
		case tcell.KeyF10:
			a.quit()
			return nil
		case tcell.KeyTab:
			if a.app.GetFocus() == a.messageInput {
				a.app.SetFocus(a.peersList)
			} else {
				a.app.SetFocus(a.messageInput)
			}
			return nil
		case tcell.KeyPgUp:
			row, col := a.messagesView.GetScrollOffset()
			a.messagesView.ScrollTo(row-10, col)
			return nil
		case tcell.KeyPgDn:
			row, col := a.messagesView.GetScrollOffset()
			a.messagesView.ScrollTo(row+10, col)
			return nil
		case tcell.KeyEsc:
			if a.app.GetFocus() == a.peersList {
				a.app.SetFocus(a.messageInput)
				return nil
			}
			if chat := a.currentChat(); chat != nil && a.active != chatsync.Broadcast {
				chat.SwitchConversation(chatsync.Broadcast)
			}
			return nil
		}
		return event
	})

	return a.mainFlex
}

// applyColors paints every widget with the current theme.
func (a *App) applyColors() {
	if a.mainFlex == nil {
		return
	}
	a.mainFlex.SetBackgroundColor(ColorBg)

	a.peersList.SetBackgroundColor(ColorBg)
	a.peersList.SetBorderColor(ColorBorder)
	a.peersList.SetTitleColor(ColorTitle)
	a.peersList.SetMainTextColor(ColorFg)
	a.peersList.SetMainTextStyle(tcell.StyleDefault.Foreground(ColorFg).Background(ColorBg))
	a.peersList.SetSelectedTextColor(ColorTitle)
	a.peersList.SetSelectedBackgroundColor(ColorBar)

	a.header.SetBackgroundColor(ColorBar)
	a.header.SetTextColor(ColorTitle)

	a.messagesView.SetBackgroundColor(ColorBg)
	a.messagesView.SetBorderColor(ColorBorder)
	a.messagesView.SetTextColor(ColorFg)

	a.messageInput.SetBackgroundColor(ColorBg)
	a.messageInput.SetBorderColor(ColorBorder)
	a.messageInput.SetTitleColor(ColorTitle)
	a.messageInput.SetFieldBackgroundColor(ColorField)
	a.messageInput.SetFieldTextColor(ColorFg)
	a.messageInput.SetLabelColor(ColorHighlight)

	a.connectionView.SetBackgroundColor(ColorBg)
	a.connectionView.SetBorderColor(ColorBorder)
	a.connectionView.SetTitleColor(ColorTitle)
	a.connectionView.SetTextColor(ColorFg)

	a.statusBar.SetBackgroundColor(ColorBar)
	a.statusBar.SetTextColor(ColorTitle)
}

func (a *App) updateSelfTitle() {
	if a.peersList == nil {
		return
	}
	a.peersList.SetTitle(fmt.Sprintf(" Nodes [%s] ", strings.ToUpper(truncate(a.self.Username, 18))))
}
