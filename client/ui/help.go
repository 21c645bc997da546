package ui

import (
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

func (a *App) showHelp() {
	helpText := `
 [yellow]Main Screen[-]
 ───────────────────────────────────────────────────────────────
   [white]F1[-]       Show this help
   [white]F2[-]       Attach a file to the open conversation
   [white]F3[-]       Change your username
   [white]F4[-]       Search messages on screen
   [white]F5[-]       Refresh node list
   [white]F6[-]       Connect / Disconnect
   [white]F7[-]       Settings
   [white]F10[-]      Quit application
   [white]Tab[-]      Switch between node list and input
   [white]Enter[-]    Open conversation (node list) or transmit (input)
   [white]Esc[-]      Back to GLOBAL NETWORK
   [white]PgUp/Dn[-]  Scroll messages

 [yellow]Conversations[-]
 ───────────────────────────────────────────────────────────────
   GLOBAL NETWORK is the broadcast channel every node can read.
   Any other entry opens a private channel with that node.
   A red (n) counts private messages you have not opened yet.

 [yellow]Attachments[-]
 ───────────────────────────────────────────────────────────────
   Images up to 5 MB, other files up to 20 MB.
   The file is uploaded first, then announced in the channel.

 [yellow]Status Icons[-]
 ───────────────────────────────────────────────────────────────
   [green]●[-] online   Node is connected
   [gray]○[-] offline  Node is disconnected, last seen shown
   ◉           Broadcast channel

 [yellow]Connection[-]
 ───────────────────────────────────────────────────────────────
   Latency follows the measured ping round trip.
   After three denied sign-ins the terminal locks for 30 seconds.
`

	helpView := tview.NewTextView()
	helpView.SetText(helpText)
	helpView.SetBackgroundColor(ColorBg)
	helpView.SetTextColor(ColorFg)
	helpView.SetDynamicColors(true)
	helpView.SetBorder(true)
	helpView.SetBorderColor(ColorBorder)
	helpView.SetTitle(" Help ")
	helpView.SetTitleColor(ColorTitle)
	helpView.SetScrollable(true)

	// Status bar
	statusBar := tview.NewTextView()
	statusBar.SetBackgroundColor(ColorBar)
	statusBar.SetTextColor(ColorTitle)
	statusBar.SetTextAlign(tview.AlignCenter)
	statusBar.SetText(" ↑↓/PgUp/PgDn: Scroll | Esc/Enter/F1: Close ")

	// Layout
	flex := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(helpView, 0, 1, true).
		AddItem(statusBar, 1, 0, false)
	flex.SetBackgroundColor(ColorBg)

	// Handle keyboard
	flex.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyEsc, tcell.KeyEnter, tcell.KeyF1:
			a.closeDialog("help")
			return nil
		case tcell.KeyUp:
			row, col := helpView.GetScrollOffset()
			helpView.ScrollTo(row-1, col)
			return nil
		case tcell.KeyDown:
			row, col := helpView.GetScrollOffset()
			helpView.ScrollTo(row+1, col)
			return nil
		case tcell.KeyPgUp:
			row, col := helpView.GetScrollOffset()
			helpView.ScrollTo(row-10, col)
			return nil
		case tcell.KeyPgDn:
			row, col := helpView.GetScrollOffset()
			helpView.ScrollTo(row+10, col)
			return nil
		case tcell.KeyHome:
			helpView.ScrollToBeginning()
			return nil
		case tcell.KeyEnd:
			helpView.ScrollToEnd()
			return nil
		}
		return event
	})

	a.pages.AddPage("help", flex, true, true)
	a.app.SetFocus(helpView)
}
