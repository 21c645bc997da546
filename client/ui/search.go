package ui

import (
	"fmt"
	"strings"

	"neuralchat/client/chatsync"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// highlight marks the spans of a search result with reverse video.
func highlight(r chatsync.SearchResult) string {
	var sb strings.Builder
	prev := 0
	for _, span := range r.Spans {
		sb.WriteString(tview.Escape(r.Text[prev:span[0]]))
		sb.WriteString("[::r]")
		sb.WriteString(tview.Escape(r.Text[span[0]:span[1]]))
		sb.WriteString("[::-]")
		prev = span[1]
	}
	sb.WriteString(tview.Escape(r.Text[prev:]))
	return sb.String()
}

func (a *App) showSearchDialog() {
	if a.currentChat() == nil {
		a.setConnectionError("Not connected. Press F6 to connect.")
		return
	}

	queryInput := tview.NewInputField()
	queryInput.SetLabel(" Find: ")
	queryInput.SetFieldWidth(0)
	queryInput.SetBackgroundColor(ColorBg)
	queryInput.SetFieldBackgroundColor(ColorField)
	queryInput.SetFieldTextColor(ColorFg)
	queryInput.SetLabelColor(ColorHighlight)

	results := tview.NewTextView()
	results.SetBorder(true)
	results.SetBorderColor(ColorBorder)
	results.SetBackgroundColor(ColorBg)
	results.SetTextColor(ColorFg)
	results.SetTitle(" Search ")
	results.SetTitleColor(ColorTitle)
	results.SetDynamicColors(true)
	results.SetScrollable(true)

	queryInput.SetDoneFunc(func(key tcell.Key) {
		switch key {
		case tcell.KeyEsc:
			a.closeDialog("search")
		case tcell.KeyEnter:
			query := queryInput.GetText()
			chat := a.currentChat()
			if chat == nil || query == "" {
				return
			}
			results.SetText("[gray]searching...[-]")
			// Query waits on the synchronizer loop, never run it on the UI goroutine
			go func() {
				found := chat.Search(query)
				a.app.QueueUpdateDraw(func() {
					var sb strings.Builder
					for _, r := range found {
						fmt.Fprintf(&sb, "[%s::b]%s[-::-] %s\n", tagPeer, tview.Escape(r.Sender), highlight(r))
					}
					if len(found) == 0 {
						sb.WriteString("[gray]no matches[-]")
					}
					results.SetTitle(fmt.Sprintf(" Search: %d found ", len(found)))
					results.SetText(sb.String())
				})
			}()
		}
	})

	flex := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(queryInput, 1, 0, true).
		AddItem(results, 0, 1, false)
	flex.SetBackgroundColor(ColorBg)

	a.pages.AddPage("search", centered(flex, nil, 70, 18), true, true)
	a.app.SetFocus(queryInput)
}
