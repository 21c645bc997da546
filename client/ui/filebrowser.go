package ui

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"neuralchat/client/chatsync"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// showAttachmentPicker browses the local disk and sends the chosen file to
// the active conversation.
func (a *App) showAttachmentPicker() {
	if a.currentChat() == nil {
		a.setConnectionError("Not connected. Press F6 to connect.")
		return
	}
	a.showFileBrowser("", func(path string) {
		chat := a.currentChat()
		if chat == nil {
			return
		}
		if err := chat.SendAttachment(path); err != nil {
			a.showErrorDialog(fmt.Sprintf("Cannot attach %s: %v", filepath.Base(path), err))
		}
	})
}

// showFileBrowser shows a file browser dialog and calls onSelect with the
// chosen file. Cancelling calls nothing.
func (a *App) showFileBrowser(initialPath string, onSelect func(path string)) {
	// Determine starting directory
	startDir := initialPath
	if startDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			startDir = "/"
		} else {
			startDir = home
		}
	}

	currentDir := startDir
	var fileList *tview.List
	var pathInput *tview.InputField
	var statusText *tview.TextView

	// Create the file list
	fileList = tview.NewList()
	fileList.SetBorder(true)
	fileList.SetBorderColor(ColorBorder)
	fileList.SetBackgroundColor(ColorBg)
	fileList.SetMainTextColor(ColorFg)
	fileList.SetSecondaryTextColor(ColorOffline)
	fileList.SetSelectedTextColor(ColorTitle)
	fileList.SetSelectedBackgroundColor(ColorBar)
	fileList.SetHighlightFullLine(true)
	fileList.ShowSecondaryText(true)

	// Path input field
	pathInput = tview.NewInputField()
	pathInput.SetLabel(" Path: ")
	pathInput.SetFieldWidth(0)
	pathInput.SetBackgroundColor(ColorBg)
	pathInput.SetFieldBackgroundColor(ColorField)
	pathInput.SetFieldTextColor(ColorFg)
	pathInput.SetLabelColor(ColorHighlight)
	pathInput.SetText(currentDir)

	// Status text
	statusText = tview.NewTextView()
	statusText.SetBackgroundColor(ColorBar)
	statusText.SetTextColor(ColorTitle)
	statusText.SetTextAlign(tview.AlignCenter)
	statusText.SetText(" Enter:Attach | Backspace:Up | Esc:Cancel ")

	dismiss := func() {
		a.closeDialog("filebrowser")
	}

	populateList := func(dir string) error {
		entries, err := listDir(dir)
		if err != nil {
			return err
		}

		fileList.Clear()
		if dir != "/" {
			fileList.AddItem("📁 ..", "", 0, nil)
		}
		for _, e := range entries {
			if e.dir {
				fileList.AddItem(fmt.Sprintf("📁 %s/", tview.Escape(e.name)), "", 0, nil)
				continue
			}
			size := formatFileSize(e.size)
			if e.size > chatsync.MaxFileSize {
				size += " (too large)"
			}
			fileList.AddItem(fmt.Sprintf("📄 %s", tview.Escape(e.name)), size, 0, nil)
		}

		currentDir = dir
		pathInput.SetText(dir)
		fileList.SetTitle(fmt.Sprintf(" Attach File - %s ", tview.Escape(dir)))
		return nil
	}

	// Get entry name from list item text
	getEntryName := func(index int) (string, bool) {
		text, _ := fileList.GetItemText(index)
		if name, ok := strings.CutPrefix(text, "📁 "); ok {
			return unescape(strings.TrimSuffix(name, "/")), true
		}
		return unescape(strings.TrimPrefix(text, "📄 ")), false
	}

	// Handle selection
	fileList.SetSelectedFunc(func(index int, mainText, secondaryText string, shortcut rune) {
		entryName, isDir := getEntryName(index)

		if entryName == ".." {
			if err := populateList(filepath.Dir(currentDir)); err != nil {
				statusText.SetText(fmt.Sprintf(" Error: %v ", err))
			}
			return
		}

		fullPath := filepath.Join(currentDir, entryName)
		if isDir {
			if err := populateList(fullPath); err != nil {
				statusText.SetText(fmt.Sprintf(" Error: %v ", err))
			}
			return
		}

		dismiss()
		onSelect(fullPath)
	})

	// Handle keyboard for file list
	fileList.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyEsc:
			dismiss()
			return nil
		case tcell.KeyBackspace, tcell.KeyBackspace2:
			if currentDir != "/" {
				if err := populateList(filepath.Dir(currentDir)); err != nil {
					statusText.SetText(fmt.Sprintf(" Error: %v ", err))
				}
			}
			return nil
		case tcell.KeyTab:
			a.app.SetFocus(pathInput)
			return nil
		}
		return event
	})

	// Handle path input
	pathInput.SetDoneFunc(func(key tcell.Key) {
		switch key {
		case tcell.KeyEnter:
			newPath := pathInput.GetText()
			info, err := os.Stat(newPath)
			switch {
			case err != nil:
				statusText.SetText(" Invalid path ")
			case info.IsDir():
				if err := populateList(newPath); err != nil {
					statusText.SetText(fmt.Sprintf(" Error: %v ", err))
				}
			default:
				dismiss()
				onSelect(newPath)
				return
			}
			a.app.SetFocus(fileList)
		case tcell.KeyEsc:
			dismiss()
		case tcell.KeyTab:
			a.app.SetFocus(fileList)
		}
	})

	// Initial population
	if err := populateList(currentDir); err != nil {
		statusText.SetText(fmt.Sprintf(" Error: %v ", err))
	}

	mainFlex := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(pathInput, 1, 0, false).
		AddItem(fileList, 0, 1, true).
		AddItem(statusText, 1, 0, false)
	mainFlex.SetBackgroundColor(ColorBg)

	a.pages.AddPage("filebrowser", centered(mainFlex, nil, 64, 20), true, true)
	a.app.SetFocus(fileList)
}

type browserEntry struct {
	name string
	dir  bool
	size int64
}

// listDir lists the visible entries of dir, directories first, each group
// sorted case-insensitively.
func listDir(dir string) ([]browserEntry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	out := make([]browserEntry, 0, len(entries))
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		e := browserEntry{name: entry.Name(), dir: entry.IsDir()}
		if !e.dir {
			if info, err := entry.Info(); err == nil {
				e.size = info.Size()
			}
		}
		out = append(out, e)
	}

	slices.SortFunc(out, func(a, b browserEntry) int {
		if a.dir != b.dir {
			if a.dir {
				return -1
			}
			return 1
		}
		return strings.Compare(strings.ToLower(a.name), strings.ToLower(b.name))
	})
	return out, nil
}

// unescape reverses tview.Escape for names shown in the list.
func unescape(s string) string {
	return strings.ReplaceAll(s, "[]", "]")
}
