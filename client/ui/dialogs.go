package ui

import (
	"context"
	"fmt"
	"strings"

	"neuralchat/client/protocol"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// closeDialog removes a modal page and returns focus to the input.
func (a *App) closeDialog(name string) {
	a.pages.RemovePage(name)
	if a.messageInput != nil {
		a.app.SetFocus(a.messageInput)
	}
}

func (a *App) newForm(title string) *tview.Form {
	form := tview.NewForm()
	form.SetBackgroundColor(ColorBg)
	form.SetFieldBackgroundColor(ColorField)
	form.SetFieldTextColor(ColorFg)
	form.SetLabelColor(ColorHighlight)
	form.SetButtonBackgroundColor(ColorBar)
	form.SetButtonTextColor(ColorTitle)
	form.SetBorder(true)
	form.SetBorderColor(ColorBorder)
	form.SetTitle(title)
	form.SetTitleColor(ColorTitle)
	return form
}

func (a *App) newModal(text string, buttons ...string) *tview.Modal {
	modal := tview.NewModal()
	modal.SetText(text)
	modal.SetBackgroundColor(ColorBg)
	modal.SetTextColor(ColorFg)
	modal.SetButtonBackgroundColor(ColorBar)
	modal.SetButtonTextColor(ColorTitle)
	modal.AddButtons(buttons)
	return modal
}

// centered wraps p in a flex that keeps it in the middle of the screen,
// with an optional status line below.
func centered(p tview.Primitive, status tview.Primitive, width, height int) *tview.Flex {
	flex := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(nil, 0, 1, false).
		AddItem(tview.NewFlex().
			AddItem(nil, 0, 1, false).
			AddItem(p, width, 0, true).
			AddItem(nil, 0, 1, false), height, 0, true)
	if status != nil {
		flex.AddItem(tview.NewFlex().
			AddItem(nil, 0, 1, false).
			AddItem(status, width, 0, false).
			AddItem(nil, 0, 1, false), 1, 0, false)
	}
	flex.AddItem(nil, 0, 1, false)
	flex.SetBackgroundColor(ColorBg)
	return flex
}

func (a *App) showRenameSelfDialog() {
	client := a.currentClient()
	if client == nil {
		a.setConnectionError("Not connected. Press F6 to connect.")
		return
	}

	form := a.newForm(" Change Username ")

	statusLabel := tview.NewTextView()
	statusLabel.SetBackgroundColor(ColorBg)
	statusLabel.SetTextColor(tcell.ColorRed)

	nameField := tview.NewInputField()
	nameField.SetLabel("New username: ")
	nameField.SetFieldWidth(30)
	nameField.SetText(a.self.Username)

	form.AddFormItem(nameField)

	form.AddButton("Rename", func() {
		name := strings.TrimSpace(nameField.GetText())
		if name == "" {
			statusLabel.SetText("Username is required")
			return
		}
		if name == a.self.Username {
			a.closeDialog("dialog")
			return
		}
		statusLabel.SetText("")

		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), a.cfg.RequestTimeout())
			defer cancel()
			err := client.Rename(ctx, name)
			a.app.QueueUpdateDraw(func() {
				if err != nil {
					statusLabel.SetText(protocol.Reason(err))
					return
				}
				// the profile update push refreshes the title
				a.closeDialog("dialog")
			})
		}()
	})

	form.AddButton("Cancel", func() {
		a.closeDialog("dialog")
	})

	a.pages.AddPage("dialog", centered(form, statusLabel, 50, 7), true, true)
	a.app.SetFocus(form)
}

func (a *App) showDisconnectDialog() {
	modal := a.newModal("Disconnect from the Neural Network?", "Disconnect", "Cancel")
	modal.SetDoneFunc(func(buttonIndex int, buttonLabel string) {
		a.closeDialog("dialog")
		if buttonLabel == "Disconnect" {
			a.disconnect()
		}
	})

	a.pages.AddPage("dialog", modal, true, true)
}

func (a *App) showErrorDialog(message string) {
	modal := a.newModal(message, "OK")
	modal.SetDoneFunc(func(buttonIndex int, buttonLabel string) {
		a.closeDialog("errordialog")
	})

	a.pages.AddPage("errordialog", modal, true, true)
}

func disconnectReason(reason, details string) string {
	switch reason {
	case "timeout":
		return "Session timeout - no activity"
	case "maintenance":
		if details != "" {
			return fmt.Sprintf("Server maintenance until %s", details)
		}
		return "Server is going to maintenance"
	case "restart":
		if details != "" {
			return fmt.Sprintf("Server restarting, back at %s", details)
		}
		return "Server is restarting"
	case "connection_lost":
		return "Connection lost"
	}
	return "Disconnected"
}

func (a *App) showDisconnectNotification(reason, details string) {
	if a.connectionView == nil {
		return
	}
	a.connectionView.SetText(fmt.Sprintf("[red]○ %s[-]\n[gray]Press F6 to reconnect[-]", tview.Escape(disconnectReason(reason, details))))
}
