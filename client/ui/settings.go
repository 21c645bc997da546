package ui

import (
	"neuralchat/client/settings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"github.com/rs/zerolog/log"
)

var themeNames = []string{settings.ThemeGreen, settings.ThemeBlue, settings.ThemeRed}

func (a *App) showSettingsDialog() {
	// re-read so external edits show up
	p, err := a.store.Load()
	if err != nil {
		log.Warn().Err(err).Msg("load prefs")
		p = a.prefs
	}

	form := a.newForm(" Settings ")

	statusLabel := tview.NewTextView()
	statusLabel.SetBackgroundColor(ColorBg)
	statusLabel.SetTextColor(tcell.ColorRed)

	form.AddCheckbox("Notifications", p.Notifications, func(checked bool) { p.Notifications = checked })
	form.AddCheckbox("Sound", p.Sound, func(checked bool) { p.Sound = checked })
	form.AddCheckbox("Timestamps", p.Timestamps, func(checked bool) { p.Timestamps = checked })

	current := 0
	for i, name := range themeNames {
		if name == p.Theme {
			current = i
		}
	}
	form.AddDropDown("Theme", themeNames, current, func(option string, index int) { p.Theme = option })

	form.AddButton("Save", func() {
		if err := a.store.Save(p); err != nil {
			statusLabel.SetText(err.Error())
			return
		}
		a.closeDialog("settings")
		a.applyPrefs(p)
	})
	form.AddButton("Cancel", func() {
		a.closeDialog("settings")
	})

	a.pages.AddPage("settings", centered(form, statusLabel, 44, 13), true, true)
	a.app.SetFocus(form)
}

// applyPrefs switches theme and redraws what depends on the preferences.
func (a *App) applyPrefs(p settings.Prefs) {
	themeChanged := p.Theme != a.prefs.Theme
	a.prefs = p
	if themeChanged {
		useTheme(p.Theme)
		a.applyColors()
		a.setHeader(a.headerState)
		a.updatePeersList()
	}
	a.redrawMessages()
}
