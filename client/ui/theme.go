package ui

import (
	"neuralchat/client/settings"

	"github.com/gdamore/tcell/v2"
)

// Theme is one terminal palette. Tag fields are tview color tags.
type Theme struct {
	Bg        tcell.Color
	Fg        tcell.Color
	Border    tcell.Color
	Title     tcell.Color
	Highlight tcell.Color
	Bar       tcell.Color
	Field     tcell.Color
	TagAccent string
	TagPeer   string
	TagDim    string
}

var themes = map[string]Theme{
	settings.ThemeGreen: {
		Bg:        tcell.NewRGBColor(0, 10, 0),
		Fg:        tcell.NewRGBColor(0, 255, 65),
		Border:    tcell.NewRGBColor(0, 180, 40),
		Title:     tcell.NewRGBColor(180, 255, 180),
		Highlight: tcell.NewRGBColor(0, 255, 65),
		Bar:       tcell.NewRGBColor(0, 80, 20),
		Field:     tcell.NewRGBColor(0, 30, 0),
		TagAccent: "#00ff41",
		TagPeer:   "#9dff9d",
		TagDim:    "#2e7d32",
	},
	settings.ThemeBlue: {
		Bg:        tcell.NewRGBColor(0, 0, 40),
		Fg:        tcell.NewRGBColor(120, 200, 255),
		Border:    tcell.NewRGBColor(0, 150, 255),
		Title:     tcell.NewRGBColor(220, 240, 255),
		Highlight: tcell.NewRGBColor(0, 200, 255),
		Bar:       tcell.NewRGBColor(0, 60, 120),
		Field:     tcell.NewRGBColor(0, 0, 70),
		TagAccent: "#00c8ff",
		TagPeer:   "#b3e5ff",
		TagDim:    "#3a6d99",
	},
	settings.ThemeRed: {
		Bg:        tcell.NewRGBColor(20, 0, 0),
		Fg:        tcell.NewRGBColor(255, 80, 80),
		Border:    tcell.NewRGBColor(200, 30, 30),
		Title:     tcell.NewRGBColor(255, 200, 200),
		Highlight: tcell.NewRGBColor(255, 60, 60),
		Bar:       tcell.NewRGBColor(100, 0, 0),
		Field:     tcell.NewRGBColor(40, 0, 0),
		TagAccent: "#ff3c3c",
		TagPeer:   "#ffb3b3",
		TagDim:    "#8b2e2e",
	},
}

// Current palette
var (
	ColorBg        tcell.Color
	ColorFg        tcell.Color
	ColorBorder    tcell.Color
	ColorTitle     tcell.Color
	ColorHighlight tcell.Color
	ColorBar       tcell.Color
	ColorField     tcell.Color
	ColorOnline    = tcell.NewRGBColor(0, 255, 0)
	ColorOffline   = tcell.NewRGBColor(128, 128, 128)

	tagAccent string
	tagPeer   string
	tagDim    string
)

func init() {
	useTheme(settings.ThemeGreen)
}

// useTheme switches the package palette; unknown names fall back to green.
func useTheme(name string) {
	t, ok := themes[name]
	if !ok {
		t = themes[settings.ThemeGreen]
	}
	ColorBg = t.Bg
	ColorFg = t.Fg
	ColorBorder = t.Border
	ColorTitle = t.Title
	ColorHighlight = t.Highlight
	ColorBar = t.Bar
	ColorField = t.Field
	tagAccent = t.TagAccent
	tagPeer = t.TagPeer
	tagDim = t.TagDim
}
