package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines the [key.Binding] mapping for the TUI.
type keyMap struct {
	up         key.Binding
	down       key.Binding
	nextTab    key.Binding
	prevTab    key.Binding
	nextPage   key.Binding
	prevPage   key.Binding
	enter      key.Binding
	back       key.Binding
	retry      key.Binding
	video      key.Binding
	subtitle   key.Binding
	refresh    key.Binding
	regenerate key.Binding
	open       key.Binding
	logout     key.Binding
	help       key.Binding
	quit       key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		up:         key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		down:       key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		nextTab:    key.NewBinding(key.WithKeys("tab", "l"), key.WithHelp("tab/l", "next category")),
		prevTab:    key.NewBinding(key.WithKeys("shift+tab", "h"), key.WithHelp("shift+tab/h", "prev category")),
		nextPage:   key.NewBinding(key.WithKeys("right", "]"), key.WithHelp("→/]", "next page")),
		prevPage:   key.NewBinding(key.WithKeys("left", "["), key.WithHelp("←/[", "prev page")),
		enter:      key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "details")),
		back:       key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
		retry:      key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "retry step")),
		video:      key.NewBinding(key.WithKeys("u"), key.WithHelp("u", "upload video")),
		subtitle:   key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "upload subtitles")),
		refresh:    key.NewBinding(key.WithKeys("R"), key.WithHelp("R", "refresh")),
		regenerate: key.NewBinding(key.WithKeys("g"), key.WithHelp("g", "new QR code")),
		open:       key.NewBinding(key.WithKeys("o"), key.WithHelp("o", "open in browser")),
		logout:     key.NewBinding(key.WithKeys("L"), key.WithHelp("L", "logout")),
		help:       key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		quit:       key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.help, k.quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.up, k.down, k.enter, k.back},
		{k.nextTab, k.prevTab, k.nextPage, k.prevPage},
		{k.retry, k.video, k.subtitle, k.refresh},
		{k.regenerate, k.open, k.logout, k.quit},
	}
}
