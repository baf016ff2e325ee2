// Package ui implements the interactive task dashboard using bubbletea's Elm architecture.
//
// The TUI moves between three views:
//  1. [LoginView] : Scan the QR code rendered in the terminal, regenerate it with g
//  2. [ListView] : Browse tasks by status category with tabs and fixed-size pages
//  3. [DetailView] : Inspect the step chain of one task, retry steps and trigger uploads
//
// The [Model] implements bubbletea/Elm's standard Init/Update/View pattern, receiving messages via the Msg union type.
// Handshake events and registry updates arrive on channels that never block their producers.
//
// Keyboard navigation uses vim-style bindings (j/k, h/l, enter, esc, q) with contextual help displayed via charmbracelet/bubbles/help.
package ui
