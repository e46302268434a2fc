// Package ui implements an interactive terminal gallery browser using bubbletea's Elm architecture.
//
// The TUI moves between four views:
//  1. [ProviderListView] : every connected instance with its lifecycle state and image count
//  2. [GalleryView] : one page of the merged, newest-first index
//  3. [RefreshView] : live progress while every instance is re-listed
//  4. [ResultView] : the refresh report, with failed instances highlighted
//
// Progress updates flow through a channel from the [tasks.Refresher], read one at a time by a
// tea.Cmd so the Update loop never blocks.
//
// Keyboard navigation uses vim-style bindings (j/k, h/l, tab, r, esc, q) with contextual help
// displayed via charmbracelet/bubbles/help.
package ui
