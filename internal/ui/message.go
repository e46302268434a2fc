package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/skyroll/internal/manager"
	"github.com/desertthunder/skyroll/internal/models"
	"github.com/desertthunder/skyroll/internal/tasks"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgProvidersFetched MsgKind = iota
	MsgPageFetched
	MsgProgressUpdate
	MsgRefreshComplete
)

type pageData struct {
	index   int
	records []models.FileRecord
}

type refreshData struct {
	report *models.RefreshReport
	err    error
}

// providersFetchedMsg is the constructor for [MsgProvidersFetched]
func providersFetchedMsg(statuses []manager.ProviderStatus) Msg {
	return Msg{kind: MsgProvidersFetched, data: statuses}
}

// pageFetchedMsg is the constructor for [MsgPageFetched]
func pageFetchedMsg(index int, records []models.FileRecord) Msg {
	return Msg{kind: MsgPageFetched, data: pageData{index: index, records: records}}
}

// progressUpdateMsg is the constructor for [MsgProgressUpdate]
func progressUpdateMsg(update tasks.ProgressUpdate) Msg {
	return Msg{kind: MsgProgressUpdate, data: update}
}

// refreshCompleteMsg is the constructor for [MsgRefreshComplete]
func refreshCompleteMsg(report *models.RefreshReport, err error) Msg {
	return Msg{kind: MsgRefreshComplete, data: refreshData{report: report, err: err}}
}
