package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/skyroll/internal/manager"
	"github.com/desertthunder/skyroll/internal/models"
	"github.com/desertthunder/skyroll/internal/tasks"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	ProviderListView ViewState = iota
	GalleryView
	RefreshView
	ResultView
)

// Gallery is the read side of the provider manager the browser needs.
// Page takes the offset of its first record from the newest.
type Gallery interface {
	Providers(ctx context.Context, withAccount bool) []manager.ProviderStatus
	Page(index, size int) []models.FileRecord
}

// Refresher re-lists every instance, reporting progress on prog.
type Refresher interface {
	Run(ctx context.Context, prog chan<- tasks.ProgressUpdate, opts tasks.RefreshOpts) (*models.RefreshReport, error)
}

type refreshOutcome struct {
	report *models.RefreshReport
	err    error
}

// Model represents the TUI application state.
type Model struct {
	ctx          context.Context
	view         ViewState
	gallery      Gallery
	refresher    Refresher
	pageSize     int
	pageIndex    int
	width        int
	height       int
	providerList list.Model
	providers    []manager.ProviderStatus
	recordList   list.Model
	records      []models.FileRecord
	progressChan chan tasks.ProgressUpdate
	doneChan     chan refreshOutcome
	progress     tasks.ProgressUpdate
	report       *models.RefreshReport
	notice       string
	err          error
	help         help.Model
	keys         keyMap
}

// NewModel creates a new TUI model with the provided dependencies.
func NewModel(ctx context.Context, gallery Gallery, refresher Refresher, pageSize int) *Model {
	if pageSize <= 0 {
		pageSize = 20
	}

	providerList := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	providerList.Title = "Providers"
	recordList := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	recordList.Title = "Gallery"

	return &Model{
		ctx:          ctx,
		view:         ProviderListView,
		gallery:      gallery,
		refresher:    refresher,
		pageSize:     pageSize,
		providerList: providerList,
		recordList:   recordList,
		help:         help.New(),
		keys:         newKeyMap(),
	}
}

// Init loads the provider listing.
func (m *Model) Init() tea.Cmd {
	return m.fetchProviders()
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.providerList.SetSize(msg.Width-4, msg.Height-8)
		m.recordList.SetSize(msg.Width-4, msg.Height-8)
		return m, nil

	case tea.KeyMsg:
		switch m.view {
		case ProviderListView:
			return m.handleProviderKeys(msg)
		case GalleryView:
			return m.handleGalleryKeys(msg)
		case RefreshView:
			if msg.String() == "ctrl+c" {
				return m, tea.Quit
			}
			return m, nil
		case ResultView:
			return m.handleResultKeys(msg)
		}

	case Msg:
		return m.handleMsg(msg)
	}

	return m.updateLists(msg)
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgProvidersFetched:
		m.providers, _ = msg.data.([]manager.ProviderStatus)
		return m, m.providerList.SetItems(providerItems(m.providers))

	case MsgPageFetched:
		page, _ := msg.data.(pageData)
		if len(page.records) == 0 && page.index > 0 {
			m.notice = "No older images"
			return m, nil
		}
		m.notice = ""
		m.pageIndex = page.index
		m.records = page.records
		m.recordList.Title = fmt.Sprintf("Gallery page %d", page.index+1)
		return m, m.recordList.SetItems(recordItems(page.records))

	case MsgProgressUpdate:
		m.progress, _ = msg.data.(tasks.ProgressUpdate)
		return m, m.waitForProgress()

	case MsgRefreshComplete:
		done, _ := msg.data.(refreshData)
		m.report = done.report
		m.err = done.err
		m.progressChan = nil
		m.doneChan = nil
		m.view = ResultView
		return m, nil
	}
	return m, nil
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	switch m.view {
	case ProviderListView:
		return m.renderProviders()
	case GalleryView:
		return m.renderGallery()
	case RefreshView:
		return m.renderRefresh()
	case ResultView:
		return m.renderResult()
	default:
		return ""
	}
}

func (m *Model) filtering() bool {
	switch m.view {
	case ProviderListView:
		return m.providerList.FilterState() == list.Filtering
	case GalleryView:
		return m.recordList.FilterState() == list.Filtering
	}
	return false
}

func (m *Model) handleProviderKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.filtering() {
		return m.updateLists(msg)
	}

	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.toggle):
		m.view = GalleryView
		return m, m.fetchPage(m.pageIndex)
	case key.Matches(msg, m.keys.refresh):
		return m, m.startRefresh()
	}
	return m.updateLists(msg)
}

func (m *Model) handleGalleryKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.filtering() {
		return m.updateLists(msg)
	}

	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.toggle), key.Matches(msg, m.keys.back):
		m.view = ProviderListView
		m.notice = ""
		return m, m.fetchProviders()
	case key.Matches(msg, m.keys.next):
		if len(m.records) < m.pageSize {
			m.notice = "No older images"
			return m, nil
		}
		return m, m.fetchPage(m.pageIndex + 1)
	case key.Matches(msg, m.keys.prev):
		if m.pageIndex == 0 {
			return m, nil
		}
		return m, m.fetchPage(m.pageIndex - 1)
	case key.Matches(msg, m.keys.refresh):
		return m, m.startRefresh()
	}
	return m.updateLists(msg)
}

func (m *Model) handleResultKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.back), key.Matches(msg, m.keys.toggle):
		m.view = ProviderListView
		m.report = nil
		m.err = nil
		m.pageIndex = 0
		return m, m.fetchProviders()
	}
	return m, nil
}

func (m *Model) updateLists(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.view {
	case ProviderListView:
		m.providerList, cmd = m.providerList.Update(msg)
	case GalleryView:
		m.recordList, cmd = m.recordList.Update(msg)
	}
	return m, cmd
}

func (m *Model) fetchProviders() tea.Cmd {
	return func() tea.Msg {
		return providersFetchedMsg(m.gallery.Providers(m.ctx, true))
	}
}

// fetchPage loads page number page; the gallery is addressed by record offset.
func (m *Model) fetchPage(page int) tea.Cmd {
	size := m.pageSize
	return func() tea.Msg {
		return pageFetchedMsg(page, m.gallery.Page(page*size, size))
	}
}

func (m *Model) startRefresh() tea.Cmd {
	if m.refresher == nil {
		m.notice = "Refresh is unavailable"
		return nil
	}

	m.view = RefreshView
	m.progress = tasks.ProgressUpdate{Message: "Starting refresh..."}
	m.progressChan = make(chan tasks.ProgressUpdate, 50)
	m.doneChan = make(chan refreshOutcome, 1)

	progress, done := m.progressChan, m.doneChan
	go func() {
		report, err := m.refresher.Run(m.ctx, progress, tasks.RefreshOpts{})
		done <- refreshOutcome{report: report, err: err}
		close(progress)
	}()

	return m.waitForProgress()
}

func (m *Model) waitForProgress() tea.Cmd {
	progress, done := m.progressChan, m.doneChan
	return func() tea.Msg {
		if progress == nil {
			return refreshCompleteMsg(nil, nil)
		}

		update, ok := <-progress
		if !ok {
			outcome := <-done
			return refreshCompleteMsg(outcome.report, outcome.err)
		}
		return progressUpdateMsg(update)
	}
}

func (m *Model) withNotice(body string) string {
	if m.notice == "" {
		return body
	}
	return fmt.Sprintf("%s\n%s", body, styles.warn.Render(m.notice))
}

func (m *Model) renderProviders() string {
	helpView := m.help.ShortHelpView([]key.Binding{m.keys.toggle, m.keys.refresh, m.keys.quit})
	if len(m.providers) == 0 {
		title := styles.title.Render("Providers")
		empty := styles.help.Render("No providers connected. Run `skyroll providers add dropbox` to connect one.")
		return m.withNotice(fmt.Sprintf("%s\n%s\n\n%s", title, empty, helpView))
	}
	return m.withNotice(fmt.Sprintf("%s\n\n%s", m.providerList.View(), helpView))
}

func (m *Model) renderGallery() string {
	helpView := m.help.ShortHelpView([]key.Binding{m.keys.prev, m.keys.next, m.keys.toggle, m.keys.refresh, m.keys.quit})
	if len(m.records) == 0 {
		title := styles.title.Render("Gallery")
		empty := styles.help.Render("No images yet. Press r to refresh every provider.")
		return m.withNotice(fmt.Sprintf("%s\n%s\n\n%s", title, empty, helpView))
	}
	return m.withNotice(fmt.Sprintf("%s\n\n%s", m.recordList.View(), helpView))
}

func (m *Model) renderRefresh() string {
	title := styles.title.Render("Refreshing Providers")

	var phase string
	switch m.progress.Phase {
	case tasks.CollectInstances:
		phase = "Collecting instances..."
	case tasks.ListInstance:
		phase = fmt.Sprintf("Listing instances (%d/%d)", m.progress.Step, m.progress.Total)
	case tasks.WriteReport:
		phase = "Writing report..."
	default:
		phase = "Processing..."
	}

	return fmt.Sprintf("%s\n\n%s\n%s", title, phase, m.progress.Message)
}

func (m *Model) renderResult() string {
	helpView := m.help.ShortHelpView([]key.Binding{m.keys.back, m.keys.quit})

	if m.err != nil {
		return fmt.Sprintf("%s\n\n%s", styles.err.Render(fmt.Sprintf("Refresh failed: %v", m.err)), helpView)
	}
	if m.report == nil {
		return fmt.Sprintf("%s\n\n%s", styles.err.Render("No result available"), helpView)
	}

	title := styles.ok.Render("✓ Refresh Complete!")
	info := fmt.Sprintf(
		"\nInstances: %d (%d succeeded, %d failed)\nImages indexed: %d\nDuration: %s",
		m.report.Total,
		m.report.Succeeded,
		m.report.Failed,
		m.report.Records,
		m.report.FinishedAt.Sub(m.report.StartedAt).Round(time.Millisecond),
	)

	var failed strings.Builder
	if m.report.Failed > 0 {
		failed.WriteString("\n\n")
		failed.WriteString(styles.warn.Render(fmt.Sprintf("Failed to list %d instance(s):", m.report.Failed)))
		for _, inst := range m.report.Instances {
			if inst.Error != "" {
				fmt.Fprintf(&failed, "\n  • %s: %s", inst.Ref(), inst.Error)
			}
		}
	}

	return fmt.Sprintf("%s\n%s%s\n\n%s", title, info, failed.String(), helpView)
}
