package ui

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/skyroll/internal/manager"
	"github.com/desertthunder/skyroll/internal/models"
	"github.com/desertthunder/skyroll/internal/tasks"
)

type fakeGallery struct {
	statuses []manager.ProviderStatus
	records  []models.FileRecord
	pages    []int
}

func (g *fakeGallery) Providers(ctx context.Context, withAccount bool) []manager.ProviderStatus {
	return g.statuses
}

func (g *fakeGallery) Page(index, size int) []models.FileRecord {
	g.pages = append(g.pages, index)
	if index >= len(g.records) {
		return nil
	}
	return g.records[index:min(index+size, len(g.records))]
}

type fakeRefresher struct {
	report *models.RefreshReport
	err    error
}

func (r *fakeRefresher) Run(ctx context.Context, prog chan<- tasks.ProgressUpdate, opts tasks.RefreshOpts) (*models.RefreshReport, error) {
	prog <- tasks.ProgressUpdate{Phase: tasks.CollectInstances, Step: 1, Total: 1, Message: "Found 2 instance(s) to refresh"}
	prog <- tasks.ProgressUpdate{Phase: tasks.ListInstance, Step: 1, Total: 2, Message: "[1/2] Listing dropbox:0..."}
	return r.report, r.err
}

func newGallery(n int) *fakeGallery {
	epoch := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	g := &fakeGallery{
		statuses: []manager.ProviderStatus{
			{Type: "dropbox", InstanceIndex: 0, Authenticated: true, State: "authenticated", Images: n,
				AccountInfo: &models.AccountInfo{Email: "user0@example.com"}},
			{Type: "dropbox", InstanceIndex: 1, State: "reauth_required"},
		},
	}
	for i := range n {
		g.records = append(g.records, models.FileRecord{
			ID:           fmt.Sprintf("id-%d", i),
			Name:         fmt.Sprintf("photo-%d.jpg", i),
			Path:         fmt.Sprintf("/photo-%d.jpg", i),
			Timestamp:    epoch.Add(-time.Duration(i) * time.Hour),
			Size:         2048,
			ProviderType: "dropbox",
		})
	}
	return g
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// send delivers msg to the model and returns the resulting command.
func send(t *testing.T, m *Model, msg tea.Msg) tea.Cmd {
	t.Helper()
	_, cmd := m.Update(msg)
	return cmd
}

// drain executes cmd and every follow-up command until one yields nil or a non-model message.
func drain(t *testing.T, m *Model, cmd tea.Cmd) {
	t.Helper()
	for range 20 {
		if cmd == nil {
			return
		}
		msg := cmd()
		if _, ok := msg.(Msg); !ok {
			return
		}
		cmd = send(t, m, msg)
	}
	t.Fatal("command chain did not settle")
}

func newTestModel(t *testing.T, g *fakeGallery, r Refresher, pageSize int) *Model {
	t.Helper()
	m := NewModel(context.Background(), g, r, pageSize)
	send(t, m, tea.WindowSizeMsg{Width: 100, Height: 40})
	drain(t, m, m.Init())
	return m
}

func TestModel_Providers(t *testing.T) {
	t.Run("init loads providers", func(t *testing.T) {
		m := newTestModel(t, newGallery(3), nil, 2)

		if len(m.providers) != 2 {
			t.Fatalf("expected 2 providers, got %d", len(m.providers))
		}
		if m.view != ProviderListView {
			t.Errorf("expected provider view, got %d", m.view)
		}
		if view := m.View(); !strings.Contains(view, "dropbox:0") {
			t.Errorf("expected instance in view, got:\n%s", view)
		}
	})

	t.Run("empty listing", func(t *testing.T) {
		m := newTestModel(t, &fakeGallery{}, nil, 2)

		if view := m.View(); !strings.Contains(view, "No providers connected") {
			t.Errorf("expected empty notice, got:\n%s", view)
		}
	})

	t.Run("quit", func(t *testing.T) {
		m := newTestModel(t, newGallery(0), nil, 2)

		cmd := send(t, m, runes("q"))
		if cmd == nil {
			t.Fatal("expected quit command")
		}
		if _, ok := cmd().(tea.QuitMsg); !ok {
			t.Error("expected tea.QuitMsg")
		}
	})
}

func TestModel_Gallery(t *testing.T) {
	t.Run("tab opens first page", func(t *testing.T) {
		g := newGallery(5)
		m := newTestModel(t, g, nil, 2)

		drain(t, m, send(t, m, tea.KeyMsg{Type: tea.KeyTab}))

		if m.view != GalleryView {
			t.Fatalf("expected gallery view, got %d", m.view)
		}
		if len(m.records) != 2 || m.records[0].Name != "photo-0.jpg" {
			t.Errorf("unexpected first page %+v", m.records)
		}
	})

	t.Run("paging", func(t *testing.T) {
		g := newGallery(5)
		m := newTestModel(t, g, nil, 2)
		drain(t, m, send(t, m, tea.KeyMsg{Type: tea.KeyTab}))

		drain(t, m, send(t, m, runes("l")))
		drain(t, m, send(t, m, runes("l")))
		if m.pageIndex != 2 || len(m.records) != 1 {
			t.Fatalf("expected last page with 1 record, got page %d with %d", m.pageIndex, len(m.records))
		}

		if cmd := send(t, m, runes("l")); cmd != nil {
			t.Error("expected no fetch past a short page")
		}
		if m.notice != "No older images" {
			t.Errorf("unexpected notice %q", m.notice)
		}

		drain(t, m, send(t, m, runes("h")))
		if m.pageIndex != 1 || m.records[0].Name != "photo-2.jpg" {
			t.Errorf("expected page 1, got page %d %+v", m.pageIndex, m.records)
		}
		if want := []int{0, 2, 4, 2}; !slices.Equal(g.pages, want) {
			t.Errorf("expected offsets %v, got %v", want, g.pages)
		}
	})

	t.Run("newer on first page", func(t *testing.T) {
		m := newTestModel(t, newGallery(3), nil, 2)
		drain(t, m, send(t, m, tea.KeyMsg{Type: tea.KeyTab}))

		if cmd := send(t, m, runes("h")); cmd != nil {
			t.Error("expected no fetch before the first page")
		}
	})

	t.Run("empty older page keeps current", func(t *testing.T) {
		m := newTestModel(t, newGallery(2), nil, 2)
		drain(t, m, send(t, m, tea.KeyMsg{Type: tea.KeyTab}))

		send(t, m, pageFetchedMsg(1, nil))
		if m.pageIndex != 0 || len(m.records) != 2 {
			t.Errorf("expected page 0 retained, got page %d", m.pageIndex)
		}
	})

	t.Run("esc returns to providers", func(t *testing.T) {
		m := newTestModel(t, newGallery(2), nil, 2)
		drain(t, m, send(t, m, tea.KeyMsg{Type: tea.KeyTab}))

		drain(t, m, send(t, m, tea.KeyMsg{Type: tea.KeyEsc}))
		if m.view != ProviderListView {
			t.Errorf("expected provider view, got %d", m.view)
		}
	})

	t.Run("empty gallery", func(t *testing.T) {
		m := newTestModel(t, newGallery(0), nil, 2)
		drain(t, m, send(t, m, tea.KeyMsg{Type: tea.KeyTab}))

		if view := m.View(); !strings.Contains(view, "No images yet") {
			t.Errorf("expected empty gallery notice, got:\n%s", view)
		}
	})
}

func TestModel_Refresh(t *testing.T) {
	report := &models.RefreshReport{
		StartedAt:  time.Now(),
		FinishedAt: time.Now(),
		Total:      2,
		Succeeded:  1,
		Failed:     1,
		Records:    4,
		Instances: []models.InstanceRefresh{
			{ProviderType: "dropbox", InstanceIndex: 0, Images: 4},
			{ProviderType: "dropbox", InstanceIndex: 1, Error: "reauthorization required"},
		},
	}

	t.Run("progress then result", func(t *testing.T) {
		m := newTestModel(t, newGallery(1), &fakeRefresher{report: report}, 2)

		cmd := send(t, m, runes("r"))
		if m.view != RefreshView {
			t.Fatalf("expected refresh view, got %d", m.view)
		}
		if view := m.View(); !strings.Contains(view, "Refreshing Providers") {
			t.Errorf("unexpected refresh view:\n%s", view)
		}

		drain(t, m, cmd)
		if m.view != ResultView {
			t.Fatalf("expected result view, got %d", m.view)
		}

		view := m.View()
		for _, want := range []string{"Refresh Complete", "Images indexed: 4", "dropbox:1: reauthorization required"} {
			if !strings.Contains(view, want) {
				t.Errorf("expected %q in result view:\n%s", want, view)
			}
		}

		drain(t, m, send(t, m, tea.KeyMsg{Type: tea.KeyEsc}))
		if m.view != ProviderListView || m.report != nil {
			t.Error("expected reset to provider view")
		}
	})

	t.Run("failure", func(t *testing.T) {
		m := newTestModel(t, newGallery(1), &fakeRefresher{err: errors.New("boom")}, 2)

		drain(t, m, send(t, m, runes("r")))
		if view := m.View(); !strings.Contains(view, "Refresh failed: boom") {
			t.Errorf("expected failure view, got:\n%s", view)
		}
	})

	t.Run("unavailable", func(t *testing.T) {
		m := newTestModel(t, newGallery(1), nil, 2)

		if cmd := send(t, m, runes("r")); cmd != nil {
			t.Error("expected no command without a refresher")
		}
		if m.view != ProviderListView || m.notice == "" {
			t.Errorf("expected notice on provider view, got view %d notice %q", m.view, m.notice)
		}
	})
}
