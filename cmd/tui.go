package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/skyroll/internal/shared"
	"github.com/desertthunder/skyroll/internal/tasks"
	"github.com/desertthunder/skyroll/internal/ui"
	"github.com/urfave/cli/v3"
)

// TUI launches the interactive gallery browser.
func (r *Runner) TUI(ctx context.Context, cmd *cli.Command) error {
	// Redirect logs to file to avoid interfering with TUI rendering
	fileLogger, err := shared.NewFileLogger("./tmp/skyroll-tui.log")
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	r.SetLogger(fileLogger)

	m, err := r.Manager(ctx)
	if err != nil {
		return err
	}

	model := ui.NewModel(ctx, m, tasks.NewRefresher(m, r.logger), r.config.Gallery.PageSize)
	p := tea.NewProgram(model, tea.WithAltScreen())

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}

	return nil
}
