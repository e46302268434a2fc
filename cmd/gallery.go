package main

import (
	"context"
	"fmt"
	"sync"

	"github.com/desertthunder/skyroll/internal/formatter"
	"github.com/desertthunder/skyroll/internal/shared"
	"github.com/desertthunder/skyroll/internal/tasks"
	"github.com/urfave/cli/v3"
)

// GalleryPage prints or exports one page of the merged index, newest first.
func (r *Runner) GalleryPage(ctx context.Context, cmd *cli.Command) error {
	index := cmd.Int("index")
	size := cmd.Int("size")
	if size == 0 {
		size = r.config.Gallery.PageSize
	}
	if index < 0 || size <= 0 {
		return fmt.Errorf("%w: index must be non-negative and size positive", shared.ErrInvalidArgument)
	}

	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	m, err := r.Manager(ctx)
	if err != nil {
		return err
	}

	records := m.Page(index, size)

	if output := cmd.String("output"); output != "" {
		path, err := formatter.WritePageExport(records, index, format, output)
		if err != nil {
			return err
		}
		r.logger.Info("page exported", "path", path, "records", len(records))
		return r.writePlain("✓ Wrote %d image(s) to %s\n", len(records), path)
	}

	data, err := formatter.RenderPage(records, index, format)
	if err != nil {
		return err
	}
	return r.render(data, format)
}

// GalleryRefresh relists every instance with a worker pool, printing progress as it goes.
func (r *Runner) GalleryRefresh(ctx context.Context, cmd *cli.Command) error {
	m, err := r.Manager(ctx)
	if err != nil {
		return err
	}

	opts := tasks.RefreshOpts{
		ProviderType: cmd.String("type"),
		NumWorkers:   cmd.Int("workers"),
		RateLimit:    cmd.Float("rate"),
		ReportPath:   cmd.String("report"),
		ReportFormat: cmd.String("format"),
	}

	progress := make(chan tasks.ProgressUpdate, 50)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for update := range progress {
			r.writePlain("%s\n", update.Message)
		}
	}()

	report, err := tasks.NewRefresher(m, r.logger).Run(ctx, progress, opts)
	close(progress)
	wg.Wait()
	if err != nil {
		return err
	}

	r.writePlainHeader("Refresh Summary")
	return r.writeBytes(formatter.RefreshReportToText(report))
}
