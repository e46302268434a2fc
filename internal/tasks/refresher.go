package tasks

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/skyroll/internal/formatter"
	"github.com/desertthunder/skyroll/internal/models"
	"github.com/desertthunder/skyroll/internal/shared"
	"golang.org/x/time/rate"
)

// Lister enumerates instances and relists one of them. Implemented by manager.Manager.
type Lister interface {
	Refs() []models.InstanceRef
	RefreshListing(ctx context.Context, providerType string, instanceIndex int) (int, error)
}

// RefreshOpts contains configuration for a refresh run.
type RefreshOpts struct {
	ProviderType string  // Only refresh this type; empty refreshes all
	NumWorkers   int     // Concurrent listings (default: 4, max: 10)
	RateLimit    float64 // Listings started per second (default: 5)
	ReportPath   string  // Optional report file
	ReportFormat string  // Report format: json, csv, markdown, txt
}

// Refresher relists provider instances into the gallery index.
type Refresher struct {
	lister Lister
	logger *log.Logger
}

// NewRefresher creates a Refresher. A nil logger discards output.
func NewRefresher(lister Lister, logger *log.Logger) *Refresher {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Refresher{lister: lister, logger: shared.WithLogger(logger, "component", "refresher")}
}

// sendProgress sends a progress update through the channel without blocking.
func (r *Refresher) sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

// Run relists every matching instance concurrently and returns a report sorted by type then index.
//
// Individual failures are recorded in the report. Run itself fails only when the context ends before
// every listing finished, or when the report cannot be written.
func (r *Refresher) Run(ctx context.Context, prog chan<- ProgressUpdate, opts RefreshOpts) (*models.RefreshReport, error) {
	if r.lister == nil {
		return nil, fmt.Errorf("%w: no instance lister", shared.ErrServiceUnavailable)
	}
	if opts.NumWorkers <= 0 {
		opts.NumWorkers = 4
	}
	if opts.NumWorkers > 10 {
		opts.NumWorkers = 10
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 5.0
	}

	var refs []models.InstanceRef
	for _, ref := range r.lister.Refs() {
		if opts.ProviderType == "" || ref.ProviderType == opts.ProviderType {
			refs = append(refs, ref)
		}
	}

	report := &models.RefreshReport{
		StartedAt: time.Now(),
		Total:     len(refs),
		Instances: make([]models.InstanceRefresh, 0, len(refs)),
	}
	r.sendProgress(prog, collectUpdate(len(refs)))

	limiter := rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	jobs := make(chan models.InstanceRef, len(refs))
	results := make(chan models.InstanceRefresh, len(refs))

	var wg sync.WaitGroup
	for i := 0; i < opts.NumWorkers; i++ {
		wg.Add(1)
		go r.worker(ctx, &wg, jobs, results)
	}

	go func() {
		defer close(jobs)
		for i, ref := range refs {
			if err := limiter.Wait(ctx); err != nil {
				return
			}
			r.sendProgress(prog, listingUpdate(i+1, len(refs), ref))
			jobs <- ref
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	completed := 0
	for res := range results {
		completed++
		report.Instances = append(report.Instances, res)

		if res.Error == "" {
			report.Succeeded++
			report.Records += res.Images
			r.sendProgress(prog, listedUpdate(completed, len(refs), res))
		} else {
			report.Failed++
			r.logger.Warn("refresh failed", "provider", res.Ref().String(), "error", res.Error)
			r.sendProgress(prog, listFailedUpdate(completed, len(refs), res))
		}
	}

	slices.SortFunc(report.Instances, func(a, b models.InstanceRefresh) int {
		return cmp.Or(cmp.Compare(a.ProviderType, b.ProviderType), cmp.Compare(a.InstanceIndex, b.InstanceIndex))
	})
	report.FinishedAt = time.Now()
	r.logger.Info("refresh finished", "succeeded", report.Succeeded, "failed", report.Failed, "records", report.Records)

	if err := ctx.Err(); err != nil {
		return report, fmt.Errorf("refresh interrupted after %d of %d instances: %w", completed, len(refs), err)
	}

	if opts.ReportPath != "" {
		if err := formatter.WriteRefreshReport(report, opts.ReportFormat, opts.ReportPath); err != nil {
			return report, fmt.Errorf("refresh completed but failed to write report: %w", err)
		}
		r.sendProgress(prog, reportUpdate(opts.ReportPath))
	}
	return report, nil
}

func (r *Refresher) worker(ctx context.Context, wg *sync.WaitGroup, jobs <-chan models.InstanceRef, results chan<- models.InstanceRefresh) {
	defer wg.Done()

	for ref := range jobs {
		select {
		case <-ctx.Done():
			return
		default:
		}

		res := models.InstanceRefresh{ProviderType: ref.ProviderType, InstanceIndex: ref.InstanceIndex}
		images, err := r.lister.RefreshListing(ctx, ref.ProviderType, ref.InstanceIndex)
		if err != nil {
			res.Error = err.Error()
		} else {
			res.Images = images
		}
		results <- res
	}
}
