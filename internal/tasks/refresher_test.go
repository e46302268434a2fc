package tasks

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/desertthunder/skyroll/internal/models"
	"github.com/desertthunder/skyroll/internal/shared"
	th "github.com/desertthunder/skyroll/internal/testing"
)

type fakeLister struct {
	refs   []models.InstanceRef
	images map[string]int
	errs   map[string]error
	delay  time.Duration

	mu      sync.Mutex
	called  []string
	active  atomic.Int32
	maxSeen atomic.Int32
}

func (f *fakeLister) Refs() []models.InstanceRef { return f.refs }

func (f *fakeLister) RefreshListing(ctx context.Context, providerType string, instanceIndex int) (int, error) {
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		seen := f.maxSeen.Load()
		if n <= seen || f.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}
	time.Sleep(f.delay)

	key := fmt.Sprintf("%s:%d", providerType, instanceIndex)
	f.mu.Lock()
	f.called = append(f.called, key)
	f.mu.Unlock()

	if err, ok := f.errs[key]; ok {
		return 0, err
	}
	return f.images[key], nil
}

func refs(providerType string, n int) []models.InstanceRef {
	out := make([]models.InstanceRef, n)
	for i := range out {
		out[i] = models.InstanceRef{ProviderType: providerType, InstanceIndex: i}
	}
	return out
}

func TestRefresher_Run(t *testing.T) {
	ctx := context.Background()

	t.Run("refreshes every instance", func(t *testing.T) {
		lister := &fakeLister{
			refs:   refs("dropbox", 3),
			images: map[string]int{"dropbox:0": 4, "dropbox:1": 0, "dropbox:2": 7},
		}

		report, err := NewRefresher(lister, nil).Run(ctx, nil, RefreshOpts{RateLimit: 100})
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if report.Total != 3 || report.Succeeded != 3 || report.Failed != 0 || report.Records != 11 {
			t.Errorf("unexpected report %+v", report)
		}
		for i, inst := range report.Instances {
			if inst.InstanceIndex != i {
				t.Errorf("instances not sorted: %+v", report.Instances)
				break
			}
		}
		if report.FinishedAt.Before(report.StartedAt) {
			t.Error("finish precedes start")
		}
	})

	t.Run("partial failures", func(t *testing.T) {
		lister := &fakeLister{
			refs:   refs("dropbox", 3),
			images: map[string]int{"dropbox:0": 1, "dropbox:2": 2},
			errs:   map[string]error{"dropbox:1": shared.ErrReauthRequired},
		}

		report, err := NewRefresher(lister, nil).Run(ctx, nil, RefreshOpts{RateLimit: 100})
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if report.Succeeded != 2 || report.Failed != 1 {
			t.Errorf("expected 2 succeeded and 1 failed, got %+v", report)
		}
		if !strings.Contains(report.Instances[1].Error, "reauthorization required") {
			t.Errorf("unexpected error %q", report.Instances[1].Error)
		}
	})

	t.Run("filters by provider type", func(t *testing.T) {
		lister := &fakeLister{refs: append(refs("dropbox", 2), refs("other", 2)...)}

		report, err := NewRefresher(lister, nil).Run(ctx, nil, RefreshOpts{ProviderType: "other", RateLimit: 100})
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if report.Total != 2 {
			t.Errorf("expected 2 instances, got %d", report.Total)
		}
		for _, key := range lister.called {
			if !strings.HasPrefix(key, "other:") {
				t.Errorf("unexpected listing of %s", key)
			}
		}
	})

	t.Run("no instances", func(t *testing.T) {
		report, err := NewRefresher(&fakeLister{}, nil).Run(ctx, nil, RefreshOpts{})
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if report.Total != 0 || len(report.Instances) != 0 {
			t.Errorf("expected empty report, got %+v", report)
		}
	})

	t.Run("nil lister", func(t *testing.T) {
		if _, err := NewRefresher(nil, nil).Run(ctx, nil, RefreshOpts{}); !errors.Is(err, shared.ErrServiceUnavailable) {
			t.Errorf("expected ErrServiceUnavailable, got %v", err)
		}
	})

	t.Run("worker pool limit", func(t *testing.T) {
		lister := &fakeLister{refs: refs("dropbox", 12), delay: 20 * time.Millisecond}

		if _, err := NewRefresher(lister, nil).Run(ctx, nil, RefreshOpts{NumWorkers: 50, RateLimit: 1000}); err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if got := lister.maxSeen.Load(); got > 10 {
			t.Errorf("expected at most 10 concurrent listings, saw %d", got)
		}
	})

	t.Run("context cancellation", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		report, err := NewRefresher(&fakeLister{refs: refs("dropbox", 3)}, nil).Run(cctx, nil, RefreshOpts{})
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
		if report == nil || report.Total != 3 || report.Succeeded != 0 {
			t.Errorf("unexpected report %+v", report)
		}
	})

	t.Run("progress updates", func(t *testing.T) {
		lister := &fakeLister{refs: refs("dropbox", 2)}
		prog := make(chan ProgressUpdate, 20)

		if _, err := NewRefresher(lister, nil).Run(ctx, prog, RefreshOpts{RateLimit: 100}); err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		close(prog)

		phases := map[Phase]int{}
		for update := range prog {
			phases[update.Phase]++
		}
		if phases[CollectInstances] != 1 {
			t.Errorf("expected one collect update, got %d", phases[CollectInstances])
		}
		if phases[ListInstance] != 4 {
			t.Errorf("expected 4 listing updates, got %d", phases[ListInstance])
		}
	})

	t.Run("writes report", func(t *testing.T) {
		lister := &fakeLister{refs: refs("dropbox", 1), images: map[string]int{"dropbox:0": 3}}
		path := filepath.Join(t.TempDir(), "refresh.json")

		_, err := NewRefresher(lister, nil).Run(ctx, nil, RefreshOpts{RateLimit: 100, ReportPath: path, ReportFormat: "json"})
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}

		th.AssertFileExists(t, path)
		content := th.MustReadFile(t, path)
		if !strings.Contains(content, `"providerType": "dropbox"`) || !strings.Contains(content, `"images": 3`) {
			t.Errorf("unexpected report content: %s", content)
		}
	})
}

func TestPhaseString(t *testing.T) {
	tests := []struct {
		phase Phase
		want  string
	}{
		{CollectInstances, "collect_instances"},
		{ListInstance, "list_instance"},
		{WriteReport, "write_report"},
		{Phase(99), ""},
	}
	for _, tt := range tests {
		if got := tt.phase.String(); got != tt.want {
			t.Errorf("Phase(%d).String() = %q, want %q", tt.phase, got, tt.want)
		}
	}
}
