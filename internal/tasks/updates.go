package tasks

import (
	"fmt"

	"github.com/desertthunder/skyroll/internal/models"
)

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	CollectInstances Phase = iota
	ListInstance
	WriteReport
)

func (p Phase) String() string {
	switch p {
	case CollectInstances:
		return "collect_instances"
	case ListInstance:
		return "list_instance"
	case WriteReport:
		return "write_report"
	default:
		return ""
	}
}

func collectUpdate(total int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   CollectInstances,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Found %d instance(s) to refresh", total),
	}
}

func listingUpdate(step, total int, ref models.InstanceRef) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ListInstance,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Listing %s...", step, total, ref),
	}
}

func listedUpdate(step, total int, res models.InstanceRefresh) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ListInstance,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✓ %s (%d images)", step, total, res.Ref(), res.Images),
		Data:    res,
	}
}

func listFailedUpdate(step, total int, res models.InstanceRefresh) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ListInstance,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✗ %s: %s", step, total, res.Ref(), res.Error),
		Data:    res,
	}
}

func reportUpdate(path string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   WriteReport,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Report written to %s", path),
	}
}
