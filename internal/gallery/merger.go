// Package gallery maintains the merged, time-ordered index of image files across every provider instance.
//
// The index is one slice kept ascending by timestamp. New listings are merged in linearly; the whole
// collection is never re-sorted. Pages are served newest first.
package gallery

import (
	"slices"
	"strings"
	"sync"

	"github.com/desertthunder/skyroll/internal/models"
)

var imageExtensions = map[string]bool{
	"jpg":  true,
	"jpeg": true,
	"png":  true,
	"gif":  true,
	"bmp":  true,
	"webp": true,
	"tif":  true,
	"tiff": true,
	"heic": true,
	"heif": true,
	"ppm":  true,
}

// IsImage reports whether name carries a known image extension.
// Names without an extension or consisting only of a leading-dot suffix are rejected.
func IsImage(name string) bool {
	dot := strings.LastIndex(name, ".")
	if dot <= 0 || dot == len(name)-1 {
		return false
	}
	return imageExtensions[strings.ToLower(name[dot+1:])]
}

func byTimestamp(a, b models.FileRecord) int {
	return a.Timestamp.Compare(b.Timestamp)
}

// Merger holds the merged index and a render cursor for sequential paging.
type Merger struct {
	mu      sync.Mutex
	records []models.FileRecord
	cursor  int
}

// NewMerger returns an empty index.
func NewMerger() *Merger {
	return &Merger{}
}

// AddThumbnails merges the image files of batch into the index.
func (m *Merger) AddThumbnails(batch []models.FileRecord) {
	images := make([]models.FileRecord, 0, len(batch))
	for _, r := range batch {
		if IsImage(r.Name) {
			images = append(images, r)
		}
	}
	if len(images) == 0 {
		return
	}
	slices.SortStableFunc(images, byTimestamp)

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.records) == 0 {
		m.records = images
	} else {
		m.records = merge(m.records, images)
	}
	m.cursor = len(m.records)
}

// merge combines two ascending slices. Existing records precede incoming ones on equal timestamps.
func merge(existing, incoming []models.FileRecord) []models.FileRecord {
	out := make([]models.FileRecord, 0, len(existing)+len(incoming))
	i, j := 0, 0
	for i < len(existing) && j < len(incoming) {
		if incoming[j].Timestamp.Before(existing[i].Timestamp) {
			out = append(out, incoming[j])
			j++
		} else {
			out = append(out, existing[i])
			i++
		}
	}
	out = append(out, existing[i:]...)
	return append(out, incoming[j:]...)
}

// RemoveProvider drops every record of the given instance and returns how many were removed.
// It must be called with the instance index as it was before any renumbering.
func (m *Merger) RemoveProvider(providerType string, instanceIndex int) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	before := len(m.records)
	m.records = slices.DeleteFunc(m.records, func(r models.FileRecord) bool {
		return r.ProviderType == providerType && r.InstanceIndex == instanceIndex
	})
	m.cursor = len(m.records)
	return before - len(m.records)
}

// Renumber shifts the instance index of records of providerType above removedIndex down by one,
// matching the instance list after a removal.
func (m *Merger) Renumber(providerType string, removedIndex int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.records {
		r := &m.records[i]
		if r.ProviderType == providerType && r.InstanceIndex > removedIndex {
			r.InstanceIndex--
		}
	}
}

// Page returns up to size records newest first, starting index records back from the newest.
func (m *Merger) Page(index, size int) []models.FileRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := len(m.records)
	if index < 0 || size <= 0 || index >= n {
		return []models.FileRecord{}
	}

	start := n - 1 - index
	end := max(start-size+1, 0)
	return reversed(m.records[end : start+1])
}

// NextPage returns the next size records walking back from the render cursor and advances it.
func (m *Merger) NextPage(size int) []models.FileRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	if size <= 0 || m.cursor <= 0 {
		return []models.FileRecord{}
	}

	end := max(m.cursor-size, 0)
	page := reversed(m.records[end:m.cursor])
	m.cursor = end
	return page
}

// ResetCursor moves the render cursor back to the newest record.
func (m *Merger) ResetCursor() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cursor = len(m.records)
}

func reversed(window []models.FileRecord) []models.FileRecord {
	out := make([]models.FileRecord, len(window))
	for i, r := range window {
		out[len(window)-1-i] = r
	}
	return out
}

func (m *Merger) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

func (m *Merger) Cursor() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cursor
}

// Count returns how many records belong to the given instance.
func (m *Merger) Count(providerType string, instanceIndex int) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, r := range m.records {
		if r.ProviderType == providerType && r.InstanceIndex == instanceIndex {
			n++
		}
	}
	return n
}

// Snapshot returns a copy of the index in ascending order.
func (m *Merger) Snapshot() []models.FileRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.records)
}
