package manager

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"

	"github.com/desertthunder/skyroll/internal/models"
	"github.com/desertthunder/skyroll/internal/repositories"
)

// ProviderStatus is one entry of the provider listing.
type ProviderStatus struct {
	Type          string              `json:"type"`
	InstanceIndex int                 `json:"instanceIndex"`
	Authenticated bool                `json:"authenticated"`
	State         string              `json:"state"`
	Images        int                 `json:"images"`
	AccountInfo   *models.AccountInfo `json:"accountInfo,omitempty"`
}

// ThumbnailItem is a gallery record with its thumbnail inlined as base64, or the reason it is missing.
type ThumbnailItem struct {
	models.FileRecord
	Data     string                `json:"data,omitempty"`
	MimeType string                `json:"mimeType,omitempty"`
	Error    models.ThumbnailError `json:"error,omitempty"`
}

// Providers reports every instance, skipping holes. With withAccount set, authenticated instances also
// report their account, refreshing an expired token once if needed.
func (m *Manager) Providers(ctx context.Context, withAccount bool) []ProviderStatus {
	var statuses []ProviderStatus

	for _, providerType := range m.registry.Types() {
		lock := m.typeLock(providerType)
		lock.Lock()

		for idx, inst := range m.list(providerType) {
			if inst == nil {
				continue
			}

			ref := models.InstanceRef{ProviderType: providerType, InstanceIndex: idx}
			status := ProviderStatus{
				Type:          providerType,
				InstanceIndex: idx,
				Authenticated: inst.Provider.IsAuthenticated(),
				Images:        m.merger.Count(providerType, idx),
			}

			if withAccount && status.Authenticated {
				var info models.AccountInfo
				err := m.withRetry(ctx, ref, inst, func() error {
					var err error
					info, err = inst.Provider.AccountInfo(ctx)
					return err
				})
				if err != nil {
					instanceLogger(m.logger, ref).Warn("failed to fetch account info", "error", err)
				} else {
					status.AccountInfo = &info
				}
				status.Authenticated = inst.Provider.IsAuthenticated()
			}

			status.State = inst.Auth.State().String()
			statuses = append(statuses, status)
		}

		lock.Unlock()
	}

	return statuses
}

// Storage reports the quota of an instance.
func (m *Manager) Storage(ctx context.Context, providerType string, instanceIndex int) (models.StorageUsage, error) {
	lock := m.typeLock(providerType)
	lock.Lock()
	defer lock.Unlock()

	inst, err := m.GetProvider(providerType, instanceIndex)
	if err != nil {
		return models.StorageUsage{}, err
	}

	ref := models.InstanceRef{ProviderType: providerType, InstanceIndex: instanceIndex}
	var usage models.StorageUsage
	err = m.withRetry(ctx, ref, inst, func() error {
		var err error
		usage, err = inst.Provider.Usage(ctx)
		return err
	})
	return usage, err
}

// Page returns a page of the gallery index, newest first.
func (m *Manager) Page(index, size int) []models.FileRecord {
	return m.merger.Page(index, size)
}

// Thumbnails returns a page of the gallery with thumbnails fetched concurrently.
// One failed thumbnail never fails the page; it is reported on its item.
func (m *Manager) Thumbnails(ctx context.Context, index, size int) []ThumbnailItem {
	unlock := m.lockAll()
	defer unlock()

	page := m.merger.Page(index, size)
	items := make([]ThumbnailItem, len(page))

	sem := make(chan struct{}, m.opts.ThumbnailWorkers)
	var wg sync.WaitGroup

	for i, record := range page {
		wg.Add(1)
		sem <- struct{}{}

		go func(i int, record models.FileRecord) {
			defer wg.Done()
			defer func() { <-sem }()

			thumb := m.thumbnail(ctx, record)
			item := ThumbnailItem{FileRecord: record}
			if thumb.Success {
				item.Data = base64.StdEncoding.EncodeToString(thumb.Data)
				item.MimeType = thumb.MimeType
			} else {
				item.Error = thumb.Error
			}
			items[i] = item
		}(i, record)
	}

	wg.Wait()
	return items
}

// thumbnail resolves one record through the cache, then its provider. Callers hold the type lock.
func (m *Manager) thumbnail(ctx context.Context, record models.FileRecord) models.Thumbnail {
	ref := record.Ref()
	size := m.opts.ThumbnailSize

	if m.opts.Cache != nil {
		cached, err := m.opts.Cache.Get(ctx, ref, record.Path, size)
		if err == nil {
			return cached
		}
		if !errors.Is(err, repositories.ErrNotFound) {
			instanceLogger(m.logger, ref).Warn("thumbnail cache read failed", "error", err)
		}
	}

	inst, err := m.GetProvider(ref.ProviderType, ref.InstanceIndex)
	if err != nil {
		return models.FailedThumbnail(models.ThumbnailNotFound)
	}
	if !inst.Provider.IsAuthenticated() {
		return models.FailedThumbnail(models.ThumbnailNotAuthenticated)
	}

	thumb := inst.Provider.Thumbnail(ctx, record.Path)
	if thumb.Success && m.opts.Cache != nil {
		if err := m.opts.Cache.Put(ctx, ref, record.Path, size, thumb); err != nil {
			instanceLogger(m.logger, ref).Warn("thumbnail cache write failed", "error", err)
		}
	}
	return thumb
}

// String renders a status line for logs and text output.
func (s ProviderStatus) String() string {
	line := fmt.Sprintf("%s:%d %s (%d images)", s.Type, s.InstanceIndex, s.State, s.Images)
	if s.AccountInfo != nil {
		line += " " + s.AccountInfo.Email
	}
	return line
}
