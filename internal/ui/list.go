package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/skyroll/internal/formatter"
	"github.com/desertthunder/skyroll/internal/manager"
	"github.com/desertthunder/skyroll/internal/models"
)

var (
	_ list.Item = providerItem{}
	_ list.Item = recordItem{}
)

// providerItem wraps [manager.ProviderStatus] to implement [list.Item].
type providerItem struct {
	status manager.ProviderStatus
}

func (i providerItem) FilterValue() string { return i.Title() }
func (i providerItem) Title() string {
	return fmt.Sprintf("%s:%d", i.status.Type, i.status.InstanceIndex)
}
func (i providerItem) Description() string {
	desc := fmt.Sprintf("%s • %d images", stateStyle(i.status.State).Render(i.status.State), i.status.Images)
	if i.status.AccountInfo != nil && i.status.AccountInfo.Email != "" {
		desc = fmt.Sprintf("%s • %s", desc, i.status.AccountInfo.Email)
	}
	return desc
}

// recordItem wraps [models.FileRecord] to implement [list.Item].
type recordItem struct {
	record models.FileRecord
}

func (i recordItem) FilterValue() string { return i.record.Name }
func (i recordItem) Title() string       { return i.record.Name }
func (i recordItem) Description() string {
	return fmt.Sprintf("%s • %s • %s",
		i.record.Timestamp.Format("2006-01-02 15:04"),
		formatter.FormatBytes(i.record.Size),
		i.record.Ref(),
	)
}

func providerItems(statuses []manager.ProviderStatus) []list.Item {
	items := make([]list.Item, len(statuses))
	for i, s := range statuses {
		items[i] = providerItem{status: s}
	}
	return items
}

func recordItems(records []models.FileRecord) []list.Item {
	items := make([]list.Item, len(records))
	for i, r := range records {
		items[i] = recordItem{record: r}
	}
	return items
}
