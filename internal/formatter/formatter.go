// package formatter renders gallery pages, provider listings and refresh reports as JSON, CSV, Markdown or plain text
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/skyroll/internal/manager"
	"github.com/desertthunder/skyroll/internal/models"
	"github.com/desertthunder/skyroll/internal/shared"
)

// Format names an output encoding.
type Format string

const (
	JSON     Format = "json"
	CSV      Format = "csv"
	Markdown Format = "markdown"
	Text     Format = "txt"
)

// Formats lists the accepted format names.
var Formats = []Format{JSON, CSV, Markdown, Text}

// ParseFormat resolves a user-supplied format name. The empty string selects JSON.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return JSON, nil
	case "csv":
		return CSV, nil
	case "markdown", "md":
		return Markdown, nil
	case "txt", "text":
		return Text, nil
	default:
		return "", fmt.Errorf("%w: unknown format %q", shared.ErrInvalidInput, s)
	}
}

// Extension returns the file extension for f, including the dot.
func (f Format) Extension() string {
	switch f {
	case CSV:
		return ".csv"
	case Markdown:
		return ".md"
	case Text:
		return ".txt"
	default:
		return ".json"
	}
}

func timestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

func writeCSV(headers []string, rows [][]string) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}
	for _, row := range rows {
		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}
	return buf.Bytes(), nil
}

// FormatBytes renders a byte count with a binary unit, e.g. "1.5 GiB".
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// PageToCSV converts a gallery page to CSV with columns: Timestamp, Name, Path, Provider, Instance, ID
func PageToCSV(records []models.FileRecord) ([]byte, error) {
	rows := make([][]string, len(records))
	for i, r := range records {
		rows[i] = []string{timestamp(r.Timestamp), r.Name, r.Path, r.ProviderType, strconv.Itoa(r.InstanceIndex), r.ID}
	}
	return writeCSV([]string{"Timestamp", "Name", "Path", "Provider", "Instance", "ID"}, rows)
}

// PageToMarkdown converts a gallery page starting at index to a Markdown table
func PageToMarkdown(records []models.FileRecord, index int) []byte {
	var buf bytes.Buffer

	buf.WriteString("# Gallery\n\n")
	buf.WriteString(fmt.Sprintf("**Start**: %d\n", index))
	buf.WriteString(fmt.Sprintf("**Images**: %d\n\n", len(records)))

	if len(records) == 0 {
		buf.WriteString("_No images._\n")
		return buf.Bytes()
	}

	buf.WriteString("| # | Taken | Name | Provider |\n")
	buf.WriteString("|---|-------|------|----------|\n")
	for i, r := range records {
		buf.WriteString(fmt.Sprintf("| %d | %s | %s | %s |\n", index+i, timestamp(r.Timestamp), escapeCell(r.Name), r.Ref()))
	}
	return buf.Bytes()
}

// PageToText converts a gallery page starting at index to plain text
func PageToText(records []models.FileRecord, index int) []byte {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("Images: %d\n\n", len(records)))
	for i, r := range records {
		buf.WriteString(fmt.Sprintf("%d. %s  %s  [%s]\n", index+i, timestamp(r.Timestamp), r.Path, r.Ref()))
	}
	return buf.Bytes()
}

// RenderPage renders a gallery page in format.
func RenderPage(records []models.FileRecord, index int, format Format) ([]byte, error) {
	switch format {
	case CSV:
		return PageToCSV(records)
	case Markdown:
		return PageToMarkdown(records, index), nil
	case Text:
		return PageToText(records, index), nil
	default:
		if records == nil {
			records = []models.FileRecord{}
		}
		return shared.MarshalJSON(records, true)
	}
}

func accountEmail(s manager.ProviderStatus) string {
	if s.AccountInfo == nil {
		return ""
	}
	return s.AccountInfo.Email
}

// ProvidersToCSV converts provider statuses to CSV with columns: Provider, Instance, State, Authenticated, Images, Email
func ProvidersToCSV(statuses []manager.ProviderStatus) ([]byte, error) {
	rows := make([][]string, len(statuses))
	for i, s := range statuses {
		rows[i] = []string{
			s.Type,
			strconv.Itoa(s.InstanceIndex),
			s.State,
			strconv.FormatBool(s.Authenticated),
			strconv.Itoa(s.Images),
			accountEmail(s),
		}
	}
	return writeCSV([]string{"Provider", "Instance", "State", "Authenticated", "Images", "Email"}, rows)
}

// ProvidersToMarkdown converts provider statuses to a Markdown table
func ProvidersToMarkdown(statuses []manager.ProviderStatus) []byte {
	var buf bytes.Buffer

	buf.WriteString("# Providers\n\n")
	if len(statuses) == 0 {
		buf.WriteString("_No providers configured._\n")
		return buf.Bytes()
	}

	buf.WriteString("| Instance | State | Images | Account |\n")
	buf.WriteString("|----------|-------|--------|---------|\n")
	for _, s := range statuses {
		buf.WriteString(fmt.Sprintf("| %s:%d | %s | %d | %s |\n", s.Type, s.InstanceIndex, s.State, s.Images, escapeCell(accountEmail(s))))
	}
	return buf.Bytes()
}

// ProvidersToText converts provider statuses to plain text, one line each
func ProvidersToText(statuses []manager.ProviderStatus) []byte {
	var buf bytes.Buffer
	for _, s := range statuses {
		buf.WriteString(s.String())
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// RenderProviders renders provider statuses in format.
func RenderProviders(statuses []manager.ProviderStatus, format Format) ([]byte, error) {
	switch format {
	case CSV:
		return ProvidersToCSV(statuses)
	case Markdown:
		return ProvidersToMarkdown(statuses), nil
	case Text:
		return ProvidersToText(statuses), nil
	default:
		if statuses == nil {
			statuses = []manager.ProviderStatus{}
		}
		return shared.MarshalJSON(statuses, true)
	}
}

// storageView is the JSON shape of a storage report.
type storageView struct {
	Provider  string `json:"provider"`
	Used      int64  `json:"used"`
	Allocated int64  `json:"allocated"`
	Free      int64  `json:"free"`
}

// RenderStorage renders the quota of one instance in format.
func RenderStorage(ref models.InstanceRef, usage models.StorageUsage, format Format) ([]byte, error) {
	switch format {
	case CSV:
		return writeCSV([]string{"Provider", "Used", "Allocated", "Free"}, [][]string{{
			ref.String(),
			strconv.FormatInt(usage.Used, 10),
			strconv.FormatInt(usage.Allocated, 10),
			strconv.FormatInt(usage.Free(), 10),
		}})
	case Markdown:
		return []byte(fmt.Sprintf("**%s**: %s used of %s (%s free)\n",
			ref, FormatBytes(usage.Used), FormatBytes(usage.Allocated), FormatBytes(usage.Free()))), nil
	case Text:
		return []byte(fmt.Sprintf("%s: %s used of %s (%s free)\n",
			ref, FormatBytes(usage.Used), FormatBytes(usage.Allocated), FormatBytes(usage.Free()))), nil
	default:
		return shared.MarshalJSON(storageView{ref.String(), usage.Used, usage.Allocated, usage.Free()}, true)
	}
}

// RefreshReportToCSV converts a refresh report to CSV with columns: Provider, Instance, Images, Error
func RefreshReportToCSV(report *models.RefreshReport) ([]byte, error) {
	rows := make([][]string, len(report.Instances))
	for i, inst := range report.Instances {
		rows[i] = []string{inst.ProviderType, strconv.Itoa(inst.InstanceIndex), strconv.Itoa(inst.Images), inst.Error}
	}
	return writeCSV([]string{"Provider", "Instance", "Images", "Error"}, rows)
}

// RefreshReportToMarkdown converts a refresh report to Markdown
func RefreshReportToMarkdown(report *models.RefreshReport) []byte {
	var buf bytes.Buffer

	buf.WriteString("# Refresh Report\n\n")
	buf.WriteString(fmt.Sprintf("**Started**: %s\n", timestamp(report.StartedAt)))
	buf.WriteString(fmt.Sprintf("**Finished**: %s\n", timestamp(report.FinishedAt)))
	buf.WriteString(fmt.Sprintf("**Instances**: %d (%d succeeded, %d failed)\n", report.Total, report.Succeeded, report.Failed))
	buf.WriteString(fmt.Sprintf("**Images**: %d\n\n", report.Records))

	buf.WriteString("## Instances\n\n")
	for _, inst := range report.Instances {
		if inst.Error != "" {
			buf.WriteString(fmt.Sprintf("- ✗ %s: %s\n", inst.Ref(), inst.Error))
		} else {
			buf.WriteString(fmt.Sprintf("- ✓ %s (%d images)\n", inst.Ref(), inst.Images))
		}
	}
	return buf.Bytes()
}

// RefreshReportToText converts a refresh report to plain text
func RefreshReportToText(report *models.RefreshReport) []byte {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("Refreshed %d of %d instance(s), %d image(s)\n", report.Succeeded, report.Total, report.Records))
	for _, inst := range report.Instances {
		if inst.Error != "" {
			buf.WriteString(fmt.Sprintf("  %s: failed: %s\n", inst.Ref(), inst.Error))
		} else {
			buf.WriteString(fmt.Sprintf("  %s: %d images\n", inst.Ref(), inst.Images))
		}
	}
	return buf.Bytes()
}

// RenderRefreshReport renders a refresh report in format.
func RenderRefreshReport(report *models.RefreshReport, format Format) ([]byte, error) {
	switch format {
	case CSV:
		return RefreshReportToCSV(report)
	case Markdown:
		return RefreshReportToMarkdown(report), nil
	case Text:
		return RefreshReportToText(report), nil
	default:
		return shared.MarshalJSON(report, true)
	}
}

// WriteRefreshReport renders report in the named format and writes it to path.
func WriteRefreshReport(report *models.RefreshReport, format, path string) error {
	f, err := ParseFormat(format)
	if err != nil {
		return err
	}

	data, err := RenderRefreshReport(report, f)
	if err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// WritePageExport writes a rendered gallery page to path.
//
// Defaults to gallery_{index}{ext} as the filename.
func WritePageExport(records []models.FileRecord, index int, format Format, path string) (string, error) {
	if path == "" {
		path = fmt.Sprintf("gallery_%d%s", index, format.Extension())
	}

	data, err := RenderPage(records, index, format)
	if err != nil {
		return "", fmt.Errorf("failed to render page: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write page: %w", err)
	}
	return path, nil
}
