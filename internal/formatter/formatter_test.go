package formatter

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/skyroll/internal/manager"
	"github.com/desertthunder/skyroll/internal/models"
	"github.com/desertthunder/skyroll/internal/shared"
	th "github.com/desertthunder/skyroll/internal/testing"
)

var taken = time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)

func samplePage() []models.FileRecord {
	return []models.FileRecord{
		{ID: "id:b", Name: "beach|sunset.jpg", Path: "/trips/beach|sunset.jpg", Timestamp: taken, ProviderType: "dropbox", InstanceIndex: 1},
		{ID: "id:a", Name: "cat.png", Path: "/cat.png", Timestamp: taken.Add(-time.Hour), ProviderType: "dropbox", InstanceIndex: 0},
	}
}

func sampleStatuses() []manager.ProviderStatus {
	return []manager.ProviderStatus{
		{Type: "dropbox", InstanceIndex: 0, Authenticated: true, State: "authenticated", Images: 12,
			AccountInfo: &models.AccountInfo{AccountID: "dbid:1", Email: "a@example.com"}},
		{Type: "dropbox", InstanceIndex: 1, State: "pending_authorization"},
	}
}

func sampleReport() *models.RefreshReport {
	return &models.RefreshReport{
		StartedAt:  taken,
		FinishedAt: taken.Add(time.Second),
		Total:      2,
		Succeeded:  1,
		Failed:     1,
		Records:    5,
		Instances: []models.InstanceRefresh{
			{ProviderType: "dropbox", InstanceIndex: 0, Images: 5},
			{ProviderType: "dropbox", InstanceIndex: 1, Error: "reauthorization required"},
		},
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", JSON, false},
		{"JSON", JSON, false},
		{"csv", CSV, false},
		{"md", Markdown, false},
		{"markdown", Markdown, false},
		{"text", Text, false},
		{" txt ", Text, false},
		{"xml", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				if !errors.Is(err, shared.ErrInvalidInput) {
					t.Errorf("expected ErrInvalidInput, got %v", err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("ParseFormat(%q) = (%q, %v), want %q", tt.in, got, err, tt.want)
			}
		})
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1536, "1.5 KiB"},
		{5 * 1024 * 1024, "5.0 MiB"},
		{2 * 1024 * 1024 * 1024, "2.0 GiB"},
	}
	for _, tt := range tests {
		if got := FormatBytes(tt.in); got != tt.want {
			t.Errorf("FormatBytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPageRenderers(t *testing.T) {
	t.Run("PageToCSV", func(t *testing.T) {
		data, err := PageToCSV(samplePage())
		if err != nil {
			t.Fatalf("PageToCSV failed: %v", err)
		}

		lines := strings.Split(strings.TrimSpace(string(data)), "\n")
		if len(lines) != 3 {
			t.Fatalf("expected header and 2 rows, got %d lines", len(lines))
		}
		if lines[0] != "Timestamp,Name,Path,Provider,Instance,ID" {
			t.Errorf("unexpected header %q", lines[0])
		}
		if lines[1] != "2024-05-01T12:30:00Z,beach|sunset.jpg,/trips/beach|sunset.jpg,dropbox,1,id:b" {
			t.Errorf("unexpected row %q", lines[1])
		}
	})

	t.Run("PageToMarkdown", func(t *testing.T) {
		output := string(PageToMarkdown(samplePage(), 10))

		for _, want := range []string{"# Gallery", "**Start**: 10", "**Images**: 2", `| 10 | 2024-05-01T12:30:00Z | beach\|sunset.jpg | dropbox:1 |`, "| 11 |"} {
			if !strings.Contains(output, want) {
				t.Errorf("markdown missing %q:\n%s", want, output)
			}
		}
	})

	t.Run("PageToMarkdown empty", func(t *testing.T) {
		if output := string(PageToMarkdown(nil, 0)); !strings.Contains(output, "_No images._") {
			t.Errorf("unexpected output %s", output)
		}
	})

	t.Run("PageToText", func(t *testing.T) {
		output := string(PageToText(samplePage(), 0))
		if !strings.Contains(output, "0. 2024-05-01T12:30:00Z  /trips/beach|sunset.jpg  [dropbox:1]") {
			t.Errorf("unexpected text output:\n%s", output)
		}
		if !strings.Contains(output, "1. 2024-05-01T11:30:00Z  /cat.png  [dropbox:0]") {
			t.Errorf("unexpected text output:\n%s", output)
		}
	})

	t.Run("RenderPage JSON", func(t *testing.T) {
		data, err := RenderPage(samplePage(), 0, JSON)
		if err != nil {
			t.Fatalf("RenderPage failed: %v", err)
		}

		var decoded []map[string]any
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if len(decoded) != 2 || decoded[0]["providerType"] != "dropbox" {
			t.Errorf("unexpected JSON %s", data)
		}
	})

	t.Run("RenderPage JSON empty is an array", func(t *testing.T) {
		data, _ := RenderPage(nil, 0, JSON)
		if strings.TrimSpace(string(data)) != "[]" {
			t.Errorf("expected [], got %s", data)
		}
	})

	t.Run("WritePageExport", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "page.csv")

		written, err := WritePageExport(samplePage(), 0, CSV, path)
		if err != nil {
			t.Fatalf("WritePageExport failed: %v", err)
		}
		if written != path {
			t.Errorf("expected %s, got %s", path, written)
		}
		th.AssertFileExists(t, path)
		if content := th.MustReadFile(t, path); !strings.HasPrefix(content, "Timestamp,") {
			t.Errorf("unexpected content %s", content)
		}
	})

	t.Run("WritePageExport default filename", func(t *testing.T) {
		t.Chdir(t.TempDir())

		written, err := WritePageExport(samplePage(), 40, Markdown, "")
		if err != nil {
			t.Fatalf("WritePageExport failed: %v", err)
		}
		if written != "gallery_40.md" {
			t.Errorf("unexpected filename %s", written)
		}
		th.AssertFileExists(t, written)
	})

	t.Run("WritePageExport unwritable", func(t *testing.T) {
		_, err := WritePageExport(samplePage(), 0, JSON, filepath.Join(t.TempDir(), "missing", "page.json"))
		if err == nil {
			t.Error("expected write error")
		}
	})
}

func TestProviderRenderers(t *testing.T) {
	t.Run("ProvidersToCSV", func(t *testing.T) {
		data, err := ProvidersToCSV(sampleStatuses())
		if err != nil {
			t.Fatalf("ProvidersToCSV failed: %v", err)
		}
		output := string(data)
		if !strings.Contains(output, "dropbox,0,authenticated,true,12,a@example.com") {
			t.Errorf("unexpected CSV:\n%s", output)
		}
		if !strings.Contains(output, "dropbox,1,pending_authorization,false,0,") {
			t.Errorf("unexpected CSV:\n%s", output)
		}
	})

	t.Run("ProvidersToMarkdown", func(t *testing.T) {
		output := string(ProvidersToMarkdown(sampleStatuses()))
		if !strings.Contains(output, "| dropbox:0 | authenticated | 12 | a@example.com |") {
			t.Errorf("unexpected markdown:\n%s", output)
		}
		if output := string(ProvidersToMarkdown(nil)); !strings.Contains(output, "_No providers configured._") {
			t.Errorf("unexpected empty markdown:\n%s", output)
		}
	})

	t.Run("ProvidersToText", func(t *testing.T) {
		output := string(ProvidersToText(sampleStatuses()))
		want := "dropbox:0 authenticated (12 images) a@example.com\ndropbox:1 pending_authorization (0 images)\n"
		if output != want {
			t.Errorf("ProvidersToText() = %q, want %q", output, want)
		}
	})

	t.Run("RenderProviders JSON", func(t *testing.T) {
		data, err := RenderProviders(sampleStatuses(), JSON)
		if err != nil {
			t.Fatalf("RenderProviders failed: %v", err)
		}
		output := string(data)
		if !strings.Contains(output, `"instanceIndex": 1`) || !strings.Contains(output, `"email": "a@example.com"`) {
			t.Errorf("unexpected JSON:\n%s", output)
		}
		if strings.Count(output, "accountInfo") != 1 {
			t.Error("accountInfo should be omitted when absent")
		}
	})
}

func TestRenderStorage(t *testing.T) {
	ref := models.InstanceRef{ProviderType: "dropbox", InstanceIndex: 0}
	usage := models.StorageUsage{Used: 1024, Allocated: 4096}

	tests := []struct {
		format Format
		want   string
	}{
		{Text, "dropbox:0: 1.0 KiB used of 4.0 KiB (3.0 KiB free)\n"},
		{CSV, "Provider,Used,Allocated,Free\ndropbox:0,1024,4096,3072\n"},
		{JSON, `"free": 3072`},
	}

	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			data, err := RenderStorage(ref, usage, tt.format)
			if err != nil {
				t.Fatalf("RenderStorage failed: %v", err)
			}
			if !strings.Contains(string(data), tt.want) {
				t.Errorf("RenderStorage() = %q, want %q", data, tt.want)
			}
		})
	}
}

func TestRefreshReport(t *testing.T) {
	t.Run("RefreshReportToText", func(t *testing.T) {
		output := string(RefreshReportToText(sampleReport()))
		for _, want := range []string{"Refreshed 1 of 2 instance(s), 5 image(s)", "dropbox:0: 5 images", "dropbox:1: failed: reauthorization required"} {
			if !strings.Contains(output, want) {
				t.Errorf("text missing %q:\n%s", want, output)
			}
		}
	})

	t.Run("RefreshReportToMarkdown", func(t *testing.T) {
		output := string(RefreshReportToMarkdown(sampleReport()))
		for _, want := range []string{"# Refresh Report", "**Instances**: 2 (1 succeeded, 1 failed)", "- ✓ dropbox:0 (5 images)", "- ✗ dropbox:1: reauthorization required"} {
			if !strings.Contains(output, want) {
				t.Errorf("markdown missing %q:\n%s", want, output)
			}
		}
	})

	t.Run("RefreshReportToCSV", func(t *testing.T) {
		data, err := RefreshReportToCSV(sampleReport())
		if err != nil {
			t.Fatalf("RefreshReportToCSV failed: %v", err)
		}
		want := "Provider,Instance,Images,Error\ndropbox,0,5,\ndropbox,1,0,reauthorization required\n"
		if string(data) != want {
			t.Errorf("RefreshReportToCSV() = %q, want %q", data, want)
		}
	})

	t.Run("WriteRefreshReport", func(t *testing.T) {
		dir := t.TempDir()

		for _, format := range []string{"json", "csv", "markdown", "txt"} {
			path := filepath.Join(dir, "report."+format)
			if err := WriteRefreshReport(sampleReport(), format, path); err != nil {
				t.Fatalf("WriteRefreshReport(%s) failed: %v", format, err)
			}
			info, err := os.Stat(path)
			if err != nil || info.Size() == 0 {
				t.Errorf("%s report missing or empty", format)
			}
		}
	})

	t.Run("WriteRefreshReport unknown format", func(t *testing.T) {
		err := WriteRefreshReport(sampleReport(), "xml", filepath.Join(t.TempDir(), "r.xml"))
		if !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})
}
