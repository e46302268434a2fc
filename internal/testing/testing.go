// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/desertthunder/skyroll/internal/models"
	"github.com/desertthunder/skyroll/internal/providers"
	"github.com/desertthunder/skyroll/internal/shared"
)

// MockProvider is a test double for [providers.Provider].
//
// Exported fields configure behavior and may be set by a factory before the provider is used.
type MockProvider struct {
	TypeName    string
	Files       []models.FileRecord
	ListErr     error
	ExpireOnce  bool
	RefreshErr  error
	ExchangeErr error
	Account     models.AccountInfo
	Quota       models.StorageUsage
	Thumbs      map[string]models.Thumbnail

	mu            sync.Mutex
	creds         models.Credentials
	authenticated bool
	expired       bool
	calls         map[string]int
}

// NewMockProvider returns an unauthenticated mock of providerType.
func NewMockProvider(providerType string) *MockProvider {
	return &MockProvider{TypeName: providerType, calls: make(map[string]int)}
}

// MockFactory returns a factory producing mocks and records every mock it builds.
func MockFactory(providerType string, configure func(*MockProvider), created *[]*MockProvider) providers.Factory {
	var mu sync.Mutex
	return func(providers.Options) providers.Provider {
		p := NewMockProvider(providerType)
		if configure != nil {
			configure(p)
		}
		if created != nil {
			mu.Lock()
			*created = append(*created, p)
			mu.Unlock()
		}
		return p
	}
}

func (m *MockProvider) record(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[name]++
}

// Calls returns how many times method name was invoked.
func (m *MockProvider) Calls(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[name]
}

// Credentials returns the credentials last adopted.
func (m *MockProvider) Credentials() models.Credentials {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.creds
}

func (m *MockProvider) Type() string { return m.TypeName }

func (m *MockProvider) EnvKeys(instanceIndex int) models.EnvKeys {
	return providers.EnvKeysFor(m.TypeName, instanceIndex)
}

func (m *MockProvider) AuthorizationURL(appKey, redirectURI, state string) string {
	return fmt.Sprintf("https://auth.example.com/authorize?client_id=%s&redirect_uri=%s&state=%s", appKey, redirectURI, state)
}

func (m *MockProvider) ExchangeCode(ctx context.Context, code, appKey, appSecret, redirectURI string) (models.TokenPair, error) {
	m.record("ExchangeCode")
	if m.ExchangeErr != nil {
		return models.TokenPair{}, m.ExchangeErr
	}
	return models.TokenPair{AccessToken: "access-" + code, RefreshToken: "refresh-" + code}, nil
}

func (m *MockProvider) Authenticate(ctx context.Context, creds models.Credentials) bool {
	m.record("Authenticate")
	if !creds.Configured() || creds.AccessToken == "" {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds = creds
	m.authenticated = true
	m.expired = m.ExpireOnce
	return true
}

func (m *MockProvider) RefreshToken(ctx context.Context, creds models.Credentials, instanceIndex int) models.RefreshResult {
	m.record("RefreshToken")
	if m.RefreshErr != nil {
		return models.RefreshResult{Err: m.RefreshErr}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds = creds
	m.creds.AccessToken = "refreshed"
	m.expired = false
	m.authenticated = true
	return models.RefreshResult{Success: true, AccessToken: "refreshed", RefreshToken: creds.RefreshToken}
}

func (m *MockProvider) IsAuthenticated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.authenticated
}

// check reports the error an authenticated call would fail with, if any.
func (m *MockProvider) check() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.authenticated {
		return shared.ErrNotAuthenticated
	}
	if m.expired {
		return shared.ErrTokenExpired
	}
	return nil
}

func (m *MockProvider) AccountInfo(ctx context.Context) (models.AccountInfo, error) {
	m.record("AccountInfo")
	if err := m.check(); err != nil {
		return models.AccountInfo{}, err
	}
	return m.Account, nil
}

func (m *MockProvider) ListFiles(ctx context.Context, folderPath string, recursive bool, limit, instanceIndex int) ([]models.FileRecord, error) {
	m.record("ListFiles")
	if err := m.check(); err != nil {
		return nil, err
	}
	if m.ListErr != nil {
		return nil, m.ListErr
	}

	out := make([]models.FileRecord, len(m.Files))
	for i, f := range m.Files {
		f.ProviderType = m.TypeName
		f.InstanceIndex = instanceIndex
		out[i] = f
	}
	return out, nil
}

func (m *MockProvider) Thumbnail(ctx context.Context, path string) models.Thumbnail {
	m.record("Thumbnail")
	if m.check() != nil {
		return models.FailedThumbnail(models.ThumbnailNotAuthenticated)
	}
	if thumb, ok := m.Thumbs[path]; ok {
		return thumb
	}
	return models.Thumbnail{Success: true, Data: []byte(m.TypeName + ":" + path), MimeType: "image/jpeg"}
}

func (m *MockProvider) Storage(ctx context.Context) (int64, error) {
	usage, err := m.Usage(ctx)
	if err != nil {
		return 0, err
	}
	return usage.Free(), nil
}

func (m *MockProvider) Usage(ctx context.Context) (models.StorageUsage, error) {
	m.record("Usage")
	if err := m.check(); err != nil {
		return models.StorageUsage{}, err
	}
	return m.Quota, nil
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

// WriteEnvFile writes content to a fresh credential file and returns its path.
func WriteEnvFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("Failed to write env file: %v", err)
	}
	return path
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
