package providers

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/skyroll/internal/models"
	"github.com/desertthunder/skyroll/internal/shared"
	"golang.org/x/time/rate"
)

// Provider is one authenticated cloud-storage account.
type Provider interface {
	// Type returns the provider type tag, e.g. "dropbox".
	Type() string

	// EnvKeys returns the credential store key names for instanceIndex.
	EnvKeys(instanceIndex int) models.EnvKeys

	// AuthorizationURL builds the user-facing consent URL.
	AuthorizationURL(appKey, redirectURI, state string) string

	// ExchangeCode trades an authorization code for a token pair.
	ExchangeCode(ctx context.Context, code, appKey, appSecret, redirectURI string) (models.TokenPair, error)

	// Authenticate adopts creds and reports whether the provider is now usable.
	Authenticate(ctx context.Context, creds models.Credentials) bool

	// RefreshToken obtains a new access token. It never panics and reports failure through the result.
	RefreshToken(ctx context.Context, creds models.Credentials, instanceIndex int) models.RefreshResult

	IsAuthenticated() bool

	AccountInfo(ctx context.Context) (models.AccountInfo, error)

	// ListFiles returns every file under folderPath, tagged with the provider type and instanceIndex.
	ListFiles(ctx context.Context, folderPath string, recursive bool, limit, instanceIndex int) ([]models.FileRecord, error)

	// Thumbnail fetches a preview for path. Failures are reported in the result, never as an error.
	Thumbnail(ctx context.Context, path string) models.Thumbnail

	// Storage returns the free space of the account in bytes.
	Storage(ctx context.Context) (int64, error)

	Usage(ctx context.Context) (models.StorageUsage, error)
}

// Options configures providers built by a [Registry].
//
// Zero values select production endpoints and [http.DefaultClient].
type Options struct {
	HTTPClient     *http.Client
	Limiter        *rate.Limiter
	Logger         *log.Logger
	APIBaseURL     string
	ContentBaseURL string
	AuthURL        string
	TokenURL       string
	ThumbnailSize  string
}

func (o Options) httpClient() *http.Client {
	if o.HTTPClient != nil {
		return o.HTTPClient
	}
	return http.DefaultClient
}

// Factory creates a provider from shared options.
type Factory func(opts Options) Provider

// Registry maps provider type tags to factories.
type Registry struct {
	opts      Options
	factories map[string]Factory
}

// NewRegistry creates an empty registry whose factories receive opts.
func NewRegistry(opts Options) *Registry {
	return &Registry{
		opts:      opts,
		factories: make(map[string]Factory),
	}
}

// DefaultRegistry returns a registry with every built-in provider registered.
func DefaultRegistry(opts Options) *Registry {
	r := NewRegistry(opts)
	r.Register(DropboxType, func(o Options) Provider { return NewDropbox(o) })
	return r
}

// Register adds a factory for providerType, replacing any previous one.
func (r *Registry) Register(providerType string, factory Factory) {
	r.factories[providerType] = factory
}

// New builds a fresh provider of providerType.
func (r *Registry) New(providerType string) (Provider, error) {
	factory, ok := r.factories[providerType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", shared.ErrUnsupportedProviderType, providerType)
	}
	return factory(r.opts), nil
}

// Supports reports whether providerType is registered.
func (r *Registry) Supports(providerType string) bool {
	_, ok := r.factories[providerType]
	return ok
}

// Types returns the registered provider types in sorted order.
func (r *Registry) Types() []string {
	types := make([]string, 0, len(r.factories))
	for t := range r.factories {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// EnvKeysFor derives the credential key names of one instance: upper(type) + field + "_" + index.
func EnvKeysFor(providerType string, instanceIndex int) models.EnvKeys {
	prefix := strings.ToUpper(providerType)
	return models.EnvKeys{
		AppKey:       fmt.Sprintf("%s_APP_KEY_%d", prefix, instanceIndex),
		AppSecret:    fmt.Sprintf("%s_APP_SECRET_%d", prefix, instanceIndex),
		AccessToken:  fmt.Sprintf("%s_ACCESS_TOKEN_%d", prefix, instanceIndex),
		RefreshToken: fmt.Sprintf("%s_REFRESH_TOKEN_%d", prefix, instanceIndex),
	}
}

// AppKeyPattern matches the app key names of every instance of providerType and captures the index.
func AppKeyPattern(providerType string) *regexp.Regexp {
	return regexp.MustCompile(`^` + regexp.QuoteMeta(strings.ToUpper(providerType)) + `_APP_KEY_(\d+)$`)
}

// KeyPattern matches every credential key of providerType, capturing the field prefix and the index.
func KeyPattern(providerType string) *regexp.Regexp {
	prefix := regexp.QuoteMeta(strings.ToUpper(providerType))
	return regexp.MustCompile(`^(` + prefix + `_(?:APP_KEY|APP_SECRET|ACCESS_TOKEN|REFRESH_TOKEN)_)(\d+)$`)
}
