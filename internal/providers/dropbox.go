// Dropbox API implementation of [Provider]
//
// Endpoint shapes based on https://www.dropbox.com/developers/documentation/http/documentation
package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode/utf16"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/skyroll/internal/models"
	"github.com/desertthunder/skyroll/internal/shared"
	"golang.org/x/oauth2"
)

// DropboxType is the provider type tag for Dropbox.
const DropboxType = "dropbox"

const (
	dropboxAuthURL        = "https://www.dropbox.com/oauth2/authorize"
	dropboxTokenURL       = "https://api.dropboxapi.com/oauth2/token"
	dropboxAPIBaseURL     = "https://api.dropboxapi.com"
	dropboxContentBaseURL = "https://content.dropboxapi.com"
	dropboxThumbnailSize  = "w256h256"
	dropboxMaxListLimit   = 2000
)

// DropboxEntry is one item of a list_folder response.
type DropboxEntry struct {
	Tag            string `json:".tag"`
	ID             string `json:"id"`
	Name           string `json:"name"`
	PathDisplay    string `json:"path_display"`
	PathLower      string `json:"path_lower"`
	ClientModified string `json:"client_modified"`
	ServerModified string `json:"server_modified"`
	Size           int64  `json:"size"`
	ContentHash    string `json:"content_hash"`
}

// DropboxListFolderResponse is the page shape of list_folder and list_folder/continue.
type DropboxListFolderResponse struct {
	Entries []DropboxEntry `json:"entries"`
	Cursor  string         `json:"cursor"`
	HasMore bool           `json:"has_more"`
}

// DropboxAccount is the subset of get_current_account the gallery reports.
type DropboxAccount struct {
	AccountID string `json:"account_id"`
	Name      struct {
		DisplayName string `json:"display_name"`
	} `json:"name"`
	Email string `json:"email"`
}

// DropboxSpaceUsage is the get_space_usage response.
type DropboxSpaceUsage struct {
	Used       int64 `json:"used"`
	Allocation struct {
		Tag       string `json:".tag"`
		Allocated int64  `json:"allocated"`
	} `json:"allocation"`
}

type dropboxError struct {
	ErrorSummary string `json:"error_summary"`
}

type listFolderArg struct {
	Path      string `json:"path"`
	Recursive bool   `json:"recursive"`
	Limit     int    `json:"limit,omitempty"`
}

type listFolderContinueArg struct {
	Cursor string `json:"cursor"`
}

type thumbnailResource struct {
	Tag  string `json:".tag"`
	Path string `json:"path"`
}

type thumbnailArg struct {
	Resource thumbnailResource `json:"resource"`
	Format   string            `json:"format"`
	Size     string            `json:"size"`
	Mode     string            `json:"mode"`
}

// Dropbox implements [Provider] for one Dropbox account.
type Dropbox struct {
	opts   Options
	logger *log.Logger

	mu     sync.RWMutex
	client *http.Client
	creds  models.Credentials
}

// NewDropbox creates an unauthenticated Dropbox provider.
func NewDropbox(opts Options) *Dropbox {
	if opts.APIBaseURL == "" {
		opts.APIBaseURL = dropboxAPIBaseURL
	}
	if opts.ContentBaseURL == "" {
		opts.ContentBaseURL = dropboxContentBaseURL
	}
	if opts.AuthURL == "" {
		opts.AuthURL = dropboxAuthURL
	}
	if opts.TokenURL == "" {
		opts.TokenURL = dropboxTokenURL
	}
	if opts.ThumbnailSize == "" {
		opts.ThumbnailSize = dropboxThumbnailSize
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}

	return &Dropbox{opts: opts, logger: logger.With("provider", DropboxType)}
}

func (d *Dropbox) Type() string {
	return DropboxType
}

func (d *Dropbox) EnvKeys(instanceIndex int) models.EnvKeys {
	return EnvKeysFor(DropboxType, instanceIndex)
}

func (d *Dropbox) oauthConfig(appKey, appSecret, redirectURI string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     appKey,
		ClientSecret: appSecret,
		RedirectURL:  redirectURI,
		Endpoint: oauth2.Endpoint{
			AuthURL:   d.opts.AuthURL,
			TokenURL:  d.opts.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// oauthContext makes the oauth2 package use the injected HTTP client.
func (d *Dropbox) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, d.opts.httpClient())
}

// AuthorizationURL returns the consent URL requesting an offline (refreshable) token.
func (d *Dropbox) AuthorizationURL(appKey, redirectURI, state string) string {
	return d.oauthConfig(appKey, "", redirectURI).AuthCodeURL(state, oauth2.SetAuthURLParam("token_access_type", "offline"))
}

// ExchangeCode trades an authorization code for access and refresh tokens.
func (d *Dropbox) ExchangeCode(ctx context.Context, code, appKey, appSecret, redirectURI string) (models.TokenPair, error) {
	if err := d.wait(ctx); err != nil {
		return models.TokenPair{}, err
	}

	token, err := d.oauthConfig(appKey, appSecret, redirectURI).Exchange(d.oauthContext(ctx), code)
	if err != nil {
		return models.TokenPair{}, classifyExchangeError(DropboxType, err)
	}

	return models.TokenPair{AccessToken: token.AccessToken, RefreshToken: token.RefreshToken}, nil
}

// Authenticate adopts creds when the app key, app secret and access token are all present.
func (d *Dropbox) Authenticate(ctx context.Context, creds models.Credentials) bool {
	if !creds.Configured() || creds.AccessToken == "" {
		return false
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.creds = creds
	d.client = d.newClient(ctx, creds.AccessToken)
	return true
}

// newClient builds a client with a static token so expiry is reported rather than silently refreshed.
func (d *Dropbox) newClient(ctx context.Context, accessToken string) *http.Client {
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"})
	return oauth2.NewClient(d.oauthContext(context.WithoutCancel(ctx)), src)
}

// RefreshToken exchanges the refresh token for a new access token and adopts it on success.
func (d *Dropbox) RefreshToken(ctx context.Context, creds models.Credentials, instanceIndex int) models.RefreshResult {
	if creds.RefreshToken == "" {
		return models.RefreshResult{Err: shared.ErrNoRefreshToken}
	}
	if err := d.wait(ctx); err != nil {
		return models.RefreshResult{Err: fmt.Errorf("%w: %v", shared.ErrRefreshFailed, err)}
	}

	src := d.oauthConfig(creds.AppKey, creds.AppSecret, "").TokenSource(d.oauthContext(ctx), &oauth2.Token{RefreshToken: creds.RefreshToken})
	token, err := src.Token()
	if err != nil {
		if isInvalidGrant(err) {
			d.logger.Warn("refresh token rejected", "instance", instanceIndex)
			d.mu.Lock()
			d.client = nil
			d.mu.Unlock()
			return models.RefreshResult{Err: fmt.Errorf("%w: refresh token is invalid", shared.ErrReauthRequired)}
		}
		return models.RefreshResult{Err: fmt.Errorf("%w: %v", shared.ErrRefreshFailed, err)}
	}

	refresh := token.RefreshToken
	if refresh == "" {
		refresh = creds.RefreshToken
	}

	creds.AccessToken = token.AccessToken
	creds.RefreshToken = refresh

	d.mu.Lock()
	d.creds = creds
	d.client = d.newClient(ctx, token.AccessToken)
	d.mu.Unlock()

	d.logger.Debug("access token refreshed", "instance", instanceIndex)
	return models.RefreshResult{Success: true, AccessToken: token.AccessToken, RefreshToken: refresh}
}

func (d *Dropbox) IsAuthenticated() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.client != nil
}

func (d *Dropbox) authedClient() (*http.Client, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.client == nil {
		return nil, shared.ErrNotAuthenticated
	}
	return d.client, nil
}

func (d *Dropbox) wait(ctx context.Context) error {
	if d.opts.Limiter == nil {
		return nil
	}
	if err := d.opts.Limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrTimeout, err)
	}
	return nil
}

// rpc performs a JSON-in JSON-out call against the API host.
func (d *Dropbox) rpc(ctx context.Context, endpoint string, arg, result any) error {
	client, err := d.authedClient()
	if err != nil {
		return err
	}
	if err := d.wait(ctx); err != nil {
		return err
	}

	body := []byte("null")
	if arg != nil {
		if body, err = json.Marshal(arg); err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.opts.APIBaseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return d.statusError(endpoint, resp)
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// statusError maps a non-2xx response onto the shared sentinels.
func (d *Dropbox) statusError(endpoint string, resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	summary := errorSummary(data)

	switch {
	case resp.StatusCode == http.StatusUnauthorized && strings.HasPrefix(summary, "expired_access_token"):
		return fmt.Errorf("%w: %s", shared.ErrTokenExpired, endpoint)
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%w: %s: %s", shared.ErrNotAuthenticated, endpoint, summary)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("%w: dropbox %s returned status %d", shared.ErrServiceUnavailable, endpoint, resp.StatusCode)
	default:
		return fmt.Errorf("%w: dropbox %s returned status %d: %s", shared.ErrAPIRequest, endpoint, resp.StatusCode, summary)
	}
}

func errorSummary(data []byte) string {
	var e dropboxError
	if err := json.Unmarshal(data, &e); err == nil && e.ErrorSummary != "" {
		return e.ErrorSummary
	}
	return strings.TrimSpace(string(data))
}

func (d *Dropbox) AccountInfo(ctx context.Context) (models.AccountInfo, error) {
	var account DropboxAccount
	if err := d.rpc(ctx, "/2/users/get_current_account", nil, &account); err != nil {
		return models.AccountInfo{}, err
	}
	return models.AccountInfo{
		AccountID: account.AccountID,
		Name:      account.Name.DisplayName,
		Email:     account.Email,
	}, nil
}

// ListFiles follows list_folder cursors until has_more is false and returns every file entry.
//
// Folders and deleted entries are skipped. limit is the per-page hint sent upstream.
func (d *Dropbox) ListFiles(ctx context.Context, folderPath string, recursive bool, limit, instanceIndex int) ([]models.FileRecord, error) {
	if folderPath == "/" {
		folderPath = ""
	}
	if limit <= 0 || limit > dropboxMaxListLimit {
		limit = dropboxMaxListLimit
	}

	var page DropboxListFolderResponse
	if err := d.rpc(ctx, "/2/files/list_folder", listFolderArg{Path: folderPath, Recursive: recursive, Limit: limit}, &page); err != nil {
		return nil, err
	}

	var records []models.FileRecord
	for {
		for _, entry := range page.Entries {
			if entry.Tag != "file" {
				continue
			}
			records = append(records, entry.record(instanceIndex))
		}

		if !page.HasMore {
			break
		}

		cursor := page.Cursor
		page = DropboxListFolderResponse{}
		if err := d.rpc(ctx, "/2/files/list_folder/continue", listFolderContinueArg{Cursor: cursor}, &page); err != nil {
			return nil, err
		}
	}

	d.logger.Debug("listed folder", "instance", instanceIndex, "path", folderPath, "files", len(records))
	return records, nil
}

func (e DropboxEntry) record(instanceIndex int) models.FileRecord {
	path := e.PathDisplay
	if path == "" {
		path = e.PathLower
	}
	return models.FileRecord{
		ID:            e.ID,
		Name:          e.Name,
		Path:          path,
		Timestamp:     e.timestamp(),
		Size:          e.Size,
		ProviderType:  DropboxType,
		InstanceIndex: instanceIndex,
		ContentHash:   e.ContentHash,
	}
}

// timestamp prefers client_modified, falling back to server_modified.
func (e DropboxEntry) timestamp() time.Time {
	for _, v := range []string{e.ClientModified, e.ServerModified} {
		if v == "" {
			continue
		}
		if ts, err := time.Parse(time.RFC3339, v); err == nil {
			return ts
		}
	}
	return time.Time{}
}

// Thumbnail fetches a JPEG preview from the content host.
func (d *Dropbox) Thumbnail(ctx context.Context, path string) models.Thumbnail {
	client, err := d.authedClient()
	if err != nil {
		return models.FailedThumbnail(models.ThumbnailNotAuthenticated)
	}
	if err := d.wait(ctx); err != nil {
		return models.FailedThumbnail(models.ThumbnailUpstream)
	}

	arg, err := headerJSON(thumbnailArg{
		Resource: thumbnailResource{Tag: "path", Path: path},
		Format:   "jpeg",
		Size:     d.opts.ThumbnailSize,
		Mode:     "strict",
	})
	if err != nil {
		return models.FailedThumbnail(models.ThumbnailUpstream)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.opts.ContentBaseURL+"/2/files/get_thumbnail_v2", nil)
	if err != nil {
		return models.FailedThumbnail(models.ThumbnailUpstream)
	}
	req.Header.Set("Dropbox-API-Arg", arg)

	resp, err := client.Do(req)
	if err != nil {
		d.logger.Warn("thumbnail request failed", "path", path, "error", err)
		return models.FailedThumbnail(models.ThumbnailUpstream)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return models.FailedThumbnail(models.ThumbnailUpstream)
		}
		return models.Thumbnail{Success: true, Data: data, MimeType: "image/jpeg"}
	case resp.StatusCode == http.StatusUnauthorized:
		return models.FailedThumbnail(models.ThumbnailNotAuthenticated)
	case resp.StatusCode == http.StatusConflict:
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return models.FailedThumbnail(classifyThumbnailError(errorSummary(data)))
	default:
		return models.FailedThumbnail(models.ThumbnailUpstream)
	}
}

func classifyThumbnailError(summary string) models.ThumbnailError {
	switch {
	case strings.Contains(summary, "not_found"):
		return models.ThumbnailNotFound
	case strings.Contains(summary, "unsupported_extension"), strings.Contains(summary, "unsupported_image"):
		return models.ThumbnailUnsupportedType
	case strings.Contains(summary, "conversion_error"):
		return models.ThumbnailConversionFailed
	default:
		return models.ThumbnailUpstream
	}
}

// headerJSON encodes v for the Dropbox-API-Arg header, escaping non-ASCII runes as \uXXXX.
func headerJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for _, r := range string(data) {
		if r < 0x80 {
			b.WriteRune(r)
			continue
		}
		for _, u := range utf16.Encode([]rune{r}) {
			fmt.Fprintf(&b, `\u%04x`, u)
		}
	}
	return b.String(), nil
}

func (d *Dropbox) Usage(ctx context.Context) (models.StorageUsage, error) {
	var usage DropboxSpaceUsage
	if err := d.rpc(ctx, "/2/users/get_space_usage", nil, &usage); err != nil {
		return models.StorageUsage{}, err
	}
	return models.StorageUsage{Used: usage.Used, Allocated: usage.Allocation.Allocated}, nil
}

func (d *Dropbox) Storage(ctx context.Context) (int64, error) {
	usage, err := d.Usage(ctx)
	if err != nil {
		return 0, err
	}
	return usage.Free(), nil
}
