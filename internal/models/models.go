// package models defines the data model for the gallery service
package models

import (
	"fmt"
	"time"
)

// CredentialField names one of the four recognized credential values of an instance.
type CredentialField string

const (
	FieldAppKey       CredentialField = "appKey"
	FieldAppSecret    CredentialField = "appSecret"
	FieldAccessToken  CredentialField = "accessToken"
	FieldRefreshToken CredentialField = "refreshToken"
)

// CredentialFields lists every recognized field in persisted order.
var CredentialFields = []CredentialField{FieldAppKey, FieldAppSecret, FieldAccessToken, FieldRefreshToken}

// Credentials is the opaque credential bundle of a provider instance.
// Tokens stay empty until the instance has been authorized.
type Credentials struct {
	AppKey       string `json:"appKey"`
	AppSecret    string `json:"appSecret"`
	AccessToken  string `json:"accessToken,omitempty"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

// Get returns the value of field.
func (c Credentials) Get(field CredentialField) string {
	switch field {
	case FieldAppKey:
		return c.AppKey
	case FieldAppSecret:
		return c.AppSecret
	case FieldAccessToken:
		return c.AccessToken
	case FieldRefreshToken:
		return c.RefreshToken
	default:
		return ""
	}
}

// Configured reports whether the app key and secret are both present.
func (c Credentials) Configured() bool {
	return c.AppKey != "" && c.AppSecret != ""
}

// EnvKeys maps each credential field of one instance to its persisted key name.
type EnvKeys struct {
	AppKey       string
	AppSecret    string
	AccessToken  string
	RefreshToken string
}

// Key returns the persisted key name for field, or false if field is not recognized.
func (k EnvKeys) Key(field CredentialField) (string, bool) {
	switch field {
	case FieldAppKey:
		return k.AppKey, true
	case FieldAppSecret:
		return k.AppSecret, true
	case FieldAccessToken:
		return k.AccessToken, true
	case FieldRefreshToken:
		return k.RefreshToken, true
	default:
		return "", false
	}
}

// All returns the key names in [CredentialFields] order.
func (k EnvKeys) All() []string {
	return []string{k.AppKey, k.AppSecret, k.AccessToken, k.RefreshToken}
}

// InstanceRef identifies one provider instance.
type InstanceRef struct {
	ProviderType  string `json:"providerType"`
	InstanceIndex int    `json:"instanceIndex"`
}

func (r InstanceRef) String() string {
	return fmt.Sprintf("%s:%d", r.ProviderType, r.InstanceIndex)
}

// FileRecord is one remote file in the merged gallery index.
type FileRecord struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Path          string    `json:"path"`
	Timestamp     time.Time `json:"timestamp"`
	Size          int64     `json:"size"`
	ProviderType  string    `json:"providerType"`
	InstanceIndex int       `json:"instanceIndex"`
	ContentHash   string    `json:"contentHash,omitempty"`
}

// Ref returns the instance the record originates from.
func (f FileRecord) Ref() InstanceRef {
	return InstanceRef{ProviderType: f.ProviderType, InstanceIndex: f.InstanceIndex}
}

// AccountInfo reports the identity of the account behind an instance.
type AccountInfo struct {
	AccountID string `json:"accountId"`
	Name      string `json:"name"`
	Email     string `json:"email"`
}

// StorageUsage reports an account's quota in bytes.
type StorageUsage struct {
	Used      int64 `json:"used"`
	Allocated int64 `json:"allocated"`
}

// Free returns allocated minus used.
func (u StorageUsage) Free() int64 {
	return u.Allocated - u.Used
}

// TokenPair is the result of a successful authorization code exchange.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// RefreshResult is the discriminated outcome of a token refresh.
type RefreshResult struct {
	Success      bool
	AccessToken  string
	RefreshToken string
	Err          error
}

// ThumbnailError classifies why a thumbnail could not be produced.
type ThumbnailError string

const (
	ThumbnailNotFound         ThumbnailError = "not_found"
	ThumbnailUnsupportedType  ThumbnailError = "unsupported_type"
	ThumbnailConversionFailed ThumbnailError = "conversion_failed"
	ThumbnailNotAuthenticated ThumbnailError = "not_authenticated"
	ThumbnailUpstream         ThumbnailError = "upstream"
)

// Thumbnail is the per-item result of a thumbnail fetch.
type Thumbnail struct {
	Success  bool
	Data     []byte
	MimeType string
	Error    ThumbnailError
}

// FailedThumbnail builds an unsuccessful [Thumbnail] carrying reason.
func FailedThumbnail(reason ThumbnailError) Thumbnail {
	return Thumbnail{Success: false, Error: reason}
}

// ListingSnapshot records the outcome of the last completed listing of an instance.
type ListingSnapshot struct {
	ProviderType  string    `json:"providerType"`
	InstanceIndex int       `json:"instanceIndex"`
	FileCount     int       `json:"fileCount"`
	ImageCount    int       `json:"imageCount"`
	ListedAt      time.Time `json:"listedAt"`
}

// Ref returns the instance the snapshot describes.
func (s ListingSnapshot) Ref() InstanceRef {
	return InstanceRef{ProviderType: s.ProviderType, InstanceIndex: s.InstanceIndex}
}

// InstanceRefresh is the outcome of relisting one instance.
type InstanceRefresh struct {
	ProviderType  string `json:"providerType"`
	InstanceIndex int    `json:"instanceIndex"`
	Images        int    `json:"images"`
	Error         string `json:"error,omitempty"`
}

// Ref returns the instance that was relisted.
func (r InstanceRefresh) Ref() InstanceRef {
	return InstanceRef{ProviderType: r.ProviderType, InstanceIndex: r.InstanceIndex}
}

// RefreshReport summarizes a relisting of every instance.
type RefreshReport struct {
	StartedAt  time.Time         `json:"startedAt"`
	FinishedAt time.Time         `json:"finishedAt"`
	Total      int               `json:"total"`
	Succeeded  int               `json:"succeeded"`
	Failed     int               `json:"failed"`
	Records    int               `json:"records"`
	Instances  []InstanceRefresh `json:"instances"`
}
