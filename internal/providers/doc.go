// Package providers defines the [Provider] interface for cloud-storage backends and implements it for Dropbox.
//
// # Provider Interface
//
// A Provider wraps one authenticated account. The manager holds any number of instances per provider type,
// each identified by a zero-based instance index. Credentials for an instance live in the credential store
// under keys derived by [EnvKeysFor], e.g. DROPBOX_APP_KEY_0.
//
// # Registry
//
// [Registry] maps a closed set of provider type tags to factories. [DefaultRegistry] registers "dropbox".
// Unknown tags fail with [shared.ErrUnsupportedProviderType].
//
// # Dropbox Implementation
//
// [Dropbox] uses [oauth2] for the authorization URL, code exchange and token refresh.
// API calls go through a client carrying a static token, so expiry surfaces as [shared.ErrTokenExpired]
// and the caller decides when to refresh. Every outbound request waits on the shared rate limiter.
//
// # Error Handling
//
//   - [shared.ErrNotAuthenticated] : Authenticate() has not succeeded
//   - [shared.ErrTokenExpired] : the access token was rejected as expired
//   - [shared.ErrReauthRequired] : the refresh token was rejected, user interaction required
//   - [ExternalAuthError] : the upstream authorization server rejected an exchange
//
// Thumbnail never returns an error. Failures are reported through [models.Thumbnail.Error].
package providers
