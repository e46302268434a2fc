package shared

import "fmt"

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig        = fmt.Errorf("configuration not found")
	ErrInvalidConfig        = fmt.Errorf("invalid configuration")
	ErrMissingCredentials   = fmt.Errorf("missing credentials")
	ErrInvalidCredentials   = fmt.Errorf("invalid credentials")
	ErrInvalidCredentialKey = fmt.Errorf("invalid credential key")

	// Authentication errors
	ErrAuthFailed        = fmt.Errorf("authentication failed")
	ErrNotAuthenticated  = fmt.Errorf("not authenticated")
	ErrTokenExpired      = fmt.Errorf("access token expired")
	ErrRefreshFailed     = fmt.Errorf("token refresh failed")
	ErrNoRefreshToken    = fmt.Errorf("no refresh token available")
	ErrReauthRequired    = fmt.Errorf("reauthorization required")
	ErrInvalidState      = fmt.Errorf("invalid oauth state")
	ErrInvalidTransition = fmt.Errorf("invalid credential state transition")
	ErrTimeout           = fmt.Errorf("operation timed out")

	// Lookup errors
	ErrUnsupportedProviderType = fmt.Errorf("unsupported provider type")
	ErrProviderNotFound        = fmt.Errorf("provider not found")
	ErrIndexOutOfRange         = fmt.Errorf("instance index out of range")
	ErrInstanceMissing         = fmt.Errorf("instance missing")
	ErrInstanceExists          = fmt.Errorf("instance already exists")

	// API and service errors
	ErrAPIRequest         = fmt.Errorf("API request failed")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)
