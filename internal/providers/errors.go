package providers

import (
	"errors"
	"fmt"
	"strings"

	"github.com/desertthunder/skyroll/internal/shared"
	"golang.org/x/oauth2"
)

// Reasons reported by [ExternalAuthError].
const (
	ReasonCodeExpired         = "code_expired_or_used"
	ReasonRedirectURIMismatch = "redirect_uri_mismatch"
	ReasonInvalidClient       = "invalid_client"
	ReasonUpstream            = "upstream"
)

// ExternalAuthError reports that the upstream authorization server rejected a request.
type ExternalAuthError struct {
	Provider string
	Reason   string
	Message  string
	Err      error
}

func (e *ExternalAuthError) Error() string {
	return fmt.Sprintf("%s authorization failed (%s): %s", e.Provider, e.Reason, e.Message)
}

// Unwrap exposes both [shared.ErrAuthFailed] and the underlying cause.
func (e *ExternalAuthError) Unwrap() []error {
	if e.Err == nil {
		return []error{shared.ErrAuthFailed}
	}
	return []error{shared.ErrAuthFailed, e.Err}
}

// classifyExchangeError turns an oauth2 exchange failure into an [ExternalAuthError].
func classifyExchangeError(provider string, err error) *ExternalAuthError {
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) {
		return &ExternalAuthError{
			Provider: provider,
			Reason:   ReasonUpstream,
			Message:  "could not reach the authorization server",
			Err:      err,
		}
	}

	desc := strings.ToLower(re.ErrorDescription + " " + string(re.Body))
	switch {
	case strings.Contains(desc, "redirect_uri"):
		return &ExternalAuthError{
			Provider: provider,
			Reason:   ReasonRedirectURIMismatch,
			Message:  "the redirect URI does not match the one registered for this app",
			Err:      err,
		}
	case re.ErrorCode == "invalid_grant":
		return &ExternalAuthError{
			Provider: provider,
			Reason:   ReasonCodeExpired,
			Message:  "the authorization code has expired or was already used, start the authorization again",
			Err:      err,
		}
	case re.ErrorCode == "invalid_client" || re.ErrorCode == "unauthorized_client":
		return &ExternalAuthError{
			Provider: provider,
			Reason:   ReasonInvalidClient,
			Message:  "the app key or app secret was rejected",
			Err:      err,
		}
	default:
		return &ExternalAuthError{
			Provider: provider,
			Reason:   ReasonUpstream,
			Message:  fmt.Sprintf("authorization server returned %q", re.ErrorCode),
			Err:      err,
		}
	}
}

// isInvalidGrant reports whether err is an oauth2 invalid_grant rejection.
func isInvalidGrant(err error) bool {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		return re.ErrorCode == "invalid_grant" || strings.Contains(string(re.Body), "invalid_grant")
	}
	return false
}
