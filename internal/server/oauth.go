package server

import (
	"context"
	"fmt"
	"html/template"
	"net/http"
	"sync"

	"github.com/desertthunder/skyroll/internal/models"
	"github.com/desertthunder/skyroll/internal/shared"
)

// Completer finishes an authorization started for the instance encoded in state.
type Completer interface {
	CompleteAuthorization(ctx context.Context, state, code string) (models.InstanceRef, error)
}

// OAuthResult contains the result of an OAuth authorization flow.
type OAuthResult struct {
	Ref models.InstanceRef
	err error
}

func (o *OAuthResult) Error() error {
	return o.err
}

// OAuthHandler handles a single OAuth callback for a command-line authorization.
// Implements the Handler interface for registration with a Router.
type OAuthHandler struct {
	completer   Completer
	state       string
	resultChan  chan OAuthResult
	once        sync.Once
	callbackHit bool
	mu          sync.Mutex
}

// NewOAuthHandler creates a handler that accepts one callback carrying state.
func NewOAuthHandler(completer Completer, state string) *OAuthHandler {
	return &OAuthHandler{
		completer:  completer,
		state:      state,
		resultChan: make(chan OAuthResult, 1),
	}
}

// Routes returns the HTTP routes this handler serves.
func (h *OAuthHandler) Routes() []string {
	return []string{"GET /oauth/callback"}
}

// ServeHTTP handles the OAuth callback request.
//
// Validates the state parameter, completes the authorization and sends the result through the result channel.
func (h *OAuthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	if h.callbackHit {
		h.mu.Unlock()
		http.Error(w, "Callback already processed", http.StatusBadRequest)
		return
	}
	h.callbackHit = true
	h.mu.Unlock()

	query := r.URL.Query()
	state := query.Get("state")
	if state != h.state {
		h.Send(OAuthResult{err: fmt.Errorf("%w: unexpected state %q", shared.ErrInvalidState, state)})
		http.Error(w, "Invalid state parameter", http.StatusBadRequest)
		return
	}

	code := query.Get("code")
	if code == "" {
		err := fmt.Errorf("%w: %s - %s", shared.ErrAuthFailed, query.Get("error"), query.Get("error_description"))
		h.Send(OAuthResult{err: err})
		http.Error(w, "Authorization failed", http.StatusBadRequest)
		return
	}

	ref, err := h.completer.CompleteAuthorization(r.Context(), state, code)
	if err != nil {
		h.Send(OAuthResult{Ref: ref, err: err})
		http.Error(w, "Authorization failed: "+err.Error(), statusFor(err))
		return
	}

	h.Send(OAuthResult{Ref: ref})
	writeSuccessPage(w, ref)
}

// Send sends the OAuth result through the channel (only once).
func (h *OAuthHandler) Send(result OAuthResult) {
	h.once.Do(func() {
		h.resultChan <- result
		close(h.resultChan)
	})
}

// Result returns the result channel for receiving OAuth flow completion.
//
// Channel will receive exactly one result and then be closed.
func (h *OAuthHandler) Result() <-chan OAuthResult {
	return h.resultChan
}

var successPage = template.Must(template.New("success").Parse(`<!DOCTYPE html>
<html>
<head>
    <title>Authorization Successful</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
               display: flex; align-items: center; justify-content: center; height: 100vh;
               margin: 0; background: #f5f5f5; }
        .container { text-align: center; background: white; padding: 2rem;
                     border-radius: 8px; box-shadow: 0 2px 4px rgba(0,0,0,0.1); }
        h1 { color: #0061fe; margin: 0 0 1rem 0; }
        p { color: #666; margin: 0; }
    </style>
</head>
<body>
    <div class="container">
        <h1>✓ Connected {{.}}</h1>
        <p>You can close this window and return to the gallery.</p>
    </div>
</body>
</html>
`))

func writeSuccessPage(w http.ResponseWriter, ref models.InstanceRef) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	successPage.Execute(w, ref.String())
}
