package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/skyroll/internal/manager"
	"github.com/desertthunder/skyroll/internal/models"
	"github.com/desertthunder/skyroll/internal/shared"
	"github.com/desertthunder/skyroll/internal/tasks"
)

const (
	maxBodyBytes    = 1 << 20
	maxPageSize     = 200
	defaultPageSize = 20
)

// AddProviderRequest is the body of POST /api/providers.
type AddProviderRequest struct {
	ProviderType string `json:"providerType"`
	Credentials  struct {
		AppKey    string `json:"appKey"`
		AppSecret string `json:"appSecret"`
	} `json:"credentials"`
}

// InstanceRequest names one instance. It is the body of DELETE /api/providers and POST /oauth/refresh.
type InstanceRequest struct {
	ProviderType  string `json:"providerType"`
	InstanceIndex *int   `json:"instanceIndex"`
}

// AddProviderResponse describes a newly connected instance and where to authorize it.
type AddProviderResponse struct {
	ProviderType  string `json:"providerType"`
	InstanceIndex int    `json:"instanceIndex"`
	State         string `json:"state"`
	AuthorizeURL  string `json:"authorizeUrl"`
}

// API exposes the provider manager over HTTP.
type API struct {
	manager   *manager.Manager
	refresher *tasks.Refresher
	logger    *log.Logger
	pageSize  int
}

// NewAPI creates the HTTP adapter. pageSize is the thumbnail page size used when a request names none.
func NewAPI(m *manager.Manager, refresher *tasks.Refresher, logger *log.Logger, pageSize int) *API {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &API{
		manager:   m,
		refresher: refresher,
		logger:    shared.WithLogger(logger, "component", "api"),
		pageSize:  pageSize,
	}
}

// Register adds every route to router.
func (a *API) Register(router Router) {
	router.Handle(http.MethodGet, "/api/providers", http.HandlerFunc(a.listProviders))
	router.Handle(http.MethodPost, "/api/providers", http.HandlerFunc(a.addProvider))
	router.Handle(http.MethodDelete, "/api/providers", http.HandlerFunc(a.removeProvider))
	router.Handle(http.MethodGet, "/api/providers/storage", http.HandlerFunc(a.storage))
	router.Handle(http.MethodGet, "/api/thumbnails", http.HandlerFunc(a.thumbnails))
	router.Handle(http.MethodPost, "/api/refresh", http.HandlerFunc(a.refreshAll))
	router.Handle(http.MethodGet, "/oauth/authorize", http.HandlerFunc(a.authorize))
	router.Handle(http.MethodGet, "/oauth/callback", http.HandlerFunc(a.callback))
	router.Handle(http.MethodPost, "/oauth/refresh", http.HandlerFunc(a.refreshToken))
	router.Handle(http.MethodGet, "/health", http.HandlerFunc(a.health))
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: malformed request body: %v", shared.ErrInvalidInput, err)
	}
	return nil
}

// queryInt reads a non-negative integer query parameter, returning def when absent.
func queryInt(q url.Values, name string, def int) (int, error) {
	raw := q.Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", shared.ErrInvalidArgument, name)
	}
	return n, nil
}

// instanceQuery reads providerType and instanceIndex, both required.
func instanceQuery(q url.Values) (string, int, error) {
	providerType := q.Get("providerType")
	if providerType == "" || q.Get("instanceIndex") == "" {
		return "", 0, fmt.Errorf("%w: providerType and instanceIndex", shared.ErrMissingArgument)
	}
	idx, err := queryInt(q, "instanceIndex", 0)
	return providerType, idx, err
}

func (req InstanceRequest) validate() error {
	if req.ProviderType == "" || req.InstanceIndex == nil {
		return fmt.Errorf("%w: providerType and instanceIndex", shared.ErrMissingArgument)
	}
	return nil
}

func (a *API) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "images": a.manager.Merger().Len()})
}

func (a *API) listProviders(w http.ResponseWriter, r *http.Request) {
	withAccount := r.URL.Query().Get("account") != "false"

	statuses := a.manager.Providers(r.Context(), withAccount)
	if statuses == nil {
		statuses = []manager.ProviderStatus{}
	}
	writeJSON(w, http.StatusOK, statuses)
}

func (a *API) addProvider(w http.ResponseWriter, r *http.Request) {
	var req AddProviderRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, a.logger, err)
		return
	}
	if req.ProviderType == "" {
		writeError(w, a.logger, fmt.Errorf("%w: providerType", shared.ErrMissingArgument))
		return
	}

	inst, idx, err := a.manager.Connect(r.Context(), req.ProviderType, req.Credentials.AppKey, req.Credentials.AppSecret)
	if err != nil {
		writeError(w, a.logger, err)
		return
	}

	authorize := url.Values{"providerType": {req.ProviderType}, "instanceIndex": {strconv.Itoa(idx)}}
	writeJSON(w, http.StatusCreated, AddProviderResponse{
		ProviderType:  req.ProviderType,
		InstanceIndex: idx,
		State:         inst.Auth.State().String(),
		AuthorizeURL:  "/oauth/authorize?" + authorize.Encode(),
	})
}

func (a *API) removeProvider(w http.ResponseWriter, r *http.Request) {
	var req InstanceRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, a.logger, err)
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, a.logger, err)
		return
	}

	if err := a.manager.RemoveProvider(r.Context(), req.ProviderType, *req.InstanceIndex); err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"removed": models.InstanceRef{ProviderType: req.ProviderType, InstanceIndex: *req.InstanceIndex}})
}

func (a *API) storage(w http.ResponseWriter, r *http.Request) {
	providerType, idx, err := instanceQuery(r.URL.Query())
	if err != nil {
		writeError(w, a.logger, err)
		return
	}

	usage, err := a.manager.Storage(r.Context(), providerType, idx)
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"used": usage.Used, "allocated": usage.Allocated, "free": usage.Free()})
}

func (a *API) thumbnails(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	index, err := queryInt(q, "index", 0)
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	size, err := queryInt(q, "size", a.pageSize)
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	if size == 0 || size > maxPageSize {
		writeError(w, a.logger, fmt.Errorf("%w: size must be between 1 and %d", shared.ErrInvalidArgument, maxPageSize))
		return
	}

	items := a.manager.Thumbnails(r.Context(), index, size)
	if items == nil {
		items = []manager.ThumbnailItem{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (a *API) refreshAll(w http.ResponseWriter, r *http.Request) {
	if a.refresher == nil {
		writeError(w, a.logger, fmt.Errorf("%w: refresher", shared.ErrServiceUnavailable))
		return
	}

	report, err := a.refresher.Run(r.Context(), nil, tasks.RefreshOpts{ProviderType: r.URL.Query().Get("providerType")})
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (a *API) authorize(w http.ResponseWriter, r *http.Request) {
	providerType, idx, err := instanceQuery(r.URL.Query())
	if err != nil {
		writeError(w, a.logger, err)
		return
	}

	authURL, err := a.manager.AuthorizationURL(providerType, idx)
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	http.Redirect(w, r, authURL, http.StatusFound)
}

func (a *API) callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("code") == "" {
		err := fmt.Errorf("%w: %s - %s", shared.ErrAuthFailed, q.Get("error"), q.Get("error_description"))
		a.logger.Warn("authorization denied", "state", q.Get("state"), "error", q.Get("error"))
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error(), Reason: q.Get("error")})
		return
	}

	ref, err := a.manager.CompleteAuthorization(r.Context(), q.Get("state"), q.Get("code"))
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeSuccessPage(w, ref)
}

func (a *API) refreshToken(w http.ResponseWriter, r *http.Request) {
	var req InstanceRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, a.logger, err)
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, a.logger, err)
		return
	}

	if err := a.manager.RefreshToken(r.Context(), req.ProviderType, *req.InstanceIndex); err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"refreshed": models.InstanceRef{ProviderType: req.ProviderType, InstanceIndex: *req.InstanceIndex}})
}

// HandlerOptions configures [NewHandler].
type HandlerOptions struct {
	Logger         *log.Logger
	Limiter        *RateLimiter
	RequestTimeout time.Duration
}

// NewHandler wraps the API routes in recovery, request logging, optional per-IP rate limiting and an
// optional request timeout, in that order from the outside in.
func NewHandler(api *API, opts HandlerOptions) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}

	router := NewBasicRouter()
	router.Use(Recover(logger), Logging(logger))
	if opts.Limiter != nil {
		router.Use(opts.Limiter.Limit)
	}
	if opts.RequestTimeout > 0 {
		router.Use(Timeout(opts.RequestTimeout))
	}
	api.Register(router)
	return router
}
