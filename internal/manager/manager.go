// Package manager owns every provider instance and keeps the in-memory instance lists, the credential
// store and the gallery index consistent with each other.
//
// # Instances
//
// Instances are grouped by provider type and addressed by a zero-based index. An explicit-index add may
// leave holes (nil slots). Holes are reported as [shared.ErrInstanceMissing].
//
// # Removal
//
// Removing an instance shifts every later instance of the same type down by one. The credential store,
// the gallery index and the repositories are renumbered in this order:
//
//  1. rewrite the credential store (delete the instance's keys, decrement higher suffixes)
//  2. drop the instance's records from the index using the old index
//  3. purge and renumber cached thumbnails and listing snapshots
//  4. shrink the in-memory list
//  5. renumber the remaining index records
//
// A failure in step 1 aborts the removal with nothing changed.
//
// # Locking
//
// Every operation that reads or writes an instance list holds that provider type's lock for its whole
// duration, including network calls. Operations that span types acquire the locks in sorted order.
package manager

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/skyroll/internal/envstore"
	"github.com/desertthunder/skyroll/internal/gallery"
	"github.com/desertthunder/skyroll/internal/lifecycle"
	"github.com/desertthunder/skyroll/internal/models"
	"github.com/desertthunder/skyroll/internal/providers"
	"github.com/desertthunder/skyroll/internal/shared"
)

const defaultThumbnailWorkers = 8

// ThumbnailCache stores successful thumbnails per instance.
type ThumbnailCache interface {
	Get(ctx context.Context, ref models.InstanceRef, path, size string) (models.Thumbnail, error)
	Put(ctx context.Context, ref models.InstanceRef, path, size string, thumb models.Thumbnail) error
	RemoveInstance(ctx context.Context, providerType string, removedIndex int) (int64, error)
}

// SnapshotStore records the outcome of each listing.
type SnapshotStore interface {
	Record(ctx context.Context, s models.ListingSnapshot) error
	RemoveInstance(ctx context.Context, providerType string, removedIndex int) (int64, error)
}

// Options wires the manager's collaborators. Store, Registry and Merger are required.
type Options struct {
	Store     *envstore.Store
	Registry  *providers.Registry
	Merger    *gallery.Merger
	Cache     ThumbnailCache
	Snapshots SnapshotStore
	Logger    *log.Logger

	RedirectURI      string
	RootPath         string
	Recursive        bool
	ListLimit        int
	ThumbnailSize    string
	ThumbnailWorkers int
}

// Instance is one provider account and its credential state.
type Instance struct {
	Provider providers.Provider
	Auth     *lifecycle.Machine
}

// Manager is the registry of provider instances.
type Manager struct {
	opts     Options
	store    *envstore.Store
	registry *providers.Registry
	merger   *gallery.Merger
	logger   *log.Logger

	guard     sync.Mutex
	locks     map[string]*sync.Mutex
	instances map[string][]*Instance

	initOnce sync.Once
	initErr  error
}

// New creates a manager. Call [Manager.Initialize] to restore instances from the credential store.
func New(opts Options) (*Manager, error) {
	if opts.Store == nil || opts.Registry == nil || opts.Merger == nil {
		return nil, fmt.Errorf("%w: store, registry and merger are required", shared.ErrMissingArgument)
	}
	if opts.ThumbnailWorkers <= 0 {
		opts.ThumbnailWorkers = defaultThumbnailWorkers
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}

	return &Manager{
		opts:      opts,
		store:     opts.Store,
		registry:  opts.Registry,
		merger:    opts.Merger,
		logger:    shared.WithLogger(logger, "component", "manager"),
		locks:     make(map[string]*sync.Mutex),
		instances: make(map[string][]*Instance),
	}, nil
}

// Merger returns the gallery index the manager feeds.
func (m *Manager) Merger() *gallery.Merger {
	return m.merger
}

// Types returns the supported provider types.
func (m *Manager) Types() []string {
	return m.registry.Types()
}

func (m *Manager) typeLock(providerType string) *sync.Mutex {
	m.guard.Lock()
	defer m.guard.Unlock()

	lock, ok := m.locks[providerType]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[providerType] = lock
	}
	return lock
}

// lockAll acquires every type lock in sorted order and returns the matching unlock.
func (m *Manager) lockAll() func() {
	types := m.registry.Types()
	locks := make([]*sync.Mutex, len(types))
	for i, t := range types {
		locks[i] = m.typeLock(t)
		locks[i].Lock()
	}
	return func() {
		for i := len(locks) - 1; i >= 0; i-- {
			locks[i].Unlock()
		}
	}
}

func (m *Manager) list(providerType string) []*Instance {
	m.guard.Lock()
	defer m.guard.Unlock()
	return m.instances[providerType]
}

func (m *Manager) setList(providerType string, list []*Instance) {
	m.guard.Lock()
	defer m.guard.Unlock()
	m.instances[providerType] = list
}

// Count returns the length of a type's instance list, holes included.
func (m *Manager) Count(providerType string) int {
	return len(m.list(providerType))
}

func instanceLogger(logger *log.Logger, ref models.InstanceRef) *log.Logger {
	return logger.With("provider", ref.String())
}

// Initialize restores every instance that has an app key in the credential store. It runs at most once.
//
// For each supported type, instances 0..max are created, where max is the highest index found among the
// type's app key names. Failures of individual instances are logged and skipped.
func (m *Manager) Initialize(ctx context.Context) error {
	m.initOnce.Do(func() {
		m.initErr = m.initialize(ctx)
	})
	return m.initErr
}

func (m *Manager) initialize(ctx context.Context) error {
	keys, err := m.store.Keys()
	if err != nil {
		return fmt.Errorf("failed to scan credential store: %w", err)
	}

	for _, providerType := range m.registry.Types() {
		pattern := providers.AppKeyPattern(providerType)
		highest := -1
		for _, key := range keys {
			match := pattern.FindStringSubmatch(key)
			if match == nil {
				continue
			}
			if idx, err := strconv.Atoi(match[1]); err == nil && idx > highest {
				highest = idx
			}
		}

		for i := 0; i <= highest; i++ {
			idx := i
			inst, err := m.AddProvider(ctx, providerType, &idx)
			if err != nil {
				m.logger.Warn("skipping instance", "type", providerType, "index", idx, "error", err)
				continue
			}
			m.logger.Debug("restored instance", "type", providerType, "index", idx, "state", inst.Auth.State())
		}
	}

	m.logger.Info("initialized", "records", m.merger.Len())
	return nil
}

// AddProvider creates an instance of providerType, authenticates it from the credential store and, on
// success, lists its files into the gallery index.
//
// A nil index appends. An explicit index may fill a hole or extend the list with holes; an occupied slot
// fails with [shared.ErrInstanceExists]. Authentication and listing failures do not fail the add.
func (m *Manager) AddProvider(ctx context.Context, providerType string, index *int) (*Instance, error) {
	lock := m.typeLock(providerType)
	lock.Lock()
	defer lock.Unlock()

	inst, _, err := m.addProvider(ctx, providerType, index)
	return inst, err
}

func (m *Manager) addProvider(ctx context.Context, providerType string, index *int) (*Instance, int, error) {
	provider, err := m.registry.New(providerType)
	if err != nil {
		return nil, 0, err
	}
	inst := &Instance{Provider: provider, Auth: lifecycle.New()}

	list := m.list(providerType)
	var idx int
	switch {
	case index == nil:
		idx = len(list)
		list = append(list, inst)
	case *index < 0:
		return nil, 0, fmt.Errorf("%w: instance index %d", shared.ErrInvalidArgument, *index)
	case *index < len(list):
		idx = *index
		if list[idx] != nil {
			return nil, 0, fmt.Errorf("%w: %s:%d", shared.ErrInstanceExists, providerType, idx)
		}
		list[idx] = inst
	default:
		idx = *index
		for len(list) < idx {
			list = append(list, nil)
		}
		list = append(list, inst)
	}
	m.setList(providerType, list)

	ref := models.InstanceRef{ProviderType: providerType, InstanceIndex: idx}
	logger := instanceLogger(m.logger, ref)

	ok, err := m.addCredentials(ctx, ref, inst)
	if err != nil {
		logger.Warn("instance not authenticated", "error", err)
		return inst, idx, nil
	}
	if !ok {
		logger.Info("instance awaiting authorization")
		return inst, idx, nil
	}

	if _, err := m.relist(ctx, ref, inst); err != nil {
		logger.Error("initial listing failed", "error", err)
	}
	return inst, idx, nil
}

// AddCredentials re-reads an instance's credentials from the store and authenticates with them.
func (m *Manager) AddCredentials(ctx context.Context, providerType string, instanceIndex int) (bool, error) {
	lock := m.typeLock(providerType)
	lock.Lock()
	defer lock.Unlock()

	inst, err := m.GetProvider(providerType, instanceIndex)
	if err != nil {
		return false, err
	}
	return m.addCredentials(ctx, models.InstanceRef{ProviderType: providerType, InstanceIndex: instanceIndex}, inst)
}

func (m *Manager) credentials(inst *Instance, instanceIndex int) models.Credentials {
	keys := inst.Provider.EnvKeys(instanceIndex)
	var creds models.Credentials
	creds.AppKey, _ = m.store.GetValue(keys.AppKey)
	creds.AppSecret, _ = m.store.GetValue(keys.AppSecret)
	creds.AccessToken, _ = m.store.GetValue(keys.AccessToken)
	creds.RefreshToken, _ = m.store.GetValue(keys.RefreshToken)
	return creds
}

func (m *Manager) addCredentials(ctx context.Context, ref models.InstanceRef, inst *Instance) (bool, error) {
	creds := m.credentials(inst, ref.InstanceIndex)
	if !creds.Configured() {
		return false, fmt.Errorf("%w: app key and secret for %s", shared.ErrMissingCredentials, ref)
	}

	if !inst.Provider.Authenticate(ctx, creds) {
		return false, nil
	}

	if _, err := inst.Auth.Fire(lifecycle.CredentialsRestored); err != nil {
		instanceLogger(m.logger, ref).Warn("credentials restored outside normal flow", "state", inst.Auth.State(), "error", err)
	}
	return true, nil
}

// validateFields maps each supplied field to its key name for the instance.
func (m *Manager) validateFields(providerType string, instanceIndex int, creds map[models.CredentialField]string) (map[string]string, error) {
	provider, err := m.registry.New(providerType)
	if err != nil {
		return nil, err
	}
	keys := provider.EnvKeys(instanceIndex)

	values := make(map[string]string, len(creds))
	for field, value := range creds {
		key, ok := keys.Key(field)
		if !ok {
			return nil, fmt.Errorf("%w: %q", shared.ErrInvalidCredentialKey, field)
		}
		values[key] = value
	}
	return values, nil
}

// WriteEnvVariables persists credential fields for an instance. Keys already present are updated in place
// so every key stays unique; the rest are appended.
func (m *Manager) WriteEnvVariables(providerType string, instanceIndex int, creds map[models.CredentialField]string) error {
	values, err := m.validateFields(providerType, instanceIndex, creds)
	if err != nil {
		return err
	}
	if err := m.store.Set(values); err != nil {
		return fmt.Errorf("failed to write credentials: %w", err)
	}
	return nil
}

// UpdateEnvVariables edits existing credential lines in place.
// Fields whose key is not yet in the store fail with [shared.ErrMissingCredentials] after the others are written.
func (m *Manager) UpdateEnvVariables(providerType string, instanceIndex int, creds map[models.CredentialField]string) error {
	values, err := m.validateFields(providerType, instanceIndex, creds)
	if err != nil {
		return err
	}

	edits := make([]envstore.Edit, 0, len(values))
	for key, value := range values {
		edits = append(edits, envstore.Edit{Pattern: `^\s*` + regexp.QuoteMeta(key) + `=`, NewValue: value})
	}
	if _, err := m.store.EditLines(edits); err != nil {
		return fmt.Errorf("failed to update credentials: %w", err)
	}

	for key := range values {
		if !m.store.HasKey(key) {
			return fmt.Errorf("%w: %s", shared.ErrMissingCredentials, key)
		}
	}
	return nil
}

// GetProvider returns the instance at instanceIndex.
func (m *Manager) GetProvider(providerType string, instanceIndex int) (*Instance, error) {
	list := m.list(providerType)
	if len(list) == 0 {
		return nil, fmt.Errorf("%w: %s", shared.ErrProviderNotFound, providerType)
	}
	if instanceIndex < 0 || instanceIndex >= len(list) {
		return nil, fmt.Errorf("%w: %s:%d (have %d)", shared.ErrIndexOutOfRange, providerType, instanceIndex, len(list))
	}
	inst := list[instanceIndex]
	if inst == nil {
		return nil, fmt.Errorf("%w: %s:%d", shared.ErrInstanceMissing, providerType, instanceIndex)
	}
	return inst, nil
}

// RemoveProvider deletes an instance and renumbers everything that refers to later instances of the same type.
func (m *Manager) RemoveProvider(ctx context.Context, providerType string, instanceIndex int) error {
	lock := m.typeLock(providerType)
	lock.Lock()
	defer lock.Unlock()

	list := m.list(providerType)
	if len(list) == 0 {
		return fmt.Errorf("%w: %s", shared.ErrProviderNotFound, providerType)
	}
	if instanceIndex < 0 || instanceIndex >= len(list) {
		return fmt.Errorf("%w: %s:%d (have %d)", shared.ErrIndexOutOfRange, providerType, instanceIndex, len(list))
	}

	ref := models.InstanceRef{ProviderType: providerType, InstanceIndex: instanceIndex}
	logger := instanceLogger(m.logger, ref)

	if err := m.renumberStore(providerType, instanceIndex); err != nil {
		return fmt.Errorf("failed to renumber credentials: %w", err)
	}

	dropped := m.merger.RemoveProvider(providerType, instanceIndex)

	if m.opts.Cache != nil {
		if _, err := m.opts.Cache.RemoveInstance(ctx, providerType, instanceIndex); err != nil {
			logger.Error("failed to renumber thumbnail cache", "error", err)
		}
	}
	if m.opts.Snapshots != nil {
		if _, err := m.opts.Snapshots.RemoveInstance(ctx, providerType, instanceIndex); err != nil {
			logger.Error("failed to renumber listing snapshots", "error", err)
		}
	}

	shrunk := make([]*Instance, 0, len(list)-1)
	shrunk = append(shrunk, list[:instanceIndex]...)
	shrunk = append(shrunk, list[instanceIndex+1:]...)
	m.setList(providerType, shrunk)

	m.merger.Renumber(providerType, instanceIndex)

	logger.Info("instance removed", "records", dropped, "remaining", len(shrunk))
	return nil
}

// renumberStore deletes the keys of a removed instance and shifts the suffix of higher indices down by one.
func (m *Manager) renumberStore(providerType string, removed int) error {
	pattern := providers.KeyPattern(providerType)

	return m.store.Rewrite(func(lines []envstore.Line) ([]envstore.Line, error) {
		out := lines[:0]
		for _, line := range lines {
			key, ok := line.Key()
			if !ok {
				out = append(out, line)
				continue
			}
			match := pattern.FindStringSubmatch(key)
			if match == nil {
				out = append(out, line)
				continue
			}

			idx, err := strconv.Atoi(match[2])
			if err != nil {
				out = append(out, line)
				continue
			}

			switch {
			case idx == removed:
				continue
			case idx > removed:
				out = append(out, envstore.KV(match[1]+strconv.Itoa(idx-1), line.Value()))
			default:
				out = append(out, line)
			}
		}
		return out, nil
	})
}

// withRetry runs fn and, if the access token was rejected, refreshes once and runs fn again.
func (m *Manager) withRetry(ctx context.Context, ref models.InstanceRef, inst *Instance, fn func() error) error {
	err := fn()
	if !errors.Is(err, shared.ErrTokenExpired) {
		return err
	}

	if _, ferr := inst.Auth.Fire(lifecycle.TokenRejected); ferr != nil {
		instanceLogger(m.logger, ref).Warn("token rejected in unexpected state", "state", inst.Auth.State())
	}
	if rerr := m.refresh(ctx, ref, inst); rerr != nil {
		return rerr
	}
	return fn()
}

func (m *Manager) refresh(ctx context.Context, ref models.InstanceRef, inst *Instance) error {
	logger := instanceLogger(m.logger, ref)

	if !inst.Auth.CanRefresh() {
		if inst.Auth.State() == lifecycle.ReauthRequired {
			return fmt.Errorf("%w: %s", shared.ErrReauthRequired, ref)
		}
		return fmt.Errorf("%w: %s is %s", shared.ErrNotAuthenticated, ref, inst.Auth.State())
	}

	result := inst.Provider.RefreshToken(ctx, m.credentials(inst, ref.InstanceIndex), ref.InstanceIndex)
	if !result.Success {
		if errors.Is(result.Err, shared.ErrReauthRequired) {
			inst.Auth.Fire(lifecycle.RefreshRejected)
			logger.Warn("reauthorization required")
		}
		return result.Err
	}

	if _, err := inst.Auth.Fire(lifecycle.Refreshed); err != nil {
		logger.Warn("refresh in unexpected state", "state", inst.Auth.State())
	}

	err := m.UpdateEnvVariables(ref.ProviderType, ref.InstanceIndex, map[models.CredentialField]string{
		models.FieldAccessToken:  result.AccessToken,
		models.FieldRefreshToken: result.RefreshToken,
	})
	if errors.Is(err, shared.ErrMissingCredentials) {
		err = m.WriteEnvVariables(ref.ProviderType, ref.InstanceIndex, map[models.CredentialField]string{
			models.FieldAccessToken:  result.AccessToken,
			models.FieldRefreshToken: result.RefreshToken,
		})
	}
	if err != nil {
		return fmt.Errorf("failed to persist refreshed token: %w", err)
	}

	logger.Info("token refreshed")
	return nil
}

// RefreshToken forces a token refresh for an instance and persists the new tokens.
func (m *Manager) RefreshToken(ctx context.Context, providerType string, instanceIndex int) error {
	lock := m.typeLock(providerType)
	lock.Lock()
	defer lock.Unlock()

	inst, err := m.GetProvider(providerType, instanceIndex)
	if err != nil {
		return err
	}
	return m.refresh(ctx, models.InstanceRef{ProviderType: providerType, InstanceIndex: instanceIndex}, inst)
}

// relist replaces an instance's records in the index with a fresh listing and returns the image count.
func (m *Manager) relist(ctx context.Context, ref models.InstanceRef, inst *Instance) (int, error) {
	var records []models.FileRecord
	err := m.withRetry(ctx, ref, inst, func() error {
		var err error
		records, err = inst.Provider.ListFiles(ctx, m.opts.RootPath, m.opts.Recursive, m.opts.ListLimit, ref.InstanceIndex)
		return err
	})
	if err != nil {
		return 0, err
	}

	m.merger.RemoveProvider(ref.ProviderType, ref.InstanceIndex)
	m.merger.AddThumbnails(records)
	images := m.merger.Count(ref.ProviderType, ref.InstanceIndex)

	if m.opts.Snapshots != nil {
		snap := models.ListingSnapshot{
			ProviderType:  ref.ProviderType,
			InstanceIndex: ref.InstanceIndex,
			FileCount:     len(records),
			ImageCount:    images,
			ListedAt:      time.Now(),
		}
		if err := m.opts.Snapshots.Record(ctx, snap); err != nil {
			instanceLogger(m.logger, ref).Warn("failed to record listing snapshot", "error", err)
		}
	}

	instanceLogger(m.logger, ref).Info("listed files", "files", len(records), "images", images)
	return images, nil
}

// RefreshListing relists one authenticated instance and returns its image count.
func (m *Manager) RefreshListing(ctx context.Context, providerType string, instanceIndex int) (int, error) {
	lock := m.typeLock(providerType)
	lock.Lock()
	defer lock.Unlock()

	inst, err := m.GetProvider(providerType, instanceIndex)
	if err != nil {
		return 0, err
	}
	if !inst.Provider.IsAuthenticated() {
		return 0, fmt.Errorf("%w: %s:%d", shared.ErrNotAuthenticated, providerType, instanceIndex)
	}
	return m.relist(ctx, models.InstanceRef{ProviderType: providerType, InstanceIndex: instanceIndex}, inst)
}

// Refs returns every non-hole instance in type then index order.
func (m *Manager) Refs() []models.InstanceRef {
	var refs []models.InstanceRef
	for _, providerType := range m.registry.Types() {
		for idx, inst := range m.list(providerType) {
			if inst != nil {
				refs = append(refs, models.InstanceRef{ProviderType: providerType, InstanceIndex: idx})
			}
		}
	}
	return refs
}
