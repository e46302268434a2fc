package manager

import (
	"context"
	"fmt"

	"github.com/desertthunder/skyroll/internal/lifecycle"
	"github.com/desertthunder/skyroll/internal/models"
	"github.com/desertthunder/skyroll/internal/shared"
)

// Connect stores an app key and secret under the next free index of providerType and adds the instance.
// The new instance is usually awaiting authorization afterwards.
func (m *Manager) Connect(ctx context.Context, providerType, appKey, appSecret string) (*Instance, int, error) {
	if appKey == "" || appSecret == "" {
		return nil, 0, fmt.Errorf("%w: app key and app secret are required", shared.ErrMissingCredentials)
	}
	if !m.registry.Supports(providerType) {
		return nil, 0, fmt.Errorf("%w: %q", shared.ErrUnsupportedProviderType, providerType)
	}

	lock := m.typeLock(providerType)
	lock.Lock()
	defer lock.Unlock()

	idx := len(m.list(providerType))
	err := m.WriteEnvVariables(providerType, idx, map[models.CredentialField]string{
		models.FieldAppKey:    appKey,
		models.FieldAppSecret: appSecret,
	})
	if err != nil {
		return nil, 0, err
	}

	inst, idx, err := m.addProvider(ctx, providerType, &idx)
	if err != nil {
		return nil, 0, err
	}
	return inst, idx, nil
}

// AuthorizationURL starts an authorization for an instance and returns the consent URL.
// The OAuth state parameter encodes the instance as "type:index".
func (m *Manager) AuthorizationURL(providerType string, instanceIndex int) (string, error) {
	lock := m.typeLock(providerType)
	lock.Lock()
	defer lock.Unlock()

	inst, err := m.GetProvider(providerType, instanceIndex)
	if err != nil {
		return "", err
	}

	creds := m.credentials(inst, instanceIndex)
	if creds.AppKey == "" {
		return "", fmt.Errorf("%w: no app key for %s:%d", shared.ErrMissingCredentials, providerType, instanceIndex)
	}

	if _, err := inst.Auth.Fire(lifecycle.BeginAuthorization); err != nil {
		return "", err
	}

	ref := models.InstanceRef{ProviderType: providerType, InstanceIndex: instanceIndex}
	return inst.Provider.AuthorizationURL(creds.AppKey, m.opts.RedirectURI, lifecycle.EncodeState(ref)), nil
}

// CompleteAuthorization exchanges code for the instance named by state, persists both tokens and lists
// the instance's files.
//
// The instance must be awaiting authorization, i.e. [Manager.AuthorizationURL] was called for it by this process.
func (m *Manager) CompleteAuthorization(ctx context.Context, state, code string) (models.InstanceRef, error) {
	ref, err := lifecycle.DecodeState(state)
	if err != nil {
		return ref, err
	}
	if code == "" {
		return ref, fmt.Errorf("%w: authorization code", shared.ErrMissingArgument)
	}

	lock := m.typeLock(ref.ProviderType)
	lock.Lock()
	defer lock.Unlock()

	inst, err := m.GetProvider(ref.ProviderType, ref.InstanceIndex)
	if err != nil {
		return ref, err
	}
	if inst.Auth.State() != lifecycle.PendingAuthorization {
		return ref, fmt.Errorf("%w: no authorization in progress for %s", shared.ErrInvalidState, ref)
	}

	logger := instanceLogger(m.logger, ref)
	creds := m.credentials(inst, ref.InstanceIndex)
	if !creds.Configured() {
		return ref, fmt.Errorf("%w: app key and secret for %s", shared.ErrMissingCredentials, ref)
	}

	pair, err := inst.Provider.ExchangeCode(ctx, code, creds.AppKey, creds.AppSecret, m.opts.RedirectURI)
	if err != nil {
		logger.Warn("code exchange failed", "error", err)
		return ref, err
	}

	err = m.WriteEnvVariables(ref.ProviderType, ref.InstanceIndex, map[models.CredentialField]string{
		models.FieldAccessToken:  pair.AccessToken,
		models.FieldRefreshToken: pair.RefreshToken,
	})
	if err != nil {
		return ref, err
	}

	creds.AccessToken = pair.AccessToken
	creds.RefreshToken = pair.RefreshToken
	if !inst.Provider.Authenticate(ctx, creds) {
		return ref, fmt.Errorf("%w: provider rejected exchanged tokens", shared.ErrAuthFailed)
	}
	if _, err := inst.Auth.Fire(lifecycle.CodeExchanged); err != nil {
		return ref, err
	}
	logger.Info("authorization complete")

	if _, err := m.relist(ctx, ref, inst); err != nil {
		logger.Error("listing after authorization failed", "error", err)
	}
	return ref, nil
}
