package manager

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/desertthunder/skyroll/internal/lifecycle"
	"github.com/desertthunder/skyroll/internal/providers"
	"github.com/desertthunder/skyroll/internal/shared"
	tst "github.com/desertthunder/skyroll/internal/testing"
)

func TestAuthorizationFlow(t *testing.T) {
	ctx := context.Background()

	t.Run("connect authorize and complete", func(t *testing.T) {
		f := newFixture(t, "", nil)

		inst, idx, err := f.manager.Connect(ctx, providers.DropboxType, "k", "s")
		if err != nil {
			t.Fatalf("Connect() error = %v", err)
		}
		if idx != 0 || inst.Auth.State() != lifecycle.Unconfigured {
			t.Fatalf("Connect() = (%d, %s)", idx, inst.Auth.State())
		}

		url, err := f.manager.AuthorizationURL(providers.DropboxType, 0)
		if err != nil {
			t.Fatalf("AuthorizationURL() error = %v", err)
		}
		if !strings.Contains(url, "client_id=k") || !strings.Contains(url, "state=dropbox:0") {
			t.Errorf("unexpected url %s", url)
		}
		if inst.Auth.State() != lifecycle.PendingAuthorization {
			t.Errorf("expected pending_authorization, got %s", inst.Auth.State())
		}

		ref, err := f.manager.CompleteAuthorization(ctx, "dropbox:0", "abc")
		if err != nil {
			t.Fatalf("CompleteAuthorization() error = %v", err)
		}
		if ref.ProviderType != providers.DropboxType || ref.InstanceIndex != 0 {
			t.Errorf("unexpected ref %v", ref)
		}
		if inst.Auth.State() != lifecycle.Authenticated {
			t.Errorf("expected authenticated, got %s", inst.Auth.State())
		}

		for key, want := range map[string]string{
			"DROPBOX_APP_KEY_0":       "k",
			"DROPBOX_APP_SECRET_0":    "s",
			"DROPBOX_ACCESS_TOKEN_0":  "access-abc",
			"DROPBOX_REFRESH_TOKEN_0": "refresh-abc",
		} {
			if got, _ := f.store.GetValue(key); got != want {
				t.Errorf("%s = %q, want %q", key, got, want)
			}
		}
		if f.manager.Merger().Len() != 2 {
			t.Errorf("expected listing after authorization, got %d records", f.manager.Merger().Len())
		}
	})

	t.Run("second connect takes the next index", func(t *testing.T) {
		f := newFixture(t, instanceEnv(0), nil)
		f.manager.Initialize(ctx)

		_, idx, err := f.manager.Connect(ctx, providers.DropboxType, "k", "s")
		if err != nil {
			t.Fatalf("Connect() error = %v", err)
		}
		if idx != 1 || !f.store.HasKey("DROPBOX_APP_KEY_1") {
			t.Errorf("expected instance 1, got %d", idx)
		}
	})

	t.Run("connect validation", func(t *testing.T) {
		f := newFixture(t, "", nil)
		if _, _, err := f.manager.Connect(ctx, providers.DropboxType, "", "s"); !errors.Is(err, shared.ErrMissingCredentials) {
			t.Errorf("expected ErrMissingCredentials, got %v", err)
		}
		if _, _, err := f.manager.Connect(ctx, "gdrive", "k", "s"); !errors.Is(err, shared.ErrUnsupportedProviderType) {
			t.Errorf("expected ErrUnsupportedProviderType, got %v", err)
		}
	})

	t.Run("authorization url needs an app key", func(t *testing.T) {
		f := newFixture(t, "", nil)
		f.manager.AddProvider(ctx, providers.DropboxType, nil)

		if _, err := f.manager.AuthorizationURL(providers.DropboxType, 0); !errors.Is(err, shared.ErrMissingCredentials) {
			t.Errorf("expected ErrMissingCredentials, got %v", err)
		}
	})

	t.Run("completion rejects", func(t *testing.T) {
		f := newFixture(t, instanceEnv(0), nil)
		f.manager.Initialize(ctx)

		tests := []struct {
			name  string
			state string
			code  string
			want  error
		}{
			{"malformed state", "dropbox", "abc", shared.ErrInvalidState},
			{"negative index", "dropbox:-1", "abc", shared.ErrInvalidState},
			{"empty code", "dropbox:0", "", shared.ErrMissingArgument},
			{"unknown instance", "dropbox:3", "abc", shared.ErrIndexOutOfRange},
			{"no authorization in progress", "dropbox:0", "abc", shared.ErrInvalidState},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				if _, err := f.manager.CompleteAuthorization(ctx, tt.state, tt.code); !errors.Is(err, tt.want) {
					t.Errorf("CompleteAuthorization() error = %v, want %v", err, tt.want)
				}
			})
		}

		if f.created[0].Calls("ExchangeCode") != 0 {
			t.Error("rejected completions must not exchange the code")
		}
	})

	t.Run("failed exchange persists nothing", func(t *testing.T) {
		exchangeErr := &providers.ExternalAuthError{Provider: providers.DropboxType, Reason: providers.ReasonCodeExpired}
		f := newFixture(t, "", func(n int, p *tst.MockProvider) { p.ExchangeErr = exchangeErr })
		f.manager.Connect(ctx, providers.DropboxType, "k", "s")
		f.manager.AuthorizationURL(providers.DropboxType, 0)

		_, err := f.manager.CompleteAuthorization(ctx, "dropbox:0", "stale")
		if !errors.Is(err, shared.ErrAuthFailed) {
			t.Errorf("expected ErrAuthFailed, got %v", err)
		}
		if f.store.HasKey("DROPBOX_ACCESS_TOKEN_0") {
			t.Error("no token should be written after a failed exchange")
		}
	})
}

func TestRefresh(t *testing.T) {
	ctx := context.Background()

	t.Run("forced refresh persists tokens", func(t *testing.T) {
		f := newFixture(t, instanceEnv(0), nil)
		f.manager.Initialize(ctx)
		before, _ := f.store.Lines()

		if err := f.manager.RefreshToken(ctx, providers.DropboxType, 0); err != nil {
			t.Fatalf("RefreshToken() error = %v", err)
		}
		if v, _ := f.store.GetValue("DROPBOX_ACCESS_TOKEN_0"); v != "refreshed" {
			t.Errorf("expected refreshed token, got %q", v)
		}
		if v, _ := f.store.GetValue("DROPBOX_REFRESH_TOKEN_0"); v != "refresh0" {
			t.Errorf("refresh token should be kept, got %q", v)
		}
		after, _ := f.store.Lines()
		if len(after) != len(before) {
			t.Errorf("refresh should edit in place, lines %d -> %d", len(before), len(after))
		}
	})

	t.Run("refresh writes tokens that were never stored", func(t *testing.T) {
		f := newFixture(t, instanceEnv(0), nil)
		f.manager.Initialize(ctx)
		f.store.Delete("DROPBOX_REFRESH_TOKEN_0")

		if err := f.manager.RefreshToken(ctx, providers.DropboxType, 0); err != nil {
			t.Fatalf("RefreshToken() error = %v", err)
		}
		if !f.store.HasKey("DROPBOX_REFRESH_TOKEN_0") {
			t.Error("missing key should be appended")
		}
	})

	t.Run("rejected refresh requires reauthorization", func(t *testing.T) {
		f := newFixture(t, instanceEnv(0), func(n int, p *tst.MockProvider) {
			p.ExpireOnce = true
			p.RefreshErr = fmt.Errorf("%w: invalid_grant", shared.ErrReauthRequired)
		})
		f.manager.Initialize(ctx)

		inst, _ := f.manager.GetProvider(providers.DropboxType, 0)
		if inst.Auth.State() != lifecycle.ReauthRequired {
			t.Fatalf("expected reauth_required, got %s", inst.Auth.State())
		}
		if f.manager.Merger().Len() != 0 {
			t.Errorf("nothing should be listed, got %d", f.manager.Merger().Len())
		}

		if err := f.manager.RefreshToken(ctx, providers.DropboxType, 0); !errors.Is(err, shared.ErrReauthRequired) {
			t.Errorf("expected ErrReauthRequired, got %v", err)
		}
		if f.created[0].Calls("RefreshToken") != 1 {
			t.Errorf("refresh should not be retried, got %d calls", f.created[0].Calls("RefreshToken"))
		}

		if _, err := f.manager.AuthorizationURL(providers.DropboxType, 0); err != nil {
			t.Errorf("reauthorization should be possible, got %v", err)
		}
	})

	t.Run("unauthenticated instance", func(t *testing.T) {
		f := newFixture(t, "", nil)
		f.manager.AddProvider(ctx, providers.DropboxType, nil)

		if err := f.manager.RefreshToken(ctx, providers.DropboxType, 0); !errors.Is(err, shared.ErrNotAuthenticated) {
			t.Errorf("expected ErrNotAuthenticated, got %v", err)
		}
		if _, err := f.manager.RefreshListing(ctx, providers.DropboxType, 0); !errors.Is(err, shared.ErrNotAuthenticated) {
			t.Errorf("expected ErrNotAuthenticated, got %v", err)
		}
	})
}
