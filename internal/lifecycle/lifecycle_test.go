package lifecycle

import (
	"errors"
	"testing"

	"github.com/desertthunder/skyroll/internal/models"
	"github.com/desertthunder/skyroll/internal/shared"
)

func TestNext(t *testing.T) {
	tests := []struct {
		name    string
		from    State
		event   Event
		want    State
		wantErr bool
	}{
		{"begin from unconfigured", Unconfigured, BeginAuthorization, PendingAuthorization, false},
		{"restore from unconfigured", Unconfigured, CredentialsRestored, Authenticated, false},
		{"exchange completes", PendingAuthorization, CodeExchanged, Authenticated, false},
		{"token rejected", Authenticated, TokenRejected, TokenExpired, false},
		{"refresh recovers", TokenExpired, Refreshed, Authenticated, false},
		{"refresh rejected", TokenExpired, RefreshRejected, ReauthRequired, false},
		{"reauth restarts", ReauthRequired, BeginAuthorization, PendingAuthorization, false},
		{"reset from any", TokenExpired, Reset, Unconfigured, false},
		{"exchange without begin", Unconfigured, CodeExchanged, Unconfigured, true},
		{"refresh when unconfigured", Unconfigured, Refreshed, Unconfigured, true},
		{"reauth never auto-refreshes", ReauthRequired, Refreshed, ReauthRequired, true},
		{"reauth ignores restore", ReauthRequired, CredentialsRestored, ReauthRequired, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Next(tt.from, tt.event)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Next() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, shared.ErrInvalidTransition) {
				t.Errorf("expected ErrInvalidTransition, got %v", err)
			}
			if got != tt.want {
				t.Errorf("Next() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestMachine(t *testing.T) {
	t.Run("full authorization cycle", func(t *testing.T) {
		m := New()
		if m.State() != Unconfigured {
			t.Fatalf("expected unconfigured, got %s", m.State())
		}

		for _, e := range []Event{BeginAuthorization, CodeExchanged, TokenRejected, Refreshed} {
			if _, err := m.Fire(e); err != nil {
				t.Fatalf("Fire(%s) error = %v", e, err)
			}
		}
		if m.State() != Authenticated {
			t.Errorf("expected authenticated, got %s", m.State())
		}
		if !m.CanRefresh() {
			t.Error("authenticated machine should allow refresh")
		}
	})

	t.Run("invalid transition keeps state", func(t *testing.T) {
		m := New()
		state, err := m.Fire(Refreshed)
		if !errors.Is(err, shared.ErrInvalidTransition) {
			t.Errorf("expected ErrInvalidTransition, got %v", err)
		}
		if state != Unconfigured || m.State() != Unconfigured {
			t.Errorf("state changed to %s", m.State())
		}
	})

	t.Run("reauth blocks refresh", func(t *testing.T) {
		m := New()
		m.Fire(CredentialsRestored)
		m.Fire(RefreshRejected)
		if m.State() != ReauthRequired {
			t.Fatalf("expected reauth_required, got %s", m.State())
		}
		if m.CanRefresh() {
			t.Error("reauth_required must not allow refresh")
		}
	})

	t.Run("state names", func(t *testing.T) {
		names := map[State]string{
			Unconfigured:         "unconfigured",
			PendingAuthorization: "pending_authorization",
			Authenticated:        "authenticated",
			TokenExpired:         "token_expired",
			ReauthRequired:       "reauth_required",
		}
		for s, want := range names {
			if s.String() != want {
				t.Errorf("String() = %s, want %s", s.String(), want)
			}
		}
	})
}

func TestState(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		ref := models.InstanceRef{ProviderType: "dropbox", InstanceIndex: 4}
		encoded := EncodeState(ref)
		if encoded != "dropbox:4" {
			t.Errorf("EncodeState() = %s", encoded)
		}

		decoded, err := DecodeState(encoded)
		if err != nil {
			t.Fatalf("DecodeState() error = %v", err)
		}
		if decoded != ref {
			t.Errorf("DecodeState() = %+v, want %+v", decoded, ref)
		}
	})

	for _, bad := range []string{"", "dropbox", "dropbox:", ":1", "dropbox:x", "dropbox:-1"} {
		t.Run("rejects "+bad, func(t *testing.T) {
			if _, err := DecodeState(bad); !errors.Is(err, shared.ErrInvalidState) {
				t.Errorf("expected ErrInvalidState for %q, got %v", bad, err)
			}
		})
	}
}
