// Package lifecycle tracks the credential state of each provider instance.
//
// A [Machine] moves between [State] values in response to [Event] values. Transitions not listed in the
// table are rejected with [shared.ErrInvalidTransition]. ReauthRequired is terminal until the user starts
// a new authorization or the instance is reset.
package lifecycle

import (
	"fmt"
	"sync"

	"github.com/desertthunder/skyroll/internal/shared"
)

// State is the credential state of one instance.
type State int

const (
	Unconfigured State = iota
	PendingAuthorization
	Authenticated
	TokenExpired
	ReauthRequired
)

func (s State) String() string {
	switch s {
	case Unconfigured:
		return "unconfigured"
	case PendingAuthorization:
		return "pending_authorization"
	case Authenticated:
		return "authenticated"
	case TokenExpired:
		return "token_expired"
	case ReauthRequired:
		return "reauth_required"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Event drives a [Machine] transition.
type Event int

const (
	BeginAuthorization Event = iota
	CodeExchanged
	CredentialsRestored
	TokenRejected
	Refreshed
	RefreshRejected
	Reset
)

func (e Event) String() string {
	switch e {
	case BeginAuthorization:
		return "begin_authorization"
	case CodeExchanged:
		return "code_exchanged"
	case CredentialsRestored:
		return "credentials_restored"
	case TokenRejected:
		return "token_rejected"
	case Refreshed:
		return "refreshed"
	case RefreshRejected:
		return "refresh_rejected"
	case Reset:
		return "reset"
	default:
		return fmt.Sprintf("event(%d)", int(e))
	}
}

type transition struct {
	from  State
	event Event
}

var transitions = map[transition]State{
	{Unconfigured, BeginAuthorization}:  PendingAuthorization,
	{Unconfigured, CredentialsRestored}: Authenticated,

	{PendingAuthorization, BeginAuthorization}:  PendingAuthorization,
	{PendingAuthorization, CodeExchanged}:       Authenticated,
	{PendingAuthorization, CredentialsRestored}: Authenticated,

	{Authenticated, BeginAuthorization}:  PendingAuthorization,
	{Authenticated, CredentialsRestored}: Authenticated,
	{Authenticated, TokenRejected}:       TokenExpired,
	{Authenticated, Refreshed}:           Authenticated,
	{Authenticated, RefreshRejected}:     ReauthRequired,

	{TokenExpired, BeginAuthorization}: PendingAuthorization,
	{TokenExpired, TokenRejected}:      TokenExpired,
	{TokenExpired, Refreshed}:          Authenticated,
	{TokenExpired, RefreshRejected}:    ReauthRequired,

	{ReauthRequired, BeginAuthorization}: PendingAuthorization,
	{ReauthRequired, RefreshRejected}:    ReauthRequired,
}

// Next returns the state reached from s on e without mutating anything.
func Next(s State, e Event) (State, error) {
	if e == Reset {
		return Unconfigured, nil
	}
	next, ok := transitions[transition{s, e}]
	if !ok {
		return s, fmt.Errorf("%w: %s on %s", shared.ErrInvalidTransition, e, s)
	}
	return next, nil
}

// Machine is a mutex-guarded credential state.
type Machine struct {
	mu    sync.Mutex
	state State
}

// New returns a machine in the Unconfigured state.
func New() *Machine {
	return &Machine{state: Unconfigured}
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Fire applies e. On an invalid transition the state is unchanged.
func (m *Machine) Fire(e Event) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	next, err := Next(m.state, e)
	if err != nil {
		return m.state, err
	}
	m.state = next
	return next, nil
}

// CanRefresh reports whether a refresh attempt is allowed from the current state.
func (m *Machine) CanRefresh() bool {
	s := m.State()
	return s == Authenticated || s == TokenExpired
}
