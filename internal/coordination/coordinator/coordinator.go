// Package coordinator implements the election state machine: given an
// Instance Manager, the desired local version, a wait-for-port timeout, and
// a removeStaleLock flag, it computes the final role exactly once per
// process startup. The pre-startup stale-PID check, write, start, and
// shutdown sequence of a typical process lifecycle manager is generalized
// here into the full retry/transition state machine.
package coordinator

import (
	"context"
	"errors"
	"time"

	"github.com/mcp-kit/mcp-kit-go/internal/coordination/lock"
)

// Role is the tagged variant a process settles into exactly once per
// startup. Behavior differences (run the MCP handler vs. run the proxy) are
// selected on this value rather than by polymorphism.
type Role int

const (
	// RoleUnknown is the zero value; never returned by Run.
	RoleUnknown Role = iota
	RolePrimary
	RoleSecondary
)

func (r Role) String() string {
	switch r {
	case RolePrimary:
		return "primary"
	case RoleSecondary:
		return "secondary"
	default:
		return "unknown"
	}
}

// Reason explains why a Role was reached.
type Reason string

const (
	ReasonInitial           Reason = "initial"
	ReasonLockMissing       Reason = "lock-missing"
	ReasonStaleLock         Reason = "stale-lock"
	ReasonVersionTransition Reason = "version-transition"
	ReasonExistingMain      Reason = "existing-main"
)

// Outcome is the Role Transition Event: produced exactly once per process
// startup and never mutated thereafter.
type Outcome struct {
	Role            Role
	Reason          Reason
	PreviousVersion string // set only for primary(version-transition)
	MainVersion     string // set only for secondary(existing-main)
}

// ErrTransitionDenied is returned when the current primary refuses a
// version-transition request.
var ErrTransitionDenied = errors.New("coordinator: transition denied by current primary")

// ErrTransitionRaceLost is returned when, after a primary yields the port,
// this process still fails to claim the lock.
var ErrTransitionRaceLost = errors.New("coordinator: lost the race to become primary after transition")

// Manager is the subset of instance.Manager the Coordinator depends on.
// Declared here, not imported, so the Coordinator has no cyclic dependency
// on the instance package's concrete type.
type Manager interface {
	TryBecomeMain() (bool, error)
	ReadLock() *lock.Record
	RemoveLock() error
	FetchMainVersion(ctx context.Context) *string
	RequestMainTransition(ctx context.Context) bool
	WaitForPort(timeout time.Duration) bool
	IsPidAlive(pid int) bool
}

// Options configures a single Run.
type Options struct {
	DesiredVersion  string
	WaitForPort     time.Duration
	RemoveStaleLock bool
}

// Run executes the election state machine once and returns the resulting
// Outcome, or an error for TransitionDenied/TransitionRaceLost.
func Run(ctx context.Context, m Manager, opts Options) (Outcome, error) {
	// 1. Initial attempt.
	ok, err := m.TryBecomeMain()
	if err != nil {
		return Outcome{}, err
	}
	if ok {
		return Outcome{Role: RolePrimary, Reason: ReasonInitial}, nil
	}

	// 2. Stale-lock reclaim.
	if opts.RemoveStaleLock {
		rec := m.ReadLock()
		stale := rec == nil || !m.IsPidAlive(rec.PID)
		if stale {
			hadRecord := rec != nil
			if err := m.RemoveLock(); err != nil {
				return Outcome{}, err
			}
			ok, err := m.TryBecomeMain()
			if err != nil {
				return Outcome{}, err
			}
			if ok {
				if hadRecord {
					return Outcome{Role: RolePrimary, Reason: ReasonStaleLock}, nil
				}
				return Outcome{Role: RolePrimary, Reason: ReasonLockMissing}, nil
			}
			// Another process won the race; fall through to step 3 with
			// the new holder.
		}
	}

	// 3. Version comparison.
	mainVersion := m.FetchMainVersion(ctx)

	// 4. Equal versions: commit to secondary.
	if mainVersion != nil && *mainVersion == opts.DesiredVersion {
		return Outcome{Role: RoleSecondary, Reason: ReasonExistingMain, MainVersion: *mainVersion}, nil
	}

	// 5. Version transition (covers mainVersion == nil, treated as
	// "unknown", which always compares unequal to any desired version).
	if !m.RequestMainTransition(ctx) {
		return Outcome{}, ErrTransitionDenied
	}

	m.WaitForPort(opts.WaitForPort)
	// Defensive: the departing primary should have removed its own lock,
	// but we may observe the window before it does.
	if err := m.RemoveLock(); err != nil {
		return Outcome{}, err
	}

	ok, err = m.TryBecomeMain()
	if err != nil {
		return Outcome{}, err
	}
	if !ok {
		return Outcome{}, ErrTransitionRaceLost
	}

	previous := ""
	if mainVersion != nil {
		previous = *mainVersion
	}
	return Outcome{Role: RolePrimary, Reason: ReasonVersionTransition, PreviousVersion: previous}, nil
}
