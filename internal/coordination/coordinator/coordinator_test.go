package coordinator

import (
	"context"
	"testing"
	"time"

	"github.com/mcp-kit/mcp-kit-go/internal/coordination/lock"
)

// fakeManager is a scripted stand-in for instance.Manager, letting each test
// pin exactly the sequence of responses the state machine should see.
type fakeManager struct {
	tryBecomeMainResults []bool
	tryBecomeMainCalls   int

	lockRecord      *lock.Record
	removeLockCalls int

	mainVersion        *string
	requestTransition  bool
	waitForPortResult  bool
	pidAlive           bool
}

func (f *fakeManager) TryBecomeMain() (bool, error) {
	i := f.tryBecomeMainCalls
	f.tryBecomeMainCalls++
	if i < len(f.tryBecomeMainResults) {
		return f.tryBecomeMainResults[i], nil
	}
	return false, nil
}

func (f *fakeManager) ReadLock() *lock.Record { return f.lockRecord }

func (f *fakeManager) RemoveLock() error {
	f.removeLockCalls++
	return nil
}

func (f *fakeManager) FetchMainVersion(ctx context.Context) *string { return f.mainVersion }

func (f *fakeManager) RequestMainTransition(ctx context.Context) bool { return f.requestTransition }

func (f *fakeManager) WaitForPort(timeout time.Duration) bool { return f.waitForPortResult }

func (f *fakeManager) IsPidAlive(pid int) bool { return f.pidAlive }

func strptr(s string) *string { return &s }

func TestRunInitialSuccess(t *testing.T) {
	f := &fakeManager{tryBecomeMainResults: []bool{true}}
	out, err := Run(context.Background(), f, Options{DesiredVersion: "1.0.0"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Role != RolePrimary || out.Reason != ReasonInitial {
		t.Errorf("out = %+v, want primary(initial)", out)
	}
}

func TestRunSecondaryExistingMain(t *testing.T) {
	f := &fakeManager{
		tryBecomeMainResults: []bool{false},
		mainVersion:          strptr("1.0.0"),
	}
	out, err := Run(context.Background(), f, Options{DesiredVersion: "1.0.0"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Role != RoleSecondary || out.Reason != ReasonExistingMain || out.MainVersion != "1.0.0" {
		t.Errorf("out = %+v, want secondary(existing-main, 1.0.0)", out)
	}
}

func TestRunVersionTransitionSuccess(t *testing.T) {
	f := &fakeManager{
		tryBecomeMainResults: []bool{false, true},
		mainVersion:          strptr("0.0.1"),
		requestTransition:    true,
		waitForPortResult:    true,
	}
	out, err := Run(context.Background(), f, Options{DesiredVersion: "2.0.0", WaitForPort: 3 * time.Second})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Role != RolePrimary || out.Reason != ReasonVersionTransition || out.PreviousVersion != "0.0.1" {
		t.Errorf("out = %+v, want primary(version-transition, previous=0.0.1)", out)
	}
	if f.removeLockCalls != 1 {
		t.Errorf("removeLockCalls = %d, want 1", f.removeLockCalls)
	}
}

func TestRunTransitionDenied(t *testing.T) {
	f := &fakeManager{
		tryBecomeMainResults: []bool{false},
		mainVersion:          strptr("0.0.1"),
		requestTransition:    false,
	}
	_, err := Run(context.Background(), f, Options{DesiredVersion: "2.0.0"})
	if err != ErrTransitionDenied {
		t.Errorf("err = %v, want ErrTransitionDenied", err)
	}
}

func TestRunTransitionRaceLost(t *testing.T) {
	f := &fakeManager{
		tryBecomeMainResults: []bool{false, false},
		mainVersion:          strptr("0.0.1"),
		requestTransition:    true,
		waitForPortResult:    false,
	}
	_, err := Run(context.Background(), f, Options{DesiredVersion: "2.0.0"})
	if err != ErrTransitionRaceLost {
		t.Errorf("err = %v, want ErrTransitionRaceLost", err)
	}
}

func TestRunUnreachablePrimaryTriggersTransition(t *testing.T) {
	f := &fakeManager{
		tryBecomeMainResults: []bool{false, true},
		mainVersion:          nil, // unreachable: treated as "unknown", always unequal
		requestTransition:    true,
		waitForPortResult:    true,
	}
	out, err := Run(context.Background(), f, Options{DesiredVersion: "1.0.0"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Role != RolePrimary || out.Reason != ReasonVersionTransition {
		t.Errorf("out = %+v, want primary(version-transition)", out)
	}
	if out.PreviousVersion != "" {
		t.Errorf("PreviousVersion = %q, want empty for an unreachable primary", out.PreviousVersion)
	}
}

func TestRunStaleLockReclaimWithRecord(t *testing.T) {
	f := &fakeManager{
		tryBecomeMainResults: []bool{false, true},
		lockRecord:           &lock.Record{PID: 999999, Version: "x", Timestamp: 0},
		pidAlive:             false,
	}
	out, err := Run(context.Background(), f, Options{DesiredVersion: "1.0.0", RemoveStaleLock: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Role != RolePrimary || out.Reason != ReasonStaleLock {
		t.Errorf("out = %+v, want primary(stale-lock)", out)
	}
	if f.removeLockCalls != 1 {
		t.Errorf("removeLockCalls = %d, want 1", f.removeLockCalls)
	}
}

func TestRunCorruptLockReclaim(t *testing.T) {
	f := &fakeManager{
		tryBecomeMainResults: []bool{false, true},
		lockRecord:           nil, // corrupt file reads as absent
	}
	out, err := Run(context.Background(), f, Options{DesiredVersion: "1.0.0", RemoveStaleLock: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Role != RolePrimary || out.Reason != ReasonLockMissing {
		t.Errorf("out = %+v, want primary(lock-missing)", out)
	}
}

func TestRunStaleReclaimRaceLostFallsThroughToVersionCheck(t *testing.T) {
	f := &fakeManager{
		// First TryBecomeMain fails (contended). Stale-lock retry also
		// fails (another process won the race). Final TryBecomeMain after
		// transition succeeds.
		tryBecomeMainResults: []bool{false, false, true},
		lockRecord:           &lock.Record{PID: 999999, Version: "x", Timestamp: 0},
		pidAlive:             false,
		mainVersion:          strptr("0.0.1"),
		requestTransition:    true,
		waitForPortResult:    true,
	}
	out, err := Run(context.Background(), f, Options{DesiredVersion: "2.0.0", RemoveStaleLock: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Role != RolePrimary || out.Reason != ReasonVersionTransition {
		t.Errorf("out = %+v, want primary(version-transition) after reclaim race loss", out)
	}
}
