package core

import "testing"

func TestLockWindowIsHalfOpen(t *testing.T) {
	l := NewLockController()
	if l.IsLocked(0) || l.LockedUntil() != Unlocked {
		t.Fatalf("new controller should be unlocked")
	}
	if got := l.Extend(100, 15); got != 115 {
		t.Fatalf("Extend = %d, want 115", got)
	}
	for _, tc := range []struct {
		bucket int
		locked bool
	}{
		{99, true}, {100, true}, {114, true}, {115, false}, {200, false},
	} {
		if got := l.IsLocked(tc.bucket); got != tc.locked {
			t.Fatalf("IsLocked(%d) = %v, want %v", tc.bucket, got, tc.locked)
		}
	}
}

func TestExtendClampsNegativeDwell(t *testing.T) {
	l := NewLockController()
	if got := l.Extend(10, -5); got != 10 {
		t.Fatalf("Extend with negative dwell = %d, want 10", got)
	}
	if l.IsLocked(10) {
		t.Fatalf("zero-length lock should not cover its own bucket")
	}
}

func TestParseLockScope(t *testing.T) {
	for in, want := range map[string]LockScope{"": LockPerEndpoint, "endpoint": LockPerEndpoint, "cell": LockPerCell, "shared": LockShared} {
		got, err := ParseLockScope(in)
		if err != nil || got != want {
			t.Fatalf("ParseLockScope(%q) = %v,%v", in, got, err)
		}
	}
	if _, err := ParseLockScope("galaxy"); err == nil {
		t.Fatalf("expected error for unknown scope")
	}
}
