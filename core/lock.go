package core

import (
	"fmt"
	"strings"
	"sync"

	"github.com/signalsfoundry/dwell-handover/model"
)

// Unlocked is the lockedUntil value of a lock that was never extended.
const Unlocked = -1

// LockController suppresses handovers until a deadline expressed in time
// buckets. The lock covers [T, T+dwell) after Extend(T, dwell).
type LockController struct {
	mu          sync.Mutex
	lockedUntil int
}

// NewLockController returns an unlocked controller.
func NewLockController() *LockController {
	return &LockController{lockedUntil: Unlocked}
}

// IsLocked reports whether bucket falls before the deadline.
func (l *LockController) IsLocked(bucket int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return bucket < l.lockedUntil
}

// Extend sets the deadline to bucket+dwellSeconds. Negative dwell is
// treated as zero.
func (l *LockController) Extend(bucket, dwellSeconds int) int {
	if dwellSeconds < 0 {
		dwellSeconds = 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lockedUntil = bucket + dwellSeconds
	return l.lockedUntil
}

// LockedUntil returns the current deadline, Unlocked if never extended.
func (l *LockController) LockedUntil() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lockedUntil
}

// LockScope decides which endpoints share a lock.
type LockScope int

const (
	// LockPerEndpoint gives every RNTI its own lock.
	LockPerEndpoint LockScope = iota
	// LockPerCell shares one lock between all endpoints of a serving cell.
	LockPerCell
	// LockShared shares one lock across every engine of a fleet.
	LockShared
)

func (s LockScope) String() string {
	switch s {
	case LockPerCell:
		return "cell"
	case LockShared:
		return "shared"
	default:
		return "endpoint"
	}
}

// ParseLockScope maps a config string to a LockScope.
func ParseLockScope(s string) (LockScope, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "endpoint", "ue", "rnti":
		return LockPerEndpoint, nil
	case "cell":
		return LockPerCell, nil
	case "shared", "global":
		return LockShared, nil
	default:
		return LockPerEndpoint, fmt.Errorf("%w: unknown lock scope %q", ErrInvalidConfig, s)
	}
}

// lockTable hands out the lock for an RNTI according to the scope. It is
// guarded by the owning engine's mutex.
type lockTable struct {
	scope  LockScope
	single *LockController
	perUE  map[model.RNTI]*LockController
}

func newLockTable(scope LockScope, shared *LockController) *lockTable {
	t := &lockTable{scope: scope}
	switch scope {
	case LockPerEndpoint:
		t.perUE = make(map[model.RNTI]*LockController)
	case LockShared:
		t.single = shared
		if t.single == nil {
			t.single = NewLockController()
		}
	default:
		t.single = NewLockController()
	}
	return t
}

func (t *lockTable) For(rnti model.RNTI) *LockController {
	if t.scope != LockPerEndpoint {
		return t.single
	}
	l, ok := t.perUE[rnti]
	if !ok {
		l = NewLockController()
		t.perUE[rnti] = l
	}
	return l
}

// peek returns the deadline without creating a lock.
func (t *lockTable) peek(rnti model.RNTI) int {
	if t.scope != LockPerEndpoint {
		return t.single.LockedUntil()
	}
	if l, ok := t.perUE[rnti]; ok {
		return l.LockedUntil()
	}
	return Unlocked
}

func (t *lockTable) forget(rnti model.RNTI) {
	if t.scope == LockPerEndpoint {
		delete(t.perUE, rnti)
	}
}

func (t *lockTable) deadlines() map[model.RNTI]int {
	out := make(map[model.RNTI]int, len(t.perUE))
	for rnti, l := range t.perUE {
		out[rnti] = l.LockedUntil()
	}
	return out
}
