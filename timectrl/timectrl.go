package timectrl

import (
	"container/heap"
	"math"
	"sync"
	"time"
)

// SimClock is an interface for accessing simulation time. Decision engines
// depend on this abstraction rather than a concrete controller so tests can
// pin time with SetTime.
type SimClock interface {
	// Now returns the current simulation time.
	Now() time.Time
	// Elapsed returns the simulation time elapsed since the start instant.
	Elapsed() time.Duration
	// After returns a channel that receives the simulation time once d has
	// elapsed in simulation time.
	After(d time.Duration) <-chan time.Time
}

// Mode describes how the TimeController advances simulation time.
type Mode int

const (
	// RealTime advances according to wall-clock time.
	RealTime Mode = iota
	// Accelerated advances as quickly as the loop can run while still stepping by Tick.
	Accelerated
)

func (m Mode) String() string {
	if m == Accelerated {
		return "accelerated"
	}
	return "realtime"
}

// TimeController drives simulation time, fires pending timers in deadline
// order and notifies registered listeners.
type TimeController struct {
	mu        sync.RWMutex
	StartTime time.Time
	Tick      time.Duration
	Mode      Mode

	currentTime time.Time

	timers timerQueue
	seq    uint64

	listeners []func(time.Time)
}

// NewTimeController constructs a controller.
func NewTimeController(start time.Time, tick time.Duration, mode Mode) *TimeController {
	return &TimeController{
		StartTime:   start,
		Tick:        tick,
		Mode:        mode,
		currentTime: start,
	}
}

// Now returns the current simulation time. Implements SimClock.
func (tc *TimeController) Now() time.Time {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.currentTime
}

// Elapsed returns the simulation time since StartTime. Implements SimClock.
func (tc *TimeController) Elapsed() time.Duration {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.currentTime.Sub(tc.StartTime)
}

// SetTime moves the clock without firing timers or listeners.
func (tc *TimeController) SetTime(t time.Time) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.currentTime = t
}

// After returns a channel that receives the simulation time once d has
// elapsed in simulation time. Timers fire from Advance or Start.
func (tc *TimeController) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.schedule(tc.currentTime.Add(d), func(now time.Time) { ch <- now })
	return ch
}

// Schedule registers fn to run when simulation time reaches at. Callbacks
// with equal deadlines run in registration order.
func (tc *TimeController) Schedule(at time.Time, fn func(time.Time)) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.schedule(at, fn)
}

func (tc *TimeController) schedule(at time.Time, fn func(time.Time)) {
	tc.seq++
	heap.Push(&tc.timers, &timer{at: at, seq: tc.seq, fn: fn})
}

// Pending returns the number of timers that have not fired yet.
func (tc *TimeController) Pending() int {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.timers.Len()
}

// Advance moves simulation time forward to target, firing every timer whose
// deadline is at or before target. Each callback runs to completion with the
// clock set to its deadline before the next one is considered.
func (tc *TimeController) Advance(target time.Time) {
	for {
		tc.mu.Lock()
		if tc.timers.Len() == 0 || tc.timers[0].at.After(target) {
			if target.After(tc.currentTime) {
				tc.currentTime = target
			}
			tc.mu.Unlock()
			return
		}
		next := heap.Pop(&tc.timers).(*timer)
		if next.at.After(tc.currentTime) {
			tc.currentTime = next.at
		}
		now := tc.currentTime
		tc.mu.Unlock()

		next.fn(now)
	}
}

// RunPending fires all scheduled timers in deadline order, including timers
// registered by callbacks, and leaves the clock at the last deadline.
func (tc *TimeController) RunPending() {
	for {
		tc.mu.RLock()
		if tc.timers.Len() == 0 {
			tc.mu.RUnlock()
			return
		}
		at := tc.timers[0].at
		tc.mu.RUnlock()
		tc.Advance(at)
	}
}

// AddListener registers a callback invoked on every tick.
func (tc *TimeController) AddListener(fn func(time.Time)) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.listeners = append(tc.listeners, fn)
}

// Start runs the controller for the specified duration in a separate goroutine.
// It returns a channel that is closed when the controller finishes. A zero
// duration runs until the process exits.
func (tc *TimeController) Start(duration time.Duration) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)

		tc.mu.Lock()
		simTime := tc.StartTime
		tc.currentTime = simTime
		listeners := append([]func(time.Time){}, tc.listeners...)
		tc.mu.Unlock()

		elapsed := time.Duration(0)

		var ticker *time.Ticker
		if tc.Mode == RealTime {
			ticker = time.NewTicker(tc.Tick)
			defer ticker.Stop()
		}

		for {
			if duration > 0 && elapsed >= duration {
				return
			}

			if ticker != nil {
				<-ticker.C
			}
			simTime = simTime.Add(tc.Tick)
			elapsed += tc.Tick

			tc.Advance(simTime)

			for _, fn := range listeners {
				fn(simTime)
			}
		}
	}()
	return done
}

// Bucket quantizes elapsed simulation time to the nearest multiple of
// granularity seconds: round(elapsed/granularity) * granularity.
func Bucket(elapsed time.Duration, granularity int) int {
	if granularity <= 0 {
		granularity = 1
	}
	g := float64(granularity)
	return int(math.Round(elapsed.Seconds()/g) * g)
}

type timer struct {
	at  time.Time
	seq uint64
	fn  func(time.Time)
}

type timerQueue []*timer

func (q timerQueue) Len() int { return len(q) }

func (q timerQueue) Less(i, j int) bool {
	if q[i].at.Equal(q[j].at) {
		return q[i].seq < q[j].seq
	}
	return q[i].at.Before(q[j].at)
}

func (q timerQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *timerQueue) Push(x any) { *q = append(*q, x.(*timer)) }

func (q *timerQueue) Pop() any {
	old := *q
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return t
}
