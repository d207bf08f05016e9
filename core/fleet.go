package core

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/signalsfoundry/dwell-handover/model"
	"github.com/signalsfoundry/dwell-handover/timectrl"
)

// Fleet manages one Engine per serving cell. Engines share the dwell
// provider, the engine options and, under LockShared, a single lock.
type Fleet struct {
	mu      sync.Mutex
	engines map[model.CellID]*Engine

	cfg      Config
	clock    timectrl.SimClock
	executor HandoverExecutor
	dwell    *DwellTimeProvider
	shared   *LockController
	opts     []EngineOption
}

// NewFleet validates cfg and prepares an empty fleet. dwell may be nil, in
// which case a synthesize-only provider is created.
func NewFleet(cfg Config, clock timectrl.SimClock, executor HandoverExecutor, dwell *DwellTimeProvider, opts ...EngineOption) (*Fleet, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if clock == nil || executor == nil {
		return nil, fmt.Errorf("%w: clock and handover executor are required", ErrInvalidConfig)
	}
	if dwell == nil {
		dwell = NewDwellTimeProvider("")
	}
	f := &Fleet{
		engines:  make(map[model.CellID]*Engine),
		cfg:      cfg,
		clock:    clock,
		executor: executor,
		dwell:    dwell,
		opts:     opts,
	}
	if cfg.LockScope == LockShared {
		f.shared = NewLockController()
	}
	return f, nil
}

// Engine returns the engine of a serving cell, creating and configuring it
// on first use.
func (f *Fleet) Engine(ctx context.Context, cell model.CellID) (*Engine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if e, ok := f.engines[cell]; ok {
		return e, nil
	}
	opts := append([]EngineOption{}, f.opts...)
	opts = append(opts, WithCellID(cell), WithDwellProvider(f.dwell), WithSharedLock(f.shared))
	e, err := NewEngine(f.cfg, f.clock, f.executor, opts...)
	if err != nil {
		return nil, fmt.Errorf("create engine for cell %d: %w", cell, err)
	}
	if err := e.Configure(ctx, &StaticRegistrar{}); err != nil {
		return nil, fmt.Errorf("configure engine for cell %d: %w", cell, err)
	}
	f.engines[cell] = e
	return e, nil
}

// Report routes a measurement report to the engine of the serving cell.
func (f *Fleet) Report(ctx context.Context, cell model.CellID, rnti model.RNTI, res model.MeasResults) (Decision, error) {
	e, err := f.Engine(ctx, cell)
	if err != nil {
		return Decision{RNTI: rnti, Outcome: OutcomeIgnored}, err
	}
	return e.ReportUeMeas(ctx, rnti, res)
}

// Cells returns the managed serving cells in ascending order.
func (f *Fleet) Cells() []model.CellID {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.CellID, 0, len(f.engines))
	for c := range f.engines {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Forget drops rnti from every engine and returns how many knew it.
func (f *Fleet) Forget(rnti model.RNTI) int {
	f.mu.Lock()
	engines := make([]*Engine, 0, len(f.engines))
	for _, e := range f.engines {
		engines = append(engines, e)
	}
	f.mu.Unlock()

	n := 0
	for _, e := range engines {
		if e.Forget(rnti) {
			n++
		}
	}
	return n
}

// Dwell returns the shared dwell provider.
func (f *Fleet) Dwell() *DwellTimeProvider { return f.dwell }

// SharedLock returns the fleet-wide lock, nil unless the scope is LockShared.
func (f *Fleet) SharedLock() *LockController { return f.shared }
