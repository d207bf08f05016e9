package core

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/signalsfoundry/dwell-handover/model"
	"github.com/signalsfoundry/dwell-handover/timectrl"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func newClock(elapsed time.Duration) *timectrl.TimeController {
	tc := timectrl.NewTimeController(epoch, time.Second, timectrl.Accelerated)
	tc.SetTime(epoch.Add(elapsed))
	return tc
}

type triggered struct {
	RNTI   model.RNTI
	Target model.CellID
}

type recordingExecutor struct {
	mu    sync.Mutex
	calls []triggered
	err   error
}

func (r *recordingExecutor) TriggerHandover(_ context.Context, rnti model.RNTI, target model.CellID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.calls = append(r.calls, triggered{RNTI: rnti, Target: target})
	return nil
}

func (r *recordingExecutor) Calls() []triggered {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]triggered(nil), r.calls...)
}

type memoryRecorder struct {
	mu         sync.Mutex
	candidates []model.CandidateObservation
	handovers  []model.HandoverEvent
}

func (m *memoryRecorder) RecordCandidate(_ context.Context, obs model.CandidateObservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.candidates = append(m.candidates, obs)
	return nil
}

func (m *memoryRecorder) RecordHandover(_ context.Context, ev model.HandoverEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handovers = append(m.handovers, ev)
	return nil
}

type failingRecorder struct{}

func (failingRecorder) RecordCandidate(context.Context, model.CandidateObservation) error {
	return errors.New("disk full")
}
func (failingRecorder) RecordHandover(context.Context, model.HandoverEvent) error {
	return errors.New("disk full")
}

func datasetOpener(body string) func() (io.ReadCloser, error) {
	return func() (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader(body)), nil
	}
}

func newTestEngine(t *testing.T, cfg Config, clock timectrl.SimClock, exec HandoverExecutor, opts ...EngineOption) *Engine {
	t.Helper()
	e, err := NewEngine(cfg, clock, exec, opts...)
	if err != nil {
		t.Fatalf("NewEngine error: %v", err)
	}
	return e
}
