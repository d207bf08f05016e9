package core

import (
	"context"
	"time"

	"github.com/signalsfoundry/dwell-handover/model"
)

// StationRegistry resolves neighbour cells to base stations and positions.
// kb.KnowledgeBase is the production implementation.
type StationRegistry interface {
	// BaseStationID maps a cell to its base-station id. ok is false when the
	// cell is unknown; the returned id is then the cell id itself.
	BaseStationID(cellID model.CellID) (int, bool)
	StationPosition(cellID model.CellID) (model.Motion, bool)
	EndpointPosition(rnti model.RNTI, bucket int) (model.Motion, bool)
}

// identityRegistry maps every cell to a station with the same id and knows
// no positions.
type identityRegistry struct{}

func (identityRegistry) BaseStationID(cellID model.CellID) (int, bool) { return int(cellID), false }
func (identityRegistry) StationPosition(model.CellID) (model.Motion, bool) {
	return model.Motion{}, false
}
func (identityRegistry) EndpointPosition(model.RNTI, int) (model.Motion, bool) {
	return model.Motion{}, false
}

// HandoverExecutor carries out a handover decision, typically by informing
// the RRC of the serving base station. Implementations must not call back
// into the Engine that invoked them.
type HandoverExecutor interface {
	TriggerHandover(ctx context.Context, rnti model.RNTI, target model.CellID) error
}

// ExecutorFunc adapts a function to HandoverExecutor.
type ExecutorFunc func(ctx context.Context, rnti model.RNTI, target model.CellID) error

func (f ExecutorFunc) TriggerHandover(ctx context.Context, rnti model.RNTI, target model.CellID) error {
	return f(ctx, rnti, target)
}

// ReportRegistrar accepts measurement-report configurations and returns
// the measurement id reports for that configuration will carry.
type ReportRegistrar interface {
	AddUeMeasReportConfig(ctx context.Context, cfg model.ReportConfig) (uint8, error)
}

// StaticRegistrar hands out consecutive measurement ids starting at 1 and
// remembers what was registered.
type StaticRegistrar struct {
	next    uint8
	Configs map[uint8]model.ReportConfig
}

func (r *StaticRegistrar) AddUeMeasReportConfig(_ context.Context, cfg model.ReportConfig) (uint8, error) {
	if r.Configs == nil {
		r.Configs = make(map[uint8]model.ReportConfig)
	}
	r.next++
	r.Configs[r.next] = cfg
	return r.next, nil
}

// ObservationRecorder persists the instrumentation records of evaluations.
type ObservationRecorder interface {
	RecordCandidate(ctx context.Context, obs model.CandidateObservation) error
	RecordHandover(ctx context.Context, ev model.HandoverEvent) error
}

type noopRecorder struct{}

func (noopRecorder) RecordCandidate(context.Context, model.CandidateObservation) error { return nil }
func (noopRecorder) RecordHandover(context.Context, model.HandoverEvent) error         { return nil }

// MetricsRecorder receives engine-level counters.
type MetricsRecorder interface {
	ObserveEvaluation(outcome string, d time.Duration)
	IncReport(kind, result string)
	SetUEContexts(cell string, n int)
}
