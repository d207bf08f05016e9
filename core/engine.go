package core

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/dwell-handover/internal/logging"
	"github.com/signalsfoundry/dwell-handover/model"
	"github.com/signalsfoundry/dwell-handover/timectrl"
)

const tracerName = "github.com/signalsfoundry/dwell-handover/core"

// Report intervals requested from the RRC.
const (
	A2ReportInterval = 240 * time.Millisecond
	A4ReportInterval = 480 * time.Millisecond
)

// Config holds the tunables of one Engine.
type Config struct {
	// ServingCellThreshold is the A2 threshold in the RSRQ range [0,34].
	// Reports with a serving RSRQ above it are rejected.
	ServingCellThreshold uint8
	// NeighbourCellOffset is the minimum RSRQ advantage of the best
	// neighbour over the serving cell.
	NeighbourCellOffset uint8
	Mode                DwellMode
	// BucketGranularity is the time-bucket width in seconds.
	BucketGranularity int
	LockScope         LockScope
}

// DefaultConfig returns the reference tuning.
func DefaultConfig() Config {
	return Config{
		ServingCellThreshold: 30,
		NeighbourCellOffset:  1,
		Mode:                 DwellDisabled,
		BucketGranularity:    1,
		LockScope:            LockPerEndpoint,
	}
}

// Validate checks ranges.
func (c Config) Validate() error {
	if c.ServingCellThreshold > model.MaxRSRQ {
		return fmt.Errorf("%w: serving cell threshold %d above %d", ErrInvalidConfig, c.ServingCellThreshold, model.MaxRSRQ)
	}
	if c.NeighbourCellOffset > model.MaxRSRQ {
		return fmt.Errorf("%w: neighbour cell offset %d above %d", ErrInvalidConfig, c.NeighbourCellOffset, model.MaxRSRQ)
	}
	if c.BucketGranularity < 1 {
		return fmt.Errorf("%w: bucket granularity must be >= 1s, got %d", ErrInvalidConfig, c.BucketGranularity)
	}
	if c.Mode != DwellDisabled && c.Mode != DwellPredictive {
		return fmt.Errorf("%w: unknown dwell mode %d", ErrInvalidConfig, c.Mode)
	}
	if c.LockScope < LockPerEndpoint || c.LockScope > LockShared {
		return fmt.Errorf("%w: unknown lock scope %d", ErrInvalidConfig, c.LockScope)
	}
	return nil
}

// Outcome labels the result of handling one report.
type Outcome string

const (
	OutcomeNoNeighbours   Outcome = "no_neighbours"
	OutcomeNoCandidate    Outcome = "no_candidate"
	OutcomeBelowOffset    Outcome = "below_offset"
	OutcomeLocked         Outcome = "locked"
	OutcomeTriggered      Outcome = "triggered"
	OutcomeRejected       Outcome = "rejected"
	OutcomeExecutorFailed Outcome = "executor_failed"

	// Non-evaluation outcomes of ReportUeMeas.
	OutcomeStored  Outcome = "stored"
	OutcomeIgnored Outcome = "ignored"
)

// Decision describes what an evaluation did.
type Decision struct {
	RNTI        model.RNTI
	Bucket      int
	ServingRSRQ uint8
	Outcome     Outcome
	// Candidates is the number of neighbours considered.
	Candidates int

	// Target fields are set when a best neighbour was found.
	Target       model.CellID
	TargetRSRQ   uint8
	DwellSeconds int
	// LockedUntil is the lock deadline after the evaluation.
	LockedUntil int
}

// Engine is the A2/A4 RSRQ handover decision engine of one serving cell,
// optionally gated by predicted dwell times. All methods are safe for
// concurrent use; calls on one Engine are serialized.
type Engine struct {
	mu sync.Mutex

	cfg      Config
	cellID   model.CellID
	clock    timectrl.SimClock
	executor HandoverExecutor

	store  *MeasurementStore
	locks  *lockTable
	shared *LockController

	dwell    *DwellTimeProvider
	validity NeighbourValidityPolicy
	registry StationRegistry
	recorder ObservationRecorder
	metrics  MetricsRecorder
	log      logging.Logger

	configured bool
	a2MeasID   uint8
	a4MeasID   uint8
}

// EngineOption customises Engine construction.
type EngineOption func(*Engine)

// WithCellID sets the serving cell the engine manages; it labels logs and metrics.
func WithCellID(id model.CellID) EngineOption {
	return func(e *Engine) { e.cellID = id }
}

// WithLogger attaches a structured logger.
func WithLogger(l logging.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithDwellProvider shares a dwell provider, e.g. across a Fleet.
func WithDwellProvider(p *DwellTimeProvider) EngineOption {
	return func(e *Engine) {
		if p != nil {
			e.dwell = p
		}
	}
}

// WithValidityPolicy replaces the default AllowAll policy.
func WithValidityPolicy(p NeighbourValidityPolicy) EngineOption {
	return func(e *Engine) {
		if p != nil {
			e.validity = p
		}
	}
}

// WithRegistry attaches the station registry.
func WithRegistry(r StationRegistry) EngineOption {
	return func(e *Engine) {
		if r != nil {
			e.registry = r
		}
	}
}

// WithRecorder attaches an instrumentation sink.
func WithRecorder(r ObservationRecorder) EngineOption {
	return func(e *Engine) {
		if r != nil {
			e.recorder = r
		}
	}
}

// WithMetricsRecorder attaches an optional metrics recorder.
func WithMetricsRecorder(m MetricsRecorder) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

// WithSharedLock supplies the lock used under LockShared.
func WithSharedLock(l *LockController) EngineOption {
	return func(e *Engine) { e.shared = l }
}

// NewEngine builds an Engine. The clock drives time bucketing and the
// executor receives triggered handovers.
func NewEngine(cfg Config, clock timectrl.SimClock, executor HandoverExecutor, opts ...EngineOption) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if clock == nil {
		return nil, fmt.Errorf("%w: clock is required", ErrInvalidConfig)
	}
	if executor == nil {
		return nil, fmt.Errorf("%w: handover executor is required", ErrInvalidConfig)
	}
	e := &Engine{
		cfg:      cfg,
		clock:    clock,
		executor: executor,
		store:    NewMeasurementStore(),
		validity: AllowAll{},
		registry: identityRegistry{},
		recorder: noopRecorder{},
		log:      logging.Noop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	if e.dwell == nil {
		e.dwell = NewDwellTimeProvider("", WithDwellLogger(e.log))
	}
	e.locks = newLockTable(cfg.LockScope, e.shared)
	e.log = e.log.With(logging.Int("cell_id", int(e.cellID)))
	return e, nil
}

// Config returns the engine configuration.
func (e *Engine) Config() Config { return e.cfg }

// CellID returns the managed serving cell.
func (e *Engine) CellID() model.CellID { return e.cellID }

// Configure registers the A2 and A4 report configurations and remembers
// the measurement ids used to dispatch inbound reports.
func (e *Engine) Configure(ctx context.Context, reg ReportRegistrar) error {
	if reg == nil {
		return fmt.Errorf("%w: report registrar is required", ErrInvalidConfig)
	}
	a2, err := reg.AddUeMeasReportConfig(ctx, model.ReportConfig{
		Event:      model.EventA2,
		Threshold:  e.cfg.ServingCellThreshold,
		IntervalMs: int(A2ReportInterval / time.Millisecond),
	})
	if err != nil {
		return fmt.Errorf("register A2 report config: %w", err)
	}
	a4, err := reg.AddUeMeasReportConfig(ctx, model.ReportConfig{
		Event:      model.EventA4,
		Threshold:  0,
		IntervalMs: int(A4ReportInterval / time.Millisecond),
	})
	if err != nil {
		return fmt.Errorf("register A4 report config: %w", err)
	}

	e.mu.Lock()
	e.a2MeasID, e.a4MeasID, e.configured = a2, a4, true
	e.mu.Unlock()

	e.log.Info(ctx, "requested measurement reports",
		logging.Int("a2_meas_id", int(a2)),
		logging.Int("a2_threshold", int(e.cfg.ServingCellThreshold)),
		logging.Int("a4_meas_id", int(a4)),
		logging.String("mode", e.cfg.Mode.String()),
	)
	return nil
}

// MeasIDs returns the A2 and A4 measurement ids; ok is false before Configure.
func (e *Engine) MeasIDs() (a2, a4 uint8, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.a2MeasID, e.a4MeasID, e.configured
}

// ReportUeMeas dispatches an inbound measurement report. A2 reports run a
// handover evaluation; A4 reports update the neighbour table.
func (e *Engine) ReportUeMeas(ctx context.Context, rnti model.RNTI, res model.MeasResults) (Decision, error) {
	e.mu.Lock()
	configured, a2, a4 := e.configured, e.a2MeasID, e.a4MeasID
	e.mu.Unlock()

	if !configured {
		e.incReport("unknown", "not_configured")
		return Decision{RNTI: rnti, Outcome: OutcomeIgnored}, ErrNotConfigured
	}

	switch res.MeasID {
	case a2:
		d, err := e.EvaluateHandover(ctx, rnti, res.RSRQ)
		result := "ok"
		if err != nil {
			result = "rejected"
		}
		e.incReport("a2", result)
		return d, err

	case a4:
		if len(res.Neighbours) == 0 {
			e.log.Warn(ctx, "event A4 received without measurement results from neighbouring cells",
				logging.Int("rnti", int(rnti)))
			e.incReport("a4", "empty")
			return Decision{RNTI: rnti, Outcome: OutcomeIgnored}, nil
		}
		stored := 0
		for _, n := range res.Neighbours {
			if !n.HasRSRQ {
				e.log.Warn(ctx, "RSRQ measurement is missing from neighbour",
					logging.Int("rnti", int(rnti)), logging.Int("neighbour_cell_id", int(n.CellID)))
				continue
			}
			if err := e.UpdateNeighbourMeasurements(ctx, rnti, n.CellID, n.RSRQ); err != nil {
				e.log.Warn(ctx, "dropping neighbour measurement",
					logging.Int("rnti", int(rnti)), logging.Err(err))
				continue
			}
			stored++
		}
		result := "ok"
		if stored < len(res.Neighbours) {
			result = "partial"
		}
		e.incReport("a4", result)
		return Decision{RNTI: rnti, Outcome: OutcomeStored, Candidates: stored}, nil

	default:
		e.log.Warn(ctx, "ignoring measurement report", logging.Int("meas_id", int(res.MeasID)))
		e.incReport("unknown", "ignored")
		return Decision{RNTI: rnti, Outcome: OutcomeIgnored}, fmt.Errorf("%w: %d", ErrUnknownMeasID, res.MeasID)
	}
}

// UpdateNeighbourMeasurements stores the latest RSRQ of one neighbour cell
// as seen by rnti.
func (e *Engine) UpdateNeighbourMeasurements(ctx context.Context, rnti model.RNTI, cellID model.CellID, rsrq uint8) error {
	e.mu.Lock()
	err := e.store.UpdateNeighbourMeasurement(rnti, cellID, rsrq)
	n := e.store.Len()
	e.mu.Unlock()
	if err != nil {
		return err
	}
	if e.metrics != nil {
		e.metrics.SetUEContexts(e.cellLabel(), n)
	}
	return nil
}

// EvaluateHandover runs one handover evaluation for rnti whose serving cell
// RSRQ dropped to servingRSRQ.
func (e *Engine) EvaluateHandover(ctx context.Context, rnti model.RNTI, servingRSRQ uint8) (Decision, error) {
	start := time.Now()
	ctx, evalID := logging.EnsureEvaluationID(ctx)
	log := e.log.With(logging.String("evaluation_id", evalID), logging.Int("rnti", int(rnti)))

	ctx, span := otel.Tracer(tracerName).Start(ctx, "handover.Evaluate",
		trace.WithAttributes(
			attribute.Int("handover.cell_id", int(e.cellID)),
			attribute.Int("handover.rnti", int(rnti)),
			attribute.Int("handover.serving_rsrq", int(servingRSRQ)),
		))
	defer span.End()

	e.mu.Lock()
	d, err := e.evaluateLocked(ctx, log, rnti, servingRSRQ)
	e.mu.Unlock()

	span.SetAttributes(
		attribute.String("handover.outcome", string(d.Outcome)),
		attribute.Int("handover.bucket", d.Bucket),
	)
	if d.Outcome == OutcomeTriggered {
		span.SetAttributes(attribute.Int("handover.target_cell_id", int(d.Target)))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	if e.metrics != nil {
		e.metrics.ObserveEvaluation(string(d.Outcome), time.Since(start))
	}
	return d, err
}

func (e *Engine) evaluateLocked(ctx context.Context, log logging.Logger, rnti model.RNTI, servingRSRQ uint8) (Decision, error) {
	bucket := timectrl.Bucket(e.clock.Elapsed(), e.cfg.BucketGranularity)
	d := Decision{RNTI: rnti, Bucket: bucket, ServingRSRQ: servingRSRQ, LockedUntil: e.locks.peek(rnti)}

	if servingRSRQ > e.cfg.ServingCellThreshold {
		d.Outcome = OutcomeRejected
		err := fmt.Errorf("%w: serving rsrq %d above threshold %d", ErrInvalidReport, servingRSRQ, e.cfg.ServingCellThreshold)
		log.Warn(ctx, "rejecting measurement report", logging.Err(err))
		return d, err
	}

	if e.cfg.Mode == DwellPredictive {
		e.dwell.EnsureLoaded(ctx)
	}

	neighbours, ok := e.store.GetNeighbours(rnti)
	if !ok || len(neighbours) == 0 {
		log.Warn(ctx, "skipping handover evaluation because neighbour cells information is not found",
			logging.Int("bucket", bucket))
		d.Outcome = OutcomeNoNeighbours
		return d, nil
	}
	d.Candidates = len(neighbours)

	var (
		found     bool
		best      model.QualitySample
		bestDwell int
	)
	endpointPos, _ := e.registry.EndpointPosition(rnti, bucket)
	for _, n := range neighbours {
		stationID, _ := e.registry.BaseStationID(n.CellID)
		dwell, source := e.dwell.Lookup(ctx, bucket, stationID)
		stationPos, _ := e.registry.StationPosition(n.CellID)

		obs := model.CandidateObservation{
			Bucket:       bucket,
			RNTI:         rnti,
			CellID:       n.CellID,
			StationID:    stationID,
			RSRQ:         n.RSRQ,
			DwellSeconds: dwell,
			Endpoint:     endpointPos,
			Station:      stationPos,
		}
		if err := e.recorder.RecordCandidate(ctx, obs); err != nil {
			log.Warn(ctx, "failed to record candidate observation", logging.Err(err))
		}
		log.Debug(ctx, "candidate neighbour",
			logging.Int("bucket", bucket),
			logging.Int("neighbour_cell_id", int(n.CellID)),
			logging.Int("station_id", stationID),
			logging.Int("rsrq", int(n.RSRQ)),
			logging.Int("dwell_s", dwell),
			logging.String("dwell_source", string(source)),
		)

		if !e.validity.IsValid(n.CellID) {
			continue
		}
		if !found || n.RSRQ > best.RSRQ {
			found, best, bestDwell = true, n, dwell
		}
	}

	if !found {
		d.Outcome = OutcomeNoCandidate
		return d, nil
	}
	d.Target, d.TargetRSRQ, d.DwellSeconds = best.CellID, best.RSRQ, bestDwell

	if int(best.RSRQ)-int(servingRSRQ) < int(e.cfg.NeighbourCellOffset) {
		d.Outcome = OutcomeBelowOffset
		return d, nil
	}

	lock := e.locks.For(rnti)
	if lock.IsLocked(bucket) {
		d.LockedUntil = lock.LockedUntil()
		d.Outcome = OutcomeLocked
		log.Info(ctx, "skipping handover: serving cell has enough dwell time",
			logging.Int("bucket", bucket), logging.Int("locked_until", d.LockedUntil))
		return d, nil
	}

	if err := e.executor.TriggerHandover(ctx, rnti, best.CellID); err != nil {
		d.Outcome = OutcomeExecutorFailed
		log.Error(ctx, "handover executor failed",
			logging.Int("target_cell_id", int(best.CellID)), logging.Err(err))
		return d, fmt.Errorf("trigger handover to cell %d: %w", best.CellID, err)
	}
	d.Outcome = OutcomeTriggered

	lockedUntil := Unlocked
	if e.cfg.Mode == DwellPredictive {
		lockedUntil = lock.Extend(bucket, bestDwell)
		d.LockedUntil = lockedUntil
	}
	log.Info(ctx, "triggered handover",
		logging.Int("bucket", bucket),
		logging.Int("target_cell_id", int(best.CellID)),
		logging.Int("target_rsrq", int(best.RSRQ)),
		logging.Int("serving_rsrq", int(servingRSRQ)),
		logging.Int("locked_until", lockedUntil),
	)

	ev := model.HandoverEvent{
		Bucket:       bucket,
		RNTI:         rnti,
		ServingCell:  e.cellID,
		TargetCell:   best.CellID,
		ServingRSRQ:  servingRSRQ,
		TargetRSRQ:   best.RSRQ,
		DwellSeconds: bestDwell,
		LockedUntil:  lockedUntil,
	}
	if err := e.recorder.RecordHandover(ctx, ev); err != nil {
		log.Warn(ctx, "failed to record handover", logging.Err(err))
	}
	return d, nil
}

// Forget drops the neighbour table and per-endpoint lock of a detached
// endpoint. It reports whether the endpoint was known.
func (e *Engine) Forget(rnti model.RNTI) bool {
	e.mu.Lock()
	known := e.store.Forget(rnti)
	e.locks.forget(rnti)
	n := e.store.Len()
	e.mu.Unlock()
	if e.metrics != nil {
		e.metrics.SetUEContexts(e.cellLabel(), n)
	}
	return known
}

// Snapshot is a diagnostic view of engine state.
type Snapshot struct {
	CellID    model.CellID
	Mode      DwellMode
	LockScope LockScope
	// Neighbours holds the latest samples per endpoint, sorted by cell id.
	Neighbours map[model.RNTI][]model.QualitySample
	// LockedUntil holds per-endpoint deadlines under LockPerEndpoint.
	LockedUntil map[model.RNTI]int
	// SharedLockedUntil is the deadline under the cell and shared scopes.
	SharedLockedUntil int
	DwellEntries      int
}

// Snapshot returns a copy of the engine state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := Snapshot{
		CellID:            e.cellID,
		Mode:              e.cfg.Mode,
		LockScope:         e.cfg.LockScope,
		Neighbours:        make(map[model.RNTI][]model.QualitySample, e.store.Len()),
		LockedUntil:       e.locks.deadlines(),
		SharedLockedUntil: Unlocked,
		DwellEntries:      e.dwell.Len(),
	}
	for _, rnti := range e.store.RNTIs() {
		samples, _ := e.store.GetNeighbours(rnti)
		s.Neighbours[rnti] = samples
	}
	if e.locks.single != nil {
		s.SharedLockedUntil = e.locks.single.LockedUntil()
	}
	return s
}

func (e *Engine) incReport(kind, result string) {
	if e.metrics != nil {
		e.metrics.IncReport(kind, result)
	}
}

func (e *Engine) cellLabel() string {
	return strconv.Itoa(int(e.cellID))
}

// IsRejected reports whether err came from a report that violated the
// A2 threshold precondition.
func IsRejected(err error) bool {
	return errors.Is(err, ErrInvalidReport)
}

// ReportServing sends an A2 report through the configured measurement id.
func (e *Engine) ReportServing(ctx context.Context, rnti model.RNTI, rsrq uint8) (Decision, error) {
	a2, _, ok := e.MeasIDs()
	if !ok {
		return Decision{RNTI: rnti, Outcome: OutcomeIgnored}, ErrNotConfigured
	}
	return e.ReportUeMeas(ctx, rnti, model.MeasResults{MeasID: a2, RSRQ: rsrq})
}

// ReportNeighbours sends an A4 report through the configured measurement id.
func (e *Engine) ReportNeighbours(ctx context.Context, rnti model.RNTI, neighbours []model.NeighbourResult) (Decision, error) {
	_, a4, ok := e.MeasIDs()
	if !ok {
		return Decision{RNTI: rnti, Outcome: OutcomeIgnored}, ErrNotConfigured
	}
	return e.ReportUeMeas(ctx, rnti, model.MeasResults{MeasID: a4, Neighbours: neighbours})
}
