package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/signalsfoundry/dwell-handover/core"
	"github.com/signalsfoundry/dwell-handover/internal/config"
	"github.com/signalsfoundry/dwell-handover/internal/logging"
	"github.com/signalsfoundry/dwell-handover/internal/observability"
	"github.com/signalsfoundry/dwell-handover/internal/sink"
	"github.com/signalsfoundry/dwell-handover/kb"
	"github.com/signalsfoundry/dwell-handover/model"
	"github.com/signalsfoundry/dwell-handover/timectrl"
)

func main() {
	configPath := flag.String("config", "", "YAML configuration file (HANDOVER_* env vars override it)")
	tracePath := flag.String("trace", "data/sample-trace.csv", "CSV report trace to replay")
	scenarioPath := flag.String("scenario", "", "station/endpoint scenario JSON (overrides config)")
	flag.Parse()

	log := logging.NewFromEnv()
	ctx := context.Background()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error(ctx, "invalid configuration", logging.Err(err))
		os.Exit(1)
	}
	if *scenarioPath != "" {
		cfg.Scenario = *scenarioPath
	}

	f, err := os.Open(*tracePath)
	if err != nil {
		log.Error(ctx, "failed to open trace", logging.String("path", *tracePath), logging.Err(err))
		os.Exit(1)
	}
	defer f.Close()

	summary, err := run(ctx, cfg, f, log)
	if err != nil {
		log.Error(ctx, "simulation failed", logging.Err(err))
		os.Exit(1)
	}
	summary.print(os.Stdout)
}

// simExecutor stands in for the RRC: it accepts every handover and keeps
// per-target counts.
type simExecutor struct {
	mu      sync.Mutex
	log     logging.Logger
	targets map[model.CellID]int
}

func (s *simExecutor) TriggerHandover(ctx context.Context, rnti model.RNTI, target model.CellID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.targets[target]++
	s.log.Debug(ctx, "handover executed", logging.Int("rnti", int(rnti)), logging.Int("target_cell_id", int(target)))
	return nil
}

type summary struct {
	Events    int
	Outcomes  map[core.Outcome]int
	Targets   map[model.CellID]int
	Errors    int
	Cells     []model.CellID
	DwellSize int
}

func (s summary) print(w io.Writer) {
	fmt.Fprintf(w, "Replayed %d reports over %d serving cells (%d errors)\n", s.Events, len(s.Cells), s.Errors)
	outcomes := make([]string, 0, len(s.Outcomes))
	for o := range s.Outcomes {
		outcomes = append(outcomes, string(o))
	}
	sort.Strings(outcomes)
	for _, o := range outcomes {
		fmt.Fprintf(w, "  %-16s %d\n", o, s.Outcomes[core.Outcome(o)])
	}
	targets := make([]model.CellID, 0, len(s.Targets))
	for c := range s.Targets {
		targets = append(targets, c)
	}
	sort.Slice(targets, func(i, j int) bool { return targets[i] < targets[j] })
	for _, c := range targets {
		fmt.Fprintf(w, "  handovers to cell %d: %d\n", c, s.Targets[c])
	}
	fmt.Fprintf(w, "Dwell entries in memory: %d\n", s.DwellSize)
}

// run replays the trace through a fleet on a discrete-event clock. Every
// report is scheduled at its trace time; satellite stations are propagated
// before each report is handled.
func run(ctx context.Context, cfg *config.Config, trace io.Reader, log logging.Logger) (summary, error) {
	engineCfg, err := cfg.EngineConfig()
	if err != nil {
		return summary{}, err
	}
	events, err := parseTrace(trace)
	if err != nil {
		return summary{}, err
	}

	registry := kb.NewKnowledgeBase()
	if cfg.Scenario != "" {
		if err := loadScenario(registry, cfg.Scenario); err != nil {
			return summary{}, err
		}
	}
	propagator := kb.NewPropagator(registry)

	collector, err := observability.NewHandoverCollector(prometheus.NewRegistry())
	if err != nil {
		return summary{}, err
	}

	dwellOpts := []core.DwellOption{core.WithDwellLogger(log), core.WithDwellMetrics(collector)}
	if cfg.Engine.Seed != 0 {
		dwellOpts = append(dwellOpts, core.WithSeed(cfg.Engine.Seed))
	}
	dwell := core.NewDwellTimeProvider(cfg.Engine.DatasetPath, dwellOpts...)

	recorder := sink.Open(ctx, cfg.SinkOptions(), log)
	defer func() {
		if err := recorder.Close(); err != nil {
			log.Warn(ctx, "closing sink failed", logging.Err(err))
		}
	}()

	exec := &simExecutor{log: log, targets: make(map[model.CellID]int)}
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := timectrl.NewTimeController(start, time.Second, timectrl.Accelerated)

	fleet, err := core.NewFleet(engineCfg, clock, exec, dwell,
		core.WithLogger(log),
		core.WithRegistry(registry),
		core.WithRecorder(recorder),
		core.WithMetricsRecorder(collector),
	)
	if err != nil {
		return summary{}, err
	}

	s := summary{Events: len(events), Outcomes: make(map[core.Outcome]int)}
	for _, ev := range events {
		ev := ev
		clock.Schedule(start.Add(ev.At), func(simTime time.Time) {
			if err := propagator.Step(simTime); err != nil {
				log.Warn(ctx, "station propagation failed", logging.Err(err))
			}
			outcome, err := dispatch(ctx, fleet, ev)
			if err != nil {
				s.Errors++
				log.Warn(ctx, "report failed", logging.Int("line", ev.line), logging.Err(err))
			}
			if outcome != "" {
				s.Outcomes[outcome]++
			}
		})
	}
	clock.RunPending()

	s.Targets = exec.targets
	s.Cells = fleet.Cells()
	s.DwellSize = dwell.Len()
	return s, nil
}

func dispatch(ctx context.Context, fleet *core.Fleet, ev traceEvent) (core.Outcome, error) {
	if ev.Kind == "detach" {
		fleet.Forget(ev.RNTI)
		return "", nil
	}
	engine, err := fleet.Engine(ctx, ev.ServingCell)
	if err != nil {
		return "", err
	}
	var d core.Decision
	switch ev.Kind {
	case "a2":
		d, err = engine.ReportServing(ctx, ev.RNTI, ev.RSRQ)
	case "a4":
		d, err = engine.ReportNeighbours(ctx, ev.RNTI, ev.Neighbours)
	}
	return d.Outcome, err
}

func loadScenario(registry *kb.KnowledgeBase, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open scenario %q: %w", path, err)
	}
	defer f.Close()
	if _, err := kb.LoadScenario(registry, f); err != nil {
		return fmt.Errorf("load scenario %q: %w", path, err)
	}
	return nil
}
