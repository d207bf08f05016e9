package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"

	"github.com/signalsfoundry/dwell-handover/core"
	"github.com/signalsfoundry/dwell-handover/internal/config"
	"github.com/signalsfoundry/dwell-handover/internal/logging"
	"github.com/signalsfoundry/dwell-handover/internal/observability"
	"github.com/signalsfoundry/dwell-handover/internal/sink"
	"github.com/signalsfoundry/dwell-handover/internal/transport"
	"github.com/signalsfoundry/dwell-handover/kb"
	"github.com/signalsfoundry/dwell-handover/model"
	"github.com/signalsfoundry/dwell-handover/timectrl"
)

func main() {
	configPath := flag.String("config", "", "YAML configuration file (HANDOVER_* env vars override it)")
	grpcAddr := flag.String("grpc-addr", "", "TCP address the report gRPC server listens on (overrides config)")
	metricsAddr := flag.String("metrics-addr", "", "HTTP address for Prometheus /metrics (overrides config)")
	flag.Parse()

	log := logging.NewFromEnv()
	ctx := context.Background()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error(ctx, "invalid configuration", logging.Err(err))
		os.Exit(1)
	}
	if *grpcAddr != "" {
		cfg.Server.GRPCAddr = *grpcAddr
	}
	if *metricsAddr != "" {
		cfg.Server.MetricsAddr = *metricsAddr
	}

	shutdownTracing, err := observability.InitTracing(ctx, cfg.Tracing, log)
	if err != nil {
		log.Error(ctx, "failed to initialise tracing", logging.Err(err))
		os.Exit(1)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	rpcCollector, err := observability.NewRPCCollector(nil)
	if err != nil {
		log.Error(ctx, "failed to initialise metrics collector", logging.Err(err))
		os.Exit(1)
	}
	handoverCollector, err := observability.NewHandoverCollector(nil)
	if err != nil {
		log.Error(ctx, "failed to initialise metrics collector", logging.Err(err))
		os.Exit(1)
	}
	metricsSrv := serveMetrics(cfg.Server.MetricsAddr, prometheus.DefaultGatherer, log)

	recorder := sink.Open(ctx, cfg.SinkOptions(), log)
	defer recorder.Close()

	srv, clock, err := buildServer(ctx, cfg, log, rpcCollector, handoverCollector, recorder)
	if err != nil {
		log.Error(ctx, "failed to build server", logging.Err(err))
		os.Exit(1)
	}

	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		log.Error(ctx, "failed to listen for gRPC", logging.String("addr", cfg.Server.GRPCAddr), logging.Err(err))
		os.Exit(1)
	}

	log.Info(ctx, "starting handover report server", logging.String("addr", cfg.Server.GRPCAddr))
	go func() {
		if err := srv.Serve(lis); err != nil {
			log.Error(ctx, "gRPC server exited", logging.Err(err))
		}
	}()

	stopCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	<-stopCtx.Done()

	log.Info(ctx, "shutting down handover server", logging.String("uptime", clock.Elapsed().String()))
	srv.GracefulStop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
}

// logExecutor accepts every handover and logs it; the RRC lives elsewhere.
type logExecutor struct {
	log logging.Logger
}

func (e logExecutor) TriggerHandover(ctx context.Context, rnti model.RNTI, target model.CellID) error {
	logging.LoggerFromContext(ctx, e.log).Info(ctx, "handover command issued",
		logging.Int("rnti", int(rnti)), logging.Int("target_cell_id", int(target)))
	return nil
}

// buildServer wires the fleet against a real-time clock and returns the
// gRPC server. Satellite stations from the scenario are propagated every
// clock tick.
func buildServer(ctx context.Context, cfg *config.Config, log logging.Logger, rpc *observability.RPCCollector, metrics *observability.HandoverCollector, recorder sink.Recorder) (*grpc.Server, *timectrl.TimeController, error) {
	engineCfg, err := cfg.EngineConfig()
	if err != nil {
		return nil, nil, err
	}

	registry := kb.NewKnowledgeBase()
	if cfg.Scenario != "" {
		f, err := os.Open(cfg.Scenario)
		if err != nil {
			return nil, nil, fmt.Errorf("open scenario: %w", err)
		}
		sc, err := kb.LoadScenario(registry, f)
		f.Close()
		if err != nil {
			return nil, nil, err
		}
		log.Info(ctx, "loaded scenario",
			logging.Int("stations", len(sc.CellIDs)), logging.Int("endpoints", len(sc.RNTIs)))
	}

	dwellOpts := []core.DwellOption{core.WithDwellLogger(log), core.WithDwellMetrics(metrics)}
	if cfg.Engine.Seed != 0 {
		dwellOpts = append(dwellOpts, core.WithSeed(cfg.Engine.Seed))
	}
	dwell := core.NewDwellTimeProvider(cfg.Engine.DatasetPath, dwellOpts...)

	clock := timectrl.NewTimeController(time.Now(), time.Second, timectrl.RealTime)
	propagator := kb.NewPropagator(registry)
	clock.AddListener(func(simTime time.Time) {
		if err := propagator.Step(simTime); err != nil {
			log.Warn(ctx, "station propagation failed", logging.Err(err))
		}
	})
	clock.Start(0)

	fleet, err := core.NewFleet(engineCfg, clock, logExecutor{log: log}, dwell,
		core.WithLogger(log),
		core.WithRegistry(registry),
		core.WithRecorder(recorder),
		core.WithMetricsRecorder(metrics),
	)
	if err != nil {
		return nil, nil, err
	}
	return transport.NewServer(fleet, log, rpc), clock, nil
}

func serveMetrics(addr string, gatherer prometheus.Gatherer, log logging.Logger) *http.Server {
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.HandlerFor(gatherer))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn(context.Background(), "metrics server exited", logging.Err(err))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}
