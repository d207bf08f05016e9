package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/signalsfoundry/dwell-handover/internal/config"
	"github.com/signalsfoundry/dwell-handover/internal/logging"
	"github.com/signalsfoundry/dwell-handover/internal/observability"
	"github.com/signalsfoundry/dwell-handover/internal/sink"
	"github.com/signalsfoundry/dwell-handover/internal/transport"
)

func TestBuildServerRegistersServices(t *testing.T) {
	scenario := filepath.Join(t.TempDir(), "scenario.json")
	body := `{"stations":[{"cell_id":1,"name":"a","kind":"terrestrial","lat":37.3,"lon":-121.9,"alt_km":0.05}],"endpoints":[]}`
	if err := os.WriteFile(scenario, []byte(body), 0o644); err != nil {
		t.Fatalf("write scenario: %v", err)
	}
	cfg := config.Default()
	cfg.Scenario = scenario
	cfg.Sinks.Kind = sink.KindNone

	reg := prometheus.NewRegistry()
	rpc, err := observability.NewRPCCollector(reg)
	if err != nil {
		t.Fatalf("NewRPCCollector: %v", err)
	}
	metrics, err := observability.NewHandoverCollector(reg)
	if err != nil {
		t.Fatalf("NewHandoverCollector: %v", err)
	}

	srv, clock, err := buildServer(context.Background(), &cfg, logging.Noop(), rpc, metrics, sink.Noop{})
	if err != nil {
		t.Fatalf("buildServer: %v", err)
	}
	defer srv.Stop()
	if clock == nil {
		t.Fatalf("buildServer returned a nil clock")
	}
	info := srv.GetServiceInfo()
	if _, ok := info[transport.ServiceName]; !ok {
		t.Fatalf("report service not registered: %v", info)
	}
	if _, ok := info["grpc.health.v1.Health"]; !ok {
		t.Fatalf("health service not registered")
	}
}

func TestBuildServerRejectsBadScenario(t *testing.T) {
	cfg := config.Default()
	cfg.Scenario = filepath.Join(t.TempDir(), "missing.json")
	_, _, err := buildServer(context.Background(), &cfg, logging.Noop(), nil, nil, sink.Noop{})
	if err == nil {
		t.Fatalf("expected error for missing scenario")
	}
}
