package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestUnaryInterceptorRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewRPCCollector(reg)
	if err != nil {
		t.Fatalf("NewRPCCollector: %v", err)
	}

	interceptor := collector.UnaryServerInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/handover.v1.MeasurementReportService/Report"}

	_, err = interceptor(context.Background(), struct{}{}, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		time.Sleep(time.Millisecond)
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("interceptor handler returned error: %v", err)
	}

	if got := testutil.ToFloat64(collector.RPCRequests.WithLabelValues("MeasurementReportService", "Report", "OK")); got != 1 {
		t.Fatalf("handover_rpc_requests_total = %v, want 1", got)
	}
	if count := histogramSampleCount(t, reg, "handover_rpc_request_duration_seconds", map[string]string{
		"service": "MeasurementReportService",
		"method":  "Report",
	}); count != 1 {
		t.Fatalf("handover_rpc_request_duration_seconds sample_count = %d, want 1", count)
	}
}

func TestUnaryInterceptorRecordsErrorCode(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewRPCCollector(reg)
	if err != nil {
		t.Fatalf("NewRPCCollector: %v", err)
	}

	interceptor := collector.UnaryServerInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/handover.v1.MeasurementReportService/Report"}
	_, _ = interceptor(context.Background(), struct{}{}, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return nil, status.Error(codes.InvalidArgument, "boom")
	})

	if got := testutil.ToFloat64(collector.RPCRequests.WithLabelValues("MeasurementReportService", "Report", "InvalidArgument")); got != 1 {
		t.Fatalf("handover_rpc_requests_total error label = %v, want 1", got)
	}
}

func TestCollectorsReuseRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewHandoverCollector(reg)
	if err != nil {
		t.Fatalf("NewHandoverCollector: %v", err)
	}
	second, err := NewHandoverCollector(reg)
	if err != nil {
		t.Fatalf("second NewHandoverCollector: %v", err)
	}
	first.IncReport("a2", "ok")
	if got := testutil.ToFloat64(second.Reports.WithLabelValues("a2", "ok")); got != 1 {
		t.Fatalf("second collector should share the registered vector, got %v", got)
	}
}

func TestHandoverCollectorRecords(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewHandoverCollector(reg)
	if err != nil {
		t.Fatalf("NewHandoverCollector: %v", err)
	}
	c.ObserveEvaluation("triggered", 2*time.Millisecond)
	c.ObserveEvaluation("locked", time.Millisecond)
	c.ObserveEvaluation("triggered", time.Millisecond)
	c.SetUEContexts("3", 4)
	c.ObserveDwellLookup("synthesized")
	c.SetDwellEntries(12)

	if got := testutil.ToFloat64(c.Evaluations.WithLabelValues("triggered")); got != 2 {
		t.Fatalf("handover_evaluations_total{triggered} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.UEContexts.WithLabelValues("3")); got != 4 {
		t.Fatalf("handover_ue_contexts{cell=3} = %v, want 4", got)
	}
	if got := testutil.ToFloat64(c.DwellEntries); got != 12 {
		t.Fatalf("handover_dwell_dataset_entries = %v, want 12", got)
	}
	if count := histogramSampleCount(t, reg, "handover_evaluation_duration_seconds", nil); count != 3 {
		t.Fatalf("evaluation duration sample_count = %d, want 3", count)
	}

	var nilCollector *HandoverCollector
	nilCollector.ObserveEvaluation("triggered", time.Millisecond)
	nilCollector.SetDwellEntries(1)
}

func TestMetricsHandlerExposesHandoverMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	rpc, err := NewRPCCollector(reg)
	if err != nil {
		t.Fatalf("NewRPCCollector: %v", err)
	}
	c, err := NewHandoverCollector(reg)
	if err != nil {
		t.Fatalf("NewHandoverCollector: %v", err)
	}
	c.IncReport("a4", "ok")
	c.ObserveDwellLookup("dataset")
	rpc.RPCRequests.WithLabelValues("svc", "method", "OK").Inc()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	rpc.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d, want 200", rr.Code)
	}
	body := rr.Body.String()
	for _, metric := range []string{
		"handover_rpc_requests_total",
		"handover_reports_total",
		"handover_dwell_lookups_total",
		"handover_dwell_dataset_entries",
	} {
		if !strings.Contains(body, metric) {
			t.Fatalf("expected %q in /metrics output", metric)
		}
	}
}

func TestSplitMethod(t *testing.T) {
	tests := []struct {
		in, service, method string
	}{
		{"/handover.v1.MeasurementReportService/Report", "MeasurementReportService", "Report"},
		{"", "unknown", "unknown"},
		{"Report", "unknown", "unknown"},
	}
	for _, tt := range tests {
		s, m := SplitMethod(tt.in)
		if s != tt.service || m != tt.method {
			t.Fatalf("SplitMethod(%q) = %q,%q; want %q,%q", tt.in, s, m, tt.service, tt.method)
		}
	}
}

func histogramSampleCount(t *testing.T, gatherer prometheus.Gatherer, name string, labels map[string]string) uint64 {
	t.Helper()

	metrics, err := gatherer.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.Metric {
			if matchLabels(m.GetLabel(), labels) && m.GetHistogram() != nil {
				return m.GetHistogram().GetSampleCount()
			}
		}
	}
	return 0
}

func matchLabels(got []*dto.LabelPair, want map[string]string) bool {
	if len(got) < len(want) {
		return false
	}
	matched := 0
	for _, lp := range got {
		if val, ok := want[lp.GetName()]; ok && val == lp.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}
