package core

import (
	"errors"
	"testing"

	"github.com/signalsfoundry/dwell-handover/model"
)

func TestMeasurementStoreOverwritesAndOrders(t *testing.T) {
	s := NewMeasurementStore()
	if _, ok := s.GetNeighbours(1); ok {
		t.Fatalf("unknown endpoint should report not found")
	}
	for _, m := range []struct {
		cell model.CellID
		rsrq uint8
	}{{9, 10}, {3, 12}, {9, 20}} {
		if err := s.UpdateNeighbourMeasurement(1, m.cell, m.rsrq); err != nil {
			t.Fatalf("UpdateNeighbourMeasurement error: %v", err)
		}
	}
	got, ok := s.GetNeighbours(1)
	if !ok || len(got) != 2 {
		t.Fatalf("GetNeighbours = %+v,%v", got, ok)
	}
	if got[0].CellID != 3 || got[1].CellID != 9 || got[1].RSRQ != 20 {
		t.Fatalf("samples = %+v, want ascending cells with latest value", got)
	}
	if got[0].RSRP != 0 {
		t.Fatalf("RSRP = %d, want 0", got[0].RSRP)
	}
}

func TestMeasurementStoreRejectsOutOfRange(t *testing.T) {
	s := NewMeasurementStore()
	err := s.UpdateNeighbourMeasurement(1, 2, 35)
	if !errors.Is(err, ErrInvalidMeasurement) {
		t.Fatalf("err = %v, want ErrInvalidMeasurement", err)
	}
	if s.Len() != 0 {
		t.Fatalf("rejected sample created an endpoint entry")
	}
}
