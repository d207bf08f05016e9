package core

import (
	"fmt"
	"sort"

	"github.com/signalsfoundry/dwell-handover/model"
)

// MeasurementStore holds, per endpoint, the latest quality sample of every
// neighbour cell it has reported. It is not safe for concurrent use; the
// owning Engine serializes access.
type MeasurementStore struct {
	ues map[model.RNTI]map[model.CellID]model.QualitySample
}

// NewMeasurementStore returns an empty store.
func NewMeasurementStore() *MeasurementStore {
	return &MeasurementStore{ues: make(map[model.RNTI]map[model.CellID]model.QualitySample)}
}

// UpdateNeighbourMeasurement inserts or overwrites the sample for the
// endpoint/cell pair, creating the endpoint entry on first use.
func (s *MeasurementStore) UpdateNeighbourMeasurement(rnti model.RNTI, cellID model.CellID, rsrq uint8) error {
	if err := model.ValidateRSRQ(rsrq); err != nil {
		return fmt.Errorf("%w: cell %d: %v", ErrInvalidMeasurement, cellID, err)
	}
	row, ok := s.ues[rnti]
	if !ok {
		row = make(map[model.CellID]model.QualitySample)
		s.ues[rnti] = row
	}
	row[cellID] = model.QualitySample{CellID: cellID, RSRP: 0, RSRQ: rsrq}
	return nil
}

// GetNeighbours returns the endpoint's samples in ascending cell order, or
// false when nothing has been reported for it yet.
func (s *MeasurementStore) GetNeighbours(rnti model.RNTI) ([]model.QualitySample, bool) {
	row, ok := s.ues[rnti]
	if !ok {
		return nil, false
	}
	out := make([]model.QualitySample, 0, len(row))
	for _, sample := range row {
		out = append(out, sample)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CellID < out[j].CellID })
	return out, true
}

// Forget drops everything known about an endpoint.
func (s *MeasurementStore) Forget(rnti model.RNTI) bool {
	if _, ok := s.ues[rnti]; !ok {
		return false
	}
	delete(s.ues, rnti)
	return true
}

// Len returns the number of endpoints with at least one sample.
func (s *MeasurementStore) Len() int { return len(s.ues) }

// RNTIs returns the known endpoints in ascending order.
func (s *MeasurementStore) RNTIs() []model.RNTI {
	out := make([]model.RNTI, 0, len(s.ues))
	for rnti := range s.ues {
		out = append(out, rnti)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
