package model

import "fmt"

// RSRQ bounds in the quantized reporting range of 3GPP TS 36.133 §9.1.7.
const (
	MinRSRQ uint8 = 0
	MaxRSRQ uint8 = 34
)

// QualitySample is the latest measured quality of one neighbour cell.
// RSRP is carried for completeness and always zero.
type QualitySample struct {
	CellID CellID
	RSRP   uint8
	RSRQ   uint8
}

// ValidateRSRQ reports whether v lies in the quantized RSRQ range.
func ValidateRSRQ(v uint8) error {
	if v > MaxRSRQ {
		return fmt.Errorf("rsrq %d outside [%d,%d]", v, MinRSRQ, MaxRSRQ)
	}
	return nil
}

// EventType is the measurement-report trigger kind.
type EventType int

const (
	// EventA2 fires when the serving cell becomes worse than a threshold.
	EventA2 EventType = iota + 1
	// EventA4 fires when a neighbour cell becomes better than a threshold.
	EventA4
)

func (e EventType) String() string {
	switch e {
	case EventA2:
		return "A2"
	case EventA4:
		return "A4"
	default:
		return "unknown"
	}
}

// ReportConfig describes one measurement-report trigger requested from the RRC.
type ReportConfig struct {
	Event     EventType
	Threshold uint8 // RSRQ range
	// IntervalMs is the periodic reporting interval in milliseconds.
	IntervalMs int
}

// NeighbourResult is one neighbour entry inside a measurement report.
type NeighbourResult struct {
	CellID  CellID
	RSRQ    uint8
	HasRSRQ bool
}

// MeasResults is an inbound measurement report for one endpoint.
type MeasResults struct {
	MeasID     uint8
	RSRQ       uint8 // serving cell
	Neighbours []NeighbourResult
}
