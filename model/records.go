package model

// CandidateObservation is emitted once per neighbour cell considered during
// a handover evaluation.
type CandidateObservation struct {
	Bucket       int
	RNTI         RNTI
	CellID       CellID
	StationID    int
	RSRQ         uint8
	DwellSeconds int

	Endpoint Motion
	Station  Motion
}

// HandoverEvent is emitted when a handover was triggered.
type HandoverEvent struct {
	Bucket       int
	RNTI         RNTI
	ServingCell  CellID
	TargetCell   CellID
	ServingRSRQ  uint8
	TargetRSRQ   uint8
	DwellSeconds int
	// LockedUntil is the lock deadline after the handover, or -1 when the
	// engine does not extend locks.
	LockedUntil int
}
