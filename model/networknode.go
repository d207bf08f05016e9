package model

// RNTI identifies an endpoint attached to a serving cell.
type RNTI uint16

// CellID identifies a radio cell as carried in measurement reports.
type CellID uint16

// Endpoint is a mobile endpoint (UE) whose position is tracked per time bucket.
type Endpoint struct {
	RNTI RNTI
	Name string

	// Track maps a time bucket (seconds) to the endpoint position at that time.
	Track map[int]Motion
}
