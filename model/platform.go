package model

// StationKind indicates how a base station's position is determined.
type StationKind int

const (
	StationTerrestrial StationKind = iota
	StationSatellite               // TLE-based orbit propagation
)

func (k StationKind) String() string {
	switch k {
	case StationSatellite:
		return "satellite"
	default:
		return "terrestrial"
	}
}

// Motion represents a position in ECEF metres.
type Motion struct {
	X float64
	Y float64
	Z float64
}

// BaseStation is a physical radio site serving one neighbour-cell index.
// CellID is the index used in measurement reports; StationID is the
// identifier used by the dwell-time dataset.
type BaseStation struct {
	CellID    CellID
	StationID int
	Name      string
	Kind      StationKind

	Coordinates Motion

	// TLE lines are only meaningful for StationSatellite.
	TLE1 string
	TLE2 string
}
