package kb

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/signalsfoundry/dwell-handover/model"
)

// Scenario is a small summary of what was loaded from JSON.
type Scenario struct {
	CellIDs []model.CellID
	RNTIs   []model.RNTI
}

// internal JSON shapes – keep them unexported so we're free to evolve them.
type scenarioJSON struct {
	Stations  []stationJSON  `json:"stations"`
	Endpoints []endpointJSON `json:"endpoints"`
}

type stationJSON struct {
	CellID    uint16 `json:"cell_id"`
	StationID *int   `json:"station_id"` // optional; defaults to cell_id
	Name      string `json:"name"`
	Kind      string `json:"kind"` // "terrestrial" | "satellite"
	TLE1      string `json:"tle1"`
	TLE2      string `json:"tle2"`

	positionJSON
}

type endpointJSON struct {
	RNTI  uint16      `json:"rnti"`
	Name  string      `json:"name"`
	Track []trackJSON `json:"track"`
}

type trackJSON struct {
	Bucket int `json:"t"`
	positionJSON
}

// positionJSON accepts either geodetic (lat/lon in degrees, alt in km) or
// ECEF metres. Geodetic wins when both are present.
type positionJSON struct {
	Lat   *float64 `json:"lat"`
	Lon   *float64 `json:"lon"`
	AltKm float64  `json:"alt_km"`

	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func (p positionJSON) motion() model.Motion {
	if p.Lat != nil && p.Lon != nil {
		return GeodeticToECEF(*p.Lat, *p.Lon, p.AltKm)
	}
	return model.Motion{X: p.X, Y: p.Y, Z: p.Z}
}

// LoadScenario reads a JSON scenario from r, populates the KnowledgeBase with
// stations and endpoint tracks, and returns a summary of what was loaded.
func LoadScenario(kb *KnowledgeBase, r io.Reader) (*Scenario, error) {
	if kb == nil {
		return nil, fmt.Errorf("LoadScenario: kb is nil")
	}

	var payload scenarioJSON
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("LoadScenario: decode failed: %w", err)
	}

	result := &Scenario{
		CellIDs: make([]model.CellID, 0, len(payload.Stations)),
		RNTIs:   make([]model.RNTI, 0, len(payload.Endpoints)),
	}

	for _, js := range payload.Stations {
		kind := kindFromString(js.Kind)
		stationID := int(js.CellID)
		if js.StationID != nil {
			stationID = *js.StationID
		}
		if kind == model.StationSatellite && (js.TLE1 == "" || js.TLE2 == "") {
			return nil, fmt.Errorf("LoadScenario: satellite cell %d without TLE", js.CellID)
		}
		st := &model.BaseStation{
			CellID:      model.CellID(js.CellID),
			StationID:   stationID,
			Name:        js.Name,
			Kind:        kind,
			Coordinates: js.motion(),
			TLE1:        js.TLE1,
			TLE2:        js.TLE2,
		}
		if err := kb.AddStation(st); err != nil {
			return nil, fmt.Errorf("LoadScenario: %w", err)
		}
		result.CellIDs = append(result.CellIDs, st.CellID)
	}

	for _, je := range payload.Endpoints {
		ep := &model.Endpoint{
			RNTI:  model.RNTI(je.RNTI),
			Name:  je.Name,
			Track: make(map[int]model.Motion, len(je.Track)),
		}
		for _, pt := range je.Track {
			ep.Track[pt.Bucket] = pt.motion()
		}
		if err := kb.AddEndpoint(ep); err != nil {
			return nil, fmt.Errorf("LoadScenario: %w", err)
		}
		result.RNTIs = append(result.RNTIs, ep.RNTI)
	}

	return result, nil
}

// kindFromString is tolerant: unknown or empty values are terrestrial.
func kindFromString(s string) model.StationKind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "satellite", "ntn", "leo":
		return model.StationSatellite
	default:
		return model.StationTerrestrial
	}
}
