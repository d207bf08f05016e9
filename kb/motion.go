package kb

import (
	"fmt"
	"sort"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/signalsfoundry/dwell-handover/model"
)

const kmToM = 1000.0

// MotionModel updates a base station's position for a given simulation time.
type MotionModel interface {
	UpdatePosition(simTime time.Time, s *model.BaseStation)
}

// StaticMotionModel leaves the station's position unchanged.
type StaticMotionModel struct{}

// UpdatePosition for static motion does nothing.
func (m *StaticMotionModel) UpdatePosition(simTime time.Time, s *model.BaseStation) {}

// OrbitalSGP4MotionModel uses a TLE and SGP4 to update a non-terrestrial
// cell's position.
type OrbitalSGP4MotionModel struct {
	sat satellite.Satellite
}

// NewOrbitalModelFromTLE constructs an orbital model from TLE lines.
func NewOrbitalModelFromTLE(line1, line2 string) *OrbitalSGP4MotionModel {
	sat := satellite.TLEToSat(line1, line2, satellite.GravityWGS72)
	return &OrbitalSGP4MotionModel{sat: sat}
}

// UpdatePosition propagates the satellite to simTime and stores ECEF metres.
func (m *OrbitalSGP4MotionModel) UpdatePosition(simTime time.Time, s *model.BaseStation) {
	year, month, day := simTime.Date()
	hour, min, sec := simTime.Clock()

	posECI, _ := satellite.Propagate(m.sat, year, int(month), day, hour, min, sec)
	jd := satellite.JDay(year, int(month), day, hour, min, sec)
	gmst := satellite.ThetaG_JD(jd)
	posECEF := satellite.ECIToECEF(posECI, gmst)

	s.Coordinates = model.Motion{
		X: posECEF.X * kmToM,
		Y: posECEF.Y * kmToM,
		Z: posECEF.Z * kmToM,
	}
}

// NewMotionModel chooses a MotionModel for the station: satellites with a
// TLE use SGP4, everything else is static.
func NewMotionModel(s *model.BaseStation) MotionModel {
	if s.Kind == model.StationSatellite && s.TLE1 != "" && s.TLE2 != "" {
		return NewOrbitalModelFromTLE(s.TLE1, s.TLE2)
	}
	return &StaticMotionModel{}
}

// GeodeticToECEF converts latitude/longitude in degrees and altitude in
// kilometres to ECEF metres on a spherical Earth. The ECI frame is rotated
// back by the same sidereal angle, so the result does not depend on epoch.
func GeodeticToECEF(latDeg, lonDeg, altKm float64) model.Motion {
	jd := satellite.JDay(2000, 1, 1, 12, 0, 0)
	obs := satellite.LatLong{
		Latitude:  latDeg * satellite.DEG2RAD,
		Longitude: lonDeg * satellite.DEG2RAD,
	}
	eci := satellite.LLAToECI(obs, altKm, jd)
	ecef := satellite.ECIToECEF(eci, satellite.ThetaG_JD(jd))
	return model.Motion{
		X: ecef.X * kmToM,
		Y: ecef.Y * kmToM,
		Z: ecef.Z * kmToM,
	}
}

// Propagator advances every registered station's motion model and pushes the
// new positions into the KB.
type Propagator struct {
	kb     *KnowledgeBase
	models map[model.CellID]MotionModel
}

// NewPropagator builds motion models for all stations currently in kb.
func NewPropagator(kb *KnowledgeBase) *Propagator {
	p := &Propagator{kb: kb, models: make(map[model.CellID]MotionModel)}
	for _, s := range kb.ListStations() {
		s := s
		p.models[s.CellID] = NewMotionModel(&s)
	}
	return p
}

// Step propagates all stations to simTime. Static stations are skipped.
func (p *Propagator) Step(simTime time.Time) error {
	cells := make([]model.CellID, 0, len(p.models))
	for id := range p.models {
		cells = append(cells, id)
	}
	sort.Slice(cells, func(i, j int) bool { return cells[i] < cells[j] })

	for _, id := range cells {
		m := p.models[id]
		if _, static := m.(*StaticMotionModel); static {
			continue
		}
		s, ok := p.kb.GetStation(id)
		if !ok {
			return fmt.Errorf("%w: cell %d", ErrStationNotFound, id)
		}
		m.UpdatePosition(simTime, &s)
		if err := p.kb.UpdateStationPosition(id, s.Coordinates); err != nil {
			return err
		}
	}
	return nil
}
