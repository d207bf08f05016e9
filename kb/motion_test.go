package kb

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/signalsfoundry/dwell-handover/model"
)

const (
	issTLE1 = "1 25544U 98067A   21275.59097222  .00000204  00000-0  10270-4 0  9990"
	issTLE2 = "2 25544  51.6459 115.9059 0001817  61.3028  35.9198 15.49370953257760"
)

func TestStaticMotionModel_NoChange(t *testing.T) {
	m := &StaticMotionModel{}
	s := &model.BaseStation{Coordinates: model.Motion{X: 1, Y: 2, Z: 3}}

	m.UpdatePosition(time.Now().UTC(), s)
	if s.Coordinates != (model.Motion{X: 1, Y: 2, Z: 3}) {
		t.Fatalf("static motion should not change coordinates, got %#v", s.Coordinates)
	}
}

// We don't assert exact orbital values (those belong to go-satellite);
// we just ensure that positions differ at distinct times and sit in LEO.
func TestOrbitalSGP4MotionModel_ChangesOverTime(t *testing.T) {
	m := NewOrbitalModelFromTLE(issTLE1, issTLE2)
	s := &model.BaseStation{Kind: model.StationSatellite}

	t1 := time.Date(2021, 10, 2, 0, 0, 0, 0, time.UTC)
	m.UpdatePosition(t1, s)
	p1 := s.Coordinates

	m.UpdatePosition(t1.Add(10*time.Minute), s)
	p2 := s.Coordinates

	if p1 == p2 {
		t.Fatalf("expected orbital position to change over time")
	}
	r := math.Sqrt(p1.X*p1.X+p1.Y*p1.Y+p1.Z*p1.Z) / kmToM
	if r < 6500 || r > 7000 {
		t.Fatalf("orbital radius %.1f km outside LEO band", r)
	}
}

func TestNewMotionModelSelection(t *testing.T) {
	if _, ok := NewMotionModel(&model.BaseStation{}).(*StaticMotionModel); !ok {
		t.Fatalf("terrestrial station should use static motion")
	}
	sat := &model.BaseStation{Kind: model.StationSatellite, TLE1: issTLE1, TLE2: issTLE2}
	if _, ok := NewMotionModel(sat).(*OrbitalSGP4MotionModel); !ok {
		t.Fatalf("satellite station with TLE should use SGP4")
	}
}

func TestGeodeticToECEF(t *testing.T) {
	cases := []struct {
		name         string
		lat, lon     float64
		axis         int // 0=X, 1=Y, 2=Z
		wantPositive bool
	}{
		{"equator prime meridian", 0, 0, 0, true},
		{"equator 90E", 0, 90, 1, true},
		{"north pole", 90, 0, 2, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := GeodeticToECEF(tc.lat, tc.lon, 0)
			comps := []float64{p.X, p.Y, p.Z}
			for i, c := range comps {
				if i == tc.axis {
					if math.Abs(c/kmToM-6378) > 5 {
						t.Fatalf("axis %d = %.1f m, want about Earth radius", i, c)
					}
					continue
				}
				if math.Abs(c) > 1 {
					t.Fatalf("axis %d = %.3f m, want ~0 (pos %#v)", i, c, p)
				}
			}
		})
	}
}

func TestPropagatorMovesOnlySatellites(t *testing.T) {
	store := NewKnowledgeBase()
	ground := &model.BaseStation{CellID: 1, Coordinates: model.Motion{X: 10}}
	sat := &model.BaseStation{CellID: 2, Kind: model.StationSatellite, TLE1: issTLE1, TLE2: issTLE2}
	for _, s := range []*model.BaseStation{ground, sat} {
		if err := store.AddStation(s); err != nil {
			t.Fatalf("AddStation: %v", err)
		}
	}

	moved := map[model.CellID]int{}
	store.Subscribe(func(e Event) { moved[e.Station.CellID]++ })

	p := NewPropagator(store)
	if err := p.Step(time.Date(2021, 10, 2, 0, 0, 0, 0, time.UTC)); err != nil {
		t.Fatalf("Step: %v", err)
	}
	if moved[1] != 0 || moved[2] != 1 {
		t.Fatalf("moved = %v, want only satellite cell 2", moved)
	}
	if pos, _ := store.StationPosition(1); pos.X != 10 {
		t.Fatalf("ground station position changed: %#v", pos)
	}
	if pos, _ := store.StationPosition(2); pos == (model.Motion{}) {
		t.Fatalf("satellite position not propagated")
	}
}

func TestLoadScenario(t *testing.T) {
	doc := `{
	  "stations": [
	    {"cell_id": 7, "station_id": 3, "name": "mast-a", "lat": 0, "lon": 0},
	    {"cell_id": 9, "name": "mast-b", "x": 1, "y": 2, "z": 3}
	  ],
	  "endpoints": [
	    {"rnti": 1, "track": [{"t": 0, "x": 5, "y": 6}, {"t": 5, "x": 7, "y": 8}]}
	  ]
	}`
	store := NewKnowledgeBase()
	sc, err := LoadScenario(store, strings.NewReader(doc))
	if err != nil {
		t.Fatalf("LoadScenario: %v", err)
	}
	if len(sc.CellIDs) != 2 || len(sc.RNTIs) != 1 {
		t.Fatalf("summary = %#v", sc)
	}
	if id, _ := store.BaseStationID(7); id != 3 {
		t.Fatalf("BaseStationID(7) = %d, want 3", id)
	}
	if id, _ := store.BaseStationID(9); id != 9 {
		t.Fatalf("BaseStationID(9) = %d, want default 9", id)
	}
	if pos, _ := store.StationPosition(9); pos != (model.Motion{X: 1, Y: 2, Z: 3}) {
		t.Fatalf("StationPosition(9) = %#v", pos)
	}
	if pos, ok := store.EndpointPosition(1, 5); !ok || pos.X != 7 || pos.Y != 8 {
		t.Fatalf("EndpointPosition(1,5) = %#v,%v", pos, ok)
	}
}

func TestLoadScenarioRejectsSatelliteWithoutTLE(t *testing.T) {
	doc := `{"stations": [{"cell_id": 4, "kind": "satellite"}]}`
	if _, err := LoadScenario(NewKnowledgeBase(), strings.NewReader(doc)); err == nil {
		t.Fatalf("expected error for satellite without TLE")
	}
}
