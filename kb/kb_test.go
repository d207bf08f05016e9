package kb

import (
	"errors"
	"sync"
	"testing"

	"github.com/signalsfoundry/dwell-handover/model"
)

func TestAddAndGetStation(t *testing.T) {
	store := NewKnowledgeBase()
	s := &model.BaseStation{CellID: 7, StationID: 107, Name: "north"}
	if err := store.AddStation(s); err != nil {
		t.Fatalf("AddStation error: %v", err)
	}
	got, ok := store.GetStation(7)
	if !ok || got.Name != "north" {
		t.Fatalf("GetStation returned %#v, want name north", got)
	}
	if id, mapped := store.BaseStationID(7); !mapped || id != 107 {
		t.Fatalf("BaseStationID(7) = %d,%v, want 107,true", id, mapped)
	}
}

func TestAddStationDuplicate(t *testing.T) {
	store := NewKnowledgeBase()
	if err := store.AddStation(&model.BaseStation{CellID: 1}); err != nil {
		t.Fatalf("first AddStation error: %v", err)
	}
	err := store.AddStation(&model.BaseStation{CellID: 1})
	if !errors.Is(err, ErrStationExists) {
		t.Fatalf("duplicate AddStation err = %v, want ErrStationExists", err)
	}
}

func TestUnknownCellMapsToItself(t *testing.T) {
	store := NewKnowledgeBase()
	id, mapped := store.BaseStationID(42)
	if mapped || id != 42 {
		t.Fatalf("BaseStationID(42) = %d,%v, want 42,false", id, mapped)
	}
	if _, ok := store.StationPosition(42); ok {
		t.Fatalf("StationPosition for unknown cell should report false")
	}
}

func TestEndpointTrack(t *testing.T) {
	store := NewKnowledgeBase()
	store.RecordEndpointPosition(3, 10, model.Motion{X: 1, Y: 2})
	store.RecordEndpointPosition(3, 15, model.Motion{X: 3, Y: 4})

	pos, ok := store.EndpointPosition(3, 15)
	if !ok || pos != (model.Motion{X: 3, Y: 4}) {
		t.Fatalf("EndpointPosition(3,15) = %#v,%v", pos, ok)
	}
	if _, ok := store.EndpointPosition(3, 20); ok {
		t.Fatalf("EndpointPosition for unrecorded bucket should report false")
	}
	if err := store.AddEndpoint(&model.Endpoint{RNTI: 3}); !errors.Is(err, ErrEndpointExists) {
		t.Fatalf("AddEndpoint for recorded rnti err = %v, want ErrEndpointExists", err)
	}
}

func TestListStationsOrdered(t *testing.T) {
	store := NewKnowledgeBase()
	for _, id := range []model.CellID{9, 2, 5} {
		if err := store.AddStation(&model.BaseStation{CellID: id}); err != nil {
			t.Fatalf("AddStation error: %v", err)
		}
	}
	got := store.ListStations()
	if len(got) != 3 || got[0].CellID != 2 || got[1].CellID != 5 || got[2].CellID != 9 {
		t.Fatalf("ListStations = %#v, want cells 2,5,9", got)
	}
}

func TestUpdateStationPositionAndSubscribe(t *testing.T) {
	store := NewKnowledgeBase()
	if err := store.AddStation(&model.BaseStation{CellID: 1}); err != nil {
		t.Fatalf("AddStation error: %v", err)
	}

	var got Event
	calls := 0
	unsubscribe := store.Subscribe(func(e Event) {
		got = e
		calls++
	})

	pos := model.Motion{X: 1, Y: 2, Z: 3}
	if err := store.UpdateStationPosition(1, pos); err != nil {
		t.Fatalf("UpdateStationPosition error: %v", err)
	}
	if got.Type != EventStationMoved || got.Station.Coordinates != pos {
		t.Fatalf("event = %#v, want station moved to %#v", got, pos)
	}

	unsubscribe()
	if err := store.UpdateStationPosition(1, model.Motion{}); err != nil {
		t.Fatalf("UpdateStationPosition error: %v", err)
	}
	if calls != 1 {
		t.Fatalf("subscriber called %d times after unsubscribe, want 1", calls)
	}

	if err := store.UpdateStationPosition(99, pos); !errors.Is(err, ErrStationNotFound) {
		t.Fatalf("UpdateStationPosition unknown err = %v, want ErrStationNotFound", err)
	}
}

func TestConcurrentAccess(t *testing.T) {
	store := NewKnowledgeBase()
	if err := store.AddStation(&model.BaseStation{CellID: 1}); err != nil {
		t.Fatalf("AddStation error: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(3)
		go func() {
			defer wg.Done()
			_, _ = store.StationPosition(1)
			_ = store.ListStations()
		}()
		go func() {
			defer wg.Done()
			_ = store.UpdateStationPosition(1, model.Motion{X: float64(i)})
		}()
		go func() {
			defer wg.Done()
			store.RecordEndpointPosition(model.RNTI(i), i, model.Motion{Y: float64(i)})
		}()
	}
	wg.Wait()
}
