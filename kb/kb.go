package kb

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/signalsfoundry/dwell-handover/model"
)

var (
	ErrStationExists    = errors.New("base station already exists")
	ErrStationNotFound  = errors.New("base station not found")
	ErrEndpointExists   = errors.New("endpoint already exists")
	ErrEndpointNotFound = errors.New("endpoint not found")
)

// EventType indicates what kind of change happened in the KB.
type EventType int

const (
	EventStationMoved EventType = iota
	EventEndpointMoved
)

// Event is emitted to subscribers when a tracked position changes.
type Event struct {
	Type     EventType
	Station  model.BaseStation
	RNTI     model.RNTI
	Bucket   int
	Position model.Motion
}

// KnowledgeBase is an in-memory, thread-safe registry of candidate base
// stations and endpoint tracks. The decision engine only reads from it.
type KnowledgeBase struct {
	mu sync.RWMutex

	stations  map[model.CellID]*model.BaseStation
	endpoints map[model.RNTI]*model.Endpoint

	subs map[int]func(Event)
	next int
}

// NewKnowledgeBase constructs an empty KB.
func NewKnowledgeBase() *KnowledgeBase {
	return &KnowledgeBase{
		stations:  make(map[model.CellID]*model.BaseStation),
		endpoints: make(map[model.RNTI]*model.Endpoint),
		subs:      make(map[int]func(Event)),
	}
}

// AddStation registers a base station under its cell index.
func (kb *KnowledgeBase) AddStation(s *model.BaseStation) error {
	if s == nil {
		return fmt.Errorf("nil base station")
	}
	kb.mu.Lock()
	defer kb.mu.Unlock()

	if _, exists := kb.stations[s.CellID]; exists {
		return fmt.Errorf("%w: cell %d", ErrStationExists, s.CellID)
	}
	// store pointer so that motion models can update in-place
	kb.stations[s.CellID] = s
	return nil
}

// AddEndpoint registers an endpoint track.
func (kb *KnowledgeBase) AddEndpoint(e *model.Endpoint) error {
	if e == nil {
		return fmt.Errorf("nil endpoint")
	}
	kb.mu.Lock()
	defer kb.mu.Unlock()

	if _, exists := kb.endpoints[e.RNTI]; exists {
		return fmt.Errorf("%w: rnti %d", ErrEndpointExists, e.RNTI)
	}
	if e.Track == nil {
		e.Track = make(map[int]model.Motion)
	}
	kb.endpoints[e.RNTI] = e
	return nil
}

// GetStation returns a copy of the station registered for cellID.
func (kb *KnowledgeBase) GetStation(cellID model.CellID) (model.BaseStation, bool) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	s, ok := kb.stations[cellID]
	if !ok {
		return model.BaseStation{}, false
	}
	return *s, true
}

// ListStations returns a snapshot of all stations ordered by cell index.
func (kb *KnowledgeBase) ListStations() []model.BaseStation {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	res := make([]model.BaseStation, 0, len(kb.stations))
	for _, s := range kb.stations {
		res = append(res, *s)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CellID < res[j].CellID })
	return res
}

// BaseStationID maps a neighbour cell index to the dataset station id.
// Cells without a registry entry map to their own index.
func (kb *KnowledgeBase) BaseStationID(cellID model.CellID) (int, bool) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	if s, ok := kb.stations[cellID]; ok {
		return s.StationID, true
	}
	return int(cellID), false
}

// StationPosition returns the current position of the station serving cellID.
func (kb *KnowledgeBase) StationPosition(cellID model.CellID) (model.Motion, bool) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	if s, ok := kb.stations[cellID]; ok {
		return s.Coordinates, true
	}
	return model.Motion{}, false
}

// EndpointPosition returns the endpoint position recorded for bucket.
func (kb *KnowledgeBase) EndpointPosition(rnti model.RNTI, bucket int) (model.Motion, bool) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	e, ok := kb.endpoints[rnti]
	if !ok {
		return model.Motion{}, false
	}
	pos, ok := e.Track[bucket]
	return pos, ok
}

// UpdateStationPosition updates a station's coordinates and notifies subscribers.
func (kb *KnowledgeBase) UpdateStationPosition(cellID model.CellID, pos model.Motion) error {
	kb.mu.Lock()
	s, ok := kb.stations[cellID]
	if !ok {
		kb.mu.Unlock()
		return fmt.Errorf("%w: cell %d", ErrStationNotFound, cellID)
	}
	s.Coordinates = pos
	event := Event{Type: EventStationMoved, Station: *s, Position: pos}
	subs := kb.subscribersLocked()
	kb.mu.Unlock()

	// Notify subscribers outside the lock to avoid deadlocks.
	for _, sub := range subs {
		sub(event)
	}
	return nil
}

// RecordEndpointPosition stores the endpoint position for a time bucket,
// creating the endpoint if it is not yet known.
func (kb *KnowledgeBase) RecordEndpointPosition(rnti model.RNTI, bucket int, pos model.Motion) {
	kb.mu.Lock()
	e, ok := kb.endpoints[rnti]
	if !ok {
		e = &model.Endpoint{RNTI: rnti, Track: make(map[int]model.Motion)}
		kb.endpoints[rnti] = e
	}
	e.Track[bucket] = pos
	event := Event{Type: EventEndpointMoved, RNTI: rnti, Bucket: bucket, Position: pos}
	subs := kb.subscribersLocked()
	kb.mu.Unlock()

	for _, sub := range subs {
		sub(event)
	}
}

// Subscribe registers a callback for KB events. It returns an unsubscribe function.
func (kb *KnowledgeBase) Subscribe(fn func(Event)) (unsubscribe func()) {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	id := kb.next
	kb.next++
	kb.subs[id] = fn

	return func() {
		kb.mu.Lock()
		defer kb.mu.Unlock()
		delete(kb.subs, id)
	}
}

func (kb *KnowledgeBase) subscribersLocked() []func(Event) {
	ids := make([]int, 0, len(kb.subs))
	for id := range kb.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]func(Event), 0, len(ids))
	for _, id := range ids {
		out = append(out, kb.subs[id])
	}
	return out
}
