package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/signalsfoundry/dwell-handover/model"
)

// traceEvent is one replayed report:
//
//	seconds,kind,servingCell,rnti,rsrq,neighbours
//
// kind is a2, a4 or detach; neighbours is "cell:rsrq;cell:rsrq" (a bare
// cell id means the RSRQ is missing).
type traceEvent struct {
	At          time.Duration
	Kind        string
	ServingCell model.CellID
	RNTI        model.RNTI
	RSRQ        uint8
	Neighbours  []model.NeighbourResult
	line        int
}

func parseTrace(r io.Reader) ([]traceEvent, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.Comment = '#'

	var events []traceEvent
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read trace: %w", err)
		}
		line, _ := cr.FieldPos(0)
		ev, err := parseTraceRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("trace line %d: %w", line, err)
		}
		ev.line = line
		events = append(events, ev)
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].At < events[j].At })
	return events, nil
}

func parseTraceRecord(rec []string) (traceEvent, error) {
	if len(rec) < 4 {
		return traceEvent{}, fmt.Errorf("want at least 4 fields, got %d", len(rec))
	}
	secs, err := strconv.ParseFloat(rec[0], 64)
	if err != nil || secs < 0 {
		return traceEvent{}, fmt.Errorf("bad time %q", rec[0])
	}
	cell, err := strconv.ParseUint(rec[2], 10, 16)
	if err != nil {
		return traceEvent{}, fmt.Errorf("bad serving cell %q", rec[2])
	}
	rnti, err := strconv.ParseUint(rec[3], 10, 16)
	if err != nil {
		return traceEvent{}, fmt.Errorf("bad rnti %q", rec[3])
	}
	ev := traceEvent{
		At:          time.Duration(secs * float64(time.Second)),
		Kind:        strings.ToLower(rec[1]),
		ServingCell: model.CellID(cell),
		RNTI:        model.RNTI(rnti),
	}

	switch ev.Kind {
	case "a2":
		if len(rec) < 5 {
			return ev, errors.New("a2 needs an rsrq field")
		}
		v, err := strconv.ParseUint(rec[4], 10, 8)
		if err != nil {
			return ev, fmt.Errorf("bad rsrq %q", rec[4])
		}
		ev.RSRQ = uint8(v)
	case "a4":
		if len(rec) >= 6 {
			ev.Neighbours, err = parseNeighbours(rec[5])
			if err != nil {
				return ev, err
			}
		}
	case "detach":
	default:
		return ev, fmt.Errorf("unknown kind %q", rec[1])
	}
	return ev, nil
}

func parseNeighbours(s string) ([]model.NeighbourResult, error) {
	var out []model.NeighbourResult
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		cellStr, rsrqStr, hasRSRQ := strings.Cut(part, ":")
		cell, err := strconv.ParseUint(cellStr, 10, 16)
		if err != nil {
			return nil, fmt.Errorf("bad neighbour cell %q", cellStr)
		}
		n := model.NeighbourResult{CellID: model.CellID(cell), HasRSRQ: hasRSRQ}
		if hasRSRQ {
			v, err := strconv.ParseUint(rsrqStr, 10, 8)
			if err != nil {
				return nil, fmt.Errorf("bad neighbour rsrq %q", rsrqStr)
			}
			n.RSRQ = uint8(v)
		}
		out = append(out, n)
	}
	return out, nil
}
