package sink

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/signalsfoundry/dwell-handover/model"
)

// Default file names, relative to the output directory.
const (
	CandidateFile = "log-candidate-base-stations.csv"
	HandoverFile  = "log-handovers.csv"
)

type candidateKey struct {
	bucket int
	cell   model.CellID
}

// CSVRecorder writes candidate rows
// `timeBucket,endpointX,endpointY,stationX,stationY,baseStationId`, one per
// distinct (bucket, cell), and appends handover rows
// `timeBucket,rnti,servingCell,targetCell,servingRsrq,targetRsrq,dwellSeconds,lockedUntil`.
type CSVRecorder struct {
	mu sync.Mutex

	candFile *os.File
	candW    *csv.Writer
	seen     map[candidateKey]struct{}

	hoFile *os.File
	hoW    *csv.Writer
}

// OpenCSV creates (truncating) the candidate file and opens the handover
// file for appending, both under dir.
func OpenCSV(dir string) (*CSVRecorder, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create sink dir: %w", err)
	}
	cand, err := os.Create(filepath.Join(dir, CandidateFile))
	if err != nil {
		return nil, fmt.Errorf("open candidate log: %w", err)
	}
	ho, err := os.OpenFile(filepath.Join(dir, HandoverFile), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		_ = cand.Close()
		return nil, fmt.Errorf("open handover log: %w", err)
	}
	return &CSVRecorder{
		candFile: cand,
		candW:    csv.NewWriter(cand),
		seen:     make(map[candidateKey]struct{}),
		hoFile:   ho,
		hoW:      csv.NewWriter(ho),
	}, nil
}

// RecordCandidate writes the observation unless its (bucket, cell) pair
// was already written.
func (r *CSVRecorder) RecordCandidate(_ context.Context, obs model.CandidateObservation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := candidateKey{bucket: obs.Bucket, cell: obs.CellID}
	if _, dup := r.seen[key]; dup {
		return nil
	}
	r.seen[key] = struct{}{}
	if err := r.candW.Write([]string{
		strconv.Itoa(obs.Bucket),
		formatFloat(obs.Endpoint.X),
		formatFloat(obs.Endpoint.Y),
		formatFloat(obs.Station.X),
		formatFloat(obs.Station.Y),
		strconv.Itoa(obs.StationID),
	}); err != nil {
		return fmt.Errorf("write candidate row: %w", err)
	}
	r.candW.Flush()
	return r.candW.Error()
}

// RecordHandover appends one handover row.
func (r *CSVRecorder) RecordHandover(_ context.Context, ev model.HandoverEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.hoW.Write([]string{
		strconv.Itoa(ev.Bucket),
		strconv.Itoa(int(ev.RNTI)),
		strconv.Itoa(int(ev.ServingCell)),
		strconv.Itoa(int(ev.TargetCell)),
		strconv.Itoa(int(ev.ServingRSRQ)),
		strconv.Itoa(int(ev.TargetRSRQ)),
		strconv.Itoa(ev.DwellSeconds),
		strconv.Itoa(ev.LockedUntil),
	}); err != nil {
		return fmt.Errorf("write handover row: %w", err)
	}
	r.hoW.Flush()
	return r.hoW.Error()
}

// Close flushes and closes both files.
func (r *CSVRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.candW.Flush()
	r.hoW.Flush()
	err1 := r.candFile.Close()
	err2 := r.hoFile.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
