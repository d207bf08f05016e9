package core

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"io/fs"
	"math"
	"math/rand/v2"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/signalsfoundry/dwell-handover/internal/logging"
)

// Synthesized dwell times are drawn uniformly from this closed range (seconds).
const (
	SynthDwellMin = 10
	SynthDwellMax = 20
)

// DwellMode selects whether dwell estimates gate handovers.
type DwellMode int

const (
	// DwellDisabled resolves dwell times for observation only; no lock-out.
	DwellDisabled DwellMode = iota
	// DwellPredictive loads the historical dataset and locks the endpoint
	// for the target's dwell time after each handover.
	DwellPredictive
)

func (m DwellMode) String() string {
	if m == DwellPredictive {
		return "predictive"
	}
	return "disabled"
}

// ParseDwellMode maps a config string to a DwellMode.
func ParseDwellMode(s string) (DwellMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "disabled", "conventional", "off":
		return DwellDisabled, nil
	case "predictive", "dwell":
		return DwellPredictive, nil
	default:
		return DwellDisabled, fmt.Errorf("%w: unknown dwell mode %q", ErrInvalidConfig, s)
	}
}

// DwellSource tells where a resolved dwell time came from.
type DwellSource string

const (
	DwellFromDataset     DwellSource = "dataset"
	DwellFromSynthesized DwellSource = "synthesized"
	DwellFromCache       DwellSource = "cache"
)

// DwellMetricsRecorder receives dwell lookup statistics.
type DwellMetricsRecorder interface {
	ObserveDwellLookup(source string)
	SetDwellEntries(n int)
}

// dwellKey is (time bucket, base station id).
type dwellKey struct {
	bucket    int
	stationID int
}

// DwellTimeProvider resolves residency estimates per (bucket, station). The
// dataset is loaded at most once; values missing from it are synthesized
// from the injected random source and written back so repeated lookups are
// stable.
type DwellTimeProvider struct {
	mu   sync.Mutex
	once sync.Once

	path string
	open func() (io.ReadCloser, error)

	entries     map[dwellKey]int
	synthesized map[dwellKey]bool
	loaded      bool

	rng     *rand.Rand
	log     logging.Logger
	metrics DwellMetricsRecorder
}

// DwellOption customises DwellTimeProvider construction.
type DwellOption func(*DwellTimeProvider)

// WithDwellLogger attaches a logger.
func WithDwellLogger(l logging.Logger) DwellOption {
	return func(p *DwellTimeProvider) {
		if l != nil {
			p.log = l
		}
	}
}

// WithSeed makes synthesized values reproducible.
func WithSeed(seed uint64) DwellOption {
	return func(p *DwellTimeProvider) {
		p.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
}

// WithRand injects a random source directly.
func WithRand(r *rand.Rand) DwellOption {
	return func(p *DwellTimeProvider) {
		if r != nil {
			p.rng = r
		}
	}
}

// WithDwellMetrics attaches a metrics recorder.
func WithDwellMetrics(m DwellMetricsRecorder) DwellOption {
	return func(p *DwellTimeProvider) {
		p.metrics = m
	}
}

// WithDatasetOpener replaces file access, mainly for tests and embedded data.
func WithDatasetOpener(open func() (io.ReadCloser, error)) DwellOption {
	return func(p *DwellTimeProvider) {
		p.open = open
	}
}

// NewDwellTimeProvider builds a provider reading the dataset at path. An
// empty path means every lookup is synthesized.
func NewDwellTimeProvider(path string, opts ...DwellOption) *DwellTimeProvider {
	now := uint64(time.Now().UnixNano())
	p := &DwellTimeProvider{
		path:        path,
		entries:     make(map[dwellKey]int),
		synthesized: make(map[dwellKey]bool),
		rng:         rand.New(rand.NewPCG(now, now>>1)),
		log:         logging.Noop(),
	}
	p.open = p.openFile
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *DwellTimeProvider) openFile() (io.ReadCloser, error) {
	if p.path == "" {
		return nil, fs.ErrNotExist
	}
	return os.Open(p.path)
}

// EnsureLoaded loads the dataset on first call. A missing or unreadable file
// is logged and leaves the dataset empty; it never fails the caller.
func (p *DwellTimeProvider) EnsureLoaded(ctx context.Context) {
	p.once.Do(func() {
		entries, err := p.readDataset(ctx)

		p.mu.Lock()
		defer p.mu.Unlock()
		p.loaded = true
		if err != nil {
			p.log.Warn(ctx, "dwell dataset unavailable; all lookups will be synthesized",
				logging.String("path", p.path), logging.Err(err))
			return
		}
		// Values synthesized before the load keep their place only where the
		// dataset has no entry.
		for k, v := range entries {
			p.entries[k] = v
			delete(p.synthesized, k)
		}
		p.log.Info(ctx, "parsed dwell time data",
			logging.String("path", p.path), logging.Int("entries", len(entries)))
		if p.metrics != nil {
			p.metrics.SetDwellEntries(len(p.entries))
		}
	})
}

func (p *DwellTimeProvider) readDataset(ctx context.Context) (map[dwellKey]int, error) {
	rc, err := p.open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	rows, err := ParseDwellDataset(rc, func(line int, rowErr error) {
		p.log.Warn(ctx, "skipping malformed dwell row", logging.Int("line", line), logging.Err(rowErr))
	})
	if err != nil {
		return nil, err
	}
	entries := make(map[dwellKey]int, len(rows))
	for _, r := range rows {
		entries[dwellKey{bucket: r.Bucket, stationID: r.StationID}] = r.Seconds
	}
	return entries, nil
}

// Loaded reports whether EnsureLoaded has run.
func (p *DwellTimeProvider) Loaded() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loaded
}

// Lookup returns the dwell time in seconds for the station at bucket. A
// missing or zero entry is replaced by a synthesized value in
// [SynthDwellMin, SynthDwellMax] which is stored for later lookups.
func (p *DwellTimeProvider) Lookup(ctx context.Context, bucket, stationID int) (int, DwellSource) {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := dwellKey{bucket: bucket, stationID: stationID}
	if v, ok := p.entries[key]; ok && v != 0 {
		source := DwellFromDataset
		if p.synthesized[key] {
			source = DwellFromCache
		}
		p.observe(source)
		return v, source
	}

	v := SynthDwellMin + p.rng.IntN(SynthDwellMax-SynthDwellMin+1)
	p.entries[key] = v
	p.synthesized[key] = true
	p.log.Debug(ctx, "synthesized dwell time",
		logging.Int("bucket", bucket), logging.Int("station_id", stationID), logging.Int("dwell_s", v))
	p.observe(DwellFromSynthesized)
	if p.metrics != nil {
		p.metrics.SetDwellEntries(len(p.entries))
	}
	return v, DwellFromSynthesized
}

func (p *DwellTimeProvider) observe(source DwellSource) {
	if p.metrics != nil {
		p.metrics.ObserveDwellLookup(string(source))
	}
}

// Len returns the number of known (bucket, station) entries.
func (p *DwellTimeProvider) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// DwellRow is one parsed dataset row.
type DwellRow struct {
	Bucket    int
	StationID int
	Seconds   int
}

// ParseDwellDataset reads headerless `timeBucket,baseStationId,dwellMinutes`
// rows and converts minutes to seconds with round(minutes*60). Each line is
// split on commas with no quoting, so a malformed line never spills into the
// next one. Malformed rows are reported to onBadRow (when non-nil) and
// skipped; blank lines and lines starting with '#' are ignored.
func ParseDwellDataset(r io.Reader, onBadRow func(line int, err error)) ([]DwellRow, error) {
	sc := bufio.NewScanner(r)
	var rows []DwellRow
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		row, err := parseDwellRecord(strings.Split(text, ","))
		if err != nil {
			if onBadRow != nil {
				onBadRow(line, err)
			}
			continue
		}
		rows = append(rows, row)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read dwell dataset: %w", err)
	}
	return rows, nil
}

func parseDwellRecord(rec []string) (DwellRow, error) {
	if len(rec) < 3 {
		return DwellRow{}, fmt.Errorf("want 3 fields, got %d", len(rec))
	}
	bucket, err := strconv.Atoi(strings.TrimSpace(rec[0]))
	if err != nil {
		return DwellRow{}, fmt.Errorf("time bucket: %w", err)
	}
	station, err := strconv.Atoi(strings.TrimSpace(rec[1]))
	if err != nil {
		return DwellRow{}, fmt.Errorf("base station id: %w", err)
	}
	minutes, err := strconv.ParseFloat(strings.TrimSpace(rec[2]), 64)
	if err != nil {
		return DwellRow{}, fmt.Errorf("dwell minutes: %w", err)
	}
	if minutes < 0 || math.IsNaN(minutes) || math.IsInf(minutes, 0) {
		return DwellRow{}, fmt.Errorf("dwell minutes %v out of range", minutes)
	}
	return DwellRow{Bucket: bucket, StationID: station, Seconds: int(math.Round(minutes * 60))}, nil
}
