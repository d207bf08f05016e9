// Package sink persists candidate observations and handover events.
package sink

import (
	"context"
	"errors"
	"fmt"

	"github.com/signalsfoundry/dwell-handover/internal/logging"
	"github.com/signalsfoundry/dwell-handover/model"
)

// Recorder receives evaluation records. It satisfies core.ObservationRecorder.
type Recorder interface {
	RecordCandidate(ctx context.Context, obs model.CandidateObservation) error
	RecordHandover(ctx context.Context, ev model.HandoverEvent) error
	Close() error
}

// Noop discards every record.
type Noop struct{}

func (Noop) RecordCandidate(context.Context, model.CandidateObservation) error { return nil }
func (Noop) RecordHandover(context.Context, model.HandoverEvent) error         { return nil }
func (Noop) Close() error                                                      { return nil }

// Multi fans records out to several recorders. Every recorder is called
// even when an earlier one fails; the errors are joined.
type Multi []Recorder

func (m Multi) RecordCandidate(ctx context.Context, obs model.CandidateObservation) error {
	var errs []error
	for _, r := range m {
		if err := r.RecordCandidate(ctx, obs); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) RecordHandover(ctx context.Context, ev model.HandoverEvent) error {
	var errs []error
	for _, r := range m {
		if err := r.RecordHandover(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, r := range m {
		if err := r.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Kinds accepted by Open.
const (
	KindCSV    = "csv"
	KindSQLite = "sqlite"
	KindNone   = "none"
)

// Options selects and locates a recorder.
type Options struct {
	Kind string
	// Dir is the CSV output directory.
	Dir string
	// Path is the SQLite database file.
	Path string
}

// Open returns the recorder selected by opts. An unknown kind or an open
// failure is logged and yields Noop so evaluations still run.
func Open(ctx context.Context, opts Options, log logging.Logger) Recorder {
	if log == nil {
		log = logging.Noop()
	}
	var (
		rec Recorder
		err error
	)
	switch opts.Kind {
	case KindCSV:
		rec, err = OpenCSV(opts.Dir)
	case KindSQLite:
		rec, err = OpenSQLite(opts.Path)
	case KindNone, "":
		return Noop{}
	default:
		err = fmt.Errorf("unknown sink kind %q", opts.Kind)
	}
	if err != nil {
		log.Warn(ctx, "instrumentation sink unavailable; records will be dropped",
			logging.String("kind", opts.Kind), logging.Err(err))
		return Noop{}
	}
	log.Info(ctx, "instrumentation sink opened",
		logging.String("kind", opts.Kind), logging.String("dir", opts.Dir), logging.String("path", opts.Path))
	return rec
}
