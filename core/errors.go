package core

import "errors"

var (
	// ErrInvalidReport marks a serving-cell report that violates the A2
	// precondition (RSRQ above the configured threshold).
	ErrInvalidReport = errors.New("invalid measurement report")
	// ErrInvalidMeasurement marks a neighbour sample outside the RSRQ range.
	ErrInvalidMeasurement = errors.New("invalid neighbour measurement")
	// ErrUnknownMeasID marks a report whose measurement id was never registered.
	ErrUnknownMeasID = errors.New("unknown measurement id")
	// ErrNotConfigured is returned when reports arrive before Configure.
	ErrNotConfigured = errors.New("engine not configured")
	// ErrInvalidConfig wraps configuration validation failures.
	ErrInvalidConfig = errors.New("invalid engine config")
)
