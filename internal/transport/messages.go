package transport

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/dwell-handover/core"
	"github.com/signalsfoundry/dwell-handover/model"
)

// ErrInvalidRequest marks a request that cannot be decoded.
var ErrInvalidRequest = errors.New("invalid report request")

// Report kinds accepted in place of a measurement id.
const (
	KindA2 = "a2"
	KindA4 = "a4"
)

// ReportRequest is the decoded form of a Report call. Exactly one of Kind
// and MeasID selects the report type; Kind is resolved against the serving
// cell's configured measurement ids. A2 reports must carry RSRQ.
type ReportRequest struct {
	ServingCell model.CellID
	RNTI        model.RNTI
	Kind        string
	MeasID      uint8
	HasMeasID   bool
	RSRQ        uint8
	HasRSRQ     bool
	Neighbours  []model.NeighbourResult
}

// ReportResponse is the decoded form of a Report reply.
type ReportResponse struct {
	Outcome      string
	Bucket       int
	Candidates   int
	TargetCell   model.CellID
	TargetRSRQ   uint8
	DwellSeconds int
	LockedUntil  int
}

// DetachRequest asks the server to forget an endpoint on every cell.
type DetachRequest struct {
	RNTI model.RNTI
}

// ToStruct encodes the request.
func (r ReportRequest) ToStruct() (*structpb.Struct, error) {
	m := map[string]any{
		"serving_cell_id": float64(r.ServingCell),
		"rnti":            float64(r.RNTI),
		"rsrq":            float64(r.RSRQ),
	}
	if r.Kind != "" {
		m["kind"] = r.Kind
	}
	if r.HasMeasID {
		m["meas_id"] = float64(r.MeasID)
	}
	if len(r.Neighbours) > 0 {
		list := make([]any, 0, len(r.Neighbours))
		for _, n := range r.Neighbours {
			entry := map[string]any{"cell_id": float64(n.CellID)}
			if n.HasRSRQ {
				entry["rsrq"] = float64(n.RSRQ)
			}
			list = append(list, entry)
		}
		m["neighbours"] = list
	}
	return structpb.NewStruct(m)
}

// ParseReportRequest decodes and range-checks a request struct.
func ParseReportRequest(s *structpb.Struct) (ReportRequest, error) {
	if s == nil {
		return ReportRequest{}, fmt.Errorf("%w: empty request", ErrInvalidRequest)
	}
	f := s.GetFields()
	var (
		r   ReportRequest
		err error
	)
	cell, err := requiredUint(f, "serving_cell_id", math.MaxUint16)
	if err != nil {
		return r, err
	}
	rnti, err := requiredUint(f, "rnti", math.MaxUint16)
	if err != nil {
		return r, err
	}
	r.ServingCell, r.RNTI = model.CellID(cell), model.RNTI(rnti)

	if v, ok := f["kind"]; ok {
		r.Kind = strings.ToLower(v.GetStringValue())
		if r.Kind != KindA2 && r.Kind != KindA4 {
			return r, fmt.Errorf("%w: kind %q is not a2 or a4", ErrInvalidRequest, v.GetStringValue())
		}
	}
	if _, ok := f["meas_id"]; ok {
		id, err := requiredUint(f, "meas_id", math.MaxUint8)
		if err != nil {
			return r, err
		}
		r.MeasID, r.HasMeasID = uint8(id), true
	}
	if r.Kind == "" && !r.HasMeasID {
		return r, fmt.Errorf("%w: one of kind or meas_id is required", ErrInvalidRequest)
	}
	if r.Kind != "" && r.HasMeasID {
		return r, fmt.Errorf("%w: kind and meas_id are mutually exclusive", ErrInvalidRequest)
	}
	if _, ok := f["rsrq"]; ok {
		rsrq, err := requiredUint(f, "rsrq", math.MaxUint8)
		if err != nil {
			return r, err
		}
		r.RSRQ, r.HasRSRQ = uint8(rsrq), true
	}
	if r.Kind == KindA2 && !r.HasRSRQ {
		return r, fmt.Errorf("%w: rsrq is required for a2 reports", ErrInvalidRequest)
	}

	for i, v := range f["neighbours"].GetListValue().GetValues() {
		nf := v.GetStructValue().GetFields()
		if nf == nil {
			return r, fmt.Errorf("%w: neighbours[%d] is not an object", ErrInvalidRequest, i)
		}
		id, err := requiredUint(nf, "cell_id", math.MaxUint16)
		if err != nil {
			return r, fmt.Errorf("neighbours[%d]: %w", i, err)
		}
		n := model.NeighbourResult{CellID: model.CellID(id)}
		if _, ok := nf["rsrq"]; ok {
			rsrq, err := requiredUint(nf, "rsrq", math.MaxUint8)
			if err != nil {
				return r, fmt.Errorf("neighbours[%d]: %w", i, err)
			}
			if err := model.ValidateRSRQ(uint8(rsrq)); err != nil {
				return r, fmt.Errorf("neighbours[%d]: %w: %w", i, core.ErrInvalidMeasurement, err)
			}
			n.RSRQ, n.HasRSRQ = uint8(rsrq), true
		}
		r.Neighbours = append(r.Neighbours, n)
	}
	return r, nil
}

func requiredUint(f map[string]*structpb.Value, key string, max uint64) (uint64, error) {
	v, ok := f[key]
	if !ok {
		return 0, fmt.Errorf("%w: %s is required", ErrInvalidRequest, key)
	}
	num, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, fmt.Errorf("%w: %s must be a number", ErrInvalidRequest, key)
	}
	x := num.NumberValue
	if x < 0 || x != math.Trunc(x) || x > float64(max) {
		return 0, fmt.Errorf("%w: %s=%v out of range [0,%d]", ErrInvalidRequest, key, x, max)
	}
	return uint64(x), nil
}

func responseFromDecision(d core.Decision) ReportResponse {
	return ReportResponse{
		Outcome:      string(d.Outcome),
		Bucket:       d.Bucket,
		Candidates:   d.Candidates,
		TargetCell:   d.Target,
		TargetRSRQ:   d.TargetRSRQ,
		DwellSeconds: d.DwellSeconds,
		LockedUntil:  d.LockedUntil,
	}
}

// ToStruct encodes the response.
func (r ReportResponse) ToStruct() (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"outcome":        r.Outcome,
		"bucket":         float64(r.Bucket),
		"candidates":     float64(r.Candidates),
		"target_cell_id": float64(r.TargetCell),
		"target_rsrq":    float64(r.TargetRSRQ),
		"dwell_seconds":  float64(r.DwellSeconds),
		"locked_until":   float64(r.LockedUntil),
	})
}

// ParseReportResponse decodes a response struct.
func ParseReportResponse(s *structpb.Struct) ReportResponse {
	f := s.GetFields()
	num := func(k string) float64 { return f[k].GetNumberValue() }
	return ReportResponse{
		Outcome:      f["outcome"].GetStringValue(),
		Bucket:       int(num("bucket")),
		Candidates:   int(num("candidates")),
		TargetCell:   model.CellID(num("target_cell_id")),
		TargetRSRQ:   uint8(num("target_rsrq")),
		DwellSeconds: int(num("dwell_seconds")),
		LockedUntil:  int(num("locked_until")),
	}
}
