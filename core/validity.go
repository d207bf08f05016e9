package core

import "github.com/signalsfoundry/dwell-handover/model"

// NeighbourValidityPolicy filters candidate cells, e.g. closed subscriber
// groups or cells removed by ANR.
type NeighbourValidityPolicy interface {
	IsValid(cellID model.CellID) bool
}

// AllowAll accepts every neighbour.
type AllowAll struct{}

func (AllowAll) IsValid(model.CellID) bool { return true }

// ValidityFunc adapts a function to NeighbourValidityPolicy.
type ValidityFunc func(cellID model.CellID) bool

func (f ValidityFunc) IsValid(cellID model.CellID) bool { return f(cellID) }

// DenyList rejects the listed cells.
type DenyList map[model.CellID]struct{}

// NewDenyList builds a DenyList from cell ids.
func NewDenyList(cells ...model.CellID) DenyList {
	d := make(DenyList, len(cells))
	for _, c := range cells {
		d[c] = struct{}{}
	}
	return d
}

func (d DenyList) IsValid(cellID model.CellID) bool {
	_, denied := d[cellID]
	return !denied
}
