// Package lots computes acquisitions, disposals, and transfer
// cost-basis inheritance across a fully priced transaction set: a
// Kahn's-algorithm topological pass over transfer links, a
// consume-on-use link index, and a pluggable per-asset disposal
// strategy (FIFO, LIFO, HIFO).
package lots

import (
	"sort"

	"ledgerforge/internal/domain"
	"ledgerforge/internal/models"
)

// Allocation is a portion of one lot selected to cover a disposal or
// transfer-out quantity.
type Allocation struct {
	Lot *models.AcquisitionLot
	Qty domain.Decimal
}

// Strategy picks which open lots cover a disposal quantity, in the
// order the accounting method requires. Implementations must not
// mutate the lots slice or any lot's RemainingQty; the matcher applies
// the returned allocations.
type Strategy interface {
	Method() models.CostBasisMethod
	SelectForDisposal(openLots []*models.AcquisitionLot, qty domain.Decimal) []Allocation
}

func selectGreedy(ordered []*models.AcquisitionLot, qty domain.Decimal) []Allocation {
	var allocations []Allocation
	remaining := qty
	for _, lot := range ordered {
		if remaining.IsZero() || remaining.IsNegative() {
			break
		}
		if lot.RemainingQty.IsZero() {
			continue
		}
		take := lot.RemainingQty
		if take.GreaterThan(remaining) {
			take = remaining
		}
		allocations = append(allocations, Allocation{Lot: lot, Qty: take})
		remaining = remaining.Sub(take)
	}
	return allocations
}

// FIFO consumes the oldest acquisition lots first.
type FIFO struct{}

func (FIFO) Method() models.CostBasisMethod { return models.MethodFIFO }

func (FIFO) SelectForDisposal(openLots []*models.AcquisitionLot, qty domain.Decimal) []Allocation {
	ordered := append([]*models.AcquisitionLot(nil), openLots...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].AcquiredAt.Before(ordered[j].AcquiredAt) })
	return selectGreedy(ordered, qty)
}

// LIFO consumes the newest acquisition lots first.
type LIFO struct{}

func (LIFO) Method() models.CostBasisMethod { return models.MethodLIFO }

func (LIFO) SelectForDisposal(openLots []*models.AcquisitionLot, qty domain.Decimal) []Allocation {
	ordered := append([]*models.AcquisitionLot(nil), openLots...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].AcquiredAt.After(ordered[j].AcquiredAt) })
	return selectGreedy(ordered, qty)
}

// HIFO consumes the highest-unit-cost lots first, minimizing reported
// gain at disposal time.
type HIFO struct{}

func (HIFO) Method() models.CostBasisMethod { return models.MethodHIFO }

func (HIFO) SelectForDisposal(openLots []*models.AcquisitionLot, qty domain.Decimal) []Allocation {
	ordered := append([]*models.AcquisitionLot(nil), openLots...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].UnitCostUSD.GreaterThan(ordered[j].UnitCostUSD) })
	return selectGreedy(ordered, qty)
}

// ForMethod resolves a Strategy by its configured name, falling back
// to FIFO for an unrecognized or empty method.
func ForMethod(method models.CostBasisMethod) Strategy {
	switch method {
	case models.MethodLIFO:
		return LIFO{}
	case models.MethodHIFO:
		return HIFO{}
	default:
		return FIFO{}
	}
}
