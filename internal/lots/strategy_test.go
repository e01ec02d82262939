package lots

import (
	"testing"
	"time"

	"ledgerforge/internal/domain"
	"ledgerforge/internal/models"
)

func lot(id string, acquiredAt time.Time, qty, cost string) *models.AcquisitionLot {
	return &models.AcquisitionLot{
		ID: id, AcquiredAt: acquiredAt,
		OriginalQty: domain.MustDecimal(qty), RemainingQty: domain.MustDecimal(qty),
		UnitCostUSD: domain.MustDecimal(cost),
	}
}

func TestFIFO_ConsumesOldestFirst(t *testing.T) {
	l1 := lot("l1", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), "1", "100")
	l2 := lot("l2", time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), "1", "200")

	allocs := FIFO{}.SelectForDisposal([]*models.AcquisitionLot{l2, l1}, domain.MustDecimal("1.5"))
	if len(allocs) != 2 || allocs[0].Lot.ID != "l1" {
		t.Fatalf("expected l1 consumed first, got %+v", allocs)
	}
	if !allocs[1].Qty.Equal(domain.MustDecimal("0.5")) {
		t.Fatalf("expected partial consumption of l2, got %s", allocs[1].Qty)
	}
}

func TestLIFO_ConsumesNewestFirst(t *testing.T) {
	l1 := lot("l1", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), "1", "100")
	l2 := lot("l2", time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), "1", "200")

	allocs := LIFO{}.SelectForDisposal([]*models.AcquisitionLot{l1, l2}, domain.MustDecimal("1"))
	if len(allocs) != 1 || allocs[0].Lot.ID != "l2" {
		t.Fatalf("expected l2 (newest) consumed first, got %+v", allocs)
	}
}

func TestHIFO_ConsumesHighestCostFirst(t *testing.T) {
	cheap := lot("cheap", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), "1", "100")
	pricey := lot("pricey", time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC), "1", "500")

	allocs := HIFO{}.SelectForDisposal([]*models.AcquisitionLot{cheap, pricey}, domain.MustDecimal("1"))
	if len(allocs) != 1 || allocs[0].Lot.ID != "pricey" {
		t.Fatalf("expected highest-cost lot consumed first, got %+v", allocs)
	}
}
