package lots

import (
	"testing"
	"time"

	"ledgerforge/internal/domain"
	"ledgerforge/internal/models"
)

func tx(id string, t time.Time) models.Transaction {
	return models.Transaction{ID: id, Datetime: t}
}

func transferLink(source, target string) models.TransactionLink {
	return models.TransactionLink{
		ID: source + "->" + target, SourceTransactionID: source, TargetTransactionID: target,
		LinkType: models.LinkTransfer, ConfidenceScore: domain.MustDecimal("1.0"),
	}
}

func TestTopoSort_OrdersSourceBeforeTarget(t *testing.T) {
	txs := []models.Transaction{
		tx("b", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)),
		tx("a", time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)),
	}
	links := []models.TransactionLink{transferLink("a", "b")}

	order, err := topoSort(txs, links)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(order) != 2 || order[0] != "a" || order[1] != "b" {
		t.Fatalf("expected [a b] despite datetime tie-break favoring b, got %v", order)
	}
}

func TestTopoSort_TieBreaksByDatetimeThenID(t *testing.T) {
	same := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	txs := []models.Transaction{
		tx("z", same),
		tx("a", same),
	}
	order, err := topoSort(txs, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if order[0] != "a" || order[1] != "z" {
		t.Fatalf("expected id tie-break [a z], got %v", order)
	}
}

func TestTopoSort_DetectsCycle(t *testing.T) {
	txs := []models.Transaction{
		tx("a", time.Now()),
		tx("b", time.Now()),
	}
	links := []models.TransactionLink{transferLink("a", "b"), transferLink("b", "a")}

	_, err := topoSort(txs, links)
	if err == nil {
		t.Fatalf("expected a cycle error")
	}
}
