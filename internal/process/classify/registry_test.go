package classify

import (
	"testing"

	"ledgerforge/internal/models"
)

func newDefaultRegistry() *Registry {
	r := NewRegistry()
	RegisterAll(r)
	return r
}

func TestClassify_SwapTakesPriorityOverGenericDeposit(t *testing.T) {
	r := newDefaultRegistry()
	op, note := r.Classify(Input{InflowCount: 1, OutflowCount: 1})
	if op.Type != models.OpSwap {
		t.Fatalf("expected swap, got %s", op.Type)
	}
	if note != nil {
		t.Fatalf("expected no ambiguity note, got %v", note)
	}
}

func TestClassify_FiatOutCryptoInIsBuy(t *testing.T) {
	r := newDefaultRegistry()
	op, _ := r.Classify(Input{InflowCount: 1, OutflowCount: 1, OutflowIsFiat: true})
	if op.Type != models.OpBuy || op.Category != models.CategoryTrade {
		t.Fatalf("expected trade/buy, got %s/%s", op.Category, op.Type)
	}
}

func TestClassify_CryptoOutFiatInIsSell(t *testing.T) {
	r := newDefaultRegistry()
	op, _ := r.Classify(Input{InflowCount: 1, OutflowCount: 1, InflowIsFiat: true})
	if op.Type != models.OpSell || op.Category != models.CategoryTrade {
		t.Fatalf("expected trade/sell, got %s/%s", op.Category, op.Type)
	}
}

func TestClassify_SelfTransferOverridesSwapShape(t *testing.T) {
	r := newDefaultRegistry()
	op, _ := r.Classify(Input{InflowCount: 1, OutflowCount: 1, IsSelfTransfer: true})
	if op.Type != models.OpTransfer {
		t.Fatalf("expected transfer, got %s", op.Type)
	}
}

func TestClassify_UnmatchedFallsBackWithNote(t *testing.T) {
	r := newDefaultRegistry()
	op, note := r.Classify(Input{})
	if op.Type != models.OpTransfer {
		t.Fatalf("expected fallback transfer, got %s", op.Type)
	}
	if note == nil || note.Severity != models.SeverityWarning {
		t.Fatalf("expected ambiguity warning note, got %v", note)
	}
}

func TestClassify_StakeHintWins(t *testing.T) {
	r := newDefaultRegistry()
	op, _ := r.Classify(Input{OutflowCount: 1, ProviderEventHint: "Delegation.DelegatorAdded"})
	if op.Type != models.OpStake {
		t.Fatalf("expected stake, got %s", op.Type)
	}
}
