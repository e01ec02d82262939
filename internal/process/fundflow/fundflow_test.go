package fundflow

import (
	"testing"

	"ledgerforge/internal/models"
)

func TestDiffEVM_OutgoingTransferWithFee(t *testing.T) {
	movements, fees, err := DiffEVM(EVMTxPayload{
		From:     "0xabc",
		To:       "0xdef",
		Value:    "1000000000000000000", // 1 ETH in wei
		GasUsed:  21000,
		GasPrice: "50000000000", // 50 gwei
		Status:   1,
	}, "0xABC", "ethereum")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(movements.Outflows) != 1 {
		t.Fatalf("expected 1 outflow, got %d", len(movements.Outflows))
	}
	if len(fees) != 1 {
		t.Fatalf("expected 1 fee, got %d", len(fees))
	}
	if fees[0].Scope != "network" {
		t.Errorf("expected network fee scope, got %s", fees[0].Scope)
	}
}

func TestDiffEVM_FailedTxStillChargesGas(t *testing.T) {
	_, fees, err := DiffEVM(EVMTxPayload{
		From:     "0xabc",
		To:       "0xdef",
		Value:    "1000000000000000000",
		GasUsed:  21000,
		GasPrice: "50000000000",
		Status:   0,
	}, "0xabc", "ethereum")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fees) != 1 {
		t.Fatalf("expected gas fee even on failed tx, got %d fees", len(fees))
	}
}

func TestDiffUTXO_ChangeReducesGrossAndFeeReducesNetFurther(t *testing.T) {
	own := map[string]bool{"myaddr": true}
	movements, fee, err := DiffUTXO(
		[]UTXOInput{{Address: "myaddr", ValueSatoshis: 100_000_000}},
		[]UTXOOutput{
			{Address: "recipient", ValueSatoshis: 70_000_000},
			{Address: "myaddr", ValueSatoshis: 29_950_000}, // change
		},
		own, "bitcoin",
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(movements.Outflows) != 1 {
		t.Fatalf("expected 1 outflow, got %d", len(movements.Outflows))
	}
	out := movements.Outflows[0]
	if out.GrossAmount.String() != "0.7005" {
		t.Errorf("expected gross 0.7005 BTC (inputs minus change), got %s", out.GrossAmount)
	}
	if out.NetAmount == nil || out.NetAmount.String() != "0.7" {
		t.Errorf("expected net 0.7 BTC (gross minus fee), got %v", out.NetAmount)
	}
	if fee == nil {
		t.Fatalf("expected a network fee")
	}
	if fee.Amount.String() != "0.0005" {
		t.Errorf("expected fee 0.0005 BTC, got %s", fee.Amount)
	}
	if fee.Scope != models.FeeScopeNetwork || fee.Settlement != models.SettlementOnChain {
		t.Errorf("expected network/on-chain fee, got scope=%s settlement=%s", fee.Scope, fee.Settlement)
	}
}
