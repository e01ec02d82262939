package spam

import (
	"testing"

	"ledgerforge/internal/domain"
	"ledgerforge/internal/models"
)

func TestDetector_FlagsKnownScamAsset(t *testing.T) {
	d := NewDetector()
	scamAsset := domain.NativeAssetID("SCAMCOIN")
	d.DenyAsset(scamAsset)

	tx := models.Transaction{
		Movements: models.Movements{
			Inflows: []models.Movement{{AssetID: scamAsset, GrossAmount: domain.MustDecimal("1000000")}},
		},
	}

	note := d.Evaluate(tx)
	if note == nil || note.Type != "spam" {
		t.Fatalf("expected spam note, got %v", note)
	}
}

func TestDetector_FlagsDustBelowThreshold(t *testing.T) {
	d := NewDetector()
	asset := domain.NativeAssetID("ethereum")
	d.SetDustThreshold(asset, domain.MustDecimal("0.0001"))

	tx := models.Transaction{
		Movements: models.Movements{
			Inflows: []models.Movement{{AssetID: asset, GrossAmount: domain.MustDecimal("0.00001")}},
		},
	}

	note := d.Evaluate(tx)
	if note == nil || note.Type != "spam" {
		t.Fatalf("expected dust spam note, got %v", note)
	}
}

func TestDetector_IgnoresOrdinaryTransfer(t *testing.T) {
	d := NewDetector()
	asset := domain.NativeAssetID("ethereum")
	d.SetDustThreshold(asset, domain.MustDecimal("0.0001"))

	tx := models.Transaction{
		Movements: models.Movements{
			Inflows: []models.Movement{{AssetID: asset, GrossAmount: domain.MustDecimal("2.5")}},
		},
	}

	if note := d.Evaluate(tx); note != nil {
		t.Fatalf("expected no note for ordinary transfer, got %v", note)
	}
}

func TestDetector_IgnoresSwapEvenIfSmall(t *testing.T) {
	d := NewDetector()
	asset := domain.NativeAssetID("ethereum")
	d.SetDustThreshold(asset, domain.MustDecimal("0.0001"))
	other := domain.NativeAssetID("usdc")

	tx := models.Transaction{
		Movements: models.Movements{
			Inflows:  []models.Movement{{AssetID: asset, GrossAmount: domain.MustDecimal("0.00001")}},
			Outflows: []models.Movement{{AssetID: other, GrossAmount: domain.MustDecimal("10")}},
		},
	}

	if note := d.Evaluate(tx); note != nil {
		t.Fatalf("expected no dust flag on a two-sided swap, got %v", note)
	}
}
