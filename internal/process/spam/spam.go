// Package spam provides a minimal, swappable heuristic for flagging
// dust and known-scam-token transactions so they can be excluded from
// accounting rather than silently mixed into cost-basis lots.
package spam

import (
	"strings"

	"ledgerforge/internal/domain"
	"ledgerforge/internal/models"
)

// Detector decides whether a built Transaction looks like spam: an
// unsolicited dust airdrop or a transfer involving a known scam
// contract/asset. Swappable so a production deployment can plug in a
// denylist service instead.
type Detector struct {
	// DustThreshold is the inclusive upper bound, per asset, below which
	// a pure-inflow transaction with no matching outflow is considered
	// dust. Keyed by AssetID.
	DustThreshold map[domain.AssetID]domain.Decimal
	// KnownScamAssets is a denylist of asset ids that are always flagged
	// regardless of amount.
	KnownScamAssets map[domain.AssetID]bool
}

func NewDetector() *Detector {
	return &Detector{
		DustThreshold:   make(map[domain.AssetID]domain.Decimal),
		KnownScamAssets: make(map[domain.AssetID]bool),
	}
}

func (d *Detector) DenyAsset(assetID domain.AssetID) {
	d.KnownScamAssets[assetID] = true
}

func (d *Detector) SetDustThreshold(assetID domain.AssetID, max domain.Decimal) {
	d.DustThreshold[assetID] = max
}

// Evaluate returns a Note to attach when tx looks like spam, or nil
// when it doesn't. It never mutates tx.
func (d *Detector) Evaluate(tx models.Transaction) *models.Note {
	for _, id := range tx.AllAssetIDs() {
		if d.KnownScamAssets[id] {
			return &models.Note{
				Type:     "spam",
				Severity: models.SeverityWarning,
				Message:  "asset " + strings.TrimSpace(string(id)) + " is on the known scam/honeypot list",
			}
		}
	}

	if len(tx.Movements.Inflows) == 1 && len(tx.Movements.Outflows) == 0 && len(tx.Fees) == 0 {
		in := tx.Movements.Inflows[0]
		if max, ok := d.DustThreshold[in.AssetID]; ok && in.GrossAmount.Cmp(max) <= 0 {
			return &models.Note{
				Type:     "spam",
				Severity: models.SeverityInfo,
				Message:  "unsolicited dust inflow below configured threshold",
			}
		}
	}

	return nil
}
