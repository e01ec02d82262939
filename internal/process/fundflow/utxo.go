package fundflow

import (
	"ledgerforge/internal/domain"
	"ledgerforge/internal/models"
)

// UTXOInput is one spent output referenced by a transaction.
type UTXOInput struct {
	Address string
	ValueSatoshis int64
}

// UTXOOutput is one new output created by a transaction.
type UTXOOutput struct {
	Address string
	ValueSatoshis int64
}

// DiffUTXO computes the gross/net movement and network fee for a UTXO
// transaction from the perspective of the account's own address set.
// Gross is the external payment amount: what left the account's own
// addresses minus same-address change returned in the same
// transaction. Net further subtracts the miner fee, so a spend that
// nets out to "98% fee, 2% change" isn't recorded as near-zero and the
// fee isn't double-counted into the external payment. The fee itself
// is Σinputs − Σoutputs across the whole wire transaction, not just
// the account's own legs, since the wire's other parties' amounts are
// needed to recover it.
func DiffUTXO(inputs []UTXOInput, outputs []UTXOOutput, ownAddresses map[string]bool, chain string) (models.Movements, *models.Fee, error) {
	assetID := domain.NativeAssetID(chain)

	var totalIn, totalOut, spentGross, receivedGross, changeReturned int64
	for _, in := range inputs {
		totalIn += in.ValueSatoshis
		if ownAddresses[in.Address] {
			spentGross += in.ValueSatoshis
		}
	}
	for _, out := range outputs {
		totalOut += out.ValueSatoshis
		if ownAddresses[out.Address] {
			receivedGross += out.ValueSatoshis
		}
	}

	feeSatoshis := totalIn - totalOut
	if feeSatoshis < 0 {
		feeSatoshis = 0
	}

	isSpend := spentGross > 0
	if isSpend {
		// Change outputs are new outputs addressed back to the same
		// wallet within a transaction that also spent from it.
		changeReturned = receivedGross
	}

	var movements models.Movements
	var fee *models.Fee
	if isSpend {
		gross := decimalFromSatoshis(spentGross - changeReturned)
		net := gross.Sub(decimalFromSatoshis(feeSatoshis))
		movements.Outflows = append(movements.Outflows, models.Movement{
			AssetID:     assetID,
			GrossAmount: gross,
			NetAmount:   &net,
		})
		if feeSatoshis > 0 {
			fee = &models.Fee{
				AssetID:    assetID,
				Amount:     decimalFromSatoshis(feeSatoshis),
				Scope:      models.FeeScopeNetwork,
				Settlement: models.SettlementOnChain,
			}
		}
	} else if receivedGross > 0 {
		movements.Inflows = append(movements.Inflows, models.Movement{
			AssetID:     assetID,
			GrossAmount: decimalFromSatoshis(receivedGross),
		})
	}

	return movements, fee, nil
}

const satoshisPerBTC = 100_000_000

func decimalFromSatoshis(sats int64) domain.Decimal {
	whole := domain.NewDecimalFromInt(sats)
	divisor := domain.NewDecimalFromInt(satoshisPerBTC)
	return whole.Div(divisor)
}
