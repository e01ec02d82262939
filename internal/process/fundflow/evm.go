// Package fundflow derives transaction movements and fees from raw,
// chain-family-specific provider payloads - the step between staged
// events and the canonical, asset-agnostic Transaction shape.
package fundflow

import (
	"strings"

	"ledgerforge/internal/domain"
	"ledgerforge/internal/models"
)

// EVMTxPayload is the normalized shape evmprovider stages per transaction.
type EVMTxPayload struct {
	Hash     string
	From     string
	To       string
	Value    string // wei, decimal string
	GasUsed  uint64
	GasPrice string // wei, decimal string
	Status   uint64
}

// DiffEVM computes the native-asset movement and network fee for one
// EVM transaction from the perspective of accountAddress. A failed
// transaction (Status == 0) still incurs its gas fee but has no
// value movement.
func DiffEVM(payload EVMTxPayload, accountAddress, chain string) (models.Movements, []models.Fee, error) {
	assetID := domain.NativeAssetID(chain)
	valueWei, err := domain.ParseDecimal(orZeroStr(payload.Value))
	if err != nil {
		return models.Movements{}, nil, err
	}
	value := weiToWhole(valueWei)

	var movements models.Movements
	self := strings.EqualFold(accountAddress, payload.From)
	other := strings.EqualFold(accountAddress, payload.To)

	if payload.Status != 0 && !value.IsZero() {
		if other {
			movements.Inflows = append(movements.Inflows, models.Movement{AssetID: assetID, GrossAmount: value})
		}
		if self {
			movements.Outflows = append(movements.Outflows, models.Movement{AssetID: assetID, GrossAmount: value})
		}
	}

	var fees []models.Fee
	if self {
		gasUsed := domain.NewDecimalFromInt(int64(payload.GasUsed))
		gasPriceWei, err := domain.ParseDecimal(orZeroStr(payload.GasPrice))
		if err != nil {
			return models.Movements{}, nil, err
		}
		feeAmount := weiToWhole(gasUsed.Mul(gasPriceWei))
		if !feeAmount.IsZero() {
			fees = append(fees, models.Fee{
				AssetID:    assetID,
				Amount:     feeAmount,
				Scope:      models.FeeScopeNetwork,
				Settlement: models.SettlementOnChain,
			})
		}
	}

	return movements, fees, nil
}

const weiPerEther = 1_000_000_000_000_000_000

// weiToWhole converts a wei-denominated amount to whole coin units, the
// same way decimalFromSatoshis converts satoshis to whole BTC: prices
// and the rest of the pipeline operate on whole-coin amounts, never
// wei.
func weiToWhole(wei domain.Decimal) domain.Decimal {
	return wei.Div(domain.NewDecimalFromInt(weiPerEther))
}

func orZeroStr(s string) string {
	if s == "" {
		return "0"
	}
	return s
}
