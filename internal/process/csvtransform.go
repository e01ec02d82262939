package process

import (
	"encoding/json"
	"fmt"
	"time"

	"ledgerforge/internal/domain"
	"ledgerforge/internal/models"
)

// CSVTransformer builds a canonical Transaction from one exchange CSV
// row, already staged field-by-field by csvsource.Provider. Columns
// follow a "wide" export shape: type, base_asset, base_amount,
// quote_asset, quote_amount, fee_asset, fee_amount.
type CSVTransformer struct{}

func (CSVTransformer) ProviderName() string { return "csv" }

type csvRow struct {
	Type        string `json:"type"`
	BaseAsset   string `json:"base_asset"`
	BaseAmount  string `json:"base_amount"`
	QuoteAsset  string `json:"quote_asset"`
	QuoteAmount string `json:"quote_amount"`
	FeeAsset    string `json:"fee_asset"`
	FeeAmount   string `json:"fee_amount"`
	Timestamp   string `json:"timestamp"`
}

// assetIDFor resolves a CSV leg's asset code to a fiat AssetID when the
// code is a recognized fiat currency, otherwise a native/chain asset ID.
// Getting this wrong silently turns a fiat leg into something
// AssetID.IsFiat() doesn't recognize, which breaks fiat-leg detection
// downstream in enrichment and classification.
func assetIDFor(code string) domain.AssetID {
	if domain.NewCurrency(code).IsFiat() {
		return domain.FiatAssetID(code)
	}
	return domain.NativeAssetID(code)
}

func (CSVTransformer) Transform(group []models.RawEvent, account models.Account) (models.Transaction, error) {
	if len(group) == 0 {
		return models.Transaction{}, fmt.Errorf("csvtransform: empty group")
	}
	head := group[0]

	var row csvRow
	if err := json.Unmarshal(head.NormalizedData, &row); err != nil {
		return models.Transaction{}, fmt.Errorf("csvtransform: decode row: %w", err)
	}

	var movements models.Movements
	var fees []models.Fee

	if row.BaseAsset != "" && row.BaseAmount != "" {
		amount, err := domain.ParseDecimal(row.BaseAmount)
		if err != nil {
			return models.Transaction{}, fmt.Errorf("csvtransform: parse base amount: %w", err)
		}
		movement := models.Movement{AssetID: assetIDFor(row.BaseAsset), AssetSymbol: row.BaseAsset, GrossAmount: amount.Abs()}
		if amount.IsNegative() {
			movements.Outflows = append(movements.Outflows, movement)
		} else {
			movements.Inflows = append(movements.Inflows, movement)
		}
	}
	if row.QuoteAsset != "" && row.QuoteAmount != "" {
		amount, err := domain.ParseDecimal(row.QuoteAmount)
		if err != nil {
			return models.Transaction{}, fmt.Errorf("csvtransform: parse quote amount: %w", err)
		}
		movement := models.Movement{AssetID: assetIDFor(row.QuoteAsset), AssetSymbol: row.QuoteAsset, GrossAmount: amount.Abs()}
		if amount.IsNegative() {
			movements.Outflows = append(movements.Outflows, movement)
		} else {
			movements.Inflows = append(movements.Inflows, movement)
		}
	}
	if row.FeeAsset != "" && row.FeeAmount != "" {
		amount, err := domain.ParseDecimal(row.FeeAmount)
		if err != nil {
			return models.Transaction{}, fmt.Errorf("csvtransform: parse fee amount: %w", err)
		}
		fees = append(fees, models.Fee{
			AssetID:    assetIDFor(row.FeeAsset),
			AssetSymbol: row.FeeAsset,
			Amount:     amount.Abs(),
			Scope:      models.FeeScopePlatform,
			Settlement: models.SettlementBalance,
		})
	}

	ts := head.Timestamp
	if row.Timestamp != "" {
		if parsed, err := time.Parse(time.RFC3339, row.Timestamp); err == nil {
			ts = parsed
		}
	}

	return models.Transaction{
		ID:         fmt.Sprintf("csv:%s:%s", account.ID, head.EventID),
		AccountID:  account.ID,
		ExternalID: head.EventID,
		Source:     account.SourceName,
		SourceType: models.SourceExchange,
		Datetime:   ts,
		Timestamp:  ts.UnixMilli(),
		Status:     models.TxSuccess,
		Movements:  movements,
		Fees:       fees,
	}, nil
}
