package enrich

import (
	"context"
	"testing"
	"time"

	"ledgerforge/internal/config"
	"ledgerforge/internal/domain"
	"ledgerforge/internal/enrich/pricecache"
	"ledgerforge/internal/models"
	"ledgerforge/internal/provider"
)

type fakePriceProvider struct {
	name  string
	price string
	err   error
}

func (f *fakePriceProvider) Name() string { return f.name }

func (f *fakePriceProvider) FetchPrice(ctx context.Context, assetID, currency string, at time.Time) (*provider.PriceData, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &provider.PriceData{AssetID: assetID, Currency: currency, Price: f.price, ObservedAt: at, Granularity: models.GranularityDay}, nil
}

func btc() domain.AssetID { return domain.NativeAssetID("bitcoin") }
func usd() domain.AssetID { return domain.FiatAssetID("usd") }

func TestPassExchangeExecution_DerivesNonFiatLegPrice(t *testing.T) {
	tx := &models.Transaction{
		SourceType: models.SourceExchange,
		Operation:  models.Operation{Category: models.CategoryTrade, Type: models.OpBuy},
		Datetime:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Movements: models.Movements{
			Inflows:  []models.Movement{{AssetID: btc(), AssetSymbol: "BTC", GrossAmount: domain.MustDecimal("0.5")}},
			Outflows: []models.Movement{{AssetID: usd(), AssetSymbol: "USD", GrossAmount: domain.MustDecimal("20000")}},
		},
	}

	added := passExchangeExecution([]*models.Transaction{tx})
	if added != 1 {
		t.Fatalf("expected 1 price derived, got %d", added)
	}
	got := tx.Movements.Inflows[0].PriceAtTxTime
	if got == nil {
		t.Fatalf("expected inflow to be priced")
	}
	if !got.Price.Amount.Equal(domain.MustDecimal("40000")) {
		t.Fatalf("expected unit price 40000, got %s", got.Price.Amount)
	}
	if got.Source != models.PriceSourceExchangeExecution {
		t.Fatalf("expected exchange-execution source, got %s", got.Source)
	}
}

func TestPassCryptoRatio_OverwritesExternalFetchInflowOnly(t *testing.T) {
	tx := &models.Transaction{
		Operation: models.Operation{Category: models.CategoryTrade, Type: models.OpSwap},
		Datetime:  time.Now(),
		Movements: models.Movements{
			Inflows: []models.Movement{{
				AssetID: domain.NativeAssetID("ethereum"), AssetSymbol: "ETH", GrossAmount: domain.MustDecimal("10"),
				PriceAtTxTime: &models.PriceAtTxTime{Price: models.Price{Amount: domain.MustDecimal("3000"), Currency: "usd"}, Source: models.ExternalFetchSource("coingecko")},
			}},
			Outflows: []models.Movement{{
				AssetID: btc(), AssetSymbol: "BTC", GrossAmount: domain.MustDecimal("1"),
				PriceAtTxTime: &models.PriceAtTxTime{Price: models.Price{Amount: domain.MustDecimal("40000"), Currency: "usd"}, Source: models.PriceSourceExchangeExecution},
			}},
		},
	}

	added := passCryptoRatio([]*models.Transaction{tx})
	if added != 1 {
		t.Fatalf("expected 1 ratio recalculation, got %d", added)
	}
	in := tx.Movements.Inflows[0]
	if !in.PriceAtTxTime.Price.Amount.Equal(domain.MustDecimal("4000")) {
		t.Fatalf("expected recalculated inflow price 4000, got %s", in.PriceAtTxTime.Price.Amount)
	}
	if in.PriceAtTxTime.Source != models.PriceSourceDerivedRatio {
		t.Fatalf("expected derived-ratio source, got %s", in.PriceAtTxTime.Source)
	}

	out := tx.Movements.Outflows[0]
	if !out.PriceAtTxTime.Price.Amount.Equal(domain.MustDecimal("40000")) {
		t.Fatalf("outflow price must not be touched, got %s", out.PriceAtTxTime.Price.Amount)
	}
}

func TestEngine_Run_ExternalFetchAndConvergesToFixpoint(t *testing.T) {
	tx := &models.Transaction{
		SourceType: models.SourceBlockchain,
		Operation:  models.Operation{Category: models.CategoryTransfer, Type: models.OpDeposit},
		Datetime:   time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		Movements: models.Movements{
			Inflows: []models.Movement{{AssetID: btc(), AssetSymbol: "BTC", GrossAmount: domain.MustDecimal("1")}},
		},
	}

	provider1 := &fakePriceProvider{name: "coingecko", price: "45000"}
	engine := New([]provider.PriceProvider{provider1}, nil, pricecache.New(), config.EnrichmentConfig{MaxIterations: 5}, nil)

	result, err := engine.Run(context.Background(), []*models.Transaction{tx}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.PricesAdded != 1 {
		t.Fatalf("expected exactly 1 price added across the whole run, got %d", result.PricesAdded)
	}
	if result.IterationsRun < 2 {
		t.Fatalf("expected the loop to run at least one more iteration to detect fixpoint, got %d", result.IterationsRun)
	}

	got := tx.Movements.Inflows[0].PriceAtTxTime
	if got == nil || !got.Price.Amount.Equal(domain.MustDecimal("45000")) {
		t.Fatalf("expected fetched price 45000, got %v", got)
	}
	if !got.Source.IsExternalFetch() {
		t.Fatalf("expected an external-fetch source, got %s", got.Source)
	}
}

func TestEngine_Run_StablecoinFetchMissIsError(t *testing.T) {
	tx := &models.Transaction{
		Datetime: time.Now(),
		Movements: models.Movements{
			Inflows: []models.Movement{{AssetID: domain.TokenAssetID("ethereum", "0xusdt"), AssetSymbol: "USDT", GrossAmount: domain.MustDecimal("100")}},
		},
	}

	engine := New(nil, nil, pricecache.New(), config.EnrichmentConfig{MaxIterations: 3, StablecoinDePeg: false}, nil)
	_, err := engine.Run(context.Background(), []*models.Transaction{tx}, nil)
	if err == nil {
		t.Fatalf("expected a hard error on stablecoin fetch miss with fallback disabled")
	}
}
