package lots

import (
	"testing"
	"time"

	"ledgerforge/internal/domain"
	"ledgerforge/internal/models"
)

func priced(assetID domain.AssetID, symbol, amount, price string) models.Movement {
	return models.Movement{
		AssetID: assetID, AssetSymbol: symbol, GrossAmount: domain.MustDecimal(amount),
		PriceAtTxTime: &models.PriceAtTxTime{Price: models.Price{Amount: domain.MustDecimal(price), Currency: "usd"}},
	}
}

func defaultPolicy() Policy {
	return Policy{SameAssetFeePolicy: "disposal", DefaultVarianceWarn: 1.0, DefaultVarianceError: 3.0}
}

func TestMatcher_SimpleAcquireThenDispose(t *testing.T) {
	btc := domain.NativeAssetID("bitcoin")

	buy := models.Transaction{
		ID: "buy-1", Datetime: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Movements: models.Movements{Inflows: []models.Movement{priced(btc, "BTC", "1", "40000")}},
	}
	sell := models.Transaction{
		ID: "sell-1", Datetime: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		Movements: models.Movements{Outflows: []models.Movement{priced(btc, "BTC", "0.5", "45000")}},
	}

	m := NewMatcher("calc-1", FIFO{}, nil, defaultPolicy())
	result, err := m.Run([]models.Transaction{buy, sell}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Errors) != 0 {
		t.Fatalf("expected no asset errors, got %+v", result.Errors)
	}
	if len(result.AssetResults) != 1 {
		t.Fatalf("expected 1 asset result, got %d", len(result.AssetResults))
	}
	ar := result.AssetResults[0]
	if len(ar.Disposals) != 1 {
		t.Fatalf("expected 1 disposal, got %d", len(ar.Disposals))
	}
	d := ar.Disposals[0]
	if !d.ProceedsUSD.Equal(domain.MustDecimal("22500")) {
		t.Fatalf("expected proceeds 22500, got %s", d.ProceedsUSD)
	}
	if !d.GainUSD.Equal(domain.MustDecimal("2500")) {
		t.Fatalf("expected gain 2500 (45000-40000)*0.5, got %s", d.GainUSD)
	}
	if !ar.Lots[0].RemainingQty.Equal(domain.MustDecimal("0.5")) {
		t.Fatalf("expected 0.5 remaining in the original lot, got %s", ar.Lots[0].RemainingQty)
	}
}

func TestMatcher_TransferCarriesCostBasisAcrossLink(t *testing.T) {
	eth := domain.NativeAssetID("ethereum")

	buy := models.Transaction{
		ID: "buy-1", Datetime: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Movements: models.Movements{Inflows: []models.Movement{priced(eth, "ETH", "2", "1000")}},
	}
	send := models.Transaction{
		ID: "send-1", Source: "walletA", Datetime: time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC),
		Movements: models.Movements{Outflows: []models.Movement{priced(eth, "ETH", "1", "1200")}},
	}
	receive := models.Transaction{
		ID: "recv-1", Source: "walletB", Datetime: time.Date(2026, 1, 5, 1, 0, 0, 0, time.UTC),
		Movements: models.Movements{Inflows: []models.Movement{{AssetID: eth, AssetSymbol: "ETH", GrossAmount: domain.MustDecimal("1")}}},
	}
	link := models.TransactionLink{
		ID: "link-1", SourceTransactionID: "send-1", TargetTransactionID: "recv-1",
		LinkType: models.LinkTransfer, SourceAmount: domain.MustDecimal("1"), TargetAmount: domain.MustDecimal("1"),
		ConfidenceScore: domain.MustDecimal("0.99"),
	}

	m := NewMatcher("calc-2", FIFO{}, nil, defaultPolicy())
	result, err := m.Run([]models.Transaction{buy, send, receive}, []models.TransactionLink{link})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Errors) != 0 {
		t.Fatalf("expected no asset errors, got %+v", result.Errors)
	}

	ar := result.AssetResults[0]
	if len(ar.LotTransfers) != 1 {
		t.Fatalf("expected 1 lot transfer, got %d", len(ar.LotTransfers))
	}
	if !ar.LotTransfers[0].CarriedCostUSD.Equal(domain.MustDecimal("1000")) {
		t.Fatalf("expected carried cost 1000 (1 unit @ 1000 basis), got %s", ar.LotTransfers[0].CarriedCostUSD)
	}

	var receivedLot *models.AcquisitionLot
	for _, l := range ar.Lots {
		if l.OriginTxID == "recv-1" {
			receivedLot = l
		}
	}
	if receivedLot == nil {
		t.Fatalf("expected a new lot created for the receiving transaction")
	}
	if !receivedLot.UnitCostUSD.Equal(domain.MustDecimal("1000")) {
		t.Fatalf("expected inherited unit cost 1000, got %s", receivedLot.UnitCostUSD)
	}
}

func TestMatcher_MultipleTransferLinksSplitProRata(t *testing.T) {
	eth := domain.NativeAssetID("ethereum")

	buy := models.Transaction{
		ID: "buy-1", Datetime: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Movements: models.Movements{Inflows: []models.Movement{priced(eth, "ETH", "3", "1000")}},
	}
	sendA := models.Transaction{
		ID: "sendA-1", Source: "walletA", Datetime: time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC),
		Movements: models.Movements{Outflows: []models.Movement{priced(eth, "ETH", "2", "1200")}},
	}
	sendB := models.Transaction{
		ID: "sendB-1", Source: "walletB", Datetime: time.Date(2026, 1, 5, 0, 30, 0, 0, time.UTC),
		Movements: models.Movements{Outflows: []models.Movement{priced(eth, "ETH", "1", "1200")}},
	}
	// both transfers settle into the same exchange-deposit transaction,
	// which received a combined 3 ETH in one on-chain event.
	receive := models.Transaction{
		ID: "recv-1", Source: "exchange", Datetime: time.Date(2026, 1, 5, 1, 0, 0, 0, time.UTC),
		Movements: models.Movements{Inflows: []models.Movement{{AssetID: eth, AssetSymbol: "ETH", GrossAmount: domain.MustDecimal("3")}}},
	}
	linkA := models.TransactionLink{
		ID: "link-A", SourceTransactionID: "sendA-1", TargetTransactionID: "recv-1",
		LinkType: models.LinkTransfer, SourceAmount: domain.MustDecimal("2"), TargetAmount: domain.MustDecimal("2"),
		ConfidenceScore: domain.MustDecimal("0.99"),
	}
	linkB := models.TransactionLink{
		ID: "link-B", SourceTransactionID: "sendB-1", TargetTransactionID: "recv-1",
		LinkType: models.LinkTransfer, SourceAmount: domain.MustDecimal("1"), TargetAmount: domain.MustDecimal("1"),
		ConfidenceScore: domain.MustDecimal("0.99"),
	}

	m := NewMatcher("calc-4", FIFO{}, nil, defaultPolicy())
	result, err := m.Run([]models.Transaction{buy, sendA, sendB, receive}, []models.TransactionLink{linkA, linkB})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Errors) != 0 {
		t.Fatalf("expected no asset errors, got %+v", result.Errors)
	}

	ar := result.AssetResults[0]
	if len(ar.LotTransfers) != 2 {
		t.Fatalf("expected 2 lot transfers, got %d", len(ar.LotTransfers))
	}

	var receivedLots []*models.AcquisitionLot
	for _, l := range ar.Lots {
		if l.OriginTxID == "recv-1" {
			receivedLots = append(receivedLots, l)
		}
	}
	if len(receivedLots) != 2 {
		t.Fatalf("expected 2 lots created for the receiving transaction (one per link), got %d", len(receivedLots))
	}

	total := domain.Zero
	for _, l := range receivedLots {
		if !l.UnitCostUSD.Equal(domain.MustDecimal("1000")) {
			t.Fatalf("expected inherited unit cost 1000 on every split lot, got %s", l.UnitCostUSD)
		}
		total = total.Add(l.OriginalQty)
	}
	if !total.Equal(domain.MustDecimal("3")) {
		t.Fatalf("expected split lot quantities to sum to the full 3 ETH received, got %s", total)
	}
}

func TestMatcher_InsufficientLotsIsAssetErrorNotFatal(t *testing.T) {
	btc := domain.NativeAssetID("bitcoin")
	eth := domain.NativeAssetID("ethereum")

	overspend := models.Transaction{
		ID: "sell-1", Datetime: time.Now(),
		Movements: models.Movements{Outflows: []models.Movement{priced(btc, "BTC", "1", "40000")}},
	}
	ok := models.Transaction{
		ID: "buy-eth", Datetime: time.Now(),
		Movements: models.Movements{Inflows: []models.Movement{priced(eth, "ETH", "1", "2000")}},
	}

	m := NewMatcher("calc-3", FIFO{}, nil, defaultPolicy())
	result, err := m.Run([]models.Transaction{overspend, ok}, nil)
	if err != nil {
		t.Fatalf("unexpected fatal error: %v", err)
	}
	if len(result.Errors) != 1 || result.Errors[0].AssetID != btc {
		t.Fatalf("expected 1 asset error for btc, got %+v", result.Errors)
	}
	found := false
	for _, ar := range result.AssetResults {
		if ar.AssetID == eth {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected eth asset to still produce a result despite btc's failure")
	}
}
