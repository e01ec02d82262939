package priceprovider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"ledgerforge/internal/models"
	"ledgerforge/internal/provider"
)

// Binance fetches a historical daily close kline, used as the
// last-resort provider behind CoinGecko and CryptoCompare.
type Binance struct {
	BaseURL    string
	HTTPClient *http.Client
}

func NewBinance() *Binance {
	return &Binance{
		BaseURL:    "https://api.binance.com",
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (b *Binance) Name() string { return "binance" }

func (b *Binance) FetchPrice(ctx context.Context, assetID, currency string, at time.Time) (*provider.PriceData, error) {
	symbol := symbolFromAssetID(assetID) + normalizeQuote(currency)
	dayStart := at.UTC().Truncate(24 * time.Hour)
	openTimeMs := dayStart.UnixMilli()

	url := fmt.Sprintf("%s/api/v3/klines?symbol=%s&interval=1d&startTime=%d&limit=1", b.BaseURL, symbol, openTimeMs)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := b.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("binance: status %s", resp.Status)
	}

	// Each kline is [openTime, open, high, low, close, volume, ...] with
	// mixed numeric/string element types, decoded generically.
	var klines [][]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&klines); err != nil {
		return nil, err
	}
	if len(klines) == 0 || len(klines[0]) < 5 {
		return nil, fmt.Errorf("binance: no daily kline for %s at %s", symbol, at.Format("2006-01-02"))
	}
	closeStr, ok := klines[0][4].(string)
	if !ok {
		return nil, fmt.Errorf("binance: unexpected kline close type for %s", symbol)
	}

	return &provider.PriceData{
		AssetID:     assetID,
		Currency:    currency,
		Price:       closeStr,
		ObservedAt:  dayStart,
		Granularity: models.GranularityDay,
	}, nil
}

func normalizeQuote(currency string) string {
	if currency == "usd" || currency == "USD" {
		return "USDT"
	}
	return currency
}
