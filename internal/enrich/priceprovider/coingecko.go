// Package priceprovider holds provider.PriceProvider implementations
// for historical spot prices and FX rates, all HTTP clients shaped
// after the teacher's own single-asset CoinGecko fetcher, generalized
// to arbitrary assets and a historical (not just latest) timestamp.
package priceprovider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"ledgerforge/internal/models"
	"ledgerforge/internal/provider"
)

// CoinGecko fetches historical daily spot prices from the CoinGecko
// "coins/{id}/history" endpoint. AssetIDs passed in must already be
// CoinGecko coin ids (the enrichment engine maps chain-native asset
// ids to coin ids via idsByAsset before calling FetchPrice).
type CoinGecko struct {
	BaseURL    string
	HTTPClient *http.Client
	IDsByAsset map[string]string // our assetID string -> coingecko coin id
}

func NewCoinGecko(idsByAsset map[string]string) *CoinGecko {
	return &CoinGecko{
		BaseURL:    "https://api.coingecko.com/api/v3",
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		IDsByAsset: idsByAsset,
	}
}

func (c *CoinGecko) Name() string { return "coingecko" }

type coingeckoHistoryResponse struct {
	MarketData struct {
		CurrentPrice map[string]float64 `json:"current_price"`
	} `json:"market_data"`
}

func (c *CoinGecko) FetchPrice(ctx context.Context, assetID, currency string, at time.Time) (*provider.PriceData, error) {
	coinID, ok := c.IDsByAsset[assetID]
	if !ok {
		return nil, fmt.Errorf("coingecko: no coin id mapping for asset %q", assetID)
	}

	url := fmt.Sprintf("%s/coins/%s/history?date=%s&localization=false", c.BaseURL, coinID, at.UTC().Format("02-01-2006"))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "ledgerforge/1.0")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("coingecko: status %s", resp.Status)
	}

	var body coingeckoHistoryResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}

	price, ok := body.MarketData.CurrentPrice[currency]
	if !ok {
		return nil, fmt.Errorf("coingecko: no %s quote for %s on %s", currency, coinID, at.Format("2006-01-02"))
	}

	return &provider.PriceData{
		AssetID:     assetID,
		Currency:    currency,
		Price:       strconv.FormatFloat(price, 'f', -1, 64),
		ObservedAt:  at,
		Granularity: models.GranularityDay,
	}, nil
}
