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

// CryptoCompare fetches a historical daily close from the
// "data/v2/histoday" endpoint, used as the secondary provider when
// CoinGecko has no quote for an asset/day.
type CryptoCompare struct {
	BaseURL    string
	HTTPClient *http.Client
	APIKey     string
}

func NewCryptoCompare(apiKey string) *CryptoCompare {
	return &CryptoCompare{
		BaseURL:    "https://min-api.cryptocompare.com",
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		APIKey:     apiKey,
	}
}

func (c *CryptoCompare) Name() string { return "cryptocompare" }

type cryptocompareHistoResponse struct {
	Data struct {
		Data []struct {
			Time  int64   `json:"time"`
			Close float64 `json:"close"`
		} `json:"Data"`
	} `json:"Data"`
}

func (c *CryptoCompare) FetchPrice(ctx context.Context, assetID, currency string, at time.Time) (*provider.PriceData, error) {
	symbol := symbolFromAssetID(assetID)
	toTs := at.UTC().Unix()

	url := fmt.Sprintf("%s/data/v2/histoday?fsym=%s&tsym=%s&limit=1&toTs=%d", c.BaseURL, symbol, currency, toTs)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if c.APIKey != "" {
		req.Header.Set("authorization", "Apikey "+c.APIKey)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("cryptocompare: status %s", resp.Status)
	}

	var body cryptocompareHistoResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	points := body.Data.Data
	if len(points) == 0 {
		return nil, fmt.Errorf("cryptocompare: no daily close for %s/%s at %s", symbol, currency, at.Format("2006-01-02"))
	}
	last := points[len(points)-1]

	return &provider.PriceData{
		AssetID:     assetID,
		Currency:    currency,
		Price:       strconv.FormatFloat(last.Close, 'f', -1, 64),
		ObservedAt:  time.Unix(last.Time, 0).UTC(),
		Granularity: models.GranularityDay,
	}, nil
}
