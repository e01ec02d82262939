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

// ECB fetches a historical daily FX rate against USD from the
// Frankfurter API (a free wrapper around the European Central Bank's
// reference rates), implementing the same PriceProvider interface the
// crypto providers use so FX normalization is just another pass
// through the same fetch machinery.
type ECB struct {
	BaseURL    string
	HTTPClient *http.Client
}

func NewECB() *ECB {
	return &ECB{
		BaseURL:    "https://api.frankfurter.app",
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (e *ECB) Name() string { return "ecb" }

type frankfurterResponse struct {
	Rates map[string]float64 `json:"rates"`
}

// FetchPrice treats assetID as an ISO fiat code (e.g. "EUR") and
// returns its USD rate for the given day: how many USD one unit of
// assetID buys.
func (e *ECB) FetchPrice(ctx context.Context, assetID, currency string, at time.Time) (*provider.PriceData, error) {
	day := at.UTC().Format("2006-01-02")
	url := fmt.Sprintf("%s/%s?from=%s&to=%s", e.BaseURL, day, assetID, currency)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("ecb: status %s", resp.Status)
	}

	var body frankfurterResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	rate, ok := body.Rates[currency]
	if !ok {
		return nil, fmt.Errorf("ecb: no %s rate for %s on %s", currency, assetID, day)
	}

	return &provider.PriceData{
		AssetID:     assetID,
		Currency:    currency,
		Price:       trimFloat(rate),
		ObservedAt:  at,
		Granularity: models.GranularityDay,
	}, nil
}

func trimFloat(f float64) string {
	return fmt.Sprintf("%.8f", f)
}
