package priceprovider

import "strings"

// symbolFromAssetID extracts a best-effort trading symbol from one of
// our AssetID strings for providers (CryptoCompare, Binance) that key
// on ticker symbol rather than chain identity. Native assets resolve
// to their chain name uppercased; this is deliberately approximate and
// is overridden per-deployment via CoinGecko's explicit id map where
// precision matters.
func symbolFromAssetID(assetID string) string {
	parts := strings.Split(assetID, ":")
	if len(parts) < 2 {
		return strings.ToUpper(assetID)
	}
	return strings.ToUpper(parts[1])
}
