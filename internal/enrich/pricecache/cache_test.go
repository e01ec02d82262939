package pricecache

import (
	"testing"
	"time"

	"ledgerforge/internal/domain"
)

func TestCache_NearestPrice_WithinWindow(t *testing.T) {
	c := New()
	asset := domain.NativeAssetID("bitcoin")
	usd := domain.NewCurrency("usd")

	day1 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	day3 := time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC)
	c.Put(asset, usd, day1, domain.MustDecimal("40000"))
	c.Put(asset, usd, day3, domain.MustDecimal("42000"))

	price, ok := c.NearestPrice(asset, usd, time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC))
	if !ok {
		t.Fatalf("expected a nearest price")
	}
	if !price.Equal(domain.MustDecimal("42000")) {
		t.Fatalf("expected nearest sample (day3) to win, got %s", price)
	}
}

func TestCache_NearestPrice_OutsideWindowMisses(t *testing.T) {
	c := New()
	asset := domain.NativeAssetID("bitcoin")
	usd := domain.NewCurrency("usd")
	c.Put(asset, usd, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), domain.MustDecimal("40000"))

	_, ok := c.NearestPrice(asset, usd, time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC))
	if ok {
		t.Fatalf("expected no sample within 48h window")
	}
}

func TestCache_PutOverwritesSameDay(t *testing.T) {
	c := New()
	asset := domain.NativeAssetID("ethereum")
	usd := domain.NewCurrency("usd")
	day := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	c.Put(asset, usd, day, domain.MustDecimal("2000"))
	c.Put(asset, usd, day, domain.MustDecimal("2100"))

	price, ok := c.Latest(asset, usd)
	if !ok || !price.Equal(domain.MustDecimal("2100")) {
		t.Fatalf("expected overwrite to stick, got %s ok=%v", price, ok)
	}
}
