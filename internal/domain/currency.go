package domain

import "strings"

// Currency is a symbolic code, e.g. BTC, USD, ETH. Equality with other
// currencies is exact string match against the normalized (uppercase)
// code; the zero value is the empty currency.
type Currency string

func NewCurrency(code string) Currency {
	return Currency(strings.ToUpper(strings.TrimSpace(code)))
}

func (c Currency) String() string { return string(c) }

var fiatCodes = map[Currency]bool{
	"USD": true, "EUR": true, "GBP": true, "CAD": true,
	"JPY": true, "AUD": true, "CHF": true, "NZD": true,
}

var stablecoinCodes = map[Currency]bool{
	"USDC": true, "USDT": true, "DAI": true, "BUSD": true,
	"TUSD": true, "GUSD": true, "USDP": true, "FRAX": true,
}

// IsFiat reports whether c is a member of the closed fiat-currency set.
func (c Currency) IsFiat() bool {
	return fiatCodes[c]
}

// IsFiatOrStablecoin reports whether c is fiat or a recognized
// fiat-pegged stablecoin.
func (c Currency) IsFiatOrStablecoin() bool {
	return c.IsFiat() || stablecoinCodes[c]
}
