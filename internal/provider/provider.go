// Package provider defines the contract every chain/exchange adapter
// implements, and the registry the import runner uses to resolve an
// account's provider by name without a compile-time dependency on any
// concrete adapter package.
package provider

import (
	"context"
	"time"

	"ledgerforge/internal/models"
)

// Capabilities describes what an adapter can do, so the runner can
// adapt its loop (e.g. skip replay-window rewinding for a provider that
// has no notion of chain reorgs).
type Capabilities struct {
	SupportsReplay   bool
	SupportsCursor   bool
	NativeStreamType models.StreamType
}

// Metadata identifies an adapter for logging and registry lookup.
type Metadata struct {
	Name         string
	Capabilities Capabilities
}

// FetchRequest is one pull against a provider, resuming from cursor.
type FetchRequest struct {
	Account    models.Account
	Stream     models.StreamType
	Cursor     models.CursorState
	BatchSize  int
}

// FetchResult is one page of provider output. NextCursor is always
// set, even when Events is empty, so the runner can detect
// end-of-stream via IsCaughtUp.
type FetchResult struct {
	Events      []models.RawEvent
	NextCursor  models.CursorState
	IsCaughtUp  bool
}

// Provider is implemented by every concrete chain/exchange adapter
// (blockchain full nodes, exchange REST APIs, CSV file readers).
type Provider interface {
	Metadata() Metadata
	Fetch(ctx context.Context, req FetchRequest) (FetchResult, error)
}

// PriceData is one externally fetched price quote.
type PriceData struct {
	AssetID     string
	Currency    string
	Price       string // decimal string, parsed by the caller via domain.ParseDecimal
	ObservedAt  time.Time
	Granularity models.Granularity
}

// PriceProvider is implemented by external price-fetch sources (spot
// price APIs, FX rate services).
type PriceProvider interface {
	Name() string
	FetchPrice(ctx context.Context, assetID, currency string, at time.Time) (*PriceData, error)
}
