package repository

import (
	"context"
	"time"

	"ledgerforge/internal/domain"

	"github.com/jackc/pgx/v5"
)

// PriceCacheEntry is one persisted external-fetch price sample, the
// durable backing store behind the in-memory pricecache.Cache.
type PriceCacheEntry struct {
	AssetID  domain.AssetID
	Currency domain.Currency
	Day      time.Time
	Price    domain.Decimal
	Provider string
}

// SavePriceSample upserts one daily price sample. Same-day refetches
// from the same provider overwrite rather than duplicate.
func (r *Repository) SavePriceSample(ctx context.Context, e PriceCacheEntry) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO enrichment.price_samples (asset_id, currency, day, price, provider)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (asset_id, currency, day, provider) DO UPDATE SET price = EXCLUDED.price`,
		e.AssetID, e.Currency, e.Day, e.Price, e.Provider,
	)
	return err
}

// LoadPriceSeries loads every cached sample for an asset/currency pair,
// ordered by day, for the in-memory nearest-neighbor lookup to index.
func (r *Repository) LoadPriceSeries(ctx context.Context, assetID domain.AssetID, currency domain.Currency) ([]PriceCacheEntry, error) {
	rows, err := r.db.Query(ctx, `
		SELECT asset_id, currency, day, price, provider
		FROM enrichment.price_samples
		WHERE asset_id = $1 AND currency = $2
		ORDER BY day`,
		assetID, currency,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PriceCacheEntry
	for rows.Next() {
		var e PriceCacheEntry
		if err := rows.Scan(&e.AssetID, &e.Currency, &e.Day, &e.Price, &e.Provider); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// LatestPrice returns the most recent cached sample for an asset, or
// nil if none is cached yet.
func (r *Repository) LatestPrice(ctx context.Context, assetID domain.AssetID, currency domain.Currency) (*PriceCacheEntry, error) {
	var e PriceCacheEntry
	err := r.db.QueryRow(ctx, `
		SELECT asset_id, currency, day, price, provider
		FROM enrichment.price_samples
		WHERE asset_id = $1 AND currency = $2
		ORDER BY day DESC
		LIMIT 1`,
		assetID, currency,
	).Scan(&e.AssetID, &e.Currency, &e.Day, &e.Price, &e.Provider)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}
