package repository

import (
	"context"
	"fmt"

	"ledgerforge/internal/models"

	"github.com/jackc/pgx/v5"
)

// ReplaceLotsForCalculation deletes and reinserts every lot, disposal,
// and transfer belonging to calculationID inside one transaction, so a
// rerun of the lot matcher (new transactions arrived, method changed)
// never leaves stale partial output.
func (r *Repository) ReplaceLotsForCalculation(ctx context.Context, calculationID string, lots []models.AcquisitionLot, disposals []models.LotDisposal, transfers []models.LotTransfer) error {
	dbtx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer dbtx.Rollback(ctx)

	if _, err := dbtx.Exec(ctx, `DELETE FROM accounting.lot_disposals WHERE lot_id IN (
		SELECT id FROM accounting.acquisition_lots WHERE calculation_id = $1)`, calculationID); err != nil {
		return fmt.Errorf("clear disposals: %w", err)
	}
	if _, err := dbtx.Exec(ctx, `DELETE FROM accounting.lot_transfers WHERE source_lot_id IN (
		SELECT id FROM accounting.acquisition_lots WHERE calculation_id = $1)`, calculationID); err != nil {
		return fmt.Errorf("clear transfers: %w", err)
	}
	if _, err := dbtx.Exec(ctx, `DELETE FROM accounting.acquisition_lots WHERE calculation_id = $1`, calculationID); err != nil {
		return fmt.Errorf("clear lots: %w", err)
	}

	lotBatch := &pgx.Batch{}
	for _, l := range lots {
		lotBatch.Queue(`
			INSERT INTO accounting.acquisition_lots (
				id, calculation_id, asset_id, acquired_at, original_qty,
				remaining_qty, unit_cost_usd, method, origin_tx_id
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			l.ID, l.CalculationID, l.AssetID, l.AcquiredAt, l.OriginalQty,
			l.RemainingQty, l.UnitCostUSD, l.Method, l.OriginTxID,
		)
	}
	if lotBatch.Len() > 0 {
		br := dbtx.SendBatch(ctx, lotBatch)
		for i := 0; i < lotBatch.Len(); i++ {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return fmt.Errorf("insert lot batch: %w", err)
			}
		}
		br.Close()
	}

	disposalBatch := &pgx.Batch{}
	for _, d := range disposals {
		disposalBatch.Queue(`
			INSERT INTO accounting.lot_disposals (lot_id, tx_id, qty, proceeds_usd, gain_usd)
			VALUES ($1, $2, $3, $4, $5)`,
			d.LotID, d.TxID, d.Qty, d.ProceedsUSD, d.GainUSD,
		)
	}
	if disposalBatch.Len() > 0 {
		br := dbtx.SendBatch(ctx, disposalBatch)
		for i := 0; i < disposalBatch.Len(); i++ {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return fmt.Errorf("insert disposal batch: %w", err)
			}
		}
		br.Close()
	}

	transferBatch := &pgx.Batch{}
	for _, t := range transfers {
		transferBatch.Queue(`
			INSERT INTO accounting.lot_transfers (
				link_id, source_lot_id, target_lot_id, qty, carried_cost_usd, fee_adjustment_usd
			)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			t.LinkID, t.SourceLotID, t.TargetLotID, t.Qty, t.CarriedCostUSD, t.FeeAdjustmentUSD,
		)
	}
	if transferBatch.Len() > 0 {
		br := dbtx.SendBatch(ctx, transferBatch)
		for i := 0; i < transferBatch.Len(); i++ {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return fmt.Errorf("insert transfer batch: %w", err)
			}
		}
		br.Close()
	}

	return dbtx.Commit(ctx)
}

// ListOpenLots returns every lot with remaining quantity for an asset,
// ordered by acquisition time - the matcher reorders per its chosen
// strategy (FIFO/LIFO/HIFO) after loading.
func (r *Repository) ListOpenLots(ctx context.Context, calculationID string) ([]models.AcquisitionLot, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, calculation_id, asset_id, acquired_at, original_qty,
		       remaining_qty, unit_cost_usd, method, origin_tx_id
		FROM accounting.acquisition_lots
		WHERE calculation_id = $1 AND remaining_qty > 0
		ORDER BY acquired_at`,
		calculationID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.AcquisitionLot
	for rows.Next() {
		var l models.AcquisitionLot
		if err := rows.Scan(&l.ID, &l.CalculationID, &l.AssetID, &l.AcquiredAt, &l.OriginalQty,
			&l.RemainingQty, &l.UnitCostUSD, &l.Method, &l.OriginTxID); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
