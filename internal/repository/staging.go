package repository

import (
	"context"
	"fmt"

	"ledgerforge/internal/models"

	"github.com/jackc/pgx/v5"
)

// SaveRawEvents bulk-inserts staged events. Uniqueness is
// (account_id, event_id); a re-delivered event from a resumed cursor is
// silently absorbed rather than duplicated.
func (r *Repository) SaveRawEvents(ctx context.Context, events []models.RawEvent) error {
	if len(events) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, e := range events {
		batch.Queue(`
			INSERT INTO staging.raw_events (
				account_id, provider_name, external_id, blockchain_tx_hash,
				event_id, provider_data, normalized_data, timestamp,
				stream_type, processing_status, import_session_id
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 'pending', $10)
			ON CONFLICT (account_id, event_id) DO NOTHING`,
			e.AccountID, e.ProviderName, e.ExternalID, e.BlockchainTxHash,
			e.EventID, e.ProviderData, e.NormalizedData, e.Timestamp,
			e.StreamType, e.ImportSessionID,
		)
	}

	br := r.db.SendBatch(ctx, batch)
	defer br.Close()
	for i := 0; i < len(events); i++ {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("save raw event batch: %w", err)
		}
	}
	return nil
}

// LoadPendingByHashBatch loads up to limit pending events for
// accountID, grouped by blockchain_tx_hash so the caller can assemble
// whole hash groups (every event sharing a transaction hash) rather
// than splitting one transaction's events across two chunks.
func (r *Repository) LoadPendingByHashBatch(ctx context.Context, accountID string, limit int) ([]models.RawEvent, error) {
	// group_key mirrors process.groupByHash's in-memory fallback: rows
	// that share a real blockchain_tx_hash are one group, but an empty
	// hash (exchange rows, which have no shared on-chain transaction)
	// falls back to the row's own event_id so each such row is its own
	// group instead of every exchange row collapsing into one bucket.
	rows, err := r.db.Query(ctx, `
		WITH candidate_hashes AS (
			SELECT DISTINCT
				CASE WHEN blockchain_tx_hash = '' THEN event_id ELSE blockchain_tx_hash END AS group_key
			FROM staging.raw_events
			WHERE account_id = $1 AND processing_status = 'pending'
			ORDER BY group_key
			LIMIT $2
		)
		SELECT
			id, account_id, provider_name, external_id, blockchain_tx_hash,
			event_id, provider_data, normalized_data, timestamp,
			stream_type, processing_status, processing_error, import_session_id
		FROM staging.raw_events
		WHERE account_id = $1
		  AND processing_status = 'pending'
		  AND (CASE WHEN blockchain_tx_hash = '' THEN event_id ELSE blockchain_tx_hash END) IN (SELECT group_key FROM candidate_hashes)
		ORDER BY (CASE WHEN blockchain_tx_hash = '' THEN event_id ELSE blockchain_tx_hash END), timestamp, id`,
		accountID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.RawEvent
	for rows.Next() {
		var e models.RawEvent
		if err := rows.Scan(
			&e.ID, &e.AccountID, &e.ProviderName, &e.ExternalID, &e.BlockchainTxHash,
			&e.EventID, &e.ProviderData, &e.NormalizedData, &e.Timestamp,
			&e.StreamType, &e.ProcessingStatus, &e.ProcessingError, &e.ImportSessionID,
		); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// MarkProcessed transitions events to processed. Only rows still
// pending are affected, so a retried batch never regresses an event
// another worker already finished.
func (r *Repository) MarkProcessed(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.db.Exec(ctx, `
		UPDATE staging.raw_events
		SET processing_status = 'processed'
		WHERE id = ANY($1) AND processing_status = 'pending'`,
		ids,
	)
	return err
}

// MarkFailed transitions events to failed with a recorded error, the
// "isolate and continue" recovery policy for schema-validation and
// group-mapping errors.
func (r *Repository) MarkFailed(ctx context.Context, ids []int64, errMsg string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.db.Exec(ctx, `
		UPDATE staging.raw_events
		SET processing_status = 'failed', processing_error = $2
		WHERE id = ANY($1) AND processing_status = 'pending'`,
		ids, errMsg,
	)
	return err
}

// MarkSkipped transitions events to skipped, used for spam-filtered or
// below-dust-threshold events that should never be retried.
func (r *Repository) MarkSkipped(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.db.Exec(ctx, `
		UPDATE staging.raw_events
		SET processing_status = 'skipped'
		WHERE id = ANY($1) AND processing_status = 'pending'`,
		ids,
	)
	return err
}

// CountByStreamType reports pending backlog size per stream, used for
// import-progress reporting.
func (r *Repository) CountByStreamType(ctx context.Context, accountID string) (map[models.StreamType]int64, error) {
	rows, err := r.db.Query(ctx, `
		SELECT stream_type, COUNT(*)
		FROM staging.raw_events
		WHERE account_id = $1 AND processing_status = 'pending'
		GROUP BY stream_type`,
		accountID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[models.StreamType]int64)
	for rows.Next() {
		var st models.StreamType
		var count int64
		if err := rows.Scan(&st, &count); err != nil {
			return nil, err
		}
		out[st] = count
	}
	return out, rows.Err()
}
