package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"ledgerforge/internal/models"

	"github.com/jackc/pgx/v5"
)

// txRow is the flattened wire shape of models.Transaction for the
// jsonb-backed movements/fees/operation/blockchain/note columns.
type txRow struct {
	Movements  models.Movements       `json:"movements"`
	Fees       []models.Fee           `json:"fees"`
	Operation  models.Operation       `json:"operation"`
	Blockchain *models.BlockchainInfo `json:"blockchain,omitempty"`
	Note       *models.Note           `json:"note,omitempty"`
}

// SaveTransactions upserts canonical transactions. Conflict target is
// id; re-processing the same transaction (e.g. after enrichment)
// overwrites the priced fields in place.
func (r *Repository) SaveTransactions(ctx context.Context, txs []models.Transaction) error {
	if len(txs) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, tx := range txs {
		payload, err := json.Marshal(txRow{
			Movements:  tx.Movements,
			Fees:       tx.Fees,
			Operation:  tx.Operation,
			Blockchain: tx.Blockchain,
			Note:       tx.Note,
		})
		if err != nil {
			return fmt.Errorf("encode transaction %s: %w", tx.ID, err)
		}
		batch.Queue(`
			INSERT INTO ledger.transactions (
				id, account_id, external_id, source, source_type, datetime,
				timestamp, status, "from", "to", payload, excluded_from_accounting
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			ON CONFLICT (id) DO UPDATE SET
				status = EXCLUDED.status,
				payload = EXCLUDED.payload,
				excluded_from_accounting = EXCLUDED.excluded_from_accounting`,
			tx.ID, tx.AccountID, tx.ExternalID, tx.Source, tx.SourceType, tx.Datetime,
			tx.Timestamp, tx.Status, tx.From, tx.To, payload, tx.ExcludedFromAccounting,
		)
	}

	br := r.db.SendBatch(ctx, batch)
	defer br.Close()
	for i := 0; i < len(txs); i++ {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("save transaction batch: %w", err)
		}
	}
	return nil
}

// GetTransaction loads one canonical transaction by id.
func (r *Repository) GetTransaction(ctx context.Context, id string) (*models.Transaction, error) {
	var tx models.Transaction
	var payload []byte
	err := r.db.QueryRow(ctx, `
		SELECT id, account_id, external_id, source, source_type, datetime,
		       timestamp, status, "from", "to", payload, excluded_from_accounting
		FROM ledger.transactions
		WHERE id = $1`,
		id,
	).Scan(&tx.ID, &tx.AccountID, &tx.ExternalID, &tx.Source, &tx.SourceType, &tx.Datetime,
		&tx.Timestamp, &tx.Status, &tx.From, &tx.To, &payload, &tx.ExcludedFromAccounting)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var row txRow
	if err := json.Unmarshal(payload, &row); err != nil {
		return nil, fmt.Errorf("decode transaction %s: %w", id, err)
	}
	tx.Movements = row.Movements
	tx.Fees = row.Fees
	tx.Operation = row.Operation
	tx.Blockchain = row.Blockchain
	tx.Note = row.Note
	return &tx, nil
}

// ListTransactionsForAccounting returns every non-excluded transaction
// for userID ordered by datetime, the feed the lot matcher consumes.
func (r *Repository) ListTransactionsForAccounting(ctx context.Context, userID string) ([]models.Transaction, error) {
	rows, err := r.db.Query(ctx, `
		SELECT t.id, t.account_id, t.external_id, t.source, t.source_type, t.datetime,
		       t.timestamp, t.status, t."from", t."to", t.payload, t.excluded_from_accounting
		FROM ledger.transactions t
		JOIN ingest.accounts a ON a.id = t.account_id
		WHERE a.user_id = $1 AND t.excluded_from_accounting = false AND t.status = 'success'
		ORDER BY t.datetime, t.id`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Transaction
	for rows.Next() {
		var tx models.Transaction
		var payload []byte
		if err := rows.Scan(&tx.ID, &tx.AccountID, &tx.ExternalID, &tx.Source, &tx.SourceType, &tx.Datetime,
			&tx.Timestamp, &tx.Status, &tx.From, &tx.To, &payload, &tx.ExcludedFromAccounting); err != nil {
			return nil, err
		}
		var row txRow
		if err := json.Unmarshal(payload, &row); err != nil {
			return nil, fmt.Errorf("decode transaction %s: %w", tx.ID, err)
		}
		tx.Movements = row.Movements
		tx.Fees = row.Fees
		tx.Operation = row.Operation
		tx.Blockchain = row.Blockchain
		tx.Note = row.Note
		out = append(out, tx)
	}
	return out, rows.Err()
}

// SaveLinks upserts transaction links, the propagation graph consumed
// by price enrichment pass 3 and the lot matcher's transfer handling.
func (r *Repository) SaveLinks(ctx context.Context, links []models.TransactionLink) error {
	if len(links) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, l := range links {
		batch.Queue(`
			INSERT INTO ledger.transaction_links (
				id, source_transaction_id, target_transaction_id, link_type,
				source_amount, target_amount, confidence_score
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (id) DO UPDATE SET
				confidence_score = EXCLUDED.confidence_score`,
			l.ID, l.SourceTransactionID, l.TargetTransactionID, l.LinkType,
			l.SourceAmount, l.TargetAmount, l.ConfidenceScore,
		)
	}
	br := r.db.SendBatch(ctx, batch)
	defer br.Close()
	for i := 0; i < len(links); i++ {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("save link batch: %w", err)
		}
	}
	return nil
}

// ListLinksForAccounting returns every link touching a transaction
// belonging to userID, keyed by either side of the link.
func (r *Repository) ListLinksForAccounting(ctx context.Context, userID string) ([]models.TransactionLink, error) {
	rows, err := r.db.Query(ctx, `
		SELECT DISTINCT l.id, l.source_transaction_id, l.target_transaction_id,
		       l.link_type, l.source_amount, l.target_amount, l.confidence_score
		FROM ledger.transaction_links l
		JOIN ledger.transactions t
		  ON t.id = l.source_transaction_id OR t.id = l.target_transaction_id
		JOIN ingest.accounts a ON a.id = t.account_id
		WHERE a.user_id = $1`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.TransactionLink
	for rows.Next() {
		var l models.TransactionLink
		if err := rows.Scan(&l.ID, &l.SourceTransactionID, &l.TargetTransactionID,
			&l.LinkType, &l.SourceAmount, &l.TargetAmount, &l.ConfidenceScore); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
