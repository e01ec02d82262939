package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"ledgerforge/internal/models"

	"github.com/jackc/pgx/v5"
)

// GetAccount loads a tracked account by id, including its per-stream
// cursor map.
func (r *Repository) GetAccount(ctx context.Context, accountID string) (*models.Account, error) {
	var a models.Account
	var cursorJSON []byte
	err := r.db.QueryRow(ctx, `
		SELECT id, user_id, COALESCE(parent_account_id, ''), account_type, source_name,
		       identifier, provider_name, credentials, last_cursor, verification_metadata
		FROM ingest.accounts
		WHERE id = $1`,
		accountID,
	).Scan(&a.ID, &a.UserID, &a.ParentAccountID, &a.AccountType, &a.SourceName,
		&a.Identifier, &a.ProviderName, &a.Credentials, &cursorJSON, &a.VerificationMetadata)

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	a.LastCursor = make(map[models.StreamType]models.CursorState)
	if len(cursorJSON) > 0 {
		if err := json.Unmarshal(cursorJSON, &a.LastCursor); err != nil {
			return nil, fmt.Errorf("decode cursor map: %w", err)
		}
	}
	return &a, nil
}

// SaveCursor persists the resumable position for one account stream.
// TotalFetched in the stored state must already reflect the
// monotonically non-decreasing invariant; the caller computes it.
func (r *Repository) SaveCursor(ctx context.Context, accountID string, stream models.StreamType, cursor models.CursorState) error {
	encoded, err := json.Marshal(cursor)
	if err != nil {
		return fmt.Errorf("encode cursor: %w", err)
	}
	_, err = r.db.Exec(ctx, `
		UPDATE ingest.accounts
		SET last_cursor = jsonb_set(COALESCE(last_cursor, '{}'::jsonb), ARRAY[$2], $3::jsonb, true)
		WHERE id = $1`,
		accountID, string(stream), encoded,
	)
	return err
}

// ListAccountsByProvider returns every account tracked under a given
// provider, used to fan the import runner out across accounts.
func (r *Repository) ListAccountsByProvider(ctx context.Context, providerName string) ([]models.Account, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, COALESCE(parent_account_id, ''), account_type, source_name,
		       identifier, provider_name, credentials, COALESCE(last_cursor, '{}'::jsonb), verification_metadata
		FROM ingest.accounts
		WHERE provider_name = $1`,
		providerName,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Account
	for rows.Next() {
		var a models.Account
		var cursorJSON []byte
		if err := rows.Scan(&a.ID, &a.UserID, &a.ParentAccountID, &a.AccountType, &a.SourceName,
			&a.Identifier, &a.ProviderName, &a.Credentials, &cursorJSON, &a.VerificationMetadata); err != nil {
			return nil, err
		}
		a.LastCursor = make(map[models.StreamType]models.CursorState)
		if len(cursorJSON) > 0 {
			if err := json.Unmarshal(cursorJSON, &a.LastCursor); err != nil {
				return nil, fmt.Errorf("decode cursor map: %w", err)
			}
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
