package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"ledgerforge/internal/models"

	"github.com/jackc/pgx/v5"
)

// BeginSession starts a new import session for accountID, enforcing
// that at most one non-terminal (started) session exists per account.
// Returns false with no error if another session is already in flight.
func (r *Repository) BeginSession(ctx context.Context, session models.ImportSession) (bool, error) {
	var started bool
	err := r.db.QueryRow(ctx, `
		INSERT INTO ingest.import_sessions (id, account_id, status, started_at)
		SELECT $1, $2, 'started', $3
		WHERE NOT EXISTS (
			SELECT 1 FROM ingest.import_sessions
			WHERE account_id = $2 AND status = 'started'
		)
		RETURNING true`,
		session.ID, session.AccountID, session.StartedAt,
	).Scan(&started)

	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("begin session: %w", err)
	}
	return started, nil
}

// CompleteSession marks a session completed with final counters.
func (r *Repository) CompleteSession(ctx context.Context, sessionID string, imported, skipped int) error {
	_, err := r.db.Exec(ctx, `
		UPDATE ingest.import_sessions
		SET status = 'completed', completed_at = NOW(),
		    transactions_imported = $2, transactions_skipped = $3
		WHERE id = $1`,
		sessionID, imported, skipped,
	)
	return err
}

// FailSession marks a session failed and records the error.
func (r *Repository) FailSession(ctx context.Context, sessionID string, errMsg string, details json.RawMessage) error {
	_, err := r.db.Exec(ctx, `
		UPDATE ingest.import_sessions
		SET status = 'failed', completed_at = NOW(),
		    error_message = $2, error_details = $3
		WHERE id = $1`,
		sessionID, errMsg, details,
	)
	return err
}

// ActiveSession returns the current non-terminal session for an
// account, if any.
func (r *Repository) ActiveSession(ctx context.Context, accountID string) (*models.ImportSession, error) {
	var s models.ImportSession
	err := r.db.QueryRow(ctx, `
		SELECT id, account_id, status, started_at, completed_at,
		       transactions_imported, transactions_skipped, error_message, error_details
		FROM ingest.import_sessions
		WHERE account_id = $1 AND status = 'started'
		ORDER BY started_at DESC
		LIMIT 1`,
		accountID,
	).Scan(&s.ID, &s.AccountID, &s.Status, &s.StartedAt, &s.CompletedAt,
		&s.TransactionsImported, &s.TransactionsSkipped, &s.ErrorMessage, &s.ErrorDetails)

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}
