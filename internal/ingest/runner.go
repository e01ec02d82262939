// Package ingest drives the streaming import loop: acquire an
// exclusive session for an account, pull batches from its provider
// starting at the last saved cursor, rewind into the replay window to
// tolerate chain reorgs, dedup re-delivered items, and stage everything
// for the Process Service.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"ledgerforge/internal/domain"
	"ledgerforge/internal/eventbus"
	"ledgerforge/internal/models"
	"ledgerforge/internal/provider"
)

// StagingStore is the persistence surface the runner needs; satisfied
// by *repository.Repository.
type StagingStore interface {
	SaveRawEvents(ctx context.Context, events []models.RawEvent) error
	BeginSession(ctx context.Context, session models.ImportSession) (bool, error)
	CompleteSession(ctx context.Context, sessionID string, imported, skipped int) error
	FailSession(ctx context.Context, sessionID, errMsg string, details json.RawMessage) error
	GetAccount(ctx context.Context, accountID string) (*models.Account, error)
	SaveCursor(ctx context.Context, accountID string, stream models.StreamType, cursor models.CursorState) error
}

// Config governs one Runner's behavior; all fields have conservative
// zero-value fallbacks applied in NewRunner.
type Config struct {
	BatchSize     int
	ReplayWindow  int // number of already-fetched items to rewind into on resume
	DedupCapacity int
}

// Runner drives ImportFromSource for a single account/stream pair.
type Runner struct {
	store     StagingStore
	providers *provider.Registry
	bus       *eventbus.Bus
	cfg       Config
}

func NewRunner(store StagingStore, providers *provider.Registry, bus *eventbus.Bus, cfg Config) *Runner {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if cfg.ReplayWindow < 0 {
		cfg.ReplayWindow = 0
	}
	if cfg.DedupCapacity <= 0 {
		cfg.DedupCapacity = 500
	}
	return &Runner{store: store, providers: providers, bus: bus, cfg: cfg}
}

// ImportFromSource runs one full import pass for accountID's stream,
// from its saved cursor through to provider-reported catch-up.
func (r *Runner) ImportFromSource(ctx context.Context, accountID string, stream models.StreamType) error {
	account, err := r.store.GetAccount(ctx, accountID)
	if err != nil {
		return fmt.Errorf("ingest: load account %s: %w", accountID, err)
	}
	if account == nil {
		return fmt.Errorf("ingest: account %s not found", accountID)
	}

	p, err := r.providers.Get(account.ProviderName)
	if err != nil {
		return domain.NewError(domain.KindProviderFatal, fmt.Sprintf("no provider for account %s", accountID), err)
	}

	sessionID := fmt.Sprintf("%s-%s-%d", accountID, stream, time.Now().UnixNano())
	started, err := r.store.BeginSession(ctx, models.ImportSession{
		ID:        sessionID,
		AccountID: accountID,
		Status:    models.SessionStarted,
		StartedAt: time.Now().UTC(),
	})
	if err != nil {
		return domain.NewError(domain.KindCursorPersistence, "begin import session", err)
	}
	if !started {
		log.Printf("[ingest] account %s already has an active session, skipping", accountID)
		return nil
	}

	cursor := r.rewindIntoReplayWindow(account.LastCursor[stream])
	dedup := domain.NewDedupRing(r.cfg.DedupCapacity)

	var imported, skipped int
	for {
		result, err := p.Fetch(ctx, provider.FetchRequest{
			Account:   *account,
			Stream:    stream,
			Cursor:    cursor,
			BatchSize: r.cfg.BatchSize,
		})
		if err != nil {
			failErr := domain.NewError(domain.KindProviderTransient, "provider fetch failed", err)
			_ = r.store.FailSession(ctx, sessionID, failErr.Error(), nil)
			return failErr
		}

		var fresh []models.RawEvent
		for _, evt := range result.Events {
			key := evt.ProviderName + ":" + evt.EventID
			if dedup.SeenOrAdd(key) {
				skipped++
				continue
			}
			evt.ImportSessionID = sessionID
			fresh = append(fresh, evt)
		}

		if len(fresh) > 0 {
			if err := r.store.SaveRawEvents(ctx, fresh); err != nil {
				failErr := domain.NewError(domain.KindCursorPersistence, "persist staged events", err)
				_ = r.store.FailSession(ctx, sessionID, failErr.Error(), nil)
				return failErr
			}
			imported += len(fresh)
		}

		cursor = result.NextCursor
		if err := r.store.SaveCursor(ctx, accountID, stream, cursor); err != nil {
			failErr := domain.NewError(domain.KindCursorPersistence, "persist cursor", err)
			_ = r.store.FailSession(ctx, sessionID, failErr.Error(), nil)
			return failErr
		}

		r.bus.Publish(eventbus.Event{
			Type:      "import.batch",
			AccountID: accountID,
			Timestamp: time.Now().UTC(),
			Data:      map[string]int{"imported": len(fresh), "skipped": len(result.Events) - len(fresh)},
		})

		if result.IsCaughtUp {
			break
		}
	}

	return r.store.CompleteSession(ctx, sessionID, imported, skipped)
}

// rewindIntoReplayWindow moves a resumed cursor's TotalFetched back by
// the configured replay window, causing the provider to re-emit the
// last N already-seen items. The dedup ring absorbs the resulting
// duplicates; any items within the window that were invalidated by a
// reorg since the last run are re-imported as new.
func (r *Runner) rewindIntoReplayWindow(cursor models.CursorState) models.CursorState {
	if r.cfg.ReplayWindow == 0 {
		return cursor
	}
	rewound := cursor.TotalFetched - int64(r.cfg.ReplayWindow)
	if rewound < 0 {
		rewound = 0
	}
	cursor.TotalFetched = rewound
	// TODO: Primary.Value also needs rewinding by ReplayWindow units
	// native to each provider (blocks, pages); until then replay only
	// resets the fetched-count bookkeeping, not the actual resume point.
	return cursor
}
