package process

import (
	"context"
	"fmt"
	"time"

	"ledgerforge/internal/domain"
	"ledgerforge/internal/eventbus"
	"ledgerforge/internal/models"
	"ledgerforge/internal/process/classify"
	"ledgerforge/internal/process/spam"
)

// StagingSource is the subset of the staging store the Process Service
// consumes.
type StagingSource interface {
	LoadPendingByHashBatch(ctx context.Context, accountID string, limit int) ([]models.RawEvent, error)
	MarkProcessed(ctx context.Context, ids []int64) error
	MarkFailed(ctx context.Context, ids []int64, errMsg string) error
	GetAccount(ctx context.Context, accountID string) (*models.Account, error)
}

// TransactionSink is the subset of the transaction store the Process
// Service writes to.
type TransactionSink interface {
	SaveTransactions(ctx context.Context, txs []models.Transaction) error
}

// Service builds canonical transactions from staged raw events.
type Service struct {
	staging      StagingSource
	sink         TransactionSink
	transformers *TransformerRegistry
	classifiers  *classify.Registry
	spam         *spam.Detector // optional; nil disables spam flagging
	bus          *eventbus.Bus
}

func NewService(staging StagingSource, sink TransactionSink, transformers *TransformerRegistry, classifiers *classify.Registry, bus *eventbus.Bus) *Service {
	return &Service{staging: staging, sink: sink, transformers: transformers, classifiers: classifiers, bus: bus}
}

// WithSpamDetector attaches an optional scam/dust collaborator.
func (s *Service) WithSpamDetector(d *spam.Detector) *Service {
	s.spam = d
	return s
}

// ProcessAccountTransactionsChunked processes up to chunkSize hash
// groups of pending events for accountID: transform, classify,
// persist, then mark consumed events processed (or failed,
// isolate-and-continue, so one malformed group never blocks the rest
// of the backlog).
func (s *Service) ProcessAccountTransactionsChunked(ctx context.Context, accountID string, chunkSize int) (int, error) {
	account, err := s.staging.GetAccount(ctx, accountID)
	if err != nil {
		return 0, fmt.Errorf("process: load account %s: %w", accountID, err)
	}
	if account == nil {
		return 0, fmt.Errorf("process: account %s not found", accountID)
	}

	events, err := s.staging.LoadPendingByHashBatch(ctx, accountID, chunkSize)
	if err != nil {
		return 0, fmt.Errorf("process: load pending batch: %w", err)
	}
	if len(events) == 0 {
		return 0, nil
	}

	groups := groupByHash(events)

	transformer, err := s.transformers.Get(account.ProviderName)
	if err != nil {
		return 0, domain.NewError(domain.KindGroupMapping, "no transformer for provider", err)
	}

	var built []models.Transaction
	var processedIDs []int64
	processedCount := 0
	for _, group := range groups {
		tx, err := transformer.Transform(group, *account)
		if err != nil {
			ids := idsOf(group)
			_ = s.staging.MarkFailed(ctx, ids, err.Error())
			continue
		}

		op, note := s.classifiers.Classify(classify.Input{
			SourceType:         tx.SourceType,
			InflowCount:        len(tx.Movements.Inflows),
			OutflowCount:       len(tx.Movements.Outflows),
			SameAssetBothSides: sameAssetBothSides(tx),
			InflowIsFiat:       singleLegIsFiat(tx.Movements.Inflows),
			OutflowIsFiat:      singleLegIsFiat(tx.Movements.Outflows),
		})
		tx.Operation = op
		tx.Note = note

		if s.spam != nil {
			if spamNote := s.spam.Evaluate(tx); spamNote != nil {
				tx.Note = spamNote
				tx.ExcludedFromAccounting = true
			}
		}

		built = append(built, tx)
		processedIDs = append(processedIDs, idsOf(group)...)
		processedCount++
	}

	if len(built) > 0 {
		if err := s.sink.SaveTransactions(ctx, built); err != nil {
			return 0, fmt.Errorf("process: save transactions: %w", err)
		}
	}
	if len(processedIDs) > 0 {
		if err := s.staging.MarkProcessed(ctx, processedIDs); err != nil {
			return 0, fmt.Errorf("process: mark processed: %w", err)
		}
	}

	s.bus.Publish(eventbus.Event{
		Type:      "process.batch",
		AccountID: accountID,
		Timestamp: time.Now().UTC(),
		Data:      map[string]int{"built": processedCount, "groups": len(groups)},
	})

	return processedCount, nil
}

func groupByHash(events []models.RawEvent) [][]models.RawEvent {
	order := make([]string, 0)
	byHash := make(map[string][]models.RawEvent)
	for _, e := range events {
		key := e.BlockchainTxHash
		if key == "" {
			key = e.EventID
		}
		if _, ok := byHash[key]; !ok {
			order = append(order, key)
		}
		byHash[key] = append(byHash[key], e)
	}
	groups := make([][]models.RawEvent, 0, len(order))
	for _, key := range order {
		groups = append(groups, byHash[key])
	}
	return groups
}

func idsOf(events []models.RawEvent) []int64 {
	ids := make([]int64, len(events))
	for i, e := range events {
		ids[i] = e.ID
	}
	return ids
}

func sameAssetBothSides(tx models.Transaction) bool {
	if len(tx.Movements.Inflows) != 1 || len(tx.Movements.Outflows) != 1 {
		return false
	}
	return tx.Movements.Inflows[0].AssetID == tx.Movements.Outflows[0].AssetID
}

// singleLegIsFiat reports whether a movement slice of exactly one leg
// is denominated in a fiat AssetID. Any other length reports false;
// callers only care about this in the 1-in/1-out trade shape.
func singleLegIsFiat(movements []models.Movement) bool {
	if len(movements) != 1 {
		return false
	}
	return movements[0].AssetID.IsFiat()
}
