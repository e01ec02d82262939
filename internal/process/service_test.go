package process

import (
	"context"
	"encoding/json"
	"testing"

	"ledgerforge/internal/eventbus"
	"ledgerforge/internal/models"
	"ledgerforge/internal/process/classify"
)

type fakeStagingSource struct {
	account  *models.Account
	pending  []models.RawEvent
	failed   map[int64]string
	processed []int64
}

func (f *fakeStagingSource) LoadPendingByHashBatch(ctx context.Context, accountID string, limit int) ([]models.RawEvent, error) {
	return f.pending, nil
}

func (f *fakeStagingSource) MarkProcessed(ctx context.Context, ids []int64) error {
	f.processed = append(f.processed, ids...)
	return nil
}

func (f *fakeStagingSource) MarkFailed(ctx context.Context, ids []int64, errMsg string) error {
	if f.failed == nil {
		f.failed = make(map[int64]string)
	}
	for _, id := range ids {
		f.failed[id] = errMsg
	}
	return nil
}

func (f *fakeStagingSource) GetAccount(ctx context.Context, accountID string) (*models.Account, error) {
	return f.account, nil
}

type fakeSink struct {
	saved []models.Transaction
}

func (f *fakeSink) SaveTransactions(ctx context.Context, txs []models.Transaction) error {
	f.saved = append(f.saved, txs...)
	return nil
}

func TestProcessAccountTransactionsChunked_BuildsAndClassifies(t *testing.T) {
	payload, _ := json.Marshal(map[string]interface{}{
		"hash":     "0xabc",
		"from":     "0xowner",
		"to":       "0xother",
		"value":    "1000000000000000000",
		"gasUsed":  21000,
		"gasPrice": "2000000000",
		"status":   1,
	})

	staging := &fakeStagingSource{
		account: &models.Account{ID: "acct-1", ProviderName: "evm-ethereum", Identifier: "0xowner"},
		pending: []models.RawEvent{
			{ID: 1, AccountID: "acct-1", ProviderName: "evm-ethereum", BlockchainTxHash: "0xabc", EventID: "evt-1", NormalizedData: payload},
		},
	}
	sink := &fakeSink{}

	transformers := NewTransformerRegistry()
	transformers.Register(&EVMTransformer{Chain: "ethereum"})

	classifiers := classify.NewRegistry()
	classify.RegisterAll(classifiers)

	bus := eventbus.New()
	svc := NewService(staging, sink, transformers, classifiers, bus)

	n, err := svc.ProcessAccountTransactionsChunked(context.Background(), "acct-1", 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 built transaction, got %d", n)
	}
	if len(sink.saved) != 1 {
		t.Fatalf("expected 1 saved transaction, got %d", len(sink.saved))
	}
	if len(staging.processed) != 1 || staging.processed[0] != 1 {
		t.Fatalf("expected raw event 1 marked processed, got %v", staging.processed)
	}
	if sink.saved[0].Operation.Type == "" {
		t.Fatalf("expected a classified operation type")
	}
}

func TestProcessAccountTransactionsChunked_NoTransformerFailsGroupNotWhole(t *testing.T) {
	staging := &fakeStagingSource{
		account: &models.Account{ID: "acct-1", ProviderName: "unknown-provider"},
		pending: []models.RawEvent{
			{ID: 1, AccountID: "acct-1", BlockchainTxHash: "0xabc", NormalizedData: []byte(`{}`)},
		},
	}
	sink := &fakeSink{}
	transformers := NewTransformerRegistry()
	classifiers := classify.NewRegistry()
	bus := eventbus.New()
	svc := NewService(staging, sink, transformers, classifiers, bus)

	_, err := svc.ProcessAccountTransactionsChunked(context.Background(), "acct-1", 100)
	if err == nil {
		t.Fatalf("expected error when no transformer is registered for the account's provider")
	}
}
