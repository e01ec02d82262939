package ingest

import (
	"context"
	"encoding/json"
	"testing"

	"ledgerforge/internal/eventbus"
	"ledgerforge/internal/models"
	"ledgerforge/internal/provider"
)

type fakeStore struct {
	account  *models.Account
	events   []models.RawEvent
	sessions map[string]bool
	cursors  map[models.StreamType]models.CursorState
}

func newFakeStore(acct *models.Account) *fakeStore {
	return &fakeStore{account: acct, sessions: make(map[string]bool), cursors: make(map[models.StreamType]models.CursorState)}
}

func (f *fakeStore) SaveRawEvents(ctx context.Context, events []models.RawEvent) error {
	f.events = append(f.events, events...)
	return nil
}

func (f *fakeStore) BeginSession(ctx context.Context, session models.ImportSession) (bool, error) {
	if f.sessions[session.AccountID] {
		return false, nil
	}
	f.sessions[session.AccountID] = true
	return true, nil
}

func (f *fakeStore) CompleteSession(ctx context.Context, sessionID string, imported, skipped int) error {
	return nil
}

func (f *fakeStore) FailSession(ctx context.Context, sessionID, errMsg string, details json.RawMessage) error {
	return nil
}

func (f *fakeStore) GetAccount(ctx context.Context, accountID string) (*models.Account, error) {
	return f.account, nil
}

func (f *fakeStore) SaveCursor(ctx context.Context, accountID string, stream models.StreamType, cursor models.CursorState) error {
	f.cursors[stream] = cursor
	return nil
}

type fakeProvider struct {
	pages [][]models.RawEvent
	call  int
}

func (f *fakeProvider) Metadata() provider.Metadata {
	return provider.Metadata{Name: "fake"}
}

func (f *fakeProvider) Fetch(ctx context.Context, req provider.FetchRequest) (provider.FetchResult, error) {
	if f.call >= len(f.pages) {
		return provider.FetchResult{IsCaughtUp: true}, nil
	}
	page := f.pages[f.call]
	f.call++
	return provider.FetchResult{
		Events:     page,
		NextCursor: models.CursorState{TotalFetched: req.Cursor.TotalFetched + int64(len(page))},
		IsCaughtUp: f.call >= len(f.pages),
	}, nil
}

func TestRunner_ImportFromSource_DedupsAcrossPages(t *testing.T) {
	acct := &models.Account{ID: "acct-1", ProviderName: "fake", LastCursor: map[models.StreamType]models.CursorState{}}
	store := newFakeStore(acct)
	registry := provider.NewRegistry()
	fp := &fakeProvider{pages: [][]models.RawEvent{
		{{ProviderName: "fake", EventID: "e1"}, {ProviderName: "fake", EventID: "e2"}},
		{{ProviderName: "fake", EventID: "e2"}, {ProviderName: "fake", EventID: "e3"}},
	}}
	registry.Register(fp)

	runner := NewRunner(store, registry, eventbus.New(), Config{})
	if err := runner.ImportFromSource(context.Background(), "acct-1", models.StreamNormal); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(store.events) != 3 {
		t.Fatalf("expected 3 deduped events, got %d", len(store.events))
	}
}

func TestRunner_ImportFromSource_RefusesConcurrentSession(t *testing.T) {
	acct := &models.Account{ID: "acct-1", ProviderName: "fake"}
	store := newFakeStore(acct)
	store.sessions["acct-1"] = true
	registry := provider.NewRegistry()
	registry.Register(&fakeProvider{})

	runner := NewRunner(store, registry, eventbus.New(), Config{})
	if err := runner.ImportFromSource(context.Background(), "acct-1", models.StreamNormal); err != nil {
		t.Fatalf("expected no error when session already active, got %v", err)
	}
	if len(store.events) != 0 {
		t.Fatalf("expected no events staged while another session is active")
	}
}
