// Package csvsource implements the Provider contract over a
// locally-readable CSV export from an exchange, for accounts that have
// no API access. One row becomes one RawEvent; the cursor is a plain
// row offset since CSV files have no native pagination.
package csvsource

import (
	"encoding/csv"
	"encoding/json"
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"ledgerforge/internal/models"
	"ledgerforge/internal/provider"
)

type Provider struct {
	path string
}

func New(path string) *Provider {
	return &Provider{path: path}
}

func (p *Provider) Metadata() provider.Metadata {
	return provider.Metadata{
		Name: "csv",
		Capabilities: provider.Capabilities{
			SupportsReplay:   false,
			SupportsCursor:   true,
			NativeStreamType: models.StreamTrade,
		},
	}
}

// Fetch reads the whole file (exchange CSV exports are small enough
// not to warrant streaming decode) and returns rows starting at the
// cursor's offset, up to req.BatchSize.
func (p *Provider) Fetch(ctx context.Context, req provider.FetchRequest) (provider.FetchResult, error) {
	f, err := os.Open(p.path)
	if err != nil {
		return provider.FetchResult{}, fmt.Errorf("csvsource: open %s: %w", p.path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	header, err := reader.Read()
	if err != nil {
		return provider.FetchResult{}, fmt.Errorf("csvsource: read header: %w", err)
	}

	offset := 0
	if req.Cursor.Primary.Value != "" {
		offset, err = strconv.Atoi(req.Cursor.Primary.Value)
		if err != nil {
			return provider.FetchResult{}, fmt.Errorf("csvsource: invalid offset cursor: %w", err)
		}
	}

	batch := req.BatchSize
	if batch <= 0 {
		batch = 500
	}

	var events []models.RawEvent
	row := 0
	for {
		record, err := reader.Read()
		if err != nil {
			break
		}
		row++
		if row <= offset {
			continue
		}
		fields := make(map[string]string, len(header))
		for i, h := range header {
			if i < len(record) {
				fields[h] = record[i]
			}
		}
		normalized, _ := json.Marshal(fields)
		ts := time.Now().UTC()
		if raw, ok := fields["timestamp"]; ok {
			if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
				ts = parsed
			}
		}
		events = append(events, models.RawEvent{
			AccountID:      req.Account.ID,
			ProviderName:   "csv",
			ExternalID:     strconv.Itoa(row),
			EventID:        fmt.Sprintf("csv-row-%d", row),
			NormalizedData: normalized,
			Timestamp:      ts,
			StreamType:     req.Stream,
		})
		if len(events) >= batch {
			break
		}
	}

	return provider.FetchResult{
		Events: events,
		NextCursor: models.CursorState{
			Primary:      models.CursorPosition{Type: models.CursorOffset, Value: strconv.Itoa(row)},
			TotalFetched: req.Cursor.TotalFetched + int64(len(events)),
		},
		IsCaughtUp: len(events) < batch,
	}, nil
}
