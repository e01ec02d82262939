// Package btcprovider implements the Provider contract for Bitcoin and
// other UTXO chains. Address validation and satoshi/BTC conversion use
// btcsuite/btcd; transaction history itself is fetched from a
// configurable Esplora-style REST indexer, since btcd's own RPC client
// only talks to a full node's wallet, not an arbitrary watched address.
package btcprovider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"ledgerforge/internal/models"
	"ledgerforge/internal/provider"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
)

type Provider struct {
	httpClient *http.Client
	baseURL    string // e.g. https://blockstream.info/api
	params     *chaincfg.Params
}

func New(baseURL string, params *chaincfg.Params) *Provider {
	return &Provider{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    baseURL,
		params:     params,
	}
}

func (p *Provider) Metadata() provider.Metadata {
	return provider.Metadata{
		Name: "bitcoin",
		Capabilities: provider.Capabilities{
			SupportsReplay:   false,
			SupportsCursor:   true,
			NativeStreamType: models.StreamNormal,
		},
	}
}

type esploraVin struct {
	Prevout struct {
		ScriptPubKeyAddress string `json:"scriptpubkey_address"`
		Value                int64 `json:"value"`
	} `json:"prevout"`
}

type esploraVout struct {
	ScriptPubKeyAddress string `json:"scriptpubkey_address"`
	Value                int64 `json:"value"`
}

type esploraTx struct {
	TxID   string        `json:"txid"`
	Vin    []esploraVin  `json:"vin"`
	Vout   []esploraVout `json:"vout"`
	Status struct {
		Confirmed   bool  `json:"confirmed"`
		BlockHeight int64 `json:"block_height"`
		BlockTime   int64 `json:"block_time"`
	} `json:"status"`
}

// Fetch validates the account's address and pages through its
// confirmed transaction history. The explorer's pagination cursor is
// the last seen txid, carried as CursorTxHash.
func (p *Provider) Fetch(ctx context.Context, req provider.FetchRequest) (provider.FetchResult, error) {
	addr, err := btcutil.DecodeAddress(req.Account.Identifier, p.params)
	if err != nil {
		return provider.FetchResult{}, fmt.Errorf("btcprovider: invalid address %q: %w", req.Account.Identifier, err)
	}

	url := fmt.Sprintf("%s/address/%s/txs", p.baseURL, addr.EncodeAddress())
	if req.Cursor.Primary.Value != "" {
		url += "/chain/" + req.Cursor.Primary.Value
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return provider.FetchResult{}, err
	}
	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return provider.FetchResult{}, fmt.Errorf("btcprovider: fetch %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return provider.FetchResult{}, fmt.Errorf("btcprovider: %s returned %d", url, resp.StatusCode)
	}

	var txs []esploraTx
	if err := json.NewDecoder(resp.Body).Decode(&txs); err != nil {
		return provider.FetchResult{}, fmt.Errorf("btcprovider: decode response: %w", err)
	}

	var events []models.RawEvent
	var lastTxID string
	for _, tx := range txs {
		normalized, err := json.Marshal(tx)
		if err != nil {
			continue
		}
		events = append(events, models.RawEvent{
			AccountID:        req.Account.ID,
			ProviderName:     "bitcoin",
			ExternalID:       tx.TxID,
			BlockchainTxHash: tx.TxID,
			EventID:          tx.TxID,
			NormalizedData:   normalized,
			Timestamp:        time.Unix(tx.Status.BlockTime, 0).UTC(),
			StreamType:       req.Stream,
		})
		lastTxID = tx.TxID
	}

	return provider.FetchResult{
		Events: events,
		NextCursor: models.CursorState{
			Primary:      models.CursorPosition{Type: models.CursorTxHash, Value: lastTxID},
			TotalFetched: req.Cursor.TotalFetched + int64(len(events)),
		},
		IsCaughtUp: len(txs) == 0,
	}, nil
}

// SatoshisToBTC converts integer satoshis to a decimal BTC string,
// used by the fund-flow diff when building Movement amounts.
func SatoshisToBTC(sats int64) string {
	return strconv.FormatFloat(btcutil.Amount(sats).ToBTC(), 'f', -1, 64)
}
