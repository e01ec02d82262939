// Package evmprovider implements the Provider contract against an
// EVM-compatible JSON-RPC endpoint, decoding blocks into per-transaction
// RawEvents the Process Service's EVM fund-flow diff consumes.
package evmprovider

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"

	"ledgerforge/internal/models"
	"ledgerforge/internal/provider"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

type Provider struct {
	client    *ethclient.Client
	chainName string
	batchSize uint64
}

func New(rpcURL, chainName string) (*Provider, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("evmprovider: dial %s: %w", rpcURL, err)
	}
	return &Provider{client: client, chainName: chainName, batchSize: 25}, nil
}

func (p *Provider) Metadata() provider.Metadata {
	return provider.Metadata{
		Name: "evm-" + p.chainName,
		Capabilities: provider.Capabilities{
			SupportsReplay:   true,
			SupportsCursor:   true,
			NativeStreamType: models.StreamNormal,
		},
	}
}

// txRawEvent is the shape staged for every EVM transaction; it mirrors
// the hash-group keying the Process Service's classifier expects.
type txRawEvent struct {
	Hash     string   `json:"hash"`
	From     string   `json:"from"`
	To       string   `json:"to"`
	Value    string   `json:"value"`
	GasUsed  uint64   `json:"gasUsed"`
	GasPrice string   `json:"gasPrice"`
	Nonce    uint64   `json:"nonce"`
	Status   uint64   `json:"status"`
}

func (p *Provider) Fetch(ctx context.Context, req provider.FetchRequest) (provider.FetchResult, error) {
	startHeight, err := strconv.ParseUint(orZero(req.Cursor.Primary.Value), 10, 64)
	if err != nil {
		return provider.FetchResult{}, fmt.Errorf("evmprovider: invalid cursor: %w", err)
	}

	latest, err := p.client.BlockNumber(ctx)
	if err != nil {
		return provider.FetchResult{}, fmt.Errorf("evmprovider: block number: %w", err)
	}

	batch := uint64(req.BatchSize)
	if batch == 0 || batch > p.batchSize {
		batch = p.batchSize
	}

	var events []models.RawEvent
	height := startHeight
	for i := uint64(0); i < batch && height <= latest; i++ {
		block, err := p.client.BlockByNumber(ctx, new(big.Int).SetUint64(height))
		if err != nil {
			break
		}
		for _, tx := range block.Transactions() {
			evt, err := p.toRawEvent(ctx, req, tx, block.Time())
			if err != nil {
				continue
			}
			events = append(events, evt)
		}
		height++
	}

	caughtUp := height > latest
	return provider.FetchResult{
		Events: events,
		NextCursor: models.CursorState{
			Primary:      models.CursorPosition{Type: models.CursorBlockNumber, Value: strconv.FormatUint(height, 10)},
			TotalFetched: req.Cursor.TotalFetched + int64(len(events)),
		},
		IsCaughtUp: caughtUp,
	}, nil
}

func (p *Provider) toRawEvent(ctx context.Context, req provider.FetchRequest, tx *types.Transaction, blockTime uint64) (models.RawEvent, error) {
	receipt, err := p.client.TransactionReceipt(ctx, tx.Hash())
	if err != nil {
		return models.RawEvent{}, err
	}

	from := ""
	signer := types.LatestSignerForChainID(tx.ChainId())
	if sender, err := types.Sender(signer, tx); err == nil {
		from = sender.Hex()
	}
	to := ""
	if tx.To() != nil {
		to = tx.To().Hex()
	}

	payload := txRawEvent{
		Hash:     tx.Hash().Hex(),
		From:     from,
		To:       to,
		Value:    tx.Value().String(),
		GasUsed:  receipt.GasUsed,
		GasPrice: tx.GasPrice().String(),
		Nonce:    tx.Nonce(),
		Status:   receipt.Status,
	}
	normalized, err := json.Marshal(payload)
	if err != nil {
		return models.RawEvent{}, err
	}

	return models.RawEvent{
		AccountID:        req.Account.ID,
		ProviderName:     "evm-" + p.chainName,
		ExternalID:       tx.Hash().Hex(),
		BlockchainTxHash: tx.Hash().Hex(),
		EventID:          tx.Hash().Hex(),
		NormalizedData:   normalized,
		Timestamp:        timeFromUnix(blockTime),
		StreamType:       req.Stream,
	}, nil
}

func orZero(v string) string {
	if v == "" {
		return "0"
	}
	return v
}
