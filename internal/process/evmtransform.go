package process

import (
	"encoding/json"
	"fmt"

	"ledgerforge/internal/models"
	"ledgerforge/internal/process/fundflow"
)

// EVMTransformer builds a canonical Transaction from the single
// RawEvent an EVM provider stages per transaction hash.
type EVMTransformer struct {
	Chain string
}

func (t *EVMTransformer) ProviderName() string { return "evm-" + t.Chain }

func (t *EVMTransformer) Transform(group []models.RawEvent, account models.Account) (models.Transaction, error) {
	if len(group) == 0 {
		return models.Transaction{}, fmt.Errorf("evmtransform: empty group")
	}
	head := group[0]

	var payload fundflow.EVMTxPayload
	if err := json.Unmarshal(head.NormalizedData, &payload); err != nil {
		return models.Transaction{}, fmt.Errorf("evmtransform: decode payload: %w", err)
	}

	movements, fees, err := fundflow.DiffEVM(payload, account.Identifier, t.Chain)
	if err != nil {
		return models.Transaction{}, fmt.Errorf("evmtransform: diff: %w", err)
	}

	status := models.TxFailed
	if payload.Status != 0 {
		status = models.TxSuccess
	}

	return models.Transaction{
		ID:         head.ProviderName + ":" + payload.Hash,
		AccountID:  account.ID,
		ExternalID: payload.Hash,
		Source:     head.ProviderName,
		SourceType: models.SourceBlockchain,
		Datetime:   head.Timestamp,
		Timestamp:  head.Timestamp.UnixMilli(),
		Status:     status,
		From:       payload.From,
		To:         payload.To,
		Movements:  movements,
		Fees:       fees,
		Blockchain: &models.BlockchainInfo{
			Name:            t.Chain,
			TransactionHash: payload.Hash,
			IsConfirmed:     true,
		},
	}, nil
}
