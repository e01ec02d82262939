package process

import (
	"encoding/json"
	"fmt"

	"ledgerforge/internal/models"
	"ledgerforge/internal/process/fundflow"
)

// UTXOTransformer builds a canonical Transaction from the single
// RawEvent a UTXO provider stages per transaction.
type UTXOTransformer struct {
	Chain string
	// OwnAddresses resolves every address the account controls, needed
	// to tell spend-with-change apart from a pure receive.
	OwnAddresses func(account models.Account) (map[string]bool, error)
}

func (t *UTXOTransformer) ProviderName() string { return t.Chain }

type esploraTxWire struct {
	TxID string `json:"txid"`
	Vin  []struct {
		Prevout struct {
			ScriptPubKeyAddress string `json:"scriptpubkey_address"`
			Value               int64  `json:"value"`
		} `json:"prevout"`
	} `json:"vin"`
	Vout []struct {
		ScriptPubKeyAddress string `json:"scriptpubkey_address"`
		Value               int64  `json:"value"`
	} `json:"vout"`
	Status struct {
		Confirmed   bool  `json:"confirmed"`
		BlockHeight int64 `json:"block_height"`
		BlockTime   int64 `json:"block_time"`
	} `json:"status"`
}

func (t *UTXOTransformer) Transform(group []models.RawEvent, account models.Account) (models.Transaction, error) {
	if len(group) == 0 {
		return models.Transaction{}, fmt.Errorf("utxotransform: empty group")
	}
	head := group[0]

	var wire esploraTxWire
	if err := json.Unmarshal(head.NormalizedData, &wire); err != nil {
		return models.Transaction{}, fmt.Errorf("utxotransform: decode payload: %w", err)
	}

	own, err := t.OwnAddresses(account)
	if err != nil {
		return models.Transaction{}, fmt.Errorf("utxotransform: resolve own addresses: %w", err)
	}

	inputs := make([]fundflow.UTXOInput, len(wire.Vin))
	for i, in := range wire.Vin {
		inputs[i] = fundflow.UTXOInput{Address: in.Prevout.ScriptPubKeyAddress, ValueSatoshis: in.Prevout.Value}
	}
	outputs := make([]fundflow.UTXOOutput, len(wire.Vout))
	for i, out := range wire.Vout {
		outputs[i] = fundflow.UTXOOutput{Address: out.ScriptPubKeyAddress, ValueSatoshis: out.Value}
	}

	movements, fee, err := fundflow.DiffUTXO(inputs, outputs, own, t.Chain)
	if err != nil {
		return models.Transaction{}, fmt.Errorf("utxotransform: diff: %w", err)
	}
	var fees []models.Fee
	if fee != nil {
		fees = append(fees, *fee)
	}

	status := models.TxPending
	if wire.Status.Confirmed {
		status = models.TxSuccess
	}

	var blockHeight *uint64
	if wire.Status.BlockHeight > 0 {
		h := uint64(wire.Status.BlockHeight)
		blockHeight = &h
	}

	return models.Transaction{
		ID:         t.Chain + ":" + wire.TxID,
		AccountID:  account.ID,
		ExternalID: wire.TxID,
		Source:     t.Chain,
		SourceType: models.SourceBlockchain,
		Datetime:   head.Timestamp,
		Timestamp:  head.Timestamp.UnixMilli(),
		Status:     status,
		Movements:  movements,
		Fees:       fees,
		Blockchain: &models.BlockchainInfo{
			Name:            t.Chain,
			TransactionHash: wire.TxID,
			IsConfirmed:     wire.Status.Confirmed,
			BlockHeight:     blockHeight,
		},
	}, nil
}
