package process

import (
	"encoding/json"
	"fmt"

	"ledgerforge/internal/models"
)

// FlowTransformer builds a canonical Transaction from the block-header
// RawEvent flowprovider stages per block. flowprovider currently walks
// block headers only; it does not fetch or decode the Cadence event
// log (FlowTokenDeposited/FlowTokenWithdrawn and similar), so there is
// no fund-flow data to diff here yet. The transaction is still built
// and persisted, tagged informational and excluded from accounting,
// so a Flow account's import/process cycle succeeds and advances its
// cursor instead of failing the whole batch on "no transformer for
// provider" every cycle.
type FlowTransformer struct {
	Chain string
}

func (t FlowTransformer) ProviderName() string { return t.Chain }

type flowBlockHeaderWire struct {
	BlockID  string `json:"blockId"`
	ParentID string `json:"parentId"`
	Height   uint64 `json:"height"`
}

func (t FlowTransformer) Transform(group []models.RawEvent, account models.Account) (models.Transaction, error) {
	if len(group) == 0 {
		return models.Transaction{}, fmt.Errorf("flowtransform: empty group")
	}
	head := group[0]

	var wire flowBlockHeaderWire
	if err := json.Unmarshal(head.NormalizedData, &wire); err != nil {
		return models.Transaction{}, fmt.Errorf("flowtransform: decode block header: %w", err)
	}

	blockHeight := wire.Height

	return models.Transaction{
		ID:         t.Chain + ":" + wire.BlockID,
		AccountID:  account.ID,
		ExternalID: wire.BlockID,
		Source:     t.Chain,
		SourceType: models.SourceBlockchain,
		Datetime:   head.Timestamp,
		Timestamp:  head.Timestamp.UnixMilli(),
		Status:     models.TxSuccess,
		Blockchain: &models.BlockchainInfo{
			Name:            t.Chain,
			TransactionHash: wire.BlockID,
			IsConfirmed:     true,
			BlockHeight:     &blockHeight,
		},
		ExcludedFromAccounting: true,
		Note: &models.Note{
			Type:     "flow_block_header_only",
			Severity: models.SeverityInfo,
			Message:  "flowprovider has not fetched Cadence account events for this block; no fund-flow data to record",
		},
	}, nil
}
