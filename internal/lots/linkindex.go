package lots

import (
	"ledgerforge/internal/domain"
	"ledgerforge/internal/models"
)

type linkKey struct {
	txID    string
	assetID domain.AssetID
}

// linkIndex holds confirmed links keyed by (transactionID, assetID) on
// both the source and target side. Links are removed as they are
// consumed so the same link can never back two disposals or two
// acquisitions.
type linkIndex struct {
	bySource map[linkKey][]*models.TransactionLink
	byTarget map[linkKey][]*models.TransactionLink
}

func newLinkIndex(links []models.TransactionLink, assetOf func(txID string) map[domain.AssetID]bool) *linkIndex {
	idx := &linkIndex{
		bySource: make(map[linkKey][]*models.TransactionLink),
		byTarget: make(map[linkKey][]*models.TransactionLink),
	}
	for i := range links {
		l := &links[i]
		if !l.EligibleForPropagation() {
			continue
		}
		for assetID := range assetOf(l.SourceTransactionID) {
			idx.bySource[linkKey{l.SourceTransactionID, assetID}] = append(idx.bySource[linkKey{l.SourceTransactionID, assetID}], l)
		}
		for assetID := range assetOf(l.TargetTransactionID) {
			idx.byTarget[linkKey{l.TargetTransactionID, assetID}] = append(idx.byTarget[linkKey{l.TargetTransactionID, assetID}], l)
		}
	}
	return idx
}

// resolveSourceLink silently consumes any blockchain_internal (change
// output) links queued for (txID, assetID), then returns and consumes
// the first real transfer link found, or nil if none remain.
func (idx *linkIndex) resolveSourceLink(txID string, assetID domain.AssetID) *models.TransactionLink {
	key := linkKey{txID, assetID}
	queue := idx.bySource[key]
	for len(queue) > 0 {
		l := queue[0]
		queue = queue[1:]
		if l.LinkType == models.LinkBlockchainInternal {
			continue
		}
		idx.bySource[key] = queue
		return l
	}
	idx.bySource[key] = queue
	return nil
}

// resolveAllTargetLinks drains every real transfer link queued for
// (txID, assetID), silently discarding any blockchain_internal entries
// along the way. Usually returns at most one link; returns more than
// one when several distinct transfers landed the same asset into the
// same transaction (e.g. two exchange deposits batched into one
// on-chain transaction), which the caller must split pro-rata across.
func (idx *linkIndex) resolveAllTargetLinks(txID string, assetID domain.AssetID) []*models.TransactionLink {
	key := linkKey{txID, assetID}
	queue := idx.byTarget[key]
	idx.byTarget[key] = nil

	var out []*models.TransactionLink
	for _, l := range queue {
		if l.LinkType == models.LinkBlockchainInternal {
			continue
		}
		out = append(out, l)
	}
	return out
}
