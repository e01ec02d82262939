package lots

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"ledgerforge/internal/config"
	"ledgerforge/internal/domain"
	"ledgerforge/internal/models"
)

// Policy is the jurisdiction-specific accounting policy applied during
// matching.
type Policy struct {
	// SameAssetFeePolicy is "disposal" (the fee is an immediate
	// disposal of the fee asset) or "add-to-basis" (the fee's USD cost
	// is added to the receiving acquisition's basis). Applies only
	// when the fee asset equals the transfer asset.
	SameAssetFeePolicy   string
	VarianceWarnPercent  map[string]float64
	VarianceErrorPercent map[string]float64
	DefaultVarianceWarn  float64
	DefaultVarianceError float64
}

func PolicyFromConfig(cfg config.LotMatchingConfig) Policy {
	warn := cfg.DefaultVarianceWarn
	if warn == 0 {
		warn = 1.0
	}
	errPct := cfg.DefaultVarianceError
	if errPct == 0 {
		errPct = 3.0
	}
	return Policy{
		SameAssetFeePolicy:   cfg.SameAssetFeePolicy,
		VarianceWarnPercent:  cfg.VarianceWarnPercent,
		VarianceErrorPercent: cfg.VarianceErrorPercent,
		DefaultVarianceWarn:  warn,
		DefaultVarianceError: errPct,
	}
}

func (p Policy) tolerances(source string) (warnPct, errorPct float64) {
	warnPct, errorPct = p.DefaultVarianceWarn, p.DefaultVarianceError
	if v, ok := p.VarianceWarnPercent[source]; ok {
		warnPct = v
	}
	if v, ok := p.VarianceErrorPercent[source]; ok {
		errorPct = v
	}
	return
}

// AssetResult is the lot-matching output for one asset.
type AssetResult struct {
	AssetID      domain.AssetID
	Lots         []*models.AcquisitionLot
	Disposals    []models.LotDisposal
	LotTransfers []*models.LotTransfer
}

// AssetError reports a non-fatal, per-asset matching failure; other
// assets still produce results.
type AssetError struct {
	AssetID     domain.AssetID
	AssetSymbol string
	Err         error
}

// Result is the full output of one Matcher.Run.
type Result struct {
	AssetResults []AssetResult
	Errors       []AssetError
	Warnings     []string
}

// Matcher computes lots, disposals, and transfers for a transaction
// set already fully priced by the enrichment engine.
type Matcher struct {
	CalculationID  string
	DefaultStrategy Strategy
	PerAsset       map[domain.AssetID]Strategy
	Policy         Policy

	lotSeq int
}

func NewMatcher(calculationID string, defaultStrategy Strategy, perAsset map[domain.AssetID]Strategy, policy Policy) *Matcher {
	return &Matcher{CalculationID: calculationID, DefaultStrategy: defaultStrategy, PerAsset: perAsset, Policy: policy}
}

func (m *Matcher) strategyFor(assetID domain.AssetID) Strategy {
	if s, ok := m.PerAsset[assetID]; ok {
		return s
	}
	return m.DefaultStrategy
}

func (m *Matcher) nextLotID() string {
	m.lotSeq++
	return fmt.Sprintf("%s-lot-%d", m.CalculationID, m.lotSeq)
}

// Run executes the topological pass and per-asset matching.
// Transactions and links are read-only; Run never mutates its inputs.
func (m *Matcher) Run(txs []models.Transaction, links []models.TransactionLink) (Result, error) {
	if err := preconditionAllMovementsPriced(txs); err != nil {
		return Result{}, err
	}

	byID := make(map[string]*models.Transaction, len(txs))
	for i := range txs {
		byID[txs[i].ID] = &txs[i]
	}

	order, err := topoSort(txs, links)
	if err != nil {
		return Result{}, err
	}

	assetsOf := func(txID string) map[domain.AssetID]bool {
		tx := byID[txID]
		out := make(map[domain.AssetID]bool)
		if tx == nil {
			return out
		}
		for _, id := range tx.AllAssetIDs() {
			out[id] = true
		}
		return out
	}
	idx := newLinkIndex(links, assetsOf)

	lotsByAsset := make(map[domain.AssetID][]*models.AcquisitionLot)
	disposalsByAsset := make(map[domain.AssetID][]models.LotDisposal)
	transfersByAsset := make(map[domain.AssetID][]*models.LotTransfer)
	symbolByAsset := make(map[domain.AssetID]string)
	failedAssets := make(map[domain.AssetID]error)
	var warnings []string

	fail := func(assetID domain.AssetID, symbol string, err error) {
		if _, already := failedAssets[assetID]; !already {
			failedAssets[assetID] = err
			symbolByAsset[assetID] = symbol
		}
	}

	for _, txID := range order {
		tx := byID[txID]

		for i := range tx.Movements.Outflows {
			out := &tx.Movements.Outflows[i]
			if out.AssetID.IsFiat() {
				continue
			}
			symbolByAsset[out.AssetID] = out.AssetSymbol
			if _, bad := failedAssets[out.AssetID]; bad {
				continue
			}

			if link := idx.resolveSourceLink(tx.ID, out.AssetID); link != nil {
				if err := m.handleTransferSource(tx, out, link, lotsByAsset, transfersByAsset); err != nil {
					fail(out.AssetID, out.AssetSymbol, err)
				}
			} else if err := m.handleDisposal(tx, out, lotsByAsset, disposalsByAsset); err != nil {
				fail(out.AssetID, out.AssetSymbol, err)
			}
		}

		m.handleSameAssetTransferFees(tx, lotsByAsset, disposalsByAsset, transfersByAsset, failedAssets)

		for assetID, group := range groupInflowsByAsset(tx) {
			symbolByAsset[assetID] = group.symbol
			if assetID.IsFiat() {
				continue
			}
			if _, bad := failedAssets[assetID]; bad {
				continue
			}

			if targetLinks := idx.resolveAllTargetLinks(tx.ID, assetID); len(targetLinks) > 0 {
				warns, err := m.handleTransferTargets(tx, assetID, group, targetLinks, lotsByAsset, transfersByAsset)
				if err != nil {
					fail(assetID, group.symbol, err)
					continue
				}
				warnings = append(warnings, warns...)
			} else {
				lot := &models.AcquisitionLot{
					ID:            m.nextLotID(),
					CalculationID: m.CalculationID,
					AssetID:       assetID,
					AcquiredAt:    tx.Datetime,
					OriginalQty:   group.qty,
					RemainingQty:  group.qty,
					UnitCostUSD:   group.weightedUnitCost(),
					Method:        m.strategyFor(assetID).Method(),
					OriginTxID:    tx.ID,
				}
				lotsByAsset[assetID] = append(lotsByAsset[assetID], lot)
			}
		}
	}

	var result Result
	seenAssets := make(map[domain.AssetID]bool)
	for assetID := range lotsByAsset {
		seenAssets[assetID] = true
	}
	for assetID := range disposalsByAsset {
		seenAssets[assetID] = true
	}
	for assetID, err := range failedAssets {
		result.Errors = append(result.Errors, AssetError{AssetID: assetID, AssetSymbol: symbolByAsset[assetID], Err: err})
		delete(seenAssets, assetID)
	}
	for assetID := range seenAssets {
		result.AssetResults = append(result.AssetResults, AssetResult{
			AssetID:      assetID,
			Lots:         lotsByAsset[assetID],
			Disposals:    disposalsByAsset[assetID],
			LotTransfers: transfersByAsset[assetID],
		})
	}
	sort.Slice(result.AssetResults, func(i, j int) bool { return result.AssetResults[i].AssetID < result.AssetResults[j].AssetID })
	sort.Slice(result.Errors, func(i, j int) bool { return result.Errors[i].AssetID < result.Errors[j].AssetID })
	result.Warnings = warnings

	return result, nil
}

func preconditionAllMovementsPriced(txs []models.Transaction) error {
	for _, tx := range txs {
		for _, m := range tx.Movements.Outflows {
			if !m.AssetID.IsFiat() && m.PriceAtTxTime == nil {
				return domain.NewError(domain.KindMissingPrice,
					fmt.Sprintf("transaction %s outflow of %s is unpriced", tx.ID, m.AssetSymbol), nil)
			}
		}
	}
	return nil
}

func (m *Matcher) handleDisposal(tx *models.Transaction, out *models.Movement, lotsByAsset map[domain.AssetID][]*models.AcquisitionLot, disposalsByAsset map[domain.AssetID][]models.LotDisposal) error {
	lots := openLots(lotsByAsset[out.AssetID])
	strategy := m.strategyFor(out.AssetID)
	allocations := strategy.SelectForDisposal(lots, out.GrossAmount)

	if shortfall := remainingAfter(allocations, out.GrossAmount); shortfall.IsPositive() {
		return fmt.Errorf("lots: insufficient lots for %s: short by %s", out.AssetSymbol, shortfall)
	}

	price := out.PriceAtTxTime.Price.Amount
	for _, a := range allocations {
		a.Lot.RemainingQty = a.Lot.RemainingQty.Sub(a.Qty)
		proceeds := a.Qty.Mul(price)
		cost := a.Qty.Mul(a.Lot.UnitCostUSD)
		disposalsByAsset[out.AssetID] = append(disposalsByAsset[out.AssetID], models.LotDisposal{
			LotID:       a.Lot.ID,
			TxID:        tx.ID,
			Qty:         a.Qty,
			ProceedsUSD: proceeds,
			GainUSD:     proceeds.Sub(cost),
		})
	}
	return nil
}

func (m *Matcher) handleTransferSource(tx *models.Transaction, out *models.Movement, link *models.TransactionLink, lotsByAsset map[domain.AssetID][]*models.AcquisitionLot, transfersByAsset map[domain.AssetID][]*models.LotTransfer) error {
	lots := openLots(lotsByAsset[out.AssetID])
	strategy := m.strategyFor(out.AssetID)
	allocations := strategy.SelectForDisposal(lots, link.SourceAmount)

	if shortfall := remainingAfter(allocations, link.SourceAmount); shortfall.IsPositive() {
		return fmt.Errorf("lots: insufficient lots to cover transfer of %s: short by %s", out.AssetSymbol, shortfall)
	}

	for _, a := range allocations {
		a.Lot.RemainingQty = a.Lot.RemainingQty.Sub(a.Qty)
		carried := a.Qty.Mul(a.Lot.UnitCostUSD)
		transfersByAsset[out.AssetID] = append(transfersByAsset[out.AssetID], &models.LotTransfer{
			LinkID:         link.ID,
			SourceLotID:    a.Lot.ID,
			Qty:            a.Qty,
			CarriedCostUSD: carried,
		})
	}
	return nil
}

// handleSameAssetTransferFees applies the configured fee policy to any
// fee whose asset matches a just-transferred asset on this
// transaction. Fees on assets not otherwise transferred are treated as
// ordinary disposals (a non-fiat fee always spends something).
func (m *Matcher) handleSameAssetTransferFees(tx *models.Transaction, lotsByAsset map[domain.AssetID][]*models.AcquisitionLot, disposalsByAsset map[domain.AssetID][]models.LotDisposal, transfersByAsset map[domain.AssetID][]*models.LotTransfer, failedAssets map[domain.AssetID]error) {
	for i := range tx.Fees {
		fee := &tx.Fees[i]
		if fee.AssetID.IsFiat() || fee.Amount.IsZero() {
			continue
		}
		if _, bad := failedAssets[fee.AssetID]; bad {
			continue
		}

		transfers := transfersByAsset[fee.AssetID]
		isSameAssetTransferFee := len(transfers) > 0 && m.Policy.SameAssetFeePolicy == "add-to-basis"
		if isSameAssetTransferFee {
			feeUSD := feeCostUSD(fee)
			if last := transfers[len(transfers)-1]; last != nil {
				v := feeUSD
				last.FeeAdjustmentUSD = &v
			}
			continue
		}

		// disposal policy (default), or a fee asset not otherwise
		// transferred on this tx: spend it out of open lots directly.
		lots := openLots(lotsByAsset[fee.AssetID])
		strategy := m.strategyFor(fee.AssetID)
		allocations := strategy.SelectForDisposal(lots, fee.Amount)
		price := domain.Zero
		if fee.PriceAtTxTime != nil {
			price = fee.PriceAtTxTime.Price.Amount
		}
		for _, a := range allocations {
			a.Lot.RemainingQty = a.Lot.RemainingQty.Sub(a.Qty)
			proceeds := a.Qty.Mul(price)
			cost := a.Qty.Mul(a.Lot.UnitCostUSD)
			disposalsByAsset[fee.AssetID] = append(disposalsByAsset[fee.AssetID], models.LotDisposal{
				LotID:       a.Lot.ID,
				TxID:        tx.ID,
				Qty:         a.Qty,
				ProceedsUSD: proceeds,
				GainUSD:     proceeds.Sub(cost),
			})
		}
	}
}

func feeCostUSD(fee *models.Fee) domain.Decimal {
	if fee.PriceAtTxTime == nil {
		return domain.Zero
	}
	return fee.Amount.Mul(fee.PriceAtTxTime.Price.Amount)
}

type inflowGroup struct {
	symbol    string
	qty       domain.Decimal
	costTotal domain.Decimal // sum(amount*price) across movements that carry a price
	pricedQty domain.Decimal
}

func (g inflowGroup) weightedUnitCost() domain.Decimal {
	if g.pricedQty.IsZero() {
		return domain.Zero
	}
	return g.costTotal.Div(g.pricedQty)
}

func groupInflowsByAsset(tx *models.Transaction) map[domain.AssetID]inflowGroup {
	groups := make(map[domain.AssetID]inflowGroup)
	for _, in := range tx.Movements.Inflows {
		g := groups[in.AssetID]
		g.symbol = in.AssetSymbol
		g.qty = g.qty.Add(in.GrossAmount)
		if in.PriceAtTxTime != nil {
			g.costTotal = g.costTotal.Add(in.GrossAmount.Mul(in.PriceAtTxTime.Price.Amount))
			g.pricedQty = g.pricedQty.Add(in.GrossAmount)
		}
		groups[in.AssetID] = g
	}
	return groups
}

// handleTransferTargets handles every transfer link that landed
// assetID into tx. The common case is exactly one link, which gets the
// whole inflow group as one lot. When more than one link targets the
// same asset in the same transaction (e.g. two deposits batched into
// one block), the group's received quantity is split pro-rata by each
// link's TargetAmount share and one lot is created per link, so the
// batch's total accounted quantity still matches what was actually
// received even if the links' own reported amounts don't sum exactly.
func (m *Matcher) handleTransferTargets(tx *models.Transaction, assetID domain.AssetID, group inflowGroup, links []*models.TransactionLink, lotsByAsset map[domain.AssetID][]*models.AcquisitionLot, transfersByAsset map[domain.AssetID][]*models.LotTransfer) ([]string, error) {
	if len(links) == 1 {
		warn, err := m.handleTransferTarget(tx, assetID, group.qty, links[0], lotsByAsset, transfersByAsset)
		if err != nil {
			return nil, err
		}
		if warn == "" {
			return nil, nil
		}
		return []string{warn}, nil
	}

	var totalTargetAmount domain.Decimal
	for _, l := range links {
		totalTargetAmount = totalTargetAmount.Add(l.TargetAmount)
	}
	if totalTargetAmount.IsZero() {
		return nil, fmt.Errorf("lots: %d transfer links into %s/%s carry no target amount to split by", len(links), tx.ID, assetID)
	}

	var warnings []string
	allocated := domain.Zero
	for i, l := range links {
		share := l.TargetAmount.Div(totalTargetAmount)
		qty := group.qty.Mul(share)
		if i == len(links)-1 {
			qty = group.qty.Sub(allocated) // last link absorbs rounding remainder
		}
		allocated = allocated.Add(qty)

		warn, err := m.handleTransferTarget(tx, assetID, qty, l, lotsByAsset, transfersByAsset)
		if err != nil {
			return nil, err
		}
		if warn != "" {
			warnings = append(warnings, warn)
		}
	}
	return warnings, nil
}

func (m *Matcher) handleTransferTarget(tx *models.Transaction, assetID domain.AssetID, lotQty domain.Decimal, link *models.TransactionLink, lotsByAsset map[domain.AssetID][]*models.AcquisitionLot, transfersByAsset map[domain.AssetID][]*models.LotTransfer) (string, error) {
	var carriedCost, carriedQty domain.Decimal
	for _, t := range transfersByAsset[assetID] {
		if t.LinkID != link.ID || t.TargetLotID != "" {
			continue
		}
		cost := t.CarriedCostUSD
		if m.Policy.SameAssetFeePolicy == "add-to-basis" && t.FeeAdjustmentUSD != nil {
			cost = cost.Add(*t.FeeAdjustmentUSD)
		}
		carriedCost = carriedCost.Add(cost)
		carriedQty = carriedQty.Add(t.Qty)
	}

	if carriedQty.IsZero() {
		return "", fmt.Errorf("lots: no carried cost basis found for transfer link %s into %s", link.ID, tx.ID)
	}

	lot := &models.AcquisitionLot{
		ID:            m.nextLotID(),
		CalculationID: m.CalculationID,
		AssetID:       assetID,
		AcquiredAt:    tx.Datetime,
		OriginalQty:   lotQty,
		RemainingQty:  lotQty,
		UnitCostUSD:   carriedCost.Div(carriedQty),
		Method:        m.strategyFor(assetID).Method(),
		OriginTxID:    tx.ID,
	}
	lotsByAsset[assetID] = append(lotsByAsset[assetID], lot)

	for _, t := range transfersByAsset[assetID] {
		if t.LinkID == link.ID && t.TargetLotID == "" {
			t.TargetLotID = lot.ID
		}
	}

	return m.checkVariance(tx, carriedQty, link)
}

func (m *Matcher) checkVariance(tx *models.Transaction, netTransferAmount domain.Decimal, link *models.TransactionLink) (string, error) {
	if link.TargetAmount.IsZero() {
		return "", nil
	}
	diff := netTransferAmount.Sub(link.TargetAmount).Abs()
	variancePct := diff.Div(link.TargetAmount).Mul(domain.NewDecimalFromInt(100))

	warnPct, errorPct := m.Policy.tolerances(strings.ToLower(tx.Source))
	errorThreshold := percentDecimal(errorPct)
	warnThreshold := percentDecimal(warnPct)

	if variancePct.GreaterThan(errorThreshold) {
		return "", fmt.Errorf("lots: transfer variance %s%% for link %s exceeds error threshold %.2f%%", variancePct, link.ID, errorPct)
	}
	if variancePct.GreaterThan(warnThreshold) {
		return fmt.Sprintf("transfer variance %s%% for link %s exceeds warn threshold %.2f%%", variancePct, link.ID, warnPct), nil
	}
	return "", nil
}

func percentDecimal(pct float64) domain.Decimal {
	return domain.MustDecimal(strconv.FormatFloat(pct, 'f', -1, 64))
}

func openLots(lots []*models.AcquisitionLot) []*models.AcquisitionLot {
	var out []*models.AcquisitionLot
	for _, l := range lots {
		if l.RemainingQty.IsPositive() {
			out = append(out, l)
		}
	}
	return out
}

func remainingAfter(allocations []Allocation, requested domain.Decimal) domain.Decimal {
	covered := domain.Zero
	for _, a := range allocations {
		covered = covered.Add(a.Qty)
	}
	return requested.Sub(covered)
}
