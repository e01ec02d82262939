// Package enrich runs the multi-pass price inference pipeline: each
// iteration reads a consistent snapshot of the transaction set and
// writes priced movements back before the next pass starts, looping to
// fixpoint (no pass adds a new price) or a configured iteration cap.
// Structured as a Bus-driven pass-by-pass update over an in-memory
// batch rather than a pull-based worker, the way the teacher runs its
// own multi-stage derivation passes over one in-memory block.
package enrich

import (
	"context"
	"fmt"
	"time"

	"ledgerforge/internal/config"
	"ledgerforge/internal/domain"
	"ledgerforge/internal/enrich/pricecache"
	"ledgerforge/internal/eventbus"
	"ledgerforge/internal/models"
	"ledgerforge/internal/provider"
)

// Engine runs passes 1-5 plus the optional FX normalization sub-stage.
type Engine struct {
	// PriceProviders are tried in order for Pass 4's external fetch;
	// the first to answer wins.
	PriceProviders []provider.PriceProvider
	// FXProvider answers fiat/fiat rate lookups for the FX sub-stage.
	// Nil disables FX normalization regardless of cfg.EnableFXLookup.
	FXProvider provider.PriceProvider
	Cache      *pricecache.Cache
	Cfg        config.EnrichmentConfig
	Bus        *eventbus.Bus
}

func New(providers []provider.PriceProvider, fx provider.PriceProvider, cache *pricecache.Cache, cfg config.EnrichmentConfig, bus *eventbus.Bus) *Engine {
	return &Engine{PriceProviders: providers, FXProvider: fx, Cache: cache, Cfg: cfg, Bus: bus}
}

// Result summarizes one Run.
type Result struct {
	IterationsRun int
	PricesAdded   int
	Warnings      []string
}

// Run mutates tx movements in txs in place, enriching their
// PriceAtTxTime fields, until a pass adds zero new prices or
// maxIterations is reached.
func (e *Engine) Run(ctx context.Context, txs []*models.Transaction, links []models.TransactionLink) (Result, error) {
	maxIter := e.Cfg.MaxIterations
	if maxIter <= 0 {
		maxIter = 10
	}

	byID := make(map[string]*models.Transaction, len(txs))
	for _, tx := range txs {
		byID[tx.ID] = tx
	}

	var result Result
	for iter := 0; iter < maxIter; iter++ {
		added := 0

		added += passExchangeExecution(txs)
		added += passTradeRatio(txs)
		added += passLinkPropagation(txs, links, byID)

		fetched, err := e.passExternalFetch(ctx, txs)
		if err != nil {
			return result, err
		}
		added += fetched

		added += passCryptoRatio(txs)

		if e.Cfg.EnableFXLookup && e.FXProvider != nil {
			normalized, err := e.passFXNormalize(ctx, txs)
			if err != nil {
				return result, err
			}
			added += normalized
		}

		result.IterationsRun = iter + 1
		result.PricesAdded += added

		if e.Bus != nil {
			e.Bus.Publish(eventbus.Event{
				Type:      "enrich.pass",
				Timestamp: time.Now().UTC(),
				Data:      map[string]int{"iteration": iter + 1, "added": added},
			})
		}

		if added == 0 {
			break
		}
	}

	return result, nil
}

func isFiatMovement(m models.Movement) bool {
	return m.AssetID.IsFiat()
}

func isStablecoin(m models.Movement) bool {
	return domain.NewCurrency(m.AssetSymbol).IsFiatOrStablecoin() && !m.AssetID.IsFiat()
}

// Pass 1: exchange execution extraction.
func passExchangeExecution(txs []*models.Transaction) int {
	added := 0
	for _, tx := range txs {
		if tx.SourceType != models.SourceExchange || tx.Operation.Category != models.CategoryTrade {
			continue
		}
		if len(tx.Movements.Inflows) != 1 || len(tx.Movements.Outflows) != 1 {
			continue
		}
		in := &tx.Movements.Inflows[0]
		out := &tx.Movements.Outflows[0]

		fiatLeg, cryptoLeg := pickFiatLeg(in, out)
		if fiatLeg == nil || cryptoLeg == nil {
			continue
		}
		if cryptoLeg.PriceAtTxTime != nil || cryptoLeg.GrossAmount.IsZero() {
			continue
		}

		unitPrice := fiatLeg.GrossAmount.Div(cryptoLeg.GrossAmount)
		cryptoLeg.PriceAtTxTime = &models.PriceAtTxTime{
			Price:       models.Price{Amount: unitPrice, Currency: domain.NewCurrency(fiatLeg.AssetSymbol)},
			Source:      models.PriceSourceExchangeExecution,
			FetchedAt:   tx.Datetime,
			Granularity: models.GranularityExact,
		}
		added++
	}
	return added
}

func pickFiatLeg(a, b *models.Movement) (fiatLeg, otherLeg *models.Movement) {
	aFiat, bFiat := isFiatMovement(*a), isFiatMovement(*b)
	switch {
	case aFiat && !bFiat:
		return a, b
	case bFiat && !aFiat:
		return b, a
	default:
		return nil, nil
	}
}

// Pass 2: trade-ratio derivation.
func passTradeRatio(txs []*models.Transaction) int {
	added := 0
	for _, tx := range txs {
		if tx.Operation.Category != models.CategoryTrade {
			continue
		}
		if len(tx.Movements.Inflows) != 1 || len(tx.Movements.Outflows) != 1 {
			continue
		}
		in := &tx.Movements.Inflows[0]
		out := &tx.Movements.Outflows[0]

		var priced, unpriced *models.Movement
		switch {
		case in.PriceAtTxTime != nil && out.PriceAtTxTime == nil:
			priced, unpriced = in, out
		case out.PriceAtTxTime != nil && in.PriceAtTxTime == nil:
			priced, unpriced = out, in
		default:
			continue
		}
		if unpriced.GrossAmount.IsZero() || priced.GrossAmount.IsZero() {
			continue
		}

		ratio := unpriced.GrossAmount.Div(priced.GrossAmount) // unpriced/priced, by amount
		unitPrice := priced.PriceAtTxTime.Price.Amount.Div(ratio)

		unpriced.PriceAtTxTime = &models.PriceAtTxTime{
			Price:       models.Price{Amount: unitPrice, Currency: priced.PriceAtTxTime.Price.Currency},
			Source:      models.PriceSourceDerivedTrade,
			FetchedAt:   tx.Datetime,
			Granularity: priced.PriceAtTxTime.Granularity,
		}
		added++
	}
	return added
}

// Pass 3: link propagation across confirmed transfer links.
func passLinkPropagation(txs []*models.Transaction, links []models.TransactionLink, byID map[string]*models.Transaction) int {
	added := 0
	for _, link := range links {
		if !link.EligibleForPropagation() {
			continue
		}
		source := byID[link.SourceTransactionID]
		target := byID[link.TargetTransactionID]
		if source == nil || target == nil {
			continue
		}

		for i := range source.Movements.Outflows {
			out := &source.Movements.Outflows[i]
			for j := range target.Movements.Inflows {
				in := &target.Movements.Inflows[j]
				if out.AssetID != in.AssetID {
					continue
				}
				if out.PriceAtTxTime != nil && in.PriceAtTxTime == nil {
					in.PriceAtTxTime = propagated(out.PriceAtTxTime)
					added++
				} else if in.PriceAtTxTime != nil && out.PriceAtTxTime == nil {
					out.PriceAtTxTime = propagated(in.PriceAtTxTime)
					added++
				}
			}
		}
	}
	return added
}

func propagated(p *models.PriceAtTxTime) *models.PriceAtTxTime {
	cp := *p
	cp.Source = models.PriceSourceLinkPropagated
	return &cp
}

// passExternalFetch is Pass 4: for movements still lacking a price,
// fetch a historical spot price (or, for fiat-pegged assets that look
// depegged, the same external fetch rather than an assumed 1:1 rate -
// per the strict de-peg decision, a fetch miss on a stableconfig is an
// error, not a silent 1.0 fallback).
func (e *Engine) passExternalFetch(ctx context.Context, txs []*models.Transaction) (int, error) {
	added := 0
	for _, tx := range txs {
		for i := range tx.Movements.Inflows {
			n, err := e.fetchIfMissing(ctx, tx, &tx.Movements.Inflows[i])
			if err != nil {
				return added, err
			}
			added += n
		}
		for i := range tx.Movements.Outflows {
			n, err := e.fetchIfMissing(ctx, tx, &tx.Movements.Outflows[i])
			if err != nil {
				return added, err
			}
			added += n
		}
	}
	return added, nil
}

func (e *Engine) fetchIfMissing(ctx context.Context, tx *models.Transaction, m *models.Movement) (int, error) {
	if m.PriceAtTxTime != nil || isFiatMovement(*m) {
		return 0, nil
	}

	const quoteCurrency = "usd"
	if cached, ok := e.Cache.NearestPrice(m.AssetID, domain.NewCurrency(quoteCurrency), tx.Datetime); ok {
		m.PriceAtTxTime = &models.PriceAtTxTime{
			Price:       models.Price{Amount: cached, Currency: domain.NewCurrency(quoteCurrency)},
			Source:      models.ExternalFetchSource("cache"),
			FetchedAt:   tx.Datetime,
			Granularity: models.GranularityDay,
		}
		return 1, nil
	}

	var lastErr error
	for _, p := range e.PriceProviders {
		data, err := p.FetchPrice(ctx, string(m.AssetID), quoteCurrency, tx.Datetime)
		if err != nil {
			lastErr = err
			continue
		}
		price, err := domain.ParseDecimal(data.Price)
		if err != nil {
			lastErr = err
			continue
		}
		m.PriceAtTxTime = &models.PriceAtTxTime{
			Price:       models.Price{Amount: price, Currency: domain.NewCurrency(data.Currency)},
			Source:      models.ExternalFetchSource(p.Name()),
			FetchedAt:   tx.Datetime,
			Granularity: data.Granularity,
		}
		e.Cache.Put(m.AssetID, domain.NewCurrency(quoteCurrency), tx.Datetime, price)
		return 1, nil
	}

	if isStablecoin(*m) && !e.Cfg.StablecoinDePeg {
		return 0, domain.NewError(domain.KindMissingPrice,
			fmt.Sprintf("stablecoin %s has no price fetch for %s and fallback is disabled", m.AssetSymbol, tx.Datetime.Format("2006-01-02")), lastErr)
	}

	if lastErr != nil {
		return 0, nil // provider outage: leave unpriced, retried next run
	}
	return 0, nil
}

// Pass 5: crypto/crypto ratio recalculation. Only overwrites an
// inflow's external-fetch price; never touches outflow (disposal)
// prices or fiat/stablecoin legs.
func passCryptoRatio(txs []*models.Transaction) int {
	added := 0
	for _, tx := range txs {
		if tx.Operation.Category != models.CategoryTrade {
			continue
		}
		if len(tx.Movements.Inflows) != 1 || len(tx.Movements.Outflows) != 1 {
			continue
		}
		in := &tx.Movements.Inflows[0]
		out := &tx.Movements.Outflows[0]

		if isFiatMovement(*in) || isFiatMovement(*out) || isStablecoin(*in) || isStablecoin(*out) {
			continue
		}
		if out.PriceAtTxTime == nil || in.PriceAtTxTime == nil {
			continue
		}
		if !in.PriceAtTxTime.Source.IsExternalFetch() {
			continue
		}
		if in.GrossAmount.IsZero() {
			continue
		}

		ratio := out.GrossAmount.Div(in.GrossAmount)
		newPrice := out.PriceAtTxTime.Price.Amount.Mul(ratio)
		if newPrice.Equal(in.PriceAtTxTime.Price.Amount) {
			continue
		}

		in.PriceAtTxTime = &models.PriceAtTxTime{
			Price:       models.Price{Amount: newPrice, Currency: out.PriceAtTxTime.Price.Currency},
			Source:      models.PriceSourceDerivedRatio,
			FetchedAt:   tx.Datetime,
			Granularity: out.PriceAtTxTime.Granularity,
		}
		added++
	}
	return added
}

// passFXNormalize converts any USD-missing, non-USD fiat priced
// movement to a USD price using a historical daily FX rate, recording
// both the USD price and the FX metadata used to derive it.
func (e *Engine) passFXNormalize(ctx context.Context, txs []*models.Transaction) (int, error) {
	added := 0
	for _, tx := range txs {
		for i := range tx.Movements.Inflows {
			n, err := e.normalizeOne(ctx, tx, &tx.Movements.Inflows[i])
			if err != nil {
				return added, err
			}
			added += n
		}
		for i := range tx.Movements.Outflows {
			n, err := e.normalizeOne(ctx, tx, &tx.Movements.Outflows[i])
			if err != nil {
				return added, err
			}
			added += n
		}
	}
	return added, nil
}

func (e *Engine) normalizeOne(ctx context.Context, tx *models.Transaction, m *models.Movement) (int, error) {
	p := m.PriceAtTxTime
	if p == nil || p.FxRateToUSD != nil {
		return 0, nil
	}
	if string(p.Price.Currency) == "USD" || string(p.Price.Currency) == "usd" {
		return 0, nil
	}

	data, err := e.FXProvider.FetchPrice(ctx, string(p.Price.Currency), "usd", tx.Datetime)
	if err != nil {
		return 0, nil // FX outage: leave as-is, retried next run
	}
	rate, err := domain.ParseDecimal(data.Price)
	if err != nil {
		return 0, err
	}

	usdPrice := p.Price.Amount.Mul(rate)
	fxTime := data.ObservedAt
	p.FxRateToUSD = &rate
	p.FxSource = e.FXProvider.Name()
	p.FxTimestamp = &fxTime
	p.Price = models.Price{Amount: usdPrice, Currency: domain.NewCurrency("usd")}
	return 1, nil
}
