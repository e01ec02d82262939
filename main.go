package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"ledgerforge/internal/config"
	"ledgerforge/internal/domain"
	"ledgerforge/internal/enrich"
	"ledgerforge/internal/enrich/pricecache"
	"ledgerforge/internal/enrich/priceprovider"
	"ledgerforge/internal/eventbus"
	"ledgerforge/internal/ingest"
	"ledgerforge/internal/ingest/csvsource"
	"ledgerforge/internal/lots"
	"ledgerforge/internal/models"
	"ledgerforge/internal/process"
	"ledgerforge/internal/process/classify"
	"ledgerforge/internal/process/spam"
	"ledgerforge/internal/provider"
	"ledgerforge/internal/provider/btcprovider"
	"ledgerforge/internal/provider/evmprovider"
	"ledgerforge/internal/provider/flowprovider"
	"ledgerforge/internal/ratelimit"
	"ledgerforge/internal/repository"

	"github.com/btcsuite/btcd/chaincfg"
)

// BuildCommit is set at build time via -ldflags.
var BuildCommit = "dev"

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Printf("no config file at %s, using defaults: %v", configPath, err)
		cfg = config.Default()
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}

	log.Printf("Initializing ledgerforge (build %s)...", BuildCommit)

	repo, err := repository.NewRepository(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to DB: %v", err)
	}
	defer repo.Close()

	if os.Getenv("SKIP_MIGRATION") != "true" {
		if err := repo.Migrate("migrations/schema.sql"); err != nil {
			log.Fatalf("migration failed: %v", err)
		}
	}

	bus := eventbus.New()

	registry := provider.NewRegistry()
	wireProviders(registry)
	wirePriceProviders(registry)

	transformers := process.NewTransformerRegistry()
	transformers.Register(&process.EVMTransformer{Chain: "ethereum"})
	transformers.Register(&process.UTXOTransformer{Chain: "bitcoin", OwnAddresses: ownAddressesFromAccount})
	transformers.Register(process.CSVTransformer{})
	transformers.Register(process.FlowTransformer{Chain: "flow"})

	classifiers := classify.NewRegistry()
	classify.RegisterAll(classifiers)

	spamDetector := spam.NewDetector()
	for assetID, max := range dustThresholdsFromEnv() {
		spamDetector.SetDustThreshold(assetID, max)
	}

	importRunner := ingest.NewRunner(repo, registry, bus, ingest.Config{
		BatchSize:     cfg.Import.BatchSize,
		ReplayWindow:  cfg.Import.ReplayWindow,
		DedupCapacity: cfg.Import.DedupCapacity,
	})

	processService := process.NewService(repo, repo, transformers, classifiers, bus).WithSpamDetector(spamDetector)

	priceCache := pricecache.New()

	enrichProviders := sortedPriceProviders(registry)
	var fxProvider provider.PriceProvider
	if cfg.Enrichment.EnableFXLookup {
		if p, err := registry.GetPriceProvider(cfg.Enrichment.FXProvider); err == nil {
			fxProvider = p
		}
	}
	enrichEngine := enrich.New(enrichProviders, fxProvider, priceCache, cfg.Enrichment, bus)

	lotMatcher := lots.NewMatcher(
		"default",
		lots.ForMethod(models.CostBasisMethod(cfg.LotMatching.DefaultMethod)),
		perAssetStrategies(cfg),
		lots.PolicyFromConfig(cfg.LotMatching),
	)

	limiter := ratelimit.NewProviderLimiter(5, 10, 15*time.Minute)
	breakers := newProviderBreakers([]string{"evm-ethereum", "bitcoin", "flow", "csv"})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pollInterval := envDuration("POLL_INTERVAL_SECONDS", 30*time.Second)
	log.Printf("entering import/process/enrich/lots loop, poll interval %s", pollInterval)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	runCycle(ctx, repo, importRunner, processService, enrichEngine, lotMatcher, limiter, breakers)
	for {
		select {
		case <-ctx.Done():
			log.Println("shutting down")
			return
		case <-ticker.C:
			runCycle(ctx, repo, importRunner, processService, enrichEngine, lotMatcher, limiter, breakers)
		}
	}
}

func newProviderBreakers(names []string) map[string]*ratelimit.Breaker {
	out := make(map[string]*ratelimit.Breaker, len(names))
	for _, name := range names {
		out[name] = ratelimit.NewBreaker(5, 30*time.Second)
	}
	return out
}

// runCycle drives one full pass: ingest every tracked account, process
// whatever's now pending, enrich prices for everything processed so
// far, and recompute cost-basis lots. Each stage logs and continues
// past a single account/asset failure rather than aborting the cycle.
// A provider whose import calls keep failing trips its breaker and is
// skipped for the remainder of its cooldown, rather than being retried
// on every tracked account every cycle.
func runCycle(ctx context.Context, repo *repository.Repository, runner *ingest.Runner, proc *process.Service, enrichEngine *enrich.Engine, matcher *lots.Matcher, limiter *ratelimit.ProviderLimiter, breakers map[string]*ratelimit.Breaker) {
	for _, providerName := range []string{"evm-ethereum", "bitcoin", "flow", "csv"} {
		breaker := breakers[providerName]
		if breaker != nil && !breaker.Allow() {
			continue
		}

		accounts, err := repo.ListAccountsByProvider(ctx, providerName)
		if err != nil {
			log.Printf("[cycle] list accounts for %s: %v", providerName, err)
			continue
		}
		for _, account := range accounts {
			if !limiter.Allow(providerName) {
				continue
			}
			if err := runner.ImportFromSource(ctx, account.ID, models.StreamNormal); err != nil {
				log.Printf("[cycle] import %s: %v", account.ID, err)
				if breaker != nil {
					breaker.RecordFailure()
				}
				continue
			}
			if breaker != nil {
				breaker.RecordSuccess()
			}
			if _, err := proc.ProcessAccountTransactionsChunked(ctx, account.ID, 500); err != nil {
				log.Printf("[cycle] process %s: %v", account.ID, err)
			}
		}
	}

	for _, userID := range knownUserIDs() {
		txs, err := repo.ListTransactionsForAccounting(ctx, userID)
		if err != nil {
			log.Printf("[cycle] load transactions for %s: %v", userID, err)
			continue
		}
		links, err := repo.ListLinksForAccounting(ctx, userID)
		if err != nil {
			log.Printf("[cycle] load links for %s: %v", userID, err)
			continue
		}

		ptrs := make([]*models.Transaction, len(txs))
		for i := range txs {
			ptrs[i] = &txs[i]
		}
		if _, err := enrichEngine.Run(ctx, ptrs, links); err != nil {
			log.Printf("[cycle] enrich %s: %v", userID, err)
			continue
		}

		result, err := matcher.Run(txs, links)
		if err != nil {
			log.Printf("[cycle] lot matching %s: %v", userID, err)
			continue
		}
		for _, assetErr := range result.Errors {
			log.Printf("[cycle] lot matching %s/%s failed: %v", userID, assetErr.AssetSymbol, assetErr.Err)
		}
		for _, ar := range result.AssetResults {
			lotsCopy := make([]models.AcquisitionLot, len(ar.Lots))
			for i, l := range ar.Lots {
				lotsCopy[i] = *l
			}
			transfersCopy := make([]models.LotTransfer, len(ar.LotTransfers))
			for i, t := range ar.LotTransfers {
				transfersCopy[i] = *t
			}
			if err := repo.ReplaceLotsForCalculation(ctx, "default", lotsCopy, ar.Disposals, transfersCopy); err != nil {
				log.Printf("[cycle] persist lots %s/%s: %v", userID, ar.AssetID, err)
			}
		}
	}
}

// knownUserIDs is a placeholder seam until a multi-tenant users table
// lands; a single-tenant deployment sets ACCOUNTING_USER_ID directly.
func knownUserIDs() []string {
	if v := os.Getenv("ACCOUNTING_USER_ID"); v != "" {
		return []string{v}
	}
	return nil
}

func wireProviders(registry *provider.Registry) {
	if rpcURL := os.Getenv("EVM_RPC_URL"); rpcURL != "" {
		p, err := evmprovider.New(rpcURL, "ethereum")
		if err != nil {
			log.Printf("evmprovider: %v", err)
		} else {
			registry.Register(p)
		}
	}

	btcBaseURL := os.Getenv("BTC_ESPLORA_URL")
	if btcBaseURL == "" {
		btcBaseURL = "https://blockstream.info/api"
	}
	registry.Register(btcprovider.New(btcBaseURL, &chaincfg.MainNetParams))

	if nodesRaw := strings.TrimSpace(os.Getenv("FLOW_ACCESS_NODES")); nodesRaw != "" {
		nodes := strings.Split(nodesRaw, ",")
		client, err := flowprovider.NewClient(nodes, 10, 20)
		if err != nil {
			log.Printf("flowprovider: %v", err)
		} else {
			registry.Register(flowprovider.New(client, "flow"))
		}
	}

	if csvPath := os.Getenv("CSV_IMPORT_PATH"); csvPath != "" {
		registry.Register(csvsource.New(csvPath))
	}
}

func wirePriceProviders(registry *provider.Registry) {
	coinIDs := map[string]string{
		string(domain.NativeAssetID("bitcoin")):  "bitcoin",
		string(domain.NativeAssetID("ethereum")): "ethereum",
	}
	registry.RegisterPriceProvider(priceprovider.NewCoinGecko(coinIDs))
	registry.RegisterPriceProvider(priceprovider.NewCryptoCompare(os.Getenv("CRYPTOCOMPARE_API_KEY")))
	registry.RegisterPriceProvider(priceprovider.NewBinance())
	registry.RegisterPriceProvider(priceprovider.NewECB())
}

// sortedPriceProviders returns the external-fetch providers in a fixed
// preference order (CoinGecko first, Binance last), skipping any not
// registered (e.g. no CryptoCompare API key configured).
func sortedPriceProviders(registry *provider.Registry) []provider.PriceProvider {
	order := []string{"coingecko", "cryptocompare", "binance"}
	all := registry.PriceProviders()
	var out []provider.PriceProvider
	for _, name := range order {
		if p, ok := all[name]; ok {
			out = append(out, p)
		}
	}
	return out
}

func perAssetStrategies(cfg *config.Config) map[domain.AssetID]lots.Strategy {
	if len(cfg.LotMatching.PerAssetMethods) == 0 {
		return nil
	}
	out := make(map[domain.AssetID]lots.Strategy, len(cfg.LotMatching.PerAssetMethods))
	for assetID, method := range cfg.LotMatching.PerAssetMethods {
		out[domain.AssetID(assetID)] = lots.ForMethod(models.CostBasisMethod(method))
	}
	return out
}

// dustThresholdsFromEnv parses DUST_THRESHOLDS as "assetID=amount,..."
// pairs, e.g. "blockchain:ethereum:native=0.0001".
func dustThresholdsFromEnv() map[domain.AssetID]domain.Decimal {
	out := make(map[domain.AssetID]domain.Decimal)
	raw := os.Getenv("DUST_THRESHOLDS")
	if raw == "" {
		return out
	}
	for _, pair := range strings.Split(raw, ",") {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			continue
		}
		amount, err := domain.ParseDecimal(strings.TrimSpace(kv[1]))
		if err != nil {
			continue
		}
		out[domain.AssetID(strings.TrimSpace(kv[0]))] = amount
	}
	return out
}

func ownAddressesFromAccount(account models.Account) (map[string]bool, error) {
	return map[string]bool{strings.ToLower(account.Identifier): true}, nil
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return fallback
}
