package address

import (
	"context"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
)

// ActivityChecker reports whether addr has ever received a transaction.
// The btcprovider's explorer client satisfies this.
type ActivityChecker func(ctx context.Context, addr string) (bool, error)

// DefaultGapLimit is BIP44's standard unused-address gap before a scan
// gives up on a derivation chain.
const DefaultGapLimit = 20

// ScanXpub derives receive addresses (chain 0) from an extended public
// key and returns every address with on-chain activity, stopping once
// GapLimit consecutive addresses show no activity.
func ScanXpub(ctx context.Context, xpub string, params *chaincfg.Params, gapLimit int, check ActivityChecker) ([]string, error) {
	if gapLimit <= 0 {
		gapLimit = DefaultGapLimit
	}

	acctKey, err := hdkeychain.NewKeyFromString(xpub)
	if err != nil {
		return nil, fmt.Errorf("xpub: parse %q: %w", xpub, err)
	}
	if acctKey.IsPrivate() {
		return nil, fmt.Errorf("xpub: expected a public extended key, got a private one")
	}

	receiveChain, err := acctKey.Derive(0)
	if err != nil {
		return nil, fmt.Errorf("xpub: derive receive chain: %w", err)
	}

	var active []string
	consecutiveUnused := 0
	for index := uint32(0); consecutiveUnused < gapLimit; index++ {
		childKey, err := receiveChain.Derive(index)
		if err != nil {
			return nil, fmt.Errorf("xpub: derive index %d: %w", index, err)
		}
		pubKey, err := childKey.ECPubKey()
		if err != nil {
			return nil, fmt.Errorf("xpub: ec pubkey at index %d: %w", index, err)
		}
		addr, err := btcutil.NewAddressPubKeyHash(btcutil.Hash160(pubKey.SerializeCompressed()), params)
		if err != nil {
			return nil, fmt.Errorf("xpub: derive address at index %d: %w", index, err)
		}

		hasActivity, err := check(ctx, addr.EncodeAddress())
		if err != nil {
			return nil, fmt.Errorf("xpub: check activity for %s: %w", addr.EncodeAddress(), err)
		}
		if hasActivity {
			active = append(active, addr.EncodeAddress())
			consecutiveUnused = 0
		} else {
			consecutiveUnused++
		}
	}
	return active, nil
}
